package config

import (
	stdjson "encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "AVLENGINE_"

// defaultsProvider feeds Default() to koanf so every key exists in its canonical form before files
// and the environment are layered on top
type defaultsProvider struct{}

func (defaultsProvider) ReadBytes() ([]byte, error) {
	return stdjson.Marshal(Default())
}

func (defaultsProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("defaults provider does not support Read")
}

type Config struct {
	Core         CoreConfig         `json:"core"`
	Avl          AvlConfig          `json:"avl"`
	Timeout      TimeoutConfig      `json:"timeout"`
	AutoAssigner AutoAssignerConfig `json:"autoAssigner"`
	Prediction   PredictionConfig   `json:"prediction"`
	TravelTimes  TravelTimesConfig  `json:"travelTimes"`
	Events       EventsConfig       `json:"events"`
	Schedule     ScheduleConfig     `json:"schedule"`
	API          APIConfig          `json:"api"`
}

type CoreConfig struct {
	MaxDistanceFromSegment                 float64 `json:"maxDistanceFromSegment" validate:"gt=0"`
	MaxDistanceFromSegmentForAutoAssigning float64 `json:"maxDistanceFromSegmentForAutoAssigning" validate:"gt=0"`
	AllowableNumberOfBadMatches            int     `json:"allowableNumberOfBadMatches" validate:"gte=0"`
	MaxHeadingOffsetFromSegment            float64 `json:"maxHeadingOffsetFromSegment" validate:"gte=0,lte=360"`

	DistanceFromEndOfBlockForInitialMatching float64 `json:"distanceFromEndOfBlockForInitialMatching" validate:"gte=0"`
	DistanceFromLastStopForEndMatching       float64 `json:"distanceFromLastStopForEndMatching" validate:"gte=0"`

	AllowableEarlySeconds                   int `json:"allowableEarlySeconds" validate:"gte=0"`
	AllowableLateSeconds                    int `json:"allowableLateSeconds" validate:"gte=0"`
	AllowableEarlyForLayoverSeconds         int `json:"allowableEarlyForLayoverSeconds" validate:"gte=0"`
	AllowableEarlySecondsForInitialMatching int `json:"allowableEarlySecondsForInitialMatching" validate:"gte=0"`
	AllowableLateSecondsForInitialMatching  int `json:"allowableLateSecondsForInitialMatching" validate:"gte=0"`

	BeforeStopDistance float64 `json:"beforeStopDistance" validate:"gte=0"`
	AfterStopDistance  float64 `json:"afterStopDistance" validate:"gte=0"`

	ExclusiveBlockAssignments    bool    `json:"exclusiveBlockAssignments"`
	MaxDistanceForAssignmentGrab float64 `json:"maxDistanceForAssignmentGrab" validate:"gte=0"`

	TimeForDeterminingNoProgressSecs int     `json:"timeForDeterminingNoProgressSecs" validate:"gte=0"`
	MinDistanceForNoProgress         float64 `json:"minDistanceForNoProgress" validate:"gte=0"`
	TimeForDeterminingDelayedSecs    int     `json:"timeForDeterminingDelayedSecs" validate:"gte=0"`
	MinDistanceForDelayed            float64 `json:"minDistanceForDelayed" validate:"gte=0"`

	MatchHistoryMaxSize int `json:"matchHistoryMaxSize" validate:"gt=0"`
	AvlHistoryMaxSize   int `json:"avlHistoryMaxSize" validate:"gt=0"`
	EventHistoryMaxSize int `json:"eventHistoryMaxSize" validate:"gt=0"`

	MaxPredictionsTimeSecs int `json:"maxPredictionsTimeSecs" validate:"gt=0"`
}

type AvlConfig struct {
	MaxSpeed                     float64 `json:"maxSpeed" validate:"gt=0"`
	MaxStopPathsAhead            int     `json:"maxStopPathsAhead" validate:"gt=0"`
	MinSpeedForValidHeading      float64 `json:"minSpeedForValidHeading" validate:"gte=0"`
	MinLatitude                  float64 `json:"minLatitude" validate:"gte=-90,lte=90"`
	MaxLatitude                  float64 `json:"maxLatitude" validate:"gte=-90,lte=90,gtefield=MinLatitude"`
	MinLongitude                 float64 `json:"minLongitude" validate:"gte=-180,lte=180"`
	MaxLongitude                 float64 `json:"maxLongitude" validate:"gte=-180,lte=180,gtefield=MinLongitude"`
	MinTimeBetweenAvlReportsSecs int     `json:"minTimeBetweenAvlReportsSecs" validate:"gte=0"`
	MaxAgeSecs                   int     `json:"maxAgeSecs" validate:"gt=0"`
	MaxFutureSecs                int     `json:"maxFutureSecs" validate:"gte=0"`
	NumThreads                   int     `json:"numThreads" validate:"gt=0"`
	QueueSize                    int     `json:"queueSize" validate:"gt=0"`

	// Expression evaluated against the report, a true result means the assignment is ignored
	UnpredictableAssignmentsExpr string `json:"unpredictableAssignmentsExpr"`

	GTFSRealtimeURL     string `json:"gtfsRealtimeUrl" validate:"omitempty,url"`
	SiriVMURL           string `json:"siriVmUrl" validate:"omitempty,url"`
	FeedPollingRateSecs int    `json:"feedPollingRateSecs" validate:"gt=0"`
}

type TimeoutConfig struct {
	PollingRateSecs                            int  `json:"pollingRateSecs" validate:"gt=0"`
	AllowableNoAvlSecs                         int  `json:"allowableNoAvlSecs" validate:"gt=0"`
	AllowableNoAvlAfterSchedDepartSecs         int  `json:"allowableNoAvlAfterSchedDepartSecs" validate:"gte=0"`
	RemoveTimedOutVehiclesFromVehicleDataCache bool `json:"removeTimedOutVehiclesFromVehicleDataCache"`

	// Schedule based vehicles
	CancelTripOnTimeout    bool `json:"cancelTripOnTimeout"`
	BeforeStartTimeMinutes int  `json:"beforeStartTimeMinutes" validate:"gte=0"`
	AfterStartTimeMinutes  int  `json:"afterStartTimeMinutes" validate:"gte=-1"`
	SchedBasedPollingSecs  int  `json:"schedBasedPollingSecs" validate:"gt=0"`
	SchedBasedEnabled      bool `json:"schedBasedEnabled"`
}

type AutoAssignerConfig struct {
	Enabled                         bool    `json:"enabled"`
	IgnoreAvlAssignments            bool    `json:"ignoreAvlAssignments"`
	MinDistanceFromCurrentReport    float64 `json:"minDistanceFromCurrentReport" validate:"gte=0"`
	AllowableEarlySeconds           int     `json:"allowableEarlySeconds" validate:"gte=0"`
	AllowableLateSeconds            int     `json:"allowableLateSeconds" validate:"gte=0"`
	MinTimeBetweenAutoAssigningSecs int     `json:"minTimeBetweenAutoAssigningSecs" validate:"gte=0"`
}

type KalmanConfig struct {
	Enabled                              bool    `json:"enabled"`
	MinDays                              int     `json:"minDays" validate:"gt=0"`
	MaxDays                              int     `json:"maxDays" validate:"gtefield=MinDays"`
	MaxDaysToSearch                      int     `json:"maxDaysToSearch" validate:"gtefield=MaxDays"`
	InitialErrorValue                    float64 `json:"initialErrorValue" validate:"gte=0"`
	UseKalmanForPartialStopPaths         bool    `json:"useKalmanForPartialStopPaths"`
	UseAverage                           bool    `json:"useAverage"`
	PercentagePredictionMethodDifference float64 `json:"percentagePredictionMethodDifference" validate:"gte=0"`
	ThresholdForDifferenceEventLogMsec   int     `json:"thresholdForDifferenceEventLogMsec" validate:"gte=0"`
}

type RlsConfig struct {
	Enabled                    bool    `json:"enabled"`
	Lambda                     float64 `json:"lambda" validate:"gt=0,lte=1"`
	MinDwellTimeAllowedInModel int     `json:"minDwellTimeAllowedInModel" validate:"gte=0"`
	MaxDwellTimeAllowedInModel int     `json:"maxDwellTimeAllowedInModel" validate:"gtefield=MinDwellTimeAllowedInModel"`
	MinHeadwayAllowedInModel   int     `json:"minHeadwayAllowedInModel" validate:"gte=0"`
	MaxHeadwayAllowedInModel   int     `json:"maxHeadwayAllowedInModel" validate:"gtefield=MinHeadwayAllowedInModel"`
	MinSamples                 int     `json:"minSamples" validate:"gt=0"`
}

type BiasConfig struct {
	Method string `json:"method" validate:"oneof=none exponential linear"`

	ExponentialA      float64 `json:"exponentialA"`
	ExponentialB      float64 `json:"exponentialB"`
	ExponentialC      float64 `json:"exponentialC"`
	ExponentialUpDown int     `json:"exponentialUpDown" validate:"oneof=-1 1"`

	LinearRate   float64 `json:"linearRate"`
	LinearUpDown int     `json:"linearUpDown" validate:"oneof=-1 1"`
}

type PredictionConfig struct {
	Kalman KalmanConfig `json:"kalman"`
	Rls    RlsConfig    `json:"rls"`
	Bias   BiasConfig   `json:"bias"`

	AverageMinDays int `json:"averageMinDays" validate:"gt=0"`

	MinTravelTimeAllowedInModel   int `json:"minTravelTimeAllowedInModel" validate:"gte=0"`
	MaxTravelTimeAllowedInModel   int `json:"maxTravelTimeAllowedInModel" validate:"gtefield=MinTravelTimeAllowedInModel"`
	MinSchedAdherenceAllowedSecs  int `json:"minSchedAdherenceAllowedSecs"`
	MaxSchedAdherenceAllowedSecs  int `json:"maxSchedAdherenceAllowedSecs" validate:"gtefield=MinSchedAdherenceAllowedSecs"`
	DwellSampleSize               int `json:"dwellSampleSize" validate:"gt=0"`

	FractionLimit float64 `json:"fractionLimit" validate:"gt=0,lte=1"`

	UseExactSchedTimeForWaitStops       bool `json:"useExactSchedTimeForWaitStops"`
	ReturnArrivalPredictionForEndOfTrip bool `json:"returnArrivalPredictionForEndOfTrip"`

	// redis or memory
	ErrorCacheBackend string `json:"errorCacheBackend" validate:"oneof=memory redis"`
}

type TravelTimesConfig struct {
	MaxTravelTimeSegmentLength float64 `json:"maxTravelTimeSegmentLength" validate:"gt=0"`
	MaxSegmentSpeedMps         float64 `json:"maxSegmentSpeedMps" validate:"gt=0"`
	MaxTravelTimeSegments      int     `json:"maxTravelTimeSegments" validate:"gt=0"`
	DefaultStopTimeMsec        int     `json:"defaultStopTimeMsec" validate:"gte=0"`
	DefaultSpeedMps            float64 `json:"defaultSpeedMps" validate:"gt=0"`
}

type EventsConfig struct {
	QueueSize      int      `json:"queueSize" validate:"gt=0"`
	BatchSize      int      `json:"batchSize" validate:"gt=0"`
	FlushEverySecs int      `json:"flushEverySecs" validate:"gt=0"`
	Writers        []string `json:"writers" validate:"dive,oneof=log mongo elastic queue nats"`
}

type APIConfig struct {
	Listen string `json:"listen"`
}

type ScheduleConfig struct {
	File     string `json:"file"`
	Timezone string `json:"timezone" validate:"required"`
}

func Default() *Config {
	return &Config{
		Core: CoreConfig{
			MaxDistanceFromSegment:                   60,
			MaxDistanceFromSegmentForAutoAssigning:   60,
			AllowableNumberOfBadMatches:              2,
			MaxHeadingOffsetFromSegment:              360,
			DistanceFromEndOfBlockForInitialMatching: 250,
			DistanceFromLastStopForEndMatching:       250,
			AllowableEarlySeconds:                    900,
			AllowableLateSeconds:                     5400,
			AllowableEarlyForLayoverSeconds:          3600,
			AllowableEarlySecondsForInitialMatching:  600,
			AllowableLateSecondsForInitialMatching:   1200,
			BeforeStopDistance:                       50,
			AfterStopDistance:                        50,
			ExclusiveBlockAssignments:                true,
			MaxDistanceForAssignmentGrab:             10000,
			TimeForDeterminingNoProgressSecs:         480,
			MinDistanceForNoProgress:                 60,
			TimeForDeterminingDelayedSecs:            240,
			MinDistanceForDelayed:                    60,
			MatchHistoryMaxSize:                      20,
			AvlHistoryMaxSize:                        20,
			EventHistoryMaxSize:                      20,
			MaxPredictionsTimeSecs:                   1800,
		},
		Avl: AvlConfig{
			MaxSpeed:                     31.3,
			MaxStopPathsAhead:            999,
			MinSpeedForValidHeading:      1.5,
			MinLatitude:                  -90,
			MaxLatitude:                  90,
			MinLongitude:                 -180,
			MaxLongitude:                 180,
			MinTimeBetweenAvlReportsSecs: 5,
			MaxAgeSecs:                   86400,
			MaxFutureSecs:                300,
			NumThreads:                   1,
			QueueSize:                    2000,
			FeedPollingRateSecs:          30,
		},
		Timeout: TimeoutConfig{
			PollingRateSecs:                    30,
			AllowableNoAvlSecs:                 360,
			AllowableNoAvlAfterSchedDepartSecs: 360,
			CancelTripOnTimeout:                true,
			BeforeStartTimeMinutes:             60,
			AfterStartTimeMinutes:              8,
			SchedBasedPollingSecs:              240,
		},
		AutoAssigner: AutoAssignerConfig{
			Enabled:                         true,
			MinDistanceFromCurrentReport:    100,
			AllowableEarlySeconds:           180,
			AllowableLateSeconds:            300,
			MinTimeBetweenAutoAssigningSecs: 30,
		},
		Prediction: PredictionConfig{
			Kalman: KalmanConfig{
				Enabled:                              true,
				MinDays:                              3,
				MaxDays:                              3,
				MaxDaysToSearch:                      30,
				InitialErrorValue:                    100,
				UseKalmanForPartialStopPaths:         true,
				UseAverage:                           true,
				PercentagePredictionMethodDifference: 50,
				ThresholdForDifferenceEventLogMsec:   60000,
			},
			Rls: RlsConfig{
				Enabled:                    true,
				Lambda:                     0.75,
				MinDwellTimeAllowedInModel: 1000,
				MaxDwellTimeAllowedInModel: 120000,
				MinHeadwayAllowedInModel:   1000,
				MaxHeadwayAllowedInModel:   3600000,
				MinSamples:                 3,
			},
			Bias: BiasConfig{
				Method:            "none",
				ExponentialA:      0.5,
				ExponentialB:      1.1,
				ExponentialC:      -0.5,
				ExponentialUpDown: -1,
				LinearRate:        0.0006,
				LinearUpDown:      -1,
			},
			AverageMinDays:                1,
			MinTravelTimeAllowedInModel:   1000,
			MaxTravelTimeAllowedInModel:   1200000,
			MinSchedAdherenceAllowedSecs:  -600,
			MaxSchedAdherenceAllowedSecs:  600,
			DwellSampleSize:               5,
			FractionLimit:                 0.7,
			UseExactSchedTimeForWaitStops: true,
			ErrorCacheBackend:             "memory",
		},
		TravelTimes: TravelTimesConfig{
			MaxTravelTimeSegmentLength: 250,
			MaxSegmentSpeedMps:         27,
			MaxTravelTimeSegments:      100,
			DefaultStopTimeMsec:        10000,
			DefaultSpeedMps:            8,
		},
		Events: EventsConfig{
			QueueSize:      10000,
			BatchSize:      200,
			FlushEverySecs: 5,
			Writers:        []string{"log"},
		},
		Schedule: ScheduleConfig{
			Timezone: "UTC",
		},
		API: APIConfig{
			Listen: ":8080",
		},
	}
}

// Load reads an optional yaml/json file on top of the defaults, applies AVLENGINE_ environment
// overrides (AVLENGINE_CORE__MAXDISTANCEFROMSEGMENT=80) and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaultsProvider{}, json.Parser()); err != nil {
		return nil, err
	}

	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}

	// environment names are case insensitive, map them onto the known keys
	known := map[string]string{}
	for _, key := range k.Keys() {
		known[strings.ToLower(key)] = key
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
		if key, ok := known[s]; ok {
			return key
		}
		return s
	}), nil); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv is Load with the file path taken from AVLENGINE_CONFIG_FILE
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("AVLENGINE_CONFIG_FILE"))
}

func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
