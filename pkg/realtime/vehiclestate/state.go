package vehiclestate

import (
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
)

type Status int

const (
	StatusUnassigned Status = iota
	StatusPredictable
	StatusUnpredictable
)

func (s Status) String() string {
	switch s {
	case StatusPredictable:
		return "PREDICTABLE"
	case StatusUnpredictable:
		return "UNPREDICTABLE"
	default:
		return "UNASSIGNED"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// VehicleRuntimeState is everything known about one vehicle. Fields must only be read or written
// while holding the lock.
type VehicleRuntimeState struct {
	mutex sync.Mutex

	VehicleID string
	Status    Status

	AvlReport *ctdf.AvlReport
	Match     *ctdf.TemporalMatch

	Block       *ctdf.Block
	Trip        *ctdf.Trip
	ServiceDate time.Time

	// Assignment as reported by the AVL feed
	AssignmentID   string
	AssignmentType ctdf.AssignmentType

	AvlHistory   *RingBuffer[ctdf.AvlReport]
	MatchHistory *RingBuffer[ctdf.TemporalMatch]
	EventHistory *RingBuffer[ctdf.VehicleEvent]

	BadMatches int
	Delayed    bool

	// Synthetic vehicle standing in for a block without a real vehicle
	ForSchedBasedPreds bool
	Canceled           bool

	// Positive is early
	ScheduleAdherence      time.Duration
	ScheduleAdherenceValid bool

	LastAutoAssignAttempt time.Time
}

func NewVehicleRuntimeState(vehicleID string, cfg config.CoreConfig) *VehicleRuntimeState {
	return &VehicleRuntimeState{
		VehicleID:    vehicleID,
		AvlHistory:   NewRingBuffer[ctdf.AvlReport](cfg.AvlHistoryMaxSize),
		MatchHistory: NewRingBuffer[ctdf.TemporalMatch](cfg.MatchHistoryMaxSize),
		EventHistory: NewRingBuffer[ctdf.VehicleEvent](cfg.EventHistoryMaxSize),
	}
}

func (s *VehicleRuntimeState) Lock() {
	s.mutex.Lock()
}

func (s *VehicleRuntimeState) Unlock() {
	s.mutex.Unlock()
}

func (s *VehicleRuntimeState) IsPredictable() bool {
	return s.Status == StatusPredictable
}

// RecordAvlReport makes the report current and adds it to the history
func (s *VehicleRuntimeState) RecordAvlReport(report *ctdf.AvlReport) {
	s.AvlReport = report
	s.AvlHistory.Push(*report)
}

// PreviousAvlReport is the report before the current one
func (s *VehicleRuntimeState) PreviousAvlReport() (ctdf.AvlReport, bool) {
	if s.AvlHistory.Len() < 2 {
		return ctdf.AvlReport{}, false
	}
	return s.AvlHistory.At(s.AvlHistory.Len() - 2), true
}

// LastAvlTime is zero when no report has been processed
func (s *VehicleRuntimeState) LastAvlTime() time.Time {
	if s.AvlReport == nil {
		return time.Time{}
	}
	return s.AvlReport.Time
}

// MatchAtOrBefore is the newest match no later than the given time
func (s *VehicleRuntimeState) MatchAtOrBefore(t time.Time) (ctdf.TemporalMatch, bool) {
	for i := s.MatchHistory.Len() - 1; i >= 0; i-- {
		match := s.MatchHistory.At(i)
		if !match.AvlTime.After(t) {
			return match, true
		}
	}
	return ctdf.TemporalMatch{}, false
}

// AtWaitStop is true when the current match is at a stop the vehicle is expected to wait at
func (s *VehicleRuntimeState) AtWaitStop(stopPaths []*ctdf.StopPath) bool {
	if s.Match == nil || !s.Match.AtStop || s.Match.AtStopPathIndex >= len(stopPaths) {
		return false
	}
	stopPath := stopPaths[s.Match.AtStopPathIndex]
	return stopPath.IsWaitStop || stopPath.IsLayover
}

// Snapshot is a detached copy of a vehicle's state for reporting
type Snapshot struct {
	VehicleID   string `groups:"basic"`
	Status      Status `groups:"basic"`
	Predictable bool   `groups:"basic"`

	AvlReport *ctdf.AvlReport     `groups:"basic"`
	Match     *ctdf.TemporalMatch `groups:"basic"`
	BlockID   string              `groups:"basic"`
	TripID    string              `groups:"basic"`
	RouteID   string              `groups:"basic"`

	AssignmentID   string              `groups:"detailed"`
	AssignmentType ctdf.AssignmentType `groups:"detailed"`
	ServiceDate    time.Time           `groups:"detailed"`

	BadMatches         int  `groups:"detailed"`
	Delayed            bool `groups:"basic"`
	ForSchedBasedPreds bool `groups:"basic"`
	Canceled           bool `groups:"basic"`

	ScheduleAdherence      time.Duration `groups:"basic"`
	ScheduleAdherenceValid bool          `groups:"basic"`

	RecentAvlReports []ctdf.AvlReport     `groups:"detailed"`
	RecentMatches    []ctdf.TemporalMatch `groups:"detailed"`
	RecentEvents     []ctdf.VehicleEvent  `groups:"detailed"`
}

// Snapshot takes the lock and deep copies the state
func (s *VehicleRuntimeState) Snapshot() (Snapshot, error) {
	s.Lock()
	defer s.Unlock()

	var snapshot Snapshot
	if err := copier.CopyWithOption(&snapshot, s, copier.Option{DeepCopy: true}); err != nil {
		return Snapshot{}, err
	}

	snapshot.Predictable = s.IsPredictable()
	if s.Block != nil {
		snapshot.BlockID = s.Block.ID
	}
	if s.Trip != nil {
		snapshot.TripID = s.Trip.ID
		snapshot.RouteID = s.Trip.RouteID
	}
	snapshot.RecentAvlReports = s.AvlHistory.Items()
	snapshot.RecentMatches = s.MatchHistory.Items()
	snapshot.RecentEvents = s.EventHistory.Items()

	return snapshot, nil
}
