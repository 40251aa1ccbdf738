package vehicletracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/api"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/consumer"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/events"
	"github.com/travigo/avlengine/pkg/realtime/matcher"
	"github.com/travigo/avlengine/pkg/realtime/prediction"
	"github.com/travigo/avlengine/pkg/realtime/vehicletracker/feeds"
	"github.com/travigo/avlengine/pkg/redis_client"
	"github.com/travigo/avlengine/pkg/schedule"
	"github.com/travigo/avlengine/pkg/stats"
	"github.com/urfave/cli/v2"
)

const errorCacheExpiration = 7 * 24 * time.Hour

func loadSchedule(cfg *config.Config, path string) (*schedule.Provider, error) {
	if path == "" {
		path = cfg.Schedule.File
	}
	if path == "" {
		return nil, errors.New("no schedule file configured")
	}

	graph, problems, err := schedule.LoadFile(path, cfg.TravelTimes)
	if err != nil {
		return nil, err
	}
	for _, problem := range problems {
		log.Warn().Msg(problem.String())
	}
	log.Info().Int("blocks", len(graph.Blocks)).Int("trips", len(graph.Trips)).Msg("Loaded schedule")

	return schedule.NewProvider(graph), nil
}

func newErrorCache(cfg *config.Config) (prediction.ErrorCache, error) {
	switch cfg.Prediction.ErrorCacheBackend {
	case "redis":
		if redis_client.Client == nil {
			if err := redis_client.Connect(); err != nil {
				return nil, err
			}
		}
		return prediction.NewRedisErrorCache(redis_client.Client, errorCacheExpiration), nil
	default:
		return prediction.NewMemoryErrorCache(), nil
	}
}

// newTracker wires a tracker writing to the given event writers. The dispatcher must be run by the
// caller.
func newTracker(cfg *config.Config, scheduleFile string, writerNames []string) (*Tracker, *events.Dispatcher, []events.Writer, error) {
	provider, err := loadSchedule(cfg, scheduleFile)
	if err != nil {
		return nil, nil, nil, err
	}

	metrics, err := stats.NewMetrics(nil)
	if err != nil {
		return nil, nil, nil, err
	}

	writers, err := events.NewWriters(writerNames)
	if err != nil {
		return nil, nil, nil, err
	}
	dispatcher := events.NewDispatcher(cfg.Events, metrics, writers...)

	errorCache, err := newErrorCache(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	tracker, err := New(cfg, provider, dispatcher, errorCache, metrics)
	if err != nil {
		return nil, nil, nil, err
	}

	return tracker, dispatcher, writers, nil
}

func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT)
	defer signal.Stop(signals)

	<-signals // wait for signal
	go func() {
		<-signals // hard exit on second signal (in case shutdown gets stuck)
		os.Exit(1)
	}()
}

var scheduleFlag = &cli.StringFlag{
	Name:  "schedule",
	Usage: "schedule file, defaults to the configured file",
}

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "vehicle-tracker",
		Usage: "Realtime engine matches AVL reports to the schedule and generates predictions",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run an instance of the realtime engine",
				Flags: []cli.Flag{
					scheduleFlag,
					&cli.StringFlag{
						Name:  "api-listen",
						Usage: "listen target for the query API, disabled when empty",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.LoadFromEnv()
					if err != nil {
						return err
					}

					if err := redis_client.Connect(); err != nil {
						return err
					}

					tracker, dispatcher, writers, err := newTracker(cfg, c.String("schedule"), cfg.Events.Writers)
					if err != nil {
						return err
					}

					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()

					go dispatcher.Run(ctx)
					tracker.Start(ctx)

					redisConsumer := consumer.RedisConsumer{
						QueueName:       QueueName,
						NumberConsumers: numConsumers,
						BatchSize:       batchSize,
						Timeout:         2 * time.Second,
						Consumer:        NewBatchConsumer(tracker),
					}
					if err := redisConsumer.Setup(); err != nil {
						return err
					}

					pollingRate := time.Duration(cfg.Avl.FeedPollingRateSecs) * time.Second
					if cfg.Avl.GTFSRealtimeURL != "" {
						go feeds.NewGTFSRTPoller(cfg.Avl.GTFSRealtimeURL, pollingRate, tracker).Run(ctx)
					}
					if cfg.Avl.SiriVMURL != "" {
						go feeds.NewSiriVMPoller(cfg.Avl.SiriVMURL, pollingRate, tracker).Run(ctx)
					}

					if listen := c.String("api-listen"); listen != "" {
						go func() {
							if err := api.SetupServer(listen, tracker); err != nil {
								log.Error().Err(err).Msg("Query API stopped")
							}
						}()
					}

					waitForSignal()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish

					cancel()
					tracker.Wait()
					<-dispatcher.Done()
					events.CloseWriters(writers)

					return nil
				},
			},
			{
				Name:  "cleaner",
				Usage: "run the queue cleaner for the AVL queue",
				Action: func(c *cli.Context) error {
					if err := redis_client.Connect(); err != nil {
						return err
					}

					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()

					go StartCleaner(ctx)

					waitForSignal()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish

					return nil
				},
			},
			{
				Name:  "replay",
				Usage: "replay an AVL CSV file through the engine",
				Flags: []cli.Flag{
					scheduleFlag,
					&cli.StringFlag{
						Name:     "file",
						Usage:    "AVL CSV file",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "writer",
						Usage: "event writers, defaults to log",
						Value: cli.NewStringSlice("log"),
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.LoadFromEnv()
					if err != nil {
						return err
					}

					file, err := os.Open(c.String("file"))
					if err != nil {
						return err
					}
					defer file.Close()

					reports, err := feeds.ReadCSV(file)
					if err != nil {
						return err
					}

					tracker, dispatcher, writers, err := newTracker(cfg, c.String("schedule"), c.StringSlice("writer"))
					if err != nil {
						return err
					}

					ctx, cancel := context.WithCancel(context.Background())
					go dispatcher.Run(ctx)

					summary := tracker.Replay(reports)

					cancel()
					<-dispatcher.Done()
					events.CloseWriters(writers)

					log.Info().
						Int("reports", summary.Reports).
						Int("rejected", summary.Rejected).
						Int("vehicles", summary.Vehicles).
						Int("predictions", tracker.Store.Count()).
						Msg("Replay finished")

					return nil
				},
			},
			{
				Name:  "testmatch",
				Usage: "match a single position against a block and print the result",
				Flags: []cli.Flag{
					scheduleFlag,
					&cli.Float64Flag{Name: "lat", Required: true},
					&cli.Float64Flag{Name: "lon", Required: true},
					&cli.StringFlag{Name: "block", Required: true},
					&cli.TimestampFlag{
						Name:   "time",
						Layout: time.RFC3339,
						Usage:  "report time, defaults to now",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.LoadFromEnv()
					if err != nil {
						return err
					}

					provider, err := loadSchedule(cfg, c.String("schedule"))
					if err != nil {
						return err
					}
					graph := provider.Graph()

					block := graph.Block(c.String("block"))
					if block == nil {
						return fmt.Errorf("unknown block %q", c.String("block"))
					}

					at := time.Now()
					if timestamp := c.Timestamp("time"); timestamp != nil {
						at = *timestamp
					}

					serviceDate, active := graph.ServiceDateForBlock(block, at,
						cfg.Core.AllowableEarlySecondsForInitialMatching, cfg.Core.AllowableLateSecondsForInitialMatching)
					if !active {
						return fmt.Errorf("block %s is not active at %s", block.ID, at.Format(time.RFC3339))
					}

					report := &ctdf.AvlReport{
						VehicleID: "testmatch",
						Time:      at,
						Location:  ctdf.NewLocation(c.Float64("lat"), c.Float64("lon")),
					}

					match, ok := matcher.New(cfg).Match(nil, report, []matcher.Candidate{matcher.NewCandidate(graph, block, serviceDate)}, matcher.Options{})
					pretty.Println(match, ok)

					return nil
				},
			},
		},
	}
}
