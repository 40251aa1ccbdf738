package vehicletracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/events"
	"github.com/travigo/avlengine/pkg/realtime/blockassigner"
	"github.com/travigo/avlengine/pkg/realtime/matcher"
	"github.com/travigo/avlengine/pkg/realtime/prediction"
	"github.com/travigo/avlengine/pkg/realtime/timeout"
	"github.com/travigo/avlengine/pkg/realtime/vehiclestate"
	"github.com/travigo/avlengine/pkg/schedule"
	"github.com/travigo/avlengine/pkg/stats"
)

var (
	ErrQueueFull      = errors.New("worker queue is full")
	ErrUnknownVehicle = errors.New("vehicle is not being tracked")
)

// Tracker is the ingestion boundary. Reports are validated, then routed by vehicle id to a fixed
// worker so all processing for one vehicle happens in order.
type Tracker struct {
	Config   *config.Config
	Schedule *schedule.Provider
	Sink     events.Sink
	Metrics  *stats.Metrics

	Registry    *vehiclestate.Registry
	Manager     *vehiclestate.Manager
	Matcher     *matcher.Matcher
	Assigner    *blockassigner.Assigner
	Sweeper     *timeout.Sweeper
	History     *prediction.History
	Engine      *prediction.Engine
	Store       *prediction.Store
	SchedBased  *SchedBasedGenerator

	Now func() time.Time

	validator *Validator
	filter    *AssignmentFilter

	queues  []chan job
	workers sync.WaitGroup
}

type job struct {
	report      ctdf.AvlReport
	resubmitted bool
}

func New(cfg *config.Config, provider *schedule.Provider, sink events.Sink, errorCache prediction.ErrorCache, metrics *stats.Metrics) (*Tracker, error) {
	filter, err := NewAssignmentFilter(cfg.Avl.UnpredictableAssignmentsExpr)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		Config:    cfg,
		Schedule:  provider,
		Sink:      sink,
		Metrics:   metrics,
		Registry:  vehiclestate.NewRegistry(cfg.Core),
		Matcher:   matcher.New(cfg),
		History:   prediction.NewHistory(cfg.Prediction),
		Store:     prediction.NewStore(),
		Now:       time.Now,
		validator: NewValidator(cfg.Avl),
		filter:    filter,
	}
	now := func() time.Time { return t.Now() }

	t.Manager = vehiclestate.NewManager(cfg, t.Registry, provider, sink, metrics)
	t.Manager.OnUnpredictable = t.forget

	t.Assigner = blockassigner.New(cfg, t.Matcher, provider, t.Registry, metrics)

	t.Sweeper = timeout.NewSweeper(cfg, t.Manager, metrics)
	t.Sweeper.Now = now
	t.Sweeper.Resubmit = t.Resubmit

	t.Engine = prediction.NewEngine(cfg, provider, t.History, errorCache, t.Manager, metrics)
	t.Engine.Now = now

	t.SchedBased = NewSchedBasedGenerator(t)

	t.queues = make([]chan job, cfg.Avl.NumThreads)
	for i := range t.queues {
		t.queues[i] = make(chan job, cfg.Avl.QueueSize)
	}

	return t, nil
}

// Start runs the workers and the periodic tasks until the context is cancelled
func (t *Tracker) Start(ctx context.Context) {
	log.Info().Int("workers", len(t.queues)).Msg("Starting vehicle tracker")

	for i, queue := range t.queues {
		t.workers.Add(1)
		go t.runWorker(ctx, i, queue)
	}

	go t.Sweeper.Run(ctx)
	go t.runAutoAssigner(ctx)

	if t.Config.Timeout.SchedBasedEnabled {
		go t.SchedBased.Run(ctx)
	}
}

// Wait blocks until every worker has stopped
func (t *Tracker) Wait() {
	t.workers.Wait()
}

func (t *Tracker) runWorker(ctx context.Context, id int, queue chan job) {
	defer t.workers.Done()

	log.Debug().Int("worker", id).Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-queue:
			t.process(j)
		}
	}
}

func (t *Tracker) workerFor(vehicleID string) int {
	return int(xxhash.Sum64String(vehicleID) % uint64(len(t.queues)))
}

func (t *Tracker) enqueue(j job) error {
	select {
	case t.queues[t.workerFor(j.report.VehicleID)] <- j:
		return nil
	default:
		t.Metrics.AvlReport("queue_full")
		return ErrQueueFull
	}
}

func (t *Tracker) prepare(report *ctdf.AvlReport) error {
	now := t.Now()
	if err := t.validator.Validate(report, now); err != nil {
		t.Metrics.AvlReport("invalid")
		log.Warn().Err(err).Str("vehicle", report.VehicleID).Msg("Rejected AVL report")
		return err
	}
	report.TimeProcessed = now
	return nil
}

// Submit validates the report and queues it for its vehicle's worker. It never blocks, a full worker
// queue returns ErrQueueFull.
func (t *Tracker) Submit(report ctdf.AvlReport) error {
	if err := t.prepare(&report); err != nil {
		return err
	}
	return t.enqueue(job{report: report})
}

// Process validates and processes the report on the calling goroutine
func (t *Tracker) Process(report ctdf.AvlReport) error {
	if err := t.prepare(&report); err != nil {
		return err
	}
	t.process(job{report: report})
	return nil
}

// Resubmit queues a report that was already processed so the vehicle is processed again, bypassing
// the duplicate filter
func (t *Tracker) Resubmit(report ctdf.AvlReport) {
	if err := t.enqueue(job{report: report, resubmitted: true}); err != nil {
		log.Error().Err(err).Str("vehicle", report.VehicleID).Msg("Failed to resubmit AVL report")
	}
}

// forget drops everything derived from a vehicle's assignment once it stops being predictable
func (t *Tracker) forget(vehicleID string) {
	t.Store.Clear(vehicleID)
	t.History.Forget(vehicleID)
}

// CurrentState is a detached copy of the vehicle's state
func (t *Tracker) CurrentState(vehicleID string) (vehiclestate.Snapshot, error) {
	state, ok := t.Registry.Get(vehicleID)
	if !ok {
		return vehiclestate.Snapshot{}, ErrUnknownVehicle
	}
	return state.Snapshot()
}

// Predictions returns the current predictions for the stop ordered by time
func (t *Tracker) Predictions(stopID string) []ctdf.Prediction {
	return t.Store.ForStop(stopID)
}

func (t *Tracker) VehiclePredictions(vehicleID string) []ctdf.Prediction {
	return t.Store.ForVehicle(vehicleID)
}

// ActiveVehicles lists the tracked vehicle ids
func (t *Tracker) ActiveVehicles() []string {
	return t.Registry.VehicleIDs()
}
