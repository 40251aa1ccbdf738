package vehicletracker

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/ctdf"
)

// ReplaySummary counts what happened to the reports of a replay
type ReplaySummary struct {
	Reports  int
	Rejected int
	Vehicles int
}

type replayTask struct {
	every time.Duration
	next  time.Time
	run   func(now time.Time)
}

func (r *replayTask) advance(now time.Time) {
	if r.every <= 0 {
		return
	}
	if r.next.IsZero() {
		r.next = now.Add(r.every)
		return
	}
	for !now.Before(r.next) {
		r.run(r.next)
		r.next = r.next.Add(r.every)
	}
}

// Replay processes time ordered reports on the calling goroutine with the clock following the report
// times. The periodic tasks run whenever the replay clock passes their interval. Must not be used
// while the workers are running.
func (t *Tracker) Replay(reports []ctdf.AvlReport) ReplaySummary {
	var clock time.Time
	t.Now = func() time.Time { return clock }

	resubmit := t.Sweeper.Resubmit
	t.Sweeper.Resubmit = func(report ctdf.AvlReport) {
		t.process(job{report: report, resubmitted: true})
	}
	defer func() { t.Sweeper.Resubmit = resubmit }()

	tasks := []*replayTask{
		{every: seconds(t.Config.Timeout.PollingRateSecs), run: t.Sweeper.HandlePossibleTimeouts},
	}
	if t.Config.AutoAssigner.Enabled {
		tasks = append(tasks, &replayTask{every: seconds(t.Config.AutoAssigner.MinTimeBetweenAutoAssigningSecs), run: t.AutoAssignUnassigned})
	}
	if t.Config.Timeout.SchedBasedEnabled {
		tasks = append(tasks, &replayTask{every: seconds(t.Config.Timeout.SchedBasedPollingSecs), run: func(now time.Time) {
			t.SchedBased.Generate(now)
		}})
	}

	summary := ReplaySummary{}
	vehicles := map[string]bool{}

	for _, report := range reports {
		if report.Time.After(clock) {
			clock = report.Time
		}
		for _, task := range tasks {
			task.advance(clock)
		}

		summary.Reports++
		vehicles[report.VehicleID] = true

		if err := t.Process(report); err != nil {
			var validationError *ValidationError
			if !errors.As(err, &validationError) {
				log.Error().Err(err).Str("vehicle", report.VehicleID).Msg("Failed to replay AVL report")
			}
			summary.Rejected++
		}
	}
	summary.Vehicles = len(vehicles)

	return summary
}

func seconds(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
