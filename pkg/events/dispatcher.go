package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/stats"
)

const writeTimeout = 30 * time.Second

// Dispatcher is the asynchronous Sink. Records are queued without blocking and handed to the
// writers in batches, a full queue drops the record.
type Dispatcher struct {
	records chan Record
	writer  *MultiWriter
	metrics *stats.Metrics

	batchSize  int
	flushEvery time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(cfg config.EventsConfig, metrics *stats.Metrics, writers ...Writer) *Dispatcher {
	return &Dispatcher{
		records:    make(chan Record, cfg.QueueSize),
		writer:     NewMultiWriter(metrics, writers...),
		metrics:    metrics,
		batchSize:  cfg.BatchSize,
		flushEvery: time.Duration(cfg.FlushEverySecs) * time.Second,
		done:       make(chan struct{}),
	}
}

func (d *Dispatcher) RecordEvent(event ctdf.VehicleEvent) {
	d.enqueue(eventRecord(event))
}

func (d *Dispatcher) RecordMatch(match ctdf.Match) {
	d.enqueue(matchRecord(match))
}

func (d *Dispatcher) RecordPrediction(prediction ctdf.Prediction) {
	d.enqueue(predictionRecord(prediction))
}

func (d *Dispatcher) RecordArrivalDeparture(arrivalDeparture ctdf.ArrivalDeparture) {
	d.enqueue(arrivalDepartureRecord(arrivalDeparture))
}

func (d *Dispatcher) enqueue(record Record) {
	select {
	case d.records <- record:
	default:
		d.metrics.SinkDropped("dispatcher")
		log.Warn().Str("kind", string(record.Kind)).Str("vehicle", record.VehicleID).Msg("Event sink queue full, dropping record")
	}
}

// Run flushes batches until the context is cancelled, whatever is still queued is written before
// returning
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.closeOnce.Do(func() { close(d.done) })

	ticker := time.NewTicker(d.flushEvery)
	defer ticker.Stop()

	batch := make([]Record, 0, d.batchSize)

	for {
		select {
		case record := <-d.records:
			batch = append(batch, record)
			if len(batch) >= d.batchSize {
				d.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				d.flush(batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			for {
				select {
				case record := <-d.records:
					batch = append(batch, record)
					if len(batch) >= d.batchSize {
						d.flush(batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						d.flush(batch)
					}
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) flush(batch []Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	// writers may hold on to the slice, it is reused afterwards
	records := append([]Record(nil), batch...)

	if err := d.writer.Write(ctx, records); err != nil {
		log.Error().Err(err).Int("records", len(records)).Msg("Failed to write event sink batch")
	}
}

// Writer persists or forwards a batch of records
type Writer interface {
	Name() string
	Write(ctx context.Context, records []Record) error
}

// MultiWriter fans a batch out to every writer, a failing writer does not stop the others
type MultiWriter struct {
	writers []Writer
	metrics *stats.Metrics
}

func NewMultiWriter(metrics *stats.Metrics, writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers, metrics: metrics}
}

func (m *MultiWriter) Name() string {
	return "multi"
}

func (m *MultiWriter) Write(ctx context.Context, records []Record) error {
	var errs []error

	for _, writer := range m.writers {
		if err := writer.Write(ctx, records); err != nil {
			m.metrics.SinkDroppedRecords(writer.Name(), len(records))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
