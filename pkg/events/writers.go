package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/database"
	"github.com/travigo/avlengine/pkg/elastic_client"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const QueueName = "events-queue"

type LogWriter struct{}

func (LogWriter) Name() string {
	return "log"
}

func (LogWriter) Write(_ context.Context, records []Record) error {
	for _, record := range records {
		switch payload := record.Payload.(type) {
		case ctdf.VehicleEvent:
			log.Info().
				Str("vehicle", payload.VehicleID).
				Str("type", string(payload.Type)).
				Bool("predictable", payload.Predictable).
				Str("block", payload.BlockID).
				Str("trip", payload.TripID).
				Msg(payload.Description)
		case ctdf.ArrivalDeparture:
			log.Debug().
				Str("vehicle", payload.VehicleID).
				Str("kind", string(payload.Kind)).
				Str("stop", payload.StopID).
				Time("time", payload.Time).
				Msg("Arrival/departure")
		default:
			log.Debug().Str("kind", string(record.Kind)).Str("vehicle", record.VehicleID).Msg("Record")
		}
	}
	return nil
}

var recordCollections = map[RecordKind]string{
	RecordKindEvent:            database.VehicleEventsCollection,
	RecordKindMatch:            database.MatchesCollection,
	RecordKindPrediction:       database.PredictionsCollection,
	RecordKindArrivalDeparture: database.ArrivalsDeparturesCollection,
}

// MongoWriter stores each kind of record in its own collection
type MongoWriter struct {
	collection func(name string) *mongo.Collection
}

func NewMongoWriter() *MongoWriter {
	return &MongoWriter{collection: database.GetCollection}
}

func (w *MongoWriter) Name() string {
	return "mongo"
}

func (w *MongoWriter) Write(ctx context.Context, records []Record) error {
	var errs []error

	for kind, documents := range groupPayloads(records) {
		collection := w.collection(recordCollections[kind])

		_, err := collection.InsertMany(ctx, documents, options.InsertMany().SetOrdered(false))
		if err != nil {
			errs = append(errs, fmt.Errorf("inserting %s records: %w", kind, err))
		}
	}

	return errors.Join(errs...)
}

func groupPayloads(records []Record) map[RecordKind][]interface{} {
	grouped := map[RecordKind][]interface{}{}
	for _, record := range records {
		grouped[record.Kind] = append(grouped[record.Kind], record.Payload)
	}
	return grouped
}

// ElasticWriter bulk indexes records into weekly indexes per kind
type ElasticWriter struct{}

func (ElasticWriter) Name() string {
	return "elastic"
}

func (ElasticWriter) Write(_ context.Context, records []Record) error {
	for _, record := range records {
		document, err := json.Marshal(record)
		if err != nil {
			return err
		}

		elastic_client.IndexRequest(IndexName(record), bytes.NewReader(document))
	}
	return nil
}

func (ElasticWriter) Close() {
	elastic_client.WaitUntilQueueEmpty()
}

func IndexName(record Record) string {
	yearNumber, weekNumber := record.Time.ISOWeek()
	return fmt.Sprintf("avlengine-%s-%d-%d", record.Kind, yearNumber, weekNumber)
}

// QueueWriter relays records onto the redis events queue for the events runner
type QueueWriter struct {
	queue rmq.Queue
}

func NewQueueWriter(queue rmq.Queue) *QueueWriter {
	return &QueueWriter{queue: queue}
}

func (w *QueueWriter) Name() string {
	return "queue"
}

func (w *QueueWriter) Write(_ context.Context, records []Record) error {
	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}

		if err := w.queue.PublishBytes(payload); err != nil {
			return err
		}
	}
	return nil
}
