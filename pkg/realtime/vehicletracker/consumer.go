package vehicletracker

import (
	"encoding/json"
	"errors"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/ctdf"
)

const QueueName = "avl-queue"

const numConsumers = 5
const batchSize = 200

// BatchConsumer feeds AVL reports from the queue into the tracker
type BatchConsumer struct {
	tracker *Tracker
}

func NewBatchConsumer(tracker *Tracker) *BatchConsumer {
	return &BatchConsumer{tracker: tracker}
}

func (consumer *BatchConsumer) Consume(batch rmq.Deliveries) {
	var accepted rmq.Deliveries

	for _, delivery := range batch {
		var report ctdf.AvlReport
		if err := json.Unmarshal([]byte(delivery.Payload()), &report); err != nil {
			log.Error().Err(err).Msg("Failed to decode AVL report")
			if err := delivery.Reject(); err != nil {
				log.Error().Err(err).Msg("Failed to reject AVL report")
			}
			continue
		}

		err := consumer.tracker.Submit(report)

		var validationError *ValidationError
		if errors.As(err, &validationError) {
			if err := delivery.Reject(); err != nil {
				log.Error().Err(err).Msg("Failed to reject AVL report")
			}
			continue
		}
		if errors.Is(err, ErrQueueFull) {
			if err := delivery.Push(); err != nil {
				log.Error().Err(err).Msg("Failed to push back AVL report")
			}
			continue
		}

		accepted = append(accepted, delivery)
	}

	if ackErrors := accepted.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack AVL report")
		}
	}
}
