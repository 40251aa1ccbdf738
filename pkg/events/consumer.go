package events

import (
	"context"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
)

// BatchConsumer drains the relayed events queue into the persisting writers
type BatchConsumer struct {
	writer Writer
}

func NewBatchConsumer(writer Writer) *BatchConsumer {
	return &BatchConsumer{writer: writer}
}

func (consumer *BatchConsumer) Consume(batch rmq.Deliveries) {
	records := make([]Record, 0, len(batch))
	var accepted rmq.Deliveries

	for _, delivery := range batch {
		record, err := DecodeRecord([]byte(delivery.Payload()))
		if err != nil {
			log.Error().Err(err).Msg("Failed to decode event record")
			if err := delivery.Reject(); err != nil {
				log.Error().Err(err).Msg("Failed to reject event record")
			}
			continue
		}

		records = append(records, record)
		accepted = append(accepted, delivery)
	}

	if len(records) > 0 {
		if err := consumer.writer.Write(context.Background(), records); err != nil {
			log.Error().Err(err).Int("records", len(records)).Msg("Failed to write relayed events")
		}
	}

	if ackErrors := accepted.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack event record")
		}
	}
}
