package vehicletracker

import (
	"context"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/redis_client"
)

// StartCleaner returns unacked deliveries of dead consumers to the queue every five minutes
func StartCleaner(ctx context.Context) {
	cleaner := rmq.NewCleaner(redis_client.QueueConnection)

	log.Info().Str("queue", QueueName).Msg("Starting queue cleaner process")

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			returned, err := cleaner.Clean()
			if err != nil {
				log.Error().Err(err).Msg("Failed to clean")
				continue
			}

			if returned != 0 {
				log.Info().Int64("returned", returned).Msg("Cleaned unacked deliveries")
			}
		}
	}
}
