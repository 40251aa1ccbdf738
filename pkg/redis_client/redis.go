package redis_client

import (
	"context"
	"strconv"

	"github.com/adjust/rmq/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/util"
)

var Client *redis.Client
var QueueConnection rmq.Connection

const defaultConnectionAddress = "localhost:6379"
const defaultDatabase = 0

func Connect() error {
	env := util.GetEnvironmentVariables()

	address := util.EnvOrDefault(env, "REDIS_ADDRESS", defaultConnectionAddress)
	password := util.EnvOrDefault(env, "REDIS_PASSWORD", "")
	database := defaultDatabase

	if value := util.EnvOrDefault(env, "REDIS_DATABASE", ""); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		database = n
	}

	Client = redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       database,
	})

	if err := Client.Ping(context.Background()).Err(); err != nil {
		return err
	}

	errChan := make(chan error, 10)
	go logQueueErrors(errChan)

	var err error
	QueueConnection, err = rmq.OpenConnectionWithRedisClient("avlengine", Client, errChan)
	if err != nil {
		return err
	}

	log.Info().Str("address", address).Int("database", database).Msg("Redis client connected")

	return nil
}

func logQueueErrors(errChan <-chan error) {
	for err := range errChan {
		switch err := err.(type) {
		case *rmq.HeartbeatError:
			if err.Count == rmq.HeartbeatErrorLimit {
				log.Error().Err(err).Msg("Queue heartbeat error limit reached")
			} else {
				log.Warn().Err(err).Msg("Queue heartbeat error")
			}
		case *rmq.ConsumeError:
			log.Error().Err(err).Msg("Queue consume error")
		case *rmq.DeliveryError:
			log.Error().Err(err).Msg("Queue delivery error")
		default:
			log.Error().Err(err).Msg("Queue error")
		}
	}
}
