package events

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/travigo/avlengine/pkg/database"
	"github.com/travigo/avlengine/pkg/elastic_client"
	"github.com/travigo/avlengine/pkg/redis_client"
	"github.com/travigo/avlengine/pkg/util"
)

// NewWriters connects whatever backends the named writers need
func NewWriters(names []string) ([]Writer, error) {
	var writers []Writer

	for _, name := range names {
		switch name {
		case "log":
			writers = append(writers, LogWriter{})
		case "mongo":
			if !database.IsConnected() {
				if err := database.Connect(); err != nil {
					return nil, fmt.Errorf("mongo writer: %w", err)
				}
			}
			writers = append(writers, NewMongoWriter())
		case "elastic":
			if !elastic_client.IsConnected() {
				if err := elastic_client.Connect(true); err != nil {
					return nil, fmt.Errorf("elastic writer: %w", err)
				}
			}
			writers = append(writers, ElasticWriter{})
		case "queue":
			if redis_client.QueueConnection == nil {
				if err := redis_client.Connect(); err != nil {
					return nil, fmt.Errorf("queue writer: %w", err)
				}
			}
			queue, err := redis_client.QueueConnection.OpenQueue(QueueName)
			if err != nil {
				return nil, fmt.Errorf("queue writer: %w", err)
			}
			writers = append(writers, NewQueueWriter(queue))
		case "nats":
			url := util.EnvOrDefault(util.GetEnvironmentVariables(), "NATS_URL", nats.DefaultURL)
			writer, err := NewNATSWriter(url)
			if err != nil {
				return nil, fmt.Errorf("nats writer: %w", err)
			}
			writers = append(writers, writer)
		default:
			return nil, fmt.Errorf("unknown event writer %q", name)
		}
	}

	return writers, nil
}
