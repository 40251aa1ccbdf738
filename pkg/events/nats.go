package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSWriter publishes every record on avlengine.<kind>.<vehicle>
type NATSWriter struct {
	conn    publisher
	closeFn func()
}

func NewNATSWriter(url string) (*NATSWriter, error) {
	nc, err := nats.Connect(url,
		nats.Name("avlengine"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			log.Warn().Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS closed")
		}),
	)
	if err != nil {
		return nil, err
	}

	return &NATSWriter{
		conn: nc,
		closeFn: func() {
			if err := nc.Drain(); err != nil {
				log.Error().Err(err).Msg("Failed to drain NATS connection")
			}
		},
	}, nil
}

func (w *NATSWriter) Name() string {
	return "nats"
}

func (w *NATSWriter) Write(_ context.Context, records []Record) error {
	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}

		if err := w.conn.Publish(Subject(record), payload); err != nil {
			return err
		}
	}
	return nil
}

func (w *NATSWriter) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func Subject(record Record) string {
	return fmt.Sprintf("avlengine.%s.%s", record.Kind, subjectToken(record.VehicleID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// tokens cannot contain whitespace, wildcards or separators
	replacer := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = replacer.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
