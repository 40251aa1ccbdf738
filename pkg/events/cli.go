package events

import (
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/consumer"
	"github.com/travigo/avlengine/pkg/redis_client"
	"github.com/travigo/avlengine/pkg/stats"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Persists the vehicle events relayed through the events queue",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run events server",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "writer",
						Usage: "writers to persist with, defaults to the configured writers",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.LoadFromEnv()
					if err != nil {
						return err
					}

					if err := redis_client.Connect(); err != nil {
						return err
					}

					names := c.StringSlice("writer")
					if len(names) == 0 {
						names = cfg.Events.Writers
					}
					// relaying back onto the queue we consume would loop forever
					names = slices.DeleteFunc(slices.Clone(names), func(name string) bool { return name == "queue" })

					writers, err := NewWriters(names)
					if err != nil {
						return err
					}

					metrics, err := stats.NewMetrics(nil)
					if err != nil {
						return err
					}

					redisConsumer := consumer.RedisConsumer{
						QueueName:       QueueName,
						NumberConsumers: 5,
						BatchSize:       cfg.Events.BatchSize,
						Timeout:         2 * time.Second,
						Consumer:        NewBatchConsumer(NewMultiWriter(metrics, writers...)),
					}
					if err := redisConsumer.Setup(); err != nil {
						return err
					}

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish

					CloseWriters(writers)

					return nil
				},
			},
		},
	}
}

// CloseWriters flushes and closes the writers holding connections
func CloseWriters(writers []Writer) {
	for _, writer := range writers {
		if closer, ok := writer.(interface{ Close() }); ok {
			closer.Close()
		}
	}
	log.Info().Msg("Event writers closed")
}
