package consumer

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"sync"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/database"
	"github.com/travigo/avlengine/pkg/redis_client"
)

const StatsServerListen = ":3333"

var statsServerOnce sync.Once

// StartStatsServer serves queue stats, health and prometheus metrics. Only the first call per process
// starts a server.
func StartStatsServer(listen string, queueName string) {
	statsServerOnce.Do(func() {
		mux := http.DefaultServeMux

		if redis_client.QueueConnection != nil {
			mux.Handle("/queues/stats", NewStatsHandler(redis_client.QueueConnection))
		}
		mux.Handle("/health", NewHealthHandler())
		mux.Handle("/metrics", promhttp.Handler())

		log.Info().Str("queue", queueName).Msgf("Stats server listening on http://localhost%s", listen)
		if err := http.ListenAndServe(listen, mux); err != nil {
			log.Error().Err(err).Msg("Stats server stopped")
		}
	})
}

type StatsServerHandler struct {
	redisConnection rmq.Connection
}

func NewStatsHandler(connection rmq.Connection) *StatsServerHandler {
	return &StatsServerHandler{redisConnection: connection}
}

func (handler *StatsServerHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	layout := request.FormValue("layout")
	refresh := request.FormValue("refresh")

	queues, err := handler.redisConnection.GetOpenQueues()
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}

	stats, err := handler.redisConnection.CollectStats(queues)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}

	fmt.Fprint(writer, stats.GetHtml(layout, refresh))
}

// HealthHandler checks whichever backends the process connected to
type HealthHandler struct {
	checks map[string]func(ctx context.Context) error
}

func NewHealthHandler() *HealthHandler {
	checks := map[string]func(ctx context.Context) error{}

	if redis_client.Client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redis_client.Client.Ping(ctx).Err()
		}
	}
	if database.IsConnected() {
		checks["mongo"] = database.Ping
	}

	return &HealthHandler{checks: checks}
}

func (handler *HealthHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), 5*time.Second)
	defer cancel()

	for name, check := range handler.checks {
		if err := check(ctx); err != nil {
			writer.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(writer, "%s: %s", name, err)

			return
		}
	}

	writer.WriteHeader(http.StatusOK)
	fmt.Fprint(writer, "OK")
}
