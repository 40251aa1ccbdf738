package schedule

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Provider hands out the current graph snapshot. A new revision is published with Swap, readers
// holding an older snapshot keep a consistent view until they ask again.
type Provider struct {
	current atomic.Pointer[Graph]
}

func NewProvider(graph *Graph) *Provider {
	provider := &Provider{}
	if graph != nil {
		provider.current.Store(graph)
	}
	return provider
}

func (p *Provider) Graph() *Graph {
	return p.current.Load()
}

func (p *Provider) Swap(graph *Graph) {
	old := p.current.Swap(graph)

	event := log.Info().Int("revision", graph.Revision)
	if old != nil {
		event = event.Int("previous", old.Revision)
	}
	event.Msg("Schedule graph revision published")
}
