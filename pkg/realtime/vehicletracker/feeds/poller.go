package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/ctdf"
)

// Submitter accepts reports for processing
type Submitter interface {
	Submit(report ctdf.AvlReport) error
}

// Decoder turns a fetched feed body into AVL reports
type Decoder func(body []byte) ([]ctdf.AvlReport, error)

// Poller fetches an AVL feed on an interval and submits the decoded reports
type Poller struct {
	Name     string
	URL      string
	Interval time.Duration
	Decode   Decoder
	Target   Submitter

	Client *http.Client
}

func NewGTFSRTPoller(url string, interval time.Duration, target Submitter) *Poller {
	return &Poller{Name: gtfsRealtimeSource, URL: url, Interval: interval, Decode: DecodeVehiclePositions, Target: target}
}

func NewSiriVMPoller(url string, interval time.Duration, target Submitter) *Poller {
	return &Poller{Name: siriVMSource, URL: url, Interval: interval, Decode: DecodeSiriVM, Target: target}
}

func (p *Poller) Run(ctx context.Context) {
	if p.Client == nil {
		p.Client = &http.Client{Timeout: 30 * time.Second}
	}

	log.Info().Str("feed", p.Name).Str("url", p.URL).Dur("interval", p.Interval).Msg("Starting feed poller")

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		submitted, err := p.Poll(ctx)
		if err != nil {
			log.Error().Err(err).Str("feed", p.Name).Str("url", p.URL).Msg("Failed to poll feed")
		} else {
			log.Debug().Str("feed", p.Name).Int("reports", submitted).Msg("Polled feed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches the feed once and returns how many reports were accepted
func (p *Poller) Poll(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return 0, err
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	reports, err := p.Decode(body)
	if err != nil {
		return 0, err
	}

	return SubmitAll(p.Target, reports), nil
}

// SubmitAll submits every report and returns how many were accepted
func SubmitAll(target Submitter, reports []ctdf.AvlReport) int {
	accepted := 0
	for _, report := range reports {
		if err := target.Submit(report); err != nil {
			continue
		}
		accepted++
	}
	return accepted
}
