package prediction

import (
	"math"
	"time"

	"github.com/travigo/avlengine/pkg/config"
)

// BiasAdjuster corrects a prediction horizon for systematic error that grows with the horizon
type BiasAdjuster interface {
	Adjust(horizon time.Duration) time.Duration
}

func NewBiasAdjuster(cfg config.BiasConfig) BiasAdjuster {
	switch cfg.Method {
	case "exponential":
		return ExponentialBias{A: cfg.ExponentialA, B: cfg.ExponentialB, C: cfg.ExponentialC, UpDown: cfg.ExponentialUpDown}
	case "linear":
		return LinearBias{Rate: cfg.LinearRate, UpDown: cfg.LinearUpDown}
	default:
		return NoBias{}
	}
}

type NoBias struct{}

func (NoBias) Adjust(horizon time.Duration) time.Duration {
	return horizon
}

// ExponentialBias adjusts by a·b^h + c percent, h being the horizon in minutes
type ExponentialBias struct {
	A      float64
	B      float64
	C      float64
	UpDown int
}

func (b ExponentialBias) Percentage(horizon time.Duration) float64 {
	return b.A*math.Pow(b.B, horizon.Minutes()) + b.C
}

func (b ExponentialBias) Adjust(horizon time.Duration) time.Duration {
	return applyPercentage(horizon, b.Percentage(horizon), b.UpDown)
}

// LinearBias adjusts by rate percent for every 100 msec of horizon
type LinearBias struct {
	Rate   float64
	UpDown int
}

func (b LinearBias) Percentage(horizon time.Duration) float64 {
	return b.Rate * float64(horizon.Milliseconds()) / 100
}

func (b LinearBias) Adjust(horizon time.Duration) time.Duration {
	return applyPercentage(horizon, b.Percentage(horizon), b.UpDown)
}

func applyPercentage(horizon time.Duration, percentage float64, upDown int) time.Duration {
	msec := float64(horizon.Milliseconds())
	adjusted := msec + float64(upDown)*(percentage/100)*msec
	if adjusted < 0 {
		adjusted = 0
	}
	return time.Duration(adjusted) * time.Millisecond
}
