package prediction

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

var ErrNoHistoricalData = errors.New("no historical travel times")

type KalmanResult struct {
	Prediction  float64
	FilterError float64
}

// KalmanPredict smooths the last vehicle's travel time against the travel times of the same trip on
// previous days. lastError is the filter error left by the previous prediction on this stop path.
func KalmanPredict(last float64, historical []float64, lastError float64) (KalmanResult, error) {
	if len(historical) == 0 {
		return KalmanResult{}, ErrNoHistoricalData
	}

	average, variance := stat.PopMeanVariance(historical, nil)

	gain := 0.5
	if denominator := lastError + 2*variance; denominator > 0 {
		gain = (lastError + variance) / denominator
	}

	return KalmanResult{
		Prediction:  (1-gain)*last + gain*average,
		FilterError: variance * gain,
	}, nil
}
