package prediction

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

const initialCovariance = 1e6

// DwellModel is a recursive least squares fit of dwell time (msec) against headway (minutes).
// Lambda is the forgetting factor, lower values forget older samples faster.
type DwellModel struct {
	lambda     float64
	weights    *mat.VecDense
	covariance *mat.Dense
	samples    int
}

func NewDwellModel(lambda float64) *DwellModel {
	covariance := mat.NewDense(2, 2, nil)
	covariance.Set(0, 0, initialCovariance)
	covariance.Set(1, 1, initialCovariance)

	return &DwellModel{
		lambda:     lambda,
		weights:    mat.NewVecDense(2, nil),
		covariance: covariance,
	}
}

func dwellFeatures(headway time.Duration) *mat.VecDense {
	return mat.NewVecDense(2, []float64{1, headway.Minutes()})
}

func (m *DwellModel) Add(headway time.Duration, dwell time.Duration) {
	x := dwellFeatures(headway)

	var px mat.VecDense
	px.MulVec(m.covariance, x)

	var gain mat.VecDense
	gain.ScaleVec(1/(m.lambda+mat.Dot(x, &px)), &px)

	residual := float64(dwell.Milliseconds()) - mat.Dot(m.weights, x)
	m.weights.AddScaledVec(m.weights, residual, &gain)

	// covariance is symmetric so x'P is the transpose of Px
	var correction mat.Dense
	correction.Outer(1, &gain, &px)
	m.covariance.Sub(m.covariance, &correction)
	m.covariance.Scale(1/m.lambda, m.covariance)

	m.samples++
}

func (m *DwellModel) Samples() int {
	return m.samples
}

// Predict never returns a negative dwell time
func (m *DwellModel) Predict(headway time.Duration) time.Duration {
	msec := mat.Dot(m.weights, dwellFeatures(headway))
	if msec < 0 {
		return 0
	}
	return time.Duration(msec) * time.Millisecond
}
