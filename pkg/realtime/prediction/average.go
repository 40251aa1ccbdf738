package prediction

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// HistoricalAverage is the mean of values once those outside [fractionLimit*median,
// median/fractionLimit] are discarded. The second return is the number of values the average is
// based on.
func HistoricalAverage(values []float64, fractionLimit float64) (float64, int) {
	if len(values) == 0 {
		return 0, 0
	}

	if fractionLimit <= 0 || fractionLimit >= 1 {
		return stat.Mean(values, nil), len(values)
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	lower := median * fractionLimit
	upper := median / fractionLimit

	kept := make([]float64, 0, len(sorted))
	for _, value := range sorted {
		if value >= lower && value <= upper {
			kept = append(kept, value)
		}
	}
	if len(kept) == 0 {
		return 0, 0
	}

	return stat.Mean(kept, nil), len(kept)
}
