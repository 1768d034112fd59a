package features

import (
	"math"

	"DualSignal/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// MinHistory is the number of earlier points every feature row needs.
const MinHistory = 10

// Returns computes simple bar returns (close-open)/open.
func Returns(bars []*models.RawBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Return()
	}
	return out
}

// Volatility is the population standard deviation of the last window returns plus eps.
// Fewer returns are used when the history is shorter than window.
func Volatility(returns []float64, window int, eps float64) float64 {
	if len(returns) == 0 {
		return eps
	}
	if window > 0 && len(returns) > window {
		returns = returns[len(returns)-window:]
	}
	_, std := stat.PopMeanStdDev(returns, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return std + eps
}

// Dataset is a design matrix with its targets, one row per observation from MinHistory on.
type Dataset struct {
	X [][]float64
	Y []float64
	// Index of each row in the source series.
	Index []int
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.Y) }

// Last returns the most recent feature vector, or nil for an empty dataset.
func (d Dataset) Last() []float64 {
	if len(d.X) == 0 {
		return nil
	}
	return d.X[len(d.X)-1]
}

// Build turns a time-ordered series into feature rows. Row i uses only points before i
// and targets the signal at i.
func Build(series []models.ComputeObservation) Dataset {
	var ds Dataset
	n := len(series)
	if n <= MinHistory {
		return ds
	}
	returns := make([]float64, n)
	vols := make([]float64, n)
	for i, o := range series {
		returns[i] = o.Return
		vols[i] = o.Volatility
	}
	for i := MinHistory; i < n; i++ {
		ds.X = append(ds.X, Row(series, returns, vols, i))
		ds.Y = append(ds.Y, series[i].Signal)
		ds.Index = append(ds.Index, i)
	}
	return ds
}

// Row builds the feature vector for point i in models.FeatureNames order.
func Row(series []models.ComputeObservation, returns, vols []float64, i int) []float64 {
	prev := series[i-1]
	volWindow := vols[i-MinHistory : i]
	meanVol := stat.Mean(volWindow, nil)
	normVol := 0.0
	if meanVol > 0 {
		normVol = vols[i-1] / meanVol
	}
	r5 := returns[i-5 : i]
	r10 := returns[i-10 : i]
	mean5, std5 := stat.PopMeanStdDev(r5, nil)
	mean10, std10 := stat.PopMeanStdDev(r10, nil)
	return []float64{
		returns[i-1],
		returns[i-2],
		prev.RangeRatio,
		normVol,
		mean5,
		mean10,
		finite(std5),
		finite(std10),
	}
}

// Named maps a feature vector to models.FeatureNames.
func Named(v []float64) map[string]float64 {
	out := make(map[string]float64, len(v))
	for i, x := range v {
		if i < len(models.FeatureNames) {
			out[models.FeatureNames[i]] = x
		}
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
