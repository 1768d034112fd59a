package learning

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNoData is returned when there are no rows to fit.
var ErrNoData = errors.New("learning: no training rows")

// Model is a fitted linear model y = Intercept + Weights·x.
type Model struct {
	Intercept float64
	Weights   []float64
}

// Score holds in-sample fit quality.
type Score struct {
	R2  float64
	MAE float64
}

// FitRidge solves (AᵀA + λD)β = Aᵀy where A has a leading column of ones and D leaves the intercept unpenalised.
func FitRidge(x [][]float64, y []float64, lambda float64) (*Model, error) {
	n := len(y)
	if n == 0 || len(x) != n {
		return nil, ErrNoData
	}
	p := len(x[0])
	a := mat.NewDense(n, p+1, nil)
	for i, row := range x {
		if len(row) != p {
			return nil, fmt.Errorf("learning: row %d has %d features, want %d", i, len(row), p)
		}
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	yv := mat.NewVecDense(n, append([]float64(nil), y...))

	var ata mat.Dense
	ata.Mul(a.T(), a)
	for j := 1; j <= p; j++ {
		ata.Set(j, j, ata.At(j, j)+lambda)
	}
	var aty mat.VecDense
	aty.MulVec(a.T(), yv)

	beta, err := solve(&ata, &aty, p+1)
	if err != nil {
		return nil, err
	}
	m := &Model{Intercept: beta.AtVec(0), Weights: make([]float64, p)}
	for j := 0; j < p; j++ {
		m.Weights[j] = beta.AtVec(j + 1)
	}
	return m, nil
}

// solve prefers Cholesky and falls back to a general solve when the system is not positive definite.
func solve(ata *mat.Dense, aty *mat.VecDense, k int) (*mat.VecDense, error) {
	sym := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			sym.SetSym(i, j, ata.At(i, j))
		}
	}
	var chol mat.Cholesky
	beta := mat.NewVecDense(k, nil)
	if chol.Factorize(sym) {
		if err := chol.SolveVecTo(beta, aty); err == nil {
			return beta, nil
		}
	}
	if err := beta.SolveVec(ata, aty); err != nil {
		return nil, fmt.Errorf("learning: solve normal equations: %w", err)
	}
	return beta, nil
}

// Predict evaluates the model on one feature vector.
func (m *Model) Predict(x []float64) float64 {
	out := m.Intercept
	for j, w := range m.Weights {
		if j < len(x) {
			out += w * x[j]
		}
	}
	return out
}

// Evaluate returns R² and MAE of the model over the rows.
func (m *Model) Evaluate(x [][]float64, y []float64) Score {
	est := make([]float64, len(y))
	for i, row := range x {
		est[i] = m.Predict(row)
	}
	return ScorePredictions(est, y)
}

// ScorePredictions computes R² and MAE of estimates against observed values.
// A constant target scores R² 1 when it is matched exactly and 0 otherwise.
func ScorePredictions(est, y []float64) Score {
	if len(y) == 0 || len(est) != len(y) {
		return Score{}
	}
	var abs float64
	for i := range y {
		abs += math.Abs(est[i] - y[i])
	}
	mae := abs / float64(len(y))

	r2 := stat.RSquaredFrom(est, y, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
		if mae < 1e-12 {
			r2 = 1
		}
	}
	return Score{R2: r2, MAE: mae}
}
