package learning

import (
	"math"
	"math/rand"
	"testing"
)

func TestFitRidgeRecoversLinearRelation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var x [][]float64
	var y []float64
	for i := 0; i < 200; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		x = append(x, []float64{a, b})
		y = append(y, 0.5+2*a-3*b)
	}
	m, err := FitRidge(x, y, 1e-6)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if math.Abs(m.Intercept-0.5) > 1e-3 || math.Abs(m.Weights[0]-2) > 1e-3 || math.Abs(m.Weights[1]+3) > 1e-3 {
		t.Fatalf("unexpected coefficients %+v", m)
	}
	s := m.Evaluate(x, y)
	if s.R2 < 0.9999 || s.MAE > 1e-3 {
		t.Fatalf("unexpected score %+v", s)
	}
	if got := m.Predict([]float64{1, 1}); math.Abs(got-(-0.5)) > 1e-2 {
		t.Fatalf("predict = %v", got)
	}
}

func TestFitRidgeHandlesCollinearFeatures(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		v := float64(i)
		x = append(x, []float64{v, v, 0})
		y = append(y, v)
	}
	m, err := FitRidge(x, y, 1e-3)
	if err != nil {
		t.Fatalf("ridge should regularise collinear features: %v", err)
	}
	if s := m.Evaluate(x, y); s.R2 < 0.99 {
		t.Fatalf("unexpected R2 %v", s.R2)
	}
}

func TestFitRidgeErrors(t *testing.T) {
	if _, err := FitRidge(nil, nil, 1); err != ErrNoData {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if _, err := FitRidge([][]float64{{1, 2}, {1}}, []float64{1, 2}, 1); err == nil {
		t.Fatalf("expected ragged rows error")
	}
}

func TestScorePredictionsConstantTarget(t *testing.T) {
	if s := ScorePredictions([]float64{1, 1}, []float64{1, 1}); s.R2 != 1 || s.MAE != 0 {
		t.Fatalf("exact constant fit: %+v", s)
	}
	if s := ScorePredictions([]float64{1, 2}, []float64{1, 1}); s.R2 != 0 || s.MAE != 0.5 {
		t.Fatalf("missed constant fit: %+v", s)
	}
}
