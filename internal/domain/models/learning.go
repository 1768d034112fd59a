package models

import "time"

// ConvergenceState of a per-instrument model within one day.
type ConvergenceState string

const (
	StateWarmingUp ConvergenceState = "warming_up"
	StateTraining  ConvergenceState = "training"
	StateConverged ConvergenceState = "converged"
)

// FeatureNames lists the model inputs in vector order.
var FeatureNames = [8]string{
	"lag1_return",
	"lag2_return",
	"range_ratio",
	"norm_volatility",
	"ret_mean_5",
	"ret_mean_10",
	"ret_std_5",
	"ret_std_10",
}

// LearningModelResult is the outcome of one fit for one instrument.
type LearningModelResult struct {
	Instrument         string             `json:"instrument"`
	PredictedSignal    float64            `json:"predicted_signal"`
	R2                 float64            `json:"r2"`
	MAE                float64            `json:"mae"`
	TrainingIterations int                `json:"training_iterations"`
	Converged          bool               `json:"converged"`
	State              ConvergenceState   `json:"state"`
	Features           map[string]float64 `json:"features"`
	ObservationCount   int                `json:"observation_count"`
	MAEStreak          int                `json:"mae_streak"`
	R2Streak           int                `json:"r2_streak"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// LearningResultFile collects one day's results keyed by instrument.
type LearningResultFile struct {
	Date      string                         `json:"date"`
	Results   map[string]LearningModelResult `json:"results"`
	UpdatedAt time.Time                      `json:"updated_at"`
}

// Upsert replaces the entry for r.Instrument and leaves the others untouched.
func (f *LearningResultFile) Upsert(r LearningModelResult) {
	if f.Results == nil {
		f.Results = make(map[string]LearningModelResult)
	}
	f.Results[r.Instrument] = r
}

// Get returns the result for instrument, if any.
func (f *LearningResultFile) Get(instrument string) (LearningModelResult, bool) {
	if f == nil || f.Results == nil {
		return LearningModelResult{}, false
	}
	r, ok := f.Results[instrument]
	return r, ok
}
