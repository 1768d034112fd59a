package models

import "time"

// Requests and responses of the dual-signal read path. Nullable parts are pointers
// so an unavailable side serialises as null instead of a zero value.

type DualSignalRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"omitempty,max=16"`
}

type ComputeBlock struct {
	Signal      float64   `json:"signal"`
	Return      float64   `json:"return"`
	Volatility  float64   `json:"volatility"`
	Timestamp   time.Time `json:"timestamp"`
	BaselineR2  *float64  `json:"baseline_r2"`
	BaselineMAE *float64  `json:"baseline_mae"`
}

type LearningBlock struct {
	Signal     float64 `json:"signal"`
	R2         float64 `json:"r2"`
	MAE        float64 `json:"mae"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
}

type DiffBlock struct {
	SignalDiff *float64 `json:"signal_diff"`
	R2Diff     *float64 `json:"r2_diff"`
	MAEDiff    *float64 `json:"mae_diff"`
}

type ConvergenceBlock struct {
	Status   ConvergenceState `json:"status"`
	Progress float64          `json:"progress"`
}

type DualSignalRow struct {
	Instrument  string           `json:"instrument"`
	Compute     *ComputeBlock    `json:"compute"`
	Learning    *LearningBlock   `json:"learning"`
	Diff        DiffBlock        `json:"diff"`
	Convergence ConvergenceBlock `json:"convergence"`
}

type DataStatus struct {
	ComputeAvailable  bool `json:"compute_available"`
	LearningAvailable bool `json:"learning_available"`
	ComputeCount      int  `json:"compute_count"`
	LearningCount     int  `json:"learning_count"`
}

type DualSignalResponse struct {
	Success          bool            `json:"success"`
	Error            string          `json:"error,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	Date             string          `json:"date"`
	Rows             []DualSignalRow `json:"rows"`
	TotalInstruments int             `json:"total_instruments"`
	DataStatus       DataStatus      `json:"data_status"`
}
