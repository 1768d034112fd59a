package usecase

import (
	"DualSignal/internal/domain/models"
	"DualSignal/internal/services/learning"
)

// ConvergenceRules decide when a per-instrument model counts as converged within a day.
type ConvergenceRules struct {
	MAEThreshold    float64
	MAEStreakTarget int
	R2Threshold     float64
	RunsPerDay      int
}

// DefaultConvergenceRules: MAE < 0.1 over 50 observations, or R² > 0.9 for a full day of hourly runs.
func DefaultConvergenceRules() ConvergenceRules {
	return ConvergenceRules{MAEThreshold: 0.1, MAEStreakTarget: 50, R2Threshold: 0.9, RunsPerDay: 7}
}

func (r ConvergenceRules) withDefaults() ConvergenceRules {
	d := DefaultConvergenceRules()
	if r.MAEThreshold <= 0 {
		r.MAEThreshold = d.MAEThreshold
	}
	if r.MAEStreakTarget <= 0 {
		r.MAEStreakTarget = d.MAEStreakTarget
	}
	if r.R2Threshold <= 0 {
		r.R2Threshold = d.R2Threshold
	}
	if r.RunsPerDay <= 0 {
		r.RunsPerDay = d.RunsPerDay
	}
	return r
}

// Progress is the state carried between two runs of the same day.
type Progress struct {
	MAEStreak int
	R2Streak  int
	Converged bool
	State     models.ConvergenceState
}

// Advance applies one run's score. prev is today's earlier result for the instrument, nil on the first run.
// observations is the fitted series length and today the part of it dated today. The MAE streak only
// counts today's observations: the first run of a day seeds it with one, later runs add the new points.
// Once converged, an instrument stays converged for the rest of the day.
func (r ConvergenceRules) Advance(prev *models.LearningModelResult, score learning.Score, observations, today int) Progress {
	r = r.withDefaults()
	var p Progress
	newObs := 1
	if prev != nil {
		p.MAEStreak = prev.MAEStreak
		p.R2Streak = prev.R2Streak
		p.Converged = prev.Converged
		newObs = max(observations-prev.ObservationCount, 1)
	}
	newObs = min(newObs, today)

	if score.MAE < r.MAEThreshold {
		p.MAEStreak += newObs
	} else {
		p.MAEStreak = 0
	}
	if score.R2 > r.R2Threshold {
		p.R2Streak++
	} else {
		p.R2Streak = 0
	}

	if p.MAEStreak >= r.MAEStreakTarget || p.R2Streak >= r.RunsPerDay {
		p.Converged = true
	}
	p.State = models.StateTraining
	if p.Converged {
		p.State = models.StateConverged
	}
	return p
}
