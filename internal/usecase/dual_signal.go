package usecase

import (
	"context"
	"math"
	"time"

	"DualSignal/internal/domain/models"
	drepo "DualSignal/internal/domain/repository"
	"DualSignal/internal/services/learning"
	applogger "DualSignal/pkg/logger"
	"DualSignal/pkg/util"

	"golang.org/x/sync/errgroup"
)

// minBaselineObservations is the series length needed for a persistence baseline with two scored points.
const minBaselineObservations = 3

// DualSignalService joins the latest compute and learning state per instrument. Read-only.
type DualSignalService struct {
	series      drepo.ComputeSeriesStore
	results     drepo.LearningResultStore
	watchlist   models.Watchlist
	metrics     drepo.Metrics
	log         *applogger.Logger
	readTimeout time.Duration
	loc         *time.Location
	now         func() time.Time
}

func NewDualSignalService(series drepo.ComputeSeriesStore, results drepo.LearningResultStore, watchlist models.Watchlist, metrics drepo.Metrics, log *applogger.Logger, readTimeout time.Duration, loc *time.Location) *DualSignalService {
	if readTimeout <= 0 {
		readTimeout = 2 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DualSignalService{
		series:      series,
		results:     results,
		watchlist:   watchlist,
		metrics:     metrics,
		log:         log.Named("dual_signal"),
		readTimeout: readTimeout,
		loc:         loc,
		now:         time.Now,
	}
}

// GetDualSignal builds the response for one instrument or, with an empty filter, the whole watchlist.
// Missing or unreadable data degrades the rows; only an unresolvable watchlist yields success=false
// together with the matching sentinel error.
func (s *DualSignalService) GetDualSignal(ctx context.Context, instrument string) (*models.DualSignalResponse, error) {
	start := time.Now()
	now := s.now()
	resp := &models.DualSignalResponse{
		Timestamp: now.UTC(),
		Date:      util.DateKey(now, s.loc),
		Rows:      []models.DualSignalRow{},
	}
	instruments, err := s.watchlist.Resolve(instrument)
	if err != nil {
		resp.Error = err.Error()
		return resp, err
	}

	var (
		compute *models.ComputeSeriesFile
		results *models.LearningResultFile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		compute = s.readCompute(gctx, resp.Date)
		return nil
	})
	g.Go(func() error {
		results = s.readLearning(gctx, resp.Date)
		return nil
	})
	_ = g.Wait()

	latest := compute.Latest()
	grouped := compute.ByInstrument()
	for _, inst := range instruments {
		row := buildRow(inst, latest, grouped[inst], results)
		if row.Compute != nil {
			resp.DataStatus.ComputeCount++
		}
		if row.Learning != nil {
			resp.DataStatus.LearningCount++
		}
		resp.Rows = append(resp.Rows, row)
	}
	resp.Success = true
	resp.TotalInstruments = len(instruments)
	resp.DataStatus.ComputeAvailable = resp.DataStatus.ComputeCount > 0
	resp.DataStatus.LearningAvailable = resp.DataStatus.LearningCount > 0
	s.metrics.RecordLatency("dual_signal", time.Since(start).Seconds())
	return resp, nil
}

// readCompute returns nil when the file is absent, unreadable, or the read timed out.
func (s *DualSignalService) readCompute(ctx context.Context, date string) *models.ComputeSeriesFile {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	f, err := s.series.Load(ctx, date)
	if err != nil {
		s.metrics.RecordError("dual_signal_read")
		s.log.Warn("compute series unavailable", applogger.String("date", date), applogger.Error(err))
		return nil
	}
	return f
}

func (s *DualSignalService) readLearning(ctx context.Context, date string) *models.LearningResultFile {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	f, err := s.results.Load(ctx, date)
	if err != nil {
		s.metrics.RecordError("dual_signal_read")
		s.log.Warn("learning results unavailable", applogger.String("date", date), applogger.Error(err))
		return nil
	}
	return f
}

func buildRow(inst string, latest map[string]models.ComputeObservation, series []models.ComputeObservation, results *models.LearningResultFile) models.DualSignalRow {
	row := models.DualSignalRow{
		Instrument:  inst,
		Convergence: models.ConvergenceBlock{Status: models.StateWarmingUp},
	}
	if obs, ok := latest[inst]; ok {
		row.Compute = &models.ComputeBlock{
			Signal:     obs.Signal,
			Return:     obs.Return,
			Volatility: obs.Volatility,
			Timestamp:  obs.Timestamp,
		}
		if score, ok := persistenceBaseline(series); ok {
			row.Compute.BaselineR2 = ptr(score.R2)
			row.Compute.BaselineMAE = ptr(score.MAE)
		}
	}
	if r, ok := results.Get(inst); ok {
		row.Learning = &models.LearningBlock{
			Signal:     r.PredictedSignal,
			R2:         r.R2,
			MAE:        r.MAE,
			Iterations: r.TrainingIterations,
			Converged:  r.Converged,
		}
		row.Convergence = convergenceBlock(r)
	}
	if row.Compute != nil && row.Learning != nil {
		row.Diff.SignalDiff = ptr(row.Learning.Signal - row.Compute.Signal)
		if row.Compute.BaselineR2 != nil {
			row.Diff.R2Diff = ptr(row.Learning.R2 - *row.Compute.BaselineR2)
			row.Diff.MAEDiff = ptr(row.Learning.MAE - *row.Compute.BaselineMAE)
		}
	}
	return row
}

// persistenceBaseline scores signal_t = signal_{t-1} over the day's series.
func persistenceBaseline(series []models.ComputeObservation) (learning.Score, bool) {
	if len(series) < minBaselineObservations {
		return learning.Score{}, false
	}
	est := make([]float64, 0, len(series)-1)
	obs := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		est = append(est, series[i-1].Signal)
		obs = append(obs, series[i].Signal)
	}
	return learning.ScorePredictions(est, obs), true
}

func convergenceBlock(r models.LearningModelResult) models.ConvergenceBlock {
	switch {
	case r.Converged:
		return models.ConvergenceBlock{Status: models.StateConverged, Progress: 100}
	case r.State == models.StateWarmingUp:
		return models.ConvergenceBlock{Status: models.StateWarmingUp}
	}
	return models.ConvergenceBlock{Status: models.StateTraining, Progress: math.Max(0, math.Min(100, r.R2*100))}
}

func ptr(v float64) *float64 { return &v }
