package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DualSignal/internal/domain/models"
	drepo "DualSignal/internal/domain/repository"
	"DualSignal/internal/repository"
	"DualSignal/internal/services/features"
	"DualSignal/internal/services/learning"
	applogger "DualSignal/pkg/logger"
	"DualSignal/pkg/objstore"
	"DualSignal/pkg/util"
)

// LearningOptions configures LearningWorker.
type LearningOptions struct {
	Timeout         time.Duration
	MinObservations int
	LookbackDays    int
	Ridge           float64
	Rules           ConvergenceRules
	Location        *time.Location
}

// LearningRunResult summarises one invocation.
type LearningRunResult struct {
	Date    string
	Fitted  []string
	Skipped []string
	Written bool
	Locked  bool
}

// LearningWorker refits one ridge model per instrument from the compute series.
type LearningWorker struct {
	series    drepo.ComputeSeriesStore
	results   drepo.LearningResultStore
	locker    drepo.Locker
	watchlist models.Watchlist
	metrics   drepo.Metrics
	log       *applogger.Logger
	opts      LearningOptions
}

func NewLearningWorker(series drepo.ComputeSeriesStore, results drepo.LearningResultStore, locker drepo.Locker, watchlist models.Watchlist, metrics drepo.Metrics, log *applogger.Logger, opts LearningOptions) *LearningWorker {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.MinObservations <= features.MinHistory {
		opts.MinObservations = 20
	}
	if opts.LookbackDays < 0 {
		opts.LookbackDays = 0
	}
	if opts.Ridge <= 0 {
		opts.Ridge = 1e-3
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	opts.Rules = opts.Rules.withDefaults()
	return &LearningWorker{
		series:    series,
		results:   results,
		locker:    locker,
		watchlist: watchlist,
		metrics:   metrics,
		log:       log.Named("learning_worker"),
		opts:      opts,
	}
}

// Run fits every instrument with enough history for the day containing now.
// Instruments below the minimum are skipped; the others are unaffected.
func (w *LearningWorker) Run(ctx context.Context, now time.Time) (*LearningRunResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	res := &LearningRunResult{Date: util.DateKey(now, w.opts.Location)}
	unlock, err := w.locker.TryLock(ctx, repository.LearningLockName(res.Date), w.opts.Timeout)
	if err != nil {
		if errors.Is(err, objstore.ErrLocked) {
			res.Locked = true
			w.log.Info("learning run already in progress, skipping", applogger.String("date", res.Date))
			return res, nil
		}
		w.metrics.RecordError("learning_lock")
		return res, fmt.Errorf("learning lock: %w", err)
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			w.log.Warn("learning unlock", applogger.Error(err))
		}
	}()

	err = w.run(ctx, now, res)
	w.metrics.RecordLatency("learning_run", time.Since(start).Seconds())
	if err != nil {
		w.metrics.RecordError("learning_run")
		w.log.Error("learning run aborted", applogger.String("date", res.Date), applogger.Error(err))
		return res, err
	}
	w.log.Info("learning run finished",
		applogger.String("date", res.Date),
		applogger.Strings("fitted", res.Fitted),
		applogger.Strings("skipped", res.Skipped),
		applogger.Bool("written", res.Written))
	return res, nil
}

func (w *LearningWorker) run(ctx context.Context, now time.Time, res *LearningRunResult) error {
	grouped, todayCounts, err := w.loadSeries(ctx, res.Date)
	if err != nil {
		return err
	}
	today, err := w.results.Load(ctx, res.Date)
	if err != nil {
		return fmt.Errorf("load learning results: %w", err)
	}
	yesterday, err := w.previousResults(ctx, res.Date)
	if err != nil {
		return err
	}

	for _, inst := range w.watchlist.Instruments() {
		series := grouped[inst]
		if len(series) < w.opts.MinObservations {
			res.Skipped = append(res.Skipped, inst)
			w.metrics.RecordLearningSkipped("insufficient_data")
			w.log.Info("not enough observations, skipping",
				applogger.String("instrument", inst),
				applogger.Int("observations", len(series)),
				applogger.Int("required", w.opts.MinObservations))
			continue
		}
		out, err := w.fit(inst, series, todayCounts[inst], today, yesterday)
		if err != nil {
			res.Skipped = append(res.Skipped, inst)
			w.metrics.RecordLearningSkipped("fit_failed")
			w.log.Warn("fit failed, skipping", applogger.String("instrument", inst), applogger.Error(err))
			continue
		}
		out.UpdatedAt = now.UTC()
		today.Upsert(out)
		res.Fitted = append(res.Fitted, inst)
		w.metrics.RecordLearningResult(inst, out.State)
	}
	if len(res.Fitted) == 0 {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("learning run deadline: %w", err)
	}
	today.Date = res.Date
	today.UpdatedAt = now.UTC()
	if err := w.results.Save(ctx, today); err != nil {
		return fmt.Errorf("save learning results: %w", err)
	}
	res.Written = true
	return nil
}

// loadSeries returns per-instrument observations, lookback days first, and how many of them are dated today.
func (w *LearningWorker) loadSeries(ctx context.Context, date string) (map[string][]models.ComputeObservation, map[string]int, error) {
	days, err := util.PreviousDateKeys(date, w.opts.LookbackDays)
	if err != nil {
		return nil, nil, err
	}
	days = append(days, date)
	grouped := make(map[string][]models.ComputeObservation)
	todayCounts := make(map[string]int)
	for _, d := range days {
		file, err := w.series.Load(ctx, d)
		if err != nil {
			return nil, nil, fmt.Errorf("load compute series %s: %w", d, err)
		}
		for inst, obs := range file.ByInstrument() {
			grouped[inst] = append(grouped[inst], obs...)
			if d == date {
				todayCounts[inst] = len(obs)
			}
		}
	}
	return grouped, todayCounts, nil
}

func (w *LearningWorker) previousResults(ctx context.Context, date string) (*models.LearningResultFile, error) {
	prev, err := util.PreviousDateKeys(date, 1)
	if err != nil {
		return nil, err
	}
	file, err := w.results.Load(ctx, prev[0])
	if err != nil {
		return nil, fmt.Errorf("load learning results %s: %w", prev[0], err)
	}
	return file, nil
}

func (w *LearningWorker) fit(inst string, series []models.ComputeObservation, todayObs int, today, yesterday *models.LearningResultFile) (models.LearningModelResult, error) {
	ds := features.Build(series)
	if ds.Len() == 0 {
		return models.LearningModelResult{}, learning.ErrNoData
	}
	model, err := learning.FitRidge(ds.X, ds.Y, w.opts.Ridge)
	if err != nil {
		return models.LearningModelResult{}, err
	}
	score := model.Evaluate(ds.X, ds.Y)
	last := ds.Last()

	iterations := 1
	var prevToday *models.LearningModelResult
	if r, ok := today.Get(inst); ok {
		prevToday = &r
		iterations = r.TrainingIterations + 1
	} else if r, ok := yesterday.Get(inst); ok {
		iterations = r.TrainingIterations + 1
	}
	progress := w.opts.Rules.Advance(prevToday, score, len(series), todayObs)

	return models.LearningModelResult{
		Instrument:         inst,
		PredictedSignal:    model.Predict(last),
		R2:                 score.R2,
		MAE:                score.MAE,
		TrainingIterations: iterations,
		Converged:          progress.Converged,
		State:              progress.State,
		Features:           features.Named(last),
		ObservationCount:   len(series),
		MAEStreak:          progress.MAEStreak,
		R2Streak:           progress.R2Streak,
	}, nil
}
