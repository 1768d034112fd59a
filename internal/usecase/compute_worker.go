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
	applogger "DualSignal/pkg/logger"
	"DualSignal/pkg/objstore"
	"DualSignal/pkg/util"
)

// ComputeOptions configures ComputeWorker.
type ComputeOptions struct {
	Timeout          time.Duration
	VolatilityWindow int
	Epsilon          float64
	Location         *time.Location
}

// ComputeRunResult summarises one invocation.
type ComputeRunResult struct {
	Date     string
	Computed int
	Skipped  int
	Added    int
	Written  bool
	Locked   bool
}

// ComputeWorker turns the day's raw windows into the append-only compute series.
type ComputeWorker struct {
	raw       drepo.RawBarStore
	series    drepo.ComputeSeriesStore
	locker    drepo.Locker
	watchlist models.Watchlist
	metrics   drepo.Metrics
	log       *applogger.Logger
	opts      ComputeOptions
}

func NewComputeWorker(raw drepo.RawBarStore, series drepo.ComputeSeriesStore, locker drepo.Locker, watchlist models.Watchlist, metrics drepo.Metrics, log *applogger.Logger, opts ComputeOptions) *ComputeWorker {
	if opts.Timeout <= 0 {
		opts.Timeout = 4 * time.Minute
	}
	if opts.VolatilityWindow <= 1 {
		opts.VolatilityWindow = 20
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = 1e-4
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &ComputeWorker{
		raw:       raw,
		series:    series,
		locker:    locker,
		watchlist: watchlist,
		metrics:   metrics,
		log:       log.Named("compute_worker"),
		opts:      opts,
	}
}

// Run performs one scheduled invocation for the trading day containing now.
// Either the whole day's file is written once or nothing is written.
func (w *ComputeWorker) Run(ctx context.Context, now time.Time) (*ComputeRunResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	res := &ComputeRunResult{Date: util.DateKey(now, w.opts.Location)}
	unlock, err := w.locker.TryLock(ctx, repository.ComputeLockName(res.Date), w.opts.Timeout)
	if err != nil {
		if errors.Is(err, objstore.ErrLocked) {
			res.Locked = true
			w.log.Info("compute run already in progress, skipping", applogger.String("date", res.Date))
			return res, nil
		}
		w.metrics.RecordError("compute_lock")
		return res, fmt.Errorf("compute lock: %w", err)
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			w.log.Warn("compute unlock", applogger.Error(err))
		}
	}()

	err = w.run(ctx, now, res)
	w.metrics.RecordLatency("compute_run", time.Since(start).Seconds())
	if err != nil {
		w.metrics.RecordError("compute_run")
		w.log.Error("compute run aborted", applogger.String("date", res.Date), applogger.Error(err))
		return res, err
	}
	w.log.Info("compute run finished",
		applogger.String("date", res.Date),
		applogger.Int("computed", res.Computed),
		applogger.Int("skipped", res.Skipped),
		applogger.Int("added", res.Added),
		applogger.Bool("written", res.Written))
	return res, nil
}

func (w *ComputeWorker) run(ctx context.Context, now time.Time, res *ComputeRunResult) error {
	file, err := w.series.Load(ctx, res.Date)
	if err != nil {
		return fmt.Errorf("load compute series: %w", err)
	}
	latest := file.Latest()

	var fresh []models.ComputeObservation
	for _, inst := range w.watchlist.Instruments() {
		bars, err := w.raw.ListDay(ctx, res.Date, inst)
		if err != nil {
			return fmt.Errorf("load raw bars %s: %w", inst, err)
		}
		if len(bars) == 0 {
			res.Skipped++
			continue
		}
		last := bars[len(bars)-1]
		if prev, ok := latest[inst]; ok && !last.Timestamp.After(prev.Timestamp) {
			res.Skipped++
			continue
		}
		fresh = append(fresh, w.observe(inst, bars))
		res.Computed++
	}
	if len(fresh) == 0 {
		return nil
	}

	res.Added = file.Merge(fresh)
	if res.Added == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("compute run deadline: %w", err)
	}
	file.UpdatedAt = now.UTC()
	if err := w.series.Save(ctx, file); err != nil {
		return fmt.Errorf("save compute series: %w", err)
	}
	res.Written = true
	w.metrics.RecordObservations(res.Added)
	return nil
}

// observe computes the observation of the most recent bar; volatility uses the trailing window of returns.
func (w *ComputeWorker) observe(inst string, bars []*models.RawBar) models.ComputeObservation {
	last := bars[len(bars)-1]
	returns := features.Returns(bars)
	ret := returns[len(returns)-1]
	vol := features.Volatility(returns, w.opts.VolatilityWindow, w.opts.Epsilon)
	return models.ComputeObservation{
		Instrument: inst,
		Timestamp:  last.Timestamp.UTC(),
		Return:     ret,
		Volatility: vol,
		Signal:     ret / vol,
		RangeRatio: last.RangeRatio(),
	}
}
