package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"DualSignal/internal/domain/models"
	drepo "DualSignal/internal/domain/repository"
	mid "DualSignal/internal/middleware"
	applogger "DualSignal/pkg/logger"
	"DualSignal/pkg/util"

	"golang.org/x/sync/errgroup"
)

// ErrLateBar is returned for bars whose window has already closed.
var ErrLateBar = errors.New("bar arrived after its window closed")

// AggregatorOptions configures WindowAggregator.
type AggregatorOptions struct {
	Window           time.Duration
	FlushInterval    time.Duration
	Grace            time.Duration
	MaxFlushAttempts int
	WriteTimeout     time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	Location         *time.Location
}

type windowKey struct {
	instrument string
	start      int64
}

type pendingWindow struct {
	bar      *models.RawBar
	attempts int
}

// WindowAggregator buffers feed bars per (instrument, window) and writes one RawBar per closed window.
// Only one aggregator may run per feed.
type WindowAggregator struct {
	store   drepo.RawBarStore
	events  drepo.EventPublisher
	metrics drepo.Metrics
	log     *applogger.Logger
	opts    AggregatorOptions

	now  func() time.Time
	wait func(context.Context, time.Duration) error

	mu      sync.Mutex
	buffers map[windowKey]*pendingWindow
	closed  map[windowKey]time.Time
}

func NewWindowAggregator(store drepo.RawBarStore, events drepo.EventPublisher, metrics drepo.Metrics, log *applogger.Logger, opts AggregatorOptions) *WindowAggregator {
	if opts.Window <= 0 {
		opts.Window = 5 * time.Minute
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.MaxFlushAttempts <= 0 {
		opts.MaxFlushAttempts = 5
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &WindowAggregator{
		store:   store,
		events:  events,
		metrics: metrics,
		log:     log.Named("window_aggregator"),
		opts:    opts,
		now:     time.Now,
		wait:    sleepCtx,
		buffers: make(map[windowKey]*pendingWindow),
		closed:  make(map[windowKey]time.Time),
	}
}

// Process merges b into its window buffer. It implements middleware.Proc.
func (a *WindowAggregator) Process(_ context.Context, b *models.Bar) error {
	start := b.WindowStart.Truncate(a.opts.Window)
	key := windowKey{instrument: b.Instrument, start: start.Unix()}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, done := a.closed[key]; done || a.isClosed(start, a.now()) {
		a.metrics.RecordBarDropped("late")
		return ErrLateBar
	}
	if p, ok := a.buffers[key]; ok {
		p.bar.Merge(b)
		return nil
	}
	date := util.DateKey(start, a.opts.Location)
	a.buffers[key] = &pendingWindow{bar: models.NewRawBar(b, start, start.Add(a.opts.Window), date)}
	return nil
}

func (a *WindowAggregator) isClosed(start, now time.Time) bool {
	return !start.Add(a.opts.Window + a.opts.Grace).After(now)
}

// Flush writes every window closed as of now and returns how many were written.
// A failed write keeps the window for the next flush until MaxFlushAttempts is reached.
func (a *WindowAggregator) Flush(ctx context.Context, now time.Time) int {
	due := a.takeClosed(now)
	written := 0
	for _, p := range due {
		if err := a.write(ctx, p.bar); err != nil {
			p.attempts++
			a.metrics.RecordError("aggregator_flush")
			if p.attempts >= a.opts.MaxFlushAttempts {
				a.log.Error("dropping window after repeated flush failures",
					applogger.String("instrument", p.bar.Instrument),
					applogger.Time("window_start", p.bar.WindowStart),
					applogger.Int("attempts", p.attempts),
					applogger.Error(err))
				a.markClosed(p.bar, now)
				continue
			}
			a.log.Warn("window flush failed, will retry",
				applogger.String("instrument", p.bar.Instrument),
				applogger.Int("attempt", p.attempts),
				applogger.Error(err))
			a.requeue(p)
			continue
		}
		a.markClosed(p.bar, now)
		written++
		a.metrics.RecordWindowFlushed(p.bar.Instrument)
		if err := a.events.PublishWindowClosed(ctx, p.bar); err != nil {
			a.metrics.RecordError("window_event")
			a.log.Warn("publish window event", applogger.String("instrument", p.bar.Instrument), applogger.Error(err))
		}
	}
	a.pruneClosed(now)
	return written
}

func (a *WindowAggregator) write(ctx context.Context, bar *models.RawBar) error {
	wctx, cancel := context.WithTimeout(ctx, a.opts.WriteTimeout)
	defer cancel()
	start := time.Now()
	err := a.store.Save(wctx, bar)
	a.metrics.RecordLatency("raw_bar_write", time.Since(start).Seconds())
	return err
}

func (a *WindowAggregator) takeClosed(now time.Time) []*pendingWindow {
	a.mu.Lock()
	defer a.mu.Unlock()
	var due []*pendingWindow
	for k, p := range a.buffers {
		if a.isClosed(p.bar.WindowStart, now) {
			due = append(due, p)
			delete(a.buffers, k)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].bar.WindowStart.Equal(due[j].bar.WindowStart) {
			return due[i].bar.WindowStart.Before(due[j].bar.WindowStart)
		}
		return due[i].bar.Instrument < due[j].bar.Instrument
	})
	return due
}

func (a *WindowAggregator) requeue(p *pendingWindow) {
	a.mu.Lock()
	a.buffers[windowKey{instrument: p.bar.Instrument, start: p.bar.WindowStart.Unix()}] = p
	a.mu.Unlock()
}

func (a *WindowAggregator) markClosed(bar *models.RawBar, now time.Time) {
	a.mu.Lock()
	a.closed[windowKey{instrument: bar.Instrument, start: bar.WindowStart.Unix()}] = now
	a.mu.Unlock()
}

// Closed windows are also rejected by clock, so the set only needs to outlive the grace period.
func (a *WindowAggregator) pruneClosed(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, at := range a.closed {
		if now.Sub(at) > 2*a.opts.Window {
			delete(a.closed, k)
		}
	}
}

// Pending returns the number of open window buffers.
func (a *WindowAggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}

// Run connects the stream and aggregates until ctx ends. Stream failures trigger
// reconnects with exponential backoff; windows missed during a gap are not recovered.
func (a *WindowAggregator) Run(ctx context.Context, stream drepo.MarketStream, pipe mid.Proc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.flushLoop(gctx)
		return nil
	})
	g.Go(func() error {
		return a.readLoop(gctx, stream, pipe)
	})
	err := g.Wait()

	// final pass for windows that are already closed; open ones are discarded
	fctx, cancel := context.WithTimeout(context.Background(), a.opts.WriteTimeout)
	defer cancel()
	a.Flush(fctx, a.now())
	if dropped := a.Pending(); dropped > 0 {
		a.log.Info("discarding open windows on shutdown", applogger.Int("windows", dropped))
	}
	if cerr := stream.Close(); cerr != nil {
		a.log.Warn("feed close", applogger.Error(cerr))
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *WindowAggregator) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(a.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Flush(ctx, a.now())
		}
	}
}

func (a *WindowAggregator) readLoop(ctx context.Context, stream drepo.MarketStream, pipe mid.Proc) error {
	if err := a.connect(ctx, stream, true); err != nil {
		return err
	}
	for {
		bars, errs := stream.Read(ctx)
		err := a.consume(ctx, bars, errs, pipe)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.metrics.RecordError("stream")
		a.log.Warn("feed stream interrupted", applogger.Error(err))
		if err := a.connect(ctx, stream, false); err != nil {
			return err
		}
	}
}

// consume returns when the stream reports an error or its channels close.
func (a *WindowAggregator) consume(ctx context.Context, bars <-chan *models.Bar, errs <-chan error, pipe mid.Proc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		case b, ok := <-bars:
			if !ok {
				return fmt.Errorf("feed stream closed")
			}
			if b == nil {
				continue
			}
			if err := pipe.Process(ctx, b); err != nil {
				a.log.Debug("bar dropped", applogger.String("instrument", b.Instrument), applogger.Error(err))
			}
		}
	}
}

// connect retries until the stream is subscribed or ctx ends. The delay starts over on every call.
func (a *WindowAggregator) connect(ctx context.Context, stream drepo.MarketStream, first bool) error {
	bo := util.NewBackoff(a.opts.BackoffInitial, a.opts.BackoffMax, 0)
	if !first {
		if err := a.wait(ctx, bo.NextBackOff()); err != nil {
			return err
		}
	}
	for {
		var err error
		if first {
			err = stream.Connect(ctx)
			if err == nil {
				err = stream.Subscribe(ctx)
			}
			first = false
		} else {
			a.metrics.RecordReconnect()
			err = stream.Reconnect(ctx)
		}
		if err == nil {
			return nil
		}
		delay := bo.NextBackOff()
		a.log.Warn("feed connect failed", applogger.Duration("retry_in_ms", delay), applogger.Error(err))
		if err := a.wait(ctx, delay); err != nil {
			return err
		}
	}
}
