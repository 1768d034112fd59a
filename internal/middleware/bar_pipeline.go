package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"DualSignal/internal/domain/models"
	domrepo "DualSignal/internal/domain/repository"

	"golang.org/x/time/rate"
)

var (
	ErrInvalidBar = errors.New("invalid bar")
	ErrNotWatched = errors.New("instrument not in watchlist")
	ErrThrottled  = errors.New("instrument throttled")
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, b *models.Bar) error
}

// BarPipeline sits between the feed and the window aggregator.
// It validates, filters to the watchlist, and throttles each instrument.
type BarPipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	watchlist models.Watchlist
	maxRate   rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type PipelineOption func(*BarPipeline)

// WithMaxBarsPerSecond caps accepted bars per instrument. Zero or less disables throttling.
func WithMaxBarsPerSecond(n float64) PipelineOption {
	return func(p *BarPipeline) {
		if n <= 0 {
			p.maxRate = rate.Inf
			return
		}
		p.maxRate = rate.Limit(n)
		p.burst = int(math.Max(1, math.Ceil(n)))
	}
}

func NewBarPipeline(proc Proc, watchlist models.Watchlist, metrics domrepo.Metrics, opts ...PipelineOption) *BarPipeline {
	p := &BarPipeline{
		proc:      proc,
		metrics:   metrics,
		watchlist: watchlist,
		maxRate:   rate.Limit(50),
		burst:     50,
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process forwards b downstream or returns one of the drop errors.
func (p *BarPipeline) Process(ctx context.Context, b *models.Bar) error {
	start := time.Now()
	if err := ValidateBar(b); err != nil {
		p.metrics.RecordBarDropped("invalid")
		return err
	}
	if !p.watchlist.Contains(b.Instrument) {
		p.metrics.RecordBarDropped("not_watched")
		return ErrNotWatched
	}
	if !p.limiter(b.Instrument).AllowN(start, 1) {
		p.metrics.RecordBarDropped("throttled")
		return ErrThrottled
	}
	p.metrics.RecordBarReceived(b.Instrument)
	if err := p.proc.Process(ctx, b); err != nil {
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *BarPipeline) limiter(instrument string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[instrument]
	if !ok {
		l = rate.NewLimiter(p.maxRate, p.burst)
		p.limiters[instrument] = l
	}
	return l
}

// ValidateBar rejects bars that cannot form a window.
func ValidateBar(b *models.Bar) error {
	if b == nil {
		return fmt.Errorf("%w: nil", ErrInvalidBar)
	}
	if b.Instrument == "" {
		return fmt.Errorf("%w: instrument empty", ErrInvalidBar)
	}
	if b.WindowStart.IsZero() || !b.WindowEnd.After(b.WindowStart) {
		return fmt.Errorf("%w: window bounds", ErrInvalidBar)
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-positive price", ErrInvalidBar)
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: high below low", ErrInvalidBar)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume", ErrInvalidBar)
	}
	return nil
}
