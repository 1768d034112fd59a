package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"DualSignal/internal/domain/models"
	"DualSignal/pkg/metrics"
)

type recordingProc struct {
	bars []*models.Bar
}

func (r *recordingProc) Process(_ context.Context, b *models.Bar) error {
	r.bars = append(r.bars, b)
	return nil
}

func bar(inst string) *models.Bar {
	start := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	return &models.Bar{Instrument: inst, Open: 150, High: 151, Low: 149, Close: 150.5, Volume: 10, WindowStart: start, WindowEnd: start.Add(time.Minute)}
}

func TestBarPipelineFilters(t *testing.T) {
	proc := &recordingProc{}
	p := NewBarPipeline(proc, models.NewWatchlist([]string{"AAPL"}), metrics.Nop{}, WithMaxBarsPerSecond(0))
	ctx := context.Background()

	if err := p.Process(ctx, bar("AAPL")); err != nil {
		t.Fatalf("valid bar rejected: %v", err)
	}
	if err := p.Process(ctx, bar("TSLA")); !errors.Is(err, ErrNotWatched) {
		t.Fatalf("expected ErrNotWatched, got %v", err)
	}
	bad := bar("AAPL")
	bad.High = 100
	if err := p.Process(ctx, bad); !errors.Is(err, ErrInvalidBar) {
		t.Fatalf("expected ErrInvalidBar, got %v", err)
	}
	if len(proc.bars) != 1 {
		t.Fatalf("expected 1 forwarded bar, got %d", len(proc.bars))
	}
}

func TestBarPipelineThrottlesPerInstrument(t *testing.T) {
	proc := &recordingProc{}
	p := NewBarPipeline(proc, models.NewWatchlist([]string{"AAPL", "MSFT"}), metrics.Nop{}, WithMaxBarsPerSecond(2))
	ctx := context.Background()

	throttled := 0
	for i := 0; i < 5; i++ {
		if err := p.Process(ctx, bar("AAPL")); errors.Is(err, ErrThrottled) {
			throttled++
		}
	}
	if throttled == 0 {
		t.Fatalf("expected some AAPL bars throttled")
	}
	if err := p.Process(ctx, bar("MSFT")); err != nil {
		t.Fatalf("MSFT should have its own budget: %v", err)
	}
}

func TestValidateBar(t *testing.T) {
	cases := map[string]func(b *models.Bar){
		"empty instrument": func(b *models.Bar) { b.Instrument = "" },
		"zero open":        func(b *models.Bar) { b.Open = 0 },
		"reversed window":  func(b *models.Bar) { b.WindowEnd = b.WindowStart.Add(-time.Second) },
		"negative volume":  func(b *models.Bar) { b.Volume = -1 },
	}
	for name, mutate := range cases {
		b := bar("AAPL")
		mutate(b)
		if err := ValidateBar(b); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if err := ValidateBar(nil); err == nil {
		t.Fatalf("nil bar should fail")
	}
}
