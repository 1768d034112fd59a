package usecase

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"DualSignal/internal/domain/models"
	"DualSignal/internal/repository"
	applogger "DualSignal/pkg/logger"
	"DualSignal/pkg/metrics"
	"DualSignal/pkg/objstore"
)

type computeFixture struct {
	mem    *objstore.MemoryStore
	raw    *repository.RawBarStore
	series *repository.ComputeSeriesStore
	worker *ComputeWorker
}

func newComputeFixture(store objstore.Store, watch ...string) *computeFixture {
	mem, _ := store.(*objstore.MemoryStore)
	raw := repository.NewRawBarStore(store, applogger.Nop()).(*repository.RawBarStore)
	series := repository.NewComputeSeriesStore(store, applogger.Nop()).(*repository.ComputeSeriesStore)
	w := NewComputeWorker(raw, series, objstore.NopLocker{}, models.NewWatchlist(watch), metrics.Nop{}, applogger.Nop(), ComputeOptions{})
	return &computeFixture{mem: mem, raw: raw, series: series, worker: w}
}

func saveWindow(t *testing.T, raw *repository.RawBarStore, inst string, end time.Time, open, close float64) {
	t.Helper()
	hi, lo := math.Max(open, close), math.Min(open, close)
	bar := &models.RawBar{
		Instrument:  inst,
		Date:        end.Add(-5 * time.Minute).Format("2006-01-02"),
		WindowStart: end.Add(-5 * time.Minute),
		Timestamp:   end,
		Open:        open,
		High:        hi,
		Low:         lo,
		Close:       close,
		BarCount:    1,
	}
	if err := raw.Save(context.Background(), bar); err != nil {
		t.Fatalf("save window: %v", err)
	}
}

func TestComputeWorkerExampleAndIdempotency(t *testing.T) {
	ctx := context.Background()
	f := newComputeFixture(objstore.NewMemoryStore(), "AAPL", "MSFT")
	ten := time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)
	saveWindow(t, f.raw, "AAPL", ten, 150, 151)
	saveWindow(t, f.raw, "AAPL", ten.Add(5*time.Minute), 151, 150.5)

	res, err := f.worker.Run(ctx, ten.Add(6*time.Minute))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Computed != 1 || res.Skipped != 1 || !res.Written {
		t.Fatalf("unexpected result %+v", res)
	}

	file, _ := f.series.Load(ctx, "2024-10-10")
	if len(file.Observations) != 1 {
		t.Fatalf("expected one observation, got %d", len(file.Observations))
	}
	o := file.Observations[0]
	if o.Instrument != "AAPL" || !o.Timestamp.Equal(ten.Add(5*time.Minute)) {
		t.Fatalf("unexpected observation %+v", o)
	}
	if math.Abs(o.Return-(-0.0033)) > 1e-4 {
		t.Fatalf("return = %v, want about -0.0033", o.Return)
	}
	r0, r1 := 1.0/150, -0.5/151
	wantVol := math.Abs(r0-r1)/2 + 1e-4
	if math.Abs(o.Volatility-wantVol) > 1e-12 || math.Abs(o.Signal-o.Return/o.Volatility) > 1e-9 {
		t.Fatalf("unexpected volatility/signal %+v", o)
	}

	before, _ := f.mem.Get(ctx, repository.ComputeSeriesKey("2024-10-10"))
	res, err = f.worker.Run(ctx, ten.Add(7*time.Minute))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Added != 0 || res.Written {
		t.Fatalf("second run must not add entries: %+v", res)
	}
	after, _ := f.mem.Get(ctx, repository.ComputeSeriesKey("2024-10-10"))
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("file changed on identical rerun")
	}
}

func TestComputeWorkerSortInvariant(t *testing.T) {
	ctx := context.Background()
	f := newComputeFixture(objstore.NewMemoryStore(), "MSFT", "AAPL", "NVDA")
	base := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)

	// windows close in scrambled order across runs
	steps := []struct {
		inst string
		min  int
	}{
		{"NVDA", 5}, {"MSFT", 5}, {"AAPL", 10}, {"MSFT", 15}, {"AAPL", 5}, {"NVDA", 15},
	}
	for i, s := range steps {
		saveWindow(t, f.raw, s.inst, base.Add(time.Duration(s.min)*time.Minute), 100, 100+float64(i))
		if _, err := f.worker.Run(ctx, base.Add(time.Hour)); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		file, _ := f.series.Load(ctx, "2024-10-10")
		if !models.IsSorted(file.Observations) {
			t.Fatalf("run %d left series unsorted: %+v", i, file.Observations)
		}
	}
}

func TestComputeWorkerStorageFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	mem := objstore.NewMemoryStore()
	seed := newComputeFixture(mem, "AAPL")
	saveWindow(t, seed.raw, "AAPL", time.Date(2024, 10, 10, 14, 5, 0, 0, time.UTC), 100, 101)

	flaky := &flakyStore{Store: mem, fails: 1}
	f := newComputeFixture(flaky, "AAPL")
	if _, err := f.worker.Run(ctx, time.Date(2024, 10, 10, 14, 6, 0, 0, time.UTC)); err == nil {
		t.Fatalf("expected storage error")
	}
	if _, err := mem.Get(ctx, repository.ComputeSeriesKey("2024-10-10")); err != objstore.ErrNotFound {
		t.Fatalf("failed run must not leave a file: %v", err)
	}

	// next invocation catches up
	res, err := f.worker.Run(ctx, time.Date(2024, 10, 10, 14, 11, 0, 0, time.UTC))
	if err != nil || !res.Written {
		t.Fatalf("retry should succeed: %+v %v", res, err)
	}
}

func TestComputeWorkerSkipsWhenLocked(t *testing.T) {
	ctx := context.Background()
	mem := objstore.NewMemoryStore()
	f := newComputeFixture(mem, "AAPL")
	f.worker.locker = mem
	if _, err := mem.TryLock(ctx, repository.ComputeLockName("2024-10-10"), time.Hour); err != nil {
		t.Fatalf("lock: %v", err)
	}
	res, err := f.worker.Run(ctx, time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC))
	if err != nil || !res.Locked {
		t.Fatalf("expected skipped locked run, got %+v %v", res, err)
	}
}
