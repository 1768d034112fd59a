package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"DualSignal/internal/domain/models"
	"DualSignal/internal/repository"
	applogger "DualSignal/pkg/logger"
	"DualSignal/pkg/metrics"
	"DualSignal/pkg/objstore"
)

// stallingStore blocks reads of one key until the caller gives up.
type stallingStore struct {
	objstore.Store
	key string
}

func (s stallingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == s.key {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Store.Get(ctx, key)
}

var queryTime = time.Date(2024, 10, 10, 16, 0, 0, 0, time.UTC)

func newDualSignalService(store objstore.Store, watch ...string) *DualSignalService {
	svc := NewDualSignalService(
		repository.NewComputeSeriesStore(store, applogger.Nop()),
		repository.NewLearningResultStore(store, applogger.Nop()),
		models.NewWatchlist(watch), metrics.Nop{}, applogger.Nop(), 50*time.Millisecond, time.UTC)
	svc.now = func() time.Time { return queryTime }
	return svc
}

func seedLearning(t *testing.T, store objstore.Store, results ...models.LearningModelResult) {
	t.Helper()
	file := &models.LearningResultFile{Date: "2024-10-10"}
	for _, r := range results {
		file.Upsert(r)
	}
	if err := repository.NewLearningResultStore(store, applogger.Nop()).Save(context.Background(), file); err != nil {
		t.Fatalf("seed learning: %v", err)
	}
}

func TestDualSignalLearningAbsent(t *testing.T) {
	mem := objstore.NewMemoryStore()
	seedSeries(t, repository.NewComputeSeriesStore(mem, applogger.Nop()), "2024-10-10",
		synthObservations("AAPL", sessionOpen, 4, 0),
		synthObservations("MSFT", sessionOpen, 2, 1))
	svc := newDualSignalService(mem, "AAPL", "MSFT", "NVDA")

	resp, err := svc.GetDualSignal(context.Background(), "")
	if err != nil || !resp.Success {
		t.Fatalf("expected success, got %+v %v", resp, err)
	}
	if len(resp.Rows) != 3 || resp.TotalInstruments != 3 {
		t.Fatalf("expected 3 rows, got %d", len(resp.Rows))
	}
	want := models.DataStatus{ComputeAvailable: true, LearningAvailable: false, ComputeCount: 2, LearningCount: 0}
	if resp.DataStatus != want {
		t.Fatalf("data status = %+v", resp.DataStatus)
	}
	for _, row := range resp.Rows {
		if row.Learning != nil || row.Diff.SignalDiff != nil || row.Diff.R2Diff != nil || row.Diff.MAEDiff != nil {
			t.Fatalf("%s: diffs must be null without learning data: %+v", row.Instrument, row)
		}
		if row.Convergence.Status != models.StateWarmingUp || row.Convergence.Progress != 0 {
			t.Fatalf("%s: expected warming_up, got %+v", row.Instrument, row.Convergence)
		}
	}
	if aapl := resp.Rows[0]; aapl.Compute == nil || aapl.Compute.BaselineR2 == nil {
		t.Fatalf("AAPL should carry a baseline: %+v", aapl.Compute)
	}
	if msft := resp.Rows[1]; msft.Compute == nil || msft.Compute.BaselineR2 != nil {
		t.Fatalf("MSFT has too few observations for a baseline: %+v", msft.Compute)
	}
	if nvda := resp.Rows[2]; nvda.Compute != nil {
		t.Fatalf("NVDA has no compute data")
	}
}

func TestDualSignalPartialLearning(t *testing.T) {
	mem := objstore.NewMemoryStore()
	watch := make([]string, 10)
	var obs [][]models.ComputeObservation
	var results []models.LearningModelResult
	for i := range watch {
		watch[i] = fmt.Sprintf("SYM%d", i)
		obs = append(obs, synthObservations(watch[i], sessionOpen, 12, float64(i)))
		if i < 6 {
			results = append(results, models.LearningModelResult{
				Instrument: watch[i], PredictedSignal: 1.5, R2: 0.42, MAE: 0.3,
				TrainingIterations: 3, State: models.StateTraining,
			})
		}
	}
	seedSeries(t, repository.NewComputeSeriesStore(mem, applogger.Nop()), "2024-10-10", obs...)
	seedLearning(t, mem, results...)
	svc := newDualSignalService(mem, watch...)

	resp, err := svc.GetDualSignal(context.Background(), "")
	if err != nil || !resp.Success || len(resp.Rows) != 10 {
		t.Fatalf("unexpected response %+v %v", resp, err)
	}
	if resp.DataStatus.ComputeCount != 10 || resp.DataStatus.LearningCount != 6 {
		t.Fatalf("data status = %+v", resp.DataStatus)
	}
	for i, row := range resp.Rows {
		if i < 6 {
			if row.Diff.SignalDiff == nil || row.Diff.R2Diff == nil || row.Diff.MAEDiff == nil {
				t.Fatalf("%s: diffs expected: %+v", row.Instrument, row.Diff)
			}
			if math.Abs(*row.Diff.SignalDiff-(1.5-row.Compute.Signal)) > 1e-12 {
				t.Fatalf("%s: signal diff %v", row.Instrument, *row.Diff.SignalDiff)
			}
			if math.Abs(*row.Diff.R2Diff-(0.42-*row.Compute.BaselineR2)) > 1e-12 {
				t.Fatalf("%s: r2 diff %v", row.Instrument, *row.Diff.R2Diff)
			}
			if row.Convergence.Status != models.StateTraining || math.Abs(row.Convergence.Progress-42) > 1e-9 {
				t.Fatalf("%s: convergence %+v", row.Instrument, row.Convergence)
			}
			continue
		}
		if row.Learning != nil || row.Diff.SignalDiff != nil {
			t.Fatalf("%s: learning must be null: %+v", row.Instrument, row)
		}
	}
}

func TestDualSignalConvergedAndClampedProgress(t *testing.T) {
	mem := objstore.NewMemoryStore()
	seedLearning(t, mem,
		models.LearningModelResult{Instrument: "AAPL", R2: 0.3, Converged: true, State: models.StateConverged},
		models.LearningModelResult{Instrument: "MSFT", R2: -2, State: models.StateTraining})
	svc := newDualSignalService(mem, "AAPL", "MSFT")

	resp, _ := svc.GetDualSignal(context.Background(), "")
	if c := resp.Rows[0].Convergence; c.Status != models.StateConverged || c.Progress != 100 {
		t.Fatalf("AAPL convergence %+v", c)
	}
	if c := resp.Rows[1].Convergence; c.Status != models.StateTraining || c.Progress != 0 {
		t.Fatalf("MSFT convergence %+v", c)
	}
}

func TestDualSignalFilterAndUnresolvableWatchlist(t *testing.T) {
	mem := objstore.NewMemoryStore()
	svc := newDualSignalService(mem, "AAPL", "MSFT")

	resp, err := svc.GetDualSignal(context.Background(), "msft")
	if err != nil || len(resp.Rows) != 1 || resp.Rows[0].Instrument != "MSFT" || resp.TotalInstruments != 1 {
		t.Fatalf("filter: %+v %v", resp, err)
	}

	resp, err = svc.GetDualSignal(context.Background(), "TSLA")
	if !errors.Is(err, models.ErrUnknownInstrument) || resp.Success || resp.Error == "" {
		t.Fatalf("unknown instrument: %+v %v", resp, err)
	}

	empty := newDualSignalService(mem)
	resp, err = empty.GetDualSignal(context.Background(), "")
	if !errors.Is(err, models.ErrEmptyWatchlist) || resp.Success || resp.Rows == nil {
		t.Fatalf("empty watchlist: %+v %v", resp, err)
	}
}

func TestDualSignalSlowReadDegrades(t *testing.T) {
	mem := objstore.NewMemoryStore()
	seedSeries(t, repository.NewComputeSeriesStore(mem, applogger.Nop()), "2024-10-10", synthObservations("AAPL", sessionOpen, 5, 0))
	seedLearning(t, mem, models.LearningModelResult{Instrument: "AAPL", R2: 0.5, State: models.StateTraining})
	svc := newDualSignalService(stallingStore{Store: mem, key: repository.ComputeSeriesKey("2024-10-10")}, "AAPL")

	start := time.Now()
	resp, err := svc.GetDualSignal(context.Background(), "")
	if err != nil || !resp.Success {
		t.Fatalf("slow storage must degrade, got %+v %v", resp, err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("read timeout not applied")
	}
	if resp.DataStatus.ComputeAvailable || !resp.DataStatus.LearningAvailable || resp.Rows[0].Compute != nil {
		t.Fatalf("compute should be absent: %+v", resp.DataStatus)
	}
}

func TestDualSignalConcurrentCallers(t *testing.T) {
	mem := objstore.NewMemoryStore()
	seedSeries(t, repository.NewComputeSeriesStore(mem, applogger.Nop()), "2024-10-10",
		synthObservations("AAPL", sessionOpen, 15, 0),
		synthObservations("MSFT", sessionOpen, 15, 1))
	seedLearning(t, mem, models.LearningModelResult{Instrument: "AAPL", PredictedSignal: 0.7, R2: 0.8, MAE: 0.2, State: models.StateTraining})
	svc := newDualSignalService(mem, "AAPL", "MSFT")

	ref, err := svc.GetDualSignal(context.Background(), "")
	if err != nil {
		t.Fatalf("reference call: %v", err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.GetDualSignal(context.Background(), "")
			if err != nil {
				errs <- err
				return
			}
			if !reflect.DeepEqual(resp, ref) {
				errs <- fmt.Errorf("response differs under concurrency")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent call: %v", err)
	}
}
