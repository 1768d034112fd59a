package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"DualSignal/internal/domain/models"
	icache "DualSignal/internal/service/cache"
	xhttp "DualSignal/pkg/http"
	xlogger "DualSignal/pkg/logger"

	"github.com/labstack/echo/v4"
)

type fakeReader struct {
	calls atomic.Int32
	watch models.Watchlist
}

func (f *fakeReader) GetDualSignal(_ context.Context, instrument string) (*models.DualSignalResponse, error) {
	f.calls.Add(1)
	resp := &models.DualSignalResponse{Timestamp: time.Unix(0, 0).UTC(), Date: "2024-10-10", Rows: []models.DualSignalRow{}}
	insts, err := f.watch.Resolve(instrument)
	if err != nil {
		resp.Error = err.Error()
		return resp, err
	}
	for _, inst := range insts {
		resp.Rows = append(resp.Rows, models.DualSignalRow{
			Instrument:  inst,
			Convergence: models.ConvergenceBlock{Status: models.StateWarmingUp},
		})
	}
	resp.Success = true
	resp.TotalInstruments = len(insts)
	return resp, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(context.Context) error { return f.err }

func newTestEcho(h *DualSignalHandler) *echo.Echo {
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDualSignalEndpoint(t *testing.T) {
	reader := &fakeReader{watch: models.NewWatchlist([]string{"AAPL", "MSFT"})}
	e := newTestEcho(NewDualSignalHandler(xlogger.Nop(), reader, nil))

	tests := []struct {
		name    string
		target  string
		status  int
		success bool
		rows    int
	}{
		{"all instruments", "/api/dual-signal", http.StatusOK, true, 2},
		{"filtered", "/api/dual-signal?instrument=aapl", http.StatusOK, true, 1},
		{"unknown instrument", "/api/dual-signal?instrument=TSLA", http.StatusBadRequest, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(e, tt.target)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			var resp models.DualSignalResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Success != tt.success || len(resp.Rows) != tt.rows {
				t.Fatalf("unexpected response %+v", resp)
			}
		})
	}
}

func TestDualSignalEndpointEmptyWatchlist(t *testing.T) {
	e := newTestEcho(NewDualSignalHandler(xlogger.Nop(), &fakeReader{}, nil))
	rec := get(e, "/api/dual-signal")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("unexpected %d %s", rec.Code, rec.Body.String())
	}
}

func TestDualSignalEndpointValidation(t *testing.T) {
	reader := &fakeReader{watch: models.NewWatchlist([]string{"AAPL"})}
	e := newTestEcho(NewDualSignalHandler(xlogger.Nop(), reader, nil))

	rec := get(e, "/api/dual-signal?instrument="+strings.Repeat("X", 20))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status int                     `json:"status"`
		Data   []xhttp.ValidationError `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].Field != "instrument" || body.Data[0].Code != "ERR_MAX" {
		t.Fatalf("unexpected validation body %+v", body)
	}
	if reader.calls.Load() != 0 {
		t.Fatalf("service must not be called for invalid input")
	}
}

func TestDualSignalEndpointCache(t *testing.T) {
	reader := &fakeReader{watch: models.NewWatchlist([]string{"AAPL"})}
	h := NewDualSignalHandler(xlogger.Nop(), reader, nil)
	h.SetCache(icache.NewTTLCache(), time.Minute)
	e := newTestEcho(h)

	first := get(e, "/api/dual-signal")
	second := get(e, "/api/dual-signal")
	if first.Header().Get("X-Cache") != "MISS" || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("cache headers %q %q", first.Header().Get("X-Cache"), second.Header().Get("X-Cache"))
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("cached body differs")
	}
	if reader.calls.Load() != 1 {
		t.Fatalf("service called %d times", reader.calls.Load())
	}

	// failures are never cached
	get(e, "/api/dual-signal?instrument=TSLA")
	get(e, "/api/dual-signal?instrument=TSLA")
	if reader.calls.Load() != 3 {
		t.Fatalf("error responses must bypass the cache, calls=%d", reader.calls.Load())
	}
}

func TestHealth(t *testing.T) {
	ok := get(newTestEcho(NewDualSignalHandler(xlogger.Nop(), &fakeReader{}, fakeHealth{})), "/healthz")
	if ok.Code != http.StatusOK {
		t.Fatalf("healthy store: %d", ok.Code)
	}
	bad := get(newTestEcho(NewDualSignalHandler(xlogger.Nop(), &fakeReader{}, fakeHealth{err: errors.New("dial tcp: refused")})), "/healthz")
	if bad.Code != http.StatusServiceUnavailable || !strings.Contains(bad.Body.String(), "degraded") {
		t.Fatalf("unhealthy store: %d %s", bad.Code, bad.Body.String())
	}
}
