package feed

import (
	"testing"
	"time"
)

func TestDecodeFrameArrayAndSingle(t *testing.T) {
	arr := `[{"ev":"status","status":"connected","message":"Connected Successfully"},
	{"ev":"AM","sym":"aapl","o":150,"h":151.2,"l":149.8,"c":151,"v":1200,"s":1728568800000,"e":1728568860000},
	{"ev":"AM","sym":"MSFT","o":410,"h":411,"l":409,"c":410.5,"v":800,"s":1728568800000,"e":1728568860000}]`
	f, err := DecodeFrame([]byte(arr))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(f.Statuses) != 1 || f.Statuses[0].Status != "connected" {
		t.Fatalf("unexpected statuses %+v", f.Statuses)
	}
	if len(f.Bars) != 2 || f.Bars[0].Instrument != "AAPL" {
		t.Fatalf("unexpected bars %+v", f.Bars)
	}
	if !f.Bars[0].WindowStart.Equal(time.UnixMilli(1728568800000)) {
		t.Fatalf("unexpected window start %v", f.Bars[0].WindowStart)
	}

	single := `{"ev":"AM","sym":"TSLA","o":1,"h":1,"l":1,"c":1,"v":1,"s":1728568800000,"e":1728568860000}`
	f, err = DecodeFrame([]byte(single))
	if err != nil || len(f.Bars) != 1 {
		t.Fatalf("single frame: %+v %v", f, err)
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	if _, err := DecodeFrame([]byte("not json")); err == nil {
		t.Fatalf("expected error for non-json frame")
	}
	f, err := DecodeFrame([]byte(`[{"ev":"AM","sym":"","s":1,"e":2},{"ev":"T","sym":"AAPL"},"oops",{"ev":"AM","sym":"AAPL","o":1,"h":1,"l":1,"c":1,"v":1,"s":1728568800000,"e":1728568860000}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Malformed != 3 || len(f.Bars) != 1 {
		t.Fatalf("expected 3 malformed and 1 bar, got %+v", f)
	}
}

func TestDecodeKafkaBar(t *testing.T) {
	bar, err := DecodeKafkaBar([]byte(`{"instrument":"aapl","open":150,"high":151,"low":149,"close":151,"volume":10,"window_start":"2024-10-10T14:00:00Z","window_end":1728569100000}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bar.Instrument != "AAPL" || !bar.WindowStart.Equal(time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected bar %+v", bar)
	}
	if !bar.WindowEnd.Equal(time.Date(2024, 10, 10, 14, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window end %v", bar.WindowEnd)
	}
	if _, err := DecodeKafkaBar([]byte(`{"instrument":"AAPL","window_start":null}`)); err == nil {
		t.Fatalf("expected error for missing timestamps")
	}
}
