package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"DualSignal/internal/domain/models"
	"DualSignal/pkg/util"
)

// Status is a non-bar control event (handshake, auth and subscription acks).
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Frame is the decoded content of one websocket frame.
type Frame struct {
	Bars     []*models.Bar
	Statuses []Status
	// Malformed counts elements that were dropped.
	Malformed int
}

type wireEvent struct {
	Ev      string  `json:"ev"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Sym     string  `json:"sym"`
	Open    float64 `json:"o"`
	High    float64 `json:"h"`
	Low     float64 `json:"l"`
	Close   float64 `json:"c"`
	Volume  float64 `json:"v"`
	Start   int64   `json:"s"`
	End     int64   `json:"e"`
}

// DecodeFrame accepts a single event object or an array of them.
// It returns an error only when the frame is not JSON at all.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return f, fmt.Errorf("empty frame")
	}

	var elems []json.RawMessage
	if b[0] == '[' {
		if err := json.Unmarshal(b, &elems); err != nil {
			return f, fmt.Errorf("decode frame: %w", err)
		}
	} else {
		if !json.Valid(b) {
			return f, fmt.Errorf("decode frame: invalid json")
		}
		elems = []json.RawMessage{b}
	}

	for _, raw := range elems {
		var ev wireEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			f.Malformed++
			continue
		}
		switch ev.Ev {
		case "status":
			f.Statuses = append(f.Statuses, Status{Status: ev.Status, Message: ev.Message})
		case "AM", "A":
			bar, ok := ev.bar()
			if !ok {
				f.Malformed++
				continue
			}
			f.Bars = append(f.Bars, bar)
		default:
			f.Malformed++
		}
	}
	return f, nil
}

func (ev wireEvent) bar() (*models.Bar, bool) {
	if ev.Sym == "" || ev.Start <= 0 || ev.End <= 0 {
		return nil, false
	}
	return &models.Bar{
		Instrument:  models.NormalizeInstrument(ev.Sym),
		Open:        ev.Open,
		High:        ev.High,
		Low:         ev.Low,
		Close:       ev.Close,
		Volume:      ev.Volume,
		WindowStart: time.UnixMilli(ev.Start).UTC(),
		WindowEnd:   time.UnixMilli(ev.End).UTC(),
	}, true
}

type kafkaBar struct {
	Instrument  string          `json:"instrument"`
	Open        float64         `json:"open"`
	High        float64         `json:"high"`
	Low         float64         `json:"low"`
	Close       float64         `json:"close"`
	Volume      float64         `json:"volume"`
	WindowStart json.RawMessage `json:"window_start"`
	WindowEnd   json.RawMessage `json:"window_end"`
}

// DecodeKafkaBar decodes the generic bar message carried on the Kafka feed topic.
// Timestamps may be RFC3339 strings or unix seconds/milliseconds.
func DecodeKafkaBar(b []byte) (*models.Bar, error) {
	var m kafkaBar
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode bar: %w", err)
	}
	if m.Instrument == "" {
		return nil, fmt.Errorf("decode bar: missing instrument")
	}
	start, ok := parseTimestamp(m.WindowStart)
	if !ok {
		return nil, fmt.Errorf("decode bar: bad window_start")
	}
	end, ok := parseTimestamp(m.WindowEnd)
	if !ok {
		return nil, fmt.Errorf("decode bar: bad window_end")
	}
	return &models.Bar{
		Instrument:  models.NormalizeInstrument(m.Instrument),
		Open:        m.Open,
		High:        m.High,
		Low:         m.Low,
		Close:       m.Close,
		Volume:      m.Volume,
		WindowStart: start,
		WindowEnd:   end,
	}, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return util.FromUnixAuto(int64(f)), f > 0
	}
	return util.ParseTime(s)
}
