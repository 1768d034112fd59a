package models

import "time"

// Bar is one decoded aggregate message from the market feed.
type Bar struct {
	Instrument  string    `json:"instrument"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// RawBar is one instrument's OHLCV for one closed window. Written once, never updated.
type RawBar struct {
	Instrument  string    `json:"instrument"`
	Date        string    `json:"date"`
	WindowStart time.Time `json:"window_start"`
	Timestamp   time.Time `json:"timestamp"` // window end
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	BarCount    int       `json:"bar_count"`

	// first/last source bar bounds, used while merging out-of-order bars
	firstAt time.Time
	lastAt  time.Time
}

// NewRawBar starts a window buffer from its first bar.
func NewRawBar(b *Bar, windowStart, windowEnd time.Time, date string) *RawBar {
	return &RawBar{
		Instrument:  b.Instrument,
		Date:        date,
		WindowStart: windowStart,
		Timestamp:   windowEnd,
		Open:        b.Open,
		High:        b.High,
		Low:         b.Low,
		Close:       b.Close,
		Volume:      b.Volume,
		BarCount:    1,
		firstAt:     b.WindowStart,
		lastAt:      b.WindowStart,
	}
}

// Merge folds b into the window. Open follows the earliest bar and close the latest,
// so delivery order does not matter.
func (r *RawBar) Merge(b *Bar) {
	if b.WindowStart.Before(r.firstAt) {
		r.firstAt = b.WindowStart
		r.Open = b.Open
	}
	if !b.WindowStart.Before(r.lastAt) {
		r.lastAt = b.WindowStart
		r.Close = b.Close
	}
	if b.High > r.High {
		r.High = b.High
	}
	if b.Low < r.Low {
		r.Low = b.Low
	}
	r.Volume += b.Volume
	r.BarCount++
}

// Return is (close-open)/open, zero for a non-positive open.
func (r *RawBar) Return() float64 {
	if r.Open <= 0 {
		return 0
	}
	return (r.Close - r.Open) / r.Open
}

// RangeRatio is (high-low)/open, zero for a non-positive open.
func (r *RawBar) RangeRatio() float64 {
	if r.Open <= 0 {
		return 0
	}
	return (r.High - r.Low) / r.Open
}
