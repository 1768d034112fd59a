package models

import (
	"sort"
	"time"
)

// ComputeObservation is one normalized signal point for an instrument.
type ComputeObservation struct {
	Instrument string    `json:"instrument"`
	Timestamp  time.Time `json:"timestamp"`
	Return     float64   `json:"return"`
	Volatility float64   `json:"volatility"`
	Signal     float64   `json:"signal"`
	RangeRatio float64   `json:"range_ratio"`
}

// ObservationKey identifies an observation inside a day's series.
type ObservationKey struct {
	Instrument string
	UnixNano   int64
}

func (o ComputeObservation) Key() ObservationKey {
	return ObservationKey{Instrument: o.Instrument, UnixNano: o.Timestamp.UnixNano()}
}

// ComputeSeriesFile holds every observation produced for one day,
// unique by (instrument, timestamp) and sorted by (timestamp, instrument).
type ComputeSeriesFile struct {
	Date         string               `json:"date"`
	Observations []ComputeObservation `json:"observations"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Merge adds incoming observations that are not already present and re-sorts.
// Existing entries win on key collision. Returns the number of entries added.
func (f *ComputeSeriesFile) Merge(incoming []ComputeObservation) int {
	seen := make(map[ObservationKey]struct{}, len(f.Observations)+len(incoming))
	out := make([]ComputeObservation, 0, len(f.Observations)+len(incoming))
	for _, o := range f.Observations {
		if _, dup := seen[o.Key()]; dup {
			continue
		}
		seen[o.Key()] = struct{}{}
		out = append(out, o)
	}
	before := len(out)
	for _, o := range incoming {
		if _, dup := seen[o.Key()]; dup {
			continue
		}
		seen[o.Key()] = struct{}{}
		out = append(out, o)
	}
	SortObservations(out)
	f.Observations = out
	return len(out) - before
}

// Latest returns the newest observation per instrument.
func (f *ComputeSeriesFile) Latest() map[string]ComputeObservation {
	out := make(map[string]ComputeObservation)
	if f == nil {
		return out
	}
	for _, o := range f.Observations {
		if cur, ok := out[o.Instrument]; !ok || o.Timestamp.After(cur.Timestamp) {
			out[o.Instrument] = o
		}
	}
	return out
}

// ByInstrument groups observations per instrument, keeping file order.
func (f *ComputeSeriesFile) ByInstrument() map[string][]ComputeObservation {
	out := make(map[string][]ComputeObservation)
	if f == nil {
		return out
	}
	for _, o := range f.Observations {
		out[o.Instrument] = append(out[o.Instrument], o)
	}
	return out
}

// SortObservations orders by (timestamp, instrument).
func SortObservations(obs []ComputeObservation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if !obs[i].Timestamp.Equal(obs[j].Timestamp) {
			return obs[i].Timestamp.Before(obs[j].Timestamp)
		}
		return obs[i].Instrument < obs[j].Instrument
	})
}

// IsSorted reports whether obs satisfies the series ordering and uniqueness.
func IsSorted(obs []ComputeObservation) bool {
	for i := 1; i < len(obs); i++ {
		a, b := obs[i-1], obs[i]
		if a.Timestamp.After(b.Timestamp) {
			return false
		}
		if a.Timestamp.Equal(b.Timestamp) && a.Instrument >= b.Instrument {
			return false
		}
	}
	return true
}
