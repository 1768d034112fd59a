package models

import (
	"errors"
	"strings"
)

var (
	ErrEmptyWatchlist    = errors.New("watchlist is empty")
	ErrUnknownInstrument = errors.New("instrument not in watchlist")
)

// Watchlist is the fixed instrument set shared by every component. Immutable after construction.
type Watchlist struct {
	items []string
	index map[string]struct{}
}

// NewWatchlist normalises symbols to upper case and drops blanks and duplicates.
func NewWatchlist(symbols []string) Watchlist {
	w := Watchlist{index: make(map[string]struct{}, len(symbols))}
	for _, s := range symbols {
		s = NormalizeInstrument(s)
		if s == "" {
			continue
		}
		if _, ok := w.index[s]; ok {
			continue
		}
		w.index[s] = struct{}{}
		w.items = append(w.items, s)
	}
	return w
}

func NormalizeInstrument(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Instruments returns a copy of the list in configured order.
func (w Watchlist) Instruments() []string {
	out := make([]string, len(w.items))
	copy(out, w.items)
	return out
}

func (w Watchlist) Contains(instrument string) bool {
	_, ok := w.index[NormalizeInstrument(instrument)]
	return ok
}

func (w Watchlist) Len() int { return len(w.items) }

// Resolve returns the instruments a request should cover.
func (w Watchlist) Resolve(filter string) ([]string, error) {
	if w.Len() == 0 {
		return nil, ErrEmptyWatchlist
	}
	filter = NormalizeInstrument(filter)
	if filter == "" {
		return w.Instruments(), nil
	}
	if !w.Contains(filter) {
		return nil, ErrUnknownInstrument
	}
	return []string{filter}, nil
}
