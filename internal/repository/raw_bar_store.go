package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"DualSignal/internal/domain/models"
	"DualSignal/internal/domain/repository"
	applogger "DualSignal/pkg/logger"
	"DualSignal/pkg/objstore"
)

// RawBarStore writes one object per closed window.
type RawBarStore struct {
	store objstore.Store
	log   *applogger.Logger
}

func NewRawBarStore(store objstore.Store, log *applogger.Logger) repository.RawBarStore {
	return &RawBarStore{store: store, log: log.Named("raw_bar_store")}
}

func (s *RawBarStore) Save(ctx context.Context, bar *models.RawBar) error {
	body, err := json.Marshal(bar)
	if err != nil {
		return fmt.Errorf("marshal raw bar: %w", err)
	}
	return s.store.Put(ctx, RawBarKey(bar.Date, bar.Instrument, bar.WindowStart), body)
}

// ListDay loads every window of instrument on date, oldest first. Unreadable objects are skipped.
func (s *RawBarStore) ListDay(ctx context.Context, date, instrument string) ([]*models.RawBar, error) {
	keys, err := s.store.List(ctx, RawBarPrefix(date, instrument))
	if err != nil {
		return nil, fmt.Errorf("list raw bars: %w", err)
	}
	bars := make([]*models.RawBar, 0, len(keys))
	for _, k := range keys {
		body, err := s.store.Get(ctx, k)
		if err != nil {
			if errors.Is(err, objstore.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get raw bar %s: %w", k, err)
		}
		var bar models.RawBar
		if err := json.Unmarshal(body, &bar); err != nil {
			s.log.Warn("skip corrupt raw bar", applogger.String("key", k), applogger.Error(err))
			continue
		}
		bars = append(bars, &bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}
