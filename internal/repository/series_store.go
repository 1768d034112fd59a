package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"DualSignal/internal/domain/models"
	"DualSignal/internal/domain/repository"
	applogger "DualSignal/pkg/logger"
	"DualSignal/pkg/objstore"
)

// ComputeSeriesStore keeps one JSON document per day under compute/{date}.
type ComputeSeriesStore struct {
	store objstore.Store
	log   *applogger.Logger
}

func NewComputeSeriesStore(store objstore.Store, log *applogger.Logger) repository.ComputeSeriesStore {
	return &ComputeSeriesStore{store: store, log: log.Named("compute_series_store")}
}

func (s *ComputeSeriesStore) Load(ctx context.Context, date string) (*models.ComputeSeriesFile, error) {
	empty := &models.ComputeSeriesFile{Date: date}
	body, ok, err := loadObject(ctx, s.store, ComputeSeriesKey(date))
	if err != nil || !ok {
		return empty, err
	}
	var f models.ComputeSeriesFile
	if err := json.Unmarshal(body, &f); err != nil {
		s.log.Warn("compute series unreadable, treating as absent",
			applogger.String("date", date), applogger.Error(err))
		return empty, nil
	}
	f.Date = date
	models.SortObservations(f.Observations)
	return &f, nil
}

func (s *ComputeSeriesStore) Save(ctx context.Context, f *models.ComputeSeriesFile) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal compute series: %w", err)
	}
	return s.store.Put(ctx, ComputeSeriesKey(f.Date), body)
}

// LearningResultStore keeps one JSON document per day under learning/{date}.
type LearningResultStore struct {
	store objstore.Store
	log   *applogger.Logger
}

func NewLearningResultStore(store objstore.Store, log *applogger.Logger) repository.LearningResultStore {
	return &LearningResultStore{store: store, log: log.Named("learning_result_store")}
}

func (s *LearningResultStore) Load(ctx context.Context, date string) (*models.LearningResultFile, error) {
	empty := &models.LearningResultFile{Date: date, Results: map[string]models.LearningModelResult{}}
	body, ok, err := loadObject(ctx, s.store, LearningResultKey(date))
	if err != nil || !ok {
		return empty, err
	}
	var f models.LearningResultFile
	if err := json.Unmarshal(body, &f); err != nil {
		s.log.Warn("learning results unreadable, treating as absent",
			applogger.String("date", date), applogger.Error(err))
		return empty, nil
	}
	f.Date = date
	if f.Results == nil {
		f.Results = map[string]models.LearningModelResult{}
	}
	return &f, nil
}

func (s *LearningResultStore) Save(ctx context.Context, f *models.LearningResultFile) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal learning results: %w", err)
	}
	return s.store.Put(ctx, LearningResultKey(f.Date), body)
}

func loadObject(ctx context.Context, store objstore.Store, key string) ([]byte, bool, error) {
	body, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return body, true, nil
}
