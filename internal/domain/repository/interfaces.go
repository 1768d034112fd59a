package repository

import (
	"context"
	"time"

	"DualSignal/internal/domain/models"
)

// MarketStream is a live per-instrument bar feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// EventPublisher announces closed windows to downstream consumers.
type EventPublisher interface {
	PublishWindowClosed(ctx context.Context, bar *models.RawBar) error
	Close() error
}

// RawBarStore persists closed windows. Bars are immutable once saved.
type RawBarStore interface {
	Save(ctx context.Context, bar *models.RawBar) error
	ListDay(ctx context.Context, date, instrument string) ([]*models.RawBar, error)
}

// ComputeSeriesStore holds one ComputeSeriesFile per day.
// Load returns an empty file when the object is absent or unreadable; err is reserved for storage failures.
type ComputeSeriesStore interface {
	Load(ctx context.Context, date string) (*models.ComputeSeriesFile, error)
	Save(ctx context.Context, file *models.ComputeSeriesFile) error
}

// LearningResultStore holds one LearningResultFile per day, with the same Load contract.
type LearningResultStore interface {
	Load(ctx context.Context, date string) (*models.LearningResultFile, error)
	Save(ctx context.Context, file *models.LearningResultFile) error
}

// Locker grants advisory named locks shared across processes.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// Metrics is implemented by pkg/metrics.
type Metrics interface {
	RecordBarReceived(instrument string)
	RecordBarDropped(reason string)
	RecordWindowFlushed(instrument string)
	RecordReconnect()
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordObservations(n int)
	RecordLearningResult(instrument string, state models.ConvergenceState)
	RecordLearningSkipped(reason string)
}
