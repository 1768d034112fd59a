package objstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when no object exists under the key.
	ErrNotFound = errors.New("objstore: not found")
	// ErrLocked is returned by TryLock when another holder owns the lock.
	ErrLocked = errors.New("objstore: locked")
)

// Store is a path-addressable object store. Put replaces the whole value atomically.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
	// List returns the keys starting with prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
	Health(ctx context.Context) error
	Close() error
}

// Locker grants advisory named locks. The returned func releases the lock.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// NopLocker always grants the lock.
type NopLocker struct{}

func (NopLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
