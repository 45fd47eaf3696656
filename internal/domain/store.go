package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore is the durable append-only position log. Positions are
// inserted once at open and receive exactly one close update; they are never
// deleted by the trading path.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Close(ctx context.Context, id string, exit PositionExit) error
	GetOpen(ctx context.Context, pair string) ([]Position, error)
	GetByID(ctx context.Context, id string) (Position, error)
	ListHistory(ctx context.Context, pair string, opts ListOpts) ([]Position, error)
	ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Position, error)
}

// Baseline is the daily risk baseline for one trading pair.
type Baseline struct {
	Pair      string
	Value     float64
	UpdatedAt time.Time
}

// BaselineStore persists the single mutable daily-baseline record per pair.
type BaselineStore interface {
	Get(ctx context.Context, pair string) (Baseline, error)
	Upsert(ctx context.Context, b Baseline) error
}

// PriceCache provides fast access to the last observed price per pair.
type PriceCache interface {
	SetPrice(ctx context.Context, pair string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, pair string) (float64, time.Time, error)
}

// BlobWriter stores an object under key in the configured bucket.
type BlobWriter interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
}

// LockManager provides distributed mutual exclusion, used to guarantee a
// single trading instance per pair. Acquire returns ErrLockHeld when another
// holder owns the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
