package adapters

import (
	"context"
	"fxquotes/internal/domain"
	"time"
)

type FeedClient interface {
	Fetch(ctx context.Context, date time.Time) ([]domain.Quote, error)
}

type QuoteRepository interface {
	Upsert(ctx context.Context, quotes []domain.Quote) (int64, error)
	HasAny(ctx context.Context) (bool, error)
	ExistsForDate(ctx context.Context, date time.Time) (bool, error)
	ExistsForDateCurrency(ctx context.Context, date time.Time, code string) (bool, error)
	QueryByCurrency(ctx context.Context, code string, since *time.Time) ([]domain.Quote, error)
	QueryByDate(ctx context.Context, date time.Time) ([]domain.Quote, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CacheStore is a byte-oriented key-value store with expiring entries.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// SetIfAbsent stores value only when key is not present and reports whether it did.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}
