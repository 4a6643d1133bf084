package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingStore retries Query and Scan on transient failures. Put is passed
// through untouched; a retried write could resurrect an overwritten value.
type RetryingStore struct {
	Store
	Attempts        int
	InitialInterval time.Duration
}

// WithReadRetries wraps s so reads are retried up to n extra times. It
// returns s unchanged when n <= 0.
func WithReadRetries(s Store, n int) Store {
	if n <= 0 {
		return s
	}
	return &RetryingStore{Store: s, Attempts: n, InitialInterval: 50 * time.Millisecond}
}

func (r *RetryingStore) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.Attempts)), ctx)
}

func permanent(err error) error {
	if errors.Is(err, ErrInvalidStartKey) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}

func (r *RetryingStore) Query(ctx context.Context, sessionID string) ([]Record, error) {
	var out []Record
	err := backoff.Retry(func() error {
		rows, err := r.Store.Query(ctx, sessionID)
		if err != nil {
			return permanent(err)
		}
		out = rows
		return nil
	}, r.policy(ctx))
	return out, err
}

func (r *RetryingStore) Scan(ctx context.Context, limit int, startKey []byte) (ScanPage, error) {
	var out ScanPage
	err := backoff.Retry(func() error {
		page, err := r.Store.Scan(ctx, limit, startKey)
		if err != nil {
			return permanent(err)
		}
		out = page
		return nil
	}, r.policy(ctx))
	return out, err
}

// Ping forwards to the wrapped store when it supports it.
func (r *RetryingStore) Ping(ctx context.Context) error {
	if p, ok := r.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
