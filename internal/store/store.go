package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrConditionFailed is returned by Put when PutOptions.IfNotExists is
	// set and a row already exists for the key.
	ErrConditionFailed = errors.New("condition check failed")
	// ErrInvalidStartKey is returned by Scan for a start key it did not issue.
	ErrInvalidStartKey = errors.New("invalid start key")
)

// Record is one stored reading, addressed by (SessionID, Timestamp).
type Record struct {
	SessionID        string
	Timestamp        string
	SensorName       string
	Temperature      float64
	RateOfRise       float64
	Unit             string
	SessionStartTime string
	CreatedAt        time.Time
	ExpiresAt        int64
}

type PutOptions struct {
	IfNotExists bool
}

// ScanPage is one batch of a table scan. LastKey is nil once the scan is
// exhausted; otherwise it is an opaque token to resume from.
type ScanPage struct {
	Records []Record
	LastKey []byte
}

// Store is the append-only reading table.
type Store interface {
	// Put writes rec, replacing any row with the same key unless
	// opts.IfNotExists is set.
	Put(ctx context.Context, rec Record, opts PutOptions) error
	// Query returns every row of a session in ascending timestamp order.
	Query(ctx context.Context, sessionID string) ([]Record, error)
	// Scan returns up to limit rows starting after startKey.
	Scan(ctx context.Context, limit int, startKey []byte) (ScanPage, error)
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Key is the continuation position shared by all store implementations.
type Key struct {
	SessionID string `json:"sessionId" dynamodbav:"sessionId"`
	Timestamp string `json:"timestamp" dynamodbav:"timestamp"`
}

func encodeKey(k Key) []byte {
	b, _ := json.Marshal(k)
	return b
}

func decodeKey(b []byte) (Key, error) {
	var k Key
	if err := json.Unmarshal(b, &k); err != nil {
		return Key{}, ErrInvalidStartKey
	}
	if strings.TrimSpace(k.SessionID) == "" {
		return Key{}, ErrInvalidStartKey
	}
	return k, nil
}
