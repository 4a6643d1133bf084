package readings

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/mlusby/temperature-monitor/internal/store"
	apperrors "github.com/mlusby/temperature-monitor/pkg/errors"
)

const (
	DefaultListLimit       = 50
	MaxListLimit           = 1000
	DefaultOverfetchFactor = 10
	MsgInvalidCursor       = "Invalid cursor"
)

// Lister pages through distinct sessions. Each call issues one scan of
// limit*OverfetchFactor rows and folds them into per-session aggregates;
// the cursor tracks the raw scan position, so a page may hold fewer than
// limit sessions while HasMore is still true.
type Lister struct {
	Store           store.Store
	DefaultLimit    int
	OverfetchFactor int
	Now             func() time.Time
}

type sessionAgg struct {
	summary SessionSummary
	sensors map[string]struct{}
}

func (l *Lister) List(ctx context.Context, limit int, cursor string) (*SessionPage, error) {
	if limit <= 0 {
		limit = l.DefaultLimit
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	factor := l.OverfetchFactor
	if factor <= 0 {
		factor = DefaultOverfetchFactor
	}

	startKey, err := DecodeCursor(cursor)
	if err != nil {
		return nil, apperrors.Validation(MsgInvalidCursor)
	}

	page, err := l.Store.Scan(ctx, limit*factor, startKey)
	if err != nil {
		if errors.Is(err, store.ErrInvalidStartKey) {
			return nil, apperrors.Validation(MsgInvalidCursor)
		}
		slog.Error("session scan failed", "error", err)
		return nil, apperrors.Storage(MsgInternal, err)
	}

	sessions := aggregate(page.Records)
	sort.SliceStable(sessions, func(i, j int) bool {
		return newer(sessions[i].CreatedAt, sessions[j].CreatedAt)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}

	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	out := &SessionPage{
		Sessions:      sessions,
		TotalReturned: len(sessions),
		HasMore:       page.LastKey != nil,
		RetrievedAt:   now().UTC(),
	}
	if page.LastKey != nil {
		c := EncodeCursor(page.LastKey)
		out.Cursor = &c
	}
	return out, nil
}

// aggregate folds scanned rows into sessions in first-appearance order.
func aggregate(rows []store.Record) []SessionSummary {
	index := make(map[string]int)
	var aggs []*sessionAgg
	for _, row := range rows {
		i, ok := index[row.SessionID]
		if !ok {
			i = len(aggs)
			index[row.SessionID] = i
			aggs = append(aggs, &sessionAgg{
				summary: SessionSummary{SessionID: row.SessionID, Sensors: []string{}},
				sensors: make(map[string]struct{}),
			})
		}
		a := aggs[i]
		a.summary.ReadingCount++

		if a.summary.SessionStartTime == nil && row.SessionStartTime != "" {
			start := row.SessionStartTime
			a.summary.SessionStartTime = &start
		}
		if !row.CreatedAt.IsZero() && (a.summary.CreatedAt == nil || row.CreatedAt.Before(*a.summary.CreatedAt)) {
			created := row.CreatedAt
			a.summary.CreatedAt = &created
		}
		if row.SensorName != "" {
			if _, seen := a.sensors[row.SensorName]; !seen {
				a.sensors[row.SensorName] = struct{}{}
				a.summary.Sensors = append(a.summary.Sensors, row.SensorName)
			}
		}
	}

	out := make([]SessionSummary, 0, len(aggs))
	for _, a := range aggs {
		a.summary.SensorCount = len(a.summary.Sensors)
		out = append(out, a.summary)
	}
	return out
}

// newer orders by createdAt descending with unknown times last.
func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}
