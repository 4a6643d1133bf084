package readings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mlusby/temperature-monitor/internal/store"
	apperrors "github.com/mlusby/temperature-monitor/pkg/errors"
)

const (
	DefaultRetention = 365 * 24 * time.Hour
	MsgDuplicate     = "Reading already exists for this timestamp"
	MsgInternal      = "Internal server error"
)

// Writer validates and appends single readings.
type Writer struct {
	Store     store.Store
	Limits    Limits
	Retention time.Duration
	// RejectDuplicates turns a same-key write into a DuplicateError instead
	// of an overwrite.
	RejectDuplicates bool
	Now              func() time.Time
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Write stores in and returns its identifier "sessionId#timestamp".
func (w *Writer) Write(ctx context.Context, in ReadingInput) (string, error) {
	if in.SessionID == "" || in.SensorName == "" || in.Temperature == nil || in.Timestamp.String() == "" {
		return "", apperrors.Validation(MsgMissingFields)
	}
	if err := w.Limits.Check(in); err != nil {
		return "", err
	}

	now := w.now().UTC()
	retention := w.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	rec := store.Record{
		SessionID:        in.SessionID,
		Timestamp:        in.Timestamp.String(),
		SensorName:       in.SensorName,
		Temperature:      *in.Temperature,
		Unit:             in.Unit,
		SessionStartTime: in.SessionStartTime.String(),
		CreatedAt:        now,
		ExpiresAt:        now.Add(retention).Unix(),
	}
	if in.RateOfRise != nil {
		rec.RateOfRise = *in.RateOfRise
	}
	if rec.Unit == "" {
		rec.Unit = DefaultUnit
	}

	err := w.Store.Put(ctx, rec, store.PutOptions{IfNotExists: w.RejectDuplicates})
	if errors.Is(err, store.ErrConditionFailed) {
		return "", apperrors.Duplicate(MsgDuplicate)
	}
	if err != nil {
		slog.Error("reading store failed", "session_id", rec.SessionID, "sensor", rec.SensorName, "error", err)
		return "", apperrors.Storage(MsgInternal, err)
	}
	slog.Debug("reading stored", "session_id", rec.SessionID, "sensor", rec.SensorName, "timestamp", rec.Timestamp)
	return in.ID(), nil
}
