package readings

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mlusby/temperature-monitor/internal/store"
	apperrors "github.com/mlusby/temperature-monitor/pkg/errors"
)

const MsgSessionRequired = "sessionId query parameter is required"

// Reader returns a session's readings grouped by sensor.
type Reader struct {
	Store store.Store
	Now   func() time.Time
}

func (r *Reader) Read(ctx context.Context, sessionID string) (*SessionReadings, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.Validation(MsgSessionRequired)
	}

	rows, err := r.Store.Query(ctx, sessionID)
	if err != nil {
		slog.Error("readings query failed", "session_id", sessionID, "error", err)
		return nil, apperrors.Storage(MsgInternal, err)
	}

	out := &SessionReadings{
		SessionID: sessionID,
		SessionMetadata: SessionMetadata{
			SessionID: sessionID,
			Unit:      DefaultUnit,
		},
		TotalReadings: len(rows),
	}
	for _, row := range rows {
		out.TemperatureData.Add(row.SensorName, SensorReading{
			Timestamp:   row.Timestamp,
			Temperature: row.Temperature,
			RateOfRise:  row.RateOfRise,
		})
		// Metadata comes from the first row that carries a start time.
		if out.SessionMetadata.SessionStartTime == nil && row.SessionStartTime != "" {
			start := row.SessionStartTime
			out.SessionMetadata.SessionStartTime = &start
			if row.Unit != "" {
				out.SessionMetadata.Unit = row.Unit
			}
		}
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	out.RetrievedAt = now().UTC()
	return out, nil
}
