package store

import "time"

// MaxTimestampLength is the widest timestamp the SQL key column holds.
const MaxTimestampLength = 64

type ReadingRow struct {
	SessionID        string    `gorm:"primaryKey;size:255" json:"sessionId"`
	Timestamp        string    `gorm:"primaryKey;size:64" json:"timestamp"`
	SortKey          string    `gorm:"size:96;index" json:"-"`
	SensorName       string    `gorm:"size:255" json:"sensorName"`
	Temperature      float64   `json:"temperature"`
	RateOfRise       float64   `json:"rateOfRise"`
	Unit             string    `gorm:"size:32" json:"unit"`
	SessionStartTime string    `json:"sessionStartTime,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime:false" json:"createdAt"`
	ExpiresAt        int64     `gorm:"index" json:"expiresAt"`
}

func rowFromRecord(rec Record) ReadingRow {
	return ReadingRow{
		SessionID:        rec.SessionID,
		Timestamp:        rec.Timestamp,
		SortKey:          SortKey(rec.Timestamp),
		SensorName:       rec.SensorName,
		Temperature:      rec.Temperature,
		RateOfRise:       rec.RateOfRise,
		Unit:             rec.Unit,
		SessionStartTime: rec.SessionStartTime,
		CreatedAt:        rec.CreatedAt.UTC(),
		ExpiresAt:        rec.ExpiresAt,
	}
}

func (r ReadingRow) record() Record {
	return Record{
		SessionID:        r.SessionID,
		Timestamp:        r.Timestamp,
		SensorName:       r.SensorName,
		Temperature:      r.Temperature,
		RateOfRise:       r.RateOfRise,
		Unit:             r.Unit,
		SessionStartTime: r.SessionStartTime,
		CreatedAt:        r.CreatedAt.UTC(),
		ExpiresAt:        r.ExpiresAt,
	}
}
