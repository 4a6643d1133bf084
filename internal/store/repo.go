package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultTable = "temperature_readings"

// Repo is the SQL-backed Store. Rows are keyed by (session_id, timestamp)
// and scanned in key order.
type Repo struct {
	db    *gorm.DB
	table string
}

func OpenPostgres(user, password, dbName, host, port, sslMode string) (*gorm.DB, error) {
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", host, user, password, dbName, port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = "file:temperature.db?_busy_timeout=5000&_journal_mode=WAL"
	}
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}

func New(db *gorm.DB, table string) (*Repo, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := db.Table(table).AutoMigrate(&ReadingRow{}); err != nil {
		return nil, err
	}
	return &Repo{db: db, table: table}, nil
}

func (r *Repo) Table() string { return r.table }

func (r *Repo) Put(ctx context.Context, rec Record, opts PutOptions) error {
	row := rowFromRecord(rec)
	q := r.db.WithContext(ctx).Table(r.table)
	if opts.IfNotExists {
		res := q.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
		return nil
	}
	return q.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sort_key", "sensor_name", "temperature", "rate_of_rise", "unit",
			"session_start_time", "created_at", "expires_at",
		}),
	}).Create(&row).Error
}

func (r *Repo) Query(ctx context.Context, sessionID string) ([]Record, error) {
	var rows []ReadingRow
	err := r.db.WithContext(ctx).Table(r.table).
		Clauses(
			clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Name: "session_id"}, Value: sessionID},
			}},
			clause.OrderBy{Columns: []clause.OrderByColumn{
				{Column: clause.Column{Name: "sort_key"}},
				{Column: clause.Column{Name: "timestamp"}},
			}},
		).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return records(rows), nil
}

func (r *Repo) Scan(ctx context.Context, limit int, startKey []byte) (ScanPage, error) {
	if limit <= 0 {
		limit = 1
	}

	q := r.db.WithContext(ctx).Table(r.table)
	if len(startKey) > 0 {
		k, err := decodeKey(startKey)
		if err != nil {
			return ScanPage{}, err
		}
		q = q.Clauses(clause.Where{Exprs: []clause.Expression{clause.Or(
			clause.Gt{Column: clause.Column{Name: "session_id"}, Value: k.SessionID},
			clause.And(
				clause.Eq{Column: clause.Column{Name: "session_id"}, Value: k.SessionID},
				clause.Gt{Column: clause.Column{Name: "timestamp"}, Value: k.Timestamp},
			),
		)}})
	}

	order := clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "session_id"}},
		{Column: clause.Column{Name: "timestamp"}},
	}}

	var rows []ReadingRow
	if err := q.Clauses(order).Limit(limit + 1).Find(&rows).Error; err != nil {
		return ScanPage{}, err
	}

	var page ScanPage
	if len(rows) > limit {
		last := rows[limit-1]
		page.LastKey = encodeKey(Key{SessionID: last.SessionID, Timestamp: last.Timestamp})
		rows = rows[:limit]
	}
	page.Records = records(rows)
	return page, nil
}

// PurgeExpired deletes rows whose expiry has passed. Rows with no expiry
// are kept.
func (r *Repo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Table(r.table).
		Where("expires_at > 0 AND expires_at <= ?", now.Unix()).
		Delete(&ReadingRow{})
	return res.RowsAffected, res.Error
}

func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func records(rows []ReadingRow) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out
}
