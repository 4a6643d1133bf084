// Package app assembles the store and handlers from configuration for both
// entrypoints.
package app

import (
	"context"
	"fmt"
	"strings"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/mlusby/temperature-monitor/internal/api"
	"github.com/mlusby/temperature-monitor/internal/config"
	"github.com/mlusby/temperature-monitor/internal/expiry"
	"github.com/mlusby/temperature-monitor/internal/observability"
	"github.com/mlusby/temperature-monitor/internal/readings"
	"github.com/mlusby/temperature-monitor/internal/store"
)

const (
	HandlerStoreReading = "store-reading"
	HandlerGetReadings  = "get-readings"
	HandlerListSessions = "list-sessions"
)

// Backend is an opened store plus the optional capabilities it supports.
type Backend struct {
	Store store.Store
	Table string
	// Pinger and Purger are nil for backends without them.
	Pinger store.Pinger
	Purger expiry.Purger
	Close  func() error
}

func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		client, err := store.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, fmt.Errorf("dynamodb client: %w", err)
		}
		if cfg.DynamoDBCreateTable {
			if err := store.EnsureTable(ctx, client, cfg.DynamoDBTable); err != nil {
				return nil, fmt.Errorf("ensure table: %w", err)
			}
		}
		d := store.NewDynamo(client, cfg.DynamoDBTable)
		return &Backend{Store: d, Table: d.Table(), Close: func() error { return nil }}, nil

	case config.BackendPostgres, config.BackendSQLite:
		var (
			repo *store.Repo
			err  error
		)
		if cfg.StoreBackend == config.BackendPostgres {
			pg := cfg.Postgres
			db, oerr := store.OpenPostgres(pg.User, pg.Password, pg.DBName, pg.Host, pg.Port, pg.SSLMode)
			if oerr != nil {
				return nil, fmt.Errorf("db connect: %w", oerr)
			}
			repo, err = store.New(db, "")
		} else {
			db, oerr := store.OpenSQLite(cfg.SQLitePath)
			if oerr != nil {
				return nil, fmt.Errorf("sqlite open: %w", oerr)
			}
			repo, err = store.New(db, "")
		}
		if err != nil {
			return nil, fmt.Errorf("db migrate: %w", err)
		}
		return &Backend{Store: repo, Table: repo.Table(), Pinger: repo, Purger: repo, Close: repo.Close}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// Handlers is the wired set of request handlers.
type Handlers struct {
	StoreReading *api.StoreReading
	GetReadings  *api.GetReadings
	ListSessions *api.ListSessions
}

// NewHandlers wires handlers over b. Reads are retried per configuration and
// every store call is traced when tracer is set.
func NewHandlers(cfg *config.Config, b *Backend, tracer oteltrace.Tracer) *Handlers {
	s := b.Store
	if tracer != nil {
		s = observability.InstrumentStore(s, tracer)
	}
	s = store.WithReadRetries(s, cfg.StoreReadRetries)

	apiCfg := api.Config{
		AllowOrigin:        cfg.CORSOrigin,
		ExposeErrorDetails: cfg.ExposeErrorDetails,
		TableName:          b.Table,
		Timeout:            cfg.RequestTimeout,
	}
	return &Handlers{
		StoreReading: &api.StoreReading{
			Writer: &readings.Writer{
				Store: s,
				Limits: readings.Limits{
					MinTemperature:      cfg.MinTemperature,
					MaxTemperature:      cfg.MaxTemperature,
					MaxSensorNameLength: cfg.MaxSensorNameLength,
					MaxSessionIDLength:  cfg.MaxSessionIDLength,
					MaxTimestampLength:  store.MaxTimestampLength,
				},
				Retention:        cfg.Retention,
				RejectDuplicates: cfg.RejectDuplicates,
			},
			Config: apiCfg,
		},
		GetReadings: &api.GetReadings{Reader: &readings.Reader{Store: s}, Config: apiCfg},
		ListSessions: &api.ListSessions{
			Lister: &readings.Lister{
				Store:           s,
				DefaultLimit:    cfg.ListDefaultLimit,
				OverfetchFactor: cfg.ListOverfetchFactor,
			},
			Config: apiCfg,
		},
	}
}

// ByName returns the handler a Lambda function is deployed as.
func (h *Handlers) ByName(name string) (api.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case HandlerStoreReading:
		return h.StoreReading, nil
	case HandlerGetReadings:
		return h.GetReadings, nil
	case HandlerListSessions:
		return h.ListSessions, nil
	}
	return nil, fmt.Errorf("unknown handler %q (want %s, %s or %s)", name, HandlerStoreReading, HandlerGetReadings, HandlerListSessions)
}
