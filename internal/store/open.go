// Package store selects a core.Store implementation from configuration.
package store

import (
	"context"
	"fmt"

	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/store/memory"
	"github.com/dkeye/Parley/internal/store/postgres"
	"github.com/dkeye/Parley/internal/store/sqlite"
)

func Open(ctx context.Context, cfg config.StoreConfig) (core.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, postgres.Config{
			DSN:         cfg.DSN,
			MaxConns:    cfg.MaxConns,
			AutoMigrate: cfg.AutoMigrate,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.DSN, cfg.AutoMigrate)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
