// Package store selects the persistence backend named in the config.
package store

import (
	"context"
	"fmt"

	"github.com/RazeViana/Caitlyn/internal/activity"
	"github.com/RazeViana/Caitlyn/internal/birthday"
	"github.com/RazeViana/Caitlyn/internal/config"
	"github.com/RazeViana/Caitlyn/internal/memory"
	"github.com/RazeViana/Caitlyn/internal/store/postgres"
	"github.com/RazeViana/Caitlyn/internal/store/sqlite"
)

// Store is everything the gateway persists.
type Store interface {
	birthday.Store
	activity.Store
	memory.Archive
	Migrate() error
	Driver() string
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
