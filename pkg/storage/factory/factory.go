// Package factory opens a storage.Store from a connection URL.
package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/db/migrate"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/db/postgres"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage/pgstore"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage/sqlitestore"
)

type (
	config struct {
		migrate  bool
		poolOpts []postgres.PoolConfigOption
	}
	Option func(*config)
)

// WithMigrate applies pending postgres migrations before opening the store.
func WithMigrate(b bool) Option {
	return func(c *config) { c.migrate = b }
}

func WithPoolOptions(opts ...postgres.PoolConfigOption) Option {
	return func(c *config) { c.poolOpts = append(c.poolOpts, opts...) }
}

// Open supports postgresql://, postgres:// and sqlite://<path> URLs.
func Open(ctx context.Context, dsn string, opts ...Option) (storage.Store, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	switch {
	case strings.HasPrefix(dsn, "postgresql://"), strings.HasPrefix(dsn, "postgres://"):
		if cfg.migrate {
			if err := migrate.MigrateDb(dsn); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := postgres.InitWithURL(ctx, dsn, cfg.poolOpts...)
		if err != nil {
			return nil, err
		}
		return pgstore.New(pool, pgstore.WithOwnedPool()), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("%w: missing sqlite path", storage.ErrUnsupportedDSN)
		}
		return sqlitestore.New(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnsupportedDSN, redact(dsn))
	}
}

// redact strips everything after the scheme.
func redact(dsn string) string {
	if scheme, _, ok := strings.Cut(dsn, "://"); ok {
		return scheme + "://..."
	}
	return dsn
}
