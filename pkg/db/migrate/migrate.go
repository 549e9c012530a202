package migrate

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/mpapenbr/simracecenter-agent-go/log"
)

//go:embed migrations
var migrations embed.FS

// MigrateDb applies all pending migrations to the postgres database at dbURI
// (postgresql:// or postgres://).
func MigrateDb(dbURI string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, driverURL(dbURI))
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Debug("schema unchanged")
	case err != nil:
		return err
	}
	if v, dirty, vErr := m.Version(); vErr == nil {
		log.Debug("schema version", log.Uint64("version", uint64(v)), log.Bool("dirty", dirty))
	}
	return nil
}

// driverURL rewrites the scheme so that golang-migrate picks the pgx v5 driver.
func driverURL(dbURI string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(dbURI, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return dbURI
}
