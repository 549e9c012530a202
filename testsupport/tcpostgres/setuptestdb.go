//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/db/migrate"
	database "github.com/mpapenbr/simracecenter-agent-go/pkg/db/postgres"
)

// create a pg connection pool for the agent testdatabase
func SetupTestDb() *pgxpool.Pool {
	ctx := context.Background()
	container, err := SetupPostgres(ctx, "postgres", "password", "postgres",
		WithName("simracecenter-agent-test"),
		WithStartupTimeout(time.Minute),
	)
	if err != nil {
		log.Fatal(err)
	}
	dbURL, err := container.URL(ctx)
	if err != nil {
		log.Fatal(err)
	}
	return setupWithURL(dbURL)
}

// uses the database referenced by TESTDB_URL
func SetupExternalTestDb() *pgxpool.Pool {
	return setupWithURL(os.Getenv("TESTDB_URL"))
}

func setupWithURL(dbURL string) *pgxpool.Pool {
	if err := migrate.MigrateDb(dbURL); err != nil {
		log.Fatal(err)
	}
	pool, err := database.InitWithURL(context.Background(), dbURL)
	if err != nil {
		log.Fatal(err)
	}
	return pool
}

func ClearChatTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from chat_messages")
}

func ClearSnapshotTables(pool *pgxpool.Pool) {
	for _, t := range []string{
		"session_snapshots",
		"session_state_snapshots",
		"track_conditions_snapshots",
		"standings_snapshots",
	} {
		pool.Exec(context.Background(), "delete from "+t)
	}
}

func ClearAllTables(pool *pgxpool.Pool) {
	ClearChatTable(pool)
	ClearSnapshotTables(pool)
}
