package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cmd/util"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/config"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/db/migrate"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/utils"
)

var waitForDB time.Duration

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration()
		},
	}
	cmd.Flags().StringVar(&config.DB,
		"db",
		"postgresql://DB_USERNAME:DB_USER_PASSWORD@DB_HOST:5432/simracecenter",
		"Connection string for the database")
	cmd.Flags().DurationVar(&waitForDB,
		"wait-for-db",
		60*time.Second,
		"Duration to wait for the database to be ready")
	util.AddLogFlags(cmd)
	return cmd
}

func startMigration() error {
	util.SetupLogger()
	postgresAddr := utils.ExtractFromDBURL(config.DB)
	if postgresAddr == "" {
		return errors.New("migrate supports postgresql:// urls only")
	}
	if err := utils.WaitForTCP(context.Background(), postgresAddr, waitForDB); err != nil {
		log.Error("database not ready", log.ErrorField(err))
		return err
	}

	if err := migrate.MigrateDb(prepareURLForDB(config.DB)); err != nil {
		log.Error("migration failed", log.ErrorField(err))
		return err
	}
	log.Info("Database is up to date")
	return nil
}

func prepareURLForDB(url string) string {
	if strings.Contains(url, "sslmode=") {
		return url
	}
	options := "sslmode=disable"
	if strings.Contains(url, "?") {
		return fmt.Sprintf("%s&%s", url, options)
	} else {
		return fmt.Sprintf("%s?%s", url, options)
	}
}
