// Package util contains the setup steps shared by the commands.
package util

import (
	"context"
	"os"
	"time"

	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/bus"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/config"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/db/postgres"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage/factory"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/utils"
)

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger installs the default logger according to the log flags.
func SetupLogger() *log.Logger {
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	if config.LogFilter != "" {
		filtered, err := logger.WithFilter(config.LogFilter)
		if err != nil {
			logger.Warn("invalid log filter, ignoring", log.ErrorField(err))
		} else {
			logger = filtered
		}
	}
	log.ResetDefault(logger)
	return logger
}

// SetupTelemetry starts the OTLP exporters and runtime metrics if enabled.
// The returned Telemetry is nil if telemetry is disabled or failed.
func SetupTelemetry(ctx context.Context) *config.Telemetry {
	if !config.EnableTelemetry {
		return nil
	}
	log.Info("Enabling telemetry",
		log.String("exporter", config.TelemetryExporter),
		log.String("endpoint", config.TelemetryEndpoint))
	telemetry, err := config.SetupTelemetry(ctx)
	if err != nil {
		log.Warn("Could not setup telemetry", log.ErrorField(err))
		return nil
	}
	err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
	if err != nil {
		log.Warn("Could not start runtime metrics", log.ErrorField(err))
	}
	return telemetry
}

// OpenStore opens the configured store. Returns nil (without error) if no
// database is configured.
func OpenStore(ctx context.Context, logger *log.Logger) (storage.Store, error) {
	if config.DB == "" {
		log.Info("No database configured, chat persistence disabled")
		return nil, nil
	}
	if addr := utils.ExtractFromDBURL(config.DB); addr != "" {
		if err := utils.WaitForTCP(ctx, addr, 15*time.Second); err != nil {
			return nil, err
		}
	}
	poolOpts := []postgres.PoolConfigOption{
		postgres.WithTracer(logger.Named("sql"),
			parseLogLevel(config.SQLLogLevel, log.DebugLevel)),
	}
	if config.EnableTelemetry {
		poolOpts = append(poolOpts, postgres.WithOtel())
	}
	return factory.Open(ctx, config.DB,
		factory.WithMigrate(config.Migrate),
		factory.WithPoolOptions(poolOpts...))
}

// NewSupervisor wires the NATS connector and the reconnect policy from the
// nats flags.
func NewSupervisor(subscribe bus.SubscribeFunc, logger *log.Logger) *bus.Supervisor {
	natsOpts := []bus.NatsOption{
		bus.WithCredentials(config.NatsUser, config.NatsPassword),
		bus.WithConnectTimeout(config.NatsConnectTimeout),
		bus.WithReconnects(config.NatsMaxReconnects, 2*time.Second),
		bus.WithNatsLogger(logger.Named("nats")),
	}
	if config.NatsClientName != "" {
		natsOpts = append(natsOpts, bus.WithClientName(config.NatsClientName))
	}
	connector := bus.NewNatsConnector(config.NatsURL, natsOpts...)
	return bus.NewSupervisor(connector, subscribe,
		bus.WithBackoff(bus.NewBackoff(config.BackoffMin, config.BackoffMax)),
		bus.WithAuthBreaker(bus.NewAuthBreaker(
			config.NatsFailFastAuth, config.NatsMaxAuthViolations)),
		bus.WithDrainTimeout(config.ShutdownGrace),
		bus.WithStateListener(func(s bus.State) {
			logger.Debug("bus state", log.String("state", s.String()))
		}),
		bus.WithLogger(logger.Named("bus")))
}
