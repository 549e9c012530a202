package util

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/bus"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/config"
)

// AddNatsFlags registers the connection flags.
func AddNatsFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"nats://localhost:4222",
		"URL of the NATS server")
	cmd.Flags().StringVar(&config.NatsUser,
		"nats-user",
		"",
		"NATS user")
	cmd.Flags().StringVar(&config.NatsPassword,
		"nats-password",
		"",
		"NATS password")
	cmd.Flags().StringVar(&config.NatsClientName,
		"nats-client-name",
		"",
		"client name shown by the server (default: generated per process)")
	cmd.Flags().DurationVar(&config.NatsConnectTimeout,
		"nats-connect-timeout",
		5*time.Second,
		"timeout for a single connect attempt")
	cmd.Flags().IntVar(&config.NatsMaxReconnects,
		"nats-max-reconnects",
		3,
		"reconnects done by the client before the connection is considered lost")
	cmd.Flags().DurationVar(&config.BackoffMin,
		"backoff-min",
		bus.DefaultBackoffMin,
		"initial delay between connect attempts")
	cmd.Flags().DurationVar(&config.BackoffMax,
		"backoff-max",
		bus.DefaultBackoffMax,
		"max delay between connect attempts")
	cmd.Flags().BoolVar(&config.NatsFailFastAuth,
		"nats-failfast-auth",
		true,
		"stop after repeated authorization violations")
	cmd.Flags().IntVar(&config.NatsMaxAuthViolations,
		"nats-max-auth-violations",
		bus.DefaultMaxAuthViolations,
		"number of authorization violations before giving up")
	cmd.Flags().DurationVar(&config.ShutdownGrace,
		"shutdown-grace",
		5*time.Second,
		"max time to finish in-flight work on shutdown")
}

// AddLogFlags registers the logging and telemetry flags.
func AddLogFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"debug",
		"controls the log level for sql methods")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format")
	cmd.Flags().StringVar(&config.LogFilter,
		"log-filter",
		"",
		"zapfilter rules, e.g. \"*:bus.* info:*\"")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data")
	cmd.Flags().StringVar(&config.TelemetryExporter,
		"telemetry-exporter",
		"otlp",
		"telemetry exporter (otlp, stdout)")
}
