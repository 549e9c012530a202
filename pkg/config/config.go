package config

import "time"

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                string        // connection string for the database (postgresql:// or sqlite://)
	Migrate           bool          // apply postgres migrations on start
	LogLevel          string        // sets the log level (zap log level values)
	SQLLogLevel       string        // sets the log level for sql subsystem
	LogFormat         string        // text vs json
	LogFilter         string        // zapfilter rules, e.g. "debug:bus.* info:*"
	EnableTelemetry   bool          // enable telemetry
	TelemetryEndpoint string        // endpoint for telemetry
	TelemetryExporter string        // otlp or stdout
	ShutdownGrace     time.Duration // max time to wait for in-flight work on shutdown
	PrintMessage      bool          // if true, the message payload will be print on debug level
)

// NATS connection
var (
	NatsURL               string
	NatsUser              string
	NatsPassword          string
	NatsClientName        string
	NatsConnectTimeout    time.Duration
	NatsMaxReconnects     int
	BackoffMin            time.Duration
	BackoffMax            time.Duration
	NatsFailFastAuth      bool
	NatsMaxAuthViolations int
)

// ingestion
var (
	EnableCatchup    bool
	CatchupScanLimit int
	ChatPersist      bool
	ChatStream       string
	ChatDurable      string
	ChatPullBatch    int
	ChatPullInterval time.Duration
)

// chat responder
var (
	ChatInputSubject    string
	ChatOutputSubject   string
	ChatQueueGroup      string
	ChatMessageType     string
	ChatTriggerPrefix   string
	ChatIgnoreUsernames []string
	ChatQueueSize       int
	ChatWorkers         int
	ChatAnswerTimeout   time.Duration
	ChatStatsEvery      int
	LLMBaseURL          string
	LLMAPIKey           string
	LLMModel            string
	LLMSystemPrompt     string
	LLMMaxTokens        int
)

// SubjectFlags holds the per subject overrides of the ingest command, keyed by
// subject kind.
type SubjectFlags struct {
	Enabled    bool
	Name       string
	CatchupMax int
}

var Subjects = map[string]*SubjectFlags{}
