package ingest

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/config"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/ingest"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/schema"
)

// flag name part per subject kind
var flagNames = map[schema.Subject]string{
	schema.Telemetry:       "telemetry",
	schema.Session:         "session",
	schema.SessionState:    "session-state",
	schema.Standings:       "standings",
	schema.LapTiming:       "lap-timing",
	schema.Incident:        "incident",
	schema.Pit:             "pit",
	schema.TrackConditions: "track-conditions",
	schema.Stint:           "stint",
	schema.ChatMessage:     "chat",
}

// AddFlags registers the ingestion flags on cmd.
func AddFlags(cmd *cobra.Command) {
	for _, s := range ingest.DefaultSubjects() {
		name := flagNames[s.Kind]
		// commands share the values like the other package level flag vars
		f, ok := config.Subjects[string(s.Kind)]
		if !ok {
			f = &config.SubjectFlags{}
			config.Subjects[string(s.Kind)] = f
		}
		cmd.Flags().BoolVar(&f.Enabled,
			"enable-"+name,
			s.Enabled,
			fmt.Sprintf("consume %s messages", name))
		cmd.Flags().StringVar(&f.Name,
			"subject-"+name,
			s.Name,
			fmt.Sprintf("subject of %s messages", name))
		if s.Stream != "" {
			cmd.Flags().IntVar(&f.CatchupMax,
				"catchup-max-"+name,
				s.CatchupMax,
				fmt.Sprintf("max %s messages replayed on connect", name))
		}
	}
	cmd.Flags().BoolVar(&config.EnableCatchup,
		"enable-catchup",
		true,
		"replay recent history on every connect")
	cmd.Flags().IntVar(&config.CatchupScanLimit,
		"catchup-scan-limit",
		0,
		"max stream messages inspected per subject (0: scan the whole stream)")
	cmd.Flags().BoolVar(&config.ChatPersist,
		"chat-persist",
		true,
		"persist chat messages via a durable pull consumer (requires --db)")
	cmd.Flags().StringVar(&config.ChatStream,
		"chat-stream",
		ingest.ChatStream,
		"stream holding the chat messages")
	cmd.Flags().StringVar(&config.ChatDurable,
		"chat-durable",
		ingest.ChatDurable,
		"durable consumer name of the chat persistence")
	cmd.Flags().IntVar(&config.ChatPullBatch,
		"chat-pull-batch",
		ingest.DefaultPullSize,
		"max chat messages per pull")
	cmd.Flags().DurationVar(&config.ChatPullInterval,
		"chat-pull-interval",
		time.Second,
		"max wait per chat pull")
	cmd.Flags().StringVar(&config.DB,
		"db",
		"",
		"database url (postgresql://... or sqlite://path)")
	cmd.Flags().BoolVar(&config.Migrate,
		"migrate",
		true,
		"apply pending postgres migrations on start")
}

// ConfigFromFlags builds the ingestion config from the parsed flags.
func ConfigFromFlags() ingest.Config {
	cfg := ingest.DefaultConfig()
	for i := range cfg.Subjects {
		s := &cfg.Subjects[i]
		f, ok := config.Subjects[string(s.Kind)]
		if !ok {
			continue
		}
		s.Enabled = f.Enabled
		s.Name = f.Name
		if s.Stream != "" {
			s.CatchupMax = f.CatchupMax
		}
	}
	cfg.EnableCatchup = config.EnableCatchup
	cfg.CatchupScanLimit = config.CatchupScanLimit
	cfg.ChatPersist = config.ChatPersist
	cfg.ChatStream = config.ChatStream
	cfg.ChatDurable = config.ChatDurable
	cfg.ChatPullBatch = config.ChatPullBatch
	cfg.ChatPullInterval = config.ChatPullInterval
	return cfg
}
