package responder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/answer"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cache"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cmd/util"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/config"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/responder"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/tools"
)

var errModelRequired = errors.New("--llm-model is required without a local state cache")

func NewResponderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "responder",
		Short: "answers viewer questions from the chat subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startResponder()
		},
	}
	util.AddNatsFlags(cmd)
	util.AddLogFlags(cmd)
	AddFlags(cmd)
	return cmd
}

// AddFlags registers the chat responder flags on cmd.
//
//nolint:funlen // flag definitions
func AddFlags(cmd *cobra.Command) {
	def := responder.DefaultConfig()
	cmd.Flags().StringVar(&config.ChatInputSubject,
		"chat-input-subject",
		def.InputSubject,
		"subject of inbound chat messages")
	cmd.Flags().StringVar(&config.ChatOutputSubject,
		"chat-output-subject",
		def.OutputSubject,
		"subject answers are published to")
	cmd.Flags().StringVar(&config.ChatQueueGroup,
		"chat-queue-group",
		def.QueueGroup,
		"queue group shared by all responder instances")
	cmd.Flags().StringVar(&config.ChatMessageType,
		"chat-message-type",
		def.MessageType,
		"envelope type of chat messages to answer")
	cmd.Flags().StringVar(&config.ChatTriggerPrefix,
		"chat-trigger-prefix",
		"",
		"only answer messages starting with this prefix (empty: all)")
	cmd.Flags().StringSliceVar(&config.ChatIgnoreUsernames,
		"chat-ignore-usernames",
		def.IgnoreUsernames,
		"usernames whose messages are never answered (case insensitive)")
	cmd.Flags().IntVar(&config.ChatQueueSize,
		"chat-queue-size",
		def.QueueSize,
		"max pending questions, newer ones are dropped")
	cmd.Flags().IntVar(&config.ChatWorkers,
		"chat-workers",
		def.Workers,
		"number of concurrent answer workers")
	cmd.Flags().DurationVar(&config.ChatAnswerTimeout,
		"chat-answer-timeout",
		def.AnswerTimeout,
		"max time to produce an answer")
	cmd.Flags().IntVar(&config.ChatStatsEvery,
		"chat-stats-every",
		def.StatsEvery,
		"log pipeline stats after this many processed messages")
	cmd.Flags().StringVar(&config.LLMBaseURL,
		"llm-base-url",
		"",
		"base url of an OpenAI compatible API (empty: api.openai.com)")
	cmd.Flags().StringVar(&config.LLMAPIKey,
		"llm-api-key",
		"",
		"API key of the answer model")
	cmd.Flags().StringVar(&config.LLMModel,
		"llm-model",
		"",
		"answer model; without a model only leader and battle questions are answered")
	cmd.Flags().StringVar(&config.LLMSystemPrompt,
		"llm-system-prompt",
		"",
		"overrides the default system prompt")
	cmd.Flags().IntVar(&config.LLMMaxTokens,
		"llm-max-tokens",
		200,
		"max tokens per answer")
}

// ConfigFromFlags builds the responder config from the parsed flags.
func ConfigFromFlags() responder.Config {
	return responder.Config{
		InputSubject:    config.ChatInputSubject,
		OutputSubject:   config.ChatOutputSubject,
		QueueGroup:      config.ChatQueueGroup,
		MessageType:     config.ChatMessageType,
		TriggerPrefix:   config.ChatTriggerPrefix,
		IgnoreUsernames: config.ChatIgnoreUsernames,
		QueueSize:       config.ChatQueueSize,
		Workers:         config.ChatWorkers,
		AnswerTimeout:   config.ChatAnswerTimeout,
		PollInterval:    500 * time.Millisecond,
		ShutdownGrace:   config.ShutdownGrace,
		StatsEvery:      config.ChatStatsEvery,
	}
}

// NewAnswerer uses the configured model with facts from c. Without a model
// the rule based director answers from c. c may be nil if a model is set.
func NewAnswerer(c *cache.StateCache, logger *log.Logger) (answer.Answerer, error) {
	if config.LLMModel == "" {
		if c == nil {
			return nil, errModelRequired
		}
		logger.Info("No answer model configured, using rule based answers")
		return tools.NewDirector(c), nil
	}
	opts := []answer.OpenAIOption{answer.WithLogger(logger.Named("answer"))}
	if c != nil {
		opts = append(opts, answer.WithContextProvider(tools.Facts(c)))
	}
	ret, err := answer.NewOpenAI(answer.OpenAIConfig{
		BaseURL:      config.LLMBaseURL,
		APIKey:       config.LLMAPIKey,
		Model:        config.LLMModel,
		SystemPrompt: config.LLMSystemPrompt,
		MaxTokens:    config.LLMMaxTokens,
		Timeout:      config.ChatAnswerTimeout,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("answer model: %w", err)
	}
	return ret, nil
}

func startResponder() error {
	logger := util.SetupLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if telemetry := util.SetupTelemetry(ctx); telemetry != nil {
		defer telemetry.Shutdown()
	}

	answerer, err := NewAnswerer(nil, logger)
	if err != nil {
		log.Error("responder could not be started", log.ErrorField(err))
		return err
	}
	r := responder.New(ConfigFromFlags(), answerer,
		responder.WithLogger(logger.Named("responder")))
	r.SetupMetrics()
	sup := util.NewSupervisor(r.Subscribe, logger)

	log.Info("Starting responder", log.String("nats", config.NatsURL))
	if err := r.Run(ctx, sup); err != nil {
		log.Error("responder stopped", log.ErrorField(err))
		return err
	}
	log.Info("Responder terminated")
	return nil
}
