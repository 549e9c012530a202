package answer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mpapenbr/simracecenter-agent-go/log"
)

const defaultSystemPrompt = "You are the race director assistant of a sim racing " +
	"broadcast. Answer viewer questions in one or two short sentences. " +
	"Use only the race data given to you. If the data does not answer the " +
	"question, say so."

type (
	// OpenAIConfig configures an OpenAI compatible chat completion backend.
	OpenAIConfig struct {
		BaseURL      string
		APIKey       string
		Model        string
		SystemPrompt string
		MaxTokens    int
		Timeout      time.Duration
	}
	OpenAI struct {
		client       *openai.Client
		model        string
		systemPrompt string
		maxTokens    int
		facts        ContextProvider
		l            *log.Logger
	}
	OpenAIOption func(*OpenAI)
)

func WithContextProvider(p ContextProvider) OpenAIOption {
	return func(o *OpenAI) { o.facts = p }
}

func WithLogger(l *log.Logger) OpenAIOption {
	return func(o *OpenAI) { o.l = l }
}

func NewOpenAI(cfg OpenAIConfig, opts ...OpenAIOption) (*OpenAI, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		// local OpenAI compatible servers accept any key
		apiKey = "none"
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	ret := &OpenAI{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		l:            log.Default().Named("answer"),
	}
	if ret.systemPrompt == "" {
		ret.systemPrompt = defaultSystemPrompt
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

func (o *OpenAI) Answer(ctx context.Context, question string) (string, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt},
	}
	if o.facts != nil {
		facts, err := o.facts(ctx)
		if err != nil {
			o.l.Debug("no race context", log.ErrorField(err))
		} else if facts != "" {
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Current race data:\n" + facts,
			})
		}
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: question,
	})
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  msgs,
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoAnswer
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrNoAnswer
	}
	return text, nil
}
