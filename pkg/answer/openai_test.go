package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, reply string, got *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		w.Header().Set("Content-Type", "application/json")
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleAssistant, Content: reply,
				},
			}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestOpenAIAnswer(t *testing.T) {
	var req openai.ChatCompletionRequest
	srv := newServer(t, "  Car 12 leads.  ", &req)
	defer srv.Close()

	a, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Model: "test-model"},
		WithContextProvider(func(context.Context) (string, error) {
			return `{"leader":"12"}`, nil
		}))
	require.NoError(t, err)
	text, err := a.Answer(context.Background(), "who leads?")
	require.NoError(t, err)
	assert.Equal(t, "Car 12 leads.", text)

	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "Current race data:\n"+`{"leader":"12"}`, req.Messages[1].Content)
	assert.Equal(t, "who leads?", req.Messages[2].Content)
}

func TestOpenAIEmptyAnswer(t *testing.T) {
	var req openai.ChatCompletionRequest
	srv := newServer(t, " ", &req)
	defer srv.Close()
	a, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)
	_, err = a.Answer(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoAnswer)
	assert.Len(t, req.Messages, 2)
}

func TestOpenAIRequiresModel(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}
