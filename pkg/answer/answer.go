// Package answer provides the question answering backend of the chat responder.
package answer

import (
	"context"
	"errors"
)

var ErrNoAnswer = errors.New("answer: no answer")

// Answerer produces an answer for a chat question. Implementations must
// return when ctx is done.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Func adapts a function to the Answerer interface.
type Func func(ctx context.Context, question string) (string, error)

func (f Func) Answer(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// ContextProvider returns additional facts handed to the model with every
// question, e.g. a summary of the current race state.
type ContextProvider func(ctx context.Context) (string, error)
