// Package storage defines the durable store written by ingestion and read by
// the chat search tool.
package storage

import (
	"context"
	"errors"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
)

var ErrUnsupportedDSN = errors.New("storage: unsupported dsn")

// ChatQuery selects chat messages by full text search.
// Username and Day (YYYY-MM-DD) are optional filters.
type ChatQuery struct {
	Text     string
	Limit    int
	Username string
	Day      string
}

// Store persists chat messages and snapshots.
//
// Chat inserts are collected in a pending transaction which is made durable by
// Commit. Snapshot writes are durable once the call returns unless a chat
// transaction is pending, in which case they become durable with it.
type Store interface {
	// InsertChat stores row unless a row with the same id exists.
	// inserted is false for such a duplicate.
	InsertChat(ctx context.Context, row model.ChatRow) (inserted bool, err error)
	Commit(ctx context.Context) error
	SaveSession(ctx context.Context, ts float64, data []byte) error
	SaveSessionState(ctx context.Context, ts float64, data []byte) error
	SaveStandings(ctx context.Context, rows []model.StandingsRow) error
	SaveTrackConditions(ctx context.Context, ts float64, data []byte) error
	SearchChat(ctx context.Context, q ChatQuery) ([]model.ChatHit, error)
	Close() error
}
