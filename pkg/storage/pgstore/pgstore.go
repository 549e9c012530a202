// Package pgstore implements storage.Store on PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/repository"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/repository/chat"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/repository/snapshot"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage"
)

type Store struct {
	pool      *pgxpool.Pool
	closePool bool
	mu        sync.Mutex
	tx        pgx.Tx
	l         *log.Logger
}

var _ storage.Store = (*Store)(nil)

type Option func(*Store)

// WithOwnedPool makes Close also close the pool.
func WithOwnedPool() Option {
	return func(s *Store) { s.closePool = true }
}

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	ret := &Store{pool: pool, l: log.Default().Named("pgstore")}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// pendingTx returns the open chat transaction, beginning one if needed.
// Caller holds s.mu.
func (s *Store) pendingTx(ctx context.Context) (pgx.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	s.tx = tx
	return tx, nil
}

// savepoint runs f in a nested transaction of tx. A failing statement is
// rolled back to the savepoint and leaves tx usable.
//
//nolint:whitespace // can't make both editor and linter happy
func savepoint(
	ctx context.Context,
	tx pgx.Tx,
	f func(q repository.Querier) error,
) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := f(sp); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return sp.Commit(ctx)
}

// write runs f inside a savepoint of the pending transaction if there is one,
// directly on the pool otherwise. Caller holds s.mu.
func (s *Store) write(ctx context.Context, f func(q repository.Querier) error) error {
	if s.tx != nil {
		return savepoint(ctx, s.tx, f)
	}
	return f(s.pool)
}

func (s *Store) InsertChat(ctx context.Context, row model.ChatRow) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.pendingTx(ctx)
	if err != nil {
		return false, err
	}
	var inserted bool
	err = savepoint(ctx, tx, func(q repository.Querier) error {
		var cErr error
		inserted, cErr = chat.Create(ctx, q, &row)
		return cErr
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit(ctx)
	s.tx = nil
	return err
}

func (s *Store) SaveSession(ctx context.Context, ts float64, data []byte) error {
	return s.saveRaw(ctx, snapshot.SessionTable, ts, data)
}

func (s *Store) SaveSessionState(ctx context.Context, ts float64, data []byte) error {
	return s.saveRaw(ctx, snapshot.SessionStateTable, ts, data)
}

func (s *Store) SaveTrackConditions(ctx context.Context, ts float64, data []byte) error {
	return s.saveRaw(ctx, snapshot.TrackConditionsTable, ts, data)
}

func (s *Store) saveRaw(ctx context.Context, table string, ts float64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, func(q repository.Querier) error {
		return snapshot.CreateRaw(ctx, q, table, ts, data)
	})
}

func (s *Store) SaveStandings(ctx context.Context, rows []model.StandingsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, func(q repository.Querier) error {
		return snapshot.CreateStandings(ctx, q, rows)
	})
}

func (s *Store) SearchChat(ctx context.Context, q storage.ChatQuery) ([]model.ChatHit, error) {
	return chat.Search(ctx, s.pool, q.Text, q.Username, q.Day, q.Limit)
}

// Close rolls back an uncommitted chat transaction.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		if err := s.tx.Rollback(context.Background()); err != nil {
			s.l.Warn("rollback failed", log.ErrorField(err))
		}
		s.tx = nil
	}
	if s.closePool {
		s.pool.Close()
	}
	return nil
}
