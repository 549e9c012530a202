// Package sqlitestore implements storage.Store on an embedded SQLite file
// with FTS5 chat search.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage"
)

type Store struct {
	db *sql.DB
	mu sync.Mutex
	tx *sql.Tx
	l  *log.Logger
}

var _ storage.Store = (*Store)(nil)

// querier is implemented by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// New opens (and creates) the database at path and applies the schema.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx,
		`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	s := &Store{db: db, l: log.Default().Named("sqlitestore")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			message TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			yt_type TEXT NOT NULL DEFAULT '',
			ts_iso TEXT NOT NULL DEFAULT '',
			ts REAL NOT NULL,
			day TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chat_messages_ts_idx ON chat_messages(ts);`,
		`CREATE INDEX IF NOT EXISTS chat_messages_day_idx ON chat_messages(day);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chat_fts USING fts5(
			message, content='chat_messages', content_rowid='rowid'
		);`,
		`CREATE TRIGGER IF NOT EXISTS chat_messages_ai AFTER INSERT ON chat_messages BEGIN
			INSERT INTO chat_fts(rowid, message) VALUES (new.rowid, new.message);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS chat_messages_ad AFTER DELETE ON chat_messages BEGIN
			INSERT INTO chat_fts(chat_fts, rowid, message)
			VALUES ('delete', old.rowid, old.message);
		END;`,
		`CREATE TABLE IF NOT EXISTS session_snapshots (
			ts REAL PRIMARY KEY,
			data TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_state_snapshots (
			ts REAL PRIMARY KEY,
			data TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS track_conditions_snapshots (
			ts REAL PRIMARY KEY,
			data TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS standings_snapshots (
			ts REAL NOT NULL,
			car_idx INTEGER NOT NULL,
			position INTEGER NOT NULL,
			car_number TEXT NOT NULL DEFAULT '',
			driver TEXT NOT NULL DEFAULT '',
			last_lap_s REAL,
			best_lap_s REAL,
			lap INTEGER,
			created_at REAL NOT NULL,
			PRIMARY KEY (ts, car_idx)
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// querier returns the pending transaction if there is one. The pool holds a
// single connection, so statements must not bypass an open transaction.
// Caller holds s.mu.
func (s *Store) querier() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) InsertChat(ctx context.Context, row model.ChatRow) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return false, err
		}
		s.tx = tx
	}
	res, err := s.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO chat_messages
			(id, username, message, avatar_url, yt_type, ts_iso, ts, day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Username, row.Message, row.AvatarURL, row.YtType,
		row.TsISO, row.Ts, row.Day)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

func (s *Store) SaveSession(ctx context.Context, ts float64, data []byte) error {
	return s.saveRaw(ctx, "session_snapshots", ts, data)
}

func (s *Store) SaveSessionState(ctx context.Context, ts float64, data []byte) error {
	return s.saveRaw(ctx, "session_state_snapshots", ts, data)
}

func (s *Store) SaveTrackConditions(ctx context.Context, ts float64, data []byte) error {
	return s.saveRaw(ctx, "track_conditions_snapshots", ts, data)
}

func (s *Store) saveRaw(ctx context.Context, table string, ts float64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.querier().ExecContext(ctx,
		fmt.Sprintf("INSERT OR IGNORE INTO %s (ts, data) VALUES (?, ?)", table),
		ts, string(data))
	return err
}

func (s *Store) SaveStandings(ctx context.Context, rows []model.StandingsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.querier()
	for i := range rows {
		r := &rows[i]
		if _, err := q.ExecContext(ctx, `
			INSERT OR REPLACE INTO standings_snapshots
				(ts, car_idx, position, car_number, driver, last_lap_s, best_lap_s, lap, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Timestamp, r.CarIdx, r.Position, r.CarNumber, r.Driver,
			r.LastLapS, r.BestLapS, r.Lap, r.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// SearchChat matches all words of q.Text. Best matches first.
func (s *Store) SearchChat(ctx context.Context, q storage.ChatQuery) ([]model.ChatHit, error) {
	match := ftsQuery(q.Text)
	if match == "" {
		return []model.ChatHit{}, nil
	}
	conds := []string{"chat_fts MATCH ?"}
	args := []any{match}
	if q.Username != "" {
		conds = append(conds, "m.username = ?")
		args = append(args, q.Username)
	}
	if q.Day != "" {
		conds = append(conds, "m.day = ?")
		args = append(args, q.Day)
	}
	args = append(args, q.Limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.querier().QueryContext(ctx, fmt.Sprintf(`
		SELECT m.id, m.username, m.message, m.ts_iso, m.ts, bm25(chat_fts) AS rank
		FROM chat_fts JOIN chat_messages m ON m.rowid = chat_fts.rowid
		WHERE %s
		ORDER BY rank ASC, m.ts DESC
		LIMIT ?`, strings.Join(conds, " AND ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ret := make([]model.ChatHit, 0)
	for rows.Next() {
		var hit model.ChatHit
		var rank float64
		if err := rows.Scan(&hit.ID, &hit.Username, &hit.Message,
			&hit.Timestamp, &hit.Epoch, &rank); err != nil {
			return nil, err
		}
		// bm25 is lower for better matches
		hit.Score = -rank
		ret = append(ret, hit)
	}
	return ret, rows.Err()
}

// ftsQuery quotes every word so user input cannot inject FTS5 syntax.
func ftsQuery(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " ")
}

// Close rolls back an uncommitted chat transaction and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil {
			s.l.Warn("rollback failed", log.ErrorField(err))
		}
		s.tx = nil
	}
	return s.db.Close()
}
