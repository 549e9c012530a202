// Package memstore provides an in-memory storage.Store for tests.
package memstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage"
)

var ErrInjected = errors.New("memstore: injected failure")

type Snapshot struct {
	Ts   float64
	Data string
}

// Store keeps committed rows separate from pending ones so tests can verify
// commit behavior.
type Store struct {
	mu              sync.Mutex
	committed       map[string]model.ChatRow
	pending         map[string]model.ChatRow
	order           []string
	Commits         int
	Sessions        []Snapshot
	SessionStates   []Snapshot
	TrackConditions []Snapshot
	Standings       []model.StandingsRow
	// FailChatIDs makes InsertChat fail for these ids.
	FailChatIDs map[string]bool
	// FailSnapshots makes all snapshot writes fail.
	FailSnapshots bool
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		committed:   map[string]model.ChatRow{},
		pending:     map[string]model.ChatRow{},
		FailChatIDs: map[string]bool{},
	}
}

func (s *Store) InsertChat(_ context.Context, row model.ChatRow) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailChatIDs[row.ID] {
		return false, ErrInjected
	}
	if _, ok := s.committed[row.ID]; ok {
		return false, nil
	}
	if _, ok := s.pending[row.ID]; ok {
		return false, nil
	}
	s.pending[row.ID] = row
	s.order = append(s.order, row.ID)
	return true, nil
}

func (s *Store) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Commits++
	for k, v := range s.pending {
		s.committed[k] = v
	}
	clear(s.pending)
	return nil
}

func (s *Store) snapshotErr() error {
	if s.FailSnapshots {
		return ErrInjected
	}
	return nil
}

func (s *Store) SaveSession(_ context.Context, ts float64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snapshotErr(); err != nil {
		return err
	}
	s.Sessions = append(s.Sessions, Snapshot{ts, string(data)})
	return nil
}

func (s *Store) SaveSessionState(_ context.Context, ts float64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snapshotErr(); err != nil {
		return err
	}
	s.SessionStates = append(s.SessionStates, Snapshot{ts, string(data)})
	return nil
}

func (s *Store) SaveStandings(_ context.Context, rows []model.StandingsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snapshotErr(); err != nil {
		return err
	}
	s.Standings = append(s.Standings, rows...)
	return nil
}

func (s *Store) SaveTrackConditions(_ context.Context, ts float64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snapshotErr(); err != nil {
		return err
	}
	s.TrackConditions = append(s.TrackConditions, Snapshot{ts, string(data)})
	return nil
}

// SearchChat matches committed rows containing the query text.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Store) SearchChat(
	_ context.Context,
	q storage.ChatQuery,
) ([]model.ChatHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := []model.ChatHit{}
	for _, id := range slices.Backward(s.order) {
		row, ok := s.committed[id]
		if !ok {
			continue
		}
		if !strings.Contains(strings.ToLower(row.Message), strings.ToLower(q.Text)) {
			continue
		}
		if q.Username != "" && row.Username != q.Username {
			continue
		}
		if q.Day != "" && row.Day != q.Day {
			continue
		}
		ret = append(ret, model.ChatHit{
			ID: row.ID, Username: row.Username, Message: row.Message,
			Timestamp: row.TsISO, Epoch: row.Ts,
		})
		if q.Limit > 0 && len(ret) >= q.Limit {
			break
		}
	}
	return ret, nil
}

func (s *Store) Close() error { return nil }

// Committed returns the committed chat rows in insert order.
func (s *Store) Committed() []model.ChatRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := []model.ChatRow{}
	for _, id := range s.order {
		if row, ok := s.committed[id]; ok {
			ret = append(ret, row)
		}
	}
	return ret
}

func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Store) CommitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Commits
}
