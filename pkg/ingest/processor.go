// Package ingest applies bus payloads to the state cache and the durable store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cache"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/schema"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage"
)

// ErrStore marks a failed durable write. The cache has been updated already.
var ErrStore = errors.New("ingest: store write failed")

type (
	// Processor decodes, validates and applies a single payload.
	// It is safe for concurrent use.
	Processor struct {
		cache *cache.StateCache
		store storage.Store
		now   func() time.Time
		l     *log.Logger

		mu       sync.Mutex
		accepted map[schema.Subject]int64
		rejected map[schema.Subject]int64
	}
	ProcessorOption func(*Processor)
)

// WithStore enables durable writes of snapshots and chat rows.
func WithStore(s storage.Store) ProcessorOption {
	return func(p *Processor) { p.store = s }
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

func WithProcessorLogger(l *log.Logger) ProcessorOption {
	return func(p *Processor) { p.l = l }
}

func NewProcessor(c *cache.StateCache, opts ...ProcessorOption) *Processor {
	ret := &Processor{
		cache:    c,
		now:      time.Now,
		l:        log.Default().Named("ingest"),
		accepted: map[schema.Subject]int64{},
		rejected: map[schema.Subject]int64{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Process applies data of the given kind. Invalid payloads are returned as
// schema.Rejected and leave the cache untouched. Chat payloads are added to
// the cache but not persisted, see IngestChat.
func (p *Processor) Process(ctx context.Context, kind schema.Subject, data []byte) error {
	if kind == schema.ChatMessage {
		_, err := p.IngestChat(ctx, data, false)
		return err
	}
	payload := schema.Decode(kind, data)
	if r, ok := payload.(schema.Rejected); ok {
		p.count(kind, false)
		p.l.Debug("payload rejected",
			log.String("subject", string(kind)), log.String("reason", r.Reason))
		return r
	}
	p.count(kind, true)
	return p.apply(ctx, kind, payload, data)
}

//nolint:whitespace,cyclop // one case per payload kind
func (p *Processor) apply(
	ctx context.Context,
	kind schema.Subject,
	payload schema.Payload,
	raw []byte,
) error {
	switch v := payload.(type) {
	case *model.TelemetryPayload:
		if frame, ok := v.ToFrame(p.now()); ok {
			p.cache.UpsertTelemetryFrame(frame)
		}
	case *model.SessionPayload:
		if roster := v.Roster(); len(roster) > 0 {
			p.cache.UpdateRoster(roster)
		}
		return p.storeErr(kind, p.withStore(func(s storage.Store) error {
			return s.SaveSession(ctx, v.Timestamp, raw)
		}))
	case *model.SessionState:
		p.cache.SetSessionState(*v)
		return p.storeErr(kind, p.withStore(func(s storage.Store) error {
			return s.SaveSessionState(ctx, v.Timestamp, raw)
		}))
	case *model.StandingsUpdate:
		p.cache.SetStandings(*v)
		return p.storeErr(kind, p.withStore(func(s storage.Store) error {
			return s.SaveStandings(ctx, p.standingsRows(v))
		}))
	case *model.LapTimingPayload:
		p.cache.SetLapTiming(v.Cars)
	case *model.IncidentEvent:
		p.cache.AddIncident(*v)
	case *model.PitEvent:
		p.cache.AddPit(*v)
	case *model.TrackConditions:
		p.cache.SetTrackConditions(*v)
		return p.storeErr(kind, p.withStore(func(s storage.Store) error {
			return s.SaveTrackConditions(ctx, v.Timestamp, raw)
		}))
	case *model.StintState:
		p.cache.UpdateStint(*v)
	default:
		return fmt.Errorf("unexpected payload %T for %s", payload, kind)
	}
	return nil
}

func (p *Processor) standingsRows(upd *model.StandingsUpdate) []model.StandingsRow {
	created := float64(p.now().UnixNano()) / float64(time.Second)
	ret := make([]model.StandingsRow, 0, len(upd.Entries))
	for i := range upd.Entries {
		e := &upd.Entries[i]
		ret = append(ret, model.StandingsRow{
			Timestamp: upd.Timestamp,
			CarIdx:    e.CarIdx,
			Position:  e.Position,
			CarNumber: e.CarNumber,
			Driver:    e.Driver,
			LastLapS:  e.LastLapS,
			BestLapS:  e.BestLapS,
			Lap:       e.Lap,
			CreatedAt: created,
		})
	}
	return ret
}

// IngestChat validates a chat envelope, adds it to the cache and, if persist
// is set and a store is configured, inserts the chat row. inserted reports a
// new durable row. Storage failures are returned wrapping ErrStore.
//
//nolint:whitespace // can't make both editor and linter happy
func (p *Processor) IngestChat(
	ctx context.Context,
	data []byte,
	persist bool,
) (inserted bool, err error) {
	payload := schema.Decode(schema.ChatMessage, data)
	env, ok := payload.(*model.ChatEnvelope)
	if !ok {
		p.count(schema.ChatMessage, false)
		if r, isRejected := payload.(schema.Rejected); isRejected {
			p.l.Debug("chat rejected", log.String("reason", r.Reason))
			return false, r
		}
		return false, fmt.Errorf("unexpected payload %T", payload)
	}
	p.count(schema.ChatMessage, true)
	p.cache.AddChatMessage(env.Data)
	if !persist || p.store == nil {
		return false, nil
	}
	inserted, err = p.store.InsertChat(ctx, env.Data.ToRow(p.now()))
	if err != nil {
		return false, p.storeErr(schema.ChatMessage, err)
	}
	return inserted, nil
}

// Store returns the configured store, nil if none.
func (p *Processor) Store() storage.Store {
	return p.store
}

func (p *Processor) withStore(f func(s storage.Store) error) error {
	if p.store == nil {
		return nil
	}
	return f(p.store)
}

func (p *Processor) storeErr(kind schema.Subject, err error) error {
	if err == nil {
		return nil
	}
	p.l.Warn("store write failed",
		log.String("subject", string(kind)), log.ErrorField(err))
	return fmt.Errorf("%w: %s: %w", ErrStore, kind, err)
}

func (p *Processor) count(kind schema.Subject, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.accepted[kind]++
	} else {
		p.rejected[kind]++
	}
}

// Counts returns the accepted and rejected payloads per subject kind.
func (p *Processor) Counts() (accepted, rejected map[schema.Subject]int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.accepted), maps.Clone(p.rejected)
}
