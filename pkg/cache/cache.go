// Package cache holds the in-memory race state shared by ingestion and tools.
package cache

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/utils/ring"
)

const (
	DefaultIncidentCapacity       = 300
	DefaultPitCapacity            = 300
	DefaultChatCapacity           = 500
	DefaultSessionHistoryCapacity = 900
)

// Entity names used for version counters.
const (
	EntityTelemetry       = "telemetry"
	EntityRoster          = "roster"
	EntityStandings       = "standings"
	EntityLapTiming       = "lap_timing"
	EntitySessionState    = "session_state"
	EntityTrackConditions = "track_conditions"
	EntityIncidents       = "incidents"
	EntityPits            = "pits"
	EntityStints          = "stints"
	EntityChat            = "chat"
)

// StateCache is the single source of truth for the current race state.
// All methods are safe for concurrent use. Readers get copies.
type StateCache struct {
	mu sync.RWMutex

	incidentCap       int
	pitCap            int
	chatCap           int
	sessionHistoryCap int

	telemetry       map[string]model.TelemetryFrame
	roster          []model.RosterEntry
	standings       []model.StandingsEntry
	standingsTS     float64
	gapByCarIdx     map[int]float64
	lapTiming       []model.LapTimingEntry
	sessionState    *model.SessionState
	sessionHistory  *ring.Ring[model.SessionState]
	trackConditions *model.TrackConditions
	incidents       *ring.Ring[model.IncidentEvent]
	pits            *ring.Ring[model.PitEvent]
	stints          map[int]model.StintState
	chat            *ring.Ring[model.ChatMessage]
	chatIDs         map[string]struct{}
	versions        map[string]int64
	now             func() time.Time
}

func New(opts ...Option) *StateCache {
	c := &StateCache{
		incidentCap:       DefaultIncidentCapacity,
		pitCap:            DefaultPitCapacity,
		chatCap:           DefaultChatCapacity,
		sessionHistoryCap: DefaultSessionHistoryCapacity,
		telemetry:         map[string]model.TelemetryFrame{},
		gapByCarIdx:       map[int]float64{},
		stints:            map[int]model.StintState{},
		chatIDs:           map[string]struct{}{},
		versions:          map[string]int64{},
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sessionHistory = ring.New[model.SessionState](c.sessionHistoryCap)
	c.incidents = ring.New[model.IncidentEvent](c.incidentCap)
	c.pits = ring.New[model.PitEvent](c.pitCap)
	c.chat = ring.New[model.ChatMessage](c.chatCap)
	return c
}

func (c *StateCache) bump(entity string) {
	c.versions[entity]++
}

// UpsertTelemetryFrame stores the latest frame for the frame's driver.
// Frames without a driver id are ignored.
func (c *StateCache) UpsertTelemetryFrame(frame model.TelemetryFrame) {
	if frame.DriverID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if frame.UpdatedAt.IsZero() {
		frame.UpdatedAt = c.now()
	}
	c.telemetry[frame.DriverID] = frame.Clone()
	c.bump(EntityTelemetry)
}

// TelemetryFrames returns the frames ordered by driver id.
func (c *StateCache) TelemetryFrames() []model.TelemetryFrame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := slices.Sorted(maps.Keys(c.telemetry))
	ret := make([]model.TelemetryFrame, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, c.telemetry[k].Clone())
	}
	return ret
}

func (c *StateCache) UpdateRoster(entries []model.RosterEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roster = slices.Clone(entries)
	c.bump(EntityRoster)
}

func (c *StateCache) Roster() []model.RosterEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneOrEmpty(c.roster)
}

// SetStandings replaces the standings and rebuilds the car index to gap lookup.
func (c *StateCache) SetStandings(upd model.StandingsUpdate) {
	entries := cloneAll(upd.Entries)
	gaps := make(map[int]float64, len(entries))
	for i := range entries {
		if entries[i].GapLeaderS != nil {
			gaps[entries[i].CarIdx] = *entries[i].GapLeaderS
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.standings = entries
	c.standingsTS = upd.Timestamp
	c.gapByCarIdx = gaps
	c.bump(EntityStandings)
}

func (c *StateCache) Standings() []model.StandingsEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.standings)
}

// StandingsTimestamp returns the timestamp of the current standings.
func (c *StateCache) StandingsTimestamp() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.standingsTS
}

func (c *StateCache) GapByCarIdx() map[int]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.gapByCarIdx)
}

func (c *StateCache) SetLapTiming(entries []model.LapTimingEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lapTiming = cloneAll(entries)
	c.bump(EntityLapTiming)
}

func (c *StateCache) LapTiming() []model.LapTimingEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.lapTiming)
}

// SetSessionState replaces the current state and appends it to the history.
func (c *StateCache) SetSessionState(s model.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := s.Clone()
	c.sessionState = &cur
	c.sessionHistory.Add(s.Clone())
	c.bump(EntitySessionState)
}

func (c *StateCache) SessionState() (model.SessionState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sessionState == nil {
		return model.SessionState{}, false
	}
	return c.sessionState.Clone(), true
}

// SessionStateHistory returns up to n of the latest states, oldest first.
func (c *StateCache) SessionStateHistory(n int) []model.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.sessionHistory.Last(n))
}

func (c *StateCache) SetTrackConditions(tc model.TrackConditions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tc = tc.Clone()
	c.trackConditions = &tc
	c.bump(EntityTrackConditions)
}

func (c *StateCache) TrackConditions() (model.TrackConditions, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.trackConditions == nil {
		return model.TrackConditions{}, false
	}
	return c.trackConditions.Clone(), true
}

func (c *StateCache) AddIncident(ev model.IncidentEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incidents.Add(ev.Clone())
	c.bump(EntityIncidents)
}

func (c *StateCache) RecentIncidents(n int) []model.IncidentEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.incidents.Last(n))
}

func (c *StateCache) AddPit(ev model.PitEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pits.Add(ev.Clone())
	c.bump(EntityPits)
}

func (c *StateCache) RecentPits(n int) []model.PitEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneAll(c.pits.Last(n))
}

// UpdateStint replaces the stint state of the car.
func (c *StateCache) UpdateStint(s model.StintState) {
	s = s.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stints[s.CarIdx] = s
	c.bump(EntityStints)
}

func (c *StateCache) Stint(carIdx int) (model.StintState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stints[carIdx]
	return s.Clone(), ok
}

// Stints returns all stint states ordered by car index.
func (c *StateCache) Stints() []model.StintState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := slices.Sorted(maps.Keys(c.stints))
	ret := make([]model.StintState, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, c.stints[k].Clone())
	}
	return ret
}

// AddChatMessage appends m to the recent chat ring. Messages whose id is
// already held are skipped, so a message seen live and via the durable
// consumer is kept once. It returns false for such a duplicate.
func (c *StateCache) AddChatMessage(m model.ChatMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.ID != "" {
		if _, ok := c.chatIDs[m.ID]; ok {
			return false
		}
		c.chatIDs[m.ID] = struct{}{}
	}
	if old, ok := c.chat.Add(m); ok && old.ID != "" {
		delete(c.chatIDs, old.ID)
	}
	c.bump(EntityChat)
	return true
}

func (c *StateCache) RecentChat(n int) []model.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chat.Last(n)
}

// Versions returns the number of updates applied per entity.
func (c *StateCache) Versions() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.versions)
}

// Sizes returns the number of items held per entity.
func (c *StateCache) Sizes() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]int{
		EntityTelemetry:    len(c.telemetry),
		EntityRoster:       len(c.roster),
		EntityStandings:    len(c.standings),
		EntityLapTiming:    len(c.lapTiming),
		EntitySessionState: c.sessionHistory.Len(),
		EntityIncidents:    c.incidents.Len(),
		EntityPits:         c.pits.Len(),
		EntityStints:       len(c.stints),
		EntityChat:         c.chat.Len(),
	}
}

func cloneOrEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return []T{}
	}
	return slices.Clone(s)
}

type cloner[T any] interface {
	Clone() T
}

// cloneAll deep copies the items of s. The result is never nil.
func cloneAll[T cloner[T]](s []T) []T {
	return lo.Map(s, func(item T, _ int) T { return item.Clone() })
}
