// Package tools is the read-only query surface over the race state used by
// answer generation.
package tools

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/cache"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/storage"
)

const (
	DefaultBattleTopN        = 1
	DefaultBattleMaxDistance = 50.0
	DefaultHistoryLimit      = 5
	DefaultChatSearchLimit   = 10
)

// BattlePair is the closest known distance between two cars.
type BattlePair struct {
	FocusCar    string  `json:"focusCar"`
	OtherCar    string  `json:"otherCar"`
	DistanceM   float64 `json:"distanceM"`
	Relation    string  `json:"relation"`
	Driver      string  `json:"driver"`
	OtherDriver string  `json:"otherDriver"`
}

type BattleResult struct {
	GeneratedAt   time.Time    `json:"generatedAt"`
	Pairs         []BattlePair `json:"pairs"`
	RosterSize    int          `json:"rosterSize"`
	Emulator      bool         `json:"emulator"`
	TopNRequested int          `json:"topNRequested"`
	MaxDistanceM  float64      `json:"maxDistanceM"`
}

// CurrentBattle collects car pairs from the ahead/behind relations of all
// telemetry frames. A pair is keyed by both car numbers regardless of
// direction and keeps the smallest distance in (0, maxDistance].
func CurrentBattle(c *cache.StateCache, topN int, maxDistance float64) BattleResult {
	topN = max(1, topN)
	frames := c.TelemetryFrames()
	pairs := map[[2]string]BattlePair{}
	emulator := false

	consider := func(fr *model.TelemetryFrame, dist *float64, other, relation string) {
		if dist == nil || *dist <= 0 || other == "" || *dist > maxDistance {
			return
		}
		key := [2]string{fr.CarNumber, other}
		slices.Sort(key[:])
		if prev, ok := pairs[key]; ok && prev.DistanceM <= *dist {
			return
		}
		pairs[key] = BattlePair{
			FocusCar:  fr.CarNumber,
			OtherCar:  other,
			DistanceM: *dist,
			Relation:  relation,
			Driver:    fr.DisplayName,
		}
	}
	for i := range frames {
		fr := &frames[i]
		if fr.CarNumber == "" {
			continue
		}
		emulator = emulator || fr.Emulator
		consider(fr, fr.CarDistAhead, fr.CarNumberAhead, "ahead")
		consider(fr, fr.CarDistBehind, fr.CarNumberBehind, "behind")
	}

	nameByCar := map[string]string{}
	for i := range frames {
		if frames[i].CarNumber != "" {
			nameByCar[frames[i].CarNumber] = frames[i].DisplayName
		}
	}
	list := lo.Map(lo.Values(pairs), func(p BattlePair, _ int) BattlePair {
		if name, ok := nameByCar[p.OtherCar]; ok && name != "" {
			p.OtherDriver = name
		}
		return p
	})
	slices.SortFunc(list, func(a, b BattlePair) int {
		return cmp.Or(cmp.Compare(a.DistanceM, b.DistanceM),
			cmp.Compare(a.FocusCar, b.FocusCar))
	})
	return BattleResult{
		GeneratedAt:   time.Now().UTC(),
		Pairs:         lo.Slice(list, 0, topN),
		RosterSize:    len(c.Roster()),
		Emulator:      emulator,
		TopNRequested: topN,
		MaxDistanceM:  maxDistance,
	}
}

type RosterDriver struct {
	CarIdx int    `json:"carIdx"`
	Car    string `json:"car"`
	Name   string `json:"name"`
}

type RosterResult struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Count       int            `json:"count"`
	Drivers     []RosterDriver `json:"drivers"`
}

func Roster(c *cache.StateCache) RosterResult {
	drivers := lo.Map(c.Roster(), func(r model.RosterEntry, _ int) RosterDriver {
		return RosterDriver{CarIdx: r.CarIdx, Car: r.CarNumber, Name: r.Name}
	})
	return RosterResult{GeneratedAt: time.Now().UTC(), Count: len(drivers), Drivers: drivers}
}

type LiveSnapshotResult struct {
	GeneratedAt     time.Time                `json:"generatedAt"`
	Session         *model.SessionState      `json:"session,omitempty"`
	TrackConditions *model.TrackConditions   `json:"trackConditions,omitempty"`
	Leaderboard     []model.LeaderboardEntry `json:"leaderboard"`
	Versions        map[string]int64         `json:"versions"`
}

func LiveSnapshot(c *cache.StateCache) LiveSnapshotResult {
	ret := LiveSnapshotResult{
		GeneratedAt: time.Now().UTC(),
		Leaderboard: c.Leaderboard(),
		Versions:    c.Versions(),
	}
	if s, ok := c.SessionState(); ok {
		ret.Session = &s
	}
	if tc, ok := c.TrackConditions(); ok {
		ret.TrackConditions = &tc
	}
	return ret
}

type SessionHistoryResult struct {
	GeneratedAt time.Time            `json:"generatedAt"`
	Count       int                  `json:"count"`
	Items       []model.SessionState `json:"items"`
}

// SessionHistory returns the latest session states, oldest first.
// limit is clamped to 1..50.
func SessionHistory(c *cache.StateCache, limit int) SessionHistoryResult {
	items := c.SessionStateHistory(clamp(limit, 1, 50))
	return SessionHistoryResult{GeneratedAt: time.Now().UTC(), Count: len(items), Items: items}
}

type ChatSearchResult struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	Query       string          `json:"query"`
	Limit       int             `json:"limit"`
	HitCount    int             `json:"hitCount"`
	Results     []model.ChatHit `json:"results"`
	Error       string          `json:"error,omitempty"`
}

// SearchChat runs a full text search on the persisted chat. limit is clamped
// to 1..100. An empty query or a missing store is reported in Error.
//
//nolint:whitespace // can't make both editor and linter happy
func SearchChat(
	ctx context.Context,
	store storage.Store,
	query string,
	limit int,
	username, day string,
) (ChatSearchResult, error) {
	ret := ChatSearchResult{
		GeneratedAt: time.Now().UTC(),
		Query:       strings.TrimSpace(query),
		Results:     []model.ChatHit{},
	}
	if ret.Query == "" {
		ret.Error = "empty query"
		return ret, nil
	}
	ret.Limit = clamp(limit, 1, 100)
	if store == nil {
		ret.Error = "database_missing"
		return ret, nil
	}
	hits, err := store.SearchChat(ctx, storage.ChatQuery{
		Text:     ret.Query,
		Limit:    ret.Limit,
		Username: strings.TrimSpace(username),
		Day:      strings.TrimSpace(day),
	})
	if err != nil {
		return ret, err
	}
	ret.Results = hits
	ret.HitCount = len(hits)
	return ret, nil
}

// StatusSource collects the components reported by OperationalStatus.
// Nil funcs are omitted.
type StatusSource struct {
	Cache           *cache.StateCache
	Catchup         func() model.CatchupMetrics
	ChatPersistence func() model.ChatPersistenceMetrics
	Pipeline        func() model.ChatPipelineStats
	Started         time.Time
}

type StatusResult struct {
	GeneratedAt     time.Time                     `json:"generatedAt"`
	Uptime          time.Duration                 `json:"uptime"`
	CacheSizes      map[string]int                `json:"cacheSizes"`
	Versions        map[string]int64              `json:"versions"`
	Catchup         *model.CatchupMetrics         `json:"catchup,omitempty"`
	ChatPersistence *model.ChatPersistenceMetrics `json:"chatPersistence,omitempty"`
	Pipeline        *model.ChatPipelineStats      `json:"pipeline,omitempty"`
}

func OperationalStatus(src StatusSource) StatusResult {
	now := time.Now().UTC()
	ret := StatusResult{
		GeneratedAt: now,
		CacheSizes:  map[string]int{},
		Versions:    map[string]int64{},
	}
	if !src.Started.IsZero() {
		ret.Uptime = now.Sub(src.Started)
	}
	if src.Cache != nil {
		ret.CacheSizes = src.Cache.Sizes()
		ret.Versions = src.Cache.Versions()
	}
	if src.Catchup != nil {
		m := src.Catchup()
		ret.Catchup = &m
	}
	if src.ChatPersistence != nil {
		m := src.ChatPersistence()
		ret.ChatPersistence = &m
	}
	if src.Pipeline != nil {
		m := src.Pipeline()
		ret.Pipeline = &m
	}
	return ret
}

func clamp(v, lower, upper int) int {
	return min(max(v, lower), upper)
}
