package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gotestassert "gotest.tools/v3/assert"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/answer"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cache"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/testsupport/memstore"
)

func ptr[T any](v T) *T { return &v }

func frame(id, car, ahead string, distAhead float64, behind string, distBehind float64) model.TelemetryFrame {
	f := model.TelemetryFrame{DriverID: id, DisplayName: id, CarNumber: car}
	if ahead != "" {
		f.CarNumberAhead = ahead
		f.CarDistAhead = ptr(distAhead)
	}
	if behind != "" {
		f.CarNumberBehind = behind
		f.CarDistBehind = ptr(distBehind)
	}
	return f
}

func TestCurrentBattleEmptyCache(t *testing.T) {
	res := CurrentBattle(cache.New(), 1, 50)
	assert.Empty(t, res.Pairs)
	assert.Equal(t, 0, res.RosterSize)
	assert.Equal(t, 1, res.TopNRequested)
}

func TestCurrentBattleThreshold(t *testing.T) {
	c := cache.New()
	c.UpsertTelemetryFrame(frame("Alice", "7", "12", 9.2, "", 0))
	c.UpsertTelemetryFrame(frame("Bob", "12", "", 0, "7", 9.2))
	c.UpdateRoster([]model.RosterEntry{{CarIdx: 1, CarNumber: "7"}, {CarIdx: 2, CarNumber: "12"}})

	res := CurrentBattle(c, 5, 50)
	require.Len(t, res.Pairs, 1)
	p := res.Pairs[0]
	assert.InDelta(t, 9.2, p.DistanceM, 1e-9)
	assert.ElementsMatch(t, []string{"7", "12"}, []string{p.FocusCar, p.OtherCar})
	assert.NotEmpty(t, p.OtherDriver)
	assert.Equal(t, 2, res.RosterSize)

	res = CurrentBattle(c, 5, 9.1)
	assert.Empty(t, res.Pairs)
}

func TestCurrentBattleKeepsMinimumAndOrders(t *testing.T) {
	c := cache.New()
	c.UpsertTelemetryFrame(frame("A", "1", "2", 30, "", 0))
	c.UpsertTelemetryFrame(frame("B", "2", "3", 4.5, "1", 28))
	c.UpsertTelemetryFrame(frame("C", "3", "", 0, "2", 5))
	c.UpsertTelemetryFrame(frame("D", "4", "5", -1, "", 0))

	res := CurrentBattle(c, 10, 50)
	want := []struct {
		cars [2]string
		dist float64
	}{
		{[2]string{"2", "3"}, 4.5},
		{[2]string{"2", "1"}, 28},
	}
	require.Len(t, res.Pairs, len(want))
	for i, w := range want {
		assert.Equal(t, w.cars[0], res.Pairs[i].FocusCar, "pair %d", i)
		assert.Equal(t, w.cars[1], res.Pairs[i].OtherCar, "pair %d", i)
		assert.InDelta(t, w.dist, res.Pairs[i].DistanceM, 1e-9, "pair %d", i)
	}
	assert.Equal(t, "C", res.Pairs[0].OtherDriver)

	assert.Len(t, CurrentBattle(c, 1, 50).Pairs, 1)
}

func TestRosterAndSnapshot(t *testing.T) {
	c := cache.New()
	c.UpdateRoster([]model.RosterEntry{
		{CarIdx: 3, CarNumber: "33", Name: "Carl"},
		{CarIdx: 4, CarNumber: "44", Name: "Dora"},
	})
	r := Roster(c)
	gotestassert.Equal(t, r.Count, 2)
	gotestassert.DeepEqual(t, r.Drivers[1], RosterDriver{CarIdx: 4, Car: "44", Name: "Dora"})

	snap := LiveSnapshot(c)
	assert.Nil(t, snap.Session)
	assert.Empty(t, snap.Leaderboard)

	c.SetStandings(model.StandingsUpdate{Timestamp: 1, Entries: []model.StandingsEntry{
		{CarIdx: 4, Position: 1},
		{CarIdx: 3, Position: 2, GapLeaderS: ptr(1.5)},
	}})
	c.SetSessionState(model.SessionState{Timestamp: 2, SessionType: "Race", Green: true})
	snap = LiveSnapshot(c)
	require.NotNil(t, snap.Session)
	assert.Equal(t, "Race", snap.Session.SessionType)
	require.Len(t, snap.Leaderboard, 2)
	assert.Equal(t, "Dora", snap.Leaderboard[0].Name)
	assert.Equal(t, "1.500", snap.Leaderboard[1].GapText)
}

func TestSessionHistoryClamp(t *testing.T) {
	c := cache.New()
	for i := range 60 {
		c.SetSessionState(model.SessionState{Timestamp: float64(i)})
	}
	tests := []struct {
		limit int
		want  int
	}{{0, 1}, {-3, 1}, {5, 5}, {50, 50}, {500, 50}}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.limit), func(t *testing.T) {
			res := SessionHistory(c, tt.limit)
			assert.Equal(t, tt.want, res.Count)
			assert.InDelta(t, 59.0, res.Items[len(res.Items)-1].Timestamp, 1e-9)
		})
	}
}

func TestSearchChat(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	for i, msg := range []string{"who leads", "nice pass", "who is car 7"} {
		_, err := store.InsertChat(ctx, model.ChatRow{
			ID: fmt.Sprint(i), Username: "bob", Message: msg, Ts: float64(i), Day: "2025-05-01",
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.Commit(ctx))

	res, err := SearchChat(ctx, store, "  ", 10, "", "")
	require.NoError(t, err)
	assert.Equal(t, "empty query", res.Error)

	res, err = SearchChat(ctx, nil, "who", 10, "", "")
	require.NoError(t, err)
	assert.Equal(t, "database_missing", res.Error)

	res, err = SearchChat(ctx, store, "who", 1000, "", "")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Limit)
	assert.Equal(t, 2, res.HitCount)

	res, err = SearchChat(ctx, store, "who", 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Limit)
	assert.Equal(t, 1, res.HitCount)
}

func TestOperationalStatus(t *testing.T) {
	c := cache.New()
	c.AddIncident(model.IncidentEvent{CarIdx: 1, Delta: 2, Total: 2})
	res := OperationalStatus(StatusSource{
		Cache:    c,
		Pipeline: func() model.ChatPipelineStats { return model.ChatPipelineStats{Received: 3} },
		Started:  time.Now().Add(-time.Minute),
	})
	assert.Equal(t, 1, res.CacheSizes[cache.EntityIncidents])
	require.NotNil(t, res.Pipeline)
	assert.Equal(t, int64(3), res.Pipeline.Received)
	assert.Nil(t, res.Catchup)
	assert.GreaterOrEqual(t, res.Uptime, time.Minute)
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		msg  string
		want Intent
	}{
		{"any close battles?", IntentBattle},
		{"Closest battle?", IntentBattle},
		{"who's leading?", IntentLeader},
		{"who is fastest?", IntentFastest},
		{"is there a jimmy?", IntentDriverSearch},
		{"what happened?", IntentRecentEvents},
		{"who is that", IntentDriverInfo},
		{"when do they pit", IntentStrategy},
		{"was that a penalty", IntentIncident},
		{"hello", IntentOther},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.msg))
		})
	}
}

func TestDirector(t *testing.T) {
	ctx := context.Background()
	c := cache.New()
	d := NewDirector(c)

	got, err := d.Answer(ctx, "who is the leader?")
	require.NoError(t, err)
	assert.Equal(t, "No data yet.", got)

	got, err = d.Answer(ctx, "any battle?")
	require.NoError(t, err)
	assert.Equal(t, "No close battles (<50m) among 0 cars.", got)

	c.SetStandings(model.StandingsUpdate{Timestamp: 1, Entries: []model.StandingsEntry{
		{CarIdx: 1, Position: 1, CarNumber: "7", Driver: "Alice"},
		{CarIdx: 2, Position: 2, CarNumber: "12", Driver: "Bob", GapLeaderS: ptr(2.25)},
	}})
	c.UpsertTelemetryFrame(frame("Alice", "7", "12", 9.2, "", 0))
	got, err = d.Answer(ctx, "who is the leader?")
	require.NoError(t, err)
	assert.Equal(t, "Leader: Alice (Car 7), gap to P2 2.250s", got)

	got, err = d.Answer(ctx, "closest battle?")
	require.NoError(t, err)
	assert.Equal(t, "Closest battle: Car 7 vs 12, 9.2m.", got)

	_, err = d.Answer(ctx, "hello")
	require.ErrorIs(t, err, answer.ErrNoAnswer)
}

func TestDirectorLeaderFromRoster(t *testing.T) {
	c := cache.New()
	c.UpdateRoster([]model.RosterEntry{
		{CarIdx: 3, CarNumber: "33", Name: "Carla"},
		{CarIdx: 4, CarNumber: "44", Name: "Dora"},
	})
	got, err := NewDirector(c).Answer(context.Background(), "who is the leader?")
	require.NoError(t, err)
	assert.Equal(t, "Leader: Carla (Car 33), gap to P2 -", got)
}

func TestFastestLapFromLapTiming(t *testing.T) {
	c := cache.New()
	c.UpdateRoster([]model.RosterEntry{
		{CarIdx: 1, CarNumber: "7", Name: "Alice"},
		{CarIdx: 2, CarNumber: "12", Name: "Bob"},
		{CarIdx: 3, CarNumber: "3", Name: "Carla"},
	})
	c.SetLapTiming([]model.LapTimingEntry{
		{CarIdx: 1, BestLapS: ptr(91.5), Lap: ptr(4)},
		{CarIdx: 2, BestLapS: ptr(90.25), LastLapS: ptr(92.0), Lap: ptr(5)},
		{CarIdx: 3, BestLapS: ptr(-1.0)},
		{CarIdx: 4, BestLapS: ptr(89.0), Lap: ptr(-1)},
		{CarIdx: 5},
	})
	// standings are ignored while lap timing is available
	c.SetStandings(model.StandingsUpdate{Entries: []model.StandingsEntry{
		{CarIdx: 3, Position: 1, LastLapS: ptr(80.0)},
	}})

	res := FastestLap(c, 10)
	assert.Equal(t, SourceLapTiming, res.Source)
	assert.Equal(t, 2, res.Count)
	require.NotNil(t, res.Fastest)
	assert.Equal(t, "Bob", res.Fastest.Name)
	assert.Equal(t, "12", res.Fastest.Car)
	require.Len(t, res.TopN, 2)
	assert.Equal(t, "Alice", res.TopN[1].Name)
	assert.InDelta(t, 0, res.TopN[0].GapFastestS, 1e-9)
	assert.InDelta(t, 1.25, res.TopN[1].GapFastestS, 1e-9)

	assert.Len(t, FastestLap(c, 1).TopN, 1)
}

func TestFastestLapFallsBackToStandings(t *testing.T) {
	c := cache.New()
	res := FastestLap(c, 0)
	assert.Equal(t, SourceStandings, res.Source)
	assert.Nil(t, res.Fastest)
	assert.Empty(t, res.TopN)
	assert.Equal(t, "No lap timing data yet.", res.Message)

	c.SetStandings(model.StandingsUpdate{Entries: []model.StandingsEntry{
		{CarIdx: 1, Position: 1, CarNumber: "7", Driver: "Alice", LastLapS: ptr(92.1)},
		{CarIdx: 2, Position: 2, CarNumber: "12", Driver: "Bob", LastLapS: ptr(91.9)},
		{CarIdx: 3, Position: 3},
	}})
	res = FastestLap(c, 5)
	assert.Equal(t, SourceStandings, res.Source)
	require.Len(t, res.TopN, 2)
	assert.Equal(t, "Bob", res.Fastest.Name)
	assert.InDelta(t, 0.2, res.TopN[1].GapFastestS, 1e-9)

	got, err := NewDirector(c).Answer(context.Background(), "who has the fastest lap?")
	require.NoError(t, err)
	assert.Equal(t, "Fastest lap: Bob (Car 12), 91.900s", got)
}

func TestFacts(t *testing.T) {
	c := cache.New()
	text, err := Facts(c)(context.Background())
	require.NoError(t, err)
	assert.Empty(t, text)

	c.SetSessionState(model.SessionState{SessionType: "Race", CurrentLap: ptr(12), Caution: true})
	c.SetStandings(model.StandingsUpdate{Timestamp: 1, Entries: []model.StandingsEntry{
		{CarIdx: 1, Position: 1, CarNumber: "7", Driver: "Alice"},
	}})
	text, err = Facts(c)(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "Session: Race, lap 12, caution\n")
	assert.Contains(t, text, "P1 #7 Alice\n")
}
