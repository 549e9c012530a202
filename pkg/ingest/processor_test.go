package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/cache"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/schema"
	"github.com/mpapenbr/simracecenter-agent-go/testsupport/memstore"
)

var fixedNow = time.Date(2025, 8, 24, 18, 0, 0, 0, time.UTC)

func newTestProcessor(t *testing.T) (*Processor, *cache.StateCache, *memstore.Store) {
	t.Helper()
	c := cache.New()
	s := memstore.New()
	return NewProcessor(c, WithStore(s), WithClock(func() time.Time { return fixedNow })), c, s
}

func TestProcessUpdatesCache(t *testing.T) {
	p, c, s := newTestProcessor(t)
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, schema.Telemetry,
		[]byte(`{"display_name":"Driver A","CarNumber":"12","CarDistAhead":9.2,"CarNumberAhead":"7"}`)))
	frames := c.TelemetryFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, "Driver A", frames[0].DriverID)
	assert.Equal(t, fixedNow, frames[0].UpdatedAt)

	require.NoError(t, p.Process(ctx, schema.Session,
		[]byte(`{"drivers":[{"CarIdx":12,"UserName":"Driver A","CarNumber":"12"}]}`)))
	assert.Len(t, c.Roster(), 1)
	assert.Len(t, s.Sessions, 1)

	require.NoError(t, p.Process(ctx, schema.Standings,
		[]byte(`{"timestamp":10,"cars":[{"car_idx":12,"pos":1,"gap_leader_s":0},{"car_idx":7,"pos":2,"gap_leader_s":1.5}]}`)))
	assert.Len(t, c.Standings(), 2)
	require.Len(t, s.Standings, 2)
	assert.Equal(t, 2, s.Standings[1].Position)
	assert.InDelta(t, 10.0, s.Standings[1].Timestamp, 0.0001)

	require.NoError(t, p.Process(ctx, schema.SessionState,
		[]byte(`{"timestamp":11,"flag_bits":4,"caution":true,"green":false}`)))
	st, ok := c.SessionState()
	require.True(t, ok)
	assert.True(t, st.Caution)
	assert.Len(t, s.SessionStates, 1)

	require.NoError(t, p.Process(ctx, schema.TrackConditions,
		[]byte(`{"timestamp":12,"air_temp_c":23.5}`)))
	_, ok = c.TrackConditions()
	assert.True(t, ok)
	assert.Len(t, s.TrackConditions, 1)

	require.NoError(t, p.Process(ctx, schema.Incident,
		[]byte(`{"timestamp":13,"car_idx":12,"delta":2,"total":4}`)))
	require.NoError(t, p.Process(ctx, schema.Pit,
		[]byte(`{"timestamp":14,"event":"enter","car_idx":12}`)))
	require.NoError(t, p.Process(ctx, schema.Stint,
		[]byte(`{"timestamp":15,"car_idx":12,"fuel_level_l":30.5}`)))
	require.NoError(t, p.Process(ctx, schema.LapTiming,
		[]byte(`{"timestamp":16,"cars":[{"car_idx":12,"lap":3}]}`)))
	assert.Len(t, c.RecentIncidents(10), 1)
	assert.Len(t, c.RecentPits(10), 1)
	assert.Len(t, c.LapTiming(), 1)
	_, ok = c.Stint(12)
	assert.True(t, ok)
}

func TestProcessRejectsInvalidPayloads(t *testing.T) {
	p, c, _ := newTestProcessor(t)
	ctx := context.Background()

	err := p.Process(ctx, schema.Standings, []byte(`{not json`))
	var r schema.Rejected
	require.ErrorAs(t, err, &r)
	assert.Equal(t, "malformed json", r.Reason)

	err = p.Process(ctx, schema.Standings, []byte(`{"timestamp":1,"cars":[{"car_idx":1}]}`))
	require.ErrorAs(t, err, &r)
	assert.Empty(t, c.Standings())
	assert.Equal(t, int64(0), c.Versions()[cache.EntityStandings])

	_, rejected := p.Counts()
	assert.Equal(t, int64(2), rejected[schema.Standings])
}

func TestStoreFailureKeepsCacheUpdate(t *testing.T) {
	p, c, s := newTestProcessor(t)
	s.FailSnapshots = true
	err := p.Process(context.Background(), schema.TrackConditions, []byte(`{"timestamp":1}`))
	require.ErrorIs(t, err, ErrStore)
	require.ErrorIs(t, err, memstore.ErrInjected)
	_, ok := c.TrackConditions()
	assert.True(t, ok)
}

func TestIngestChat(t *testing.T) {
	p, c, s := newTestProcessor(t)
	ctx := context.Background()
	data := []byte(`{"type":"chat_message","data":{"id":"c1","username":"u","message":"hi","timestamp":"bogus"}}`)

	// live passthrough only feeds the cache
	require.NoError(t, p.Process(ctx, schema.ChatMessage, data))
	assert.Len(t, c.RecentChat(5), 1)
	assert.Equal(t, 0, s.Pending())

	inserted, err := p.IngestChat(ctx, data, true)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = p.IngestChat(ctx, data, true)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, s.Commit(ctx))
	rows := s.Committed()
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-08-24", rows[0].Day)
	assert.InDelta(t, float64(fixedNow.Unix()), rows[0].Ts, 0.001)
	assert.Len(t, c.RecentChat(5), 1)

	s.FailChatIDs["c2"] = true
	_, err = p.IngestChat(ctx,
		[]byte(`{"type":"chat_message","data":{"id":"c2","username":"u","message":"x"}}`), true)
	assert.True(t, errors.Is(err, ErrStore))
}
