package snapshot

// Note: raw payloads are stored as jsonb, standings are stored per car

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/repository"
)

// Table names of the raw payload snapshots.
const (
	SessionTable         = "session_snapshots"
	SessionStateTable    = "session_state_snapshots"
	TrackConditionsTable = "track_conditions_snapshots"
)

// CreateRaw stores data with timestamp ts in table.
// A second snapshot with the same ts is ignored.
//
//nolint:whitespace // can't make both editor and linter happy
func CreateRaw(
	ctx context.Context,
	conn repository.Querier,
	table string,
	ts float64,
	data []byte,
) error {
	_, err := conn.Exec(ctx, fmt.Sprintf(
		"insert into %s (ts, data) values ($1,$2) on conflict (ts) do nothing", table),
		ts, data)
	return err
}

// CreateStandings stores all rows in one batch.
//
//nolint:whitespace // can't make both editor and linter happy
func CreateStandings(
	ctx context.Context,
	conn repository.Querier,
	rows []model.StandingsRow,
) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range rows {
		r := &rows[i]
		batch.Queue(`
		insert into standings_snapshots
			(ts, car_idx, position, car_number, driver, last_lap_s, best_lap_s, lap, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		on conflict (ts, car_idx) do update set
			position=excluded.position,
			car_number=excluded.car_number,
			driver=excluded.driver,
			last_lap_s=excluded.last_lap_s,
			best_lap_s=excluded.best_lap_s,
			lap=excluded.lap,
			created_at=excluded.created_at`,
			r.Timestamp, r.CarIdx, r.Position, r.CarNumber, r.Driver,
			r.LastLapS, r.BestLapS, r.Lap, r.CreatedAt)
	}
	return conn.SendBatch(ctx, batch).Close()
}

// LoadStandings returns the rows of the snapshot at ts ordered by position.
func LoadStandings(ctx context.Context, conn repository.Querier, ts float64) (
	[]model.StandingsRow, error,
) {
	rows, err := conn.Query(ctx, `
	select ts, car_idx, position, car_number, driver, last_lap_s, best_lap_s, lap, created_at
	from standings_snapshots where ts=$1 order by position asc`, ts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ret := make([]model.StandingsRow, 0)
	for rows.Next() {
		var r model.StandingsRow
		if err := rows.Scan(&r.Timestamp, &r.CarIdx, &r.Position, &r.CarNumber,
			&r.Driver, &r.LastLapS, &r.BestLapS, &r.Lap, &r.CreatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}
	return ret, rows.Err()
}

// CountRaw returns the number of snapshots in table.
func CountRaw(ctx context.Context, conn repository.Querier, table string) (int, error) {
	var n int
	err := conn.QueryRow(ctx, fmt.Sprintf("select count(*) from %s", table)).Scan(&n)
	return n, err
}
