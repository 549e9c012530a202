package model

// StandingsEntry is one car's position snapshot.
type StandingsEntry struct {
	CarIdx     int      `json:"car_idx"`
	Position   int      `json:"position"`
	ClassPos   *int     `json:"class_pos,omitempty"`
	Lap        *int     `json:"lap,omitempty"`
	GapLeaderS *float64 `json:"gap_leader_s,omitempty"`
	GapAheadS  *float64 `json:"gap_ahead_s,omitempty"`
	LastLapS   *float64 `json:"last_lap_s,omitempty"`
	BestLapS   *float64 `json:"best_lap_s,omitempty"`
	CarNumber  string   `json:"car_number,omitempty"`
	Driver     string   `json:"driver,omitempty"`
}

// StandingsCar is the wire representation of a standings row. Publishers send
// either "pos" or "position".
type StandingsCar struct {
	StandingsEntry
	Pos *int `json:"pos,omitempty"`
}

// StandingsPayload is the wire format of the standings subject.
type StandingsPayload struct {
	Timestamp    float64        `json:"timestamp"`
	LeaderCarIdx *int           `json:"leader_car_idx,omitempty"`
	Cars         []StandingsCar `json:"cars"`
}

// Entries returns the normalized entries in payload order.
func (p *StandingsPayload) Entries() []StandingsEntry {
	ret := make([]StandingsEntry, 0, len(p.Cars))
	for _, c := range p.Cars {
		e := c.StandingsEntry
		if e.Position == 0 && c.Pos != nil {
			e.Position = *c.Pos
		}
		ret = append(ret, e)
	}
	return ret
}

// StandingsUpdate is a complete standings message.
type StandingsUpdate struct {
	Timestamp float64
	Entries   []StandingsEntry
}

// LapTimingEntry is one car's lap-timing snapshot.
type LapTimingEntry struct {
	CarIdx          int      `json:"car_idx"`
	Lap             *int     `json:"lap,omitempty"`
	LastLapS        *float64 `json:"last_lap_s,omitempty"`
	BestLapS        *float64 `json:"best_lap_s,omitempty"`
	CurrentLapTimeS *float64 `json:"current_lap_time_s,omitempty"`
	DeltaBestS      *float64 `json:"delta_best_s,omitempty"`
}

// LapTimingPayload is the wire format of the lap timing subject.
type LapTimingPayload struct {
	Timestamp float64          `json:"timestamp"`
	Cars      []LapTimingEntry `json:"cars"`
}

// LeaderboardEntry is the legacy car/name/gap/last-lap projection.
type LeaderboardEntry struct {
	Pos     int      `json:"pos"`
	CarIdx  int      `json:"carIdx"`
	Car     string   `json:"car"`
	Name    string   `json:"name"`
	Gap     *float64 `json:"gap,omitempty"`
	GapText string   `json:"gapText"`
	LastLap *float64 `json:"lastLap,omitempty"`
}

// StandingsRow is the storage projection of a standings entry.
type StandingsRow struct {
	Timestamp float64
	CarIdx    int
	Position  int
	CarNumber string
	Driver    string
	LastLapS  *float64
	BestLapS  *float64
	Lap       *int
	CreatedAt float64
}
