package cache

import (
	"github.com/shopspring/decimal"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
)

// Leader returns the first standings entry. If no standings have arrived yet
// the first roster entry is used (with Pos 0). ok is false if both are empty.
func (c *StateCache) Leader() (leader model.LeaderboardEntry, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.standings) > 0 {
		return projectEntry(c.standings[0], rosterIndex(c.roster)), true
	}
	if len(c.roster) > 0 {
		r := c.roster[0]
		return model.LeaderboardEntry{CarIdx: r.CarIdx, Car: r.CarNumber, Name: r.Name}, true
	}
	return model.LeaderboardEntry{}, false
}

// Leaderboard is ProjectLeaderboard applied to the current state.
func (c *StateCache) Leaderboard() []model.LeaderboardEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ProjectLeaderboard(c.standings, rosterIndex(c.roster))
}

// ProjectLeaderboard derives the car/name/gap/last-lap view from standings.
// Order is taken from standings as given. Car number and name fall back to the
// roster lookup when the standings entry does not carry them.
// No standings means an empty result, regardless of the roster.
//
//nolint:whitespace // can't make both editor and linter happy
func ProjectLeaderboard(
	standings []model.StandingsEntry,
	rosterByCarIdx map[int]model.RosterEntry,
) []model.LeaderboardEntry {
	ret := make([]model.LeaderboardEntry, 0, len(standings))
	for i := range standings {
		ret = append(ret, projectEntry(standings[i], rosterByCarIdx))
	}
	return ret
}

//nolint:whitespace // can't make both editor and linter happy
func projectEntry(
	s model.StandingsEntry,
	rosterByCarIdx map[int]model.RosterEntry,
) model.LeaderboardEntry {
	e := model.LeaderboardEntry{
		Pos:     s.Position,
		CarIdx:  s.CarIdx,
		Car:     s.CarNumber,
		Name:    s.Driver,
		Gap:     clonePtr(s.GapLeaderS),
		LastLap: clonePtr(s.LastLapS),
	}
	if r, ok := rosterByCarIdx[s.CarIdx]; ok {
		if e.Car == "" {
			e.Car = r.CarNumber
		}
		if e.Name == "" {
			e.Name = r.Name
		}
	}
	if s.GapLeaderS != nil {
		e.GapText = decimal.NewFromFloat(*s.GapLeaderS).StringFixed(3)
	}
	return e
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func rosterIndex(roster []model.RosterEntry) map[int]model.RosterEntry {
	ret := make(map[int]model.RosterEntry, len(roster))
	for _, r := range roster {
		ret[r.CarIdx] = r
	}
	return ret
}

// RosterByCarIdx returns the roster keyed by car index.
func (c *StateCache) RosterByCarIdx() map[int]model.RosterEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return rosterIndex(c.roster)
}
