package tools

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/cache"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
)

const DefaultFastestTopN = 5

const (
	SourceLapTiming = "lap_timing"
	SourceStandings = "standings"
)

type FastLap struct {
	CarIdx      int      `json:"carIdx"`
	Car         string   `json:"car,omitempty"`
	Name        string   `json:"name,omitempty"`
	BestLapS    float64  `json:"bestLapS"`
	LastLapS    *float64 `json:"lastLapS,omitempty"`
	Lap         *int     `json:"lap,omitempty"`
	GapFastestS float64  `json:"gapFastestS"`
}

type FastestLapResult struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Source      string    `json:"source"`
	Fastest     *FastLap  `json:"fastest"`
	TopN        []FastLap `json:"topN"`
	Count       int       `json:"count"`
	Message     string    `json:"message,omitempty"`
}

// FastestLap ranks the cars by best lap. Lap timing is used when present,
// otherwise the last lap from the standings stands in for the best lap.
// Missing or non-positive times and negative laps are skipped. topN is
// clamped to 1..50.
func FastestLap(c *cache.StateCache, topN int) FastestLapResult {
	topN = clamp(topN, 1, 50)
	roster := c.RosterByCarIdx()
	ret := FastestLapResult{GeneratedAt: time.Now().UTC(), TopN: []FastLap{}}

	var laps []FastLap
	if timing := c.LapTiming(); len(timing) > 0 {
		ret.Source = SourceLapTiming
		for _, e := range timing {
			if e.BestLapS == nil || *e.BestLapS <= 0 || (e.Lap != nil && *e.Lap < 0) {
				continue
			}
			laps = append(laps, FastLap{
				CarIdx:   e.CarIdx,
				BestLapS: *e.BestLapS,
				LastLapS: e.LastLapS,
				Lap:      e.Lap,
			})
		}
	} else {
		ret.Source = SourceStandings
		for _, e := range c.Standings() {
			if e.LastLapS == nil || *e.LastLapS <= 0 {
				continue
			}
			laps = append(laps, FastLap{
				CarIdx:   e.CarIdx,
				Car:      e.CarNumber,
				Name:     e.Driver,
				BestLapS: *e.LastLapS,
				LastLapS: e.LastLapS,
				Lap:      e.Lap,
			})
		}
	}
	if len(laps) == 0 {
		ret.Message = "No lap timing data yet."
		return ret
	}

	slices.SortStableFunc(laps, func(a, b FastLap) int {
		return cmp.Compare(a.BestLapS, b.BestLapS)
	})
	fastest := decimal.NewFromFloat(laps[0].BestLapS)
	for i := range laps {
		enrich(&laps[i], roster)
		laps[i].GapFastestS = decimal.NewFromFloat(laps[i].BestLapS).
			Sub(fastest).Round(3).InexactFloat64()
	}
	first := laps[0]
	ret.Fastest = &first
	ret.TopN = laps[:min(topN, len(laps))]
	ret.Count = len(laps)
	return ret
}

func enrich(l *FastLap, roster map[int]model.RosterEntry) {
	r, ok := roster[l.CarIdx]
	if !ok {
		return
	}
	if l.Car == "" {
		l.Car = r.CarNumber
	}
	if l.Name == "" {
		l.Name = r.Name
	}
}
