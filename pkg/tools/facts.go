package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/answer"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cache"
)

const factsLeaderboardSize = 10

// Facts renders the current race state as plain text lines for the answer
// model. Empty sections are left out.
func Facts(c *cache.StateCache) answer.ContextProvider {
	return func(context.Context) (string, error) {
		var b strings.Builder
		if s, ok := c.SessionState(); ok {
			fmt.Fprintf(&b, "Session: %s", orDash(s.SessionType))
			if s.CurrentLap != nil {
				fmt.Fprintf(&b, ", lap %d", *s.CurrentLap)
			}
			if s.TimeRemainingS != nil {
				fmt.Fprintf(&b, ", %.0fs remaining", *s.TimeRemainingS)
			}
			switch {
			case s.Caution:
				b.WriteString(", caution")
			case s.Green:
				b.WriteString(", green flag")
			}
			b.WriteString("\n")
		}
		if tc, ok := c.TrackConditions(); ok && tc.TrackTempC != nil {
			fmt.Fprintf(&b, "Track temperature: %.1fC\n", *tc.TrackTempC)
		}
		lb := c.Leaderboard()
		if len(lb) > 0 {
			b.WriteString("Leaderboard:\n")
			for _, e := range lb[:min(len(lb), factsLeaderboardSize)] {
				fmt.Fprintf(&b, "P%d #%s %s", e.Pos, orDash(e.Car), orDash(e.Name))
				if e.GapText != "" {
					fmt.Fprintf(&b, " +%ss", e.GapText)
				}
				b.WriteString("\n")
			}
		}
		battle := CurrentBattle(c, 3, DefaultBattleMaxDistance)
		for _, p := range battle.Pairs {
			fmt.Fprintf(&b, "Battle: #%s vs #%s, %.1fm\n", p.FocusCar, p.OtherCar, p.DistanceM)
		}
		if inc := c.RecentIncidents(5); len(inc) > 0 {
			roster := c.RosterByCarIdx()
			for _, ev := range inc {
				fmt.Fprintf(&b, "Incident: #%s +%dx (total %d)\n",
					orDash(roster[ev.CarIdx].CarNumber), ev.Delta, ev.Total)
			}
		}
		return b.String(), nil
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
