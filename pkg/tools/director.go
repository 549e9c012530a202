package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/answer"
	"github.com/mpapenbr/simracecenter-agent-go/pkg/cache"
)

type Intent string

const (
	IntentFastest      Intent = "FASTEST"
	IntentDriverSearch Intent = "DRIVER_SEARCH"
	IntentLeader       Intent = "LEADER"
	IntentBattle       Intent = "BATTLE"
	IntentRecentEvents Intent = "RECENT_EVENTS"
	IntentDriverInfo   Intent = "DRIVER_INFO"
	IntentStrategy     Intent = "STRATEGY"
	IntentIncident     Intent = "INCIDENT"
	IntentOther        Intent = "OTHER"
)

var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	// fastest before the generic "who is"
	{IntentFastest, []string{"fastest", "best lap", "quickest", "best time"}},
	{IntentDriverSearch, []string{"is there a", "any driver", "anyone named", "do we have"}},
	{IntentLeader, []string{"who's leading", "whos leading", "leader", "gap"}},
	{IntentBattle, []string{"battle", "closest", "who's close", "whos close"}},
	{IntentRecentEvents, []string{"what happened", "miss"}},
	{IntentDriverInfo, []string{"who is", "car"}},
	{IntentStrategy, []string{"pit", "strategy", "fuel"}},
	{IntentIncident, []string{"penalty", "incident", "crash"}},
}

// ClassifyIntent maps a question to the first matching keyword group.
func ClassifyIntent(message string) Intent {
	lower := strings.ToLower(message)
	for _, group := range intentKeywords {
		for _, k := range group.keywords {
			if strings.Contains(lower, k) {
				return group.intent
			}
		}
	}
	return IntentOther
}

// Director answers leader, fastest lap and battle questions straight from the
// cache.
// It is used when no language model is configured.
type Director struct {
	cache *cache.StateCache
}

var _ answer.Answerer = (*Director)(nil)

func NewDirector(c *cache.StateCache) *Director {
	return &Director{cache: c}
}

func (d *Director) Answer(_ context.Context, question string) (string, error) {
	switch ClassifyIntent(question) {
	case IntentLeader:
		leader, ok := d.cache.Leader()
		if !ok {
			return "No data yet.", nil
		}
		gap := "-"
		if lb := d.cache.Leaderboard(); len(lb) > 1 && lb[1].GapText != "" {
			gap = lb[1].GapText + "s"
		}
		return fmt.Sprintf("Leader: %s (Car %s), gap to P2 %s", leader.Name, leader.Car, gap), nil
	case IntentFastest:
		res := FastestLap(d.cache, 1)
		if res.Fastest == nil {
			return res.Message, nil
		}
		f := res.Fastest
		return fmt.Sprintf("Fastest lap: %s (Car %s), %.3fs", f.Name, f.Car, f.BestLapS), nil
	case IntentBattle:
		battle := CurrentBattle(d.cache, 1, DefaultBattleMaxDistance)
		if len(battle.Pairs) == 0 {
			return fmt.Sprintf("No close battles (<%dm) among %d cars.",
				int(battle.MaxDistanceM), battle.RosterSize), nil
		}
		p := battle.Pairs[0]
		return fmt.Sprintf("Closest battle: Car %s vs %s, %.1fm.",
			p.FocusCar, p.OtherCar, p.DistanceM), nil
	default:
		return "", answer.ErrNoAnswer
	}
}
