package responder

import (
	"encoding/json"
	"strings"
	"time"
)

// Reason tells why a chat message was not accepted.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonMalformed   Reason = "malformed"
	ReasonType        Reason = "type"
	ReasonEmpty       Reason = "empty"
	ReasonNoTrigger   Reason = "no_trigger"
	ReasonIgnoredUser Reason = "ignored_user"
)

// WorkItem is an accepted question waiting for an answer.
type WorkItem struct {
	ID         string
	Username   string
	Text       string
	ReceivedAt time.Time
}

// Filter decides which chat messages are questions for the responder.
type Filter struct {
	MessageType   string
	TriggerPrefix string
	ignore        map[string]struct{}
}

func NewFilter(messageType, triggerPrefix string, ignoreUsernames []string) *Filter {
	ret := &Filter{
		MessageType:   messageType,
		TriggerPrefix: triggerPrefix,
		ignore:        map[string]struct{}{},
	}
	for _, u := range ignoreUsernames {
		if u = strings.ToLower(strings.TrimSpace(u)); u != "" {
			ret.ignore[u] = struct{}{}
		}
	}
	return ret
}

type chatEnvelope struct {
	Type string `json:"type"`
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Message  string `json:"message"`
	} `json:"data"`
}

// Accept applies the checks in order: malformed json, message type, empty
// text, trigger prefix (which is stripped) and ignored usernames.
func (f *Filter) Accept(data []byte, now time.Time) (WorkItem, Reason) {
	var env chatEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return WorkItem{}, ReasonMalformed
	}
	if env.Type != f.MessageType {
		return WorkItem{}, ReasonType
	}
	text := strings.TrimSpace(env.Data.Message)
	if text == "" {
		return WorkItem{}, ReasonEmpty
	}
	if f.TriggerPrefix != "" {
		if !strings.HasPrefix(text, f.TriggerPrefix) {
			return WorkItem{}, ReasonNoTrigger
		}
		text = strings.TrimSpace(strings.TrimPrefix(text, f.TriggerPrefix))
		if text == "" {
			return WorkItem{}, ReasonEmpty
		}
	}
	username := strings.TrimSpace(env.Data.Username)
	if username == "" {
		username = "unknown"
	}
	if _, ok := f.ignore[strings.ToLower(username)]; ok {
		return WorkItem{}, ReasonIgnoredUser
	}
	return WorkItem{
		ID:         env.Data.ID,
		Username:   username,
		Text:       text,
		ReceivedAt: now,
	}, ReasonNone
}
