package model

import (
	"strings"
	"time"
)

// ChatMessage is one inbound chat line.
type ChatMessage struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Type      string `json:"type,omitempty"`
}

// ChatEnvelope is the wire format of the chat input subject.
type ChatEnvelope struct {
	Type string      `json:"type"`
	Data ChatMessage `json:"data"`
}

// ChatRow is the storage projection of a chat message.
type ChatRow struct {
	ID        string
	Username  string
	Message   string
	AvatarURL string
	YtType    string
	TsISO     string
	Ts        float64
	Day       string
}

// ToRow derives the storage row. An unparsable or missing timestamp falls
// back to now.
func (m *ChatMessage) ToRow(now time.Time) ChatRow {
	t := now.UTC()
	if m.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano,
			strings.Replace(m.Timestamp, "Z", "+00:00", 1)); err == nil {
			t = parsed.UTC()
		}
	}
	return ChatRow{
		ID:        m.ID,
		Username:  m.Username,
		Message:   m.Message,
		AvatarURL: m.AvatarURL,
		YtType:    m.Type,
		TsISO:     m.Timestamp,
		Ts:        float64(t.UnixNano()) / float64(time.Second),
		Day:       t.Format(time.DateOnly),
	}
}

// ChatHit is a full text search result.
type ChatHit struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp"`
	Epoch     float64 `json:"epoch"`
	Score     float64 `json:"score"`
}

// AnswerData is the payload of a published answer.
type AnswerData struct {
	InputID  string  `json:"input_id"`
	Username string  `json:"username"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	TsISO    string  `json:"ts_iso"`
	Ts       float64 `json:"ts"`
}

// AnswerEnvelope is published on the chat response subject.
type AnswerEnvelope struct {
	Type string     `json:"type"`
	Data AnswerData `json:"data"`
}
