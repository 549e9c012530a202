package ingest

import "github.com/mpapenbr/simracecenter-agent-go/pkg/schema"

const (
	HistoryStream   = "IRACING_HISTORY"
	EventsStream    = "IRACING_EVENTS"
	ChatStream      = "YOUTUBE_CHAT"
	ChatDurable     = "chat_persist"
	ChatInputName   = "youtube.chat.message"
	ChatOutputName  = "director.answer"
	DefaultPullSize = 50
)

// SubjectConfig binds a payload kind to its bus subject.
// Stream and CatchupMax control the replay before live traffic.
type SubjectConfig struct {
	Kind       schema.Subject
	Name       string
	Enabled    bool
	Stream     string
	CatchupMax int
}

// DefaultSubjects returns all subjects with their default names, streams and
// replay limits.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Kind: schema.Telemetry, Name: string(schema.Telemetry), Enabled: true},
		{
			Kind: schema.Session, Name: string(schema.Session), Enabled: true,
			Stream: HistoryStream, CatchupMax: 1,
		},
		{
			Kind: schema.SessionState, Name: string(schema.SessionState), Enabled: true,
			Stream: HistoryStream, CatchupMax: 20,
		},
		{
			Kind: schema.Standings, Name: string(schema.Standings), Enabled: true,
			Stream: HistoryStream, CatchupMax: 1,
		},
		{
			Kind: schema.LapTiming, Name: string(schema.LapTiming), Enabled: true,
			Stream: HistoryStream, CatchupMax: 1,
		},
		{
			Kind: schema.TrackConditions, Name: string(schema.TrackConditions), Enabled: true,
			Stream: HistoryStream, CatchupMax: 3,
		},
		{
			Kind: schema.Stint, Name: string(schema.Stint), Enabled: true,
			Stream: HistoryStream, CatchupMax: 64,
		},
		{
			Kind: schema.Incident, Name: string(schema.Incident), Enabled: true,
			Stream: EventsStream, CatchupMax: 10,
		},
		{
			Kind: schema.Pit, Name: string(schema.Pit), Enabled: true,
			Stream: EventsStream, CatchupMax: 10,
		},
		{
			Kind: schema.ChatMessage, Name: ChatInputName, Enabled: true,
			Stream: ChatStream, CatchupMax: 50,
		},
	}
}
