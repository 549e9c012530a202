// Package schema validates bus payloads against per subject JSON schemas
// and decodes them into typed payloads.
package schema

import (
	"embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Subject identifies a payload kind. The values match the default bus subjects.
type Subject string

const (
	Telemetry       Subject = "iracing.telemetry"
	Session         Subject = "iracing.session"
	SessionState    Subject = "iracing.session_state"
	Standings       Subject = "iracing.standings"
	LapTiming       Subject = "iracing.lap_timing"
	Incident        Subject = "iracing.incident"
	Pit             Subject = "iracing.pit"
	TrackConditions Subject = "iracing.track_conditions"
	Stint           Subject = "iracing.stint"
	ChatMessage     Subject = "youtube.chat.message"
)

var Subjects = []Subject{
	Telemetry, Session, SessionState, Standings, LapTiming,
	Incident, Pit, TrackConditions, Stint, ChatMessage,
}

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	mu       sync.Mutex
	compiled = map[Subject]*gojsonschema.Schema{}
)

func lookup(subject Subject) (*gojsonschema.Schema, error) {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := compiled[subject]; ok {
		return s, nil
	}
	data, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.schema.json", subject))
	if err != nil {
		return nil, fmt.Errorf("no schema for subject %s", subject)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", subject, err)
	}
	compiled[subject] = s
	return s, nil
}

// Validate checks payload against the schema of subject. payload is either
// raw JSON ([]byte) or an already decoded value.
func Validate(subject Subject, payload any) error {
	s, err := lookup(subject)
	if err != nil {
		return err
	}
	var loader gojsonschema.JSONLoader
	switch p := payload.(type) {
	case []byte:
		loader = gojsonschema.NewBytesLoader(p)
	case string:
		loader = gojsonschema.NewStringLoader(p)
	default:
		loader = gojsonschema.NewGoLoader(p)
	}
	result, err := s.Validate(loader)
	if err != nil {
		return err
	}
	if !result.Valid() {
		if errs := result.Errors(); len(errs) > 0 {
			return fmt.Errorf("%s: %s", subject, errs[0].String())
		}
		return fmt.Errorf("%s: invalid payload", subject)
	}
	return nil
}

// IsValid reports whether payload conforms to the schema of subject.
// Unknown subjects are never valid.
func IsValid(subject Subject, payload any) bool {
	return Validate(subject, payload) == nil
}
