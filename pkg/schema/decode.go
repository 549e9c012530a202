package schema

import (
	"encoding/json"

	"github.com/mpapenbr/simracecenter-agent-go/pkg/model"
)

// Payload is the result of Decode. It is one of
//
//	*model.TelemetryPayload, *model.SessionPayload, *model.SessionState,
//	*model.StandingsUpdate, *model.LapTimingPayload, *model.IncidentEvent,
//	*model.PitEvent, *model.TrackConditions, *model.StintState,
//	*model.ChatEnvelope or Rejected.
type Payload any

// Rejected is returned for malformed or schema invalid data.
type Rejected struct {
	Subject Subject
	Reason  string
}

func (r Rejected) Error() string {
	return "rejected " + string(r.Subject) + ": " + r.Reason
}

// Decode parses data, validates it and returns the typed payload.
func Decode(subject Subject, data []byte) Payload {
	if !json.Valid(data) {
		return Rejected{Subject: subject, Reason: "malformed json"}
	}
	if err := Validate(subject, data); err != nil {
		return Rejected{Subject: subject, Reason: err.Error()}
	}
	var target any
	switch subject {
	case Telemetry:
		target = &model.TelemetryPayload{}
	case Session:
		target = &model.SessionPayload{}
	case SessionState:
		target = &model.SessionState{}
	case Standings:
		var p model.StandingsPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Rejected{Subject: subject, Reason: err.Error()}
		}
		return &model.StandingsUpdate{Timestamp: p.Timestamp, Entries: p.Entries()}
	case LapTiming:
		target = &model.LapTimingPayload{}
	case Incident:
		target = &model.IncidentEvent{}
	case Pit:
		target = &model.PitEvent{}
	case TrackConditions:
		target = &model.TrackConditions{}
	case Stint:
		target = &model.StintState{}
	case ChatMessage:
		target = &model.ChatEnvelope{}
	default:
		return Rejected{Subject: subject, Reason: "unknown subject"}
	}
	if err := json.Unmarshal(data, target); err != nil {
		return Rejected{Subject: subject, Reason: err.Error()}
	}
	return target
}
