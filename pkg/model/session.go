package model

// RosterEntry is a car's identity for the session.
type RosterEntry struct {
	CarIdx    int    `json:"carIdx"`
	CarNumber string `json:"carNumber"`
	Name      string `json:"name"`
}

type SessionDriver struct {
	CarIdx      int    `json:"CarIdx"`
	UserName    string `json:"UserName"`
	CarNumber   string `json:"CarNumber"`
	DisplayName string `json:"display_name,omitempty"`
}

// SessionPayload is the wire format of the session subject.
type SessionPayload struct {
	Timestamp float64         `json:"timestamp,omitempty"`
	Drivers   []SessionDriver `json:"drivers"`
}

func (p *SessionPayload) Roster() []RosterEntry {
	ret := make([]RosterEntry, 0, len(p.Drivers))
	for _, d := range p.Drivers {
		name := d.UserName
		if name == "" {
			name = d.DisplayName
		}
		ret = append(ret, RosterEntry{CarIdx: d.CarIdx, CarNumber: d.CarNumber, Name: name})
	}
	return ret
}

// SessionState holds the current session flags and timing.
type SessionState struct {
	Timestamp        float64  `json:"timestamp"`
	SessionType      string   `json:"session_type,omitempty"`
	TimeRemainingS   *float64 `json:"time_remaining_s,omitempty"`
	FlagBits         int64    `json:"flag_bits"`
	Caution          bool     `json:"caution"`
	Green            bool     `json:"green"`
	PitsOpen         bool     `json:"pits_open"`
	PaceMode         string   `json:"pace_mode,omitempty"`
	CurrentLap       *int     `json:"lap,omitempty"`
	SessionTimeOfDay string   `json:"time_of_day,omitempty"`
}

// TrackConditions is the latest environmental snapshot.
type TrackConditions struct {
	Timestamp     float64  `json:"timestamp"`
	AirTempC      *float64 `json:"air_temp_c,omitempty"`
	AirPressurePa *float64 `json:"air_pressure_pa,omitempty"`
	AirDensity    *float64 `json:"air_density,omitempty"`
	TrackTempC    *float64 `json:"track_temp_c,omitempty"`
	FogPct        *float64 `json:"fog_pct,omitempty"`
	PrecipPct     *float64 `json:"precip_pct,omitempty"`
}
