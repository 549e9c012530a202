package model

import "time"

// TelemetryFrame holds the latest proximity subset for one driver.
type TelemetryFrame struct {
	DriverID        string    `json:"driverId"`
	DisplayName     string    `json:"displayName"`
	CarIdx          *int      `json:"carIdx,omitempty"`
	CarNumber       string    `json:"carNumber"`
	CarDistAhead    *float64  `json:"carDistAhead,omitempty"`
	CarDistBehind   *float64  `json:"carDistBehind,omitempty"`
	CarNumberAhead  string    `json:"carNumberAhead,omitempty"`
	CarNumberBehind string    `json:"carNumberBehind,omitempty"`
	Emulator        bool      `json:"emulator"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TelemetryPayload is the wire format of the telemetry subject.
type TelemetryPayload struct {
	DriverID        string   `json:"driver_id"`
	DisplayName     string   `json:"display_name"`
	PlayerName      string   `json:"PlayerName"`
	CarIdx          *int     `json:"CarIdx"`
	CarNumber       string   `json:"CarNumber"`
	CarDistAhead    *float64 `json:"CarDistAhead"`
	CarDistBehind   *float64 `json:"CarDistBehind"`
	CarNumberAhead  string   `json:"CarNumberAhead"`
	CarNumberBehind string   `json:"CarNumberBehind"`
	Emulator        bool     `json:"_emulator"`
}

// ToFrame converts the payload into a frame. The driver id falls back to the
// display name (and vice versa). ok is false if no identity is available.
func (p *TelemetryPayload) ToFrame(now time.Time) (frame TelemetryFrame, ok bool) {
	driverID := p.DriverID
	if driverID == "" {
		driverID = p.DisplayName
	}
	if driverID == "" {
		return TelemetryFrame{}, false
	}
	displayName := p.DisplayName
	if displayName == "" {
		displayName = driverID
	}
	return TelemetryFrame{
		DriverID:        driverID,
		DisplayName:     displayName,
		CarIdx:          p.CarIdx,
		CarNumber:       p.CarNumber,
		CarDistAhead:    p.CarDistAhead,
		CarDistBehind:   p.CarDistBehind,
		CarNumberAhead:  p.CarNumberAhead,
		CarNumberBehind: p.CarNumberBehind,
		Emulator:        p.Emulator,
		UpdatedAt:       now,
	}, true
}
