package model

// IncidentEvent is a discrete incident occurrence.
type IncidentEvent struct {
	Timestamp float64 `json:"timestamp"`
	CarIdx    int     `json:"car_idx"`
	Delta     int     `json:"delta"`
	Total     int     `json:"total"`
	TeamTotal *int    `json:"team_total,omitempty"`
}

// PitEvent is a pit lane occurrence (entry, stop, exit).
type PitEvent struct {
	Timestamp      float64  `json:"timestamp"`
	Event          string   `json:"event"`
	CarIdx         int      `json:"car_idx"`
	Lap            *int     `json:"lap,omitempty"`
	StopDurationS  *float64 `json:"stop_duration_s,omitempty"`
	FuelAddedL     *float64 `json:"fuel_added_l,omitempty"`
	FastRepairUsed *bool    `json:"fast_repair_used,omitempty"`
}

type TireCorner struct {
	L float64 `json:"L"`
	M float64 `json:"M"`
	R float64 `json:"R"`
}

// StintState is the per car fuel and tire state.
type StintState struct {
	Timestamp        float64               `json:"timestamp"`
	CarIdx           int                   `json:"car_idx"`
	Lap              *int                  `json:"lap,omitempty"`
	FuelLevelL       *float64              `json:"fuel_level_l,omitempty"`
	FuelPct          *float64              `json:"fuel_pct,omitempty"`
	AvgFuelLapL      *float64              `json:"avg_fuel_lap_l,omitempty"`
	EstLapsRemaining *float64              `json:"est_laps_remaining,omitempty"`
	StintLaps        *int                  `json:"stint_laps,omitempty"`
	TireWearPct      map[string]TireCorner `json:"tire_wear_pct,omitempty"`
}
