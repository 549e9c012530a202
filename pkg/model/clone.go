package model

import "maps"

// Clone methods return deep copies. Optional values are pointers, so a plain
// struct copy still shares them with the original.

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (f TelemetryFrame) Clone() TelemetryFrame {
	f.CarIdx = clonePtr(f.CarIdx)
	f.CarDistAhead = clonePtr(f.CarDistAhead)
	f.CarDistBehind = clonePtr(f.CarDistBehind)
	return f
}

func (e StandingsEntry) Clone() StandingsEntry {
	e.ClassPos = clonePtr(e.ClassPos)
	e.Lap = clonePtr(e.Lap)
	e.GapLeaderS = clonePtr(e.GapLeaderS)
	e.GapAheadS = clonePtr(e.GapAheadS)
	e.LastLapS = clonePtr(e.LastLapS)
	e.BestLapS = clonePtr(e.BestLapS)
	return e
}

func (e LapTimingEntry) Clone() LapTimingEntry {
	e.Lap = clonePtr(e.Lap)
	e.LastLapS = clonePtr(e.LastLapS)
	e.BestLapS = clonePtr(e.BestLapS)
	e.CurrentLapTimeS = clonePtr(e.CurrentLapTimeS)
	e.DeltaBestS = clonePtr(e.DeltaBestS)
	return e
}

func (s SessionState) Clone() SessionState {
	s.TimeRemainingS = clonePtr(s.TimeRemainingS)
	s.CurrentLap = clonePtr(s.CurrentLap)
	return s
}

func (t TrackConditions) Clone() TrackConditions {
	t.AirTempC = clonePtr(t.AirTempC)
	t.AirPressurePa = clonePtr(t.AirPressurePa)
	t.AirDensity = clonePtr(t.AirDensity)
	t.TrackTempC = clonePtr(t.TrackTempC)
	t.FogPct = clonePtr(t.FogPct)
	t.PrecipPct = clonePtr(t.PrecipPct)
	return t
}

func (ev IncidentEvent) Clone() IncidentEvent {
	ev.TeamTotal = clonePtr(ev.TeamTotal)
	return ev
}

func (ev PitEvent) Clone() PitEvent {
	ev.Lap = clonePtr(ev.Lap)
	ev.StopDurationS = clonePtr(ev.StopDurationS)
	ev.FuelAddedL = clonePtr(ev.FuelAddedL)
	ev.FastRepairUsed = clonePtr(ev.FastRepairUsed)
	return ev
}

func (s StintState) Clone() StintState {
	s.Lap = clonePtr(s.Lap)
	s.FuelLevelL = clonePtr(s.FuelLevelL)
	s.FuelPct = clonePtr(s.FuelPct)
	s.AvgFuelLapL = clonePtr(s.AvgFuelLapL)
	s.EstLapsRemaining = clonePtr(s.EstLapsRemaining)
	s.StintLaps = clonePtr(s.StintLaps)
	s.TireWearPct = maps.Clone(s.TireWearPct)
	return s
}

func (e LeaderboardEntry) Clone() LeaderboardEntry {
	e.Gap = clonePtr(e.Gap)
	e.LastLap = clonePtr(e.LastLap)
	return e
}
