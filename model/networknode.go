package model

import "time"

// NodeSnapshot is a read-only view of one node at the end of a tick or
// run. It carries no references back into the simulation.
type NodeSnapshot struct {
	ID      string  `json:"id"`
	Variant string  `json:"variant"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	PowerOn bool    `json:"power_on"`

	EnergyConsumed float64 `json:"energy_consumed"`
	// RemainingEnergy is -1 for nodes on mains power.
	RemainingEnergy float64   `json:"remaining_energy"`
	QueueLength     int       `json:"queue_length"`
	EnergyHistory   []float64 `json:"energy_history,omitempty"`
}

// EnergySample is the energy a node spent during one tick.
type EnergySample struct {
	Tick    int     `json:"tick"`
	Time    float64 `json:"time"`
	NodeID  string  `json:"node_id"`
	Variant string  `json:"variant"`
	PowerOn bool    `json:"power_on"`
	// Energy is the joules consumed during this tick.
	Energy float64 `json:"energy"`
	// Total is the cumulative consumption after the tick.
	Total float64 `json:"total"`
	// WallTime is Time mapped onto the run's wall-clock epoch.
	WallTime time.Time `json:"wall_time"`
}
