package model

// RunSummary aggregates the outcome of one simulation run.
type RunSummary struct {
	Seed               uint64  `json:"seed"`
	AssignmentStrategy string  `json:"assignment_strategy"`
	PowerStrategy      string  `json:"power_strategy"`
	Ticks              int     `json:"ticks"`
	SimulatedTime      float64 `json:"simulated_time"`

	TotalEnergy     float64            `json:"total_energy"`
	EnergyByVariant map[string]float64 `json:"energy_by_variant"`

	TotalRequests     int `json:"total_requests"`
	CompletedRequests int `json:"completed_requests"`
	FailedRequests    int `json:"failed_requests"`
	// QoSSatisfaction is a percentage in [0, 100].
	QoSSatisfaction float64 `json:"qos_satisfaction"`

	MeanCompletionTime   float64 `json:"mean_completion_time"`
	StdDevCompletionTime float64 `json:"stddev_completion_time"`
}
