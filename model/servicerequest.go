package model

// StatusChange is one entry of a request's status history.
type StatusChange struct {
	Status string  `json:"status"`
	Time   float64 `json:"time"`
}

// RequestRecord describes a request that reached a terminal state.
type RequestRecord struct {
	ID           uint64         `json:"id"`
	Priority     string         `json:"priority"`
	Status       string         `json:"status"`
	SizeBits     float64        `json:"size_bits"`
	DeadlineS    float64        `json:"deadline_s"`
	CreationTick int            `json:"creation_tick"`
	CreationTime float64        `json:"creation_time"`
	Source       string         `json:"source"`
	Target       string         `json:"target,omitempty"`
	Path         []string       `json:"path,omitempty"`
	History      []StatusChange `json:"history"`
	// TotalTime is transit plus processing time, up to the terminal
	// transition.
	TotalTime float64 `json:"total_time"`
}

// Completed reports whether the request finished successfully.
func (r RequestRecord) Completed() bool { return r.Status == "COMPLETED" }
