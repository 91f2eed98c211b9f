package core

import "errors"

var (
	// ErrInvalidTransition is returned when a request is asked to move to
	// a status its lifecycle does not allow from the current one.
	ErrInvalidTransition    = errors.New("invalid request status transition")
	ErrIncompatibleAntennas = errors.New("no compatible antenna pair")
	ErrNoPath               = errors.New("no path between nodes")
	ErrNodeNotFound         = errors.New("node not found")
	ErrNodeExists           = errors.New("node already exists")
	ErrNotComputeNode       = errors.New("node cannot process requests")
	ErrInvalidTopology      = errors.New("invalid topology")
	ErrInvalidTLE           = errors.New("invalid TLE")
)
