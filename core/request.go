package core

import "fmt"

// Priority is drawn once when a request is created and fixes its size
// range and QoS deadline.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

// Priorities lists every priority in draw order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// PriorityProfile describes the QoS class attached to a priority.
// Higher priority means smaller payloads and tighter deadlines.
type PriorityProfile struct {
	DeadlineS float64
	// Size is drawn uniformly from [MinMbit, MaxMbit] whole megabits.
	MinMbit int
	MaxMbit int
}

// ProfileFor returns the QoS class of a priority.
func ProfileFor(p Priority) PriorityProfile {
	switch p {
	case PriorityHigh:
		return PriorityProfile{DeadlineS: 0.2, MinMbit: 1, MaxMbit: 3}
	case PriorityMedium:
		return PriorityProfile{DeadlineS: 0.5, MinMbit: 4, MaxMbit: 6}
	default:
		return PriorityProfile{DeadlineS: 1.0, MinMbit: 7, MaxMbit: 10}
	}
}

// RequestStatus is a state of the request lifecycle.
type RequestStatus int

const (
	StatusCreated RequestStatus = iota
	StatusInTransit
	StatusInProcessingQueue
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s RequestStatus) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusInTransit:
		return "IN_TRANSIT"
	case StatusInProcessingQueue:
		return "IN_PROCESSING_QUEUE"
	case StatusProcessing:
		return "PROCESSING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("RequestStatus(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition is possible.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusCreated:           {StatusInTransit, StatusFailed},
	StatusInTransit:         {StatusInTransit, StatusInProcessingQueue, StatusFailed},
	StatusInProcessingQueue: {StatusProcessing, StatusFailed},
	StatusProcessing:        {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to RequestStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusChange is one entry of a request's append-only status history.
type StatusChange struct {
	Status RequestStatus `json:"status"`
	Time   float64       `json:"time"`
}

// Request is a unit of work travelling from a user device to a compute
// node. Network, links and nodes mutate it while it is in flight; once it
// reaches COMPLETED or FAILED it never changes again.
type Request struct {
	ID       uint64
	Priority Priority
	// Size is the payload in bits.
	Size float64
	// QoSDeadline is measured in seconds from CreationTime.
	QoSDeadline float64

	CreationTick int
	CreationTime float64

	Source      Node
	CurrentNode Node
	TargetNode  Node
	Path        []Node
	PathIndex   int

	// ProcessingProgress counts bits processed by the target node.
	ProcessingProgress float64

	status  RequestStatus
	history []StatusChange
}

// NewRequest creates a request in the CREATED state.
func NewRequest(id uint64, source Node, priority Priority, size float64, tick int, now float64) *Request {
	return &Request{
		ID:           id,
		Priority:     priority,
		Size:         size,
		QoSDeadline:  ProfileFor(priority).DeadlineS,
		CreationTick: tick,
		CreationTime: now,
		Source:       source,
		CurrentNode:  source,
		status:       StatusCreated,
		history:      []StatusChange{{Status: StatusCreated, Time: now}},
	}
}

// Status returns the current lifecycle state.
func (r *Request) Status() RequestStatus { return r.status }

// IsTerminal reports whether the request reached COMPLETED or FAILED.
func (r *Request) IsTerminal() bool { return r.status.IsTerminal() }

// History returns a copy of the status history.
func (r *Request) History() []StatusChange {
	out := make([]StatusChange, len(r.history))
	copy(out, r.history)
	return out
}

// Transition moves the request to a new status and records it.
func (r *Request) Transition(to RequestStatus, now float64) error {
	if !CanTransition(r.status, to) {
		return fmt.Errorf("%w: request %d %s -> %s", ErrInvalidTransition, r.ID, r.status, to)
	}
	r.status = to
	r.history = append(r.history, StatusChange{Status: to, Time: now})
	return nil
}

// Fail moves a non-terminal request to FAILED. It is a no-op on
// terminal requests.
func (r *Request) Fail(now float64) {
	if r.IsTerminal() {
		return
	}
	r.status = StatusFailed
	r.history = append(r.history, StatusChange{Status: StatusFailed, Time: now})
}

// Elapsed returns the seconds spent since creation.
func (r *Request) Elapsed(now float64) float64 {
	return now - r.CreationTime
}

// WithinDeadline reports whether now is still inside the QoS deadline.
func (r *Request) WithinDeadline(now float64) bool {
	return r.Elapsed(now) <= r.QoSDeadline
}

// TerminalTime returns the time of the terminal transition, if any.
func (r *Request) TerminalTime() (float64, bool) {
	if !r.IsTerminal() {
		return 0, false
	}
	return r.history[len(r.history)-1].Time, true
}

// NextHop returns the node after the current path position.
func (r *Request) NextHop() (Node, bool) {
	if r.PathIndex+1 >= len(r.Path) {
		return nil, false
	}
	return r.Path[r.PathIndex+1], true
}

// IDCounter hands out process-unique, monotonically increasing request
// IDs. Each simulation instance owns its own counter.
type IDCounter struct {
	next uint64
}

// Next returns the next ID.
func (c *IDCounter) Next() uint64 {
	id := c.next
	c.next++
	return id
}

// Reset restarts numbering from zero.
func (c *IDCounter) Reset() { c.next = 0 }
