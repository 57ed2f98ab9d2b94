package events

const (
	TypeEnqueued  = "aicf.enqueued"
	TypeAssigned  = "aicf.assigned"
	TypeCompleted = "aicf.completed"
	TypeSettled   = "aicf.settled"
	TypeSlashed   = "aicf.slashed"
)

// Enqueued is emitted when a job is admitted into the queue.
type Enqueued struct {
	JobID     string
	Kind      string
	Requester string
	Fee       uint64
	Tier      string
	Millis    int64
}

// EventType implements Event.
func (Enqueued) EventType() string { return TypeEnqueued }

// Assigned is emitted when a lease is issued for a job.
type Assigned struct {
	JobID      string
	ProviderID string
	LeaseID    string
	Height     *uint64
	Millis     int64
}

// EventType implements Event.
func (Assigned) EventType() string { return TypeAssigned }

// Completed is emitted when a completion submission is accepted.
type Completed struct {
	JobID      string
	ProviderID string
	Success    bool
	Digest     string
	Height     *uint64
	Millis     int64
}

// EventType implements Event.
func (Completed) EventType() string { return TypeCompleted }

// Settled is emitted once per epoch when a settlement batch is applied.
type Settled struct {
	Epoch   uint64
	Payouts int
	Amount  uint64
	Height  *uint64
	Millis  int64
}

// EventType implements Event.
func (Settled) EventType() string { return TypeSettled }

// Slashed is emitted whenever the slash engine penalizes a provider.
type Slashed struct {
	ProviderID string
	Reason     string
	Penalty    *uint64
	Jailed     bool
	Height     *uint64
	Millis     int64
}

// EventType implements Event.
func (Slashed) EventType() string { return TypeSlashed }
