package domain

import "time"

// NodeRegistry holds the node graph and per-node runtime state.
// Implementation: in-memory arena indexed by NodeID.
type NodeRegistry interface {
	// Get returns a snapshot of the node, or ErrUnknownNode.
	Get(id NodeID) (NodeRecord, error)

	// SetState moves the node to a new state and records the change.
	SetState(id NodeID, state NodeState) error

	// RevealType sets the revealed type. It reports false if the node was already
	// revealed as t, and fails with ErrTypeConflict if revealed as something else.
	RevealType(id NodeID, t NodeType) (bool, error)

	// Update mutates runtime fields other than state and revealed type.
	Update(id NodeID, fn func(rt *NodeRuntime)) error

	// All returns every node in load order.
	All() []NodeRecord

	// Level returns the nodes whose parent is the given directory.
	Level(parent NodeID) []NodeRecord

	// Baseline returns the signature captured when the node was loaded.
	Baseline(id NodeID) (Signature, bool)

	// DrainChanges returns the state changes recorded since the last drain.
	DrainChanges() []StateChange
}

// PolicyStore provides the per-type defaults used when a node is revealed.
// Implementation: in-memory policy registry.
type PolicyStore interface {
	// DefaultActions returns the action set copied into a revealed node of type t.
	DefaultActions(t NodeType) []Action

	// DefaultDescription returns the description copied into a revealed node of type t.
	DefaultDescription(t NodeType) string

	// DefaultRestartTicks returns how long a stopped node of type t stays down.
	DefaultRestartTicks(t NodeType) int

	// Allows reports whether action a may ever target a node of type t.
	Allows(t NodeType, a ActionType) bool
}

// Roller draws uniform random numbers in [0,1).
type Roller interface {
	Float64() float64
}

// RunInfo identifies one simulation run.
type RunInfo struct {
	ID        string
	Level     string
	Seed      int64
	StartedAt time.Time
}

// RunSummary is a journaled run as listed by the journal.
type RunSummary struct {
	RunInfo
	EndedAt *time.Time
	Reason  TerminationReason
	Ticks   int
}

// Journal records resolved ticks for post-mortem review.
// Implementation: SQLCipher encrypted database.
type Journal interface {
	// BeginRun registers a new run.
	BeginRun(info RunInfo) error

	// RecordTick appends a tick report to a run.
	RecordTick(runID string, report TickReport) error

	// EndRun stores the termination of a run.
	EndRun(runID string, t Termination) error

	// ListRuns returns every journaled run, newest first.
	ListRuns() ([]RunSummary, error)

	// Ticks returns the reports of a run in tick order.
	Ticks(runID string) ([]TickReport, error)

	// Close releases resources (e.g., database connection).
	Close() error
}

// MetricsRecorder receives engine events for monitoring.
type MetricsRecorder interface {
	ObserveOutcome(o Outcome)
	ObserveTick(r TickReport)
}

// KeyProvider abstracts the source of the journal encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// WatchEvaluator reconciles daemons against the registry once per tick.
// Implementation: daemon.Watcher with an interlock scheduler.
type WatchEvaluator interface {
	// Fire runs the interlock responses due at the start of tick.
	Fire(tick int)

	// Evaluate checks every daemon's watch after the resolving phase.
	// lastTouched is the node the player most recently acted on.
	Evaluate(tick int, lastTouched NodeID)

	// Cancel drops the pending response owned by a daemon.
	Cancel(daemon NodeID) bool

	// Pending lists the responses waiting to fire, by due tick.
	Pending() []PendingResponse
}
