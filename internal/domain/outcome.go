package domain

// IntentID orders intents by submission; lower ids were submitted first.
type IntentID uint64

// Intent is a player's request to perform an action against a node.
type Intent struct {
	ID     IntentID   `json:"id"`
	Action ActionType `json:"action"`
	Target NodeID     `json:"target"`
	Boost  int        `json:"boost,omitempty"` // extra priority bought with probe level
}

// OutcomeStatus says what happened to an intent during a tick.
type OutcomeStatus string

const (
	StatusExecuted OutcomeStatus = "executed"
	StatusDeferred OutcomeStatus = "deferred"
	StatusRejected OutcomeStatus = "rejected"
)

// Outcome is the result of resolving one intent.
type Outcome struct {
	Intent      IntentID      `json:"intent"`
	Node        NodeID        `json:"node"`
	Action      ActionType    `json:"action"`
	Status      OutcomeStatus `json:"status"`
	Success     bool          `json:"success"`
	Roll        float64       `json:"roll"`
	Probability float64       `json:"probability"`
	Cost        float64       `json:"cost"`
	NewState    NodeState     `json:"new_state"`
	ProbeDelta  int           `json:"probe_delta"`
	ThreatDelta int           `json:"threat_delta"`
	Error       string        `json:"error,omitempty"`
}

// PendingResponse is an interlocked daemon's restart waiting to fire.
type PendingResponse struct {
	Daemon  NodeID         `json:"daemon"`
	Target  NodeID         `json:"target"`
	Trigger RestartTrigger `json:"trigger"`
	DueTick int            `json:"due_tick"`
}

// TerminationReason says why a run ended.
type TerminationReason string

const (
	ReasonObjectiveComplete TerminationReason = "objective-complete"
	ReasonAlarmTriggered    TerminationReason = "alarm-triggered"
	ReasonTimeExhausted     TerminationReason = "time-exhausted"
)

// Termination is emitted once, when the run ends.
type Termination struct {
	Reason TerminationReason `json:"reason"`
	Tick   int               `json:"tick"`
}

// ThreatSnapshot is the process-wide detection state.
type ThreatSnapshot struct {
	ProbeLevel     int    `json:"probe_level"`
	ThreatLevel    int    `json:"threat_level"`
	AlarmCountdown *int   `json:"alarm_countdown"`
	AlarmSource    NodeID `json:"alarm_source,omitempty"`
	Marked         bool   `json:"marked"`
}

// TickReport is everything the UI needs to render one resolved tick.
type TickReport struct {
	Tick           int               `json:"tick"`
	Outcomes       []Outcome         `json:"outcomes"`
	Changes        []StateChange     `json:"changes"`
	ProbeDelta     int               `json:"probe_delta"`
	ThreatDelta    int               `json:"threat_delta"`
	ProbeLevel     int               `json:"probe_level"`
	ThreatLevel    int               `json:"threat_level"`
	AlarmCountdown *int              `json:"alarm_countdown"`
	Pending        []PendingResponse `json:"pending,omitempty"`
	Termination    *Termination      `json:"termination,omitempty"`
}
