// Package domain contains the core simulation entities and interfaces.
// This is the innermost layer - no dependencies on other internal packages.
package domain

import "fmt"

// NodeID identifies a node inside a level.
type NodeID string

// NodeType is the kind of a node.
type NodeType string

const (
	// TypeNonReadable is the revealed type of every node before analysis or traversal.
	TypeNonReadable NodeType = "non-readable"
	TypeRecyclable  NodeType = "recyclable"
	TypeDirectory   NodeType = "directory"
	TypeReadme      NodeType = "readme"
	TypeEntry       NodeType = "entry"

	// Executable types.
	TypeDaemon         NodeType = "daemon"
	TypeFirewall       NodeType = "firewall"
	TypeCounterMeasure NodeType = "counter-measure"
	TypeUndefined      NodeType = "undefined"
)

// ExecutableTypes lists every executable node type in a stable order.
var ExecutableTypes = []NodeType{TypeDaemon, TypeFirewall, TypeCounterMeasure, TypeUndefined}

// IsExecutable reports whether nodes of this type run code (and have a priority).
func (t NodeType) IsExecutable() bool {
	switch t {
	case TypeDaemon, TypeFirewall, TypeCounterMeasure, TypeUndefined:
		return true
	}
	return false
}

// IsPassive reports whether t is a valid non-executable true type.
func (t NodeType) IsPassive() bool {
	switch t {
	case TypeRecyclable, TypeDirectory, TypeReadme, TypeEntry:
		return true
	}
	return false
}

// Valid reports whether t names a known type (including non-readable).
func (t NodeType) Valid() bool {
	return t == TypeNonReadable || t.IsPassive() || t.IsExecutable()
}

// NodeState is the runtime state of a node.
type NodeState string

const (
	StateActive     NodeState = "active"
	StateRestarting NodeState = "restarting" // stopped, comes back when its timer runs out
	StateJammed     NodeState = "jammed"
	StateDisabled   NodeState = "disabled"
	StateFailed     NodeState = "failed"
)

// IsTerminal reports whether the node is out of play for player actions.
func (s NodeState) IsTerminal() bool {
	return s == StateDisabled || s == StateFailed
}

// Valid reports whether s is a known state.
func (s NodeState) Valid() bool {
	switch s {
	case StateActive, StateRestarting, StateJammed, StateDisabled, StateFailed:
		return true
	}
	return false
}

// ObjectiveKind is the goal attached to a node.
type ObjectiveKind string

const (
	ObjectiveDownload  ObjectiveKind = "download"
	ObjectiveOverwrite ObjectiveKind = "overwrite"
)

// Objective is a node-attached goal the player must complete.
type Objective struct {
	Kind            ObjectiveKind
	Description     string
	RequireAnalysis bool // hidden until the node has been analyzed
	Primary         bool
}

// Invariant is what a daemon guarantees about its watched node.
type Invariant string

const (
	// InvariantSignature: the watched node must stay unchanged and active.
	InvariantSignature Invariant = "signature"
	// InvariantActive: the watched node must stay active.
	InvariantActive Invariant = "active"
)

// Watch is a non-owning reference from a daemon to the node it guards.
type Watch struct {
	Target    NodeID
	Invariant Invariant
}

// RestartTrigger selects how an interlocked daemon delays its response.
type RestartTrigger string

const (
	TriggerHook  RestartTrigger = "hook"  // fires at the start of the next tick
	TriggerTimer RestartTrigger = "timer" // fires after a priority-scaled number of ticks
)

// RestartTarget selects which node a daemon force-restarts on violation.
type RestartTarget string

const (
	RestartWatched     RestartTarget = "watched"
	RestartSelf        RestartTarget = "self"
	RestartLastTouched RestartTarget = "last-touched"
)

// RestartPolicy describes a daemon's reaction to a watch violation.
type RestartPolicy struct {
	Interlock bool
	Trigger   RestartTrigger
	Ticks     int
	Target    RestartTarget
}

// NodeBase holds the fields shared by every node variant.
type NodeBase struct {
	ID          NodeID
	Parent      NodeID // containing directory, empty for the root level
	Description string
	Actions     []Action
	Objective   *Objective

	// RestartTicks is how long a stopped executable stays down (0 = type default).
	RestartTicks int
}

// Node is a node definition. Each variant carries only the fields its type supports.
type Node interface {
	Base() *NodeBase
	Kind() NodeType
}

// PassiveNode is a recyclable, directory, readme or entry node.
type PassiveNode struct {
	NodeBase
	kind NodeType
}

// ExecutableNode is a firewall or undefined executable.
type ExecutableNode struct {
	NodeBase
	kind     NodeType
	Priority int
}

// DaemonNode watches another node and restarts things when its invariant breaks.
type DaemonNode struct {
	NodeBase
	Priority int
	Watch    Watch
	Restart  RestartPolicy
}

// CounterMeasureNode passively analyzes the player once the probe level is high enough.
type CounterMeasureNode struct {
	NodeBase
	Priority            int
	AnalysisStrength    int // 0-5, 0 = no passive analysis
	VisibilityThreshold int // 0 = engine default
}

// MaxAnalysisStrength is the upper bound of CounterMeasureNode.AnalysisStrength.
const MaxAnalysisStrength = 5

// NewPassiveNode creates a non-executable node.
func NewPassiveNode(base NodeBase, kind NodeType) (*PassiveNode, error) {
	if err := checkBase(base); err != nil {
		return nil, err
	}
	if !kind.IsPassive() {
		return nil, fmt.Errorf("%w: %s cannot be a passive node", ErrInvalidDefinition, kind)
	}
	if base.Objective != nil && base.Objective.Kind == ObjectiveOverwrite {
		return nil, fmt.Errorf("%w: passive node %s cannot carry an overwrite objective", ErrInvalidDefinition, base.ID)
	}
	return &PassiveNode{NodeBase: base, kind: kind}, nil
}

// NewExecutableNode creates a firewall or undefined executable.
func NewExecutableNode(base NodeBase, kind NodeType, priority int) (*ExecutableNode, error) {
	if err := checkBase(base); err != nil {
		return nil, err
	}
	if kind != TypeFirewall && kind != TypeUndefined {
		return nil, fmt.Errorf("%w: %s needs its own variant", ErrInvalidDefinition, kind)
	}
	if priority < 0 {
		return nil, fmt.Errorf("%w: negative priority on %s", ErrInvalidDefinition, base.ID)
	}
	return &ExecutableNode{NodeBase: base, kind: kind, Priority: priority}, nil
}

// NewDaemonNode creates a daemon. The watch target may be the daemon itself.
func NewDaemonNode(base NodeBase, priority int, watch Watch, restart RestartPolicy) (*DaemonNode, error) {
	if err := checkBase(base); err != nil {
		return nil, err
	}
	if priority < 0 {
		return nil, fmt.Errorf("%w: negative priority on %s", ErrInvalidDefinition, base.ID)
	}
	if watch.Target == "" {
		return nil, fmt.Errorf("%w: daemon %s has no watch target", ErrInvalidDefinition, base.ID)
	}
	if watch.Invariant != InvariantSignature && watch.Invariant != InvariantActive {
		return nil, fmt.Errorf("%w: daemon %s has invariant %q", ErrInvalidDefinition, base.ID, watch.Invariant)
	}
	if restart.Trigger == "" {
		restart.Trigger = TriggerHook
	}
	if restart.Trigger != TriggerHook && restart.Trigger != TriggerTimer {
		return nil, fmt.Errorf("%w: daemon %s has trigger %q", ErrInvalidDefinition, base.ID, restart.Trigger)
	}
	if restart.Trigger == TriggerTimer && restart.Ticks <= 0 {
		return nil, fmt.Errorf("%w: timer daemon %s needs ticks > 0", ErrInvalidDefinition, base.ID)
	}
	if restart.Target == "" {
		restart.Target = RestartWatched
	}
	switch restart.Target {
	case RestartWatched, RestartSelf, RestartLastTouched:
	default:
		return nil, fmt.Errorf("%w: daemon %s has restart target %q", ErrInvalidDefinition, base.ID, restart.Target)
	}
	return &DaemonNode{NodeBase: base, Priority: priority, Watch: watch, Restart: restart}, nil
}

// NewCounterMeasureNode creates a counter-measure.
func NewCounterMeasureNode(base NodeBase, priority, strength, visibility int) (*CounterMeasureNode, error) {
	if err := checkBase(base); err != nil {
		return nil, err
	}
	if priority < 0 {
		return nil, fmt.Errorf("%w: negative priority on %s", ErrInvalidDefinition, base.ID)
	}
	if strength < 0 || strength > MaxAnalysisStrength {
		return nil, fmt.Errorf("%w: analysis strength %d out of range on %s", ErrInvalidDefinition, strength, base.ID)
	}
	if visibility < 0 {
		return nil, fmt.Errorf("%w: negative visibility threshold on %s", ErrInvalidDefinition, base.ID)
	}
	return &CounterMeasureNode{
		NodeBase:            base,
		Priority:            priority,
		AnalysisStrength:    strength,
		VisibilityThreshold: visibility,
	}, nil
}

func checkBase(base NodeBase) error {
	if base.ID == "" {
		return fmt.Errorf("%w: node without id", ErrInvalidDefinition)
	}
	if base.RestartTicks < 0 {
		return fmt.Errorf("%w: negative restart ticks on %s", ErrInvalidDefinition, base.ID)
	}
	if o := base.Objective; o != nil && o.Kind != ObjectiveDownload && o.Kind != ObjectiveOverwrite {
		return fmt.Errorf("%w: objective %q on %s", ErrInvalidDefinition, o.Kind, base.ID)
	}
	for _, a := range base.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: node %s: %v", ErrInvalidDefinition, base.ID, err)
		}
	}
	return nil
}

func (n *PassiveNode) Base() *NodeBase        { return &n.NodeBase }
func (n *PassiveNode) Kind() NodeType         { return n.kind }
func (n *ExecutableNode) Base() *NodeBase     { return &n.NodeBase }
func (n *ExecutableNode) Kind() NodeType      { return n.kind }
func (n *DaemonNode) Base() *NodeBase         { return &n.NodeBase }
func (n *DaemonNode) Kind() NodeType          { return TypeDaemon }
func (n *CounterMeasureNode) Base() *NodeBase { return &n.NodeBase }
func (n *CounterMeasureNode) Kind() NodeType  { return TypeCounterMeasure }

// PriorityOf returns the node's priority; ok is false for non-executables.
func PriorityOf(n Node) (priority int, ok bool) {
	switch v := n.(type) {
	case *ExecutableNode:
		return v.Priority, true
	case *DaemonNode:
		return v.Priority, true
	case *CounterMeasureNode:
		return v.Priority, true
	}
	return 0, false
}

// WatchOf returns the daemon's watch relation; ok is false for every other node.
func WatchOf(n Node) (Watch, bool) {
	if d, ok := n.(*DaemonNode); ok {
		return d.Watch, true
	}
	return Watch{}, false
}

// AnalysisStrengthOf returns a counter-measure's strength; ok is false otherwise.
func AnalysisStrengthOf(n Node) (int, bool) {
	if c, ok := n.(*CounterMeasureNode); ok {
		return c.AnalysisStrength, true
	}
	return 0, false
}

// Ensure every variant implements Node.
var (
	_ Node = (*PassiveNode)(nil)
	_ Node = (*ExecutableNode)(nil)
	_ Node = (*DaemonNode)(nil)
	_ Node = (*CounterMeasureNode)(nil)
)
