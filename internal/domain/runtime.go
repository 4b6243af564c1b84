package domain

// Alteration records how an overwrite reclassified a node.
type Alteration string

const (
	AlterNone     Alteration = ""
	AlterBehavior Alteration = "behavior" // friendly
	AlterRelay    Alteration = "relay"    // passable
)

// Signature is what a signature watch compares against its baseline.
type Signature struct {
	Type        NodeType
	Alteration  Alteration
	Overwritten bool
}

// NodeRuntime is the mutable per-run state of a node. Only the registry mutates it.
type NodeRuntime struct {
	State       NodeState
	Revealed    NodeType
	Analyzed    bool
	Alteration  Alteration
	Overwritten bool
	Timer       int // ticks left while restarting or jammed

	ObjectiveVisible  bool
	ObjectiveComplete bool

	// Actions and Description are filled on reveal: the node's own, or the type defaults.
	Actions     []Action
	Description string
}

// NodeRecord is a snapshot of a node definition together with its runtime state.
type NodeRecord struct {
	Def Node
	NodeRuntime
}

// ID returns the node id.
func (r NodeRecord) ID() NodeID { return r.Def.Base().ID }

// Kind returns the true type, regardless of what has been revealed.
func (r NodeRecord) Kind() NodeType { return r.Def.Kind() }

// Parent returns the containing directory.
func (r NodeRecord) Parent() NodeID { return r.Def.Base().Parent }

// Priority returns the resolution priority (0 for non-executables).
func (r NodeRecord) Priority() int {
	p, _ := PriorityOf(r.Def)
	return p
}

// Signature returns the node's current signature. It depends on what the node is,
// not on what the player knows about it.
func (r NodeRecord) Signature() Signature {
	return Signature{Type: r.Kind(), Alteration: r.Alteration, Overwritten: r.Overwritten}
}

// Friendly reports whether an overwrite turned the node to the player's side.
func (r NodeRecord) Friendly() bool { return r.Alteration != AlterNone }

// Passable reports whether the player may traverse the node.
// Executables become passable once altered or while they are not running.
func (r NodeRecord) Passable() bool {
	if !r.Kind().IsExecutable() {
		return true
	}
	return r.Friendly() || r.State != StateActive
}

// IsRevealed reports whether the true type is known to the player.
func (r NodeRecord) IsRevealed() bool { return r.Revealed != TypeNonReadable }

// Action returns the action definition of type t known for this node.
func (r NodeRecord) Action(t ActionType) (Action, bool) {
	for _, a := range r.Actions {
		if a.Type == t {
			return a, true
		}
	}
	return Action{}, false
}

// HasObjective reports whether the node carries an objective of the given kind.
func (r NodeRecord) HasObjective(kind ObjectiveKind) bool {
	o := r.Def.Base().Objective
	return o != nil && o.Kind == kind
}

// StateChange is one state transition observed during a tick.
type StateChange struct {
	Node NodeID    `json:"node"`
	From NodeState `json:"from"`
	To   NodeState `json:"to"`
}
