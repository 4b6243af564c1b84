package infra

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// maxDepth bounds the parent walk when checking for directory cycles.
const maxDepth = 1024

type registryEntry struct {
	def      domain.Node
	rt       domain.NodeRuntime
	baseline domain.Signature
}

// NodeRegistry implements domain.NodeRegistry as an arena of entries indexed by id.
// Watch and parent relations are stored as ids, so self-watches and watch cycles are fine.
type NodeRegistry struct {
	mu       sync.RWMutex
	entries  []registryEntry
	index    map[domain.NodeID]int
	changes  []domain.StateChange
	policies domain.PolicyStore
	logger   *zap.Logger
}

// NewNodeRegistry loads the node definitions and captures their baseline signatures.
// It rejects duplicate ids, dangling parent or watch references, and parents that are not directories.
func NewNodeRegistry(nodes []domain.Node, policies domain.PolicyStore, logger *zap.Logger) (*NodeRegistry, error) {
	r := &NodeRegistry{
		entries:  make([]registryEntry, 0, len(nodes)),
		index:    make(map[domain.NodeID]int, len(nodes)),
		policies: policies,
		logger:   logger,
	}

	for _, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("%w: nil node", domain.ErrInvalidDefinition)
		}
		id := n.Base().ID
		if _, dup := r.index[id]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %s", domain.ErrInvalidDefinition, id)
		}
		r.index[id] = len(r.entries)
		r.entries = append(r.entries, registryEntry{def: n, rt: r.initialRuntime(n)})
	}

	if err := r.checkReferences(); err != nil {
		return nil, err
	}

	for i := range r.entries {
		r.entries[i].baseline = r.record(i).Signature()
	}

	logger.Debug("node registry loaded", zap.Int("nodes", len(r.entries)))
	return r, nil
}

func (r *NodeRegistry) initialRuntime(n domain.Node) domain.NodeRuntime {
	rt := domain.NodeRuntime{
		State:       domain.StateActive,
		Revealed:    domain.TypeNonReadable,
		Actions:     r.policies.DefaultActions(domain.TypeNonReadable),
		Description: r.policies.DefaultDescription(domain.TypeNonReadable),
	}
	if o := n.Base().Objective; o != nil && !o.RequireAnalysis {
		rt.ObjectiveVisible = true
	}
	return rt
}

func (r *NodeRegistry) checkReferences() error {
	for _, e := range r.entries {
		base := e.def.Base()

		if base.Parent != "" {
			i, ok := r.index[base.Parent]
			if !ok {
				return fmt.Errorf("%w: node %s has unknown parent %s", domain.ErrInvalidDefinition, base.ID, base.Parent)
			}
			if r.entries[i].def.Kind() != domain.TypeDirectory {
				return fmt.Errorf("%w: parent %s of %s is not a directory", domain.ErrInvalidDefinition, base.Parent, base.ID)
			}
		}

		if w, ok := domain.WatchOf(e.def); ok {
			if _, known := r.index[w.Target]; !known {
				return fmt.Errorf("%w: daemon %s watches unknown node %s", domain.ErrInvalidDefinition, base.ID, w.Target)
			}
		}

		parent := base.Parent
		for depth := 0; parent != ""; depth++ {
			if parent == base.ID || depth > maxDepth {
				return fmt.Errorf("%w: directory cycle through %s", domain.ErrInvalidDefinition, base.ID)
			}
			parent = r.entries[r.index[parent]].def.Base().Parent
		}
	}
	return nil
}

func (r *NodeRegistry) record(i int) domain.NodeRecord {
	e := r.entries[i]
	rt := e.rt
	rt.Actions = append([]domain.Action(nil), e.rt.Actions...)
	return domain.NodeRecord{Def: e.def, NodeRuntime: rt}
}

func (r *NodeRegistry) lookup(id domain.NodeID) (int, error) {
	i, ok := r.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownNode, id)
	}
	return i, nil
}

// Get returns a snapshot of the node.
func (r *NodeRegistry) Get(id domain.NodeID) (domain.NodeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, err := r.lookup(id)
	if err != nil {
		return domain.NodeRecord{}, err
	}
	return r.record(i), nil
}

// SetState moves a node to a new state and records the transition.
// Leaving restarting or jammed clears the timer.
func (r *NodeRegistry) SetState(id domain.NodeID, state domain.NodeState) error {
	if !state.Valid() {
		return fmt.Errorf("unknown node state %q", state)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i, err := r.lookup(id)
	if err != nil {
		return err
	}

	e := &r.entries[i]
	from := e.rt.State
	if from == state {
		return nil
	}
	e.rt.State = state
	if state != domain.StateRestarting && state != domain.StateJammed {
		e.rt.Timer = 0
	}
	r.changes = append(r.changes, domain.StateChange{Node: id, From: from, To: state})

	r.logger.Debug("node state changed",
		zap.String("node", string(id)),
		zap.String("from", string(from)),
		zap.String("to", string(state)))
	return nil
}

// RevealType reveals the node's type and copies in the type defaults it lacks.
func (r *NodeRegistry) RevealType(id domain.NodeID, t domain.NodeType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, err := r.lookup(id)
	if err != nil {
		return false, err
	}

	e := &r.entries[i]
	if e.rt.Revealed == t {
		return false, nil
	}
	if e.rt.Revealed != domain.TypeNonReadable || t != e.def.Kind() {
		return false, fmt.Errorf("%w: %s revealed as %s, not %s", domain.ErrTypeConflict, id, e.rt.Revealed, t)
	}

	base := e.def.Base()
	e.rt.Revealed = t
	e.rt.Actions = append([]domain.Action(nil), base.Actions...)
	if len(e.rt.Actions) == 0 {
		e.rt.Actions = r.policies.DefaultActions(t)
	}
	e.rt.Description = base.Description
	if e.rt.Description == "" {
		e.rt.Description = r.policies.DefaultDescription(t)
	}

	r.logger.Debug("node type revealed", zap.String("node", string(id)), zap.String("type", string(t)))
	return true, nil
}

// Update applies fn to the node's runtime. State and revealed type are owned by
// SetState and RevealType; changes fn makes to them are discarded.
func (r *NodeRegistry) Update(id domain.NodeID, fn func(rt *domain.NodeRuntime)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, err := r.lookup(id)
	if err != nil {
		return err
	}

	e := &r.entries[i]
	state, revealed := e.rt.State, e.rt.Revealed
	fn(&e.rt)
	e.rt.State, e.rt.Revealed = state, revealed
	if e.rt.Timer < 0 {
		e.rt.Timer = 0
	}
	return nil
}

// All returns every node in load order.
func (r *NodeRegistry) All() []domain.NodeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.NodeRecord, len(r.entries))
	for i := range r.entries {
		result[i] = r.record(i)
	}
	return result
}

// Level returns the children of a directory ("" for the root level) in load order.
func (r *NodeRegistry) Level(parent domain.NodeID) []domain.NodeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.NodeRecord
	for i, e := range r.entries {
		if e.def.Base().Parent == parent {
			result = append(result, r.record(i))
		}
	}
	return result
}

// Baseline returns the signature captured at load time.
func (r *NodeRegistry) Baseline(id domain.NodeID) (domain.Signature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return domain.Signature{}, false
	}
	return r.entries[i].baseline, true
}

// DrainChanges returns and clears the state changes recorded so far.
func (r *NodeRegistry) DrainChanges() []domain.StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()

	changes := r.changes
	r.changes = nil
	return changes
}

// Ensure NodeRegistry implements domain.NodeRegistry.
var _ domain.NodeRegistry = (*NodeRegistry)(nil)
