// Package policy implements the Strategy pattern for node-type rules.
// Each node type has its own policy defining default actions, description
// and how long it stays down when stopped.
package policy

import (
	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// DefaultRestartTicks is how long a stopped executable stays down unless its type says otherwise.
const DefaultRestartTicks = 3

// TypePolicy defines the strategy interface for one node type.
type TypePolicy interface {
	// Type returns the node type this policy describes.
	Type() domain.NodeType

	// Description is copied into revealed nodes that have none of their own.
	Description() string

	// Actions returns the full action set for this type, in display order.
	// Readme knowledge grants exactly this set.
	Actions() []domain.Action

	// RestartTicks returns how long a stopped node of this type stays down.
	RestartTicks() int
}

// retrying builds an action whose time cost shrinks with every successful
// analysis and whose odds improve with every failed retry.
func retrying(t domain.ActionType, cost, rate float64) domain.Action {
	return domain.Action{
		Type:     t,
		BaseCost: cost,
		Cost:     domain.Geometric{Ratio: 0.9, Min: cost * 0.4},
		BaseRate: rate,
		Rate:     domain.Linear{Step: 0.05, Max: 0.95},
	}
}

// certain builds an action that always succeeds.
func certain(t domain.ActionType, cost float64) domain.Action {
	return domain.Action{
		Type:     t,
		BaseCost: cost,
		Cost:     domain.Geometric{Ratio: 0.9, Min: cost * 0.4},
		BaseRate: 1,
		Rate:     domain.Constant(1),
	}
}

func jam(cost, rate float64, turns int) domain.Action {
	a := retrying(domain.ActionOverwriteJam, cost, rate)
	a.JamTurns = turns
	return a
}

// cloneActions returns a copy so callers cannot mutate a policy's table.
func cloneActions(actions []domain.Action) []domain.Action {
	out := make([]domain.Action, len(actions))
	copy(out, actions)
	return out
}
