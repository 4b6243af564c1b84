package domain

import (
	"fmt"
	"math"
)

// ActionType is what the player does to a node.
type ActionType string

const (
	ActionStop                   ActionType = "stop"
	ActionForceRestart           ActionType = "force-restart"
	ActionOverwriteDisable       ActionType = "overwrite-disable"
	ActionOverwriteAlterBehavior ActionType = "overwrite-alter-behavior"
	ActionOverwriteAlterRelay    ActionType = "overwrite-alter-relay"
	ActionOverwriteJam           ActionType = "overwrite-jam"
	ActionAnalyze                ActionType = "analyze"
	ActionDownload               ActionType = "download"
)

// AllActionTypes lists every action type in display order.
var AllActionTypes = []ActionType{
	ActionStop,
	ActionForceRestart,
	ActionOverwriteDisable,
	ActionOverwriteAlterBehavior,
	ActionOverwriteAlterRelay,
	ActionOverwriteJam,
	ActionAnalyze,
	ActionDownload,
}

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	for _, t := range AllActionTypes {
		if t == a {
			return true
		}
	}
	return false
}

// IsOverwrite reports whether a is one of the overwrite-* actions.
func (a ActionType) IsOverwrite() bool {
	switch a {
	case ActionOverwriteDisable, ActionOverwriteAlterBehavior, ActionOverwriteAlterRelay, ActionOverwriteJam:
		return true
	}
	return false
}

// ExecutableOnly reports whether a can only target executable nodes.
func (a ActionType) ExecutableOnly() bool {
	return a == ActionStop || a == ActionForceRestart || a.IsOverwrite()
}

// RaisesProbe reports whether attempting a is visible to passive detectors.
func (a ActionType) RaisesProbe() bool {
	return a.ExecutableOnly()
}

// Factors are the inputs of an Expr: the base value and a running count
// (successful analyses for cost, retries for success rate).
type Factors struct {
	Base  float64
	Count int
}

// Expr is a number that may depend on Factors. Constants and functions share it.
type Expr interface {
	Resolve(f Factors) float64
}

// Constant ignores its factors.
type Constant float64

func (c Constant) Resolve(Factors) float64 { return float64(c) }

// Identity returns the base unchanged.
type Identity struct{}

func (Identity) Resolve(f Factors) float64 { return f.Base }

// Linear returns Base + Step*Count clamped to [Min, Max]. A zero Max means no upper bound.
type Linear struct {
	Step float64
	Min  float64
	Max  float64
}

func (l Linear) Resolve(f Factors) float64 {
	return clamp(f.Base+l.Step*float64(f.Count), l.Min, l.Max)
}

// Geometric returns Base * Ratio^Count clamped to [Min, Max]. A zero Max means no upper bound.
type Geometric struct {
	Ratio float64
	Min   float64
	Max   float64
}

func (g Geometric) Resolve(f Factors) float64 {
	return clamp(f.Base*math.Pow(g.Ratio, float64(f.Count)), g.Min, g.Max)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// Action is one thing the player can attempt against a node.
type Action struct {
	Type     ActionType
	BaseCost float64
	Cost     Expr // nil = Identity
	BaseRate float64
	Rate     Expr // nil = Identity
	JamTurns int  // only meaningful for overwrite-jam
}

// Validate checks the static parts of an action definition.
func (a Action) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.BaseCost < 0 {
		return fmt.Errorf("action %s has negative base cost", a.Type)
	}
	if a.BaseRate < 0 || a.BaseRate > 1 {
		return fmt.Errorf("action %s has base rate %.2f outside [0,1]", a.Type, a.BaseRate)
	}
	if a.Type == ActionOverwriteJam && a.JamTurns <= 0 {
		return fmt.Errorf("overwrite-jam needs jam turns > 0")
	}
	return nil
}

// TimeCost resolves the processor time the action costs after analyzeCount successful analyses.
// The result is never negative. It may overflow to +Inf, which no budget can pay.
func (a Action) TimeCost(analyzeCount int, multiplier float64) float64 {
	expr := a.Cost
	if expr == nil {
		expr = Identity{}
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	v := expr.Resolve(Factors{Base: a.BaseCost, Count: analyzeCount}) * multiplier
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// SuccessRate resolves the probability of success after retryCount failed attempts.
// The result is always in [0,1].
func (a Action) SuccessRate(retryCount int, bonus float64) float64 {
	expr := a.Rate
	if expr == nil {
		expr = Identity{}
	}
	v := expr.Resolve(Factors{Base: a.BaseRate, Count: retryCount}) + bonus
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
