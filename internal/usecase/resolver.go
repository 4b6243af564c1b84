package usecase

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// Budget is the processor time left in the current tick. It is spent in priority order.
type Budget struct {
	total     float64
	remaining float64
}

// NewBudget creates a full budget.
func NewBudget(total float64) *Budget {
	return &Budget{total: total, remaining: total}
}

// Total returns the per-tick allocation.
func (b *Budget) Total() float64 { return b.total }

// Remaining returns the time left this tick.
func (b *Budget) Remaining() float64 { return b.remaining }

// Spend takes cost from the budget. It reports false, spending nothing, if cost does not fit.
func (b *Budget) Spend(cost float64) bool {
	if cost > b.remaining {
		return false
	}
	b.remaining -= cost
	return true
}

// drain spends whatever is left and returns it.
func (b *Budget) drain() float64 {
	spent := b.remaining
	b.remaining = 0
	return spent
}

type retryKey struct {
	node   domain.NodeID
	action domain.ActionType
}

// ActionResolver applies one intent at a time to the registry and threat tracker.
type ActionResolver struct {
	config   Config
	registry domain.NodeRegistry
	policies domain.PolicyStore
	roller   domain.Roller
	threat   *ThreatTracker
	watches  domain.WatchEvaluator
	logger   *zap.Logger

	analyzeCount int
	retries      map[retryKey]int
	progress     map[domain.IntentID]float64
	lastTouched  domain.NodeID
}

// NewActionResolver creates a resolver with no analyses and no retries recorded.
func NewActionResolver(
	config Config,
	registry domain.NodeRegistry,
	policies domain.PolicyStore,
	roller domain.Roller,
	threat *ThreatTracker,
	watches domain.WatchEvaluator,
	logger *zap.Logger,
) *ActionResolver {
	return &ActionResolver{
		config:   config,
		registry: registry,
		policies: policies,
		roller:   roller,
		threat:   threat,
		watches:  watches,
		logger:   logger,
		retries:  make(map[retryKey]int),
		progress: make(map[domain.IntentID]float64),
	}
}

// AnalyzeCount returns the run-wide number of nodes analyzed successfully.
func (r *ActionResolver) AnalyzeCount() int { return r.analyzeCount }

// RetryCount returns the failed attempts of action against node.
func (r *ActionResolver) RetryCount(node domain.NodeID, action domain.ActionType) int {
	return r.retries[retryKey{node, action}]
}

// LastTouched returns the node the player most recently acted on.
func (r *ActionResolver) LastTouched() domain.NodeID { return r.lastTouched }

// Progress returns the time already paid into a channeled intent.
func (r *ActionResolver) Progress(id domain.IntentID) float64 { return r.progress[id] }

// Forget drops channeling progress of a withdrawn or rejected intent.
func (r *ActionResolver) Forget(id domain.IntentID) {
	delete(r.progress, id)
}

// Cost returns what the action currently costs the player.
func (r *ActionResolver) Cost(action domain.Action) float64 {
	return action.TimeCost(r.analyzeCount, r.config.CostMultiplier)
}

// Check reports whether action may target rec in its current state.
func (r *ActionResolver) Check(rec domain.NodeRecord, action domain.Action) error {
	t := action.Type
	id := rec.ID()

	if !r.policies.Allows(rec.Kind(), t) {
		return fmt.Errorf("%w: %s cannot target %s", domain.ErrInvalidTarget, t, id)
	}
	if t == domain.ActionOverwriteJam && action.JamTurns <= 0 {
		return fmt.Errorf("%w: jam on %s has no duration", domain.ErrInvalidTarget, id)
	}
	if math.IsInf(r.Cost(action), 0) {
		return fmt.Errorf("%w: %s on %s has an unbounded cost", domain.ErrInvalidTarget, t, id)
	}

	if t == domain.ActionDownload {
		if !rec.HasObjective(domain.ObjectiveDownload) || !rec.ObjectiveVisible {
			return fmt.Errorf("%w: nothing to download on %s", domain.ErrInvalidTarget, id)
		}
		if rec.Kind().IsExecutable() && rec.State == domain.StateActive {
			return fmt.Errorf("%w: %s is still running", domain.ErrInvalidTarget, id)
		}
		return nil
	}

	if rec.State.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", domain.ErrInvalidTarget, id, rec.State)
	}
	return nil
}

// Resolve attempts one intent against the budget.
// An intent that does not fit is deferred with no side effects, except that an
// action costing more than a whole tick pays what is left and completes once fully paid.
// Invalid targets and unknown nodes are returned as errors.
func (r *ActionResolver) Resolve(intent domain.Intent, action domain.Action, budget *Budget) (domain.Outcome, error) {
	out := domain.Outcome{
		Intent: intent.ID,
		Node:   intent.Target,
		Action: intent.Action,
	}

	rec, err := r.registry.Get(intent.Target)
	if err != nil {
		return out, err
	}
	if err := r.Check(rec, action); err != nil {
		return out, err
	}

	cost := r.Cost(action)
	if cost > budget.Total() {
		need := cost - r.progress[intent.ID]
		if need > budget.Remaining() {
			out.Cost = budget.drain()
			r.progress[intent.ID] += out.Cost
			out.Status = domain.StatusDeferred
			out.NewState = rec.State
			r.logger.Debug("channeling intent",
				zap.Uint64("intent", uint64(intent.ID)),
				zap.Float64("paid", r.progress[intent.ID]),
				zap.Float64("cost", cost))
			return out, nil
		}
		cost = need
		delete(r.progress, intent.ID)
	}
	if !budget.Spend(cost) {
		out.Status = domain.StatusDeferred
		out.NewState = rec.State
		return out, nil
	}

	out.Status = domain.StatusExecuted
	out.Cost = cost
	r.lastTouched = intent.Target

	key := retryKey{intent.Target, intent.Action}
	out.Probability = action.SuccessRate(r.retries[key], r.config.RateBonus)
	out.ProbeDelta, out.ThreatDelta = r.threat.OnAttempt(intent.Action)

	out.Roll = r.roller.Float64()
	out.Success = out.Roll < out.Probability

	if out.Success {
		err = r.apply(rec, action)
	} else {
		err = r.fail(rec, key)
	}
	if err != nil {
		return out, err
	}

	after, err := r.registry.Get(intent.Target)
	if err != nil {
		return out, err
	}
	out.NewState = after.State

	r.logger.Info("action resolved",
		zap.Uint64("intent", uint64(intent.ID)),
		zap.String("action", string(intent.Action)),
		zap.String("node", string(intent.Target)),
		zap.Bool("success", out.Success),
		zap.Float64("roll", out.Roll),
		zap.Float64("probability", out.Probability),
		zap.Float64("cost", out.Cost),
		zap.String("state", string(out.NewState)))
	return out, nil
}

func (r *ActionResolver) apply(rec domain.NodeRecord, action domain.Action) error {
	id := rec.ID()

	switch action.Type {
	case domain.ActionStop:
		ticks := rec.Def.Base().RestartTicks
		if ticks <= 0 {
			ticks = r.policies.DefaultRestartTicks(rec.Kind())
		}
		if err := r.registry.Update(id, func(rt *domain.NodeRuntime) { rt.Timer = ticks }); err != nil {
			return err
		}
		return r.registry.SetState(id, domain.StateRestarting)

	case domain.ActionForceRestart:
		return r.registry.SetState(id, domain.StateActive)

	case domain.ActionOverwriteDisable:
		if err := r.overwrite(rec, domain.AlterNone); err != nil {
			return err
		}
		return r.registry.SetState(id, domain.StateDisabled)

	case domain.ActionOverwriteAlterBehavior:
		return r.overwrite(rec, domain.AlterBehavior)

	case domain.ActionOverwriteAlterRelay:
		return r.overwrite(rec, domain.AlterRelay)

	case domain.ActionOverwriteJam:
		if err := r.registry.Update(id, func(rt *domain.NodeRuntime) { rt.Timer = action.JamTurns }); err != nil {
			return err
		}
		return r.registry.SetState(id, domain.StateJammed)

	case domain.ActionAnalyze:
		if !rec.Analyzed {
			r.analyzeCount++
		}
		if err := r.registry.Update(id, func(rt *domain.NodeRuntime) {
			rt.Analyzed = true
			if rec.Def.Base().Objective != nil {
				rt.ObjectiveVisible = true
			}
		}); err != nil {
			return err
		}
		_, err := r.registry.RevealType(id, rec.Kind())
		return err

	case domain.ActionDownload:
		return r.registry.Update(id, func(rt *domain.NodeRuntime) { rt.ObjectiveComplete = true })
	}
	return fmt.Errorf("%w: unknown action %s", domain.ErrInvalidTarget, action.Type)
}

// overwrite marks a node as rewritten by the player and drops any response it had scheduled.
func (r *ActionResolver) overwrite(rec domain.NodeRecord, alteration domain.Alteration) error {
	err := r.registry.Update(rec.ID(), func(rt *domain.NodeRuntime) {
		rt.Overwritten = true
		if alteration != domain.AlterNone {
			rt.Alteration = alteration
		}
		if rec.HasObjective(domain.ObjectiveOverwrite) {
			rt.ObjectiveComplete = true
		}
	})
	if err != nil {
		return err
	}
	r.watches.Cancel(rec.ID())
	return nil
}

func (r *ActionResolver) fail(rec domain.NodeRecord, key retryKey) error {
	r.retries[key]++

	if !key.action.IsOverwrite() || r.config.MaxOverwriteRetries <= 0 || r.retries[key] < r.config.MaxOverwriteRetries {
		return nil
	}

	r.logger.Warn("node crashed under repeated overwrites",
		zap.String("node", string(key.node)),
		zap.String("action", string(key.action)),
		zap.Int("retries", r.retries[key]))
	r.watches.Cancel(rec.ID())
	return r.registry.SetState(key.node, domain.StateFailed)
}
