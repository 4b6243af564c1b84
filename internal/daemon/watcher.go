// Package daemon implements the daemon watch evaluator and interlock scheduling.
package daemon

import (
	"go.uber.org/zap"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// Watcher is the daemon watch evaluator.
// After each resolving phase it checks every running daemon's invariant against
// the registry and triggers the daemon's restart response on violation.
// Interlocked daemons go through the Interlock; the rest respond immediately.
type Watcher struct {
	registry  domain.NodeRegistry
	interlock *Interlock
	logger    *zap.Logger
}

// NewWatcher creates a new watch evaluator.
func NewWatcher(config InterlockConfig, registry domain.NodeRegistry, logger *zap.Logger) *Watcher {
	return &Watcher{
		registry:  registry,
		interlock: NewInterlock(config, registry, logger),
		logger:    logger,
	}
}

// Interlock exposes the scheduler backing this watcher.
func (w *Watcher) Interlock() *Interlock {
	return w.interlock
}

// Fire runs the interlock responses due at the start of tick.
func (w *Watcher) Fire(tick int) {
	w.interlock.Fire(tick)
}

// Evaluate reconciles every daemon against the current registry state.
func (w *Watcher) Evaluate(tick int, lastTouched domain.NodeID) {
	for _, rec := range w.registry.All() {
		d, ok := rec.Def.(*domain.DaemonNode)
		if !ok {
			continue
		}
		if neutralized(rec) {
			w.interlock.Cancel(d.ID)
			continue
		}
		if rec.State != domain.StateActive {
			continue
		}

		violated, err := w.violated(d.Watch)
		if err != nil {
			w.logger.Warn("failed to evaluate watch",
				zap.String("daemon", string(d.ID)),
				zap.Error(err))
			continue
		}
		if !violated {
			w.interlock.Unsettle(d.ID)
			continue
		}

		target := responseTarget(d, lastTouched)
		if w.interlock.HasPending(d.ID) || w.interlock.Settled(d.ID, target) {
			continue
		}
		w.logger.Info("watch violated",
			zap.Int("tick", tick),
			zap.String("daemon", string(d.ID)),
			zap.String("watched", string(d.Watch.Target)),
			zap.String("invariant", string(d.Watch.Invariant)),
			zap.String("target", string(target)))

		if d.Restart.Interlock {
			w.interlock.Schedule(d, target, tick)
			continue
		}
		if !restart(w.registry, d.ID, target, w.logger) {
			w.interlock.settle(d.ID, target)
		}
	}
}

// Cancel drops the pending response owned by a daemon.
func (w *Watcher) Cancel(daemon domain.NodeID) bool {
	return w.interlock.Cancel(daemon)
}

// Pending lists the responses waiting to fire.
func (w *Watcher) Pending() []domain.PendingResponse {
	return w.interlock.Pending()
}

func (w *Watcher) violated(watch domain.Watch) (bool, error) {
	target, err := w.registry.Get(watch.Target)
	if err != nil {
		return false, err
	}

	switch watch.Invariant {
	case domain.InvariantActive:
		return target.State != domain.StateActive, nil
	case domain.InvariantSignature:
		baseline, _ := w.registry.Baseline(watch.Target)
		return target.State != domain.StateActive || target.Signature() != baseline, nil
	}
	return false, nil
}

// responseTarget picks the node a daemon restarts. A last-touched daemon falls
// back to its watched node until the player has acted on something.
func responseTarget(d *domain.DaemonNode, lastTouched domain.NodeID) domain.NodeID {
	switch d.Restart.Target {
	case domain.RestartSelf:
		return d.ID
	case domain.RestartLastTouched:
		if lastTouched != "" {
			return lastTouched
		}
	}
	return d.Watch.Target
}

// Ensure Watcher implements domain.WatchEvaluator.
var _ domain.WatchEvaluator = (*Watcher)(nil)
