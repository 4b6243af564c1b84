package daemon

import (
	"sort"

	"go.uber.org/zap"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// InterlockConfig holds interlock scheduling configuration.
type InterlockConfig struct {
	PriorityScale int // Higher daemon priority shortens timer delays relative to this
	MinDelay      int // Timer responses never fire sooner than this many ticks
}

// DefaultInterlockConfig returns default interlock configuration.
func DefaultInterlockConfig() InterlockConfig {
	return InterlockConfig{
		PriorityScale: 10,
		MinDelay:      1,
	}
}

// Interlock holds the delayed restart responses of interlocked daemons.
// Each daemon owns at most one pending response.
type Interlock struct {
	config   InterlockConfig
	registry domain.NodeRegistry
	logger   *zap.Logger
	pending  map[domain.NodeID]domain.PendingResponse
	settled  map[domain.NodeID]domain.NodeID // daemon -> target its last response could not restart
}

// NewInterlock creates an empty interlock scheduler.
func NewInterlock(config InterlockConfig, registry domain.NodeRegistry, logger *zap.Logger) *Interlock {
	if config.PriorityScale <= 0 {
		config.PriorityScale = DefaultInterlockConfig().PriorityScale
	}
	if config.MinDelay <= 0 {
		config.MinDelay = DefaultInterlockConfig().MinDelay
	}
	return &Interlock{
		config:   config,
		registry: registry,
		logger:   logger,
		pending:  make(map[domain.NodeID]domain.PendingResponse),
		settled:  make(map[domain.NodeID]domain.NodeID),
	}
}

// Delay returns how many ticks a timer-triggered daemon waits before responding:
// ceil(Ticks * PriorityScale / (PriorityScale + priority)), at least MinDelay.
func (i *Interlock) Delay(d *domain.DaemonNode) int {
	scale := i.config.PriorityScale
	num := d.Restart.Ticks * scale
	den := scale + d.Priority
	delay := (num + den - 1) / den
	if delay < i.config.MinDelay {
		return i.config.MinDelay
	}
	return delay
}

// Schedule queues a response from d against target, detected during tick.
// It reports false if d already has a response pending.
func (i *Interlock) Schedule(d *domain.DaemonNode, target domain.NodeID, tick int) (domain.PendingResponse, bool) {
	if existing, ok := i.pending[d.ID]; ok {
		return existing, false
	}

	due := tick + 1
	if d.Restart.Trigger == domain.TriggerTimer {
		due = tick + i.Delay(d)
	}

	resp := domain.PendingResponse{
		Daemon:  d.ID,
		Target:  target,
		Trigger: d.Restart.Trigger,
		DueTick: due,
	}
	i.pending[d.ID] = resp

	i.logger.Info("interlock response scheduled",
		zap.String("daemon", string(d.ID)),
		zap.String("target", string(target)),
		zap.String("trigger", string(resp.Trigger)),
		zap.Int("due_tick", due))
	return resp, true
}

// HasPending reports whether the daemon owns a pending response.
func (i *Interlock) HasPending(daemon domain.NodeID) bool {
	_, ok := i.pending[daemon]
	return ok
}

// Cancel drops the daemon's pending response, if any.
func (i *Interlock) Cancel(daemon domain.NodeID) bool {
	resp, ok := i.pending[daemon]
	if !ok {
		return false
	}
	delete(i.pending, daemon)

	i.logger.Info("interlock response cancelled",
		zap.String("daemon", string(daemon)),
		zap.String("target", string(resp.Target)))
	return true
}

// Fire applies every response due at tick. Responses of neutralized daemons are
// dropped; responses of daemons that are down but not neutralized wait for them to return.
func (i *Interlock) Fire(tick int) {
	for _, resp := range i.Pending() {
		if resp.DueTick > tick {
			continue
		}

		d, err := i.registry.Get(resp.Daemon)
		if err != nil {
			i.logger.Warn("dropping response of unknown daemon", zap.String("daemon", string(resp.Daemon)))
			delete(i.pending, resp.Daemon)
			continue
		}
		if neutralized(d) {
			i.Cancel(resp.Daemon)
			continue
		}
		if d.State != domain.StateActive {
			i.logger.Debug("interlock response held",
				zap.String("daemon", string(resp.Daemon)),
				zap.String("state", string(d.State)))
			continue
		}

		delete(i.pending, resp.Daemon)
		if !restart(i.registry, resp.Daemon, resp.Target, i.logger) {
			i.settle(resp.Daemon, resp.Target)
		}
	}
}

// Settled reports whether the daemon's last response against target found
// nothing to restart and target is still beyond a restart.
// A settled daemon does not respond again until its watch recovers.
func (i *Interlock) Settled(daemon, target domain.NodeID) bool {
	last, ok := i.settled[daemon]
	if !ok {
		return false
	}
	if last == target {
		if rec, err := i.registry.Get(target); err == nil && !restartable(rec.State) {
			return true
		}
	}
	delete(i.settled, daemon)
	return false
}

// Unsettle forgets a settled response, once the daemon's watch holds again.
func (i *Interlock) Unsettle(daemon domain.NodeID) {
	delete(i.settled, daemon)
}

func (i *Interlock) settle(daemon, target domain.NodeID) {
	i.settled[daemon] = target
	i.logger.Debug("daemon response settled",
		zap.String("daemon", string(daemon)),
		zap.String("target", string(target)))
}

// Pending returns the pending responses ordered by due tick, then daemon id.
func (i *Interlock) Pending() []domain.PendingResponse {
	result := make([]domain.PendingResponse, 0, len(i.pending))
	for _, resp := range i.pending {
		result = append(result, resp)
	}
	sort.Slice(result, func(a, b int) bool {
		if result[a].DueTick != result[b].DueTick {
			return result[a].DueTick < result[b].DueTick
		}
		return result[a].Daemon < result[b].Daemon
	})
	return result
}

// neutralized reports whether the player has permanently dealt with a daemon.
func neutralized(d domain.NodeRecord) bool {
	return d.State.IsTerminal() || d.Friendly() || d.Overwritten
}

func restartable(s domain.NodeState) bool {
	return s == domain.StateRestarting || s == domain.StateJammed
}

// restart force-restarts target on behalf of daemon and reports whether it
// changed anything. Stopped and jammed targets come back up; permanently
// disabled or failed targets make the response fizzle.
func restart(registry domain.NodeRegistry, daemon, target domain.NodeID, logger *zap.Logger) bool {
	rec, err := registry.Get(target)
	if err != nil {
		logger.Warn("restart target missing", zap.String("daemon", string(daemon)), zap.Error(err))
		return false
	}

	switch {
	case restartable(rec.State):
		if err := registry.SetState(target, domain.StateActive); err != nil {
			logger.Warn("failed to restart node", zap.String("target", string(target)), zap.Error(err))
			return false
		}
		logger.Info("daemon restarted node",
			zap.String("daemon", string(daemon)),
			zap.String("target", string(target)),
			zap.String("from", string(rec.State)))
		return true
	case rec.State.IsTerminal():
		logger.Info("daemon response fizzled",
			zap.String("daemon", string(daemon)),
			zap.String("target", string(target)),
			zap.String("state", string(rec.State)))
	default:
		logger.Debug("restart target already active",
			zap.String("daemon", string(daemon)),
			zap.String("target", string(target)))
	}
	return false
}
