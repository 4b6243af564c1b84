package usecase

import (
	"go.uber.org/zap"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// ThreatTracker accumulates probe and threat levels and runs the alarm countdown.
// Both levels only ever rise within a run.
type ThreatTracker struct {
	config   Config
	registry domain.NodeRegistry
	logger   *zap.Logger

	probe  int
	threat int

	countdown *int
	source    domain.NodeID

	marked       bool
	markStrength int
}

// NewThreatTracker creates a tracker with both levels at zero.
func NewThreatTracker(config Config, registry domain.NodeRegistry, logger *zap.Logger) *ThreatTracker {
	return &ThreatTracker{
		config:   config,
		registry: registry,
		logger:   logger,
	}
}

// RaiseProbe adds n to the probe level. Negative amounts are ignored.
func (t *ThreatTracker) RaiseProbe(n int) int {
	if n <= 0 {
		return 0
	}
	t.probe += n
	return n
}

// RaiseThreat adds n to the threat level. Negative amounts are ignored.
func (t *ThreatTracker) RaiseThreat(n int) int {
	if n <= 0 {
		return 0
	}
	t.threat += n
	return n
}

// OnBoost charges the probe cost of raising an intent's priority by boost.
func (t *ThreatTracker) OnBoost(boost int) int {
	return t.RaiseProbe(boost * t.config.PriorityRaiseProbe)
}

// OnAttempt charges an attempted action, whatever its roll.
// Once a counter-measure has marked the player, probe-raising actions also raise threat.
func (t *ThreatTracker) OnAttempt(action domain.ActionType) (probeDelta, threatDelta int) {
	if !action.RaisesProbe() {
		return 0, 0
	}
	probeDelta = t.RaiseProbe(t.config.ProbeIncrement(action))
	if t.marked {
		threatDelta = t.RaiseThreat(t.config.MarkedThreatPerAction * t.markStrength)
	}
	return probeDelta, threatDelta
}

// Settle runs counter-measure passive analysis and advances the alarm.
// It reports the threat added and whether the alarm countdown ran out.
func (t *ThreatTracker) Settle(tick int) (threatDelta int, triggered bool) {
	var strongest *domain.NodeRecord
	strongestStrength := 0

	for _, rec := range t.registry.All() {
		cm, ok := rec.Def.(*domain.CounterMeasureNode)
		if !ok || cm.AnalysisStrength == 0 {
			continue
		}
		if rec.State != domain.StateActive || rec.Friendly() || rec.Overwritten {
			continue
		}
		if t.probe < t.visibility(cm) {
			continue
		}

		threatDelta += t.RaiseThreat(cm.AnalysisStrength * t.config.ThreatPerStrength)
		if !t.marked {
			t.logger.Info("player marked",
				zap.Int("tick", tick),
				zap.String("counter_measure", string(cm.ID)))
		}
		t.marked = true
		if cm.AnalysisStrength > t.markStrength {
			t.markStrength = cm.AnalysisStrength
		}
		if cm.AnalysisStrength > strongestStrength {
			r := rec
			strongest = &r
			strongestStrength = cm.AnalysisStrength
		}
	}

	if t.countdown != nil {
		if t.sourceNeutralized() {
			t.logger.Info("alarm cancelled",
				zap.Int("tick", tick),
				zap.String("source", string(t.source)))
			t.countdown = nil
			t.source = ""
		} else {
			*t.countdown--
			if *t.countdown <= 0 {
				*t.countdown = 0
				t.logger.Warn("alarm triggered",
					zap.Int("tick", tick),
					zap.String("source", string(t.source)))
				return threatDelta, true
			}
			return threatDelta, false
		}
	}

	if t.threat >= t.config.AlarmCeiling && strongest != nil {
		n := t.config.AlarmCountdownTicks
		t.countdown = &n
		t.source = strongest.ID()
		t.logger.Warn("alarm countdown started",
			zap.Int("tick", tick),
			zap.Int("threat", t.threat),
			zap.Int("countdown", n),
			zap.String("source", string(t.source)))
	}
	return threatDelta, false
}

func (t *ThreatTracker) visibility(cm *domain.CounterMeasureNode) int {
	if cm.VisibilityThreshold > 0 {
		return cm.VisibilityThreshold
	}
	return t.config.VisibilityThreshold
}

func (t *ThreatTracker) sourceNeutralized() bool {
	rec, err := t.registry.Get(t.source)
	if err != nil {
		return true
	}
	return rec.State.IsTerminal() || rec.Friendly() || rec.Overwritten
}

// Snapshot returns the current detection state.
func (t *ThreatTracker) Snapshot() domain.ThreatSnapshot {
	return domain.ThreatSnapshot{
		ProbeLevel:     t.probe,
		ThreatLevel:    t.threat,
		AlarmCountdown: t.Countdown(),
		AlarmSource:    t.source,
		Marked:         t.marked,
	}
}

// Countdown returns a copy of the alarm countdown, nil when no alarm is running.
func (t *ThreatTracker) Countdown() *int {
	if t.countdown == nil {
		return nil
	}
	n := *t.countdown
	return &n
}
