package policy

import (
	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// ExecutablePolicy implements TypePolicy for daemons, firewalls,
// counter-measures and undefined executables.
type ExecutablePolicy struct {
	kind         domain.NodeType
	description  string
	actions      []domain.Action
	restartTicks int
}

// NewDaemonPolicy: daemons are cheap to stop but interlocked ones come back.
func NewDaemonPolicy() *ExecutablePolicy {
	return &ExecutablePolicy{
		kind:        domain.TypeDaemon,
		description: "Background service. Can be stopped or restarted; interlocked daemons restart their partners.",
		actions: []domain.Action{
			retrying(domain.ActionStop, 3, 0.75),
			retrying(domain.ActionForceRestart, 3, 0.8),
			retrying(domain.ActionOverwriteDisable, 6, 0.5),
			retrying(domain.ActionOverwriteAlterBehavior, 7, 0.45),
			retrying(domain.ActionOverwriteAlterRelay, 6, 0.5),
			jam(4, 0.6, 3),
			retrying(domain.ActionAnalyze, 2, 0.9),
			certain(domain.ActionDownload, 3),
		},
		restartTicks: DefaultRestartTicks,
	}
}

// NewFirewallPolicy: firewalls cost a lot of processor time to touch.
func NewFirewallPolicy() *ExecutablePolicy {
	return &ExecutablePolicy{
		kind:        domain.TypeFirewall,
		description: "Firewall. Stopping or overwriting it takes a large amount of processor time.",
		actions: []domain.Action{
			retrying(domain.ActionStop, 8, 0.6),
			retrying(domain.ActionForceRestart, 6, 0.7),
			retrying(domain.ActionOverwriteDisable, 12, 0.35),
			retrying(domain.ActionOverwriteAlterBehavior, 12, 0.3),
			retrying(domain.ActionOverwriteAlterRelay, 10, 0.35),
			jam(8, 0.45, 2),
			retrying(domain.ActionAnalyze, 3, 0.85),
			certain(domain.ActionDownload, 4),
		},
		restartTicks: 2,
	}
}

// NewCounterMeasurePolicy: counter-measures watch the player and can only be
// downloaded for decompilation after they stopped working.
func NewCounterMeasurePolicy() *ExecutablePolicy {
	return &ExecutablePolicy{
		kind: domain.TypeCounterMeasure,
		description: "Counter-measure. Raises the threat level once it notices you; " +
			"can be downloaded and decompiled after it has been taken down.",
		actions: []domain.Action{
			retrying(domain.ActionStop, 5, 0.6),
			retrying(domain.ActionForceRestart, 4, 0.7),
			retrying(domain.ActionOverwriteDisable, 14, 0.3),
			retrying(domain.ActionOverwriteAlterBehavior, 14, 0.25),
			retrying(domain.ActionOverwriteAlterRelay, 12, 0.3),
			jam(6, 0.5, 2),
			retrying(domain.ActionAnalyze, 3, 0.8),
			certain(domain.ActionDownload, 4),
		},
		restartTicks: 4,
	}
}

// NewUndefinedPolicy: unknown executables, their behaviour may change.
func NewUndefinedPolicy() *ExecutablePolicy {
	return &ExecutablePolicy{
		kind:        domain.TypeUndefined,
		description: "Unidentified executable service. Its behaviour may change.",
		actions: []domain.Action{
			retrying(domain.ActionStop, 4, 0.6),
			retrying(domain.ActionForceRestart, 4, 0.6),
			retrying(domain.ActionOverwriteDisable, 8, 0.4),
			retrying(domain.ActionOverwriteAlterBehavior, 8, 0.4),
			retrying(domain.ActionOverwriteAlterRelay, 8, 0.4),
			jam(5, 0.5, 2),
			retrying(domain.ActionAnalyze, 2, 0.85),
			certain(domain.ActionDownload, 3),
		},
		restartTicks: DefaultRestartTicks,
	}
}

func (p *ExecutablePolicy) Type() domain.NodeType    { return p.kind }
func (p *ExecutablePolicy) Description() string      { return p.description }
func (p *ExecutablePolicy) Actions() []domain.Action { return cloneActions(p.actions) }
func (p *ExecutablePolicy) RestartTicks() int        { return p.restartTicks }

// Ensure ExecutablePolicy implements TypePolicy.
var _ TypePolicy = (*ExecutablePolicy)(nil)
