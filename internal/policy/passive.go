package policy

import (
	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// PassivePolicy implements TypePolicy for nodes that do not run code.
// They can only be analyzed, and downloaded when they carry a download objective.
type PassivePolicy struct {
	kind        domain.NodeType
	description string
	actions     []domain.Action
}

func newPassivePolicy(kind domain.NodeType, description string, actions ...domain.Action) *PassivePolicy {
	return &PassivePolicy{kind: kind, description: description, actions: actions}
}

// NewNonReadablePolicy describes a node whose type is still unknown.
func NewNonReadablePolicy() *PassivePolicy {
	return newPassivePolicy(domain.TypeNonReadable,
		"Unknown node. Analyze it or enter it to find out what it is.",
		certain(domain.ActionAnalyze, 1))
}

// NewRecyclablePolicy describes leftover files of no value.
func NewRecyclablePolicy() *PassivePolicy {
	return newPassivePolicy(domain.TypeRecyclable,
		"Recyclable data. Nothing of interest.",
		certain(domain.ActionAnalyze, 1),
		certain(domain.ActionDownload, 2))
}

// NewDirectoryPolicy describes a directory that leads one level deeper.
func NewDirectoryPolicy() *PassivePolicy {
	return newPassivePolicy(domain.TypeDirectory,
		"Directory. Enter it to reach the next level.",
		certain(domain.ActionAnalyze, 1),
		certain(domain.ActionDownload, 2))
}

// NewReadmePolicy describes a readme; reading it explains every executable on its level.
func NewReadmePolicy() *PassivePolicy {
	return newPassivePolicy(domain.TypeReadme,
		"Readme. Reading it reveals how every executable on this level behaves.",
		certain(domain.ActionAnalyze, 1),
		certain(domain.ActionDownload, 2))
}

// NewEntryPolicy describes an optional system entry point.
func NewEntryPolicy() *PassivePolicy {
	return newPassivePolicy(domain.TypeEntry,
		"Optional system entry point.",
		certain(domain.ActionAnalyze, 1),
		certain(domain.ActionDownload, 2))
}

func (p *PassivePolicy) Type() domain.NodeType    { return p.kind }
func (p *PassivePolicy) Description() string      { return p.description }
func (p *PassivePolicy) Actions() []domain.Action { return cloneActions(p.actions) }
func (p *PassivePolicy) RestartTicks() int        { return 0 }

// Ensure PassivePolicy implements TypePolicy.
var _ TypePolicy = (*PassivePolicy)(nil)
