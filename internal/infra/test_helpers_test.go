package infra

import (
	"testing"

	"go.uber.org/zap"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
	"github.com/Misaka-0x447f/project-DaBES/internal/policy"
)

// sampleNodes builds a small two-level network:
//
//	root/ (directory)
//	  fw    firewall
//	  d1    daemon watching fw
//	  cm    counter-measure with a download objective
//	  inner/ (directory)
//	    notes readme
func sampleNodes(t *testing.T) []domain.Node {
	t.Helper()

	root := mustNode(domain.NewPassiveNode(domain.NodeBase{ID: "root"}, domain.TypeDirectory))
	fw := mustNode(domain.NewExecutableNode(domain.NodeBase{ID: "fw", Parent: "root"}, domain.TypeFirewall, 2))
	d1 := mustNode(domain.NewDaemonNode(domain.NodeBase{ID: "d1", Parent: "root"}, 3,
		domain.Watch{Target: "fw", Invariant: domain.InvariantActive}, domain.RestartPolicy{}))
	cm := mustNode(domain.NewCounterMeasureNode(domain.NodeBase{
		ID:     "cm",
		Parent: "root",
		Objective: &domain.Objective{
			Kind:            domain.ObjectiveDownload,
			RequireAnalysis: true,
			Primary:         true,
		},
	}, 1, 3, 0))
	inner := mustNode(domain.NewPassiveNode(domain.NodeBase{ID: "inner", Parent: "root"}, domain.TypeDirectory))
	notes := mustNode(domain.NewPassiveNode(domain.NodeBase{ID: "notes", Parent: "inner", Description: "ops notes"}, domain.TypeReadme))

	return []domain.Node{root, fw, d1, cm, inner, notes}
}

func mustNode(n domain.Node, err error) domain.Node {
	if err != nil {
		panic(err)
	}
	return n
}

func newTestRegistry(t *testing.T) *NodeRegistry {
	t.Helper()
	r, err := NewNodeRegistry(sampleNodes(t), policy.NewPolicyStore(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return r
}
