package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Misaka-0x447f/project-DaBES/internal/daemon"
	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
	"github.com/Misaka-0x447f/project-DaBES/internal/infra"
	"github.com/Misaka-0x447f/project-DaBES/internal/policy"
)

func mustNode(n domain.Node, err error) domain.Node {
	if err != nil {
		panic(err)
	}
	return n
}

// act builds an action with a fixed cost and success rate.
func act(t domain.ActionType, cost, rate float64) domain.Action {
	return domain.Action{Type: t, BaseCost: cost, BaseRate: rate}
}

func firewall(id domain.NodeID, priority int, actions ...domain.Action) domain.Node {
	return mustNode(domain.NewExecutableNode(domain.NodeBase{ID: id, Actions: actions, RestartTicks: 2}, domain.TypeFirewall, priority))
}

func counterMeasure(id domain.NodeID, strength, visibility int, objective *domain.Objective, actions ...domain.Action) domain.Node {
	return mustNode(domain.NewCounterMeasureNode(domain.NodeBase{ID: id, Actions: actions, Objective: objective}, 0, strength, visibility))
}

func loot(id domain.NodeID) domain.Node {
	return mustNode(domain.NewPassiveNode(domain.NodeBase{
		ID:        id,
		Objective: &domain.Objective{Kind: domain.ObjectiveDownload, Primary: true},
	}, domain.TypeRecyclable))
}

// harness is one engine over an in-memory registry with scripted rolls.
type harness struct {
	t       *testing.T
	reg     *infra.NodeRegistry
	watcher *daemon.Watcher
	engine  *Engine
}

func newHarness(t *testing.T, config Config, nodes []domain.Node, rolls ...float64) *harness {
	t.Helper()

	policies := policy.NewPolicyStore()
	reg, err := infra.NewNodeRegistry(nodes, policies, zap.NewNop())
	require.NoError(t, err)

	watcher := daemon.NewWatcher(daemon.DefaultInterlockConfig(), reg, zap.NewNop())
	engine, err := NewEngine(config, reg, policies, watcher, infra.NewFixedRoller(rolls...), zap.NewNop())
	require.NoError(t, err)

	return &harness{t: t, reg: reg, watcher: watcher, engine: engine}
}

// reveal makes the given nodes' types known, as if analyzed off-screen.
func (h *harness) reveal(ids ...domain.NodeID) *harness {
	h.t.Helper()
	for _, id := range ids {
		rec, err := h.reg.Get(id)
		require.NoError(h.t, err)
		_, err = h.reg.RevealType(id, rec.Kind())
		require.NoError(h.t, err)
	}
	return h
}

func (h *harness) revealAll() *harness {
	h.t.Helper()
	for _, rec := range h.reg.All() {
		h.reveal(rec.ID())
	}
	return h
}

func (h *harness) submit(action domain.ActionType, target domain.NodeID, boost int) domain.IntentID {
	h.t.Helper()
	id, err := h.engine.Submit(domain.Intent{Action: action, Target: target, Boost: boost})
	require.NoError(h.t, err)
	return id
}

func (h *harness) tick() domain.TickReport {
	h.t.Helper()
	report, err := h.engine.Tick(context.Background())
	require.NoError(h.t, err)
	return report
}

func (h *harness) state(id domain.NodeID) domain.NodeState {
	h.t.Helper()
	rec, err := h.reg.Get(id)
	require.NoError(h.t, err)
	return rec.State
}

func (h *harness) node(id domain.NodeID) domain.NodeRecord {
	h.t.Helper()
	rec, err := h.reg.Get(id)
	require.NoError(h.t, err)
	return rec
}

func actionTypes(actions []domain.Action) []domain.ActionType {
	out := make([]domain.ActionType, len(actions))
	for i, a := range actions {
		out[i] = a.Type
	}
	return out
}

// mockJournal implements domain.Journal for testing
type mockJournal struct {
	runs     []domain.RunInfo
	ticks    []domain.TickReport
	ended    *domain.Termination
	beginErr error
}

func (m *mockJournal) BeginRun(info domain.RunInfo) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	m.runs = append(m.runs, info)
	return nil
}

func (m *mockJournal) RecordTick(runID string, report domain.TickReport) error {
	m.ticks = append(m.ticks, report)
	return nil
}

func (m *mockJournal) EndRun(runID string, t domain.Termination) error {
	m.ended = &t
	return nil
}

func (m *mockJournal) ListRuns() ([]domain.RunSummary, error)          { return nil, nil }
func (m *mockJournal) Ticks(runID string) ([]domain.TickReport, error) { return m.ticks, nil }
func (m *mockJournal) Close() error                                    { return nil }

// mockMetrics implements domain.MetricsRecorder for testing
type mockMetrics struct {
	outcomes []domain.Outcome
	ticks    int
}

func (m *mockMetrics) ObserveOutcome(o domain.Outcome) { m.outcomes = append(m.outcomes, o) }
func (m *mockMetrics) ObserveTick(r domain.TickReport) { m.ticks++ }
