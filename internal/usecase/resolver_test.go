package usecase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Misaka-0x447f/project-DaBES/internal/daemon"
	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
	"github.com/Misaka-0x447f/project-DaBES/internal/infra"
	"github.com/Misaka-0x447f/project-DaBES/internal/policy"
)

type resolverFixture struct {
	reg      *infra.NodeRegistry
	threat   *ThreatTracker
	resolver *ActionResolver
}

func newResolver(t *testing.T, config Config, nodes []domain.Node, rolls ...float64) *resolverFixture {
	t.Helper()

	policies := policy.NewPolicyStore()
	reg, err := infra.NewNodeRegistry(nodes, policies, zap.NewNop())
	require.NoError(t, err)
	for _, n := range nodes {
		_, err := reg.RevealType(n.Base().ID, n.Kind())
		require.NoError(t, err)
	}

	threat := NewThreatTracker(config, reg, zap.NewNop())
	watcher := daemon.NewWatcher(daemon.DefaultInterlockConfig(), reg, zap.NewNop())
	return &resolverFixture{
		reg:      reg,
		threat:   threat,
		resolver: NewActionResolver(config, reg, policies, infra.NewFixedRoller(rolls...), threat, watcher, zap.NewNop()),
	}
}

func (f *resolverFixture) resolve(t *testing.T, id domain.IntentID, action domain.Action, target domain.NodeID, budget *Budget) domain.Outcome {
	t.Helper()
	out, err := f.resolver.Resolve(domain.Intent{ID: id, Action: action.Type, Target: target}, action, budget)
	require.NoError(t, err)
	return out
}

func (f *resolverFixture) state(t *testing.T, id domain.NodeID) domain.NodeState {
	t.Helper()
	rec, err := f.reg.Get(id)
	require.NoError(t, err)
	return rec.State
}

func TestBudget_Spend(t *testing.T) {
	b := NewBudget(10)

	assert.True(t, b.Spend(4))
	assert.False(t, b.Spend(7))
	assert.Equal(t, 6.0, b.Remaining())
	assert.True(t, b.Spend(6))
	assert.Zero(t, b.Remaining())
	assert.Equal(t, 10.0, b.Total())
}

func TestActionResolver_Check(t *testing.T) {
	cmObjective := &domain.Objective{Kind: domain.ObjectiveDownload}
	nodes := []domain.Node{
		firewall("fw", 1),
		counterMeasure("cm", 1, 0, cmObjective),
		loot("data"),
		mustNode(domain.NewPassiveNode(domain.NodeBase{ID: "junk"}, domain.TypeRecyclable)),
	}
	f := newResolver(t, DefaultConfig(), nodes)
	require.NoError(t, f.reg.SetState("fw", domain.StateDisabled))

	tests := []struct {
		name   string
		node   domain.NodeID
		action domain.Action
		valid  bool
	}{
		{"stop on passive", "junk", act(domain.ActionStop, 1, 1), false},
		{"analyze on passive", "junk", act(domain.ActionAnalyze, 1, 1), true},
		{"download without objective", "junk", act(domain.ActionDownload, 1, 1), false},
		{"download objective", "data", act(domain.ActionDownload, 1, 1), true},
		{"download running counter-measure", "cm", act(domain.ActionDownload, 1, 1), false},
		{"jam without turns", "cm", act(domain.ActionOverwriteJam, 1, 1), false},
		{"stop disabled node", "fw", act(domain.ActionStop, 1, 1), false},
		{"analyze disabled node", "fw", act(domain.ActionAnalyze, 1, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := f.reg.Get(tt.node)
			require.NoError(t, err)

			err = f.resolver.Check(rec, tt.action)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidTarget)
			}
		})
	}
}

func TestActionResolver_DownloadStoppedCounterMeasure(t *testing.T) {
	f := newResolver(t, DefaultConfig(), []domain.Node{
		counterMeasure("cm", 1, 0, &domain.Objective{Kind: domain.ObjectiveDownload}),
	})
	require.NoError(t, f.reg.SetState("cm", domain.StateDisabled))

	rec, err := f.reg.Get("cm")
	require.NoError(t, err)
	assert.NoError(t, f.resolver.Check(rec, act(domain.ActionDownload, 1, 1)))

	out := f.resolve(t, 1, act(domain.ActionDownload, 1, 1), "cm", NewBudget(10))
	assert.True(t, out.Success)
	assert.True(t, mustGet(t, f.reg, "cm").ObjectiveComplete)
}

func mustGet(t *testing.T, reg *infra.NodeRegistry, id domain.NodeID) domain.NodeRecord {
	t.Helper()
	rec, err := reg.Get(id)
	require.NoError(t, err)
	return rec
}

func TestActionResolver_DeferredHasNoSideEffects(t *testing.T) {
	f := newResolver(t, DefaultConfig(), []domain.Node{firewall("fw", 1)})
	budget := NewBudget(10)
	require.True(t, budget.Spend(8))

	out := f.resolve(t, 1, act(domain.ActionStop, 3, 1), "fw", budget)

	assert.Equal(t, domain.StatusDeferred, out.Status)
	assert.Zero(t, out.Cost)
	assert.Equal(t, 2.0, budget.Remaining())
	assert.Equal(t, domain.StateActive, f.state(t, "fw"))
	assert.Zero(t, f.threat.Snapshot().ProbeLevel)
	assert.Empty(t, f.resolver.LastTouched())
}

func TestActionResolver_ProbeChargedWhateverTheRoll(t *testing.T) {
	for _, roll := range []float64{0, 0.99} {
		f := newResolver(t, DefaultConfig(), []domain.Node{firewall("fw", 1)}, roll)

		out := f.resolve(t, 1, act(domain.ActionOverwriteDisable, 2, 0.5), "fw", NewBudget(10))

		assert.Equal(t, domain.StatusExecuted, out.Status)
		assert.Equal(t, roll < 0.5, out.Success)
		assert.Equal(t, 2, out.ProbeDelta)
		assert.Equal(t, 2, f.threat.Snapshot().ProbeLevel)
	}
}

func TestActionResolver_Stop(t *testing.T) {
	f := newResolver(t, DefaultConfig(), []domain.Node{firewall("fw", 1)})

	out := f.resolve(t, 1, act(domain.ActionStop, 2, 1), "fw", NewBudget(10))

	assert.Equal(t, domain.StateRestarting, out.NewState)
	rec := mustGet(t, f.reg, "fw")
	assert.Equal(t, 2, rec.Timer)
	assert.Equal(t, domain.NodeID("fw"), f.resolver.LastTouched())
}

func TestActionResolver_Jam(t *testing.T) {
	f := newResolver(t, DefaultConfig(), []domain.Node{firewall("fw", 1)})
	jam := act(domain.ActionOverwriteJam, 2, 1)
	jam.JamTurns = 4

	out := f.resolve(t, 1, jam, "fw", NewBudget(10))

	assert.Equal(t, domain.StateJammed, out.NewState)
	rec := mustGet(t, f.reg, "fw")
	assert.Equal(t, 4, rec.Timer)
	assert.False(t, rec.Overwritten)
}

func TestActionResolver_Overwrites(t *testing.T) {
	tests := []struct {
		action     domain.ActionType
		state      domain.NodeState
		alteration domain.Alteration
	}{
		{domain.ActionOverwriteDisable, domain.StateDisabled, domain.AlterNone},
		{domain.ActionOverwriteAlterBehavior, domain.StateActive, domain.AlterBehavior},
		{domain.ActionOverwriteAlterRelay, domain.StateActive, domain.AlterRelay},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			target := mustNode(domain.NewExecutableNode(domain.NodeBase{
				ID:        "svc",
				Objective: &domain.Objective{Kind: domain.ObjectiveOverwrite},
			}, domain.TypeUndefined, 1))
			f := newResolver(t, DefaultConfig(), []domain.Node{target})

			f.resolve(t, 1, act(tt.action, 2, 1), "svc", NewBudget(10))

			rec := mustGet(t, f.reg, "svc")
			assert.Equal(t, tt.state, rec.State)
			assert.Equal(t, tt.alteration, rec.Alteration)
			assert.True(t, rec.Overwritten)
			assert.True(t, rec.ObjectiveComplete)
		})
	}
}

func TestActionResolver_AnalyzeCountsOncePerNode(t *testing.T) {
	f := newResolver(t, DefaultConfig(), []domain.Node{firewall("a", 1), firewall("b", 1)})
	analyze := act(domain.ActionAnalyze, 1, 1)

	f.resolve(t, 1, analyze, "a", NewBudget(10))
	f.resolve(t, 2, analyze, "a", NewBudget(10))
	assert.Equal(t, 1, f.resolver.AnalyzeCount())

	f.resolve(t, 3, analyze, "b", NewBudget(10))
	assert.Equal(t, 2, f.resolver.AnalyzeCount())
	assert.True(t, mustGet(t, f.reg, "a").Analyzed)
}

func TestActionResolver_AnalyzeRevealsHiddenObjective(t *testing.T) {
	nodes := []domain.Node{
		counterMeasure("cm", 1, 0, &domain.Objective{Kind: domain.ObjectiveDownload, RequireAnalysis: true}),
	}
	policies := policy.NewPolicyStore()
	reg, err := infra.NewNodeRegistry(nodes, policies, zap.NewNop())
	require.NoError(t, err)
	config := DefaultConfig()
	threat := NewThreatTracker(config, reg, zap.NewNop())
	watcher := daemon.NewWatcher(daemon.DefaultInterlockConfig(), reg, zap.NewNop())
	r := NewActionResolver(config, reg, policies, infra.NewFixedRoller(), threat, watcher, zap.NewNop())

	assert.False(t, mustGet(t, reg, "cm").ObjectiveVisible)

	_, err = r.Resolve(domain.Intent{ID: 1, Action: domain.ActionAnalyze, Target: "cm"}, act(domain.ActionAnalyze, 1, 1), NewBudget(10))
	require.NoError(t, err)

	rec := mustGet(t, reg, "cm")
	assert.True(t, rec.ObjectiveVisible)
	assert.Equal(t, domain.TypeCounterMeasure, rec.Revealed)
}

func TestActionResolver_AnalysisLowersCosts(t *testing.T) {
	f := newResolver(t, DefaultConfig(), []domain.Node{firewall("a", 1)})
	stop := domain.Action{Type: domain.ActionStop, BaseCost: 10, Cost: domain.Geometric{Ratio: 0.5, Min: 1}, BaseRate: 1}

	before := f.resolver.Cost(stop)
	f.resolve(t, 1, act(domain.ActionAnalyze, 1, 1), "a", NewBudget(10))

	assert.Equal(t, 10.0, before)
	assert.Equal(t, 5.0, f.resolver.Cost(stop))
}

func TestActionResolver_Channeling(t *testing.T) {
	config := DefaultConfig()
	f := newResolver(t, config, []domain.Node{firewall("fw", 1)})
	disable := act(domain.ActionOverwriteDisable, 25, 1)

	first := f.resolve(t, 7, disable, "fw", NewBudget(10))
	assert.Equal(t, domain.StatusDeferred, first.Status)
	assert.Equal(t, 10.0, first.Cost)
	assert.Equal(t, 10.0, f.resolver.Progress(7))
	assert.Zero(t, f.threat.Snapshot().ProbeLevel)

	budget := NewBudget(10)
	require.True(t, budget.Spend(4))
	second := f.resolve(t, 7, disable, "fw", budget)
	assert.Equal(t, domain.StatusDeferred, second.Status)
	assert.Equal(t, 6.0, second.Cost)
	assert.Equal(t, 16.0, f.resolver.Progress(7))

	third := f.resolve(t, 7, disable, "fw", NewBudget(10))
	assert.Equal(t, domain.StatusExecuted, third.Status)
	assert.Equal(t, 9.0, third.Cost)
	assert.Equal(t, domain.StateDisabled, third.NewState)
	assert.Zero(t, f.resolver.Progress(7))
}

func TestActionResolver_RetriesImproveOdds(t *testing.T) {
	f := newResolver(t, DefaultConfig(), []domain.Node{firewall("fw", 1)}, 0.99)
	stop := domain.Action{Type: domain.ActionStop, BaseCost: 1, BaseRate: 0.2, Rate: domain.Linear{Step: 0.1}}

	first := f.resolve(t, 1, stop, "fw", NewBudget(10))
	second := f.resolve(t, 2, stop, "fw", NewBudget(10))

	assert.InDelta(t, 0.2, first.Probability, 1e-9)
	assert.InDelta(t, 0.3, second.Probability, 1e-9)
	assert.Equal(t, 2, f.resolver.RetryCount("fw", domain.ActionStop))
}

func TestActionResolver_RepeatedOverwriteFailuresCrashNode(t *testing.T) {
	config := DefaultConfig()
	config.MaxOverwriteRetries = 2
	f := newResolver(t, config, []domain.Node{firewall("fw", 1)}, 0.99)
	disable := act(domain.ActionOverwriteDisable, 1, 0.1)

	f.resolve(t, 1, disable, "fw", NewBudget(10))
	assert.Equal(t, domain.StateActive, f.state(t, "fw"))

	out := f.resolve(t, 2, disable, "fw", NewBudget(10))
	assert.False(t, out.Success)
	assert.Equal(t, domain.StateFailed, out.NewState)
}

func TestActionResolver_FailedStopsNeverCrash(t *testing.T) {
	config := DefaultConfig()
	config.MaxOverwriteRetries = 1
	f := newResolver(t, config, []domain.Node{firewall("fw", 1)}, 0.99)

	for i := 1; i <= 3; i++ {
		f.resolve(t, domain.IntentID(i), act(domain.ActionStop, 1, 0.1), "fw", NewBudget(10))
	}
	assert.Equal(t, domain.StateActive, f.state(t, "fw"))
}

func TestActionResolver_UnknownNode(t *testing.T) {
	f := newResolver(t, DefaultConfig(), []domain.Node{firewall("fw", 1)})

	_, err := f.resolver.Resolve(domain.Intent{ID: 1, Action: domain.ActionStop, Target: "ghost"}, act(domain.ActionStop, 1, 1), NewBudget(10))
	assert.ErrorIs(t, err, domain.ErrUnknownNode)
}

func TestActionResolver_UnboundedCostRejected(t *testing.T) {
	config := DefaultConfig()
	config.CostMultiplier = 2
	huge := act(domain.ActionStop, 1e308, 1)
	f := newResolver(t, config, []domain.Node{firewall("fw", 1, huge)})

	require.True(t, math.IsInf(f.resolver.Cost(huge), 1))

	rec := mustGet(t, f.reg, "fw")
	assert.ErrorIs(t, f.resolver.Check(rec, huge), domain.ErrInvalidTarget)

	_, err := f.resolver.Resolve(domain.Intent{ID: 1, Action: domain.ActionStop, Target: "fw"}, huge, NewBudget(10))
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)
	assert.Zero(t, f.resolver.Progress(1))
	assert.Equal(t, domain.StateActive, f.state(t, "fw"))
}
