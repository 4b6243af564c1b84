package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// Phase is where the engine is within a tick.
type Phase string

const (
	PhaseAccumulating Phase = "accumulating"
	PhaseResolving    Phase = "resolving"
	PhaseSettling     Phase = "settling"
)

// Engine is the event loop scheduler of one run. It is not safe for concurrent use.
type Engine struct {
	config   Config
	registry domain.NodeRegistry
	policies domain.PolicyStore
	watches  domain.WatchEvaluator
	threat   *ThreatTracker
	resolver *ActionResolver
	journal  domain.Journal
	metrics  domain.MetricsRecorder
	logger   *zap.Logger

	run         domain.RunInfo
	queue       intentQueue
	nextID      domain.IntentID
	tick        int
	phase       Phase
	location    domain.NodeID
	knowledge   map[domain.NodeID]bool // levels whose readme has been read
	termination *domain.Termination

	reportedProbe  int
	reportedThreat int
}

// NewEngine creates an engine for a freshly loaded registry.
func NewEngine(
	config Config,
	registry domain.NodeRegistry,
	policies domain.PolicyStore,
	watches domain.WatchEvaluator,
	roller domain.Roller,
	logger *zap.Logger,
) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	threat := NewThreatTracker(config, registry, logger)
	return &Engine{
		config:    config,
		registry:  registry,
		policies:  policies,
		watches:   watches,
		threat:    threat,
		resolver:  NewActionResolver(config, registry, policies, roller, threat, watches, logger),
		logger:    logger,
		phase:     PhaseAccumulating,
		knowledge: make(map[domain.NodeID]bool),
	}, nil
}

// WithJournal records every tick of the run to j.
func (e *Engine) WithJournal(j domain.Journal, run domain.RunInfo) error {
	if err := j.BeginRun(run); err != nil {
		return fmt.Errorf("failed to journal run: %w", err)
	}
	e.journal = j
	e.run = run
	return nil
}

// WithMetrics reports outcomes and ticks to m.
func (e *Engine) WithMetrics(m domain.MetricsRecorder) {
	e.metrics = m
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase { return e.phase }

// CurrentTick returns the number of ticks resolved so far.
func (e *Engine) CurrentTick() int { return e.tick }

// Location returns the directory the player is in ("" for the root level).
func (e *Engine) Location() domain.NodeID { return e.location }

// Threat returns the current detection state.
func (e *Engine) Threat() domain.ThreatSnapshot { return e.threat.Snapshot() }

// Termination returns how the run ended, or nil while it is still running.
func (e *Engine) Termination() *domain.Termination { return e.termination }

// Queued returns the intents waiting to resolve, in submission order.
func (e *Engine) Queued() []domain.Intent { return e.queue.snapshot() }

// Pending returns the interlock responses waiting to fire.
func (e *Engine) Pending() []domain.PendingResponse { return e.watches.Pending() }

// Level returns the nodes at the player's current location.
func (e *Engine) Level() []domain.NodeRecord { return e.registry.Level(e.location) }

// Node returns a snapshot of a node.
func (e *Engine) Node(id domain.NodeID) (domain.NodeRecord, error) { return e.registry.Get(id) }

// Resolver exposes the action resolver, for inspection.
func (e *Engine) Resolver() *ActionResolver { return e.resolver }

// AvailableActions returns the actions the player may currently submit against a node.
func (e *Engine) AvailableActions(id domain.NodeID) ([]domain.Action, error) {
	rec, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return e.available(rec), nil
}

func (e *Engine) available(rec domain.NodeRecord) []domain.Action {
	known := append([]domain.Action(nil), rec.Actions...)

	has := func(t domain.ActionType) bool {
		for _, a := range known {
			if a.Type == t {
				return true
			}
		}
		return false
	}

	if rec.IsRevealed() && rec.Kind().IsExecutable() && e.knowledge[rec.Parent()] {
		for _, a := range e.policies.DefaultActions(rec.Kind()) {
			if !has(a.Type) {
				known = append(known, a)
			}
		}
	}

	if rec.ObjectiveVisible && rec.HasObjective(domain.ObjectiveDownload) && !has(domain.ActionDownload) {
		known = append(known, e.downloadAction(rec.Kind()))
	}

	result := make([]domain.Action, 0, len(known))
	for _, a := range known {
		if e.resolver.Check(rec, a) == nil {
			result = append(result, a)
		}
	}
	return result
}

func (e *Engine) downloadAction(t domain.NodeType) domain.Action {
	for _, a := range e.policies.DefaultActions(t) {
		if a.Type == domain.ActionDownload {
			return a
		}
	}
	return domain.Action{Type: domain.ActionDownload, BaseCost: 2, BaseRate: 1}
}

func (e *Engine) lookup(rec domain.NodeRecord, t domain.ActionType) (domain.Action, bool) {
	for _, a := range e.available(rec) {
		if a.Type == t {
			return a, true
		}
	}
	return domain.Action{}, false
}

// Submit queues an intent against a node on the current level and returns its id.
// A boost raises the intent's priority and is paid for in probe level immediately.
func (e *Engine) Submit(intent domain.Intent) (domain.IntentID, error) {
	if e.termination != nil {
		return 0, domain.ErrRunOver
	}

	rec, err := e.registry.Get(intent.Target)
	if err != nil {
		return 0, fmt.Errorf("failed to submit %s: %w", intent.Action, err)
	}
	if rec.Parent() != e.location {
		return 0, fmt.Errorf("%w: %s is not on the current level", domain.ErrInvalidTarget, intent.Target)
	}
	if intent.Boost < 0 {
		return 0, fmt.Errorf("%w: negative boost", domain.ErrInvalidTarget)
	}
	if _, ok := e.lookup(rec, intent.Action); !ok {
		return 0, fmt.Errorf("%w: %s is not available on %s", domain.ErrInvalidTarget, intent.Action, intent.Target)
	}

	e.nextID++
	intent.ID = e.nextID
	e.queue.push(intent)
	probe := e.threat.OnBoost(intent.Boost)

	e.logger.Debug("intent queued",
		zap.Uint64("intent", uint64(intent.ID)),
		zap.String("action", string(intent.Action)),
		zap.String("node", string(intent.Target)),
		zap.Int("boost", intent.Boost),
		zap.Int("probe", probe))
	return intent.ID, nil
}

// Withdraw removes a queued intent before it resolves.
func (e *Engine) Withdraw(id domain.IntentID) error {
	if !e.queue.remove(id) {
		return fmt.Errorf("%w: %d", domain.ErrUnknownIntent, id)
	}
	e.resolver.Forget(id)
	return nil
}

// Enter traverses a passable node on the current level, revealing its type.
// Entering a directory moves the player into it; reading a readme explains
// every executable on its level.
func (e *Engine) Enter(id domain.NodeID) (domain.NodeRecord, error) {
	if e.termination != nil {
		return domain.NodeRecord{}, domain.ErrRunOver
	}

	rec, err := e.registry.Get(id)
	if err != nil {
		return rec, err
	}
	if rec.Parent() != e.location {
		return rec, fmt.Errorf("%w: %s is not on the current level", domain.ErrInvalidTarget, id)
	}
	if !rec.Passable() {
		return rec, fmt.Errorf("%w: %s blocks the way", domain.ErrInvalidTarget, id)
	}

	if _, err := e.registry.RevealType(id, rec.Kind()); err != nil {
		return rec, err
	}

	switch rec.Kind() {
	case domain.TypeDirectory:
		e.location = id
		e.logger.Debug("entered directory", zap.String("node", string(id)))
	case domain.TypeReadme:
		e.knowledge[rec.Parent()] = true
		e.logger.Debug("readme read", zap.String("node", string(id)), zap.String("level", string(rec.Parent())))
	}
	return e.registry.Get(id)
}

// Back moves the player up to the parent directory.
func (e *Engine) Back() error {
	if e.termination != nil {
		return domain.ErrRunOver
	}
	if e.location == "" {
		return fmt.Errorf("%w: already at the root level", domain.ErrInvalidTarget)
	}
	rec, err := e.registry.Get(e.location)
	if err != nil {
		return err
	}
	e.location = rec.Parent()
	return nil
}

// Tick resolves one tick: timers and due interlock responses, queued intents by
// priority, then daemon watches, counter-measures, the alarm and objectives.
func (e *Engine) Tick(ctx context.Context) (domain.TickReport, error) {
	if e.termination != nil {
		return domain.TickReport{}, domain.ErrRunOver
	}
	if err := ctx.Err(); err != nil {
		return domain.TickReport{}, err
	}

	e.tick++
	e.advanceTimers()
	e.watches.Fire(e.tick)

	e.phase = PhaseResolving
	outcomes := e.resolve()

	e.phase = PhaseSettling
	e.watches.Evaluate(e.tick, e.resolver.LastTouched())
	_, triggered := e.threat.Settle(e.tick)
	switch {
	case triggered:
		e.terminate(domain.ReasonAlarmTriggered)
	case e.objectivesComplete():
		e.terminate(domain.ReasonObjectiveComplete)
	case e.config.MaxTicks > 0 && e.tick >= e.config.MaxTicks:
		e.terminate(domain.ReasonTimeExhausted)
	}

	report := e.report(outcomes)
	e.record(report)
	e.phase = PhaseAccumulating
	return report, nil
}

// advanceTimers counts down stopped and jammed nodes. A node whose timer has
// run out comes back at the start of the following tick.
func (e *Engine) advanceTimers() {
	for _, rec := range e.registry.All() {
		if rec.State != domain.StateRestarting && rec.State != domain.StateJammed {
			continue
		}
		id := rec.ID()
		if rec.Timer > 0 {
			if err := e.registry.Update(id, func(rt *domain.NodeRuntime) { rt.Timer-- }); err != nil {
				e.logger.Warn("failed to advance timer", zap.String("node", string(id)), zap.Error(err))
			}
			continue
		}
		if err := e.registry.SetState(id, domain.StateActive); err != nil {
			e.logger.Warn("failed to restore node", zap.String("node", string(id)), zap.Error(err))
		}
	}
}

func (e *Engine) resolve() []domain.Outcome {
	budget := NewBudget(e.config.TickBudget)
	priority := func(i domain.Intent) int {
		rec, err := e.registry.Get(i.Target)
		if err != nil {
			return i.Boost
		}
		return rec.Priority() + i.Boost
	}

	var outcomes []domain.Outcome
	for _, intent := range e.queue.ordered(priority) {
		out, err := e.resolveOne(intent, budget)
		if err != nil {
			out.Status = domain.StatusRejected
			out.Error = err.Error()
			e.logger.Info("intent rejected",
				zap.Uint64("intent", uint64(intent.ID)),
				zap.String("node", string(intent.Target)),
				zap.Error(err))
		}
		if out.Status != domain.StatusDeferred {
			e.queue.remove(intent.ID)
			e.resolver.Forget(intent.ID)
		}
		if e.metrics != nil {
			e.metrics.ObserveOutcome(out)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (e *Engine) resolveOne(intent domain.Intent, budget *Budget) (domain.Outcome, error) {
	rec, err := e.registry.Get(intent.Target)
	if err != nil {
		return domain.Outcome{Intent: intent.ID, Node: intent.Target, Action: intent.Action}, err
	}
	action, ok := e.lookup(rec, intent.Action)
	if !ok {
		out := domain.Outcome{Intent: intent.ID, Node: intent.Target, Action: intent.Action, NewState: rec.State}
		return out, fmt.Errorf("%w: %s no longer applies to %s", domain.ErrInvalidTarget, intent.Action, intent.Target)
	}
	return e.resolver.Resolve(intent, action, budget)
}

// objectivesComplete reports whether every primary objective is done, or every
// objective when none is primary. Runs without objectives never complete.
func (e *Engine) objectivesComplete() bool {
	var all, primary []domain.NodeRecord
	for _, rec := range e.registry.All() {
		o := rec.Def.Base().Objective
		if o == nil {
			continue
		}
		all = append(all, rec)
		if o.Primary {
			primary = append(primary, rec)
		}
	}

	required := primary
	if len(required) == 0 {
		required = all
	}
	if len(required) == 0 {
		return false
	}
	for _, rec := range required {
		if !rec.ObjectiveComplete {
			return false
		}
	}
	return true
}

func (e *Engine) terminate(reason domain.TerminationReason) {
	e.termination = &domain.Termination{Reason: reason, Tick: e.tick}
	e.queue = intentQueue{}
	e.logger.Info("run ended",
		zap.String("reason", string(reason)),
		zap.Int("tick", e.tick))
}

func (e *Engine) report(outcomes []domain.Outcome) domain.TickReport {
	snap := e.threat.Snapshot()
	report := domain.TickReport{
		Tick:           e.tick,
		Outcomes:       outcomes,
		Changes:        e.registry.DrainChanges(),
		ProbeDelta:     snap.ProbeLevel - e.reportedProbe,
		ThreatDelta:    snap.ThreatLevel - e.reportedThreat,
		ProbeLevel:     snap.ProbeLevel,
		ThreatLevel:    snap.ThreatLevel,
		AlarmCountdown: snap.AlarmCountdown,
		Pending:        e.watches.Pending(),
		Termination:    e.termination,
	}
	e.reportedProbe = snap.ProbeLevel
	e.reportedThreat = snap.ThreatLevel
	return report
}

func (e *Engine) record(report domain.TickReport) {
	if e.metrics != nil {
		e.metrics.ObserveTick(report)
	}
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordTick(e.run.ID, report); err != nil {
		e.logger.Warn("failed to journal tick", zap.Int("tick", report.Tick), zap.Error(err))
	}
	if report.Termination != nil {
		if err := e.journal.EndRun(e.run.ID, *report.Termination); err != nil {
			e.logger.Warn("failed to journal run end", zap.Error(err))
		}
	}
}

// Intervention waits out the grace period after an alarm and reports ErrAlarmTriggered.
// It returns nil at once if the run did not end by alarm.
func (e *Engine) Intervention(ctx context.Context) error {
	if e.termination == nil || e.termination.Reason != domain.ReasonAlarmTriggered {
		return nil
	}

	timer := time.NewTimer(e.config.GracePeriod)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		e.logger.Warn("human intervention", zap.Duration("grace_period", e.config.GracePeriod))
		return domain.ErrAlarmTriggered
	}
}
