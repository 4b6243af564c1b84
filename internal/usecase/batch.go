package usecase

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// EngineFactory builds an independent engine for run number i.
type EngineFactory func(i int) (*Engine, error)

// BatchSummary aggregates the outcome of many runs of one plan.
type BatchSummary struct {
	Runs         int                              `json:"runs"`
	Reasons      map[domain.TerminationReason]int `json:"reasons"`
	Unfinished   int                              `json:"unfinished"`
	MeanTicks    float64                          `json:"mean_ticks"`
	MeanProbe    float64                          `json:"mean_probe"`
	MeanThreat   float64                          `json:"mean_threat"`
	SuccessRatio float64                          `json:"success_ratio"`
}

// RunBatch plays plan on n independent engines, at most workers at a time.
// Results are returned in run order.
func RunBatch(ctx context.Context, n, workers int, factory EngineFactory, plan Plan, logger *zap.Logger) ([]RunResult, error) {
	if n <= 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]RunResult, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			engine, err := factory(i)
			if err != nil {
				return fmt.Errorf("failed to build run %d: %w", i, err)
			}
			res, err := engine.Run(ctx, plan)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			logger.Debug("batch run finished", zap.Int("run", i), zap.Int("ticks", len(res.Reports)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Summarize aggregates batch results.
func Summarize(results []RunResult) BatchSummary {
	s := BatchSummary{
		Runs:    len(results),
		Reasons: make(map[domain.TerminationReason]int),
	}
	if len(results) == 0 {
		return s
	}

	var ticks, probe, threat int
	for _, r := range results {
		ticks += len(r.Reports)
		probe += r.Threat.ProbeLevel
		threat += r.Threat.ThreatLevel
		if r.Termination == nil {
			s.Unfinished++
			continue
		}
		s.Reasons[r.Termination.Reason]++
	}

	runs := float64(len(results))
	s.MeanTicks = float64(ticks) / runs
	s.MeanProbe = float64(probe) / runs
	s.MeanThreat = float64(threat) / runs
	s.SuccessRatio = float64(s.Reasons[domain.ReasonObjectiveComplete]) / runs
	return s
}

// SortedReasons returns the reasons present in the summary in a stable order.
func (s BatchSummary) SortedReasons() []domain.TerminationReason {
	reasons := make([]domain.TerminationReason, 0, len(s.Reasons))
	for r := range s.Reasons {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(a, b int) bool { return reasons[a] < reasons[b] })
	return reasons
}
