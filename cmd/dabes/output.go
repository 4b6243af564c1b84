package main

import (
	"fmt"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
	"github.com/Misaka-0x447f/project-DaBES/internal/usecase"
)

func printReport(r domain.TickReport) {
	fmt.Printf("\n[tick %d] probe %d (%+d)  threat %d (%+d)", r.Tick, r.ProbeLevel, r.ProbeDelta, r.ThreatLevel, r.ThreatDelta)
	if r.AlarmCountdown != nil {
		fmt.Printf("  ALARM in %d", *r.AlarmCountdown)
	}
	fmt.Println()

	for _, o := range r.Outcomes {
		switch o.Status {
		case domain.StatusExecuted:
			result := "failed"
			if o.Success {
				result = "ok"
			}
			fmt.Printf("  #%-3d %-26s %-12s %-6s roll %.2f/%.2f  cost %.2f  -> %s\n",
				o.Intent, o.Action, o.Node, result, o.Roll, o.Probability, o.Cost, o.NewState)
		case domain.StatusDeferred:
			fmt.Printf("  #%-3d %-26s %-12s deferred (paid %.2f)\n", o.Intent, o.Action, o.Node, o.Cost)
		default:
			fmt.Printf("  #%-3d %-26s %-12s rejected: %s\n", o.Intent, o.Action, o.Node, o.Error)
		}
	}
	for _, c := range r.Changes {
		fmt.Printf("  %s: %s -> %s\n", c.Node, c.From, c.To)
	}
	for _, p := range r.Pending {
		fmt.Printf("  %s will restart %s at tick %d (%s)\n", p.Daemon, p.Target, p.DueTick, p.Trigger)
	}
	if r.Termination != nil {
		fmt.Printf("  run ended: %s\n", r.Termination.Reason)
	}
}

func printRejections(rejected []usecase.Rejection) {
	if len(rejected) == 0 {
		return
	}
	fmt.Println("\nRejected commands:")
	for _, r := range rejected {
		fmt.Printf("  turn %d: %s: %s\n", r.Turn, r.Command, r.Error)
	}
}

func printResult(result usecase.RunResult) {
	fmt.Println("\n=====================")
	if result.Termination == nil {
		fmt.Printf("Status: UNFINISHED after %d ticks\n", len(result.Reports))
	} else {
		fmt.Printf("Status: %s at tick %d\n", result.Termination.Reason, result.Termination.Tick)
	}
	fmt.Printf("Probe level: %d\n", result.Threat.ProbeLevel)
	fmt.Printf("Threat level: %d\n", result.Threat.ThreatLevel)
	if result.Threat.Marked {
		fmt.Println("Marked by a counter-measure")
	}
	fmt.Println("=====================")
}

func printSummary(level string, seed int64, s usecase.BatchSummary) {
	fmt.Printf("\n=== %s: %d runs (seeds %d..%d) ===\n", level, s.Runs, seed, seed+int64(s.Runs)-1)
	for _, reason := range s.SortedReasons() {
		n := s.Reasons[reason]
		fmt.Printf("  %-20s %5d  (%.1f%%)\n", reason, n, percent(n, s.Runs))
	}
	if s.Unfinished > 0 {
		fmt.Printf("  %-20s %5d  (%.1f%%)\n", "unfinished", s.Unfinished, percent(s.Unfinished, s.Runs))
	}
	fmt.Printf("\nSuccess ratio: %.3f\n", s.SuccessRatio)
	fmt.Printf("Mean ticks: %.2f\n", s.MeanTicks)
	fmt.Printf("Mean probe: %.2f\n", s.MeanProbe)
	fmt.Printf("Mean threat: %.2f\n", s.MeanThreat)
	fmt.Println("=====================")
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}
