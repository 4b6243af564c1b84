package usecase

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// BackMove in a turn's moves leaves the current directory.
const BackMove = ".."

// PlanStep is one intent submitted by a plan.
type PlanStep struct {
	Action domain.ActionType `yaml:"action" validate:"required"`
	Target domain.NodeID     `yaml:"target" validate:"required"`
	Boost  int               `yaml:"boost" validate:"gte=0"`
}

// Turn is what the player does before one tick: moves, then submissions, then withdrawals.
type Turn struct {
	Moves    []string   `yaml:"moves"`
	Actions  []PlanStep `yaml:"actions" validate:"dive"`
	Withdraw []int      `yaml:"withdraw" validate:"dive,gt=0"` // 1-based submission numbers within the plan
}

// Plan is a scripted run.
type Plan struct {
	Name      string `yaml:"name"`
	Turns     []Turn `yaml:"turns" validate:"dive"`
	WaitToEnd bool   `yaml:"wait_to_end"` // keep ticking idle until the run ends (needs MaxTicks)
}

// ParsePlan decodes and validates a YAML plan.
func ParsePlan(data []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := configValidate.Struct(p); err != nil {
		return p, fmt.Errorf("invalid plan: %w", err)
	}
	for _, turn := range p.Turns {
		for _, step := range turn.Actions {
			if !step.Action.Valid() {
				return p, fmt.Errorf("invalid plan: unknown action %q", step.Action)
			}
		}
	}
	return p, nil
}

// LoadPlan reads a YAML plan file.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read plan: %w", err)
	}
	return ParsePlan(data)
}

// Rejection is a plan command the engine refused.
type Rejection struct {
	Turn    int    `json:"turn"`
	Command string `json:"command"`
	Error   string `json:"error"`
}

// RunResult is everything a scripted run produced.
type RunResult struct {
	Reports     []domain.TickReport   `json:"reports"`
	Rejected    []Rejection           `json:"rejected,omitempty"`
	Termination *domain.Termination   `json:"termination,omitempty"`
	Threat      domain.ThreatSnapshot `json:"threat"`
}

// Run plays a plan: each turn's commands, then one tick. Once the turns run out
// it keeps ticking while intents are still queued, or until the end with WaitToEnd.
func (e *Engine) Run(ctx context.Context, plan Plan) (RunResult, error) {
	var (
		result    RunResult
		submitted []domain.IntentID
	)

	reject := func(turn int, command string, err error) {
		result.Rejected = append(result.Rejected, Rejection{Turn: turn, Command: command, Error: err.Error()})
		e.logger.Warn("plan command rejected",
			zap.Int("turn", turn),
			zap.String("command", command),
			zap.Error(err))
	}

	tick := func() error {
		report, err := e.Tick(ctx)
		if err != nil {
			return err
		}
		result.Reports = append(result.Reports, report)
		return nil
	}

	for n, turn := range plan.Turns {
		if e.termination != nil {
			break
		}
		turnNo := n + 1

		for _, move := range turn.Moves {
			var err error
			if move == BackMove {
				err = e.Back()
			} else {
				_, err = e.Enter(domain.NodeID(move))
			}
			if err != nil {
				reject(turnNo, "move "+move, err)
			}
		}

		for _, step := range turn.Actions {
			id, err := e.Submit(domain.Intent{Action: step.Action, Target: step.Target, Boost: step.Boost})
			submitted = append(submitted, id)
			if err != nil {
				reject(turnNo, fmt.Sprintf("%s %s", step.Action, step.Target), err)
			}
		}

		for _, num := range turn.Withdraw {
			command := fmt.Sprintf("withdraw %d", num)
			if num > len(submitted) || submitted[num-1] == 0 {
				reject(turnNo, command, fmt.Errorf("%w: submission %d", domain.ErrUnknownIntent, num))
				continue
			}
			if err := e.Withdraw(submitted[num-1]); err != nil {
				reject(turnNo, command, err)
			}
		}

		if err := tick(); err != nil {
			return result, err
		}
	}

	for e.termination == nil && (e.queue.len() > 0 || (plan.WaitToEnd && e.config.MaxTicks > 0)) {
		if err := tick(); err != nil {
			return result, err
		}
	}

	result.Termination = e.termination
	result.Threat = e.threat.Snapshot()
	return result, nil
}
