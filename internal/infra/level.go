package infra

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// Level is a loaded level definition with its optional engine overrides.
type Level struct {
	Name       string
	Nodes      []domain.Node
	TickBudget *float64
	MaxTicks   *int
}

type levelFile struct {
	Name       string     `yaml:"name" validate:"required"`
	TickBudget *float64   `yaml:"tick_budget" validate:"omitempty,gt=0"`
	MaxTicks   *int       `yaml:"max_ticks" validate:"omitempty,gte=0"`
	Nodes      []nodeSpec `yaml:"nodes" validate:"required,min=1,dive"`
}

type nodeSpec struct {
	ID           string         `yaml:"id" validate:"required"`
	Type         string         `yaml:"type" validate:"required"`
	Parent       string         `yaml:"parent"`
	Description  string         `yaml:"description"`
	RestartTicks int            `yaml:"restart_ticks" validate:"gte=0"`
	Objective    *objectiveSpec `yaml:"objective"`
	Actions      []actionSpec   `yaml:"actions" validate:"dive"`

	// Type-gated fields.
	Priority            *int         `yaml:"priority" validate:"omitempty,gte=0"`
	Watch               *watchSpec   `yaml:"watch"`
	Restart             *restartSpec `yaml:"restart"`
	AnalysisStrength    *int         `yaml:"analysis_strength" validate:"omitempty,gte=0,lte=5"`
	VisibilityThreshold *int         `yaml:"visibility_threshold" validate:"omitempty,gte=0"`
}

type watchSpec struct {
	Node      string `yaml:"node" validate:"required"`
	Invariant string `yaml:"invariant" validate:"required,oneof=signature active"`
}

type restartSpec struct {
	Trigger   string `yaml:"trigger" validate:"omitempty,oneof=hook timer"`
	Ticks     int    `yaml:"ticks" validate:"gte=0"`
	Target    string `yaml:"target" validate:"omitempty,oneof=watched self last-touched"`
	Interlock bool   `yaml:"interlock"`
}

type objectiveSpec struct {
	Kind            string `yaml:"kind" validate:"required,oneof=download overwrite"`
	Description     string `yaml:"description"`
	RequireAnalysis bool   `yaml:"require_analysis"`
	Primary         bool   `yaml:"primary"`
}

type actionSpec struct {
	Type     string   `yaml:"type" validate:"required"`
	Cost     exprSpec `yaml:"cost"`
	Rate     exprSpec `yaml:"rate"`
	JamTurns int      `yaml:"jam_turns" validate:"gte=0"`
}

// exprSpec is a cost or success-rate formula. An empty kind means identity over base.
type exprSpec struct {
	Kind  string  `yaml:"kind" validate:"omitempty,oneof=constant identity linear geometric"`
	Base  float64 `yaml:"base"`
	Value float64 `yaml:"value"`
	Step  float64 `yaml:"step"`
	Ratio float64 `yaml:"ratio"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max" validate:"gte=0"`
}

var levelValidate = validator.New()

// LoadLevel reads and validates a YAML level file.
func LoadLevel(path string) (*Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read level: %w", err)
	}
	level, err := ParseLevel(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return level, nil
}

// ParseLevel decodes a YAML level. Graph checks (parents, watch targets, cycles)
// happen when the nodes are loaded into a NodeRegistry.
func ParseLevel(data []byte) (*Level, error) {
	var file levelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDefinition, err)
	}
	if err := levelValidate.Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDefinition, err)
	}

	level := &Level{
		Name:       file.Name,
		TickBudget: file.TickBudget,
		MaxTicks:   file.MaxTicks,
		Nodes:      make([]domain.Node, 0, len(file.Nodes)),
	}
	for _, spec := range file.Nodes {
		n, err := spec.node()
		if err != nil {
			return nil, err
		}
		level.Nodes = append(level.Nodes, n)
	}
	return level, nil
}

func (s nodeSpec) node() (domain.Node, error) {
	kind := domain.NodeType(s.Type)
	if !kind.Valid() || kind == domain.TypeNonReadable {
		return nil, fmt.Errorf("%w: node %s has unknown type %q", domain.ErrInvalidDefinition, s.ID, s.Type)
	}
	if err := s.checkGatedFields(kind); err != nil {
		return nil, err
	}

	base := domain.NodeBase{
		ID:           domain.NodeID(s.ID),
		Parent:       domain.NodeID(s.Parent),
		Description:  s.Description,
		RestartTicks: s.RestartTicks,
	}
	if o := s.Objective; o != nil {
		base.Objective = &domain.Objective{
			Kind:            domain.ObjectiveKind(o.Kind),
			Description:     o.Description,
			RequireAnalysis: o.RequireAnalysis,
			Primary:         o.Primary,
		}
	}
	for _, a := range s.Actions {
		action, err := a.action()
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", domain.ErrInvalidDefinition, s.ID, err)
		}
		base.Actions = append(base.Actions, action)
	}

	priority := 0
	if s.Priority != nil {
		priority = *s.Priority
	}

	switch kind {
	case domain.TypeDaemon:
		if s.Watch == nil {
			return nil, fmt.Errorf("%w: daemon %s has no watch", domain.ErrInvalidDefinition, s.ID)
		}
		var restart domain.RestartPolicy
		if r := s.Restart; r != nil {
			restart = domain.RestartPolicy{
				Interlock: r.Interlock,
				Trigger:   domain.RestartTrigger(r.Trigger),
				Ticks:     r.Ticks,
				Target:    domain.RestartTarget(r.Target),
			}
		}
		watch := domain.Watch{Target: domain.NodeID(s.Watch.Node), Invariant: domain.Invariant(s.Watch.Invariant)}
		return domain.NewDaemonNode(base, priority, watch, restart)

	case domain.TypeCounterMeasure:
		strength, visibility := 0, 0
		if s.AnalysisStrength != nil {
			strength = *s.AnalysisStrength
		}
		if s.VisibilityThreshold != nil {
			visibility = *s.VisibilityThreshold
		}
		return domain.NewCounterMeasureNode(base, priority, strength, visibility)

	case domain.TypeFirewall, domain.TypeUndefined:
		return domain.NewExecutableNode(base, kind, priority)
	}
	return domain.NewPassiveNode(base, kind)
}

// checkGatedFields rejects fields the node's type does not support.
func (s nodeSpec) checkGatedFields(kind domain.NodeType) error {
	reject := func(field string) error {
		return fmt.Errorf("%w: %s node %s cannot have %s", domain.ErrInvalidDefinition, kind, s.ID, field)
	}
	if s.Priority != nil && !kind.IsExecutable() {
		return reject("priority")
	}
	if kind != domain.TypeDaemon {
		if s.Watch != nil {
			return reject("watch")
		}
		if s.Restart != nil {
			return reject("restart")
		}
	}
	if kind != domain.TypeCounterMeasure {
		if s.AnalysisStrength != nil {
			return reject("analysis_strength")
		}
		if s.VisibilityThreshold != nil {
			return reject("visibility_threshold")
		}
	}
	if s.RestartTicks > 0 && !kind.IsExecutable() {
		return reject("restart_ticks")
	}
	return nil
}

func (a actionSpec) action() (domain.Action, error) {
	t := domain.ActionType(a.Type)
	if !t.Valid() {
		return domain.Action{}, fmt.Errorf("unknown action type %q", a.Type)
	}

	costBase, cost := a.Cost.expr()
	rateBase, rate := a.Rate.expr()
	if a.Rate == (exprSpec{}) {
		// A missing rate means the action always succeeds.
		rateBase, rate = 1, domain.Constant(1)
	}
	action := domain.Action{
		Type:     t,
		BaseCost: costBase,
		Cost:     cost,
		BaseRate: rateBase,
		Rate:     rate,
		JamTurns: a.JamTurns,
	}
	if err := action.Validate(); err != nil {
		return domain.Action{}, err
	}
	return action, nil
}

// expr returns the base value and formula. A constant's base is its value.
func (e exprSpec) expr() (float64, domain.Expr) {
	switch e.Kind {
	case "constant":
		return e.Value, domain.Constant(e.Value)
	case "linear":
		return e.Base, domain.Linear{Step: e.Step, Min: e.Min, Max: e.Max}
	case "geometric":
		return e.Base, domain.Geometric{Ratio: e.Ratio, Min: e.Min, Max: e.Max}
	}
	return e.Base, domain.Identity{}
}
