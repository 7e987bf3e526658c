package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"mazeplan.ai/internal/planner/engine"
	"mazeplan.ai/internal/planner/reward"
)

type Planner struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	GoalReward         float64 `yaml:"goal_reward" json:"goal_reward"`
	EmptyCost          float64 `yaml:"empty_cost" json:"empty_cost"`
	LethalHazardCost   float64 `yaml:"lethal_hazard_cost" json:"lethal_hazard_cost"`
	HarmlessHazardCost float64 `yaml:"harmless_hazard_cost" json:"harmless_hazard_cost"`

	Gamma              float64 `yaml:"gamma" json:"gamma"`
	MaxIterations      int     `yaml:"max_iterations" json:"max_iterations"`
	IntendedProb       float64 `yaml:"intended_prob" json:"intended_prob"`
	SideProb           float64 `yaml:"side_prob" json:"side_prob"`
	InitialOpenUtility float64 `yaml:"initial_open_utility" json:"initial_open_utility"`

	Avoidance Avoidance `yaml:"avoidance" json:"avoidance"`

	// FallbackFirstLegal answers a failed utility lookup with the first legal
	// move instead of an error.
	FallbackFirstLegal bool `yaml:"fallback_first_legal" json:"fallback_first_legal"`
}

type Avoidance struct {
	SmallGridMaxDim int     `yaml:"small_grid_max_dim" json:"small_grid_max_dim"`
	SmallRadiusSq   float64 `yaml:"small_radius_sq" json:"small_radius_sq"`
	LargeRadiusSq   float64 `yaml:"large_radius_sq" json:"large_radius_sq"`
}

func Defaults() Planner {
	ec := engine.DefaultConfig()
	av := reward.DefaultAvoidance()
	return Planner{
		ProtocolVersion:    "1.0",
		GoalReward:         1.5,
		EmptyCost:          ec.EmptyCost,
		LethalHazardCost:   -10,
		HarmlessHazardCost: 0,
		Gamma:              ec.Gamma,
		MaxIterations:      ec.MaxIterations,
		IntendedProb:       ec.IntendedProb,
		SideProb:           ec.SideProb,
		InitialOpenUtility: 0,
		Avoidance: Avoidance{
			SmallGridMaxDim: av.SmallGridMaxDim,
			SmallRadiusSq:   av.SmallRadiusSq,
			LargeRadiusSq:   av.LargeRadiusSq,
		},
	}
}

// Load overlays the file on Defaults, so omitted keys keep their default.
func Load(path string) (Planner, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("planner.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("planner.yaml: %w", err)
	}
	return t, nil
}

func (t Planner) Validate() error {
	var errs []error
	if !(t.Gamma > 0 && t.Gamma < 1) {
		errs = append(errs, fmt.Errorf("gamma %v outside (0,1)", t.Gamma))
	}
	if t.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("max_iterations %d < 1", t.MaxIterations))
	}
	if t.IntendedProb < 0 || t.IntendedProb > 1 {
		errs = append(errs, fmt.Errorf("intended_prob %v outside [0,1]", t.IntendedProb))
	}
	if t.SideProb < 0 || t.SideProb > 1 {
		errs = append(errs, fmt.Errorf("side_prob %v outside [0,1]", t.SideProb))
	}
	if math.Abs(t.IntendedProb+2*t.SideProb-1) > 1e-9 {
		errs = append(errs, fmt.Errorf("intended_prob + 2*side_prob = %v, want 1", t.IntendedProb+2*t.SideProb))
	}
	if t.Avoidance.SmallRadiusSq < 0 || t.Avoidance.LargeRadiusSq < 0 {
		errs = append(errs, errors.New("avoidance radii must be non-negative"))
	}
	return errors.Join(errs...)
}

func (t Planner) Engine() engine.Config {
	return engine.Config{
		Gamma:         t.Gamma,
		MaxIterations: t.MaxIterations,
		EmptyCost:     t.EmptyCost,
		IntendedProb:  t.IntendedProb,
		SideProb:      t.SideProb,
	}
}

func (t Planner) Reward() reward.Model {
	return reward.Model{
		Constants: reward.Constants{
			GoalReward:         t.GoalReward,
			EmptyCost:          t.EmptyCost,
			LethalHazardCost:   t.LethalHazardCost,
			HarmlessHazardCost: t.HarmlessHazardCost,
		},
		Avoidance: reward.Avoidance{
			SmallGridMaxDim: t.Avoidance.SmallGridMaxDim,
			SmallRadiusSq:   t.Avoidance.SmallRadiusSq,
			LargeRadiusSq:   t.Avoidance.LargeRadiusSq,
		},
	}
}

// Digest is the sha256 of the canonical JSON encoding; replays compare it to
// make sure they run with the recorded constants.
func (t Planner) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
