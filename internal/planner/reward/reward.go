// Package reward builds the per-step reward overlay: which cells carry a fixed
// value this step (hazards, unthreatened goals) and which take the Bellman
// value computed from the previous sweep.
package reward

import (
	"math"

	"mazeplan.ai/internal/planner/grid"
)

type Hazard struct {
	Pos    grid.Position `json:"pos"`
	Lethal bool          `json:"lethal"`
}

type Constants struct {
	GoalReward         float64
	EmptyCost          float64
	LethalHazardCost   float64
	HarmlessHazardCost float64
}

// Avoidance sizes the goal-suppression radius (squared distance) by grid size.
type Avoidance struct {
	SmallGridMaxDim int
	SmallRadiusSq   float64
	LargeRadiusSq   float64
}

func DefaultAvoidance() Avoidance {
	return Avoidance{SmallGridMaxDim: 7, SmallRadiusSq: 2.5, LargeRadiusSq: 5.5}
}

// Threshold is SmallRadiusSq when either dimension is at most SmallGridMaxDim.
func (a Avoidance) Threshold(width, height int) float64 {
	if width <= a.SmallGridMaxDim || height <= a.SmallGridMaxDim {
		return a.SmallRadiusSq
	}
	return a.LargeRadiusSq
}

// AvoidThreshold applies the default avoidance policy.
func AvoidThreshold(width, height int) float64 {
	return DefaultAvoidance().Threshold(width, height)
}

type Kind uint8

const (
	// KindBellman cells take EmptyCost + gamma * max EV from the previous field.
	KindBellman Kind = iota
	KindGoal
	KindHazard
)

func (k Kind) String() string {
	switch k {
	case KindBellman:
		return "bellman"
	case KindGoal:
		return "goal"
	case KindHazard:
		return "hazard"
	}
	return "unknown"
}

type Entry struct {
	Kind  Kind
	Value float64
}

// Fixed reports whether the cell ignores the Bellman update this step.
func (e Entry) Fixed() bool { return e.Kind != KindBellman }

type Model struct {
	Constants Constants
	Avoidance Avoidance
}

// Overlay is rebuilt every decision step and never mutated afterwards.
type Overlay struct {
	width, height int
	entries       []Entry
	walls         []bool
	suppressed    int
}

func (m Model) Build(g *grid.Map, hazards []Hazard) *Overlay {
	w, h := g.Dimensions()
	o := &Overlay{
		width:   w,
		height:  h,
		entries: make([]Entry, w*h),
		walls:   make([]bool, w*h),
	}

	// Occupied cells map to true when any hazard standing there is lethal.
	occupied := make(map[grid.Position]bool, len(hazards))
	for _, hz := range hazards {
		if !g.InBounds(hz.Pos) || g.IsWall(hz.Pos) {
			continue
		}
		occupied[hz.Pos] = occupied[hz.Pos] || hz.Lethal
	}

	threshold := m.Avoidance.Threshold(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := grid.Position{X: x, Y: y}
			i := y*w + x
			kind := g.Classify(p)
			if kind == grid.Wall {
				o.walls[i] = true
				continue
			}
			if lethal, ok := occupied[p]; ok {
				v := m.Constants.HarmlessHazardCost
				if lethal {
					v = m.Constants.LethalHazardCost
				}
				o.entries[i] = Entry{Kind: KindHazard, Value: v}
				continue
			}
			if kind == grid.Goal {
				if nearestLethalSq(p, hazards) <= threshold {
					o.suppressed++
					continue
				}
				o.entries[i] = Entry{Kind: KindGoal, Value: m.Constants.GoalReward}
			}
		}
	}
	return o
}

func nearestLethalSq(p grid.Position, hazards []Hazard) float64 {
	best := math.Inf(1)
	for _, hz := range hazards {
		if !hz.Lethal {
			continue
		}
		if d := grid.DistSq(p, hz.Pos); d < best {
			best = d
		}
	}
	return best
}

// At returns the entry for a non-wall cell.
func (o *Overlay) At(p grid.Position) (Entry, bool) {
	if p.X < 0 || p.X >= o.width || p.Y < 0 || p.Y >= o.height {
		return Entry{}, false
	}
	i := p.Y*o.width + p.X
	if o.walls[i] {
		return Entry{}, false
	}
	return o.entries[i], true
}

func (o *Overlay) Dimensions() (width, height int) { return o.width, o.height }

// SuppressedGoals counts goal cells handed to the Bellman update because a
// lethal hazard is close.
func (o *Overlay) SuppressedGoals() int { return o.suppressed }
