// Package engine runs synchronous value iteration over a grid.Map under a
// slip-prone four-direction movement model.
package engine

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/reward"
)

var (
	ErrNotInField      = errors.New("position has no utility")
	ErrInvalidAction   = errors.New("not a movement action")
	ErrOverlayMismatch = errors.New("reward overlay does not match grid")
)

type Config struct {
	Gamma         float64
	MaxIterations int
	EmptyCost     float64

	// IntendedProb is the chance of moving as intended; each perpendicular
	// direction receives SideProb.
	IntendedProb float64
	SideProb     float64
}

func DefaultConfig() Config {
	return Config{
		Gamma:         0.925,
		MaxIterations: 30,
		EmptyCost:     -0.2,
		IntendedProb:  0.8,
		SideProb:      0.1,
	}
}

type Result struct {
	Iterations int
	// Converged is false when the iteration cap ended the run first. The field
	// is still the latest estimate and is used as is.
	Converged bool
	// MaxDelta is the largest absolute change made by the final sweep.
	MaxDelta float64
}

type Engine struct {
	cfg   Config
	grid  *grid.Map
	cells []grid.Position
	field *Field
}

func New(g *grid.Map, cfg Config) *Engine {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	return &Engine{
		cfg:   cfg,
		grid:  g,
		cells: g.OpenCells(),
		field: newField(g),
	}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Field() *Field { return e.field }

// Reset seeds goal cells with goalSeed and every other non-wall cell with
// openSeed, using the map's current goal tags. Only called at episode
// boundaries; decisions keep warm-starting from the previous field.
func (e *Engine) Reset(goalSeed, openSeed float64) {
	for _, p := range e.cells {
		v := openSeed
		if e.grid.Classify(p) == grid.Goal {
			v = goalSeed
		}
		e.field.set(p, v)
	}
}

// Run sweeps until one sweep leaves the field bit-identical or MaxIterations
// sweeps have run.
func (e *Engine) Run(o *reward.Overlay) (Result, error) {
	if err := e.checkOverlay(o); err != nil {
		return Result{}, err
	}
	var res Result
	for res.Iterations < e.cfg.MaxIterations {
		changed, delta := e.sweep(o)
		res.Iterations++
		res.MaxDelta = delta
		if !changed {
			res.Converged = true
			break
		}
	}
	return res, nil
}

// Sweep applies exactly one synchronous Bellman update and reports whether the
// field changed.
func (e *Engine) Sweep(o *reward.Overlay) (bool, error) {
	if err := e.checkOverlay(o); err != nil {
		return false, err
	}
	changed, _ := e.sweep(o)
	return changed, nil
}

func (e *Engine) checkOverlay(o *reward.Overlay) error {
	if o == nil {
		return fmt.Errorf("%w: nil", ErrOverlayMismatch)
	}
	ow, oh := o.Dimensions()
	if ow != e.field.width || oh != e.field.height {
		return fmt.Errorf("%w: overlay %dx%d, grid %dx%d", ErrOverlayMismatch, ow, oh, e.field.width, e.field.height)
	}
	return nil
}

func (e *Engine) sweep(o *reward.Overlay) (bool, float64) {
	f := e.field
	var delta float64
	for _, p := range e.cells {
		var v float64
		entry, _ := o.At(p)
		if entry.Fixed() {
			v = entry.Value
		} else {
			v = e.cfg.EmptyCost + float64(e.cfg.Gamma*e.bestExpected(p))
		}
		f.next.Set(p.Y, p.X, v)
		if d := math.Abs(v - f.cur.At(p.Y, p.X)); d > delta {
			delta = d
		}
	}
	changed := !mat.Equal(f.cur, f.next)
	f.swap()
	return changed, delta
}

func (e *Engine) bestExpected(p grid.Position) float64 {
	best := math.Inf(-1)
	for _, a := range grid.Cardinal {
		if ev := e.expected(p, a); ev > best {
			best = ev
		}
	}
	return best
}

// expected reads the current (previous-sweep) field only. The explicit
// conversions keep the compiler from fusing multiply-adds, so every platform
// produces the same bits.
func (e *Engine) expected(p grid.Position, a grid.Direction) float64 {
	side1, side2 := a.Perpendicular()
	return float64(e.cfg.IntendedProb*e.outcome(p, a)) + float64(e.cfg.SideProb*(e.outcome(p, side1)+e.outcome(p, side2)))
}

// outcome is the utility of landing after a move in d; blocked moves bounce
// back to p.
func (e *Engine) outcome(p grid.Position, d grid.Direction) float64 {
	n, ok := e.grid.Neighbor(p, d)
	if !ok {
		n = p
	}
	return e.field.cur.At(n.Y, n.X)
}

// ExpectedUtility is EV(a) for the cell p on the current field.
func (e *Engine) ExpectedUtility(p grid.Position, a grid.Direction) (float64, error) {
	if !a.IsMove() {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAction, a)
	}
	if !e.field.defined(p) {
		return 0, fmt.Errorf("%w: %v", ErrNotInField, p)
	}
	return e.expected(p, a), nil
}
