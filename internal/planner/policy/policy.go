// Package policy picks the admissible move whose destination cell has the
// highest utility.
package policy

import (
	"errors"
	"fmt"

	"mazeplan.ai/internal/planner/grid"
)

var (
	ErrNoAdmissibleActions = errors.New("no admissible actions")
	ErrInvalidAction       = errors.New("action is not a move")
)

// Utilities is satisfied by engine.Field.
type Utilities interface {
	At(p grid.Position) (float64, bool)
}

// LookupError means an admissible move leads to a cell the field has no value
// for. The environment and the grid disagree about walls.
type LookupError struct {
	From   grid.Position
	Action grid.Direction
	Target grid.Position
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no utility for %v from %v via %v", e.Target, e.From, e.Action)
}

// Extract compares the utilities of the cells each admissible move would reach.
// Ties go to the earliest action in admissible order.
func Extract(u Utilities, from grid.Position, admissible []grid.Direction) (grid.Direction, error) {
	if len(admissible) == 0 {
		return grid.Stop, ErrNoAdmissibleActions
	}
	best := grid.Stop
	var bestV float64
	for i, a := range admissible {
		if !a.IsMove() {
			return grid.Stop, fmt.Errorf("%w: %v", ErrInvalidAction, a)
		}
		target := from.Add(a)
		v, ok := u.At(target)
		if !ok {
			return grid.Stop, &LookupError{From: from, Action: a, Target: target}
		}
		if i == 0 || v > bestV {
			best, bestV = a, v
		}
	}
	return best, nil
}

// Moves drops Stop and anything unparseable from an environment's legal set,
// preserving order.
func Moves(legal []grid.Direction) []grid.Direction {
	out := make([]grid.Direction, 0, len(legal))
	for _, a := range legal {
		if a.IsMove() {
			out = append(out, a)
		}
	}
	return out
}
