// Package grid holds the static layout an episode is planned over: wall
// positions fixed at episode start, plus the goal cells re-tagged every step as
// reward items are consumed.
package grid

import (
	"errors"
	"fmt"
)

// MaxDimension is the largest accepted width or height.
const MaxDimension = 512

var (
	ErrBadDimensions = errors.New("grid dimensions must be in [1, MaxDimension]")
	ErrOutOfBounds   = errors.New("position out of bounds")
	ErrOnWall        = errors.New("position is a wall")
)

type CellKind uint8

const (
	Wall CellKind = iota
	Open
	Goal
)

func (k CellKind) String() string {
	switch k {
	case Wall:
		return "Wall"
	case Open:
		return "Open"
	case Goal:
		return "Goal"
	}
	return fmt.Sprintf("CellKind(%d)", uint8(k))
}

type Map struct {
	width  int
	height int
	walls  []bool
	goals  []bool
	open   int
}

// New builds the map once per episode from the raw wall coordinates.
func New(width, height int, walls []Position) (*Map, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	m := &Map{
		width:  width,
		height: height,
		walls:  make([]bool, width*height),
		goals:  make([]bool, width*height),
	}
	for _, w := range walls {
		if !m.InBounds(w) {
			return nil, fmt.Errorf("wall %v: %w", w, ErrOutOfBounds)
		}
		m.walls[m.index(w)] = true
	}
	for _, isWall := range m.walls {
		if !isWall {
			m.open++
		}
	}
	return m, nil
}

// Bounds derives the grid size from the corner coordinates reported by the
// environment (indices, so one is added).
func Bounds(corners []Position) (width, height int) {
	width, height = -1, -1
	for _, c := range corners {
		if c.X > width {
			width = c.X
		}
		if c.Y > height {
			height = c.Y
		}
	}
	return width + 1, height + 1
}

func (m *Map) Dimensions() (width, height int) { return m.width, m.height }

func (m *Map) InBounds(p Position) bool {
	return p.X >= 0 && p.X < m.width && p.Y >= 0 && p.Y < m.height
}

func (m *Map) index(p Position) int { return p.Y*m.width + p.X }

func (m *Map) IsWall(p Position) bool {
	if !m.InBounds(p) {
		return true
	}
	return m.walls[m.index(p)]
}

func (m *Map) Classify(p Position) CellKind {
	if m.IsWall(p) {
		return Wall
	}
	if m.goals[m.index(p)] {
		return Goal
	}
	return Open
}

// SetGoals replaces the goal tagging with the current reward item positions.
func (m *Map) SetGoals(goals []Position) error {
	for _, g := range goals {
		if !m.InBounds(g) {
			return fmt.Errorf("goal %v: %w", g, ErrOutOfBounds)
		}
		if m.walls[m.index(g)] {
			return fmt.Errorf("goal %v: %w", g, ErrOnWall)
		}
	}
	clear(m.goals)
	for _, g := range goals {
		m.goals[m.index(g)] = true
	}
	return nil
}

// Goals lists the tagged goal cells row-major from y=0.
func (m *Map) Goals() []Position {
	var out []Position
	for i, isGoal := range m.goals {
		if isGoal {
			out = append(out, Position{X: i % m.width, Y: i / m.width})
		}
	}
	return out
}

// Neighbor reports the cell one step away, or false when that step would hit a
// wall or leave the grid.
func (m *Map) Neighbor(p Position, d Direction) (Position, bool) {
	if !d.IsMove() {
		return p, false
	}
	n := p.Add(d)
	if m.IsWall(n) {
		return p, false
	}
	return n, true
}

func (m *Map) OpenCount() int { return m.open }

func (m *Map) OpenCells() []Position {
	out := make([]Position, 0, m.open)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if !m.walls[y*m.width+x] {
				out = append(out, Position{X: x, Y: y})
			}
		}
	}
	return out
}

func (m *Map) Walls() []Position {
	var out []Position
	for i, isWall := range m.walls {
		if isWall {
			out = append(out, Position{X: i % m.width, Y: i / m.width})
		}
	}
	return out
}
