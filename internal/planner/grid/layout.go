package grid

import (
	"fmt"
	"strings"
)

// Layout glyphs.
const (
	GlyphWall    = '%'
	GlyphFood    = '.'
	GlyphCapsule = 'o'
	GlyphAgent   = 'P'
	GlyphHazard  = 'G'
	GlyphEmpty   = ' '
)

// Layout is a parsed ASCII level. The first text line is the top of the grid,
// i.e. the highest Y.
type Layout struct {
	Width    int
	Height   int
	Walls    []Position
	Food     []Position
	Capsules []Position
	Agent    Position
	Hazards  []Position
}

func ParseLayout(text string) (Layout, error) {
	var l Layout
	lines := strings.Split(strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n"), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return l, fmt.Errorf("layout: empty")
	}
	l.Height = len(lines)
	for _, line := range lines {
		if len(line) > l.Width {
			l.Width = len(line)
		}
	}
	agents := 0
	for row, line := range lines {
		y := l.Height - 1 - row
		for x := 0; x < l.Width; x++ {
			ch := byte(GlyphEmpty)
			if x < len(line) {
				ch = line[x]
			}
			p := Position{X: x, Y: y}
			switch ch {
			case GlyphWall:
				l.Walls = append(l.Walls, p)
			case GlyphFood:
				l.Food = append(l.Food, p)
			case GlyphCapsule:
				l.Capsules = append(l.Capsules, p)
			case GlyphAgent:
				l.Agent = p
				agents++
			case GlyphHazard:
				l.Hazards = append(l.Hazards, p)
			case GlyphEmpty:
			default:
				return l, fmt.Errorf("layout: unknown glyph %q at line %d col %d", ch, row+1, x+1)
			}
		}
	}
	if agents != 1 {
		return l, fmt.Errorf("layout: want exactly one agent start, got %d", agents)
	}
	return l, nil
}

// Goals returns every reward item position (food and capsules).
func (l Layout) Goals() []Position {
	out := make([]Position, 0, len(l.Food)+len(l.Capsules))
	out = append(out, l.Food...)
	out = append(out, l.Capsules...)
	return out
}

// Map builds the static GridMap for the layout with goals tagged.
func (l Layout) Map() (*Map, error) {
	m, err := New(l.Width, l.Height, l.Walls)
	if err != nil {
		return nil, err
	}
	if err := m.SetGoals(l.Goals()); err != nil {
		return nil, err
	}
	return m, nil
}
