// Package render draws boards and utility fields for terminals.
package render

import (
	"fmt"
	"strings"

	"github.com/logrusorgru/aurora"

	"mazeplan.ai/internal/planner/engine"
	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/reward"
)

type Renderer struct {
	au aurora.Aurora
}

// New returns a renderer; colors=false emits plain text.
func New(colors bool) *Renderer {
	return &Renderer{au: aurora.NewAurora(colors)}
}

// Board draws the map with the highest row first, using the layout glyphs.
// Lethal hazards are G, harmless ones g.
func (r *Renderer) Board(m *grid.Map, agent grid.Position, hazards []reward.Hazard) string {
	w, h := m.Dimensions()
	occupied := make(map[grid.Position]bool, len(hazards))
	for _, hz := range hazards {
		occupied[hz.Pos] = occupied[hz.Pos] || hz.Lethal
	}

	var b strings.Builder
	for y := h - 1; y >= 0; y-- {
		for x := 0; x < w; x++ {
			p := grid.Position{X: x, Y: y}
			lethal, hazard := occupied[p]
			switch {
			case p == agent:
				b.WriteString(r.au.Bold(r.au.Yellow("P")).String())
			case hazard && lethal:
				b.WriteString(r.au.Red("G").String())
			case hazard:
				b.WriteString(r.au.Cyan("g").String())
			default:
				switch m.Classify(p) {
				case grid.Wall:
					b.WriteString(r.au.Blue("%").String())
				case grid.Goal:
					b.WriteString(r.au.Yellow(".").String())
				default:
					b.WriteByte(' ')
				}
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Utilities prints the field as a table, highest row first.
func (r *Renderer) Utilities(f *engine.Field) string {
	w, h := f.Dimensions()
	var b strings.Builder
	for y := h - 1; y >= 0; y-- {
		for x := 0; x < w; x++ {
			if x > 0 {
				b.WriteByte('|')
			}
			v, ok := f.At(grid.Position{X: x, Y: y})
			if !ok {
				b.WriteString(r.au.Blue("  ####").String())
				continue
			}
			cell := fmt.Sprintf("%6.2f", v)
			switch {
			case v > 0:
				b.WriteString(r.au.Green(cell).String())
			case v < 0:
				b.WriteString(r.au.Red(cell).String())
			default:
				b.WriteString(cell)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
