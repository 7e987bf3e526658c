package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mazeplan.ai/internal/planner/grid"
)

type table map[grid.Position]float64

func (t table) At(p grid.Position) (float64, bool) {
	v, ok := t[p]
	return v, ok
}

var plus = table{
	{X: 1, Y: 1}: 0,
	{X: 1, Y: 2}: 0.5, // north
	{X: 1, Y: 0}: -1,  // south
	{X: 2, Y: 1}: 0.9, // east
	{X: 0, Y: 1}: 0.5, // west
}

func TestExtractPicksHighestNeighbor(t *testing.T) {
	from := grid.Position{X: 1, Y: 1}
	a, err := Extract(plus, from, []grid.Direction{grid.North, grid.South, grid.East, grid.West})
	require.NoError(t, err)
	assert.Equal(t, grid.East, a)
}

func TestExtractStaysAdmissible(t *testing.T) {
	from := grid.Position{X: 1, Y: 1}
	a, err := Extract(plus, from, []grid.Direction{grid.South, grid.West})
	require.NoError(t, err)
	assert.Equal(t, grid.West, a, "east is best overall but not admissible")

	a, err = Extract(plus, from, []grid.Direction{grid.South})
	require.NoError(t, err)
	assert.Equal(t, grid.South, a)
}

func TestExtractTieUsesAdmissibleOrder(t *testing.T) {
	from := grid.Position{X: 1, Y: 1}
	a, err := Extract(plus, from, []grid.Direction{grid.North, grid.West})
	require.NoError(t, err)
	assert.Equal(t, grid.North, a)

	a, err = Extract(plus, from, []grid.Direction{grid.West, grid.North})
	require.NoError(t, err)
	assert.Equal(t, grid.West, a)
}

func TestExtractErrors(t *testing.T) {
	from := grid.Position{X: 1, Y: 1}
	_, err := Extract(plus, from, nil)
	assert.ErrorIs(t, err, ErrNoAdmissibleActions)

	_, err = Extract(plus, from, []grid.Direction{grid.North, grid.Stop})
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = Extract(table{from: 0}, from, []grid.Direction{grid.East})
	var lookup *LookupError
	require.True(t, errors.As(err, &lookup))
	assert.Equal(t, grid.Position{X: 2, Y: 1}, lookup.Target)
}

func TestMovesFiltersStop(t *testing.T) {
	got := Moves([]grid.Direction{grid.Stop, grid.West, grid.Direction(9), grid.North})
	assert.Equal(t, []grid.Direction{grid.West, grid.North}, got)
}
