package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallLayout = `%%%%%
%.PG%
%o  %
%%%%%`

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout(smallLayout)
	require.NoError(t, err)

	assert.Equal(t, 5, l.Width)
	assert.Equal(t, 4, l.Height)
	assert.Equal(t, Position{X: 2, Y: 2}, l.Agent, "top line is the highest y")
	assert.Equal(t, []Position{{X: 3, Y: 2}}, l.Hazards)
	assert.Equal(t, []Position{{X: 1, Y: 2}}, l.Food)
	assert.Equal(t, []Position{{X: 1, Y: 1}}, l.Capsules)
	assert.Len(t, l.Walls, 14)

	m, err := l.Map()
	require.NoError(t, err)
	assert.Equal(t, Goal, m.Classify(Position{X: 1, Y: 1}))
	assert.Equal(t, Open, m.Classify(Position{X: 2, Y: 2}))
}

func TestParseLayoutErrors(t *testing.T) {
	_, err := ParseLayout("")
	assert.Error(t, err)

	_, err = ParseLayout("%%%\n% %\n%%%")
	assert.ErrorContains(t, err, "agent")

	_, err = ParseLayout("%P#%")
	assert.ErrorContains(t, err, "unknown glyph")
}
