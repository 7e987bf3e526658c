package hostenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mazeplan.ai/internal/planner/grid"
)

func newEnv(t *testing.T, text string, cfg Config) *Env {
	t.Helper()
	l, err := grid.ParseLayout(text)
	require.NoError(t, err)
	e, err := New(l, cfg)
	require.NoError(t, err)
	return e
}

func pos(x, y int) grid.Position { return grid.Position{X: x, Y: y} }

func TestBuiltinLayouts(t *testing.T) {
	assert.Equal(t, []string{"medium", "small"}, Layouts())
	for _, name := range Layouts() {
		l, err := LoadLayout(name)
		require.NoError(t, err, name)
		_, err = New(l, DefaultConfig())
		require.NoError(t, err, name)
	}
	_, err := LoadLayout("nope")
	assert.ErrorContains(t, err, "medium, small")
}

func TestObserve(t *testing.T) {
	e := newEnv(t, "%%%%%\n%P.G%\n%%%%%", DefaultConfig())
	obs := e.Observe()
	assert.Equal(t, pos(1, 1), obs.Agent)
	assert.Equal(t, []grid.Position{pos(2, 1)}, obs.Goals)
	assert.Equal(t, []grid.Direction{grid.Stop, grid.East}, obs.Legal)
	require.Len(t, obs.Hazards, 1)
	assert.True(t, obs.Hazards[0].Lethal)
}

func TestIllegalMove(t *testing.T) {
	e := newEnv(t, "%%%%%\n%P.G%\n%%%%%", DefaultConfig())
	_, err := e.Step(grid.West)
	assert.ErrorIs(t, err, ErrIllegalAction)
	assert.Zero(t, e.Tick())
}

func TestWinOnLastGoal(t *testing.T) {
	e := newEnv(t, "%%%%%\n%P.G%\n%%%%%", DefaultConfig())
	out, err := e.Step(grid.East)
	require.NoError(t, err)
	assert.Equal(t, Win, out)
	assert.Equal(t, -1+10+500, e.Score())

	_, err = e.Step(grid.Stop)
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestHazardCatchesAgent(t *testing.T) {
	e := newEnv(t, "%%%%%%\n%.P G%\n%%%%%%", DefaultConfig())
	out, err := e.Step(grid.Stop)
	require.NoError(t, err)
	assert.Equal(t, Running, out)
	assert.Equal(t, pos(3, 1), e.Hazards()[0].Pos)

	// Reversing is excluded while another move exists, so the hazard keeps west.
	out, err = e.Step(grid.Stop)
	require.NoError(t, err)
	assert.Equal(t, Lose, out)
}

func TestCapsuleScaresAndHazardRespawns(t *testing.T) {
	e := newEnv(t, "%%%%%%\n%.PoG%\n%%%%%%", DefaultConfig())
	out, err := e.Step(grid.East)
	require.NoError(t, err)
	assert.Equal(t, Running, out)
	assert.Equal(t, -1+200, e.Score(), "scared hazard walked into the agent")
	hz := e.Hazards()[0]
	assert.Equal(t, pos(4, 1), hz.Pos)
	assert.True(t, hz.Lethal)

	e = newEnv(t, "%%%%%%%%\n%.Po  G%\n%%%%%%%%", DefaultConfig())
	_, err = e.Step(grid.East)
	require.NoError(t, err)
	hz = e.Hazards()[0]
	assert.Equal(t, pos(5, 1), hz.Pos)
	assert.False(t, hz.Lethal)
	assert.Equal(t, 39, e.hazards[0].scared)
}

func TestTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTicks = 2
	e := newEnv(t, "%%%%%\n%P .%\n%%%%%", cfg)
	out, _ := e.Step(grid.Stop)
	assert.Equal(t, Running, out)
	out, _ = e.Step(grid.Stop)
	assert.Equal(t, Timeout, out)
	assert.True(t, e.Done())
}

func TestSeededHazardsAreDeterministic(t *testing.T) {
	l, err := LoadLayout("medium")
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Seed = 7

	run := func() [][2]grid.Position {
		e, err := New(l, cfg)
		require.NoError(t, err)
		var trace [][2]grid.Position
		for i := 0; i < 25 && !e.Done(); i++ {
			_, err := e.Step(grid.Stop)
			require.NoError(t, err)
			hz := e.Hazards()
			trace = append(trace, [2]grid.Position{hz[0].Pos, hz[1].Pos})
		}
		return trace
	}
	assert.Equal(t, run(), run())
}
