// Package hostenv is a small deterministic maze game used to drive the
// planner end to end: one agent collecting food, hazards wandering at random,
// capsules that make hazards harmless for a while.
package hostenv

import (
	"errors"
	"fmt"
	"math/rand"

	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/reward"
)

var (
	ErrIllegalAction = errors.New("illegal action")
	ErrGameOver      = errors.New("game is over")
)

type Outcome uint8

const (
	Running Outcome = iota
	Win
	Lose
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Running:
		return "running"
	case Win:
		return "win"
	case Lose:
		return "lose"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

const (
	scoreTick   = -1
	scoreFood   = 10
	scoreHazard = 200
	scoreWin    = 500
	scoreLose   = -500
)

type Config struct {
	Seed int64
	// MaxTicks ends the game as Timeout; zero means no limit.
	MaxTicks    uint64
	ScaredTicks int
}

func DefaultConfig() Config {
	return Config{Seed: 1, MaxTicks: 1000, ScaredTicks: 40}
}

type hazard struct {
	pos    grid.Position
	start  grid.Position
	facing grid.Direction
	scared int
}

// Observation is what the environment exposes to a planner each tick.
type Observation struct {
	Tick    uint64
	Agent   grid.Position
	Goals   []grid.Position
	Hazards []reward.Hazard
	Legal   []grid.Direction
}

type Env struct {
	cfg    Config
	layout grid.Layout
	m      *grid.Map
	rng    *rand.Rand

	agent    grid.Position
	food     map[grid.Position]bool
	capsules map[grid.Position]bool
	hazards  []hazard

	tick    uint64
	score   int
	outcome Outcome
}

func New(l grid.Layout, cfg Config) (*Env, error) {
	m, err := l.Map()
	if err != nil {
		return nil, err
	}
	e := &Env{
		cfg:      cfg,
		layout:   l,
		m:        m,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		agent:    l.Agent,
		food:     make(map[grid.Position]bool, len(l.Food)),
		capsules: make(map[grid.Position]bool, len(l.Capsules)),
	}
	for _, p := range l.Food {
		e.food[p] = true
	}
	for _, p := range l.Capsules {
		e.capsules[p] = true
	}
	for _, p := range l.Hazards {
		e.hazards = append(e.hazards, hazard{pos: p, start: p, facing: grid.Stop})
	}
	return e, nil
}

func (e *Env) Layout() grid.Layout { return e.layout }

func (e *Env) Map() *grid.Map { return e.m }

func (e *Env) Tick() uint64 { return e.tick }

func (e *Env) Score() int { return e.score }

func (e *Env) Outcome() Outcome { return e.outcome }

func (e *Env) Done() bool { return e.outcome != Running }

// Goals lists remaining food and capsules row-major from y=0.
func (e *Env) Goals() []grid.Position {
	var out []grid.Position
	for _, p := range e.m.OpenCells() {
		if e.food[p] || e.capsules[p] {
			out = append(out, p)
		}
	}
	return out
}

// Hazards reports every hazard; scared ones are harmless.
func (e *Env) Hazards() []reward.Hazard {
	out := make([]reward.Hazard, len(e.hazards))
	for i, h := range e.hazards {
		out[i] = reward.Hazard{Pos: h.pos, Lethal: h.scared == 0}
	}
	return out
}

// Legal lists Stop followed by every move that does not hit a wall.
func (e *Env) Legal() []grid.Direction {
	return append([]grid.Direction{grid.Stop}, e.moves(e.agent)...)
}

func (e *Env) moves(p grid.Position) []grid.Direction {
	var out []grid.Direction
	for _, d := range grid.Cardinal {
		if _, ok := e.m.Neighbor(p, d); ok {
			out = append(out, d)
		}
	}
	return out
}

func (e *Env) Observe() Observation {
	return Observation{
		Tick:    e.tick,
		Agent:   e.agent,
		Goals:   e.Goals(),
		Hazards: e.Hazards(),
		Legal:   e.Legal(),
	}
}

// Step moves the agent, then every hazard, resolving collisions after each.
func (e *Env) Step(a grid.Direction) (Outcome, error) {
	if e.Done() {
		return e.outcome, ErrGameOver
	}
	if a != grid.Stop {
		next, ok := e.m.Neighbor(e.agent, a)
		if !ok {
			return e.outcome, fmt.Errorf("%w: %v from %v", ErrIllegalAction, a, e.agent)
		}
		e.agent = next
	}
	e.tick++
	e.score += scoreTick
	e.eat()
	if e.collide(); e.Done() {
		return e.outcome, nil
	}
	if len(e.food) == 0 && len(e.capsules) == 0 {
		e.finish(Win)
		return e.outcome, nil
	}

	for i := range e.hazards {
		e.wander(&e.hazards[i])
	}
	if e.collide(); e.Done() {
		return e.outcome, nil
	}
	for i := range e.hazards {
		if e.hazards[i].scared > 0 {
			e.hazards[i].scared--
		}
	}
	if e.cfg.MaxTicks > 0 && e.tick >= e.cfg.MaxTicks {
		e.finish(Timeout)
	}
	return e.outcome, nil
}

func (e *Env) eat() {
	if e.food[e.agent] {
		delete(e.food, e.agent)
		e.score += scoreFood
	}
	if e.capsules[e.agent] {
		delete(e.capsules, e.agent)
		for i := range e.hazards {
			e.hazards[i].scared = e.cfg.ScaredTicks
		}
	}
}

// collide resolves every hazard sharing the agent's cell. Scared hazards are
// eaten and respawn at their start.
func (e *Env) collide() {
	for i := range e.hazards {
		h := &e.hazards[i]
		if h.pos != e.agent {
			continue
		}
		if h.scared > 0 {
			e.score += scoreHazard
			h.pos = h.start
			h.facing = grid.Stop
			h.scared = 0
			continue
		}
		e.finish(Lose)
		return
	}
}

// wander picks a random move, avoiding reversal unless it is the only way out.
func (e *Env) wander(h *hazard) {
	options := e.moves(h.pos)
	if len(options) == 0 {
		return
	}
	if len(options) > 1 && h.facing != grid.Stop {
		back := reverse(h.facing)
		kept := options[:0:0]
		for _, d := range options {
			if d != back {
				kept = append(kept, d)
			}
		}
		options = kept
	}
	d := options[e.rng.Intn(len(options))]
	h.pos, _ = e.m.Neighbor(h.pos, d)
	h.facing = d
}

func reverse(d grid.Direction) grid.Direction {
	switch d {
	case grid.North:
		return grid.South
	case grid.South:
		return grid.North
	case grid.East:
		return grid.West
	case grid.West:
		return grid.East
	}
	return grid.Stop
}

func (e *Env) finish(o Outcome) {
	e.outcome = o
	switch o {
	case Win:
		e.score += scoreWin
	case Lose:
		e.score += scoreLose
	}
}
