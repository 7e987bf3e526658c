// Package agent wires grid, reward, engine and policy into a per-episode
// decision maker. An Agent is owned by a single goroutine.
package agent

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"mazeplan.ai/internal/planner/engine"
	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/policy"
	"mazeplan.ai/internal/planner/reward"
	"mazeplan.ai/internal/planner/tuning"
)

var ErrNoEpisode = errors.New("no active episode")

type Option func(*Agent)

func WithLogger(l *log.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithSink(s Sink) Option {
	return func(a *Agent) { a.sink = s }
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

type Agent struct {
	tuning tuning.Planner
	model  reward.Model
	logger *log.Logger
	sink   Sink
	now    func() time.Time

	episode   string
	layout    Layout
	grid      *grid.Map
	engine    *engine.Engine
	decisions int
}

func New(t tuning.Planner, opts ...Option) *Agent {
	a := &Agent{
		tuning: t,
		model:  t.Reward(),
		logger: log.New(os.Stderr, "[agent] ", log.LstdFlags|log.Lmicroseconds),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Tuning() tuning.Planner { return a.tuning }

func (a *Agent) EpisodeID() string { return a.episode }

// Map and Field are nil before the first episode.
func (a *Agent) Map() *grid.Map { return a.grid }

func (a *Agent) Field() *engine.Field {
	if a.engine == nil {
		return nil
	}
	return a.engine.Field()
}

// StartEpisode replaces any running episode.
func (a *Agent) StartEpisode(l Layout) (string, error) {
	g, err := grid.New(l.Width, l.Height, l.Walls)
	if err != nil {
		return "", fmt.Errorf("layout: %w", err)
	}
	if err := g.SetGoals(l.Goals); err != nil {
		return "", fmt.Errorf("layout: %w", err)
	}
	if a.episode != "" {
		a.logger.Printf("episode %s replaced after %d decisions", a.episode, a.decisions)
		a.EndEpisode("replaced")
	}

	a.episode = uuid.NewString()
	a.layout = l
	a.grid = g
	a.engine = engine.New(g, a.tuning.Engine())
	a.decisions = 0
	a.seed()

	a.record(func(s Sink) error {
		return s.RecordEpisode(EpisodeRecord{EpisodeID: a.episode, StartedAt: a.now().UTC(), Layout: l, Tuning: a.tuning})
	})
	return a.episode, nil
}

func (a *Agent) seed() {
	a.engine.Reset(a.tuning.GoalReward, a.tuning.InitialOpenUtility)
}

// Reset re-seeds the field for the current goal tagging. Decisions never
// reset on their own; each warm-starts from the previous field.
func (a *Agent) Reset() error {
	if a.engine == nil {
		return ErrNoEpisode
	}
	a.seed()
	return nil
}

func (a *Agent) Decide(st Step) (Decision, error) {
	if a.engine == nil {
		return Decision{}, ErrNoEpisode
	}
	if err := a.grid.SetGoals(st.Goals); err != nil {
		return Decision{}, fmt.Errorf("step %d goals: %w", st.Tick, err)
	}
	if !a.grid.InBounds(st.Agent) {
		return Decision{}, fmt.Errorf("step %d agent %v: %w", st.Tick, st.Agent, grid.ErrOutOfBounds)
	}
	if a.grid.IsWall(st.Agent) {
		return Decision{}, fmt.Errorf("step %d agent %v: %w", st.Tick, st.Agent, grid.ErrOnWall)
	}

	overlay := a.model.Build(a.grid, st.Hazards)
	res, err := a.engine.Run(overlay)
	if err != nil {
		return Decision{}, err
	}
	if !res.Converged {
		a.logger.Printf("episode=%s tick=%d not converged after %d sweeps (max delta %.3g)", a.episode, st.Tick, res.Iterations, res.MaxDelta)
	}

	moves := policy.Moves(st.Legal)
	d := Decision{
		Tick:            st.Tick,
		Iterations:      res.Iterations,
		Converged:       res.Converged,
		MaxDelta:        res.MaxDelta,
		SuppressedGoals: overlay.SuppressedGoals(),
		Digest:          a.engine.Field().Digest(),
	}
	d.Action, err = policy.Extract(a.engine.Field(), st.Agent, moves)
	if err != nil {
		var lookup *policy.LookupError
		if !errors.As(err, &lookup) || !a.tuning.FallbackFirstLegal {
			return Decision{}, err
		}
		a.logger.Printf("episode=%s tick=%d %v; falling back to %v", a.episode, st.Tick, err, moves[0])
		d.Action = moves[0]
		d.Fallback = true
	}

	seq := a.decisions
	a.decisions++
	a.record(func(s Sink) error {
		return s.RecordDecision(DecisionRecord{EpisodeID: a.episode, Seq: seq, At: a.now().UTC(), Step: st, Decision: d})
	})
	return d, nil
}

// EndEpisode discards episode state. It is a no-op without an episode.
func (a *Agent) EndEpisode(reason string) {
	if a.episode == "" {
		return
	}
	end := EndRecord{EpisodeID: a.episode, EndedAt: a.now().UTC(), Reason: reason, Decisions: a.decisions}
	a.record(func(s Sink) error { return s.RecordEnd(end) })
	a.episode = ""
	a.layout = Layout{}
	a.grid = nil
	a.engine = nil
	a.decisions = 0
}

func (a *Agent) record(fn func(Sink) error) {
	if a.sink == nil {
		return
	}
	if err := fn(a.sink); err != nil {
		a.logger.Printf("episode=%s sink: %v", a.episode, err)
	}
}

func (a *Agent) Layout() Layout { return a.layout }
