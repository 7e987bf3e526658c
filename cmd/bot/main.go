package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"mazeplan.ai/internal/hostenv"
	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/render"
	"mazeplan.ai/internal/transport/ws"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "agent name")
		layout   = flag.String("layout", "small", "built-in layout ("+strings.Join(hostenv.Layouts(), ", ")+") or .lay path")
		episodes = flag.Int("episodes", 1, "episodes to play")
		seed     = flag.Int64("seed", 1, "hazard movement seed; episode i uses seed+i")
		maxTicks = flag.Uint64("max_ticks", 1000, "timeout per episode")
		show     = flag.Bool("show", false, "render the board after every tick")
		colors   = flag.Bool("colors", true, "ANSI colors with -show")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	l, err := hostenv.LoadLayout(*layout)
	if err != nil {
		logger.Fatalf("layout: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := ws.Dial(dialCtx, *url, *name)
	dialCancel()
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer c.Close()
	logger.Printf("session=%s tuning=%s", c.Welcome.SessionID, c.Welcome.TuningDigest)

	var r *render.Renderer
	if *show {
		r = render.New(*colors)
	}

	var wins int
	for i := 0; i < *episodes && ctx.Err() == nil; i++ {
		cfg := hostenv.DefaultConfig()
		cfg.Seed = *seed + int64(i)
		cfg.MaxTicks = *maxTicks
		env, err := hostenv.New(l, cfg)
		if err != nil {
			logger.Fatalf("env: %v", err)
		}

		id, err := c.StartEpisode(*layout, agent.Layout{Width: l.Width, Height: l.Height, Walls: l.Walls, Goals: l.Goals()})
		if err != nil {
			logger.Fatalf("episode: %v", err)
		}

		decide := func(st agent.Step) (grid.Direction, error) {
			d, err := c.Step(st)
			if err != nil {
				return grid.Stop, err
			}
			if !d.Converged {
				logger.Printf("episode=%s tick=%d not converged after %d sweeps", id, d.Tick, d.Iterations)
			}
			return d.Action, nil
		}
		var frame func(*hostenv.Env)
		if r != nil {
			frame = func(e *hostenv.Env) {
				fmt.Printf("tick=%d score=%d\n%s\n", e.Tick(), e.Score(), r.Board(e.Map(), e.Observe().Agent, e.Hazards()))
			}
		}

		out, err := play(ctx, env, decide, frame)
		reason := out.String()
		if err != nil {
			reason = "error"
			logger.Printf("episode=%s: %v", id, err)
		}
		if _, err := c.EndEpisode(reason); err != nil {
			logger.Printf("episode=%s end: %v", id, err)
		}
		if out == hostenv.Win {
			wins++
		}
		logger.Printf("episode=%s seed=%d outcome=%s score=%d ticks=%d", id, cfg.Seed, out, env.Score(), env.Tick())
	}
	logger.Printf("won %d/%d", wins, *episodes)
}

// play runs env to completion, asking decide for every action. frame, when
// set, is called after every tick.
func play(ctx context.Context, env *hostenv.Env, decide func(agent.Step) (grid.Direction, error), frame func(*hostenv.Env)) (hostenv.Outcome, error) {
	for !env.Done() {
		if err := ctx.Err(); err != nil {
			return env.Outcome(), err
		}
		ob := env.Observe()
		a, err := decide(agent.Step{Tick: ob.Tick, Agent: ob.Agent, Goals: ob.Goals, Hazards: ob.Hazards, Legal: ob.Legal})
		if err != nil {
			return env.Outcome(), fmt.Errorf("tick %d: %w", ob.Tick, err)
		}
		if _, err := env.Step(a); err != nil {
			return env.Outcome(), fmt.Errorf("tick %d action %v: %w", ob.Tick, a, err)
		}
		if frame != nil {
			frame(env)
		}
	}
	return env.Outcome(), nil
}
