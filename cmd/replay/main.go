package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	persistlog "mazeplan.ai/internal/persistence/log"
	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/planner/render"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory")
		traceDir = flag.String("trace", "", "decision trace dir (default <data>/decisions)")
		episode  = flag.String("episode", "", "only replay this episode id (optional)")
		show     = flag.Bool("show", false, "print the utility field after every decision")
		colors   = flag.Bool("colors", true, "ANSI colors with -show")
	)
	flag.Parse()

	dir := *traceDir
	if dir == "" {
		dir = persistlog.TraceDir(*dataDir)
	}
	files, err := persistlog.TraceFiles(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list trace files:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no trace files in", dir)
		os.Exit(2)
	}

	var entries []persistlog.Entry
	for _, f := range files {
		es, err := persistlog.ReadEntries(f)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read trace:", err)
			os.Exit(1)
		}
		entries = append(entries, es...)
	}

	var out io.Writer
	var r *render.Renderer
	if *show {
		out = os.Stdout
		r = render.New(*colors)
	}

	var checked, failed int
	for _, ep := range persistlog.GroupEpisodes(entries) {
		if *episode != "" && ep.Start.EpisodeID != *episode {
			continue
		}
		checked++
		n, err := verifyEpisode(ep, r, out)
		status := "ok"
		if err != nil {
			failed++
			status = err.Error()
		}
		fmt.Printf("episode=%s decisions=%d verified=%d %s\n", ep.Start.EpisodeID, len(ep.Decisions), n, status)
	}
	fmt.Printf("replayed %d episodes, %d mismatched\n", checked, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// verifyEpisode re-runs every recorded decision on a fresh agent built from
// the recorded tuning and returns how many matched before the first mismatch.
func verifyEpisode(ep *persistlog.Episode, r *render.Renderer, out io.Writer) (int, error) {
	a := agent.New(ep.Start.Tuning, agent.WithLogger(log.New(io.Discard, "", 0)))
	if _, err := a.StartEpisode(ep.Start.Layout); err != nil {
		return 0, err
	}
	defer a.EndEpisode("replay")

	for i, rec := range ep.Decisions {
		if rec.Seq != i {
			return i, fmt.Errorf("seq gap: want %d, trace has %d", i, rec.Seq)
		}
		got, err := a.Decide(rec.Step)
		if err != nil {
			return i, fmt.Errorf("tick %d: %w", rec.Step.Tick, err)
		}
		want := rec.Decision
		if got.Action != want.Action {
			return i, fmt.Errorf("tick %d: action %v, trace has %v", rec.Step.Tick, got.Action, want.Action)
		}
		if got.Digest != want.Digest {
			return i, fmt.Errorf("tick %d: field digest %s, trace has %s", rec.Step.Tick, got.Digest, want.Digest)
		}
		if r != nil && out != nil {
			fmt.Fprintf(out, "tick=%d action=%v iterations=%d\n%s\n", rec.Step.Tick, got.Action, got.Iterations, r.Utilities(a.Field()))
		}
	}
	return len(ep.Decisions), nil
}
