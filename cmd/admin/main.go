package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mazeplan.ai/internal/persistence/archive"
	persistlog "mazeplan.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "traces":
			tracesCmd(os.Args[2:])
			return
		case "archive":
			archiveCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <db|state|traces|archive> [flags]")
	os.Exit(2)
}

func tracesCmd(args []string) {
	fs := flag.NewFlagSet("traces", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	files, err := persistlog.TraceFiles(persistlog.TraceDir(*dataDir))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, f := range files {
		entries, err := persistlog.ReadEntries(f)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read trace:", err)
			os.Exit(1)
		}
		eps := persistlog.GroupEpisodes(entries)
		fmt.Printf("%s entries=%d episodes=%d\n", filepath.Base(f), len(entries), len(eps))
	}
}

func archiveCmd(args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	episodeID := fs.String("episode", "", "episode id (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*episodeID) == "" {
		fmt.Fprintln(os.Stderr, "missing -episode")
		os.Exit(2)
	}
	ep, err := findEpisode(persistlog.TraceDir(*dataDir), *episodeID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	dir, err := archive.ArchiveEpisode(*dataDir, ep)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("archived episode=%s decisions=%d -> %s\n", *episodeID, len(ep.Decisions), dir)
}

// findEpisode scans every trace file in dir; an episode may span hourly files.
func findEpisode(dir, episodeID string) (*persistlog.Episode, error) {
	files, err := persistlog.TraceFiles(dir)
	if err != nil {
		return nil, err
	}
	var entries []persistlog.Entry
	for _, f := range files {
		es, err := persistlog.ReadEntries(f)
		if err != nil {
			return nil, fmt.Errorf("read trace: %w", err)
		}
		entries = append(entries, es...)
	}
	for _, ep := range persistlog.GroupEpisodes(entries) {
		if ep.Start.EpisodeID == episodeID {
			return ep, nil
		}
	}
	return nil, fmt.Errorf("episode %s not found in %s", episodeID, dir)
}
