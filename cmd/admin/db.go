package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mazeplan.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	episode := fs.String("episode", "", "episode id (stats)")
	key := fs.String("key", "tuning_digest", "meta key (meta)")
	limit := fs.Int("limit", 20, "result limit (episodes)")
	_ = fs.Parse(args)

	q := "episodes"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "mazeplan.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := runQuery(ctx, idx, os.Stdout, q, *episode, *key, *limit); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runQuery(ctx context.Context, idx *indexdb.SQLiteIndex, w io.Writer, q, episode, key string, limit int) error {
	enc := json.NewEncoder(w)
	switch q {
	case "episodes":
		rows, err := idx.ListEpisodes(ctx, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	case "stats":
		if strings.TrimSpace(episode) == "" {
			return fmt.Errorf("stats: missing -episode")
		}
		st, err := idx.EpisodeStats(ctx, episode)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		_ = enc.Encode(st)
	case "meta":
		v, err := idx.Meta(ctx, key)
		if err != nil {
			return fmt.Errorf("meta %s: %w", key, err)
		}
		fmt.Fprintln(w, v)
	default:
		return fmt.Errorf("unknown query %q (episodes|stats|meta)", q)
	}
	return nil
}
