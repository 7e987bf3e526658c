package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type EpisodeRow struct {
	EpisodeID    string
	StartedAt    string
	Width        int
	Height       int
	Walls        int
	Goals        int
	TuningDigest string
	EndedAt      string
	Reason       string
	Decisions    int
}

type EpisodeStats struct {
	EpisodeID      string
	Decisions      int
	MeanIterations float64
	MaxIterations  int
	NotConverged   int
	Fallbacks      int
	Suppressed     int
	Actions        map[string]int
}

// ListEpisodes returns the most recently started episodes first.
func (s *SQLiteIndex) ListEpisodes(ctx context.Context, limit int) ([]EpisodeRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT episode_id, started_at, width, height, walls, goals, tuning_digest,
		COALESCE(ended_at,''), COALESCE(reason,''), COALESCE(decisions,0)
		FROM episodes ORDER BY started_at DESC, episode_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EpisodeRow
	for rows.Next() {
		var r EpisodeRow
		if err := rows.Scan(&r.EpisodeID, &r.StartedAt, &r.Width, &r.Height, &r.Walls, &r.Goals, &r.TuningDigest, &r.EndedAt, &r.Reason, &r.Decisions); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) EpisodeStats(ctx context.Context, episodeID string) (EpisodeStats, error) {
	st := EpisodeStats{EpisodeID: episodeID, Actions: map[string]int{}}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes WHERE episode_id=?`, episodeID).Scan(&exists); err != nil {
		return st, err
	}
	if exists == 0 {
		return st, fmt.Errorf("episode %s: %w", episodeID, ErrNotFound)
	}

	var mean sql.NullFloat64
	var maxIt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(iterations), MAX(iterations),
		COALESCE(SUM(1-converged),0), COALESCE(SUM(fallback),0), COALESCE(SUM(suppressed_goals),0)
		FROM decisions WHERE episode_id=?`, episodeID).
		Scan(&st.Decisions, &mean, &maxIt, &st.NotConverged, &st.Fallbacks, &st.Suppressed)
	if err != nil {
		return st, err
	}
	st.MeanIterations = mean.Float64
	st.MaxIterations = int(maxIt.Int64)

	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM decisions WHERE episode_id=? GROUP BY action`, episodeID)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var a string
		var n int
		if err := rows.Scan(&a, &n); err != nil {
			return st, err
		}
		st.Actions[a] = n
	}
	return st, rows.Err()
}

// Meta reads one key from the meta table.
func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %s: %w", key, ErrNotFound)
	}
	return v, err
}
