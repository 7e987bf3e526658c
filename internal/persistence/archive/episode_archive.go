package archive

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	persistlog "mazeplan.ai/internal/persistence/log"
)

type EpisodeArchiveMeta struct {
	EpisodeID    string `json:"episode_id"`
	StartedAt    string `json:"started_at"`
	EndedAt      string `json:"ended_at,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Decisions    int    `json:"decisions"`
	TuningDigest string `json:"tuning_digest"`
	Trace        string `json:"trace"`
	CreatedAt    string `json:"created_at"`
}

const traceName = "episode.jsonl.zst"

// Dir is where ArchiveEpisode writes an episode.
func Dir(dataDir, episodeID string) string {
	return filepath.Join(dataDir, "archives", "episode_"+episodeID)
}

// ArchiveEpisode writes one episode's trace into `dataDir/archives/episode_<id>/`
// as a standalone trace file plus meta.json. The directory is itself a valid
// trace dir for replay. Episodes without an end record are archived as is.
func ArchiveEpisode(dataDir string, ep *persistlog.Episode) (string, error) {
	if ep == nil || ep.Start.EpisodeID == "" {
		return "", errors.New("archive: empty episode")
	}
	dir := Dir(dataDir, ep.Start.EpisodeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(dir, traceName)
	if err := writeTrace(dst, ep); err != nil {
		return "", fmt.Errorf("archive %s: %w", ep.Start.EpisodeID, err)
	}

	meta := EpisodeArchiveMeta{
		EpisodeID:    ep.Start.EpisodeID,
		StartedAt:    ep.Start.StartedAt.UTC().Format(time.RFC3339Nano),
		Decisions:    len(ep.Decisions),
		TuningDigest: ep.Start.Tuning.Digest(),
		Trace:        traceName,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if ep.End != nil {
		meta.EndedAt = ep.End.EndedAt.UTC().Format(time.RFC3339Nano)
		meta.Reason = ep.End.Reason
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return dir, nil
}

// ReadMeta loads meta.json from an archive directory.
func ReadMeta(dir string) (EpisodeArchiveMeta, error) {
	var m EpisodeArchiveMeta
	b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func writeTrace(path string, ep *persistlog.Episode) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(enc)
	je := json.NewEncoder(w)

	start := ep.Start
	if err := je.Encode(persistlog.Entry{Kind: persistlog.KindEpisode, Episode: &start}); err != nil {
		return err
	}
	for i := range ep.Decisions {
		if err := je.Encode(persistlog.Entry{Kind: persistlog.KindDecision, Decision: &ep.Decisions[i]}); err != nil {
			return err
		}
	}
	if ep.End != nil {
		if err := je.Encode(persistlog.Entry{Kind: persistlog.KindEnd, End: ep.End}); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}
