package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	segmentPrefix = "decisions"
	segmentLayout = "2006-01-02-15"
)

// segments is the append-only store behind DecisionLogger. Entries go to one
// zstd-compressed JSONL file per UTC hour:
// <dir>/decisions-YYYY-MM-DD-HH.jsonl.zst. Reopening a segment starts a new
// zstd frame; ReadEntries decodes concatenated frames.
type segments struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	hour string // key of the open segment, empty when none is open
	file *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

func newSegments(dir string, now func() time.Time) *segments {
	if now == nil {
		now = time.Now
	}
	return &segments{dir: dir, now: now}
}

func segmentPath(dir, hour string) string {
	return filepath.Join(dir, segmentPrefix+"-"+hour+".jsonl.zst")
}

func (s *segments) append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if hour := s.now().UTC().Format(segmentLayout); hour != s.hour {
		if err := s.switchTo(hour); err != nil {
			return err
		}
	}
	if _, err := s.buf.Write(line); err != nil {
		return err
	}
	return s.buf.Flush()
}

// switchTo seals the open segment and opens the one for hour.
func (s *segments) switchTo(hour string) error {
	if err := s.sealLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(segmentPath(s.dir, hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	s.file, s.zw, s.buf, s.hour = f, zw, bufio.NewWriterSize(zw, 128*1024), hour
	return nil
}

func (s *segments) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealLocked()
}

// sealLocked finishes the zstd frame of the open segment, if any.
func (s *segments) sealLocked() error {
	if s.file == nil {
		return nil
	}
	var err error
	if ferr := s.buf.Flush(); ferr != nil {
		err = ferr
	}
	if zerr := s.zw.Close(); zerr != nil && err == nil {
		err = zerr
	}
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.file, s.zw, s.buf, s.hour = nil, nil, nil, ""
	return err
}
