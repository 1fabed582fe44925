package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// backupStamp is the suffix layout of rolled-over files, chosen so that
// lexicographic order equals chronological order.
const backupStamp = "20060102T150405.000"

// fileSink is an io.WriteCloser that rolls the log file over into
// timestamp-suffixed backups once it would grow past a size limit.
// The active file keeps its name; history lives in
// <path>.<timestamp> siblings, oldest deleted beyond the backup count.
type fileSink struct {
	path     string
	maxBytes int64
	backups  int

	mu   sync.Mutex
	f    *os.File
	size int64
}

func newFileSink(path string, maxBytes int64, backups int) (*fileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log directory: %w", err)
	}
	s := &fileSink{path: path, maxBytes: maxBytes, backups: backups}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("log file: %w", err)
	}
	s.f = f
	s.size = info.Size()
	return nil
}

// Write appends p, rolling over first when the limit would be crossed.
// An entry larger than the limit still lands in a fresh file whole.
func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size > 0 && s.size+int64(len(p)) > s.maxBytes {
		if err := s.roll(); err != nil {
			// Rolling failed; better an oversized log than a lost entry.
			fmt.Fprintln(os.Stderr, "log rollover:", err)
		}
	}

	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

// roll archives the active file under a timestamp suffix, prunes old
// backups, and starts a fresh file.
func (s *fileSink) roll() error {
	if err := s.f.Close(); err != nil {
		return err
	}
	stamp := time.Now().UTC().Format(backupStamp)
	if err := os.Rename(s.path, s.path+"."+stamp); err != nil {
		// Reopen the original so logging continues either way.
		if reopenErr := s.open(); reopenErr != nil {
			return reopenErr
		}
		return err
	}
	s.prune()
	return s.open()
}

// prune deletes the oldest backups beyond the configured count.
func (s *fileSink) prune() {
	siblings, err := filepath.Glob(s.path + ".*")
	if err != nil {
		return
	}
	var stamped []string
	for _, p := range siblings {
		suffix := strings.TrimPrefix(p, s.path+".")
		if _, err := time.Parse(backupStamp, suffix); err == nil {
			stamped = append(stamped, p)
		}
	}
	if len(stamped) <= s.backups {
		return
	}
	sort.Strings(stamped) // stamp layout sorts oldest first
	for _, p := range stamped[:len(stamped)-s.backups] {
		_ = os.Remove(p)
	}
}

// Close flushes and closes the active file.
func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	_ = s.f.Sync()
	err := s.f.Close()
	s.f = nil
	return err
}
