// Package store owns the two managed directories: uploads land in one and
// tool outputs in the other. Every file the service writes is tracked here
// and only this package deletes them, either when a per-item timer fires,
// when an archive replaces a directory, or when the sweeper finds an entry
// past its maximum age.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wudi/pdftools/naming"
)

var (
	ErrNotFound    = errors.New("store: not found")
	ErrOutsideArea = errors.New("store: reference escapes the managed area")
	ErrUnknownArea = errors.New("store: unknown area")
	ErrEmptyUpload = errors.New("store: empty upload")
)

// Area selects one of the managed directories.
type Area int

const (
	Uploads Area = iota
	Outputs
)

func (a Area) String() string {
	switch a {
	case Uploads:
		return "uploads"
	case Outputs:
		return "outputs"
	}
	return fmt.Sprintf("area(%d)", int(a))
}

// Artifact is a file the store has persisted.
type Artifact struct {
	OriginalName string
	StorageName  string
	Path         string
	Size         int64
	ArrivedAt    time.Time
}

// Store persists artifacts and schedules their deletion.
type Store struct {
	dirs    [2]string
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *metrics
	hook    func(CleanupResult)

	mu     sync.Mutex
	timers map[string]clockwork.Timer
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, which drives deletion timers and the
// sweeper's notion of age.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRegisterer registers the cleanup counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Store) { s.metrics.register(reg) }
}

// WithCleanupHook is called with every CleanupResult after it is logged.
func WithCleanupHook(fn func(CleanupResult)) Option {
	return func(s *Store) { s.hook = fn }
}

// New creates both directories if needed.
func New(uploadDir, outputDir string, opts ...Option) (*Store, error) {
	s := &Store{
		clock:   clockwork.NewRealClock(),
		logger:  zap.NewNop(),
		metrics: newMetrics(),
		timers:  make(map[string]clockwork.Timer),
	}
	for i, dir := range []string{uploadDir, outputDir} {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("store: %s: %w", dir, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", abs, err)
		}
		s.dirs[i] = abs
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the absolute directory of area.
func (s *Store) Dir(area Area) string {
	if area != Uploads && area != Outputs {
		return ""
	}
	return s.dirs[area]
}

// Clock returns the clock the store schedules against.
func (s *Store) Clock() clockwork.Clock { return s.clock }

// Persist copies r into area under a unique name derived from
// originalName. Empty content is refused with ErrEmptyUpload and leaves
// nothing behind.
func (s *Store) Persist(r io.Reader, area Area, originalName string) (Artifact, error) {
	dir := s.Dir(area)
	if dir == "" {
		return Artifact{}, ErrUnknownArea
	}
	name := naming.Unique(originalName)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Artifact{}, fmt.Errorf("store: persist %s: %w", originalName, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = ErrEmptyUpload
	}
	if err != nil {
		os.Remove(path)
		return Artifact{}, fmt.Errorf("store: persist %s: %w", originalName, err)
	}
	return Artifact{
		OriginalName: originalName,
		StorageName:  name,
		Path:         path,
		Size:         n,
		ArrivedAt:    s.clock.Now(),
	}, nil
}

// OutputPath allocates a unique path in the output area for a file the
// client will see as displayName. Nothing is created.
func (s *Store) OutputPath(displayName string) string {
	return filepath.Join(s.dirs[Outputs], naming.Unique(displayName))
}

// NewOutputDir creates an empty directory in the output area.
func (s *Store) NewOutputDir() (id, path string, err error) {
	for range 3 {
		id = naming.FolderID()
		path = filepath.Join(s.dirs[Outputs], id)
		err = os.Mkdir(path, 0o755)
		if err == nil {
			return id, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	return "", "", fmt.Errorf("store: create output dir: %w", err)
}

// Resolve maps a client reference to an existing entry directly inside
// area. References with separators or dot segments are ErrOutsideArea.
func (s *Store) Resolve(area Area, ref string) (string, error) {
	dir := s.Dir(area)
	if dir == "" {
		return "", ErrUnknownArea
	}
	if ref == "" || ref == "." || ref == ".." || strings.ContainsAny(ref, `/\`) || strings.ContainsRune(ref, 0) {
		return "", fmt.Errorf("%w: %q", ErrOutsideArea, ref)
	}
	path := filepath.Join(dir, ref)
	if filepath.Dir(path) != dir {
		return "", fmt.Errorf("%w: %q", ErrOutsideArea, ref)
	}
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return "", err
	}
	return path, nil
}

// ScheduleDeletion removes path after delay. Scheduling a path again
// replaces its pending timer. Failures surface only as a CleanupResult.
func (s *Store) ScheduleDeletion(path string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[path]; ok {
		t.Stop()
	}
	var timer clockwork.Timer
	timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[path] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, path)
		s.mu.Unlock()
		s.RemoveNow(path, ReasonTimer)
	})
	s.timers[path] = timer
}

// Pending returns the number of armed deletion timers.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// RemoveNow deletes path, recursively for directories, and cancels any
// timer still pending for it. A missing path counts as success.
func (s *Store) RemoveNow(path string, reason Reason) CleanupResult {
	s.mu.Lock()
	if t, ok := s.timers[path]; ok {
		t.Stop()
		delete(s.timers, path)
	}
	s.mu.Unlock()

	res := CleanupResult{Path: path, Reason: reason}
	switch _, err := os.Lstat(path); {
	case errors.Is(err, os.ErrNotExist):
		res.Outcome = OutcomeAlreadyGone
	case err != nil:
		res.Outcome, res.Err = OutcomeFailed, err
	default:
		if err := os.RemoveAll(path); err != nil {
			res.Outcome, res.Err = OutcomeFailed, err
		} else {
			res.Outcome = OutcomeRemoved
		}
	}
	s.record(res)
	return res
}

// Close stops every pending timer. Files they would have removed are left
// for the next sweep.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, t := range s.timers {
		t.Stop()
		delete(s.timers, path)
	}
	s.closed = true
}

func (s *Store) record(res CleanupResult) {
	s.metrics.cleanups.WithLabelValues(string(res.Reason), string(res.Outcome)).Inc()
	fields := []zap.Field{
		zap.String("path", res.Path),
		zap.String("reason", string(res.Reason)),
		zap.String("outcome", string(res.Outcome)),
	}
	if res.Outcome == OutcomeFailed {
		s.logger.Warn("cleanup failed", append(fields, zap.Error(res.Err))...)
	} else {
		s.logger.Debug("cleanup", fields...)
	}
	if s.hook != nil {
		s.hook(res)
	}
}
