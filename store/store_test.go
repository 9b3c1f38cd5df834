package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu      sync.Mutex
	results []CleanupResult
}

func (r *recorder) add(res CleanupResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) all() []CleanupResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CleanupResult(nil), r.results...)
}

func newStore(t *testing.T, opts ...Option) (*Store, *clockwork.FakeClock, *recorder) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Now())
	rec := &recorder{}
	root := t.TempDir()
	s, err := New(filepath.Join(root, "uploads"), filepath.Join(root, "processed"),
		append([]Option{WithClock(clock), WithCleanupHook(rec.add)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, clock, rec
}

func TestPersistUsesUniqueNames(t *testing.T) {
	s, _, _ := newStore(t)
	a, err := s.Persist(strings.NewReader("%PDF-1.7"), Uploads, "Quarterly Report.PDF")
	require.NoError(t, err)
	b, err := s.Persist(strings.NewReader("%PDF-1.7"), Uploads, "Quarterly Report.PDF")
	require.NoError(t, err)

	assert.NotEqual(t, a.StorageName, b.StorageName)
	assert.True(t, strings.HasPrefix(a.StorageName, "Quarterly_Report_"))
	assert.True(t, strings.HasSuffix(a.StorageName, ".pdf"))
	assert.Equal(t, s.Dir(Uploads), filepath.Dir(a.Path))
	assert.Equal(t, int64(8), a.Size)
	assert.Equal(t, "Quarterly Report.PDF", a.OriginalName)

	_, err = s.Persist(strings.NewReader(""), Uploads, "empty.pdf")
	assert.ErrorIs(t, err, ErrEmptyUpload)
	entries, _ := os.ReadDir(s.Dir(Uploads))
	assert.Len(t, entries, 2)
}

func TestScheduledDeletionFiresOnVirtualTime(t *testing.T) {
	s, clock, rec := newStore(t)
	a, err := s.Persist(strings.NewReader("data"), Uploads, "a.pdf")
	require.NoError(t, err)

	s.ScheduleDeletion(a.Path, 300*time.Second)
	assert.Equal(t, 1, s.Pending())

	clock.Advance(299 * time.Second)
	assert.FileExists(t, a.Path)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, time.Millisecond)
	assert.NoFileExists(t, a.Path)
	assert.Equal(t, CleanupResult{Path: a.Path, Reason: ReasonTimer, Outcome: OutcomeRemoved}, rec.all()[0])
	assert.Equal(t, 0, s.Pending())
}

func TestScheduledDeletionOfMissingPathIsAlreadyGone(t *testing.T) {
	s, clock, rec := newStore(t)
	path := filepath.Join(s.Dir(Outputs), "gone.pdf")
	s.ScheduleDeletion(path, time.Second)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, OutcomeAlreadyGone, rec.all()[0].Outcome)
	assert.True(t, rec.all()[0].OK())
}

func TestRemoveNowCancelsTimerAndRemovesDirectories(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, clock, rec := newStore(t, WithRegisterer(reg))
	_, dir, err := s.NewOutputDir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page_1.pdf"), []byte("x"), 0o644))

	s.ScheduleDeletion(dir, time.Minute)
	res := s.RemoveNow(dir, ReasonPackaged)
	assert.Equal(t, OutcomeRemoved, res.Outcome)
	assert.NoDirExists(t, dir)
	assert.Equal(t, 0, s.Pending())

	clock.Advance(time.Hour)
	assert.Len(t, rec.all(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.cleanups.WithLabelValues("packaged", "removed")))
}

func TestRescheduleReplacesTimer(t *testing.T) {
	s, clock, rec := newStore(t)
	a, err := s.Persist(strings.NewReader("data"), Outputs, "a.zip")
	require.NoError(t, err)
	s.ScheduleDeletion(a.Path, time.Minute)
	s.ScheduleDeletion(a.Path, 10*time.Minute)
	assert.Equal(t, 1, s.Pending())

	clock.Advance(2 * time.Minute)
	assert.FileExists(t, a.Path)
	clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, time.Millisecond)
}

func TestResolve(t *testing.T) {
	s, _, _ := newStore(t)
	a, err := s.Persist(strings.NewReader("data"), Outputs, "merged.pdf")
	require.NoError(t, err)

	got, err := s.Resolve(Outputs, a.StorageName)
	require.NoError(t, err)
	assert.Equal(t, a.Path, got)

	_, err = s.Resolve(Uploads, a.StorageName)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, ref := range []string{"", ".", "..", "../uploads", "a/b", `..\x`, "x\x00"} {
		_, err := s.Resolve(Outputs, ref)
		assert.ErrorIs(t, err, ErrOutsideArea, ref)
	}
	_, err = s.Resolve(Area(7), "x")
	assert.ErrorIs(t, err, ErrUnknownArea)
}

func TestCleanupLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s, _, _ := newStore(t, WithLogger(zap.New(core)))
	s.RemoveNow(filepath.Join(s.Dir(Uploads), "missing"), ReasonSweep)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	assert.Equal(t, "already_gone", entry.ContextMap()["outcome"])
	assert.Equal(t, "sweep", entry.ContextMap()["reason"])
}

func TestCloseDisarmsTimers(t *testing.T) {
	s, clock, rec := newStore(t)
	a, err := s.Persist(strings.NewReader("data"), Uploads, "a.pdf")
	require.NoError(t, err)
	s.ScheduleDeletion(a.Path, time.Second)
	s.Close()
	s.ScheduleDeletion(a.Path, time.Second)
	clock.Advance(time.Minute)
	assert.Empty(t, rec.all())
	assert.FileExists(t, a.Path)
}

func TestSweepOnceRemovesOnlyExpiredEntries(t *testing.T) {
	s, clock, _ := newStore(t)
	old, err := s.Persist(strings.NewReader("old"), Uploads, "old.pdf")
	require.NoError(t, err)
	fresh, err := s.Persist(strings.NewReader("new"), Uploads, "new.pdf")
	require.NoError(t, err)
	_, oldDir, err := s.NewOutputDir()
	require.NoError(t, err)

	past := clock.Now().Add(-31 * time.Minute)
	require.NoError(t, os.Chtimes(old.Path, past, past))
	require.NoError(t, os.Chtimes(oldDir, past, past))

	sw := NewSweeper(s, 0, 0, nil)
	results := sw.SweepOnce()
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, ReasonSweep, r.Reason)
		assert.Equal(t, OutcomeRemoved, r.Outcome)
	}
	assert.NoFileExists(t, old.Path)
	assert.NoDirExists(t, oldDir)
	assert.FileExists(t, fresh.Path)
}

func TestSweeperRunsOnInterval(t *testing.T) {
	s, clock, rec := newStore(t)
	a, err := s.Persist(strings.NewReader("data"), Outputs, "a.pdf")
	require.NoError(t, err)

	sw := NewSweeper(s, 5*time.Minute, 30*time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sw.Start(ctx)
	sw.Start(ctx)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(5 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.FileExists(t, a.Path)

	past := clock.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(a.Path, past, past))
	clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, time.Millisecond)
	assert.NoFileExists(t, a.Path)

	sw.Stop()
	sw.Stop()
}
