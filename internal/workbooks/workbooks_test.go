package workbooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGate implements Gate with counters.
type fakeGate struct {
	acquireErr error
	onAcquire  func()
	acquires   atomic.Int64
	releases   atomic.Int64
}

func (g *fakeGate) AcquireWorkbook(ctx context.Context) error {
	if g.acquires.Add(1) == 1 && g.onAcquire != nil {
		g.onAcquire()
	}
	return g.acquireErr
}
func (g *fakeGate) ReleaseWorkbook() { g.releases.Add(1) }

func saveWorkbook(t *testing.T, dir, name string) string {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]string{"user_id"}))
	path := filepath.Join(dir, name)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func header(t *testing.T, c *Cache, path string) string {
	t.Helper()
	var v string
	require.NoError(t, c.View(context.Background(), path, func(f *excelize.File) error {
		var err error
		v, err = f.GetCellValue("Sheet1", "A1")
		return err
	}))
	return v
}

func TestView_ReusesUntilModified(t *testing.T) {
	gate := &fakeGate{}
	c := NewCache(time.Minute, time.Minute, gate, nil, time.Now)
	defer func() { require.NoError(t, c.Close(context.Background())) }()

	path := saveWorkbook(t, t.TempDir(), "data.xlsx")
	require.Equal(t, "user_id", header(t, c, path))
	require.Equal(t, "user_id", header(t, c, path))
	require.Equal(t, Stats{Open: 1, Hits: 1, Misses: 1}, c.Stats())
	require.Equal(t, int64(1), gate.acquires.Load())

	// Bump mtime; the next view must reopen.
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	header(t, c, path)
	require.Equal(t, Stats{Open: 1, Hits: 1, Misses: 2, Evictions: 1}, c.Stats())
	require.Equal(t, int64(1), gate.releases.Load())
}

func TestSweep_ClosesIdle(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Now().UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()) }

	gate := &fakeGate{}
	c := NewCache(50*time.Millisecond, time.Minute, gate, nil, clock)
	path := saveWorkbook(t, t.TempDir(), "data.xlsx")
	header(t, c, path)

	require.Equal(t, 0, c.Sweep())
	now.Add(int64(200 * time.Millisecond))
	require.Equal(t, 1, c.Sweep())
	require.Equal(t, 0, c.Stats().Open)
	require.Equal(t, int64(1), gate.releases.Load())
}

func TestStartClose_StopsSweeper(t *testing.T) {
	c := NewCache(time.Minute, time.Millisecond, nil, nil, time.Now)
	c.Start()
	header(t, c, saveWorkbook(t, t.TempDir(), "data.xlsx"))
	require.NoError(t, c.Close(context.Background()))
	require.Equal(t, 0, c.Stats().Open)
	// A second Close must not panic on the closed stop channel.
	require.NoError(t, c.Close(context.Background()))
}

func TestView_Concurrent(t *testing.T) {
	gate := &fakeGate{}
	c := NewCache(time.Minute, time.Minute, gate, nil, time.Now)
	defer func() { require.NoError(t, c.Close(context.Background())) }()
	path := saveWorkbook(t, t.TempDir(), "data.xlsx")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.View(context.Background(), path, func(f *excelize.File) error {
				_, err := f.GetCellValue("Sheet1", "A1")
				return err
			})
		}()
	}
	wg.Wait()

	s := c.Stats()
	require.Equal(t, 1, s.Open)
	require.Equal(t, int64(8), s.Hits+s.Misses)
	require.Equal(t, gate.acquires.Load()-1, gate.releases.Load())
}

func TestView_ClosesDisplacedRevision(t *testing.T) {
	gate := &fakeGate{}
	c := NewCache(time.Minute, time.Minute, gate, nil, time.Now)
	defer func() { require.NoError(t, c.Close(context.Background())) }()
	path := saveWorkbook(t, t.TempDir(), "data.xlsx")

	// Another caller stores an older revision while this one is opening.
	gate.onAcquire = func() {
		stale := &entry{file: excelize.NewFile(), modTime: time.Unix(1, 0)}
		c.mu.Lock()
		c.entries[path] = stale
		c.mu.Unlock()
	}
	require.Equal(t, "user_id", header(t, c, path))

	require.Equal(t, Stats{Open: 1, Misses: 1, Evictions: 1}, c.Stats())
	require.Equal(t, int64(1), gate.releases.Load())
	require.Equal(t, "user_id", header(t, c, path))
}

func TestView_UnsupportedFormat(t *testing.T) {
	gate := &fakeGate{}
	c := NewCache(time.Second, time.Second, gate, nil, time.Now)

	err := c.View(context.Background(), "visits.csv", func(*excelize.File) error { return nil })
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	require.Equal(t, int64(0), gate.acquires.Load())
}

func TestView_GateBusy(t *testing.T) {
	gate := &fakeGate{acquireErr: context.DeadlineExceeded}
	c := NewCache(time.Second, time.Second, gate, nil, time.Now)

	path := saveWorkbook(t, t.TempDir(), "data.xlsx")
	err := c.View(context.Background(), path, func(*excelize.File) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int64(1), gate.acquires.Load())
	require.Equal(t, int64(0), gate.releases.Load())
}

type denyValidator struct{}

func (denyValidator) ValidateOpenPath(string) (string, error) { return "", fmt.Errorf("denied") }

func TestView_ValidatorDenied(t *testing.T) {
	gate := &fakeGate{}
	c := NewCache(time.Second, time.Second, gate, denyValidator{}, time.Now)

	err := c.View(context.Background(), "ok.xlsx", func(*excelize.File) error { return nil })
	require.Error(t, err)
	require.Equal(t, int64(0), gate.acquires.Load())
}
