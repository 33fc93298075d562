// Package workbooks caches parsed .xlsx dataset sources so the dashboard and
// repeated tool calls over the same workbook skip re-parsing until the file
// changes on disk or sits idle past its TTL.
package workbooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/mcpfunnel/config"
)

// Gate bounds how many workbooks may be open at once (runtime.Controller).
type Gate interface {
	AcquireWorkbook(ctx context.Context) error
	ReleaseWorkbook()
}

// PathValidator returns a canonical absolute path when path may be opened.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// ErrUnsupportedFormat indicates a path that is not an Excel workbook.
var ErrUnsupportedFormat = errors.New("workbooks: unsupported format")

// Stats counts cache activity since construction.
type Stats struct {
	Open      int   `json:"open"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

type entry struct {
	mu       sync.RWMutex // readers hold RLock while iterating rows
	file     *excelize.File
	modTime  time.Time
	lastUsed atomic.Int64 // unix nanos
}

func (e *entry) idle(now time.Time, ttl time.Duration) bool {
	return now.Sub(time.Unix(0, e.lastUsed.Load())) > ttl
}

// Cache holds one open workbook per canonical path.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	ttl        time.Duration
	sweepEvery time.Duration
	clock      func() time.Time
	gate       Gate
	validator  PathValidator

	hits, misses, evictions atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCache constructs a cache. ttl or sweepEvery <= 0 use the config
// defaults; gate and validator may be nil; clock defaults to time.Now.
func NewCache(ttl, sweepEvery time.Duration, gate Gate, validator PathValidator, clock func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = config.DefaultWorkbookIdleTTL
	}
	if sweepEvery <= 0 {
		sweepEvery = config.DefaultWorkbookCleanupPeriod
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		entries:    map[string]*entry{},
		ttl:        ttl,
		sweepEvery: sweepEvery,
		clock:      clock,
		gate:       gate,
		validator:  validator,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the idle sweeper. Close stops it.
func (c *Cache) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(c.sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-t.C:
				c.Sweep()
			}
		}
	}()
}

// Close stops the sweeper and closes every cached workbook.
func (c *Cache) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	all := c.entries
	c.entries = map[string]*entry{}
	c.mu.Unlock()

	var errs []error
	for _, e := range all {
		errs = append(errs, c.closeEntry(e))
	}
	return errors.Join(errs...)
}

// View runs fn with shared access to the workbook at path. The workbook is
// opened on first use and reopened when its modification time changed.
func (c *Cache) View(ctx context.Context, path string, fn func(*excelize.File) error) error {
	e, err := c.lookup(ctx, path)
	if err != nil {
		return err
	}
	defer e.mu.RUnlock()
	return fn(e.file)
}

// lookup returns the entry for path with its read lock held.
func (c *Cache) lookup(ctx context.Context, path string) (*entry, error) {
	if !IsWorkbookPath(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	canonical, err := c.canonical(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if e, ok := c.entries[canonical]; ok {
		if e.modTime.Equal(info.ModTime()) {
			e.lastUsed.Store(c.clock().UnixNano())
			e.mu.RLock()
			c.mu.Unlock()
			c.hits.Add(1)
			return e, nil
		}
		delete(c.entries, canonical)
		c.mu.Unlock()
		zerolog.Ctx(ctx).Debug().Str("path", canonical).Msg("workbook changed on disk; reopening")
		_ = c.closeEntry(e)
	} else {
		c.mu.Unlock()
	}

	c.misses.Add(1)
	if c.gate != nil {
		if err := c.gate.AcquireWorkbook(ctx); err != nil {
			return nil, err
		}
	}
	f, err := excelize.OpenFile(canonical)
	if err != nil {
		c.release()
		return nil, err
	}
	fresh := &entry{file: f, modTime: info.ModTime()}
	fresh.lastUsed.Store(c.clock().UnixNano())

	c.mu.Lock()
	other, ok := c.entries[canonical]
	if ok && other.modTime.Equal(fresh.modTime) {
		// A concurrent caller opened the same revision first.
		other.mu.RLock()
		c.mu.Unlock()
		_ = f.Close()
		c.release()
		return other, nil
	}
	c.entries[canonical] = fresh
	fresh.mu.RLock()
	c.mu.Unlock()
	if ok {
		// Displaced a concurrently opened entry for another revision.
		_ = c.closeEntry(other)
	}
	zerolog.Ctx(ctx).Debug().Str("path", canonical).Msg("workbook opened")
	return fresh, nil
}

func (c *Cache) canonical(path string) (string, error) {
	if c.validator != nil {
		return c.validator.ValidateOpenPath(path)
	}
	return filepath.Abs(path)
}

// Sweep closes workbooks idle longer than the TTL and returns how many.
func (c *Cache) Sweep() int {
	now := c.clock()
	var idle []*entry

	c.mu.Lock()
	for p, e := range c.entries {
		if e.idle(now, c.ttl) {
			idle = append(idle, e)
			delete(c.entries, p)
		}
	}
	c.mu.Unlock()

	for _, e := range idle {
		_ = c.closeEntry(e)
	}
	return len(idle)
}

// Stats returns the current cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	open := len(c.entries)
	c.mu.Unlock()
	return Stats{Open: open, Hits: c.hits.Load(), Misses: c.misses.Load(), Evictions: c.evictions.Load()}
}

// closeEntry waits for in-flight readers, then closes the file and frees its
// gate slot. The entry must already be unlinked from the map.
func (c *Cache) closeEntry(e *entry) error {
	e.mu.Lock()
	err := e.file.Close()
	e.mu.Unlock()
	c.evictions.Add(1)
	c.release()
	return err
}

func (c *Cache) release() {
	if c.gate != nil {
		c.gate.ReleaseWorkbook()
	}
}

// IsWorkbookPath reports whether path has a supported Excel extension.
func IsWorkbookPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}
