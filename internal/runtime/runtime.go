package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/vinodismyname/mcpfunnel/config"
	"golang.org/x/sync/semaphore"
)

// ErrBusy reports that no request slot freed up within AcquireRequestTimeout.
var ErrBusy = errors.New("runtime: concurrent request limit reached")

// Limits bounds how many analysis runs execute at once, how many dataset
// workbooks stay open, how large a table may be and how long a run may take.
type Limits struct {
	MaxConcurrentRequests int
	MaxOpenWorkbooks      int

	MaxRowsPerTable int
	MaxPayloadBytes int

	OperationTimeout      time.Duration
	AcquireRequestTimeout time.Duration
}

// NewLimits fills unset values from the config defaults.
func NewLimits(maxConcurrentRequests, maxOpenWorkbooks int) Limits {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = config.DefaultMaxConcurrentRequests
	}
	if maxOpenWorkbooks <= 0 {
		maxOpenWorkbooks = config.DefaultMaxOpenWorkbooks
	}
	return Limits{
		MaxConcurrentRequests: maxConcurrentRequests,
		MaxOpenWorkbooks:      maxOpenWorkbooks,
		MaxRowsPerTable:       config.DefaultMaxRowsPerTable,
		MaxPayloadBytes:       config.DefaultMaxPayloadBytes,
		OperationTimeout:      config.DefaultOperationTimeout,
		AcquireRequestTimeout: config.DefaultAcquireRequestTimeout,
	}
}

// LimitsFromConfig derives Limits from the loaded configuration.
func LimitsFromConfig(c config.LimitsConfig) Limits {
	l := NewLimits(c.MaxConcurrentRequests, c.MaxOpenWorkbooks)
	if c.MaxRowsPerTable > 0 {
		l.MaxRowsPerTable = c.MaxRowsPerTable
	}
	if c.OperationTimeout > 0 {
		l.OperationTimeout = c.OperationTimeout
	}
	return l
}

// Usage counts the slots currently held.
type Usage struct {
	Requests  int64 `json:"requests"`
	Workbooks int64 `json:"workbooks"`
}

// Controller gates analysis runs and open dataset workbooks with weighted
// semaphores. It is shared by the MCP tool middleware, the dashboard and the
// workbook cache.
type Controller struct {
	limits    Limits
	requests  *semaphore.Weighted
	workbooks *semaphore.Weighted

	heldRequests  atomic.Int64
	heldWorkbooks atomic.Int64
}

// NewController constructs a Controller sized by limits.
func NewController(limits Limits) *Controller {
	return &Controller{
		limits:    limits,
		requests:  semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		workbooks: semaphore.NewWeighted(int64(limits.MaxOpenWorkbooks)),
	}
}

// AcquireRequest blocks until a request slot is free or ctx ends.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	if err := c.requests.Acquire(ctx, 1); err != nil {
		return err
	}
	c.heldRequests.Add(1)
	return nil
}

// ReleaseRequest returns a request slot.
func (c *Controller) ReleaseRequest() {
	c.heldRequests.Add(-1)
	c.requests.Release(1)
}

// AcquireWorkbook blocks until an open-workbook slot is free or ctx ends.
func (c *Controller) AcquireWorkbook(ctx context.Context) error {
	if err := c.workbooks.Acquire(ctx, 1); err != nil {
		return err
	}
	c.heldWorkbooks.Add(1)
	return nil
}

// ReleaseWorkbook returns an open-workbook slot.
func (c *Controller) ReleaseWorkbook() {
	c.heldWorkbooks.Add(-1)
	c.workbooks.Release(1)
}

// Limits returns the configured guardrails.
func (c *Controller) Limits() Limits { return c.limits }

// Usage returns the slots currently held.
func (c *Controller) Usage() Usage {
	return Usage{Requests: c.heldRequests.Load(), Workbooks: c.heldWorkbooks.Load()}
}

// admit waits at most AcquireRequestTimeout for a request slot. A caller
// whose own context ended gets that error; otherwise a full pool is ErrBusy.
func (c *Controller) admit(ctx context.Context) error {
	wait := ctx
	if c.limits.AcquireRequestTimeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, c.limits.AcquireRequestTimeout)
		defer cancel()
	}
	if err := c.AcquireRequest(wait); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	return nil
}

// bound applies OperationTimeout to ctx.
func (c *Controller) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.limits.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.limits.OperationTimeout)
}
