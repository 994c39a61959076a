package syncer

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/melisync/melisync/internal/errors"
	"github.com/melisync/melisync/internal/logging"
	"github.com/melisync/melisync/internal/marketplace"
	"github.com/melisync/melisync/internal/metrics"
	"github.com/melisync/melisync/internal/models"
	"golang.org/x/sync/singleflight"
)

// ResultHook observes each completed cycle.
type ResultHook func(ctx context.Context, results []models.SyncResult)

// CoordinatorConfig wires a Coordinator.
type CoordinatorConfig struct {
	Accounts   models.AccountList
	Rotator    *Rotator
	Aggregator *Aggregator
	Writer     *LedgerWriter
	State      *RunState
	// Location defines the calendar day being synced.
	Location *time.Location
	// IdleCloser drops pooled connections at the end of every cycle.
	IdleCloser interface{ CloseIdleConnections() }
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
}

// Coordinator runs sync cycles over every account in a fixed order.
// Concurrent RunCycle calls share a single in-flight cycle.
type Coordinator struct {
	accounts   models.AccountList
	rotator    *Rotator
	aggregator *Aggregator
	writer     *LedgerWriter
	state      *RunState
	location   *time.Location
	idleCloser interface{ CloseIdleConnections() }
	logger     *logging.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	group singleflight.Group

	hookMu sync.RWMutex
	hooks  []ResultHook
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	loc := cfg.Location
	if loc == nil {
		loc = time.FixedZone("UTC-3", -3*60*60)
	}
	state := cfg.State
	if state == nil {
		state = NewRunState()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Coordinator{
		accounts:   cfg.Accounts,
		rotator:    cfg.Rotator,
		aggregator: cfg.Aggregator,
		writer:     cfg.Writer,
		state:      state,
		location:   loc,
		idleCloser: cfg.IdleCloser,
		logger:     logger,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
}

// OnCycle registers a hook invoked after each completed cycle.
func (c *Coordinator) OnCycle(hook ResultHook) {
	c.hookMu.Lock()
	c.hooks = append(c.hooks, hook)
	c.hookMu.Unlock()
}

// State returns the run state read API.
func (c *Coordinator) State() *RunState {
	return c.state
}

// Snapshot returns a copy of the last completed cycle.
func (c *Coordinator) Snapshot() models.RunSnapshot {
	return c.state.Snapshot()
}

// Accounts returns the ordered account list.
func (c *Coordinator) Accounts() models.AccountList {
	return c.accounts
}

// RunCycle runs one cycle, or joins the one already in flight and returns
// its results. The cycle itself runs under the context of the caller that
// started it; a joining caller whose ctx ends stops waiting without
// affecting the cycle.
func (c *Coordinator) RunCycle(ctx context.Context) ([]models.SyncResult, error) {
	ch := c.group.DoChan("cycle", func() (val interface{}, err error) {
		// singleflight re-panics on its own goroutine, out of every caller's reach.
		defer func() {
			if r := recover(); r != nil {
				c.logger.ErrorWithContext(ctx, "sync cycle panicked", "panic", fmt.Sprint(r))
				if c.metrics != nil {
					c.metrics.RecordError("cycle_panic", "coordinator")
				}
				val, err = nil, &errors.UnexpectedError{Account: "*", Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		return c.runCycle(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		results := res.Val.([]models.SyncResult)
		out := make([]models.SyncResult, len(results))
		copy(out, results)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) runCycle(ctx context.Context) ([]models.SyncResult, error) {
	ctx, cycleID := logging.EnsureCorrelationID(ctx)
	start := c.now()
	date, from, to := marketplace.DayWindow(start, c.location)
	window := Window{Date: date, From: from, To: to}

	c.logger.InfoWithContext(ctx, "sync cycle starting", "date", date, "accounts", len(c.accounts))

	results := make([]models.SyncResult, 0, len(c.accounts))
	for _, acc := range c.accounts {
		if err := ctx.Err(); err != nil {
			c.abandon(ctx, start, len(results))
			return nil, err
		}
		results = append(results, c.syncAccount(ctx, acc, window))
	}
	if err := ctx.Err(); err != nil {
		c.abandon(ctx, start, len(results))
		return nil, err
	}

	if c.idleCloser != nil {
		c.idleCloser.CloseIdleConnections()
	}

	finished := c.now()
	c.state.replace(finished.In(c.location), results)

	if c.metrics != nil {
		c.metrics.RecordCycle("completed", finished.Sub(start), finished)
	}
	c.logger.InfoWithContext(ctx, "sync cycle complete",
		"date", date,
		"accounts", len(results),
		"duration_ms", finished.Sub(start).Milliseconds(),
		"cycle_id", cycleID,
	)

	c.hookMu.RLock()
	hooks := append([]ResultHook(nil), c.hooks...)
	c.hookMu.RUnlock()
	for _, hook := range hooks {
		c.runHook(ctx, hook, results)
	}

	return results, nil
}

// runHook isolates a hook so its panic cannot fail a completed cycle.
func (c *Coordinator) runHook(ctx context.Context, hook ResultHook, results []models.SyncResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorWithContext(ctx, "cycle hook panicked", "panic", fmt.Sprint(r))
			if c.metrics != nil {
				c.metrics.RecordError("hook_panic", "coordinator")
			}
		}
	}()
	hook(ctx, results)
}

func (c *Coordinator) abandon(ctx context.Context, start time.Time, done int) {
	if c.idleCloser != nil {
		c.idleCloser.CloseIdleConnections()
	}
	if c.metrics != nil {
		c.metrics.RecordCycle("cancelled", c.now().Sub(start), c.now())
	}
	c.logger.WarnWithContext(ctx, "sync cycle abandoned", "accounts_done", done, "total", len(c.accounts))
}

// syncAccount runs LOAD_TOKEN -> ROTATE -> FETCH -> DECIDE for one account.
// Every failure, including a panic, becomes a terminal status.
func (c *Coordinator) syncAccount(ctx context.Context, acc *models.Account, w Window) (result models.SyncResult) {
	result = models.SyncResult{Account: acc.Name, Empresa: acc.Empresa, Date: w.Date}

	defer func() {
		if r := recover(); r != nil {
			err := &errors.UnexpectedError{Account: acc.Name, Err: fmt.Errorf("panic: %v", r)}
			result = models.SyncResult{Account: acc.Name, Empresa: acc.Empresa, Date: w.Date, Status: models.StatusError, Error: err.Error()}
		}
		c.report(ctx, acc, result)
	}()

	grant, err := c.rotator.Rotate(ctx, acc)
	if err != nil {
		result.Status = models.StatusTokenError
		result.Error = err.Error()
		return result
	}

	agg, err := c.aggregator.Aggregate(ctx, acc, grant.AccessToken, w)
	if err != nil {
		result.Status = models.StatusError
		result.Error = classify(acc.Name, err).Error()
		return result
	}
	if agg.Truncated {
		c.logger.WarnWithContext(ctx, "order pagination hit offset cap, total is incomplete",
			"account", acc.Name, "pages", agg.Pages)
	}

	result.Value = agg.Total.InexactFloat64()
	result.OrderCount = agg.OrderCount
	result.FraudSkipped = agg.FraudSkipped

	written, err := c.writer.Commit(ctx, acc.Empresa, w.Date, agg.Total)
	switch {
	case err != nil:
		result.Status = models.StatusUpsertError
		c.logger.ErrorWithContext(ctx, "ledger write failed", "account", acc.Name, "empresa", acc.Empresa, "error", err.Error())
	case written:
		result.Status = models.StatusSynced
	default:
		result.Status = models.StatusNoSales
	}
	return result
}

// classify keeps typed sync errors and wraps anything else as unexpected.
func classify(account string, err error) error {
	var (
		tokenErr  *errors.TokenError
		fetchErr  *errors.FetchError
		upsertErr *errors.UpsertError
	)
	if stderrors.As(err, &tokenErr) || stderrors.As(err, &fetchErr) || stderrors.As(err, &upsertErr) {
		return err
	}
	return &errors.UnexpectedError{Account: account, Err: err}
}

func (c *Coordinator) report(ctx context.Context, acc *models.Account, r models.SyncResult) {
	if c.metrics != nil {
		c.metrics.RecordAccountResult(r.Empresa, string(r.Status), r.OrderCount, r.FraudSkipped, r.Value, r.Status.HasTotals())
	}

	fields := []interface{}{"account", acc.Name, "empresa", r.Empresa, "status", string(r.Status)}
	if r.Status.HasTotals() {
		fields = append(fields, "valor", r.Value, "orders", r.OrderCount, "fraud_skipped", r.FraudSkipped)
		c.logger.InfoWithContext(ctx, "account synced", fields...)
		return
	}
	fields = append(fields, "error", r.Error)
	c.logger.ErrorWithContext(ctx, "account sync failed", fields...)
}
