package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type ReconcilerConfig struct {
	Interval  time.Duration
	Workers   int
	BatchSize int
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Orders int
	Failed int
}

// Reconciler periodically projects orders whose cursor lags behind their
// event log and pushes their new items to stations. Orders are processed in
// parallel; the order lock keeps work on the same order serialized.
type Reconciler struct {
	lister    OrderLister
	projector *Projector
	router    *Router
	cfg       ReconcilerConfig
	logger    aqm.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(lister OrderLister, projector *Projector, router *Router, cfg ReconcilerConfig, logger aqm.Logger) *Reconciler {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		lister:    lister,
		projector: projector,
		router:    router,
		cfg:       cfg,
		logger:    logger,
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("reconciler already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})

	r.log().Info("starting reconciler", "interval", r.cfg.Interval.String(), "workers", r.cfg.Workers)
	go r.loop(runCtx, r.done)
	return nil
}

func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log().Error("reconcile pass failed", "error", err)
			}
		}
	}
}

// RunOnce reconciles one batch of orders. Per-order failures are logged and
// counted; only a failure to list orders is returned.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	ids, err := r.lister.ListLaggingOrders(ctx, r.cfg.BatchSize)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("cannot list orders to reconcile: %w", err)
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, id := range ids {
		g.Go(func() error {
			if err := r.reconcile(gctx, id); err != nil {
				failed.Add(1)
				r.log().Error("cannot reconcile order", "order_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return ReconcileReport{Orders: len(ids), Failed: int(failed.Load())}, nil
}

func (r *Reconciler) reconcile(ctx context.Context, orderID uuid.UUID) error {
	if _, err := r.projector.Project(ctx, orderID); err != nil {
		return fmt.Errorf("project: %w", err)
	}
	if _, err := r.router.SubmitUnsubmittedItems(ctx, orderID); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if _, err := r.router.RollupOrderStatusIfReady(ctx, orderID); err != nil {
		return fmt.Errorf("rollup: %w", err)
	}
	return nil
}

func (r *Reconciler) log() aqm.Logger {
	return r.logger.With("component", "Reconciler")
}
