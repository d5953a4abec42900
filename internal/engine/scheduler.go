package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"consensus-trader/internal/order"
	"consensus-trader/internal/reconciliation"
)

// Scheduling modes.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// Scheduler owns the actors and ticks them every interval.
type Scheduler struct {
	actors   []*SymbolActor
	bySymbol map[string]*SymbolActor
	interval time.Duration
	mode     string
	meta     SystemStatus
	log      *zap.Logger

	startOnce sync.Once
}

var _ Service = (*Scheduler)(nil)

// NewScheduler builds a scheduler. An unknown mode falls back to sequential.
func NewScheduler(actors []*SymbolActor, interval time.Duration, mode string, meta SystemStatus, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if mode != ModeParallel {
		mode = ModeSequential
	}
	s := &Scheduler{
		actors:   actors,
		bySymbol: make(map[string]*SymbolActor, len(actors)),
		interval: interval,
		mode:     mode,
		meta:     meta,
		log:      log.Named("scheduler"),
	}
	for _, a := range actors {
		s.bySymbol[a.Symbol()] = a
		s.meta.Symbols = append(s.meta.Symbols, a.Symbol())
	}
	s.meta.Mode = mode
	return s
}

// Start launches the actor loops. Run calls it; it is exposed for callers
// that drive ticks themselves.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		for _, a := range s.actors {
			go a.Run(ctx)
		}
	})
}

// Run ticks every actor each interval until ctx ends. The first round runs
// immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	s.log.Info("scheduler started",
		zap.String("mode", s.mode),
		zap.Duration("interval", s.interval),
		zap.Strings("symbols", s.meta.Symbols))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.TickAll(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("tick round finished with errors", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// TickAll runs one round. Failures are collected per symbol; none stops the others.
func (s *Scheduler) TickAll(ctx context.Context) error {
	if s.mode == ModeSequential {
		var errs error
		for _, a := range s.actors {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			errs = multierr.Append(errs, s.tickOne(ctx, a))
		}
		return errs
	}

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for _, a := range s.actors {
		a := a
		g.Go(func() error {
			if err := s.tickOne(ctx, a); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (s *Scheduler) tickOne(ctx context.Context, a *SymbolActor) error {
	if err := a.Tick(ctx); err != nil {
		return fmt.Errorf("tick %s: %w", a.Symbol(), err)
	}
	return nil
}

// HandleReport routes an owned execution report to its symbol.
func (s *Scheduler) HandleReport(r order.ExecutionReport) {
	a, ok := s.bySymbol[r.Symbol]
	if !ok {
		s.log.Debug("execution report for untracked symbol", zap.String("symbol", r.Symbol))
		return
	}
	a.OnExecution(r.Order())
}

// RequestReconcile marks every symbol for a rebuild on its next tick, e.g.
// after the user stream reconnected and reports may have been missed.
func (s *Scheduler) RequestReconcile() {
	for _, a := range s.actors {
		a.RequestReconcile()
	}
}

// Targets exposes the actors to the periodic reconciler.
func (s *Scheduler) Targets() []reconciliation.Target {
	out := make([]reconciliation.Target, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a)
	}
	return out
}

// Actor returns the actor of symbol.
func (s *Scheduler) Actor(symbol string) (*SymbolActor, bool) {
	a, ok := s.bySymbol[symbol]
	return a, ok
}

// Symbols lists the scheduled symbols in configuration order.
func (s *Scheduler) Symbols() []string { return append([]string(nil), s.meta.Symbols...) }

// Snapshot returns the latest state of symbol.
func (s *Scheduler) Snapshot(symbol string) (Snapshot, bool) {
	a, ok := s.bySymbol[symbol]
	if !ok {
		return Snapshot{}, false
	}
	return a.Snapshot(), true
}

// Snapshots returns every symbol's state sorted by symbol.
func (s *Scheduler) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Status reports the runtime status.
func (s *Scheduler) Status(context.Context) SystemStatus {
	st := s.meta
	st.Symbols = s.Symbols()
	st.ServerTime = time.Now()
	for _, a := range s.actors {
		if a.Snapshot().Trade != nil {
			st.OpenTrades++
		}
	}
	return st
}
