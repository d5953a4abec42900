package reconciliation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Target is one symbol that can rebuild itself from venue history.
type Target interface {
	Symbol() string
	Reconcile(ctx context.Context) error
}

// Report summarizes one reconciliation pass.
type Report struct {
	Timestamp time.Time
	Symbols   int
	Conflicts []*ReconciliationConflict
	Err       error // fetch failures, aggregated
}

// Service reconciles every target periodically.
type Service struct {
	targets  []Target
	interval time.Duration
	onReport func(Report)
	log      *zap.Logger
}

// NewService creates the periodic reconciler. onReport may be nil.
func NewService(targets []Target, interval time.Duration, onReport func(Report), log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{targets: targets, interval: interval, onReport: onReport, log: log.Named("reconcile")}
}

// RunOnce reconciles every target. One symbol's failure does not stop the others.
func (s *Service) RunOnce(ctx context.Context) Report {
	rep := Report{Timestamp: time.Now(), Symbols: len(s.targets)}
	for _, t := range s.targets {
		err := t.Reconcile(ctx)
		var conflict *ReconciliationConflict
		switch {
		case err == nil:
		case errors.As(err, &conflict):
			rep.Conflicts = append(rep.Conflicts, conflict)
			s.log.Warn("trade dropped", zap.String("symbol", t.Symbol()), zap.Error(err))
		default:
			rep.Err = multierr.Append(rep.Err, err)
		}
	}
	if rep.Err != nil {
		s.log.Warn("reconciliation incomplete", zap.Error(rep.Err))
	}
	if s.onReport != nil {
		s.onReport(rep)
	}
	return rep
}

// Start runs RunOnce every interval until ctx ends.
func (s *Service) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.log.Info("reconciliation started", zap.Duration("interval", s.interval), zap.Int("symbols", len(s.targets)))
}
