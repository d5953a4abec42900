package common

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// TimeSync keeps signed request timestamps aligned with the venue clock.
type TimeSync struct {
	serverTime func(context.Context) (int64, error)
	now        func() time.Time

	offsetMs atomic.Int64
	lastSync atomic.Int64 // unix ms of the last accepted sample, 0 before the first

	interval time.Duration
	maxRTT   time.Duration
	retry    backoff.Backoff
	log      *zap.Logger
}

// NewTimeSync builds a synchronizer around the venue's server time call. It
// resamples every 30 minutes and retries failures with backoff.
func NewTimeSync(serverTime func(context.Context) (int64, error), log *zap.Logger) *TimeSync {
	if log == nil {
		log = zap.NewNop()
	}
	return &TimeSync{
		serverTime: serverTime,
		now:        time.Now,
		interval:   30 * time.Minute,
		maxRTT:     2 * time.Second,
		retry:      backoff.Backoff{Min: 2 * time.Second, Max: time.Minute, Factor: 2, Jitter: true},
		log:        log.Named("timesync"),
	}
}

// Start syncs once and then keeps resyncing in the background until ctx ends.
func (ts *TimeSync) Start(ctx context.Context) {
	err := ts.Sync(ctx)
	if err != nil {
		ts.log.Warn("initial time sync failed", zap.Error(err))
	}
	go func() {
		wait := ts.interval
		if err != nil {
			wait = ts.retry.Duration()
		}
		for {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			if err := ts.Sync(ctx); err != nil {
				wait = ts.retry.Duration()
				ts.log.Warn("time sync failed", zap.Error(err), zap.Duration("retry_in", wait))
				continue
			}
			ts.retry.Reset()
			wait = ts.interval
		}
	}()
}

// Sync takes one sample of the server clock. The local reference is the
// midpoint of the round trip; samples slower than the RTT bound are dropped
// and leave the previous offset in place.
func (ts *TimeSync) Sync(ctx context.Context) error {
	before := ts.now()
	server, err := ts.serverTime(ctx)
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}
	after := ts.now()

	rtt := after.Sub(before)
	if rtt > ts.maxRTT {
		return fmt.Errorf("server time: round trip %s exceeds %s", rtt, ts.maxRTT)
	}
	local := before.Add(rtt / 2).UnixMilli()
	offset := server - local
	ts.offsetMs.Store(offset)
	ts.lastSync.Store(after.UnixMilli())

	ts.log.Debug("time synced", zap.Int64("offset_ms", offset), zap.Duration("rtt", rtt))
	return nil
}

// Synced reports whether at least one sample was accepted.
func (ts *TimeSync) Synced() bool { return ts.lastSync.Load() != 0 }

// Now returns the venue clock estimate in unix milliseconds.
func (ts *TimeSync) Now() int64 {
	return ts.now().UnixMilli() + ts.offsetMs.Load()
}

// Offset is server minus local time in milliseconds.
func (ts *TimeSync) Offset() int64 { return ts.offsetMs.Load() }
