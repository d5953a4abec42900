package order

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"consensus-trader/pkg/exchanges/common"
)

// ExecutionResult is the outcome of one asynchronous action.
type ExecutionResult struct {
	Symbol    string
	Action    Action
	Order     common.Order
	Canceled  *common.Order // the replaced order of a cancel-replace
	Err       error
	Latency   time.Duration
	Timestamp time.Time
}

// AsyncExecutor runs actions off the caller's goroutine on a bounded worker
// pool and reports each result through the callback given to ExecuteAsync.
type AsyncExecutor struct {
	executor   *Executor
	workerPool chan struct{}
	wg         sync.WaitGroup
	closed     bool
	mu         sync.Mutex
	log        *zap.Logger
}

// NewAsyncExecutor creates an async executor with the given worker count.
func NewAsyncExecutor(executor *Executor, workers int, log *zap.Logger) *AsyncExecutor {
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AsyncExecutor{
		executor:   executor,
		workerPool: make(chan struct{}, workers),
		log:        log.Named("async_executor"),
	}
}

// ExecuteAsync applies a in the background and calls done with the result.
// It returns false when the executor is closed; done is then never called.
func (a *AsyncExecutor) ExecuteAsync(ctx context.Context, symbol string, act Action, done func(ExecutionResult)) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.log.Warn("executor closed, action dropped", zap.String("symbol", symbol), zap.String("action", string(act.Kind)))
		return false
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		select {
		case a.workerPool <- struct{}{}:
		case <-ctx.Done():
			done(ExecutionResult{Symbol: symbol, Action: act, Err: ctx.Err(), Timestamp: time.Now()})
			return
		}
		defer func() { <-a.workerPool }()

		start := time.Now()
		out, err := a.executor.Apply(ctx, symbol, act)
		done(ExecutionResult{
			Symbol:    symbol,
			Action:    act,
			Order:     out.Order,
			Canceled:  out.Canceled,
			Err:       err,
			Latency:   time.Since(start),
			Timestamp: time.Now(),
		})
	}()
	return true
}

// Pending returns the number of actions holding a worker slot.
func (a *AsyncExecutor) Pending() int {
	return len(a.workerPool)
}

// Close rejects new work and waits for running actions to finish.
func (a *AsyncExecutor) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.wg.Wait()
}
