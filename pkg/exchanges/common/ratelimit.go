package common

import (
	"container/list"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Class groups queued requests. FIFO order holds within a class only.
type Class string

const (
	ClassData  Class = "data"
	ClassOrder Class = "order"
)

// Window is one rolling budget. An empty Class applies the window to every request.
type Window struct {
	Name     string
	Limit    int
	Interval time.Duration
	Class    Class
}

func (w Window) appliesTo(c Class) bool { return w.Class == "" || w.Class == c }

// Admission describes one admitted request.
type Admission struct {
	Class    Class
	Weight   int
	Enqueued time.Time
	Admitted time.Time
}

// WindowUsage is a point-in-time view of a window.
type WindowUsage struct {
	Name  string
	Used  int
	Limit int
}

type entry struct {
	at     time.Time
	weight int
}

type window struct {
	Window
	entries []entry
	used    int
}

// prune drops entries that left the rolling interval.
func (w *window) prune(now time.Time) {
	i := 0
	for ; i < len(w.entries); i++ {
		if now.Sub(w.entries[i].at) < w.Interval {
			break
		}
		w.used -= w.entries[i].weight
	}
	w.entries = w.entries[i:]
}

type waiter struct {
	class    Class
	weight   int
	enqueued time.Time
	ready    chan struct{}
	admitted bool
}

// Queue admits requests only while every applicable rolling window has headroom
// and the in-flight bound is not reached. Capacity held for in-flight requests
// is returned through the release func handed to the caller.
type Queue struct {
	mu          sync.Mutex
	windows     []*window
	maxInFlight int
	inFlight    int
	waiting     map[Class]*list.List
	order       []Class
	timer       *time.Timer
	timerAt     time.Time
	onAdmit     func(Admission)
	log         *zap.Logger
}

// QueueOption customizes a Queue.
type QueueOption func(*Queue)

// WithMaxInFlight bounds concurrently executing requests. Zero means unbounded.
func WithMaxInFlight(n int) QueueOption {
	return func(q *Queue) { q.maxInFlight = n }
}

// WithAdmissionHook observes every admission, e.g. for metrics.
func WithAdmissionHook(fn func(Admission)) QueueOption {
	return func(q *Queue) { q.onAdmit = fn }
}

// WithQueueLogger sets the logger.
func WithQueueLogger(l *zap.Logger) QueueOption {
	return func(q *Queue) { q.log = l }
}

// NewQueue builds a queue over the given windows.
func NewQueue(windows []Window, opts ...QueueOption) *Queue {
	q := &Queue{
		waiting: make(map[Class]*list.List),
		log:     zap.NewNop(),
	}
	for _, w := range windows {
		q.windows = append(q.windows, &window{Window: w})
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Acquire blocks until a request of the given weight is admitted. The returned
// release func must be called once the request completes.
func (q *Queue) Acquire(ctx context.Context, class Class, weight int) (func(), error) {
	if weight <= 0 {
		weight = 1
	}
	for _, w := range q.windows {
		if w.appliesTo(class) && weight > w.Limit {
			return nil, fmt.Errorf("%w: weight %d exceeds window %s limit %d", ErrRateBudgetExceeded, weight, w.Name, w.Limit)
		}
	}

	wt := &waiter{class: class, weight: weight, enqueued: time.Now(), ready: make(chan struct{})}

	q.mu.Lock()
	l, ok := q.waiting[class]
	if !ok {
		l = list.New()
		q.waiting[class] = l
		q.order = append(q.order, class)
	}
	el := l.PushBack(wt)
	q.dispatchLocked()
	q.mu.Unlock()

	select {
	case <-wt.ready:
		return q.releaseFunc(), nil
	case <-ctx.Done():
		q.mu.Lock()
		defer q.mu.Unlock()
		if wt.admitted {
			q.inFlight--
			q.dispatchLocked()
		} else {
			l.Remove(el)
			q.dispatchLocked()
		}
		q.log.Debug("request abandoned while queued", zap.String("class", string(class)), zap.Int("weight", weight))
		return nil, fmt.Errorf("%w: %v", ErrRateBudgetExceeded, ctx.Err())
	}
}

// Do runs fn once admitted and releases capacity when fn returns.
func (q *Queue) Do(ctx context.Context, class Class, weight int, fn func(context.Context) error) error {
	release, err := q.Acquire(ctx, class, weight)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Usage reports the current consumption of every window.
func (q *Queue) Usage() []WindowUsage {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	out := make([]WindowUsage, 0, len(q.windows))
	for _, w := range q.windows {
		w.prune(now)
		out = append(out, WindowUsage{Name: w.Name, Used: w.used, Limit: w.Limit})
	}
	return out
}

// Pending returns the number of queued, not yet admitted requests.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, l := range q.waiting {
		n += l.Len()
	}
	return n
}

func (q *Queue) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			q.inFlight--
			q.dispatchLocked()
			q.mu.Unlock()
		})
	}
}

func (q *Queue) fitsLocked(now time.Time, wt *waiter) bool {
	for _, w := range q.windows {
		if !w.appliesTo(wt.class) {
			continue
		}
		w.prune(now)
		if w.used+wt.weight > w.Limit {
			return false
		}
	}
	return true
}

// dispatchLocked admits queue heads until nothing else fits, then arms a
// timer for the earliest window expiry if requests are still waiting.
func (q *Queue) dispatchLocked() {
	now := time.Now()
	for _, w := range q.windows {
		w.prune(now)
	}
	for progress := true; progress; {
		progress = false
		for _, c := range q.order {
			if q.maxInFlight > 0 && q.inFlight >= q.maxInFlight {
				return
			}
			l := q.waiting[c]
			front := l.Front()
			if front == nil {
				continue
			}
			wt := front.Value.(*waiter)
			if !q.fitsLocked(now, wt) {
				continue
			}
			for _, w := range q.windows {
				if w.appliesTo(c) {
					w.entries = append(w.entries, entry{at: now, weight: wt.weight})
					w.used += wt.weight
				}
			}
			l.Remove(front)
			q.inFlight++
			wt.admitted = true
			close(wt.ready)
			progress = true
			if q.onAdmit != nil {
				q.onAdmit(Admission{Class: c, Weight: wt.weight, Enqueued: wt.enqueued, Admitted: now})
			}
		}
	}

	if q.pendingLocked() == 0 {
		return
	}
	var next time.Time
	for _, w := range q.windows {
		if len(w.entries) == 0 {
			continue
		}
		at := w.entries[0].at.Add(w.Interval)
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	if next.IsZero() {
		return
	}
	if q.timer != nil && !q.timerAt.After(next) {
		return
	}
	if q.timer != nil {
		q.timer.Stop()
	}
	delay := next.Sub(now)
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	q.timerAt = next
	q.timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		q.timer = nil
		q.dispatchLocked()
		q.mu.Unlock()
	})
}

func (q *Queue) pendingLocked() int {
	n := 0
	for _, l := range q.waiting {
		n += l.Len()
	}
	return n
}

// ServerUsage tracks the weight the venue reports in response headers.
type ServerUsage struct {
	mu         sync.RWMutex
	usedWeight int
	limit      int
	log        *zap.Logger
}

// NewServerUsage creates a tracker for a venue-side weight limit.
func NewServerUsage(limit int, log *zap.Logger) *ServerUsage {
	if log == nil {
		log = zap.NewNop()
	}
	return &ServerUsage{limit: limit, log: log}
}

// UpdateFromHeader records the used weight from an API response header.
func (u *ServerUsage) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	u.mu.Lock()
	u.usedWeight = weight
	u.mu.Unlock()

	// Warn if approaching limit
	percentage := float64(weight) / float64(u.limit) * 100
	if percentage >= 95 {
		u.log.Warn("venue weight critical", zap.Int("used", weight), zap.Int("limit", u.limit))
	} else if percentage >= 80 {
		u.log.Info("venue weight high", zap.Int("used", weight), zap.Int("limit", u.limit))
	}
}

// GetUsage returns the last reported usage.
func (u *ServerUsage) GetUsage() (used int, limit int, percentage float64) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.usedWeight, u.limit, float64(u.usedWeight) / float64(u.limit) * 100
}
