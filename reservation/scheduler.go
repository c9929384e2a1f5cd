// Package reservation schedules the expiry of reservation hold windows.
package reservation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var timersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reservation_timers_total",
		Help: "Reservation timers by outcome (armed, fired, cancelled, stale)",
	},
	[]string{"outcome"},
)

// Metrics registers the scheduler counters with reg.
func Metrics(reg prometheus.Registerer) {
	reg.MustRegister(timersTotal)
}

// Scheduler runs at most one pending expiry callback per bike. Every task
// carries the sequence number of the reservation it belongs to. Scheduling
// replaces an older task and cancelling removes one, but a request whose
// sequence is older than the newest seen for the bike is ignored, so a late
// arm or cancel can never displace a newer reservation's timer. A callback
// runs only if its task is still the current one when the timer fires.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	latest  map[string]int64
	ctx     context.Context
	stopped bool
	wg      sync.WaitGroup
}

type task struct {
	seq      int64
	timer    *time.Timer
	onExpire func(ctx context.Context)
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		tasks:  map[string]*task{},
		latest: map[string]int64{},
		ctx:    context.Background(),
	}
}

// Start sets the context passed to callbacks. Callbacks scheduled before
// Start receive context.Background.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	s.stopped = false
}

// Stop cancels every pending task, forgets the sequences seen so far and
// waits for callbacks already running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for bikeID, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, bikeID)
	}
	clear(s.latest)
	s.mu.Unlock()

	s.wg.Wait()
}

// Schedule arms onExpire to run after delay for reservation seq of bikeID,
// replacing any task for an older reservation. It reports whether the task
// was armed.
func (s *Scheduler) Schedule(bikeID string, seq int64, delay time.Duration, onExpire func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Warn("scheduler stopped, dropping reservation timer", "bike_id", bikeID)
		return false
	}
	if seq <= s.latest[bikeID] {
		s.logger.Debug("ignoring timer for superseded reservation", "bike_id", bikeID, "seq", seq)
		timersTotal.WithLabelValues("stale").Inc()
		return false
	}
	s.latest[bikeID] = seq
	if prev, ok := s.tasks[bikeID]; ok {
		prev.timer.Stop()
		timersTotal.WithLabelValues("cancelled").Inc()
	}

	t := &task{seq: seq, onExpire: onExpire}
	t.timer = time.AfterFunc(delay, func() { s.fire(bikeID, t) })
	s.tasks[bikeID] = t
	timersTotal.WithLabelValues("armed").Inc()
	return true
}

// Cancel removes the pending task for reservation seq of bikeID, or for an
// older one, and marks seq as seen so a late Schedule for it is ignored. It
// reports whether a task was removed; cancelling a missing, newer or already
// fired task is a no-op.
func (s *Scheduler) Cancel(bikeID string, seq int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq > s.latest[bikeID] {
		s.latest[bikeID] = seq
	}
	t, ok := s.tasks[bikeID]
	if !ok || t.seq > seq {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, bikeID)
	timersTotal.WithLabelValues("cancelled").Inc()
	return true
}

// Pending returns the number of armed tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Armed returns the reservation sequence of the task pending for bikeID.
func (s *Scheduler) Armed(bikeID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[bikeID]
	if !ok {
		return 0, false
	}
	return t.seq, true
}

func (s *Scheduler) fire(bikeID string, t *task) {
	s.mu.Lock()
	if cur, ok := s.tasks[bikeID]; !ok || cur != t || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, bikeID)
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	timersTotal.WithLabelValues("fired").Inc()
	t.onExpire(ctx)
}
