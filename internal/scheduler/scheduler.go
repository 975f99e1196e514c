package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "marketbot/pkg/logx"
)

// TickFunc runs one scheduled cycle for a chat. It must handle its own
// failures (substitute delivery, logging); returning is the only contract.
type TickFunc func(ctx context.Context, chatID int64)

// DefaultInitialDelay is the fixed short delay before the first tick after
// every enable, including re-enables.
const DefaultInitialDelay = 5 * time.Second

var errNotStarted = errors.New("scheduler not started")

// SubscriptionName derives the stable per-chat task label used in logs and
// audit rows. At most one live subscription ever carries a given name.
func SubscriptionName(chatID int64) string {
	return fmt.Sprintf("crypto_updates_%d", chatID)
}

type subscription struct {
	chatID int64
	every  time.Duration
	since  time.Time
	cancel context.CancelFunc
}

// Info is a read-only snapshot of one live subscription.
type Info struct {
	ChatID   int64
	Name     string
	Interval time.Duration
	Since    time.Time
}

// Scheduler is the per-chat subscription registry. All mutation goes through
// Enable/Disable; per-chat atomicity of cancel-then-register comes from the
// single mutex held across both steps.
type Scheduler struct {
	mu      sync.Mutex
	subs    map[int64]*subscription
	runCtx  context.Context
	started bool

	tick         TickFunc
	initialDelay time.Duration
	log          logx.Logger
	wg           sync.WaitGroup
}

func New(tick TickFunc, initialDelay time.Duration, log logx.Logger) *Scheduler {
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		subs:         map[int64]*subscription{},
		tick:         tick,
		initialDelay: initialDelay,
		log:          log,
	}
}

// Start binds the scheduler to its run context. Subscriptions enabled later
// inherit it; Stop (or context cancellation) ends them all.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.runCtx = ctx
	s.started = true
	s.log.Info("scheduler started", logx.Duration("initial_delay", s.initialDelay))
}

// Enable installs (or replaces) the subscription for a chat. Any previous
// entry is cancelled before the new one is registered; both happen under one
// lock hold, so no old-cadence tick fires after Enable returns.
func (s *Scheduler) Enable(chatID int64, every time.Duration) error {
	if every <= 0 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errNotStarted
	}

	if old, ok := s.subs[chatID]; ok {
		old.cancel()
		delete(s.subs, chatID)
	}

	ctx, cancel := context.WithCancel(s.runCtx)
	sub := &subscription{chatID: chatID, every: every, since: time.Now(), cancel: cancel}
	s.subs[chatID] = sub

	s.wg.Add(1)
	// The run loop receives the descriptor by value; it never reads the map.
	go s.run(ctx, sub.chatID, sub.every)

	s.log.Info("subscription enabled",
		logx.String("name", SubscriptionName(chatID)),
		logx.Duration("every", every),
	)
	return nil
}

// Disable cancels the chat's subscription if one exists. Idempotent: it
// reports whether anything was actually removed and never errors.
func (s *Scheduler) Disable(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[chatID]
	if !ok {
		return false
	}
	sub.cancel()
	delete(s.subs, chatID)
	s.log.Info("subscription disabled", logx.String("name", SubscriptionName(chatID)))
	return true
}

// Stop cancels every subscription and waits (bounded by ctx) for run loops
// to finish. In-flight ticks run to completion.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	for id, sub := range s.subs {
		sub.cancel()
		delete(s.subs, id)
	}
	s.started = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; ticks finishing in background")
	}
}

// Snapshot lists live subscriptions, ordered by chat id.
func (s *Scheduler) Snapshot() []Info {
	s.mu.Lock()
	out := make([]Info, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, Info{
			ChatID:   sub.chatID,
			Name:     SubscriptionName(sub.chatID),
			Interval: sub.every,
			Since:    sub.since,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

func (s *Scheduler) run(ctx context.Context, chatID int64, every time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	s.safeTick(ctx, chatID)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeTick(ctx, chatID)
		}
	}
}

// safeTick shields the run loop: neither a panic nor any failure inside the
// tick body may terminate the subscription.
func (s *Scheduler) safeTick(ctx context.Context, chatID int64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduled tick",
				logx.String("name", SubscriptionName(chatID)),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	s.tick(ctx, chatID)
}
