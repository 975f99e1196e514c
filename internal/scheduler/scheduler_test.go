package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "marketbot/pkg/logx"
)

func TestParseInterval(t *testing.T) {
	cases := []struct {
		token string
		every time.Duration
		off   bool
		ok    bool
	}{
		{"15m", Interval15m, false, true},
		{"15min", Interval15m, false, true},
		{"15mins", Interval15m, false, true},
		{"1h", Interval1h, false, true},
		{"60m", Interval1h, false, true},
		{"60min", Interval1h, false, true},
		{"off", 0, true, true},
		{"stop", 0, true, true},
		{"disable", 0, true, true},
		{"OFF", 0, true, true},
		{" 1H ", Interval1h, false, true},
		{"30m", 0, false, false},
		{"hourly", 0, false, false},
		{"", 0, false, false},
	}
	for _, tc := range cases {
		every, off, err := ParseInterval(tc.token)
		if tc.ok && err != nil {
			t.Fatalf("ParseInterval(%q): unexpected error %v", tc.token, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrInvalidInterval) {
				t.Fatalf("ParseInterval(%q) err = %v, want ErrInvalidInterval", tc.token, err)
			}
			continue
		}
		if every != tc.every || off != tc.off {
			t.Fatalf("ParseInterval(%q) = (%v, %v), want (%v, %v)", tc.token, every, off, tc.every, tc.off)
		}
	}
}

func TestCadenceLabel(t *testing.T) {
	if got := CadenceLabel(Interval15m); got != "every 15 minutes" {
		t.Fatalf("CadenceLabel(15m) = %q", got)
	}
	if got := CadenceLabel(Interval1h); got != "every 1 hour" {
		t.Fatalf("CadenceLabel(1h) = %q", got)
	}
}

func TestSubscriptionName(t *testing.T) {
	if got := SubscriptionName(42); got != "crypto_updates_42" {
		t.Fatalf("SubscriptionName = %q", got)
	}
	if got := SubscriptionName(-7); got != "crypto_updates_-7" {
		t.Fatalf("SubscriptionName = %q", got)
	}
}

func TestEnableRequiresStart(t *testing.T) {
	s := New(func(ctx context.Context, chatID int64) {}, time.Millisecond, logx.Nop())
	if err := s.Enable(1, Interval15m); err == nil {
		t.Fatal("Enable before Start should fail")
	}
}

func TestEnableRejectsNonPositiveInterval(t *testing.T) {
	s := New(func(ctx context.Context, chatID int64) {}, time.Millisecond, logx.Nop())
	s.Start(context.Background())
	if err := s.Enable(1, 0); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("Enable(0) err = %v, want ErrInvalidInterval", err)
	}
}

func TestEnableReplacesExistingSubscription(t *testing.T) {
	var ticks atomic.Int64
	s := New(func(ctx context.Context, chatID int64) {
		ticks.Add(1)
	}, 30*time.Millisecond, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	// A fast cadence that would tick many times in the observation window if
	// the replacement left it running.
	if err := s.Enable(7, 20*time.Millisecond); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := s.Enable(7, time.Hour); err != nil {
		t.Fatalf("re-Enable: %v", err)
	}

	infos := s.Snapshot()
	if len(infos) != 1 {
		t.Fatalf("Snapshot len = %d, want 1", len(infos))
	}
	if infos[0].ChatID != 7 || infos[0].Interval != time.Hour {
		t.Fatalf("Snapshot[0] = %+v, want chat 7 at 1h", infos[0])
	}

	// Only the replacement may fire: its initial-delay tick and nothing more.
	// Old-cadence ticks would push the count past 1 well within the window.
	deadline := time.After(time.Second)
	for ticks.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("replacement subscription never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(150 * time.Millisecond)
	if n := ticks.Load(); n != 1 {
		t.Fatalf("got %d ticks after replacement, want exactly 1 (no old-cadence deliveries)", n)
	}
}

func TestDisableIsIdempotent(t *testing.T) {
	s := New(func(ctx context.Context, chatID int64) {}, time.Hour, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if s.Disable(9) {
		t.Fatal("Disable without subscription should report false")
	}
	if err := s.Enable(9, Interval15m); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !s.Disable(9) {
		t.Fatal("Disable should report true for a live subscription")
	}
	if s.Disable(9) {
		t.Fatal("second Disable should report false")
	}
	if n := len(s.Snapshot()); n != 0 {
		t.Fatalf("Snapshot len = %d after disable, want 0", n)
	}
}

func TestFirstTickAfterInitialDelay(t *testing.T) {
	ticked := make(chan int64, 1)
	s := New(func(ctx context.Context, chatID int64) {
		select {
		case ticked <- chatID:
		default:
		}
	}, 10*time.Millisecond, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if err := s.Enable(3, time.Hour); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	select {
	case id := <-ticked:
		if id != 3 {
			t.Fatalf("tick chat = %d, want 3", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick within the initial delay window")
	}
}

func TestTickPanicKeepsSubscriptionAlive(t *testing.T) {
	var calls atomic.Int64
	s := New(func(ctx context.Context, chatID int64) {
		calls.Add(1)
		panic("provider exploded")
	}, 5*time.Millisecond, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if err := s.Enable(4, 15*time.Millisecond); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("got %d ticks, want at least 2 after a panic", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if n := len(s.Snapshot()); n != 1 {
		t.Fatalf("Snapshot len = %d after panicking ticks, want 1", n)
	}
}

func TestStopCancelsAllSubscriptions(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64]bool{}
	s := New(func(ctx context.Context, chatID int64) {
		mu.Lock()
		seen[chatID] = true
		mu.Unlock()
	}, time.Hour, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	for id := int64(1); id <= 3; id++ {
		if err := s.Enable(id, time.Hour); err != nil {
			t.Fatalf("Enable(%d): %v", id, err)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	if n := len(s.Snapshot()); n != 0 {
		t.Fatalf("Snapshot len = %d after Stop, want 0", n)
	}
	mu.Lock()
	ticks := len(seen)
	mu.Unlock()
	if ticks != 0 {
		t.Fatalf("unexpected ticks before initial delay: %v", seen)
	}
}
