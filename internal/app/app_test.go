package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"marketbot/internal/market"
	"marketbot/internal/notifier"
	"marketbot/internal/scheduler"
	kit "marketbot/internal/transport"
	logx "marketbot/pkg/logx"
)

type captureAdapter struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (c *captureAdapter) Stop(ctx context.Context) error                         { return nil }

func (c *captureAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (c *captureAdapter) SendVideo(ctx context.Context, to kit.ChatTarget, path string, caption string) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (c *captureAdapter) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func newTickApp(t *testing.T, ctx context.Context, baseURL string) (*App, *captureAdapter) {
	t.Helper()
	ca := &captureAdapter{}
	notif := notifier.New(notifier.Config{Workers: 1, RatePerSec: 100, RetryBase: time.Millisecond}, ca, logx.Nop())
	notif.Start(ctx)
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		notif.Stop(stopCtx)
	})

	a := &App{
		log:      logx.Nop(),
		market:   market.NewClient(market.Config{BaseURL: baseURL}, logx.Nop()),
		notifier: notif,
	}
	a.sched = scheduler.New(a.scheduledTick, 5*time.Millisecond, logx.Nop())
	a.sched.Start(ctx)
	return a, ca
}

func waitForText(t *testing.T, ca *captureAdapter, want string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, txt := range ca.sent() {
			if strings.Contains(txt, want) {
				return txt
			}
		}
		select {
		case <-deadline:
			t.Fatalf("no delivery containing %q; sent = %q", want, ca.sent())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestScheduledTickSubstitutesRetryNoticeOnFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, ca := newTickApp(t, ctx, srv.URL)

	if err := a.sched.Enable(42, time.Hour); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	waitForText(t, ca, "Scheduled update: market data is temporarily unavailable. I will try again on the next cycle.")

	// A failed cycle substitutes the delivery; it never removes the subscription.
	infos := a.sched.Snapshot()
	if len(infos) != 1 || infos[0].ChatID != 42 {
		t.Fatalf("Snapshot = %+v, want chat 42 still subscribed", infos)
	}
}

func TestScheduledTickDeliversReport(t *testing.T) {
	price := 65000.0
	change := 1.2
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]market.Coin{
			{Name: "Bitcoin", Symbol: "btc", CurrentPrice: &price, ChangePct24h: &change},
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, ca := newTickApp(t, ctx, srv.URL)

	if err := a.sched.Enable(7, time.Hour); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	got := waitForText(t, ca, "Market Snapshot — Top 10 by Market Capitalization (USD)")
	if !strings.Contains(got, "Bitcoin (BTC)") {
		t.Fatalf("report missing ranked coin:\n%s", got)
	}
}
