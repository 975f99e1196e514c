package notifier

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "marketbot/internal/transport"
	logx "marketbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type Config struct {
	RatePerSec    int
	QueueSize     int
	Workers       int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Item is one outbound text delivery.
type Item struct {
	To   kit.ChatTarget
	Text string
}

// Service is the async delivery pipeline for scheduled reports:
// bounded queue + worker pool + token-bucket send pacing + retry.
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter

	cfg     Config
	limiter *rate.Limiter

	queue  chan Item
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}

	s.queue = make(chan Item, s.cfg.QueueSize)
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	workers := s.cfg.Workers
	queue := s.queue
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.wg.Done()
			s.log.Debug("notifier worker started", logx.Int("worker", idx))
			s.worker(runCtx, queue)
			s.log.Debug("notifier worker stopped", logx.Int("worker", idx))
		}()
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Int("rate_per_sec", s.cfg.RatePerSec))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.queue = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("notifier stopped")
	case <-ctx.Done():
		s.log.Warn("notifier stop timed out")
	}
}

// Notify enqueues a delivery. It never blocks the caller: a full queue is
// reported as ErrQueueFull so a scheduled tick can log and move on.
func (s *Service) Notify(it Item) error {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return ErrStopped
	}
	select {
	case queue <- it:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) worker(ctx context.Context, queue <-chan Item) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-queue:
			s.deliver(ctx, it)
		}
	}
}

func (s *Service) deliver(ctx context.Context, it Item) {
	s.mu.Lock()
	lim := s.limiter
	retryMax := s.cfg.RetryMax
	base := s.cfg.RetryBase
	maxDelay := s.cfg.RetryMaxDelay
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return
	}

	var err error
	delay := base
	for attempt := 0; ; attempt++ {
		_, err = s.adapter.SendText(ctx, it.To, it.Text, &kit.SendOptions{DisablePreview: true})
		if err == nil {
			return
		}
		if attempt >= retryMax || ctx.Err() != nil {
			break
		}
		// jittered backoff
		wait := delay + time.Duration(rand.Int63n(int64(delay/2)+1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	s.log.Warn("delivery failed",
		logx.Int64("chat_id", it.To.ChatID),
		logx.Err(err),
	)
}
