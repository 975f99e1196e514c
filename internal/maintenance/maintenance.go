// Package maintenance runs cron-driven housekeeping: sweeping orphaned
// download temp files (defense-in-depth behind the per-download cleanup) and
// pruning old history rows.
package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"marketbot/internal/downloader"
	"marketbot/internal/storage"
	logx "marketbot/pkg/logx"
)

type Config struct {
	Enabled        bool
	SweepSpec      string // cron spec or descriptor, e.g. "@every 30m"
	TempDir        string
	TempMaxAge     time.Duration
	AuditRetention time.Duration
}

type Service struct {
	mu     sync.Mutex
	c      *cron.Cron
	cfg    Config
	runCtx context.Context

	store storage.Store
	log   logx.Logger
}

func New(cfg Config, store storage.Store, log logx.Logger) *Service {
	if strings.TrimSpace(cfg.SweepSpec) == "" {
		cfg.SweepSpec = "@every 30m"
	}
	if cfg.TempMaxAge <= 0 {
		cfg.TempMaxAge = time.Hour
	}
	if cfg.AuditRetention <= 0 {
		cfg.AuditRetention = 30 * 24 * time.Hour
	}
	if strings.TrimSpace(cfg.TempDir) == "" {
		cfg.TempDir = "."
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, log: log}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.SweepSpec, func() { s.sweepOnce() }); err != nil {
		return err
	}
	if s.store != nil {
		if _, err := c.AddFunc(s.cfg.SweepSpec, func() { s.pruneOnce(ctx) }); err != nil {
			return err
		}
	}
	c.Start()
	s.c = c
	s.log.Info("maintenance started", logx.String("spec", s.cfg.SweepSpec))
	return nil
}

// Apply swaps the sweep cadence and retention at runtime. A bad cron spec
// keeps the previous schedule.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := New(cfg, s.store, s.log).cfg // normalize defaults
	if next == s.cfg {
		return
	}
	prev := s.cfg
	s.cfg = next

	if s.c == nil {
		return
	}
	old := s.c
	s.c = nil
	<-old.Stop().Done()
	if err := s.startLocked(); err != nil {
		s.log.Warn("maintenance reload failed; restoring previous schedule", logx.Err(err))
		s.cfg = prev
		_ = s.startLocked()
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("maintenance stopped")
	case <-ctx.Done():
		s.log.Warn("maintenance stop timed out")
	}
}

// sweepOnce removes download artifacts that outlived TempMaxAge. Only files
// carrying the downloader's temp prefix are ever considered.
func (s *Service) sweepOnce() {
	matches, err := filepath.Glob(filepath.Join(s.cfg.TempDir, downloader.TempPrefix+"*"))
	if err != nil {
		s.log.Warn("temp sweep glob failed", logx.Err(err))
		return
	}
	cutoff := time.Now().Add(-s.cfg.TempMaxAge)
	removed := 0
	for _, path := range matches {
		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() {
			continue
		}
		if fi.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.log.Debug("temp sweep remove failed", logx.String("path", path), logx.Err(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("stale temp files removed", logx.Int("count", removed))
	}
}

func (s *Service) pruneOnce(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cutoff := time.Now().Add(-s.cfg.AuditRetention)
	n, err := s.store.PruneHistoryBefore(pctx, cutoff)
	if err != nil {
		s.log.Warn("history prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("history rows pruned", logx.Int64("count", n))
	}
}
