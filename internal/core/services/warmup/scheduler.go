package warmup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
)

// DefaultSpec re-warms every source cache ahead of its TTL.
const DefaultSpec = "@every 10m"

// DefaultTimeout bounds one warm-up round.
const DefaultTimeout = 2 * time.Minute

// Target is one source window kept warm. Name labels targets that are not
// vulnerability sources, such as the ATT&CK catalog.
type Target struct {
	Source     domain.Source
	Name       string
	WindowDays int
	Refresher  ports.SourceRefresher
}

func (t Target) label() string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.Source)
}

// Scheduler refreshes source caches on a cron schedule. A failed refresh
// leaves the previously cached value in place.
type Scheduler struct {
	cron    *cron.Cron
	targets []Target
	timeout time.Duration

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

// NewScheduler creates a scheduler for the given targets.
func NewScheduler(targets []Target, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		targets: targets,
		timeout: timeout,
	}
}

// Schedule installs the warm-up job, replacing any previous one.
func (s *Scheduler) Schedule(spec string) error {
	if spec == "" {
		spec = DefaultSpec
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}

	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.WarmAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("add warm-up job %q: %w", spec, err)
	}
	s.entryID = id
	return nil
}

// WarmAll refreshes every target concurrently and returns how many succeeded.
func (s *Scheduler) WarmAll(ctx context.Context) int {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, t := range s.targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			start := time.Now()
			if err := t.Refresher.Refresh(ctx, t.WindowDays); err != nil {
				slog.Warn("cache warm-up failed, keeping previous value", "target", t.label(), "window_days", t.WindowDays, "error", err)
				return
			}
			slog.Debug("cache warmed", "target", t.label(), "window_days", t.WindowDays, "took", time.Since(start))
			mu.Lock()
			ok++
			mu.Unlock()
		}(t)
	}
	wg.Wait()
	return ok
}

// Start begins the schedule.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the schedule and waits for a running round, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
