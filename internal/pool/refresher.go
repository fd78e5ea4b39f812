package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Refresher reloads pool settings into the regional cache on a cron schedule.
type Refresher struct {
	pool     *Pool
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	watcher  sync.WaitGroup
}

// NewRefresher validates schedule and creates a stopped refresher.
//
// Common schedules:
//   - "@every 5m"    - every five minutes
//   - "*/10 * * * *" - every ten minutes on the clock
func NewRefresher(p *Pool, schedule string) (*Refresher, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return &Refresher{pool: p, schedule: schedule, cron: cron.New()}, nil
}

// Start schedules the reload job. It stops when ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	r.cron.Start()
	r.running = true
	r.stopCh = make(chan struct{})
	log.Info().Str("schedule", r.schedule).Msg("pool refresher started")

	stop := r.stopCh
	r.watcher.Add(1)
	go func() {
		defer r.watcher.Done()
		select {
		case <-ctx.Done():
			r.Stop()
		case <-stop:
		}
	}()
	return nil
}

// RunOnce performs a single reload.
func (r *Refresher) RunOnce(ctx context.Context) {
	if err := r.pool.Reload(ctx); err != nil {
		log.Error().Err(err).Msg("pool refresh failed")
		return
	}
	log.Debug().Msg("pool refresh completed")
}

// Stop stops the schedule and waits for a running reload to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	close(r.stopCh)
	r.running = false
	log.Info().Msg("pool refresher stopped")
}

// IsRunning reports whether the schedule is active.
func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
