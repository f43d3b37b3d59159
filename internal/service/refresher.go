package service

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/config"
	"github.com/versehub/community-api/internal/metrics"
	"github.com/versehub/community-api/internal/repository"
)

// DirectoryRefresher rebuilds the user directory read model.
//
// Writers call Invalidate after committing. Invalidations coalesce in a
// one-slot channel, so a burst of writes causes a single rebuild. Rebuild
// failures are logged and counted; they never reach the writer.
type DirectoryRefresher struct {
	repos   *repository.Repositories
	cfg     config.DirectoryConfig
	metrics *metrics.Metrics
	log     zerolog.Logger

	trigger chan struct{}
	cron    *cron.Cron

	// rebuildMu serializes rebuilds from the worker and RefreshNow
	rebuildMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDirectoryRefresher creates a refresher. Call Start to run it.
func NewDirectoryRefresher(repos *repository.Repositories, cfg config.DirectoryConfig, m *metrics.Metrics, log zerolog.Logger) *DirectoryRefresher {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 30 * time.Second
	}
	return &DirectoryRefresher{
		repos:   repos,
		cfg:     cfg,
		metrics: m,
		log:     log.With().Str("service", "directory_refresher").Logger(),
		trigger: make(chan struct{}, 1),
	}
}

// Invalidate requests a rebuild without blocking
func (r *DirectoryRefresher) Invalidate() {
	select {
	case r.trigger <- struct{}{}:
	default:
		// a rebuild is already pending
	}
}

// Start runs the rebuild worker until ctx is cancelled or Stop is called.
// It blocks; run it in its own goroutine.
func (r *DirectoryRefresher) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()
	defer close(done)

	if s := r.cfg.RefreshSchedule; s != "" && s != config.ScheduleOff {
		r.cron = cron.New()
		if _, err := r.cron.AddFunc(s, r.Invalidate); err != nil {
			r.log.Error().Err(err).Str("schedule", s).Msg("Invalid refresh schedule, periodic rebuild disabled")
		} else {
			r.cron.Start()
			defer func() { <-r.cron.Stop().Done() }()
		}
	}

	r.log.Info().Str("schedule", r.cfg.RefreshSchedule).Msg("Directory refresher started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Directory refresher stopping")
			return
		case <-r.trigger:
			r.refreshInBackground(ctx)
		}
	}
}

// Stop stops the worker and waits for an in-flight rebuild to finish
func (r *DirectoryRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.cancel()
	<-r.done
	r.running = false
	r.log.Info().Msg("Directory refresher stopped")
}

// RefreshNow rebuilds synchronously and returns the number of entries written
func (r *DirectoryRefresher) RefreshNow(ctx context.Context) (int, error) {
	return r.rebuild(ctx)
}

func (r *DirectoryRefresher) refreshInBackground(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RefreshTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("Directory rebuild panicked - recovered")
		}
	}()

	if _, err := r.rebuild(ctx); err != nil {
		r.log.Error().Err(err).Msg("Directory rebuild failed")
	}
}

func (r *DirectoryRefresher) rebuild(ctx context.Context) (int, error) {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	start := time.Now()
	n, err := r.buildAndReplace(ctx, start.UTC())
	elapsed := time.Since(start)

	r.metrics.ObserveDirectoryRefresh(n, elapsed, err)
	if err != nil {
		return 0, err
	}

	r.log.Debug().Int("entries", n).Dur("duration", elapsed).Msg("Directory rebuilt")
	return n, nil
}

func (r *DirectoryRefresher) buildAndReplace(ctx context.Context, now time.Time) (int, error) {
	identities, err := r.repos.Identity.List(ctx)
	if err != nil {
		return 0, err
	}
	grants, err := r.repos.Assignment.ListEffectiveGrants(ctx, now)
	if err != nil {
		return 0, err
	}
	pending, err := r.repos.Invitation.PendingEmails(ctx, now)
	if err != nil {
		return 0, err
	}

	return r.repos.Directory.Replace(ctx, BuildDirectory(identities, grants, pending))
}
