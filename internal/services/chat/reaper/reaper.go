// Package reaper deletes sessions that stayed disconnected for too long.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/livechat-service/internal/services/chat/registry"
	"github.com/unifiedui/livechat-service/internal/services/chat/typing"
)

const (
	// DefaultInterval is the time between sweeps.
	DefaultInterval = 5 * time.Minute
	// DefaultInactivity is how long an unbound session survives.
	DefaultInactivity = 30 * time.Minute
)

// ErrAlreadyStarted is returned by Start on a running reaper.
var ErrAlreadyStarted = errors.New("reaper already started")

// Config holds the configuration for the reaper.
type Config struct {
	Registry   *registry.Registry
	Typing     typing.Coordinator
	Interval   time.Duration
	Inactivity time.Duration
	Logger     *zerolog.Logger
}

// Reaper periodically removes idle, unbound sessions with their log and typing state.
type Reaper struct {
	registry   *registry.Registry
	typing     typing.Coordinator
	interval   time.Duration
	inactivity time.Duration
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a reaper.
func New(cfg *Config) (*Reaper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Typing == nil {
		return nil, fmt.Errorf("typing coordinator is required")
	}

	r := &Reaper{
		registry:   cfg.Registry,
		typing:     cfg.Typing,
		interval:   cfg.Interval,
		inactivity: cfg.Inactivity,
		logger:     log.Logger,
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.inactivity <= 0 {
		r.inactivity = DefaultInactivity
	}
	if cfg.Logger != nil {
		r.logger = *cfg.Logger
	}
	r.logger = r.logger.With().Str("component", "reaper").Logger()
	return r, nil
}

// Start runs sweeps in the background until Stop is called or ctx ends.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyStarted
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.run(ctx, r.stopCh, r.doneCh)
	r.logger.Info().Dur("interval", r.interval).Dur("inactivity", r.inactivity).Msg("reaper started")
	return nil
}

// Stop halts the background loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.stopCh, r.doneCh = nil, nil
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (r *Reaper) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Sweep deletes every session unbound and idle for longer than the inactivity window at now.
// It returns the IDs it deleted.
func (r *Reaper) Sweep(now time.Time) []string {
	cutoff := now.Add(-r.inactivity)

	var deleted []string
	for _, id := range r.registry.InactiveSince(cutoff) {
		if !r.registry.DeleteIfInactive(id, cutoff) {
			continue
		}
		r.typing.Clear(id)
		deleted = append(deleted, id)
	}

	if len(deleted) > 0 {
		r.logger.Info().Int("count", len(deleted)).Strs("session_ids", deleted).Msg("idle sessions reaped")
	}
	return deleted
}
