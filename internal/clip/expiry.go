package clip

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler is the single TTL authority. It sweeps the registry on a
// short interval so no session outlives its deadline by more than the
// tick, whether or not any device is still attached.
type Scheduler struct {
	registry *Registry
	interval time.Duration
	now      func() time.Time
}

func NewScheduler(registry *Registry, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{registry: registry, interval: interval, now: time.Now}
}

// Run sweeps until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep expires every overdue session once.
func (s *Scheduler) Sweep() {
	if n := s.registry.ExpireDue(s.now()); n > 0 {
		log.Info().Int("sessions", n).Msg("expired sessions swept")
	}
}
