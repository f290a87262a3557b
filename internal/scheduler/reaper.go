package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultReapInterval is how often the idle sweep runs
const DefaultReapInterval = time.Hour

// SweepFunc runs one sweep and returns how many items it removed
type SweepFunc func(now time.Time) int

// Reaper runs periodic sweeps as a backstop against leaked rooms and state.
type Reaper struct {
	interval time.Duration
	sweeps   []SweepFunc
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReaper creates a reaper that runs sweeps every interval
func NewReaper(interval time.Duration, sweeps ...SweepFunc) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Reaper{
		interval: interval,
		sweeps:   sweeps,
		now:      time.Now,
	}
}

// Start begins the periodic sweep loop
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrReaperAlreadyRunning
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.loop(ctx, r.stopCh, r.doneCh)
	return nil
}

// Stop ends the loop and waits for an in-flight sweep to finish
func (r *Reaper) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrReaperNotRunning
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	return nil
}

func (r *Reaper) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce()
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce runs every sweep immediately and returns the total removed
func (r *Reaper) RunOnce() int {
	now := r.now()
	total := 0
	for _, sweep := range r.sweeps {
		total += sweep(now)
	}
	if total > 0 {
		logrus.WithField("removed", total).Info("Idle sweep completed")
	}
	return total
}
