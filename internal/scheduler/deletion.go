package scheduler

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultGracePeriod is how long an empty room waits for a reconnection
const DefaultGracePeriod = 5 * time.Minute

// ExpireFunc deletes a room whose grace period ran out
type ExpireFunc func(roomID string)

// DeletionScheduler arms one deferred deletion per room.
// The scheduling state lives here, never inside the Room.
type DeletionScheduler struct {
	timers   *Timers
	delay    time.Duration
	onExpire ExpireFunc
}

// NewDeletionScheduler creates a scheduler that calls onExpire after delay
func NewDeletionScheduler(delay time.Duration, onExpire ExpireFunc) *DeletionScheduler {
	if delay <= 0 {
		delay = DefaultGracePeriod
	}
	return &DeletionScheduler{
		timers:   NewTimers(),
		delay:    delay,
		onExpire: onExpire,
	}
}

// Arm schedules deletion of roomID after the configured grace period,
// replacing any timer already armed for it
func (d *DeletionScheduler) Arm(roomID string) Handle {
	return d.ArmAfter(roomID, d.delay)
}

// ArmAfter schedules deletion of roomID after delay
func (d *DeletionScheduler) ArmAfter(roomID string, delay time.Duration) Handle {
	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"delay":   delay.String(),
	}).Info("Room empty, deletion scheduled")

	return d.timers.Arm(roomID, delay, func() {
		logrus.WithField("room_id", roomID).Info("Grace period expired")
		d.onExpire(roomID)
	})
}

// Cancel disarms the timer for roomID. No-op if none is armed.
func (d *DeletionScheduler) Cancel(roomID string) bool {
	cancelled := d.timers.Cancel(roomID)
	if cancelled {
		logrus.WithField("room_id", roomID).Info("Scheduled deletion cancelled")
	}
	return cancelled
}

// Pending reports whether roomID has an armed deletion
func (d *DeletionScheduler) Pending(roomID string) bool {
	return d.timers.Pending(roomID)
}

// Len returns the number of armed deletions
func (d *DeletionScheduler) Len() int {
	return d.timers.Len()
}

// Stop disarms everything; used at shutdown
func (d *DeletionScheduler) Stop() {
	d.timers.Stop()
}
