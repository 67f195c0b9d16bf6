// Package stt implements the Server Time Tracker: it
// stores the server's last reported playback position and interpolates
// it forward using the local wall clock between updates. It is
// consulted only by UI/lock-screen surfaces — the pipeline itself never
// uses STT for boundary decisions.
package stt

import (
	"sync"
	"time"
)

// freshnessWindow is how long a snapshot is considered trustworthy
// before a caller should treat CurrentTime as stale.
const freshnessWindow = 30 * time.Second

// Snapshot is what a server status message reports about playback
// position at the moment it was received.
type Snapshot struct {
	// ServerTime is the position into the current track the server last
	// reported, not a wall-clock instant.
	ServerTime time.Duration
	IsPlaying  bool
	Duration   time.Duration
}

// Tracker holds the most recent Snapshot plus the local time it arrived
// at, and interpolates from there.
type Tracker struct {
	mu         sync.RWMutex
	snapshot   Snapshot
	snapshotAt time.Time
}

// New returns an empty Tracker; CurrentTime returns 0 and Fresh reports
// false until the first Update.
func New() *Tracker {
	return &Tracker{}
}

// Update records a new server-reported position, taken at now (the
// local wall-clock time the status message was processed).
func (t *Tracker) Update(snap Snapshot, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshot = snap
	t.snapshotAt = now
}

// CurrentTime returns the best estimate of track position at now: the
// stored server_time plus elapsed wall-clock time since the snapshot if
// playing, or the stored server_time unchanged if paused, clamped to
// [0, duration] when a duration is known.
func (t *Tracker) CurrentTime(now time.Time) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur := t.snapshot.ServerTime
	if t.snapshot.IsPlaying {
		if elapsed := now.Sub(t.snapshotAt); elapsed > 0 {
			cur += elapsed
		}
	}
	if cur < 0 {
		cur = 0
	}
	if t.snapshot.Duration > 0 && cur > t.snapshot.Duration {
		cur = t.snapshot.Duration
	}
	return cur
}

// Fresh reports whether the stored snapshot is younger than 30s as of
// now.
func (t *Tracker) Fresh(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snapshotAt.IsZero() {
		return false
	}
	return now.Sub(t.snapshotAt) < freshnessWindow
}
