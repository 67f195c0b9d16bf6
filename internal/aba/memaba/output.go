// Package memaba is an in-process Audio Backend Adapter: it honors the
// exact byte-accounting and sync-callback contract of aba.Backend without
// depending on a native decode/output library, so the pipeline's
// byte-exact invariants can be driven and unit-tested without hardware.
package memaba

import (
	"sync"
	"time"

	"github.com/lyrplay/slimclient/internal/aba"
)

// Clock abstracts time.Now so tests can control playback-time advancement.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	// stallRecoveryBytes is how far ahead of the playhead data must sit
	// before playback is considered "recovered" from a stall.
	stallRecoveryBytes = 16 * 1024
	tickInterval       = 4 * time.Millisecond
)

type syncReg struct {
	kind SyncKind
	arg  uint64
	cb   aba.SyncCallback
}

// SyncKind aliases aba.SyncKind to keep this file's signatures terse.
type SyncKind = aba.SyncKind

// Output is a clock-driven, in-memory PCM sink. playedBytes advances at
// wall-clock rate (scaled by format.BytesPerSecond) whenever state is
// Playing and there is enough queued data; it never advances past
// totalPushed.
type Output struct {
	mu     sync.Mutex
	format aba.Format
	state  aba.State

	buf         []byte // queued, not-yet-played bytes
	totalPushed uint64
	playedBytes uint64
	hardLimit   int

	stalled bool
	clock   Clock

	nextSyncID int
	syncs      map[int]*syncReg

	stopTick chan struct{}
	tickDone chan struct{}
}

// New creates an Output with the given format and hard push limit in
// bytes (0 means use the 600 MiB default).
func New(format aba.Format, hardLimitBytes int) *Output {
	if hardLimitBytes <= 0 {
		hardLimitBytes = 600 * 1024 * 1024
	}
	o := &Output{
		format:    format,
		state:     aba.StateStopped,
		hardLimit: hardLimitBytes,
		clock:     realClock{},
		syncs:     make(map[int]*syncReg),
		stopTick:  make(chan struct{}),
		tickDone:  make(chan struct{}),
	}
	go o.tickLoop()
	return o
}

// SetClock overrides the wall clock; for tests only.
func (o *Output) SetClock(c Clock) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clock = c
}

func (o *Output) Format() aba.Format { return o.format }

func (o *Output) Push(pcm []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.buf)+len(pcm) > o.hardLimit {
		return len(o.buf), aba.WrapErr(aba.ErrQueueFull, nil)
	}
	o.buf = append(o.buf, pcm...)
	o.totalPushed += uint64(len(pcm))

	if o.stalled && len(o.buf) >= stallRecoveryBytes {
		o.stalled = false
		if o.state == aba.StateStalled {
			o.state = aba.StatePlaying
		}
		o.fireStallLocked(aba.StallExited)
	}
	return len(o.buf), nil
}

func (o *Output) Play(restart bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if restart {
		o.buf = nil
		o.totalPushed = 0
		o.playedBytes = 0
		o.stalled = false
	}
	o.state = aba.StatePlaying
	return nil
}

func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == aba.StatePlaying || o.state == aba.StateStalled {
		o.state = aba.StatePaused
	}
	return nil
}

func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = aba.StateStopped
	return nil
}

func (o *Output) State() aba.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Output) PositionBytes() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playedBytes
}

// QueuedBytes is the software-side backlog waiting to be handed to the
// device ring. Push() hands data to the ring immediately, so this
// backend never holds a separate software queue.
func (o *Output) QueuedBytes() uint64 {
	return 0
}

// AvailablePlaybackBytes is all not-yet-played data already sitting in
// the device ring. Keeping this distinct from QueuedBytes (rather than
// double-counting the same buffer under both names) is what makes
// boundary_bytes = playback + queued + available correct here, the same
// as it would be for a backend with a real two-stage buffer.
func (o *Output) AvailablePlaybackBytes() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return uint64(len(o.buf))
}

func (o *Output) SetPositionBytes(pos uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if pos != 0 {
		return aba.WrapErr(aba.ErrInvalidState, nil)
	}
	o.buf = nil
	o.totalPushed = 0
	o.playedBytes = 0
	o.stalled = false
	return nil
}

func (o *Output) RegisterSync(kind aba.SyncKind, arg uint64, cb aba.SyncCallback) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextSyncID++
	id := o.nextSyncID
	o.syncs[id] = &syncReg{kind: kind, arg: arg, cb: cb}
	return id, nil
}

func (o *Output) UnregisterSync(syncID int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.syncs, syncID)
}

func (o *Output) SetAttr(attr aba.Attr, value float64) error {
	// Volume/gain are applied in the DSP stage; the in-memory backend has
	// no audible output so it only records the call succeeded.
	return nil
}

func (o *Output) Free() {
	close(o.stopTick)
	<-o.tickDone
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncs = nil
	o.state = aba.StateInvalid
}

func (o *Output) tickLoop() {
	defer close(o.tickDone)
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	var last time.Time
	for {
		select {
		case <-o.stopTick:
			return
		case <-t.C:
			o.advance(&last)
		}
	}
}

func (o *Output) advance(last *time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	if last.IsZero() {
		*last = now
		return
	}
	elapsed := now.Sub(*last)
	*last = now

	if o.state != aba.StatePlaying {
		return
	}

	advanceBytes := uint64(float64(o.format.BytesPerSecond()) * elapsed.Seconds())
	avail := o.totalPushed - o.playedBytes
	if advanceBytes >= avail {
		advanceBytes = avail
		if !o.stalled && avail == 0 {
			o.stalled = true
			o.state = aba.StateStalled
			o.fireStallLocked(aba.StallEntered)
		}
	}
	if advanceBytes == 0 {
		return
	}
	o.playedBytes += advanceBytes
	n := uint64(advanceBytes)
	if n <= uint64(len(o.buf)) {
		o.buf = o.buf[n:]
	} else {
		o.buf = nil
	}
	o.firePositionLocked()
}

func (o *Output) fireStallLocked(dir aba.StallDirection) {
	for id, s := range o.syncs {
		if s.kind != aba.SyncStall {
			continue
		}
		cb := s.cb
		go cb(aba.SyncEvent{Kind: aba.SyncStall, Stall: dir})
		_ = id
	}
}

func (o *Output) firePositionLocked() {
	for id, s := range o.syncs {
		if s.kind != aba.SyncPositionByte {
			continue
		}
		if o.playedBytes >= s.arg {
			cb := s.cb
			pos := o.playedBytes
			delete(o.syncs, id)
			go cb(aba.SyncEvent{Kind: aba.SyncPositionByte, Position: pos})
		}
	}
}
