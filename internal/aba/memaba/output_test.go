package memaba

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyrplay/slimclient/internal/aba"
)

// fakeClock lets tests advance wall-clock time deterministically while the
// Output's real 4ms tick loop keeps running; each tick reads whatever Now()
// currently returns.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestOutput() (*Output, *fakeClock) {
	format := aba.Format{SampleRate: 44100, Channels: 2}
	o := New(format, 0)
	clock := newFakeClock()
	o.SetClock(clock)
	return o, clock
}

func TestPushRejectsOverHardLimit(t *testing.T) {
	o := New(aba.Format{SampleRate: 44100, Channels: 2}, 8)
	defer o.Free()

	_, err := o.Push(make([]byte, 16))
	var aerr *aba.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, aba.ErrQueueFull, aerr.Code)
}

func TestPlayAdvancesPositionAtFormatByteRate(t *testing.T) {
	o, clock := newTestOutput()
	defer o.Free()

	format := aba.Format{SampleRate: 44100, Channels: 2}
	n, err := o.Push(make([]byte, format.BytesPerSecond()))
	require.NoError(t, err)
	assert.Equal(t, int(format.BytesPerSecond()), n)

	require.NoError(t, o.Play(false))
	clock.Advance(500 * time.Millisecond)

	waitForCondition(t, func() bool {
		return o.PositionBytes() > 0
	})
	assert.LessOrEqual(t, o.PositionBytes(), uint64(format.BytesPerSecond()))
}

func TestPauseStopsPositionAdvancing(t *testing.T) {
	o, clock := newTestOutput()
	defer o.Free()

	format := aba.Format{SampleRate: 44100, Channels: 2}
	_, err := o.Push(make([]byte, format.BytesPerSecond()))
	require.NoError(t, err)
	require.NoError(t, o.Play(false))

	clock.Advance(200 * time.Millisecond)
	waitForCondition(t, func() bool { return o.PositionBytes() > 0 })

	require.NoError(t, o.Pause())
	assert.Equal(t, aba.StatePaused, o.State())

	pos := o.PositionBytes()
	clock.Advance(200 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, pos, o.PositionBytes(), "paused output must not advance position")
}

func TestUnderrunEntersAndExitsStall(t *testing.T) {
	o, clock := newTestOutput()
	defer o.Free()

	var entered, exited atomic.Bool
	_, err := o.RegisterSync(aba.SyncStall, 0, func(e aba.SyncEvent) {
		if e.Stall == aba.StallEntered {
			entered.Store(true)
		} else {
			exited.Store(true)
		}
	})
	require.NoError(t, err)

	format := aba.Format{SampleRate: 44100, Channels: 2}
	_, err = o.Push(make([]byte, format.BytesPerSecond()/10)) // 100ms of audio
	require.NoError(t, err)
	require.NoError(t, o.Play(false))

	clock.Advance(time.Second) // drains the buffer well past what was pushed
	waitForCondition(t, func() bool { return entered.Load() })
	assert.Equal(t, aba.StateStalled, o.State())

	_, err = o.Push(make([]byte, stallRecoveryBytes))
	require.NoError(t, err)
	waitForCondition(t, func() bool { return exited.Load() })
	assert.Equal(t, aba.StatePlaying, o.State())
}

func TestRegisterSyncPositionByteFiresOnceAtTarget(t *testing.T) {
	o, clock := newTestOutput()
	defer o.Free()

	format := aba.Format{SampleRate: 44100, Channels: 2}
	target := uint64(format.BytesPerSecond() / 2)

	var fired atomic.Int32
	_, err := o.RegisterSync(aba.SyncPositionByte, target, func(aba.SyncEvent) {
		fired.Add(1)
	})
	require.NoError(t, err)

	_, err = o.Push(make([]byte, format.BytesPerSecond()))
	require.NoError(t, err)
	require.NoError(t, o.Play(false))

	clock.Advance(2 * time.Second)
	waitForCondition(t, func() bool { return fired.Load() > 0 })

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load(), "position sync must fire exactly once")
}

func TestSetPositionBytesResetsState(t *testing.T) {
	o, clock := newTestOutput()
	defer o.Free()

	format := aba.Format{SampleRate: 44100, Channels: 2}
	_, err := o.Push(make([]byte, format.BytesPerSecond()))
	require.NoError(t, err)
	require.NoError(t, o.Play(false))
	clock.Advance(200 * time.Millisecond)
	waitForCondition(t, func() bool { return o.PositionBytes() > 0 })

	require.NoError(t, o.SetPositionBytes(0))
	assert.Equal(t, uint64(0), o.PositionBytes())
	assert.Equal(t, uint64(0), o.AvailablePlaybackBytes())
}

func TestSetPositionBytesRejectsNonZero(t *testing.T) {
	o := New(aba.Format{SampleRate: 44100, Channels: 2}, 0)
	defer o.Free()

	err := o.SetPositionBytes(123)
	var aerr *aba.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, aba.ErrInvalidState, aerr.Code)
}

func TestBackendCreateOutputAndDecoder(t *testing.T) {
	b := Backend{}
	out, err := b.CreateOutput(aba.Format{SampleRate: 48000, Channels: 2})
	require.NoError(t, err)
	require.NotNil(t, out)
	defer out.Free()
	assert.Equal(t, aba.StateStopped, out.State())
}
