package pee

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	emissions []Emission
}

func (r *recordingSink) Emit(e Emission) { r.emissions = append(r.emissions, e) }

func (r *recordingSink) codes() []StatusCode {
	out := make([]StatusCode, len(r.emissions))
	for i, e := range r.emissions {
		out[i] = e.Code
	}
	return out
}

func TestEmitterFullPrefix(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink)
	e.BeginTrack()

	require.True(t, e.Handle(EventStreamConnected, ""))
	require.True(t, e.Handle(EventBufferReady, ""))
	require.True(t, e.Handle(EventTrackStarted, ""))
	require.True(t, e.Handle(EventTrackDecodeComplete, ""))

	assert.Equal(t, []StatusCode{STMc, STMl, STMs, STMd}, sink.codes())
}

func TestEmitterPartialPrefixStillValid(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink)
	e.BeginTrack()

	require.True(t, e.Handle(EventStreamConnected, ""))
	require.True(t, e.Handle(EventTrackStarted, ""))

	assert.Equal(t, []StatusCode{STMc, STMs}, sink.codes())
}

// TestEmitterDuplicateEventsSuppressed covers P4: each code is emitted at
// most once per track even if the underlying pipeline event fires twice
// (e.g. a late-arriving duplicate boundary sync).
func TestEmitterDuplicateEventsSuppressed(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink)
	e.BeginTrack()

	assert.True(t, e.Handle(EventTrackStarted, ""))
	assert.False(t, e.Handle(EventTrackStarted, ""))
	assert.Equal(t, []StatusCode{STMs}, sink.codes())
}

// TestEmitterManualStopSuppressesSTMd covers P4/P8: a manually stopped
// track must never emit STMd even if the producer loop's natural-end
// path races the stop.
func TestEmitterManualStopSuppressesSTMd(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink)
	e.BeginTrack()
	e.SetManualStop()

	require.True(t, e.Handle(EventStreamConnected, ""))
	assert.False(t, e.Handle(EventTrackDecodeComplete, ""))
	assert.Equal(t, []StatusCode{STMc}, sink.codes())
}

// TestEmitterDeferredTrackExemptFromSTMl covers P5: a deferred-track
// commit emits STMs exactly once and never STMl for that track, even if
// a stale buffer-ready event arrives afterward.
func TestEmitterDeferredTrackExemptFromSTMl(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink)
	e.BeginTrack()

	require.True(t, e.Handle(EventDeferredTrackStarted, ""))
	assert.False(t, e.Handle(EventBufferReady, ""))
	assert.Equal(t, []StatusCode{STMs}, sink.codes())
}

func TestEmitterErrorIsTerminalAndSuppressesLaterDecodeComplete(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink)
	e.BeginTrack()

	require.True(t, e.Handle(EventStreamConnected, ""))
	require.True(t, e.Handle(EventTrackDecodeError, "decode_failed"))
	assert.False(t, e.Handle(EventTrackDecodeComplete, ""))

	require.Len(t, sink.emissions, 2)
	assert.Equal(t, STMn, sink.emissions[1].Code)
	assert.Equal(t, "decode_failed", sink.emissions[1].ErrorCode)
}

func TestEmitterBeginTrackResetsState(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink)
	e.BeginTrack()
	e.SetManualStop()
	require.True(t, e.Handle(EventTrackStarted, ""))

	e.BeginTrack()
	assert.True(t, e.Handle(EventTrackDecodeComplete, ""))
	assert.Equal(t, []StatusCode{STMs, STMd}, sink.codes())
}
