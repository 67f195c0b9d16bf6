package pipeline

import (
	"time"

	"github.com/lyrplay/slimclient/internal/aba"
)

// TrackFrame is the mutable per-track bookkeeping state (the
// "Track Frame"). It is exclusive to pipeline main: every field here is
// read or written only from inside a Pipeline.do closure.
type TrackFrame struct {
	TrackStartBytes          uint64
	PreviousTrackStartBytes  uint64
	TotalBytesWritten        uint64
	TrackStartTimeOffsetSecs float64

	PendingBoundaryMark bool
	BoundaryBytes       uint64
	BoundarySet         bool

	SkipAheadBytesRemaining uint64
	SentBufferReady         bool
}

// queuedNextTrack is a gapless, same-format continuation: start_track was
// called for a new track while the current decoder is still draining.
// The producer loop splices it in once the current decoder reports
// natural end (ended + transport closed) without ever running two
// producers against the same output concurrently.
type queuedNextTrack struct {
	decoder                aba.Decoder
	startTimeOffsetSeconds float64
	replayGainLinear       float64
}

// pendingDeferredTrack is the "Pending Deferred Track": a
// format-mismatched gapless continuation, held until the output buffer
// fully drains (a stall-entered callback), at which point the output
// stream is recreated at the new format and the deferred track commits.
type pendingDeferredTrack struct {
	decoder                aba.Decoder
	sampleRate              int
	channels                int
	startTimeOffsetSeconds float64
	replayGainLinear       float64
}

// syncStartRequest is the "Synchronized Start Request": channel
// play is withheld until a 100ms monitor observes the deadline has
// passed.
type syncStartRequest struct {
	targetTime time.Time
}
