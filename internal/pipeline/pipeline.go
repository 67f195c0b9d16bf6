// Package pipeline implements the Push-Stream Decoder Pipeline (PSD): the
// producer/consumer loop that turns a sequence of per-track HTTP decode
// streams into one continuous, gapless PCM feed to a single Audio Backend
// Output, plus the byte-exact boundary/position bookkeeping the rest of
// the player depends on.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyrplay/slimclient/internal/aba"
	"github.com/lyrplay/slimclient/internal/pacer"
	"github.com/lyrplay/slimclient/internal/pee"
	"github.com/lyrplay/slimclient/internal/ppm"
)

const (
	syncStartLookahead     = 10 * time.Second
	syncStartPollInterval  = 100 * time.Millisecond
	bufferReadyFraction    = 0.5 // a configured fraction of one soft-ceiling window
)

// Logger is the slice of a structured logger the pipeline needs. Kept
// local and minimal so this package doesn't have to import a concrete
// logging backend; internal/logs.Logger satisfies it.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// AttrSnapshot returns the attribute values (volume, replay gain) that
// should be applied to a freshly created output stream.
type AttrSnapshot func() map[aba.Attr]float64

// MetricsObserver receives optional instrumentation from the producer
// loop. A nil MetricsObserver is valid and simply means nothing is
// observed; internal/metrics.Metrics satisfies this interface.
type MetricsObserver interface {
	SetBufferDepth(bytes uint64)
	ObserveDecoderSleep()
}

// op is a closure marshalled onto pipeline main, the single serialization
// point every Track Frame mutation passes through.
type op func()

// Pipeline is the PSD. One Pipeline exists per player session; it owns at
// most one aba.Output and, at any instant, at most one actively decoding
// aba.Decoder.
type Pipeline struct {
	backend      aba.Backend
	logger       Logger
	attrs        AttrSnapshot
	streamInfoFn func(aba.StreamInfo)
	metricsObs   MetricsObserver

	ops      chan op
	stopMain chan struct{}
	mainDone chan struct{}

	events chan Event

	closeOnce sync.Once

	// Everything below is touched only from inside the mainLoop goroutine
	// (i.e. only from within a closure sent to ops).
	output         aba.Output
	outputFormat   aba.Format
	stallSyncID    int
	boundarySyncID int
	playPending    bool

	decoder         aba.Decoder
	queuedNext      *queuedNextTrack
	pendingDeferred *pendingDeferredTrack
	syncStart       *syncStartRequest
	manualStop      bool
	currentTrackID  string // correlates log lines for one track's decode lifecycle

	frame TrackFrame
	state State

	producerCancel context.CancelFunc
}

// New builds a Pipeline. attrs may be nil, meaning no stored
// volume/replay-gain is applied to freshly created outputs.
func New(backend aba.Backend, logger Logger, attrs AttrSnapshot) *Pipeline {
	if logger == nil {
		logger = noopLogger{}
	}
	p := &Pipeline{
		backend:  backend,
		logger:   logger,
		attrs:    attrs,
		ops:      make(chan op, 32),
		stopMain: make(chan struct{}),
		mainDone: make(chan struct{}),
		events:   make(chan Event, 64),
		state:    StateIdle,
	}
	go p.mainLoop()
	go p.syncStartMonitor()
	return p
}

// Events returns the pipeline's outbound event channel. The coordinator
// reads from it and forwards each Event into a pee.Emitter.
func (p *Pipeline) Events() <-chan Event { return p.events }

// SetStreamInfoObserver installs fn to be called, on pipeline main, with
// a freshly created decoder's StreamInfo (internal/smr's hook into
// format/bitrate discovery at decoder creation). Call
// before the first StartTrack; nil disables the hook.
func (p *Pipeline) SetStreamInfoObserver(fn func(aba.StreamInfo)) {
	p.do(func() { p.streamInfoFn = fn })
}

// SetMetricsObserver installs an optional MetricsObserver the producer
// loop reports buffer depth and pacing sleeps to. Call before StartTrack;
// nil disables observation.
func (p *Pipeline) SetMetricsObserver(m MetricsObserver) {
	p.do(func() { p.metricsObs = m })
}

// State reports the current pipeline state machine value.
func (p *Pipeline) State() State {
	var s State
	p.do(func() { s = p.state })
	return s
}

// Close stops pipeline main and frees any live output/decoder. It does
// not wait for an in-flight producer goroutine started before Close was
// called to exit; callers that need that should StopTrack first.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.do(func() {
			if p.producerCancel != nil {
				p.producerCancel()
			}
			if p.decoder != nil {
				p.decoder.Free()
				p.decoder = nil
			}
			if p.queuedNext != nil {
				p.queuedNext.decoder.Free()
				p.queuedNext = nil
			}
			if p.pendingDeferred != nil {
				p.pendingDeferred.decoder.Free()
				p.pendingDeferred = nil
			}
			if p.output != nil {
				p.output.Free()
				p.output = nil
			}
		})
		close(p.stopMain)
		<-p.mainDone
	})
}

func (p *Pipeline) mainLoop() {
	defer close(p.mainDone)
	for {
		select {
		case <-p.stopMain:
			return
		case f := <-p.ops:
			f()
		}
	}
}

// do enqueues fn onto pipeline main and blocks until it has run.
func (p *Pipeline) do(fn func()) {
	done := make(chan struct{})
	p.ops <- func() {
		fn()
		close(done)
	}
	<-done
}

func (p *Pipeline) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		// The coordinator is the only reader and is expected to keep up;
		// a full buffer here means it has fallen badly behind. Drop
		// rather than block pipeline main indefinitely.
		p.logger.Warnf("pipeline: event channel full, dropping %v", ev.Kind)
	}
}

func (p *Pipeline) syncStartMonitor() {
	t := time.NewTicker(syncStartPollInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stopMain:
			return
		case now := <-t.C:
			p.do(func() { p.checkSyncStartLocked(now) })
		}
	}
}

func (p *Pipeline) checkSyncStartLocked(now time.Time) {
	if p.syncStart == nil || p.output == nil {
		return
	}
	if !now.Before(p.syncStart.targetTime) {
		p.issuePlayLocked()
		p.syncStart = nil
	}
}

func (p *Pipeline) issuePlayLocked() {
	if p.output == nil || !p.playPending {
		return
	}
	if err := p.output.Play(false); err != nil {
		p.logger.Errorf("pipeline: play failed: %v", err)
	}
	p.playPending = false
}

func (p *Pipeline) applyAttrsLocked() {
	if p.attrs == nil || p.output == nil {
		return
	}
	for attr, value := range p.attrs() {
		if err := p.output.SetAttr(attr, value); err != nil {
			p.logger.Warnf("pipeline: apply stored attr %v failed: %v", attr, err)
		}
	}
}

func (p *Pipeline) applyReplayGainLocked(linear float64) {
	if p.output == nil || linear == 0 {
		return
	}
	if err := p.output.SetAttr(aba.AttrDSPGain, linear); err != nil {
		p.logger.Warnf("pipeline: apply replay gain failed: %v", err)
	}
}

// ApplyAttr pushes a live attribute change (volume, DSP-gain) to the
// current output, if one exists. When there is no current output the
// call is a no-op: the value is expected to already be stored by the
// caller (internal/vrg) and will be picked up through AttrSnapshot the
// next time an output is created.
func (p *Pipeline) ApplyAttr(attr aba.Attr, value float64) error {
	var retErr error
	p.do(func() {
		if p.output == nil {
			return
		}
		retErr = p.output.SetAttr(attr, value)
	})
	return retErr
}

// EnsureOutput creates the output stream at the given format if one
// doesn't already exist, applying any stored volume/replay-gain.
func (p *Pipeline) EnsureOutput(format aba.Format) error {
	var retErr error
	p.do(func() {
		if p.output != nil {
			return
		}
		out, err := p.backend.CreateOutput(format)
		if err != nil {
			retErr = err
			return
		}
		p.output = out
		p.outputFormat = format
		p.applyAttrsLocked()
		p.stallSyncID, _ = p.output.RegisterSync(aba.SyncStall, 0, p.onStall)
		p.playPending = true
		p.state = StateIdle
	})
	return retErr
}

// StartTrack begins (or schedules, for a gapless format-mismatch) decode
// of a new track. url/format describe the HTTP decode source; isNewTrack
// distinguishes a fresh track (gapless continuation candidate) from a
// same-track restart (manual skip_ahead/seek, which always reuses or
// recreates the output immediately). startTimeOffsetSeconds and
// replayGainLinear are per-track metadata applied at the point this
// track actually becomes current.
func (p *Pipeline) StartTrack(url, format string, isNewTrack bool, startTimeOffsetSeconds, replayGainLinear float64) error {
	dec, err := p.backend.CreateDecoder(url, format, aba.DecoderFlags{FloatSamples: true})
	if err != nil {
		p.do(func() { p.onDecoderCreateFailedLocked(err) })
		return err
	}
	info := dec.StreamInfo()
	newFormat := aba.Format{SampleRate: info.SampleRate, Channels: info.Channels}
	trackID := uuid.NewString()

	var retErr error
	p.do(func() {
		p.currentTrackID = trackID
		p.logger.Debugf("pipeline: track %s connected url=%s format=%s gapless=%v", trackID, url, format, isNewTrack)
		p.emit(Event{Kind: pee.EventStreamConnected})
		if p.streamInfoFn != nil {
			p.streamInfoFn(info)
		}

		formatMismatch := p.output != nil && newFormat != p.outputFormat
		switch {
		case isNewTrack && formatMismatch:
			if p.pendingDeferred != nil {
				// A deferred track was already queued and never committed
				// (e.g. two format changes queued back to back); the
				// earlier one loses its decode source.
				p.pendingDeferred.decoder.Free()
			}
			p.pendingDeferred = &pendingDeferredTrack{
				decoder:                dec,
				sampleRate:             info.SampleRate,
				channels:               info.Channels,
				startTimeOffsetSeconds: startTimeOffsetSeconds,
				replayGainLinear:       replayGainLinear,
			}
			p.syncStart = nil
			p.state = StateDeferred

		case !isNewTrack && formatMismatch:
			if err := p.recreateOutputLocked(newFormat); err != nil {
				retErr = err
				return
			}
			p.frame = TrackFrame{TrackStartTimeOffsetSecs: startTimeOffsetSeconds, PendingBoundaryMark: true}
			p.applyReplayGainLocked(replayGainLinear)
			p.beginDecodingLocked(dec)

		default:
			if p.output == nil {
				out, err := p.backend.CreateOutput(newFormat)
				if err != nil {
					retErr = err
					return
				}
				p.output = out
				p.outputFormat = newFormat
				p.applyAttrsLocked()
				p.stallSyncID, _ = p.output.RegisterSync(aba.SyncStall, 0, p.onStall)
				p.playPending = true
			}
			p.startSameFormatTrackLocked(dec, isNewTrack, startTimeOffsetSeconds, replayGainLinear)
		}
	})
	return retErr
}

// startSameFormatTrackLocked handles every start_track call whose decoded
// format matches the current output (or there is no current output yet).
func (p *Pipeline) startSameFormatTrackLocked(dec aba.Decoder, isNewTrack bool, startTimeOffsetSeconds, replayGainLinear float64) {
	switch {
	case p.decoder != nil && isNewTrack:
		// A producer is actively draining the current track: queue this
		// one for a gapless, same-output hand-off at natural end rather
		// than running two producers against one output concurrently.
		if p.queuedNext != nil {
			p.queuedNext.decoder.Free()
		}
		p.queuedNext = &queuedNextTrack{
			decoder:                dec,
			startTimeOffsetSeconds: startTimeOffsetSeconds,
			replayGainLinear:       replayGainLinear,
		}

	case !isNewTrack:
		p.frame.TrackStartBytes = p.output.PositionBytes()
		p.frame.PreviousTrackStartBytes = 0
		p.frame.TotalBytesWritten = p.frame.TrackStartBytes
		p.frame.BoundarySet = false
		// The first chunk marks a boundary, so track_started fires once
		// this track's first byte is heard.
		p.frame.PendingBoundaryMark = true
		p.frame.TrackStartTimeOffsetSecs = startTimeOffsetSeconds
		p.frame.SentBufferReady = false
		p.applyReplayGainLocked(replayGainLinear)
		p.beginDecodingLocked(dec)

	default: // nothing currently decoding, fresh track
		p.frame.PendingBoundaryMark = true
		p.frame.PreviousTrackStartBytes = p.frame.TrackStartBytes
		p.frame.TrackStartTimeOffsetSecs = startTimeOffsetSeconds
		p.frame.SentBufferReady = false
		p.applyReplayGainLocked(replayGainLinear)
		p.beginDecodingLocked(dec)
	}
}

func (p *Pipeline) beginDecodingLocked(dec aba.Decoder) {
	p.decoder = dec
	p.manualStop = false
	if p.frame.PendingBoundaryMark {
		p.state = StateDrainingToBoundary
	} else {
		p.state = StateDecoding
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.producerCancel = cancel
	go p.runProducer(ctx, dec)
}

func (p *Pipeline) recreateOutputLocked(newFormat aba.Format) error {
	if p.output != nil {
		if p.stallSyncID != 0 {
			p.output.UnregisterSync(p.stallSyncID)
		}
		p.output.Free()
	}
	out, err := p.backend.CreateOutput(newFormat)
	if err != nil {
		return err
	}
	p.output = out
	p.outputFormat = newFormat
	p.applyAttrsLocked()
	p.stallSyncID, _ = p.output.RegisterSync(aba.SyncStall, 0, p.onStall)
	p.playPending = true
	return nil
}

func (p *Pipeline) onDecoderCreateFailedLocked(err error) {
	var aerr *aba.Error
	code := aba.ErrDecodeFailed.String()
	if errors.As(err, &aerr) {
		code = aerr.Code.String()
		if aerr.Code == aba.ErrUnsupportedFormat {
			p.emit(Event{Kind: pee.EventStreamFailed, ErrorCode: code})
			p.state = StateErrored
			return
		}
	}
	// Transient failures (e.g. timeout) are not a PEE event: the
	// coordinator inspects the returned error itself to decide whether a
	// minimal-seek retry applies.
	p.state = StateErrored
}

// onStall is registered once per output lifetime. A steady-state stall
// needs no action (the backend auto-resumes); a stall while a format-
// mismatched track is pending commits that track.
func (p *Pipeline) onStall(ev aba.SyncEvent) {
	p.do(func() {
		if ev.Stall == aba.StallEntered && p.pendingDeferred != nil {
			p.commitDeferredTrackLocked()
		}
	})
}

func (p *Pipeline) commitDeferredTrackLocked() {
	pd := p.pendingDeferred
	p.pendingDeferred = nil

	if p.producerCancel != nil {
		p.producerCancel()
	}
	if p.decoder != nil {
		p.decoder.Free()
		p.decoder = nil
	}
	if p.queuedNext != nil {
		p.queuedNext.decoder.Free()
		p.queuedNext = nil
	}

	newFormat := aba.Format{SampleRate: pd.sampleRate, Channels: pd.channels}
	if err := p.recreateOutputLocked(newFormat); err != nil {
		p.emit(Event{Kind: pee.EventTrackDecodeError, ErrorCode: "decoder_create_failed"})
		p.state = StateErrored
		return
	}

	p.frame = TrackFrame{TrackStartTimeOffsetSecs: pd.startTimeOffsetSeconds}
	p.syncStart = nil
	p.manualStop = false
	p.applyReplayGainLocked(pd.replayGainLinear)

	if err := p.output.Play(true); err != nil {
		p.emit(Event{Kind: pee.EventTrackDecodeError, ErrorCode: "play_failed"})
		p.state = StateErrored
		return
	}
	p.playPending = false

	p.decoder = pd.decoder
	p.state = StatePlaying
	p.emit(Event{Kind: pee.EventDeferredTrackStarted})

	ctx, cancel := context.WithCancel(context.Background())
	p.producerCancel = cancel
	go p.runProducer(ctx, p.decoder)
}

func (p *Pipeline) onBoundaryFired(ev aba.SyncEvent) {
	p.do(func() {
		if p.boundarySyncID != 0 {
			p.output.UnregisterSync(p.boundarySyncID)
			p.boundarySyncID = 0
		}
		p.frame.BoundarySet = false
		p.frame.PreviousTrackStartBytes = 0
		p.emit(Event{Kind: pee.EventTrackStarted})
		if p.state == StateDrainingToBoundary {
			p.state = StatePlaying
		}
	})
}

// StopTrack is a manual stop (strm_stop): it suppresses the decode-
// complete event the producer would otherwise emit and tears down the
// current and any queued/deferred decode sources.
func (p *Pipeline) StopTrack() {
	p.do(func() {
		p.manualStop = true
		if p.producerCancel != nil {
			p.producerCancel()
		}
		if p.decoder != nil {
			p.decoder.Free()
			p.decoder = nil
		}
		if p.queuedNext != nil {
			p.queuedNext.decoder.Free()
			p.queuedNext = nil
		}
		if p.pendingDeferred != nil {
			p.pendingDeferred.decoder.Free()
			p.pendingDeferred = nil
		}
		p.syncStart = nil
		p.state = StateIdle
	})
}

// Pause pauses the output stream in place.
func (p *Pipeline) Pause() error {
	var retErr error
	p.do(func() {
		if p.output == nil {
			return
		}
		retErr = p.output.Pause()
	})
	return retErr
}

// Resume continues a paused output stream.
func (p *Pipeline) Resume() error {
	var retErr error
	p.do(func() {
		if p.output == nil {
			return
		}
		retErr = p.output.Play(false)
	})
	return retErr
}

// FlushBuffer resets the output stream's position to 0 and restarts it,
// zeroing the track frame. The coordinator calls it before a manual
// (non-gapless) start.
func (p *Pipeline) FlushBuffer() error {
	var retErr error
	p.do(func() {
		if p.output == nil {
			return
		}
		if err := p.output.SetPositionBytes(0); err != nil {
			retErr = err
			return
		}
		if err := p.output.Play(true); err != nil {
			retErr = err
			return
		}
		p.frame = TrackFrame{}
		p.playPending = false
	})
	return retErr
}

// StartAt withholds channel_play until monotonic time reaches targetTime,
// unless that deadline is further than the bounded look-ahead away, in
// which case it is treated as misconfiguration and played immediately.
func (p *Pipeline) StartAt(targetTime time.Time) {
	p.do(func() {
		if p.output == nil {
			return
		}
		if targetTime.Sub(time.Now()) > syncStartLookahead {
			p.issuePlayLocked()
			return
		}
		p.syncStart = &syncStartRequest{targetTime: targetTime}
	})
}

// SkipAhead discards the next seconds worth of decoded PCM before it
// reaches the output, without touching the output's own position.
func (p *Pipeline) SkipAhead(seconds float64) {
	p.do(func() {
		if p.output == nil || seconds <= 0 {
			return
		}
		n := uint64(seconds * float64(p.outputFormat.BytesPerSecond()))
		p.frame.SkipAheadBytesRemaining += n
	})
}

// PlaySilence pushes seconds worth of silence directly to the output,
// ahead of whatever the producer is decoding.
func (p *Pipeline) PlaySilence(seconds float64) error {
	var retErr error
	p.do(func() {
		if p.output == nil {
			retErr = aba.Code(aba.ErrInvalidState)
			return
		}
		n := uint64(seconds * float64(p.outputFormat.BytesPerSecond()))
		if n == 0 {
			return
		}
		silence := make([]byte, n)
		if _, err := p.output.Push(silence); err != nil {
			retErr = err
			return
		}
		p.frame.TotalBytesWritten += n
	})
	return retErr
}

// CurrentPositionSeconds implements the Playback Position Model
// against the live Track Frame and output stream.
func (p *Pipeline) CurrentPositionSeconds() float64 {
	var pos float64
	p.do(func() {
		if p.output == nil {
			return
		}
		f := ppm.Frame{
			TrackStartBytes:          p.frame.TrackStartBytes,
			PreviousTrackStartBytes:  p.frame.PreviousTrackStartBytes,
			BoundaryBytes:            p.frame.BoundaryBytes,
			BoundarySet:              p.frame.BoundarySet,
			TrackStartTimeOffsetSecs: p.frame.TrackStartTimeOffsetSecs,
			SampleRate:               p.outputFormat.SampleRate,
			Channels:                 p.outputFormat.Channels,
		}
		pos = ppm.CurrentPosition(f, p.output.State(), p.output.PositionBytes())
	})
	return pos
}
