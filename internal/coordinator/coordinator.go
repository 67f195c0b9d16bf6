// Package coordinator implements the command-to-pipeline dispatch layer
// that sits between the server-protocol transport and internal/pipeline,
// and owns the internal/pee emitter that turns pipeline events into
// server status codes.
package coordinator

import (
	"errors"
	"sync"
	"time"

	"github.com/lyrplay/slimclient/internal/aba"
	"github.com/lyrplay/slimclient/internal/pee"
	"github.com/lyrplay/slimclient/internal/pipeline"
	"github.com/lyrplay/slimclient/internal/smr"
	"github.com/lyrplay/slimclient/internal/vrg"
	"github.com/lyrplay/slimclient/internal/webui"
)

// Logger is reused from internal/pipeline so this package stays
// decoupled from a concrete logging backend the same way pipeline does.
type Logger = pipeline.Logger

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// ProtocolSink receives everything the coordinator sends back downstream:
// status-code emissions (via the embedded pee.Sink), best-effort minimal
// seek nudges, and raw ICY metadata forwarding.
type ProtocolSink interface {
	pee.Sink
	// RequestSeek asks the server-protocol layer to nudge playback
	// forward by seconds (a minimal seek request).
	RequestSeek(seconds float64)
	// ForwardMetadata passes a raw ICY frame through to the protocol
	// layer unparsed; internal/smr owns actual ICY parsing.
	ForwardMetadata(raw string)
}

// StrmStart mirrors the strm_start command fields.
type StrmStart struct {
	URL                 string
	Format              string
	StartTimeOffsetSecs float64
	ReplayGainLinear    float64
	IsGapless           bool
	// TargetStartTime, if non-zero, schedules a synchronized start
	// instead of playing as soon as the buffer is ready.
	TargetStartTime time.Time
}

// Coordinator is the Playback Coordinator. All of its exported methods
// are safe to call concurrently: mu guards the emitter and the seek flag
// shared with pipeline-event forwarding, and every pipeline call is
// serialized by the pipeline's own main loop. Commands are not
// serialized against each other as a whole.
type Coordinator struct {
	pipe   *pipeline.Pipeline
	gain   *vrg.Controller
	meta   *smr.Reader
	sink   ProtocolSink
	logger Logger

	mu       sync.Mutex
	emitter  *pee.Emitter
	seekSent bool // rate-limits the minimal-seek nudge to once per transition

	stop chan struct{}
	done chan struct{}
}

// New builds a Coordinator and starts forwarding pipe's events to sink
// through a pee.Emitter. gain should be the same Controller whose
// Snapshot was passed to pipeline.New, so a live set_volume/
// set_replay_gain command and a freshly (re)created output agree. meta
// is wired as pipe's stream-info observer, so format/bitrate discovery
// happens automatically at every decoder creation.
func New(pipe *pipeline.Pipeline, gain *vrg.Controller, meta *smr.Reader, sink ProtocolSink, logger Logger) *Coordinator {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Coordinator{
		pipe:    pipe,
		gain:    gain,
		meta:    meta,
		sink:    sink,
		logger:  logger,
		emitter: pee.NewEmitter(sink),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	pipe.SetStreamInfoObserver(meta.OnDecoderCreated)
	go c.forwardEvents()
	return c
}

// Close stops the event-forwarding goroutine. It does not close pipe.
func (c *Coordinator) Close() {
	close(c.stop)
	<-c.done
}

// forwardEvents relays pipe.Events() into PEE, calling BeginTrack at the
// start of every new track frame (the natural point in the pipeline to
// call it: "once per new track frame, gapless boundary crossing or
// manual skip alike" — stream_connected fires exactly there, for both a
// fresh track and a gapless queue-ahead).
func (c *Coordinator) forwardEvents() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case ev := <-c.pipe.Events():
			c.mu.Lock()
			if ev.Kind == pee.EventStreamConnected {
				c.emitter.BeginTrack()
				c.seekSent = false
			}
			c.emitter.Handle(ev.Kind, ev.ErrorCode)
			c.mu.Unlock()
		}
	}
}

// StrmStart handles the strm_start command. For a manual skip
// (IsGapless == false) the previous track is stopped and the output
// buffer flushed before the new decoder starts; for a gapless
// continuation neither happens, letting the previous decoder conclude
// naturally while the new one begins.
func (c *Coordinator) StrmStart(cmd StrmStart) error {
	if !cmd.IsGapless {
		c.mu.Lock()
		c.emitter.SetManualStop()
		c.mu.Unlock()
		c.pipe.StopTrack()
		if err := c.pipe.FlushBuffer(); err != nil {
			c.logger.Warnf("coordinator: flush_buffer before manual start failed: %v", err)
		}
		if err := c.gain.Resume(pipelineOutput{c.pipe}); err != nil {
			c.logger.Warnf("coordinator: re-apply gain before manual start failed: %v", err)
		}
	}

	// "in the middle of a track transition" (the timeout carve-out):
	// something is already actively decoding/playing besides this call,
	// i.e. this StrmStart is itself a gapless prefetch layered on top of
	// an in-flight track rather than the sole transition underway.
	inTransition := cmd.IsGapless && c.activeBeforeStart()

	err := c.pipe.StartTrack(cmd.URL, cmd.Format, cmd.IsGapless, cmd.StartTimeOffsetSecs, cmd.ReplayGainLinear)
	if err != nil {
		c.handleStartTrackFailure(err, inTransition)
		return err
	}

	if !cmd.TargetStartTime.IsZero() && c.pipe.State() != pipeline.StateDeferred {
		c.pipe.StartAt(cmd.TargetStartTime)
	}
	return nil
}

func (c *Coordinator) activeBeforeStart() bool {
	switch c.pipe.State() {
	case pipeline.StateDecoding, pipeline.StateDrainingToBoundary, pipeline.StatePlaying:
		return true
	default:
		return false
	}
}

// handleStartTrackFailure applies the failure-handling taxonomy
// for decoder-creation errors. unsupported_format already produced a
// stream_failed event inside the pipeline itself; a timeout gets a
// best-effort, rate-limited minimal seek request when it isn't layered
// on top of an in-flight transition (SPEC_FULL.md Open Question #3).
func (c *Coordinator) handleStartTrackFailure(err error, inTransition bool) {
	var abaErr *aba.Error
	if !errors.As(err, &abaErr) || abaErr.Code != aba.ErrTimeout {
		return
	}
	if inTransition {
		return
	}
	c.mu.Lock()
	already := c.seekSent
	c.seekSent = true
	c.mu.Unlock()
	if already {
		return
	}
	c.sink.RequestSeek(0.05)
}

// StrmPause handles strm_pause.
func (c *Coordinator) StrmPause() error { return c.pipe.Pause() }

// StrmResume handles strm_resume: resumes output and, if silent-recovery
// mode is currently armed from an earlier stall/reopen, re-applies the
// muted gain (or the stored replay gain once recovery has cleared)
// instead of leaving whatever attribute value the output already has.
func (c *Coordinator) StrmResume() error {
	if err := c.pipe.Resume(); err != nil {
		return err
	}
	return c.gain.Resume(pipelineOutput{c.pipe})
}

// pipelineOutput adapts Pipeline.ApplyAttr to vrg.Output, so
// Controller.Resume/RestoreGain can push a gain value straight at
// whatever output currently exists without the coordinator reaching
// into the pipeline's internals.
type pipelineOutput struct{ pipe *pipeline.Pipeline }

func (p pipelineOutput) SetAttr(attr aba.Attr, value float64) error {
	return p.pipe.ApplyAttr(attr, value)
}

// StrmStop handles strm_stop: a manual stop, so pending STMd from the
// track being torn down must be suppressed.
func (c *Coordinator) StrmStop() {
	c.mu.Lock()
	c.emitter.SetManualStop()
	c.mu.Unlock()
	c.pipe.StopTrack()
}

// SkipAhead handles skip_ahead(seconds).
func (c *Coordinator) SkipAhead(seconds float64) { c.pipe.SkipAhead(seconds) }

// PlaySilence handles play_silence(seconds).
func (c *Coordinator) PlaySilence(seconds float64) error { return c.pipe.PlaySilence(seconds) }

// StartAt handles an out-of-band start_at, independent of strm_start's
// own TargetStartTime field (used when the server updates the
// synchronized-start deadline after the stream has already begun).
func (c *Coordinator) StartAt(targetTime time.Time) { c.pipe.StartAt(targetTime) }

// MetadataRequestFromICY hands a raw ICY frame to internal/smr for
// StreamTitle parsing and forwards the raw frame to the protocol layer
// unchanged.
func (c *Coordinator) MetadataRequestFromICY(raw string) {
	c.meta.OnICYMetadata(raw)
	c.sink.ForwardMetadata(raw)
}

// StreamInfo returns the current read-through stream metadata.
func (c *Coordinator) StreamInfo() smr.StreamInfo { return c.meta.Current() }

// RequestFreshMetadata handles request_fresh_metadata: the transport
// layer wants the current cached snapshot out-of-band rather than
// waiting for the next ICY frame.
func (c *Coordinator) RequestFreshMetadata() smr.StreamInfo { return c.meta.Current() }

// CurrentPositionSeconds exposes the pipeline's position query for the
// STAT heartbeat the transport layer sends to the server.
func (c *Coordinator) CurrentPositionSeconds() float64 { return c.pipe.CurrentPositionSeconds() }

// Snapshot implements webui.Source for the diagnostics status push.
func (c *Coordinator) Snapshot() webui.Snapshot {
	return webui.Snapshot{
		PipelineState:   c.pipe.State().String(),
		PositionSeconds: c.pipe.CurrentPositionSeconds(),
		Connected:       c.pipe.State() != pipeline.StateIdle,
	}
}

// PipelineState exposes the pipeline's current state label so the
// transport layer can feed it into a health.Tracker alongside its own
// connection-up/down signal.
func (c *Coordinator) PipelineState() string { return c.pipe.State().String() }

// SetVolume handles set_volume(v): stores the clamped value and, if a
// stream is already open, applies it live.
func (c *Coordinator) SetVolume(v float64) error {
	if err := c.gain.SetVolume(nil, v); err != nil {
		return err
	}
	return c.pipe.ApplyAttr(aba.AttrVolume, c.gain.Snapshot()[aba.AttrVolume])
}

// SetReplayGain handles set_replay_gain(g): stores the clamped value
// and, if a stream is open and silent-recovery isn't active, applies it
// live.
func (c *Coordinator) SetReplayGain(g float64) error {
	if err := c.gain.SetReplayGain(nil, g); err != nil {
		return err
	}
	return c.pipe.ApplyAttr(aba.AttrDSPGain, c.gain.Snapshot()[aba.AttrDSPGain])
}
