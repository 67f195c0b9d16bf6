package otoaba

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	oto "github.com/hajimehoshi/oto/v2"

	"github.com/lyrplay/slimclient/internal/aba"
)

// bytesPerSample is oto's PCM sample width in bytes. The teacher's
// livekit-speaker command opens its context with
// oto.NewContext(sampleRate, channels, 2) — 16-bit signed PCM — so this
// backend converts the pipeline's 32-bit float samples down to the same
// wire format oto is actually exercised with, rather than assuming a
// float32 context works without a demonstrated call site.
const bytesPerSample = 2

const (
	stallRecoveryBytes = 16 * 1024
	pollInterval       = 4 * time.Millisecond
)

type syncReg struct {
	kind aba.SyncKind
	arg  uint64
	cb   aba.SyncCallback
}

// Output is a real audio-device sink: Push converts float32 PCM to
// int16 and writes it into an io.Pipe that oto's Player drains at
// hardware rate, so PositionBytes tracks actual playback progress
// (derived from oto's own BufferedSize) instead of a synthetic clock.
type Output struct {
	mu     sync.Mutex
	format aba.Format

	ctx    *oto.Context
	player oto.Player
	pw     *io.PipeWriter

	state       aba.State
	totalPushed uint64 // float32-PCM bytes handed to Push
	stalled     bool

	volume float64
	gain   float64

	nextSyncID int
	syncs      map[int]*syncReg

	stopPoll chan struct{}
	pollDone chan struct{}
}

// New opens an oto playback context for format and starts draining it.
func New(format aba.Format) (*Output, error) {
	ctx, ready, err := oto.NewContext(format.SampleRate, format.Channels, bytesPerSample)
	if err != nil {
		return nil, aba.WrapErr(aba.ErrInvalidState, err)
	}
	<-ready

	o := &Output{
		format:   format,
		ctx:      ctx,
		state:    aba.StateStopped,
		volume:   1.0,
		gain:     1.0,
		syncs:    make(map[int]*syncReg),
		stopPoll: make(chan struct{}),
		pollDone: make(chan struct{}),
	}
	o.openPlayerLocked()
	go o.pollLoop()
	return o, nil
}

// openPlayerLocked (re)creates the pipe/player pair, discarding whatever
// was in flight. Callers must hold o.mu.
func (o *Output) openPlayerLocked() {
	pr, pw := io.Pipe()
	o.pw = pw
	o.player = o.ctx.NewPlayer(pr)
}

func (o *Output) Format() aba.Format { return o.format }

func (o *Output) Push(pcm []byte) (int, error) {
	if len(pcm)%4 != 0 {
		return 0, aba.WrapErr(aba.ErrDecodeFailed, nil)
	}

	o.mu.Lock()
	volume, gain := o.volume, o.gain
	pw := o.pw
	o.mu.Unlock()

	out := make([]byte, len(pcm)/4*bytesPerSample)
	for i := 0; i < len(pcm)/4; i++ {
		f := math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4 : i*4+4]))
		f *= float32(volume * gain)
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(floatToInt16(f)))
	}

	n, err := pw.Write(out)
	if err != nil {
		return 0, aba.WrapErr(aba.ErrTransportClosed, err)
	}

	o.mu.Lock()
	o.totalPushed += uint64(n) * 4 / bytesPerSample
	if o.stalled && o.bufferedFloatBytesLocked() >= stallRecoveryBytes {
		o.stalled = false
		if o.state == aba.StateStalled {
			o.state = aba.StatePlaying
		}
		o.fireStallLocked(aba.StallExited)
	}
	o.mu.Unlock()

	return len(pcm), nil
}

func floatToInt16(f float32) int16 {
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	if f < 0 {
		return int16(f * 32768.0)
	}
	return int16(f * 32767.0)
}

func (o *Output) Play(restart bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if restart {
		o.resetLocked()
	}
	o.player.Play()
	o.state = aba.StatePlaying
	return nil
}

func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == aba.StatePlaying || o.state == aba.StateStalled {
		o.player.Pause()
		o.state = aba.StatePaused
	}
	return nil
}

func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.player.Pause()
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
	return o.playedBytesLocked()
}

// QueuedBytes is always 0: Push writes straight into the pipe oto reads
// from, so there is no separate software-side backlog ahead of the
// device ring — the same shape as memaba.Output.QueuedBytes.
func (o *Output) QueuedBytes() uint64 { return 0 }

func (o *Output) AvailablePlaybackBytes() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bufferedFloatBytesLocked()
}

func (o *Output) SetPositionBytes(pos uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if pos != 0 {
		return aba.WrapErr(aba.ErrInvalidState, nil)
	}
	o.resetLocked()
	return nil
}

// resetLocked discards the in-flight player/pipe and starts a fresh one
// at position zero; oto gives no way to rewind a Player in place once
// bytes are written to its pipe. Callers must hold o.mu.
func (o *Output) resetLocked() {
	_ = o.player.Close()
	o.openPlayerLocked()
	o.totalPushed = 0
	o.stalled = false
}

// bufferedFloatBytesLocked converts oto's BufferedSize (int16-PCM bytes
// still unplayed) back into the float32-PCM byte units the rest of the
// pipeline accounts in. Callers must hold o.mu.
func (o *Output) bufferedFloatBytesLocked() uint64 {
	buffered := uint64(o.player.BufferedSize()) * 4 / bytesPerSample
	if buffered > o.totalPushed {
		return o.totalPushed
	}
	return buffered
}

func (o *Output) playedBytesLocked() uint64 {
	buffered := o.bufferedFloatBytesLocked()
	if buffered > o.totalPushed {
		return 0
	}
	return o.totalPushed - buffered
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
	o.mu.Lock()
	defer o.mu.Unlock()
	switch attr {
	case aba.AttrVolume:
		o.volume = value
	case aba.AttrDSPGain:
		o.gain = value
	}
	return nil
}

func (o *Output) Free() {
	close(o.stopPoll)
	<-o.pollDone
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.player.Close()
	o.syncs = nil
	o.state = aba.StateInvalid
}

func (o *Output) pollLoop() {
	defer close(o.pollDone)
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-o.stopPoll:
			return
		case <-t.C:
			o.poll()
		}
	}
}

func (o *Output) poll() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != aba.StatePlaying && o.state != aba.StateStalled {
		return
	}

	buffered := o.bufferedFloatBytesLocked()
	if !o.stalled && buffered == 0 && o.totalPushed > 0 {
		o.stalled = true
		o.state = aba.StateStalled
		o.fireStallLocked(aba.StallEntered)
	}
	o.firePositionLocked()
}

func (o *Output) fireStallLocked(dir aba.StallDirection) {
	for _, s := range o.syncs {
		if s.kind != aba.SyncStall {
			continue
		}
		cb := s.cb
		go cb(aba.SyncEvent{Kind: aba.SyncStall, Stall: dir})
	}
}

func (o *Output) firePositionLocked() {
	played := o.playedBytesLocked()
	for id, s := range o.syncs {
		if s.kind != aba.SyncPositionByte {
			continue
		}
		if played >= s.arg {
			cb := s.cb
			delete(o.syncs, id)
			go cb(aba.SyncEvent{Kind: aba.SyncPositionByte, Position: played})
		}
	}
}
