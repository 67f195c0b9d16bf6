// Package abatest is a fully deterministic, manually-advanced fake of the
// Audio Backend Adapter contract for unit-testing PSD/PPM invariants
// without any real or simulated clock: callers drive byte-position
// advancement explicitly by calling Advance, which fires the position
// syncs it crosses. A position sync registered at a byte playback has
// already reached fires at once, on its own goroutine.
package abatest

import (
	"io"
	"sort"
	"sync"

	"github.com/lyrplay/slimclient/internal/aba"
)

// Output is a manually-driven fake aba.Output. Tests call Advance to move
// the playhead forward by an exact byte count and observe which sync
// callbacks fire, with no wall-clock dependency.
type Output struct {
	mu sync.Mutex

	format      aba.Format
	state       aba.State
	buf         []byte
	totalPushed uint64
	playedBytes uint64

	syncs  map[int]*syncReg
	nextID int

	PushCalls int
	StopCalls int
}

type syncReg struct {
	kind aba.SyncKind
	arg  uint64
	cb   aba.SyncCallback
}

func NewOutput(format aba.Format) *Output {
	return &Output{
		format: format,
		state:  aba.StateStopped,
		syncs:  make(map[int]*syncReg),
	}
}

func (o *Output) Format() aba.Format { return o.format }

func (o *Output) Push(pcm []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.PushCalls++
	o.buf = append(o.buf, pcm...)
	o.totalPushed += uint64(len(pcm))
	return len(o.buf), nil
}

func (o *Output) Play(restart bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if restart {
		o.buf = nil
		o.totalPushed = 0
		o.playedBytes = 0
	}
	o.state = aba.StatePlaying
	return nil
}

func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = aba.StatePaused
	return nil
}

func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.StopCalls++
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

// QueuedBytes mirrors memaba: Push hands data straight to the device
// ring, so there is never a separate software-side backlog here.
func (o *Output) QueuedBytes() uint64 { return 0 }

// AvailablePlaybackBytes is the not-yet-played ring contents, kept
// distinct from QueuedBytes so boundary_bytes = playback + queued +
// available sums each not-yet-played byte exactly once.
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
	return nil
}

func (o *Output) RegisterSync(kind aba.SyncKind, arg uint64, cb aba.SyncCallback) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	if kind == aba.SyncPositionByte && o.playedBytes >= arg {
		// Already reached: fire asynchronously, since the caller may be
		// holding its own serialization point while registering.
		pos := o.playedBytes
		go cb(aba.SyncEvent{Kind: aba.SyncPositionByte, Position: pos})
		return id, nil
	}
	o.syncs[id] = &syncReg{kind: kind, arg: arg, cb: cb}
	return id, nil
}

func (o *Output) UnregisterSync(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.syncs, id)
}

func (o *Output) SetAttr(attr aba.Attr, value float64) error { return nil }

// PushCount is a lock-protected read of PushCalls, safe to poll from a
// test goroutine while the producer under test is still pushing.
func (o *Output) PushCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.PushCalls
}

// StopCount is a lock-protected read of StopCalls.
func (o *Output) StopCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.StopCalls
}

func (o *Output) Free() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = aba.StateInvalid
	o.syncs = nil
}

// Advance moves the playhead forward by exactly n bytes (capped at what
// has been pushed), firing any position_byte syncs whose threshold is
// newly crossed, synchronously and in registration order. It does not
// fire stall events; call FireStall explicitly when a test wants to
// exercise stall handling.
func (o *Output) Advance(n uint64) {
	o.mu.Lock()
	avail := o.totalPushed - o.playedBytes
	if n > avail {
		n = avail
	}
	o.playedBytes += n
	if n <= uint64(len(o.buf)) {
		o.buf = o.buf[n:]
	} else {
		o.buf = nil
	}
	fire := o.dueSyncsLocked()
	o.mu.Unlock()
	for _, f := range fire {
		f()
	}
}

func (o *Output) dueSyncsLocked() []func() {
	ids := make([]int, 0, len(o.syncs))
	for id := range o.syncs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var fire []func()
	for _, id := range ids {
		s := o.syncs[id]
		if s.kind != aba.SyncPositionByte || o.playedBytes < s.arg {
			continue
		}
		cb, pos := s.cb, o.playedBytes
		delete(o.syncs, id)
		fire = append(fire, func() { cb(aba.SyncEvent{Kind: aba.SyncPositionByte, Position: pos}) })
	}
	return fire
}

// FireStall synchronously invokes every registered stall sync with the
// given direction.
func (o *Output) FireStall(dir aba.StallDirection) {
	o.mu.Lock()
	var fire []func()
	for _, s := range o.syncs {
		if s.kind != aba.SyncStall {
			continue
		}
		cb := s.cb
		fire = append(fire, func() { cb(aba.SyncEvent{Kind: aba.SyncStall, Stall: dir}) })
	}
	o.mu.Unlock()
	for _, f := range fire {
		f()
	}
}

// Decoder is a fake aba.Decoder backed by an in-memory byte slice, so
// tests can feed exact, pre-built PCM payloads without HTTP or a real
// codec.
type Decoder struct {
	mu        sync.Mutex
	data      []byte
	pos       int
	info      aba.StreamInfo
	connected bool
	ReadErr   error
}

func NewDecoder(data []byte, info aba.StreamInfo) *Decoder {
	return &Decoder{data: data, info: info, connected: true}
}

func (d *Decoder) StreamInfo() aba.StreamInfo { return d.info }

func (d *Decoder) Read(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ReadErr != nil {
		return 0, d.ReadErr
	}
	if d.pos >= len(d.data) {
		d.connected = false
		return 0, aba.WrapErr(aba.ErrEnded, io.EOF)
	}
	n := copy(buf, d.data[d.pos:])
	d.pos += n
	return n, nil
}

func (d *Decoder) TransportConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *Decoder) RegisterMetaSync(cb aba.SyncCallback) (int, error) { return 0, nil }

func (d *Decoder) Free() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
}

// SetTransportClosed lets a test simulate the HTTP connection dropping
// independent of data exhaustion.
func (d *Decoder) SetTransportClosed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
}

// Backend wires Output/Decoder fakes together behind aba.Backend for
// tests that exercise the coordinator/pipeline through the interface
// boundary.
type Backend struct {
	mu         sync.Mutex
	Outputs    []*Output
	Decoders   map[string]*Decoder // keyed by URL
	DecodeErrs map[string]error    // keyed by URL, checked before Decoders
}

func NewBackend() *Backend {
	return &Backend{Decoders: make(map[string]*Decoder), DecodeErrs: make(map[string]error)}
}

// SetDecoderErr makes CreateDecoder fail for url with err, for exercising
// decoder-creation failure handling (unsupported_format, timeout, ...).
func (b *Backend) SetDecoderErr(url string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DecodeErrs[url] = err
}

func (b *Backend) CreateOutput(format aba.Format) (aba.Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := NewOutput(format)
	b.Outputs = append(b.Outputs, o)
	return o, nil
}

// SetDecoder pre-registers the fake decoder CreateDecoder should return
// for a given URL.
func (b *Backend) SetDecoder(url string, d *Decoder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Decoders[url] = d
}

// OutputCount is a lock-protected read of len(Outputs).
func (b *Backend) OutputCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Outputs)
}

// Output is a lock-protected read of Outputs[i].
func (b *Backend) Output(i int) *Output {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Outputs[i]
}

func (b *Backend) CreateDecoder(url, format string, flags aba.DecoderFlags) (aba.Decoder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.DecodeErrs[url]; ok {
		return nil, err
	}
	d, ok := b.Decoders[url]
	if !ok {
		return nil, aba.WrapErr(aba.ErrDecodeFailed, nil)
	}
	return d, nil
}
