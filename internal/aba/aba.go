// Package aba defines the Audio Backend Adapter contract: the minimal
// surface a native decode/output library must expose so the push-stream
// pipeline can drive it without knowing which library is underneath.
package aba

import (
	"errors"
	"fmt"
)

// Format describes a PCM stream: 32-bit float samples at SampleRate,
// interleaved across Channels.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond is the byte rate of 32-bit float PCM at this format.
func (f Format) BytesPerSecond() int64 {
	return int64(f.SampleRate) * int64(f.Channels) * 4
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/f32", f.SampleRate, f.Channels)
}

// State is the lifecycle state of an Output stream.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
	StateStalled
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStalled:
		return "stalled"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// SyncKind identifies what a registered callback watches for.
type SyncKind int

const (
	SyncPositionByte SyncKind = iota
	SyncStall
	SyncEnd
	SyncMeta
)

// StallDirection reports whether a stall sync just entered or exited.
type StallDirection int

const (
	StallEntered StallDirection = iota
	StallExited
)

// SyncEvent is delivered to a registered callback. It fires at playback
// time (when the audio is actually heard), never at mix/write time.
type SyncEvent struct {
	Kind     SyncKind
	Position uint64
	Stall    StallDirection
	Meta     string
}

// SyncCallback is invoked on the backend's internal audio thread; callers
// MUST marshal to their own serialization point before touching shared
// state — ABA gives no ordering guarantee across callbacks.
type SyncCallback func(SyncEvent)

// Attr identifies a settable stream attribute.
type Attr int

const (
	AttrVolume Attr = iota
	AttrDSPGain
)

// DecoderFlags modify how a decoder stream is created.
type DecoderFlags struct {
	DecodeOnly   bool
	FloatSamples bool
}

// ErrorCode is a stable, comparable failure classification. Terminal
// errors end the current track; transient ones may be retried by the
// coordinator.
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrUnsupportedFormat
	ErrTimeout
	ErrEnded
	ErrQueueFull
	ErrInvalidState
	ErrDecodeFailed
	ErrTransportClosed
)

func (c ErrorCode) String() string {
	switch c {
	case ErrUnsupportedFormat:
		return "unsupported_format"
	case ErrTimeout:
		return "timeout"
	case ErrEnded:
		return "ended"
	case ErrQueueFull:
		return "queue_full"
	case ErrInvalidState:
		return "invalid_state"
	case ErrDecodeFailed:
		return "decode_failed"
	case ErrTransportClosed:
		return "transport_closed"
	default:
		return "none"
	}
}

// Error wraps an ErrorCode with an optional underlying cause.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("aba: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("aba: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match with errors.Is(err, aba.Code(ErrTimeout)).
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Code == e.Code
	}
	return false
}

// Code builds a sentinel *Error for use with errors.Is.
func Code(code ErrorCode) error { return &Error{Code: code} }

// WrapErr builds an *Error carrying code and an underlying cause.
func WrapErr(code ErrorCode, err error) error { return &Error{Code: code, Err: err} }

// FormatCode identifies the codec a Decoder was created for, as
// reported by the backend in StreamInfo. The numeric values are this
// adapter's own contract, not a wire format — a real backend library's
// native codec enum gets translated into these at CreateDecoder time.
type FormatCode int

const (
	FormatUnknown FormatCode = iota
	FormatMP3
	FormatOggVorbis
	FormatOpus
	FormatFLAC
	FormatFLACInOgg
	FormatWAVPCM
	FormatWAVFloat
	FormatAIFF
	FormatAAC
)

// StreamInfo is what SMR reads at decoder creation.
type StreamInfo struct {
	FormatCode FormatCode
	SampleRate int
	Channels   int
	BitDepth   int
	Bitrate    int
}

// Output is the long-lived, singleton-per-session PCM sink.
type Output interface {
	Format() Format
	Push(pcm []byte) (queuedLen int, err error)
	Play(restart bool) error
	Pause() error
	Stop() error
	State() State
	PositionBytes() uint64
	QueuedBytes() uint64
	AvailablePlaybackBytes() uint64
	SetPositionBytes(pos uint64) error
	RegisterSync(kind SyncKind, arg uint64, cb SyncCallback) (syncID int, err error)
	UnregisterSync(syncID int)
	SetAttr(attr Attr, value float64) error
	Free()
}

// Decoder is a transient, per-track PCM source.
type Decoder interface {
	StreamInfo() StreamInfo
	// Read fills buf with 32-bit float PCM bytes. err is an *Error;
	// ErrEnded combined with !TransportConnected() means natural end of
	// stream with the HTTP connection closed.
	Read(buf []byte) (n int, err error)
	TransportConnected() bool
	RegisterMetaSync(cb SyncCallback) (syncID int, err error)
	Free()
}

// Backend creates Output and Decoder instances. Implementations wrap a
// native decode/output library; memaba provides an in-process one for
// tests and for platforms with no native backend wired yet.
type Backend interface {
	CreateOutput(format Format) (Output, error)
	CreateDecoder(url, format string, flags DecoderFlags) (Decoder, error)
}
