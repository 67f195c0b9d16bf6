package aba

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := WrapErr(ErrTimeout, errors.New("dial timed out"))

	assert.True(t, errors.Is(err, Code(ErrTimeout)))
	assert.False(t, errors.Is(err, Code(ErrQueueFull)))
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := WrapErr(ErrDecodeFailed, cause)

	assert.ErrorIs(t, err, cause)
}

func TestErrorStringIncludesCauseWhenPresent(t *testing.T) {
	err := WrapErr(ErrTimeout, errors.New("boom"))
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "boom")
}

func TestErrorStringOmitsCauseWhenAbsent(t *testing.T) {
	err := Code(ErrQueueFull)
	assert.Equal(t, "aba: queue_full", err.Error())
}

func TestFormatBytesPerSecond(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2}
	assert.Equal(t, int64(44100*2*4), f.BytesPerSecond())
}

func TestErrorCodeStringNames(t *testing.T) {
	cases := map[ErrorCode]string{
		ErrUnsupportedFormat: "unsupported_format",
		ErrTimeout:           "timeout",
		ErrEnded:             "ended",
		ErrQueueFull:         "queue_full",
		ErrInvalidState:      "invalid_state",
		ErrDecodeFailed:      "decode_failed",
		ErrTransportClosed:   "transport_closed",
		ErrNone:              "none",
	}
	for code, want := range cases {
		assert.Equal(t, want, code.String())
	}
}
