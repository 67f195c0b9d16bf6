// Package decode implements per-format PCM decoders that read encoded
// audio from an io.Reader and emit interleaved 32-bit float samples, the
// common currency the push-stream pipeline pushes into the output stream.
package decode

import (
	"fmt"
	"io"
)

// Format names the codecs the pipeline accepts.
type Format string

const (
	FormatMP3       Format = "mp3"
	FormatAAC       Format = "aac"
	FormatOggVorbis Format = "ogg"
	FormatOpus      Format = "opus"
	FormatFLAC      Format = "flac"
	FormatFLACOgg   Format = "flac-ogg"
	FormatWAVPCM    Format = "wav-pcm"
	FormatWAVFloat  Format = "wav-float"
	FormatAIFF      Format = "aiff"
)

// Decoder yields 32-bit float PCM frames at its own discovered sample
// rate and channel count. Read follows io.Reader semantics: it returns
// io.EOF once the underlying source is exhausted.
type Decoder interface {
	SampleRate() int
	Channels() int
	Read(buf []byte) (n int, err error)
}

// ErrUnsupportedFormat is returned by New for a format/content mismatch.
var ErrUnsupportedFormat = fmt.Errorf("decode: unsupported format")

// New constructs a Decoder for the given declared format from r. WAV
// detects its own parameters from the RIFF header; MP3 discovers its
// sample rate from the stream itself.
func New(format Format, r io.Reader) (Decoder, error) {
	switch format {
	case FormatMP3:
		return newMP3Decoder(r)
	case FormatWAVPCM, FormatWAVFloat:
		return newWAVDecoder(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}
