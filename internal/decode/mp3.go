package decode

import (
	"encoding/binary"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// mp3Decoder wraps go-mp3, converting its interleaved 16-bit stereo PCM
// output to 32-bit float samples as the output stream expects.
type mp3Decoder struct {
	dec        *mp3.Decoder
	sampleRate int
	pending    []byte // leftover int16 bytes (odd fragment) from the last Read
}

func newMP3Decoder(r io.Reader) (Decoder, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	sr := dec.SampleRate()
	if sr <= 0 {
		return nil, ErrUnsupportedFormat
	}
	return &mp3Decoder{dec: dec, sampleRate: sr}, nil
}

func (d *mp3Decoder) SampleRate() int { return d.sampleRate }
func (d *mp3Decoder) Channels() int   { return 2 } // go-mp3 always decodes to stereo

// Read fills buf with float32 PCM bytes. Internally it reads 16-bit PCM
// from go-mp3 and widens each sample; buf must be a multiple of 8 bytes
// (one float32 stereo frame) for exact accounting, matching the
// fixed-size 16KiB chunk convention.
func (d *mp3Decoder) Read(buf []byte) (int, error) {
	// Each output float32 stereo frame (8 bytes) needs one int16 stereo
	// frame (4 bytes) as input.
	wantFrames := len(buf) / 8
	if wantFrames == 0 {
		return 0, nil
	}
	need := wantFrames*4 - len(d.pending)
	var raw []byte
	if need > 0 {
		raw = make([]byte, need)
		n, err := io.ReadFull(d.dec, raw)
		raw = raw[:n]
		if len(d.pending) > 0 {
			raw = append(append([]byte{}, d.pending...), raw...)
			d.pending = nil
		}
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return 0, err
		}
		if len(raw) == 0 {
			return 0, io.EOF
		}
	} else {
		raw = d.pending
		d.pending = nil
	}

	frames := len(raw) / 4
	leftover := raw[frames*4:]
	d.pending = append(d.pending, leftover...)

	out := 0
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(raw[i*4 : i*4+2]))
		r := int16(binary.LittleEndian.Uint16(raw[i*4+2 : i*4+4]))
		putFloat32LE(buf[out:], int16ToFloat(l))
		out += 4
		putFloat32LE(buf[out:], int16ToFloat(r))
		out += 4
	}
	if out == 0 {
		return 0, io.EOF
	}
	return out, nil
}
