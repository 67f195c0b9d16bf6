package decode

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV16 assembles a minimal 16-bit PCM RIFF/WAVE buffer with the
// given interleaved samples, channels and sample rate.
func buildWAV16(t *testing.T, channels, sampleRate int, samples []int16) []byte {
	t.Helper()

	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}

	fmtChunk := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtChunk[0:2], 1) // PCM
	binary.LittleEndian.PutUint16(fmtChunk[2:4], uint16(channels))
	binary.LittleEndian.PutUint32(fmtChunk[4:8], uint32(sampleRate))
	byteRate := sampleRate * channels * 2
	binary.LittleEndian.PutUint32(fmtChunk[8:12], uint32(byteRate))
	binary.LittleEndian.PutUint16(fmtChunk[12:14], uint16(channels*2))
	binary.LittleEndian.PutUint16(fmtChunk[14:16], 16)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	var sizePlaceholder [4]byte
	buf.Write(sizePlaceholder[:])
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	var chunkSize [4]byte
	binary.LittleEndian.PutUint32(chunkSize[:], uint32(len(fmtChunk)))
	buf.Write(chunkSize[:])
	buf.Write(fmtChunk)

	buf.WriteString("data")
	var dataSize [4]byte
	binary.LittleEndian.PutUint32(dataSize[:], uint32(len(data)))
	buf.Write(dataSize[:])
	buf.Write(data)

	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out
}

func TestNewRejectsUnsupportedFormat(t *testing.T) {
	_, err := New(Format("never-heard-of-it"), bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNewWAVDecodesMonoInt16(t *testing.T) {
	raw := buildWAV16(t, 1, 44100, []int16{0, 16384, -32768, 32767})

	d, err := New(FormatWAVPCM, bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 44100, d.SampleRate())
	assert.Equal(t, 1, d.Channels())

	buf := make([]byte, 64)
	n, err := d.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 16, n) // 4 frames * 4 bytes

	assert.InDelta(t, 0.0, readFloat32LE(buf[0:4]), 1e-6)
	assert.InDelta(t, 0.5, readFloat32LE(buf[4:8]), 1e-3)
	assert.InDelta(t, -1.0, readFloat32LE(buf[8:12]), 1e-6)
	assert.InDelta(t, 1.0, readFloat32LE(buf[12:16]), 1e-3)

	_, err = d.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewWAVRejectsNonRIFF(t *testing.T) {
	_, err := New(FormatWAVPCM, bytes.NewReader([]byte("not a wav file at all")))
	assert.Error(t, err)
}

func TestInt16ToFloatClampsToUnitRange(t *testing.T) {
	assert.InDelta(t, -1.0, int16ToFloat(-32768), 1e-9)
	assert.InDelta(t, 1.0, int16ToFloat(32767), 1e-4)
	assert.InDelta(t, 0.0, int16ToFloat(0), 1e-9)
}

func readFloat32LE(b []byte) float32 {
	return float32frombytes(b)
}
