package decode

import (
	"encoding/binary"
	"math"
)

// int16ToFloat converts a signed 16-bit PCM sample to the [-1, 1] float32
// range the output stream expects.
func int16ToFloat(s int16) float32 {
	if s < 0 {
		return float32(s) / 32768.0
	}
	return float32(s) / 32767.0
}

func putFloat32LE(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}
