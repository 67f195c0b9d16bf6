package pacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSoftCeilingBytesScalesLinearlyWithBytesPerSecond(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bps := rapid.Int64Range(1, 100*1024*1024).Draw(t, "bytesPerSecond")

		got := SoftCeilingBytes(bps)

		assert.Equal(t, bps*SoftCeilingSeconds, got)
		assert.Greater(t, got, bps, "ceiling must always be more than one second of audio")
	})
}

func TestSoftCeilingBytesZeroIsZero(t *testing.T) {
	assert.Equal(t, int64(0), SoftCeilingBytes(0))
}
