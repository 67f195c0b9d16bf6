package smr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyrplay/slimclient/internal/aba"
)

func TestCodecNameKnownCodes(t *testing.T) {
	assert.Equal(t, "MP3", CodecName(aba.FormatMP3))
	assert.Equal(t, "OGG Vorbis", CodecName(aba.FormatOggVorbis))
	assert.Equal(t, "FLAC-in-OGG", CodecName(aba.FormatFLACInOgg))
}

func TestCodecNameUnknownCode(t *testing.T) {
	assert.Equal(t, "Unknown(99)", CodecName(aba.FormatCode(99)))
}

func TestOnDecoderCreatedPublishesFormatFields(t *testing.T) {
	r := New()
	r.OnDecoderCreated(aba.StreamInfo{
		FormatCode: aba.FormatFLAC,
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
		Bitrate:    900,
	})

	got := r.Current()
	assert.Equal(t, "FLAC", got.Codec)
	assert.Equal(t, 44100, got.SampleRate)
	assert.Equal(t, 2, got.Channels)
	assert.Equal(t, 16, got.BitDepth)
	assert.Equal(t, 900, got.Bitrate)
}

func TestOnICYMetadataSplitsArtistAndTitle(t *testing.T) {
	r := New()
	r.OnICYMetadata(`StreamTitle='Pink Floyd - Comfortably Numb';`)

	got := r.Current()
	assert.Equal(t, "Pink Floyd", got.Artist)
	assert.Equal(t, "Comfortably Numb", got.Title)
}

func TestOnICYMetadataFirstSeparatorWins(t *testing.T) {
	r := New()
	r.OnICYMetadata(`StreamTitle='A - B - C';`)

	got := r.Current()
	assert.Equal(t, "A", got.Artist)
	assert.Equal(t, "B - C", got.Title)
}

func TestOnICYMetadataNoSeparatorIsTitleOnly(t *testing.T) {
	r := New()
	r.OnICYMetadata(`StreamTitle='Just A Title';`)

	got := r.Current()
	assert.Equal(t, "", got.Artist)
	assert.Equal(t, "Just A Title", got.Title)
}

func TestOnICYMetadataMalformedFrameIgnored(t *testing.T) {
	r := New()
	r.OnDecoderCreated(aba.StreamInfo{FormatCode: aba.FormatMP3})
	r.OnICYMetadata("garbage, no StreamTitle here")

	got := r.Current()
	assert.Equal(t, "", got.Title)
	assert.Equal(t, "MP3", got.Codec)
}
