// Package smr implements the Stream Metadata Reader:
// format/bitrate discovery at decoder creation, a read-through current
// stream-info observable, and ICY StreamTitle parsing.
package smr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lyrplay/slimclient/internal/aba"
)

// codecNames maps a known aba.FormatCode to its spec-mandated display
// name. Anything not in this table renders as "Unknown(code)".
var codecNames = map[aba.FormatCode]string{
	aba.FormatMP3:       "MP3",
	aba.FormatOggVorbis: "OGG Vorbis",
	aba.FormatOpus:      "Opus",
	aba.FormatFLAC:      "FLAC",
	aba.FormatFLACInOgg: "FLAC-in-OGG",
	aba.FormatWAVPCM:    "WAV PCM",
	aba.FormatWAVFloat:  "WAV Float",
	aba.FormatAIFF:      "AIFF",
	aba.FormatAAC:       "AAC",
}

// CodecName renders code as the server expects it.
func CodecName(code aba.FormatCode) string {
	if name, ok := codecNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(code))
}

// StreamInfo is the published, read-through observable: everything SMR
// knows about the currently decoding track.
type StreamInfo struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
	Bitrate    int
	Artist     string
	Title      string
}

// Reader holds the most recently published StreamInfo.
type Reader struct {
	mu   sync.RWMutex
	info StreamInfo
}

func New() *Reader { return &Reader{} }

// OnDecoderCreated publishes format/bitrate info discovered at decoder
// creation ("at decoder creation, read sample-rate, channel
// count, bit-depth, bitrate attribute"), preserving any ICY-derived
// artist/title already known for this track.
func (r *Reader) OnDecoderCreated(si aba.StreamInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info.Codec = CodecName(si.FormatCode)
	r.info.SampleRate = si.SampleRate
	r.info.Channels = si.Channels
	r.info.BitDepth = si.BitDepth
	r.info.Bitrate = si.Bitrate
}

// OnICYMetadata parses a raw ICY metadata frame's StreamTitle field
// ("StreamTitle='Artist - Title';") into (artist, title) by splitting on
// the first " - " occurrence; everything after is the title. A frame
// with no recognizable separator is published as title-only.
func (r *Reader) OnICYMetadata(raw string) {
	title, ok := parseStreamTitle(raw)
	if !ok {
		return
	}
	artist := ""
	if idx := strings.Index(title, " - "); idx >= 0 {
		artist, title = title[:idx], title[idx+len(" - "):]
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info.Artist = artist
	r.info.Title = title
}

// Current returns a copy of the current stream info.
func (r *Reader) Current() StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info
}

// parseStreamTitle extracts the value of StreamTitle='...'; from a raw
// ICY metadata block.
func parseStreamTitle(raw string) (string, bool) {
	const key = "StreamTitle='"
	start := strings.Index(raw, key)
	if start < 0 {
		return "", false
	}
	rest := raw[start+len(key):]
	end := strings.Index(rest, "';")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
