// Package ppm implements the Playback Position Model: a pure function
// converting byte offsets into a track-relative second count.
package ppm

import "github.com/lyrplay/slimclient/internal/aba"

// Frame is the subset of Track Frame state current_position needs. It is
// intentionally a plain value, not the pipeline's live struct, so the
// position function stays pure and trivially testable.
type Frame struct {
	TrackStartBytes           uint64
	PreviousTrackStartBytes   uint64
	BoundaryBytes             uint64
	BoundarySet               bool
	TrackStartTimeOffsetSecs  float64
	SampleRate                int
	Channels                  int
}

func (f Frame) bytesPerSecond() float64 {
	return float64(f.SampleRate) * float64(f.Channels) * 4
}

// CurrentPosition is a pure function of the frame and the
// output stream's reported playback state/byte position. state must be
// aba.StatePlaying or aba.StatePaused for a non-zero result.
func CurrentPosition(f Frame, state aba.State, playbackPositionBytes uint64) float64 {
	if state != aba.StatePlaying && state != aba.StatePaused {
		return 0
	}

	if f.BoundarySet && playbackPositionBytes < f.BoundaryBytes {
		if playbackPositionBytes < f.PreviousTrackStartBytes {
			return 0
		}
		return float64(playbackPositionBytes-f.PreviousTrackStartBytes)/f.bytesPerSecond() + f.TrackStartTimeOffsetSecs
	}

	if playbackPositionBytes < f.TrackStartBytes {
		return 0
	}
	return float64(playbackPositionBytes-f.TrackStartBytes)/f.bytesPerSecond() + f.TrackStartTimeOffsetSecs
}
