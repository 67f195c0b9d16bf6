package pipeline

import (
	"context"
	"errors"

	"github.com/lyrplay/slimclient/internal/aba"
	"github.com/lyrplay/slimclient/internal/pacer"
	"github.com/lyrplay/slimclient/internal/pee"
)

const chunkBytes = 16 * 1024

// runProducer is the single, long-lived decode loop for one Pipeline
// instance across a gapless chain of tracks. It reads from current until
// ErrEnded+transport-closed, at which point it either splices in a
// queued same-format next track (continuing this same goroutine with no
// gap) or exits. Every mutation of shared pipeline state happens inside
// a p.do closure; the Read/backoff calls happen outside it so a slow or
// blocked network read never stalls pipeline main.
func (p *Pipeline) runProducer(ctx context.Context, current aba.Decoder) {
	pc := pacer.New()
	chunk := make([]byte, chunkBytes)

	for {
		if ctx.Err() != nil {
			return
		}

		var queued, avail uint64
		var manualStop bool
		var ceilingBytes int64
		var metricsObs MetricsObserver
		p.do(func() {
			manualStop = p.manualStop
			metricsObs = p.metricsObs
			if p.output != nil {
				queued = p.output.QueuedBytes()
				avail = p.output.AvailablePlaybackBytes()
				ceilingBytes = pacer.SoftCeilingBytes(p.outputFormat.BytesPerSecond())
			}
		})
		if manualStop {
			return
		}

		depth := queued + avail
		if metricsObs != nil {
			metricsObs.SetBufferDepth(depth)
		}
		if depth > pacer.SoftThrottleBytes {
			if pc.ShouldLogThrottle() {
				p.logger.Warnf("pipeline: producer throttled, queue depth %d bytes", depth)
			}
			if metricsObs != nil {
				metricsObs.ObserveDecoderSleep()
			}
			pacer.SleepThrottle(ctx)
			continue
		}
		if ceilingBytes > 0 && int64(depth) > ceilingBytes {
			if metricsObs != nil {
				metricsObs.ObserveDecoderSleep()
			}
			pacer.SleepCeiling(ctx)
			continue
		}

		n, readErr := current.Read(chunk)
		if readErr != nil {
			var aerr *aba.Error
			if errors.As(readErr, &aerr) && aerr.Code == aba.ErrEnded {
				if current.TransportConnected() {
					pacer.SleepDecoderEnded(ctx)
					continue
				}
				next, stop := p.advancePastTrackEnd(current)
				if stop || next == nil {
					return
				}
				current = next
				continue
			}
			code := aba.ErrDecodeFailed.String()
			if errors.As(readErr, &aerr) {
				code = aerr.Code.String()
			}
			p.do(func() { p.onTrackDecodeErrorLocked(code) })
			return
		}

		if n == 0 {
			if !current.TransportConnected() {
				next, stop := p.advancePastTrackEnd(current)
				if stop || next == nil {
					return
				}
				current = next
				continue
			}
			pacer.SleepZeroByteRead(ctx)
			continue
		}

		var fatal, stop bool
		p.do(func() {
			if p.manualStop {
				stop = true
				return
			}
			fatal = p.handleChunkLocked(chunk[:n])
		})
		if stop || fatal {
			return
		}
	}
}

// advancePastTrackEnd runs onTrackDecodeCompleteLocked and reports the
// decoder to continue with (nil, true means the producer must exit).
func (p *Pipeline) advancePastTrackEnd(ended aba.Decoder) (next aba.Decoder, stop bool) {
	p.do(func() {
		next = p.onTrackDecodeCompleteLocked(ended)
		stop = p.manualStop
	})
	return next, stop
}

// onTrackDecodeCompleteLocked handles a decoder reaching natural end
// (ErrEnded, transport closed). It either splices in a queued gapless
// continuation or marks the pipeline complete.
func (p *Pipeline) onTrackDecodeCompleteLocked(ended aba.Decoder) aba.Decoder {
	if p.manualStop {
		// StopTrack already freed/nilled the decoder and reset state;
		// this call is just the producer noticing its in-flight read
		// unblocked after the stop. Nothing left to do.
		return nil
	}

	ended.Free()
	if p.decoder == ended {
		p.decoder = nil
	}

	p.emit(Event{Kind: pee.EventTrackDecodeComplete})

	if p.queuedNext != nil {
		next := p.queuedNext
		p.queuedNext = nil
		p.decoder = next.decoder
		p.frame.PendingBoundaryMark = true
		p.frame.PreviousTrackStartBytes = p.frame.TrackStartBytes
		p.frame.TrackStartTimeOffsetSecs = next.startTimeOffsetSeconds
		p.frame.SentBufferReady = false
		p.applyReplayGainLocked(next.replayGainLinear)
		p.state = StateDrainingToBoundary
		return p.decoder
	}

	p.state = StateCompleting
	return nil
}

func (p *Pipeline) onTrackDecodeErrorLocked(code string) bool {
	if p.manualStop {
		// A read/push failure after a manual stop is just the torn-down
		// decoder/output unblocking; it is not a real decode error.
		return true
	}
	p.state = StateErrored
	p.logger.Errorf("pipeline: track %s decode error %s", p.currentTrackID, code)
	p.emit(Event{Kind: pee.EventTrackDecodeError, ErrorCode: code})
	return true
}

// handleChunkLocked pushes freshly decoded data
// from the current decoder. It returns true if a fatal push error ended
// the track (the caller must stop the producer).
func (p *Pipeline) handleChunkLocked(data []byte) (fatal bool) {
	if p.frame.PendingBoundaryMark {
		p.markBoundaryLocked()
	}

	if p.frame.SkipAheadBytesRemaining > 0 {
		discard := p.frame.SkipAheadBytesRemaining
		if discard > uint64(len(data)) {
			discard = uint64(len(data))
		}
		data = data[discard:]
		p.frame.SkipAheadBytesRemaining -= discard
		p.frame.TotalBytesWritten += discard
	}
	if len(data) == 0 {
		return false
	}

	if _, err := p.output.Push(data); err != nil {
		var aerr *aba.Error
		code := aba.ErrDecodeFailed.String()
		if errors.As(err, &aerr) {
			code = aerr.Code.String()
		}
		return p.onTrackDecodeErrorLocked(code)
	}
	p.frame.TotalBytesWritten += uint64(len(data))

	if p.playPending && p.syncStart == nil {
		p.issuePlayLocked()
	}

	if !p.frame.SentBufferReady {
		threshold := uint64(float64(pacer.SoftCeilingBytes(p.outputFormat.BytesPerSecond())) * bufferReadyFraction)
		if p.frame.TotalBytesWritten >= threshold {
			p.frame.SentBufferReady = true
			p.emit(Event{Kind: pee.EventBufferReady})
		}
	}
	return false
}

// markBoundaryLocked computes the predicted byte offset at which the
// next track's first PCM byte will actually be heard, and registers a
// position-byte sync that fires track_started once playback reaches it.
func (p *Pipeline) markBoundaryLocked() {
	boundaryBytes := p.output.PositionBytes() + p.output.QueuedBytes() + p.output.AvailablePlaybackBytes()
	p.frame.BoundaryBytes = boundaryBytes
	p.frame.BoundarySet = true
	p.frame.TrackStartBytes = boundaryBytes
	p.frame.PendingBoundaryMark = false

	if p.boundarySyncID != 0 {
		p.output.UnregisterSync(p.boundarySyncID)
	}
	id, err := p.output.RegisterSync(aba.SyncPositionByte, boundaryBytes, p.onBoundaryFired)
	if err != nil {
		p.logger.Errorf("pipeline: register boundary sync failed: %v", err)
		return
	}
	p.boundarySyncID = id
}
