// Package pacer implements the decoder loop's two backpressure sleep
// points: a soft throttle once the output queue
// backs up, and a per-track soft ceiling that paces decode to playback
// once steady state is reached.
package pacer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	// SoftThrottleBytes is the queue depth above which the producer
	// backs off hard.
	SoftThrottleBytes = 100 * 1024 * 1024
	// SoftCeilingSeconds is the per-track soft ceiling once steady state
	// is reached, expressed as seconds of audio.
	SoftCeilingSeconds = 4

	throttleSleep = 100 * time.Millisecond
	ceilingSleep  = 50 * time.Millisecond
	endedSleep    = 10 * time.Millisecond
	zeroByteSleep = 1 * time.Millisecond

	throttleLogInterval = 5 * time.Second
)

// Pacer wraps a token bucket used to cap how often the producer logs
// while throttled, so a sustained backpressure episode doesn't spam.
type Pacer struct {
	throttleLogLimiter *rate.Limiter
}

func New() *Pacer {
	return &Pacer{
		throttleLogLimiter: rate.NewLimiter(rate.Every(throttleLogInterval), 1),
	}
}

// SoftCeilingBytes computes the per-track soft ceiling in bytes for a
// given output format.
func SoftCeilingBytes(bytesPerSecond int64) int64 {
	return bytesPerSecond * SoftCeilingSeconds
}

// ShouldLogThrottle reports whether a throttle-sleep log line should be
// emitted now, rate-limited to about once per throttleLogInterval.
func (p *Pacer) ShouldLogThrottle() bool {
	return p.throttleLogLimiter.Allow()
}

// SleepThrottle is step a's sleep: queue depth exceeded the soft
// throttle.
func SleepThrottle(ctx context.Context) { sleep(ctx, throttleSleep) }

// SleepCeiling is step b's sleep: per-track soft ceiling reached.
func SleepCeiling(ctx context.Context) { sleep(ctx, ceilingSleep) }

// SleepDecoderEnded is step c's retry sleep when the decoder reports
// ended but the transport is still connected.
func SleepDecoderEnded(ctx context.Context) { sleep(ctx, endedSleep) }

// SleepZeroByteRead is step c's retry sleep on a zero-byte decode read.
func SleepZeroByteRead(ctx context.Context) { sleep(ctx, zeroByteSleep) }

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
