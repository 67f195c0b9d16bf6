package stt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCurrentTimeInterpolatesWhilePlaying(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tr.Update(Snapshot{ServerTime: 10 * time.Second, IsPlaying: true, Duration: 200 * time.Second}, base)
	got := tr.CurrentTime(base.Add(3 * time.Second))
	assert.Equal(t, 13*time.Second, got)
}

func TestCurrentTimeFrozenWhilePaused(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tr.Update(Snapshot{ServerTime: 42 * time.Second, IsPlaying: false}, base)
	got := tr.CurrentTime(base.Add(10 * time.Second))
	assert.Equal(t, 42*time.Second, got)
}

func TestCurrentTimeClampsToDuration(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tr.Update(Snapshot{ServerTime: 195 * time.Second, IsPlaying: true, Duration: 200 * time.Second}, base)
	got := tr.CurrentTime(base.Add(30 * time.Second))
	assert.Equal(t, 200*time.Second, got)
}

func TestFreshWithinWindow(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Update(Snapshot{ServerTime: time.Second, IsPlaying: true}, base)

	assert.True(t, tr.Fresh(base.Add(29*time.Second)))
	assert.False(t, tr.Fresh(base.Add(31*time.Second)))
}

func TestFreshBeforeAnyUpdate(t *testing.T) {
	tr := New()
	assert.False(t, tr.Fresh(time.Now()))
}
