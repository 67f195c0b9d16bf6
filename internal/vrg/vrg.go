// Package vrg implements Volume & ReplayGain: the stored
// volume and replay-gain attributes applied to an Audio Backend output,
// including the silent-recovery muted-reopen mode.
package vrg

import "github.com/lyrplay/slimclient/internal/aba"

const (
	minReplayGain = 0.0
	maxReplayGain = 2.0 // +6 dB

	silentRecoveryGain = 0.001 // ~ -60 dB
	restoredGain       = 1.0
)

// Output is the subset of aba.Output VRG needs to apply attributes.
type Output interface {
	SetAttr(attr aba.Attr, value float64) error
}

// Controller holds the stored volume/replay-gain state, independent of
// whether an output stream currently exists, and knows how to (re)apply
// it once one does — mirrors livekit-client-2's PublishGain config field and
// its clamped applyGain helper, generalized from a single gain knob into
// two distinct attributes.
type Controller struct {
	volume    float64
	gain      float64
	recovering bool
}

// New returns a Controller with full volume and unity gain.
func New() *Controller {
	return &Controller{volume: 1.0, gain: restoredGain}
}

// SetVolume stores v (clamped to [0, 1]) and, if out is non-nil, applies
// it immediately.
func (c *Controller) SetVolume(out Output, v float64) error {
	c.volume = clamp(v, 0, 1)
	if out == nil {
		return nil
	}
	return out.SetAttr(aba.AttrVolume, c.volume)
}

// SetReplayGain stores g (clamped to [0, 2]) and, if out is non-nil and
// silent-recovery isn't active, applies it immediately.
func (c *Controller) SetReplayGain(out Output, g float64) error {
	c.gain = clamp(g, minReplayGain, maxReplayGain)
	if out == nil || c.recovering {
		return nil
	}
	return out.SetAttr(aba.AttrDSPGain, c.gain)
}

// EnterSilentRecovery arms the muted-reopen mode: the next Snapshot
// (applied at output creation) or Resume call uses a near-silent gain
// instead of the stored replay gain.
func (c *Controller) EnterSilentRecovery() {
	c.recovering = true
}

// Resume applies the silent-recovery gain (if armed) or the stored
// replay gain to out, matching the "on next stream create or on
// resume" trigger.
func (c *Controller) Resume(out Output) error {
	if out == nil {
		return nil
	}
	if c.recovering {
		return out.SetAttr(aba.AttrDSPGain, silentRecoveryGain)
	}
	return out.SetAttr(aba.AttrDSPGain, c.gain)
}

// RestoreGain clears silent-recovery mode and re-applies the stored
// replay gain.
func (c *Controller) RestoreGain(out Output) error {
	c.recovering = false
	if out == nil {
		return nil
	}
	return out.SetAttr(aba.AttrDSPGain, c.gain)
}

// Snapshot returns the attribute values to apply to a freshly created
// output stream, honoring an armed silent-recovery mode. It satisfies
// pipeline.AttrSnapshot.
func (c *Controller) Snapshot() map[aba.Attr]float64 {
	gain := c.gain
	if c.recovering {
		gain = silentRecoveryGain
	}
	return map[aba.Attr]float64{
		aba.AttrVolume:  c.volume,
		aba.AttrDSPGain: gain,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
