// Package otoaba is a native Audio Backend Adapter backed by
// github.com/hajimehoshi/oto/v2, the same context/player pair
// livekit-client's livekit-speaker command uses to turn a PCM stream
// into actual sound (oto.NewContext, ctx.NewPlayer, player.Play()).
// Where internal/aba/memaba models byte accounting against a synthetic
// clock for hardware-free testing, this backend hands bytes to a real
// output device and lets oto's own buffered player drain them.
package otoaba

import (
	"context"

	"github.com/lyrplay/slimclient/internal/aba"
	"github.com/lyrplay/slimclient/internal/aba/memaba"
)

// Backend implements aba.Backend against real audio hardware. Decoder
// creation has nothing to do with which Output plays the result, so it
// reuses memaba's HTTP-fetch-then-decode Decoder unchanged.
type Backend struct{}

func (Backend) CreateOutput(format aba.Format) (aba.Output, error) {
	return New(format)
}

func (Backend) CreateDecoder(url, format string, flags aba.DecoderFlags) (aba.Decoder, error) {
	return memaba.NewDecoder(context.Background(), url, format, flags)
}
