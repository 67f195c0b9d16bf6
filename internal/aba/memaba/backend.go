package memaba

import (
	"context"

	"github.com/lyrplay/slimclient/internal/aba"
)

// Backend implements aba.Backend entirely in-process: Output is the
// clock-driven ring buffer above, and CreateDecoder fetches over HTTP and
// decodes with internal/decode. It needs no native library, making it a
// headless stand-in for internal/aba/otoaba's real device backend
// (selected via --audio-backend memory, e.g. for CI). internal/pipeline's
// tests use the manually driven internal/aba/abatest fake instead.
type Backend struct {
	HardLimitBytes int
}

func (b Backend) CreateOutput(format aba.Format) (aba.Output, error) {
	return New(format, b.HardLimitBytes), nil
}

func (b Backend) CreateDecoder(url, format string, flags aba.DecoderFlags) (aba.Decoder, error) {
	return NewDecoder(context.Background(), url, format, flags)
}
