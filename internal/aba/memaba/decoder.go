package memaba

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lyrplay/slimclient/internal/aba"
	"github.com/lyrplay/slimclient/internal/decode"
)

// Decoder fetches a track over HTTP and decodes it with internal/decode,
// the same fetch-then-route-by-content-type shape as livekit-client-2's
// playAudioFile, generalized from a fixed 16kHz-mono LiveKit target to
// whatever sample rate/channel count the source declares.
type Decoder struct {
	ctx    context.Context
	cancel context.CancelFunc

	resp *http.Response
	dec  decode.Decoder
	info aba.StreamInfo

	connected atomic.Bool

	mu        sync.Mutex
	metaSyncs map[int]aba.SyncCallback
	nextID    int
}

// NewDecoder issues the GET and constructs a codec-appropriate decoder.
// format is the declared codec hint from slimproto (e.g. "mp3", "pcm");
// when empty, content-type sniffing from the HTTP response is used, as
// that client does.
func NewDecoder(ctx context.Context, url, format string, flags aba.DecoderFlags) (*Decoder, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, aba.WrapErr(aba.ErrDecodeFailed, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, aba.WrapErr(aba.ErrTransportClosed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, aba.WrapErr(aba.ErrTransportClosed, nil)
	}

	df := resolveFormat(format, resp.Header.Get("Content-Type"), url)
	dec, err := decode.New(df, resp.Body)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, aba.WrapErr(aba.ErrUnsupportedFormat, err)
	}

	d := &Decoder{
		ctx:       ctx,
		cancel:    cancel,
		resp:      resp,
		dec:       dec,
		metaSyncs: make(map[int]aba.SyncCallback),
		info: aba.StreamInfo{
			FormatCode: formatCodeOf(df),
			SampleRate: dec.SampleRate(),
			Channels:   dec.Channels(),
			BitDepth:   32,
		},
	}
	d.connected.Store(true)
	return d, nil
}

// resolveFormat mirrors playAudioFile's content-type/URL-suffix routing,
// extended to the codec set slimproto declares in strm_start.
func resolveFormat(declared, contentType, url string) decode.Format {
	contentType = strings.ToLower(contentType)
	url = strings.ToLower(url)
	switch declared {
	case "mp3", "mpeg":
		return decode.FormatMP3
	case "wav", "pcm":
		return decode.FormatWAVPCM
	case "aac":
		return decode.FormatAAC
	case "ogg", "vorbis":
		return decode.FormatOggVorbis
	case "opus":
		return decode.FormatOpus
	case "flc", "flac":
		return decode.FormatFLAC
	case "aif":
		return decode.FormatAIFF
	}
	switch {
	case strings.Contains(contentType, "audio/mpeg") || strings.HasSuffix(url, ".mp3"):
		return decode.FormatMP3
	case strings.Contains(contentType, "audio/wav"), strings.Contains(contentType, "audio/x-wav"),
		strings.Contains(contentType, "audio/wave"), strings.HasSuffix(url, ".wav"):
		return decode.FormatWAVPCM
	case strings.Contains(contentType, "audio/aac"), strings.HasSuffix(url, ".aac"):
		return decode.FormatAAC
	case strings.Contains(contentType, "audio/ogg"), strings.HasSuffix(url, ".ogg"):
		return decode.FormatOggVorbis
	case strings.Contains(contentType, "audio/opus"), strings.HasSuffix(url, ".opus"):
		return decode.FormatOpus
	case strings.Contains(contentType, "audio/flac"), strings.HasSuffix(url, ".flac"):
		return decode.FormatFLAC
	case strings.Contains(contentType, "audio/aiff"), strings.HasSuffix(url, ".aiff"):
		return decode.FormatAIFF
	default:
		return decode.Format(declared)
	}
}

// formatCodeOf maps the decode package's format tag to the aba.FormatCode
// enum internal/smr maps back to a display name — the two packages
// describe the same codec set from opposite ends of decode.New.
func formatCodeOf(df decode.Format) aba.FormatCode {
	switch df {
	case decode.FormatMP3:
		return aba.FormatMP3
	case decode.FormatAAC:
		return aba.FormatAAC
	case decode.FormatOggVorbis:
		return aba.FormatOggVorbis
	case decode.FormatOpus:
		return aba.FormatOpus
	case decode.FormatFLAC:
		return aba.FormatFLAC
	case decode.FormatFLACOgg:
		return aba.FormatFLACInOgg
	case decode.FormatWAVPCM:
		return aba.FormatWAVPCM
	case decode.FormatWAVFloat:
		return aba.FormatWAVFloat
	case decode.FormatAIFF:
		return aba.FormatAIFF
	default:
		return aba.FormatUnknown
	}
}

func (d *Decoder) StreamInfo() aba.StreamInfo { return d.info }

func (d *Decoder) Read(buf []byte) (int, error) {
	n, err := d.dec.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			d.connected.Store(false)
			return n, aba.WrapErr(aba.ErrEnded, nil)
		}
		return n, aba.WrapErr(aba.ErrDecodeFailed, err)
	}
	return n, nil
}

func (d *Decoder) TransportConnected() bool { return d.connected.Load() }

func (d *Decoder) RegisterMetaSync(cb aba.SyncCallback) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.metaSyncs[d.nextID] = cb
	return d.nextID, nil
}

func (d *Decoder) Free() {
	d.cancel()
	if d.resp != nil {
		d.resp.Body.Close()
	}
	d.connected.Store(false)
}
