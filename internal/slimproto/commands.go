package slimproto

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/lyrplay/slimclient/internal/coordinator"
)

// Inbound opcodes (server -> client).
const (
	opStrm = "strm" // strm_start/pause/resume/stop, subcommand in payload[0]
	opAudg = "audg" // set_volume
	opRpgn = "rpgn" // set_replay_gain
	opSkip = "skip" // skip_ahead(seconds)
	opSiln = "siln" // play_silence(seconds)
	opSsta = "ssta" // start_at(target_time)
	opMreq = "mreq" // request_fresh_metadata
)

// Outbound opcodes (client -> server).
const (
	opHelo = "HELO"
	opStat = "STAT" // carries a PEE status code plus telemetry
	opResq = "RESQ" // best-effort minimal seek request
	opMeta = "META" // forwarded/refreshed ICY metadata
)

// strm subcommands, carried in payload[0].
const (
	strmStart  byte = 's'
	strmPause  byte = 'p'
	strmResume byte = 'u'
	strmStop   byte = 'q'
)

// decodeStrm turns a "strm" frame payload into a coordinator call,
// invoking exactly one of the handler methods strm_start/pause/resume/
// stop names.
//
// Layout: [0]=subcommand [1]=isGapless(0/1) [2:6]=format (ASCII,
// NUL-padded) [6:14]=startTimeOffsetSecs (float64 BE) [14:22]=replayGain
// (float64 BE) [22:30]=targetStartUnixNano (uint64 BE, 0 = none)
// [30:]=URL (only present for subcommand 's').
func decodeStrm(payload []byte, h Handler) error {
	if len(payload) < 30 {
		return fmt.Errorf("slimproto: strm payload too short: %d bytes", len(payload))
	}
	switch payload[0] {
	case strmPause:
		return h.StrmPause()
	case strmResume:
		return h.StrmResume()
	case strmStop:
		h.StrmStop()
		return nil
	case strmStart:
		isGapless := payload[1] != 0
		format := trimNulls(payload[2:6])
		startOffset := math.Float64frombits(binary.BigEndian.Uint64(payload[6:14]))
		replayGain := math.Float64frombits(binary.BigEndian.Uint64(payload[14:22]))
		targetNanos := binary.BigEndian.Uint64(payload[22:30])

		cmd := coordinator.StrmStart{
			URL:                 string(payload[30:]),
			Format:              format,
			StartTimeOffsetSecs: startOffset,
			ReplayGainLinear:    replayGain,
			IsGapless:           isGapless,
		}
		if targetNanos != 0 {
			cmd.TargetStartTime = time.Unix(0, int64(targetNanos))
		}
		return h.StrmStart(cmd)
	default:
		return fmt.Errorf("slimproto: unknown strm subcommand %q", payload[0])
	}
}

// encodeStrmStart is the inverse of decodeStrm's "s" branch, used by
// tests and by anything driving a server-side simulator against this
// client.
func encodeStrmStart(cmd coordinator.StrmStart) []byte {
	payload := make([]byte, 30+len(cmd.URL))
	payload[0] = strmStart
	if cmd.IsGapless {
		payload[1] = 1
	}
	copy(payload[2:6], padTo4(cmd.Format))
	binary.BigEndian.PutUint64(payload[6:14], math.Float64bits(cmd.StartTimeOffsetSecs))
	binary.BigEndian.PutUint64(payload[14:22], math.Float64bits(cmd.ReplayGainLinear))
	if !cmd.TargetStartTime.IsZero() {
		binary.BigEndian.PutUint64(payload[22:30], uint64(cmd.TargetStartTime.UnixNano()))
	}
	copy(payload[30:], cmd.URL)
	return payload
}

func encodeStrmControl(sub byte) []byte {
	payload := make([]byte, 30)
	payload[0] = sub
	return payload
}

// audg/rpgn/skip/siln payloads each carry a single float64, read by
// decodeFloat64Payload; an ssta payload carries a uint64 unix-nanos
// deadline, read by decodeSsta.

func decodeFloat64Payload(payload []byte) (float64, error) {
	if len(payload) < 8 {
		return 0, fmt.Errorf("slimproto: payload too short: %d bytes", len(payload))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(payload[:8])), nil
}

func encodeFloat64Payload(v float64) []byte {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, math.Float64bits(v))
	return payload
}

func decodeSsta(payload []byte) (time.Time, error) {
	if len(payload) < 8 {
		return time.Time{}, fmt.Errorf("slimproto: ssta payload too short: %d bytes", len(payload))
	}
	nanos := binary.BigEndian.Uint64(payload[:8])
	if nanos == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, int64(nanos)), nil
}

func encodeSsta(t time.Time) []byte {
	payload := make([]byte, 8)
	if !t.IsZero() {
		binary.BigEndian.PutUint64(payload, uint64(t.UnixNano()))
	}
	return payload
}

// encodeStat builds the payload for an outbound STAT frame: a 4-byte
// event code (one of PEE's status codes, or the periodic "STMt"
// heartbeat tag), the elapsed position in milliseconds, and an optional
// trailing error code string (only non-empty for STMn).
func encodeStat(eventCode string, elapsedSeconds float64, errorCode string) []byte {
	payload := make([]byte, 8+len(errorCode))
	copy(payload[0:4], padTo4(eventCode))
	binary.BigEndian.PutUint32(payload[4:8], uint32(elapsedSeconds*1000))
	copy(payload[8:], errorCode)
	return payload
}

func trimNulls(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

func padTo4(s string) []byte {
	out := make([]byte, 4)
	copy(out, s)
	return out
}
