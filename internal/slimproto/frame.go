// Package slimproto is the wire transport: it dials the Lyrion/Squeezebox
// server over TCP, frames commands in both directions, and translates
// between those frames and internal/coordinator's typed command/sink API.
// The wire format itself is treated as an external collaborator's concern
// (out of scope to reimplement faithfully); this package only frames
// enough to exercise internal/coordinator over a real net.Conn.
package slimproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFramePayload bounds a single frame so a corrupt length field can't
// make ReadFrame allocate unboundedly.
const maxFramePayload = 1 << 20

// Frame is one opcode-tagged message in either direction: a 4-byte ASCII
// opcode followed by a big-endian uint32 length and that many payload
// bytes.
type Frame struct {
	Opcode  [4]byte
	Payload []byte
}

func (f Frame) OpcodeString() string { return string(f.Opcode[:]) }

// ReadFrame blocks until a full frame has arrived on r, or returns the
// underlying read error (including io.EOF on a clean close).
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(hdr[4:8])
	if length > maxFramePayload {
		return Frame{}, fmt.Errorf("slimproto: frame payload %d exceeds max %d", length, maxFramePayload)
	}
	var payload []byte
	if length > 0 {
		payload = make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	var f Frame
	copy(f.Opcode[:], hdr[:4])
	f.Payload = payload
	return f, nil
}

// WriteFrame writes one opcode-tagged frame. opcode must be exactly 4
// bytes (shorter strings are space-padded).
func WriteFrame(w io.Writer, opcode string, payload []byte) error {
	var hdr [8]byte
	copy(hdr[:4], []byte(fmt.Sprintf("%-4s", opcode))[:4])
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
