package slimproto

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/lyrplay/slimclient/internal/coordinator"
	"github.com/lyrplay/slimclient/internal/pee"
	"github.com/lyrplay/slimclient/internal/smr"
)

// heartbeatEventCode tags a periodic STAT frame that carries no PEE
// status transition, only fresh position telemetry.
const heartbeatEventCode = "STMt"

const (
	dialTimeout     = 10 * time.Second
	reconnectDelay  = 2 * time.Second
	dialRetryDelay  = 5 * time.Second
	heartbeatPeriod = 5 * time.Second
)

// Logger is reused from internal/coordinator (itself reused from
// internal/pipeline) so every layer of the stack shares one interface.
type Logger = coordinator.Logger

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// PositionProvider supplies the position telemetry a STAT heartbeat
// reports; internal/coordinator's CurrentPositionSeconds satisfies it.
type PositionProvider interface {
	CurrentPositionSeconds() float64
}

// Handler receives decoded inbound commands; internal/coordinator's
// Coordinator satisfies it.
type Handler interface {
	StrmStart(coordinator.StrmStart) error
	StrmPause() error
	StrmResume() error
	StrmStop()
	SkipAhead(seconds float64)
	PlaySilence(seconds float64) error
	StartAt(targetTime time.Time)
	SetVolume(v float64) error
	SetReplayGain(g float64) error
	RequestFreshMetadata() smr.StreamInfo
}

// Client owns the TCP control connection to the Lyrion server: it
// dials, reconnects on loss, performs the HELO handshake, ticks a STAT
// heartbeat, and decodes/dispatches inbound frames to a Handler. It
// also implements coordinator.ProtocolSink so a Coordinator can write
// PEE emissions, seek hints, and metadata straight back out the same
// connection.
type Client struct {
	addr     string
	playerID string
	handler  Handler
	position PositionProvider
	logger   Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed chan struct{}

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    net.Conn
}

// New builds a Client. Run must be called (typically in its own
// goroutine) to actually dial and start serving.
func New(addr, playerID string, handler Handler, position PositionProvider, logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		addr:     addr,
		playerID: playerID,
		handler:  handler,
		position: position,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		closed:   make(chan struct{}),
	}
}

// Run dials, handshakes, and serves until Close is called. On any
// connection error it tears down and reattaches, the same
// dial-then-read-loop-then-reattach shape as a network KISS TNC client
// reconnecting to a dropped socket, generalized with context-driven
// shutdown instead of an unconditional retry loop.
func (c *Client) Run() {
	defer close(c.closed)
	for {
		if c.ctx.Err() != nil {
			return
		}

		conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
		if err != nil {
			c.logger.Warnf("slimproto: dial %s failed: %v", c.addr, err)
			if !c.sleep(dialRetryDelay) {
				return
			}
			continue
		}
		if c.ctx.Err() != nil {
			conn.Close()
			return
		}

		c.setConn(conn)
		if err := c.sendHelo(); err != nil {
			c.logger.Warnf("slimproto: HELO handshake failed: %v", err)
			c.teardown()
			if !c.sleep(reconnectDelay) {
				return
			}
			continue
		}

		hbDone := make(chan struct{})
		go c.heartbeatLoop(conn, hbDone)

		c.readLoop(conn)

		close(hbDone)
		c.teardown()

		if !c.sleep(reconnectDelay) {
			return
		}
	}
}

// Close stops Run and closes the underlying connection, if any.
func (c *Client) Close() {
	c.cancel()
	c.teardown()
	<-c.closed
}

func (c *Client) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) teardown() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) sendHelo() error {
	return c.writeFrame(opHelo, []byte(c.playerID))
}

func (c *Client) heartbeatLoop(conn net.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			elapsed := 0.0
			if c.position != nil {
				elapsed = c.position.CurrentPositionSeconds()
			}
			if err := c.writeFrame(opStat, encodeStat(heartbeatEventCode, elapsed, "")); err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop(conn net.Conn) {
	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame Frame) {
	var err error
	switch frame.OpcodeString() {
	case opStrm:
		err = decodeStrm(frame.Payload, c.handler)
	case opAudg:
		var v float64
		if v, err = decodeFloat64Payload(frame.Payload); err == nil {
			err = c.handler.SetVolume(v)
		}
	case opRpgn:
		var g float64
		if g, err = decodeFloat64Payload(frame.Payload); err == nil {
			err = c.handler.SetReplayGain(g)
		}
	case opSkip:
		var s float64
		if s, err = decodeFloat64Payload(frame.Payload); err == nil {
			c.handler.SkipAhead(s)
		}
	case opSiln:
		var s float64
		if s, err = decodeFloat64Payload(frame.Payload); err == nil {
			err = c.handler.PlaySilence(s)
		}
	case opSsta:
		var t time.Time
		if t, err = decodeSsta(frame.Payload); err == nil {
			c.handler.StartAt(t)
		}
	case opMreq:
		info := c.handler.RequestFreshMetadata()
		err = c.sendMeta(info)
	default:
		c.logger.Debugf("slimproto: ignoring unknown opcode %q", frame.OpcodeString())
		return
	}
	if err != nil {
		c.logger.Warnf("slimproto: handling %q frame: %v", frame.OpcodeString(), err)
	}
}

func (c *Client) sendMeta(info smr.StreamInfo) error {
	return c.writeFrame(opMeta, []byte(info.Title))
}

func (c *Client) writeFrame(opcode string, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(conn, opcode, payload)
}

// Emit implements coordinator.ProtocolSink / pee.Sink: every PEE status
// transition goes out as a STAT frame carrying the current position.
func (c *Client) Emit(e pee.Emission) {
	elapsed := 0.0
	if c.position != nil {
		elapsed = c.position.CurrentPositionSeconds()
	}
	if err := c.writeFrame(opStat, encodeStat(string(e.Code), elapsed, e.ErrorCode)); err != nil {
		c.logger.Warnf("slimproto: emit %s failed: %v", e.Code, err)
	}
}

// RequestSeek implements coordinator.ProtocolSink (best-effort
// minimal seek request).
func (c *Client) RequestSeek(seconds float64) {
	if err := c.writeFrame(opResq, encodeFloat64Payload(seconds)); err != nil {
		c.logger.Warnf("slimproto: seek request failed: %v", err)
	}
}

// ForwardMetadata implements coordinator.ProtocolSink: a raw ICY frame
// read off the audio stream is passed through to the server unparsed.
func (c *Client) ForwardMetadata(raw string) {
	if err := c.writeFrame(opMeta, []byte(raw)); err != nil {
		c.logger.Warnf("slimproto: metadata forward failed: %v", err)
	}
}
