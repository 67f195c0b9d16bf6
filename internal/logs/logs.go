// Package logs wires the Logger interface shared by internal/pipeline,
// internal/coordinator, and internal/slimproto to two sinks: a
// charmbracelet/log console writer, and an optional batched async HTTP
// shipper generalized from cloud-livekit-bridge's BetterStackLogger.
package logs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Entry is one structured log record shipped to the HTTP sink.
type Entry struct {
	Message   string `json:"message"`
	Level     string `json:"level"`
	Timestamp string `json:"dt"`
	Service   string `json:"service"`
}

const service = "slimclient"

const (
	defaultBatchSize     = 20
	defaultFlushInterval = 5 * time.Second
	defaultHTTPTimeout   = 10 * time.Second
)

// Options configures New.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Empty means info.
	Level string
	// Endpoint, if non-empty, is an HTTP URL that batches of Entry are
	// POSTed to as a JSON array. Empty disables the HTTP sink.
	Endpoint string
	// BatchSize and FlushInterval tune the HTTP sink; zero values fall
	// back to defaults matching cloud-livekit-bridge's BetterStackLogger.
	BatchSize     int
	FlushInterval time.Duration
}

// Logger is the leveled logging surface every internal package depends
// on via a narrower Logger interface of its own (Debugf/Warnf/Errorf).
type Logger struct {
	console *charmlog.Logger
	http    *httpSink
}

// New builds a Logger writing to stderr via charmbracelet/log, and
// optionally shipping the same entries to an HTTP endpoint in batches.
func New(opts Options) *Logger {
	console := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Level:           parseLevel(opts.Level),
	})

	l := &Logger{console: console}
	if opts.Endpoint != "" {
		l.http = newHTTPSink(opts.Endpoint, opts.BatchSize, opts.FlushInterval)
	}
	return l
}

func parseLevel(level string) charmlog.Level {
	switch level {
	case "debug":
		return charmlog.DebugLevel
	case "warn":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.log("debug", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log("warn", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log("error", format, args...) }

func (l *Logger) log(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case "debug":
		l.console.Debug(msg)
	case "warn":
		l.console.Warn(msg)
	case "error":
		l.console.Error(msg)
	default:
		l.console.Info(msg)
	}
	if l.http != nil {
		l.http.enqueue(Entry{
			Message:   msg,
			Level:     level,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Service:   service,
		})
	}
}

// Close flushes and stops the HTTP sink, if any.
func (l *Logger) Close() {
	if l.http != nil {
		l.http.close()
	}
}

// httpSink batches entries and POSTs them to endpoint, the same
// buffer-then-background-flush shape as cloud-livekit-bridge's BetterStackLogger,
// generalized away from a single named provider's auth header.
type httpSink struct {
	endpoint      string
	client        *http.Client
	batchSize     int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []Entry
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newHTTPSink(endpoint string, batchSize int, flushInterval time.Duration) *httpSink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	s := &httpSink{
		endpoint:      endpoint,
		client:        &http.Client{Timeout: defaultHTTPTimeout},
		batchSize:     batchSize,
		flushInterval: flushInterval,
		buffer:        make([]Entry, 0, batchSize),
		stopCh:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.flushWorker()
	return s
}

func (s *httpSink) enqueue(e Entry) {
	s.mu.Lock()
	s.buffer = append(s.buffer, e)
	shouldFlush := len(s.buffer) >= s.batchSize
	s.mu.Unlock()
	if shouldFlush {
		s.flush()
	}
}

func (s *httpSink) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	entries := make([]Entry, len(s.buffer))
	copy(entries, s.buffer)
	s.buffer = s.buffer[:0]
	s.mu.Unlock()

	go s.send(entries)
}

func (s *httpSink) send(entries []Entry) {
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
}

func (s *httpSink) flushWorker() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.stopCh:
			// Send the final batch synchronously so Close returns only
			// once it has been delivered (or has failed).
			s.mu.Lock()
			entries := append([]Entry(nil), s.buffer...)
			s.buffer = s.buffer[:0]
			s.mu.Unlock()
			if len(entries) > 0 {
				s.send(entries)
			}
			return
		}
	}
}

func (s *httpSink) close() {
	close(s.stopCh)
	s.wg.Wait()
}
