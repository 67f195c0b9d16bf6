package logs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutEndpointHasNoHTTPSink(t *testing.T) {
	l := New(Options{})
	defer l.Close()
	assert.Nil(t, l.http)
}

func TestLoggerShipsBatchToHTTPEndpoint(t *testing.T) {
	var mu sync.Mutex
	var received []Entry

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []Entry
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		mu.Lock()
		received = append(received, batch...)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	l := New(Options{Endpoint: srv.URL, BatchSize: 2, FlushInterval: time.Hour})
	defer l.Close()

	l.Debugf("first")
	l.Warnf("second")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "first", received[0].Message)
	assert.Equal(t, "debug", received[0].Level)
	assert.Equal(t, "second", received[1].Message)
	assert.Equal(t, "warn", received[1].Level)
	assert.Equal(t, service, received[0].Service)
}

func TestLoggerFlushesOnTickerWithoutReachingBatchSize(t *testing.T) {
	var mu sync.Mutex
	var received []Entry

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []Entry
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		mu.Lock()
		received = append(received, batch...)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	l := New(Options{Endpoint: srv.URL, BatchSize: 100, FlushInterval: 20 * time.Millisecond})
	defer l.Close()

	l.Errorf("lonely entry")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoggerCloseFlushesRemainingEntries(t *testing.T) {
	var mu sync.Mutex
	var received []Entry

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []Entry
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		mu.Lock()
		received = append(received, batch...)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	l := New(Options{Endpoint: srv.URL, BatchSize: 100, FlushInterval: time.Hour})
	l.Debugf("only entry")
	l.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "only entry", received[0].Message)
}
