package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_beforeFirstStat(t *testing.T) {
	tracker := NewTracker()
	srv := httptest.NewServer(Handler(tracker))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestHandler_connected(t *testing.T) {
	tracker := NewTracker()
	tracker.SetConnected(true)
	tracker.SetPipelineState("playing")
	srv := httptest.NewServer(Handler(tracker))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestHandler_disconnectedAfterStat(t *testing.T) {
	tracker := NewTracker()
	tracker.SetConnected(true)
	tracker.SetConnected(false)
	srv := httptest.NewServer(Handler(tracker))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestTracker_concurrentAccess(t *testing.T) {
	tracker := NewTracker()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			tracker.SetConnected(i%2 == 0)
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		_ = tracker.HealthStatus()
	}
	<-done
}
