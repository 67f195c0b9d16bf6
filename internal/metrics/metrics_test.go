package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStatusEmissionIncrementsByCode(t *testing.T) {
	m, handler := New()
	m.ObserveStatusEmission("STMs")
	m.ObserveStatusEmission("STMs")
	m.ObserveStatusEmission("STMd")

	body := scrape(t, handler)
	assert.Contains(t, body, `slimclient_status_emissions_total{code="STMs"} 2`)
	assert.Contains(t, body, `slimclient_status_emissions_total{code="STMd"} 1`)
}

func TestSetBufferDepthReportsGauge(t *testing.T) {
	m, handler := New()
	m.SetBufferDepth(65536)

	body := scrape(t, handler)
	assert.Contains(t, body, "slimclient_output_buffer_bytes 65536")
}

func TestObserveDecodeErrorIncrementsByCode(t *testing.T) {
	m, handler := New()
	m.ObserveDecodeError("decode_failed")

	body := scrape(t, handler)
	assert.Contains(t, body, `slimclient_decode_errors_total{code="decode_failed"} 1`)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStatusEmission("STMs")
		m.SetBufferDepth(1)
		m.ObserveDecoderSleep()
		m.ObserveTrackStart()
		m.ObserveDecodeError("x")
	})
}

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return sb.String()
}
