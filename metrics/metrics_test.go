package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("test")

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded("client_closed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("client_closed")))

	m.FrameReceived(100)
	m.FrameReceived(28)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesTotal))
	assert.Equal(t, 128.0, testutil.ToFloat64(m.AudioBytesTotal))

	m.StageDone("generate", 10*time.Millisecond, nil)
	m.StageDone("generate", 10*time.Millisecond, errors.New("x"))
	m.Fallback("generate")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("generate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("generate")))

	m.TurnCompleted("speech", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("speech")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New("")
	m.TurnCompleted("no_audio", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `empathy_turns_total{kind="no_audio"} 1`)
}

func TestMetrics_StageHistogram(t *testing.T) {
	m := New("test")
	m.StageDone("transcribe", 200*time.Millisecond, nil)
	m.StageDone("transcribe", 2*time.Second, nil)
	m.StageDone("synthesize", time.Second, nil)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var hist *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "test_stage_duration_seconds" {
			hist = f
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, dto.MetricType_HISTOGRAM, hist.GetType())

	counts := map[string]uint64{}
	for _, metric := range hist.GetMetric() {
		for _, l := range metric.GetLabel() {
			if l.GetName() == "stage" {
				counts[l.GetValue()] = metric.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, map[string]uint64{"transcribe": 2, "synthesize": 1}, counts)
}
