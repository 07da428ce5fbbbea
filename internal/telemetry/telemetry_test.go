package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.ObservePass(PassPre, 20*time.Millisecond)
	m.ObserveGraph(120, 340)
	m.ObserveTrace(64, 16, true)
	m.ObserveTrace(64, 16, false)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	m.ObserveRun(nil)
	m.ObserveRun(errors.New("boom"))

	assert.Equal(t, 120.0, testutil.ToFloat64(m.graphNodes))
	assert.Equal(t, 340.0, testutil.ToFloat64(m.graphEdges))
	assert.Equal(t, 128.0, testutil.ToFloat64(m.voxels))
	assert.Equal(t, 32.0, testutil.ToFloat64(m.samples))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lossyRuns))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.passDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveGraph(3, 4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "pdgsim_graph_nodes 3")
}

func TestInitTracing(t *testing.T) {
	t.Run("none keeps the no-op provider", func(t *testing.T) {
		shutdown, err := InitTracing(ExporterNone, nil)
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := InitTracing("jaeger", nil)
		assert.ErrorContains(t, err, "unknown trace exporter")
	})

	t.Run("stdout writes spans", func(t *testing.T) {
		prev := otel.GetTracerProvider()
		t.Cleanup(func() { otel.SetTracerProvider(prev) })

		var buf bytes.Buffer
		shutdown, err := InitTracing(ExporterStdout, &buf)
		require.NoError(t, err)

		_, span := otel.Tracer("test").Start(context.Background(), "prepass")
		span.End()
		require.NoError(t, shutdown(context.Background()))

		assert.True(t, strings.Contains(buf.String(), `"Name":"prepass"`), buf.String())
	})
}
