package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()
	r.Attempt(ModeInvoke, OutcomeSuccess, 200*time.Millisecond)
	r.Attempt(ModeInvoke, OutcomeFailed, time.Second)
	r.Attempt(ModeStream, OutcomeRejected, 0)
	r.Compensation(ModeInvoke, nil)
	r.Compensation(ModeStream, errors.New("db gone"))
	r.Chunk()
	r.Chunk()

	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues(ModeInvoke, OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues(ModeStream, OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.compFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.chunks))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Attempt(ModeInvoke, OutcomeSuccess, time.Second)
		r.Compensation(ModeInvoke, nil)
		r.Chunk()
	})
}

func TestRecorderHandler(t *testing.T) {
	r := NewRecorder()
	r.Attempt(ModeRemember, OutcomeSuccess, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `chat_inference_requests_total{mode="remember",outcome="success"} 1`)
}
