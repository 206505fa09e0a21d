package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordProbe("a", time.Millisecond, nil)
	m.RecordTrade("aggregator", "buy", "", time.Second)
	m.SetApprovalsPending(3)
	assert.Nil(t, m.Registry())
}

func TestMetrics_HandlerExposesRecordedSeries(t *testing.T) {
	m := NewMetrics("test")
	m.SetEndpointHealth("https://rpc-a", "premium", true, 0)
	m.RecordSubmission(errors.New("boom"))
	m.RecordTrade("bonding_curve", "buy", "", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `test_rpcpool_endpoint_healthy{endpoint="https://rpc-a",tier="premium"} 1`))
	assert.True(t, strings.Contains(text, `test_settlement_submission_attempts_total{result="error"} 1`))
	assert.True(t, strings.Contains(text, `test_executor_trades_total{code="OK",side="buy",venue="bonding_curve"} 1`))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics("dup")
	b := NewMetrics("dup")
	assert.NotSame(t, a.Registry(), b.Registry())
}
