package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStage(t *testing.T) {
	c := NewCollector(85, 0.01)
	c.ObserveStage("add_distances", 20*time.Millisecond, 42)
	c.ObserveStage("add_distances", 10*time.Millisecond, 40)

	assert.Equal(t, 40.0, testutil.ToFloat64(c.StageRows.WithLabelValues("add_distances")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.StageDuration))
	assert.Equal(t, 85.0, testutil.ToFloat64(c.VelocityThreshold))
	assert.Equal(t, 0.01, testutil.ToFloat64(c.Contamination))
}

func TestHandler(t *testing.T) {
	c := NewCollector(85, 0.01)
	c.RecordsRejected.Add(3)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "roaming_records_rejected_total 3")
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	c := NewCollector(85, 0.01)
	c.RecordsIngested.Add(10)
	require.NoError(t, c.Push(context.Background(), gw.URL, "cab_roaming"))
	assert.True(t, strings.HasSuffix(gotPath, "/job/cab_roaming"), gotPath)
	assert.NotEmpty(t, gotBody)
	assert.Positive(t, testutil.ToFloat64(c.LastRunTimestamp))
}
