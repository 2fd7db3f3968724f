package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()

	c.ObserveUpload("completed", "", 2*time.Second)
	c.ObserveUpload("failed", "quota_exceeded", time.Second)
	c.ObserveUpload("failed", "quota_exceeded", time.Second)
	c.ObserveMove("archive")
	c.ObserveSync("hourly", "completed")
	c.ObserveFoldersCreated(5)
	c.ObserveFoldersCreated(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.UploadJobs.WithLabelValues("completed", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.UploadJobs.WithLabelValues("failed", "quota_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FolderMoves.WithLabelValues("archive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SyncRuns.WithLabelValues("hourly", "completed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.FoldersCreated))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveUpload("completed", "", time.Second)
	c.ObserveMove("active")
	c.ObserveSync("manual", "failed")
	c.ObserveFoldersCreated(1)
	c.ObserveHalt()
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.ObserveHalt()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "kiosksync_provider_config_halts_total 1"))
}
