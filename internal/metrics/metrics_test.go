package metrics

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

func testRows() []model.Row {
	l := model.NewLimit("Images per repository", "ECR", 10000, 80, 90)
	l.AddCurrentUsage(9200, model.WithResourceID("repo1"))
	l.AddCurrentUsage(100, model.WithResourceID("repo2"))
	return l.Rows()
}

func TestObserveScan(t *testing.T) {
	m := NewMetrics("limitchecker")
	results := []checker.Result{
		{Service: "ECR", Outcome: checker.OutcomePopulated},
		{Service: "EKS", Outcome: checker.OutcomeFailed, Err: stderrors.New("denied")},
	}

	m.ObserveScan(testRows(), results, model.SeverityCritical, 3*time.Second, time.Unix(1700000000, 0))

	assert.Equal(t, 9200.0, testutil.ToFloat64(m.LimitUsage.WithLabelValues("ECR", "Images per repository", "repo1")))
	assert.Equal(t, 92.0, testutil.ToFloat64(m.LimitUsagePercent.WithLabelValues("ECR", "Images per repository", "repo1")))
	assert.Equal(t, 10000.0, testutil.ToFloat64(m.LimitQuota.WithLabelValues("ECR", "Images per repository")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckerUp.WithLabelValues("ECR")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CheckerUp.WithLabelValues("EKS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("CRITICAL")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastScanTimestamp))
}

func TestObserveScan_DropsStaleSeries(t *testing.T) {
	m := NewMetrics("limitchecker")
	m.ObserveScan(testRows(), nil, model.SeverityOK, time.Second, time.Now())
	assert.Equal(t, 2, testutil.CollectAndCount(m.LimitUsage))

	m.ObserveScan(nil, nil, model.SeverityOK, time.Second, time.Now())
	assert.Equal(t, 0, testutil.CollectAndCount(m.LimitUsage))
}

func TestHandler(t *testing.T) {
	m := NewMetrics("limitchecker")
	m.ObserveScan(testRows(), nil, model.SeverityWarning, time.Second, time.Now())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `limitchecker_limit_usage{limit="Images per repository",resource="repo1",service="ECR"} 9200`))
	assert.Contains(t, body, `limitchecker_scans_total{severity="WARNING"} 1`)
}
