package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuxishi/aws-limit-checker/internal/cache"
	"github.com/yuxishi/aws-limit-checker/internal/checker"
	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
	"github.com/yuxishi/aws-limit-checker/internal/metrics"
	"github.com/yuxishi/aws-limit-checker/internal/model"
	"github.com/yuxishi/aws-limit-checker/internal/runner"
)

type staticChecker struct {
	*checker.Base
}

func newStaticChecker() *staticChecker {
	c := &staticChecker{}
	c.Base = checker.NewBase("ECR", "ecr", checker.Options{}, func(b *checker.Base) []*model.Limit {
		return []*model.Limit{b.NewLimit("Images per repository", 10000)}
	})
	return c
}

func (c *staticChecker) Connect(context.Context) error   { return nil }
func (c *staticChecker) FindUsage(context.Context) error { return nil }
func (c *staticChecker) RequiredPermissions() []string {
	return []string{"ecr:DescribeImages", "ecr:DescribeRepositories"}
}

type fakeScanner struct {
	registry *checker.Registry
	report   *runner.Report
	err      error
	runs     int
}

func (f *fakeScanner) Run(context.Context) (*runner.Report, error) {
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeScanner) State() runner.State          { return runner.StateIdle }
func (f *fakeScanner) Registry() *checker.Registry { return f.registry }

func testReport() *runner.Report {
	images := model.NewLimit("Images per repository", "ECR", 10000, 80, 90)
	images.AddCurrentUsage(9200, model.WithResourceID("repo1"))
	images.AddCurrentUsage(8500, model.WithResourceID("repo2"))
	images.AddCurrentUsage(10, model.WithResourceID("repo3"))
	mystery := model.NewLimit("Mystery", "CloudTrail", 0, 80, 90, model.WithUnknownDefault())
	mystery.AddCurrentUsage(3)

	problems := model.Problems{}
	if view, ok := images.Filtered(model.SeverityWarning); ok {
		problems.Add(view)
	}
	return &runner.Report{
		ID:              "scan-1",
		FinishedAt:      time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		DurationSeconds: 1.5,
		Level:           model.SeverityCritical,
		Summary:         problems.String(),
		Warnings:        1,
		Criticals:       1,
		Rows:            model.RowsOf([]*model.Limit{mystery, images}),
		Problems:        problems,
		Failures:        []runner.Failure{{Service: "EKS", Error: "access denied"}},
	}
}

func setup(t *testing.T, scanner *fakeScanner) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if scanner.registry == nil {
		scanner.registry = checker.NewRegistry(1, nil)
		require.NoError(t, scanner.registry.Register(newStaticChecker()))
	}
	c := cache.New[*runner.Report](time.Minute)
	t.Cleanup(c.Stop)

	regions := func(context.Context) ([]model.Region, error) {
		return []model.Region{{Code: "eu-west-1", Name: "eu-west-1"}}, nil
	}
	h := New(scanner, c, regions, nil)
	r := gin.New()
	h.Register(r, metrics.NewMetrics("test").Handler())
	return r, h
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestGetLimits_ScansOnCacheMiss(t *testing.T) {
	scanner := &fakeScanner{report: testReport()}
	r, _ := setup(t, scanner)

	rec := do(r, http.MethodGet, "/api/limits")
	require.Equal(t, http.StatusOK, rec.Code)

	var body LimitsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "scan-1", body.ScanID)
	assert.Equal(t, 4, body.Total)
	assert.False(t, body.FromCache)

	rec = do(r, http.MethodGet, "/api/limits?service=ecr&search=REPO1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.FromCache)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "repo1", body.Rows[0].ResourceID)
	assert.Equal(t, 1, scanner.runs)
}

func TestGetProblems(t *testing.T) {
	r, _ := setup(t, &fakeScanner{report: testReport()})

	rec := do(r, http.MethodGet, "/api/problems")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Level string      `json:"level"`
		Total int         `json:"total"`
		Rows  []model.Row `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CRITICAL", body.Level)
	assert.Equal(t, 2, body.Total)

	rec = do(r, http.MethodGet, "/api/problems?severity=critical")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "repo1", body.Rows[0].ResourceID)

	rec = do(r, http.MethodGet, "/api/problems?severity=CRITICAL")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)

	rec = do(r, http.MethodGet, "/api/problems?severity=info")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(r, http.MethodGet, "/api/problems?severity=ok")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	scanner := &fakeScanner{report: testReport()}
	r, _ := setup(t, scanner)

	do(r, http.MethodGet, "/api/limits")
	rec := do(r, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, scanner.runs)
	assert.Contains(t, rec.Body.String(), `"scan_id":"scan-1"`)
}

func TestScanErrors(t *testing.T) {
	r, _ := setup(t, &fakeScanner{err: &apperrors.ErrNoCheckers{}})
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/api/limits").Code)

	r, _ = setup(t, &fakeScanner{err: stderrors.New("boom")})
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/api/refresh").Code)
}

func TestExport(t *testing.T) {
	r, h := setup(t, &fakeScanner{report: testReport()})

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/export/json").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/export/html").Code)

	h.Store(testReport())

	rec := do(r, http.MethodGet, "/api/export/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=aws-limits-2026-10-18.json", rec.Header().Get("Content-Disposition"))
	var exported runner.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	assert.Equal(t, "scan-1", exported.ID)
	assert.Len(t, exported.Rows, 4)

	rec = do(r, http.MethodGet, "/api/export/html")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	html := rec.Body.String()
	assert.Contains(t, html, `<tr class="critical">`)
	assert.Contains(t, html, "<td>9,200</td>")
	assert.Contains(t, html, "<td>92%</td>")
	assert.Contains(t, html, "&lt;unknown&gt;")
	assert.Contains(t, html, "EKS not checked: access denied")
}

func TestHealthAndMetrics(t *testing.T) {
	r, h := setup(t, &fakeScanner{report: testReport()})

	rec := do(r, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","state":"idle"}`, rec.Body.String())

	h.Store(testReport())
	rec = do(r, http.MethodGet, "/healthz")
	assert.Contains(t, rec.Body.String(), `"level":"CRITICAL"`)

	rec = do(r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServicesAndRegions(t *testing.T) {
	r, _ := setup(t, &fakeScanner{report: testReport()})

	rec := do(r, http.MethodGet, "/api/services")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"services":[{"name":"ECR","api_name":"ecr","limits":["Images per repository"],"permissions":["ecr:DescribeImages","ecr:DescribeRepositories"]}]}`,
		rec.Body.String())

	rec = do(r, http.MethodGet, "/api/regions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"eu-west-1"`)
}
