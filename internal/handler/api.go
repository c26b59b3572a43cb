package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yuxishi/aws-limit-checker/internal/cache"
	"github.com/yuxishi/aws-limit-checker/internal/checker"
	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
	"github.com/yuxishi/aws-limit-checker/internal/model"
	"github.com/yuxishi/aws-limit-checker/internal/runner"
)

const reportKey = "report"

// Scanner runs scans on demand.
type Scanner interface {
	Run(ctx context.Context) (*runner.Report, error)
	State() runner.State
	Registry() *checker.Registry
}

// RegionLister returns the regions visible to the account.
type RegionLister func(ctx context.Context) ([]model.Region, error)

type Handler struct {
	scanner Scanner
	cache   *cache.Cache[*runner.Report]
	regions RegionLister
	logger  *zap.Logger
}

func New(scanner Scanner, c *cache.Cache[*runner.Report], regions RegionLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		scanner: scanner,
		cache:   c,
		regions: regions,
		logger:  logger.Named("http"),
	}
}

// Register mounts every route on r. metrics may be nil.
func (h *Handler) Register(r *gin.Engine, metrics http.Handler) {
	r.GET("/healthz", h.Health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api")
	{
		api.GET("/regions", h.GetRegions)
		api.GET("/services", h.GetServices)
		api.GET("/limits", h.GetLimits)
		api.GET("/problems", h.GetProblems)
		api.POST("/refresh", h.Refresh)
		api.GET("/export/json", h.ExportJSON)
		api.GET("/export/html", h.ExportHTML)
	}
}

// Store caches a report produced outside a request, e.g. by the ticker.
func (h *Handler) Store(report *runner.Report) {
	h.cache.Set(reportKey, report)
}

// report returns the cached report, scanning on a miss.
func (h *Handler) report(ctx context.Context) (*runner.Report, bool, error) {
	if cached, ok := h.cache.Get(reportKey); ok {
		return cached, true, nil
	}
	report, err := h.scanner.Run(ctx)
	if err != nil {
		return nil, false, err
	}
	h.cache.Set(reportKey, report)
	return report, false, nil
}

func (h *Handler) scanError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var noCheckers *apperrors.ErrNoCheckers
	if errors.As(err, &noCheckers) {
		status = http.StatusServiceUnavailable
	}
	h.logger.Error("Scan failed", zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"state":  h.scanner.State().String(),
	}
	if cached, ok := h.cache.Get(reportKey); ok {
		body["last_scan"] = cached.FinishedAt
		body["level"] = cached.Level
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) GetRegions(c *gin.Context) {
	if h.regions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "region listing is not configured"})
		return
	}
	regions, err := h.regions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"regions": regions})
}

type serviceInfo struct {
	Name        string   `json:"name"`
	APIName     string   `json:"api_name"`
	Limits      []string `json:"limits"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) GetServices(c *gin.Context) {
	checkers := h.scanner.Registry().Checkers()
	services := make([]serviceInfo, 0, len(checkers))
	for _, chk := range checkers {
		info := serviceInfo{
			Name:        chk.Name(),
			APIName:     chk.APIName(),
			Permissions: chk.RequiredPermissions(),
		}
		for name := range chk.Limits() {
			info.Limits = append(info.Limits, name)
		}
		sort.Strings(info.Limits)
		services = append(services, info)
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}

// LimitsResponse is the body of the limit listing endpoints.
type LimitsResponse struct {
	ScanID    string      `json:"scan_id"`
	Rows      []model.Row `json:"rows"`
	Total     int         `json:"total"`
	FetchedAt time.Time   `json:"fetched_at"`
	FromCache bool        `json:"from_cache"`
}

func (h *Handler) GetLimits(c *gin.Context) {
	report, fromCache, err := h.report(c.Request.Context())
	if err != nil {
		h.scanError(c, err)
		return
	}
	rows := filterRows(report.Rows, c.Query("service"), c.Query("search"))
	c.JSON(http.StatusOK, LimitsResponse{
		ScanID:    report.ID,
		Rows:      rows,
		Total:     len(rows),
		FetchedAt: report.FinishedAt,
		FromCache: fromCache,
	})
}

// GetProblems lists records at or above ?severity= (warning by default).
func (h *Handler) GetProblems(c *gin.Context) {
	var min model.Severity
	if err := min.UnmarshalText([]byte(c.DefaultQuery("severity", "warning"))); err != nil || min == model.SeverityOK {
		c.JSON(http.StatusBadRequest, gin.H{"error": "severity must be warning or critical"})
		return
	}

	report, fromCache, err := h.report(c.Request.Context())
	if err != nil {
		h.scanError(c, err)
		return
	}

	rows := make([]model.Row, 0)
	for _, row := range report.ProblemRows() {
		if row.Severity >= min {
			rows = append(rows, row)
		}
	}
	rows = filterRows(rows, c.Query("service"), "")
	c.JSON(http.StatusOK, gin.H{
		"scan_id":    report.ID,
		"level":      report.Level,
		"summary":    report.Summary,
		"rows":       rows,
		"total":      len(rows),
		"fetched_at": report.FinishedAt,
		"from_cache": fromCache,
	})
}

// Refresh drops the cached report and scans again.
func (h *Handler) Refresh(c *gin.Context) {
	h.cache.Clear()
	report, _, err := h.report(c.Request.Context())
	if err != nil {
		h.scanError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Scan completed",
		"scan_id":   report.ID,
		"level":     report.Level,
		"warnings":  report.Warnings,
		"criticals": report.Criticals,
		"failures":  report.Failures,
	})
}

func filterRows(rows []model.Row, service, search string) []model.Row {
	if service == "" && search == "" {
		return rows
	}
	search = strings.ToLower(search)
	filtered := make([]model.Row, 0)
	for _, r := range rows {
		if service != "" && !strings.EqualFold(r.Service, service) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.Limit), search) &&
			!strings.Contains(strings.ToLower(r.ResourceID), search) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}
