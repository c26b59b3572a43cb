package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yuxishi/aws-limit-checker/internal/model"
	"github.com/yuxishi/aws-limit-checker/internal/runner"
)

const errNoData = "No data available. Please run a scan first."

func exportName(ext string, at time.Time) string {
	return fmt.Sprintf("aws-limits-%s.%s", at.Format("2006-01-02"), ext)
}

func (h *Handler) ExportJSON(c *gin.Context) {
	report, ok := h.cache.Get(reportKey)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": errNoData})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+exportName("json", report.FinishedAt))
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ExportHTML(c *gin.Context) {
	report, ok := h.cache.Get(reportKey)
	if !ok {
		c.String(http.StatusBadRequest, errNoData)
		return
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, newReportView(report)); err != nil {
		h.logger.Error("Could not render report", zap.Error(err))
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+exportName("html", report.FinishedAt))
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

type rowView struct {
	Service  string
	Limit    string
	Resource string
	Usage    string
	Quota    string
	Percent  string
	Severity string
	Class    string
}

type reportView struct {
	ID        string
	Generated string
	Duration  string
	Level     string
	Total     int
	Rows      []rowView
	Failures  []runner.Failure
}

func newReportView(r *runner.Report) reportView {
	v := reportView{
		ID:        r.ID,
		Generated: r.FinishedAt.Format("2006-01-02 15:04:05"),
		Duration:  fmt.Sprintf("%.2f seconds", r.DurationSeconds),
		Level:     r.Level.String(),
		Total:     len(r.Rows),
		Failures:  r.Failures,
	}
	for _, row := range r.Rows {
		resource := row.ResourceID
		if resource == "" {
			resource = "-"
		}
		quota := row.QuotaString()
		if row.KnownQuota() {
			quota = humanize.Commaf(*row.Quota)
		}
		v.Rows = append(v.Rows, rowView{
			Service:  row.Service,
			Limit:    row.Limit,
			Resource: resource,
			Usage:    humanize.Commaf(row.Usage),
			Quota:    quota,
			Percent:  row.PercentString(),
			Severity: row.Severity.String(),
			Class:    severityClass(row.Severity),
		})
	}
	return v
}

func severityClass(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "critical"
	case model.SeverityWarning:
		return "warning"
	default:
		return "ok"
	}
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>AWS Limit Report</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 20px; }
        h1 { color: #232f3e; }
        table { border-collapse: collapse; width: 100%; margin-top: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #232f3e; color: white; }
        tr:nth-child(even) { background-color: #f2f2f2; }
        tr.warning { background-color: #fff3cd; }
        tr.critical { background-color: #f8d7da; }
        .timestamp { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <h1>AWS Limit Report</h1>
    <p class="timestamp">Generated: {{.Generated}} (scan {{.ID}}, {{.Duration}})</p>
    <p>Overall: {{.Level}}. Total records: {{.Total}}</p>
    {{- if .Failures}}
    <ul>
    {{- range .Failures}}
        <li>{{.Service}} not checked: {{.Error}}</li>
    {{- end}}
    </ul>
    {{- end}}
    <table>
        <thead>
            <tr>
                <th>Service</th>
                <th>Limit</th>
                <th>Resource</th>
                <th>Usage</th>
                <th>Limit Value</th>
                <th>Usage %</th>
                <th>Status</th>
            </tr>
        </thead>
        <tbody>
        {{- range .Rows}}
            <tr class="{{.Class}}">
                <td>{{.Service}}</td>
                <td>{{.Limit}}</td>
                <td>{{.Resource}}</td>
                <td>{{.Usage}}</td>
                <td>{{.Quota}}</td>
                <td>{{.Percent}}</td>
                <td>{{.Severity}}</td>
            </tr>
        {{- end}}
        </tbody>
    </table>
</body>
</html>
`))
