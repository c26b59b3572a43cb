package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/yuxishi/aws-limit-checker/internal/model"
	"github.com/yuxishi/aws-limit-checker/internal/runner"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func quotaCell(r model.Row) string {
	if !r.KnownQuota() {
		return r.QuotaString()
	}
	return humanize.Commaf(*r.Quota)
}

func resourceCell(id string) string {
	if id == "" {
		return "-"
	}
	return id
}

// writeReport prints the problem records of a scan followed by a summary.
func writeReport(w io.Writer, report *runner.Report) error {
	rows := report.ProblemRows()
	if len(rows) == 0 {
		fmt.Fprintln(w, "No limits above the warning threshold.")
	} else {
		tw := newTable(w)
		fmt.Fprintln(tw, "SERVICE\tLIMIT\tRESOURCE\tUSAGE\tLIMIT VALUE\tUSAGE %\tSTATUS")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Service, r.Limit, resourceCell(r.ResourceID),
				humanize.Commaf(r.Usage), quotaCell(r), r.PercentString(), r.Severity)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "\nScan %s: %s (%d warning, %d critical) in %.2f seconds\n",
		report.ID, report.Level, report.Warnings, report.Criticals, report.DurationSeconds)
	return err
}

func writeFailures(w io.Writer, failures []runner.Failure) {
	for _, f := range failures {
		fmt.Fprintf(w, "WARNING: %s was not checked: %s\n", f.Service, f.Error)
	}
}

// limitSource names where a limit's effective value comes from.
func limitSource(l *model.Limit) string {
	if _, ok := l.LimitOverride(); ok {
		return "override"
	}
	if _, ok := l.QuotaOverride(); ok {
		return "service-quotas"
	}
	if _, ok := l.DefaultLimit(); ok {
		return "default"
	}
	return "unknown"
}

type limitView struct {
	Service           string   `json:"service"`
	Limit             string   `json:"limit"`
	Value             *float64 `json:"value"`
	Source            string   `json:"source"`
	QuotaCode         string   `json:"quota_code,omitempty"`
	LimitType         string   `json:"limit_type,omitempty"`
	WarningThreshold  int      `json:"warning_threshold"`
	CriticalThreshold int      `json:"critical_threshold"`
}

func newLimitView(l *model.Limit, defaults bool) limitView {
	v := limitView{
		Service:           l.Service(),
		Limit:             l.Name(),
		QuotaCode:         l.QuotaCode(),
		LimitType:         l.LimitType(),
		WarningThreshold:  l.WarningThreshold(),
		CriticalThreshold: l.CriticalThreshold(),
	}
	value, ok := l.QuotasLimit()
	v.Source = limitSource(l)
	if defaults {
		value, ok = l.DefaultLimit()
		v.Source = "default"
		if !ok {
			v.Source = "unknown"
		}
	}
	if ok {
		v.Value = &value
	}
	return v
}

func writeLimits(w io.Writer, views []limitView) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "SERVICE\tLIMIT\tVALUE\tSOURCE\tWARN %\tCRIT %")
	for _, v := range views {
		value := "<unknown>"
		if v.Value != nil {
			value = humanize.Commaf(*v.Value)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			v.Service, v.Limit, value, v.Source, v.WarningThreshold, v.CriticalThreshold)
	}
	return tw.Flush()
}

func writeRegions(w io.Writer, regions []model.Region) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "CODE\tNAME")
	for _, r := range regions {
		fmt.Fprintf(tw, "%s\t%s\n", r.Code, r.Name)
	}
	return tw.Flush()
}
