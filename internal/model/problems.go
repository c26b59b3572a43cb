package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Problems maps service name -> limit name -> limit view holding only the
// usage records that crossed a threshold.
type Problems map[string]map[string]*Limit

// Add stores l under its service and name.
func (p Problems) Add(l *Limit) {
	svc, ok := p[l.Service()]
	if !ok {
		svc = make(map[string]*Limit)
		p[l.Service()] = svc
	}
	svc[l.Name()] = l
}

// Len returns the number of usage records across all limits.
func (p Problems) Len() int {
	n := 0
	for _, limits := range p {
		for _, l := range limits {
			n += len(l.usage)
		}
	}
	return n
}

// Limits returns the contained limits ordered by service then limit name.
func (p Problems) Limits() []*Limit {
	services := make([]string, 0, len(p))
	for svc := range p {
		services = append(services, svc)
	}
	sort.Strings(services)

	var out []*Limit
	for _, svc := range services {
		names := make([]string, 0, len(p[svc]))
		for name := range p[svc] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, p[svc][name])
		}
	}
	return out
}

// Rows flattens the report into render-ready rows ordered by service,
// limit name and resource id.
func (p Problems) Rows() []Row {
	return RowsOf(p.Limits())
}

// String renders every record as
// "<service>/<limit> <resource>: <value> of <quota> (<percent>)",
// joined with "; ", in Rows order.
func (p Problems) String() string {
	rows := p.Rows()
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		resource := r.ResourceID
		if resource == "" {
			resource = "-"
		}
		parts = append(parts, fmt.Sprintf("%s/%s %s: %s of %s (%s)",
			r.Service, r.Limit, resource, FormatNumber(r.Usage), r.QuotaString(), r.PercentString()))
	}
	return strings.Join(parts, "; ")
}

// Row is one usage record of one limit, resolved for display.
type Row struct {
	Service           string   `json:"service"`
	Limit             string   `json:"limit"`
	ResourceID        string   `json:"resource_id,omitempty"`
	ResourceType      string   `json:"resource_type,omitempty"`
	Usage             float64  `json:"usage"`
	Quota             *float64 `json:"quota"`
	UsagePercentage   *float64 `json:"usage_percentage"`
	Severity          Severity `json:"severity"`
	WarningThreshold  int      `json:"warning_threshold"`
	CriticalThreshold int      `json:"critical_threshold"`
}

// KnownQuota reports whether the row carries a positive quota. A zero
// quota is treated as unknown.
func (r Row) KnownQuota() bool {
	return r.Quota != nil && *r.Quota > 0
}

// QuotaString renders the quota or "<unknown>".
func (r Row) QuotaString() string {
	if !r.KnownQuota() {
		return "<unknown>"
	}
	return FormatNumber(*r.Quota)
}

// PercentString renders the usage percentage rounded to a whole number, or
// "-" when it is undefined.
func (r Row) PercentString() string {
	if r.UsagePercentage == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *r.UsagePercentage)
}

// Rows resolves every usage record of l.
func (l *Limit) Rows() []Row {
	rows := make([]Row, 0, len(l.usage))
	for _, u := range l.usage {
		r := Row{
			Service:           l.service,
			Limit:             l.name,
			ResourceID:        u.ResourceID(),
			ResourceType:      u.ResourceType(),
			Usage:             u.Value(),
			Severity:          l.Severity(u),
			WarningThreshold:  l.warningThreshold,
			CriticalThreshold: l.criticalThreshold,
		}
		if q, ok := l.QuotasLimit(); ok {
			r.Quota = &q
		}
		if pct, ok := l.UsagePercentage(u); ok {
			r.UsagePercentage = &pct
		}
		rows = append(rows, r)
	}
	return rows
}

// RowsOf flattens limits into rows ordered by service, limit name and
// resource id. Records sharing all three keep insertion order.
func RowsOf(limits []*Limit) []Row {
	var rows []Row
	for _, l := range limits {
		rows = append(rows, l.Rows()...)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Service != rows[j].Service {
			return rows[i].Service < rows[j].Service
		}
		if rows[i].Limit != rows[j].Limit {
			return rows[i].Limit < rows[j].Limit
		}
		return rows[i].ResourceID < rows[j].ResourceID
	})
	return rows
}

// FormatNumber renders v without trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
