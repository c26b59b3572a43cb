package model

import (
	"fmt"

	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
)

const (
	DefaultWarningThreshold  = 80
	DefaultCriticalThreshold = 90
)

// Limit is a named quota tracked for one resource family of one service,
// together with the usage observed for it in the current scan.
//
// A Limit refers to its service by name only; the registry owns checkers.
type Limit struct {
	name    string
	service string

	defaultLimit  *float64
	quotaOverride *float64
	limitOverride *float64

	warningThreshold  int
	criticalThreshold int

	limitType         string
	limitSubtype      string
	quotaCode         string
	quotasServiceCode string

	usage []UsageRecord
}

// LimitOption configures optional Limit fields.
type LimitOption func(*Limit)

func WithLimitType(t string) LimitOption {
	return func(l *Limit) {
		l.limitType = t
	}
}

func WithLimitSubtype(t string) LimitOption {
	return func(l *Limit) {
		l.limitSubtype = t
	}
}

// WithQuotaCode links the limit to its Service Quotas entry so a current
// value can be fetched to override the default.
func WithQuotaCode(serviceCode, quotaCode string) LimitOption {
	return func(l *Limit) {
		l.quotasServiceCode = serviceCode
		l.quotaCode = quotaCode
	}
}

// WithUnknownDefault marks the default quota as unknown.
func WithUnknownDefault() LimitOption {
	return func(l *Limit) {
		l.defaultLimit = nil
	}
}

// NewLimit creates a limit with the given default quota and thresholds.
func NewLimit(name, service string, defaultLimit float64, warning, critical int, opts ...LimitOption) *Limit {
	l := &Limit{
		name:              name,
		service:           service,
		defaultLimit:      &defaultLimit,
		warningThreshold:  warning,
		criticalThreshold: critical,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limit) Name() string              { return l.name }
func (l *Limit) Service() string           { return l.service }
func (l *Limit) LimitType() string         { return l.limitType }
func (l *Limit) LimitSubtype() string      { return l.limitSubtype }
func (l *Limit) QuotaCode() string         { return l.quotaCode }
func (l *Limit) QuotasServiceCode() string { return l.quotasServiceCode }
func (l *Limit) WarningThreshold() int     { return l.warningThreshold }
func (l *Limit) CriticalThreshold() int    { return l.criticalThreshold }

// DefaultLimit returns the hardcoded default quota, if known.
func (l *Limit) DefaultLimit() (float64, bool) {
	return deref(l.defaultLimit)
}

// QuotaOverride returns the value fetched from the Service Quotas API, if any.
func (l *Limit) QuotaOverride() (float64, bool) {
	return deref(l.quotaOverride)
}

// SetQuotaOverride records a dynamically fetched current quota value.
func (l *Limit) SetQuotaOverride(v float64) {
	l.quotaOverride = &v
}

// LimitOverride returns the user-configured quota, if any.
func (l *Limit) LimitOverride() (float64, bool) {
	return deref(l.limitOverride)
}

// SetLimitOverride records a user-configured quota value. It takes
// precedence over both the fetched and the default value.
func (l *Limit) SetLimitOverride(v float64) {
	l.limitOverride = &v
}

// SetThresholdOverride replaces the warning and critical percentages.
func (l *Limit) SetThresholdOverride(warning, critical int) error {
	if err := ValidateThresholds(warning, critical); err != nil {
		return err
	}
	l.warningThreshold = warning
	l.criticalThreshold = critical
	return nil
}

// QuotasLimit resolves the effective quota: user override, then the
// Service Quotas value, then the default. ok is false when none is known.
func (l *Limit) QuotasLimit() (float64, bool) {
	if v, ok := deref(l.limitOverride); ok {
		return v, true
	}
	if v, ok := deref(l.quotaOverride); ok {
		return v, true
	}
	return deref(l.defaultLimit)
}

// ResetUsage discards all usage recorded so far.
func (l *Limit) ResetUsage() {
	l.usage = nil
}

// AddCurrentUsage appends an observation, preserving insertion order.
func (l *Limit) AddCurrentUsage(value float64, opts ...UsageOption) {
	l.usage = append(l.usage, NewUsageRecord(value, opts...))
}

// CurrentUsage returns the records observed in the current scan, in
// insertion order.
func (l *Limit) CurrentUsage() []UsageRecord {
	out := make([]UsageRecord, len(l.usage))
	copy(out, l.usage)
	return out
}

// UsagePercentage returns u's value as a percentage of the effective quota.
// ok is false when the quota is unknown or not positive.
func (l *Limit) UsagePercentage(u UsageRecord) (float64, bool) {
	quota, ok := l.QuotasLimit()
	if !ok || quota <= 0 {
		return 0, false
	}
	return u.Value() / quota * 100, true
}

// Severity classifies u against this limit's thresholds.
func (l *Limit) Severity(u UsageRecord) Severity {
	pct, ok := l.UsagePercentage(u)
	return Classify(pct, ok, l.warningThreshold, l.criticalThreshold)
}

// Warnings returns the records at WARNING level (below critical).
func (l *Limit) Warnings() []UsageRecord {
	return l.recordsAt(func(s Severity) bool { return s == SeverityWarning })
}

// Criticals returns the records at CRITICAL level.
func (l *Limit) Criticals() []UsageRecord {
	return l.recordsAt(func(s Severity) bool { return s == SeverityCritical })
}

// Filtered returns a view of the limit holding only the records at or above
// min. ok is false when no record qualifies.
func (l *Limit) Filtered(min Severity) (*Limit, bool) {
	records := l.recordsAt(func(s Severity) bool { return s >= min })
	if len(records) == 0 {
		return nil, false
	}
	view := *l
	view.usage = records
	return &view, true
}

func (l *Limit) recordsAt(match func(Severity) bool) []UsageRecord {
	var out []UsageRecord
	for _, u := range l.usage {
		if match(l.Severity(u)) {
			out = append(out, u)
		}
	}
	return out
}

// ValidateThresholds checks that both values are percentages and that
// warning does not exceed critical.
func ValidateThresholds(warning, critical int) error {
	if warning < 0 || warning > 100 {
		return &apperrors.ErrConfiguration{Field: "warning_threshold", Reason: fmt.Sprintf("%d is not in [0,100]", warning)}
	}
	if critical < 0 || critical > 100 {
		return &apperrors.ErrConfiguration{Field: "critical_threshold", Reason: fmt.Sprintf("%d is not in [0,100]", critical)}
	}
	if warning > critical {
		return &apperrors.ErrConfiguration{Field: "warning_threshold", Reason: fmt.Sprintf("%d exceeds critical threshold %d", warning, critical)}
	}
	return nil
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}
