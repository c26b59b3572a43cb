package model

import (
	"fmt"
	"strings"
)

// Severity classifies a usage record against its limit's thresholds.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Classify returns the severity of pct given warning and critical thresholds.
// An undefined percentage is always OK.
func Classify(pct float64, defined bool, warning, critical int) Severity {
	if !defined {
		return SeverityOK
	}
	switch {
	case pct >= float64(critical):
		return SeverityCritical
	case pct >= float64(warning):
		return SeverityWarning
	default:
		return SeverityOK
	}
}

func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "OK":
		*s = SeverityOK
	case "WARNING":
		*s = SeverityWarning
	case "CRITICAL":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}
