// Package alerts delivers scan results to notification channels.
package alerts

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

// Provider receives the outcome of a scan. Hooks never return errors:
// delivery failures are logged by the provider.
type Provider interface {
	Name() string
	// OnCritical is called when at least one usage crossed its critical
	// threshold. problems holds every record at or above warning level.
	OnCritical(ctx context.Context, problems model.Problems, problemStr string, duration time.Duration)
	// OnWarning is called when usage crossed warning but not critical
	// thresholds.
	OnWarning(ctx context.Context, problems model.Problems, problemStr string, duration time.Duration)
	// OnSuccess is called when no usage crossed a threshold.
	OnSuccess(ctx context.Context, duration time.Duration)
}

// validProblems logs and rejects a nil report.
func validProblems(logger *zap.Logger, provider string, problems model.Problems) bool {
	if problems != nil {
		return true
	}
	logger.Error("Refusing to send notification",
		zap.Error(&apperrors.ErrMalformedInput{Provider: provider, Value: problems}))
	return false
}

func logTransportError(logger *zap.Logger, provider string, err error) {
	logger.Error("Notification not delivered",
		zap.Error(&apperrors.ErrTransport{Provider: provider, Err: err}))
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2f seconds", d.Seconds())
}

func accountLabel(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}
