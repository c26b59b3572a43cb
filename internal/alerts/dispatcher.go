package alerts

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yuxishi/aws-limit-checker/internal/model"
)

// Dispatcher fans a scan result out to every provider concurrently.
type Dispatcher struct {
	providers []Provider
	logger    *zap.Logger
}

func NewDispatcher(logger *zap.Logger, providers ...Provider) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{providers: providers, logger: logger.Named("alerts")}
}

// Providers returns the configured providers.
func (d *Dispatcher) Providers() []Provider {
	return d.providers
}

// Dispatch calls OnCritical when problems holds a critical record, OnWarning
// when it holds only warning records, and OnSuccess otherwise. It waits for
// every provider and returns the severity that was dispatched. A panicking
// provider is logged and does not affect the others.
func (d *Dispatcher) Dispatch(ctx context.Context, problems model.Problems, duration time.Duration) model.Severity {
	level := Level(problems)
	problemStr := problems.String()

	var g errgroup.Group
	for _, p := range d.providers {
		p := p
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("Alert provider panicked",
						zap.String("provider", p.Name()),
						zap.Error(fmt.Errorf("panic: %v", r)))
				}
			}()

			switch level {
			case model.SeverityCritical:
				p.OnCritical(ctx, problems, problemStr, duration)
			case model.SeverityWarning:
				p.OnWarning(ctx, problems, problemStr, duration)
			default:
				p.OnSuccess(ctx, duration)
			}
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Debug("Dispatched scan result",
		zap.Stringer("level", level),
		zap.Int("providers", len(d.providers)))
	return level
}

// Level returns the highest severity among the records in problems.
func Level(problems model.Problems) model.Severity {
	level := model.SeverityOK
	for _, row := range problems.Rows() {
		if row.Severity > level {
			level = row.Severity
		}
	}
	return level
}
