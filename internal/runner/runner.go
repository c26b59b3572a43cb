// Package runner drives one full scan: overrides, checkers, aggregation and
// alert dispatch.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yuxishi/aws-limit-checker/internal/alerts"
	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/config"
	"github.com/yuxishi/aws-limit-checker/internal/metrics"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

// State is the phase a scan is in.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateAggregating
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAggregating:
		return "aggregating"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// QuotaSource applies live quota values onto limits before a scan.
type QuotaSource interface {
	Apply(ctx context.Context, limits []*model.Limit) (int, error)
}

// Notifier delivers a scan's problems and returns the dispatched level.
type Notifier interface {
	Dispatch(ctx context.Context, problems model.Problems, duration time.Duration) model.Severity
}

// Report is the outcome of one scan.
type Report struct {
	ID              string           `json:"id"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	Duration        time.Duration    `json:"-"`
	DurationSeconds float64          `json:"duration_seconds"`
	Level           model.Severity   `json:"level"`
	Summary         string           `json:"summary"`
	Warnings        int              `json:"warnings"`
	Criticals       int              `json:"criticals"`
	QuotasApplied   int              `json:"quotas_applied"`
	Failures        []Failure        `json:"failures"`
	Results         []checker.Result `json:"results"`
	Rows            []model.Row      `json:"rows"`
	Problems        model.Problems   `json:"-"`
}

// Failure names a checker that did not populate usage.
type Failure struct {
	Service string `json:"service"`
	Error   string `json:"error"`
}

// ProblemRows returns the rows of the warning report.
func (r *Report) ProblemRows() []model.Row {
	return r.Problems.Rows()
}

// Options configures a Runner. Every field is optional.
type Options struct {
	// Keyed by "Service/Limit name".
	LimitOverrides     map[string]float64
	ThresholdOverrides map[string]config.ThresholdConfig

	Quotas   QuotaSource
	Notifier Notifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Runner serializes scans over a registry.
type Runner struct {
	registry *checker.Registry
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	state atomic.Int32

	latestMu sync.RWMutex
	latest   *Report
}

func New(registry *checker.Registry, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		registry: registry,
		opts:     opts,
		logger:   logger.Named("runner"),
		now:      time.Now,
	}
}

// Registry returns the registry the runner scans.
func (r *Runner) Registry() *checker.Registry {
	return r.registry
}

// State returns the current scan phase.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Latest returns the last completed report, or nil.
func (r *Runner) Latest() *Report {
	r.latestMu.RLock()
	defer r.latestMu.RUnlock()
	return r.latest
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}

// Run performs one scan. Concurrent calls wait for each other. The only
// error is ErrNoCheckers; individual checker failures are reported in the
// result list.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := &Report{ID: uuid.NewString(), StartedAt: r.now()}
	logger := r.logger.With(zap.String("scan_id", report.ID))

	r.setState(StateRunning)
	defer r.setState(StateIdle)

	report.QuotasApplied = r.prepare(ctx, logger)

	results, err := r.registry.RunScan(ctx)
	if err != nil {
		return nil, err
	}

	r.setState(StateAggregating)
	report.Results = results
	for _, res := range results {
		if res.OK() {
			continue
		}
		f := Failure{Service: res.Service}
		if res.Err != nil {
			f.Error = res.Err.Error()
		}
		report.Failures = append(report.Failures, f)
	}
	report.Problems = r.registry.Problems(model.SeverityWarning)
	report.Summary = report.Problems.String()
	report.Rows = r.populatedRows()
	for _, l := range report.Problems.Limits() {
		report.Warnings += len(l.Warnings())
		report.Criticals += len(l.Criticals())
	}

	report.FinishedAt = r.now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	report.DurationSeconds = report.Duration.Seconds()

	r.setState(StateDispatching)
	if r.opts.Notifier != nil {
		report.Level = r.opts.Notifier.Dispatch(ctx, report.Problems, report.Duration)
	} else {
		report.Level = alerts.Level(report.Problems)
	}

	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveScan(report.Rows, results, report.Level, report.Duration, report.FinishedAt)
	}

	logger.Info("Scan complete",
		zap.Stringer("level", report.Level),
		zap.Int("warnings", report.Warnings),
		zap.Int("criticals", report.Criticals),
		zap.Int("failed_services", len(report.Failures)),
		zap.Duration("duration", report.Duration))

	r.latestMu.Lock()
	r.latest = report
	r.latestMu.Unlock()
	return report, nil
}

// Prepare applies configured overrides and live quotas without scanning.
// It returns how many limits received a live quota.
func (r *Runner) Prepare(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prepare(ctx, r.logger)
}

func (r *Runner) prepare(ctx context.Context, logger *zap.Logger) int {
	r.applyOverrides(logger)

	limits := r.registry.Limits()
	if r.opts.Quotas == nil || len(limits) == 0 {
		return 0
	}
	n, err := r.opts.Quotas.Apply(ctx, limits)
	if err != nil {
		logger.Warn("Could not fetch current quotas, using defaults", zap.Error(err))
	}
	return n
}

// populatedRows returns the rows of every limit whose checker completed.
func (r *Runner) populatedRows() []model.Row {
	var limits []*model.Limit
	for _, l := range r.registry.Limits() {
		c, ok := r.registry.Get(l.Service())
		if ok && c.HaveUsage() {
			limits = append(limits, l)
		}
	}
	return model.RowsOf(limits)
}

func (r *Runner) applyOverrides(logger *zap.Logger) {
	for key, value := range r.opts.LimitOverrides {
		if l := r.lookup(key, logger); l != nil {
			l.SetLimitOverride(value)
		}
	}
	for key, t := range r.opts.ThresholdOverrides {
		l := r.lookup(key, logger)
		if l == nil {
			continue
		}
		if err := l.SetThresholdOverride(t.Warning, t.Critical); err != nil {
			logger.Warn("Ignoring threshold override", zap.String("limit", key), zap.Error(err))
		}
	}
}

func (r *Runner) lookup(key string, logger *zap.Logger) *model.Limit {
	service, name, err := config.SplitLimitKey(key)
	if err != nil {
		logger.Warn("Ignoring override", zap.String("limit", key), zap.Error(err))
		return nil
	}
	c, ok := r.registry.Get(service)
	if !ok {
		logger.Debug("Override for unregistered service", zap.String("limit", key))
		return nil
	}
	l, ok := c.Limits()[name]
	if !ok {
		logger.Warn("Override for unknown limit", zap.String("limit", key))
		return nil
	}
	return l
}
