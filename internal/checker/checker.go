// Package checker defines the contract every service checker satisfies and
// the registry that drives checkers through a scan.
package checker

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

// Checker queries one resource family and populates its limits' usage.
type Checker interface {
	// Name is the service name used as the registry key, e.g. "ECR".
	Name() string
	// APIName is the AWS API identifier, e.g. "ecr".
	APIName() string
	// Connect establishes the API client. It is a no-op when already connected.
	Connect(ctx context.Context) error
	// Limits returns the limit catalog. Repeated calls return the same map.
	Limits() map[string]*model.Limit
	// FindUsage resets and repopulates usage on every limit.
	FindUsage(ctx context.Context) error
	// RequiredPermissions lists the IAM actions the checker calls.
	RequiredPermissions() []string
	// HaveUsage reports whether the last FindUsage completed.
	HaveUsage() bool
}

// Options are the settings every checker is constructed with.
type Options struct {
	WarningThreshold  int
	CriticalThreshold int
	Region            string
	Logger            *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.WarningThreshold == 0 {
		o.WarningThreshold = model.DefaultWarningThreshold
	}
	if o.CriticalThreshold == 0 {
		o.CriticalThreshold = model.DefaultCriticalThreshold
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Base carries the state and scan lifecycle shared by all checkers.
// Concrete checkers embed it and supply a catalog and a fetch step.
type Base struct {
	name    string
	apiName string
	opts    Options
	logger  *zap.Logger

	catalog   func(b *Base) []*model.Limit
	limits    map[string]*model.Limit
	haveUsage bool
}

// NewBase creates a Base. catalog is called once, on first use, to declare
// the service's limits.
func NewBase(name, apiName string, opts Options, catalog func(b *Base) []*model.Limit) *Base {
	opts = opts.withDefaults()
	return &Base{
		name:    name,
		apiName: apiName,
		opts:    opts,
		logger:  opts.Logger.Named(apiName),
		catalog: catalog,
	}
}

func (b *Base) Name() string        { return b.name }
func (b *Base) APIName() string     { return b.apiName }
func (b *Base) Region() string      { return b.opts.Region }
func (b *Base) Logger() *zap.Logger { return b.logger }
func (b *Base) HaveUsage() bool     { return b.haveUsage }

func (b *Base) WarningThreshold() int  { return b.opts.WarningThreshold }
func (b *Base) CriticalThreshold() int { return b.opts.CriticalThreshold }

// NewLimit declares a limit owned by this service with the checker's
// default thresholds.
func (b *Base) NewLimit(name string, defaultLimit float64, opts ...model.LimitOption) *model.Limit {
	return model.NewLimit(name, b.name, defaultLimit, b.opts.WarningThreshold, b.opts.CriticalThreshold, opts...)
}

// Limits builds the catalog on first call and returns the cached map after.
func (b *Base) Limits() map[string]*model.Limit {
	if b.limits != nil {
		return b.limits
	}
	limits := make(map[string]*model.Limit)
	for _, l := range b.catalog(b) {
		limits[l.Name()] = l
	}
	b.limits = limits
	return limits
}

// Limit returns the named limit, building the catalog if needed.
func (b *Base) Limit(name string) *model.Limit {
	return b.Limits()[name]
}

// ResetUsage clears usage on every limit.
func (b *Base) ResetUsage() {
	for _, l := range b.Limits() {
		l.ResetUsage()
	}
}

// Collect runs one scan: connect, reset all limits, then fetch. Failures are
// logged and returned as ErrConnection or ErrFetch; HaveUsage stays false.
func (b *Base) Collect(ctx context.Context, connect, fetch func(ctx context.Context) error) error {
	b.logger.Debug("Checking usage for service", zap.String("service", b.name))
	b.haveUsage = false

	if err := connect(ctx); err != nil {
		b.logger.Error("Could not connect", append(apiErrorFields(err), zap.String("service", b.name), zap.Error(err))...)
		return &apperrors.ErrConnection{Service: b.name, Err: err}
	}

	b.ResetUsage()

	if err := fetch(ctx); err != nil {
		b.logger.Error("Error getting usage", append(apiErrorFields(err), zap.String("service", b.name), zap.Error(err))...)
		return &apperrors.ErrFetch{Service: b.name, Err: err}
	}

	b.haveUsage = true
	b.logger.Debug("Done checking usage", zap.String("service", b.name))
	return nil
}

func apiErrorFields(err error) []zap.Field {
	if code := APIErrorCode(err); code != "" {
		return []zap.Field{zap.String("error_code", code)}
	}
	return nil
}

// APIErrorCode returns the AWS error code carried by err, or "".
func APIErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
