package checker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

const defaultMaxConcurrency = 10

// Outcome is the terminal state of one checker in a scan.
type Outcome int

const (
	OutcomePopulated Outcome = iota
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomePopulated {
		return "populated"
	}
	return "failed"
}

// Result is the outcome of one checker's FindUsage.
type Result struct {
	Service  string        `json:"service"`
	Outcome  Outcome       `json:"-"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the checker populated its usage.
func (r Result) OK() bool {
	return r.Outcome == OutcomePopulated
}

// Registry holds every checker keyed by service name and aggregates their
// limits into problems reports.
type Registry struct {
	mu             sync.RWMutex
	checkers       map[string]Checker
	maxConcurrency int
	logger         *zap.Logger
}

// NewRegistry creates an empty registry running at most maxConcurrency
// checkers at once.
func NewRegistry(maxConcurrency int, logger *zap.Logger) *Registry {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		checkers:       make(map[string]Checker),
		maxConcurrency: maxConcurrency,
		logger:         logger.Named("registry"),
	}
}

// Register adds a checker. Service names must be unique.
func (r *Registry) Register(c Checker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.checkers[name]; exists {
		return fmt.Errorf("checker %q already registered", name)
	}
	r.checkers[name] = c
	return nil
}

// Get returns the checker registered for service.
func (r *Registry) Get(service string) (Checker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checkers[service]
	return c, ok
}

// Names returns the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Checkers returns the registered checkers ordered by service name.
func (r *Registry) Checkers() []Checker {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Checker, 0, len(names))
	for _, name := range names {
		out = append(out, r.checkers[name])
	}
	return out
}

// Len returns the number of registered checkers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.checkers)
}

// RunScan runs FindUsage on every checker and waits for all of them. A
// checker that fails or panics is recorded as failed; the others still run.
// The only error is ErrNoCheckers.
func (r *Registry) RunScan(ctx context.Context) ([]Result, error) {
	checkers := r.Checkers()
	if len(checkers) == 0 {
		return nil, &apperrors.ErrNoCheckers{}
	}

	results := make([]Result, len(checkers))
	var g errgroup.Group
	g.SetLimit(r.maxConcurrency)

	for i, c := range checkers {
		i, c := i, c
		g.Go(func() error {
			results[i] = r.scanOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if !res.OK() {
			r.logger.Error("Service scan incomplete",
				zap.String("service", res.Service),
				zap.Error(res.Err))
		}
	}
	return results, nil
}

func (r *Registry) scanOne(ctx context.Context, c Checker) (res Result) {
	start := time.Now()
	res = Result{Service: c.Name(), Outcome: OutcomeFailed}

	defer func() {
		res.Duration = time.Since(start)
		if p := recover(); p != nil {
			res.Outcome = OutcomeFailed
			res.Err = &apperrors.ErrFetch{Service: c.Name(), Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if err := c.FindUsage(ctx); err != nil {
		res.Err = err
		return res
	}
	if !c.HaveUsage() {
		res.Err = &apperrors.ErrFetch{Service: c.Name(), Err: fmt.Errorf("usage not populated")}
		return res
	}
	res.Outcome = OutcomePopulated
	return res
}

// Limits returns every limit of every checker, ordered by service and name.
func (r *Registry) Limits() []*model.Limit {
	var out []*model.Limit
	for _, c := range r.Checkers() {
		limits := c.Limits()
		names := make([]string, 0, len(limits))
		for name := range limits {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, limits[name])
		}
	}
	return out
}

// Problems collects, from checkers that populated usage, every limit with at
// least one record at or above min. Each entry holds only those records.
func (r *Registry) Problems(min model.Severity) model.Problems {
	problems := model.Problems{}
	for _, c := range r.Checkers() {
		if !c.HaveUsage() {
			continue
		}
		for _, l := range c.Limits() {
			if view, ok := l.Filtered(min); ok {
				problems.Add(view)
			}
		}
	}
	return problems
}

// ProblemsString renders Problems(min) as a single deterministic summary.
func (r *Registry) ProblemsString(min model.Severity) string {
	return r.Problems(min).String()
}

// RequiredPermissions returns the sorted, de-duplicated IAM actions of all
// checkers.
func (r *Registry) RequiredPermissions() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range r.Checkers() {
		for _, p := range c.RequiredPermissions() {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
