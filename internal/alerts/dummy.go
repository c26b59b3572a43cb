package alerts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yuxishi/aws-limit-checker/internal/model"
)

// Call records one hook invocation on a Dummy provider.
type Call struct {
	Hook       string
	ProblemStr string
	Records    int
	Duration   time.Duration
}

// Dummy only logs. It remembers its calls so callers can inspect them.
type Dummy struct {
	logger *zap.Logger

	mu    sync.Mutex
	calls []Call
}

func NewDummy(logger *zap.Logger) *Dummy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dummy{logger: logger.Named("dummy")}
}

func (d *Dummy) Name() string { return "dummy" }

func (d *Dummy) OnCritical(_ context.Context, problems model.Problems, problemStr string, duration time.Duration) {
	if !validProblems(d.logger, d.Name(), problems) {
		return
	}
	d.logger.Info("on_critical", zap.String("problems", problemStr), zap.Duration("duration", duration))
	d.record(Call{Hook: "critical", ProblemStr: problemStr, Records: problems.Len(), Duration: duration})
}

func (d *Dummy) OnWarning(_ context.Context, problems model.Problems, problemStr string, duration time.Duration) {
	if !validProblems(d.logger, d.Name(), problems) {
		return
	}
	d.logger.Info("on_warning", zap.String("problems", problemStr), zap.Duration("duration", duration))
	d.record(Call{Hook: "warning", ProblemStr: problemStr, Records: problems.Len(), Duration: duration})
}

func (d *Dummy) OnSuccess(_ context.Context, duration time.Duration) {
	d.logger.Info("on_success", zap.Duration("duration", duration))
	d.record(Call{Hook: "success", Duration: duration})
}

func (d *Dummy) record(c Call) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
}

// Calls returns the hook invocations so far.
func (d *Dummy) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}
