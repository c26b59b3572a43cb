package cli

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yuxishi/aws-limit-checker/internal/aws"
	"github.com/yuxishi/aws-limit-checker/internal/config"
	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
	"github.com/yuxishi/aws-limit-checker/internal/model"
	"github.com/yuxishi/aws-limit-checker/internal/runner"
)

type unreachableFactory struct{}

func (unreachableFactory) Config(context.Context) (sdkaws.Config, error) {
	return sdkaws.Config{}, stderrors.New("no credentials")
}

func useUnreachableAWS(t *testing.T) {
	t.Helper()
	orig := newFactory
	newFactory = func(*config.Config, *zap.Logger) aws.ClientFactory { return unreachableFactory{} }
	t.Cleanup(func() { newFactory = orig })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand("1.2.3", &out, &errOut)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand("1.2.3", &bytes.Buffer{}, &bytes.Buffer{})
	assert.Equal(t, "limitchecker", cmd.Use)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"check", "limits", "services", "iam-policy", "regions", "serve", "version"} {
		assert.Contains(t, names, want)
	}

	check, _, err := cmd.Find([]string{"check"})
	require.NoError(t, err)
	for _, flag := range []string{"service", "skip-service", "warning-threshold", "critical-threshold", "skip-quotas", "no-alerts", "json"} {
		assert.NotNil(t, check.Flags().Lookup(flag), flag)
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "limitchecker 1.2.3\n", out)
}

func TestExitFor(t *testing.T) {
	assert.NoError(t, exitFor(model.SeverityOK))

	var exitErr *ExitError
	require.True(t, stderrors.As(exitFor(model.SeverityWarning), &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	require.True(t, stderrors.As(exitFor(model.SeverityCritical), &exitErr))
	assert.Equal(t, 2, exitErr.Code)
	assert.Equal(t, "limits at CRITICAL level", exitErr.Error())
}

func TestServices(t *testing.T) {
	useUnreachableAWS(t)
	out, _, err := execute(t, "services", "-c", filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(aws.ServiceNames())+1)
	assert.Contains(t, out, "ECR")
	assert.Contains(t, out, "CloudTrail")
}

func TestIAMPolicy(t *testing.T) {
	useUnreachableAWS(t)
	path := writeConfig(t, "services: [ECR]\nalerts:\n  sns:\n    topic_arn: arn:aws:sns:us-east-1:1:t\n")
	out, _, err := execute(t, "iam-policy", "-c", path)
	require.NoError(t, err)

	var policy iamPolicy
	require.NoError(t, json.Unmarshal([]byte(out), &policy))
	assert.Equal(t, "2012-10-17", policy.Version)
	require.Len(t, policy.Statement, 1)
	assert.Equal(t, []string{
		"ecr:DescribeImages",
		"ecr:DescribeRepositories",
		"servicequotas:ListServiceQuotas",
		"sns:Publish",
		"sts:GetCallerIdentity",
	}, policy.Statement[0].Action)
}

func TestLimits(t *testing.T) {
	useUnreachableAWS(t)
	path := writeConfig(t, `limit_overrides: {"ECR/Images per repository": 20000}`)

	t.Run("defaults", func(t *testing.T) {
		out, _, err := execute(t, "limits", "-c", path, "--defaults", "--service", "ecr", "--json")
		require.NoError(t, err)

		var views []limitView
		require.NoError(t, json.Unmarshal([]byte(out), &views))
		require.Len(t, views, 1)
		assert.Equal(t, "default", views[0].Source)
		assert.Equal(t, 10000.0, *views[0].Value)
		assert.Equal(t, "L-03A36CE1", views[0].QuotaCode)
		assert.Equal(t, "AWS::ECR::Repository", views[0].LimitType)
	})

	t.Run("effective", func(t *testing.T) {
		out, _, err := execute(t, "limits", "-c", path, "--service", "ECR")
		require.NoError(t, err)
		assert.Contains(t, out, "Images per repository")
		assert.Contains(t, out, "20,000")
		assert.Contains(t, out, "override")
	})
}

func TestCheck_FailedServicesAreReported(t *testing.T) {
	useUnreachableAWS(t)
	path := writeConfig(t, "alerts:\n  dummy: true\n")

	out, errOut, err := execute(t, "check", "-c", path, "--service", "ECR", "--service", "cloudtrail")
	require.NoError(t, err)
	assert.Contains(t, out, "No limits above the warning threshold.")
	assert.Contains(t, out, ": OK (0 warning, 0 critical)")
	assert.Contains(t, errOut, "WARNING: CloudTrail was not checked")
	assert.Contains(t, errOut, "WARNING: ECR was not checked")
}

func TestCheck_JSON(t *testing.T) {
	useUnreachableAWS(t)
	out, _, err := execute(t, "check", "-c", filepath.Join(t.TempDir(), "absent.yaml"),
		"--service", "EKS", "--skip-quotas", "--no-alerts", "--json")
	require.NoError(t, err)

	var report runner.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, model.SeverityOK, report.Level)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "EKS", report.Failures[0].Service)
}

func TestCheck_ConfigurationErrors(t *testing.T) {
	useUnreachableAWS(t)
	absent := filepath.Join(t.TempDir(), "absent.yaml")

	_, _, err := execute(t, "check", "-c", absent, "--warning-threshold", "95", "--critical-threshold", "90")
	var cfgErr *apperrors.ErrConfiguration
	assert.True(t, stderrors.As(err, &cfgErr), "got %v", err)

	_, _, err = execute(t, "check", "-c", absent, "--service", "Lambda")
	require.True(t, stderrors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "services", cfgErr.Field)

	_, _, err = execute(t, "check", "-c", writeConfig(t, "alerts:\n  slack:\n    target_url: ''\n"))
	require.True(t, stderrors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "slack.target_url", cfgErr.Field)
}

func TestProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Alerts = config.AlertsConfig{
		AccountName: "prod",
		Dummy:       true,
	}
	a := &app{cfg: cfg, logger: zap.NewNop(), factory: unreachableFactory{}}

	providers, err := a.providers(context.Background())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "dummy", providers[0].Name())

	cfg.Alerts.Dummy = false
	providers, err = a.providers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestWriteReport(t *testing.T) {
	images := model.NewLimit("Images per repository", "ECR", 10000, 80, 90)
	images.AddCurrentUsage(9200, model.WithResourceID("repo1"))
	problems := model.Problems{}
	problems.Add(images)

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, &runner.Report{
		ID:              "scan-1",
		Level:           model.SeverityCritical,
		Criticals:       1,
		DurationSeconds: 2,
		Problems:        problems,
	}))

	out := buf.String()
	assert.Contains(t, out, "SERVICE")
	assert.Contains(t, out, "repo1")
	assert.Contains(t, out, "9,200")
	assert.Contains(t, out, "10,000")
	assert.Contains(t, out, "92%")
	assert.Contains(t, out, "Scan scan-1: CRITICAL (0 warning, 1 critical) in 2.00 seconds")
}

type countingScanner struct {
	mu    sync.Mutex
	runs  int
	fail  bool
	store []*runner.Report
}

func (c *countingScanner) Run(context.Context) (*runner.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
	if c.fail {
		return nil, &apperrors.ErrNoCheckers{}
	}
	return &runner.Report{ID: "r"}, nil
}

func (c *countingScanner) Store(r *runner.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = append(c.store, r)
}

func (c *countingScanner) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs, len(c.store)
}

func TestScanLoop(t *testing.T) {
	t.Run("single scan without interval", func(t *testing.T) {
		s := &countingScanner{}
		scanLoop(context.Background(), s, s, 0, zap.NewNop())
		runs, stored := s.counts()
		assert.Equal(t, 1, runs)
		assert.Equal(t, 1, stored)
	})

	t.Run("rescans until cancelled", func(t *testing.T) {
		s := &countingScanner{}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			scanLoop(ctx, s, s, time.Millisecond, zap.NewNop())
			close(done)
		}()

		assert.Eventually(t, func() bool { runs, _ := s.counts(); return runs >= 3 }, time.Second, time.Millisecond)
		cancel()
		<-done
	})

	t.Run("failed scans are not stored", func(t *testing.T) {
		s := &countingScanner{fail: true}
		scanLoop(context.Background(), s, s, 0, zap.NewNop())
		runs, stored := s.counts()
		assert.Equal(t, 1, runs)
		assert.Equal(t, 0, stored)
	})
}

func TestQuotaCell(t *testing.T) {
	zero, big := 0.0, 10000.0
	assert.Equal(t, "<unknown>", quotaCell(model.Row{}))
	assert.Equal(t, "<unknown>", quotaCell(model.Row{Quota: &zero}))
	assert.Equal(t, "10,000", quotaCell(model.Row{Quota: &big}))
}
