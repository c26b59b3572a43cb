package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

const (
	criticalMarker = ":rotating_light:"
	warningMarker  = ":warning:"

	defaultSlackTimeout = 10 * time.Second
	defaultSlackRetries = 2
)

// SlackConfig configures the Slack webhook provider.
type SlackConfig struct {
	TargetURL   string `yaml:"target_url"`
	AccountName string `yaml:"account_name"`
	// Thresholds choose the row marker only.
	WarningThreshold  int           `yaml:"warning_threshold"`
	CriticalThreshold int           `yaml:"critical_threshold"`
	ReportOnSuccess   bool          `yaml:"report_on_success"`
	Timeout           time.Duration `yaml:"timeout"`
	// Retries is the number of retries after a failed post; 0 uses the
	// default, a negative value disables retrying.
	Retries int `yaml:"retries"`
}

// Slack posts Block Kit messages to an incoming webhook.
type Slack struct {
	cfg     SlackConfig
	client  *http.Client
	logger  *zap.Logger
	backoff func() backoff.BackOff
}

// NewSlack validates cfg and returns a provider. A missing or malformed
// target URL is an ErrConfiguration.
func NewSlack(cfg SlackConfig, logger *zap.Logger) (*Slack, error) {
	if cfg.TargetURL == "" {
		return nil, &apperrors.ErrConfiguration{Field: "slack.target_url", Reason: "is required"}
	}
	u, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, &apperrors.ErrConfiguration{Field: "slack.target_url", Reason: err.Error()}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &apperrors.ErrConfiguration{Field: "slack.target_url", Reason: "must be an absolute http(s) URL"}
	}

	if cfg.WarningThreshold == 0 {
		cfg.WarningThreshold = model.DefaultWarningThreshold
	}
	if cfg.CriticalThreshold == 0 {
		cfg.CriticalThreshold = model.DefaultCriticalThreshold
	}
	if err := model.ValidateThresholds(cfg.WarningThreshold, cfg.CriticalThreshold); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSlackTimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = defaultSlackRetries
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Slack{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("slack"),
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) OnCritical(ctx context.Context, problems model.Problems, problemStr string, duration time.Duration) {
	if !validProblems(s.logger, s.Name(), problems) {
		return
	}
	s.logger.Error("CRITICAL: AWS service quota breached",
		zap.String("account", s.cfg.AccountName),
		zap.String("problems", problemStr),
		zap.Duration("duration", duration))
	s.send(ctx, s.problemsPayload(problems, duration))
}

func (s *Slack) OnWarning(ctx context.Context, problems model.Problems, problemStr string, duration time.Duration) {
	if !validProblems(s.logger, s.Name(), problems) {
		return
	}
	s.logger.Warn("WARNING: AWS service quota threshold crossed",
		zap.String("account", s.cfg.AccountName),
		zap.String("problems", problemStr),
		zap.Duration("duration", duration))
	s.send(ctx, s.problemsPayload(problems, duration))
}

func (s *Slack) OnSuccess(ctx context.Context, duration time.Duration) {
	msg := fmt.Sprintf("AWS service quota scan for account '%s' completed successfully in %s.",
		accountLabel(s.cfg.AccountName), formatDuration(duration))
	s.logger.Info(msg)
	if !s.cfg.ReportOnSuccess {
		return
	}
	s.send(ctx, s.payload([]slackBlock{section(msg)}))
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(text string) slackText {
	return slackText{Type: "mrkdwn", Text: text}
}

func section(text string) slackBlock {
	t := mrkdwn(text)
	return slackBlock{Type: "section", Text: &t}
}

func divider() slackBlock {
	return slackBlock{Type: "divider"}
}

func (s *Slack) payload(body []slackBlock) slackPayload {
	blocks := []slackBlock{
		section("*AWS Limit Check Results*"),
		section("*Account:* " + accountLabel(s.cfg.AccountName)),
		divider(),
	}
	return slackPayload{
		Text:   "AWS Limit Check Results",
		Blocks: append(blocks, body...),
	}
}

func (s *Slack) problemsPayload(problems model.Problems, duration time.Duration) slackPayload {
	var body []slackBlock
	for _, row := range problems.Rows() {
		resource := row.ResourceID
		if resource == "" {
			resource = "-"
		}
		quota := "<unknown>"
		if row.KnownQuota() {
			quota = humanize.Commaf(*row.Quota)
		}
		body = append(body,
			slackBlock{
				Type: "section",
				Fields: []slackText{
					mrkdwn("*Service Limit:*"), mrkdwn(row.Service + "/" + row.Limit),
					mrkdwn("*Resource:*"), mrkdwn(resource),
					mrkdwn("*Usage #:*"), mrkdwn(humanize.Commaf(row.Usage)),
					mrkdwn("*Usage %:*"), mrkdwn(s.percentCell(row)),
					mrkdwn("*Limit:*"), mrkdwn(quota),
				},
			},
			divider())
	}
	body = append(body, section("_Scan took "+formatDuration(duration)+"_"))
	return s.payload(body)
}

// percentCell renders the usage percentage with a severity marker chosen by
// this provider's own thresholds.
func (s *Slack) percentCell(row model.Row) string {
	if row.UsagePercentage == nil {
		return "-"
	}
	pct := *row.UsagePercentage
	cell := fmt.Sprintf("%.0f%%", pct)
	switch {
	case pct >= float64(s.cfg.CriticalThreshold):
		cell += " " + criticalMarker
	case pct >= float64(s.cfg.WarningThreshold):
		cell += " " + warningMarker
	}
	return cell
}

func (s *Slack) send(ctx context.Context, payload slackPayload) {
	if err := s.post(ctx, payload); err != nil {
		logTransportError(s.logger, s.Name(), err)
		return
	}
	s.logger.Info("Message posted successfully to Slack")
}

func (s *Slack) post(ctx context.Context, payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TargetURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create slack request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("send slack message: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("slack returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("slack returned status %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.backoff(), uint64(s.cfg.Retries)), ctx)
	return backoff.Retry(op, policy)
}
