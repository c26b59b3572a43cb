package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

// SNS subjects are limited to 100 printable ASCII characters.
const maxSubjectLen = 100

type SNSConfig struct {
	TopicARN        string `yaml:"topic_arn"`
	AccountName     string `yaml:"account_name"`
	ReportOnSuccess bool   `yaml:"report_on_success"`
}

// SNSAPI is the SNS call the provider uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS publishes a plain-text summary to a topic.
type SNS struct {
	cfg    SNSConfig
	client SNSAPI
	logger *zap.Logger
}

func NewSNS(cfg SNSConfig, client SNSAPI, logger *zap.Logger) (*SNS, error) {
	if cfg.TopicARN == "" {
		return nil, &apperrors.ErrConfiguration{Field: "sns.topic_arn", Reason: "is required"}
	}
	if !strings.HasPrefix(cfg.TopicARN, "arn:") {
		return nil, &apperrors.ErrConfiguration{Field: "sns.topic_arn", Reason: fmt.Sprintf("%q is not an ARN", cfg.TopicARN)}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SNS{cfg: cfg, client: client, logger: logger.Named("sns")}, nil
}

func (s *SNS) Name() string { return "sns" }

func (s *SNS) OnCritical(ctx context.Context, problems model.Problems, problemStr string, duration time.Duration) {
	if !validProblems(s.logger, s.Name(), problems) {
		return
	}
	s.publish(ctx, "CRITICAL", s.problemsMessage("CRITICAL", problems, duration))
}

func (s *SNS) OnWarning(ctx context.Context, problems model.Problems, problemStr string, duration time.Duration) {
	if !validProblems(s.logger, s.Name(), problems) {
		return
	}
	s.publish(ctx, "WARNING", s.problemsMessage("WARNING", problems, duration))
}

func (s *SNS) OnSuccess(ctx context.Context, duration time.Duration) {
	msg := fmt.Sprintf("AWS service quota scan for account '%s' completed successfully in %s.",
		accountLabel(s.cfg.AccountName), formatDuration(duration))
	s.logger.Info(msg)
	if !s.cfg.ReportOnSuccess {
		return
	}
	s.publish(ctx, "OK", msg)
}

func (s *SNS) problemsMessage(level string, problems model.Problems, duration time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: AWS service quota thresholds crossed for account '%s'.\n\n",
		level, accountLabel(s.cfg.AccountName))
	for _, row := range problems.Rows() {
		resource := row.ResourceID
		if resource == "" {
			resource = "-"
		}
		fmt.Fprintf(&b, "- %s/%s %s: %s of %s (%s) %s\n",
			row.Service, row.Limit, resource, model.FormatNumber(row.Usage),
			row.QuotaString(), row.PercentString(), row.Severity)
	}
	fmt.Fprintf(&b, "\nScan took %s.", formatDuration(duration))
	return b.String()
}

func (s *SNS) publish(ctx context.Context, level, message string) {
	subject := snsSubject(fmt.Sprintf("AWS limit check %s: %s", level, accountLabel(s.cfg.AccountName)))

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.cfg.TopicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		logTransportError(s.logger, s.Name(), err)
		return
	}
	s.logger.Info("Published notification", zap.String("message_id", aws.ToString(out.MessageId)))
}

// snsSubject drops characters SNS rejects in a subject and truncates the
// rest to maxSubjectLen.
func snsSubject(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r < 0x20 || r > 0x7e {
			continue
		}
		b.WriteRune(r)
		if b.Len() == maxSubjectLen {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
