package alerts

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

type TelegramConfig struct {
	BotToken        string `yaml:"bot_token"`
	ChatID          int64  `yaml:"chat_id"`
	AccountName     string `yaml:"account_name"`
	ReportOnSuccess bool   `yaml:"report_on_success"`
	// APIEndpoint overrides tgbotapi.APIEndpoint, mostly for tests.
	APIEndpoint string `yaml:"api_endpoint"`
}

// Telegram sends Markdown messages through a bot. The bot is created on
// first send so construction needs no network.
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
	logger *zap.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegram(cfg TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, &apperrors.ErrConfiguration{Field: "telegram.bot_token", Reason: "is required"}
	}
	if cfg.ChatID == 0 {
		return nil, &apperrors.ErrConfiguration{Field: "telegram.chat_id", Reason: "is required"}
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultSlackTimeout},
		logger: logger.Named("telegram"),
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) OnCritical(ctx context.Context, problems model.Problems, problemStr string, duration time.Duration) {
	if !validProblems(t.logger, t.Name(), problems) {
		return
	}
	t.send(t.problemsMessage("🚨 *CRITICAL*", problems, duration))
}

func (t *Telegram) OnWarning(ctx context.Context, problems model.Problems, problemStr string, duration time.Duration) {
	if !validProblems(t.logger, t.Name(), problems) {
		return
	}
	t.send(t.problemsMessage("⚠️ *WARNING*", problems, duration))
}

func (t *Telegram) OnSuccess(ctx context.Context, duration time.Duration) {
	t.logger.Info(fmt.Sprintf("AWS service quota scan for account '%s' completed successfully in %s.",
		accountLabel(t.cfg.AccountName), formatDuration(duration)))
	if !t.cfg.ReportOnSuccess {
		return
	}
	t.send(fmt.Sprintf("✅ AWS service quota scan for account *%s* completed successfully in %s.",
		escapeMarkdown(accountLabel(t.cfg.AccountName)), formatDuration(duration)))
}

func (t *Telegram) problemsMessage(title string, problems model.Problems, duration time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s AWS service quotas for account *%s*\n\n", title, escapeMarkdown(accountLabel(t.cfg.AccountName)))
	for _, row := range problems.Rows() {
		resource := row.ResourceID
		if resource == "" {
			resource = "-"
		}
		fmt.Fprintf(&b, "• `%s/%s` %s: %s of %s (%s)\n",
			row.Service, row.Limit, escapeMarkdown(resource),
			model.FormatNumber(row.Usage), row.QuotaString(), row.PercentString())
	}
	fmt.Fprintf(&b, "\n_Scan took %s_", formatDuration(duration))
	return b.String()
}

func (t *Telegram) send(text string) {
	bot, err := t.botAPI()
	if err != nil {
		logTransportError(t.logger, t.Name(), err)
		return
	}

	msg := tgbotapi.NewMessage(t.cfg.ChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := bot.Send(msg); err != nil {
		logTransportError(t.logger, t.Name(), err)
		return
	}
	t.logger.Info("Message sent to Telegram", zap.Int64("chat_id", t.cfg.ChatID))
}

func (t *Telegram) botAPI() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.BotToken, t.cfg.APIEndpoint, t.client)
	if err != nil {
		return nil, err
	}
	t.bot = bot
	return bot, nil
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
