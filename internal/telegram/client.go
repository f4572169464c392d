// Package telegram runs the chat bot and delivers operator notifications.
// Users ask for predictions with /predict and /tips; operators receive model
// health alerts, cycle failures and recoveries in the configured chat.
//
// All outbound messages use MarkdownV2 and are retried with linear backoff.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/scorepulse/internal/logger"
	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/predictor"
)

// Sender is the part of the bot API used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Predictor answers chat prediction commands.
type Predictor interface {
	Predict(ctx context.Context, req predictor.Request) *models.Prediction
	PremiumBatch(ctx context.Context, count int) ([]*models.Prediction, error)
}

// StatusSource provides the latest health report.
type StatusSource interface {
	LastReport() (*models.HealthReport, error)
}

// Client handles Telegram commands and notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	sender         Sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration

	predictor Predictor
	status    StatusSource
	batchSize int
	now       func() time.Time
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c, err := newClient(bot, chatID, maxRetries, retryDelayBase)
	if err != nil {
		return nil, err
	}
	c.bot = bot
	return c, nil
}

func newClient(sender Sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		sender:         sender,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		batchSize:      5,
		now:            time.Now,
	}, nil
}

// Attach connects the command handlers to the prediction and health services.
func (c *Client) Attach(p Predictor, status StatusSource, batchSize int) {
	c.predictor = p
	c.status = status
	if batchSize > 0 {
		c.batchSize = batchSize
	}
}

// Send delivers a MarkdownV2 message to the operator chat.
func (c *Client) Send(text string) error {
	return c.sendTo(c.chatID, text)
}

func (c *Client) sendTo(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	// Send with retry
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		_, err := c.sender.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// SendAlerts reports degraded models.
func (c *Client) SendAlerts(alerts []models.ModelAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	return c.Send(formatAlerts(alerts, c.now()))
}

// SendError reports a failed maintenance cycle.
func (c *Client) SendError(err error) error {
	text := fmt.Sprintf("❌ *Maintenance cycle failed*\n\n%s\n\n📅 %s",
		escapeMarkdownV2(err.Error()),
		escapeMarkdownV2(c.now().Format("2006-01-02 15:04:05")))
	return c.Send(text)
}

// SendRecovery reports that cycles succeed again after failures.
func (c *Client) SendRecovery(failures int) error {
	noun := "cycles"
	if failures == 1 {
		noun = "cycle"
	}
	text := fmt.Sprintf("✅ *Maintenance recovered* after %d failed %s", failures, noun)
	return c.Send(text)
}

// ListenForCommands polls for updates in the background until ctx is done.
func (c *Client) ListenForCommands(ctx context.Context) {
	if c.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		logger.Info("Telegram command listener started")
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				logger.Info("Telegram command listener stopped")
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || !update.Message.IsCommand() {
					continue
				}
				reply := c.HandleCommand(ctx, update.Message.Command(), update.Message.CommandArguments())
				if err := c.sendTo(update.Message.Chat.ID, reply); err != nil {
					logger.Warn("Failed to reply to /%s: %v", update.Message.Command(), err)
				}
			}
		}
	}()
}

// HandleCommand returns the MarkdownV2 reply for a bot command.
func (c *Client) HandleCommand(ctx context.Context, command, args string) string {
	switch command {
	case "start", "help":
		return startMessage
	case "predict":
		if c.predictor == nil {
			return escapeMarkdownV2("Predictions are not available right now.")
		}
		home, away, ok := parseMatchup(args)
		if !ok {
			return escapeMarkdownV2("Usage: /predict Home vs Away")
		}
		p := c.predictor.Predict(ctx, predictor.Request{Home: home, Away: away, Tier: models.TierFree})
		return formatPrediction(p)
	case "tips":
		if c.predictor == nil {
			return escapeMarkdownV2("Predictions are not available right now.")
		}
		batch, err := c.predictor.PremiumBatch(ctx, c.batchSize)
		if err != nil {
			logger.Warn("Premium batch failed: %v", err)
			return escapeMarkdownV2("Could not load upcoming fixtures.")
		}
		return formatTips(batch)
	case "status":
		if c.status == nil {
			return escapeMarkdownV2("No health check has run yet.")
		}
		report, err := c.status.LastReport()
		if err != nil {
			return escapeMarkdownV2("No health check has run yet.")
		}
		return formatStatus(report, c.now())
	default:
		return escapeMarkdownV2("Unknown command. Try /start.")
	}
}

var startMessage = "⚽ *ScorePulse*\n\n" +
	escapeMarkdownV2("/predict Home vs Away - match prediction") + "\n" +
	escapeMarkdownV2("/tips - premium picks for upcoming fixtures") + "\n" +
	escapeMarkdownV2("/status - model health")

// parseMatchup accepts "Home vs Away", "Home | Away" or two single-word names.
func parseMatchup(args string) (string, string, bool) {
	args = strings.TrimSpace(args)
	lower := strings.ToLower(args)
	for _, sep := range []string{" vs. ", " vs ", "|"} {
		if i := strings.Index(lower, sep); i >= 0 {
			home := strings.TrimSpace(args[:i])
			away := strings.TrimSpace(args[i+len(sep):])
			return home, away, home != "" && away != ""
		}
	}
	parts := strings.Fields(args)
	if len(parts) == 2 {
		return parts[0], parts[1], true
	}
	return "", "", false
}

func formatPrediction(p *models.Prediction) string {
	if p.Failed() {
		return "⚠️ " + escapeMarkdownV2(p.Error)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⚽ *%s vs %s*\n", escapeMarkdownV2(p.Home), escapeMarkdownV2(p.Away))
	fmt.Fprintf(&b, "🏆 Score: *%d\\-%d* \\(%s\\)\n", p.Score.Home, p.Score.Away, escapeMarkdownV2(p.Confidence.Label))
	fmt.Fprintf(&b, "📊 %s\n", escapeMarkdownV2(fmt.Sprintf("Home %.1f%% | Draw %.1f%% | Away %.1f%%",
		p.WinProb.Home, p.WinProb.Draw, p.WinProb.Away)))
	fmt.Fprintf(&b, "🥅 Expected goals: %s\n", escapeMarkdownV2(fmt.Sprintf("%.2f", p.TotalGoals)))
	if p.BTTS != nil {
		fmt.Fprintf(&b, "🔁 BTTS: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f%%", *p.BTTS)))
	}
	if p.Over25 != nil {
		fmt.Fprintf(&b, "📈 Over 2\\.5: %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f%%", *p.Over25)))
	}
	fmt.Fprintf(&b, "🤖 Model: %s", escapeMarkdownV2(p.ModelUsed))
	return b.String()
}

func formatTips(batch []*models.Prediction) string {
	if len(batch) == 0 {
		return escapeMarkdownV2("No upcoming fixtures to predict.")
	}
	var b strings.Builder
	b.WriteString("💎 *Premium Tips*\n\n")
	for i, p := range batch {
		fmt.Fprintf(&b, "%d\\. %s\n\n", i+1, formatPrediction(p))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStatus(r *models.HealthReport, now time.Time) string {
	emoji := "🟢"
	if r.Status != models.StatusHealthy {
		emoji = "🔴"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *System status: %s*\n", emoji, escapeMarkdownV2(r.Status))
	fmt.Fprintf(&b, "⏱ Last check: %s ago\n", escapeMarkdownV2(formatDuration(now.Sub(r.LastCheck))))
	fmt.Fprintf(&b, "🧠 Models: %s", escapeMarkdownV2(strings.Join(r.ModelsMonitored, ", ")))
	for _, a := range r.ActiveAlerts {
		fmt.Fprintf(&b, "\n🔴 %s", escapeMarkdownV2(a.Message))
	}
	return b.String()
}

func formatAlerts(alerts []models.ModelAlert, at time.Time) string {
	var b strings.Builder
	b.WriteString("🚨 *Model Performance Degraded*\n\n")
	fmt.Fprintf(&b, "📅 Detected: %s\n\n", escapeMarkdownV2(at.Format("2006-01-02 15:04:05")))
	for i, a := range alerts {
		fmt.Fprintf(&b, "%d\\. %s\n", i+1, escapeMarkdownV2(a.Message))
	}
	b.WriteString("\n👉 " + escapeMarkdownV2("A forced maintenance cycle retrains every model."))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if days := int(d.Hours()) / 24; days > 0 {
		return fmt.Sprintf("%dd", days)
	}
	if hours := int(d.Hours()); hours > 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
