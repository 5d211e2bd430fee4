package telegram

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/logger"
)

// Severity tags an outgoing alert
type Severity string

const (
	SeverityInfo      Severity = "INFO"
	SeverityWarning   Severity = "WARNING"
	SeverityCritical  Severity = "CRITICAL"
	SeverityEmergency Severity = "EMERGENCY"
	SeverityTrade     Severity = "TRADE"
)

// Alerter delivers severity-tagged events. Implementations are
// fire-and-forget: a delivery failure must never affect trading decisions.
type Alerter interface {
	Alert(severity Severity, title, body string)
}

// Notifier sends alerts to the operator chat via Telegram
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	cfg    *config.TelegramConfig
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{
		api:    bot,
		chatID: cfg.ChatID,
		cfg:    cfg,
	}, nil
}

// Alert sends a severity-tagged message. Delivery runs in the background so
// the caller never waits on Telegram.
func (n *Notifier) Alert(severity Severity, title, body string) {
	switch severity {
	case SeverityTrade:
		if !n.cfg.AlertOnTrades {
			return
		}
	case SeverityInfo, SeverityWarning:
		if !n.cfg.AlertOnWarnings {
			return
		}
	}

	text := fmt.Sprintf("%s *%s*\n%s\n_%s_",
		severityEmoji(severity), title, body, time.Now().Format("15:04:05"))

	go func() {
		msg := tgbotapi.NewMessage(n.chatID, text)
		msg.ParseMode = "Markdown"

		if _, err := n.api.Send(msg); err != nil {
			logger.Error("failed to send telegram alert",
				zap.String("severity", string(severity)),
				zap.String("title", title),
				zap.Error(err),
			)
		}
	}()
}

func severityEmoji(s Severity) string {
	switch s {
	case SeverityTrade:
		return "💹"
	case SeverityWarning:
		return "⚠️"
	case SeverityCritical:
		return "🔴"
	case SeverityEmergency:
		return "🚨"
	default:
		return "ℹ️"
	}
}

// NopAlerter discards all alerts. Used when Telegram is disabled and in tests.
type NopAlerter struct{}

// Alert implements Alerter
func (NopAlerter) Alert(severity Severity, title, body string) {}
