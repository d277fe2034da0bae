package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/template"
	"time"

	"opsconsole/internal/clock"
	"opsconsole/internal/config"
	"opsconsole/internal/domain"
	"opsconsole/internal/permanent"
	"opsconsole/internal/templatefmt"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// SendResult returns channel-specific metadata after successful delivery.
// Params: sender-specific metadata fields.
// Returns: optional message identifiers.
type SendResult struct {
	MessageID int
}

// ChannelSender sends one rendered escalation message to one channel.
// Params: context and rendered message body.
// Returns: channel send metadata and transport error when send fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, message string) (SendResult, error)
}

// escalationView is the template payload rendered into escalation messages.
// Severity is a plain string so template funcs accept it directly.
type escalationView struct {
	Severity  string
	AlertType string
	Title     string
	Message   string
	Link      string
	CreatedAt time.Time
	Age       time.Duration
}

// Escalator pushes safety-critical alerts to the on-call messenger channel.
// Params: sender, message template, trigger severities, and retry policy.
// Returns: escalation helper for the coordinator layer.
type Escalator struct {
	sender ChannelSender
	retry  config.RetryPolicy
	body   *template.Template
	on     map[domain.Severity]struct{}
	clk    clock.Clock
	logger *slog.Logger
}

// NewEscalator builds the escalator from notify config.
// The Telegram section must be enabled; disabled escalation is represented by
// not constructing an escalator at all.
// Params: notify config, clock, and optional logger.
// Returns: configured escalator or template/sender setup error.
func NewEscalator(cfg config.NotifyConfig, clk clock.Clock, logger *slog.Logger) (*Escalator, error) {
	body, err := templatefmt.ParseEscalationTemplate("notify.telegram.message_template", cfg.Telegram.MessageTemplate)
	if err != nil {
		return nil, err
	}

	on := make(map[domain.Severity]struct{}, len(cfg.OnSeverity))
	for _, tier := range cfg.OnSeverity {
		on[domain.NormalizeSeverity(strings.TrimSpace(tier))] = struct{}{}
	}

	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Escalator{
		sender: NewTelegramSender(cfg.Telegram),
		retry:  cfg.Telegram.Retry,
		body:   body,
		on:     on,
		clk:    clk,
		logger: logger,
	}, nil
}

// ShouldEscalate reports whether the alert severity is on the trigger list.
// Params: materialized alert record.
// Returns: true when the record warrants escalation.
func (e *Escalator) ShouldEscalate(record domain.AlertRecord) bool {
	_, ok := e.on[record.Severity]
	return ok
}

// Escalate renders and delivers one alert with the configured retry policy.
// Params: context and materialized alert record.
// Returns: final error after retries.
func (e *Escalator) Escalate(ctx context.Context, record domain.AlertRecord) error {
	view := escalationView{
		Severity:  string(record.Severity),
		AlertType: record.AlertType,
		Title:     record.Title,
		Message:   record.Message,
		Link:      record.Link,
		CreatedAt: record.CreatedAt,
		Age:       e.clk.Now().Sub(record.CreatedAt),
	}

	var rendered strings.Builder
	if err := e.body.Execute(&rendered, view); err != nil {
		return fmt.Errorf("render escalation template: %w", err)
	}

	_, err := e.sendWithRetry(ctx, e.sender, rendered.String(), e.retry)
	return err
}

// sendWithRetry sends one message with the channel retry policy.
// Params: sender, rendered message, and retry policy.
// Returns: channel metadata and final error after retries.
func (e *Escalator) sendWithRetry(ctx context.Context, sender ChannelSender, message string, retry config.RetryPolicy) (SendResult, error) {
	if !retry.Enabled {
		return sender.Send(ctx, message)
	}

	attempt := 0
	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond
	var timer *time.Timer

	for {
		attempt++
		result, err := sender.Send(ctx, message)
		if err == nil {
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			if retry.LogEachAttempt && attempt > 1 && e.logger != nil {
				e.logger.Info("escalation send recovered after retries", "channel", sender.Channel(), "attempt", attempt)
			}
			return result, nil
		}
		if retry.LogEachAttempt && e.logger != nil {
			e.logger.Warn("escalation send attempt failed", "channel", sender.Channel(), "attempt", attempt, "error", err.Error())
		}

		if permanent.Is(err) {
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			return SendResult{}, fmt.Errorf("channel %s failed permanently: %w", sender.Channel(), err)
		}

		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			return SendResult{}, fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		if timer == nil {
			timer = time.NewTimer(backoff)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(backoff)
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			return SendResult{}, ctx.Err()
		case <-timer.C:
		}

		if strings.EqualFold(retry.Backoff, "exponential") {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// TelegramSender sends escalation messages to Telegram Bot API.
// Params: bot token, chat id, and base URL.
// Returns: Telegram channel sender.
type TelegramSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates Telegram sender with HTTP client.
// Params: Telegram notifier config.
// Returns: initialized sender.
func NewTelegramSender(cfg config.TelegramNotifier) *TelegramSender {
	sender := &TelegramSender{
		chatID: normalizeChatID(cfg.ChatID),
	}

	// Credential and init failures are config mismatches; retrying cannot fix
	// them, so they carry the non-retryable marker.
	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = permanent.Mark(errors.New("telegram bot token is required"))
		return sender
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = permanent.Mark(errors.New("telegram chat_id is required"))
		return sender
	}

	options := []tgbot.Option{
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")),
	}
	botClient, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		sender.initErr = permanent.Mark(fmt.Errorf("init telegram bot: %w", err))
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *TelegramSender) Channel() string {
	return "telegram"
}

// Send posts one escalation message to the Telegram chat.
// Params: context and rendered message body.
// Returns: transport or HTTP error.
func (s *TelegramSender) Send(ctx context.Context, message string) (SendResult, error) {
	if s.initErr != nil {
		return SendResult{}, s.initErr
	}
	if s.client == nil {
		return SendResult{}, errors.New("telegram client is not initialized")
	}

	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      message,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return SendResult{}, errors.New("telegram send returned empty message id")
	}
	return SendResult{MessageID: sent.ID}, nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
// Params: configured chat ID value from TOML.
// Returns: Telegram API chat id union value.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
