package services

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"smartoffice/config"
	"smartoffice/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// telegramBot is the part of the bot API the service uses.
type telegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
}

// TelegramService pushes ALARM alerts and device status changes to a chat.
type TelegramService struct {
	bot            telegramBot
	chatID         int64
	throttle       time.Duration
	mu             sync.Mutex
	lastAlertTimes map[string]time.Time // last alert per device and quantity
	logger         *zap.Logger
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	client := &http.Client{Timeout: cfg.OperationTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBotToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: error parsing chat ID: %v", models.ErrConfiguration, err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	ts := newTelegramService(bot, chatID, cfg.TelegramThrottle, logger)
	if err := ts.testConnection(); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %w", err)
	}

	return ts, nil
}

func newTelegramService(bot telegramBot, chatID int64, throttle time.Duration, logger *zap.Logger) *TelegramService {
	return &TelegramService{
		bot:            bot,
		chatID:         chatID,
		throttle:       throttle,
		lastAlertTimes: make(map[string]time.Time),
		logger:         logger,
	}
}

// testConnection tests Telegram connection with retry logic
func (ts *TelegramService) testConnection() error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err := ts.bot.GetMe()
		if err == nil {
			ts.logger.Info("Telegram connection successful")
			return nil
		}

		ts.logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

func (ts *TelegramService) Name() string { return "telegram" }

// Notify sends ALARM alerts; warnings are left to the bus and the webhook. Repeat alarms
// for the same device and quantity inside the throttle window are skipped.
func (ts *TelegramService) Notify(ctx context.Context, alert models.Alert) error {
	if alert.Severity != models.SeverityAlarm {
		return nil
	}
	key := alert.DeviceID + "|" + string(alert.AlertType)
	if ts.shouldThrottle(key) {
		ts.logger.Debug("Throttling alert", zap.String("device_id", alert.DeviceID))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := ts.send(formatAlertMessage(alert)); err != nil {
		return fmt.Errorf("error sending telegram message: %w", err)
	}

	ts.mu.Lock()
	ts.lastAlertTimes[key] = time.Now()
	ts.mu.Unlock()

	ts.logger.Info("Sent alarm to Telegram",
		zap.String("device_id", alert.DeviceID),
		zap.String("quantity", string(alert.AlertType)))
	return nil
}

func (ts *TelegramService) shouldThrottle(key string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	last, exists := ts.lastAlertTimes[key]
	if !exists {
		return false
	}
	return time.Since(last) < ts.throttle
}

func (ts *TelegramService) send(text string) error {
	msg := tgbotapi.NewMessage(ts.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := ts.bot.Send(msg)
	return err
}

// formatAlertMessage creates a mobile-friendly alert message
func formatAlertMessage(alert models.Alert) string {
	var sb strings.Builder

	sb.WriteString("🚨 <b>SMART OFFICE ALERT</b> 🚨\n\n")

	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s (%s)\n", html.EscapeString(alert.DeviceID), html.EscapeString(alert.DeviceType)))
	sb.WriteString(fmt.Sprintf("📡 <b>Topic:</b> <code>%s</code>\n", html.EscapeString(alert.Topic)))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n\n", alert.Timestamp.Format("2006-01-02 15:04:05")))

	sb.WriteString(fmt.Sprintf("%s %s <b>%s</b>\n", alert.SeverityColor(), alert.Emoji(), alertTitle(alert)))
	sb.WriteString(fmt.Sprintf("   └ %s\n", html.EscapeString(alert.Message)))
	sb.WriteString(fmt.Sprintf("   └ Value %.1f%s, limit %.1f%s\n\n",
		alert.Value, alert.AlertType.Unit(), alert.Threshold, alert.AlertType.Unit()))

	if alert.ID > 0 {
		sb.WriteString(fmt.Sprintf("🆔 <b>Alert:</b> #%d\n", alert.ID))
	}
	sb.WriteString("🔴 <b>Status:</b> ATTENTION REQUIRED")

	return sb.String()
}

// alertTitle returns e.g. "High Temperature Alarm". Direction comes from the bound crossed.
func alertTitle(alert models.Alert) string {
	direction := "Low"
	if alert.High {
		direction = "High"
	}
	kind := "Warning"
	if alert.Severity == models.SeverityAlarm {
		kind = "Alarm"
	}
	return fmt.Sprintf("%s %s %s", direction, alert.AlertType, kind)
}

// SendStartupMessage sends a message when the service starts
func (ts *TelegramService) SendStartupMessage() error {
	message := "🟢 <b>Smart Office Data Manager Started</b>\n\n" +
		"📡 Listening for device telemetry\n" +
		"🤖 Telegram alarm notifications active\n" +
		"❄️ Automatic AC control enabled\n\n" +
		"✅ System is ready and operational!"

	return ts.send(message)
}

// SendDeviceTimeoutAlert reports a device that stopped sending telemetry.
func (ts *TelegramService) SendDeviceTimeoutAlert(device models.DeviceHealth, silentFor time.Duration) error {
	var sb strings.Builder

	sb.WriteString("⚠️ <b>DEVICE TIMEOUT</b> ⚠️\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s (%s)\n", html.EscapeString(device.DeviceID), html.EscapeString(device.DeviceType)))
	sb.WriteString(fmt.Sprintf("📡 <b>Last Topic:</b> <code>%s</code>\n", html.EscapeString(device.LastTopic)))
	sb.WriteString(fmt.Sprintf("🕐 <b>Last Seen:</b> %s\n", device.LastSeen.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Silent For:</b> %s\n\n", formatDuration(silentFor)))
	sb.WriteString("💡 Device may be offline or experiencing connectivity issues.\n\n")
	sb.WriteString("🔴 <b>Status:</b> DEVICE TIMEOUT")

	if err := ts.send(sb.String()); err != nil {
		return fmt.Errorf("error sending device timeout alert: %w", err)
	}
	ts.logger.Info("Sent device timeout alert",
		zap.String("device_id", device.DeviceID),
		zap.Duration("silent_for", silentFor))
	return nil
}

// SendDeviceRecoveryAlert reports a device that resumed after a timeout.
func (ts *TelegramService) SendDeviceRecoveryAlert(device models.DeviceHealth, downFor time.Duration) error {
	var sb strings.Builder

	sb.WriteString("✅ <b>DEVICE RECOVERED</b> ✅\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s (%s)\n", html.EscapeString(device.DeviceID), html.EscapeString(device.DeviceType)))
	sb.WriteString(fmt.Sprintf("🕐 <b>Recovery Time:</b> %s\n", device.LastSeen.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Downtime:</b> %s\n\n", formatDuration(downFor)))
	sb.WriteString("🟢 <b>Status:</b> DEVICE ONLINE")

	if err := ts.send(sb.String()); err != nil {
		return fmt.Errorf("error sending device recovery alert: %w", err)
	}
	ts.logger.Info("Sent device recovery alert",
		zap.String("device_id", device.DeviceID),
		zap.Duration("down_for", downFor))
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hr", days, hours)
}
