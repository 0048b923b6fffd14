// cashpilot/internal/notify/notifier.go

// Package notify отвечает за доставку уведомлений во внешние каналы.
// Доставка всегда "выстрелил и забыл": неудача пишется в журнал
// NotificationLog и никогда не поднимается в транзакцию алерта или действия.
package notify

import (
	"fmt"
	"log/slog"
	"time"

	"cashpilot/models"

	"gorm.io/gorm"
)

// Provider - внешний канал доставки. Реализация не должна паниковать;
// любая ошибка возвращается значением и оседает в журнале.
type Provider interface {
	Send(target, subject, body string) error
	Channel() models.NotificationChannel
}

// providers - активные каналы. Заполняется при старте приложения.
var providers []Provider

// Register подключает канал доставки.
func Register(p Provider) {
	providers = append(providers, p)
}

// ResetProviders убирает все каналы (используется в тестах).
func ResetProviders() {
	providers = nil
}

// AlertCreated рассылает уведомление о новом алерте по всем каналам
// и толкает событие в WebSocket-хаб. Ошибки не возвращаются вызывающему.
func AlertCreated(db *gorm.DB, alert *models.DetectionAlert) {
	subject := fmt.Sprintf("[%s] %s", alert.Severity, alert.Title)
	dispatch(db, alert.UserID, subject, alert.Description, &alert.ID, nil)
	PushEvent(alert.UserID, "alert_created", alert)
}

// AlertEscalated рассылает уведомление об эскалации.
func AlertEscalated(db *gorm.DB, alert *models.DetectionAlert, reason string) {
	subject := fmt.Sprintf("Эскалация до %s: %s", alert.Severity, alert.Title)
	dispatch(db, alert.UserID, subject, reason, &alert.ID, nil)
	PushEvent(alert.UserID, "alert_escalated", alert)
}

// ActionPrepared уведомляет о появлении карточки действия в очереди.
func ActionPrepared(db *gorm.DB, action *models.PreparedAction) {
	subject := fmt.Sprintf("Подготовлено действие: %s", action.Title)
	dispatch(db, action.UserID, subject, action.ProblemSummary, nil, &action.ID)
	PushEvent(action.UserID, "action_prepared", action)
}

// SendDirect отправляет содержимое по всем каналам и, в отличие от
// fire-and-forget рассылок, возвращает ошибку первой неудавшейся доставки.
// Используется исполнением действий, где исход отправки попадает в
// свидетельство исполнения.
func SendDirect(db *gorm.DB, userID uint, subject, body string, actionID *uint) error {
	var firstErr error
	for _, p := range providers {
		logEntry := models.NotificationLog{
			UserID:   userID,
			Channel:  p.Channel(),
			Subject:  subject,
			Body:     body,
			ActionID: actionID,
		}
		if err := p.Send("", subject, body); err != nil {
			logEntry.Delivered = false
			logEntry.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			now := time.Now()
			logEntry.Delivered = true
			logEntry.DeliveredAt = &now
		}
		if err := db.Create(&logEntry).Error; err != nil {
			slog.Error("Не удалось записать журнал уведомлений", "error", err)
		}
	}
	return firstErr
}

func dispatch(db *gorm.DB, userID uint, subject, body string, alertID, actionID *uint) {
	for _, p := range providers {
		logEntry := models.NotificationLog{
			UserID:   userID,
			Channel:  p.Channel(),
			Subject:  subject,
			Body:     body,
			AlertID:  alertID,
			ActionID: actionID,
		}

		if err := p.Send("", subject, body); err != nil {
			// Неудача доставки - факт, а не авария.
			logEntry.Delivered = false
			logEntry.Error = err.Error()
			slog.Warn("Не удалось доставить уведомление", "channel", p.Channel(), "error", err)
		} else {
			now := time.Now()
			logEntry.Delivered = true
			logEntry.DeliveredAt = &now
		}

		if err := db.Create(&logEntry).Error; err != nil {
			slog.Error("Не удалось записать журнал уведомлений", "error", err)
		}
	}
}

// LogProvider - канал по умолчанию: пишет уведомление в лог приложения.
// Реальные email/Slack-провайдеры подключаются снаружи через Register.
type LogProvider struct {
	Ch models.NotificationChannel
}

func (p LogProvider) Send(target, subject, body string) error {
	slog.Info("Уведомление", "channel", p.Ch, "subject", subject)
	return nil
}

func (p LogProvider) Channel() models.NotificationChannel {
	return p.Ch
}
