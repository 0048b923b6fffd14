// cashpilot/internal/detection/engine.go

// Package detection реализует движок детекции: 12 независимых правил,
// оценивающих обязательства, деньги и клиентов против настраиваемых порогов.
// Повторный прогон по неизменившимся данным не создает дублей: пока по ключу
// (тип + контекст) существует открытый алерт, новый не возникает.
package detection

import (
	"fmt"
	"log/slog"
	"time"

	"cashpilot/internal/notify"
	"cashpilot/models"

	"gorm.io/gorm"
)

// runContext - все, что нужно детектору на один прогон. Собирается один раз
// на пользователя и передается явно.
type runContext struct {
	db *gorm.DB
	cc *CashContext
	th *Thresholds
}

// detector - одна чистая функция правила: читает снимок, возвращает
// кандидатов в алерты (еще не прошедших дедупликацию).
type detector func(r *runContext) ([]models.DetectionAlert, error)

// detectors - маршрутизация типа правила на реализацию.
var detectors = map[models.DetectionType]detector{
	models.DetectLatePayment:           detectLatePayment,
	models.DetectPayrollSafety:         detectPayrollSafety,
	models.DetectBufferBreach:          detectBufferBreach,
	models.DetectRunwayThreshold:       detectRunwayThreshold,
	models.DetectPaymentTimingConflict: detectPaymentTimingConflict,
	models.DetectClientConcentration:   detectClientConcentration,
	models.DetectClientDegradation:     detectClientDegradation,
	models.DetectExpenseSpike:          detectExpenseSpike,
	models.DetectSubscriptionCreep:     detectSubscriptionCreep,
	models.DetectTaxDeadline:           detectTaxDeadline,
	models.DetectReceivablesAging:      detectReceivablesAging,
	models.DetectCashDrop:              detectCashDrop,
}

// RunAllDetections прогоняет все включенные правила для пользователя.
// Каждое правило изолировано: ошибка одного логируется и не прерывает
// остальные.
func RunAllDetections(db *gorm.DB, user *models.User) ([]models.DetectionAlert, error) {
	return runDetections(db, user, models.AllDetectionTypes)
}

// RunCriticalDetections прогоняет только критичные правила (зарплатная
// безопасность и пробитие буфера) - для частого опроса.
func RunCriticalDetections(db *gorm.DB, user *models.User) ([]models.DetectionAlert, error) {
	return runDetections(db, user, models.CriticalDetectionTypes)
}

// RunDetectionType прогоняет одно правило.
func RunDetectionType(db *gorm.DB, user *models.User, dt models.DetectionType) ([]models.DetectionAlert, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("неизвестный тип детекции: %s", dt)
	}
	return runDetections(db, user, []models.DetectionType{dt})
}

func runDetections(db *gorm.DB, user *models.User, types []models.DetectionType) ([]models.DetectionAlert, error) {
	th, err := LoadThresholds(db, user)
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить пороги: %w", err)
	}
	cc, err := BuildCashContext(db, user, time.Now())
	if err != nil {
		return nil, fmt.Errorf("не удалось собрать финансовый контекст: %w", err)
	}

	r := &runContext{db: db, cc: cc, th: th}

	var created []models.DetectionAlert
	attempted, succeeded := 0, 0

	for _, dt := range types {
		if !th.Enabled(dt) {
			continue
		}
		fn, ok := detectors[dt]
		if !ok {
			continue
		}
		attempted++

		candidates, err := fn(r)
		if err != nil {
			// Изоляция правил: одно сломанное правило не лишает пользователя
			// остальных алертов.
			slog.Error("Правило детекции завершилось ошибкой", "type", dt, "user_id", user.ID, "error", err)
			continue
		}
		succeeded++

		for i := range candidates {
			alert, fresh, err := emitAlert(db, &candidates[i])
			if err != nil {
				slog.Error("Не удалось сохранить алерт", "type", dt, "error", err)
				continue
			}
			if fresh {
				created = append(created, *alert)
			}
		}
	}

	slog.Info("Прогон детекции завершен",
		"user_id", user.ID, "attempted", attempted, "succeeded", succeeded, "new_alerts", len(created))
	return created, nil
}

// emitAlert проводит кандидата через ворота дедупликации и сохраняет его.
// Возвращает (алерт, создан ли новый, ошибка).
func emitAlert(db *gorm.DB, alert *models.DetectionAlert) (*models.DetectionAlert, bool, error) {
	if err := alert.Context.Validate(); err != nil {
		return nil, false, err
	}
	alert.ContextKey = alert.Context.DedupKey()

	existing, found, err := findExistingAlert(db, alert.UserID, alert.ContextKey)
	if err != nil {
		return nil, false, err
	}
	if found {
		// Открытый алерт с тем же ключом уже есть - новый не создаем.
		return existing, false, nil
	}

	if alert.Status == "" {
		alert.Status = models.AlertActive
	}
	if err := db.Create(alert).Error; err != nil {
		return nil, false, err
	}

	// Уведомление - "выстрелил и забыл", неудача не откатывает алерт.
	notify.AlertCreated(db, alert)

	return alert, true, nil
}

// findExistingAlert ищет открытый алерт с тем же ключом дедупликации.
func findExistingAlert(db *gorm.DB, userID uint, contextKey string) (*models.DetectionAlert, bool, error) {
	var existing models.DetectionAlert
	err := db.Where("user_id = ? AND context_key = ? AND status IN ?",
		userID, contextKey, models.OpenAlertStatuses).
		First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &existing, true, nil
}

// UrgencyScore - эвристический ранг срочности 0-100 из уровня и дней до
// дедлайна. Только для сортировки очередей, не формальная модель.
func UrgencyScore(severity models.AlertSeverity, daysUntilDue int) int {
	base := 0
	switch severity {
	case models.SeverityEmergency:
		base = 80
	case models.SeverityThisWeek:
		base = 55
	case models.SeverityUpcoming:
		base = 30
	}

	// Чем ближе срок, тем выше добавка (максимум +20).
	bonus := 20 - daysUntilDue*2
	if bonus < 0 {
		bonus = 0
	}
	if bonus > 20 {
		bonus = 20
	}

	score := base + bonus
	if score > 100 {
		score = 100
	}
	return score
}
