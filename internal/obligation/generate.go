// cashpilot/internal/obligation/generate.go

// Package obligation обслуживает жизненный цикл трехслойной модели
// обязательств: порождение графиков из договоренностей, освежение статусов
// и сверку фактических платежей с планом.
package obligation

import (
	"log/slog"
	"time"

	"cashpilot/models"

	"gorm.io/gorm"
)

// GenerateHorizonDays - на сколько дней вперед порождаются графики.
const GenerateHorizonDays = 120

// GenerateSchedules порождает недостающие графики по всем живым
// договоренностям пользователя. Идемпотентна: график на уже занятую дату
// не создается повторно.
func GenerateSchedules(db *gorm.DB, userID uint) (int, error) {
	var agreements []models.ObligationAgreement
	if err := db.Where("user_id = ? AND (end_date IS NULL OR end_date > ?)", userID, time.Now()).
		Find(&agreements).Error; err != nil {
		return 0, err
	}

	created := 0
	for i := range agreements {
		n, err := generateForAgreement(db, &agreements[i])
		if err != nil {
			slog.Error("Не удалось породить графики", "agreement_id", agreements[i].ID, "error", err)
			continue
		}
		created += n
	}
	if created > 0 {
		slog.Info("Порождены графики платежей", "user_id", userID, "created", created)
	}
	return created, nil
}

func generateForAgreement(db *gorm.DB, a *models.ObligationAgreement) (int, error) {
	if a.Frequency == models.FreqOnce {
		return generateOnce(db, a)
	}

	now := time.Now()
	horizon := now.AddDate(0, 0, GenerateHorizonDays)
	created := 0

	for due := nextOccurrence(a, now); due.Before(horizon); due = advance(due, a.Frequency) {
		if a.EndDate != nil && due.After(*a.EndDate) {
			break
		}
		var count int64
		if err := db.Model(&models.ObligationSchedule{}).
			Where("agreement_id = ? AND due_date = ?", a.ID, due).
			Count(&count).Error; err != nil {
			return created, err
		}
		if count > 0 {
			continue
		}
		schedule := models.ObligationSchedule{
			AgreementID:     a.ID,
			DueDate:         due,
			EstimatedAmount: a.BaseAmount,
			Status:          models.ScheduleScheduled,
			Confidence:      a.Confidence,
			EstimateSource:  models.EstimateFromAgreement,
		}
		if err := db.Create(&schedule).Error; err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func generateOnce(db *gorm.DB, a *models.ObligationAgreement) (int, error) {
	var count int64
	if err := db.Model(&models.ObligationSchedule{}).
		Where("agreement_id = ?", a.ID).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 || a.StartDate.Before(time.Now().AddDate(0, 0, -1)) {
		return 0, nil
	}
	schedule := models.ObligationSchedule{
		AgreementID:     a.ID,
		DueDate:         a.StartDate,
		EstimatedAmount: a.BaseAmount,
		Status:          models.ScheduleScheduled,
		Confidence:      a.Confidence,
		EstimateSource:  models.EstimateFromAgreement,
	}
	if err := db.Create(&schedule).Error; err != nil {
		return 0, err
	}
	return 1, nil
}

// nextOccurrence - первая дата цикла договоренности, не лежащая в прошлом.
func nextOccurrence(a *models.ObligationAgreement, now time.Time) time.Time {
	due := a.StartDate
	for due.Before(now) {
		due = advance(due, a.Frequency)
	}
	return due
}

func advance(t time.Time, freq models.Frequency) time.Time {
	switch freq {
	case models.FreqWeekly:
		return t.AddDate(0, 0, 7)
	case models.FreqQuarterly:
		return t.AddDate(0, 3, 0)
	case models.FreqAnnual:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// RefreshStatuses переводит просроченные графики в overdue, а наступившие -
// в due. Переход в paid возможен только через сверку с фактом оплаты.
func RefreshStatuses(db *gorm.DB, userID uint) error {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if err := db.Model(&models.ObligationSchedule{}).
		Where("agreement_id IN (?)",
			db.Model(&models.ObligationAgreement{}).Select("id").Where("user_id = ?", userID)).
		Where("status IN ? AND due_date < ?",
			[]models.ScheduleStatus{models.ScheduleScheduled, models.ScheduleDue}, today).
		Update("status", models.ScheduleOverdue).Error; err != nil {
		return err
	}

	return db.Model(&models.ObligationSchedule{}).
		Where("agreement_id IN (?)",
			db.Model(&models.ObligationAgreement{}).Select("id").Where("user_id = ?", userID)).
		Where("status = ? AND due_date BETWEEN ? AND ?",
			models.ScheduleScheduled, today, today.AddDate(0, 0, 1)).
		Update("status", models.ScheduleDue).Error
}
