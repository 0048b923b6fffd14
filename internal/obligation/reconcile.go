// cashpilot/internal/obligation/reconcile.go
package obligation

import (
	"fmt"
	"math"
	"time"

	"cashpilot/models"

	"gorm.io/gorm"
)

// Окно сопоставления факта с планом: дата платежа может отличаться от
// плановой на неделю в любую сторону.
const matchWindowDays = 7

// Допустимое относительное расхождение сумм при автоматическом сопоставлении.
const matchAmountTolerance = 0.05

// RecordPayment сохраняет фактическое движение денег, пытается сопоставить
// его с ожидаемым графиком и двигает остаток пользователя. Все в одной
// транзакции: полузаписанных фактов не бывает.
func RecordPayment(db *gorm.DB, user *models.User, event *models.PaymentEvent) error {
	event.UserID = user.ID
	if event.Status == "" {
		event.Status = models.PaymentCompleted
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if event.ScheduleID == nil {
			if schedule, ok := findMatchingSchedule(tx, user.ID, event); ok {
				event.ScheduleID = &schedule.ID
			}
		}

		if event.ScheduleID != nil {
			var schedule models.ObligationSchedule
			if err := tx.First(&schedule, *event.ScheduleID).Error; err != nil {
				return fmt.Errorf("график %d не найден: %w", *event.ScheduleID, err)
			}
			// Отклонение факта от плана в знаке движения.
			planned := schedule.EstimatedAmount
			if event.Amount < 0 {
				planned = -planned
			}
			event.Variance = event.Amount - planned

			if event.Status == models.PaymentCompleted {
				now := time.Now()
				if err := tx.Model(&schedule).Updates(map[string]interface{}{
					"status":  models.SchedulePaid,
					"paid_at": now,
				}).Error; err != nil {
					return err
				}
			}
		}

		if err := tx.Create(event).Error; err != nil {
			return err
		}

		if event.Status == models.PaymentCompleted {
			now := time.Now()
			if err := tx.Model(user).Updates(map[string]interface{}{
				"cash_balance":       gorm.Expr("cash_balance + ?", event.Amount),
				"balance_updated_at": now,
			}).Error; err != nil {
				return err
			}
			user.CashBalance += event.Amount
		}
		return nil
	})
}

// findMatchingSchedule ищет неоплаченный график с близкой датой и суммой.
// Берется ближайший по дате из подходящих по сумме.
func findMatchingSchedule(tx *gorm.DB, userID uint, event *models.PaymentEvent) (*models.ObligationSchedule, bool) {
	wantIncome := event.Amount > 0
	amount := math.Abs(event.Amount)

	var candidates []models.ObligationSchedule
	query := tx.Joins("Agreement").
		Where("\"Agreement\".user_id = ?", userID).
		Where("obligation_schedules.status IN ?",
			[]models.ScheduleStatus{models.ScheduleScheduled, models.ScheduleDue, models.ScheduleOverdue}).
		Where("obligation_schedules.due_date BETWEEN ? AND ?",
			event.PaymentDate.AddDate(0, 0, -matchWindowDays),
			event.PaymentDate.AddDate(0, 0, matchWindowDays))
	if wantIncome {
		query = query.Where("\"Agreement\".category = ?", models.CategoryRevenue)
	} else {
		query = query.Where("\"Agreement\".category <> ?", models.CategoryRevenue)
	}
	if err := query.Find(&candidates).Error; err != nil {
		return nil, false
	}

	var best *models.ObligationSchedule
	var bestGap time.Duration
	for i := range candidates {
		c := &candidates[i]
		if c.EstimatedAmount <= 0 {
			continue
		}
		diff := math.Abs(amount-c.EstimatedAmount) / c.EstimatedAmount
		if diff > matchAmountTolerance {
			continue
		}
		gap := event.PaymentDate.Sub(c.DueDate)
		if gap < 0 {
			gap = -gap
		}
		if best == nil || gap < bestGap {
			best = c
			bestGap = gap
		}
	}
	return best, best != nil
}
