// cashpilot/internal/detection/context.go
package detection

import (
	"time"

	"cashpilot/models"

	"gorm.io/gorm"
)

// CashContext - снимок финансового состояния пользователя на один прогон
// детекции. Собирается один раз и передается по цепочке вызовов явно,
// а не через глобальный кэш: это исключает протекание данных между
// пользователями.
type CashContext struct {
	User *models.User
	Now  time.Time

	// Cash - текущий остаток на счетах.
	Cash float64

	// MonthlyBurn - месячная норма расходов, выведенная из окна предстоящих
	// обязательств без учета выручки.
	MonthlyBurn float64

	// MonthlyRevenue - ожидаемая месячная выручка по активным клиентам.
	MonthlyRevenue float64

	// Upcoming - открытые графики расходных обязательств на ближайшие 90 дней,
	// отсортированы по дате, с предзагруженной договоренностью.
	Upcoming []models.ObligationSchedule

	// OverdueRevenue - просроченные графики поступлений (ждем деньги, их нет).
	OverdueRevenue []models.ObligationSchedule
}

// openStatuses - статусы графиков, еще влияющие на будущее движение денег.
var openStatuses = []models.ScheduleStatus{
	models.ScheduleScheduled, models.ScheduleDue, models.ScheduleOverdue,
}

// BuildCashContext собирает снимок из канонических данных. Один запрос на
// каждый срез; вызывается в начале прогона и дальше только читается.
func BuildCashContext(db *gorm.DB, user *models.User, now time.Time) (*CashContext, error) {
	cc := &CashContext{User: user, Now: now, Cash: user.CashBalance}

	horizon := now.AddDate(0, 0, 90)

	// Предстоящие расходные обязательства.
	if err := db.Joins("Agreement").
		Where("\"Agreement\".user_id = ? AND \"Agreement\".category <> ?", user.ID, models.CategoryRevenue).
		Where("obligation_schedules.status IN ?", openStatuses).
		Where("obligation_schedules.due_date BETWEEN ? AND ?", now.AddDate(0, 0, -1), horizon).
		Order("obligation_schedules.due_date ASC").
		Find(&cc.Upcoming).Error; err != nil {
		return nil, err
	}

	// Просроченные поступления.
	if err := db.Joins("Agreement").
		Where("\"Agreement\".user_id = ? AND \"Agreement\".category = ?", user.ID, models.CategoryRevenue).
		Where("obligation_schedules.status IN ?", []models.ScheduleStatus{models.ScheduleOverdue, models.ScheduleDue}).
		Where("obligation_schedules.due_date < ?", now).
		Order("obligation_schedules.due_date ASC").
		Find(&cc.OverdueRevenue).Error; err != nil {
		return nil, err
	}

	// Месячная норма расходов: сумма расходных графиков на ближайшие 30 дней.
	// Если графиков еще нет (свежий аккаунт), падаем обратно на статьи расходов.
	in30 := now.AddDate(0, 0, 30)
	for _, s := range cc.Upcoming {
		if s.DueDate.Before(in30) && !s.DueDate.Before(now) {
			cc.MonthlyBurn += s.EstimatedAmount
		}
	}
	if cc.MonthlyBurn == 0 {
		var buckets []models.ExpenseBucket
		if err := db.Where("user_id = ?", user.ID).Find(&buckets).Error; err != nil {
			return nil, err
		}
		for _, b := range buckets {
			cc.MonthlyBurn += b.MonthlyAmount
		}
	}

	// Месячная выручка по активным клиентам.
	var clients []models.Client
	if err := db.Where("user_id = ? AND status = ?", user.ID, models.ClientActive).Find(&clients).Error; err != nil {
		return nil, err
	}
	for _, cl := range clients {
		cc.MonthlyRevenue += monthlyEquivalent(cl.Amount, cl.BillingCycle)
	}

	return cc, nil
}

// monthlyEquivalent приводит сумму за цикл к месячному эквиваленту.
func monthlyEquivalent(amount float64, cycle models.Frequency) float64 {
	switch cycle {
	case models.FreqWeekly:
		return amount * 52.0 / 12.0
	case models.FreqQuarterly:
		return amount / 3.0
	case models.FreqAnnual:
		return amount / 12.0
	case models.FreqOnce:
		return 0
	default:
		return amount
	}
}
