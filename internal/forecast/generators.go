// cashpilot/internal/forecast/generators.go
package forecast

import (
	"fmt"
	"time"

	"cashpilot/models"

	"gorm.io/gorm"
)

// Генераторы событий. По типу биллинга клиента выбирается свой генератор;
// статьи расходов генерируются единообразно. Уровень уверенности каждого
// события выводится строго из привязки к учетной системе, никогда - из сумм
// или истории.

func generateEvents(db *gorm.DB, user *models.User, start time.Time, weeks int) ([]Event, error) {
	end := start.AddDate(0, 0, weeks*7)
	var events []Event

	var clients []models.Client
	if err := db.Preload("Milestones").
		Where("user_id = ? AND status = ?", user.ID, models.ClientActive).
		Find(&clients).Error; err != nil {
		return nil, err
	}
	for i := range clients {
		events = append(events, clientEvents(&clients[i], start, end)...)
	}

	var buckets []models.ExpenseBucket
	if err := db.Where("user_id = ?", user.ID).Find(&buckets).Error; err != nil {
		return nil, err
	}
	for i := range buckets {
		events = append(events, bucketEvents(&buckets[i], start, end)...)
	}

	return events, nil
}

func clientEvents(cl *models.Client, start, end time.Time) []Event {
	switch cl.BillingModel {
	case models.BillingProject:
		return projectEvents(cl, start, end)
	case models.BillingUsage:
		// Суммы usage-клиента - оценки, уверенность понижается на ступень.
		return recurringClientEvents(cl, start, end, downgrade(cl.ForecastConfidence()))
	default:
		return recurringClientEvents(cl, start, end, cl.ForecastConfidence())
	}
}

// recurringClientEvents - ретейнер или usage: цикл выставления счетов плюс
// договорная отсрочка оплаты.
func recurringClientEvents(cl *models.Client, start, end time.Time, conf models.ConfidenceLevel) []Event {
	var events []Event
	clientID := cl.ID
	delay := cl.PaymentTermsDays

	for _, issueDate := range CycleDates(cl.BillingCycle, start, end) {
		payDate := issueDate.AddDate(0, 0, delay)
		if payDate.Before(start) || !payDate.Before(end) {
			continue
		}
		events = append(events, Event{
			Date:       payDate,
			Amount:     cl.Amount,
			Direction:  DirectionIn,
			Confidence: conf,
			Label:      fmt.Sprintf("Оплата: %s", cl.Name),
			ClientID:   &clientID,
		})
	}
	return events
}

// projectEvents - проектный клиент: деньги приходят по вехам, у каждой вехи
// своя дата и своя отсрочка оплаты.
func projectEvents(cl *models.Client, start, end time.Time) []Event {
	var events []Event
	clientID := cl.ID
	conf := cl.ForecastConfidence()

	for _, m := range cl.Milestones {
		payDate := m.DueDate.AddDate(0, 0, m.PaymentDelayDays)
		if payDate.Before(start) || !payDate.Before(end) {
			continue
		}
		events = append(events, Event{
			Date:       payDate,
			Amount:     m.Amount,
			Direction:  DirectionIn,
			Confidence: conf,
			Label:      fmt.Sprintf("Веха «%s»: %s", m.Name, cl.Name),
			ClientID:   &clientID,
		})
	}
	return events
}

// bucketEvents - статья расходов: месячный объем уходит первым числом
// каждого месяца внутри горизонта.
func bucketEvents(b *models.ExpenseBucket, start, end time.Time) []Event {
	if b.MonthlyAmount <= 0 {
		return nil
	}
	var events []Event
	bucketID := b.ID
	conf := b.BucketConfidence()

	date := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	for ; date.Before(end); date = date.AddDate(0, 1, 0) {
		if date.Before(start) {
			continue
		}
		events = append(events, Event{
			Date:       date,
			Amount:     b.MonthlyAmount,
			Direction:  DirectionOut,
			Confidence: conf,
			Label:      fmt.Sprintf("Расходы: %s", b.Name),
			BucketID:   &bucketID,
		})
	}
	return events
}

// CycleDates - даты выставления счетов цикла внутри горизонта. Месячные и
// квартальные счета выставляются первым числом периода, недельные - по
// понедельникам.
func CycleDates(cycle models.Frequency, start, end time.Time) []time.Time {
	var dates []time.Time
	switch cycle {
	case models.FreqWeekly:
		d := start
		for d.Weekday() != time.Monday {
			d = d.AddDate(0, 0, 1)
		}
		for ; d.Before(end); d = d.AddDate(0, 0, 7) {
			dates = append(dates, d)
		}
	case models.FreqQuarterly:
		d := time.Date(start.Year(), firstMonthOfQuarter(start.Month()), 1, 0, 0, 0, 0, start.Location())
		for ; d.Before(end); d = d.AddDate(0, 3, 0) {
			dates = append(dates, d)
		}
	case models.FreqAnnual:
		d := time.Date(start.Year(), time.January, 1, 0, 0, 0, 0, start.Location())
		for ; d.Before(end); d = d.AddDate(1, 0, 0) {
			dates = append(dates, d)
		}
	case models.FreqOnce:
		// Разовый биллинг без вех не порождает повторяющихся событий.
	default: // monthly
		d := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
		for ; d.Before(end); d = d.AddDate(0, 1, 0) {
			dates = append(dates, d)
		}
	}
	return dates
}

func firstMonthOfQuarter(m time.Month) time.Month {
	return time.Month((int(m)-1)/3*3 + 1)
}

// downgrade понижает уверенность на одну ступень.
func downgrade(c models.ConfidenceLevel) models.ConfidenceLevel {
	switch c {
	case models.ConfidenceHigh:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
