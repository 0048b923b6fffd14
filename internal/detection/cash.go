// cashpilot/internal/detection/cash.go
package detection

import (
	"fmt"
	"time"

	"cashpilot/models"
)

// detectBufferBreach сравнивает остаток с целевым буфером (месячная норма
// расходов на настроенное число месяцев). Два яруса с разными ключами
// дедупликации: пока горит критический, предупредительный может дожить
// свое и закрыться независимо.
func detectBufferBreach(r *runContext) ([]models.DetectionAlert, error) {
	if r.cc.MonthlyBurn <= 0 {
		return nil, nil
	}

	bufferMonths := r.th.Number(models.DetectBufferBreach, "buffer_months", 3)
	target := r.cc.MonthlyBurn * bufferMonths * r.th.Multiplier()
	target = r.th.FormulaThreshold(models.DetectBufferBreach, target, r.cc)
	if target <= 0 {
		return nil, nil
	}

	criticalPct := r.th.Number(models.DetectBufferBreach, "critical_pct", 0.5)
	warningPct := r.th.Number(models.DetectBufferBreach, "warning_pct", 0.8)

	ratio := r.cc.Cash / target
	var alerts []models.DetectionAlert

	makeAlert := func(tier string, severity models.AlertSeverity) models.DetectionAlert {
		return models.DetectionAlert{
			UserID:        r.cc.User.ID,
			DetectionType: models.DetectBufferBreach,
			Severity:      severity,
			Title:         fmt.Sprintf("Денежный буфер пробит (%.0f%% от цели)", ratio*100),
			Description: fmt.Sprintf(
				"Остаток %.2f против целевого буфера %.2f (%.1f мес. расходов по %.2f).",
				r.cc.Cash, target, bufferMonths, r.cc.MonthlyBurn),
			CashImpact:   r.cc.Cash - target,
			UrgencyScore: UrgencyScore(severity, 0),
			Context: models.AlertContext{
				Type: models.DetectBufferBreach,
				Buffer: &models.BufferContext{
					Tier:         tier,
					MonthlyBurn:  r.cc.MonthlyBurn,
					TargetBuffer: target,
					CurrentCash:  r.cc.Cash,
				},
			},
		}
	}

	if ratio < criticalPct {
		alerts = append(alerts, makeAlert("critical", models.SeverityEmergency))
	} else if ratio < warningPct {
		alerts = append(alerts, makeAlert("warning", models.SeverityThisWeek))
	}

	return alerts, nil
}

// detectRunwayThreshold считает взлетную полосу: на сколько месяцев хватит
// денег при текущем чистом расходе.
func detectRunwayThreshold(r *runContext) ([]models.DetectionAlert, error) {
	netBurn := r.cc.MonthlyBurn - r.cc.MonthlyRevenue
	if netBurn <= 0 {
		// Компания в плюсе - полоса бесконечна.
		return nil, nil
	}

	runway := r.cc.Cash / netBurn
	criticalMonths := r.th.Floor(models.DetectRunwayThreshold, "critical_months", 2)
	warningMonths := r.th.Floor(models.DetectRunwayThreshold, "warning_months", 4)

	var tier string
	var severity models.AlertSeverity
	switch {
	case runway < criticalMonths:
		tier, severity = "critical", models.SeverityEmergency
	case runway < warningMonths:
		tier, severity = "warning", models.SeverityThisWeek
	default:
		return nil, nil
	}

	return []models.DetectionAlert{{
		UserID:        r.cc.User.ID,
		DetectionType: models.DetectRunwayThreshold,
		Severity:      severity,
		Title:         fmt.Sprintf("Денег хватит на %.1f мес.", runway),
		Description: fmt.Sprintf(
			"Чистый расход %.2f в месяц при остатке %.2f: полоса %.1f мес.",
			netBurn, r.cc.Cash, runway),
		CashImpact:   -(netBurn*criticalMonths - r.cc.Cash),
		UrgencyScore: UrgencyScore(severity, int(runway*30)),
		Context: models.AlertContext{
			Type: models.DetectRunwayThreshold,
			Buffer: &models.BufferContext{
				Tier:         tier,
				MonthlyBurn:  r.cc.MonthlyBurn,
				CurrentCash:  r.cc.Cash,
				RunwayMonths: runway,
			},
		},
	}}, nil
}

// detectPaymentTimingConflict ищет недели, в которые сгрудилось слишком много
// платежей относительно всех денег компании.
func detectPaymentTimingConflict(r *runContext) ([]models.DetectionAlert, error) {
	if r.cc.Cash <= 0 {
		return nil, nil
	}

	tripPct := r.th.TripRatio(models.DetectPaymentTimingConflict, "week_pct", 40)
	emergencyPct := r.th.Number(models.DetectPaymentTimingConflict, "emergency_pct", 60)

	weekStart := startOfWeek(r.cc.Now)
	var alerts []models.DetectionAlert

	for week := 0; week < 4; week++ {
		ws := weekStart.AddDate(0, 0, 7*week)
		we := ws.AddDate(0, 0, 7)

		var weekTotal float64
		for _, s := range r.cc.Upcoming {
			if !s.DueDate.Before(ws) && s.DueDate.Before(we) {
				weekTotal += s.EstimatedAmount
			}
		}

		pct := weekTotal / r.cc.Cash * 100
		if pct < tripPct {
			continue
		}

		severity := models.SeverityUpcoming
		if week == 0 {
			severity = models.SeverityThisWeek
		}
		if pct >= emergencyPct {
			severity = models.SeverityEmergency
		}

		alerts = append(alerts, models.DetectionAlert{
			UserID:        r.cc.User.ID,
			DetectionType: models.DetectPaymentTimingConflict,
			Severity:      severity,
			Title:         fmt.Sprintf("Скопление платежей на неделе %s", ws.Format("02.01")),
			Description: fmt.Sprintf(
				"На неделе с %s к оплате %.2f - это %.0f%% всех денег компании.",
				ws.Format("02.01.2006"), weekTotal, pct),
			CashImpact:   -weekTotal,
			UrgencyScore: UrgencyScore(severity, week*7),
			Context: models.AlertContext{
				Type: models.DetectPaymentTimingConflict,
				TimingConflict: &models.TimingConflictContext{
					WeekStart:      ws,
					WeekObligation: weekTotal,
					CashPercent:    pct,
				},
			},
		})
	}

	return alerts, nil
}

// detectCashDrop сравнивает остаток с восстановленным по платежным событиям
// значением недельной давности.
func detectCashDrop(r *runContext) ([]models.DetectionAlert, error) {
	weekAgo := r.cc.Now.AddDate(0, 0, -7)

	var events []models.PaymentEvent
	if err := r.db.Where("user_id = ? AND status = ? AND payment_date >= ?",
		r.cc.User.ID, models.PaymentCompleted, weekAgo).Find(&events).Error; err != nil {
		return nil, err
	}

	// Остаток неделю назад = текущий остаток минус чистое движение за неделю.
	var net float64
	for _, e := range events {
		net += e.Amount
	}
	previous := r.cc.Cash - net
	if previous <= 0 || r.cc.Cash >= previous {
		return nil, nil
	}

	dropPct := (previous - r.cc.Cash) / previous * 100
	tripPct := r.th.TripRatio(models.DetectCashDrop, "drop_pct", 20)
	if dropPct < tripPct {
		return nil, nil
	}

	severity := models.SeverityThisWeek
	if dropPct >= r.th.Number(models.DetectCashDrop, "emergency_pct", 40) {
		severity = models.SeverityEmergency
	}

	return []models.DetectionAlert{{
		UserID:        r.cc.User.ID,
		DetectionType: models.DetectCashDrop,
		Severity:      severity,
		Title:         fmt.Sprintf("Остаток упал на %.0f%% за неделю", dropPct),
		Description: fmt.Sprintf(
			"Неделю назад на счетах было %.2f, сейчас %.2f.", previous, r.cc.Cash),
		CashImpact:   r.cc.Cash - previous,
		UrgencyScore: UrgencyScore(severity, 0),
		Context: models.AlertContext{
			Type: models.DetectCashDrop,
			CashDrop: &models.CashDropContext{
				PreviousCash: previous,
				CurrentCash:  r.cc.Cash,
				DropPercent:  dropPct,
			},
		},
	}}, nil
}

// startOfWeek возвращает полночь понедельника недели, содержащей t.
func startOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -(weekday - 1))
}
