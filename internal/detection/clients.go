// cashpilot/internal/detection/clients.go
package detection

import (
	"fmt"

	"cashpilot/models"
)

// detectClientConcentration ищет клиентов, на которых завязана опасная доля
// выручки: потеря такого клиента - готовый кассовый разрыв.
func detectClientConcentration(r *runContext) ([]models.DetectionAlert, error) {
	if r.cc.MonthlyRevenue <= 0 {
		return nil, nil
	}

	tripPct := r.th.TripRatio(models.DetectClientConcentration, "revenue_pct", 30)
	highPct := r.th.Number(models.DetectClientConcentration, "high_pct", 50)

	var clients []models.Client
	if err := r.db.Where("user_id = ? AND status = ?", r.cc.User.ID, models.ClientActive).
		Find(&clients).Error; err != nil {
		return nil, err
	}

	var alerts []models.DetectionAlert
	for _, cl := range clients {
		monthly := monthlyEquivalent(cl.Amount, cl.BillingCycle)
		pct := monthly / r.cc.MonthlyRevenue * 100
		if pct < tripPct {
			continue
		}

		severity := models.SeverityUpcoming
		if pct >= highPct {
			severity = models.SeverityThisWeek
		}

		alerts = append(alerts, models.DetectionAlert{
			UserID:        r.cc.User.ID,
			DetectionType: models.DetectClientConcentration,
			Severity:      severity,
			Title:         fmt.Sprintf("Концентрация выручки: %s дает %.0f%%", cl.Name, pct),
			Description: fmt.Sprintf(
				"Клиент «%s» приносит %.2f в месяц - %.0f%% всей выручки. Потеря клиента обрушит денежный поток.",
				cl.Name, monthly, pct),
			CashImpact:   -monthly,
			UrgencyScore: UrgencyScore(severity, 30),
			Context: models.AlertContext{
				Type: models.DetectClientConcentration,
				Client: &models.ClientContext{
					ClientID:       cl.ID,
					ClientName:     cl.Name,
					RevenuePercent: pct,
				},
			},
		})
	}

	return alerts, nil
}

// detectClientDegradation ловит ухудшение платежной дисциплины клиента:
// средняя задержка выросла выше порога, а по клиенту висят неоплаченные счета.
func detectClientDegradation(r *runContext) ([]models.DetectionAlert, error) {
	delayDays := r.th.Floor(models.DetectClientDegradation, "late_payment_days", 10)

	var clients []models.Client
	if err := r.db.Where("user_id = ? AND status = ? AND avg_payment_delay_days >= ?",
		r.cc.User.ID, models.ClientActive, delayDays).Find(&clients).Error; err != nil {
		return nil, err
	}

	var alerts []models.DetectionAlert
	for _, cl := range clients {
		var openInvoices int64
		if err := r.db.Model(&models.OutstandingInvoice{}).
			Where("user_id = ? AND client_id = ? AND paid = false", r.cc.User.ID, cl.ID).
			Count(&openInvoices).Error; err != nil {
			return nil, err
		}
		if openInvoices == 0 {
			continue
		}

		monthly := monthlyEquivalent(cl.Amount, cl.BillingCycle)
		pct := 0.0
		if r.cc.MonthlyRevenue > 0 {
			pct = monthly / r.cc.MonthlyRevenue * 100
		}

		severity := models.SeverityUpcoming
		if pct >= 20 {
			// Деградация крупного клиента - уже проблема этой недели.
			severity = models.SeverityThisWeek
		}

		alerts = append(alerts, models.DetectionAlert{
			UserID:        r.cc.User.ID,
			DetectionType: models.DetectClientDegradation,
			Severity:      severity,
			Title:         fmt.Sprintf("Платежная дисциплина: %s", cl.Name),
			Description: fmt.Sprintf(
				"Клиент «%s» платит в среднем с задержкой %.0f дн., открытых счетов: %d.",
				cl.Name, cl.AvgPaymentDelayDays, openInvoices),
			CashImpact:   -monthly,
			UrgencyScore: UrgencyScore(severity, int(cl.AvgPaymentDelayDays)),
			Context: models.AlertContext{
				Type: models.DetectClientDegradation,
				Client: &models.ClientContext{
					ClientID:       cl.ID,
					ClientName:     cl.Name,
					RevenuePercent: pct,
					AvgDelayDays:   cl.AvgPaymentDelayDays,
				},
			},
		})
	}

	return alerts, nil
}

// detectReceivablesAging оценивает старение дебиторки целиком: сколько
// зависло, насколько давно и как это соотносится с остатком.
func detectReceivablesAging(r *runContext) ([]models.DetectionAlert, error) {
	if len(r.cc.OverdueRevenue) == 0 {
		return nil, nil
	}

	var total float64
	oldestDays := 0
	for _, s := range r.cc.OverdueRevenue {
		total += s.EstimatedAmount
		if d := int(r.cc.Now.Sub(s.DueDate).Hours() / 24); d > oldestDays {
			oldestDays = d
		}
	}

	tripPct := r.th.TripRatio(models.DetectReceivablesAging, "cash_pct", 15)
	oldDays := int(r.th.Number(models.DetectReceivablesAging, "old_days", 30))

	pctOfCash := 0.0
	if r.cc.Cash > 0 {
		pctOfCash = total / r.cc.Cash * 100
	}
	if pctOfCash < tripPct && oldestDays < oldDays {
		return nil, nil
	}

	severity := models.SeverityUpcoming
	if pctOfCash >= 30 {
		severity = models.SeverityThisWeek
	}

	return []models.DetectionAlert{{
		UserID:        r.cc.User.ID,
		DetectionType: models.DetectReceivablesAging,
		Severity:      severity,
		Title:         fmt.Sprintf("Дебиторка стареет: %.2f просрочено", total),
		Description: fmt.Sprintf(
			"Просрочено %d поступлений на %.2f, самое старое - %d дн. назад.",
			len(r.cc.OverdueRevenue), total, oldestDays),
		CashImpact:   total,
		UrgencyScore: UrgencyScore(severity, 0),
		Context: models.AlertContext{
			Type: models.DetectReceivablesAging,
			Receivables: &models.ReceivablesContext{
				OverdueTotal: total,
				OverdueCount: len(r.cc.OverdueRevenue),
				OldestDays:   oldestDays,
			},
		},
	}}, nil
}
