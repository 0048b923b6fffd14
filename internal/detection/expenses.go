// cashpilot/internal/detection/expenses.go
package detection

import (
	"fmt"

	"cashpilot/models"
)

// detectExpenseSpike сравнивает фактические траты по статье за последние
// 30 дней с ее ожидаемым месячным объемом.
func detectExpenseSpike(r *runContext) ([]models.DetectionAlert, error) {
	tripPct := r.th.TripRatio(models.DetectExpenseSpike, "variance_pct", 25)
	highPct := r.th.Number(models.DetectExpenseSpike, "high_pct", 50)

	var buckets []models.ExpenseBucket
	if err := r.db.Where("user_id = ? AND monthly_amount > 0", r.cc.User.ID).
		Find(&buckets).Error; err != nil {
		return nil, err
	}

	monthAgo := r.cc.Now.AddDate(0, 0, -30)
	var alerts []models.DetectionAlert

	for _, b := range buckets {
		// Фактические траты: завершенные платежные события по графикам
		// договоренностей этой статьи за последние 30 дней.
		var actual float64
		err := r.db.Model(&models.PaymentEvent{}).
			Joins("JOIN obligation_schedules os ON os.id = payment_events.schedule_id").
			Joins("JOIN obligation_agreements oa ON oa.id = os.agreement_id").
			Where("payment_events.user_id = ? AND payment_events.status = ?", r.cc.User.ID, models.PaymentCompleted).
			Where("oa.expense_bucket_id = ?", b.ID).
			Where("payment_events.payment_date >= ?", monthAgo).
			Select("COALESCE(SUM(-payment_events.amount), 0)").
			Scan(&actual).Error
		if err != nil {
			return nil, err
		}
		if actual <= 0 {
			continue
		}

		variancePct := (actual - b.MonthlyAmount) / b.MonthlyAmount * 100
		if variancePct < tripPct {
			continue
		}

		severity := models.SeverityUpcoming
		if variancePct >= highPct {
			severity = models.SeverityThisWeek
		}

		alerts = append(alerts, models.DetectionAlert{
			UserID:        r.cc.User.ID,
			DetectionType: models.DetectExpenseSpike,
			Severity:      severity,
			Title:         fmt.Sprintf("Всплеск расходов: %s +%.0f%%", b.Name, variancePct),
			Description: fmt.Sprintf(
				"По статье «%s» за 30 дней потрачено %.2f при плане %.2f.",
				b.Name, actual, b.MonthlyAmount),
			CashImpact:   -(actual - b.MonthlyAmount),
			UrgencyScore: UrgencyScore(severity, 14),
			Context: models.AlertContext{
				Type: models.DetectExpenseSpike,
				Expense: &models.ExpenseContext{
					BucketID:       b.ID,
					BucketName:     b.Name,
					Category:       b.Category,
					ExpectedAmount: b.MonthlyAmount,
					ActualAmount:   actual,
					VariancePct:    variancePct,
				},
			},
		})
	}

	return alerts, nil
}

// detectSubscriptionCreep следит за тихим разрастанием подписок: суммарная
// месячная стоимость активных подписочных договоренностей не должна
// превышать долю выручки.
func detectSubscriptionCreep(r *runContext) ([]models.DetectionAlert, error) {
	if r.cc.MonthlyRevenue <= 0 {
		return nil, nil
	}
	tripPct := r.th.TripRatio(models.DetectSubscriptionCreep, "revenue_pct", 10)

	var agreements []models.ObligationAgreement
	if err := r.db.Where("user_id = ? AND type = ? AND (end_date IS NULL OR end_date > ?)",
		r.cc.User.ID, models.AgreementSubscription, r.cc.Now).
		Find(&agreements).Error; err != nil {
		return nil, err
	}

	var total float64
	for _, a := range agreements {
		total += monthlyEquivalent(a.BaseAmount, a.Frequency)
	}
	if total <= 0 {
		return nil, nil
	}

	pct := total / r.cc.MonthlyRevenue * 100
	if pct < tripPct {
		return nil, nil
	}

	return []models.DetectionAlert{{
		UserID:        r.cc.User.ID,
		DetectionType: models.DetectSubscriptionCreep,
		Severity:      models.SeverityUpcoming,
		Title:         fmt.Sprintf("Подписки съедают %.0f%% выручки", pct),
		Description: fmt.Sprintf(
			"Активные подписки (%d шт.) стоят %.2f в месяц - %.0f%% месячной выручки.",
			len(agreements), total, pct),
		CashImpact:   -total,
		UrgencyScore: UrgencyScore(models.SeverityUpcoming, 30),
		Context: models.AlertContext{
			Type: models.DetectSubscriptionCreep,
			Expense: &models.ExpenseContext{
				BucketName:     "Подписки",
				Category:       models.CategoryFixedCost,
				ExpectedAmount: r.cc.MonthlyRevenue * tripPct / 100,
				ActualAmount:   total,
				VariancePct:    pct,
			},
		},
	}}, nil
}
