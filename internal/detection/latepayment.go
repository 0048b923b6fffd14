// cashpilot/internal/detection/latepayment.go
package detection

import (
	"fmt"
	"time"

	"cashpilot/models"
)

// detectLatePayment - правило про обязательства, а не про счета: оно отвечает
// не на вопрос "кто нам должен", а на вопрос "какая НАША выплата останется
// без денег из-за того, что нам не заплатили".
//
// Алгоритм:
//  1. собрать просроченные поступления (деньги, которые должны были прийти);
//  2. собрать предстоящие (до 14 дней) расходные обязательства;
//  3. идти по обязательствам в порядке дат, списывая бегущий остаток;
//  4. первая уходящая в минус категория фиксируется с привязкой к
//     конкретным просроченным поступлениям (causing payments);
//  5. один алерт на каждую недофинансированную категорию, заголовок -
//     вокруг обязательства под угрозой, а не вокруг просроченного счета.
//
// Категории оцениваются независимо: бегущий остаток продолжает списывать
// обязательства после обнаружения дефицита, поэтому каждая следующая
// категория видит реальный накопленный минус, а не повторно "снятый".
func detectLatePayment(r *runContext) ([]models.DetectionAlert, error) {
	if len(r.cc.OverdueRevenue) == 0 {
		return nil, nil
	}

	windowDays := int(r.th.Number(models.DetectLatePayment, "window_days", 14))
	horizon := r.cc.Now.AddDate(0, 0, windowDays)

	// Сумма и идентификаторы просроченных поступлений.
	var overdueIDs []uint
	var overdueTotal float64
	for _, s := range r.cc.OverdueRevenue {
		overdueIDs = append(overdueIDs, s.ID)
		overdueTotal += s.EstimatedAmount
	}

	running := r.cc.Cash
	flagged := make(map[models.ObligationCategory]bool)
	var alerts []models.DetectionAlert

	for _, s := range r.cc.Upcoming {
		if s.DueDate.After(horizon) {
			break
		}
		cat := s.Agreement.Category
		running -= s.EstimatedAmount

		if running >= 0 || flagged[cat] {
			continue
		}
		flagged[cat] = true

		shortfall := -running
		// Дефицит объясним просрочкой лишь в пределах ее суммы.
		causing := shortfall
		if causing > overdueTotal {
			causing = overdueTotal
		}
		if causing <= 0 {
			// Денег не хватает даже без учета просрочки - это не алерт о
			// просрочке, его поймают буферные правила.
			continue
		}

		severity := latePaymentSeverity(cat, s.DueDate, r.cc.Now)
		days := int(s.DueDate.Sub(r.cc.Now).Hours() / 24)

		alerts = append(alerts, models.DetectionAlert{
			UserID:        r.cc.User.ID,
			DetectionType: models.DetectLatePayment,
			Severity:      severity,
			Title:         latePaymentTitle(cat, s.DueDate),
			Description: fmt.Sprintf(
				"Из-за просроченных поступлений на %.2f не хватает %.2f на обязательства категории «%s» к %s.",
				overdueTotal, shortfall, categoryLabel(cat), s.DueDate.Format("02.01.2006")),
			CashImpact:   -shortfall,
			UrgencyScore: UrgencyScore(severity, days),
			Deadline:     &s.DueDate,
			Context: models.AlertContext{
				Type: models.DetectLatePayment,
				LatePayment: &models.LatePaymentContext{
					ObligationCategory: cat,
					ImpactType:         "underfunded",
					ShortfallAmount:    shortfall,
					ObligationDueDate:  s.DueDate,
					CausingPaymentIDs:  overdueIDs,
					CausingAmount:      causing,
				},
			},
		})
	}

	return alerts, nil
}

// latePaymentSeverity - правила уровня: зарплата всегда EMERGENCY; налоги -
// EMERGENCY за 7 дней и меньше; остальное - EMERGENCY за 3 дня и меньше.
func latePaymentSeverity(cat models.ObligationCategory, due, now time.Time) models.AlertSeverity {
	days := int(due.Sub(now).Hours() / 24)
	switch cat {
	case models.CategoryPayroll:
		return models.SeverityEmergency
	case models.CategoryTax:
		if days <= 7 {
			return models.SeverityEmergency
		}
		return models.SeverityThisWeek
	default:
		if days <= 3 {
			return models.SeverityEmergency
		}
		return models.SeverityThisWeek
	}
}

func latePaymentTitle(cat models.ObligationCategory, due time.Time) string {
	return fmt.Sprintf("Под угрозой: %s %s", categoryLabel(cat), due.Format("02.01"))
}

// categoryLabel - человеческое название категории для заголовков.
func categoryLabel(cat models.ObligationCategory) string {
	switch cat {
	case models.CategoryPayroll:
		return "зарплата"
	case models.CategoryTax:
		return "налоги"
	case models.CategoryFixedCost:
		return "постоянные расходы"
	case models.CategoryVariableCost:
		return "переменные расходы"
	case models.CategoryRevenue:
		return "поступления"
	}
	return string(cat)
}
