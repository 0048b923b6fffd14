// cashpilot/internal/detection/payroll.go
package detection

import (
	"fmt"

	"cashpilot/models"
)

// detectPayrollSafety проверяет каждую предстоящую выплату зарплаты: после
// всех обязательств, наступающих строго раньше нее, и самой зарплаты на
// счетах должен остаться буфер не меньше доли от суммы зарплаты.
func detectPayrollSafety(r *runContext) ([]models.DetectionAlert, error) {
	daysBefore := int(r.th.Number(models.DetectPayrollSafety, "days_before_payroll", 14))
	minBufferPct := r.th.Floor(models.DetectPayrollSafety, "min_buffer_pct", 0.2)

	horizon := r.cc.Now.AddDate(0, 0, daysBefore)
	var alerts []models.DetectionAlert

	for _, payroll := range r.cc.Upcoming {
		if payroll.Agreement.Category != models.CategoryPayroll {
			continue
		}
		if payroll.DueDate.After(horizon) || payroll.DueDate.Before(r.cc.Now) {
			continue
		}

		// Все расходные обязательства строго раньше даты зарплаты.
		var obligationsBefore float64
		for _, s := range r.cc.Upcoming {
			if s.ID != payroll.ID && s.DueDate.Before(payroll.DueDate) {
				obligationsBefore += s.EstimatedAmount
			}
		}

		cashBefore := r.cc.Cash - obligationsBefore
		cashAfter := cashBefore - payroll.EstimatedAmount
		required := payroll.EstimatedAmount * minBufferPct

		if cashAfter >= required {
			continue
		}

		severity := models.SeverityThisWeek
		if cashAfter < 0 {
			severity = models.SeverityEmergency
		}
		days := int(payroll.DueDate.Sub(r.cc.Now).Hours() / 24)
		due := payroll.DueDate

		alerts = append(alerts, models.DetectionAlert{
			UserID:        r.cc.User.ID,
			DetectionType: models.DetectPayrollSafety,
			Severity:      severity,
			Title:         fmt.Sprintf("Риск по зарплате %s", due.Format("02.01")),
			Description: fmt.Sprintf(
				"После обязательств до даты зарплаты останется %.2f, после самой зарплаты - %.2f при требуемом буфере %.2f.",
				cashBefore, cashAfter, required),
			CashImpact:   cashAfter - required,
			UrgencyScore: UrgencyScore(severity, days),
			Deadline:     &due,
			Context: models.AlertContext{
				Type: models.DetectPayrollSafety,
				PayrollSafety: &models.PayrollSafetyContext{
					PayrollScheduleID: payroll.ID,
					PayrollDate:       payroll.DueDate,
					PayrollAmount:     payroll.EstimatedAmount,
					CashBeforePayroll: cashBefore,
					CashAfterPayroll:  cashAfter,
					RequiredBuffer:    required,
					ShortfallVsBuffer: required - cashAfter,
					ObligationsBefore: obligationsBefore,
				},
			},
		})
	}

	return alerts, nil
}

// detectTaxDeadline следит за приближающимися налоговыми платежами: после
// всех обязательств до налога включительно должен остаться резерв.
func detectTaxDeadline(r *runContext) ([]models.DetectionAlert, error) {
	daysBefore := int(r.th.Number(models.DetectTaxDeadline, "days_before", 14))
	reservePct := r.th.Floor(models.DetectTaxDeadline, "reserve_pct", 0.25)

	horizon := r.cc.Now.AddDate(0, 0, daysBefore)
	var alerts []models.DetectionAlert

	for _, tax := range r.cc.Upcoming {
		if tax.Agreement.Category != models.CategoryTax {
			continue
		}
		if tax.DueDate.After(horizon) || tax.DueDate.Before(r.cc.Now) {
			continue
		}

		var obligationsThrough float64
		for _, s := range r.cc.Upcoming {
			if !s.DueDate.After(tax.DueDate) {
				obligationsThrough += s.EstimatedAmount
			}
		}
		cashAfter := r.cc.Cash - obligationsThrough

		if cashAfter >= tax.EstimatedAmount*reservePct {
			continue
		}

		days := int(tax.DueDate.Sub(r.cc.Now).Hours() / 24)
		severity := models.SeverityThisWeek
		if cashAfter < 0 || days <= 7 {
			severity = models.SeverityEmergency
		}
		due := tax.DueDate

		alerts = append(alerts, models.DetectionAlert{
			UserID:        r.cc.User.ID,
			DetectionType: models.DetectTaxDeadline,
			Severity:      severity,
			Title:         fmt.Sprintf("Налоговый платеж %s без резерва", due.Format("02.01")),
			Description: fmt.Sprintf(
				"После налогового платежа %.2f останется %.2f - меньше требуемого резерва.",
				tax.EstimatedAmount, cashAfter),
			CashImpact:   cashAfter - tax.EstimatedAmount*reservePct,
			UrgencyScore: UrgencyScore(severity, days),
			Deadline:     &due,
			Context: models.AlertContext{
				Type: models.DetectTaxDeadline,
				TaxDeadline: &models.TaxDeadlineContext{
					ScheduleID: tax.ID,
					DueDate:    tax.DueDate,
					Amount:     tax.EstimatedAmount,
					CashAfter:  cashAfter,
				},
			},
		})
	}

	return alerts, nil
}
