// cashpilot/internal/escalation/engine.go

// Package escalation переоценивает открытые алерты против правил времени и
// состояния и поднимает их уровень. Уровень движется только вверх:
// UPCOMING -> THIS_WEEK -> EMERGENCY, никогда обратно.
package escalation

import (
	"fmt"
	"log/slog"
	"time"

	"cashpilot/internal/detection"
	"cashpilot/internal/notify"
	"cashpilot/models"

	"gorm.io/gorm"
)

// emergencyDeadline - сколько времени остается на реакцию после эскалации
// до EMERGENCY.
const emergencyDeadline = 8 * time.Hour

// escalationRule - одно правило эскалации. Возвращает целевой уровень и
// причину; пустой уровень означает "не сработало".
type escalationRule struct {
	name  string
	apply func(e *evalContext, alert *models.DetectionAlert) (models.AlertSeverity, string)
}

type evalContext struct {
	db   *gorm.DB
	user *models.User
	now  time.Time

	// payrollShortfall - дефицит активного зарплатного алерта (0, если его нет).
	payrollShortfall float64
	// next7Obligations - расходные обязательства ближайших 7 дней.
	next7Obligations float64
}

// rules - правила в порядке приоритета, выигрывает первое сработавшее.
var rules = []escalationRule{
	{
		// Просроченное поступление, закрывающее заметную долю зарплатного
		// дефицита: две проблемы на самом деле одна, и она срочная.
		name: "late_payment_covers_payroll",
		apply: func(e *evalContext, a *models.DetectionAlert) (models.AlertSeverity, string) {
			if a.DetectionType != models.DetectLatePayment || a.Context.LatePayment == nil {
				return "", ""
			}
			if e.payrollShortfall <= 0 {
				return "", ""
			}
			coverage := a.Context.LatePayment.CausingAmount / e.payrollShortfall
			if coverage >= 0.2 {
				return models.SeverityEmergency, fmt.Sprintf(
					"Просроченные поступления покрывают %.0f%% зарплатного дефицита", coverage*100)
			}
			return "", ""
		},
	},
	{
		name: "deadline_within_3_days",
		apply: func(e *evalContext, a *models.DetectionAlert) (models.AlertSeverity, string) {
			if a.Deadline == nil {
				return "", ""
			}
			if a.Deadline.Sub(e.now) <= 72*time.Hour {
				return models.SeverityEmergency, "До дедлайна меньше 3 дней"
			}
			return "", ""
		},
	},
	{
		// Алерт уровня THIS_WEEK, на который пользователь два дня не реагирует.
		name: "stale_this_week",
		apply: func(e *evalContext, a *models.DetectionAlert) (models.AlertSeverity, string) {
			if a.Severity != models.SeverityThisWeek || a.Status != models.AlertActive {
				return "", ""
			}
			if e.now.Sub(a.CreatedAt) >= 48*time.Hour {
				return models.SeverityEmergency, "Алерт открыт более 2 дней без реакции"
			}
			return "", ""
		},
	},
	{
		name: "cash_below_week_obligations",
		apply: func(e *evalContext, a *models.DetectionAlert) (models.AlertSeverity, string) {
			if e.user.CashBalance < e.next7Obligations*1.1 && e.next7Obligations > 0 {
				return models.SeverityEmergency, fmt.Sprintf(
					"Остаток %.2f ниже обязательств ближайших 7 дней с запасом (%.2f)",
					e.user.CashBalance, e.next7Obligations*1.1)
			}
			return "", ""
		},
	},
	{
		// Скопление платежей поднимает UPCOMING максимум до THIS_WEEK,
		// не до EMERGENCY.
		name: "cluster_over_40_pct",
		apply: func(e *evalContext, a *models.DetectionAlert) (models.AlertSeverity, string) {
			if a.Severity != models.SeverityUpcoming || a.Context.TimingConflict == nil {
				return "", ""
			}
			if a.Context.TimingConflict.CashPercent > 40 {
				return models.SeverityThisWeek, fmt.Sprintf(
					"Недельное скопление платежей составляет %.0f%% денег",
					a.Context.TimingConflict.CashPercent)
			}
			return "", ""
		},
	},
}

// RunEscalationCheck переоценивает все открытые алерты пользователя.
// Каждый алерт обрабатывается best-effort: ошибка одного логируется,
// проход продолжается, итог содержит счетчики attempted/succeeded.
func RunEscalationCheck(db *gorm.DB, user *models.User) ([]models.DetectionAlert, error) {
	var alerts []models.DetectionAlert
	if err := db.Where("user_id = ? AND status IN ?", user.ID, models.OpenAlertStatuses).
		Find(&alerts).Error; err != nil {
		return nil, err
	}

	e, err := buildEvalContext(db, user, alerts)
	if err != nil {
		return nil, err
	}

	var escalated []models.DetectionAlert
	attempted, succeeded := 0, 0

	for i := range alerts {
		alert := &alerts[i]
		if alert.Severity == models.SeverityEmergency {
			// Выше некуда.
			continue
		}
		attempted++

		target, rule, reason := firstMatch(e, alert)
		if target == "" || target.Rank() <= alert.Severity.Rank() {
			succeeded++
			continue
		}

		if err := applyEscalation(db, alert, target, rule, reason, e.now); err != nil {
			slog.Error("Не удалось применить эскалацию", "alert_id", alert.ID, "error", err)
			continue
		}
		succeeded++
		escalated = append(escalated, *alert)
		notify.AlertEscalated(db, alert, reason)
	}

	slog.Info("Проход эскалации завершен",
		"user_id", user.ID, "attempted", attempted, "succeeded", succeeded, "escalated", len(escalated))
	return escalated, nil
}

func buildEvalContext(db *gorm.DB, user *models.User, alerts []models.DetectionAlert) (*evalContext, error) {
	e := &evalContext{db: db, user: user, now: time.Now()}

	for i := range alerts {
		a := &alerts[i]
		if a.DetectionType == models.DetectPayrollSafety && a.Context.PayrollSafety != nil {
			if s := a.Context.PayrollSafety.ShortfallVsBuffer; s > e.payrollShortfall {
				e.payrollShortfall = s
			}
		}
	}

	cc, err := detection.BuildCashContext(db, user, e.now)
	if err != nil {
		return nil, err
	}
	in7 := e.now.AddDate(0, 0, 7)
	for _, s := range cc.Upcoming {
		if !s.DueDate.After(in7) && !s.DueDate.Before(e.now) {
			e.next7Obligations += s.EstimatedAmount
		}
	}
	return e, nil
}

func firstMatch(e *evalContext, alert *models.DetectionAlert) (models.AlertSeverity, string, string) {
	for _, r := range rules {
		if target, reason := r.apply(e, alert); target != "" {
			return target, r.name, reason
		}
	}
	return "", "", ""
}

// applyEscalation поднимает уровень, дополняет неизменяемую историю эскалаций
// и при EMERGENCY ужимает дедлайн алерта и связанных незакрытых действий.
func applyEscalation(db *gorm.DB, alert *models.DetectionAlert, target models.AlertSeverity, rule, reason string, now time.Time) error {
	entry := models.EscalationEntry{
		At:           now,
		Rule:         rule,
		FromSeverity: alert.Severity,
		ToSeverity:   target,
		Reason:       reason,
	}
	// История только дополняется, прежние записи не трогаются.
	alert.Context.EscalationHistory = append(alert.Context.EscalationHistory, entry)
	alert.Severity = target
	alert.EscalationCount++

	if target == models.SeverityEmergency {
		deadline := now.Add(emergencyDeadline)
		if alert.Deadline == nil || alert.Deadline.After(deadline) {
			alert.Deadline = &deadline
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(alert).Error; err != nil {
			return err
		}
		if target != models.SeverityEmergency {
			return nil
		}
		// Ужимаем дедлайн незакрытых действий по этому алерту.
		deadline := now.Add(emergencyDeadline)
		return tx.Model(&models.PreparedAction{}).
			Where("alert_id = ? AND status IN ?", alert.ID,
				[]models.ActionStatus{models.ActionPendingApproval, models.ActionApproved, models.ActionEdited}).
			Where("deadline IS NULL OR deadline > ?", deadline).
			Update("deadline", deadline).Error
	})
}
