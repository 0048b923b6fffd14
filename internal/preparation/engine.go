// cashpilot/internal/preparation/engine.go

// Package preparation превращает алерты детекции в карточки действий:
// собирает контекст сущностей, выбирает стратегию, строит 1-3 ранжированные
// опции с независимой оценкой риска и связывает карточки между собой.
package preparation

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"cashpilot/internal/notify"
	"cashpilot/models"

	"gorm.io/gorm"
)

// ErrAlertNotOpen возвращается при попытке подготовить действие по
// закрытому алерту.
var ErrAlertNotOpen = errors.New("алерт уже закрыт, подготовка действия невозможна")

// builder - агент подготовки для одного типа детекции.
type builder func(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error)

var builders = map[models.DetectionType]builder{
	models.DetectLatePayment:           buildInvoiceFollowUp,
	models.DetectPayrollSafety:         buildPayrollContingency,
	models.DetectBufferBreach:          buildCreditDraw,
	models.DetectRunwayThreshold:       buildExpenseCut,
	models.DetectPaymentTimingConflict: buildTimingRebalance,
	models.DetectClientConcentration:   buildClientDiversify,
	models.DetectClientDegradation:     buildClientRetention,
	models.DetectExpenseSpike:          buildExpenseCut,
	models.DetectSubscriptionCreep:     buildSubscriptionAudit,
	models.DetectTaxDeadline:           buildTaxPlan,
	models.DetectReceivablesAging:      buildReceivablesSweep,
	models.DetectCashDrop:              buildCashReview,
}

// PrepareFromAlert строит карточку действия по алерту. Повторный вызов для
// алерта с живой карточкой возвращает существующую карточку, не плодя дубли.
func PrepareFromAlert(db *gorm.DB, alertID uint) (*models.PreparedAction, error) {
	var alert models.DetectionAlert
	if err := db.First(&alert, alertID).Error; err != nil {
		return nil, fmt.Errorf("алерт не найден: %w", err)
	}

	open := false
	for _, s := range models.OpenAlertStatuses {
		if alert.Status == s {
			open = true
			break
		}
	}
	if !open {
		return nil, ErrAlertNotOpen
	}

	// Идемпотентность: по алерту уже есть незакрытая карточка.
	var existing models.PreparedAction
	err := db.Preload("Options").
		Where("alert_id = ? AND status IN ?", alert.ID,
			[]models.ActionStatus{models.ActionPendingApproval, models.ActionApproved, models.ActionEdited}).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	var user models.User
	if err := db.First(&user, alert.UserID).Error; err != nil {
		return nil, err
	}

	fn, ok := builders[alert.DetectionType]
	if !ok {
		return nil, fmt.Errorf("для типа детекции %s нет агента подготовки", alert.DetectionType)
	}

	action, options, err := fn(db, &user, &alert)
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("агент %s не построил ни одной опции", alert.DetectionType)
	}

	scoreAndRank(options, user.MonthlyRevenueRef)

	action.UserID = user.ID
	action.AlertID = alert.ID
	action.Status = models.ActionPendingApproval
	action.UrgencyScore = alert.UrgencyScore
	if action.Deadline == nil {
		action.Deadline = alert.Deadline
	}

	// Карточка, опции и смена статуса алерта - одна транзакция.
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(action).Error; err != nil {
			return err
		}
		for i := range options {
			options[i].ActionID = action.ID
		}
		if err := tx.Create(&options).Error; err != nil {
			return err
		}
		return tx.Model(&alert).Update("status", models.AlertPreparing).Error
	})
	if err != nil {
		return nil, err
	}
	action.Options = options

	// Уведомление - вне транзакции, неудача не откатывает карточку.
	notify.ActionPrepared(db, action)

	return action, nil
}

// PrepareAllActive прогоняет подготовку по всем активным алертам пользователя.
// Каждый алерт best-effort: ошибка логируется, проход продолжается.
func PrepareAllActive(db *gorm.DB, user *models.User) ([]models.PreparedAction, error) {
	var alerts []models.DetectionAlert
	if err := db.Where("user_id = ? AND status = ?", user.ID, models.AlertActive).
		Order("urgency_score DESC").
		Find(&alerts).Error; err != nil {
		return nil, err
	}

	var actions []models.PreparedAction
	attempted, succeeded := 0, 0
	for i := range alerts {
		attempted++
		action, err := PrepareFromAlert(db, alerts[i].ID)
		if err != nil {
			slog.Error("Не удалось подготовить действие", "alert_id", alerts[i].ID, "error", err)
			continue
		}
		succeeded++
		actions = append(actions, *action)
	}

	// Связывание карточек - отдельный best-effort проход.
	if _, err := DetectLinks(db, user.ID); err != nil {
		slog.Error("Проход связывания действий завершился ошибкой", "user_id", user.ID, "error", err)
	}

	slog.Info("Подготовка действий завершена",
		"user_id", user.ID, "attempted", attempted, "succeeded", succeeded)
	return actions, nil
}

// scoreAndRank считает композитный риск каждой опции, ранжирует опции по
// возрастанию риска и помечает рекомендованную.
func scoreAndRank(options []models.ActionOption, monthlyRevenueRef float64) {
	for i := range options {
		o := &options[i]
		o.RiskScore = CompositeRisk(o.RelationshipRisk, o.OperationalRisk, o.FinancialCost, monthlyRevenueRef)
		o.RiskLevel = RiskLevelFor(o.RiskScore)
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].RiskScore < options[j].RiskScore
	})
	for i := range options {
		options[i].DisplayOrder = i + 1
		options[i].IsRecommended = i == 0
	}
}
