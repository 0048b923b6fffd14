// cashpilot/internal/execution/engine.go

// Package execution ведет жизненный цикл одобренного действия: одобрение с
// возможной правкой, исполнение (ручное и автоматическое), пропуск и
// переопределение. Каждое исполнение оставляет ExecutionRecord - свидетельство
// того, что именно ушло наружу и чем закончилось.
package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cashpilot/internal/notify"
	"cashpilot/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotPending возвращается при одобрении действия не в статусе ожидания.
	ErrNotPending = errors.New("действие уже не ожидает одобрения")
	// ErrNotApproved возвращается при исполнении неодобренного действия.
	ErrNotApproved = errors.New("действие не одобрено, исполнение невозможно")
	// ErrTerminal возвращается при любой операции над закрытым действием.
	ErrTerminal = errors.New("жизненный цикл действия уже закрыт")
	// ErrOptionMismatch возвращается, когда опция не принадлежит действию.
	ErrOptionMismatch = errors.New("опция не принадлежит этому действию")
)

// Approve одобряет действие с выбранной опцией. Непустые правки edits
// накладываются на содержимое опции, и действие получает статус EDITED:
// система всегда отличает "одобрено как есть" от "одобрено с правками".
func Approve(db *gorm.DB, actionID, optionID uint, edits *models.PreparedContent) (*models.PreparedAction, error) {
	var action models.PreparedAction
	if err := db.Preload("Options").First(&action, actionID).Error; err != nil {
		return nil, fmt.Errorf("действие не найдено: %w", err)
	}
	if action.Status.IsTerminal() {
		return nil, ErrTerminal
	}
	if action.Status != models.ActionPendingApproval {
		return nil, ErrNotPending
	}

	option := findOption(&action, optionID)
	if option == nil {
		return nil, ErrOptionMismatch
	}

	now := time.Now()
	status := models.ActionApproved
	if edits != nil {
		status = models.ActionEdited
		applyEdits(&option.PreparedContent, edits)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if edits != nil {
			if err := tx.Model(option).Update("prepared_content", option.PreparedContent).Error; err != nil {
				return err
			}
		}
		return tx.Model(&action).Updates(map[string]interface{}{
			"status":             status,
			"approved_option_id": optionID,
			"approved_at":        now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	action.Status = status
	action.ApprovedOptionID = &optionID
	action.ApprovedAt = &now
	slog.Info("Действие одобрено", "action_id", actionID, "option_id", optionID, "edited", edits != nil)
	return &action, nil
}

// Execute исполняет одобренное действие системой: отправляет подготовленное
// содержимое наружу и записывает свидетельство. Неудача отправки - это
// ExecutionRecord с результатом failed, а не ошибка вызывающему: факт попытки
// важнее ее исхода.
func Execute(db *gorm.DB, actionID uint) (*models.ExecutionRecord, error) {
	return execute(db, actionID, models.ExecManual)
}

// AutoExecute исполняет действие автоматически, предварительно прогнав его
// через ворота автоматизации. Неподходящее действие не исполняется, причина
// возвращается текстом.
func AutoExecute(db *gorm.DB, actionID uint) (*models.ExecutionRecord, string, error) {
	var action models.PreparedAction
	if err := db.Preload("Options").First(&action, actionID).Error; err != nil {
		return nil, "", fmt.Errorf("действие не найдено: %w", err)
	}

	eligible, reason := CheckAutomationEligibility(db, &action)
	if !eligible {
		return nil, reason, nil
	}

	record, err := execute(db, actionID, models.ExecAutomated)
	return record, "", err
}

func execute(db *gorm.DB, actionID uint, method models.ExecutionMethod) (*models.ExecutionRecord, error) {
	var action models.PreparedAction
	if err := db.Preload("Options").First(&action, actionID).Error; err != nil {
		return nil, fmt.Errorf("действие не найдено: %w", err)
	}
	if action.Status.IsTerminal() {
		return nil, ErrTerminal
	}
	if action.Status != models.ActionApproved && action.Status != models.ActionEdited {
		return nil, ErrNotApproved
	}
	if action.ApprovedOptionID == nil {
		return nil, ErrNotApproved
	}
	option := findOption(&action, *action.ApprovedOptionID)
	if option == nil {
		return nil, ErrOptionMismatch
	}

	now := time.Now()
	record := models.ExecutionRecord{
		UserID:          action.UserID,
		ActionID:        action.ID,
		OptionID:        action.ApprovedOptionID,
		Method:          method,
		ExecutedContent: option.PreparedContent,
		ExecutedAt:      &now,
	}

	// Внешняя отправка. Неудача фиксируется в свидетельстве.
	if ref, err := deliver(db, &action, option); err != nil {
		record.Result = models.ExecFailed
		record.ErrorMessage = err.Error()
		slog.Error("Исполнение действия завершилось неудачей",
			"action_id", action.ID, "method", method, "error", err)
	} else {
		record.Result = models.ExecSuccess
		record.ExternalRef = ref
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if record.Result == models.ExecFailed {
			// Неудача отправки не закрывает действие: оно остается
			// одобренным и может быть исполнено повторно.
			return nil
		}
		if err := tx.Model(&action).Update("status", models.ActionExecuted).Error; err != nil {
			return err
		}
		return tx.Model(&models.DetectionAlert{}).Where("id = ?", action.AlertID).
			Update("status", models.AlertResolved).Error
	})
	if err != nil {
		return nil, err
	}

	if record.Result == models.ExecSuccess {
		notify.PushEvent(action.UserID, "action_executed", &action)
	}
	return &record, nil
}

// MarkExecuted закрывает действие, исполненное пользователем вручную вне
// системы. Свидетельство пишется без внешней отправки.
func MarkExecuted(db *gorm.DB, actionID uint, note string) (*models.ExecutionRecord, error) {
	var action models.PreparedAction
	if err := db.Preload("Options").First(&action, actionID).Error; err != nil {
		return nil, fmt.Errorf("действие не найдено: %w", err)
	}
	if action.Status.IsTerminal() {
		return nil, ErrTerminal
	}

	now := time.Now()
	record := models.ExecutionRecord{
		UserID:     action.UserID,
		ActionID:   action.ID,
		OptionID:   action.ApprovedOptionID,
		Method:     models.ExecManual,
		Result:     models.ExecSuccess,
		ExecutedAt: &now,
	}
	if action.ApprovedOptionID != nil {
		if option := findOption(&action, *action.ApprovedOptionID); option != nil {
			record.ExecutedContent = option.PreparedContent
		}
	}
	if note != "" {
		record.ExecutedContent.Notes = note
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if err := tx.Model(&action).Update("status", models.ActionExecuted).Error; err != nil {
			return err
		}
		return tx.Model(&models.DetectionAlert{}).Where("id = ?", action.AlertID).
			Update("status", models.AlertResolved).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Skip закрывает действие без исполнения. Алерт возвращается в ACTIVE:
// проблема не решена, и детекция увидит ее снова.
func Skip(db *gorm.DB, actionID uint, reason string) error {
	return closeWithout(db, actionID, models.ActionSkipped, reason)
}

// Override закрывает действие как переопределенное: пользователь решил
// проблему иначе, чем предлагала система. Алерт закрывается.
func Override(db *gorm.DB, actionID uint, reason string) error {
	var action models.PreparedAction
	if err := db.First(&action, actionID).Error; err != nil {
		return fmt.Errorf("действие не найдено: %w", err)
	}
	if action.Status.IsTerminal() {
		return ErrTerminal
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&action).Updates(map[string]interface{}{
			"status":          models.ActionOverridden,
			"problem_summary": appendReason(action.ProblemSummary, reason),
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.DetectionAlert{}).Where("id = ?", action.AlertID).
			Update("status", models.AlertDismissed).Error
	})
}

func closeWithout(db *gorm.DB, actionID uint, status models.ActionStatus, reason string) error {
	var action models.PreparedAction
	if err := db.First(&action, actionID).Error; err != nil {
		return fmt.Errorf("действие не найдено: %w", err)
	}
	if action.Status.IsTerminal() {
		return ErrTerminal
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&action).Updates(map[string]interface{}{
			"status":          status,
			"problem_summary": appendReason(action.ProblemSummary, reason),
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.DetectionAlert{}).Where("id = ?", action.AlertID).
			Update("status", models.AlertActive).Error
	})
}

// deliver отправляет содержимое рекомендованной опции наружу. Сейчас
// поддерживается email-подобная доставка через зарегистрированные каналы;
// действия без исходящего содержимого считаются внутренними и "доставляются"
// записью в журнал.
func deliver(db *gorm.DB, action *models.PreparedAction, option *models.ActionOption) (string, error) {
	content := option.PreparedContent
	if content.EmailSubject == "" && content.EmailBody == "" {
		slog.Info("Действие исполнено без внешней отправки",
			"action_id", action.ID, "type", action.ActionType)
		return "", nil
	}

	if err := notify.SendDirect(db, action.UserID, content.EmailSubject, content.EmailBody, &action.ID); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

func findOption(action *models.PreparedAction, optionID uint) *models.ActionOption {
	for i := range action.Options {
		if action.Options[i].ID == optionID {
			return &action.Options[i]
		}
	}
	return nil
}

// applyEdits накладывает непустые поля правок на содержимое опции.
func applyEdits(dst, edits *models.PreparedContent) {
	if edits.EmailSubject != "" {
		dst.EmailSubject = edits.EmailSubject
	}
	if edits.EmailBody != "" {
		dst.EmailBody = edits.EmailBody
	}
	if edits.Tone != "" {
		dst.Tone = edits.Tone
	}
	if edits.DelayDays != 0 {
		dst.DelayDays = edits.DelayDays
	}
	if edits.NewDate != nil {
		dst.NewDate = edits.NewDate
	}
	if edits.DrawAmount != 0 {
		dst.DrawAmount = edits.DrawAmount
	}
	if edits.CutAmount != 0 {
		dst.CutAmount = edits.CutAmount
	}
	if edits.TargetAmount != 0 {
		dst.TargetAmount = edits.TargetAmount
	}
	if edits.Notes != "" {
		dst.Notes = edits.Notes
	}
}

func appendReason(summary, reason string) string {
	if reason == "" {
		return summary
	}
	return summary + "\n\nПричина закрытия: " + reason
}
