// cashpilot/internal/scenario/pipeline.go

// Package scenario реализует конвейер моделирования "что если": строгую
// последовательность стадий от выбора охвата до наложения на прогноз и
// проверки правил. Канонические данные не меняются ни на одной стадии -
// единственный путь мутации это явное подтверждение сценария.
package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cashpilot/internal/forecast"
	"cashpilot/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrUnknownScenarioType возвращается для типа вне закрытого набора.
	ErrUnknownScenarioType = errors.New("неизвестный тип сценария")
	// ErrScenarioClosed возвращается при работе с завершенным сценарием.
	ErrScenarioClosed = errors.New("сценарий уже подтвержден или отброшен")
	// ErrNotSimulated возвращается при подтверждении непросчитанного сценария.
	ErrNotSimulated = errors.New("сценарий еще не просчитан до конца")
)

// Result - состояние конвейера после шага: либо вопросы, на которые нужно
// ответить, либо продвинутый сценарий.
type Result struct {
	Scenario       *models.ScenarioDefinition `json:"scenario"`
	PendingPrompts models.PromptList          `json:"pendingPrompts,omitempty"`
	Finished       bool                       `json:"finished"`
}

// Start создает черновик сценария и сразу пытается продвинуть конвейер:
// сценарии без вопросов доходят до просчета за один вызов.
func Start(db *gorm.DB, user *models.User, scenarioType models.ScenarioType, entryPath string) (*Result, error) {
	if !scenarioType.Valid() {
		return nil, ErrUnknownScenarioType
	}
	if _, ok := handlers[scenarioType]; !ok {
		return nil, ErrUnknownScenarioType
	}

	sc := &models.ScenarioDefinition{
		UserID:       user.ID,
		Reference:    uuid.NewString(),
		ScenarioType: scenarioType,
		EntryPath:    entryPath,
		Status:       models.ScenarioDraft,
		CurrentStage: models.StageScope,
		Parameters:   models.JSONB{},
	}
	if err := db.Create(sc).Error; err != nil {
		return nil, err
	}
	return advance(db, user, sc)
}

// Resume принимает ответы на вопросы и продолжает конвейер с текущей стадии.
func Resume(db *gorm.DB, user *models.User, reference string, answers map[string]interface{}) (*Result, error) {
	sc, err := byReference(db, user.ID, reference)
	if err != nil {
		return nil, err
	}
	if sc.Status == models.ScenarioConfirmed || sc.Status == models.ScenarioDiscarded {
		return nil, ErrScenarioClosed
	}

	if sc.Parameters == nil {
		sc.Parameters = models.JSONB{}
	}
	for k, v := range answers {
		sc.Parameters[k] = v
	}

	return advance(db, user, sc)
}

// advance гонит конвейер вперед, пока стадия не попросит ответов или
// сценарий не будет просчитан.
func advance(db *gorm.DB, user *models.User, sc *models.ScenarioDefinition) (*Result, error) {
	h := handlers[sc.ScenarioType]

	for sc.CurrentStage != models.StageDone {
		prompts, err := runStage(db, user, sc, h)
		if err != nil {
			return nil, err
		}
		if len(prompts) > 0 {
			sc.PendingPrompts = prompts
			if err := save(db, sc); err != nil {
				return nil, err
			}
			return &Result{Scenario: sc, PendingPrompts: prompts}, nil
		}

		sc.CompletedStages = append(sc.CompletedStages, string(sc.CurrentStage))
		sc.CurrentStage = nextStage(sc.CurrentStage)
		sc.PendingPrompts = nil
	}

	sc.Status = models.ScenarioSimulated
	if err := save(db, sc); err != nil {
		return nil, err
	}
	slog.Info("Сценарий просчитан", "reference", sc.Reference, "type", sc.ScenarioType)
	return &Result{Scenario: sc, Finished: true}, nil
}

// runStage выполняет одну стадию. Непустой список вопросов означает паузу.
func runStage(db *gorm.DB, user *models.User, sc *models.ScenarioDefinition, h handler) (models.PromptList, error) {
	switch sc.CurrentStage {
	case models.StageScope:
		if prompts := unanswered(h.scopePrompts(), sc.Parameters); len(prompts) > 0 {
			return prompts, nil
		}
		sc.Status = models.ScenarioDraft
		return nil, nil

	case models.StageParams:
		if prompts := unanswered(h.paramPrompts(), sc.Parameters); len(prompts) > 0 {
			return prompts, nil
		}
		sc.Status = models.ScenarioCollected
		return nil, nil

	case models.StageLinkedPrompts:
		// Уточняющие вопросы зависят от уже собранных ответов.
		if prompts := unanswered(h.linkedPrompts(sc.Parameters), sc.Parameters); len(prompts) > 0 {
			return prompts, nil
		}
		return nil, nil

	case models.StageCanonicalDeltas:
		delta, err := h.buildDelta(db, user, sc.Parameters)
		if err != nil {
			return nil, fmt.Errorf("построение дельты: %w", err)
		}
		if delta.IsEmpty() {
			return nil, errors.New("сценарий не описывает ни одного изменения")
		}
		sc.Delta = *delta
		return nil, nil

	case models.StageOverlayForecast:
		base, err := forecast.CalculateForecast(db, user, forecast.DefaultHorizonWeeks)
		if err != nil {
			return nil, err
		}
		overlay, err := ComputeOverlayForecast(db, base, &sc.Delta)
		if err != nil {
			return nil, err
		}
		sc.OverlayResult = models.JSONB{
			"baseSummary":     base.Summary,
			"scenarioSummary": overlay.Summary,
			"weeks":           overlay.Weeks,
		}
		return nil, nil

	case models.StageRuleEval:
		overlay, err := rebuildOverlay(db, user, sc)
		if err != nil {
			return nil, err
		}
		results := EvaluateRules(db, user, overlay)
		sc.OverlayResult["rules"] = results
		return nil, nil
	}
	return nil, fmt.Errorf("неизвестная стадия %s", sc.CurrentStage)
}

// Commit применяет дельту сценария к каноническим данным. Единственное место
// во всем конвейере, которое пишет в обязательства, - и только по явному
// подтверждению пользователя.
func Commit(db *gorm.DB, user *models.User, reference string) (*models.ScenarioDefinition, error) {
	sc, err := byReference(db, user.ID, reference)
	if err != nil {
		return nil, err
	}
	if sc.Status == models.ScenarioConfirmed || sc.Status == models.ScenarioDiscarded {
		return nil, ErrScenarioClosed
	}
	if sc.Status != models.ScenarioSimulated {
		return nil, ErrNotSimulated
	}

	now := time.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := applyDelta(tx, user, &sc.Delta); err != nil {
			return err
		}
		sc.Status = models.ScenarioConfirmed
		sc.ConfirmedAt = &now
		return tx.Save(sc).Error
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Сценарий подтвержден и применен", "reference", sc.Reference, "type", sc.ScenarioType)
	return sc, nil
}

// Discard отбрасывает сценарий. Канонические данные не трогаются вообще.
func Discard(db *gorm.DB, user *models.User, reference string) (*models.ScenarioDefinition, error) {
	sc, err := byReference(db, user.ID, reference)
	if err != nil {
		return nil, err
	}
	if sc.Status == models.ScenarioConfirmed || sc.Status == models.ScenarioDiscarded {
		return nil, ErrScenarioClosed
	}

	now := time.Now()
	sc.Status = models.ScenarioDiscarded
	sc.DiscardedAt = &now
	if err := save(db, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// applyDelta материализует дельту: новые договоренности с их графиками,
// правки и отмены существующих графиков, завершение договоренностей.
func applyDelta(tx *gorm.DB, user *models.User, delta *models.ScenarioDelta) error {
	for _, draft := range delta.CreatedAgreements {
		agreement := models.ObligationAgreement{
			UserID:     user.ID,
			Name:       draft.Name,
			Type:       draft.Type,
			Category:   draft.Category,
			BaseAmount: draft.BaseAmount,
			Frequency:  draft.Frequency,
			StartDate:  draft.StartDate,
			EndDate:    draft.EndDate,
			ClientID:   draft.ClientID,
			VendorID:   draft.VendorID,
			Source:     models.SourceScenario,
			Confidence: models.ConfidenceLow,
		}
		if err := tx.Create(&agreement).Error; err != nil {
			return err
		}
	}

	for _, end := range delta.EndedAgreements {
		if err := tx.Model(&models.ObligationAgreement{}).
			Where("id = ? AND user_id = ?", end.AgreementID, user.ID).
			Update("end_date", end.EndDate).Error; err != nil {
			return err
		}
		// Будущие графики завершенной договоренности отменяются.
		if err := tx.Model(&models.ObligationSchedule{}).
			Where("agreement_id = ? AND due_date > ? AND status IN ?",
				end.AgreementID, end.EndDate,
				[]models.ScheduleStatus{models.ScheduleScheduled, models.ScheduleDue}).
			Update("status", models.ScheduleCancelled).Error; err != nil {
			return err
		}
	}

	for _, draft := range delta.CreatedSchedules {
		if draft.AgreementID == nil {
			continue
		}
		schedule := models.ObligationSchedule{
			AgreementID:     *draft.AgreementID,
			DueDate:         draft.DueDate,
			EstimatedAmount: draft.EstimatedAmount,
			Confidence:      draft.Confidence,
			Status:          models.ScheduleScheduled,
		}
		if err := tx.Create(&schedule).Error; err != nil {
			return err
		}
	}

	for _, upd := range delta.UpdatedSchedules {
		updates := map[string]interface{}{}
		if upd.Cancel {
			updates["status"] = models.ScheduleCancelled
		}
		if upd.NewDueDate != nil {
			updates["due_date"] = *upd.NewDueDate
		}
		if upd.NewAmount != nil {
			updates["estimated_amount"] = *upd.NewAmount
		}
		if len(updates) == 0 {
			continue
		}
		if err := tx.Model(&models.ObligationSchedule{}).
			Where("id = ?", upd.ScheduleID).Updates(updates).Error; err != nil {
			return err
		}
	}

	return nil
}

// rebuildOverlay восстанавливает наложенный прогноз для стадии правил.
func rebuildOverlay(db *gorm.DB, user *models.User, sc *models.ScenarioDefinition) (*forecast.Forecast, error) {
	base, err := forecast.CalculateForecast(db, user, forecast.DefaultHorizonWeeks)
	if err != nil {
		return nil, err
	}
	return ComputeOverlayForecast(db, base, &sc.Delta)
}

func byReference(db *gorm.DB, userID uint, reference string) (*models.ScenarioDefinition, error) {
	var sc models.ScenarioDefinition
	if err := db.Where("user_id = ? AND reference = ?", userID, reference).
		First(&sc).Error; err != nil {
		return nil, fmt.Errorf("сценарий не найден: %w", err)
	}
	return &sc, nil
}

func save(db *gorm.DB, sc *models.ScenarioDefinition) error {
	return db.Save(sc).Error
}

func nextStage(current models.ScenarioStage) models.ScenarioStage {
	for i, s := range models.StageOrder {
		if s == current && i+1 < len(models.StageOrder) {
			return models.StageOrder[i+1]
		}
	}
	return models.StageDone
}

// unanswered отбирает обязательные вопросы без ответов в параметрах.
func unanswered(prompts models.PromptList, params models.JSONB) models.PromptList {
	var missing models.PromptList
	for _, p := range prompts {
		if !p.Required {
			continue
		}
		if _, ok := params[p.Key]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
