// cashpilot/models/scenario.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ScenarioType - 11 типов сценариев "что если".
type ScenarioType string

const (
	ScenarioClientLoss      ScenarioType = "CLIENT_LOSS"
	ScenarioClientGain      ScenarioType = "CLIENT_GAIN"
	ScenarioClientChange    ScenarioType = "CLIENT_CHANGE"
	ScenarioHiring          ScenarioType = "HIRING"
	ScenarioFiring          ScenarioType = "FIRING"
	ScenarioContractorGain  ScenarioType = "CONTRACTOR_GAIN"
	ScenarioContractorLoss  ScenarioType = "CONTRACTOR_LOSS"
	ScenarioExpenseIncrease ScenarioType = "EXPENSE_INCREASE"
	ScenarioExpenseDecrease ScenarioType = "EXPENSE_DECREASE"
	ScenarioPaymentDelayIn  ScenarioType = "PAYMENT_DELAY_IN"
	ScenarioPaymentDelayOut ScenarioType = "PAYMENT_DELAY_OUT"
)

// AllScenarioTypes перечисляет закрытый набор типов сценариев.
var AllScenarioTypes = []ScenarioType{
	ScenarioClientLoss, ScenarioClientGain, ScenarioClientChange,
	ScenarioHiring, ScenarioFiring,
	ScenarioContractorGain, ScenarioContractorLoss,
	ScenarioExpenseIncrease, ScenarioExpenseDecrease,
	ScenarioPaymentDelayIn, ScenarioPaymentDelayOut,
}

// Valid проверяет принадлежность к закрытому набору.
func (t ScenarioType) Valid() bool {
	for _, v := range AllScenarioTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ScenarioStage - стадия конвейера сценария. Стадии проходятся строго по
// порядку; стадия либо завершается, либо возвращает список вопросов и
// останавливает конвейер до ответов пользователя.
type ScenarioStage string

const (
	StageScope           ScenarioStage = "SCOPE"
	StageParams          ScenarioStage = "PARAMS"
	StageLinkedPrompts   ScenarioStage = "LINKED_PROMPTS"
	StageCanonicalDeltas ScenarioStage = "CANONICAL_DELTAS"
	StageOverlayForecast ScenarioStage = "OVERLAY_FORECAST"
	StageRuleEval        ScenarioStage = "RULE_EVAL"
	StageDone            ScenarioStage = "DONE"
)

// StageOrder - порядок прохождения стадий.
var StageOrder = []ScenarioStage{
	StageScope, StageParams, StageLinkedPrompts,
	StageCanonicalDeltas, StageOverlayForecast, StageRuleEval, StageDone,
}

// ScenarioStatus - статус сценария.
type ScenarioStatus string

const (
	ScenarioDraft     ScenarioStatus = "DRAFT"
	ScenarioCollected ScenarioStatus = "COLLECTED"
	ScenarioSimulated ScenarioStatus = "SIMULATED"
	ScenarioConfirmed ScenarioStatus = "CONFIRMED"
	ScenarioDiscarded ScenarioStatus = "DISCARDED"
)

// ScenarioPrompt - один вопрос пользователю, без ответа на который конвейер
// не продвигается дальше.
type ScenarioPrompt struct {
	Key        string   `json:"key"`
	Question   string   `json:"question"`
	AnswerType string   `json:"answerType"` // "number" | "date" | "choice" | "entity"
	Options    []string `json:"options,omitempty"`
	Required   bool     `json:"required"`
}

// PromptList - список вопросов в JSONB.
type PromptList []ScenarioPrompt

func (p PromptList) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *PromptList) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, p)
}

// ScheduleDraft - гипотетический график платежа внутри дельты.
type ScheduleDraft struct {
	AgreementID     *uint              `json:"agreementId,omitempty"`
	Category        ObligationCategory `json:"category"`
	DueDate         time.Time          `json:"dueDate"`
	EstimatedAmount float64            `json:"estimatedAmount"`
	Confidence      ConfidenceLevel    `json:"confidence"`
}

// ScheduleUpdate - гипотетическое изменение существующего графика.
type ScheduleUpdate struct {
	ScheduleID uint       `json:"scheduleId"`
	NewDueDate *time.Time `json:"newDueDate,omitempty"`
	NewAmount  *float64   `json:"newAmount,omitempty"`
	Cancel     bool       `json:"cancel,omitempty"`
}

// AgreementDraft - гипотетическая новая договоренность.
type AgreementDraft struct {
	Name       string             `json:"name"`
	Type       AgreementType      `json:"type"`
	Category   ObligationCategory `json:"category"`
	BaseAmount float64            `json:"baseAmount"`
	Frequency  Frequency          `json:"frequency"`
	StartDate  time.Time          `json:"startDate"`
	EndDate    *time.Time         `json:"endDate,omitempty"`
	ClientID   *uint              `json:"clientId,omitempty"`
	VendorID   *uint              `json:"vendorId,omitempty"`
}

// AgreementEnd - гипотетическое завершение договоренности.
type AgreementEnd struct {
	AgreementID uint      `json:"agreementId"`
	EndDate     time.Time `json:"endDate"`
}

// ScenarioDelta - неизменяемое описание гипотетических изменений канонических
// данных. Дельта НИКОГДА не применяется к базе до явного подтверждения
// сценария: до этого она существует только как наложение на прогноз.
type ScenarioDelta struct {
	CreatedAgreements []AgreementDraft `json:"createdAgreements,omitempty"`
	EndedAgreements   []AgreementEnd   `json:"endedAgreements,omitempty"`
	CreatedSchedules  []ScheduleDraft  `json:"createdSchedules,omitempty"`
	UpdatedSchedules  []ScheduleUpdate `json:"updatedSchedules,omitempty"`
}

func (d ScenarioDelta) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *ScenarioDelta) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, d)
}

// IsEmpty сообщает, описывает ли дельта хоть какие-то изменения.
func (d ScenarioDelta) IsEmpty() bool {
	return len(d.CreatedAgreements) == 0 && len(d.EndedAgreements) == 0 &&
		len(d.CreatedSchedules) == 0 && len(d.UpdatedSchedules) == 0
}

// ScenarioDefinition - состояние мастера сценария от черновика до
// подтверждения или отказа.
type ScenarioDefinition struct {
	gorm.Model
	UserID uint `json:"userId" gorm:"index;not null"`

	// Reference - внешний идентификатор для UI мастера.
	Reference string `json:"reference" gorm:"unique;not null"`

	ScenarioType ScenarioType   `json:"scenarioType" gorm:"not null"`
	EntryPath    string         `json:"entryPath"` // "wizard" | "assistant" | "alert"
	Status       ScenarioStatus `json:"status" gorm:"default:'DRAFT'"`

	CurrentStage    ScenarioStage `json:"currentStage" gorm:"default:'SCOPE'"`
	CompletedStages StringArray   `json:"completedStages" gorm:"type:jsonb"`

	// Parameters - собранные ответы пользователя по ключам вопросов.
	Parameters     JSONB      `json:"parameters" gorm:"type:jsonb"`
	PendingPrompts PromptList `json:"pendingPrompts" gorm:"type:jsonb"`

	Delta ScenarioDelta `json:"delta" gorm:"type:jsonb"`

	// OverlayResult - снимок наложенного прогноза и итогов проверки правил
	// для показа в мастере.
	OverlayResult JSONB `json:"overlayResult" gorm:"type:jsonb"`

	ConfirmedAt *time.Time `json:"confirmedAt"`
	DiscardedAt *time.Time `json:"discardedAt"`
}
