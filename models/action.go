// cashpilot/models/action.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ActionType - тип подготовленного действия.
type ActionType string

const (
	ActionInvoiceFollowUp    ActionType = "INVOICE_FOLLOW_UP"
	ActionVendorDelay        ActionType = "VENDOR_DELAY"
	ActionPayrollContingency ActionType = "PAYROLL_CONTINGENCY"
	ActionCreditDraw         ActionType = "CREDIT_DRAW"
	ActionExpenseCut         ActionType = "EXPENSE_CUT"
	ActionTaxPlan            ActionType = "TAX_PLAN"
	ActionClientRetention    ActionType = "CLIENT_RETENTION"
	ActionClientDiversify    ActionType = "CLIENT_DIVERSIFY"
	ActionReceivablesSweep   ActionType = "RECEIVABLES_SWEEP"
	ActionSubscriptionAudit  ActionType = "SUBSCRIPTION_AUDIT"
	ActionCashReview         ActionType = "CASH_REVIEW"
	ActionTimingRebalance    ActionType = "TIMING_REBALANCE"
)

// ActionStatus - статус карточки действия. Терминальные статусы
// (EXECUTED/SKIPPED/OVERRIDDEN) необратимы: откат возможен только
// созданием нового действия.
type ActionStatus string

const (
	ActionPendingApproval ActionStatus = "PENDING_APPROVAL"
	ActionApproved        ActionStatus = "APPROVED"
	ActionEdited          ActionStatus = "EDITED"
	ActionExecuted        ActionStatus = "EXECUTED"
	ActionSkipped         ActionStatus = "SKIPPED"
	ActionOverridden      ActionStatus = "OVERRIDDEN"
)

// IsTerminal сообщает, закрыт ли жизненный цикл действия.
func (s ActionStatus) IsTerminal() bool {
	return s == ActionExecuted || s == ActionSkipped || s == ActionOverridden
}

// RiskLevel - качественный уровень риска опции.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// PreparedContent - полезная нагрузка опции: черновик письма, параметры
// переноса, идентификаторы затронутых сущностей. Идентификаторы сущностей
// (clientId/vendorId/bucketId) читает алгоритм связывания действий.
type PreparedContent struct {
	ClientID *uint `json:"clientId,omitempty"`
	VendorID *uint `json:"vendorId,omitempty"`
	BucketID *uint `json:"bucketId,omitempty"`

	EmailSubject string `json:"emailSubject,omitempty"`
	EmailBody    string `json:"emailBody,omitempty"`
	Tone         string `json:"tone,omitempty"` // "soft" | "professional" | "firm"

	DelayDays    int        `json:"delayDays,omitempty"`
	NewDate      *time.Time `json:"newDate,omitempty"`
	DrawAmount   float64    `json:"drawAmount,omitempty"`
	CutAmount    float64    `json:"cutAmount,omitempty"`
	TargetAmount float64    `json:"targetAmount,omitempty"`

	Notes string `json:"notes,omitempty"`
}

func (p PreparedContent) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *PreparedContent) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, p)
}

// PreparedAction - карточка "одна проблема - одно действие" с ранжированными
// опциями решения.
type PreparedAction struct {
	gorm.Model
	UserID  uint `json:"userId" gorm:"index;not null"`
	AlertID uint `json:"alertId" gorm:"index;not null"`

	ActionType ActionType   `json:"actionType" gorm:"index;not null"`
	Status     ActionStatus `json:"status" gorm:"index;default:'PENDING_APPROVAL'"`

	Title          string `json:"title"`
	ProblemSummary string `json:"problemSummary"`
	Context        JSONB  `json:"context" gorm:"type:jsonb"`

	UrgencyScore int        `json:"urgencyScore"`
	Deadline     *time.Time `json:"deadline"`

	Options []ActionOption `json:"options,omitempty" gorm:"foreignKey:ActionID"`

	// ApprovedOptionID - опция, выбранная пользователем при одобрении.
	ApprovedOptionID *uint      `json:"approvedOptionId"`
	ApprovedAt       *time.Time `json:"approvedAt"`
}

// ActionOption - одна опция решения с независимой оценкой риска.
type ActionOption struct {
	gorm.Model
	ActionID uint `json:"actionId" gorm:"index;not null"`

	Title       string    `json:"title"`
	Description string    `json:"description"`
	RiskLevel   RiskLevel `json:"riskLevel"`

	// RiskScore - композитный риск 0-100 и его три взвешенные компоненты.
	RiskScore        float64 `json:"riskScore"`
	RelationshipRisk float64 `json:"relationshipRisk"`
	OperationalRisk  float64 `json:"operationalRisk"`
	FinancialCost    float64 `json:"financialCost" gorm:"type:numeric(12,2)"`

	CashImpact         float64 `json:"cashImpact" gorm:"type:numeric(12,2)"`
	SuccessProbability float64 `json:"successProbability"`

	PreparedContent PreparedContent `json:"preparedContent" gorm:"type:jsonb"`

	DisplayOrder  int  `json:"displayOrder"`
	IsRecommended bool `json:"isRecommended"`
}

// LinkType - тип связи между двумя действиями.
type LinkType string

const (
	LinkResolves   LinkType = "resolves"
	LinkConflicts  LinkType = "conflicts"
	LinkSequence   LinkType = "sequence"
	LinkDependsOn  LinkType = "depends_on"
	LinkCascadesTo LinkType = "cascades_to"
	LinkSameEntity LinkType = "same_entity"
)

// LinkedAction - типизированное ребро между двумя действиями с человеческим
// объяснением. Граф связей показывается пользователю, автоматического
// разрешения конфликтов нет.
type LinkedAction struct {
	gorm.Model
	UserID       uint     `json:"userId" gorm:"index;not null"`
	FromActionID uint     `json:"fromActionId" gorm:"index;not null"`
	ToActionID   uint     `json:"toActionId" gorm:"index;not null"`
	LinkType     LinkType `json:"linkType" gorm:"not null"`
	Reason       string   `json:"reason"`
}
