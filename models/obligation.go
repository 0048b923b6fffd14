// cashpilot/models/obligation.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// Трехслойная модель обязательств - канонический источник правды обо всех
// будущих и свершившихся движениях денег:
//
//	ObligationAgreement (ПОЧЕМУ)  - договоренность, из-за которой деньги двигаются;
//	ObligationSchedule  (КОГДА)   - один ожидаемый платеж, порожденный договоренностью;
//	PaymentEvent        (РЕАЛЬНО) - фактическое подтвержденное движение денег.

// AgreementType - тип договоренности.
type AgreementType string

const (
	AgreementVendorBill   AgreementType = "vendor_bill"
	AgreementSubscription AgreementType = "subscription"
	AgreementPayroll      AgreementType = "payroll"
	AgreementTax          AgreementType = "tax"
	AgreementRevenue      AgreementType = "revenue"
	AgreementRent         AgreementType = "rent"
	AgreementLoan         AgreementType = "loan"
	AgreementOther        AgreementType = "other"
)

// AmountType - способ определения суммы.
type AmountType string

const (
	AmountFixed     AmountType = "fixed"
	AmountVariable  AmountType = "variable"
	AmountMilestone AmountType = "milestone"
)

// Frequency - периодичность порождения платежей.
type Frequency string

const (
	FreqWeekly    Frequency = "weekly"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
	FreqAnnual    Frequency = "annual"
	FreqOnce      Frequency = "once"
)

// ObligationCategory - категория для приоритизации при нехватке денег.
// Порядок важности: payroll > tax > fixed_cost > variable_cost.
type ObligationCategory string

const (
	CategoryPayroll      ObligationCategory = "payroll"
	CategoryTax          ObligationCategory = "tax"
	CategoryFixedCost    ObligationCategory = "fixed_cost"
	CategoryVariableCost ObligationCategory = "variable_cost"
	CategoryRevenue      ObligationCategory = "revenue"
)

// ConfidenceLevel - насколько сумма подкреплена реальным учетным документом,
// а не ручной оценкой. Иерархия фиксированная: HIGH - привязан повторяющийся
// счет в учетной системе, MEDIUM - привязан контрагент без повторяющегося
// документа, LOW - ручной ввод.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Weight возвращает вес уровня уверенности для взвешенной агрегации прогноза.
func (c ConfidenceLevel) Weight() float64 {
	switch c {
	case ConfidenceHigh:
		return 1.0
	case ConfidenceMedium:
		return 0.8
	default:
		return 0.5
	}
}

// AgreementSource - откуда появилась договоренность.
type AgreementSource string

const (
	SourceManual   AgreementSource = "manual"
	SourceSync     AgreementSource = "sync"
	SourceScenario AgreementSource = "scenario"
)

// ObligationAgreement - слой "ПОЧЕМУ". Никогда не удаляется физически:
// при расторжении проставляется EndDate.
type ObligationAgreement struct {
	gorm.Model
	UserID uint `json:"userId" gorm:"index;not null"`

	Type       AgreementType      `json:"type" gorm:"not null"`
	AmountType AmountType         `json:"amountType" gorm:"default:'fixed'"`
	BaseAmount float64            `json:"baseAmount" gorm:"type:numeric(12,2)"`
	Currency   string             `json:"currency" gorm:"default:'USD'"`
	Frequency  Frequency          `json:"frequency" gorm:"default:'monthly'"`
	StartDate  time.Time          `json:"startDate"`
	EndDate    *time.Time         `json:"endDate"`
	Category   ObligationCategory `json:"category" gorm:"index"`
	Confidence ConfidenceLevel    `json:"confidence" gorm:"default:'low'"`
	Source     AgreementSource    `json:"source" gorm:"default:'manual'"`

	Name string `json:"name"`

	// Необязательные привязки к сущностям контекста.
	ClientID        *uint `json:"clientId" gorm:"index"`
	VendorID        *uint `json:"vendorId" gorm:"index"`
	ExpenseBucketID *uint `json:"expenseBucketId" gorm:"index"`

	Schedules []ObligationSchedule `json:"schedules,omitempty" gorm:"foreignKey:AgreementID"`
}

// IsIncome сообщает, приносит ли договоренность деньги (а не тратит).
func (a *ObligationAgreement) IsIncome() bool {
	return a.Category == CategoryRevenue
}

// ScheduleStatus - статус ожидаемого платежа.
type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "scheduled"
	ScheduleDue       ScheduleStatus = "due"
	SchedulePaid      ScheduleStatus = "paid"
	ScheduleOverdue   ScheduleStatus = "overdue"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// EstimateSource - источник оценки суммы платежа.
type EstimateSource string

const (
	EstimateFromAgreement EstimateSource = "agreement"
	EstimateFromInvoice   EstimateSource = "invoice"
	EstimateFromHistory   EstimateSource = "history"
)

// ObligationSchedule - слой "КОГДА": один ожидаемый платеж.
// Инвариант: DueDate монотонно растет внутри одной договоренности;
// переход в "paid" происходит только через сверку с PaymentEvent.
type ObligationSchedule struct {
	gorm.Model
	AgreementID uint                `json:"agreementId" gorm:"index;not null"`
	Agreement   ObligationAgreement `json:"-"`

	DueDate         time.Time       `json:"dueDate" gorm:"index"`
	EstimatedAmount float64         `json:"estimatedAmount" gorm:"type:numeric(12,2)"`
	Status          ScheduleStatus  `json:"status" gorm:"default:'scheduled';index"`
	Confidence      ConfidenceLevel `json:"confidence" gorm:"default:'low'"`
	EstimateSource  EstimateSource  `json:"estimateSource" gorm:"default:'agreement'"`

	PaidAt *time.Time `json:"paidAt"`

	// ExternalID - идентификатор документа во внешней учетной системе,
	// защищает от дублей при синхронизации.
	ExternalID *string    `json:"externalId" gorm:"index"`
	LastSyncAt *time.Time `json:"lastSyncAt"`
}

// PaymentStatus - статус фактического движения денег.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentReversed  PaymentStatus = "reversed"
)

// PaymentEvent - слой "РЕАЛЬНО": подтвержденное движение денег из банковской
// выписки или ручной сверки. Ссылка на Schedule нужна для расчета отклонения
// факта от плана.
type PaymentEvent struct {
	gorm.Model
	UserID     uint                `json:"userId" gorm:"index;not null"`
	ScheduleID *uint               `json:"scheduleId" gorm:"index"`
	Schedule   *ObligationSchedule `json:"-"`

	// Amount - знаковое движение: поступление положительное, расход отрицательный.
	Amount      float64       `json:"amount" gorm:"type:numeric(12,2)"`
	PaymentDate time.Time     `json:"paymentDate"`
	Status      PaymentStatus `json:"status" gorm:"default:'completed'"`

	// Variance - отклонение факта от ожидаемой суммы графика (факт - план).
	Variance float64 `json:"variance" gorm:"type:numeric(12,2)"`

	Source     string  `json:"source"` // "bank_feed", "manual"
	ExternalID *string `json:"externalId" gorm:"index"`
}
