// cashpilot/models/detection.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DetectionType - фиксированный набор из 12 правил детекции. Набор закрыт:
// пользователь настраивает пороги, но не сочиняет новые типы правил.
type DetectionType string

const (
	DetectLatePayment           DetectionType = "LATE_PAYMENT"
	DetectPayrollSafety         DetectionType = "PAYROLL_SAFETY"
	DetectBufferBreach          DetectionType = "BUFFER_BREACH"
	DetectRunwayThreshold       DetectionType = "RUNWAY_THRESHOLD"
	DetectPaymentTimingConflict DetectionType = "PAYMENT_TIMING_CONFLICT"
	DetectClientConcentration   DetectionType = "CLIENT_CONCENTRATION"
	DetectClientDegradation     DetectionType = "CLIENT_PAYMENT_DEGRADATION"
	DetectExpenseSpike          DetectionType = "EXPENSE_SPIKE"
	DetectSubscriptionCreep     DetectionType = "SUBSCRIPTION_CREEP"
	DetectTaxDeadline           DetectionType = "TAX_DEADLINE"
	DetectReceivablesAging      DetectionType = "RECEIVABLES_AGING"
	DetectCashDrop              DetectionType = "CASH_DROP"
)

// AllDetectionTypes - порядок прогона правил в полной детекции.
var AllDetectionTypes = []DetectionType{
	DetectPayrollSafety,
	DetectBufferBreach,
	DetectLatePayment,
	DetectTaxDeadline,
	DetectRunwayThreshold,
	DetectPaymentTimingConflict,
	DetectCashDrop,
	DetectReceivablesAging,
	DetectClientConcentration,
	DetectClientDegradation,
	DetectExpenseSpike,
	DetectSubscriptionCreep,
}

// CriticalDetectionTypes - правила для частого (каждые несколько минут) прогона.
var CriticalDetectionTypes = []DetectionType{
	DetectPayrollSafety,
	DetectBufferBreach,
}

// Valid проверяет, что тип входит в закрытый набор.
func (t DetectionType) Valid() bool {
	for _, v := range AllDetectionTypes {
		if v == t {
			return true
		}
	}
	return false
}

// AlertSeverity - уровень срочности алерта. EMERGENCY > THIS_WEEK > UPCOMING.
type AlertSeverity string

const (
	SeverityEmergency AlertSeverity = "EMERGENCY"
	SeverityThisWeek  AlertSeverity = "THIS_WEEK"
	SeverityUpcoming  AlertSeverity = "UPCOMING"
)

// Rank возвращает числовой ранг для сравнения уровней.
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityEmergency:
		return 3
	case SeverityThisWeek:
		return 2
	case SeverityUpcoming:
		return 1
	}
	return 0
}

// AlertStatus - статус жизненного цикла алерта. Алерты никогда не удаляются,
// меняется только статус.
type AlertStatus string

const (
	AlertActive       AlertStatus = "ACTIVE"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertPreparing    AlertStatus = "PREPARING"
	AlertResolved     AlertStatus = "RESOLVED"
	AlertDismissed    AlertStatus = "DISMISSED"
)

// OpenAlertStatuses - статусы, при которых алерт считается "открытым" и
// участвует в дедупликации.
var OpenAlertStatuses = []AlertStatus{AlertActive, AlertAcknowledged, AlertPreparing}

// DetectionRule - персональная настройка одного правила детекции.
type DetectionRule struct {
	gorm.Model
	UserID        uint          `json:"userId" gorm:"index;not null"`
	DetectionType DetectionType `json:"detectionType" gorm:"not null"`
	Enabled       bool          `json:"enabled" gorm:"default:true"`

	// Thresholds - переопределения числовых порогов правила
	// (например {"buffer_months": 3, "critical_pct": 0.5}).
	Thresholds JSONB `json:"thresholds" gorm:"type:jsonb"`

	// CustomFormula - необязательное govaluate-выражение, вычисляющее порог
	// из метрик {cash, monthly_burn, multiplier}. Переопределяет только
	// значение порога, но не логику правила.
	CustomFormula string `json:"customFormula"`
}

// EscalationEntry - одна запись в неизменяемой истории эскалаций алерта.
// История только дополняется, прежние записи никогда не перезаписываются.
type EscalationEntry struct {
	At           time.Time     `json:"at"`
	Rule         string        `json:"rule"`
	FromSeverity AlertSeverity `json:"fromSeverity"`
	ToSeverity   AlertSeverity `json:"toSeverity"`
	Reason       string        `json:"reason"`
}

// --- Типизированные полезные нагрузки контекста по типам детекции ---

// LatePaymentContext - контекст алерта о недофинансированной категории
// обязательств из-за просроченных поступлений.
type LatePaymentContext struct {
	ObligationCategory ObligationCategory `json:"obligationCategory"`
	ImpactType         string             `json:"impactType"`
	ShortfallAmount    float64            `json:"shortfallAmount"`
	ObligationDueDate  time.Time          `json:"obligationDueDate"`
	// CausingPaymentIDs - просроченные графики поступлений, из-за которых
	// категория осталась без покрытия.
	CausingPaymentIDs []uint  `json:"causingPaymentIds"`
	CausingAmount     float64 `json:"causingAmount"`
}

// PayrollSafetyContext - контекст алерта о рискованной выплате зарплаты.
type PayrollSafetyContext struct {
	PayrollScheduleID  uint      `json:"payrollScheduleId"`
	PayrollDate        time.Time `json:"payrollDate"`
	PayrollAmount      float64   `json:"payrollAmount"`
	CashBeforePayroll  float64   `json:"cashBeforePayroll"`
	CashAfterPayroll   float64   `json:"cashAfterPayroll"`
	RequiredBuffer     float64   `json:"requiredBuffer"`
	ShortfallVsBuffer  float64   `json:"shortfallVsBuffer"`
	ObligationsBefore  float64   `json:"obligationsBefore"`
}

// BufferContext - контекст для BUFFER_BREACH и RUNWAY_THRESHOLD.
// Tier разделяет критический и предупредительный уровни, чтобы оба могли
// сосуществовать как отдельные алерты.
type BufferContext struct {
	Tier         string  `json:"tier"` // "critical" | "warning"
	MonthlyBurn  float64 `json:"monthlyBurn"`
	TargetBuffer float64 `json:"targetBuffer"`
	CurrentCash  float64 `json:"currentCash"`
	RunwayMonths float64 `json:"runwayMonths"`
}

// TimingConflictContext - контекст скопления платежей в одной неделе.
type TimingConflictContext struct {
	WeekStart      time.Time `json:"weekStart"`
	WeekObligation float64   `json:"weekObligation"`
	CashPercent    float64   `json:"cashPercent"`
}

// ClientContext - контекст клиентских правил (концентрация, деградация
// платежной дисциплины).
type ClientContext struct {
	ClientID        uint    `json:"clientId"`
	ClientName      string  `json:"clientName"`
	RevenuePercent  float64 `json:"revenuePercent"`
	AvgDelayDays    float64 `json:"avgDelayDays"`
	TrailingDelayUp float64 `json:"trailingDelayUp"`
}

// ExpenseContext - контекст расходных правил (всплеск расходов, рост подписок).
type ExpenseContext struct {
	BucketID       uint               `json:"bucketId"`
	BucketName     string             `json:"bucketName"`
	Category       ObligationCategory `json:"category"`
	ExpectedAmount float64            `json:"expectedAmount"`
	ActualAmount   float64            `json:"actualAmount"`
	VariancePct    float64            `json:"variancePct"`
}

// TaxDeadlineContext - контекст приближающегося налогового платежа.
type TaxDeadlineContext struct {
	ScheduleID uint      `json:"scheduleId"`
	DueDate    time.Time `json:"dueDate"`
	Amount     float64   `json:"amount"`
	CashAfter  float64   `json:"cashAfter"`
}

// ReceivablesContext - контекст старения дебиторки.
type ReceivablesContext struct {
	OverdueTotal float64 `json:"overdueTotal"`
	OverdueCount int     `json:"overdueCount"`
	OldestDays   int     `json:"oldestDays"`
}

// CashDropContext - контекст резкого падения остатка.
type CashDropContext struct {
	PreviousCash float64 `json:"previousCash"`
	CurrentCash  float64 `json:"currentCash"`
	DropPercent  float64 `json:"dropPercent"`
}

// AlertContext - дискриминированное объединение контекстов алертов.
// Тег Type определяет, какая из типизированных нагрузок заполнена.
// Хранится одной JSONB-колонкой, чтобы ни одно поле не терялось при
// добавлении новых типов.
type AlertContext struct {
	Type DetectionType `json:"type"`

	LatePayment    *LatePaymentContext    `json:"latePayment,omitempty"`
	PayrollSafety  *PayrollSafetyContext  `json:"payrollSafety,omitempty"`
	Buffer         *BufferContext         `json:"buffer,omitempty"`
	TimingConflict *TimingConflictContext `json:"timingConflict,omitempty"`
	Client         *ClientContext         `json:"client,omitempty"`
	Expense        *ExpenseContext        `json:"expense,omitempty"`
	TaxDeadline    *TaxDeadlineContext    `json:"taxDeadline,omitempty"`
	Receivables    *ReceivablesContext    `json:"receivables,omitempty"`
	CashDrop       *CashDropContext       `json:"cashDrop,omitempty"`

	// EscalationHistory - неизменяемый журнал эскалаций (только дополняется).
	EscalationHistory []EscalationEntry `json:"escalationHistory,omitempty"`
}

func (c AlertContext) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *AlertContext) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, c)
}

// Validate проверяет, что заполнена нагрузка, соответствующая тегу.
func (c AlertContext) Validate() error {
	ok := false
	switch c.Type {
	case DetectLatePayment:
		ok = c.LatePayment != nil
	case DetectPayrollSafety:
		ok = c.PayrollSafety != nil
	case DetectBufferBreach, DetectRunwayThreshold:
		ok = c.Buffer != nil
	case DetectPaymentTimingConflict:
		ok = c.TimingConflict != nil
	case DetectClientConcentration, DetectClientDegradation:
		ok = c.Client != nil
	case DetectExpenseSpike, DetectSubscriptionCreep:
		ok = c.Expense != nil
	case DetectTaxDeadline:
		ok = c.TaxDeadline != nil
	case DetectReceivablesAging:
		ok = c.Receivables != nil
	case DetectCashDrop:
		ok = c.CashDrop != nil
	default:
		return fmt.Errorf("неизвестный тип детекции: %s", c.Type)
	}
	if !ok {
		return fmt.Errorf("контекст алерта %s не содержит полезной нагрузки своего типа", c.Type)
	}
	return nil
}

// DedupKey возвращает ключ дедупликации: тип правила плюс специфичное для
// правила подмножество контекста. Пока по ключу существует открытый алерт,
// повторная детекция не создает новый.
func (c AlertContext) DedupKey() string {
	switch c.Type {
	case DetectLatePayment:
		if c.LatePayment != nil {
			return fmt.Sprintf("%s:%s:%s", c.Type, c.LatePayment.ObligationCategory, c.LatePayment.ImpactType)
		}
	case DetectPayrollSafety:
		if c.PayrollSafety != nil {
			return fmt.Sprintf("%s:%d", c.Type, c.PayrollSafety.PayrollScheduleID)
		}
	case DetectBufferBreach, DetectRunwayThreshold:
		if c.Buffer != nil {
			return fmt.Sprintf("%s:%s", c.Type, c.Buffer.Tier)
		}
	case DetectPaymentTimingConflict:
		if c.TimingConflict != nil {
			return fmt.Sprintf("%s:%s", c.Type, c.TimingConflict.WeekStart.Format("2006-01-02"))
		}
	case DetectClientConcentration, DetectClientDegradation:
		if c.Client != nil {
			return fmt.Sprintf("%s:%d", c.Type, c.Client.ClientID)
		}
	case DetectExpenseSpike:
		if c.Expense != nil {
			return fmt.Sprintf("%s:%d", c.Type, c.Expense.BucketID)
		}
	case DetectSubscriptionCreep:
		return fmt.Sprintf("%s:subscriptions", c.Type)
	case DetectTaxDeadline:
		if c.TaxDeadline != nil {
			return fmt.Sprintf("%s:%d", c.Type, c.TaxDeadline.ScheduleID)
		}
	case DetectReceivablesAging:
		return fmt.Sprintf("%s:aging", c.Type)
	case DetectCashDrop:
		return fmt.Sprintf("%s:drop", c.Type)
	}
	return string(c.Type)
}

// DetectionAlert - обнаруженная проблема. Создается детекцией, потребляется
// подготовкой (статус PREPARING), закрывается исполнением или пользователем.
type DetectionAlert struct {
	gorm.Model
	UserID uint `json:"userId" gorm:"index;not null"`

	DetectionType DetectionType `json:"detectionType" gorm:"index;not null"`
	Severity      AlertSeverity `json:"severity" gorm:"index;not null"`
	Status        AlertStatus   `json:"status" gorm:"index;default:'ACTIVE'"`

	Title       string `json:"title"`
	Description string `json:"description"`

	// CashImpact - знаковое влияние на деньги: отрицательное значение
	// означает нехватку.
	CashImpact float64 `json:"cashImpact" gorm:"type:numeric(12,2)"`

	// UrgencyScore - эвристический ранг срочности 0-100, только для
	// сортировки, не формальная модель.
	UrgencyScore int `json:"urgencyScore"`

	Context AlertContext `json:"context" gorm:"type:jsonb"`

	// ContextKey - материализованный ключ дедупликации для индексируемого поиска.
	ContextKey string `json:"contextKey" gorm:"index"`

	EscalationCount int        `json:"escalationCount"`
	Deadline        *time.Time `json:"deadline"`

	AcknowledgedAt *time.Time `json:"acknowledgedAt"`
	ResolvedAt     *time.Time `json:"resolvedAt"`
}
