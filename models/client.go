// cashpilot/models/client.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// BillingModel - модель выставления счетов клиенту.
type BillingModel string

const (
	BillingRetainer BillingModel = "retainer"
	BillingProject  BillingModel = "project"
	BillingUsage    BillingModel = "usage"
)

// RelationshipType - характер отношений с клиентом, влияет на тон
// коммуникаций и оценку риска.
type RelationshipType string

const (
	RelationshipStrategic RelationshipType = "strategic"
	RelationshipStandard  RelationshipType = "standard"
	RelationshipNew       RelationshipType = "new"
)

// ChurnRisk - риск потери клиента.
type ChurnRisk string

const (
	ChurnHigh   ChurnRisk = "high"
	ChurnMedium ChurnRisk = "medium"
	ChurnLow    ChurnRisk = "low"
)

// ClientStatus - текущее состояние клиента.
type ClientStatus string

const (
	ClientActive ClientStatus = "active"
	ClientPaused ClientStatus = "paused"
	ClientLost   ClientStatus = "lost"
)

// Client представляет клиента, который платит компании деньги.
type Client struct {
	gorm.Model
	UserID uint `json:"userId" gorm:"index;not null"`

	Name         string       `json:"name" gorm:"not null"`
	Status       ClientStatus `json:"status" gorm:"default:'active'"`
	BillingModel BillingModel `json:"billingModel" gorm:"default:'retainer'"`

	// Amount - сумма за цикл для retainer, оценка месячного объема для usage.
	// Для project суммы живут в вехах (Milestones).
	Amount       float64   `json:"amount" gorm:"type:numeric(12,2)"`
	BillingCycle Frequency `json:"billingCycle" gorm:"default:'monthly'"`

	// PaymentTermsDays - договорная отсрочка оплаты после выставления счета.
	PaymentTermsDays int `json:"paymentTermsDays" gorm:"default:14"`

	RelationshipType    RelationshipType `json:"relationshipType" gorm:"default:'standard'"`
	ChurnRisk           ChurnRisk        `json:"churnRisk" gorm:"default:'low'"`
	AvgPaymentDelayDays float64          `json:"avgPaymentDelayDays"`

	// Привязки к учетной системе - источник уровней уверенности прогноза.
	HasLinkedContact    bool `json:"hasLinkedContact"`
	HasRepeatingInvoice bool `json:"hasRepeatingInvoice"`

	Milestones []ClientMilestone `json:"milestones,omitempty" gorm:"foreignKey:ClientID"`
}

// ForecastConfidence выводит уровень уверенности прогноза по клиенту из
// привязки к учетной системе. Иерархия проверяется строго в этом порядке и
// никогда не выводится из сумм или истории.
func (c *Client) ForecastConfidence() ConfidenceLevel {
	if c.HasRepeatingInvoice {
		return ConfidenceHigh
	}
	if c.HasLinkedContact {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// ClientMilestone - веха проектного клиента с собственной датой и отсрочкой.
type ClientMilestone struct {
	gorm.Model
	ClientID         uint      `json:"clientId" gorm:"index;not null"`
	Name             string    `json:"name"`
	Amount           float64   `json:"amount" gorm:"type:numeric(12,2)"`
	DueDate          time.Time `json:"dueDate"`
	PaymentDelayDays int       `json:"paymentDelayDays"`
	Invoiced         bool      `json:"invoiced"`
}

// FlexibilityLevel - насколько поставщик терпим к переносу оплаты.
type FlexibilityLevel string

const (
	FlexibilityHigh   FlexibilityLevel = "high"
	FlexibilityMedium FlexibilityLevel = "medium"
	FlexibilityLow    FlexibilityLevel = "low"
)

// VendorCriticality - критичность поставщика для операционной деятельности.
type VendorCriticality string

const (
	CriticalityCritical VendorCriticality = "critical"
	CriticalityStandard VendorCriticality = "standard"
	CriticalityOptional VendorCriticality = "optional"
)

// Vendor представляет поставщика, которому компания платит.
type Vendor struct {
	gorm.Model
	UserID uint `json:"userId" gorm:"index;not null"`

	Name        string             `json:"name" gorm:"not null"`
	Category    ObligationCategory `json:"category" gorm:"default:'variable_cost'"`
	Flexibility FlexibilityLevel   `json:"flexibility" gorm:"default:'medium'"`
	Criticality VendorCriticality  `json:"criticality" gorm:"default:'standard'"`

	// DelayCount - сколько раз оплату этому поставщику уже переносили.
	DelayCount int `json:"delayCount"`

	HasRepeatingBill bool `json:"hasRepeatingBill"`
}

// ExpenseBucket - статья расходов (аналог статьи бюджета): группа однотипных
// трат с ожидаемым месячным объемом.
type ExpenseBucket struct {
	gorm.Model
	UserID uint `json:"userId" gorm:"index;not null"`

	Name          string             `json:"name" gorm:"not null"`
	Category      ObligationCategory `json:"category" gorm:"default:'variable_cost'"`
	MonthlyAmount float64            `json:"monthlyAmount" gorm:"type:numeric(12,2)"`
	IsFixed       bool               `json:"isFixed"`

	VendorID      *uint `json:"vendorId"`
	HasLinkedBill bool  `json:"hasLinkedBill"`
}

// BucketConfidence выводит уровень уверенности прогноза по статье расходов.
func (b *ExpenseBucket) BucketConfidence() ConfidenceLevel {
	if b.HasLinkedBill {
		return ConfidenceHigh
	}
	if b.VendorID != nil {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// OutstandingInvoice - неоплаченный исходящий счет, пришедший из учетной
// системы. Вливается в состояние клиента при синхронизации.
type OutstandingInvoice struct {
	gorm.Model
	UserID   uint `json:"userId" gorm:"index;not null"`
	ClientID uint `json:"clientId" gorm:"index;not null"`

	InvoiceNumber string    `json:"invoiceNumber"`
	Amount        float64   `json:"amount" gorm:"type:numeric(12,2)"`
	IssuedAt      time.Time `json:"issuedAt"`
	DueAt         time.Time `json:"dueAt"`
	Paid          bool      `json:"paid"`

	ExternalID *string `json:"externalId" gorm:"index"`
}
