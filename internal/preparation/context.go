// cashpilot/internal/preparation/context.go
package preparation

import (
	"cashpilot/models"

	"gorm.io/gorm"
)

// Поставщики контекста сущностей. Возвращают плоские срезы метаданных,
// которые движок подготовки читает как непрозрачные входы: вся агрегация
// по обязательствам и счетам происходит здесь.

// ClientInfo - метаданные отношений с клиентом.
type ClientInfo struct {
	Client         *models.Client
	RevenuePercent float64
	// OutstandingTotal - сумма неоплаченных счетов клиента.
	OutstandingTotal float64
	OutstandingCount int
}

// VendorInfo - метаданные отношений с поставщиком.
type VendorInfo struct {
	Vendor *models.Vendor
	// MonthlyTotal - месячный объем обязательств перед поставщиком.
	MonthlyTotal float64
}

// GetClientInfo собирает контекст клиента: долю выручки и открытые счета.
func GetClientInfo(db *gorm.DB, userID, clientID uint) (*ClientInfo, error) {
	var client models.Client
	if err := db.Where("user_id = ?", userID).First(&client, clientID).Error; err != nil {
		return nil, err
	}

	info := &ClientInfo{Client: &client}

	var clients []models.Client
	if err := db.Where("user_id = ? AND status = ?", userID, models.ClientActive).
		Find(&clients).Error; err != nil {
		return nil, err
	}
	var total, own float64
	for _, cl := range clients {
		m := MonthlyEquivalent(cl.Amount, cl.BillingCycle)
		total += m
		if cl.ID == clientID {
			own = m
		}
	}
	if total > 0 {
		info.RevenuePercent = own / total * 100
	}

	var invoices []models.OutstandingInvoice
	if err := db.Where("user_id = ? AND client_id = ? AND paid = false", userID, clientID).
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	info.OutstandingCount = len(invoices)
	for _, inv := range invoices {
		info.OutstandingTotal += inv.Amount
	}

	return info, nil
}

// GetVendorInfo собирает контекст поставщика.
func GetVendorInfo(db *gorm.DB, userID, vendorID uint) (*VendorInfo, error) {
	var vendor models.Vendor
	if err := db.Where("user_id = ?", userID).First(&vendor, vendorID).Error; err != nil {
		return nil, err
	}

	info := &VendorInfo{Vendor: &vendor}

	var agreements []models.ObligationAgreement
	if err := db.Where("user_id = ? AND vendor_id = ? AND (end_date IS NULL)", userID, vendorID).
		Find(&agreements).Error; err != nil {
		return nil, err
	}
	for _, a := range agreements {
		info.MonthlyTotal += MonthlyEquivalent(a.BaseAmount, a.Frequency)
	}

	return info, nil
}

// MonthlyEquivalent приводит сумму за цикл к месячному эквиваленту.
func MonthlyEquivalent(amount float64, cycle models.Frequency) float64 {
	switch cycle {
	case models.FreqWeekly:
		return amount * 52.0 / 12.0
	case models.FreqQuarterly:
		return amount / 3.0
	case models.FreqAnnual:
		return amount / 12.0
	case models.FreqOnce:
		return 0
	default:
		return amount
	}
}

// Tone выбирает тон коммуникации с клиентом из характера отношений,
// концентрации выручки, платежной истории и риска ухода.
func Tone(info *ClientInfo) string {
	cl := info.Client
	// Стратегических и готовых уйти клиентов не дергаем жестко.
	if cl.RelationshipType == models.RelationshipStrategic || cl.ChurnRisk == models.ChurnHigh {
		return "soft"
	}
	if info.RevenuePercent >= 20 {
		return "soft"
	}
	if cl.AvgPaymentDelayDays > 20 {
		return "firm"
	}
	return "professional"
}
