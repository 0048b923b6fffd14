// cashpilot/internal/preparation/risk.go
package preparation

import (
	"math"

	"cashpilot/models"
)

// Композитный риск опции: взвешенная смесь трех компонент, 0-100.
//
//	composite = 100 * (relationship*0.4 + operational*0.3 + normalizedCost*0.3)
//
// relationship и operational лежат в [0,1]; финансовая стоимость - абсолютная
// сумма, нормализуется против двух месячных выручек перед взвешиванием.
const (
	weightRelationship = 0.4
	weightOperational  = 0.3
	weightFinancial    = 0.3
)

// CompositeRisk считает итоговый риск, округленный до одного знака.
func CompositeRisk(relationshipRisk, operationalRisk, financialCost, monthlyRevenueRef float64) float64 {
	norm := NormalizeFinancialCost(financialCost, monthlyRevenueRef)
	score := 100 * (relationshipRisk*weightRelationship + operationalRisk*weightOperational + norm*weightFinancial)
	return math.Round(score*10) / 10
}

// NormalizeFinancialCost приводит абсолютную стоимость к [0,1] против
// удвоенной справочной месячной выручки.
func NormalizeFinancialCost(cost, monthlyRevenueRef float64) float64 {
	if monthlyRevenueRef <= 0 {
		if cost > 0 {
			return 1
		}
		return 0
	}
	norm := cost / (2 * monthlyRevenueRef)
	if norm > 1 {
		return 1
	}
	if norm < 0 {
		return 0
	}
	return norm
}

// ClientRelationshipRisk - риск испортить отношения с клиентом.
func ClientRelationshipRisk(info *ClientInfo) float64 {
	risk := 0.0
	if info.Client.RelationshipType == models.RelationshipStrategic {
		risk += 0.3
	}
	if info.RevenuePercent >= 20 {
		risk += 0.3
	}
	if info.Client.ChurnRisk == models.ChurnHigh {
		risk += 0.2
	}
	return clamp01(risk)
}

// VendorRelationshipRisk - риск испортить отношения с поставщиком.
func VendorRelationshipRisk(info *VendorInfo) float64 {
	risk := 0.0
	if info.Vendor.Criticality == models.CriticalityCritical {
		risk += 0.3
	}
	if info.Vendor.DelayCount >= 3 {
		risk += 0.2
	}
	if info.Vendor.Flexibility == models.FlexibilityLow {
		risk += 0.2
	}
	return clamp01(risk)
}

// internalRelationshipRisk - для действий без внешнего контрагента
// (кредитная линия, внутренний пересмотр расходов).
const internalRelationshipRisk = 0.1

// operationalBase - базовый операционный риск по типу действия.
var operationalBase = map[models.ActionType]float64{
	models.ActionInvoiceFollowUp:    0.2,
	models.ActionVendorDelay:        0.4,
	models.ActionPayrollContingency: 0.9,
	models.ActionCreditDraw:         0.3,
	models.ActionExpenseCut:         0.5,
	models.ActionTaxPlan:            0.6,
	models.ActionClientRetention:    0.3,
	models.ActionClientDiversify:    0.2,
	models.ActionReceivablesSweep:   0.2,
	models.ActionSubscriptionAudit:  0.2,
	models.ActionCashReview:         0.1,
	models.ActionTimingRebalance:    0.4,
}

// OperationalRisk возвращает операционный риск с жесткими полами:
// перенос зарплаты - всегда 0.9, перенос оплаты поставщику зарплатной
// категории - всегда 0.9. Зарплата не бывает "переносимой".
func OperationalRisk(actionType models.ActionType, vendorCategory models.ObligationCategory) float64 {
	risk := operationalBase[actionType]
	if actionType == models.ActionPayrollContingency {
		return 0.9
	}
	if (actionType == models.ActionVendorDelay || actionType == models.ActionTimingRebalance) &&
		vendorCategory == models.CategoryPayroll {
		return 0.9
	}
	return risk
}

// RiskLevelFor переводит композитный риск в качественный уровень.
func RiskLevelFor(score float64) models.RiskLevel {
	switch {
	case score < 33:
		return models.RiskLow
	case score < 66:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
