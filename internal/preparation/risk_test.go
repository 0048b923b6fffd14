// cashpilot/internal/preparation/risk_test.go
package preparation

import (
	"testing"

	"cashpilot/models"

	"github.com/stretchr/testify/assert"
)

func TestCompositeRisk(t *testing.T) {
	// 100 * (0.5*0.4 + 0.2*0.3 + (20000/200000)*0.3) = 29.0
	score := CompositeRisk(0.5, 0.2, 20000, 100000)
	assert.Equal(t, 29.0, score)

	// Нулевая выручка: любая положительная стоимость нормализуется в 1.
	assert.Equal(t, 100.0, CompositeRisk(1, 1, 5000, 0))
	assert.Equal(t, 0.0, CompositeRisk(0, 0, 0, 0))
}

func TestNormalizeFinancialCostClamped(t *testing.T) {
	assert.Equal(t, 1.0, NormalizeFinancialCost(500000, 100000))
	assert.Equal(t, 0.0, NormalizeFinancialCost(-100, 100000))
	assert.InDelta(t, 0.25, NormalizeFinancialCost(50000, 100000), 0.001)
}

func TestOperationalRiskFloors(t *testing.T) {
	// Зарплата всегда 0.9, независимо от базы.
	assert.Equal(t, 0.9, OperationalRisk(models.ActionPayrollContingency, ""))

	// Перенос оплаты поставщику зарплатной категории тоже 0.9.
	assert.Equal(t, 0.9, OperationalRisk(models.ActionVendorDelay, models.CategoryPayroll))
	assert.Equal(t, 0.9, OperationalRisk(models.ActionTimingRebalance, models.CategoryPayroll))

	// Обычный поставщик - базовый риск.
	assert.Equal(t, 0.4, OperationalRisk(models.ActionVendorDelay, models.CategoryVariableCost))
	assert.Equal(t, 0.1, OperationalRisk(models.ActionCashReview, ""))
}

func TestRiskLevelFor(t *testing.T) {
	assert.Equal(t, models.RiskLow, RiskLevelFor(32.9))
	assert.Equal(t, models.RiskMedium, RiskLevelFor(33))
	assert.Equal(t, models.RiskMedium, RiskLevelFor(65.9))
	assert.Equal(t, models.RiskHigh, RiskLevelFor(66))
}

func TestScoreAndRank(t *testing.T) {
	options := []models.ActionOption{
		{Title: "Рискованная", RelationshipRisk: 0.8, OperationalRisk: 0.9, FinancialCost: 50000},
		{Title: "Мягкая", RelationshipRisk: 0.1, OperationalRisk: 0.2, FinancialCost: 0},
		{Title: "Средняя", RelationshipRisk: 0.4, OperationalRisk: 0.4, FinancialCost: 10000},
	}

	scoreAndRank(options, 100000)

	assert.Equal(t, "Мягкая", options[0].Title)
	assert.True(t, options[0].IsRecommended)
	assert.Equal(t, 1, options[0].DisplayOrder)
	assert.False(t, options[1].IsRecommended)
	assert.False(t, options[2].IsRecommended)

	for i := 1; i < len(options); i++ {
		assert.GreaterOrEqual(t, options[i].RiskScore, options[i-1].RiskScore)
		assert.Equal(t, i+1, options[i].DisplayOrder)
	}
}

func TestClientRelationshipRisk(t *testing.T) {
	info := &ClientInfo{
		Client: &models.Client{
			RelationshipType: models.RelationshipStrategic,
			ChurnRisk:        models.ChurnHigh,
		},
		RevenuePercent: 35,
	}
	assert.InDelta(t, 0.8, ClientRelationshipRisk(info), 0.001)

	plain := &ClientInfo{Client: &models.Client{RelationshipType: models.RelationshipStandard}}
	assert.Zero(t, ClientRelationshipRisk(plain))
}
