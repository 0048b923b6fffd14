// cashpilot/internal/forecast/engine_test.go
package forecast

import (
	"testing"
	"time"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekIndexFor(t *testing.T) {
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, WeekIndexFor(start, start))
	assert.Equal(t, 1, WeekIndexFor(start, start.AddDate(0, 0, 6)))
	assert.Equal(t, 2, WeekIndexFor(start, start.AddDate(0, 0, 7)))
	assert.Equal(t, 13, WeekIndexFor(start, start.AddDate(0, 0, 12*7)))
	assert.Less(t, WeekIndexFor(start, start.AddDate(0, 0, -3)), 1)
}

func TestCycleDates(t *testing.T) {
	start := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 13*7)

	monthly := CycleDates(models.FreqMonthly, start, end)
	require.NotEmpty(t, monthly)
	for _, d := range monthly {
		assert.Equal(t, 1, d.Day(), "месячный счет выставляется первым числом")
	}

	weekly := CycleDates(models.FreqWeekly, start, end)
	require.NotEmpty(t, weekly)
	for _, d := range weekly {
		assert.Equal(t, time.Monday, d.Weekday())
	}

	quarterly := CycleDates(models.FreqQuarterly, start, end)
	require.NotEmpty(t, quarterly)
	assert.Equal(t, time.January, quarterly[0].Month())

	assert.Empty(t, CycleDates(models.FreqOnce, start, end))
}

func TestAssembleWeekZeroSnapshot(t *testing.T) {
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Date: start.AddDate(0, 0, 2), Amount: 10000, Direction: DirectionIn, Confidence: models.ConfidenceHigh},
		{Date: start.AddDate(0, 0, 9), Amount: 4000, Direction: DirectionOut, Confidence: models.ConfidenceMedium},
	}

	fc := assemble(50000, start, 13, events)

	require.Len(t, fc.Weeks, 14)
	w0 := fc.Weeks[0]
	assert.Equal(t, 0, w0.WeekIndex)
	assert.Zero(t, w0.CashIn)
	assert.Zero(t, w0.CashOut)
	assert.Equal(t, 50000.0, w0.EndingBalance)

	assert.Equal(t, 10000.0, fc.Weeks[1].CashIn)
	assert.Equal(t, 60000.0, fc.Weeks[1].EndingBalance)
	assert.Equal(t, 4000.0, fc.Weeks[2].CashOut)
	assert.Equal(t, 56000.0, fc.Weeks[2].EndingBalance)
}

func TestSummaryRunway(t *testing.T) {
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	var events []Event
	// Еженедельный расход прожигает остаток к четвертой неделе.
	for i := 1; i <= 13; i++ {
		events = append(events, Event{
			Date:       start.AddDate(0, 0, (i-1)*7),
			Amount:     3000,
			Direction:  DirectionOut,
			Confidence: models.ConfidenceHigh,
		})
	}

	fc := assemble(10000, start, 13, events)

	assert.Equal(t, 4, fc.Summary.RunwayWeeks)
	assert.Equal(t, 13, fc.Summary.LowestBalanceWeek)

	// Без пробития нуля runway равен горизонту.
	rich := assemble(100000, start, 13, events)
	assert.Equal(t, 13, rich.Summary.RunwayWeeks)
}

func TestConfidenceScoreWeighted(t *testing.T) {
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Date: start, Amount: 90000, Direction: DirectionIn, Confidence: models.ConfidenceHigh},
		{Date: start, Amount: 10000, Direction: DirectionIn, Confidence: models.ConfidenceLow},
	}

	fc := assemble(0, start, 13, events)
	// 0.9*1.0 + 0.1*0.5 = 0.95
	assert.InDelta(t, 0.95, fc.Summary.ConfidenceScore, 0.001)
}

func TestCalculateForecastDeterministic(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 80000)

	client := models.Client{
		UserID:           user.ID,
		Name:             "Acme",
		Status:           models.ClientActive,
		BillingModel:     models.BillingRetainer,
		Amount:           20000,
		BillingCycle:     models.FreqMonthly,
		PaymentTermsDays: 14,
		HasLinkedContact: true,
	}
	require.NoError(t, db.Create(&client).Error)

	bucket := models.ExpenseBucket{
		UserID:        user.ID,
		Name:          "Зарплата",
		Category:      models.CategoryPayroll,
		MonthlyAmount: 15000,
		IsFixed:       true,
	}
	require.NoError(t, db.Create(&bucket).Error)

	first, err := CalculateForecast(db, user, 13)
	require.NoError(t, err)
	second, err := CalculateForecast(db, user, 13)
	require.NoError(t, err)

	require.Len(t, first.Weeks, len(second.Weeks))
	for i := range first.Weeks {
		assert.Equal(t, first.Weeks[i].CashIn, second.Weeks[i].CashIn)
		assert.Equal(t, first.Weeks[i].CashOut, second.Weeks[i].CashOut)
		assert.Equal(t, first.Weeks[i].EndingBalance, second.Weeks[i].EndingBalance)
	}
	assert.Equal(t, first.Summary, second.Summary)
}

func TestUsageClientConfidenceDowngraded(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 80000)

	client := models.Client{
		UserID:              user.ID,
		Name:                "Метрика",
		Status:              models.ClientActive,
		BillingModel:        models.BillingUsage,
		Amount:              5000,
		BillingCycle:        models.FreqMonthly,
		PaymentTermsDays:    0,
		HasRepeatingInvoice: true, // high по привязке, но usage понижает до medium
	}
	require.NoError(t, db.Create(&client).Error)

	fc, err := CalculateForecast(db, user, 13)
	require.NoError(t, err)

	var sawMedium bool
	for _, w := range fc.Weeks {
		if w.InByConfidence[models.ConfidenceMedium] > 0 {
			sawMedium = true
		}
		assert.Zero(t, w.InByConfidence[models.ConfidenceHigh])
	}
	assert.True(t, sawMedium, "поступления usage-клиента должны быть medium")
}
