// cashpilot/internal/scenario/overlay_test.go
package scenario

import (
	"testing"
	"time"

	"cashpilot/internal/forecast"
	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleByName(t *testing.T, results []RuleResult, name string) RuleResult {
	t.Helper()
	for _, r := range results {
		if r.Rule == name {
			return r
		}
	}
	t.Fatalf("правило %s не найдено в результатах", name)
	return RuleResult{}
}

func TestComputeOverlayBaseUntouched(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 40000)

	base, err := forecast.CalculateForecast(db, user, forecast.DefaultHorizonWeeks)
	require.NoError(t, err)
	start := base.Weeks[0].WeekStart

	// Пара разовых поправок: минус в третьей неделе, плюс в пятой.
	delta := &models.ScenarioDelta{
		CreatedSchedules: []models.ScheduleDraft{
			{Category: models.CategoryRevenue, DueDate: start.AddDate(0, 0, 15),
				EstimatedAmount: -50000, Confidence: models.ConfidenceMedium},
			{Category: models.CategoryRevenue, DueDate: start.AddDate(0, 0, 30),
				EstimatedAmount: 50000, Confidence: models.ConfidenceMedium},
		},
	}

	overlay, err := ComputeOverlayForecast(db, base, delta)
	require.NoError(t, err)

	// База не мутирует.
	assert.Zero(t, base.Weeks[3].CashIn)
	assert.Equal(t, 40000.0, base.Weeks[3].EndingBalance)

	assert.Equal(t, -50000.0, overlay.Weeks[3].CashIn)
	assert.Equal(t, -10000.0, overlay.Weeks[3].EndingBalance)
	assert.Equal(t, -10000.0, overlay.Weeks[4].EndingBalance)

	// Сдвинутая оплата возвращает остаток.
	assert.Equal(t, 50000.0, overlay.Weeks[5].CashIn)
	assert.Equal(t, 40000.0, overlay.Weeks[5].EndingBalance)
	assert.Equal(t, 40000.0, overlay.Weeks[forecast.DefaultHorizonWeeks].EndingBalance)

	// Недели вне дельты совпадают с базовыми.
	assert.Equal(t, base.Weeks[1].CashIn, overlay.Weeks[1].CashIn)
	assert.Equal(t, base.Weeks[1].EndingBalance, overlay.Weeks[1].EndingBalance)
}

func TestOverlayCreatedAgreementRecurring(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 40000)

	base, err := forecast.CalculateForecast(db, user, forecast.DefaultHorizonWeeks)
	require.NoError(t, err)
	start := base.Weeks[0].WeekStart

	delta := &models.ScenarioDelta{
		CreatedAgreements: []models.AgreementDraft{{
			Name:       "Новый клиент: Акме",
			Type:       models.AgreementRevenue,
			Category:   models.CategoryRevenue,
			BaseAmount: 10000,
			Frequency:  models.FreqMonthly,
			StartDate:  start,
		}},
	}

	overlay, err := ComputeOverlayForecast(db, base, delta)
	require.NoError(t, err)

	// Каждое месячное событие горизонта добавляет 10000 притока с низкой
	// уверенностью: гипотеза не бывает увереннее реальных данных.
	end := start.AddDate(0, 0, forecast.DefaultHorizonWeeks*7)
	occurrences := len(forecast.CycleDates(models.FreqMonthly, start, end))
	require.Greater(t, occurrences, 0)

	var totalIn, lowIn float64
	for _, w := range overlay.Weeks {
		totalIn += w.CashIn
		lowIn += w.InByConfidence[models.ConfidenceLow]
	}
	assert.Equal(t, float64(occurrences)*10000, totalIn)
	assert.Equal(t, totalIn, lowIn)

	last := forecast.DefaultHorizonWeeks
	assert.Equal(t, base.Weeks[last].EndingBalance+totalIn, overlay.Weeks[last].EndingBalance)
}

func TestOverlayUpdatedScheduleMovesWeek(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 40000)

	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Ретейнер",
		Type:       models.AgreementRevenue,
		Category:   models.CategoryRevenue,
		BaseAmount: 20000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -1, 0),
	}
	require.NoError(t, db.Create(&agreement).Error)

	schedule := models.ObligationSchedule{
		AgreementID:     agreement.ID,
		DueDate:         time.Now().AddDate(0, 0, 10),
		EstimatedAmount: 20000,
		Confidence:      models.ConfidenceHigh,
		Status:          models.ScheduleScheduled,
	}
	require.NoError(t, db.Create(&schedule).Error)

	base, err := forecast.CalculateForecast(db, user, forecast.DefaultHorizonWeeks)
	require.NoError(t, err)
	start := base.Weeks[0].WeekStart

	oldIdx := forecast.WeekIndexFor(start, schedule.DueDate)
	newDate := schedule.DueDate.AddDate(0, 0, 14)
	newIdx := forecast.WeekIndexFor(start, newDate)
	require.NotEqual(t, oldIdx, newIdx)

	delta := &models.ScenarioDelta{
		UpdatedSchedules: []models.ScheduleUpdate{{ScheduleID: schedule.ID, NewDueDate: &newDate}},
	}

	overlay, err := ComputeOverlayForecast(db, base, delta)
	require.NoError(t, err)

	assert.Equal(t, base.Weeks[oldIdx].CashIn-20000, overlay.Weeks[oldIdx].CashIn)
	assert.Equal(t, base.Weeks[newIdx].CashIn+20000, overlay.Weeks[newIdx].CashIn)

	// Отмена вместо переноса: сумма исчезает без компенсации.
	cancel := &models.ScenarioDelta{
		UpdatedSchedules: []models.ScheduleUpdate{{ScheduleID: schedule.ID, Cancel: true}},
	}
	cancelled, err := ComputeOverlayForecast(db, base, cancel)
	require.NoError(t, err)
	last := forecast.DefaultHorizonWeeks
	assert.Equal(t, base.Weeks[last].EndingBalance-20000, cancelled.Weeks[last].EndingBalance)

	// Каноническая строка графика не тронута.
	var fresh models.ObligationSchedule
	require.NoError(t, db.First(&fresh, schedule.ID).Error)
	assert.Equal(t, models.ScheduleScheduled, fresh.Status)
	assert.WithinDuration(t, schedule.DueDate, fresh.DueDate, time.Second)
}

func TestEvaluateRules(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 40000)

	fc := &forecast.Forecast{
		HorizonWeeks: 13,
		StartBalance: 40000,
		Weeks:        make([]forecast.WeekBucket, 14),
	}
	start := time.Now()
	for i := range fc.Weeks {
		fc.Weeks[i].WeekIndex = i
		fc.Weeks[i].WeekStart = start.AddDate(0, 0, (i-1)*7)
	}
	forecast.RecomputeBalances(fc)
	fc.Summary = forecast.Summarize(fc)

	// Без расходов целевой буфер нулевой, остаток положителен на всем горизонте.
	results := EvaluateRules(db, user, fc)
	assert.True(t, ruleByName(t, results, "positive_balance").Passed)
	assert.True(t, ruleByName(t, results, "minimum_buffer").Passed)

	// Крупный расход уводит остаток в минус и ломает оба правила.
	fc.Weeks[5].CashOut = 100000
	forecast.RecomputeBalances(fc)
	fc.Summary = forecast.Summarize(fc)

	results = EvaluateRules(db, user, fc)
	positive := ruleByName(t, results, "positive_balance")
	assert.False(t, positive.Passed)
	assert.Contains(t, positive.Detail, "уходит в минус")
	assert.False(t, ruleByName(t, results, "minimum_buffer").Passed)
}
