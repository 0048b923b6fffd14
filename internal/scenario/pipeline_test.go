// cashpilot/internal/scenario/pipeline_test.go
package scenario

import (
	"testing"
	"time"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dateAnswer(t time.Time) string { return t.Format("2006-01-02") }

// seedClientWithAgreement создает клиента с живой договоренностью и двумя
// будущими графиками оплат.
func seedClientWithAgreement(t *testing.T, db *gorm.DB, user *models.User) (*models.Client, *models.ObligationAgreement, []models.ObligationSchedule) {
	t.Helper()

	client := models.Client{
		UserID:       user.ID,
		Name:         "Акме",
		Amount:       50000,
		BillingCycle: models.FreqMonthly,
	}
	require.NoError(t, db.Create(&client).Error)

	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Ретейнер: Акме",
		Type:       models.AgreementRevenue,
		Category:   models.CategoryRevenue,
		BaseAmount: 50000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -3, 0),
		ClientID:   &client.ID,
	}
	require.NoError(t, db.Create(&agreement).Error)

	schedules := []models.ObligationSchedule{
		{AgreementID: agreement.ID, DueDate: time.Now().AddDate(0, 0, 10),
			EstimatedAmount: 50000, Confidence: models.ConfidenceHigh, Status: models.ScheduleScheduled},
		{AgreementID: agreement.ID, DueDate: time.Now().AddDate(0, 0, 40),
			EstimatedAmount: 50000, Confidence: models.ConfidenceHigh, Status: models.ScheduleScheduled},
	}
	require.NoError(t, db.Create(&schedules).Error)
	return &client, &agreement, schedules
}

func TestStartUnknownType(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)

	_, err := Start(db, user, models.ScenarioType("TIME_TRAVEL"), "manual")
	assert.ErrorIs(t, err, ErrUnknownScenarioType)
}

func TestStartPausesOnRequiredPrompts(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)

	res, err := Start(db, user, models.ScenarioClientGain, "manual")
	require.NoError(t, err)
	assert.False(t, res.Finished)

	// Новый клиент не требует охвата, конвейер встает на сборе параметров.
	assert.Equal(t, models.StageParams, res.Scenario.CurrentStage)
	assert.Equal(t, models.ScenarioDraft, res.Scenario.Status)
	require.Len(t, res.PendingPrompts, 4)
	keys := make([]string, 0, 4)
	for _, p := range res.PendingPrompts {
		keys = append(keys, p.Key)
	}
	assert.ElementsMatch(t, []string{"name", "amount", "frequency", "start_date"}, keys)

	// Непросчитанный сценарий нельзя подтвердить.
	_, err = Commit(db, user, res.Scenario.Reference)
	assert.ErrorIs(t, err, ErrNotSimulated)
}

func TestClientGainFullFlow(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)

	res, err := Start(db, user, models.ScenarioClientGain, "assistant")
	require.NoError(t, err)
	ref := res.Scenario.Reference

	res, err = Resume(db, user, ref, map[string]interface{}{
		"name":       "Глобус",
		"amount":     30000,
		"frequency":  "monthly",
		"start_date": dateAnswer(time.Now().AddDate(0, 0, 7)),
	})
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.Empty(t, res.PendingPrompts)
	assert.Equal(t, models.ScenarioSimulated, res.Scenario.Status)
	assert.Equal(t, models.StageDone, res.Scenario.CurrentStage)

	// Результат наложения сохранен вместе с проверкой правил.
	require.NotNil(t, res.Scenario.OverlayResult)
	assert.Contains(t, res.Scenario.OverlayResult, "scenarioSummary")
	assert.Contains(t, res.Scenario.OverlayResult, "rules")

	// До подтверждения канонических договоренностей нет.
	var count int64
	db.Model(&models.ObligationAgreement{}).Where("user_id = ?", user.ID).Count(&count)
	assert.Zero(t, count)

	sc, err := Commit(db, user, ref)
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioConfirmed, sc.Status)
	require.NotNil(t, sc.ConfirmedAt)

	var agreement models.ObligationAgreement
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&agreement).Error)
	assert.Equal(t, "Новый клиент: Глобус", agreement.Name)
	assert.Equal(t, 30000.0, agreement.BaseAmount)
	assert.Equal(t, models.SourceScenario, agreement.Source)
	assert.Equal(t, models.ConfidenceLow, agreement.Confidence)

	// Закрытый сценарий неприкасаем.
	_, err = Commit(db, user, ref)
	assert.ErrorIs(t, err, ErrScenarioClosed)
	_, err = Resume(db, user, ref, nil)
	assert.ErrorIs(t, err, ErrScenarioClosed)
	_, err = Discard(db, user, ref)
	assert.ErrorIs(t, err, ErrScenarioClosed)
}

func TestClientLossDiscardLeavesCanonicalUntouched(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)
	client, agreement, schedules := seedClientWithAgreement(t, db, user)

	res, err := Start(db, user, models.ScenarioClientLoss, "manual")
	require.NoError(t, err)
	require.Len(t, res.PendingPrompts, 1)
	assert.Equal(t, "client_id", res.PendingPrompts[0].Key)

	// Ответы сливаются в параметры пачками: охват и дата за один вызов.
	res, err = Resume(db, user, res.Scenario.Reference, map[string]interface{}{
		"client_id":      int(client.ID),
		"effective_date": dateAnswer(time.Now().AddDate(0, 0, 5)),
	})
	require.NoError(t, err)
	require.Len(t, res.PendingPrompts, 1)
	assert.Equal(t, "cancel_outstanding", res.PendingPrompts[0].Key)
	assert.Equal(t, models.StageLinkedPrompts, res.Scenario.CurrentStage)

	res, err = Resume(db, user, res.Scenario.Reference, map[string]interface{}{
		"cancel_outstanding": "yes",
	})
	require.NoError(t, err)
	assert.True(t, res.Finished)
	require.Len(t, res.Scenario.Delta.EndedAgreements, 1)
	assert.Equal(t, agreement.ID, res.Scenario.Delta.EndedAgreements[0].AgreementID)
	assert.Len(t, res.Scenario.Delta.UpdatedSchedules, 2)

	sc, err := Discard(db, user, res.Scenario.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioDiscarded, sc.Status)
	require.NotNil(t, sc.DiscardedAt)

	// Отброшенный сценарий не оставляет следов в обязательствах.
	var freshAgreement models.ObligationAgreement
	require.NoError(t, db.First(&freshAgreement, agreement.ID).Error)
	assert.Nil(t, freshAgreement.EndDate)

	for _, s := range schedules {
		var fresh models.ObligationSchedule
		require.NoError(t, db.First(&fresh, s.ID).Error)
		assert.Equal(t, models.ScheduleScheduled, fresh.Status)
	}
}

func TestClientLossCommitEndsAgreement(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)
	client, agreement, schedules := seedClientWithAgreement(t, db, user)

	effective := time.Now().AddDate(0, 0, 5)
	res, err := Start(db, user, models.ScenarioClientLoss, "manual")
	require.NoError(t, err)
	res, err = Resume(db, user, res.Scenario.Reference, map[string]interface{}{
		"client_id":          int(client.ID),
		"effective_date":     dateAnswer(effective),
		"cancel_outstanding": "yes",
	})
	require.NoError(t, err)
	require.True(t, res.Finished)

	_, err = Commit(db, user, res.Scenario.Reference)
	require.NoError(t, err)

	var freshAgreement models.ObligationAgreement
	require.NoError(t, db.First(&freshAgreement, agreement.ID).Error)
	require.NotNil(t, freshAgreement.EndDate)
	assert.Equal(t, dateAnswer(effective), dateAnswer(*freshAgreement.EndDate))

	// Оба графика лежат после даты завершения и отменены.
	for _, s := range schedules {
		var fresh models.ObligationSchedule
		require.NoError(t, db.First(&fresh, s.ID).Error)
		assert.Equal(t, models.ScheduleCancelled, fresh.Status)
	}
}

func TestPaymentDelayInSyntheticPair(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)

	// Клиент без графиков: задержка моделируется парой разовых поправок.
	client := models.Client{
		UserID:           user.ID,
		Name:             "Вектор",
		Amount:           50000,
		BillingCycle:     models.FreqMonthly,
		PaymentTermsDays: 14,
	}
	require.NoError(t, db.Create(&client).Error)

	res, err := Start(db, user, models.ScenarioPaymentDelayIn, "manual")
	require.NoError(t, err)
	res, err = Resume(db, user, res.Scenario.Reference, map[string]interface{}{
		"client_id":  int(client.ID),
		"delay_days": 14,
	})
	require.NoError(t, err)
	require.Len(t, res.PendingPrompts, 1)
	assert.Equal(t, "recurring", res.PendingPrompts[0].Key)

	res, err = Resume(db, user, res.Scenario.Reference, map[string]interface{}{
		"recurring": "once",
	})
	require.NoError(t, err)
	require.True(t, res.Finished)

	// Разовая задержка: минус в исходной неделе, плюс через 14 дней.
	drafts := res.Scenario.Delta.CreatedSchedules
	require.Len(t, drafts, 2)
	assert.Equal(t, -50000.0, drafts[0].EstimatedAmount)
	assert.Equal(t, 50000.0, drafts[1].EstimatedAmount)
	assert.Equal(t, drafts[0].DueDate.AddDate(0, 0, 14), drafts[1].DueDate)

	// Поправки гипотетические: подтверждение не создает канонических графиков.
	_, err = Commit(db, user, res.Scenario.Reference)
	require.NoError(t, err)

	var count int64
	db.Model(&models.ObligationSchedule{}).Count(&count)
	assert.Zero(t, count)
}

func TestPaymentDelayOutShiftsVendorSchedules(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)

	vendor := models.Vendor{UserID: user.ID, Name: "Хостинг", Category: models.CategoryFixedCost}
	require.NoError(t, db.Create(&vendor).Error)

	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Счета за хостинг",
		Type:       models.AgreementVendorBill,
		Category:   models.CategoryFixedCost,
		BaseAmount: 8000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -2, 0),
		VendorID:   &vendor.ID,
	}
	require.NoError(t, db.Create(&agreement).Error)

	due := time.Now().AddDate(0, 0, 12)
	schedule := models.ObligationSchedule{
		AgreementID:     agreement.ID,
		DueDate:         due,
		EstimatedAmount: 8000,
		Confidence:      models.ConfidenceHigh,
		Status:          models.ScheduleScheduled,
	}
	require.NoError(t, db.Create(&schedule).Error)

	res, err := Start(db, user, models.ScenarioPaymentDelayOut, "manual")
	require.NoError(t, err)
	res, err = Resume(db, user, res.Scenario.Reference, map[string]interface{}{
		"vendor_id":  int(vendor.ID),
		"delay_days": 10,
	})
	require.NoError(t, err)
	require.True(t, res.Finished)

	require.Len(t, res.Scenario.Delta.UpdatedSchedules, 1)
	upd := res.Scenario.Delta.UpdatedSchedules[0]
	assert.Equal(t, schedule.ID, upd.ScheduleID)
	require.NotNil(t, upd.NewDueDate)
	assert.Equal(t, dateAnswer(due.AddDate(0, 0, 10)), dateAnswer(*upd.NewDueDate))

	_, err = Commit(db, user, res.Scenario.Reference)
	require.NoError(t, err)

	var fresh models.ObligationSchedule
	require.NoError(t, db.First(&fresh, schedule.ID).Error)
	assert.Equal(t, dateAnswer(due.AddDate(0, 0, 10)), dateAnswer(fresh.DueDate))
	assert.Equal(t, models.ScheduleScheduled, fresh.Status)
}
