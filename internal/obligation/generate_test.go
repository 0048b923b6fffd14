// cashpilot/internal/obligation/generate_test.go
package obligation

import (
	"testing"
	"time"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvance(t *testing.T) {
	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, base.AddDate(0, 0, 7), advance(base, models.FreqWeekly))
	assert.Equal(t, base.AddDate(0, 1, 0), advance(base, models.FreqMonthly))
	assert.Equal(t, base.AddDate(0, 3, 0), advance(base, models.FreqQuarterly))
	assert.Equal(t, base.AddDate(1, 0, 0), advance(base, models.FreqAnnual))
}

func TestNextOccurrenceSkipsPast(t *testing.T) {
	a := &models.ObligationAgreement{
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Frequency: models.FreqMonthly,
	}
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	due := nextOccurrence(a, now)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), due)
}

func TestGenerateSchedulesIdempotent(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Аренда офиса",
		Type:       models.AgreementRent,
		Category:   models.CategoryFixedCost,
		BaseAmount: 3000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -2, 0),
		Confidence: models.ConfidenceMedium,
	}
	require.NoError(t, db.Create(&agreement).Error)

	created, err := GenerateSchedules(db, user.ID)
	require.NoError(t, err)
	assert.Greater(t, created, 0)

	// Повторный прогон не плодит дубли.
	again, err := GenerateSchedules(db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again)

	var schedules []models.ObligationSchedule
	require.NoError(t, db.Where("agreement_id = ?", agreement.ID).Find(&schedules).Error)
	for _, s := range schedules {
		assert.Equal(t, models.ScheduleScheduled, s.Status)
		assert.Equal(t, 3000.0, s.EstimatedAmount)
		assert.Equal(t, models.ConfidenceMedium, s.Confidence)
	}
}

func TestGenerateSchedulesRespectsEndDate(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	end := time.Now().AddDate(0, 0, 20)
	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Подписка",
		Type:       models.AgreementSubscription,
		Category:   models.CategoryFixedCost,
		BaseAmount: 500,
		Frequency:  models.FreqWeekly,
		StartDate:  time.Now().AddDate(0, 0, 1),
		EndDate:    &end,
	}
	require.NoError(t, db.Create(&agreement).Error)

	_, err := GenerateSchedules(db, user.ID)
	require.NoError(t, err)

	var schedules []models.ObligationSchedule
	require.NoError(t, db.Where("agreement_id = ?", agreement.ID).Find(&schedules).Error)
	for _, s := range schedules {
		assert.False(t, s.DueDate.After(end), "график после даты завершения")
	}
}

func TestRefreshStatuses(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Ретейнер",
		Type:       models.AgreementRevenue,
		Category:   models.CategoryRevenue,
		BaseAmount: 10000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -3, 0),
	}
	require.NoError(t, db.Create(&agreement).Error)

	overdue := models.ObligationSchedule{
		AgreementID:     agreement.ID,
		DueDate:         time.Now().AddDate(0, 0, -5),
		EstimatedAmount: 10000,
		Status:          models.ScheduleScheduled,
	}
	upcoming := models.ObligationSchedule{
		AgreementID:     agreement.ID,
		DueDate:         time.Now().AddDate(0, 0, 10),
		EstimatedAmount: 10000,
		Status:          models.ScheduleScheduled,
	}
	paid := models.ObligationSchedule{
		AgreementID:     agreement.ID,
		DueDate:         time.Now().AddDate(0, 0, -30),
		EstimatedAmount: 10000,
		Status:          models.SchedulePaid,
	}
	require.NoError(t, db.Create(&overdue).Error)
	require.NoError(t, db.Create(&upcoming).Error)
	require.NoError(t, db.Create(&paid).Error)

	require.NoError(t, RefreshStatuses(db, user.ID))

	var refreshed models.ObligationSchedule
	require.NoError(t, db.First(&refreshed, overdue.ID).Error)
	assert.Equal(t, models.ScheduleOverdue, refreshed.Status)

	require.NoError(t, db.First(&refreshed, upcoming.ID).Error)
	assert.Equal(t, models.ScheduleScheduled, refreshed.Status)

	// Оплаченный график неприкосновенен.
	require.NoError(t, db.First(&refreshed, paid.ID).Error)
	assert.Equal(t, models.SchedulePaid, refreshed.Status)
}
