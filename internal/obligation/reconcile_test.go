// cashpilot/internal/obligation/reconcile_test.go
package obligation

import (
	"testing"
	"time"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPaymentAutoMatch(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 20000)

	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Ретейнер Acme",
		Type:       models.AgreementRevenue,
		Category:   models.CategoryRevenue,
		BaseAmount: 10000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -1, 0),
	}
	require.NoError(t, db.Create(&agreement).Error)

	schedule := models.ObligationSchedule{
		AgreementID:     agreement.ID,
		DueDate:         time.Now().AddDate(0, 0, -2),
		EstimatedAmount: 10000,
		Status:          models.ScheduleOverdue,
	}
	require.NoError(t, db.Create(&schedule).Error)

	// Пришло чуть меньше плана, но в пределах 5% и недельного окна.
	event := models.PaymentEvent{
		Amount:      9800,
		PaymentDate: time.Now(),
		Source:      "manual",
	}
	require.NoError(t, RecordPayment(db, user, &event))

	require.NotNil(t, event.ScheduleID)
	assert.Equal(t, schedule.ID, *event.ScheduleID)
	assert.InDelta(t, -200, event.Variance, 0.01)

	var paid models.ObligationSchedule
	require.NoError(t, db.First(&paid, schedule.ID).Error)
	assert.Equal(t, models.SchedulePaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	var fresh models.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	assert.InDelta(t, 29800, fresh.CashBalance, 0.01)
}

func TestRecordPaymentNoMatchOutsideTolerance(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 20000)

	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Ретейнер Acme",
		Type:       models.AgreementRevenue,
		Category:   models.CategoryRevenue,
		BaseAmount: 10000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -1, 0),
	}
	require.NoError(t, db.Create(&agreement).Error)

	schedule := models.ObligationSchedule{
		AgreementID:     agreement.ID,
		DueDate:         time.Now(),
		EstimatedAmount: 10000,
		Status:          models.ScheduleDue,
	}
	require.NoError(t, db.Create(&schedule).Error)

	// Расхождение 20% - автоматическое сопоставление не имеет права сработать.
	event := models.PaymentEvent{
		Amount:      8000,
		PaymentDate: time.Now(),
		Source:      "manual",
	}
	require.NoError(t, RecordPayment(db, user, &event))

	assert.Nil(t, event.ScheduleID)

	var untouched models.ObligationSchedule
	require.NoError(t, db.First(&untouched, schedule.ID).Error)
	assert.Equal(t, models.ScheduleDue, untouched.Status)
}

func TestRecordPaymentExpenseMatchesNonRevenue(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 20000)

	revenue := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Ретейнер",
		Type:       models.AgreementRevenue,
		Category:   models.CategoryRevenue,
		BaseAmount: 3000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -1, 0),
	}
	rent := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Аренда",
		Type:       models.AgreementRent,
		Category:   models.CategoryFixedCost,
		BaseAmount: 3000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -1, 0),
	}
	require.NoError(t, db.Create(&revenue).Error)
	require.NoError(t, db.Create(&rent).Error)

	revSchedule := models.ObligationSchedule{
		AgreementID: revenue.ID, DueDate: time.Now(),
		EstimatedAmount: 3000, Status: models.ScheduleDue,
	}
	rentSchedule := models.ObligationSchedule{
		AgreementID: rent.ID, DueDate: time.Now(),
		EstimatedAmount: 3000, Status: models.ScheduleDue,
	}
	require.NoError(t, db.Create(&revSchedule).Error)
	require.NoError(t, db.Create(&rentSchedule).Error)

	// Расход обязан сопоставиться с арендой, а не с одинаковым по сумме
	// графиком поступления.
	event := models.PaymentEvent{
		Amount:      -3000,
		PaymentDate: time.Now(),
		Source:      "bank_feed",
	}
	require.NoError(t, RecordPayment(db, user, &event))

	require.NotNil(t, event.ScheduleID)
	assert.Equal(t, rentSchedule.ID, *event.ScheduleID)
	assert.InDelta(t, 0, event.Variance, 0.01)

	var fresh models.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	assert.InDelta(t, 17000, fresh.CashBalance, 0.01)
}
