// cashpilot/internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"testing"
	"time"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedBreachAndAgreement создает условия для критического алерта (пробитый
// буфер) и договоренность, которой еще не порождены графики.
func seedBreachAndAgreement(t *testing.T, db *gorm.DB, user *models.User) *models.ObligationAgreement {
	t.Helper()

	bucket := models.ExpenseBucket{
		UserID:        user.ID,
		Name:          "Аренда и команда",
		Category:      models.CategoryFixedCost,
		MonthlyAmount: 50000,
	}
	require.NoError(t, db.Create(&bucket).Error)

	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Ретейнер",
		Type:       models.AgreementRevenue,
		Category:   models.CategoryRevenue,
		BaseAmount: 30000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -1, 0),
	}
	require.NoError(t, db.Create(&agreement).Error)
	return &agreement
}

func scheduleCount(t *testing.T, db *gorm.DB, agreementID uint) int64 {
	t.Helper()
	var count int64
	db.Model(&models.ObligationSchedule{}).
		Where("agreement_id = ?", agreementID).Count(&count)
	return count
}

func TestRunCriticalOnceSkipsFullCycleWork(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 60000)
	agreement := seedBreachAndAgreement(t, db, user)

	s := New(db, time.Minute, time.Hour)
	s.RunCriticalOnce(context.Background())

	// Пробитый буфер пойман быстрым проходом: 60000 при цели 150000.
	var alert models.DetectionAlert
	require.NoError(t, db.Where("user_id = ? AND detection_type = ?",
		user.ID, models.DetectBufferBreach).First(&alert).Error)
	assert.Equal(t, models.SeverityEmergency, alert.Severity)

	// Порождение графиков - работа полного цикла, быстрый проход ее не делает.
	assert.Zero(t, scheduleCount(t, db, agreement.ID))
}

func TestTickAlternatesFullAndCritical(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 60000)
	first := seedBreachAndAgreement(t, db, user)

	s := New(db, time.Minute, time.Hour)
	ctx := context.Background()

	// Первый тик всегда полный: графики порождены.
	s.tick(ctx)
	assert.Positive(t, scheduleCount(t, db, first.ID))

	// До истечения полного интервала тик ограничивается критическими
	// правилами: новая договоренность графиков не получает.
	second := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Подрядчик",
		Type:       models.AgreementVendorBill,
		Category:   models.CategoryVariableCost,
		BaseAmount: 5000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, 0, -7),
	}
	require.NoError(t, db.Create(&second).Error)

	s.tick(ctx)
	assert.Zero(t, scheduleCount(t, db, second.ID))

	// Интервал вышел - следующий тик снова полный.
	s.lastFull = time.Now().Add(-2 * time.Hour)
	s.tick(ctx)
	assert.Positive(t, scheduleCount(t, db, second.ID))
}

func TestNewDefaultsIntervals(t *testing.T) {
	s := New(nil, 0, 0)
	assert.Equal(t, DefaultCriticalInterval, s.critical)
	assert.Equal(t, DefaultFullInterval, s.full)
}
