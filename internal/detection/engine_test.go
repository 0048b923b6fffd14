// cashpilot/internal/detection/engine_test.go
package detection

import (
	"testing"

	"cashpilot/internal/notify"
	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Тесты движка не должны писать во внешние каналы.
	notify.ResetProviders()
	m.Run()
}

func TestBufferBreachTiers(t *testing.T) {
	cases := []struct {
		name     string
		cash     float64
		severity models.AlertSeverity
		count    int
	}{
		{"критический ярус", 74999, models.SeverityEmergency, 1},
		{"предупредительный ярус", 75001, models.SeverityThisWeek, 1},
		{"буфер цел", 130000, "", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := testdb.Open(t)
			user := testdb.MakeUser(t, db, tc.cash)

			// Месячная норма расходов 50000: целевой буфер 3 месяца = 150000,
			// критическая граница 50% = 75000, предупредительная 80% = 120000.
			bucket := models.ExpenseBucket{
				UserID:        user.ID,
				Name:          "Операционные расходы",
				MonthlyAmount: 50000,
			}
			require.NoError(t, db.Create(&bucket).Error)

			alerts, err := RunDetectionType(db, user, models.DetectBufferBreach)
			require.NoError(t, err)
			require.Len(t, alerts, tc.count)
			if tc.count > 0 {
				assert.Equal(t, tc.severity, alerts[0].Severity)
				require.NotNil(t, alerts[0].Context.Buffer)
			}
		})
	}
}

func TestBufferBreachDeduplication(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 60000)

	bucket := models.ExpenseBucket{UserID: user.ID, Name: "Расходы", MonthlyAmount: 50000}
	require.NoError(t, db.Create(&bucket).Error)

	first, err := RunDetectionType(db, user, models.DetectBufferBreach)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Повторный прогон по тем же данным не плодит второй алерт.
	second, err := RunDetectionType(db, user, models.DetectBufferBreach)
	require.NoError(t, err)
	assert.Empty(t, second)

	var open int64
	db.Model(&models.DetectionAlert{}).
		Where("user_id = ? AND status IN ?", user.ID, models.OpenAlertStatuses).
		Count(&open)
	assert.Equal(t, int64(1), open)

	// Увиденный алерт все еще открыт и продолжает блокировать дубль.
	require.NoError(t, db.Model(&models.DetectionAlert{}).
		Where("id = ?", first[0].ID).
		Update("status", models.AlertAcknowledged).Error)
	third, err := RunDetectionType(db, user, models.DetectBufferBreach)
	require.NoError(t, err)
	assert.Empty(t, third)

	// Закрытый алерт дорогу новому не преграждает.
	require.NoError(t, db.Model(&models.DetectionAlert{}).
		Where("id = ?", first[0].ID).
		Update("status", models.AlertResolved).Error)
	fourth, err := RunDetectionType(db, user, models.DetectBufferBreach)
	require.NoError(t, err)
	assert.Len(t, fourth, 1)
}

func TestSafetyModeScalesThresholds(t *testing.T) {
	// Остаток 85000 при норме расходов 50000: в нормальном режиме это
	// предупреждение (85000/150000 = 57%), в консервативном - критика
	// (85000/180000 = 47%).
	run := func(mode models.SafetyMode) models.AlertSeverity {
		db := testdb.Open(t)
		user := testdb.MakeUser(t, db, 85000)
		require.NoError(t, db.Model(user).Update("safety_mode", mode).Error)
		user.SafetyMode = mode

		bucket := models.ExpenseBucket{UserID: user.ID, Name: "Расходы", MonthlyAmount: 50000}
		require.NoError(t, db.Create(&bucket).Error)

		alerts, err := RunDetectionType(db, user, models.DetectBufferBreach)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		return alerts[0].Severity
	}

	assert.Equal(t, models.SeverityThisWeek, run(models.SafetyModeNormal))
	assert.Equal(t, models.SeverityEmergency, run(models.SafetyModeConservative))
}

func TestDisabledRuleSkipped(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 10000)

	bucket := models.ExpenseBucket{UserID: user.ID, Name: "Расходы", MonthlyAmount: 50000}
	require.NoError(t, db.Create(&bucket).Error)

	rule := models.DetectionRule{
		UserID:        user.ID,
		DetectionType: models.DetectBufferBreach,
		Enabled:       false,
	}
	require.NoError(t, db.Create(&rule).Error)
	InvalidateThresholdCache(user.ID)
	t.Cleanup(func() { InvalidateThresholdCache(user.ID) })

	alerts, err := RunDetectionType(db, user, models.DetectBufferBreach)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestUrgencyScore(t *testing.T) {
	assert.Equal(t, 100, UrgencyScore(models.SeverityEmergency, 0))
	assert.Equal(t, 90, UrgencyScore(models.SeverityEmergency, 5))
	assert.Equal(t, 80, UrgencyScore(models.SeverityEmergency, 30))
	assert.Equal(t, 75, UrgencyScore(models.SeverityThisWeek, 0))
	assert.Equal(t, 30, UrgencyScore(models.SeverityUpcoming, 20))
}
