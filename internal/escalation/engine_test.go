// cashpilot/internal/escalation/engine_test.go
package escalation

import (
	"testing"
	"time"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterEscalatesToThisWeekOnly(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)

	alert := models.DetectionAlert{
		UserID:        user.ID,
		DetectionType: models.DetectPaymentTimingConflict,
		Severity:      models.SeverityUpcoming,
		Status:        models.AlertActive,
		Title:         "Скопление платежей",
		Context: models.AlertContext{
			Type: models.DetectPaymentTimingConflict,
			TimingConflict: &models.TimingConflictContext{
				WeekStart:      time.Now().AddDate(0, 0, 14),
				WeekObligation: 55000,
				CashPercent:    55,
			},
		},
	}
	require.NoError(t, db.Create(&alert).Error)

	escalated, err := RunEscalationCheck(db, user)
	require.NoError(t, err)
	require.Len(t, escalated, 1)

	// Скопление поднимает только до THIS_WEEK, не до EMERGENCY.
	assert.Equal(t, models.SeverityThisWeek, escalated[0].Severity)
	assert.Equal(t, 1, escalated[0].EscalationCount)
	require.Len(t, escalated[0].Context.EscalationHistory, 1)
	entry := escalated[0].Context.EscalationHistory[0]
	assert.Equal(t, models.SeverityUpcoming, entry.FromSeverity)
	assert.Equal(t, models.SeverityThisWeek, entry.ToSeverity)

	// Свежеподнятый алерт без новых причин дальше не двигается.
	again, err := RunEscalationCheck(db, user)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStaleThisWeekEscalatesAndHistoryAppends(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)

	alert := models.DetectionAlert{
		UserID:        user.ID,
		DetectionType: models.DetectBufferBreach,
		Severity:      models.SeverityThisWeek,
		Status:        models.AlertActive,
		Title:         "Буфер пробит",
		Context: models.AlertContext{
			Type:   models.DetectBufferBreach,
			Buffer: &models.BufferContext{Tier: "warning", CurrentCash: 100000},
			EscalationHistory: []models.EscalationEntry{
				{Rule: "seed", FromSeverity: models.SeverityUpcoming, ToSeverity: models.SeverityThisWeek},
			},
		},
	}
	require.NoError(t, db.Create(&alert).Error)
	// Алерт висит без реакции третьи сутки.
	require.NoError(t, db.Model(&alert).
		Update("created_at", time.Now().Add(-72*time.Hour)).Error)

	action := models.PreparedAction{
		UserID:  user.ID,
		AlertID: alert.ID,
		Status:  models.ActionPendingApproval,
		Title:   "Действие по буферу",
	}
	require.NoError(t, db.Create(&action).Error)

	escalated, err := RunEscalationCheck(db, user)
	require.NoError(t, err)
	require.Len(t, escalated, 1)

	got := escalated[0]
	assert.Equal(t, models.SeverityEmergency, got.Severity)
	require.NotNil(t, got.Deadline)
	assert.WithinDuration(t, time.Now().Add(8*time.Hour), *got.Deadline, time.Minute)

	// История только дополняется: прежняя запись на месте.
	require.Len(t, got.Context.EscalationHistory, 2)
	assert.Equal(t, "seed", got.Context.EscalationHistory[0].Rule)
	assert.Equal(t, "stale_this_week", got.Context.EscalationHistory[1].Rule)

	// Дедлайн незакрытого действия ужат вместе с алертом.
	var refreshed models.PreparedAction
	require.NoError(t, db.First(&refreshed, action.ID).Error)
	require.NotNil(t, refreshed.Deadline)
	assert.WithinDuration(t, *got.Deadline, *refreshed.Deadline, time.Second)
}

func TestEmergencyNeverMoves(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)

	deadline := time.Now().Add(time.Hour)
	alert := models.DetectionAlert{
		UserID:        user.ID,
		DetectionType: models.DetectPayrollSafety,
		Severity:      models.SeverityEmergency,
		Status:        models.AlertActive,
		Deadline:      &deadline,
		Context: models.AlertContext{
			Type:          models.DetectPayrollSafety,
			PayrollSafety: &models.PayrollSafetyContext{ShortfallVsBuffer: 20000},
		},
	}
	require.NoError(t, db.Create(&alert).Error)

	escalated, err := RunEscalationCheck(db, user)
	require.NoError(t, err)
	assert.Empty(t, escalated)

	var fresh models.DetectionAlert
	require.NoError(t, db.First(&fresh, alert.ID).Error)
	assert.Equal(t, models.SeverityEmergency, fresh.Severity)
	assert.Zero(t, fresh.EscalationCount)
}

func TestLatePaymentCoveringPayrollShortfall(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 100000)

	payroll := models.DetectionAlert{
		UserID:        user.ID,
		DetectionType: models.DetectPayrollSafety,
		Severity:      models.SeverityEmergency,
		Status:        models.AlertActive,
		Context: models.AlertContext{
			Type:          models.DetectPayrollSafety,
			PayrollSafety: &models.PayrollSafetyContext{ShortfallVsBuffer: 30000},
		},
	}
	late := models.DetectionAlert{
		UserID:        user.ID,
		DetectionType: models.DetectLatePayment,
		Severity:      models.SeverityUpcoming,
		Status:        models.AlertActive,
		Context: models.AlertContext{
			Type: models.DetectLatePayment,
			LatePayment: &models.LatePaymentContext{
				ObligationCategory: models.CategoryPayroll,
				CausingAmount:      10000,
			},
		},
	}
	require.NoError(t, db.Create(&payroll).Error)
	require.NoError(t, db.Create(&late).Error)

	escalated, err := RunEscalationCheck(db, user)
	require.NoError(t, err)
	require.Len(t, escalated, 1)

	// Просрочка покрывает треть зарплатного дефицита - это EMERGENCY.
	assert.Equal(t, late.ID, escalated[0].ID)
	assert.Equal(t, models.SeverityEmergency, escalated[0].Severity)
	assert.Equal(t, "late_payment_covers_payroll", escalated[0].Context.EscalationHistory[0].Rule)
}
