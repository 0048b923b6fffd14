// cashpilot/internal/preparation/engine_test.go
package preparation

import (
	"testing"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareFromAlertIdempotent(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 40000)

	alert := models.DetectionAlert{
		UserID:        user.ID,
		DetectionType: models.DetectCashDrop,
		Severity:      models.SeverityThisWeek,
		Status:        models.AlertActive,
		Title:         "Остаток упал",
		Description:   "Неделю назад было 60000, сейчас 40000.",
		UrgencyScore:  70,
		Context: models.AlertContext{
			Type: models.DetectCashDrop,
			CashDrop: &models.CashDropContext{
				PreviousCash: 60000,
				CurrentCash:  40000,
				DropPercent:  33,
			},
		},
	}
	require.NoError(t, db.Create(&alert).Error)

	action, err := PrepareFromAlert(db, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, models.ActionPendingApproval, action.Status)
	assert.Equal(t, models.ActionCashReview, action.ActionType)
	assert.Equal(t, 70, action.UrgencyScore)
	require.NotEmpty(t, action.Options)

	// Одна опция рекомендована, порядок отображения по возрастанию риска.
	recommended := 0
	for _, o := range action.Options {
		if o.IsRecommended {
			recommended++
		}
	}
	assert.Equal(t, 1, recommended)

	// Алерт переходит в PREPARING.
	var fresh models.DetectionAlert
	require.NoError(t, db.First(&fresh, alert.ID).Error)
	assert.Equal(t, models.AlertPreparing, fresh.Status)

	// Повторный вызов возвращает существующую карточку, не плодя дубли.
	second, err := PrepareFromAlert(db, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, action.ID, second.ID)

	var count int64
	db.Model(&models.PreparedAction{}).Where("alert_id = ?", alert.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestPrepareFromClosedAlertRejected(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 40000)

	alert := models.DetectionAlert{
		UserID:        user.ID,
		DetectionType: models.DetectCashDrop,
		Severity:      models.SeverityThisWeek,
		Status:        models.AlertResolved,
		Context: models.AlertContext{
			Type:     models.DetectCashDrop,
			CashDrop: &models.CashDropContext{PreviousCash: 60000, CurrentCash: 40000},
		},
	}
	require.NoError(t, db.Create(&alert).Error)

	_, err := PrepareFromAlert(db, alert.ID)
	assert.ErrorIs(t, err, ErrAlertNotOpen)
}

func TestTone(t *testing.T) {
	strategic := &ClientInfo{Client: &models.Client{RelationshipType: models.RelationshipStrategic}}
	assert.Equal(t, "soft", Tone(strategic))

	churning := &ClientInfo{Client: &models.Client{ChurnRisk: models.ChurnHigh}}
	assert.Equal(t, "soft", Tone(churning))

	concentrated := &ClientInfo{
		Client:         &models.Client{RelationshipType: models.RelationshipStandard},
		RevenuePercent: 25,
	}
	assert.Equal(t, "soft", Tone(concentrated))

	chronic := &ClientInfo{
		Client: &models.Client{RelationshipType: models.RelationshipStandard, AvgPaymentDelayDays: 30},
	}
	assert.Equal(t, "firm", Tone(chronic))

	plain := &ClientInfo{Client: &models.Client{RelationshipType: models.RelationshipStandard}}
	assert.Equal(t, "professional", Tone(plain))
}
