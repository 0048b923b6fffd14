// cashpilot/internal/execution/engine_test.go
package execution

import (
	"testing"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedAction создает действие в ожидании одобрения с двумя опциями.
func seedAction(t *testing.T, db *gorm.DB, user *models.User, actionType models.ActionType) (*models.PreparedAction, []models.ActionOption) {
	t.Helper()

	alert := models.DetectionAlert{
		UserID:        user.ID,
		DetectionType: models.DetectBufferBreach,
		Severity:      models.SeverityThisWeek,
		Status:        models.AlertPreparing,
		Context: models.AlertContext{
			Type:   models.DetectBufferBreach,
			Buffer: &models.BufferContext{Tier: "warning"},
		},
	}
	require.NoError(t, db.Create(&alert).Error)

	action := models.PreparedAction{
		UserID:     user.ID,
		AlertID:    alert.ID,
		ActionType: actionType,
		Status:     models.ActionPendingApproval,
		Title:      "Тестовое действие",
	}
	require.NoError(t, db.Create(&action).Error)

	options := []models.ActionOption{
		{
			ActionID: action.ID, Title: "Внутренняя опция",
			IsRecommended: true, DisplayOrder: 1,
			PreparedContent: models.PreparedContent{Notes: "без внешней отправки"},
		},
		{
			ActionID: action.ID, Title: "Альтернатива",
			DisplayOrder:    2,
			PreparedContent: models.PreparedContent{DrawAmount: 15000},
		},
	}
	require.NoError(t, db.Create(&options).Error)
	return &action, options
}

func alertStatus(t *testing.T, db *gorm.DB, alertID uint) models.AlertStatus {
	t.Helper()
	var alert models.DetectionAlert
	require.NoError(t, db.First(&alert, alertID).Error)
	return alert.Status
}

func TestApproveAndExecute(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, options := seedAction(t, db, user, models.ActionCashReview)

	approved, err := Approve(db, action.ID, options[0].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ActionApproved, approved.Status)
	require.NotNil(t, approved.ApprovedOptionID)

	// Повторное одобрение отбивается.
	_, err = Approve(db, action.ID, options[0].ID, nil)
	assert.ErrorIs(t, err, ErrNotPending)

	record, err := Execute(db, action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecSuccess, record.Result)
	assert.Equal(t, models.ExecManual, record.Method)

	var fresh models.PreparedAction
	require.NoError(t, db.First(&fresh, action.ID).Error)
	assert.Equal(t, models.ActionExecuted, fresh.Status)
	assert.Equal(t, models.AlertResolved, alertStatus(t, db, action.AlertID))

	// Закрытое действие дальше не двигается.
	_, err = Execute(db, action.ID)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestApproveWithEditsMarksEdited(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, options := seedAction(t, db, user, models.ActionCreditDraw)

	edits := &models.PreparedContent{DrawAmount: 9000, Notes: "уменьшил выборку"}
	approved, err := Approve(db, action.ID, options[1].ID, edits)
	require.NoError(t, err)
	assert.Equal(t, models.ActionEdited, approved.Status)

	var option models.ActionOption
	require.NoError(t, db.First(&option, options[1].ID).Error)
	assert.Equal(t, 9000.0, option.PreparedContent.DrawAmount)
	assert.Equal(t, "уменьшил выборку", option.PreparedContent.Notes)
}

func TestExecuteUnapprovedRejected(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, _ := seedAction(t, db, user, models.ActionCashReview)

	_, err := Execute(db, action.ID)
	assert.ErrorIs(t, err, ErrNotApproved)
}

func TestApproveForeignOptionRejected(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, _ := seedAction(t, db, user, models.ActionCashReview)
	other, otherOptions := seedAction(t, db, user, models.ActionCreditDraw)
	_ = other

	_, err := Approve(db, action.ID, otherOptions[0].ID, nil)
	assert.ErrorIs(t, err, ErrOptionMismatch)
}

func TestSkipReopensAlert(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, _ := seedAction(t, db, user, models.ActionCashReview)

	require.NoError(t, Skip(db, action.ID, "займусь позже"))

	var fresh models.PreparedAction
	require.NoError(t, db.First(&fresh, action.ID).Error)
	assert.Equal(t, models.ActionSkipped, fresh.Status)
	assert.Contains(t, fresh.ProblemSummary, "займусь позже")

	// Пропуск не решает проблему: алерт снова активен.
	assert.Equal(t, models.AlertActive, alertStatus(t, db, action.AlertID))
}

func TestOverrideDismissesAlert(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, _ := seedAction(t, db, user, models.ActionCashReview)

	require.NoError(t, Override(db, action.ID, "решил по телефону"))

	var fresh models.PreparedAction
	require.NoError(t, db.First(&fresh, action.ID).Error)
	assert.Equal(t, models.ActionOverridden, fresh.Status)
	assert.Equal(t, models.AlertDismissed, alertStatus(t, db, action.AlertID))
}

func TestMarkExecutedWithoutApproval(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, _ := seedAction(t, db, user, models.ActionCashReview)

	record, err := MarkExecuted(db, action.ID, "оплатил из банка напрямую")
	require.NoError(t, err)
	assert.Equal(t, models.ExecSuccess, record.Result)
	assert.Equal(t, "оплатил из банка напрямую", record.ExecutedContent.Notes)

	assert.Equal(t, models.AlertResolved, alertStatus(t, db, action.AlertID))
}
