// cashpilot/internal/execution/automation_test.go
package execution

import (
	"testing"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func approveFirst(t *testing.T, db *gorm.DB, action *models.PreparedAction, optionID uint) *models.PreparedAction {
	t.Helper()
	_, err := Approve(db, action.ID, optionID, nil)
	require.NoError(t, err)
	var full models.PreparedAction
	require.NoError(t, db.Preload("Options").First(&full, action.ID).Error)
	return &full
}

func TestAutomationRequiresApproval(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, _ := seedAction(t, db, user, models.ActionCreditDraw)

	var full models.PreparedAction
	require.NoError(t, db.Preload("Options").First(&full, action.ID).Error)

	ok, reason := CheckAutomationEligibility(db, &full)
	assert.False(t, ok)
	assert.Equal(t, "действие не одобрено", reason)
}

func TestAutomationPayrollAlwaysBlocked(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, options := seedAction(t, db, user, models.ActionPayrollContingency)
	full := approveFirst(t, db, action, options[0].ID)

	// Даже с самым разрешающим правилом зарплата блокируется до его чтения.
	ok, reason := CheckAutomationEligibility(db, full)
	assert.False(t, ok)
	assert.Equal(t, "зарплатные действия исполняются только вручную", reason)
}

func TestAutomationNeedsRule(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, options := seedAction(t, db, user, models.ActionCreditDraw)
	full := approveFirst(t, db, action, options[0].ID)

	ok, reason := CheckAutomationEligibility(db, full)
	assert.False(t, ok)
	assert.Contains(t, reason, "нет правила автоисполнения")
}

func TestAutomationThresholdGate(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, options := seedAction(t, db, user, models.ActionCreditDraw)
	// Опция с DrawAmount 15000.
	full := approveFirst(t, db, action, options[1].ID)

	rule := models.ExecutionAutomationRule{
		UserID:          user.ID,
		ActionType:      models.ActionCreditDraw,
		AutoExecute:     true,
		IsEnabled:       true,
		ThresholdAmount: 10000,
	}
	require.NoError(t, db.Create(&rule).Error)

	ok, reason := CheckAutomationEligibility(db, full)
	assert.False(t, ok)
	assert.Contains(t, reason, "превышает порог")

	require.NoError(t, db.Model(&rule).Update("threshold_amount", 20000).Error)
	ok, reason = CheckAutomationEligibility(db, full)
	assert.True(t, ok, reason)
}

func TestAutomationFirmToneBlocked(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, _ := seedAction(t, db, user, models.ActionInvoiceFollowUp)

	firm := models.ActionOption{
		ActionID: action.ID,
		Title:    "Жесткое требование",
		PreparedContent: models.PreparedContent{
			Tone:         "firm",
			EmailSubject: "Просроченная оплата",
			EmailBody:    "Требуем немедленной оплаты.",
		},
	}
	require.NoError(t, db.Create(&firm).Error)
	full := approveFirst(t, db, action, firm.ID)

	rule := models.ExecutionAutomationRule{
		UserID:          user.ID,
		ActionType:      models.ActionInvoiceFollowUp,
		AutoExecute:     true,
		IsEnabled:       true,
		ThresholdAmount: 100000,
	}
	require.NoError(t, db.Create(&rule).Error)

	ok, reason := CheckAutomationEligibility(db, full)
	assert.False(t, ok)
	assert.Contains(t, reason, "жесткий тон")
}

func TestAutomationTagGates(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, options := seedAction(t, db, user, models.ActionCreditDraw)
	full := approveFirst(t, db, action, options[1].ID)

	rule := models.ExecutionAutomationRule{
		UserID:          user.ID,
		ActionType:      models.ActionCreditDraw,
		AutoExecute:     true,
		IsEnabled:       true,
		ThresholdAmount: 100000,
		ExcludedTags:    models.StringArray{"credit"},
	}
	require.NoError(t, db.Create(&rule).Error)

	// DrawAmount > 0 попадает под исключающий тег "credit".
	ok, reason := CheckAutomationEligibility(db, full)
	assert.False(t, ok)
	assert.Contains(t, reason, "исключающий тег")

	// Пустой разрешающий список пропускает все, непустой требует совпадения.
	require.NoError(t, db.Model(&rule).Updates(map[string]interface{}{
		"excluded_tags": models.StringArray{},
		"included_tags": models.StringArray{"email"},
	}).Error)
	ok, reason = CheckAutomationEligibility(db, full)
	assert.False(t, ok)
	assert.Contains(t, reason, "разрешающий тег")
}

func TestAutoExecuteEndToEnd(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)
	action, options := seedAction(t, db, user, models.ActionCashReview)
	approveFirst(t, db, action, options[0].ID)

	rule := models.ExecutionAutomationRule{
		UserID:          user.ID,
		ActionType:      models.ActionCashReview,
		AutoExecute:     true,
		IsEnabled:       true,
		ThresholdAmount: 1000,
	}
	require.NoError(t, db.Create(&rule).Error)

	record, reason, err := AutoExecute(db, action.ID)
	require.NoError(t, err)
	assert.Empty(t, reason)
	require.NotNil(t, record)
	assert.Equal(t, models.ExecAutomated, record.Method)
	assert.Equal(t, models.ExecSuccess, record.Result)

	assert.Equal(t, models.AlertResolved, alertStatus(t, db, action.AlertID))
}

func TestPayrollRuleModelLock(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	// Разблокированное или автоисполняемое зарплатное правило не сохраняется.
	bad := models.ExecutionAutomationRule{
		UserID:      user.ID,
		ActionType:  models.ActionPayrollContingency,
		AutoExecute: true,
		IsLocked:    true,
	}
	err := db.Create(&bad).Error
	assert.ErrorIs(t, err, models.ErrPayrollRuleLocked)

	unlocked := models.ExecutionAutomationRule{
		UserID:     user.ID,
		ActionType: models.ActionPayrollContingency,
		IsLocked:   false,
	}
	err = db.Create(&unlocked).Error
	assert.ErrorIs(t, err, models.ErrPayrollRuleLocked)

	locked := models.ExecutionAutomationRule{
		UserID:     user.ID,
		ActionType: models.ActionPayrollContingency,
		IsLocked:   true,
	}
	assert.NoError(t, db.Create(&locked).Error)
}
