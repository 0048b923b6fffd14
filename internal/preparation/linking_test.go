// cashpilot/internal/preparation/linking_test.go
package preparation

import (
	"testing"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// makeLiveAction создает открытую карточку с одной рекомендованной опцией.
func makeLiveAction(t *testing.T, db *gorm.DB, user *models.User, actionType models.ActionType, content models.PreparedContent, cashImpact float64) *models.PreparedAction {
	t.Helper()

	alert := models.DetectionAlert{
		UserID:        user.ID,
		DetectionType: models.DetectBufferBreach,
		Severity:      models.SeverityThisWeek,
		Status:        models.AlertPreparing,
		Context:       models.AlertContext{Type: models.DetectBufferBreach},
	}
	require.NoError(t, db.Create(&alert).Error)

	action := models.PreparedAction{
		UserID:     user.ID,
		AlertID:    alert.ID,
		ActionType: actionType,
		Status:     models.ActionPendingApproval,
		Title:      string(actionType),
	}
	require.NoError(t, db.Create(&action).Error)

	option := models.ActionOption{
		ActionID:        action.ID,
		Title:           "Рекомендованная",
		IsRecommended:   true,
		DisplayOrder:    1,
		CashImpact:      cashImpact,
		PreparedContent: content,
	}
	require.NoError(t, db.Create(&option).Error)
	return &action
}

func TestDetectLinksFollowUpResolvesPayroll(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	followUp := makeLiveAction(t, db, user, models.ActionInvoiceFollowUp, models.PreparedContent{}, 12000)
	payroll := makeLiveAction(t, db, user, models.ActionPayrollContingency, models.PreparedContent{}, 0)

	created, err := DetectLinks(db, user.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)

	link := created[0]
	assert.Equal(t, followUp.ID, link.FromActionID)
	assert.Equal(t, payroll.ID, link.ToActionID)
	assert.Equal(t, models.LinkResolves, link.LinkType)
	assert.Contains(t, link.Reason, "12000")

	// Повторный прогон видит существующее ребро и не дублирует его.
	again, err := DetectLinks(db, user.ID)
	require.NoError(t, err)
	assert.Empty(t, again)

	var count int64
	db.Model(&models.LinkedAction{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestDetectLinksToneConflictSameClient(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	clientID := uint(7)
	followUp := makeLiveAction(t, db, user, models.ActionInvoiceFollowUp,
		models.PreparedContent{ClientID: &clientID, Tone: "firm"}, 0)
	retention := makeLiveAction(t, db, user, models.ActionClientRetention,
		models.PreparedContent{ClientID: &clientID, Tone: "soft"}, 0)

	created, err := DetectLinks(db, user.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, followUp.ID, created[0].FromActionID)
	assert.Equal(t, retention.ID, created[0].ToActionID)
	assert.Equal(t, models.LinkConflicts, created[0].LinkType)
}

func TestDetectLinksSequenceBeforeCredit(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	followUp := makeLiveAction(t, db, user, models.ActionInvoiceFollowUp, models.PreparedContent{}, 0)
	credit := makeLiveAction(t, db, user, models.ActionCreditDraw,
		models.PreparedContent{DrawAmount: 20000}, 20000)

	created, err := DetectLinks(db, user.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, followUp.ID, created[0].FromActionID)
	assert.Equal(t, credit.ID, created[0].ToActionID)
	assert.Equal(t, models.LinkSequence, created[0].LinkType)
}

func TestDetectLinksDoubleDelaySameVendorConflicts(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	vendorID := uint(7)
	first := makeLiveAction(t, db, user, models.ActionTimingRebalance,
		models.PreparedContent{VendorID: &vendorID}, 0)
	second := makeLiveAction(t, db, user, models.ActionTimingRebalance,
		models.PreparedContent{VendorID: &vendorID}, 0)

	created, err := DetectLinks(db, user.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)

	// Обе отсрочки двоят задержку поставщику: это конфликт, а не просто
	// совпадение сущности.
	link := created[0]
	assert.Equal(t, models.LinkConflicts, link.LinkType)
	assert.Equal(t, first.ID, link.FromActionID)
	assert.Equal(t, second.ID, link.ToActionID)

	var sameEntity int64
	db.Model(&models.LinkedAction{}).
		Where("link_type = ?", models.LinkSameEntity).Count(&sameEntity)
	assert.Zero(t, sameEntity)
}

func TestDetectLinksMixedDelayTypesSameVendorConflict(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	vendorID := uint(3)
	makeLiveAction(t, db, user, models.ActionVendorDelay,
		models.PreparedContent{VendorID: &vendorID}, 0)
	makeLiveAction(t, db, user, models.ActionTimingRebalance,
		models.PreparedContent{VendorID: &vendorID}, 0)

	created, err := DetectLinks(db, user.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, models.LinkConflicts, created[0].LinkType)

	// Разные поставщики конфликта не образуют.
	otherVendor := uint(9)
	makeLiveAction(t, db, user, models.ActionVendorDelay,
		models.PreparedContent{VendorID: &otherVendor}, 0)
	again, err := DetectLinks(db, user.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDetectLinksSharedEntityFallback(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	vendorID := uint(3)
	makeLiveAction(t, db, user, models.ActionVendorDelay,
		models.PreparedContent{VendorID: &vendorID}, 0)
	makeLiveAction(t, db, user, models.ActionCashReview,
		models.PreparedContent{VendorID: &vendorID}, 0)

	created, err := DetectLinks(db, user.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, models.LinkSameEntity, created[0].LinkType)
	assert.Contains(t, created[0].Reason, "поставщика")
}

func TestDetectLinksIgnoresClosedActions(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 50000)

	followUp := makeLiveAction(t, db, user, models.ActionInvoiceFollowUp, models.PreparedContent{}, 12000)
	makeLiveAction(t, db, user, models.ActionPayrollContingency, models.PreparedContent{}, 0)

	// Закрытая карточка выпадает из графа, пары не остается.
	require.NoError(t, db.Model(&models.PreparedAction{}).
		Where("id = ?", followUp.ID).
		Update("status", models.ActionExecuted).Error)

	created, err := DetectLinks(db, user.ID)
	require.NoError(t, err)
	assert.Empty(t, created)
}
