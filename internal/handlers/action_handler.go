// cashpilot/internal/handlers/action_handler.go
package handlers

import (
	"errors"
	"net/http"

	"cashpilot/config"
	"cashpilot/internal/execution"
	"cashpilot/internal/preparation"
	"cashpilot/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListActionsHandler возвращает очередь действий: по умолчанию живые,
// по убыванию срочности.
func ListActionsHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	openStatuses := []models.ActionStatus{
		models.ActionPendingApproval, models.ActionApproved, models.ActionEdited,
	}
	query := config.DB.Preload("Options").
		Where("user_id = ?", user.ID).Order("urgency_score desc, id desc")
	countQuery := config.DB.Model(&models.PreparedAction{}).Where("user_id = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
		countQuery = countQuery.Where("status = ?", status)
	} else if c.Query("all") != "true" {
		query = query.Where("status IN ?", openStatuses)
		countQuery = countQuery.Where("status IN ?", openStatuses)
	}

	var totalRows int64
	countQuery.Count(&totalRows)

	var actions []models.PreparedAction
	if err := query.Scopes(Paginate(c)).Find(&actions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить очередь действий"})
		return
	}
	c.JSON(http.StatusOK, CreatePaginatedResponse(c, actions, totalRows))
}

// GetActionHandler возвращает карточку с опциями и связями.
func GetActionHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var action models.PreparedAction
	if err := config.DB.Preload("Options").
		Where("user_id = ?", user.ID).First(&action, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Действие не найдено"})
		return
	}

	var links []models.LinkedAction
	config.DB.Where("user_id = ? AND (from_action_id = ? OR to_action_id = ?)",
		user.ID, action.ID, action.ID).Find(&links)

	c.JSON(http.StatusOK, gin.H{"action": action, "links": links})
}

// PrepareActionHandler строит карточку действия по алерту.
func PrepareActionHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	alertID, ok := idParam(c, "alertId")
	if !ok {
		return
	}

	// Принадлежность алерта проверяем до запуска подготовки.
	var alert models.DetectionAlert
	if err := config.DB.Where("user_id = ?", user.ID).First(&alert, alertID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Алерт не найден"})
		return
	}

	action, err := preparation.PrepareFromAlert(config.DB, alert.ID)
	if err != nil {
		if errors.Is(err, preparation.ErrAlertNotOpen) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Подготовка действия не удалась: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, action)
}

// ApproveActionInput - одобрение с выбранной опцией и необязательными правками.
type ApproveActionInput struct {
	OptionID uint                    `json:"optionId" binding:"required"`
	Edits    *models.PreparedContent `json:"edits"`
}

// ApproveActionHandler одобряет действие.
func ApproveActionHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if !ownsAction(c, user.ID, id) {
		return
	}

	var input ApproveActionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Нужно выбрать опцию исполнения"})
		return
	}

	action, err := execution.Approve(config.DB, id, input.OptionID, input.Edits)
	if err != nil {
		respondExecutionError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// ExecuteActionHandler исполняет одобренное действие системой.
func ExecuteActionHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if !ownsAction(c, user.ID, id) {
		return
	}

	record, err := execution.Execute(config.DB, id)
	if err != nil {
		respondExecutionError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// AutoExecuteActionHandler исполняет действие через ворота автоматизации.
func AutoExecuteActionHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if !ownsAction(c, user.ID, id) {
		return
	}

	record, reason, err := execution.AutoExecute(config.DB, id)
	if err != nil {
		respondExecutionError(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Автоисполнение отклонено", "reason": reason})
		return
	}
	c.JSON(http.StatusOK, record)
}

// MarkExecutedActionHandler закрывает действие, исполненное вне системы.
func MarkExecutedActionHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if !ownsAction(c, user.ID, id) {
		return
	}

	var input struct {
		Note string `json:"note"`
	}
	_ = c.ShouldBindJSON(&input)

	record, err := execution.MarkExecuted(config.DB, id, input.Note)
	if err != nil {
		respondExecutionError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// SkipActionHandler пропускает действие: алерт возвращается в работу.
func SkipActionHandler(c *gin.Context) {
	closeActionHandler(c, execution.Skip)
}

// OverrideActionHandler закрывает действие как решенное иначе.
func OverrideActionHandler(c *gin.Context) {
	closeActionHandler(c, execution.Override)
}

func closeActionHandler(c *gin.Context, fn func(db *gorm.DB, actionID uint, reason string) error) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if !ownsAction(c, user.ID, id) {
		return
	}

	var input struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&input)

	if err := fn(config.DB, id, input.Reason); err != nil {
		respondExecutionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Действие закрыто"})
}

func ownsAction(c *gin.Context, userID, actionID uint) bool {
	var count int64
	config.DB.Model(&models.PreparedAction{}).
		Where("id = ? AND user_id = ?", actionID, userID).Count(&count)
	if count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Действие не найдено"})
		return false
	}
	return true
}

func respondExecutionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, execution.ErrTerminal),
		errors.Is(err, execution.ErrNotPending),
		errors.Is(err, execution.ErrNotApproved),
		errors.Is(err, execution.ErrOptionMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
