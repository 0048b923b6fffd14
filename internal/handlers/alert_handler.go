// cashpilot/internal/handlers/alert_handler.go
package handlers

import (
	"net/http"

	"cashpilot/config"
	"cashpilot/internal/detection"
	"cashpilot/internal/escalation"
	"cashpilot/models"

	"github.com/gin-gonic/gin"
)

// ListAlertsHandler возвращает очередь алертов: по умолчанию открытые,
// по убыванию срочности.
func ListAlertsHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	query := config.DB.Where("user_id = ?", user.ID).Order("urgency_score desc, id desc")
	countQuery := config.DB.Model(&models.DetectionAlert{}).Where("user_id = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
		countQuery = countQuery.Where("status = ?", status)
	} else if c.Query("all") != "true" {
		query = query.Where("status IN ?", models.OpenAlertStatuses)
		countQuery = countQuery.Where("status IN ?", models.OpenAlertStatuses)
	}

	var totalRows int64
	countQuery.Count(&totalRows)

	var alerts []models.DetectionAlert
	if err := query.Scopes(Paginate(c)).Find(&alerts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить алерты"})
		return
	}
	c.JSON(http.StatusOK, CreatePaginatedResponse(c, alerts, totalRows))
}

// GetAlertHandler возвращает алерт с историей эскалаций.
func GetAlertHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var alert models.DetectionAlert
	if err := config.DB.Where("user_id = ?", user.ID).First(&alert, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Алерт не найден"})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// AcknowledgeAlertHandler отмечает алерт увиденным. Увиденный алерт остается
// открытым и продолжает эскалироваться.
func AcknowledgeAlertHandler(c *gin.Context) {
	updateAlertStatus(c, models.AlertAcknowledged,
		[]models.AlertStatus{models.AlertActive},
		"Алерт можно отметить увиденным только из статуса ACTIVE")
}

// DismissAlertHandler закрывает алерт вручную без действия.
func DismissAlertHandler(c *gin.Context) {
	updateAlertStatus(c, models.AlertDismissed,
		models.OpenAlertStatuses,
		"Закрыть можно только открытый алерт")
}

func updateAlertStatus(c *gin.Context, target models.AlertStatus, from []models.AlertStatus, errMsg string) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var alert models.DetectionAlert
	if err := config.DB.Where("user_id = ?", user.ID).First(&alert, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Алерт не найден"})
		return
	}

	allowed := false
	for _, s := range from {
		if alert.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		c.JSON(http.StatusConflict, gin.H{"error": errMsg})
		return
	}

	if err := config.DB.Model(&alert).Update("status", target).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось обновить алерт"})
		return
	}
	alert.Status = target
	c.JSON(http.StatusOK, alert)
}

// RunDetectionHandler запускает детекцию по требованию. С параметром type
// прогоняется одно правило, иначе все.
func RunDetectionHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var alerts []models.DetectionAlert
	var err error
	if dt := c.Query("type"); dt != "" {
		alerts, err = detection.RunDetectionType(config.DB, user, models.DetectionType(dt))
	} else {
		alerts, err = detection.RunAllDetections(config.DB, user)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Детекция завершилась ошибкой: " + err.Error()})
		return
	}

	// Сразу прогоняем эскалацию: свежесозданные алерты могут уже требовать
	// повышения срочности.
	if _, err := escalation.RunEscalationCheck(config.DB, user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Эскалация завершилась ошибкой: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"created": len(alerts), "alerts": alerts})
}
