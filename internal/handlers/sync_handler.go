// cashpilot/internal/handlers/sync_handler.go
package handlers

import (
	"net/http"

	"cashpilot/config"
	"cashpilot/internal/syncdata"

	"github.com/gin-gonic/gin"
)

// SyncWebhookHandler принимает пакет данных учетной системы. Обработка
// идемпотентна: повторная доставка того же пакета не меняет состояние.
func SyncWebhookHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var payload syncdata.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат пакета синхронизации: " + err.Error()})
		return
	}

	result, err := syncdata.Process(config.DB, user, &payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Синхронизация завершилась ошибкой: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
