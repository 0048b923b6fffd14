// cashpilot/internal/handlers/handler_utils.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"cashpilot/config"
	"cashpilot/models"

	"github.com/gin-gonic/gin"
)

// currentUser загружает пользователя текущего запроса. Идентификатор кладет
// в контекст AuthMiddleware, поэтому отсутствие записи - авария, а не 401.
func currentUser(c *gin.Context) (*models.User, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Пользователь не аутентифицирован"})
		return nil, false
	}
	var user models.User
	if err := config.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить пользователя"})
		return nil, false
	}
	return &user, true
}

// parseDate читает дату формата 2006-01-02 из строки запроса.
func parseDate(c *gin.Context, value string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат даты, ожидается ГГГГ-ММ-ДД"})
		return time.Time{}, false
	}
	return t, true
}

// idParam читает числовой параметр пути.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор в пути запроса"})
		return 0, false
	}
	return uint(id), true
}
