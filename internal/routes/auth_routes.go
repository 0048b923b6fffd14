// cashpilot/internal/routes/auth_routes.go
package routes

import (
	"cashpilot/internal/handlers"

	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes регистрирует публичные маршруты для аутентификации.
// Эти маршруты не требуют middleware для проверки токена.
func RegisterAuthRoutes(r *gin.Engine) {
	// Регистрация владельца компании.
	r.POST("/register", handlers.RegisterHandler)

	// Обработка данных с формы входа.
	r.POST("/login", handlers.LoginHandler)

	// Выход пользователя из системы.
	r.GET("/logout", handlers.LogoutHandler)
}
