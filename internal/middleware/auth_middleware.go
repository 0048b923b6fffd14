// cashpilot/internal/middleware/auth_middleware.go
package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cashpilot/config"
	"cashpilot/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// CachedUserData - данные пользователя в кэше Redis: достаточно для
// авторизации запроса без похода в базу.
type CachedUserData struct {
	UserID uint   `json:"user_id"`
	Login  string `json:"login"`
}

// AuthMiddleware проверяет JWT (cookie или заголовок Authorization) и кладет
// идентификацию пользователя в контекст запроса.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie("auth_token")
		if err != nil || tokenStr == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				handleAuthError(c, "Токен авторизации не предоставлен")
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				handleAuthError(c, "Неверный формат заголовка Authorization")
				return
			}
			tokenStr = parts[1]
		}

		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return config.JwtKey, nil
		})
		if err != nil || !token.Valid {
			c.SetCookie("auth_token", "", -1, "/", "", false, true)
			handleAuthError(c, "Токен недействителен или истек")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			handleAuthError(c, "Неверные данные токена")
			return
		}
		userIDFloat, ok := claims["user_id"].(float64)
		if !ok {
			handleAuthError(c, "Неверный формат идентификатора в токене")
			return
		}
		userID := uint(userIDFloat)

		// Сначала кэш, база - только при промахе.
		cacheKey := fmt.Sprintf("user:%d:data", userID)
		if config.RDB != nil {
			cachedData, err := config.RDB.Get(config.Ctx, cacheKey).Result()
			if err == nil {
				var userData CachedUserData
				if json.Unmarshal([]byte(cachedData), &userData) == nil {
					setContextAndProceed(c, &userData)
					return
				}
			} else if err != redis.Nil {
				slog.Error("Redis GET завершился ошибкой", "error", err, "user_id", userID)
			}
		}

		var dbUser models.User
		if err := config.DB.First(&dbUser, userID).Error; err != nil {
			c.SetCookie("auth_token", "", -1, "/", "", false, true)
			handleAuthError(c, "Пользователь из токена не найден")
			return
		}

		userData := CachedUserData{UserID: dbUser.ID, Login: dbUser.Login}
		if config.RDB != nil {
			if payload, err := json.Marshal(userData); err == nil {
				config.RDB.Set(config.Ctx, cacheKey, payload, 0)
			}
		}
		setContextAndProceed(c, &userData)
	}
}

func setContextAndProceed(c *gin.Context, userData *CachedUserData) {
	c.Set("user_id", userData.UserID)
	c.Set("login", userData.Login)
	c.Next()
}

// InvalidateUserCache сбрасывает кэш пользователя (после смены настроек).
func InvalidateUserCache(userID uint) {
	if config.RDB == nil {
		return
	}
	config.RDB.Del(config.Ctx, fmt.Sprintf("user:%d:data", userID))
}

func handleAuthError(c *gin.Context, message string) {
	// API-клиентам отдаем JSON, браузеру - редирект на страницу входа.
	if strings.HasPrefix(c.Request.URL.Path, "/api") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
		return
	}
	c.Redirect(http.StatusFound, "/login")
	c.Abort()
}
