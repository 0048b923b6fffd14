// cashpilot/internal/handlers/ws_handler.go
package handlers

import (
	"cashpilot/internal/notify"

	"github.com/gin-gonic/gin"
)

// WebsocketHandler подключает пользователя к каналу живых уведомлений.
func WebsocketHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	notify.ServeWS(c.Writer, c.Request, user.ID)
}
