// cashpilot/internal/handlers/assistant_handler.go
package handlers

import (
	"net/http"

	"cashpilot/config"
	"cashpilot/internal/assistant"

	"github.com/gin-gonic/gin"
)

// AskAssistantInput - вопрос ассистенту на естественном языке.
type AskAssistantInput struct {
	Question string `json:"question" binding:"required"`
}

// AskAssistantHandler отвечает на вопрос о деньгах. Вопросы вида "что если"
// превращаются в запущенный сценарий, ответ возвращает его вопросы мастера.
func AskAssistantHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input AskAssistantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Нужно передать вопрос"})
		return
	}

	reply, err := assistant.Ask(config.DB, user, input.Question)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ассистент не смог ответить: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, reply)
}
