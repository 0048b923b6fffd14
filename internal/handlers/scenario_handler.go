// cashpilot/internal/handlers/scenario_handler.go
package handlers

import (
	"errors"
	"net/http"

	"cashpilot/config"
	"cashpilot/internal/scenario"
	"cashpilot/models"

	"github.com/gin-gonic/gin"
)

// StartScenarioInput - запуск мастера сценария.
type StartScenarioInput struct {
	ScenarioType models.ScenarioType `json:"scenarioType" binding:"required"`
	// Answers позволяет сразу передать известные ответы и проскочить вопросы.
	Answers map[string]interface{} `json:"answers"`
}

// StartScenarioHandler создает сценарий и двигает конвейер до первых вопросов.
func StartScenarioHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input StartScenarioInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Нужно указать тип сценария"})
		return
	}

	result, err := scenario.Start(config.DB, user, input.ScenarioType, "wizard")
	if err != nil {
		respondScenarioError(c, err)
		return
	}

	if len(input.Answers) > 0 {
		result, err = scenario.Resume(config.DB, user, result.Scenario.Reference, input.Answers)
		if err != nil {
			respondScenarioError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, result)
}

// AnswerScenarioHandler принимает ответы мастера и продолжает конвейер.
func AnswerScenarioHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var answers map[string]interface{}
	if err := c.ShouldBindJSON(&answers); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Тело запроса должно быть объектом с ответами"})
		return
	}

	result, err := scenario.Resume(config.DB, user, c.Param("reference"), answers)
	if err != nil {
		respondScenarioError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetScenarioHandler возвращает текущее состояние сценария.
func GetScenarioHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var sc models.ScenarioDefinition
	if err := config.DB.Where("user_id = ? AND reference = ?", user.ID, c.Param("reference")).
		First(&sc).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Сценарий не найден"})
		return
	}
	c.JSON(http.StatusOK, sc)
}

// ListScenariosHandler возвращает сценарии пользователя.
func ListScenariosHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var scenarios []models.ScenarioDefinition
	var totalRows int64
	config.DB.Model(&models.ScenarioDefinition{}).Where("user_id = ?", user.ID).Count(&totalRows)
	if err := config.DB.Where("user_id = ?", user.ID).
		Order("id desc").Scopes(Paginate(c)).
		Find(&scenarios).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить сценарии"})
		return
	}
	c.JSON(http.StatusOK, CreatePaginatedResponse(c, scenarios, totalRows))
}

// CommitScenarioHandler применяет дельту сценария к каноническим данным.
func CommitScenarioHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	sc, err := scenario.Commit(config.DB, user, c.Param("reference"))
	if err != nil {
		respondScenarioError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

// DiscardScenarioHandler отбрасывает сценарий, не трогая канонические данные.
func DiscardScenarioHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	sc, err := scenario.Discard(config.DB, user, c.Param("reference"))
	if err != nil {
		respondScenarioError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func respondScenarioError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scenario.ErrUnknownScenarioType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, scenario.ErrScenarioClosed), errors.Is(err, scenario.ErrNotSimulated):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
