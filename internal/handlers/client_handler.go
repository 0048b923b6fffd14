// cashpilot/internal/handlers/client_handler.go
package handlers

import (
	"net/http"

	"cashpilot/config"
	"cashpilot/models"

	"github.com/gin-gonic/gin"
)

// ListClientsHandler возвращает постраничный список клиентов пользователя.
func ListClientsHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	query := config.DB.Preload("Milestones").
		Where("user_id = ?", user.ID).Order("id asc")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var clients []models.Client
	if c.Query("all") == "true" {
		if err := query.Find(&clients).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить клиентов"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": clients})
		return
	}

	var totalRows int64
	config.DB.Model(&models.Client{}).Where("user_id = ?", user.ID).Count(&totalRows)
	if err := query.Scopes(Paginate(c)).Find(&clients).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить клиентов"})
		return
	}
	c.JSON(http.StatusOK, CreatePaginatedResponse(c, clients, totalRows))
}

// GetClientHandler возвращает клиента с вехами.
func GetClientHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var client models.Client
	if err := config.DB.Preload("Milestones").
		Where("user_id = ?", user.ID).First(&client, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Клиент не найден"})
		return
	}
	c.JSON(http.StatusOK, client)
}

// ClientInput - создание и правка клиента.
type ClientInput struct {
	Name             string                  `json:"name" binding:"required"`
	Status           models.ClientStatus     `json:"status"`
	BillingModel     models.BillingModel     `json:"billingModel"`
	Amount           float64                 `json:"amount"`
	BillingCycle     models.Frequency        `json:"billingCycle"`
	PaymentTermsDays int                     `json:"paymentTermsDays"`
	RelationshipType models.RelationshipType `json:"relationshipType"`
	ChurnRisk        models.ChurnRisk        `json:"churnRisk"`
}

// CreateClientHandler создает клиента.
func CreateClientHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input ClientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные клиента: " + err.Error()})
		return
	}

	client := models.Client{
		UserID:           user.ID,
		Name:             input.Name,
		Status:           input.Status,
		BillingModel:     input.BillingModel,
		Amount:           input.Amount,
		BillingCycle:     input.BillingCycle,
		PaymentTermsDays: input.PaymentTermsDays,
		RelationshipType: input.RelationshipType,
		ChurnRisk:        input.ChurnRisk,
	}
	if client.Status == "" {
		client.Status = models.ClientActive
	}
	if err := config.DB.Create(&client).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось создать клиента"})
		return
	}
	c.JSON(http.StatusCreated, client)
}

// UpdateClientHandler правит клиента.
func UpdateClientHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var client models.Client
	if err := config.DB.Where("user_id = ?", user.ID).First(&client, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Клиент не найден"})
		return
	}

	var input ClientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные клиента: " + err.Error()})
		return
	}

	client.Name = input.Name
	if input.Status != "" {
		client.Status = input.Status
	}
	if input.BillingModel != "" {
		client.BillingModel = input.BillingModel
	}
	client.Amount = input.Amount
	if input.BillingCycle != "" {
		client.BillingCycle = input.BillingCycle
	}
	client.PaymentTermsDays = input.PaymentTermsDays
	if input.RelationshipType != "" {
		client.RelationshipType = input.RelationshipType
	}
	if input.ChurnRisk != "" {
		client.ChurnRisk = input.ChurnRisk
	}

	if err := config.DB.Save(&client).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось сохранить клиента"})
		return
	}
	c.JSON(http.StatusOK, client)
}

// MilestoneInput - веха проектного клиента.
type MilestoneInput struct {
	Name             string  `json:"name" binding:"required"`
	Amount           float64 `json:"amount" binding:"required"`
	DueDate          string  `json:"dueDate" binding:"required"` // 2006-01-02
	PaymentDelayDays int     `json:"paymentDelayDays"`
}

// CreateMilestoneHandler добавляет веху проектному клиенту.
func CreateMilestoneHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var client models.Client
	if err := config.DB.Where("user_id = ?", user.ID).First(&client, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Клиент не найден"})
		return
	}
	if client.BillingModel != models.BillingProject {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Вехи доступны только проектным клиентам"})
		return
	}

	var input MilestoneInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные вехи: " + err.Error()})
		return
	}
	dueDate, ok := parseDate(c, input.DueDate)
	if !ok {
		return
	}

	milestone := models.ClientMilestone{
		ClientID:         client.ID,
		Name:             input.Name,
		Amount:           input.Amount,
		DueDate:          dueDate,
		PaymentDelayDays: input.PaymentDelayDays,
	}
	if err := config.DB.Create(&milestone).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось создать веху"})
		return
	}
	c.JSON(http.StatusCreated, milestone)
}
