// cashpilot/internal/handlers/settings_handler.go
package handlers

import (
	"errors"
	"net/http"
	"time"

	"cashpilot/config"
	"cashpilot/internal/detection"
	"cashpilot/internal/middleware"
	"cashpilot/models"

	"github.com/gin-gonic/gin"
)

// GetProfileHandler возвращает профиль и настройки пользователя.
func GetProfileHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

// ProfileInput - обновление настроек пользователя. Пустые поля не трогаются.
type ProfileInput struct {
	FullName          string            `json:"fullName"`
	CompanyName       string            `json:"companyName"`
	Currency          string            `json:"currency"`
	SafetyMode        models.SafetyMode `json:"safetyMode"`
	MonthlyRevenueRef *float64          `json:"monthlyRevenueRef"`
	CashBalance       *float64          `json:"cashBalance"`
}

// UpdateProfileHandler обновляет профиль. Смена режима осторожности
// сбрасывает кэш порогов: все правила детекции пересчитываются с новым
// множителем при следующем прогоне.
func UpdateProfileHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные профиля: " + err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if input.FullName != "" {
		updates["full_name"] = input.FullName
	}
	if input.CompanyName != "" {
		updates["company_name"] = input.CompanyName
	}
	if input.Currency != "" {
		updates["currency"] = input.Currency
	}
	if input.SafetyMode != "" {
		switch input.SafetyMode {
		case models.SafetyModeConservative, models.SafetyModeNormal, models.SafetyModeRelaxed:
			updates["safety_mode"] = input.SafetyMode
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестный режим осторожности"})
			return
		}
	}
	if input.MonthlyRevenueRef != nil {
		updates["monthly_revenue_ref"] = *input.MonthlyRevenueRef
	}
	if input.CashBalance != nil {
		updates["cash_balance"] = *input.CashBalance
		updates["balance_updated_at"] = time.Now()
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Нет полей для обновления"})
		return
	}

	if err := config.DB.Model(user).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось обновить профиль"})
		return
	}

	middleware.InvalidateUserCache(user.ID)
	detection.InvalidateThresholdCache(user.ID)

	var fresh models.User
	config.DB.First(&fresh, user.ID)
	c.JSON(http.StatusOK, fresh)
}

// ListDetectionRulesHandler возвращает переопределения правил детекции.
// Правила без переопределений работают на встроенных порогах и в списке
// не появляются.
func ListDetectionRulesHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var rules []models.DetectionRule
	if err := config.DB.Where("user_id = ?", user.ID).
		Order("detection_type asc").Find(&rules).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить правила"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rules})
}

// DetectionRuleInput - переопределение правила детекции.
type DetectionRuleInput struct {
	DetectionType models.DetectionType `json:"detectionType" binding:"required"`
	Enabled       *bool                `json:"enabled"`
	Thresholds    models.JSONB         `json:"thresholds"`
	CustomFormula *string              `json:"customFormula"`
}

// UpsertDetectionRuleHandler создает или обновляет переопределение правила.
// Формула проверяется до записи: кривое выражение не должно попасть в базу
// и уронить прогон детекции.
func UpsertDetectionRuleHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input DetectionRuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные правила: " + err.Error()})
		return
	}
	if input.CustomFormula != nil && *input.CustomFormula != "" {
		if err := detection.ValidateFormula(*input.CustomFormula); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Формула не прошла проверку: " + err.Error()})
			return
		}
	}

	var rule models.DetectionRule
	err := config.DB.Where("user_id = ? AND detection_type = ?", user.ID, input.DetectionType).
		First(&rule).Error
	if err != nil {
		rule = models.DetectionRule{
			UserID:        user.ID,
			DetectionType: input.DetectionType,
			Enabled:       true,
		}
	}
	if input.Enabled != nil {
		rule.Enabled = *input.Enabled
	}
	if input.Thresholds != nil {
		rule.Thresholds = input.Thresholds
	}
	if input.CustomFormula != nil {
		rule.CustomFormula = *input.CustomFormula
	}

	if err := config.DB.Save(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось сохранить правило"})
		return
	}
	detection.InvalidateThresholdCache(user.ID)
	c.JSON(http.StatusOK, rule)
}

// ValidateFormulaHandler проверяет формулу порога без сохранения.
func ValidateFormulaHandler(c *gin.Context) {
	var input struct {
		Formula string `json:"formula" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Нужно передать формулу"})
		return
	}
	if err := detection.ValidateFormula(input.Formula); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ListAutomationRulesHandler возвращает правила автоисполнения.
func ListAutomationRulesHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var rules []models.ExecutionAutomationRule
	if err := config.DB.Where("user_id = ?", user.ID).
		Order("action_type asc").Find(&rules).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить правила автоматизации"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rules})
}

// AutomationRuleInput - правило автоисполнения для типа действия.
type AutomationRuleInput struct {
	ActionType      models.ActionType  `json:"actionType" binding:"required"`
	AutoExecute     *bool              `json:"autoExecute"`
	ThresholdAmount *float64           `json:"thresholdAmount"`
	IncludedTags    models.StringArray `json:"includedTags"`
	ExcludedTags    models.StringArray `json:"excludedTags"`
	IsEnabled       *bool              `json:"isEnabled"`
}

// UpsertAutomationRuleHandler создает или обновляет правило автоисполнения.
// Попытка разблокировать зарплатное правило отбивается на уровне модели.
func UpsertAutomationRuleHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input AutomationRuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные правила: " + err.Error()})
		return
	}

	var rule models.ExecutionAutomationRule
	err := config.DB.Where("user_id = ? AND action_type = ?", user.ID, input.ActionType).
		First(&rule).Error
	if err != nil {
		rule = models.ExecutionAutomationRule{
			UserID:     user.ID,
			ActionType: input.ActionType,
			IsEnabled:  true,
			IsLocked:   input.ActionType == models.ActionPayrollContingency,
		}
	}
	if input.AutoExecute != nil {
		rule.AutoExecute = *input.AutoExecute
	}
	if input.ThresholdAmount != nil {
		rule.ThresholdAmount = *input.ThresholdAmount
	}
	if input.IncludedTags != nil {
		rule.IncludedTags = input.IncludedTags
	}
	if input.ExcludedTags != nil {
		rule.ExcludedTags = input.ExcludedTags
	}
	if input.IsEnabled != nil {
		rule.IsEnabled = *input.IsEnabled
	}

	if err := config.DB.Save(&rule).Error; err != nil {
		if errors.Is(err, models.ErrPayrollRuleLocked) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось сохранить правило"})
		return
	}
	c.JSON(http.StatusOK, rule)
}
