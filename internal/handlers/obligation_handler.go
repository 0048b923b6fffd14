// cashpilot/internal/handlers/obligation_handler.go
package handlers

import (
	"net/http"
	"time"

	"cashpilot/config"
	"cashpilot/internal/obligation"
	"cashpilot/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListAgreementsHandler возвращает договоренности пользователя.
func ListAgreementsHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	query := config.DB.Where("user_id = ?", user.ID).Order("id asc")
	if c.Query("active") == "true" {
		query = query.Where("end_date IS NULL OR end_date > ?", time.Now())
	}
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var agreements []models.ObligationAgreement
	var totalRows int64
	config.DB.Model(&models.ObligationAgreement{}).Where("user_id = ?", user.ID).Count(&totalRows)
	if err := query.Scopes(Paginate(c)).Find(&agreements).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить договоренности"})
		return
	}
	c.JSON(http.StatusOK, CreatePaginatedResponse(c, agreements, totalRows))
}

// AgreementInput - создание договоренности.
type AgreementInput struct {
	Name       string                    `json:"name" binding:"required"`
	Type       models.AgreementType      `json:"type" binding:"required"`
	Category   models.ObligationCategory `json:"category" binding:"required"`
	AmountType models.AmountType         `json:"amountType"`
	BaseAmount float64                   `json:"baseAmount" binding:"required"`
	Frequency  models.Frequency          `json:"frequency" binding:"required"`
	StartDate  string                    `json:"startDate" binding:"required"`

	ClientID        *uint `json:"clientId"`
	VendorID        *uint `json:"vendorId"`
	ExpenseBucketID *uint `json:"expenseBucketId"`
}

// CreateAgreementHandler создает договоренность и сразу порождает ее графики.
func CreateAgreementHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input AgreementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные договоренности: " + err.Error()})
		return
	}
	startDate, ok := parseDate(c, input.StartDate)
	if !ok {
		return
	}

	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       input.Name,
		Type:       input.Type,
		Category:   input.Category,
		AmountType: input.AmountType,
		BaseAmount: input.BaseAmount,
		Frequency:  input.Frequency,
		StartDate:  startDate,
		Source:     models.SourceManual,
		Confidence: models.ConfidenceLow,

		ClientID:        input.ClientID,
		VendorID:        input.VendorID,
		ExpenseBucketID: input.ExpenseBucketID,
	}
	// Привязка к контрагенту поднимает уверенность до medium; до high
	// договоренность доводит только синхронизация учетного документа.
	if input.ClientID != nil || input.VendorID != nil {
		agreement.Confidence = models.ConfidenceMedium
	}

	if err := config.DB.Create(&agreement).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось создать договоренность"})
		return
	}

	if _, err := obligation.GenerateSchedules(config.DB, user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Договоренность создана, но графики не порождены"})
		return
	}
	c.JSON(http.StatusCreated, agreement)
}

// EndAgreementHandler завершает договоренность. Физического удаления нет:
// история обязательств неприкосновенна.
func EndAgreementHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var input struct {
		EndDate string `json:"endDate" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Дата завершения обязательна"})
		return
	}
	endDate, ok := parseDate(c, input.EndDate)
	if !ok {
		return
	}

	var agreement models.ObligationAgreement
	if err := config.DB.Where("user_id = ?", user.ID).First(&agreement, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Договоренность не найдена"})
		return
	}

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&agreement).Update("end_date", endDate).Error; err != nil {
			return err
		}
		return tx.Model(&models.ObligationSchedule{}).
			Where("agreement_id = ? AND due_date > ? AND status IN ?",
				agreement.ID, endDate,
				[]models.ScheduleStatus{models.ScheduleScheduled, models.ScheduleDue}).
			Update("status", models.ScheduleCancelled).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось завершить договоренность"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Договоренность завершена", "endDate": input.EndDate})
}

// ListSchedulesHandler возвращает графики платежей в интервале дат.
func ListSchedulesHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	query := config.DB.Joins("Agreement").
		Where("\"Agreement\".user_id = ?", user.ID).
		Order("obligation_schedules.due_date asc")
	if from := c.Query("from"); from != "" {
		fromDate, ok := parseDate(c, from)
		if !ok {
			return
		}
		query = query.Where("obligation_schedules.due_date >= ?", fromDate)
	}
	if to := c.Query("to"); to != "" {
		toDate, ok := parseDate(c, to)
		if !ok {
			return
		}
		query = query.Where("obligation_schedules.due_date <= ?", toDate)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("obligation_schedules.status = ?", status)
	}

	var schedules []models.ObligationSchedule
	if err := query.Find(&schedules).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить графики"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": schedules})
}

// PaymentInput - ручная запись фактического платежа.
type PaymentInput struct {
	Amount      float64 `json:"amount" binding:"required"`
	PaymentDate string  `json:"paymentDate" binding:"required"`
	ScheduleID  *uint   `json:"scheduleId"`
}

// RecordPaymentHandler записывает фактическое движение денег и сверяет его
// с ожидаемым графиком.
func RecordPaymentHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input PaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные платежа: " + err.Error()})
		return
	}
	paymentDate, ok := parseDate(c, input.PaymentDate)
	if !ok {
		return
	}

	event := models.PaymentEvent{
		Amount:      input.Amount,
		PaymentDate: paymentDate,
		ScheduleID:  input.ScheduleID,
		Source:      "manual",
	}
	if err := obligation.RecordPayment(config.DB, user, &event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось записать платеж: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, event)
}

// ListPaymentsHandler возвращает фактические движения денег.
func ListPaymentsHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var events []models.PaymentEvent
	var totalRows int64
	config.DB.Model(&models.PaymentEvent{}).Where("user_id = ?", user.ID).Count(&totalRows)
	if err := config.DB.Where("user_id = ?", user.ID).
		Order("payment_date desc").Scopes(Paginate(c)).
		Find(&events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить платежи"})
		return
	}
	c.JSON(http.StatusOK, CreatePaginatedResponse(c, events, totalRows))
}
