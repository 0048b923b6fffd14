// cashpilot/internal/handlers/vendor_handler.go
package handlers

import (
	"net/http"

	"cashpilot/config"
	"cashpilot/models"

	"github.com/gin-gonic/gin"
)

// ListVendorsHandler возвращает поставщиков пользователя.
func ListVendorsHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var vendors []models.Vendor
	if err := config.DB.Where("user_id = ?", user.ID).Order("id asc").
		Find(&vendors).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить поставщиков"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": vendors})
}

// VendorInput - создание и правка поставщика.
type VendorInput struct {
	Name        string                    `json:"name" binding:"required"`
	Category    models.ObligationCategory `json:"category"`
	Flexibility models.FlexibilityLevel   `json:"flexibility"`
	Criticality models.VendorCriticality  `json:"criticality"`
}

// CreateVendorHandler создает поставщика.
func CreateVendorHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input VendorInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные поставщика: " + err.Error()})
		return
	}

	vendor := models.Vendor{
		UserID:      user.ID,
		Name:        input.Name,
		Category:    input.Category,
		Flexibility: input.Flexibility,
		Criticality: input.Criticality,
	}
	if err := config.DB.Create(&vendor).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось создать поставщика"})
		return
	}
	c.JSON(http.StatusCreated, vendor)
}

// UpdateVendorHandler правит поставщика.
func UpdateVendorHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var vendor models.Vendor
	if err := config.DB.Where("user_id = ?", user.ID).First(&vendor, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Поставщик не найден"})
		return
	}

	var input VendorInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные поставщика: " + err.Error()})
		return
	}

	vendor.Name = input.Name
	if input.Category != "" {
		vendor.Category = input.Category
	}
	if input.Flexibility != "" {
		vendor.Flexibility = input.Flexibility
	}
	if input.Criticality != "" {
		vendor.Criticality = input.Criticality
	}

	if err := config.DB.Save(&vendor).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось сохранить поставщика"})
		return
	}
	c.JSON(http.StatusOK, vendor)
}

// ListBucketsHandler возвращает статьи расходов пользователя.
func ListBucketsHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var buckets []models.ExpenseBucket
	if err := config.DB.Where("user_id = ?", user.ID).Order("id asc").
		Find(&buckets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось загрузить статьи расходов"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": buckets})
}

// BucketInput - создание и правка статьи расходов.
type BucketInput struct {
	Name          string                    `json:"name" binding:"required"`
	Category      models.ObligationCategory `json:"category"`
	MonthlyAmount float64                   `json:"monthlyAmount"`
	IsFixed       bool                      `json:"isFixed"`
	VendorID      *uint                     `json:"vendorId"`
}

// CreateBucketHandler создает статью расходов.
func CreateBucketHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input BucketInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные статьи: " + err.Error()})
		return
	}

	bucket := models.ExpenseBucket{
		UserID:        user.ID,
		Name:          input.Name,
		Category:      input.Category,
		MonthlyAmount: input.MonthlyAmount,
		IsFixed:       input.IsFixed,
		VendorID:      input.VendorID,
	}
	if err := config.DB.Create(&bucket).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось создать статью расходов"})
		return
	}
	c.JSON(http.StatusCreated, bucket)
}

// UpdateBucketHandler правит статью расходов.
func UpdateBucketHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var bucket models.ExpenseBucket
	if err := config.DB.Where("user_id = ?", user.ID).First(&bucket, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Статья расходов не найдена"})
		return
	}

	var input BucketInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные данные статьи: " + err.Error()})
		return
	}

	bucket.Name = input.Name
	if input.Category != "" {
		bucket.Category = input.Category
	}
	bucket.MonthlyAmount = input.MonthlyAmount
	bucket.IsFixed = input.IsFixed
	bucket.VendorID = input.VendorID

	if err := config.DB.Save(&bucket).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось сохранить статью расходов"})
		return
	}
	c.JSON(http.StatusOK, bucket)
}
