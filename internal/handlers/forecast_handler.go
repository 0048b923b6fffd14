// cashpilot/internal/handlers/forecast_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cashpilot/config"
	"cashpilot/internal/forecast"

	"github.com/gin-gonic/gin"
)

// GetForecastHandler считает и возвращает прогноз. Параметр weeks меняет
// глубину горизонта (по умолчанию 13 недель).
func GetForecastHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	weeks := forecast.DefaultHorizonWeeks
	if w := c.Query("weeks"); w != "" {
		parsed, err := strconv.Atoi(w)
		if err != nil || parsed <= 0 || parsed > 52 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Параметр weeks должен быть числом от 1 до 52"})
			return
		}
		weeks = parsed
	}

	fc, err := forecast.CalculateForecast(config.DB, user, weeks)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Расчет прогноза не удался: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, fc)
}

// ExportForecastHandler отдает прогноз файлом Excel.
func ExportForecastHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	fc, err := forecast.CalculateForecast(config.DB, user, forecast.DefaultHorizonWeeks)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Расчет прогноза не удался: " + err.Error()})
		return
	}

	file, err := forecast.ExportXLSX(fc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось сформировать файл"})
		return
	}
	defer file.Close()

	filename := fmt.Sprintf("forecast_%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := file.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось отдать файл"})
	}
}
