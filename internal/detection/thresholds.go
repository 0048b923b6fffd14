// cashpilot/internal/detection/thresholds.go
package detection

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"cashpilot/config"
	"cashpilot/models"

	"github.com/Knetic/govaluate"
	"gorm.io/gorm"
)

// Thresholds - персональная конфигурация порогов на один прогон детекции.
// Загружается один раз (с кэшем в Redis) и передается детекторам явно.
type Thresholds struct {
	user  *models.User
	rules map[models.DetectionType]models.DetectionRule
}

// LoadThresholds читает правила детекции пользователя, сперва пробуя кэш.
func LoadThresholds(db *gorm.DB, user *models.User) (*Thresholds, error) {
	t := &Thresholds{user: user, rules: make(map[models.DetectionType]models.DetectionRule)}

	cacheKey := fmt.Sprintf("user:%d:detection_rules", user.ID)
	if config.RDB != nil {
		if cached, err := config.RDB.Get(config.Ctx, cacheKey).Result(); err == nil {
			var rules []models.DetectionRule
			if json.Unmarshal([]byte(cached), &rules) == nil {
				for _, r := range rules {
					t.rules[r.DetectionType] = r
				}
				return t, nil
			}
		}
	}

	var rules []models.DetectionRule
	if err := db.Where("user_id = ?", user.ID).Find(&rules).Error; err != nil {
		return nil, err
	}
	for _, r := range rules {
		t.rules[r.DetectionType] = r
	}

	if config.RDB != nil {
		if data, err := json.Marshal(rules); err == nil {
			if err := config.RDB.Set(config.Ctx, cacheKey, data, 0).Err(); err != nil {
				slog.Warn("Не удалось записать правила детекции в кэш", "error", err)
			}
		}
	}
	return t, nil
}

// InvalidateThresholdCache сбрасывает кэш после изменения настроек.
func InvalidateThresholdCache(userID uint) {
	if config.RDB == nil {
		return
	}
	config.RDB.Del(config.Ctx, fmt.Sprintf("user:%d:detection_rules", userID))
}

// Multiplier - единый множитель режима осторожности.
func (t *Thresholds) Multiplier() float64 {
	return t.user.SafetyMode.ThresholdMultiplier()
}

// Enabled сообщает, включено ли правило. Правило без явной записи включено.
func (t *Thresholds) Enabled(dt models.DetectionType) bool {
	r, ok := t.rules[dt]
	if !ok {
		return true
	}
	return r.Enabled
}

// Number возвращает числовой порог правила: переопределение пользователя
// или значение по умолчанию.
func (t *Thresholds) Number(dt models.DetectionType, key string, def float64) float64 {
	r, ok := t.rules[dt]
	if !ok || r.Thresholds == nil {
		return def
	}
	if v, ok := r.Thresholds[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

// Floor возвращает порог-требование (минимальный запас), умноженный на
// множитель режима: в консервативном режиме требования выше.
func (t *Thresholds) Floor(dt models.DetectionType, key string, def float64) float64 {
	return t.Number(dt, key, def) * t.Multiplier()
}

// TripRatio возвращает порог-срабатывание (доля, при превышении которой
// возникает алерт), деленный на множитель: в консервативном режиме алерт
// возникает при меньшей доле.
func (t *Thresholds) TripRatio(dt models.DetectionType, key string, def float64) float64 {
	return t.Number(dt, key, def) / t.Multiplier()
}

// FormulaThreshold вычисляет порог пользовательской формулой, если она задана.
// Формула получает метрики прогона и может переопределить только значение
// порога, но не логику правила. Ошибка формулы не валит детекцию - порог
// остается базовым.
func (t *Thresholds) FormulaThreshold(dt models.DetectionType, base float64, cc *CashContext) float64 {
	r, ok := t.rules[dt]
	if !ok || r.CustomFormula == "" {
		return base
	}

	expr, err := govaluate.NewEvaluableExpression(r.CustomFormula)
	if err != nil {
		slog.Warn("Ошибка в пользовательской формуле порога", "type", dt, "error", err)
		return base
	}

	params := map[string]interface{}{
		"cash":         cc.Cash,
		"monthly_burn": cc.MonthlyBurn,
		"multiplier":   t.Multiplier(),
		"base":         base,
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		slog.Warn("Не удалось вычислить формулу порога", "type", dt, "error", err)
		return base
	}
	if f, ok := result.(float64); ok {
		return f
	}
	return base
}

// ValidateFormula проверяет синтаксис пользовательской формулы при сохранении
// настроек: формула должна вычисляться в число на тестовых метриках.
func ValidateFormula(formula string) error {
	if formula == "" {
		return nil
	}
	expr, err := govaluate.NewEvaluableExpression(formula)
	if err != nil {
		return fmt.Errorf("синтаксическая ошибка в формуле: %v", err)
	}
	result, err := expr.Evaluate(map[string]interface{}{
		"cash": 100000.0, "monthly_burn": 50000.0, "multiplier": 1.0, "base": 1.0,
	})
	if err != nil {
		return fmt.Errorf("формула не вычисляется: %v", err)
	}
	if _, ok := result.(float64); !ok {
		return fmt.Errorf("результат формулы не является числом")
	}
	return nil
}
