// cashpilot/internal/scenario/overlay.go
package scenario

import (
	"fmt"
	"time"

	"cashpilot/internal/forecast"
	"cashpilot/models"

	"gorm.io/gorm"
)

// Наложение дельты на уже посчитанный базовый прогноз. Дельта переводится в
// арифметические поправки к недельным корзинам копии прогноза: затронутая
// неделя находится по дате, поправка меняет cash_in/cash_out, после чего
// нарастающие остатки пересчитываются вперед. База не пересчитывается и не
// мутирует - недели вне дельты гарантированно совпадают с базовыми.

type adjustment struct {
	date       time.Time
	direction  forecast.Direction
	amount     float64 // знаковая поправка к потоку
	confidence models.ConfidenceLevel
}

// ComputeOverlayForecast накладывает дельту на копию базового прогноза.
// База остается нетронутой, канонические данные только читаются.
func ComputeOverlayForecast(db *gorm.DB, base *forecast.Forecast, delta *models.ScenarioDelta) (*forecast.Forecast, error) {
	adjustments, err := deltaAdjustments(db, base, delta)
	if err != nil {
		return nil, err
	}

	fc := copyForecast(base)
	start := fc.Weeks[0].WeekStart

	for _, adj := range adjustments {
		idx := forecast.WeekIndexFor(start, adj.date)
		if idx < 1 || idx > fc.HorizonWeeks {
			continue
		}
		w := &fc.Weeks[idx]
		if adj.direction == forecast.DirectionIn {
			w.CashIn += adj.amount
			w.InByConfidence[adj.confidence] += adj.amount
		} else {
			w.CashOut += adj.amount
			w.OutByConfidence[adj.confidence] += adj.amount
		}
	}

	forecast.RecomputeBalances(fc)
	fc.Summary = forecast.Summarize(fc)
	return fc, nil
}

// deltaAdjustments переводит дельту в список поправок к потокам.
func deltaAdjustments(db *gorm.DB, base *forecast.Forecast, delta *models.ScenarioDelta) ([]adjustment, error) {
	start := base.Weeks[0].WeekStart
	end := start.AddDate(0, 0, base.HorizonWeeks*7)
	var adjs []adjustment

	// Гипотетические разовые графики. Знак суммы сохраняется: отрицательная
	// сумма в дельте уменьшает поток соответствующей недели.
	for _, draft := range delta.CreatedSchedules {
		adjs = append(adjs, adjustment{
			date:       draft.DueDate,
			direction:  directionFor(draft.Category),
			amount:     draft.EstimatedAmount,
			confidence: draft.Confidence,
		})
	}

	// Гипотетические договоренности разворачиваются в повторяющиеся события.
	for _, draft := range delta.CreatedAgreements {
		from := draft.StartDate
		if from.Before(start) {
			from = start
		}
		until := end
		if draft.EndDate != nil && draft.EndDate.Before(until) {
			until = *draft.EndDate
		}
		for _, d := range forecast.CycleDates(draft.Frequency, from, until) {
			adjs = append(adjs, adjustment{
				date:       d,
				direction:  directionFor(draft.Category),
				amount:     draft.BaseAmount,
				confidence: models.ConfidenceLow,
			})
		}
	}

	// Завершение договоренности убирает ее будущие события из прогноза.
	for _, endAgr := range delta.EndedAgreements {
		var agreement models.ObligationAgreement
		if err := db.First(&agreement, endAgr.AgreementID).Error; err != nil {
			return nil, fmt.Errorf("договоренность %d не найдена: %w", endAgr.AgreementID, err)
		}
		from := endAgr.EndDate
		if from.Before(start) {
			from = start
		}
		for _, d := range forecast.CycleDates(agreement.Frequency, from, end) {
			adjs = append(adjs, adjustment{
				date:       d,
				direction:  directionFor(agreement.Category),
				amount:     -agreement.BaseAmount,
				confidence: agreement.Confidence,
			})
		}
	}

	// Правка существующего графика: минус на старой неделе, плюс на новой.
	for _, upd := range delta.UpdatedSchedules {
		var schedule models.ObligationSchedule
		if err := db.Preload("Agreement").First(&schedule, upd.ScheduleID).Error; err != nil {
			return nil, fmt.Errorf("график %d не найден: %w", upd.ScheduleID, err)
		}
		dir := directionFor(schedule.Agreement.Category)

		adjs = append(adjs, adjustment{
			date:       schedule.DueDate,
			direction:  dir,
			amount:     -schedule.EstimatedAmount,
			confidence: schedule.Confidence,
		})
		if upd.Cancel {
			continue
		}

		newDate := schedule.DueDate
		if upd.NewDueDate != nil {
			newDate = *upd.NewDueDate
		}
		newAmount := schedule.EstimatedAmount
		if upd.NewAmount != nil {
			newAmount = *upd.NewAmount
		}
		adjs = append(adjs, adjustment{
			date:       newDate,
			direction:  dir,
			amount:     newAmount,
			confidence: schedule.Confidence,
		})
	}

	return adjs, nil
}

func directionFor(category models.ObligationCategory) forecast.Direction {
	if category == models.CategoryRevenue {
		return forecast.DirectionIn
	}
	return forecast.DirectionOut
}

// copyForecast делает глубокую копию прогноза: корзины и карты разбивки
// независимы от базы.
func copyForecast(base *forecast.Forecast) *forecast.Forecast {
	fc := &forecast.Forecast{
		GeneratedAt:  base.GeneratedAt,
		HorizonWeeks: base.HorizonWeeks,
		StartBalance: base.StartBalance,
		Weeks:        make([]forecast.WeekBucket, len(base.Weeks)),
		Summary:      base.Summary,
	}
	for i, w := range base.Weeks {
		cw := w
		cw.InByConfidence = make(map[models.ConfidenceLevel]float64, len(w.InByConfidence))
		for k, v := range w.InByConfidence {
			cw.InByConfidence[k] = v
		}
		cw.OutByConfidence = make(map[models.ConfidenceLevel]float64, len(w.OutByConfidence))
		for k, v := range w.OutByConfidence {
			cw.OutByConfidence[k] = v
		}
		fc.Weeks[i] = cw
	}
	return fc
}

// RuleResult - итог проверки одного финансового правила на наложенном прогнозе.
type RuleResult struct {
	Rule   string `json:"rule"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// EvaluateRules прогоняет финансовые правила по сценарному прогнозу.
// Правила оцениваются только на наложении - канонические алерты не создаются.
func EvaluateRules(db *gorm.DB, user *models.User, fc *forecast.Forecast) []RuleResult {
	var results []RuleResult

	// Положительный остаток на всем горизонте.
	if fc.Summary.RunwayWeeks < fc.HorizonWeeks {
		results = append(results, RuleResult{
			Rule:   "positive_balance",
			Passed: false,
			Detail: fmt.Sprintf("остаток уходит в минус на неделе %d (%.2f)",
				fc.Summary.LowestBalanceWeek, fc.Summary.LowestBalance),
		})
	} else {
		results = append(results, RuleResult{
			Rule:   "positive_balance",
			Passed: true,
			Detail: fmt.Sprintf("минимальный остаток %.2f на неделе %d",
				fc.Summary.LowestBalance, fc.Summary.LowestBalanceWeek),
		})
	}

	// Минимальный буфер: полтора месячных расхода с поправкой на режим
	// осторожности пользователя.
	var monthlyOut float64
	if fc.HorizonWeeks > 0 {
		var totalOut float64
		for _, w := range fc.Weeks {
			totalOut += w.CashOut
		}
		monthlyOut = totalOut / float64(fc.HorizonWeeks) * (52.0 / 12.0)
	}
	targetBuffer := monthlyOut * 1.5 * user.SafetyMode.ThresholdMultiplier()
	if fc.Summary.LowestBalance < targetBuffer {
		results = append(results, RuleResult{
			Rule:   "minimum_buffer",
			Passed: false,
			Detail: fmt.Sprintf("минимальный остаток %.2f ниже целевого буфера %.2f",
				fc.Summary.LowestBalance, targetBuffer),
		})
	} else {
		results = append(results, RuleResult{
			Rule:   "minimum_buffer",
			Passed: true,
			Detail: fmt.Sprintf("буфер выдержан: %.2f при цели %.2f",
				fc.Summary.LowestBalance, targetBuffer),
		})
	}

	return results
}
