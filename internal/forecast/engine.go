// cashpilot/internal/forecast/engine.go

// Package forecast считает скользящий недельный прогноз денежного потока.
// Прогноз всегда вычисляется на лету из живой конфигурации клиентов и статей
// расходов - никакой хранимой таблицы событий, которая могла бы протухнуть.
package forecast

import (
	"time"

	"cashpilot/models"

	"gorm.io/gorm"
)

// DefaultHorizonWeeks - стандартная глубина прогноза.
const DefaultHorizonWeeks = 13

// Direction - направление движения денег в событии прогноза.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Event - одно ожидаемое движение денег внутри горизонта прогноза.
// Сумма всегда положительная, направление задается отдельно.
type Event struct {
	Date       time.Time              `json:"date"`
	Amount     float64                `json:"amount"`
	Direction  Direction              `json:"direction"`
	Confidence models.ConfidenceLevel `json:"confidence"`
	Label      string                 `json:"label"`

	ClientID *uint `json:"clientId,omitempty"`
	BucketID *uint `json:"bucketId,omitempty"`
}

// WeekBucket - агрегат одной недели. Неделя 0 - снимок текущего остатка
// с нулевыми потоками, прогнозные недели начинаются с 1.
type WeekBucket struct {
	WeekIndex int       `json:"weekIndex"`
	WeekStart time.Time `json:"weekStart"`

	CashIn  float64 `json:"cashIn"`
	CashOut float64 `json:"cashOut"`
	Net     float64 `json:"net"`

	// Разбивка потоков по уровням уверенности - для графика.
	InByConfidence  map[models.ConfidenceLevel]float64 `json:"inByConfidence"`
	OutByConfidence map[models.ConfidenceLevel]float64 `json:"outByConfidence"`

	EndingBalance float64 `json:"endingBalance"`
}

// Summary - сводка прогноза.
type Summary struct {
	LowestBalanceWeek int     `json:"lowestBalanceWeek"`
	LowestBalance     float64 `json:"lowestBalance"`

	// RunwayWeeks - индекс первой недели с остатком <= 0, либо весь
	// горизонт, если порог не пробит.
	RunwayWeeks int `json:"runwayWeeks"`

	// ConfidenceScore - средневзвешенная по суммам уверенность событий.
	// Один крупный низкоуверенный клиент заметно тянет оценку вниз.
	ConfidenceScore float64 `json:"confidenceScore"`
}

// Forecast - результат расчета: недельные корзины плюс сводка.
type Forecast struct {
	GeneratedAt  time.Time    `json:"generatedAt"`
	HorizonWeeks int          `json:"horizonWeeks"`
	StartBalance float64      `json:"startBalance"`
	Weeks        []WeekBucket `json:"weeks"`
	Summary      Summary      `json:"summary"`
}

// CalculateForecast строит прогноз на weeks недель вперед. Чистая функция
// текущего состояния: два вызова без изменения данных дают идентичные корзины.
func CalculateForecast(db *gorm.DB, user *models.User, weeks int) (*Forecast, error) {
	if weeks <= 0 {
		weeks = DefaultHorizonWeeks
	}
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	events, err := generateEvents(db, user, start, weeks)
	if err != nil {
		return nil, err
	}

	fc := assemble(user.CashBalance, start, weeks, events)
	fc.GeneratedAt = now
	return fc, nil
}

// assemble раскладывает события по недельным корзинам и считает сводку.
// Вынесена отдельно, чтобы оверлей сценариев мог пересобрать балансы
// без повторной генерации событий.
func assemble(startBalance float64, start time.Time, weeks int, events []Event) *Forecast {
	fc := &Forecast{
		HorizonWeeks: weeks,
		StartBalance: startBalance,
		Weeks:        make([]WeekBucket, weeks+1),
	}

	for i := 0; i <= weeks; i++ {
		fc.Weeks[i] = WeekBucket{
			WeekIndex:       i,
			WeekStart:       start.AddDate(0, 0, (i-1)*7),
			InByConfidence:  map[models.ConfidenceLevel]float64{},
			OutByConfidence: map[models.ConfidenceLevel]float64{},
		}
	}
	// Неделя 0 - снимок "сейчас", ее начало совпадает с началом горизонта.
	fc.Weeks[0].WeekStart = start

	for _, e := range events {
		idx := WeekIndexFor(start, e.Date)
		if idx < 1 || idx > weeks {
			continue
		}
		w := &fc.Weeks[idx]
		if e.Direction == DirectionIn {
			w.CashIn += e.Amount
			w.InByConfidence[e.Confidence] += e.Amount
		} else {
			w.CashOut += e.Amount
			w.OutByConfidence[e.Confidence] += e.Amount
		}
	}

	RecomputeBalances(fc)
	fc.Summary = summarize(fc, events)
	return fc
}

// RecomputeBalances пересчитывает чистые потоки и нарастающие остатки по
// всем неделям. Вызывается и при базовом расчете, и после наложения оверлея.
func RecomputeBalances(fc *Forecast) {
	balance := fc.StartBalance
	for i := range fc.Weeks {
		w := &fc.Weeks[i]
		w.Net = w.CashIn - w.CashOut
		balance += w.Net
		w.EndingBalance = balance
	}
}

// Summarize пересчитывает сводку без учета событий (оверлей событий не имеет).
func Summarize(fc *Forecast) Summary {
	return summarize(fc, nil)
}

func summarize(fc *Forecast, events []Event) Summary {
	s := Summary{
		LowestBalanceWeek: 0,
		LowestBalance:     fc.StartBalance,
		RunwayWeeks:       fc.HorizonWeeks,
	}

	breached := false
	for _, w := range fc.Weeks {
		if w.WeekIndex == 0 {
			continue
		}
		if w.EndingBalance < s.LowestBalance {
			s.LowestBalance = w.EndingBalance
			s.LowestBalanceWeek = w.WeekIndex
		}
		if !breached && w.EndingBalance <= 0 {
			s.RunwayWeeks = w.WeekIndex
			breached = true
		}
	}

	// Средневзвешенная уверенность: по событиям, если они есть, иначе
	// по разбивке корзин (путь оверлея).
	var weighted, total float64
	if events != nil {
		for _, e := range events {
			weighted += e.Amount * e.Confidence.Weight()
			total += e.Amount
		}
	} else {
		for _, w := range fc.Weeks {
			for tier, amount := range w.InByConfidence {
				weighted += amount * tier.Weight()
				total += amount
			}
			for tier, amount := range w.OutByConfidence {
				weighted += amount * tier.Weight()
				total += amount
			}
		}
	}
	if total > 0 {
		s.ConfidenceScore = weighted / total
	} else {
		s.ConfidenceScore = 1
	}

	return s
}

// WeekIndexFor возвращает индекс недели даты относительно начала горизонта.
// Даты до начала горизонта дают индекс < 1.
func WeekIndexFor(start, date time.Time) int {
	days := int(date.Sub(start).Hours() / 24)
	if days < 0 {
		return (days / 7) // отрицательный, отбросится
	}
	return days/7 + 1
}
