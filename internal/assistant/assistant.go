// cashpilot/internal/assistant/assistant.go

// Package assistant разбирает свободные вопросы пользователя о деньгах.
// Сначала вопрос прогоняется через детерминированный маршрутизатор намерений
// на регулярных выражениях - он отвечает из живых данных и умеет запускать
// сценарии. Только нераспознанный вопрос уходит в Gemini.
package assistant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cashpilot/config"
	"cashpilot/internal/forecast"
	"cashpilot/internal/scenario"
	"cashpilot/models"

	"github.com/google/generative-ai-go/genai"
	"gorm.io/gorm"
)

// Reply - ответ ассистента. Если вопрос привел к запуску сценария, в ответе
// лежит ссылка мастера и его вопросы.
type Reply struct {
	Text     string            `json:"text"`
	Intent   string            `json:"intent"`
	Scenario *scenario.Result  `json:"scenario,omitempty"`
	Prompts  models.PromptList `json:"prompts,omitempty"`
}

type intent struct {
	name    string
	pattern *regexp.Regexp
	handle  func(db *gorm.DB, user *models.User, question string, match []string) (*Reply, error)
}

// Порядок важен: более специфичные намерения стоят выше.
var intents = []intent{
	{
		name:    "runway",
		pattern: regexp.MustCompile(`(?i)(насколько|на сколько|когда).*(хватит|кончатся|закончатся)|runway|взлетн`),
		handle:  answerRunway,
	},
	{
		name:    "balance",
		pattern: regexp.MustCompile(`(?i)(сколько|какой).*(денег|остаток|на счет)|баланс`),
		handle:  answerBalance,
	},
	{
		name:    "forecast",
		pattern: regexp.MustCompile(`(?i)прогноз|что будет с деньгами|поток`),
		handle:  answerForecast,
	},
	{
		name:    "alerts",
		pattern: regexp.MustCompile(`(?i)(какие|есть ли).*(проблем|алерт|риск)|что не так`),
		handle:  answerAlerts,
	},
	{
		name:    "scenario_client_loss",
		pattern: regexp.MustCompile(`(?i)(что если|если).*(потеря|уйдет|потеряю).*(клиент)`),
		handle:  startScenario(models.ScenarioClientLoss),
	},
	{
		name:    "scenario_hiring",
		pattern: regexp.MustCompile(`(?i)(что если|если|могу ли).*(найм|нанять|нового сотрудника)`),
		handle:  startScenario(models.ScenarioHiring),
	},
	{
		name:    "scenario_payment_delay",
		pattern: regexp.MustCompile(`(?i)(что если|если).*(задерж|опозда).*(оплат|плат)`),
		handle:  startScenario(models.ScenarioPaymentDelayIn),
	},
}

// Ask отвечает на вопрос пользователя.
func Ask(db *gorm.DB, user *models.User, question string) (*Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return &Reply{Text: "Задайте вопрос о ваших деньгах.", Intent: "empty"}, nil
	}

	for _, in := range intents {
		if match := in.pattern.FindStringSubmatch(question); match != nil {
			return in.handle(db, user, question, match)
		}
	}

	return fallbackToGemini(db, user, question)
}

func answerBalance(db *gorm.DB, user *models.User, _ string, _ []string) (*Reply, error) {
	text := fmt.Sprintf("Сейчас на счетах %.2f %s.", user.CashBalance, user.Currency)
	if user.BalanceUpdatedAt != nil {
		text += fmt.Sprintf(" Остаток обновлен %s.", user.BalanceUpdatedAt.Format("02.01.2006 15:04"))
	}
	return &Reply{Text: text, Intent: "balance"}, nil
}

func answerRunway(db *gorm.DB, user *models.User, _ string, _ []string) (*Reply, error) {
	fc, err := forecast.CalculateForecast(db, user, forecast.DefaultHorizonWeeks)
	if err != nil {
		return nil, err
	}
	var text string
	if fc.Summary.RunwayWeeks < fc.HorizonWeeks {
		text = fmt.Sprintf("При текущих потоках деньги уходят в минус на неделе %d (через ~%d дней).",
			fc.Summary.RunwayWeeks, fc.Summary.RunwayWeeks*7)
	} else {
		text = fmt.Sprintf("На горизонте %d недель деньги не заканчиваются. Минимальный остаток %.2f на неделе %d.",
			fc.HorizonWeeks, fc.Summary.LowestBalance, fc.Summary.LowestBalanceWeek)
	}
	return &Reply{Text: text, Intent: "runway"}, nil
}

func answerForecast(db *gorm.DB, user *models.User, _ string, _ []string) (*Reply, error) {
	fc, err := forecast.CalculateForecast(db, user, forecast.DefaultHorizonWeeks)
	if err != nil {
		return nil, err
	}
	text := fmt.Sprintf(
		"Прогноз на %d недель: минимальный остаток %.2f (неделя %d), уверенность прогноза %.0f%%.",
		fc.HorizonWeeks, fc.Summary.LowestBalance, fc.Summary.LowestBalanceWeek,
		fc.Summary.ConfidenceScore*100)
	return &Reply{Text: text, Intent: "forecast"}, nil
}

func answerAlerts(db *gorm.DB, user *models.User, _ string, _ []string) (*Reply, error) {
	var alerts []models.DetectionAlert
	if err := db.Where("user_id = ? AND status IN ?", user.ID, models.OpenAlertStatuses).
		Order("urgency_score DESC").Limit(5).
		Find(&alerts).Error; err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return &Reply{Text: "Открытых проблем нет.", Intent: "alerts"}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Открытых проблем: %d.\n", len(alerts))
	for _, a := range alerts {
		fmt.Fprintf(&b, "- [%s] %s\n", a.Severity, a.Title)
	}
	return &Reply{Text: b.String(), Intent: "alerts"}, nil
}

// startScenario запускает мастер сценария прямо из вопроса ассистенту.
func startScenario(t models.ScenarioType) func(*gorm.DB, *models.User, string, []string) (*Reply, error) {
	return func(db *gorm.DB, user *models.User, _ string, _ []string) (*Reply, error) {
		result, err := scenario.Start(db, user, t, "assistant")
		if err != nil {
			return nil, err
		}
		return &Reply{
			Text:     "Давайте просчитаем этот сценарий. Ответьте на несколько вопросов.",
			Intent:   "scenario",
			Scenario: result,
			Prompts:  result.PendingPrompts,
		}, nil
	}
}

// fallbackToGemini отвечает на нераспознанный вопрос через Gemini, передавая
// модели краткую сводку финансового состояния. Без настроенного клиента
// ассистент честно признается, что не понял вопрос.
func fallbackToGemini(db *gorm.DB, user *models.User, question string) (*Reply, error) {
	if config.GeminiClient == nil {
		return &Reply{
			Text:   "Я не понял вопрос. Спросите про остаток, прогноз, проблемы или сценарии «что если».",
			Intent: "unknown",
		}, nil
	}

	fc, err := forecast.CalculateForecast(db, user, forecast.DefaultHorizonWeeks)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Ты финансовый ассистент владельца малого бизнеса. Отвечай кратко и по-русски.\n"+
			"Текущий остаток: %.2f %s. Минимальный прогнозный остаток: %.2f на неделе %d. "+
			"Денег хватает на %d недель из %d недель горизонта.\n\nВопрос: %s",
		user.CashBalance, user.Currency,
		fc.Summary.LowestBalance, fc.Summary.LowestBalanceWeek,
		fc.Summary.RunwayWeeks, fc.HorizonWeeks, question)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	resp, err := config.GeminiClient.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("запрос к Gemini не удался: %w", err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	if b.Len() == 0 {
		return &Reply{Text: "Модель не дала ответа, попробуйте переформулировать.", Intent: "llm"}, nil
	}
	return &Reply{Text: b.String(), Intent: "llm"}, nil
}
