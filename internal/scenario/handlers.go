// cashpilot/internal/scenario/handlers.go
package scenario

import (
	"errors"
	"fmt"
	"time"

	"cashpilot/internal/forecast"
	"cashpilot/models"

	"gorm.io/gorm"
)

// Обработчики типов сценариев. Обработчик объявляет вопросы трех стадий и
// умеет строить дельту из собранных ответов. Дельта всегда гипотетическая:
// обработчик читает канонические данные, но никогда не пишет.

type handler struct {
	scopePrompts  func() models.PromptList
	paramPrompts  func() models.PromptList
	linkedPrompts func(params models.JSONB) models.PromptList
	buildDelta    func(db *gorm.DB, user *models.User, params models.JSONB) (*models.ScenarioDelta, error)
}

var noPrompts = func() models.PromptList { return nil }
var noLinked = func(models.JSONB) models.PromptList { return nil }

var handlers = map[models.ScenarioType]handler{
	models.ScenarioClientLoss: {
		scopePrompts: entityPrompt("client_id", "Какого клиента вы теряете?"),
		paramPrompts: datePrompt("effective_date", "С какой даты прекращается сотрудничество?"),
		linkedPrompts: func(models.JSONB) models.PromptList {
			return models.PromptList{{
				Key: "cancel_outstanding", Question: "Отменить уже запланированные, но не оплаченные счета?",
				AnswerType: "choice", Options: []string{"yes", "no"}, Required: true,
			}}
		},
		buildDelta: buildClientLoss,
	},
	models.ScenarioClientGain: {
		scopePrompts: noPrompts,
		paramPrompts: func() models.PromptList {
			return models.PromptList{
				{Key: "name", Question: "Как называется новый клиент?", AnswerType: "choice", Required: true},
				{Key: "amount", Question: "Сумма за платежный цикл?", AnswerType: "number", Required: true},
				{Key: "frequency", Question: "Периодичность оплат?", AnswerType: "choice",
					Options: []string{"weekly", "monthly", "quarterly"}, Required: true},
				{Key: "start_date", Question: "С какой даты начинаются оплаты?", AnswerType: "date", Required: true},
			}
		},
		linkedPrompts: noLinked,
		buildDelta:    buildClientGain,
	},
	models.ScenarioClientChange: {
		scopePrompts: entityPrompt("client_id", "Условия какого клиента меняются?"),
		paramPrompts: func() models.PromptList {
			return append(
				models.PromptList{{Key: "new_amount", Question: "Новая сумма за цикл?", AnswerType: "number", Required: true}},
				datePrompt("effective_date", "С какой даты действуют новые условия?")()...)
		},
		linkedPrompts: noLinked,
		buildDelta:    buildClientChange,
	},
	models.ScenarioHiring: {
		scopePrompts: noPrompts,
		paramPrompts: func() models.PromptList {
			return append(
				models.PromptList{{Key: "monthly_salary", Question: "Месячная зарплата нового сотрудника?", AnswerType: "number", Required: true}},
				datePrompt("start_date", "С какой даты выходит сотрудник?")()...)
		},
		linkedPrompts: func(models.JSONB) models.PromptList {
			return models.PromptList{{
				Key: "payroll_taxes_pct", Question: "Процент зарплатных налогов и взносов сверх оклада?",
				AnswerType: "number", Required: true,
			}}
		},
		buildDelta: buildHiring,
	},
	models.ScenarioFiring: {
		scopePrompts:  entityPrompt("agreement_id", "Какую зарплатную договоренность вы завершаете?"),
		paramPrompts:  datePrompt("effective_date", "Дата последнего рабочего дня?"),
		linkedPrompts: noLinked,
		buildDelta:    buildAgreementEnd,
	},
	models.ScenarioContractorGain: {
		scopePrompts: noPrompts,
		paramPrompts: func() models.PromptList {
			return append(
				models.PromptList{
					{Key: "name", Question: "Как называется подрядчик?", AnswerType: "choice", Required: true},
					{Key: "monthly_amount", Question: "Месячная стоимость подрядчика?", AnswerType: "number", Required: true},
				},
				datePrompt("start_date", "С какой даты начинаются оплаты?")()...)
		},
		linkedPrompts: noLinked,
		buildDelta:    buildContractorGain,
	},
	models.ScenarioContractorLoss: {
		scopePrompts:  entityPrompt("agreement_id", "Какую договоренность с подрядчиком вы завершаете?"),
		paramPrompts:  datePrompt("effective_date", "С какой даты прекращаются оплаты?"),
		linkedPrompts: noLinked,
		buildDelta:    buildAgreementEnd,
	},
	models.ScenarioExpenseIncrease: {
		scopePrompts: entityPrompt("bucket_id", "Какая статья расходов растет?"),
		paramPrompts: func() models.PromptList {
			return append(
				models.PromptList{{Key: "monthly_delta", Question: "На сколько вырастут месячные расходы?", AnswerType: "number", Required: true}},
				datePrompt("start_date", "С какой даты?")()...)
		},
		linkedPrompts: noLinked,
		buildDelta:    buildExpenseShift(1),
	},
	models.ScenarioExpenseDecrease: {
		scopePrompts: entityPrompt("bucket_id", "Какая статья расходов сокращается?"),
		paramPrompts: func() models.PromptList {
			return append(
				models.PromptList{{Key: "monthly_delta", Question: "На сколько сократятся месячные расходы?", AnswerType: "number", Required: true}},
				datePrompt("start_date", "С какой даты?")()...)
		},
		linkedPrompts: noLinked,
		buildDelta:    buildExpenseShift(-1),
	},
	models.ScenarioPaymentDelayIn: {
		scopePrompts: entityPrompt("client_id", "Оплата какого клиента задерживается?"),
		paramPrompts: func() models.PromptList {
			return models.PromptList{
				{Key: "delay_days", Question: "На сколько дней задерживается оплата?", AnswerType: "number", Required: true},
			}
		},
		linkedPrompts: func(models.JSONB) models.PromptList {
			return models.PromptList{{
				Key: "recurring", Question: "Задержка разовая или по всем будущим оплатам?",
				AnswerType: "choice", Options: []string{"once", "ongoing"}, Required: true,
			}}
		},
		buildDelta: buildPaymentDelayIn,
	},
	models.ScenarioPaymentDelayOut: {
		scopePrompts: entityPrompt("vendor_id", "Оплату какому поставщику вы переносите?"),
		paramPrompts: func() models.PromptList {
			return models.PromptList{
				{Key: "delay_days", Question: "На сколько дней переносится оплата?", AnswerType: "number", Required: true},
			}
		},
		linkedPrompts: noLinked,
		buildDelta:    buildPaymentDelayOut,
	},
}

// --- Построение дельт ---

func buildClientLoss(db *gorm.DB, user *models.User, params models.JSONB) (*models.ScenarioDelta, error) {
	clientID, err := paramUint(params, "client_id")
	if err != nil {
		return nil, err
	}
	effective, err := paramDate(params, "effective_date")
	if err != nil {
		return nil, err
	}

	var client models.Client
	if err := db.Where("user_id = ?", user.ID).First(&client, clientID).Error; err != nil {
		return nil, fmt.Errorf("клиент не найден: %w", err)
	}

	delta := &models.ScenarioDelta{}

	var agreements []models.ObligationAgreement
	if err := db.Where("user_id = ? AND client_id = ? AND end_date IS NULL", user.ID, clientID).
		Find(&agreements).Error; err != nil {
		return nil, err
	}
	for _, a := range agreements {
		delta.EndedAgreements = append(delta.EndedAgreements, models.AgreementEnd{
			AgreementID: a.ID, EndDate: effective,
		})
	}

	// Клиент без договоренностей живет только в конфигурации биллинга:
	// потеря моделируется отрицательной корректирующей договоренностью.
	if len(agreements) == 0 {
		delta.CreatedAgreements = append(delta.CreatedAgreements, models.AgreementDraft{
			Name:       fmt.Sprintf("Потеря клиента: %s", client.Name),
			Type:       models.AgreementRevenue,
			Category:   models.CategoryRevenue,
			BaseAmount: -client.Amount,
			Frequency:  client.BillingCycle,
			StartDate:  effective,
			ClientID:   &client.ID,
		})
	}

	if paramString(params, "cancel_outstanding") == "yes" {
		agreementIDs := make([]uint, 0, len(agreements))
		for _, a := range agreements {
			agreementIDs = append(agreementIDs, a.ID)
		}
		if len(agreementIDs) > 0 {
			var schedules []models.ObligationSchedule
			if err := db.Where("agreement_id IN ? AND status IN ? AND due_date >= ?",
				agreementIDs,
				[]models.ScheduleStatus{models.ScheduleScheduled, models.ScheduleDue},
				effective).Find(&schedules).Error; err != nil {
				return nil, err
			}
			for _, s := range schedules {
				delta.UpdatedSchedules = append(delta.UpdatedSchedules, models.ScheduleUpdate{
					ScheduleID: s.ID, Cancel: true,
				})
			}
		}
	}

	return delta, nil
}

func buildClientGain(db *gorm.DB, user *models.User, params models.JSONB) (*models.ScenarioDelta, error) {
	amount, err := paramFloat(params, "amount")
	if err != nil {
		return nil, err
	}
	start, err := paramDate(params, "start_date")
	if err != nil {
		return nil, err
	}
	name := paramString(params, "name")
	freq := models.Frequency(paramString(params, "frequency"))
	if freq == "" {
		freq = models.FreqMonthly
	}

	return &models.ScenarioDelta{
		CreatedAgreements: []models.AgreementDraft{{
			Name:       fmt.Sprintf("Новый клиент: %s", name),
			Type:       models.AgreementRevenue,
			Category:   models.CategoryRevenue,
			BaseAmount: amount,
			Frequency:  freq,
			StartDate:  start,
		}},
	}, nil
}

func buildClientChange(db *gorm.DB, user *models.User, params models.JSONB) (*models.ScenarioDelta, error) {
	clientID, err := paramUint(params, "client_id")
	if err != nil {
		return nil, err
	}
	newAmount, err := paramFloat(params, "new_amount")
	if err != nil {
		return nil, err
	}
	effective, err := paramDate(params, "effective_date")
	if err != nil {
		return nil, err
	}

	var client models.Client
	if err := db.Where("user_id = ?", user.ID).First(&client, clientID).Error; err != nil {
		return nil, fmt.Errorf("клиент не найден: %w", err)
	}

	delta := &models.ScenarioDelta{
		// Разница моделируется корректирующей договоренностью поверх
		// текущей конфигурации: старый поток остается в базе прогноза.
		CreatedAgreements: []models.AgreementDraft{{
			Name:       fmt.Sprintf("Новые условия: %s", client.Name),
			Type:       models.AgreementRevenue,
			Category:   models.CategoryRevenue,
			BaseAmount: newAmount - client.Amount,
			Frequency:  client.BillingCycle,
			StartDate:  effective,
			ClientID:   &client.ID,
		}},
	}
	return delta, nil
}

func buildHiring(db *gorm.DB, user *models.User, params models.JSONB) (*models.ScenarioDelta, error) {
	salary, err := paramFloat(params, "monthly_salary")
	if err != nil {
		return nil, err
	}
	start, err := paramDate(params, "start_date")
	if err != nil {
		return nil, err
	}
	taxesPct, err := paramFloat(params, "payroll_taxes_pct")
	if err != nil {
		return nil, err
	}

	fullCost := salary * (1 + taxesPct/100)
	return &models.ScenarioDelta{
		CreatedAgreements: []models.AgreementDraft{{
			Name:       "Новый сотрудник",
			Type:       models.AgreementPayroll,
			Category:   models.CategoryPayroll,
			BaseAmount: fullCost,
			Frequency:  models.FreqMonthly,
			StartDate:  start,
		}},
	}, nil
}

// buildAgreementEnd обслуживает FIRING и CONTRACTOR_LOSS: завершение
// договоренности с выбранной даты.
func buildAgreementEnd(db *gorm.DB, user *models.User, params models.JSONB) (*models.ScenarioDelta, error) {
	agreementID, err := paramUint(params, "agreement_id")
	if err != nil {
		return nil, err
	}
	effective, err := paramDate(params, "effective_date")
	if err != nil {
		return nil, err
	}

	var agreement models.ObligationAgreement
	if err := db.Where("user_id = ?", user.ID).First(&agreement, agreementID).Error; err != nil {
		return nil, fmt.Errorf("договоренность не найдена: %w", err)
	}

	return &models.ScenarioDelta{
		EndedAgreements: []models.AgreementEnd{{AgreementID: agreement.ID, EndDate: effective}},
	}, nil
}

func buildContractorGain(db *gorm.DB, user *models.User, params models.JSONB) (*models.ScenarioDelta, error) {
	amount, err := paramFloat(params, "monthly_amount")
	if err != nil {
		return nil, err
	}
	start, err := paramDate(params, "start_date")
	if err != nil {
		return nil, err
	}

	return &models.ScenarioDelta{
		CreatedAgreements: []models.AgreementDraft{{
			Name:       fmt.Sprintf("Подрядчик: %s", paramString(params, "name")),
			Type:       models.AgreementVendorBill,
			Category:   models.CategoryVariableCost,
			BaseAmount: amount,
			Frequency:  models.FreqMonthly,
			StartDate:  start,
		}},
	}, nil
}

// buildExpenseShift строит сдвиг расходов: sign +1 - рост, -1 - сокращение.
func buildExpenseShift(sign float64) func(*gorm.DB, *models.User, models.JSONB) (*models.ScenarioDelta, error) {
	return func(db *gorm.DB, user *models.User, params models.JSONB) (*models.ScenarioDelta, error) {
		bucketID, err := paramUint(params, "bucket_id")
		if err != nil {
			return nil, err
		}
		delta, err := paramFloat(params, "monthly_delta")
		if err != nil {
			return nil, err
		}
		start, err := paramDate(params, "start_date")
		if err != nil {
			return nil, err
		}

		var bucket models.ExpenseBucket
		if err := db.Where("user_id = ?", user.ID).First(&bucket, bucketID).Error; err != nil {
			return nil, fmt.Errorf("статья расходов не найдена: %w", err)
		}

		label := "Рост расходов"
		if sign < 0 {
			label = "Сокращение расходов"
		}
		return &models.ScenarioDelta{
			CreatedAgreements: []models.AgreementDraft{{
				Name:       fmt.Sprintf("%s: %s", label, bucket.Name),
				Type:       models.AgreementOther,
				Category:   bucket.Category,
				BaseAmount: sign * delta,
				Frequency:  models.FreqMonthly,
				StartDate:  start,
			}},
		}, nil
	}
}

func buildPaymentDelayIn(db *gorm.DB, user *models.User, params models.JSONB) (*models.ScenarioDelta, error) {
	clientID, err := paramUint(params, "client_id")
	if err != nil {
		return nil, err
	}
	delayDays, err := paramFloat(params, "delay_days")
	if err != nil {
		return nil, err
	}
	ongoing := paramString(params, "recurring") == "ongoing"

	var client models.Client
	if err := db.Where("user_id = ?", user.ID).First(&client, clientID).Error; err != nil {
		return nil, fmt.Errorf("клиент не найден: %w", err)
	}

	delta := &models.ScenarioDelta{}
	now := time.Now()
	horizonEnd := now.AddDate(0, 0, forecast.DefaultHorizonWeeks*7)

	// Реальные графики клиента сдвигаются правками.
	var schedules []models.ObligationSchedule
	if err := db.Joins("Agreement").
		Where("\"Agreement\".user_id = ? AND \"Agreement\".client_id = ?", user.ID, clientID).
		Where("obligation_schedules.status IN ? AND obligation_schedules.due_date BETWEEN ? AND ?",
			[]models.ScheduleStatus{models.ScheduleScheduled, models.ScheduleDue}, now, horizonEnd).
		Order("obligation_schedules.due_date ASC").
		Find(&schedules).Error; err != nil {
		return nil, err
	}
	for i, s := range schedules {
		if !ongoing && i > 0 {
			break
		}
		newDate := s.DueDate.AddDate(0, 0, int(delayDays))
		delta.UpdatedSchedules = append(delta.UpdatedSchedules, models.ScheduleUpdate{
			ScheduleID: s.ID, NewDueDate: &newDate,
		})
	}
	if len(delta.UpdatedSchedules) > 0 {
		return delta, nil
	}

	// Клиент без графиков: сдвиг моделируется парой разовых поправок на
	// каждую ожидаемую оплату - минус в исходной неделе, плюс в сдвинутой.
	for i, issueDate := range forecast.CycleDates(client.BillingCycle, now, horizonEnd) {
		if !ongoing && i > 0 {
			break
		}
		payDate := issueDate.AddDate(0, 0, client.PaymentTermsDays)
		if payDate.Before(now) {
			continue
		}
		conf := client.ForecastConfidence()
		delta.CreatedSchedules = append(delta.CreatedSchedules,
			models.ScheduleDraft{
				Category: models.CategoryRevenue, DueDate: payDate,
				EstimatedAmount: -client.Amount, Confidence: conf,
			},
			models.ScheduleDraft{
				Category: models.CategoryRevenue, DueDate: payDate.AddDate(0, 0, int(delayDays)),
				EstimatedAmount: client.Amount, Confidence: conf,
			})
	}

	if delta.IsEmpty() {
		return nil, errors.New("в горизонте прогноза нет оплат этого клиента")
	}
	return delta, nil
}

func buildPaymentDelayOut(db *gorm.DB, user *models.User, params models.JSONB) (*models.ScenarioDelta, error) {
	vendorID, err := paramUint(params, "vendor_id")
	if err != nil {
		return nil, err
	}
	delayDays, err := paramFloat(params, "delay_days")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	horizonEnd := now.AddDate(0, 0, forecast.DefaultHorizonWeeks*7)

	var schedules []models.ObligationSchedule
	if err := db.Joins("Agreement").
		Where("\"Agreement\".user_id = ? AND \"Agreement\".vendor_id = ?", user.ID, vendorID).
		Where("obligation_schedules.status IN ? AND obligation_schedules.due_date BETWEEN ? AND ?",
			[]models.ScheduleStatus{models.ScheduleScheduled, models.ScheduleDue}, now, horizonEnd).
		Find(&schedules).Error; err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, errors.New("в горизонте прогноза нет оплат этому поставщику")
	}

	delta := &models.ScenarioDelta{}
	for _, s := range schedules {
		newDate := s.DueDate.AddDate(0, 0, int(delayDays))
		delta.UpdatedSchedules = append(delta.UpdatedSchedules, models.ScheduleUpdate{
			ScheduleID: s.ID, NewDueDate: &newDate,
		})
	}
	return delta, nil
}

// --- Чтение параметров ---

func entityPrompt(key, question string) func() models.PromptList {
	return func() models.PromptList {
		return models.PromptList{{Key: key, Question: question, AnswerType: "entity", Required: true}}
	}
}

func datePrompt(key, question string) func() models.PromptList {
	return func() models.PromptList {
		return models.PromptList{{Key: key, Question: question, AnswerType: "date", Required: true}}
	}
}

func paramFloat(params models.JSONB, key string) (float64, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("отсутствует параметр %s", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("параметр %s не является числом", key)
}

func paramUint(params models.JSONB, key string) (uint, error) {
	f, err := paramFloat(params, key)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("параметр %s отрицательный", key)
	}
	return uint(f), nil
}

func paramString(params models.JSONB, key string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}

func paramDate(params models.JSONB, key string) (time.Time, error) {
	switch v := params[key].(type) {
	case string:
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, fmt.Errorf("параметр %s: ожидается дата в формате 2006-01-02", key)
		}
		return t, nil
	case time.Time:
		return v, nil
	}
	return time.Time{}, fmt.Errorf("отсутствует параметр %s", key)
}
