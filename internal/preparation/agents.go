// cashpilot/internal/preparation/agents.go
package preparation

import (
	"fmt"
	"time"

	"cashpilot/models"

	"gorm.io/gorm"
)

// Агенты подготовки: по одному на тип детекции. Каждый собирает контекст
// сущностей, выбирает стратегию и строит 1-3 опции. Композитный риск опций
// считает движок, агент заполняет компоненты.

// buildInvoiceFollowUp - работа с просроченными поступлениями, из-за которых
// недофинансировано обязательство.
func buildInvoiceFollowUp(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	ctx := alert.Context.LatePayment
	if ctx == nil {
		return nil, nil, fmt.Errorf("контекст LATE_PAYMENT пуст")
	}

	info, err := clientFromSchedules(db, user.ID, ctx.CausingPaymentIDs)
	if err != nil {
		return nil, nil, err
	}

	action := &models.PreparedAction{
		ActionType: models.ActionInvoiceFollowUp,
		Title:      fmt.Sprintf("Догнать оплату: %s", info.Client.Name),
		ProblemSummary: fmt.Sprintf(
			"Просроченные поступления на %.2f оставили без покрытия обязательства категории «%s» (%s).",
			ctx.CausingAmount, categoryLabelRU(ctx.ObligationCategory), severityLabel(alert.Severity)),
	}

	tone := Tone(info)
	relRisk := ClientRelationshipRisk(info)
	opRisk := OperationalRisk(models.ActionInvoiceFollowUp, "")
	clientID := info.Client.ID

	subject, body := FollowUpEmail(info, ctx.CausingAmount, tone)
	options := []models.ActionOption{
		{
			Title:              "Письмо-напоминание",
			Description:        fmt.Sprintf("Отправить напоминание в тоне «%s»", tone),
			RelationshipRisk:   relRisk,
			OperationalRisk:    opRisk,
			FinancialCost:      0,
			CashImpact:         ctx.CausingAmount,
			SuccessProbability: 0.6,
			PreparedContent: models.PreparedContent{
				ClientID: &clientID, EmailSubject: subject, EmailBody: body, Tone: tone,
			},
		},
		{
			Title:              "Телефонный звонок",
			Description:        "Позвонить и зафиксировать конкретную дату оплаты",
			RelationshipRisk:   relRisk,
			OperationalRisk:    opRisk + 0.1,
			FinancialCost:      0,
			CashImpact:         ctx.CausingAmount,
			SuccessProbability: 0.75,
			PreparedContent: models.PreparedContent{
				ClientID: &clientID, Tone: tone,
				Notes: callScript(info.Client.Name, ctx.CausingAmount),
			},
		},
	}

	// Жесткое требование предлагается только если тон и так не мягкий:
	// стратегического клиента дожимать дороже, чем ждать.
	if tone != "soft" {
		firmSubject, firmBody := FollowUpEmail(info, ctx.CausingAmount, "firm")
		lossEstimate := MonthlyEquivalent(info.Client.Amount, info.Client.BillingCycle) * 0.1
		if info.Client.ChurnRisk == models.ChurnHigh {
			lossEstimate *= 2.5
		}
		options = append(options, models.ActionOption{
			Title:              "Платежное требование",
			Description:        "Жесткое письмо со сроком оплаты 3 рабочих дня",
			RelationshipRisk:   clamp01(relRisk + 0.2),
			OperationalRisk:    opRisk,
			FinancialCost:      lossEstimate,
			CashImpact:         ctx.CausingAmount,
			SuccessProbability: 0.85,
			PreparedContent: models.PreparedContent{
				ClientID: &clientID, EmailSubject: firmSubject, EmailBody: firmBody, Tone: "firm",
			},
		})
	}

	return action, options, nil
}

// buildPayrollContingency - зарплата под угрозой. Сам перенос зарплаты
// всегда несет операционный риск 0.9: он предлагается, но никогда не
// выглядит безопасным.
func buildPayrollContingency(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	ctx := alert.Context.PayrollSafety
	if ctx == nil {
		return nil, nil, fmt.Errorf("контекст PAYROLL_SAFETY пуст")
	}
	shortfall := ctx.ShortfallVsBuffer

	action := &models.PreparedAction{
		ActionType: models.ActionPayrollContingency,
		Title:      fmt.Sprintf("Обеспечить зарплату %s", ctx.PayrollDate.Format("02.01")),
		ProblemSummary: fmt.Sprintf(
			"После зарплаты %.2f останется %.2f при требуемом буфере %.2f.",
			ctx.PayrollAmount, ctx.CashAfterPayroll, ctx.RequiredBuffer),
		Deadline: &ctx.PayrollDate,
	}

	// Месячная стоимость кредита при ставке 18% годовых.
	interest := shortfall * 0.18 / 12

	options := []models.ActionOption{{
		Title:              fmt.Sprintf("Кредитная линия на %.2f", shortfall),
		Description:        "Закрыть дефицит из кредитной линии до поступления оплат",
		RelationshipRisk:   internalRelationshipRisk,
		OperationalRisk:    OperationalRisk(models.ActionCreditDraw, ""),
		FinancialCost:      interest,
		CashImpact:         shortfall,
		SuccessProbability: 0.95,
		PreparedContent:    models.PreparedContent{DrawAmount: shortfall},
	}}

	// Перенос оплат гибким поставщикам, наступающих до зарплаты.
	if vendorOpt, ok := vendorDelayOption(db, user.ID, ctx.PayrollDate, shortfall); ok {
		options = append(options, *vendorOpt)
	}

	options = append(options, models.ActionOption{
		Title:              "Частичный перенос зарплаты",
		Description:        "Выплатить зарплату двумя траншами с интервалом в неделю",
		RelationshipRisk:   internalRelationshipRisk,
		OperationalRisk:    OperationalRisk(models.ActionPayrollContingency, ""),
		FinancialCost:      0,
		CashImpact:         ctx.PayrollAmount / 2,
		SuccessProbability: 0.9,
		PreparedContent:    models.PreparedContent{DelayDays: 7, TargetAmount: ctx.PayrollAmount / 2},
	})

	return action, options, nil
}

// buildCreditDraw - пробит денежный буфер.
func buildCreditDraw(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	ctx := alert.Context.Buffer
	if ctx == nil {
		return nil, nil, fmt.Errorf("контекст BUFFER_BREACH пуст")
	}
	gap := ctx.TargetBuffer - ctx.CurrentCash

	action := &models.PreparedAction{
		ActionType: models.ActionCreditDraw,
		Title:      "Восстановить денежный буфер",
		ProblemSummary: fmt.Sprintf(
			"Остаток %.2f против целевого буфера %.2f: не хватает %.2f.",
			ctx.CurrentCash, ctx.TargetBuffer, gap),
	}

	overdueTotal, _ := overdueReceivables(db, user.ID)
	interest := gap * 0.18 / 12

	options := []models.ActionOption{{
		Title:              fmt.Sprintf("Кредитная линия на %.2f", gap),
		Description:        "Разово восстановить буфер из кредитной линии",
		RelationshipRisk:   internalRelationshipRisk,
		OperationalRisk:    OperationalRisk(models.ActionCreditDraw, ""),
		FinancialCost:      interest,
		CashImpact:         gap,
		SuccessProbability: 0.95,
		PreparedContent:    models.PreparedContent{DrawAmount: gap},
	}}

	if overdueTotal > 0 {
		options = append(options, models.ActionOption{
			Title:              fmt.Sprintf("Собрать дебиторку (%.2f)", overdueTotal),
			Description:        "Пройтись по всем просроченным счетам до привлечения кредита",
			RelationshipRisk:   0.2,
			OperationalRisk:    OperationalRisk(models.ActionReceivablesSweep, ""),
			FinancialCost:      0,
			CashImpact:         overdueTotal,
			SuccessProbability: 0.55,
			PreparedContent:    models.PreparedContent{TargetAmount: overdueTotal},
		})
	}

	options = append(options, models.ActionOption{
		Title:              "Сократить переменные расходы",
		Description:        fmt.Sprintf("Урезать переменные статьи на %.2f в месяц", gap/3),
		RelationshipRisk:   internalRelationshipRisk,
		OperationalRisk:    OperationalRisk(models.ActionExpenseCut, ""),
		FinancialCost:      0,
		CashImpact:         gap / 3,
		SuccessProbability: 0.7,
		PreparedContent:    models.PreparedContent{CutAmount: gap / 3},
	})

	return action, options, nil
}

// buildExpenseCut обслуживает и RUNWAY_THRESHOLD, и EXPENSE_SPIKE.
func buildExpenseCut(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	action := &models.PreparedAction{
		ActionType:     models.ActionExpenseCut,
		Title:          "Сократить расходы",
		ProblemSummary: alert.Description,
	}

	var options []models.ActionOption
	if ctx := alert.Context.Expense; ctx != nil {
		// Конкретная статья со всплеском.
		bucketID := ctx.BucketID
		over := ctx.ActualAmount - ctx.ExpectedAmount
		options = append(options, models.ActionOption{
			Title:              fmt.Sprintf("Вернуть «%s» в план", ctx.BucketName),
			Description:        fmt.Sprintf("Сократить статью на %.2f до планового уровня", over),
			RelationshipRisk:   internalRelationshipRisk,
			OperationalRisk:    OperationalRisk(models.ActionExpenseCut, ""),
			FinancialCost:      0,
			CashImpact:         over,
			SuccessProbability: 0.8,
			PreparedContent:    models.PreparedContent{BucketID: &bucketID, CutAmount: over},
		})
	}

	if ctx := alert.Context.Buffer; ctx != nil {
		// Взлетная полоса: режем переменные расходы целиком.
		cut := ctx.MonthlyBurn * 0.15
		options = append(options, models.ActionOption{
			Title:              "План сокращения на 15%",
			Description:        fmt.Sprintf("Сократить месячные расходы на %.2f, продлив полосу", cut),
			RelationshipRisk:   internalRelationshipRisk,
			OperationalRisk:    OperationalRisk(models.ActionExpenseCut, ""),
			FinancialCost:      0,
			CashImpact:         cut,
			SuccessProbability: 0.65,
			PreparedContent:    models.PreparedContent{CutAmount: cut},
		})
	}

	options = append(options, models.ActionOption{
		Title:              "Заморозить необязательные траты",
		Description:        "Остановить все траты категории «переменные» до стабилизации",
		RelationshipRisk:   internalRelationshipRisk,
		OperationalRisk:    OperationalRisk(models.ActionExpenseCut, "") + 0.2,
		FinancialCost:      0,
		CashImpact:         0,
		SuccessProbability: 0.9,
		PreparedContent:    models.PreparedContent{Notes: "Заморозка до восстановления буфера"},
	})

	return action, options, nil
}

// buildTimingRebalance - скопление платежей в одной неделе.
func buildTimingRebalance(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	ctx := alert.Context.TimingConflict
	if ctx == nil {
		return nil, nil, fmt.Errorf("контекст PAYMENT_TIMING_CONFLICT пуст")
	}

	action := &models.PreparedAction{
		ActionType: models.ActionTimingRebalance,
		Title:      fmt.Sprintf("Разгрузить неделю %s", ctx.WeekStart.Format("02.01")),
		ProblemSummary: fmt.Sprintf(
			"На неделе к оплате %.2f - %.0f%% всех денег.", ctx.WeekObligation, ctx.CashPercent),
	}

	var options []models.ActionOption
	weekEnd := ctx.WeekStart.AddDate(0, 0, 7)
	if vendorOpt, ok := vendorDelayOption(db, user.ID, weekEnd, ctx.WeekObligation/3); ok {
		options = append(options, *vendorOpt)
	}

	options = append(options, models.ActionOption{
		Title:              "Разбить крупнейший платеж",
		Description:        "Договориться о разбивке крупнейшего платежа недели на два транша",
		RelationshipRisk:   0.2,
		OperationalRisk:    OperationalRisk(models.ActionTimingRebalance, ""),
		FinancialCost:      0,
		CashImpact:         ctx.WeekObligation / 4,
		SuccessProbability: 0.6,
		PreparedContent:    models.PreparedContent{Notes: "Разбивка 50/50 с интервалом 2 недели"},
	})

	return action, options, nil
}

// buildClientDiversify - опасная концентрация выручки.
func buildClientDiversify(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	ctx := alert.Context.Client
	if ctx == nil {
		return nil, nil, fmt.Errorf("контекст CLIENT_CONCENTRATION пуст")
	}
	clientID := ctx.ClientID

	action := &models.PreparedAction{
		ActionType: models.ActionClientDiversify,
		Title:      fmt.Sprintf("Снизить зависимость от %s", ctx.ClientName),
		ProblemSummary: fmt.Sprintf(
			"Клиент дает %.0f%% выручки: его уход - готовый кассовый разрыв.", ctx.RevenuePercent),
	}

	options := []models.ActionOption{
		{
			Title:              "План диверсификации",
			Description:        "Сформировать воронку из 3+ новых клиентов на ближайший квартал",
			RelationshipRisk:   internalRelationshipRisk,
			OperationalRisk:    OperationalRisk(models.ActionClientDiversify, ""),
			FinancialCost:      0,
			CashImpact:         0,
			SuccessProbability: 0.5,
			PreparedContent:    models.PreparedContent{ClientID: &clientID, Notes: "Цель: ни один клиент не дает больше 25% выручки"},
		},
		{
			Title:              "Удлинить контракт якорного клиента",
			Description:        "Предложить годовой контракт со скидкой в обмен на предсказуемость",
			RelationshipRisk:   0.3,
			OperationalRisk:    OperationalRisk(models.ActionClientDiversify, "") + 0.1,
			FinancialCost:      MonthlyEquivalent(0, models.FreqMonthly),
			CashImpact:         0,
			SuccessProbability: 0.6,
			PreparedContent:    models.PreparedContent{ClientID: &clientID},
		},
	}

	return action, options, nil
}

// buildClientRetention - деградация платежной дисциплины клиента.
func buildClientRetention(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	ctx := alert.Context.Client
	if ctx == nil {
		return nil, nil, fmt.Errorf("контекст CLIENT_PAYMENT_DEGRADATION пуст")
	}

	info, err := GetClientInfo(db, user.ID, ctx.ClientID)
	if err != nil {
		return nil, nil, err
	}
	relRisk := ClientRelationshipRisk(info)
	clientID := info.Client.ID

	action := &models.PreparedAction{
		ActionType: models.ActionClientRetention,
		Title:      fmt.Sprintf("Разобраться с оплатами: %s", info.Client.Name),
		ProblemSummary: fmt.Sprintf(
			"Средняя задержка оплат выросла до %.0f дн., открытых счетов на %.2f.",
			ctx.AvgDelayDays, info.OutstandingTotal),
	}

	subject, body := RetentionEmail(info)
	options := []models.ActionOption{
		{
			Title:              "Письмо-забота",
			Description:        "Мягкий разговор об удобстве графика оплат",
			RelationshipRisk:   relRisk,
			OperationalRisk:    OperationalRisk(models.ActionClientRetention, ""),
			FinancialCost:      0,
			CashImpact:         info.OutstandingTotal,
			SuccessProbability: 0.55,
			PreparedContent:    models.PreparedContent{ClientID: &clientID, EmailSubject: subject, EmailBody: body, Tone: "soft"},
		},
		{
			Title:              "Пересмотреть график счетов",
			Description:        "Предложить выставление счетов дважды в месяц меньшими суммами",
			RelationshipRisk:   relRisk,
			OperationalRisk:    OperationalRisk(models.ActionClientRetention, "") + 0.1,
			FinancialCost:      0,
			CashImpact:         info.OutstandingTotal / 2,
			SuccessProbability: 0.65,
			PreparedContent:    models.PreparedContent{ClientID: &clientID, Notes: "Два счета в месяц вместо одного"},
		},
	}

	return action, options, nil
}

// buildSubscriptionAudit - разрастание подписок.
func buildSubscriptionAudit(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	ctx := alert.Context.Expense
	if ctx == nil {
		return nil, nil, fmt.Errorf("контекст SUBSCRIPTION_CREEP пуст")
	}

	action := &models.PreparedAction{
		ActionType:     models.ActionSubscriptionAudit,
		Title:          "Ревизия подписок",
		ProblemSummary: alert.Description,
	}

	over := ctx.ActualAmount - ctx.ExpectedAmount
	options := []models.ActionOption{
		{
			Title:              "Аудит и отмена неиспользуемых",
			Description:        fmt.Sprintf("Пройтись по списку подписок, цель экономии %.2f в месяц", over),
			RelationshipRisk:   internalRelationshipRisk,
			OperationalRisk:    OperationalRisk(models.ActionSubscriptionAudit, ""),
			FinancialCost:      0,
			CashImpact:         over,
			SuccessProbability: 0.8,
			PreparedContent:    models.PreparedContent{CutAmount: over},
		},
		{
			Title:              "Понизить тарифы",
			Description:        "Перевести дорогие подписки на младшие тарифы без отмены",
			RelationshipRisk:   internalRelationshipRisk,
			OperationalRisk:    OperationalRisk(models.ActionSubscriptionAudit, ""),
			FinancialCost:      0,
			CashImpact:         over / 2,
			SuccessProbability: 0.9,
			PreparedContent:    models.PreparedContent{CutAmount: over / 2},
		},
	}

	return action, options, nil
}

// buildTaxPlan - налоговый платеж без резерва.
func buildTaxPlan(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	ctx := alert.Context.TaxDeadline
	if ctx == nil {
		return nil, nil, fmt.Errorf("контекст TAX_DEADLINE пуст")
	}

	action := &models.PreparedAction{
		ActionType: models.ActionTaxPlan,
		Title:      fmt.Sprintf("Подготовить налоговый платеж %s", ctx.DueDate.Format("02.01")),
		ProblemSummary: fmt.Sprintf(
			"После налога %.2f останется %.2f.", ctx.Amount, ctx.CashAfter),
		Deadline: &ctx.DueDate,
	}

	gap := ctx.Amount*0.25 - ctx.CashAfter
	if gap < 0 {
		gap = ctx.Amount * 0.1
	}
	interest := gap * 0.18 / 12

	options := []models.ActionOption{
		{
			Title:              "Резервировать еженедельно",
			Description:        fmt.Sprintf("Откладывать %.2f в неделю до даты платежа", gap/2),
			RelationshipRisk:   internalRelationshipRisk,
			OperationalRisk:    OperationalRisk(models.ActionTaxPlan, "") - 0.2,
			FinancialCost:      0,
			CashImpact:         -gap,
			SuccessProbability: 0.75,
			PreparedContent:    models.PreparedContent{TargetAmount: gap},
		},
		{
			Title:              "Рассрочка от налоговой",
			Description:        "Запросить официальную рассрочку налогового платежа",
			RelationshipRisk:   internalRelationshipRisk,
			OperationalRisk:    OperationalRisk(models.ActionTaxPlan, ""),
			FinancialCost:      ctx.Amount * 0.02,
			CashImpact:         ctx.Amount / 2,
			SuccessProbability: 0.5,
			PreparedContent:    models.PreparedContent{Notes: "Рассрочка на 3 месяца, пеня ~2%"},
		},
		{
			Title:              "Кредит под налог",
			Description:        fmt.Sprintf("Закрыть дефицит %.2f из кредитной линии", gap),
			RelationshipRisk:   internalRelationshipRisk,
			OperationalRisk:    OperationalRisk(models.ActionCreditDraw, ""),
			FinancialCost:      interest,
			CashImpact:         gap,
			SuccessProbability: 0.95,
			PreparedContent:    models.PreparedContent{DrawAmount: gap},
		},
	}

	return action, options, nil
}

// buildReceivablesSweep - старение дебиторки.
func buildReceivablesSweep(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	ctx := alert.Context.Receivables
	if ctx == nil {
		return nil, nil, fmt.Errorf("контекст RECEIVABLES_AGING пуст")
	}

	action := &models.PreparedAction{
		ActionType:     models.ActionReceivablesSweep,
		Title:          "Собрать просроченную дебиторку",
		ProblemSummary: alert.Description,
	}

	options := []models.ActionOption{
		{
			Title:              fmt.Sprintf("Напоминания по всем %d счетам", ctx.OverdueCount),
			Description:        "Профессиональные напоминания одним пакетом",
			RelationshipRisk:   0.2,
			OperationalRisk:    OperationalRisk(models.ActionReceivablesSweep, ""),
			FinancialCost:      0,
			CashImpact:         ctx.OverdueTotal,
			SuccessProbability: 0.5,
			PreparedContent:    models.PreparedContent{TargetAmount: ctx.OverdueTotal, Tone: "professional"},
		},
		{
			Title:              "Жесткое требование по старейшим",
			Description:        fmt.Sprintf("Платежные требования по счетам старше %d дн.", ctx.OldestDays/2),
			RelationshipRisk:   0.4,
			OperationalRisk:    OperationalRisk(models.ActionReceivablesSweep, "") + 0.1,
			FinancialCost:      0,
			CashImpact:         ctx.OverdueTotal / 2,
			SuccessProbability: 0.7,
			PreparedContent:    models.PreparedContent{Tone: "firm"},
		},
		{
			Title:              "Факторинг",
			Description:        "Продать дебиторку факторинговой компании с дисконтом",
			RelationshipRisk:   0.3,
			OperationalRisk:    OperationalRisk(models.ActionReceivablesSweep, "") + 0.2,
			FinancialCost:      ctx.OverdueTotal * 0.03,
			CashImpact:         ctx.OverdueTotal * 0.97,
			SuccessProbability: 0.9,
			PreparedContent:    models.PreparedContent{TargetAmount: ctx.OverdueTotal * 0.97},
		},
	}

	return action, options, nil
}

// buildCashReview - резкое падение остатка.
func buildCashReview(db *gorm.DB, user *models.User, alert *models.DetectionAlert) (*models.PreparedAction, []models.ActionOption, error) {
	ctx := alert.Context.CashDrop
	if ctx == nil {
		return nil, nil, fmt.Errorf("контекст CASH_DROP пуст")
	}

	action := &models.PreparedAction{
		ActionType:     models.ActionCashReview,
		Title:          fmt.Sprintf("Разобрать падение остатка на %.0f%%", ctx.DropPercent),
		ProblemSummary: alert.Description,
	}

	options := []models.ActionOption{
		{
			Title:              "Разбор движений за неделю",
			Description:        "Сверить платежные события недели и найти источник падения",
			RelationshipRisk:   internalRelationshipRisk,
			OperationalRisk:    OperationalRisk(models.ActionCashReview, ""),
			FinancialCost:      0,
			CashImpact:         0,
			SuccessProbability: 0.95,
			PreparedContent:    models.PreparedContent{Notes: "Сверка банковской выписки с платежными событиями"},
		},
		{
			Title:              "Временная заморозка трат",
			Description:        "Остановить несрочные платежи до выяснения причины",
			RelationshipRisk:   internalRelationshipRisk,
			OperationalRisk:    OperationalRisk(models.ActionCashReview, "") + 0.2,
			FinancialCost:      0,
			CashImpact:         0,
			SuccessProbability: 0.9,
			PreparedContent:    models.PreparedContent{Notes: "Заморозка до завершения разбора"},
		},
	}

	return action, options, nil
}

// --- Вспомогательные выборки ---

// clientFromSchedules находит клиента по графикам просроченных поступлений.
func clientFromSchedules(db *gorm.DB, userID uint, scheduleIDs []uint) (*ClientInfo, error) {
	var schedule models.ObligationSchedule
	if err := db.Preload("Agreement").Where("id IN ?", scheduleIDs).
		Order("due_date ASC").First(&schedule).Error; err != nil {
		return nil, fmt.Errorf("просроченные графики не найдены: %w", err)
	}
	if schedule.Agreement.ClientID == nil {
		return nil, fmt.Errorf("у просроченного поступления нет привязки к клиенту")
	}
	return GetClientInfo(db, userID, *schedule.Agreement.ClientID)
}

// vendorDelayOption строит опцию переноса оплаты самому гибкому поставщику
// с обязательствами до указанной даты. Поставщики зарплатной категории
// не рассматриваются: зарплата не переносится через "поставщика".
func vendorDelayOption(db *gorm.DB, userID uint, before time.Time, needed float64) (*models.ActionOption, bool) {
	var vendors []models.Vendor
	if err := db.Where("user_id = ? AND flexibility = ? AND category <> ?",
		userID, models.FlexibilityHigh, models.CategoryPayroll).
		Order("delay_count ASC").Find(&vendors).Error; err != nil || len(vendors) == 0 {
		return nil, false
	}
	vendor := vendors[0]

	info, err := GetVendorInfo(db, userID, vendor.ID)
	if err != nil || info.MonthlyTotal <= 0 {
		return nil, false
	}

	amount := info.MonthlyTotal
	if amount > needed && needed > 0 {
		amount = needed
	}
	vendorID := vendor.ID
	subject, body := VendorDelayEmail(info, amount, 14)

	return &models.ActionOption{
		Title:              fmt.Sprintf("Перенести оплату: %s", vendor.Name),
		Description:        fmt.Sprintf("Попросить перенос платежа %.2f на 14 дней", amount),
		RelationshipRisk:   VendorRelationshipRisk(info),
		OperationalRisk:    OperationalRisk(models.ActionVendorDelay, vendor.Category),
		FinancialCost:      amount * 0.01, // возможная пеня за поздний платеж
		CashImpact:         amount,
		SuccessProbability: 0.7,
		PreparedContent: models.PreparedContent{
			VendorID: &vendorID, DelayDays: 14, EmailSubject: subject, EmailBody: body,
		},
	}, true
}

// overdueReceivables возвращает сумму и число просроченных поступлений.
func overdueReceivables(db *gorm.DB, userID uint) (float64, int) {
	var schedules []models.ObligationSchedule
	if err := db.Joins("Agreement").
		Where("\"Agreement\".user_id = ? AND \"Agreement\".category = ?", userID, models.CategoryRevenue).
		Where("obligation_schedules.status = ?", models.ScheduleOverdue).
		Find(&schedules).Error; err != nil {
		return 0, 0
	}
	var total float64
	for _, s := range schedules {
		total += s.EstimatedAmount
	}
	return total, len(schedules)
}

// categoryLabelRU - человеческое название категории обязательства.
func categoryLabelRU(cat models.ObligationCategory) string {
	switch cat {
	case models.CategoryPayroll:
		return "зарплата"
	case models.CategoryTax:
		return "налоги"
	case models.CategoryFixedCost:
		return "постоянные расходы"
	case models.CategoryVariableCost:
		return "переменные расходы"
	}
	return string(cat)
}
