// cashpilot/internal/preparation/linking.go
package preparation

import (
	"fmt"
	"log/slog"

	"cashpilot/models"

	"gorm.io/gorm"
)

// Связывание карточек: после подготовки все живые действия пользователя
// проходят попарный анализ, и между ними строятся типизированные ребра.
// Граф только показывается пользователю - никакого автоматического
// разрешения конфликтов.

// linkRule проверяет упорядоченную пару действий и, если связь есть,
// возвращает ее тип и объяснение.
type linkRule func(from, to *models.PreparedAction) (models.LinkType, string, bool)

var linkRules = []linkRule{
	linkFollowUpResolvesPayroll,
	linkSweepResolvesCreditDraw,
	linkFollowUpConflictsRetention,
	linkDoubleDelayConflicts,
	linkFollowUpBeforeCreditDraw,
	linkTaxPlanDependsOnCredit,
	linkPayrollCascadesToTiming,
}

// DetectLinks строит связи между живыми карточками пользователя. Уже
// существующие ребра не дублируются. Возвращает созданные ребра.
func DetectLinks(db *gorm.DB, userID uint) ([]models.LinkedAction, error) {
	var actions []models.PreparedAction
	if err := db.Preload("Options", "is_recommended = true").
		Where("user_id = ? AND status IN ?", userID,
			[]models.ActionStatus{models.ActionPendingApproval, models.ActionApproved, models.ActionEdited}).
		Find(&actions).Error; err != nil {
		return nil, err
	}
	if len(actions) < 2 {
		return nil, nil
	}

	var created []models.LinkedAction
	for i := range actions {
		for j := range actions {
			if i == j {
				continue
			}
			from, to := &actions[i], &actions[j]

			matched := false
			for _, rule := range linkRules {
				linkType, reason, ok := rule(from, to)
				if !ok {
					continue
				}
				matched = true
				if link, isNew := persistLink(db, userID, from.ID, to.ID, linkType, reason); isNew {
					created = append(created, *link)
				}
				break
			}

			// Фолбэк: карточки про одну и ту же сущность связываются,
			// даже когда ни одно содержательное правило не сработало.
			if !matched && i < j {
				if entity, ok := sharedEntity(from, to); ok {
					reason := fmt.Sprintf("Оба действия затрагивают %s", entity)
					if link, isNew := persistLink(db, userID, from.ID, to.ID, models.LinkSameEntity, reason); isNew {
						created = append(created, *link)
					}
				}
			}
		}
	}

	if len(created) > 0 {
		slog.Info("Построены связи между действиями", "user_id", userID, "links", len(created))
	}
	return created, nil
}

func persistLink(db *gorm.DB, userID, fromID, toID uint, linkType models.LinkType, reason string) (*models.LinkedAction, bool) {
	var existing models.LinkedAction
	err := db.Where("from_action_id = ? AND to_action_id = ? AND link_type = ?",
		fromID, toID, linkType).First(&existing).Error
	if err == nil {
		return &existing, false
	}

	link := models.LinkedAction{
		UserID:       userID,
		FromActionID: fromID,
		ToActionID:   toID,
		LinkType:     linkType,
		Reason:       reason,
	}
	if err := db.Create(&link).Error; err != nil {
		slog.Error("Не удалось сохранить связь действий", "from", fromID, "to", toID, "error", err)
		return nil, false
	}
	return &link, true
}

// --- Правила ---

// Поступление от догнанной оплаты закрывает зарплатный дефицит.
func linkFollowUpResolvesPayroll(from, to *models.PreparedAction) (models.LinkType, string, bool) {
	if from.ActionType != models.ActionInvoiceFollowUp || to.ActionType != models.ActionPayrollContingency {
		return "", "", false
	}
	if impact := recommendedCashImpact(from); impact > 0 {
		return models.LinkResolves,
			fmt.Sprintf("Поступление %.2f от просроченной оплаты закрывает зарплатный дефицит", impact), true
	}
	return "", "", false
}

// Сбор дебиторки делает кредитную линию ненужной.
func linkSweepResolvesCreditDraw(from, to *models.PreparedAction) (models.LinkType, string, bool) {
	if from.ActionType != models.ActionReceivablesSweep || to.ActionType != models.ActionCreditDraw {
		return "", "", false
	}
	return models.LinkResolves, "Собранная дебиторка восстанавливает буфер без кредита", true
}

// Жать на оплату и одновременно удерживать одного клиента - конфликт тона.
func linkFollowUpConflictsRetention(from, to *models.PreparedAction) (models.LinkType, string, bool) {
	if from.ActionType != models.ActionInvoiceFollowUp || to.ActionType != models.ActionClientRetention {
		return "", "", false
	}
	fc, tc := recommendedContent(from), recommendedContent(to)
	if fc == nil || tc == nil || fc.ClientID == nil || tc.ClientID == nil || *fc.ClientID != *tc.ClientID {
		return "", "", false
	}
	return models.LinkConflicts,
		"Требование оплаты и удержание адресованы одному клиенту: выберите один тон", true
}

// Две отсрочки в адрес одного поставщика: одобрение обеих двоит задержку.
func linkDoubleDelayConflicts(from, to *models.PreparedAction) (models.LinkType, string, bool) {
	if !delaysVendorPayment(from.ActionType) || !delaysVendorPayment(to.ActionType) {
		return "", "", false
	}
	// Связь симметричная, ребро строится один раз.
	if from.ID >= to.ID {
		return "", "", false
	}
	fc, tc := recommendedContent(from), recommendedContent(to)
	if fc == nil || tc == nil || fc.VendorID == nil || tc.VendorID == nil || *fc.VendorID != *tc.VendorID {
		return "", "", false
	}
	return models.LinkConflicts,
		"Обе отсрочки адресованы одному поставщику: двойная задержка бьет по отношениям", true
}

func delaysVendorPayment(t models.ActionType) bool {
	return t == models.ActionVendorDelay || t == models.ActionTimingRebalance
}

// Сначала попытка догнать оплату, кредит - только потом.
func linkFollowUpBeforeCreditDraw(from, to *models.PreparedAction) (models.LinkType, string, bool) {
	if from.ActionType != models.ActionInvoiceFollowUp || to.ActionType != models.ActionCreditDraw {
		return "", "", false
	}
	return models.LinkSequence, "Догнать оплату дешевле кредита: сначала напоминание, потом кредитная линия", true
}

// Налоговый план с опцией кредита зависит от доступности кредитной линии.
func linkTaxPlanDependsOnCredit(from, to *models.PreparedAction) (models.LinkType, string, bool) {
	if from.ActionType != models.ActionTaxPlan || to.ActionType != models.ActionCreditDraw {
		return "", "", false
	}
	return models.LinkDependsOn, "Кредитная опция налогового плана делит лимит с уже предложенным кредитом", true
}

// Перенос зарплаты сдвигает платежный график и тянет за собой перебалансировку.
func linkPayrollCascadesToTiming(from, to *models.PreparedAction) (models.LinkType, string, bool) {
	if from.ActionType != models.ActionPayrollContingency || to.ActionType != models.ActionTimingRebalance {
		return "", "", false
	}
	return models.LinkCascadesTo, "Перенос зарплаты меняет нагрузку недель: перебалансировку нужно пересчитать", true
}

// --- Вспомогательное ---

func recommendedContent(a *models.PreparedAction) *models.PreparedContent {
	for i := range a.Options {
		if a.Options[i].IsRecommended {
			return &a.Options[i].PreparedContent
		}
	}
	if len(a.Options) > 0 {
		return &a.Options[0].PreparedContent
	}
	return nil
}

func recommendedCashImpact(a *models.PreparedAction) float64 {
	for i := range a.Options {
		if a.Options[i].IsRecommended {
			return a.Options[i].CashImpact
		}
	}
	return 0
}

// sharedEntity сообщает, затрагивают ли карточки одну сущность.
func sharedEntity(a, b *models.PreparedAction) (string, bool) {
	ca, cb := recommendedContent(a), recommendedContent(b)
	if ca == nil || cb == nil {
		return "", false
	}
	switch {
	case ca.ClientID != nil && cb.ClientID != nil && *ca.ClientID == *cb.ClientID:
		return "одного клиента", true
	case ca.VendorID != nil && cb.VendorID != nil && *ca.VendorID == *cb.VendorID:
		return "одного поставщика", true
	case ca.BucketID != nil && cb.BucketID != nil && *ca.BucketID == *cb.BucketID:
		return "одну статью расходов", true
	}
	return "", false
}
