// cashpilot/internal/execution/automation.go
package execution

import (
	"fmt"

	"cashpilot/models"

	"gorm.io/gorm"
)

// Ворота автоисполнения. Проверки идут строго по порядку, и первая
// непройденная дает причину отказа. Зарплатные действия блокируются
// безусловно, до чтения каких-либо правил.

// CheckAutomationEligibility решает, можно ли исполнить действие
// автоматически. Возвращает вердикт и человеческую причину отказа.
func CheckAutomationEligibility(db *gorm.DB, action *models.PreparedAction) (bool, string) {
	// 1. Действие должно быть одобрено и иметь выбранную опцию.
	if action.Status != models.ActionApproved && action.Status != models.ActionEdited {
		return false, "действие не одобрено"
	}
	if action.ApprovedOptionID == nil {
		return false, "не выбрана опция исполнения"
	}
	option := findOption(action, *action.ApprovedOptionID)
	if option == nil {
		return false, "выбранная опция не найдена"
	}

	// 2. Жесткий запрет: зарплата не автоматизируется никогда, независимо
	// от настроек пользователя.
	if action.ActionType == models.ActionPayrollContingency {
		return false, "зарплатные действия исполняются только вручную"
	}

	// 3. Персональное правило для типа действия должно существовать.
	var rule models.ExecutionAutomationRule
	err := db.Where("user_id = ? AND action_type = ?", action.UserID, action.ActionType).
		First(&rule).Error
	if err != nil {
		return false, fmt.Sprintf("для типа %s нет правила автоисполнения", action.ActionType)
	}

	// 4. Правило включено, разрешает автоисполнение и не заблокировано.
	if !rule.IsEnabled {
		return false, "правило автоисполнения выключено"
	}
	if rule.IsLocked {
		return false, "правило автоисполнения заблокировано"
	}
	if !rule.AutoExecute {
		return false, "автоисполнение не разрешено правилом"
	}

	// 5. Сумма в пределах порога. Порог 0 означает "любая сумма запрещена".
	amount := optionAmount(option)
	if amount > rule.ThresholdAmount {
		return false, fmt.Sprintf("сумма %.2f превышает порог %.2f", amount, rule.ThresholdAmount)
	}

	// 6. Тональность: жесткие письма наружу не уходят без человека.
	if option.PreparedContent.Tone == "firm" {
		return false, "жесткий тон требует ручного одобрения отправки"
	}

	// 7. Теги исключения и допуска.
	if tag := matchedTag(option, rule.ExcludedTags); tag != "" {
		return false, fmt.Sprintf("опция попадает под исключающий тег «%s»", tag)
	}
	if len(rule.IncludedTags) > 0 {
		if tag := matchedTag(option, rule.IncludedTags); tag == "" {
			return false, "опция не попадает ни под один разрешающий тег"
		}
	}

	return true, ""
}

// optionAmount - денежный масштаб опции для сверки с порогом.
func optionAmount(option *models.ActionOption) float64 {
	c := option.PreparedContent
	switch {
	case c.DrawAmount > 0:
		return c.DrawAmount
	case c.TargetAmount > 0:
		return c.TargetAmount
	case c.CutAmount > 0:
		return c.CutAmount
	}
	if option.CashImpact < 0 {
		return -option.CashImpact
	}
	return option.CashImpact
}

// matchedTag возвращает первый тег из списка, под который попадает опция.
// Тегами служат тон и тип содержимого опции.
func matchedTag(option *models.ActionOption, tags models.StringArray) string {
	for _, tag := range tags {
		if tag == option.PreparedContent.Tone {
			return tag
		}
		if tag == "email" && option.PreparedContent.EmailBody != "" {
			return tag
		}
		if tag == "credit" && option.PreparedContent.DrawAmount > 0 {
			return tag
		}
	}
	return ""
}
