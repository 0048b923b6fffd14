// cashpilot/internal/preparation/letters.go
package preparation

import (
	"fmt"

	"cashpilot/models"

	"github.com/divan/num2words"
)

// Черновики писем клиентам. Тон выбирается заранее (см. Tone) и определяет,
// какой шаблон используется.

// FollowUpEmail составляет письмо-напоминание о просроченной оплате.
func FollowUpEmail(info *ClientInfo, amount float64, tone string) (subject, body string) {
	cl := info.Client
	switch tone {
	case "soft":
		subject = fmt.Sprintf("Напоминание об оплате - %s", cl.Name)
		body = fmt.Sprintf(
			"Здравствуйте!\n\nХотим мягко напомнить: по нашим данным, платеж на сумму %.2f пока не поступил. "+
				"Понимаем, что у всех бывают загруженные периоды - будем признательны, если вы подскажете ожидаемую дату оплаты.\n\n"+
				"Если оплата уже в пути, просто проигнорируйте это письмо.\n\nС уважением",
			amount)
	case "firm":
		// Для жесткого тона сумма дублируется прописью, как в платежных требованиях.
		words := num2words.Convert(int(amount))
		subject = fmt.Sprintf("Просроченная задолженность %.2f - требуется оплата", amount)
		body = fmt.Sprintf(
			"Здравствуйте.\n\nПо состоянию на сегодня за вами числится просроченная задолженность на сумму %.2f (%s). "+
				"Просим погасить ее в течение 3 рабочих дней либо письменно согласовать график погашения.\n\n"+
				"При отсутствии ответа мы будем вынуждены приостановить работы по договору.",
			amount, words)
	default:
		subject = fmt.Sprintf("Счет на %.2f: уточнение по оплате", amount)
		body = fmt.Sprintf(
			"Здравствуйте!\n\nПо нашим данным, оплата на сумму %.2f просрочена. "+
				"Пожалуйста, уточните статус платежа и ожидаемую дату поступления.\n\nСпасибо!",
			amount)
	}
	return subject, body
}

// VendorDelayEmail составляет просьбу о переносе оплаты поставщику.
func VendorDelayEmail(info *VendorInfo, amount float64, delayDays int) (subject, body string) {
	subject = fmt.Sprintf("Просьба о переносе оплаты на %d дн.", delayDays)
	body = fmt.Sprintf(
		"Здравствуйте!\n\nПросим рассмотреть возможность переноса ближайшего платежа на сумму %.2f на %d дней. "+
			"Это разовая просьба, связанная с кассовым графиком; остальные платежи идут по расписанию.\n\n"+
			"Будем благодарны за понимание.",
		amount, delayDays)
	return subject, body
}

// RetentionEmail - письмо для удержания клиента с ухудшившейся дисциплиной:
// не про долг, а про отношения.
func RetentionEmail(info *ClientInfo) (subject, body string) {
	subject = fmt.Sprintf("Как у вас дела? - %s", info.Client.Name)
	body = "Здравствуйте!\n\nЗаметили, что в последнее время оплаты проходят с задержками. " +
		"Хотим убедиться, что с вашей стороны все в порядке, и обсудить, можем ли мы сделать " +
		"сотрудничество удобнее - например, скорректировать график выставления счетов.\n\n" +
		"Будем рады короткому звонку на этой неделе."
	return subject, body
}

// callScript - телефонный скрипт вместо письма.
func callScript(clientName string, amount float64) string {
	return fmt.Sprintf(
		"1. Уточнить, получен ли счет на %.2f.\n"+
			"2. Спросить про конкретную дату оплаты (не «скоро», а число).\n"+
			"3. Если есть затруднения - предложить разбивку на два платежа.\n"+
			"4. Зафиксировать договоренность письмом сразу после звонка с %s.",
		amount, clientName)
}

// severityLabel - человеческое описание уровня для сводки проблемы.
func severityLabel(s models.AlertSeverity) string {
	switch s {
	case models.SeverityEmergency:
		return "критично"
	case models.SeverityThisWeek:
		return "на этой неделе"
	default:
		return "заранее"
	}
}
