// cashpilot/internal/syncdata/sync.go

// Package syncdata принимает данные из внешней учетной системы: остаток на
// счетах, неоплаченные исходящие счета, входящие счета поставщиков и
// банковские транзакции. Все апсерты идут по внешнему идентификатору -
// повторная доставка вебхука не плодит дубли.
package syncdata

import (
	"log/slog"
	"time"

	"cashpilot/internal/detection"
	"cashpilot/internal/obligation"
	"cashpilot/models"

	"gorm.io/gorm"
)

// Payload - тело вебхука синхронизации.
type Payload struct {
	// BankBalance присутствует, если провайдер прислал свежий остаток.
	BankBalance *float64 `json:"bankBalance"`

	Invoices     []InvoiceRecord     `json:"invoices"`
	VendorBills  []VendorBillRecord  `json:"vendorBills"`
	Transactions []TransactionRecord `json:"transactions"`
}

// InvoiceRecord - исходящий счет клиенту из учетной системы.
type InvoiceRecord struct {
	ExternalID    string    `json:"externalId" binding:"required"`
	ClientID      uint      `json:"clientId" binding:"required"`
	InvoiceNumber string    `json:"invoiceNumber"`
	Amount        float64   `json:"amount"`
	IssuedAt      time.Time `json:"issuedAt"`
	DueAt         time.Time `json:"dueAt"`
	Paid          bool      `json:"paid"`

	// Repeating сообщает, что счет порожден повторяющимся инструментом:
	// это поднимает уверенность прогноза по клиенту до high.
	Repeating bool `json:"repeating"`
}

// VendorBillRecord - входящий счет поставщика: ожидаемый расход.
type VendorBillRecord struct {
	ExternalID  string    `json:"externalId" binding:"required"`
	AgreementID uint      `json:"agreementId" binding:"required"`
	Amount      float64   `json:"amount"`
	DueAt       time.Time `json:"dueAt"`
}

// TransactionRecord - подтвержденное банковское движение.
type TransactionRecord struct {
	ExternalID string    `json:"externalId" binding:"required"`
	Amount     float64   `json:"amount"` // знаковое: поступление +, расход -
	Date       time.Time `json:"date"`
}

// Result - сводка обработки вебхука.
type Result struct {
	InvoicesUpserted     int `json:"invoicesUpserted"`
	BillsUpserted        int `json:"billsUpserted"`
	TransactionsRecorded int `json:"transactionsRecorded"`
	AlertsCreated        int `json:"alertsCreated"`
}

// Process применяет пакет синхронизации и сразу прогоняет критические
// детекции: свежие данные - лучший момент поймать проблему.
func Process(db *gorm.DB, user *models.User, payload *Payload) (*Result, error) {
	res := &Result{}

	for i := range payload.Invoices {
		if err := upsertInvoice(db, user.ID, &payload.Invoices[i]); err != nil {
			slog.Error("Не удалось синхронизировать счет",
				"external_id", payload.Invoices[i].ExternalID, "error", err)
			continue
		}
		res.InvoicesUpserted++
	}

	for i := range payload.VendorBills {
		if err := upsertVendorBill(db, &payload.VendorBills[i]); err != nil {
			slog.Error("Не удалось синхронизировать счет поставщика",
				"external_id", payload.VendorBills[i].ExternalID, "error", err)
			continue
		}
		res.BillsUpserted++
	}

	for i := range payload.Transactions {
		recorded, err := recordTransaction(db, user, &payload.Transactions[i])
		if err != nil {
			slog.Error("Не удалось записать транзакцию",
				"external_id", payload.Transactions[i].ExternalID, "error", err)
			continue
		}
		if recorded {
			res.TransactionsRecorded++
		}
	}

	// Снимок остатка применяется после транзакций: банковский снимок уже
	// включает их и перекрывает накопленные изменения.
	if payload.BankBalance != nil {
		now := time.Now()
		if err := db.Model(user).Updates(map[string]interface{}{
			"cash_balance":       *payload.BankBalance,
			"balance_updated_at": now,
		}).Error; err != nil {
			return nil, err
		}
		user.CashBalance = *payload.BankBalance
	}

	alerts, err := detection.RunCriticalDetections(db, user)
	if err != nil {
		slog.Error("Критические детекции после синхронизации завершились ошибкой",
			"user_id", user.ID, "error", err)
	} else {
		res.AlertsCreated = len(alerts)
	}

	slog.Info("Синхронизация обработана", "user_id", user.ID,
		"invoices", res.InvoicesUpserted, "bills", res.BillsUpserted,
		"transactions", res.TransactionsRecorded, "alerts", res.AlertsCreated)
	return res, nil
}

func upsertInvoice(db *gorm.DB, userID uint, rec *InvoiceRecord) error {
	var invoice models.OutstandingInvoice
	err := db.Where("user_id = ? AND external_id = ?", userID, rec.ExternalID).
		First(&invoice).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}

	externalID := rec.ExternalID
	invoice.UserID = userID
	invoice.ClientID = rec.ClientID
	invoice.InvoiceNumber = rec.InvoiceNumber
	invoice.Amount = rec.Amount
	invoice.IssuedAt = rec.IssuedAt
	invoice.DueAt = rec.DueAt
	invoice.Paid = rec.Paid
	invoice.ExternalID = &externalID

	if err := db.Save(&invoice).Error; err != nil {
		return err
	}

	// Привязка учетного документа поднимает уверенность прогноза клиента.
	updates := map[string]interface{}{"has_linked_contact": true}
	if rec.Repeating {
		updates["has_repeating_invoice"] = true
	}
	return db.Model(&models.Client{}).
		Where("id = ? AND user_id = ?", rec.ClientID, userID).
		Updates(updates).Error
}

func upsertVendorBill(db *gorm.DB, rec *VendorBillRecord) error {
	var schedule models.ObligationSchedule
	err := db.Where("agreement_id = ? AND external_id = ?", rec.AgreementID, rec.ExternalID).
		First(&schedule).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}

	now := time.Now()
	externalID := rec.ExternalID
	schedule.AgreementID = rec.AgreementID
	schedule.DueDate = rec.DueAt
	schedule.EstimatedAmount = rec.Amount
	schedule.Confidence = models.ConfidenceHigh
	schedule.EstimateSource = models.EstimateFromInvoice
	schedule.ExternalID = &externalID
	schedule.LastSyncAt = &now
	if schedule.Status == "" {
		schedule.Status = models.ScheduleScheduled
	}

	return db.Save(&schedule).Error
}

func recordTransaction(db *gorm.DB, user *models.User, rec *TransactionRecord) (bool, error) {
	var count int64
	if err := db.Model(&models.PaymentEvent{}).
		Where("user_id = ? AND external_id = ?", user.ID, rec.ExternalID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	externalID := rec.ExternalID
	event := models.PaymentEvent{
		Amount:      rec.Amount,
		PaymentDate: rec.Date,
		Status:      models.PaymentCompleted,
		Source:      "bank_feed",
		ExternalID:  &externalID,
	}
	if err := obligation.RecordPayment(db, user, &event); err != nil {
		return false, err
	}
	return true, nil
}
