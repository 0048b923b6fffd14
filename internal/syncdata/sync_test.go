// cashpilot/internal/syncdata/sync_test.go
package syncdata

import (
	"testing"
	"time"

	"cashpilot/internal/testdb"
	"cashpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessUpsertsIdempotent(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 40000)

	client := models.Client{UserID: user.ID, Name: "Акме", Amount: 50000}
	require.NoError(t, db.Create(&client).Error)

	agreement := models.ObligationAgreement{
		UserID:     user.ID,
		Name:       "Хостинг",
		Type:       models.AgreementVendorBill,
		Category:   models.CategoryFixedCost,
		BaseAmount: 8000,
		Frequency:  models.FreqMonthly,
		StartDate:  time.Now().AddDate(0, -2, 0),
	}
	require.NoError(t, db.Create(&agreement).Error)

	balance := 45000.0
	payload := &Payload{
		BankBalance: &balance,
		Invoices: []InvoiceRecord{{
			ExternalID:    "inv-1",
			ClientID:      client.ID,
			InvoiceNumber: "СЧ-104",
			Amount:        50000,
			IssuedAt:      time.Now().AddDate(0, 0, -3),
			DueAt:         time.Now().AddDate(0, 0, 11),
			Repeating:     true,
		}},
		VendorBills: []VendorBillRecord{{
			ExternalID:  "bill-1",
			AgreementID: agreement.ID,
			Amount:      8200,
			DueAt:       time.Now().AddDate(0, 0, 20),
		}},
		Transactions: []TransactionRecord{{
			ExternalID: "tx-1",
			Amount:     10000,
			Date:       time.Now(),
		}},
	}

	res, err := Process(db, user, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, res.InvoicesUpserted)
	assert.Equal(t, 1, res.BillsUpserted)
	assert.Equal(t, 1, res.TransactionsRecorded)

	// Счет поставщика превращается в график с высокой уверенностью.
	var schedule models.ObligationSchedule
	require.NoError(t, db.Where("agreement_id = ?", agreement.ID).First(&schedule).Error)
	assert.Equal(t, 8200.0, schedule.EstimatedAmount)
	assert.Equal(t, models.ConfidenceHigh, schedule.Confidence)
	assert.Equal(t, models.EstimateFromInvoice, schedule.EstimateSource)
	require.NotNil(t, schedule.ExternalID)
	assert.Equal(t, "bill-1", *schedule.ExternalID)

	// Привязка документов поднимает флаги уверенности клиента.
	var freshClient models.Client
	require.NoError(t, db.First(&freshClient, client.ID).Error)
	assert.True(t, freshClient.HasLinkedContact)
	assert.True(t, freshClient.HasRepeatingInvoice)

	// Повторная доставка того же вебхука не плодит строк.
	res, err = Process(db, user, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, res.InvoicesUpserted)
	assert.Equal(t, 1, res.BillsUpserted)
	assert.Equal(t, 0, res.TransactionsRecorded)

	var invoices, schedules, events int64
	db.Model(&models.OutstandingInvoice{}).Count(&invoices)
	db.Model(&models.ObligationSchedule{}).Count(&schedules)
	db.Model(&models.PaymentEvent{}).Count(&events)
	assert.Equal(t, int64(1), invoices)
	assert.Equal(t, int64(1), schedules)
	assert.Equal(t, int64(1), events)
}

func TestSnapshotOverridesTransactionBalance(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 40000)

	// Транзакция подняла бы остаток до 50000, но банковский снимок уже
	// включает ее и перекрывает накопленное значение.
	balance := 45000.0
	payload := &Payload{
		BankBalance: &balance,
		Transactions: []TransactionRecord{{
			ExternalID: "tx-7",
			Amount:     10000,
			Date:       time.Now(),
		}},
	}

	_, err := Process(db, user, payload)
	require.NoError(t, err)

	var fresh models.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	assert.Equal(t, 45000.0, fresh.CashBalance)
	assert.Equal(t, 45000.0, user.CashBalance)
	require.NotNil(t, fresh.BalanceUpdatedAt)
}

func TestProcessWithoutSnapshotKeepsRunningBalance(t *testing.T) {
	db := testdb.Open(t)
	user := testdb.MakeUser(t, db, 40000)

	payload := &Payload{
		Transactions: []TransactionRecord{{
			ExternalID: "tx-8",
			Amount:     -6000,
			Date:       time.Now(),
		}},
	}

	res, err := Process(db, user, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TransactionsRecorded)

	var fresh models.User
	require.NoError(t, db.First(&fresh, user.ID).Error)
	assert.Equal(t, 34000.0, fresh.CashBalance)
}
