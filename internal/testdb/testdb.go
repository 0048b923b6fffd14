// cashpilot/internal/testdb/testdb.go

// Package testdb поднимает базу в памяти для тестов движков.
// Схема та же, что в бою, но на sqlite: тесты не требуют Postgres.
package testdb

import (
	"testing"
	"time"

	"cashpilot/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open возвращает чистую базу в памяти со всей схемой приложения.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("не удалось открыть базу в памяти: %v", err)
	}
	// База живет в одном соединении: второй коннект пула увидел бы
	// пустую схему.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("не удалось получить соединение: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.ClientMilestone{},
		&models.OutstandingInvoice{},
		&models.Vendor{},
		&models.ExpenseBucket{},
		&models.ObligationAgreement{},
		&models.ObligationSchedule{},
		&models.PaymentEvent{},
		&models.DetectionRule{},
		&models.DetectionAlert{},
		&models.PreparedAction{},
		&models.ActionOption{},
		&models.LinkedAction{},
		&models.ExecutionRecord{},
		&models.ExecutionAutomationRule{},
		&models.NotificationLog{},
		&models.ScenarioDefinition{},
	); err != nil {
		t.Fatalf("миграция тестовой схемы не удалась: %v", err)
	}
	return db
}

// MakeUser создает пользователя с заданным остатком на счетах.
func MakeUser(t *testing.T, db *gorm.DB, balance float64) *models.User {
	t.Helper()

	now := time.Now()
	user := models.User{
		Login:             "owner@example.com",
		PasswordHash:      "x",
		CompanyName:       "Acme Studio",
		CashBalance:       balance,
		BalanceUpdatedAt:  &now,
		MonthlyRevenueRef: 100000,
		SafetyMode:        models.SafetyModeNormal,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("не удалось создать пользователя: %v", err)
	}
	return &user
}
