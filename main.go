// cashpilot/main.go
package main

import (
	"context"
	"log/slog"
	"os"

	"cashpilot/config"
	"cashpilot/internal/notify"
	"cashpilot/internal/routes"
	"cashpilot/internal/scheduler"
	"cashpilot/models"

	"github.com/gin-gonic/gin"
)

func main() {
	// Структурированный логгер - единый для всего приложения.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Подключения к инфраструктуре. База обязательна, Redis и Gemini - нет.
	config.ConnectDB()
	config.ConnectRedis()
	config.InitAuth()
	if err := config.InitGoogleServices(); err != nil {
		slog.Warn("Ассистент работает без Gemini", "error", err)
	}

	if err := config.DB.AutoMigrate(
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
		slog.Error("Ошибка миграции базы данных", "error", err)
		os.Exit(1)
	}

	// Канал доставки уведомлений. В базовой поставке только журнал;
	// почтовый провайдер подключается здесь же при наличии настроек SMTP.
	notify.Register(notify.LogProvider{})
	go notify.GlobalHub.Run()

	// Фоновые циклы: критические правила каждые десять минут, полный
	// проход (графики, вся детекция, эскалация, подготовка) раз в час.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.New(config.DB, scheduler.DefaultCriticalInterval, scheduler.DefaultFullInterval).Run(ctx)

	r := gin.Default()
	routes.SetupRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	slog.Info("Сервер запускается", "port", port)
	if err := r.Run(":" + port); err != nil {
		slog.Error("Сервер остановился с ошибкой", "error", err)
		os.Exit(1)
	}
}
