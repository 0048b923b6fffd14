// cashpilot/internal/routes/api_routes.go
package routes

import (
	"cashpilot/internal/handlers"

	"github.com/gin-gonic/gin"
)

// RegisterAPIRoutes регистрирует все маршруты API, требующие аутентификации.
func RegisterAPIRoutes(api *gin.RouterGroup) {
	// Группа для всех API-запросов с префиксом /api
	apiGroup := api.Group("/api")
	{
		// Профиль и настройки пользователя
		profile := apiGroup.Group("/profile")
		{
			profile.GET("", handlers.GetProfileHandler)
			profile.PUT("", handlers.UpdateProfileHandler)
		}

		// --- НАСТРОЙКИ ПРАВИЛ ---
		settings := apiGroup.Group("/settings")
		{
			settings.GET("/detection-rules", handlers.ListDetectionRulesHandler)
			settings.PUT("/detection-rules", handlers.UpsertDetectionRuleHandler)
			settings.POST("/detection-rules/validate-formula", handlers.ValidateFormulaHandler)
			settings.GET("/automation-rules", handlers.ListAutomationRulesHandler)
			settings.PUT("/automation-rules", handlers.UpsertAutomationRuleHandler)
		}

		// --- КЛИЕНТЫ ---
		clients := apiGroup.Group("/clients")
		{
			clients.GET("", handlers.ListClientsHandler)
			clients.POST("", handlers.CreateClientHandler)
			clients.GET("/:id", handlers.GetClientHandler)
			clients.PUT("/:id", handlers.UpdateClientHandler)
			clients.POST("/:id/milestones", handlers.CreateMilestoneHandler)
		}

		// --- ПОСТАВЩИКИ И КАТЕГОРИИ РАСХОДОВ ---
		vendors := apiGroup.Group("/vendors")
		{
			vendors.GET("", handlers.ListVendorsHandler)
			vendors.POST("", handlers.CreateVendorHandler)
			vendors.PUT("/:id", handlers.UpdateVendorHandler)
		}
		buckets := apiGroup.Group("/expense-buckets")
		{
			buckets.GET("", handlers.ListBucketsHandler)
			buckets.POST("", handlers.CreateBucketHandler)
			buckets.PUT("/:id", handlers.UpdateBucketHandler)
		}

		// --- ОБЯЗАТЕЛЬСТВА ---
		agreements := apiGroup.Group("/agreements")
		{
			agreements.GET("", handlers.ListAgreementsHandler)
			agreements.POST("", handlers.CreateAgreementHandler)
			agreements.POST("/:id/end", handlers.EndAgreementHandler)
		}
		apiGroup.GET("/schedules", handlers.ListSchedulesHandler)

		// --- ФАКТИЧЕСКИЕ ПЛАТЕЖИ ---
		payments := apiGroup.Group("/payments")
		{
			payments.GET("", handlers.ListPaymentsHandler)
			payments.POST("", handlers.RecordPaymentHandler)
		}

		// --- АЛЕРТЫ И ДЕТЕКЦИЯ ---
		alerts := apiGroup.Group("/alerts")
		{
			alerts.GET("", handlers.ListAlertsHandler)
			alerts.GET("/:id", handlers.GetAlertHandler)
			alerts.POST("/:id/acknowledge", handlers.AcknowledgeAlertHandler)
			alerts.POST("/:id/dismiss", handlers.DismissAlertHandler)
			// Подготовка действия по конкретному алерту
			alerts.POST("/:alertId/prepare", handlers.PrepareActionHandler)
		}
		apiGroup.POST("/detection/run", handlers.RunDetectionHandler)

		// --- ОЧЕРЕДЬ ДЕЙСТВИЙ ---
		actions := apiGroup.Group("/actions")
		{
			actions.GET("", handlers.ListActionsHandler)
			actions.GET("/:id", handlers.GetActionHandler)
			actions.POST("/:id/approve", handlers.ApproveActionHandler)
			actions.POST("/:id/execute", handlers.ExecuteActionHandler)
			actions.POST("/:id/auto-execute", handlers.AutoExecuteActionHandler)
			actions.POST("/:id/mark-executed", handlers.MarkExecutedActionHandler)
			actions.POST("/:id/skip", handlers.SkipActionHandler)
			actions.POST("/:id/override", handlers.OverrideActionHandler)
		}

		// --- ПРОГНОЗ ---
		forecast := apiGroup.Group("/forecast")
		{
			forecast.GET("", handlers.GetForecastHandler)
			forecast.GET("/export", handlers.ExportForecastHandler)
		}

		// --- СЦЕНАРИИ "ЧТО ЕСЛИ" ---
		scenarios := apiGroup.Group("/scenarios")
		{
			scenarios.GET("", handlers.ListScenariosHandler)
			scenarios.POST("", handlers.StartScenarioHandler)
			scenarios.GET("/:reference", handlers.GetScenarioHandler)
			scenarios.POST("/:reference/answers", handlers.AnswerScenarioHandler)
			scenarios.POST("/:reference/commit", handlers.CommitScenarioHandler)
			scenarios.POST("/:reference/discard", handlers.DiscardScenarioHandler)
		}

		// --- АССИСТЕНТ ---
		apiGroup.POST("/assistant/ask", handlers.AskAssistantHandler)

		// --- ВНЕШНИЕ СЕРВИСЫ (WEBHOOKS) ---
		webhooks := apiGroup.Group("/webhooks")
		{
			webhooks.POST("/sync", handlers.SyncWebhookHandler)
		}

		// WebSocket эндпоинт живых уведомлений
		apiGroup.GET("/ws", handlers.WebsocketHandler)
	} // конец apiGroup
}
