// cashpilot/config/database.go
package config

import (
	"log/slog"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DB - общее подключение к Postgres. Инициализируется один раз при старте.
var DB *gorm.DB

// ConnectDB открывает подключение по строке из DB_URL. База обязательна:
// без нее сервису нечего обслуживать, поэтому любая ошибка здесь фатальна.
func ConnectDB() {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		slog.Error("DB_URL не задан: без базы данных сервис не стартует")
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		slog.Error("Не удалось открыть подключение к Postgres", "error", err)
		os.Exit(1)
	}

	DB = db
	slog.Info("Подключение к Postgres установлено")
}
