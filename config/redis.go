// cashpilot/config/redis.go
package config

import (
	"context"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
)

// RDB - клиент Redis для кэшей данных пользователя и порогов детекции.
// nil означает, что кэширование выключено и все читается из базы.
var RDB *redis.Client

var Ctx = context.Background()

// ConnectRedis поднимает клиент по REDIS_ADDR. Redis необязателен:
// его недоступность понижает систему до работы без кэшей, но не валит ее.
func ConnectRedis() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		slog.Warn("REDIS_ADDR не задан, кэши пользователей и порогов отключены")
		return
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := client.Ping(Ctx).Result(); err != nil {
		slog.Error("Redis недоступен, продолжаем без кэширования", "error", err)
		return
	}

	RDB = client
	slog.Info("Подключение к Redis установлено")
}
