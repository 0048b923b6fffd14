// cashpilot/internal/scheduler/scheduler.go

// Package scheduler гоняет фоновые циклы по всем пользователям в два темпа:
// частый дешевый проход только критических правил и редкий полный цикл
// (освежение графиков, вся детекция, эскалация, подготовка действий).
// Пользователи обрабатываются последовательно, ошибка одного не
// останавливает остальных.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"cashpilot/internal/detection"
	"cashpilot/internal/escalation"
	"cashpilot/internal/obligation"
	"cashpilot/internal/preparation"
	"cashpilot/models"

	"gorm.io/gorm"
)

const (
	// DefaultCriticalInterval - период прогона критических правил.
	DefaultCriticalInterval = 10 * time.Minute
	// DefaultFullInterval - период полного цикла.
	DefaultFullInterval = time.Hour
)

// Scheduler - фоновый цикл системы.
type Scheduler struct {
	db       *gorm.DB
	critical time.Duration
	full     time.Duration

	lastFull time.Time
}

func New(db *gorm.DB, critical, full time.Duration) *Scheduler {
	if critical <= 0 {
		critical = DefaultCriticalInterval
	}
	if full < critical {
		full = DefaultFullInterval
	}
	return &Scheduler{db: db, critical: critical, full: full}
}

// Run крутит цикл до отмены контекста. Первый проход выполняется сразу
// и всегда полный.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("Планировщик запущен",
		"critical_interval", s.critical, "full_interval", s.full)

	s.tick(ctx)

	ticker := time.NewTicker(s.critical)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Планировщик остановлен")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick выбирает объем прохода: полный цикл не чаще full, между полными
// проходами гоняются только критические правила.
func (s *Scheduler) tick(ctx context.Context) {
	if time.Since(s.lastFull) >= s.full {
		s.lastFull = time.Now()
		s.RunOnce(ctx)
		return
	}
	s.RunCriticalOnce(ctx)
}

// RunOnce выполняет один полный проход по всем пользователям.
func (s *Scheduler) RunOnce(ctx context.Context) {
	started := time.Now()

	var users []models.User
	if err := s.db.Find(&users).Error; err != nil {
		slog.Error("Планировщик не смог загрузить пользователей", "error", err)
		return
	}

	for i := range users {
		if ctx.Err() != nil {
			return
		}
		s.runForUser(&users[i])
	}

	slog.Info("Полный проход планировщика завершен",
		"users", len(users), "duration", time.Since(started).String())
}

// RunCriticalOnce прогоняет по всем пользователям только критические
// детекции и эскалацию: дешевый проход между полными циклами.
func (s *Scheduler) RunCriticalOnce(ctx context.Context) {
	var users []models.User
	if err := s.db.Find(&users).Error; err != nil {
		slog.Error("Планировщик не смог загрузить пользователей", "error", err)
		return
	}

	for i := range users {
		if ctx.Err() != nil {
			return
		}
		user := &users[i]
		if _, err := detection.RunCriticalDetections(s.db, user); err != nil {
			slog.Error("Критическая детекция завершилась ошибкой",
				"user_id", user.ID, "error", err)
		}
		if _, err := escalation.RunEscalationCheck(s.db, user); err != nil {
			slog.Error("Эскалация завершилась ошибкой", "user_id", user.ID, "error", err)
		}
	}
}

// runForUser - полный цикл одного пользователя. Каждый шаг изолирован:
// сбой детекции не мешает эскалации уже существующих алертов.
func (s *Scheduler) runForUser(user *models.User) {
	if _, err := obligation.GenerateSchedules(s.db, user.ID); err != nil {
		slog.Error("Порождение графиков завершилось ошибкой", "user_id", user.ID, "error", err)
	}
	if err := obligation.RefreshStatuses(s.db, user.ID); err != nil {
		slog.Error("Освежение статусов графиков завершилось ошибкой", "user_id", user.ID, "error", err)
	}

	if _, err := detection.RunAllDetections(s.db, user); err != nil {
		slog.Error("Детекция завершилась ошибкой", "user_id", user.ID, "error", err)
	}

	if _, err := escalation.RunEscalationCheck(s.db, user); err != nil {
		slog.Error("Эскалация завершилась ошибкой", "user_id", user.ID, "error", err)
	}

	if _, err := preparation.PrepareAllActive(s.db, user); err != nil {
		slog.Error("Подготовка действий завершилась ошибкой", "user_id", user.ID, "error", err)
	}
}
