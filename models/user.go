// cashpilot/models/user.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// SafetyMode - режим осторожности пользователя. Масштабирует все пороги
// детекции единым множителем (см. DetectionRule и ThresholdMultiplier).
type SafetyMode string

const (
	SafetyModeConservative SafetyMode = "conservative"
	SafetyModeNormal       SafetyMode = "normal"
	SafetyModeRelaxed      SafetyMode = "relaxed"
)

// ThresholdMultiplier возвращает множитель порогов для режима.
// В консервативном режиме требования к запасу денег выше, и алерты
// срабатывают раньше.
func (m SafetyMode) ThresholdMultiplier() float64 {
	switch m {
	case SafetyModeConservative:
		return 1.2
	case SafetyModeRelaxed:
		return 0.85
	default:
		return 1.0
	}
}

// User представляет владельца компании (арендатора) в системе.
type User struct {
	gorm.Model
	Login        string `json:"login" gorm:"unique;not null"`
	PasswordHash string `json:"-" gorm:"not null"`
	FullName     string `json:"fullName"`
	CompanyName  string `json:"companyName"`
	Currency     string `json:"currency" gorm:"default:'USD'"`

	// CashBalance - текущий остаток на счетах по данным банка или ручного ввода.
	// Это снимок, а не регистр: история движений живет в PaymentEvent.
	CashBalance      float64    `json:"cashBalance" gorm:"type:numeric(12,2)"`
	BalanceUpdatedAt *time.Time `json:"balanceUpdatedAt"`

	// MonthlyRevenueRef - справочная месячная выручка, используется для
	// нормализации финансовой стоимости опций при расчете риска.
	MonthlyRevenueRef float64 `json:"monthlyRevenueRef" gorm:"type:numeric(12,2)"`

	SafetyMode SafetyMode `json:"safetyMode" gorm:"default:'normal'"`
}

// UserResponse - облегченная структура пользователя для ответов API.
type UserResponse struct {
	ID          uint   `json:"id"`
	Login       string `json:"login"`
	FullName    string `json:"fullName"`
	CompanyName string `json:"companyName"`
}

// ToResponse преобразует модель в структуру для API.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Login:       u.Login,
		FullName:    u.FullName,
		CompanyName: u.CompanyName,
	}
}
