// cashpilot/models/execution.go
package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrPayrollRuleLocked возвращается при любой попытке разблокировать или
// включить автоисполнение зарплатного правила.
var ErrPayrollRuleLocked = errors.New("правило автоисполнения для зарплаты заблокировано навсегда")

// ExecutionMethod - способ исполнения одобренного действия.
type ExecutionMethod string

const (
	ExecManual    ExecutionMethod = "manual"
	ExecAutomated ExecutionMethod = "automated"
)

// ExecutionResult - исход исполнения.
type ExecutionResult string

const (
	ExecSuccess ExecutionResult = "success"
	ExecFailed  ExecutionResult = "failed"
)

// ExecutionRecord - свидетельство исполнения действия: что именно ушло
// наружу и чем закончилось. Запись сохраняется и при неудаче отправки.
type ExecutionRecord struct {
	gorm.Model
	UserID   uint  `json:"userId" gorm:"index;not null"`
	ActionID uint  `json:"actionId" gorm:"index;not null"`
	OptionID *uint `json:"optionId"`

	Method ExecutionMethod `json:"method"`
	Result ExecutionResult `json:"result"`

	// ExecutedContent - снимок содержимого на момент исполнения.
	ExecutedContent PreparedContent `json:"executedContent" gorm:"type:jsonb"`

	ExternalRef  string     `json:"externalRef"`
	ErrorMessage string     `json:"errorMessage"`
	ExecutedAt   *time.Time `json:"executedAt"`
}

// ExecutionAutomationRule - персональные ворота автоисполнения для типа
// действия. Для PAYROLL правило навсегда заблокировано: автоисполнение
// зарплатных действий запрещено на уровне системы.
type ExecutionAutomationRule struct {
	gorm.Model
	UserID     uint       `json:"userId" gorm:"index;not null"`
	ActionType ActionType `json:"actionType" gorm:"not null"`

	AutoExecute     bool    `json:"autoExecute"`
	ThresholdAmount float64 `json:"thresholdAmount" gorm:"type:numeric(12,2)"`

	IncludedTags StringArray `json:"includedTags" gorm:"type:jsonb"`
	ExcludedTags StringArray `json:"excludedTags" gorm:"type:jsonb"`

	IsEnabled bool `json:"isEnabled" gorm:"default:true"`
	IsLocked  bool `json:"isLocked"`
}

// BeforeSave запрещает включение автоисполнения на заблокированных правилах.
func (r *ExecutionAutomationRule) BeforeSave(tx *gorm.DB) error {
	if r.ActionType == ActionPayrollContingency {
		// Зарплата не автоматизируется никогда.
		if r.AutoExecute || !r.IsLocked {
			return ErrPayrollRuleLocked
		}
	}
	return nil
}
