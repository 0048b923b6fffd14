// cashpilot/models/notification.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// NotificationChannel - канал доставки уведомления.
type NotificationChannel string

const (
	ChannelEmail     NotificationChannel = "email"
	ChannelSlack     NotificationChannel = "slack"
	ChannelWebsocket NotificationChannel = "websocket"
)

// NotificationLog - журнал отправленных (и неотправленных) уведомлений.
// Неудача доставки фиксируется здесь и никогда не откатывает транзакцию
// алерта или действия.
type NotificationLog struct {
	gorm.Model
	UserID uint `json:"userId" gorm:"index;not null"`

	Channel NotificationChannel `json:"channel"`
	Target  string              `json:"target"`
	Subject string              `json:"subject"`
	Body    string              `json:"body"`

	AlertID  *uint `json:"alertId"`
	ActionID *uint `json:"actionId"`

	Delivered   bool       `json:"delivered"`
	Error       string     `json:"error"`
	DeliveredAt *time.Time `json:"deliveredAt"`
}
