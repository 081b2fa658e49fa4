package models

import (
	"database/sql"
	"time"
)

// Subscription status values mirrored from the panel.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
	StatusExpired  = "expired"
	StatusPending  = "pending"
)

// AccountLink maps to the `account_links` table: one row per panel username,
// optionally linked to a Telegram chat. A chat may own several panel accounts;
// a panel account belongs to at most one chat.
type AccountLink struct {
	ID                 uint           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PanelUsername      string         `gorm:"column:panel_username;uniqueIndex;size:191;not null" json:"panel_username"`
	ChatID             sql.NullInt64  `gorm:"column:chat_id;index" json:"chat_id"`
	ChatHandle         sql.NullString `gorm:"column:chat_handle;size:191" json:"chat_handle"`
	PhoneNumber        sql.NullString `gorm:"column:phone_number;size:64" json:"phone_number"`
	RegisteredAt       time.Time      `gorm:"column:registered_at;autoCreateTime" json:"registered_at"`
	Verified           bool           `gorm:"column:verified;default:false" json:"verified"`
	SubscriptionStatus string         `gorm:"column:subscription_status;size:32;default:'active'" json:"subscription_status"`
	Notes              string         `gorm:"column:notes;type:text" json:"notes"`
}

func (AccountLink) TableName() string {
	return "account_links"
}

// Linked reports whether the account is bound to a Telegram chat.
func (a *AccountLink) Linked() bool {
	return a.ChatID.Valid
}
