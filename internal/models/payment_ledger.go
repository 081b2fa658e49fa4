package models

import "time"

// PaymentCompleted is the default ledger status for settled extensions.
const PaymentCompleted = "completed"

// PaymentLedger maps to the `payment_ledger` table. Rows are append-only:
// one entry per settled subscription extension, never updated or deleted.
type PaymentLedger struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ChatID         int64     `gorm:"column:chat_id;not null;index" json:"chat_id"`
	PanelUsername  string    `gorm:"column:panel_username;size:191;not null;index" json:"panel_username"`
	Amount         float64   `gorm:"column:amount;not null" json:"amount"`
	PaymentDate    time.Time `gorm:"column:payment_date;autoCreateTime" json:"payment_date"`
	Method         string    `gorm:"column:method;size:191" json:"method"`
	TransactionRef string    `gorm:"column:transaction_ref;size:191" json:"transaction_ref"`
	Status         string    `gorm:"column:status;size:32;default:'completed'" json:"status"`
}

func (PaymentLedger) TableName() string {
	return "payment_ledger"
}
