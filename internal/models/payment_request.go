package models

import (
	"database/sql"
	"time"
)

// Payment request statuses. Pending is the only non-terminal state.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// Receipt kinds accepted from the chat transport.
const (
	ReceiptPhoto    = "photo"
	ReceiptDocument = "document"
)

// PaymentRequest maps to the `payment_requests` table: one row per claim.
// Status only ever moves pending→approved or pending→rejected; the transition
// is a compare-and-set in the repository and is never reopened.
type PaymentRequest struct {
	ID             uint           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ChatID         int64          `gorm:"column:chat_id;not null;index" json:"chat_id"`
	PanelUsername  string         `gorm:"column:panel_username;size:191;not null" json:"panel_username"`
	PlanID         int            `gorm:"column:plan_id;not null" json:"plan_id"`
	Amount         float64        `gorm:"column:amount;not null" json:"amount"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	Status         string         `gorm:"column:status;size:32;default:'pending';index" json:"status"`
	ReceiptFileRef sql.NullString `gorm:"column:receipt_file_ref;size:512" json:"receipt_file_ref"`
	ReceiptKind    sql.NullString `gorm:"column:receipt_kind;size:32" json:"receipt_kind"`
	AdminComment   sql.NullString `gorm:"column:admin_comment;type:text" json:"admin_comment"`
	ProcessedAt    sql.NullTime   `gorm:"column:processed_at" json:"processed_at"`
	ProcessedBy    sql.NullInt64  `gorm:"column:processed_by" json:"processed_by"`
}

func (PaymentRequest) TableName() string {
	return "payment_requests"
}

// HasReceipt reports whether a receipt has been attached to the claim.
func (r *PaymentRequest) HasReceipt() bool {
	return r.ReceiptFileRef.Valid && r.ReceiptKind.Valid
}
