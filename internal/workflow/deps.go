// Package workflow contains the payment claim engine and the registration
// flow. Both are composed from narrow interfaces over the repositories, the
// panel client, the conversation state store and the outbound notifier; no
// transport types leak in here.
package workflow

import (
	"marzbot/internal/models"
)

// Actor identifies the chat a flow step originates from.
type Actor struct {
	ChatID int64
	Handle string // Telegram username, may be empty
}

// AccountDirectory is the slice of the account repository the workflows use.
type AccountDirectory interface {
	FindByChatID(chatID int64) ([]models.AccountLink, error)
	FindVerifiedByChatID(chatID int64) (*models.AccountLink, error)
	FindByUsername(username string) (*models.AccountLink, error)
	LinkAccount(username string, chatID int64, chatHandle, phone string) (bool, error)
	CreateRegistered(username string, chatID int64, chatHandle string) error
}

// ClaimLedger is the slice of the payment repository the engine uses.
type ClaimLedger interface {
	CreateRequest(chatID int64, username string, planID int, amount float64) (uint, error)
	AttachReceipt(requestID uint, fileRef, kind string) (bool, error)
	FindRequest(requestID uint) (*models.PaymentRequest, error)
	Decide(requestID uint, adminID int64, comment, outcome string) (bool, error)
	RecordPayment(entry *models.PaymentLedger) error
	PendingRequests() ([]models.PaymentRequest, error)
}

// Notifier is the outbound message sink. Admin broadcast methods handle
// per-admin delivery failures internally (logged, non-fatal).
type Notifier interface {
	// SendMessage returns the transport message id of the sent message.
	SendMessage(chatID int64, text string) (int, error)
	// SendMenuMessage sends text with a main-menu affordance attached.
	SendMenuMessage(chatID int64, text string) error
	// DeleteMessage is best-effort cleanup of a previously sent message.
	DeleteMessage(chatID int64, messageID int) error
	// NotifyAdmins broadcasts to every configured admin.
	NotifyAdmins(text string)
	// SendReceiptToAdmins forwards an uploaded receipt file to every admin.
	SendReceiptToAdmins(fileRef, kind, caption string)
}
