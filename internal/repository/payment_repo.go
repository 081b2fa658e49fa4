package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"marzbot/internal/models"
	"marzbot/internal/pkg/utils"
)

// PaymentRepository handles payment requests and the append-only ledger.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateRequest opens a pending claim. Returns the new request id, 0 on
// failure.
func (r *PaymentRepository) CreateRequest(chatID int64, username string, planID int, amount float64) (uint, error) {
	req := models.PaymentRequest{
		ChatID:        chatID,
		PanelUsername: username,
		PlanID:        planID,
		Amount:        amount,
		Status:        models.RequestPending,
	}
	if err := r.db.Create(&req).Error; err != nil {
		return 0, err
	}
	return req.ID, nil
}

// AttachReceipt stores the uploaded receipt reference on a claim. Returns
// false when the request id is unknown.
func (r *PaymentRepository) AttachReceipt(requestID uint, fileRef, kind string) (bool, error) {
	res := r.db.Model(&models.PaymentRequest{}).
		Where("id = ?", requestID).
		Updates(map[string]interface{}{
			"receipt_file_ref": fileRef,
			"receipt_kind":     kind,
		})
	return res.RowsAffected > 0, res.Error
}

// FindRequest returns a claim by id, or nil when absent.
func (r *PaymentRepository) FindRequest(requestID uint) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	err := r.db.Where("id = ?", requestID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Decide transitions a pending claim to its terminal status. The WHERE clause
// on the current status makes this a single atomic compare-and-set: under
// concurrent admin decisions exactly one call reports true. outcome must be
// RequestApproved or RequestRejected.
func (r *PaymentRepository) Decide(requestID uint, adminID int64, comment, outcome string) (bool, error) {
	if outcome != models.RequestApproved && outcome != models.RequestRejected {
		return false, fmt.Errorf("invalid decision outcome %q", outcome)
	}
	res := r.db.Model(&models.PaymentRequest{}).
		Where("id = ? AND status = ?", requestID, models.RequestPending).
		Updates(map[string]interface{}{
			"status":        outcome,
			"processed_at":  time.Now(),
			"processed_by":  adminID,
			"admin_comment": sql.NullString{String: comment, Valid: comment != ""},
		})
	return res.RowsAffected > 0, res.Error
}

// PendingRequests returns open claims, newest first.
func (r *PaymentRepository) PendingRequests() ([]models.PaymentRequest, error) {
	var reqs []models.PaymentRequest
	err := r.db.Where("status = ?", models.RequestPending).
		Order("created_at DESC").Find(&reqs).Error
	return reqs, err
}

// RecordPayment appends a ledger entry. A transaction ref is generated when
// the caller has none; status defaults to completed.
func (r *PaymentRepository) RecordPayment(entry *models.PaymentLedger) error {
	if entry.TransactionRef == "" {
		entry.TransactionRef = utils.GenerateTransactionRef()
	}
	if entry.Status == "" {
		entry.Status = models.PaymentCompleted
	}
	return r.db.Create(entry).Error
}

// HistoryByUsername returns the most recent ledger entries for a panel
// account.
func (r *PaymentRepository) HistoryByUsername(username string, limit int) ([]models.PaymentLedger, error) {
	if limit <= 0 {
		limit = 10
	}
	var entries []models.PaymentLedger
	err := r.db.Where("panel_username = ?", username).
		Order("payment_date DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
