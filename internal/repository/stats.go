package repository

import (
	"time"

	"gorm.io/gorm"

	"marzbot/internal/models"
)

// Stats is the aggregate reported by /stats and the HTTP API.
type Stats struct {
	TotalAccounts    int64   `json:"total_accounts"`
	LinkedAccounts   int64   `json:"linked_accounts"`
	VerifiedAccounts int64   `json:"verified_accounts"`
	UnlinkedAccounts int64   `json:"unlinked_accounts"`
	LinkPercentage   float64 `json:"link_percentage"`
	TotalPayments    int64   `json:"total_payments"`
	TotalRevenue     float64 `json:"total_revenue"`
	MonthlyPayments  int64   `json:"monthly_payments"`
	MonthlyRevenue   float64 `json:"monthly_revenue"`
	PendingRequests  int64   `json:"pending_requests"`
}

// StatsRepository computes the cross-table aggregate.
type StatsRepository struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Collect gathers counts and revenue sums. The monthly window is the last 30
// days.
func (r *StatsRepository) Collect() (*Stats, error) {
	var s Stats

	if err := r.db.Model(&models.AccountLink{}).Count(&s.TotalAccounts).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.AccountLink{}).Where("chat_id IS NOT NULL").Count(&s.LinkedAccounts).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.AccountLink{}).Where("verified = ?", true).Count(&s.VerifiedAccounts).Error; err != nil {
		return nil, err
	}
	s.UnlinkedAccounts = s.TotalAccounts - s.LinkedAccounts
	if s.TotalAccounts > 0 {
		s.LinkPercentage = float64(s.LinkedAccounts) / float64(s.TotalAccounts) * 100
	}

	type sums struct {
		Count int64
		Total float64
	}
	var all, monthly sums

	completed := r.db.Model(&models.PaymentLedger{}).Where("status = ?", models.PaymentCompleted)
	if err := completed.Session(&gorm.Session{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Scan(&all).Error; err != nil {
		return nil, err
	}
	cutoff := time.Now().AddDate(0, 0, -30)
	if err := completed.Session(&gorm.Session{}).
		Where("payment_date >= ?", cutoff).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Scan(&monthly).Error; err != nil {
		return nil, err
	}
	s.TotalPayments, s.TotalRevenue = all.Count, all.Total
	s.MonthlyPayments, s.MonthlyRevenue = monthly.Count, monthly.Total

	if err := r.db.Model(&models.PaymentRequest{}).
		Where("status = ?", models.RequestPending).
		Count(&s.PendingRequests).Error; err != nil {
		return nil, err
	}

	return &s, nil
}
