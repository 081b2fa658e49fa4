package repository

import (
	"testing"

	"marzbot/internal/models"
)

func TestStatsCollect(t *testing.T) {
	db := newTestDB(t)
	accounts := NewAccountRepository(db)
	payments := NewPaymentRepository(db)
	stats := NewStatsRepository(db)

	for _, u := range []string{"a", "b", "c", "d"} {
		if _, err := accounts.UpsertAutoImported(u, "active", ""); err != nil {
			t.Fatalf("seed %s: %v", u, err)
		}
	}
	if _, err := accounts.LinkAccount("a", 1, "", ""); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := accounts.LinkAccount("b", 2, "", ""); err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := payments.RecordPayment(&models.PaymentLedger{
		ChatID: 1, PanelUsername: "a", Amount: 100,
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if err := payments.RecordPayment(&models.PaymentLedger{
		ChatID: 2, PanelUsername: "b", Amount: 250,
	}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if _, err := payments.CreateRequest(1, "a", 1, 100); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	s, err := stats.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if s.TotalAccounts != 4 || s.LinkedAccounts != 2 || s.UnlinkedAccounts != 2 {
		t.Fatalf("account counts wrong: %+v", s)
	}
	if s.LinkPercentage != 50 {
		t.Fatalf("link percentage wrong: %v", s.LinkPercentage)
	}
	if s.TotalPayments != 2 || s.TotalRevenue != 350 {
		t.Fatalf("payment totals wrong: %+v", s)
	}
	if s.MonthlyPayments != 2 || s.MonthlyRevenue != 350 {
		t.Fatalf("monthly totals wrong: %+v", s)
	}
	if s.PendingRequests != 1 {
		t.Fatalf("pending count wrong: %d", s.PendingRequests)
	}
}
