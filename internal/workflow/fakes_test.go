package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"marzbot/internal/catalog"
	"marzbot/internal/models"
	"marzbot/internal/panel"
)

// ── AccountDirectory fake ─────────────────────────────────────────────

type fakeAccounts struct {
	links []models.AccountLink
	err   error
}

func (f *fakeAccounts) add(username string, chatID int64, verified bool) {
	link := models.AccountLink{PanelUsername: username, Verified: verified}
	if chatID != 0 {
		link.ChatID = sql.NullInt64{Int64: chatID, Valid: true}
	}
	f.links = append(f.links, link)
}

func (f *fakeAccounts) FindByChatID(chatID int64) ([]models.AccountLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.AccountLink
	for _, l := range f.links {
		if l.ChatID.Valid && l.ChatID.Int64 == chatID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeAccounts) FindVerifiedByChatID(chatID int64) (*models.AccountLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.links {
		l := &f.links[i]
		if l.ChatID.Valid && l.ChatID.Int64 == chatID && l.Verified {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) FindByUsername(username string) (*models.AccountLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.links {
		if f.links[i].PanelUsername == username {
			return &f.links[i], nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) LinkAccount(username string, chatID int64, chatHandle, phone string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for i := range f.links {
		l := &f.links[i]
		if l.PanelUsername == username && !l.ChatID.Valid {
			l.ChatID = sql.NullInt64{Int64: chatID, Valid: true}
			l.Verified = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccounts) CreateRegistered(username string, chatID int64, chatHandle string) error {
	if f.err != nil {
		return f.err
	}
	f.add(username, chatID, true)
	return nil
}

// ── ClaimLedger fake ──────────────────────────────────────────────────

type fakeClaims struct {
	nextID    uint
	requests  map[uint]*models.PaymentRequest
	ledger    []models.PaymentLedger
	createErr error
	ledgerErr error
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{nextID: 1, requests: make(map[uint]*models.PaymentRequest)}
}

func (f *fakeClaims) CreateRequest(chatID int64, username string, planID int, amount float64) (uint, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	id := f.nextID
	f.nextID++
	f.requests[id] = &models.PaymentRequest{
		ID: id, ChatID: chatID, PanelUsername: username,
		PlanID: planID, Amount: amount, Status: models.RequestPending,
	}
	return id, nil
}

func (f *fakeClaims) AttachReceipt(requestID uint, fileRef, kind string) (bool, error) {
	req, ok := f.requests[requestID]
	if !ok {
		return false, nil
	}
	req.ReceiptFileRef = sql.NullString{String: fileRef, Valid: true}
	req.ReceiptKind = sql.NullString{String: kind, Valid: true}
	return true, nil
}

func (f *fakeClaims) FindRequest(requestID uint) (*models.PaymentRequest, error) {
	req, ok := f.requests[requestID]
	if !ok {
		return nil, nil
	}
	copied := *req
	return &copied, nil
}

func (f *fakeClaims) Decide(requestID uint, adminID int64, comment, outcome string) (bool, error) {
	if outcome != models.RequestApproved && outcome != models.RequestRejected {
		return false, fmt.Errorf("invalid outcome %q", outcome)
	}
	req, ok := f.requests[requestID]
	if !ok || req.Status != models.RequestPending {
		return false, nil
	}
	req.Status = outcome
	req.ProcessedBy = sql.NullInt64{Int64: adminID, Valid: true}
	req.ProcessedAt = sql.NullTime{Time: time.Now(), Valid: true}
	req.AdminComment = sql.NullString{String: comment, Valid: comment != ""}
	return true, nil
}

func (f *fakeClaims) RecordPayment(entry *models.PaymentLedger) error {
	if f.ledgerErr != nil {
		return f.ledgerErr
	}
	f.ledger = append(f.ledger, *entry)
	return nil
}

func (f *fakeClaims) PendingRequests() ([]models.PaymentRequest, error) {
	var out []models.PaymentRequest
	for _, req := range f.requests {
		if req.Status == models.RequestPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

// ── panel.Client fake ─────────────────────────────────────────────────

type extendCall struct {
	username string
	days     int
}

type fakePanelClient struct {
	accounts  map[string]*panel.Account
	extends   []extendCall
	extendErr error
	createErr error
	created   []panel.CreateAccountParams
	getErr    error
	subURL    string
	subErr    error
	notesSync int
}

func newFakePanel() *fakePanelClient {
	return &fakePanelClient{accounts: make(map[string]*panel.Account)}
}

func (f *fakePanelClient) Authenticate(ctx context.Context) error { return nil }

func (f *fakePanelClient) GetAccount(ctx context.Context, username string) (*panel.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.accounts[username], nil
}

func (f *fakePanelClient) CreateAccount(ctx context.Context, params panel.CreateAccountParams) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, params)
	f.accounts[params.Username] = &panel.Account{Username: params.Username, Status: "active"}
	return nil
}

func (f *fakePanelClient) ExtendSubscription(ctx context.Context, username string, days int) error {
	if f.extendErr != nil {
		return f.extendErr
	}
	f.extends = append(f.extends, extendCall{username: username, days: days})
	return nil
}

func (f *fakePanelClient) SyncIdentityNote(ctx context.Context, username string, chatID int64, chatHandle string) error {
	f.notesSync++
	return nil
}

func (f *fakePanelClient) GetUsageStats(ctx context.Context, username string) (*panel.UsageStats, error) {
	return nil, nil
}

func (f *fakePanelClient) GetSubscriptionLink(ctx context.Context, username string) (string, error) {
	if f.subErr != nil {
		return "", f.subErr
	}
	return f.subURL, nil
}

func (f *fakePanelClient) ListAccounts(ctx context.Context, offset, limit int) ([]panel.Account, error) {
	return nil, nil
}

// ── Notifier fake ─────────────────────────────────────────────────────

type sentMessage struct {
	chatID int64
	text   string
	id     int
}

type fakeNotifier struct {
	nextMsgID int
	messages  []sentMessage
	menus     []sentMessage
	adminMsgs []string
	receipts  []string
	deleted   [][2]int64 // chatID, messageID
	sendErr   error
}

func (f *fakeNotifier) SendMessage(chatID int64, text string) (int, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextMsgID++
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text, id: f.nextMsgID})
	return f.nextMsgID, nil
}

func (f *fakeNotifier) SendMenuMessage(chatID int64, text string) error {
	f.nextMsgID++
	f.menus = append(f.menus, sentMessage{chatID: chatID, text: text, id: f.nextMsgID})
	return nil
}

func (f *fakeNotifier) DeleteMessage(chatID int64, messageID int) error {
	f.deleted = append(f.deleted, [2]int64{chatID, int64(messageID)})
	return nil
}

func (f *fakeNotifier) NotifyAdmins(text string) {
	f.adminMsgs = append(f.adminMsgs, text)
}

func (f *fakeNotifier) SendReceiptToAdmins(fileRef, kind, caption string) {
	f.receipts = append(f.receipts, fileRef)
}

func (f *fakeNotifier) lastUserText(chatID int64) string {
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].chatID == chatID {
			return f.messages[i].text
		}
	}
	return ""
}

func (f *fakeNotifier) adminSaw(substr string) bool {
	for _, m := range f.adminMsgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// ── Common fixture ────────────────────────────────────────────────────

func testCatalog() *catalog.Catalog {
	c, err := catalog.New([]catalog.Plan{
		{ID: 1, Name: "1 Month", Price: 150000, DurationDays: 30},
		{ID: 2, Name: "3 Months", Price: 400000, DurationDays: 90},
	}, nil)
	if err != nil {
		panic(err)
	}
	return c
}

var testLogger = zap.NewNop()
