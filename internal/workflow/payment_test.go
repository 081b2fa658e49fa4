package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"marzbot/internal/models"
	"marzbot/internal/state"
)

type paymentFixture struct {
	engine   *PaymentEngine
	accounts *fakeAccounts
	claims   *fakeClaims
	panel    *fakePanelClient
	states   *state.MemoryStore
	notifier *fakeNotifier
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		accounts: &fakeAccounts{},
		claims:   newFakeClaims(),
		panel:    newFakePanel(),
		states:   state.NewMemoryStore(time.Minute),
		notifier: &fakeNotifier{},
	}
	f.engine = NewPaymentEngine(f.accounts, f.claims, f.panel, f.states, f.notifier, testCatalog(), testLogger)
	return f
}

var user = Actor{ChatID: 42, Handle: "alice_tg"}

func TestOpenClaim_HappyPath(t *testing.T) {
	f := newPaymentFixture()
	f.accounts.add("alice", user.ChatID, true)

	if err := f.engine.OpenClaim(context.Background(), user, 1, ""); err != nil {
		t.Fatalf("OpenClaim: %v", err)
	}

	req, _ := f.claims.FindRequest(1)
	if req == nil || req.Status != models.RequestPending {
		t.Fatalf("claim not opened: %+v", req)
	}
	if req.PanelUsername != "alice" || req.Amount != 150000 {
		t.Fatalf("claim fields wrong: %+v", req)
	}

	conv, ok := f.states.Get(user.ChatID)
	if !ok || conv.Flow != state.FlowAwaitingReceipt || conv.RequestID != 1 {
		t.Fatalf("chat not awaiting receipt: %+v ok=%t", conv, ok)
	}
	if conv.ClaimMessageID == 0 {
		t.Fatalf("claim summary message id not captured")
	}

	if len(f.notifier.adminMsgs) != 1 {
		t.Fatalf("admins not notified: %v", f.notifier.adminMsgs)
	}
}

func TestOpenClaim_UnknownPlan(t *testing.T) {
	f := newPaymentFixture()
	f.accounts.add("alice", user.ChatID, true)

	if err := f.engine.OpenClaim(context.Background(), user, 99, ""); err == nil {
		t.Fatalf("unknown plan accepted")
	}
	if len(f.claims.requests) != 0 {
		t.Fatalf("claim opened for unknown plan")
	}
	if _, ok := f.states.Get(user.ChatID); ok {
		t.Fatalf("state set despite failure")
	}
}

func TestOpenClaim_NoAccount(t *testing.T) {
	f := newPaymentFixture()

	if err := f.engine.OpenClaim(context.Background(), user, 1, ""); err == nil {
		t.Fatalf("claim without account accepted")
	}
	if len(f.claims.requests) != 0 {
		t.Fatalf("claim opened without an account")
	}
}

func TestOpenClaim_ExplicitAccountMustBeOwned(t *testing.T) {
	f := newPaymentFixture()
	f.accounts.add("alice", user.ChatID, true)
	f.accounts.add("mallory", 777, true)

	if err := f.engine.OpenClaim(context.Background(), user, 1, "mallory"); err == nil {
		t.Fatalf("claim against another chat's account accepted")
	}
}

func TestOpenClaim_UsesActiveAccount(t *testing.T) {
	f := newPaymentFixture()
	f.accounts.add("alice_a", user.ChatID, true)
	f.accounts.add("alice_b", user.ChatID, true)
	f.engine.SelectActiveAccount(user.ChatID, "alice_b")

	if err := f.engine.OpenClaim(context.Background(), user, 1, ""); err != nil {
		t.Fatalf("OpenClaim: %v", err)
	}
	req, _ := f.claims.FindRequest(1)
	if req.PanelUsername != "alice_b" {
		t.Fatalf("active account ignored: claim on %q", req.PanelUsername)
	}
}

func TestHandleReceipt_GuardIgnoresUnexpectedUploads(t *testing.T) {
	f := newPaymentFixture()

	if err := f.engine.HandleReceipt(context.Background(), user, "file-1", models.ReceiptPhoto, 5); err != nil {
		t.Fatalf("HandleReceipt: %v", err)
	}

	// Nothing happens: no messages, no admin pings, no claim mutation.
	if len(f.notifier.messages) != 0 || len(f.notifier.adminMsgs) != 0 || len(f.notifier.receipts) != 0 {
		t.Fatalf("unexpected upload produced activity")
	}
}

func TestHandleReceipt_UnsupportedKindStaysInFlow(t *testing.T) {
	f := newPaymentFixture()
	f.accounts.add("alice", user.ChatID, true)
	if err := f.engine.OpenClaim(context.Background(), user, 1, ""); err != nil {
		t.Fatalf("OpenClaim: %v", err)
	}

	if err := f.engine.HandleReceipt(context.Background(), user, "", "", 5); err != nil {
		t.Fatalf("HandleReceipt: %v", err)
	}

	conv, ok := f.states.Get(user.ChatID)
	if !ok || conv.Flow != state.FlowAwaitingReceipt {
		t.Fatalf("flow abandoned on unsupported upload: %+v ok=%t", conv, ok)
	}
	if !strings.Contains(f.notifier.lastUserText(user.ChatID), "Unsupported") {
		t.Fatalf("user not told about unsupported type")
	}
	if len(f.notifier.receipts) != 0 {
		t.Fatalf("unsupported upload forwarded to admins")
	}
}

func TestHandleReceipt_HappyPath(t *testing.T) {
	f := newPaymentFixture()
	f.accounts.add("alice", user.ChatID, true)
	if err := f.engine.OpenClaim(context.Background(), user, 1, ""); err != nil {
		t.Fatalf("OpenClaim: %v", err)
	}
	conv, _ := f.states.Get(user.ChatID)
	claimMsgID := conv.ClaimMessageID

	if err := f.engine.HandleReceipt(context.Background(), user, "file-1", models.ReceiptPhoto, 77); err != nil {
		t.Fatalf("HandleReceipt: %v", err)
	}

	req, _ := f.claims.FindRequest(1)
	if !req.HasReceipt() {
		t.Fatalf("receipt not attached")
	}

	// The flow is done; only the sticky account selection may remain.
	conv, ok := f.states.Get(user.ChatID)
	if ok && conv.Flow != "" {
		t.Fatalf("flow not cleared after receipt: %+v", conv)
	}

	// Both the claim summary and the upload are cleaned up.
	if len(f.notifier.deleted) != 2 {
		t.Fatalf("expected 2 deleted messages, got %v", f.notifier.deleted)
	}
	if f.notifier.deleted[0][1] != int64(claimMsgID) || f.notifier.deleted[1][1] != 77 {
		t.Fatalf("wrong messages deleted: %v", f.notifier.deleted)
	}

	if len(f.notifier.menus) != 1 {
		t.Fatalf("acceptance message missing")
	}
	if len(f.notifier.receipts) != 1 || f.notifier.receipts[0] != "file-1" {
		t.Fatalf("receipt not forwarded to admins: %v", f.notifier.receipts)
	}
	if !f.notifier.adminSaw("#1") {
		t.Fatalf("admins not prompted to review: %v", f.notifier.adminMsgs)
	}
}

func TestApprove_HappyPath(t *testing.T) {
	f := newPaymentFixture()
	id, _ := f.claims.CreateRequest(user.ChatID, "alice", 1, 150000)

	reply, err := f.engine.Approve(context.Background(), 900, id, "thanks")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if strings.Contains(reply, "❌") {
		t.Fatalf("approval reported failure: %q", reply)
	}

	req, _ := f.claims.FindRequest(id)
	if req.Status != models.RequestApproved || req.ProcessedBy.Int64 != 900 {
		t.Fatalf("claim not settled: %+v", req)
	}

	if len(f.panel.extends) != 1 || f.panel.extends[0] != (extendCall{username: "alice", days: 30}) {
		t.Fatalf("panel extension wrong: %v", f.panel.extends)
	}

	if len(f.claims.ledger) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(f.claims.ledger))
	}
	if f.claims.ledger[0].Amount != 150000 || f.claims.ledger[0].PanelUsername != "alice" {
		t.Fatalf("ledger row wrong: %+v", f.claims.ledger[0])
	}

	if len(f.notifier.menus) != 1 || f.notifier.menus[0].chatID != user.ChatID {
		t.Fatalf("user not congratulated: %v", f.notifier.menus)
	}
}

func TestApprove_SecondDecisionLoses(t *testing.T) {
	f := newPaymentFixture()
	id, _ := f.claims.CreateRequest(user.ChatID, "alice", 1, 150000)

	if _, err := f.engine.Approve(context.Background(), 900, id, ""); err != nil {
		t.Fatalf("Approve (first): %v", err)
	}
	reply, err := f.engine.Approve(context.Background(), 901, id, "")
	if err != nil {
		t.Fatalf("Approve (second): %v", err)
	}
	if !strings.Contains(reply, "already processed") {
		t.Fatalf("second approval not refused: %q", reply)
	}

	// The panel was touched exactly once; the ledger has exactly one row.
	if len(f.panel.extends) != 1 {
		t.Fatalf("panel extended %d times", len(f.panel.extends))
	}
	if len(f.claims.ledger) != 1 {
		t.Fatalf("ledger has %d rows", len(f.claims.ledger))
	}
}

func TestApprove_RejectAfterApproveLoses(t *testing.T) {
	f := newPaymentFixture()
	id, _ := f.claims.CreateRequest(user.ChatID, "alice", 1, 150000)

	if _, err := f.engine.Approve(context.Background(), 900, id, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	reply, err := f.engine.Reject(context.Background(), 901, id, "fake receipt")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if !strings.Contains(reply, "already processed") {
		t.Fatalf("reject after approve not refused: %q", reply)
	}

	req, _ := f.claims.FindRequest(id)
	if req.Status != models.RequestApproved {
		t.Fatalf("approval overwritten: %q", req.Status)
	}
}

func TestApprove_PanelFailureKeepsClaimApproved(t *testing.T) {
	f := newPaymentFixture()
	f.panel.extendErr = errors.New("panel down")
	id, _ := f.claims.CreateRequest(user.ChatID, "alice", 1, 150000)

	reply, err := f.engine.Approve(context.Background(), 900, id, "")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// Fail forward: the claim stays approved and the admin is told to fix
	// the panel side manually.
	req, _ := f.claims.FindRequest(id)
	if req.Status != models.RequestApproved {
		t.Fatalf("claim rolled back: %q", req.Status)
	}
	if !strings.Contains(reply, "alice") || !strings.Contains(strings.ToLower(reply), "manual") {
		t.Fatalf("admin not told about the stranded approval: %q", reply)
	}

	// No ledger row and no success message for the user.
	if len(f.claims.ledger) != 0 {
		t.Fatalf("ledger written despite failed extension")
	}
	if len(f.notifier.menus) != 0 {
		t.Fatalf("user congratulated despite failed extension")
	}
}

func TestApprove_UnknownClaim(t *testing.T) {
	f := newPaymentFixture()

	reply, err := f.engine.Approve(context.Background(), 900, 12345, "")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !strings.Contains(reply, "not found") {
		t.Fatalf("unknown claim not reported: %q", reply)
	}
}

func TestReject_NotifiesUserWithReason(t *testing.T) {
	f := newPaymentFixture()
	id, _ := f.claims.CreateRequest(user.ChatID, "alice", 1, 150000)

	reply, err := f.engine.Reject(context.Background(), 900, id, "illegible receipt")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if !strings.Contains(reply, "illegible receipt") {
		t.Fatalf("admin summary missing reason: %q", reply)
	}

	req, _ := f.claims.FindRequest(id)
	if req.Status != models.RequestRejected {
		t.Fatalf("claim not rejected: %q", req.Status)
	}

	if !strings.Contains(f.notifier.lastUserText(user.ChatID), "illegible receipt") {
		t.Fatalf("user not told the reason")
	}

	// Rejection never touches the panel.
	if len(f.panel.extends) != 0 {
		t.Fatalf("panel touched on rejection")
	}
	if len(f.claims.ledger) != 0 {
		t.Fatalf("ledger written on rejection")
	}
}

func TestDirectExtend(t *testing.T) {
	f := newPaymentFixture()
	f.accounts.add("alice", user.ChatID, true)

	reply, err := f.engine.DirectExtend(context.Background(), 900, "alice", 2)
	if err != nil {
		t.Fatalf("DirectExtend: %v", err)
	}
	if strings.Contains(reply, "❌") {
		t.Fatalf("direct extension reported failure: %q", reply)
	}

	if len(f.panel.extends) != 1 || f.panel.extends[0].days != 90 {
		t.Fatalf("panel extension wrong: %v", f.panel.extends)
	}
	if len(f.claims.ledger) != 1 || f.claims.ledger[0].ChatID != user.ChatID {
		t.Fatalf("ledger row wrong: %+v", f.claims.ledger)
	}
	// The linked owner hears about the gift.
	if len(f.notifier.menus) != 1 || f.notifier.menus[0].chatID != user.ChatID {
		t.Fatalf("owner not notified: %v", f.notifier.menus)
	}
}

func TestDirectExtend_UnlinkedAccount(t *testing.T) {
	f := newPaymentFixture()
	f.accounts.add("orphan", 0, false)

	reply, err := f.engine.DirectExtend(context.Background(), 900, "orphan", 1)
	if err != nil {
		t.Fatalf("DirectExtend: %v", err)
	}
	if strings.Contains(reply, "❌") {
		t.Fatalf("direct extension reported failure: %q", reply)
	}
	if len(f.notifier.menus) != 0 {
		t.Fatalf("notification sent for unlinked account")
	}
	if len(f.claims.ledger) != 1 || f.claims.ledger[0].ChatID != 0 {
		t.Fatalf("ledger row wrong: %+v", f.claims.ledger)
	}
}
