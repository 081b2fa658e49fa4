package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"marzbot/internal/catalog"
	"marzbot/internal/models"
	"marzbot/internal/panel"
	"marzbot/internal/state"
)

// PaymentEngine orchestrates the claim lifecycle: plan selection → claim
// creation → receipt capture → admin decision → settlement. The repository's
// compare-and-set on Decide is the only guard against concurrent admin
// decisions; the engine never calls the panel before that CAS has succeeded.
type PaymentEngine struct {
	accounts AccountDirectory
	claims   ClaimLedger
	panel    panel.Client
	states   state.Store
	notifier Notifier
	catalog  *catalog.Catalog
	format   Formatter
	logger   *zap.Logger
}

func NewPaymentEngine(
	accounts AccountDirectory,
	claims ClaimLedger,
	panelClient panel.Client,
	states state.Store,
	notifier Notifier,
	cat *catalog.Catalog,
	logger *zap.Logger,
) *PaymentEngine {
	return &PaymentEngine{
		accounts: accounts,
		claims:   claims,
		panel:    panelClient,
		states:   states,
		notifier: notifier,
		catalog:  cat,
		logger:   logger,
	}
}

// SelectActiveAccount records the panel username a multi-account chat wants
// subsequent status/payment actions to target.
func (e *PaymentEngine) SelectActiveAccount(chatID int64, username string) {
	conv, _ := e.states.Get(chatID)
	conv.ActiveAccount = username
	e.states.Set(chatID, conv)
}

// ActiveAccount returns the chat's selected account, if any.
func (e *PaymentEngine) ActiveAccount(chatID int64) string {
	conv, ok := e.states.Get(chatID)
	if !ok {
		return ""
	}
	return conv.ActiveAccount
}

// OpenClaim handles the "I have paid" confirmation: it validates the plan,
// resolves the target account, opens a pending claim, parks the chat in the
// awaiting-receipt state and notifies both the user and the admins.
func (e *PaymentEngine) OpenClaim(ctx context.Context, actor Actor, planID int, explicitUsername string) error {
	plan, ok := e.catalog.PlanByID(planID)
	if !ok {
		e.logger.Error("claim for unknown plan",
			zap.Int("plan_id", planID), zap.Int64("chat_id", actor.ChatID))
		_, _ = e.notifier.SendMessage(actor.ChatID, "❌ Invalid subscription plan.")
		return fmt.Errorf("unknown plan %d", planID)
	}

	account, err := e.resolveAccount(actor.ChatID, explicitUsername)
	if err != nil {
		e.logger.Error("account resolution failed", zap.Int64("chat_id", actor.ChatID), zap.Error(err))
	}
	if account == nil {
		_, _ = e.notifier.SendMessage(actor.ChatID, "❌ Account not found. Link or register an account first.")
		return fmt.Errorf("no account resolved for chat %d", actor.ChatID)
	}

	requestID, err := e.claims.CreateRequest(actor.ChatID, account.PanelUsername, plan.ID, plan.Price)
	if err != nil || requestID == 0 {
		e.logger.Error("payment request creation failed",
			zap.Int64("chat_id", actor.ChatID), zap.Error(err))
		_, _ = e.notifier.SendMessage(actor.ChatID, "❌ Error creating the payment claim. Please try again.")
		return fmt.Errorf("create payment request: %w", err)
	}

	msgID, sendErr := e.notifier.SendMessage(actor.ChatID, e.format.ClaimCreated(requestID, plan, account.PanelUsername))
	if sendErr != nil {
		e.logger.Warn("claim summary delivery failed", zap.Int64("chat_id", actor.ChatID), zap.Error(sendErr))
	}

	conv, _ := e.states.Get(actor.ChatID)
	e.states.Set(actor.ChatID, state.Conversation{
		Flow:           state.FlowAwaitingReceipt,
		RequestID:      requestID,
		PlanID:         plan.ID,
		PanelUsername:  account.PanelUsername,
		ClaimMessageID: msgID,
		ActiveAccount:  conv.ActiveAccount,
	})

	e.notifier.NotifyAdmins(e.format.ClaimOpenedAdmin(requestID, plan, account.PanelUsername, actor))
	return nil
}

// HandleReceipt processes a file upload. Uploads from chats that are not
// awaiting a receipt are ignored entirely: no claim is touched and no admin
// is notified.
func (e *PaymentEngine) HandleReceipt(ctx context.Context, actor Actor, fileRef, kind string, uploadMessageID int) error {
	conv, ok := e.states.Get(actor.ChatID)
	if !ok || conv.Flow != state.FlowAwaitingReceipt {
		return nil
	}

	if fileRef == "" || (kind != models.ReceiptPhoto && kind != models.ReceiptDocument) {
		_, _ = e.notifier.SendMessage(actor.ChatID,
			"❌ Unsupported file type.\nPlease send a photo or a document (PDF, image).")
		return nil
	}

	attached, err := e.claims.AttachReceipt(conv.RequestID, fileRef, kind)
	if err != nil || !attached {
		e.logger.Error("receipt attach failed",
			zap.Uint("request_id", conv.RequestID), zap.Error(err))
		_, _ = e.notifier.SendMessage(actor.ChatID, "❌ Error saving the receipt. Please try again.")
		return nil
	}

	// Best-effort chat cleanup; failures are logged, never fatal.
	if conv.ClaimMessageID != 0 {
		if err := e.notifier.DeleteMessage(actor.ChatID, conv.ClaimMessageID); err != nil {
			e.logger.Warn("claim summary cleanup failed", zap.Int64("chat_id", actor.ChatID), zap.Error(err))
		}
	}
	if uploadMessageID != 0 {
		if err := e.notifier.DeleteMessage(actor.ChatID, uploadMessageID); err != nil {
			e.logger.Warn("receipt message cleanup failed", zap.Int64("chat_id", actor.ChatID), zap.Error(err))
		}
	}

	e.states.Set(actor.ChatID, state.Conversation{ActiveAccount: conv.ActiveAccount})

	plan, _ := e.catalog.PlanByID(conv.PlanID)
	if err := e.notifier.SendMenuMessage(actor.ChatID, e.format.ReceiptAccepted(conv.RequestID, plan.Name)); err != nil {
		e.logger.Warn("receipt ack delivery failed", zap.Int64("chat_id", actor.ChatID), zap.Error(err))
	}

	req, err := e.claims.FindRequest(conv.RequestID)
	if err != nil || req == nil {
		e.logger.Error("claim vanished after receipt attach", zap.Uint("request_id", conv.RequestID), zap.Error(err))
		return err
	}
	e.notifier.NotifyAdmins(e.format.ReceiptAdminPrompt(req, plan, actor))
	e.notifier.SendReceiptToAdmins(fileRef, kind, fmt.Sprintf("Receipt for claim #%d", req.ID))
	return nil
}

// Approve settles a claim: CAS to approved, then panel extension, then
// ledger entry. If the extension fails after the CAS the claim stays
// approved and the admin is told to follow up manually; re-opening would
// invite a second concurrent settlement.
func (e *PaymentEngine) Approve(ctx context.Context, adminID int64, requestID uint, comment string) (string, error) {
	req, err := e.claims.FindRequest(requestID)
	if err != nil {
		return "", err
	}
	if req == nil {
		return fmt.Sprintf("❌ Claim #%d not found.", requestID), nil
	}
	if req.Status != models.RequestPending {
		return fmt.Sprintf("❌ Claim #%d already processed (status: %s).", requestID, req.Status), nil
	}

	decided, err := e.claims.Decide(requestID, adminID, comment, models.RequestApproved)
	if err != nil {
		return "", err
	}
	if !decided {
		// Lost the race against a concurrent admin decision.
		return fmt.Sprintf("❌ Claim #%d already processed.", requestID), nil
	}

	plan, ok := e.catalog.PlanByID(req.PlanID)
	if !ok {
		e.logger.Error("approved claim references unknown plan",
			zap.Uint("request_id", requestID), zap.Int("plan_id", req.PlanID))
		return fmt.Sprintf("❌ Claim #%d approved but plan %d is no longer in the catalog — manual follow-up required.",
			requestID, req.PlanID), nil
	}

	if err := e.panel.ExtendSubscription(ctx, req.PanelUsername, plan.DurationDays); err != nil {
		e.logger.Error("panel extension failed after approval",
			zap.Uint("request_id", requestID),
			zap.String("username", req.PanelUsername),
			zap.Error(err))
		return e.format.ExtensionFailedAdmin(req), nil
	}

	if err := e.claims.RecordPayment(&models.PaymentLedger{
		ChatID:        req.ChatID,
		PanelUsername: req.PanelUsername,
		Amount:        req.Amount,
		Method:        fmt.Sprintf("plan:%d", plan.ID),
		Status:        models.PaymentCompleted,
	}); err != nil {
		// The panel mutation cannot be reversed; log the bookkeeping gap and
		// keep going.
		e.logger.Error("ledger write failed after successful extension",
			zap.Uint("request_id", requestID), zap.Error(err))
	}

	if err := e.notifier.SendMenuMessage(req.ChatID, e.format.PaymentApproved(requestID, plan, comment)); err != nil {
		e.logger.Warn("approval notification failed", zap.Int64("chat_id", req.ChatID), zap.Error(err))
	}
	return e.format.ApprovedAdminSummary(req, plan), nil
}

// Reject closes a claim without touching the panel.
func (e *PaymentEngine) Reject(ctx context.Context, adminID int64, requestID uint, reason string) (string, error) {
	req, err := e.claims.FindRequest(requestID)
	if err != nil {
		return "", err
	}
	if req == nil {
		return fmt.Sprintf("❌ Claim #%d not found.", requestID), nil
	}
	if req.Status != models.RequestPending {
		return fmt.Sprintf("❌ Claim #%d already processed.", requestID), nil
	}

	decided, err := e.claims.Decide(requestID, adminID, reason, models.RequestRejected)
	if err != nil {
		return "", err
	}
	if !decided {
		return fmt.Sprintf("❌ Claim #%d already processed.", requestID), nil
	}

	planName := fmt.Sprintf("Plan #%d", req.PlanID)
	if plan, ok := e.catalog.PlanByID(req.PlanID); ok {
		planName = plan.Name
	}
	if _, err := e.notifier.SendMessage(req.ChatID, e.format.PaymentRejected(requestID, planName, req.Amount, reason)); err != nil {
		e.logger.Warn("rejection notification failed", zap.Int64("chat_id", req.ChatID), zap.Error(err))
	}
	return fmt.Sprintf("❌ Claim #%d rejected\n\n👤 Account: %s\n💬 Reason: %s",
		requestID, req.PanelUsername, reason), nil
}

// DirectExtend is the legacy admin path: extend a subscription without a
// prior claim. No state-machine interaction.
func (e *PaymentEngine) DirectExtend(ctx context.Context, adminID int64, username string, planID int) (string, error) {
	plan, ok := e.catalog.PlanByID(planID)
	if !ok {
		return fmt.Sprintf("❌ Invalid subscription plan: %d", planID), nil
	}

	if err := e.panel.ExtendSubscription(ctx, username, plan.DurationDays); err != nil {
		e.logger.Error("direct extension failed",
			zap.String("username", username), zap.Error(err))
		return fmt.Sprintf("❌ Error extending subscription for %s", username), nil
	}

	var chatID int64
	link, err := e.accounts.FindByUsername(username)
	if err != nil {
		e.logger.Warn("account lookup failed after direct extension", zap.Error(err))
	}
	if link != nil && link.ChatID.Valid {
		chatID = link.ChatID.Int64
	}

	if err := e.claims.RecordPayment(&models.PaymentLedger{
		ChatID:        chatID,
		PanelUsername: username,
		Amount:        plan.Price,
		Method:        fmt.Sprintf("plan:%d", plan.ID),
		Status:        models.PaymentCompleted,
	}); err != nil {
		e.logger.Error("ledger write failed after direct extension", zap.Error(err))
	}

	if chatID != 0 {
		if err := e.notifier.SendMenuMessage(chatID, e.format.PaymentApproved(0, plan, "")); err != nil {
			e.logger.Warn("direct extension notification failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
	return e.format.DirectExtension(username, plan), nil
}

// resolveAccount picks the claim target: the explicit username when the
// button carried one, else the chat's selected active account, else the
// chat's single verified account.
func (e *PaymentEngine) resolveAccount(chatID int64, explicitUsername string) (*models.AccountLink, error) {
	if explicitUsername != "" {
		links, err := e.accounts.FindByChatID(chatID)
		if err != nil {
			return nil, err
		}
		for i := range links {
			if links[i].PanelUsername == explicitUsername {
				return &links[i], nil
			}
		}
		return nil, nil
	}

	if active := e.ActiveAccount(chatID); active != "" {
		links, err := e.accounts.FindByChatID(chatID)
		if err != nil {
			return nil, err
		}
		for i := range links {
			if links[i].PanelUsername == active {
				return &links[i], nil
			}
		}
	}

	return e.accounts.FindVerifiedByChatID(chatID)
}
