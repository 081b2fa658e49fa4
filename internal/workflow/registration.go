package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"marzbot/internal/config"
	"marzbot/internal/panel"
	"marzbot/internal/state"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// RegistrationEngine drives new-account creation and deep-link account
// claiming. The panel is the source of truth for username availability;
// the local directory row is bookkeeping and its write failures never
// abort a registration that already succeeded on the panel.
type RegistrationEngine struct {
	accounts AccountDirectory
	panel    panel.Client
	states   state.Store
	notifier Notifier
	cfg      config.RegistrationConfig
	panelURL string
	format   Formatter
	logger   *zap.Logger
}

func NewRegistrationEngine(
	accounts AccountDirectory,
	panelClient panel.Client,
	states state.Store,
	notifier Notifier,
	cfg config.RegistrationConfig,
	panelURL string,
	logger *zap.Logger,
) *RegistrationEngine {
	return &RegistrationEngine{
		accounts: accounts,
		panel:    panelClient,
		states:   states,
		notifier: notifier,
		cfg:      cfg,
		panelURL: panelURL,
		logger:   logger,
	}
}

// Start puts the chat into the awaiting-username flow and explains the
// naming rules.
func (e *RegistrationEngine) Start(actor Actor) {
	conv, _ := e.states.Get(actor.ChatID)
	e.states.Set(actor.ChatID, state.Conversation{
		Flow:          state.FlowAwaitingUsername,
		ActiveAccount: conv.ActiveAccount,
	})
	_, _ = e.notifier.SendMessage(actor.ChatID,
		e.format.UsernameRules(e.cfg.UsernameMinLength, e.cfg.UsernameMaxLength))
}

// AwaitingUsername reports whether the chat is mid-registration, so the
// text handler knows whether free text is a username candidate.
func (e *RegistrationEngine) AwaitingUsername(chatID int64) bool {
	conv, ok := e.states.Get(chatID)
	return ok && conv.Flow == state.FlowAwaitingUsername
}

// HandleUsername validates a candidate username and, when it passes, creates
// the panel account, records the directory row and welcomes the user. The
// chat stays in the awaiting-username flow on validation failure so the user
// can simply try another name.
func (e *RegistrationEngine) HandleUsername(ctx context.Context, actor Actor, candidate string) error {
	username := strings.TrimSpace(candidate)

	if reason := e.validate(username); reason != "" {
		_, _ = e.notifier.SendMessage(actor.ChatID, reason)
		return nil
	}

	existing, err := e.panel.GetAccount(ctx, username)
	if err != nil {
		e.logger.Error("availability check failed",
			zap.String("username", username), zap.Error(err))
		_, _ = e.notifier.SendMessage(actor.ChatID,
			"❌ Could not reach the panel. Please try again in a moment.")
		return err
	}
	if existing != nil {
		_, _ = e.notifier.SendMessage(actor.ChatID,
			fmt.Sprintf("❌ Username `%s` is already taken. Please choose another one.", username))
		return nil
	}

	if err := e.panel.CreateAccount(ctx, panel.CreateAccountParams{
		Username:    username,
		Protocols:   e.cfg.DefaultProtocols,
		TrialDays:   e.cfg.TrialDays,
		DataLimitGB: e.cfg.DataLimitGB,
	}); err != nil {
		e.logger.Error("panel account creation failed",
			zap.String("username", username), zap.Error(err))
		e.states.Clear(actor.ChatID)
		_, _ = e.notifier.SendMessage(actor.ChatID,
			fmt.Sprintf("❌ Account creation failed: %v\nPlease try again with /create_account.", err))
		return err
	}

	// The panel account exists from here on; local bookkeeping failures are
	// logged but the user still gets their account.
	if err := e.accounts.CreateRegistered(username, actor.ChatID, actor.Handle); err != nil {
		e.logger.Error("directory row creation failed after panel registration",
			zap.String("username", username), zap.Error(err))
	}
	if err := e.panel.SyncIdentityNote(ctx, username, actor.ChatID, actor.Handle); err != nil {
		e.logger.Warn("identity note sync failed",
			zap.String("username", username), zap.Error(err))
	}

	e.states.Clear(actor.ChatID)

	if err := e.notifier.SendMenuMessage(actor.ChatID, e.format.Welcome(username, e.cfg.TrialDays)); err != nil {
		e.logger.Warn("welcome delivery failed", zap.Int64("chat_id", actor.ChatID), zap.Error(err))
	}
	e.sendSubscriptionLink(ctx, actor.ChatID, username)

	e.notifier.NotifyAdmins(e.format.NewRegistrationAdmin(username, actor, e.cfg.TrialDays))
	return nil
}

// Cancel abandons an in-progress registration.
func (e *RegistrationEngine) Cancel(chatID int64) {
	conv, ok := e.states.Get(chatID)
	if ok && conv.Flow == state.FlowAwaitingUsername {
		e.states.Set(chatID, state.Conversation{ActiveAccount: conv.ActiveAccount})
	}
}

// LinkInvite claims an existing panel account via a /start deep-link payload
// of the form "link_<username>_<suffix>". Usernames may themselves contain
// underscores, so everything between the first and last separator belongs to
// the username.
func (e *RegistrationEngine) LinkInvite(ctx context.Context, actor Actor, payload string) error {
	parts := strings.Split(payload, "_")
	if len(parts) < 3 || parts[0] != "link" {
		_, _ = e.notifier.SendMessage(actor.ChatID, "❌ Invalid or expired link.")
		return fmt.Errorf("malformed link payload %q", payload)
	}
	username := strings.Join(parts[1:len(parts)-1], "_")

	link, err := e.accounts.FindByUsername(username)
	if err != nil {
		return err
	}
	if link == nil {
		_, _ = e.notifier.SendMessage(actor.ChatID, "❌ Account not found.")
		return nil
	}
	if link.Linked() {
		if link.ChatID.Int64 == actor.ChatID {
			_ = e.notifier.SendMenuMessage(actor.ChatID,
				fmt.Sprintf("✅ Account `%s` is already linked to this chat.", username))
			return nil
		}
		_, _ = e.notifier.SendMessage(actor.ChatID, "❌ This account is already linked to another chat.")
		return nil
	}

	linked, err := e.accounts.LinkAccount(username, actor.ChatID, actor.Handle, "")
	if err != nil {
		return err
	}
	if !linked {
		// Raced another claim for the same invite.
		_, _ = e.notifier.SendMessage(actor.ChatID, "❌ This account is already linked to another chat.")
		return nil
	}

	if err := e.panel.SyncIdentityNote(ctx, username, actor.ChatID, actor.Handle); err != nil {
		e.logger.Warn("identity note sync failed after link",
			zap.String("username", username), zap.Error(err))
	}

	if err := e.notifier.SendMenuMessage(actor.ChatID,
		fmt.Sprintf("✅ Account `%s` linked successfully!\nYou can now check your status and renew from here.", username)); err != nil {
		e.logger.Warn("link confirmation failed", zap.Int64("chat_id", actor.ChatID), zap.Error(err))
	}
	e.notifier.NotifyAdmins(fmt.Sprintf("🔗 Account linked\n\n👤 %s\n💬 Chat: %d (@%s)",
		username, actor.ChatID, actor.Handle))
	return nil
}

// SendSubscription resolves the account's subscription URL and sends it, or
// a manual-retrieval fallback when probing fails.
func (e *RegistrationEngine) SendSubscription(ctx context.Context, chatID int64, username string) {
	e.sendSubscriptionLink(ctx, chatID, username)
}

func (e *RegistrationEngine) sendSubscriptionLink(ctx context.Context, chatID int64, username string) {
	url, err := e.panel.GetSubscriptionLink(ctx, username)
	if err != nil || url == "" {
		if err != nil {
			e.logger.Warn("subscription link resolution failed",
				zap.String("username", username), zap.Error(err))
		}
		_, _ = e.notifier.SendMessage(chatID, e.format.SubscriptionFallback(username, e.panelURL))
		return
	}
	_, _ = e.notifier.SendMessage(chatID, e.format.SubscriptionLink(url))
}

func (e *RegistrationEngine) validate(username string) string {
	if len(username) < e.cfg.UsernameMinLength || len(username) > e.cfg.UsernameMaxLength {
		return fmt.Sprintf("❌ Username must be %d-%d characters long. Please try again.",
			e.cfg.UsernameMinLength, e.cfg.UsernameMaxLength)
	}
	if !usernamePattern.MatchString(username) {
		return "❌ Username may only contain letters, digits and underscores. Please try again."
	}
	return ""
}
