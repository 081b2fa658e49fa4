// Package bot wires the Telegram surface: command handlers, the typed
// callback router and receipt uploads. All business logic lives in the
// workflow engines; handlers translate transport events and render replies.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"marzbot/internal/catalog"
	"marzbot/internal/config"
	"marzbot/internal/models"
	"marzbot/internal/panel"
	"marzbot/internal/pkg/utils"
	"marzbot/internal/repository"
	"marzbot/internal/workflow"
)

// Bot wraps the telebot instance and handlers.
type Bot struct {
	tb         *tele.Bot
	webhook    *tele.Webhook
	useWebhook bool
	cfg        *config.Config

	payments     *workflow.PaymentEngine
	registration *workflow.RegistrationEngine
	accounts     *repository.AccountRepository
	claims       *repository.PaymentRepository
	stats        *repository.StatsRepository
	panel        panel.Client
	catalog      *catalog.Catalog

	keyboard KeyboardBuilder
	format   workflow.Formatter
	logger   *zap.Logger
}

// Deps bundles everything the handlers need.
type Deps struct {
	Payments     *workflow.PaymentEngine
	Registration *workflow.RegistrationEngine
	Accounts     *repository.AccountRepository
	Claims       *repository.PaymentRepository
	Stats        *repository.StatsRepository
	Panel        panel.Client
	Catalog      *catalog.Catalog
	// Dedup drops updates that were already processed; nil disables it.
	Dedup tele.MiddlewareFunc
}

// New creates the telebot instance. Handlers are not registered until Wire
// is called: the workflow engines need the bot's notifier, so construction
// happens in two phases. Webhook mode is selected when a webhook URL is
// configured, long polling otherwise.
func New(cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	useWebhook := strings.TrimSpace(cfg.Bot.WebhookURL) != ""

	var poller tele.Poller
	var webhook *tele.Webhook
	if useWebhook {
		webhook = &tele.Webhook{
			Listen:   "", // mounted on Echo, not telebot's own server
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Bot.WebhookURL},
		}
		poller = webhook
	} else {
		poller = &tele.LongPoller{Timeout: 10 * time.Second}
	}

	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: poller,
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}

	return &Bot{
		tb:         tb,
		webhook:    webhook,
		useWebhook: useWebhook,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Wire attaches the engines and repositories and registers all handlers.
// Must be called before Start.
func (b *Bot) Wire(deps Deps) {
	b.payments = deps.Payments
	b.registration = deps.Registration
	b.accounts = deps.Accounts
	b.claims = deps.Claims
	b.stats = deps.Stats
	b.panel = deps.Panel
	b.catalog = deps.Catalog

	if deps.Dedup != nil {
		b.tb.Use(deps.Dedup)
	}
	b.registerHandlers()
}

// Telebot returns the underlying instance, for the notifier.
func (b *Bot) Telebot() *tele.Bot {
	return b.tb
}

// WebhookHandler returns the handler to mount on Echo, nil in polling mode.
func (b *Bot) WebhookHandler() http.Handler {
	return b.webhook
}

// Start begins polling/webhook processing. Blocks.
func (b *Bot) Start() {
	if b.useWebhook {
		b.logger.Info("Starting Telegram bot",
			zap.String("mode", "webhook"), zap.String("webhook_url", b.cfg.Bot.WebhookURL))
	} else {
		if err := b.tb.RemoveWebhook(true); err != nil {
			b.logger.Warn("Failed to remove webhook before long polling", zap.Error(err))
		}
		b.logger.Info("Starting Telegram bot", zap.String("mode", "polling"))
	}
	b.tb.Start()
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop() {
	b.tb.Stop()
}

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/help", b.handleHelp)
	b.tb.Handle("/my_id", b.handleMyID)
	b.tb.Handle("/status", b.handleStatus)
	b.tb.Handle("/my_accounts", b.handleMyAccounts)
	b.tb.Handle("/choose_account", b.handleChooseAccount)
	b.tb.Handle("/sub", b.handleSub)
	b.tb.Handle("/create_account", b.handleCreateAccount)
	b.tb.Handle("/cancel", b.handleCancel)

	b.tb.Handle("/approve", b.adminOnly(b.handleApprove))
	b.tb.Handle("/reject", b.adminOnly(b.handleReject))
	b.tb.Handle("/confirm_payment", b.adminOnly(b.handleConfirmPayment))
	b.tb.Handle("/stats", b.adminOnly(b.handleStats))
	b.tb.Handle("/pending", b.adminOnly(b.handlePending))
	b.tb.Handle("/admin_links", b.adminOnly(b.handleAdminLinks))
	b.tb.Handle("/user_info", b.adminOnly(b.handleUserInfo))
	b.tb.Handle("/delete_user", b.adminOnly(b.handleDeleteUser))
	b.tb.Handle("/add_note", b.adminOnly(b.handleAddNote))
	b.tb.Handle("/new_users", b.adminOnly(b.handleNewUsers))

	b.tb.Handle(tele.OnText, b.handleText)
	b.tb.Handle(tele.OnPhoto, b.handleReceiptUpload)
	b.tb.Handle(tele.OnDocument, b.handleReceiptUpload)
	b.tb.Handle(tele.OnCallback, b.handleCallback)
}

func (b *Bot) adminOnly(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !b.cfg.IsAdmin(c.Chat().ID) {
			return c.Send("❌ This command is for administrators only.")
		}
		return h(c)
	}
}

func actorOf(c tele.Context) workflow.Actor {
	actor := workflow.Actor{ChatID: c.Chat().ID}
	if c.Sender() != nil {
		actor.Handle = c.Sender().Username
	}
	return actor
}

// ── /start ────────────────────────────────────────────────────────────

func (b *Bot) handleStart(c tele.Context) error {
	actor := actorOf(c)

	payload := strings.TrimSpace(c.Message().Payload)
	if strings.HasPrefix(payload, "link_") {
		return b.registration.LinkInvite(context.Background(), actor, payload)
	}

	return b.sendMainMenu(c)
}

func (b *Bot) sendMainMenu(c tele.Context) error {
	links, err := b.accounts.FindByChatID(c.Chat().ID)
	if err != nil {
		b.logger.Error("account lookup failed", zap.Int64("chat_id", c.Chat().ID), zap.Error(err))
	}

	text := "🏠 Main Menu\n\nWelcome! Manage your VPN subscription from here."
	if len(links) == 1 {
		text = fmt.Sprintf("🏠 Main Menu\n\n👤 Account: %s", links[0].PanelUsername)
	} else if len(links) > 1 {
		text = fmt.Sprintf("🏠 Main Menu\n\n👥 You have %d accounts. Use /choose_account to switch between them.", len(links))
	}

	return c.Send(text, b.keyboard.MainMenu(len(links) > 0))
}

// ── User commands ─────────────────────────────────────────────────────

func (b *Bot) handleHelp(c tele.Context) error {
	help := `📖 Commands

/start — main menu
/status — subscription status and traffic
/sub — subscription link
/my_accounts — list your accounts
/choose_account — switch active account
/create_account — register a new account
/my_id — show your chat id
/cancel — abandon the current operation`

	if b.cfg.IsAdmin(c.Chat().ID) {
		help += `

🔧 Admin

/approve <id> [comment] — approve a payment claim
/reject <id> <reason> — reject a payment claim
/confirm_payment <username> <plan_id> — extend without a claim
/pending — list open claims
/stats — service statistics
/admin_links — unlinked accounts with invite links
/user_info <username> — account details
/new_users — self-registrations in the last 24h
/add_note <username> <telegram_id> — note a Telegram ID on an account
/delete_user <username> — remove the local account row`
	}
	return c.Send(help)
}

func (b *Bot) handleMyID(c tele.Context) error {
	return c.Send(fmt.Sprintf("🆔 Your chat ID: `%d`", c.Chat().ID), tele.ModeMarkdown)
}

func (b *Bot) handleStatus(c tele.Context) error {
	return b.sendStatus(c)
}

func (b *Bot) sendStatus(c tele.Context) error {
	links, err := b.accounts.FindByChatID(c.Chat().ID)
	if err != nil {
		b.logger.Error("account lookup failed", zap.Int64("chat_id", c.Chat().ID), zap.Error(err))
		return c.Send("❌ Error loading your accounts. Please try again.")
	}
	if len(links) == 0 {
		return c.Send("❌ No account is linked to this chat yet.", b.keyboard.MainMenu(false))
	}

	ctx := context.Background()
	var sb strings.Builder
	for i := range links {
		stats, err := b.panel.GetUsageStats(ctx, links[i].PanelUsername)
		if err != nil {
			b.logger.Warn("usage stats failed",
				zap.String("username", links[i].PanelUsername), zap.Error(err))
			sb.WriteString(fmt.Sprintf("👤 %s\n⚠️ Status unavailable right now.\n\n", links[i].PanelUsername))
			continue
		}
		if stats == nil {
			sb.WriteString(fmt.Sprintf("👤 %s\n⚠️ Account no longer exists on the panel.\n\n", links[i].PanelUsername))
			continue
		}
		sb.WriteString(renderUsage(stats))
		sb.WriteString("\n")
	}

	if len(links) == 1 {
		return c.Send(sb.String(), b.keyboard.AccountActions(links[0].PanelUsername))
	}
	return c.Send(sb.String(), b.keyboard.MainMenu(true))
}

func renderUsage(s *panel.UsageStats) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 %s\n", s.Username))
	sb.WriteString(fmt.Sprintf("📶 Status: %s\n", s.Status))

	if s.DataLimitBytes > 0 {
		sb.WriteString(fmt.Sprintf("📊 Traffic: %s / %s (%.1f%%)\n",
			utils.FormatBytes(s.UsedTrafficBytes), utils.FormatBytes(s.DataLimitBytes), s.TrafficPercentage))
	} else {
		sb.WriteString(fmt.Sprintf("📊 Traffic: %s (unlimited)\n", utils.FormatBytes(s.UsedTrafficBytes)))
	}

	switch {
	case s.ExpireAt == 0:
		sb.WriteString("⏳ Expiry: never\n")
	case s.IsExpired:
		sb.WriteString("⏳ Expiry: ❌ expired\n")
	default:
		sb.WriteString(fmt.Sprintf("⏳ Expiry: %s (%d days left)\n",
			time.Unix(s.ExpireAt, 0).Format("2006-01-02"), s.DaysRemaining))
	}
	return sb.String()
}

func (b *Bot) handleMyAccounts(c tele.Context) error {
	links, err := b.accounts.FindByChatID(c.Chat().ID)
	if err != nil {
		return c.Send("❌ Error loading your accounts.")
	}
	if len(links) == 0 {
		return c.Send("❌ No account is linked to this chat yet.", b.keyboard.MainMenu(false))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👥 Your accounts (%d):\n\n", len(links)))
	active := b.payments.ActiveAccount(c.Chat().ID)
	for i := range links {
		marker := "•"
		if links[i].PanelUsername == active {
			marker = "▶️"
		}
		sb.WriteString(fmt.Sprintf("%s %s (%s)\n", marker, links[i].PanelUsername, links[i].SubscriptionStatus))
	}
	return c.Send(sb.String(), b.keyboard.AccountChooser(links))
}

func (b *Bot) handleChooseAccount(c tele.Context) error {
	links, err := b.accounts.FindByChatID(c.Chat().ID)
	if err != nil {
		return c.Send("❌ Error loading your accounts.")
	}
	if len(links) == 0 {
		return c.Send("❌ No account is linked to this chat yet.", b.keyboard.MainMenu(false))
	}
	if len(links) == 1 {
		b.payments.SelectActiveAccount(c.Chat().ID, links[0].PanelUsername)
		return c.Send(fmt.Sprintf("✅ Account %s selected.", links[0].PanelUsername))
	}
	return c.Send("👥 Select the account to operate on:", b.keyboard.AccountChooser(links))
}

func (b *Bot) handleSub(c tele.Context) error {
	username, errMsg := b.resolveUsername(c.Chat().ID, "")
	if errMsg != "" {
		return c.Send(errMsg)
	}
	b.registration.SendSubscription(context.Background(), c.Chat().ID, username)
	return nil
}

func (b *Bot) handleCreateAccount(c tele.Context) error {
	b.registration.Start(actorOf(c))
	return nil
}

func (b *Bot) handleCancel(c tele.Context) error {
	b.registration.Cancel(c.Chat().ID)
	return b.sendMainMenu(c)
}

// ── Text routing ──────────────────────────────────────────────────────

func (b *Bot) handleText(c tele.Context) error {
	if b.registration.AwaitingUsername(c.Chat().ID) {
		return b.registration.HandleUsername(context.Background(), actorOf(c), c.Text())
	}
	return b.sendMainMenu(c)
}

// ── Receipt uploads ───────────────────────────────────────────────────

func (b *Bot) handleReceiptUpload(c tele.Context) error {
	fileRef, kind := receiptFile(c.Message())
	return b.payments.HandleReceipt(context.Background(), actorOf(c), fileRef, kind, c.Message().ID)
}

// receiptFile extracts the transport file reference from an upload. A
// message that carries neither a photo nor a document yields an empty ref,
// which the engine reports as an unsupported type.
func receiptFile(msg *tele.Message) (string, string) {
	switch {
	case msg.Photo != nil:
		return msg.Photo.FileID, models.ReceiptPhoto
	case msg.Document != nil:
		return msg.Document.FileID, models.ReceiptDocument
	}
	return "", ""
}

// ── Callback queries ──────────────────────────────────────────────────

func (b *Bot) handleCallback(c tele.Context) error {
	data := strings.TrimSpace(strings.TrimPrefix(c.Callback().Data, "\f"))

	action, err := ParseCallback(data)
	if err != nil {
		b.logger.Warn("unknown callback", zap.String("data", data), zap.Int64("chat_id", c.Chat().ID))
		return c.Respond(&tele.CallbackResponse{Text: "Unknown action"})
	}
	_ = c.Respond()

	ctx := context.Background()
	actor := actorOf(c)

	switch a := action.(type) {
	case MainMenuAction:
		return b.sendMainMenu(c)

	case StatusAction:
		return b.sendStatus(c)

	case CreateAccountAction:
		b.registration.Start(actor)
		return nil

	case LinkAccountAction:
		return c.Send("🔗 To link an existing account, ask an administrator for your personal invite link and open it.")

	case ShowPlansAction:
		username, errMsg := b.resolveUsername(c.Chat().ID, a.Username)
		if errMsg != "" {
			return c.Send(errMsg)
		}
		return c.Send(b.format.PlanList(b.catalog.Plans()), b.keyboard.PlanList(b.catalog.Plans(), username))

	case SelectPlanAction:
		return b.sendPaymentDetails(c, a.PlanID, a.Username)

	case ConfirmPaidAction:
		_ = b.payments.OpenClaim(ctx, actor, a.PlanID, a.Username)
		return nil

	case SubscriptionAction:
		username, errMsg := b.resolveUsername(c.Chat().ID, a.Username)
		if errMsg != "" {
			return c.Send(errMsg)
		}
		b.registration.SendSubscription(ctx, c.Chat().ID, username)
		return nil

	case ChooseAccountAction:
		if owned, _ := b.ownsAccount(c.Chat().ID, a.Username); !owned {
			return c.Send("❌ That account is not linked to this chat.")
		}
		b.payments.SelectActiveAccount(c.Chat().ID, a.Username)
		return c.Send(fmt.Sprintf("✅ Account %s selected.", a.Username))
	}

	return nil
}

func (b *Bot) sendPaymentDetails(c tele.Context, planID int, username string) error {
	plan, ok := b.catalog.PlanByID(planID)
	if !ok {
		return c.Send("❌ Invalid subscription plan.")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("💳 %s\n💰 Price: %.0f\n⏱ Duration: %d days\n", plan.Name, plan.Price, plan.DurationDays))
	if plan.Description != "" {
		sb.WriteString(plan.Description + "\n")
	}
	sb.WriteString("\n🏦 Payment methods:\n")
	for _, m := range b.catalog.PaymentMethods() {
		sb.WriteString(fmt.Sprintf("\n▪️ %s\n%s\n", m.Name, m.Details))
	}
	sb.WriteString("\nAfter paying, press the button below and send your receipt.")

	return c.Send(sb.String(), b.keyboard.PaymentConfirm(planID, username))
}

// resolveUsername maps an optional explicit username to the account the chat
// should operate on, mirroring the engine's resolution order.
func (b *Bot) resolveUsername(chatID int64, explicit string) (string, string) {
	if explicit != "" {
		if owned, err := b.ownsAccount(chatID, explicit); err != nil {
			return "", "❌ Error loading your accounts."
		} else if !owned {
			return "", "❌ That account is not linked to this chat."
		}
		return explicit, ""
	}

	if active := b.payments.ActiveAccount(chatID); active != "" {
		return active, ""
	}

	link, err := b.accounts.FindVerifiedByChatID(chatID)
	if err != nil {
		return "", "❌ Error loading your accounts."
	}
	if link == nil {
		return "", "❌ No account is linked to this chat yet. Use /start to create or link one."
	}
	return link.PanelUsername, ""
}

func (b *Bot) ownsAccount(chatID int64, username string) (bool, error) {
	links, err := b.accounts.FindByChatID(chatID)
	if err != nil {
		return false, err
	}
	for i := range links {
		if links[i].PanelUsername == username {
			return true, nil
		}
	}
	return false, nil
}

// ── Admin commands ────────────────────────────────────────────────────

func (b *Bot) handleApprove(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Send("Usage: /approve <request_id> [comment]")
	}
	requestID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return c.Send("❌ Invalid request id.")
	}
	comment := strings.Join(args[1:], " ")

	reply, err := b.payments.Approve(context.Background(), c.Chat().ID, uint(requestID), comment)
	if err != nil {
		b.logger.Error("approve failed", zap.Uint64("request_id", requestID), zap.Error(err))
		return c.Send("❌ Error processing the claim. Check the logs.")
	}
	return c.Send(reply)
}

func (b *Bot) handleReject(c tele.Context) error {
	args := c.Args()
	if len(args) < 2 {
		return c.Send("Usage: /reject <request_id> <reason>")
	}
	requestID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return c.Send("❌ Invalid request id.")
	}
	reason := strings.Join(args[1:], " ")

	reply, err := b.payments.Reject(context.Background(), c.Chat().ID, uint(requestID), reason)
	if err != nil {
		b.logger.Error("reject failed", zap.Uint64("request_id", requestID), zap.Error(err))
		return c.Send("❌ Error processing the claim. Check the logs.")
	}
	return c.Send(reply)
}

func (b *Bot) handleConfirmPayment(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /confirm_payment <username> <plan_id>")
	}
	planID, err := strconv.Atoi(args[1])
	if err != nil {
		return c.Send(fmt.Sprintf("❌ Invalid plan id. Available plans: %v", b.catalog.PlanIDs()))
	}

	reply, err := b.payments.DirectExtend(context.Background(), c.Chat().ID, args[0], planID)
	if err != nil {
		return c.Send("❌ Error extending the subscription. Check the logs.")
	}
	return c.Send(reply)
}

func (b *Bot) handleStats(c tele.Context) error {
	s, err := b.stats.Collect()
	if err != nil {
		b.logger.Error("stats collection failed", zap.Error(err))
		return c.Send("❌ Error collecting statistics.")
	}

	text := fmt.Sprintf(`📊 Service statistics

👥 Accounts: %d
🔗 Linked: %d (%.1f%%)
✅ Verified: %d
❓ Unlinked: %d

💰 Payments: %d (total %.0f)
📅 Last 30 days: %d (%.0f)
⏳ Pending claims: %d`,
		s.TotalAccounts, s.LinkedAccounts, s.LinkPercentage, s.VerifiedAccounts, s.UnlinkedAccounts,
		s.TotalPayments, s.TotalRevenue, s.MonthlyPayments, s.MonthlyRevenue, s.PendingRequests)
	return c.Send(text)
}

func (b *Bot) handlePending(c tele.Context) error {
	pending, err := b.claims.PendingRequests()
	if err != nil {
		b.logger.Error("pending claims lookup failed", zap.Error(err))
		return c.Send("❌ Error loading pending claims.")
	}
	if len(pending) == 0 {
		return c.Send("✅ No pending payment claims.")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⏳ Pending claims (%d):\n\n", len(pending)))
	for i := range pending {
		req := &pending[i]
		receipt := "no receipt yet"
		if req.HasReceipt() {
			receipt = "receipt attached"
		}
		sb.WriteString(fmt.Sprintf("#%d — %s, plan %d, %.0f (%s)\n",
			req.ID, req.PanelUsername, req.PlanID, req.Amount, receipt))
	}
	sb.WriteString("\nUse /approve <id> or /reject <id> <reason>.")
	return c.Send(sb.String())
}

func (b *Bot) handleAdminLinks(c tele.Context) error {
	usernames, err := b.accounts.ListUnlinked()
	if err != nil {
		b.logger.Error("unlinked accounts lookup failed", zap.Error(err))
		return c.Send("❌ Error loading unlinked accounts.")
	}
	if len(usernames) == 0 {
		return c.Send("✅ Every known account is linked.")
	}

	botUser := b.cfg.Bot.Username
	if b.tb.Me != nil && b.tb.Me.Username != "" {
		botUser = b.tb.Me.Username
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔗 Unlinked accounts (%d):\n\n", len(usernames)))
	for _, u := range usernames {
		sb.WriteString(fmt.Sprintf("%s\nhttps://t.me/%s?start=%s\n\n", u, botUser, linkPayload(u)))
	}
	return c.Send(sb.String())
}

// linkPayload builds the deep-link token for claiming an account. The suffix
// keeps the payload from being guessable from the username alone.
func linkPayload(username string) string {
	return fmt.Sprintf("link_%s_%s", username, utils.ShortToken())
}

func (b *Bot) handleUserInfo(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /user_info <username>")
	}
	username := args[0]

	link, err := b.accounts.FindByUsername(username)
	if err != nil {
		return c.Send("❌ Error loading the account.")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 %s\n\n", username))
	if link == nil {
		sb.WriteString("📒 Not in the local directory.\n")
	} else {
		if link.Linked() {
			sb.WriteString(fmt.Sprintf("🔗 Linked to chat %d", link.ChatID.Int64))
			if link.ChatHandle.Valid && link.ChatHandle.String != "" {
				sb.WriteString(" (@" + link.ChatHandle.String + ")")
			}
			sb.WriteString("\n")
		} else {
			sb.WriteString("🔗 Not linked.\n")
		}
		sb.WriteString(fmt.Sprintf("✅ Verified: %t\n📶 Status: %s\n", link.Verified, link.SubscriptionStatus))
		if link.Notes != "" {
			sb.WriteString("📝 " + link.Notes + "\n")
		}
	}

	if stats, err := b.panel.GetUsageStats(context.Background(), username); err == nil && stats != nil {
		sb.WriteString("\n" + renderUsage(stats))
	} else if err != nil {
		sb.WriteString("\n⚠️ Panel stats unavailable.\n")
	} else {
		sb.WriteString("\n⚠️ Account not found on the panel.\n")
	}

	if history, err := b.claims.HistoryByUsername(username, 5); err == nil && len(history) > 0 {
		sb.WriteString("\n💰 Recent payments:\n")
		for i := range history {
			sb.WriteString(fmt.Sprintf("%s — %.0f (%s)\n",
				history[i].PaymentDate.Format("2006-01-02"), history[i].Amount, history[i].Method))
		}
	}
	return c.Send(sb.String())
}

func (b *Bot) handleDeleteUser(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /delete_user <username>")
	}

	deleted, err := b.accounts.DeleteByUsername(args[0])
	if err != nil {
		return c.Send("❌ Error deleting the account row.")
	}
	if !deleted {
		return c.Send("❌ Account not found in the local directory.")
	}
	return c.Send(fmt.Sprintf("✅ Local row for %s deleted. The panel account is untouched.", args[0]))
}

func (b *Bot) handleAddNote(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /add_note <username> <telegram_id>")
	}
	chatID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return c.Send("Usage: /add_note <username> <telegram_id>")
	}

	updated, err := b.accounts.AddTelegramIDNote(args[0], chatID)
	if err != nil {
		return c.Send("❌ Error updating notes.")
	}
	if !updated {
		return c.Send("❌ Account not found in the local directory.")
	}
	return c.Send(fmt.Sprintf("✅ Telegram ID %d noted for %s.", chatID, args[0]))
}

func (b *Bot) handleNewUsers(c tele.Context) error {
	links, err := b.accounts.FindRegisteredSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		b.logger.Error("new-user listing failed", zap.Error(err))
		return c.Send("❌ Error listing new registrations.")
	}
	if len(links) == 0 {
		return c.Send("No self-registrations in the last 24 hours.")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🆕 Registrations in the last 24h: %d\n\n", len(links)))
	for i := range links {
		l := &links[i]
		sb.WriteString(fmt.Sprintf("👤 %s — %s", l.PanelUsername, l.RegisteredAt.Format("2006-01-02 15:04")))
		if l.ChatID.Valid {
			sb.WriteString(fmt.Sprintf(" (chat %d)", l.ChatID.Int64))
		}
		sb.WriteString("\n")
	}
	return c.Send(sb.String())
}
