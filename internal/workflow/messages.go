package workflow

import (
	"fmt"
	"strings"

	"marzbot/internal/catalog"
	"marzbot/internal/models"
)

// Formatter builds the human-readable texts the workflows emit. Presentation
// is kept out of the engines so changing wording never touches state logic.
type Formatter struct{}

func (Formatter) ClaimCreated(requestID uint, plan catalog.Plan, username string) string {
	return fmt.Sprintf(
		"💰 Payment claim #%d created\n\n"+
			"📋 Plan: %s\n💵 Amount: %.0f\n👤 Account: %s\n\n"+
			"Please transfer the amount using one of the listed payment methods, "+
			"then upload a photo or document of your receipt.",
		requestID, plan.Name, plan.Price, username)
}

func (Formatter) ClaimOpenedAdmin(requestID uint, plan catalog.Plan, username string, actor Actor) string {
	handle := actor.Handle
	if handle == "" {
		handle = "N/A"
	}
	return fmt.Sprintf(
		"💰 NEW PAYMENT CLAIM #%d\n\n"+
			"👤 Account: %s\n📱 Telegram: @%s (ID: %d)\n"+
			"📋 Plan: %s\n💵 Amount: %.0f\n📅 Period: %d days\n\n"+
			"🕐 Waiting for receipt upload...",
		requestID, username, handle, actor.ChatID, plan.Name, plan.Price, plan.DurationDays)
}

func (Formatter) ReceiptAccepted(requestID uint, planName string) string {
	return fmt.Sprintf(
		"✅ Receipt received for claim #%d (%s).\n\n"+
			"An administrator will verify your payment shortly. "+
			"You will be notified as soon as it is processed.",
		requestID, planName)
}

func (Formatter) ReceiptAdminPrompt(req *models.PaymentRequest, plan catalog.Plan, actor Actor) string {
	handle := actor.Handle
	if handle == "" {
		handle = "N/A"
	}
	return fmt.Sprintf(
		"📸 RECEIPT RECEIVED\n\n"+
			"🆔 Claim #%d\n👤 Account: %s\n📋 Plan: %s\n"+
			"💵 Amount: %.0f\n📅 Period: %d days\n📱 From: @%s\n\n"+
			"Commands:\n/approve %d [comment] — approve\n/reject %d <reason> — reject",
		req.ID, req.PanelUsername, plan.Name, req.Amount, plan.DurationDays, handle, req.ID, req.ID)
}

func (Formatter) PaymentApproved(requestID uint, plan catalog.Plan, comment string) string {
	msg := fmt.Sprintf(
		"✅ PAYMENT CONFIRMED\n\n"+
			"🆔 Claim #%d\n📋 Plan: %s\n💵 Amount: %.0f\n"+
			"📅 Subscription extended by %d days\n",
		requestID, plan.Name, plan.Price, plan.DurationDays)
	if comment != "" {
		msg += "\n💬 Comment: " + comment + "\n"
	}
	return msg + "\n🎉 Thank you for your payment!"
}

func (Formatter) PaymentRejected(requestID uint, planName string, amount float64, reason string) string {
	return fmt.Sprintf(
		"❌ CLAIM REJECTED\n\n"+
			"🆔 Claim #%d\n📋 Plan: %s\n💵 Amount: %.0f\n\n"+
			"❗️ Reason: %s\n\n"+
			"Please double-check your payment and open a new claim.",
		requestID, planName, amount, reason)
}

func (Formatter) ApprovedAdminSummary(req *models.PaymentRequest, plan catalog.Plan) string {
	return fmt.Sprintf(
		"✅ Claim #%d approved\n\n👤 Account: %s\n📋 Plan: %s\n"+
			"📅 Extended by %d days\n💵 Amount: %.0f",
		req.ID, req.PanelUsername, plan.Name, plan.DurationDays, req.Amount)
}

func (Formatter) ExtensionFailedAdmin(req *models.PaymentRequest) string {
	return fmt.Sprintf(
		"❌ Panel extension failed for %s.\n"+
			"Claim #%d is marked approved but the subscription was NOT extended — "+
			"manual follow-up required.",
		req.PanelUsername, req.ID)
}

func (Formatter) DirectExtension(username string, plan catalog.Plan) string {
	return fmt.Sprintf(
		"✅ Subscription extended\n\n👤 Account: %s\n📋 Plan: %s\n"+
			"📅 Extended by: %d days\n💵 Amount: %.0f",
		username, plan.Name, plan.DurationDays, plan.Price)
}

func (Formatter) Welcome(username string, trialDays int) string {
	return fmt.Sprintf(
		"🎉 Account %s created!\n\n"+
			"Your trial period is %d days. Use the subscription link below to "+
			"configure your VPN client.",
		username, trialDays)
}

func (Formatter) SubscriptionLink(url string) string {
	return "🔗 Your subscription link:\n" + url
}

func (f Formatter) SubscriptionFallback(username, panelURL string) string {
	return fmt.Sprintf(
		"Account %s is ready, but a subscription link could not be resolved "+
			"automatically. Visit the panel at %s to retrieve your configuration.",
		username, panelURL)
}

func (Formatter) NewRegistrationAdmin(username string, actor Actor, trialDays int) string {
	handle := actor.Handle
	if handle == "" {
		handle = "N/A"
	}
	return fmt.Sprintf(
		"🆕 NEW REGISTRATION\n\n👤 Account: %s\n📱 Telegram: @%s (ID: %d)\n📅 Trial: %d days",
		username, handle, actor.ChatID, trialDays)
}

func (Formatter) UsernameRules(minLen, maxLen int) string {
	return fmt.Sprintf(
		"📝 Choose a username for your new account.\n\n"+
			"Requirements:\n• %d-%d characters\n• Latin letters, digits and underscore only\n\n"+
			"Send the username as a message, or /cancel to abort.",
		minLen, maxLen)
}

func (Formatter) PlanList(plans []catalog.Plan) string {
	var b strings.Builder
	b.WriteString("📋 Available plans:\n")
	for _, p := range plans {
		switch {
		case p.Description != "":
			fmt.Fprintf(&b, "• %s — %.0f (%s)\n", p.Name, p.Price, p.Description)
		case p.DurationDays > 30:
			fmt.Fprintf(&b, "• %s — %.0f (%.0f/month)\n", p.Name, p.Price, p.MonthlyPrice())
		default:
			fmt.Fprintf(&b, "• %s — %.0f\n", p.Name, p.Price)
		}
	}
	return b.String()
}
