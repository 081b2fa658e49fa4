package bot

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"marzbot/internal/catalog"
	"marzbot/internal/models"
)

// KeyboardBuilder constructs the inline keyboards the storefront uses.
type KeyboardBuilder struct{}

// MainMenu is the top-level menu. The renewal and status rows only appear
// once the chat owns at least one linked account.
func (KeyboardBuilder) MainMenu(hasAccounts bool) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	if hasAccounts {
		menu.Inline(
			menu.Row(menu.Data("💳 Renew Subscription", showPlansData(""))),
			menu.Row(menu.Data("📊 My Status", statusData()), menu.Data("🔗 Subscription Link", subscriptionData(""))),
			menu.Row(menu.Data("➕ New Account", createAccountData())),
		)
	} else {
		menu.Inline(
			menu.Row(menu.Data("🆕 Create Account", createAccountData())),
			menu.Row(menu.Data("🔗 Link Existing Account", linkAccountData())),
		)
	}
	return menu
}

// PlanList renders one button per plan, carrying the target username in the
// payload so the claim lands on the right account.
func (KeyboardBuilder) PlanList(plans []catalog.Plan, username string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(plans)+1)
	for _, plan := range plans {
		label := fmt.Sprintf("%s — %.0f (%d days)", plan.Name, plan.Price, plan.DurationDays)
		rows = append(rows, menu.Row(menu.Data(label, selectPlanData(plan.ID, username))))
	}
	rows = append(rows, menu.Row(menu.Data("🏠 Main Menu", mainMenuData())))
	menu.Inline(rows...)
	return menu
}

// PaymentConfirm shows the "I have paid" button under the payment details.
func (KeyboardBuilder) PaymentConfirm(planID int, username string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data("✅ I Have Paid", confirmPaidData(planID, username))),
		menu.Row(menu.Data("🏠 Main Menu", mainMenuData())),
	)
	return menu
}

// AccountChooser lists the chat's accounts for active-account selection.
func (KeyboardBuilder) AccountChooser(links []models.AccountLink) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(links)+1)
	for _, link := range links {
		rows = append(rows, menu.Row(menu.Data("👤 "+link.PanelUsername, chooseAccountData(link.PanelUsername))))
	}
	rows = append(rows, menu.Row(menu.Data("🏠 Main Menu", mainMenuData())))
	menu.Inline(rows...)
	return menu
}

// AccountActions is shown under a single account's status.
func (KeyboardBuilder) AccountActions(username string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data("💳 Renew", showPlansData(username)), menu.Data("🔗 Link", subscriptionData(username))),
		menu.Row(menu.Data("🏠 Main Menu", mainMenuData())),
	)
	return menu
}
