package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback payloads carry the panel username last, because usernames may
// themselves contain underscores. Everything after the fixed prefix (and,
// where present, the numeric id) belongs to the username.
//
// Decoding happens in exactly one place so handlers receive typed actions
// instead of re-splitting raw strings.

// Action is a decoded callback payload.
type Action interface {
	isAction()
}

// MainMenuAction returns the chat to the main menu.
type MainMenuAction struct{}

// CreateAccountAction starts the registration flow.
type CreateAccountAction struct{}

// LinkAccountAction explains how to claim an existing panel account.
type LinkAccountAction struct{}

// StatusAction shows usage stats for the chat's accounts.
type StatusAction struct{}

// ShowPlansAction lists purchasable plans. An empty Username means the
// engine resolves the chat's account itself.
type ShowPlansAction struct {
	Username string
}

// SelectPlanAction shows the payment details for a chosen plan.
type SelectPlanAction struct {
	PlanID   int
	Username string
}

// ConfirmPaidAction is the "I have paid" button: it opens a claim.
type ConfirmPaidAction struct {
	PlanID   int
	Username string
}

// SubscriptionAction requests the account's subscription link.
type SubscriptionAction struct {
	Username string
}

// ChooseAccountAction selects the active account for a multi-account chat.
type ChooseAccountAction struct {
	Username string
}

func (MainMenuAction) isAction()      {}
func (StatusAction) isAction()        {}
func (CreateAccountAction) isAction() {}
func (LinkAccountAction) isAction()   {}
func (ShowPlansAction) isAction()     {}
func (SelectPlanAction) isAction()    {}
func (ConfirmPaidAction) isAction()   {}
func (SubscriptionAction) isAction()  {}
func (ChooseAccountAction) isAction() {}

// Payload builders, kept next to the parser so the two cannot drift.

func mainMenuData() string      { return "main_menu" }
func statusData() string        { return "status" }
func createAccountData() string { return "create_account" }
func linkAccountData() string   { return "link_account" }

func showPlansData(username string) string {
	if username == "" {
		return "renew"
	}
	return "payacc_" + username
}
func selectPlanData(id int, username string) string {
	if username == "" {
		return fmt.Sprintf("plan_%d", id)
	}
	return fmt.Sprintf("plan_%d_%s", id, username)
}
func confirmPaidData(id int, username string) string {
	if username == "" {
		return fmt.Sprintf("paid_%d", id)
	}
	return fmt.Sprintf("paid_%d_%s", id, username)
}
func subscriptionData(username string) string {
	if username == "" {
		return "sub"
	}
	return "get_subscription_" + username
}

func chooseAccountData(username string) string { return "acct_" + username }

// ParseCallback decodes a raw callback payload into a typed action.
func ParseCallback(data string) (Action, error) {
	switch data {
	case "main_menu":
		return MainMenuAction{}, nil
	case "status":
		return StatusAction{}, nil
	case "renew":
		return ShowPlansAction{}, nil
	case "sub":
		return SubscriptionAction{}, nil
	case "create_account":
		return CreateAccountAction{}, nil
	case "link_account":
		return LinkAccountAction{}, nil
	}

	switch {
	case strings.HasPrefix(data, "payacc_"):
		username := strings.TrimPrefix(data, "payacc_")
		if username == "" {
			return nil, fmt.Errorf("empty username in payload %q", data)
		}
		return ShowPlansAction{Username: username}, nil

	case strings.HasPrefix(data, "plan_"):
		id, username, err := splitIDUsername(strings.TrimPrefix(data, "plan_"))
		if err != nil {
			return nil, fmt.Errorf("payload %q: %w", data, err)
		}
		return SelectPlanAction{PlanID: id, Username: username}, nil

	case strings.HasPrefix(data, "paid_"):
		id, username, err := splitIDUsername(strings.TrimPrefix(data, "paid_"))
		if err != nil {
			return nil, fmt.Errorf("payload %q: %w", data, err)
		}
		return ConfirmPaidAction{PlanID: id, Username: username}, nil

	case strings.HasPrefix(data, "get_subscription_"):
		username := strings.TrimPrefix(data, "get_subscription_")
		if username == "" {
			return nil, fmt.Errorf("empty username in payload %q", data)
		}
		return SubscriptionAction{Username: username}, nil

	case strings.HasPrefix(data, "acct_"):
		username := strings.TrimPrefix(data, "acct_")
		if username == "" {
			return nil, fmt.Errorf("empty username in payload %q", data)
		}
		return ChooseAccountAction{Username: username}, nil
	}

	return nil, fmt.Errorf("unknown callback payload %q", data)
}

// splitIDUsername parses "<id>" or "<id>_<username>" where the username may
// contain underscores. An absent username means the engine resolves the
// chat's account itself.
func splitIDUsername(rest string) (int, string, error) {
	idPart, username := rest, ""
	if sep := strings.Index(rest, "_"); sep >= 0 {
		idPart, username = rest[:sep], rest[sep+1:]
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return 0, "", fmt.Errorf("bad plan id: %w", err)
	}
	return id, username, nil
}
