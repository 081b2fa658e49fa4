package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"marzbot/internal/config"
	"marzbot/internal/panel"
	"marzbot/internal/state"
)

type registrationFixture struct {
	engine   *RegistrationEngine
	accounts *fakeAccounts
	panel    *fakePanelClient
	states   *state.MemoryStore
	notifier *fakeNotifier
}

func newRegistrationFixture() *registrationFixture {
	f := &registrationFixture{
		accounts: &fakeAccounts{},
		panel:    newFakePanel(),
		states:   state.NewMemoryStore(time.Minute),
		notifier: &fakeNotifier{},
	}
	cfg := config.RegistrationConfig{
		UsernameMinLength: 4,
		UsernameMaxLength: 32,
		TrialDays:         3,
		DefaultProtocols:  []string{"vless"},
	}
	f.engine = NewRegistrationEngine(f.accounts, f.panel, f.states, f.notifier, cfg, "https://panel.example", testLogger)
	return f
}

func TestStart_EntersAwaitingUsername(t *testing.T) {
	f := newRegistrationFixture()

	f.engine.Start(user)

	if !f.engine.AwaitingUsername(user.ChatID) {
		t.Fatalf("chat not awaiting username")
	}
	if len(f.notifier.messages) != 1 {
		t.Fatalf("rules prompt not sent")
	}
}

func TestHandleUsername_Validation(t *testing.T) {
	cases := []struct {
		name      string
		candidate string
	}{
		{"too short", "abc"},
		{"too long", strings.Repeat("a", 33)},
		{"illegal characters", "alice-smith"},
		{"spaces", "alice smith"},
		{"unicode", "алиса"},
		{"empty", "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRegistrationFixture()
			f.engine.Start(user)

			if err := f.engine.HandleUsername(context.Background(), user, tc.candidate); err != nil {
				t.Fatalf("HandleUsername: %v", err)
			}

			if len(f.panel.created) != 0 {
				t.Fatalf("invalid username %q reached the panel", tc.candidate)
			}
			// The chat stays in the flow so the user can retry.
			if !f.engine.AwaitingUsername(user.ChatID) {
				t.Fatalf("flow abandoned on validation failure")
			}
		})
	}
}

func TestHandleUsername_BoundaryLengths(t *testing.T) {
	for _, candidate := range []string{"abcd", strings.Repeat("a", 32)} {
		f := newRegistrationFixture()
		f.engine.Start(user)

		if err := f.engine.HandleUsername(context.Background(), user, candidate); err != nil {
			t.Fatalf("HandleUsername(%q): %v", candidate, err)
		}
		if len(f.panel.created) != 1 {
			t.Fatalf("boundary-length username %q rejected", candidate)
		}
	}
}

func TestHandleUsername_Taken(t *testing.T) {
	f := newRegistrationFixture()
	f.panel.accounts["alice"] = &panel.Account{Username: "alice", Status: "active"}
	f.engine.Start(user)

	if err := f.engine.HandleUsername(context.Background(), user, "alice"); err != nil {
		t.Fatalf("HandleUsername: %v", err)
	}

	if len(f.panel.created) != 0 {
		t.Fatalf("taken username re-created")
	}
	if !strings.Contains(f.notifier.lastUserText(user.ChatID), "taken") {
		t.Fatalf("user not told the name is taken")
	}
	if !f.engine.AwaitingUsername(user.ChatID) {
		t.Fatalf("flow abandoned on taken username")
	}
}

func TestHandleUsername_Success(t *testing.T) {
	f := newRegistrationFixture()
	f.panel.subURL = "https://panel.example/sub/alice"
	f.engine.Start(user)

	if err := f.engine.HandleUsername(context.Background(), user, " alice_new "); err != nil {
		t.Fatalf("HandleUsername: %v", err)
	}

	// Panel account provisioned with the configured defaults.
	if len(f.panel.created) != 1 {
		t.Fatalf("panel account not created")
	}
	params := f.panel.created[0]
	if params.Username != "alice_new" || params.TrialDays != 3 {
		t.Fatalf("creation params wrong: %+v", params)
	}
	if len(params.Protocols) != 1 || params.Protocols[0] != "vless" {
		t.Fatalf("protocols wrong: %v", params.Protocols)
	}

	// Local directory row, identity note, state cleanup.
	link, _ := f.accounts.FindByUsername("alice_new")
	if link == nil || !link.Verified || link.ChatID.Int64 != user.ChatID {
		t.Fatalf("directory row wrong: %+v", link)
	}
	if f.panel.notesSync != 1 {
		t.Fatalf("identity note not synced")
	}
	if f.engine.AwaitingUsername(user.ChatID) {
		t.Fatalf("flow not cleared after success")
	}

	// Welcome with menu, subscription link, admin broadcast.
	if len(f.notifier.menus) != 1 {
		t.Fatalf("welcome not sent")
	}
	if !strings.Contains(f.notifier.lastUserText(user.ChatID), "https://panel.example/sub/alice") {
		t.Fatalf("subscription link not delivered")
	}
	if !f.notifier.adminSaw("alice_new") {
		t.Fatalf("admins not told about the registration")
	}
}

func TestHandleUsername_PanelCreateFails(t *testing.T) {
	f := newRegistrationFixture()
	f.panel.createErr = errors.New("panel rejected account creation: limit reached")
	f.engine.Start(user)

	if err := f.engine.HandleUsername(context.Background(), user, "alice_new"); err == nil {
		t.Fatalf("expected error")
	}

	// No local row and the surfaced message carries the panel detail.
	if link, _ := f.accounts.FindByUsername("alice_new"); link != nil {
		t.Fatalf("directory row created despite panel failure")
	}
	if !strings.Contains(f.notifier.lastUserText(user.ChatID), "limit reached") {
		t.Fatalf("panel detail not surfaced to the user")
	}
	if f.engine.AwaitingUsername(user.ChatID) {
		t.Fatalf("flow should be cleared after a hard failure")
	}
}

func TestHandleUsername_DirectoryFailureDoesNotAbort(t *testing.T) {
	f := newRegistrationFixture()
	f.engine.Start(user)
	f.accounts.err = errors.New("db down")

	if err := f.engine.HandleUsername(context.Background(), user, "alice_new"); err != nil {
		t.Fatalf("HandleUsername: %v", err)
	}

	// The panel account exists; the user still gets their welcome.
	if len(f.panel.created) != 1 {
		t.Fatalf("panel account not created")
	}
	if len(f.notifier.menus) != 1 {
		t.Fatalf("welcome withheld over a bookkeeping failure")
	}
}

func TestHandleUsername_SubscriptionFallback(t *testing.T) {
	f := newRegistrationFixture()
	f.panel.subErr = errors.New("no working subscription URL")
	f.engine.Start(user)

	if err := f.engine.HandleUsername(context.Background(), user, "alice_new"); err != nil {
		t.Fatalf("HandleUsername: %v", err)
	}

	last := f.notifier.lastUserText(user.ChatID)
	if !strings.Contains(last, "https://panel.example") {
		t.Fatalf("fallback must point at the panel: %q", last)
	}
}

func TestLinkInvite_Success(t *testing.T) {
	f := newRegistrationFixture()
	f.accounts.add("bob_vpn", 0, false)
	f.panel.accounts["bob_vpn"] = &panel.Account{Username: "bob_vpn", Status: "active"}

	if err := f.engine.LinkInvite(context.Background(), user, "link_bob_vpn_a1b2"); err != nil {
		t.Fatalf("LinkInvite: %v", err)
	}

	link, _ := f.accounts.FindByUsername("bob_vpn")
	if !link.Linked() || link.ChatID.Int64 != user.ChatID {
		t.Fatalf("account not linked: %+v", link)
	}
	if f.panel.notesSync != 1 {
		t.Fatalf("identity note not synced after link")
	}
	if len(f.notifier.menus) != 1 {
		t.Fatalf("link confirmation not sent")
	}
}

func TestLinkInvite_UsernameWithUnderscores(t *testing.T) {
	f := newRegistrationFixture()
	f.accounts.add("maria_v_2", 0, false)

	if err := f.engine.LinkInvite(context.Background(), user, "link_maria_v_2_x9z8"); err != nil {
		t.Fatalf("LinkInvite: %v", err)
	}

	link, _ := f.accounts.FindByUsername("maria_v_2")
	if !link.Linked() {
		t.Fatalf("underscored username not parsed from payload")
	}
}

func TestLinkInvite_AlreadyLinkedElsewhere(t *testing.T) {
	f := newRegistrationFixture()
	f.accounts.add("bob_vpn", 777, true)

	if err := f.engine.LinkInvite(context.Background(), user, "link_bob_vpn_a1b2"); err != nil {
		t.Fatalf("LinkInvite: %v", err)
	}

	link, _ := f.accounts.FindByUsername("bob_vpn")
	if link.ChatID.Int64 != 777 {
		t.Fatalf("existing owner clobbered")
	}
	if !strings.Contains(f.notifier.lastUserText(user.ChatID), "already linked") {
		t.Fatalf("claimer not refused")
	}
}

func TestLinkInvite_Idempotent(t *testing.T) {
	f := newRegistrationFixture()
	f.accounts.add("bob_vpn", user.ChatID, true)

	if err := f.engine.LinkInvite(context.Background(), user, "link_bob_vpn_a1b2"); err != nil {
		t.Fatalf("LinkInvite: %v", err)
	}
	if len(f.notifier.menus) != 1 {
		t.Fatalf("re-link by the owner should confirm, not error")
	}
}

func TestLinkInvite_MalformedPayload(t *testing.T) {
	f := newRegistrationFixture()

	for _, payload := range []string{"link_", "link_x", "ref_abc_123", ""} {
		if err := f.engine.LinkInvite(context.Background(), user, payload); err == nil {
			t.Fatalf("malformed payload %q accepted", payload)
		}
	}
}

func TestCancel(t *testing.T) {
	f := newRegistrationFixture()
	f.engine.Start(user)

	f.engine.Cancel(user.ChatID)

	if f.engine.AwaitingUsername(user.ChatID) {
		t.Fatalf("cancel did not leave the flow")
	}
}
