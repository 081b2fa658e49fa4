// Package panel talks to the external Marzban panel. The panel owns account
// existence, protocol config, traffic accounting and expiry; everything here
// degrades to nil/error returns instead of propagating raw transport
// failures.
package panel

import "context"

// Account is the panel-side view of a VPN account.
type Account struct {
	Username        string
	Status          string
	Proxies         map[string]map[string]interface{}
	Note            string
	Expire          int64 // epoch seconds, 0 = never
	DataLimit       int64 // bytes, 0 = unlimited
	UsedTraffic     int64 // bytes
	SubscriptionURL string
	Links           []string
}

// UsageStats is the normalized usage report shown to users and admins.
type UsageStats struct {
	Username          string
	Status            string
	UsedTrafficBytes  int64
	DataLimitBytes    int64
	UsedTrafficGB     float64
	DataLimitGB       float64
	TrafficPercentage float64 // 0 when unlimited
	ExpireAt          int64   // epoch seconds, 0 = never
	IsExpired         bool
	DaysRemaining     int // clamped to >= 0; meaningless when ExpireAt == 0
}

// CreateAccountParams describes a new panel account. At least one protocol is
// provisioned; TrialDays > 0 sets an initial expiry.
type CreateAccountParams struct {
	Username    string
	Protocols   []string
	TrialDays   int
	DataLimitGB float64 // 0 = unlimited
	Note        string
}

// Client is the narrow contract the workflows depend on.
type Client interface {
	// Authenticate obtains an admin token. Calls below re-authenticate
	// transparently; this exists for a startup connectivity check.
	Authenticate(ctx context.Context) error

	// GetAccount returns nil (not an error) when the account does not exist.
	GetAccount(ctx context.Context, username string) (*Account, error)

	// CreateAccount provisions an account and confirms it is visible. The
	// returned error message is suitable for surfacing to the end user.
	CreateAccount(ctx context.Context, params CreateAccountParams) error

	// ExtendSubscription adds days to a future expiry, or starts a fresh
	// window from now when the account is already expired. Status is forced
	// to active in the same update.
	ExtendSubscription(ctx context.Context, username string, days int) error

	// SyncIdentityNote mirrors the chat identity into the panel's note
	// field, replacing a previous identity marker instead of duplicating it.
	SyncIdentityNote(ctx context.Context, username string, chatID int64, chatHandle string) error

	// GetUsageStats returns nil when the account does not exist.
	GetUsageStats(ctx context.Context, username string) (*UsageStats, error)

	// GetSubscriptionLink resolves a working subscription URL, probing
	// conventional URL shapes when the panel does not report one.
	GetSubscriptionLink(ctx context.Context, username string) (string, error)

	// ListAccounts pages through all panel accounts, for reconciliation.
	ListAccounts(ctx context.Context, offset, limit int) ([]Account, error)
}
