package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"marzbot/internal/pkg/httpclient"
	"marzbot/internal/pkg/utils"
)

// createVisibilityPolls bounds the read-after-write check in CreateAccount.
// The panel is assumed eventually consistent within seconds, not
// indefinitely.
const createVisibilityPolls = 3

var identityMarker = regexp.MustCompile(`Telegram ID: \d+[^|]*`)

// protocolSchemes are the config-URI markers a valid subscription payload
// contains.
var protocolSchemes = []string{
	"vless://", "vmess://", "trojan://", "ss://", "ssr://",
	"hysteria://", "tuic://", "wireguard:",
}

// MarzbanClient implements Client against a Marzban panel.
type MarzbanClient struct {
	baseURL       string
	username      string
	password      string
	tokenLifetime time.Duration
	client        *httpclient.Client
	logger        *zap.Logger

	mu           sync.Mutex
	token        string
	tokenTime    time.Time
	cachedFormat string // subscription URL template with {username} placeholder
}

// NewMarzbanClient creates a panel client. timeout bounds every HTTP call;
// tokenLifetime is how long an admin token is trusted before refreshing.
func NewMarzbanClient(baseURL, username, password string, tokenLifetime, timeout time.Duration, logger *zap.Logger) *MarzbanClient {
	if tokenLifetime <= 0 {
		tokenLifetime = 25 * time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MarzbanClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		username:      username,
		password:      password,
		tokenLifetime: tokenLifetime,
		client:        httpclient.New().WithTimeout(timeout).WithInsecureSkipVerify(),
		logger:        logger,
	}
}

// Authenticate obtains a bearer token from the panel.
func (m *MarzbanClient) Authenticate(ctx context.Context) error {
	resp, err := m.client.PostForm(m.baseURL+"/api/admin/token", map[string]string{
		"username": m.username,
		"password": m.password,
	})
	if err != nil {
		return fmt.Errorf("panel auth failed: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("panel auth failed: HTTP %d", resp.Status)
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return fmt.Errorf("panel auth parse error: %w", err)
	}
	if result.AccessToken == "" {
		return fmt.Errorf("panel auth: no access_token in response")
	}

	m.mu.Lock()
	m.token = result.AccessToken
	m.tokenTime = time.Now()
	m.mu.Unlock()
	m.client.WithBearerToken(result.AccessToken)
	return nil
}

// ensureAuth re-authenticates when the token is missing or stale. Callers
// never manage tokens themselves.
func (m *MarzbanClient) ensureAuth(ctx context.Context) error {
	m.mu.Lock()
	fresh := m.token != "" && time.Since(m.tokenTime) < m.tokenLifetime
	m.mu.Unlock()
	if fresh {
		return nil
	}
	return m.Authenticate(ctx)
}

func (m *MarzbanClient) GetAccount(ctx context.Context, username string) (*Account, error) {
	if err := m.ensureAuth(ctx); err != nil {
		return nil, err
	}

	resp, err := m.client.Get(m.baseURL + "/api/user/" + username)
	if err != nil {
		return nil, fmt.Errorf("panel get user %s: %w", username, err)
	}
	if resp.Status == 404 {
		return nil, nil
	}
	if !resp.OK() {
		return nil, fmt.Errorf("panel get user %s: HTTP %d", username, resp.Status)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("panel parse user %s: %w", username, err)
	}
	if detail := getString(raw, "detail"); strings.EqualFold(strings.TrimSpace(detail), "User not found") {
		return nil, nil
	}

	return accountFromRaw(raw), nil
}

func (m *MarzbanClient) CreateAccount(ctx context.Context, params CreateAccountParams) error {
	if err := m.ensureAuth(ctx); err != nil {
		return fmt.Errorf("panel authentication failed")
	}

	body := map[string]interface{}{
		"username": params.Username,
		"status":   "active",
		"proxies":  buildProxies(params.Protocols),
	}
	note := params.Note
	if note == "" {
		note = "Created by bot at " + time.Now().Format(time.RFC3339)
	}
	body["note"] = note
	if params.DataLimitGB > 0 {
		body["data_limit"] = utils.GBToBytes(params.DataLimitGB)
	}
	if params.TrialDays > 0 {
		body["expire"] = time.Now().Add(time.Duration(params.TrialDays) * 24 * time.Hour).Unix()
	}

	resp, err := m.client.Post(m.baseURL+"/api/user", body)
	if err != nil {
		return fmt.Errorf("panel unreachable: %v", err)
	}
	if !resp.OK() {
		detail := extractDetail(resp.Body)
		if detail == "" {
			detail = fmt.Sprintf("HTTP %d", resp.Status)
		}
		return fmt.Errorf("panel rejected account creation: %s", detail)
	}

	m.mu.Lock()
	m.cachedFormat = "" // new account may change which URL shape works
	m.mu.Unlock()

	// Read-after-write lag guard: confirm the account is visible before
	// declaring success.
	for attempt := 0; attempt < createVisibilityPolls; attempt++ {
		acc, err := m.GetAccount(ctx, params.Username)
		if err == nil && acc != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	m.logger.Error("created account never became visible", zap.String("username", params.Username))
	return fmt.Errorf("account was created but is not yet visible on the panel; try again later or contact an administrator")
}

// ExtendSubscription adds days to the current expiry when it is still in the
// future, otherwise starts from now. It never shortens an active window and
// never credits already-expired time.
func (m *MarzbanClient) ExtendSubscription(ctx context.Context, username string, days int) error {
	acc, err := m.GetAccount(ctx, username)
	if err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("panel account %s not found", username)
	}

	now := time.Now().Unix()
	var newExpire int64
	if acc.Expire > now {
		newExpire = acc.Expire + int64(days)*86400
	} else {
		newExpire = now + int64(days)*86400
	}

	return m.modify(ctx, acc, map[string]interface{}{
		"expire": newExpire,
		"status": "active",
	})
}

// SyncIdentityNote merges "Telegram ID: <id> | @<handle>" into the panel note,
// replacing a previous marker if present.
func (m *MarzbanClient) SyncIdentityNote(ctx context.Context, username string, chatID int64, chatHandle string) error {
	acc, err := m.GetAccount(ctx, username)
	if err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("panel account %s not found", username)
	}

	marker := fmt.Sprintf("Telegram ID: %d", chatID)
	if chatHandle != "" {
		marker += " | @" + chatHandle
	}

	current := strings.TrimSpace(acc.Note)
	var newNote string
	switch {
	case current == "":
		newNote = marker
	case identityMarker.MatchString(current):
		newNote = identityMarker.ReplaceAllString(current, marker)
	default:
		newNote = current + " | " + marker
	}

	return m.modify(ctx, acc, map[string]interface{}{
		"note": strings.TrimSpace(newNote),
	})
}

func (m *MarzbanClient) GetUsageStats(ctx context.Context, username string) (*UsageStats, error) {
	acc, err := m.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, nil
	}

	stats := &UsageStats{
		Username:         username,
		Status:           acc.Status,
		UsedTrafficBytes: acc.UsedTraffic,
		DataLimitBytes:   acc.DataLimit,
		UsedTrafficGB:    utils.BytesToGB(acc.UsedTraffic),
		DataLimitGB:      utils.BytesToGB(acc.DataLimit),
		ExpireAt:         acc.Expire,
	}
	if acc.DataLimit > 0 {
		stats.TrafficPercentage = float64(acc.UsedTraffic) / float64(acc.DataLimit) * 100
	}
	if acc.Expire > 0 {
		remaining := time.Until(time.Unix(acc.Expire, 0))
		if remaining <= 0 {
			stats.IsExpired = true
		} else {
			stats.DaysRemaining = int(remaining.Hours() / 24)
		}
	}
	return stats, nil
}

// GetSubscriptionLink prefers the panel-reported URL, then a cached format,
// then probes conventional URL shapes until one serves a VPN-config payload.
func (m *MarzbanClient) GetSubscriptionLink(ctx context.Context, username string) (string, error) {
	acc, err := m.GetAccount(ctx, username)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", fmt.Errorf("panel account %s not found", username)
	}

	if acc.SubscriptionURL != "" {
		url := acc.SubscriptionURL
		if !strings.HasPrefix(url, "http") {
			url = m.baseURL + url
		}
		if m.servesConfig(url) {
			return url, nil
		}
		m.logger.Warn("panel-reported subscription URL does not serve configs",
			zap.String("username", username), zap.String("url", url))
	}

	m.mu.Lock()
	cached := m.cachedFormat
	m.mu.Unlock()
	if cached != "" {
		url := strings.ReplaceAll(cached, "{username}", username)
		if m.servesConfig(url) {
			return url, nil
		}
		// Stale cache: shape stopped working, forget it.
		m.mu.Lock()
		m.cachedFormat = ""
		m.mu.Unlock()
	}

	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	candidates := []string{
		m.baseURL + "/sub/{username}",
		m.baseURL + "/sub/{username}?token=" + token,
		m.baseURL + "/subscription/{username}",
		m.baseURL + "/api/subscription/{username}",
	}
	for _, format := range candidates {
		url := strings.ReplaceAll(format, "{username}", username)
		if m.servesConfig(url) {
			m.mu.Lock()
			m.cachedFormat = format
			m.mu.Unlock()
			return url, nil
		}
	}

	return "", fmt.Errorf("no working subscription URL for %s", username)
}

func (m *MarzbanClient) ListAccounts(ctx context.Context, offset, limit int) ([]Account, error) {
	if err := m.ensureAuth(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}

	url := fmt.Sprintf("%s/api/users?offset=%d&limit=%d", m.baseURL, offset, limit)
	resp, err := m.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("panel list users: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("panel list users: HTTP %d", resp.Status)
	}

	var raw struct {
		Users []map[string]interface{} `json:"users"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("panel parse users: %w", err)
	}

	accounts := make([]Account, 0, len(raw.Users))
	for _, u := range raw.Users {
		accounts = append(accounts, *accountFromRaw(u))
	}
	return accounts, nil
}

// modify PUTs a full user update. Marzban's PUT endpoint wants the whole
// object, so unchanged fields are carried over from the current account.
func (m *MarzbanClient) modify(ctx context.Context, acc *Account, changes map[string]interface{}) error {
	if err := m.ensureAuth(ctx); err != nil {
		return err
	}

	proxies := acc.Proxies
	if len(proxies) == 0 {
		proxies = map[string]map[string]interface{}{"vless": {}}
	}
	body := map[string]interface{}{
		"username": acc.Username,
		"proxies":  proxies,
		"status":   acc.Status,
	}
	if acc.Expire > 0 {
		body["expire"] = acc.Expire
	}
	if acc.DataLimit > 0 {
		body["data_limit"] = acc.DataLimit
	}
	if acc.Note != "" {
		body["note"] = acc.Note
	}
	for k, v := range changes {
		body[k] = v
	}

	resp, err := m.client.Put(m.baseURL+"/api/user/"+acc.Username, body)
	if err != nil {
		return fmt.Errorf("panel update %s: %w", acc.Username, err)
	}
	if !resp.OK() {
		return fmt.Errorf("panel update %s: HTTP %d", acc.Username, resp.Status)
	}
	return nil
}

// servesConfig checks that a URL returns a non-empty payload containing a
// recognized VPN protocol scheme.
func (m *MarzbanClient) servesConfig(url string) bool {
	resp, err := m.client.Get(url)
	if err != nil || !resp.OK() {
		return false
	}
	body := strings.ToLower(string(resp.Body))
	if len(strings.TrimSpace(body)) == 0 {
		return false
	}
	for _, scheme := range protocolSchemes {
		if strings.Contains(body, scheme) {
			return true
		}
	}
	return false
}

func buildProxies(protocols []string) map[string]interface{} {
	proxies := make(map[string]interface{})
	for _, p := range protocols {
		switch strings.ToLower(p) {
		case "vless":
			proxies["vless"] = map[string]interface{}{"flow": "xtls-rprx-vision"}
		case "vmess", "trojan", "shadowsocks":
			proxies[strings.ToLower(p)] = map[string]interface{}{}
		}
	}
	if len(proxies) == 0 {
		proxies["vless"] = map[string]interface{}{"flow": "xtls-rprx-vision"}
	}
	return proxies
}

func accountFromRaw(raw map[string]interface{}) *Account {
	acc := &Account{
		Username:        getString(raw, "username"),
		Status:          getString(raw, "status"),
		Note:            getString(raw, "note"),
		SubscriptionURL: getString(raw, "subscription_url"),
		Proxies:         make(map[string]map[string]interface{}),
	}
	if v, ok := raw["expire"].(float64); ok {
		acc.Expire = int64(v)
	}
	if v, ok := raw["data_limit"].(float64); ok {
		acc.DataLimit = int64(v)
	}
	if v, ok := raw["used_traffic"].(float64); ok {
		acc.UsedTraffic = int64(v)
	}
	if proxies, ok := raw["proxies"].(map[string]interface{}); ok {
		for proto, cfg := range proxies {
			if settings, ok := cfg.(map[string]interface{}); ok {
				acc.Proxies[proto] = settings
			} else {
				acc.Proxies[proto] = map[string]interface{}{}
			}
		}
	}
	if links, ok := raw["links"].([]interface{}); ok {
		for _, l := range links {
			if s, ok := l.(string); ok {
				acc.Links = append(acc.Links, s)
			}
		}
	}
	return acc
}

func extractDetail(body []byte) string {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch d := raw["detail"].(type) {
	case string:
		return d
	default:
		return ""
	}
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
