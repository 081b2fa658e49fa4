package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marzbot/internal/models"
)

// Matches the identity marker that SyncIdentityNote writes into panel notes;
// the local notes column uses the same convention.
var telegramIDNote = regexp.MustCompile(`Telegram ID: \d+[^|]*`)

// AccountRepository handles persisted account-link rows. Every operation is
// its own transaction; storage failures surface as errors and callers must
// treat them as "nothing happened".
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// UpsertAutoImported inserts a panel username discovered during
// reconciliation. Idempotent: an existing row is left untouched. Returns
// whether a new row was created.
func (r *AccountRepository) UpsertAutoImported(username, status, note string) (bool, error) {
	link := models.AccountLink{
		PanelUsername:      username,
		SubscriptionStatus: status,
		Notes:              note,
	}
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&link)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// LinkAccount binds a panel username to a Telegram chat. The update only
// matches rows with no chat yet, so double-linking fails quietly with false
// rather than clobbering the existing owner.
func (r *AccountRepository) LinkAccount(username string, chatID int64, chatHandle, phone string) (bool, error) {
	updates := map[string]interface{}{
		"chat_id":  chatID,
		"verified": true,
		"notes":    linkNote(chatID, chatHandle, "Linked via bot"),
	}
	if chatHandle != "" {
		updates["chat_handle"] = chatHandle
	}
	if phone != "" {
		updates["phone_number"] = phone
	}

	res := r.db.Model(&models.AccountLink{}).
		Where("panel_username = ? AND chat_id IS NULL", username).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateRegistered inserts a fully verified row for a self-registered
// account. Fails on duplicate username.
func (r *AccountRepository) CreateRegistered(username string, chatID int64, chatHandle string) error {
	link := models.AccountLink{
		PanelUsername:      username,
		ChatID:             sql.NullInt64{Int64: chatID, Valid: true},
		Verified:           true,
		SubscriptionStatus: models.StatusActive,
		Notes:              linkNote(chatID, chatHandle, "Registered via bot"),
	}
	if chatHandle != "" {
		link.ChatHandle = sql.NullString{String: chatHandle, Valid: true}
	}
	return r.db.Create(&link).Error
}

// FindByChatID returns all accounts owned by a Telegram chat.
func (r *AccountRepository) FindByChatID(chatID int64) ([]models.AccountLink, error) {
	var links []models.AccountLink
	err := r.db.Where("chat_id = ?", chatID).Order("registered_at ASC").Find(&links).Error
	return links, err
}

// FindVerifiedByChatID returns the first verified account for a chat, or nil.
func (r *AccountRepository) FindVerifiedByChatID(chatID int64) (*models.AccountLink, error) {
	var link models.AccountLink
	err := r.db.Where("chat_id = ? AND verified = ?", chatID, true).
		Order("registered_at ASC").First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// FindByUsername returns the account-link row for a panel username, or nil
// when absent.
func (r *AccountRepository) FindByUsername(username string) (*models.AccountLink, error) {
	var link models.AccountLink
	err := r.db.Where("panel_username = ?", username).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ListUnlinked returns panel usernames with no Telegram chat bound.
func (r *AccountRepository) ListUnlinked() ([]string, error) {
	var usernames []string
	err := r.db.Model(&models.AccountLink{}).
		Where("chat_id IS NULL").
		Pluck("panel_username", &usernames).Error
	return usernames, err
}

// ListUsernames returns every known panel username, for reconciliation
// against the panel's user list.
func (r *AccountRepository) ListUsernames() ([]string, error) {
	var usernames []string
	err := r.db.Model(&models.AccountLink{}).Pluck("panel_username", &usernames).Error
	return usernames, err
}

// FindRegisteredSince returns accounts self-registered after the cutoff,
// newest first.
func (r *AccountRepository) FindRegisteredSince(cutoff time.Time) ([]models.AccountLink, error) {
	var links []models.AccountLink
	err := r.db.Where("registered_at >= ? AND notes LIKE ?", cutoff, "%Registered via bot%").
		Order("registered_at DESC").Find(&links).Error
	return links, err
}

// UpdateStatus mirrors the panel-side subscription status locally.
func (r *AccountRepository) UpdateStatus(username, status string) (bool, error) {
	res := r.db.Model(&models.AccountLink{}).
		Where("panel_username = ?", username).
		Update("subscription_status", status)
	return res.RowsAffected > 0, res.Error
}

// AddTelegramIDNote stamps a Telegram ID marker into the account's notes.
// An existing marker is replaced; anything else in the notes is kept.
func (r *AccountRepository) AddTelegramIDNote(username string, chatID int64) (bool, error) {
	link, err := r.FindByUsername(username)
	if err != nil {
		return false, err
	}
	if link == nil {
		return false, nil
	}

	marker := fmt.Sprintf("Telegram ID: %d", chatID)
	var notes string
	switch {
	case link.Notes == "":
		notes = marker
	case telegramIDNote.MatchString(link.Notes):
		notes = telegramIDNote.ReplaceAllString(link.Notes, marker)
	default:
		notes = link.Notes + " | " + marker
	}
	return r.UpdateNotes(username, notes)
}

// UpdateNotes replaces the free-text notes of an account.
func (r *AccountRepository) UpdateNotes(username, notes string) (bool, error) {
	res := r.db.Model(&models.AccountLink{}).
		Where("panel_username = ?", username).
		Update("notes", notes)
	return res.RowsAffected > 0, res.Error
}

// DeleteByUsername removes an account-link row.
func (r *AccountRepository) DeleteByUsername(username string) (bool, error) {
	res := r.db.Where("panel_username = ?", username).Delete(&models.AccountLink{})
	return res.RowsAffected > 0, res.Error
}

func linkNote(chatID int64, chatHandle, suffix string) string {
	note := fmt.Sprintf("Telegram ID: %d", chatID)
	if chatHandle != "" {
		note += " | @" + chatHandle
	}
	return note + " | " + suffix
}
