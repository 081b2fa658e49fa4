// Package notify implements the outbound message sink on top of telebot.
// It is the only place the workflows touch Telegram, so engine tests can
// swap it for a fake.
package notify

import (
	"strconv"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"marzbot/internal/models"
)

// TelegramNotifier sends messages through a telebot instance. Admin
// broadcasts swallow per-recipient failures; an admin who blocked the bot
// must not break delivery to the others.
type TelegramNotifier struct {
	tb       *tele.Bot
	adminIDs []int64
	logger   *zap.Logger
}

func NewTelegramNotifier(tb *tele.Bot, adminIDs []int64, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{tb: tb, adminIDs: adminIDs, logger: logger}
}

func (n *TelegramNotifier) SendMessage(chatID int64, text string) (int, error) {
	msg, err := n.tb.Send(tele.ChatID(chatID), text)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// SendMenuMessage attaches the standard main-menu button so the user can
// always navigate back after a flow completes.
func (n *TelegramNotifier) SendMenuMessage(chatID int64, text string) error {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(menu.Data("🏠 Main Menu", "main_menu")))
	_, err := n.tb.Send(tele.ChatID(chatID), text, menu)
	return err
}

func (n *TelegramNotifier) DeleteMessage(chatID int64, messageID int) error {
	return n.tb.Delete(&tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	})
}

func (n *TelegramNotifier) NotifyAdmins(text string) {
	for _, adminID := range n.adminIDs {
		if _, err := n.tb.Send(tele.ChatID(adminID), text); err != nil {
			n.logger.Warn("admin notification failed",
				zap.Int64("admin_id", adminID), zap.Error(err))
		}
	}
}

// SendReceiptToAdmins re-sends an uploaded receipt by its file id, so a
// reviewing admin sees the actual proof next to the claim summary.
func (n *TelegramNotifier) SendReceiptToAdmins(fileRef, kind, caption string) {
	var payload interface{}
	switch kind {
	case models.ReceiptDocument:
		doc := &tele.Document{Caption: caption}
		doc.FileID = fileRef
		payload = doc
	default:
		photo := &tele.Photo{Caption: caption}
		photo.FileID = fileRef
		payload = photo
	}

	for _, adminID := range n.adminIDs {
		if _, err := n.tb.Send(tele.ChatID(adminID), payload); err != nil {
			n.logger.Warn("receipt forward failed",
				zap.Int64("admin_id", adminID), zap.Error(err))
		}
	}
}
