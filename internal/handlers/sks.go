package handlers

import (
	"database/sql"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Focusniks/ipmkn-bot/internal/bot"
	"github.com/Focusniks/ipmkn-bot/internal/broadcast"
	"github.com/Focusniks/ipmkn-bot/internal/models"
	"github.com/Focusniks/ipmkn-bot/internal/session"
	"github.com/Focusniks/ipmkn-bot/pkg/logger"
)

// handleSksPhoto accepts only a photo attachment: it stores a pending
// application and fans the photo out to every admin with approve/reject
// buttons. Anything without a photo re-prompts in place.
func (h *Handler) handleSksPhoto(message *tgbotapi.Message, sess *session.Session) {
	if len(message.Photo) == 0 {
		h.sender.SendMessage(message.Chat.ID, "❌ Пожалуйста, отправьте фото.", nil)
		return
	}
	photoID := message.Photo[len(message.Photo)-1].FileID

	user, err := h.store.UserByTelegramID(message.From.ID)
	if errors.Is(err, sql.ErrNoRows) {
		h.sessions.Clear(message.From.ID)
		h.sender.SendMessage(message.Chat.ID, "❌ Пользователь не найден. Начните с /start", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "UserByTelegramID", err)
		return
	}

	if _, err := h.store.CreateApplication(user.ID, photoID); err != nil {
		h.storeError(message.Chat.ID, "CreateApplication", err)
		return
	}

	res, err := h.notify.Send(broadcast.Role(models.RoleAdmin), broadcast.Payload{
		PhotoID: photoID,
		Caption: "Новая заявка на подтверждение в СКС",
		Markup:  bot.SksDecisionKeyboard(user.ID),
	})
	if err != nil {
		zap.L().Warn("sks notification partially failed",
			zap.Int64(logger.FieldUserID, user.ID),
			zap.Error(err))
	}
	if res.Succeeded == 0 {
		h.sender.SendMessage(message.Chat.ID,
			"❌ Не удалось отправить заявку ни одному админу. Проверьте настройки.", nil)
	}

	h.sender.SendMessage(message.Chat.ID, "✅ Заявка отправлена на рассмотрение!", nil)
	h.showMainMenu(message)
}

func (h *Handler) showStats(message *tgbotapi.Message, _ *models.User, _ *session.Session) {
	stats, err := h.store.Stats()
	if err != nil {
		h.storeError(message.Chat.ID, "Stats", err)
		return
	}

	var profPct, sksPct float64
	if stats.TotalUsers > 0 {
		profPct = float64(stats.ProfUnionUsers) / float64(stats.TotalUsers) * 100
		sksPct = float64(stats.SksUsers) / float64(stats.TotalUsers) * 100
	}

	h.sender.SendMessage(message.Chat.ID, fmt.Sprintf(
		"📊 Статистика:\n"+
			"• Всего пользователей: %d\n"+
			"• В профсоюзе: %d (%.1f%%)\n"+
			"• В СКС: %d (%.1f%%)",
		stats.TotalUsers, stats.ProfUnionUsers, profPct, stats.SksUsers, sksPct), nil)
}
