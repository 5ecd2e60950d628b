package handlers

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Focusniks/ipmkn-bot/internal/broadcast"
	"github.com/Focusniks/ipmkn-bot/internal/database"
	"github.com/Focusniks/ipmkn-bot/internal/models"
	"github.com/Focusniks/ipmkn-bot/internal/session"
	"github.com/Focusniks/ipmkn-bot/pkg/logger"
)

// HandleCallbackQuery dispatches inline-button presses: FAQ claiming by
// tutors and SKS application decisions by admins.
func (h *Handler) HandleCallbackQuery(callback *tgbotapi.CallbackQuery) {
	parts := strings.Split(callback.Data, ":")

	switch parts[0] {
	case "faq_answer":
		h.handleFaqClaim(callback, parts)
	case "sks":
		h.handleSksDecision(callback, parts)
	}

	h.sender.AnswerCallbackQuery(callback.ID, "")
}

// handleFaqClaim moves the question to in_progress for the pressing tutor.
// The claim is first-wins: a later claimant is told the question is taken.
func (h *Handler) handleFaqClaim(callback *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) < 2 {
		return
	}
	questionID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}

	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	tutor, err := h.store.UserByTelegramID(callback.From.ID)
	if errors.Is(err, sql.ErrNoRows) {
		h.sender.SendMessage(chatID, "❌ Пользователь не авторизован. Начните с /start", nil)
		return
	}
	if err != nil {
		h.storeError(chatID, "UserByTelegramID", err)
		return
	}
	if tutor.Role != models.RoleTutor && tutor.Role != models.RoleAdmin {
		h.sender.SendMessage(chatID, "❌ У вас нет прав для выполнения этой команды.", nil)
		return
	}

	err = h.store.ClaimQuestion(questionID, tutor.ID)
	if errors.Is(err, database.ErrQuestionTaken) {
		h.sender.EditMessage(chatID, messageID, "Вопрос уже взят другим тьютором.")
		return
	}
	if err != nil {
		h.storeError(chatID, "ClaimQuestion", err)
		return
	}

	sess := h.sessions.Get(callback.From.ID)
	if sess == nil {
		sess = &session.Session{State: session.StateMenu}
		h.sessions.Set(callback.From.ID, sess)
	}
	sess.State = session.StateMenu
	sess.Flow = session.FlowFaqAnswer
	sess.FaqQuestionID = questionID

	h.sender.EditMessage(chatID, messageID, "Вы взяли вопрос. Напишите ответ студенту.")
}

// handleSksDecision approves or rejects a pending application. The store
// guards on the application still being pending; a re-press reports the
// application as already decided instead of re-applying the decision.
func (h *Handler) handleSksDecision(callback *tgbotapi.CallbackQuery, parts []string) {
	if len(parts) < 3 {
		return
	}
	approve := parts[1] == "approve"
	targetUserID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return
	}

	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	admin, err := h.store.UserByTelegramID(callback.From.ID)
	if err != nil || admin.Role != models.RoleAdmin {
		h.sender.SendMessage(chatID, "❌ У вас нет прав для выполнения этой команды.", nil)
		return
	}

	err = h.store.DecideApplication(targetUserID, approve)
	if errors.Is(err, database.ErrAlreadyDecided) {
		h.sender.AnswerCallbackQuery(callback.ID, "Заявка уже рассмотрена.")
		return
	}
	if err != nil {
		h.storeError(chatID, "DecideApplication", err)
		return
	}

	var caption, userText string
	if approve {
		caption = "✅ Заявка одобрена"
		userText = "✅ Ваша заявка на подтверждение в СКС одобрена. Спасибо!"
	} else {
		caption = "❌ Заявка отклонена"
		userText = "❌ Ваша заявка на подтверждение в СКС отклонена. Пожалуйста, подайте заявку снова."
	}
	h.sender.EditCaption(chatID, messageID, caption)

	res, err := h.notify.Send(broadcast.SingleUser(targetUserID), broadcast.Payload{Text: userText})
	if err != nil || res.Succeeded == 0 {
		zap.L().Warn("failed to notify applicant",
			zap.Int64(logger.FieldUserID, targetUserID),
			zap.Error(err))
	}
}
