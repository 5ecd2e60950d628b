package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Focusniks/ipmkn-bot/internal/models"
)

// HandleMenu is the /menu command: re-enter the main menu.
func (h *Handler) HandleMenu(message *tgbotapi.Message) {
	h.showMainMenu(message)
}

// HandleStats is the /stats command, available to tutors and admins.
func (h *Handler) HandleStats(message *tgbotapi.Message) {
	user, err := h.requireRole(message, models.RoleTutor, models.RoleAdmin)
	if user == nil || err != nil {
		return
	}
	h.showStats(message, user, nil)
}

// HandleSetPoints is the admin-only /setpoints <user_id> <delta> command.
func (h *Handler) HandleSetPoints(message *tgbotapi.Message) {
	user, err := h.requireRole(message, models.RoleAdmin)
	if user == nil || err != nil {
		return
	}

	args := strings.Fields(message.CommandArguments())
	if len(args) < 2 {
		h.sender.SendMessage(message.Chat.ID, "❌ Использование: /setpoints <user_id> <points>", nil)
		return
	}

	targetUserID, err1 := strconv.ParseInt(args[0], 10, 64)
	delta, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		h.sender.SendMessage(message.Chat.ID, "❌ Неверный формат аргументов", nil)
		return
	}

	if err := h.store.AddPoints(targetUserID, delta); err != nil {
		h.storeError(message.Chat.ID, "AddPoints", err)
		return
	}

	h.sender.SendMessage(message.Chat.ID,
		fmt.Sprintf("✅ Баллы пользователя %d изменены на %d", targetUserID, delta), nil)
}

// HandleSetRole is the admin-only /setrole <user_id> <role> command.
func (h *Handler) HandleSetRole(message *tgbotapi.Message) {
	user, err := h.requireRole(message, models.RoleAdmin)
	if user == nil || err != nil {
		return
	}

	args := strings.Fields(message.CommandArguments())
	if len(args) < 2 {
		h.sender.SendMessage(message.Chat.ID, "❌ Использование: /setrole <user_id> <role>", nil)
		return
	}

	targetUserID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.sender.SendMessage(message.Chat.ID, "❌ Неверный формат аргументов", nil)
		return
	}

	role := models.Role(args[1])
	switch role {
	case models.RoleStudent, models.RoleTutor, models.RoleAdmin:
	default:
		h.sender.SendMessage(message.Chat.ID,
			"❌ Неизвестная роль. Доступные: student, tutor, admin", nil)
		return
	}

	err = h.store.SetRole(targetUserID, role)
	if errors.Is(err, sql.ErrNoRows) {
		h.sender.SendMessage(message.Chat.ID, "❌ Пользователи не найдены.", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "SetRole", err)
		return
	}

	h.sender.SendMessage(message.Chat.ID,
		fmt.Sprintf("✅ Роль пользователя %d изменена на %s", targetUserID, role), nil)
}

// HandleInfo is the admin-only /info <name fragment> user search command.
func (h *Handler) HandleInfo(message *tgbotapi.Message) {
	user, err := h.requireRole(message, models.RoleAdmin)
	if user == nil || err != nil {
		return
	}

	term := strings.TrimSpace(message.CommandArguments())
	if term == "" {
		h.sender.SendMessage(message.Chat.ID, "❌ Использование: /info <ФИО или часть>", nil)
		return
	}

	users, err := h.store.SearchUsers(term)
	if err != nil {
		h.storeError(message.Chat.ID, "SearchUsers", err)
		return
	}
	if len(users) == 0 {
		h.sender.SendMessage(message.Chat.ID, "❌ Пользователи не найдены.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("🔍 Найденные пользователи:\n\n")
	for _, u := range users {
		sb.WriteString(fmt.Sprintf("• ID: %d, ФИО: %s, Группа: %s, Роль: %s\n",
			u.ID, u.FullName, orDash(u.GroupName), u.Role))
	}
	h.sender.SendMessage(message.Chat.ID, sb.String(), nil)
}

// requireRole loads the caller and rejects the command when the caller's
// role is not among the allowed ones. A rejection leaves the conversation
// state untouched.
func (h *Handler) requireRole(message *tgbotapi.Message, roles ...models.Role) (*models.User, error) {
	user, err := h.store.UserByTelegramID(message.From.ID)
	if errors.Is(err, sql.ErrNoRows) {
		h.sender.SendMessage(message.Chat.ID, "❌ У вас нет прав для выполнения этой команды.", nil)
		return nil, nil
	}
	if err != nil {
		h.storeError(message.Chat.ID, "UserByTelegramID", err)
		return nil, err
	}

	for _, r := range roles {
		if user.Role == r {
			return user, nil
		}
	}

	h.sender.SendMessage(message.Chat.ID, "❌ У вас нет прав для выполнения этой команды.", nil)
	return nil, nil
}
