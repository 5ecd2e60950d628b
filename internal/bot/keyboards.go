package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Focusniks/ipmkn-bot/internal/models"
)

// Menu button labels. The menu router dispatches on these per role.
const (
	BtnEvents        = "📅 Календарь мероприятий"
	BtnMyPoints      = "📊 Мои баллы"
	BtnMarkAttend    = "✅ Отметиться на мероприятии"
	BtnSksRegister   = "🎫 Зарегистрироваться в СКС"
	BtnProfUnion     = "🎟 Вступить в профсоюз"
	BtnHelp          = "❓ Помощь"
	BtnAskQuestion   = "✍️ Задать свой вопрос"
	BtnBack          = "↩️ Назад"
	BtnStudentPoints = "📊 Баллы студентов"
	BtnBroadcast     = "📢 Рассылка"
	BtnStats         = "📊 Статистика"
	BtnManageEvents  = "📅 Управление мероприятиями"
	BtnSetPoints     = "📊 Изменить баллы"
	BtnManageUsers   = "👥 Управление пользователями"
	BtnUserList      = "👥 Список пользователей"
	BtnUserSearch    = "🔍 Поиск пользователя"
	BtnChangeRole    = "🔄 Изменить роль"
	BtnAddEvent      = "➕ Добавить мероприятие"
	BtnEditEvent     = "✏️ Редактировать мероприятие"
	BtnDeleteEvent   = "🗑️ Удалить мероприятие"
	BtnAllGroups     = "Всем группам"
	BtnYes           = "✅ Да"
	BtnNo            = "❌ Нет"
)

// MainMenuKeyboard returns the role-scoped main menu.
func MainMenuKeyboard(role models.Role) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton

	switch role {
	case models.RoleTutor:
		rows = [][]tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(BtnEvents),
				tgbotapi.NewKeyboardButton(BtnStudentPoints),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(BtnBroadcast),
				tgbotapi.NewKeyboardButton(BtnStats),
			),
		}
	case models.RoleAdmin:
		rows = [][]tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(BtnManageEvents),
				tgbotapi.NewKeyboardButton(BtnSetPoints),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(BtnBroadcast),
				tgbotapi.NewKeyboardButton(BtnStats),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(BtnManageUsers),
			),
		}
	default:
		rows = [][]tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(BtnEvents),
				tgbotapi.NewKeyboardButton(BtnMarkAttend),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(BtnMyPoints),
				tgbotapi.NewKeyboardButton(BtnSksRegister),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(BtnProfUnion),
				tgbotapi.NewKeyboardButton(BtnHelp),
			),
		}
	}

	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func ConfirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnYes),
			tgbotapi.NewKeyboardButton(BtnNo),
		),
	)
	keyboard.OneTimeKeyboard = true
	return keyboard
}

// GroupChoiceKeyboard lists one group per row plus the all-groups option.
func GroupChoiceKeyboard(groups []string, withBack bool) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for _, g := range groups {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(g)))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnAllGroups)))
	if withBack {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnBack)))
	}

	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.OneTimeKeyboard = true
	keyboard.ResizeKeyboard = true
	return keyboard
}

func ManageEventsKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnAddEvent),
			tgbotapi.NewKeyboardButton(BtnEditEvent),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnDeleteEvent),
			tgbotapi.NewKeyboardButton(BtnBack),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func ManageUsersKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnUserList),
			tgbotapi.NewKeyboardButton(BtnUserSearch),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnChangeRole),
			tgbotapi.NewKeyboardButton(BtnBack),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func FaqKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnAskQuestion)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnBack)),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

// FaqClaimKeyboard is the per-question claim affordance sent to tutors.
func FaqClaimKeyboard(questionID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Ответить", fmt.Sprintf("faq_answer:%d", questionID)),
		),
	)
}

// SksDecisionKeyboard is the approve/reject affordance sent to admins.
func SksDecisionKeyboard(userID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Одобрить", fmt.Sprintf("sks:approve:%d", userID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("sks:reject:%d", userID)),
		),
	)
}
