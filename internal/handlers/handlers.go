// Package handlers implements the stateful conversation engine: the
// finite-state dialogue driving onboarding and staff authentication, the
// role-scoped menu router and the event/FAQ/application workflows.
package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Focusniks/ipmkn-bot/internal/bot"
	"github.com/Focusniks/ipmkn-bot/internal/broadcast"
	"github.com/Focusniks/ipmkn-bot/internal/database"
	"github.com/Focusniks/ipmkn-bot/internal/models"
	"github.com/Focusniks/ipmkn-bot/internal/session"
	"github.com/Focusniks/ipmkn-bot/pkg/logger"
)

const storeUnavailableText = "⚠️ Ой! Не удалось подключиться к базе данных.\n" +
	"Попробуйте позже или обратитесь к администратору."

// Directory is the user-record side of the data store.
type Directory interface {
	UserByTelegramID(telegramID int64) (*models.User, error)
	UserByID(id int64) (*models.User, error)
	UserByFullName(fullName string) (*models.User, error)
	SearchUsers(term string) ([]models.User, error)
	ListUsers(limit int) ([]models.User, error)
	BindTelegram(userID, telegramID int64, username string) error
	SetPhoneNumber(telegramID int64, phone string) error
	AddPoints(userID int64, delta int) error
	SetRole(userID int64, role models.Role) error
	SetProfUnion(telegramID int64) error
	TutorGroups(tutorID int64) ([]string, error)
	AllGroups() ([]string, error)
	GroupTutorName(groupName string) (string, error)
	StudentsByGroup(groupName string) ([]models.User, error)
	StudentsOfTutor(tutorID int64) ([]models.User, error)
	TutorCode(code string) (*models.TutorCode, error)
	Stats() (*models.Stats, error)
}

// EventStore covers events and attendance redemption.
type EventStore interface {
	CreateEvent(e *models.Event) (int64, error)
	UpdateEventTitle(id int64, title string) error
	DeleteEvent(id int64) error
	UpcomingEvents(limit int) ([]models.Event, error)
	EventByCode(code string) (*models.Event, error)
	RedeemAttendance(eventID, userID int64) error
}

type FaqStore interface {
	CreateQuestion(userID int64, question string) (int64, error)
	ClaimQuestion(questionID, tutorID int64) error
	AnswerQuestion(questionID int64, answer string) (*models.FaqQuestion, error)
}

type SksStore interface {
	CreateApplication(userID int64, photoFileID string) (int64, error)
	DecideApplication(userID int64, approve bool) error
}

// Store is everything the dialogue engine needs from the data store.
// *database.DB satisfies it.
type Store interface {
	Directory
	EventStore
	FaqStore
	SksStore
}

// Sender is the outbound transport surface used by the handlers.
// *bot.Bot satisfies it.
type Sender interface {
	SendMessage(chatID int64, text string, replyMarkup interface{}) error
	EditMessage(chatID int64, messageID int, text string) error
	EditCaption(chatID int64, messageID int, caption string) error
	AnswerCallbackQuery(callbackID, text string) error
}

// Notifier fans a payload out to a computed audience.
// *broadcast.Broadcaster satisfies it.
type Notifier interface {
	Send(audience broadcast.Audience, payload broadcast.Payload) (broadcast.Result, error)
}

type Handler struct {
	sender      Sender
	store       Store
	sessions    *session.Store
	notify      Notifier
	tutorSecret string
}

func New(sender Sender, store Store, sessions *session.Store, notify Notifier, tutorSecret string) *Handler {
	return &Handler{
		sender:      sender,
		store:       store,
		sessions:    sessions,
		notify:      notify,
		tutorSecret: tutorSecret,
	}
}

func (h *Handler) storeError(chatID int64, op string, err error) {
	zap.L().Error("store operation failed",
		zap.String(logger.FieldOperation, op),
		zap.Int64(logger.FieldChatID, chatID),
		zap.Error(err))
	h.sender.SendMessage(chatID, storeUnavailableText, nil)
}

// HandleStart is the /start entry point. A known member goes straight to
// the menu; staff are told to use /menu; an unknown identity starts the
// member onboarding flow.
func (h *Handler) HandleStart(message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID

	user, err := h.store.UserByTelegramID(userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		h.storeError(chatID, "UserByTelegramID", err)
		return
	}

	if user != nil {
		if user.Role != models.RoleStudent {
			h.sender.SendMessage(chatID,
				"Вы уже зарегистрированы как тьютор или админ. Используйте /menu.", nil)
		}
		h.showMainMenu(message)
		return
	}

	h.sessions.Set(userID, &session.Session{State: session.StateAwaitFullName})
	h.sender.SendMessage(chatID,
		"👋 Приветствуем в нашем студенческом боте!\n\n"+
			"Давайте познакомимся — напишите ваше ФИО, чтобы мы могли узнать вас поближе 😊", nil)
}

// HandleCode is the /code entry point for staff onboarding.
func (h *Handler) HandleCode(message *tgbotapi.Message) {
	h.sessions.Set(message.From.ID, &session.Session{State: session.StateAwaitTutorCode})
	h.sender.SendMessage(message.Chat.ID, "Введите код авторизации:", tgbotapi.NewRemoveKeyboard(false))
}

// HandleCancel ends the conversation from any state, discarding the session.
func (h *Handler) HandleCancel(message *tgbotapi.Message) {
	h.sessions.Clear(message.From.ID)
	h.sender.SendMessage(message.Chat.ID, "Действие отменено.", tgbotapi.NewRemoveKeyboard(false))
}

// HandleMessage routes a non-command inbound message through the state
// machine. A user without an active session but with a bound record lands
// in the menu; anyone else is pointed at /start.
func (h *Handler) HandleMessage(message *tgbotapi.Message) {
	userID := message.From.ID
	sess := h.sessions.Get(userID)

	if sess == nil {
		user, err := h.store.UserByTelegramID(userID)
		if errors.Is(err, sql.ErrNoRows) {
			h.sender.SendMessage(message.Chat.ID, "❌ Пользователь не авторизован. Начните с /start", nil)
			return
		}
		if err != nil {
			h.storeError(message.Chat.ID, "UserByTelegramID", err)
			return
		}
		sess = &session.Session{State: session.StateMenu}
		h.sessions.Set(userID, sess)
		h.handleMenu(message, sess, user)
		return
	}

	switch sess.State {
	case session.StateAwaitFullName:
		h.handleFullName(message, sess)
	case session.StateAwaitNameConfirm:
		h.handleNameConfirm(message, sess)
	case session.StateAwaitPhone:
		h.handlePhone(message, sess)
	case session.StateAwaitTutorCode:
		h.handleTutorCode(message, sess)
	case session.StateAwaitPersonalCode:
		h.handlePersonalCode(message, sess)
	case session.StateAwaitSksPhoto:
		h.handleSksPhoto(message, sess)
	case session.StateAwaitGroupChoice:
		h.handleGroupChoice(message, sess)
	case session.StateAwaitBroadcastBody:
		h.handleBroadcastBody(message, sess)
	case session.StateMenu:
		user, err := h.store.UserByTelegramID(userID)
		if errors.Is(err, sql.ErrNoRows) {
			h.sessions.Clear(userID)
			h.sender.SendMessage(message.Chat.ID, "❌ Пользователь не авторизован. Начните с /start", nil)
			return
		}
		if err != nil {
			h.storeError(message.Chat.ID, "UserByTelegramID", err)
			return
		}
		h.handleMenu(message, sess, user)
	default:
		h.sessions.Clear(userID)
	}
}

func isPersonalCode(text string) bool {
	if len(text) != 6 {
		return false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// handleFullName matches the input against the pre-seeded roster. A
// 6-digit input is a tutor personal code, not a name, and jumps to the
// personal-code path.
func (h *Handler) handleFullName(message *tgbotapi.Message, sess *session.Session) {
	fullName := strings.TrimSpace(message.Text)

	if isPersonalCode(fullName) {
		h.handlePersonalCode(message, sess)
		return
	}

	user, err := h.store.UserByFullName(fullName)
	if errors.Is(err, sql.ErrNoRows) {
		h.sender.SendMessage(message.Chat.ID,
			"😔 Увы, такого ФИО не найдено в базе.\n"+
				"Проверьте правильность написания и попробуйте ещё раз!", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "UserByFullName", err)
		return
	}

	sess.PendingUserID = user.ID
	sess.State = session.StateAwaitNameConfirm
	h.sender.SendMessage(message.Chat.ID,
		fmt.Sprintf("🔎 Мы нашли похожую запись:\n👤 %s (№ зачётки: %s)\n\n"+
			"Это вы? Подтвердите, пожалуйста 👇", user.FullName, user.StudentID),
		bot.ConfirmKeyboard())
}

func (h *Handler) handleNameConfirm(message *tgbotapi.Message, sess *session.Session) {
	switch message.Text {
	case bot.BtnYes:
		err := h.store.BindTelegram(sess.PendingUserID, message.From.ID, message.From.UserName)
		if errors.Is(err, database.ErrAlreadyBound) {
			h.sessions.Clear(message.From.ID)
			h.sender.SendMessage(message.Chat.ID,
				"❌ Этот профиль уже привязан к другому Telegram аккаунту.",
				tgbotapi.NewRemoveKeyboard(false))
			return
		}
		if err != nil {
			h.storeError(message.Chat.ID, "BindTelegram", err)
			return
		}

		sess.PendingUserID = 0
		sess.State = session.StateAwaitPhone
		h.sender.SendMessage(message.Chat.ID,
			"🎉 Отлично! Вы успешно авторизованы.\n"+
				"Теперь, пожалуйста, введите ваш номер телефона для связи 📱",
			tgbotapi.NewRemoveKeyboard(false))
	case bot.BtnNo:
		sess.PendingUserID = 0
		sess.State = session.StateAwaitFullName
		h.sender.SendMessage(message.Chat.ID, "Введите ваше ФИО ещё раз:", nil)
	default:
		h.sender.SendMessage(message.Chat.ID, "Пожалуйста, подтвердите кнопкой: ✅ Да или ❌ Нет", nil)
	}
}

// handlePhone accepts any text verbatim as the phone number.
func (h *Handler) handlePhone(message *tgbotapi.Message, sess *session.Session) {
	if err := h.store.SetPhoneNumber(message.From.ID, message.Text); err != nil {
		h.storeError(message.Chat.ID, "SetPhoneNumber", err)
		return
	}

	h.sender.SendMessage(message.Chat.ID,
		"✅ Ваш номер телефона сохранён!\n"+
			"Теперь вы можете пользоваться всеми возможностями бота 🚀", nil)
	h.showMainMenu(message)
}

// handleTutorCode checks the shared staff-onboarding secret. Failure ends
// the conversation, no retry.
func (h *Handler) handleTutorCode(message *tgbotapi.Message, sess *session.Session) {
	if message.Text != h.tutorSecret {
		h.sessions.Clear(message.From.ID)
		h.sender.SendMessage(message.Chat.ID, "❌ Неверный код. Попробуйте снова через /start", nil)
		return
	}

	sess.State = session.StateAwaitPersonalCode
	h.sender.SendMessage(message.Chat.ID, "Введите ваш персональный 6-значный код:", nil)
}

// handlePersonalCode resolves a one-time tutor code. A code bound to a
// live identity, or an unknown code, ends the conversation.
func (h *Handler) handlePersonalCode(message *tgbotapi.Message, sess *session.Session) {
	code := strings.TrimSpace(message.Text)

	tc, err := h.store.TutorCode(code)
	if errors.Is(err, sql.ErrNoRows) {
		h.sessions.Clear(message.From.ID)
		h.sender.SendMessage(message.Chat.ID,
			"❌ Код не найден или не привязан к пользователю. Обратитесь к администратору.", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "TutorCode", err)
		return
	}

	user, err := h.store.UserByID(tc.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		h.sessions.Clear(message.From.ID)
		h.sender.SendMessage(message.Chat.ID,
			"❌ Профиль пользователя не найден. Обратитесь к администратору.", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "UserByID", err)
		return
	}

	if user.TelegramID != 0 {
		h.sessions.Clear(message.From.ID)
		h.sender.SendMessage(message.Chat.ID,
			"❌ Этот профиль уже привязан к другому Telegram аккаунту.", nil)
		return
	}

	err = h.store.BindTelegram(user.ID, message.From.ID, message.From.UserName)
	if errors.Is(err, database.ErrAlreadyBound) {
		h.sessions.Clear(message.From.ID)
		h.sender.SendMessage(message.Chat.ID,
			"❌ Этот профиль уже привязан к другому Telegram аккаунту.", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "BindTelegram", err)
		return
	}

	h.sender.SendMessage(message.Chat.ID, "✅ Авторизация успешна! Вы теперь тьютор.", nil)
	h.showMainMenu(message)
}

// showMainMenu prints the role-scoped header and keyboard and puts the
// session into the menu state with no pending sub-flow.
func (h *Handler) showMainMenu(message *tgbotapi.Message) {
	userID := message.From.ID

	user, err := h.store.UserByTelegramID(userID)
	if errors.Is(err, sql.ErrNoRows) {
		h.sessions.Clear(userID)
		h.sender.SendMessage(message.Chat.ID, "❌ Пользователь не найден. Начните с /start", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "UserByTelegramID", err)
		return
	}

	var menuText string
	if user.Role == models.RoleStudent {
		tutorName := "-"
		if user.GroupName != "" {
			if name, err := h.store.GroupTutorName(user.GroupName); err == nil {
				tutorName = name
			}
		}
		menuText = fmt.Sprintf(
			"👋 Привет, %s!\n📚 Вот ваши данные:\n"+
				"• № зачётки: %s\n• Группа: %s\n• Баллы: %d\n• Ваш тьютор: %s\n",
			user.FullName, orDash(user.StudentID), orDash(user.GroupName), user.Points, tutorName)
	} else {
		groups, _ := h.store.TutorGroups(user.ID)
		groupList := "-"
		if len(groups) > 0 {
			groupList = strings.Join(groups, ", ")
		}
		menuText = fmt.Sprintf("👋 Привет, %s!\n• Тьютор групп(ы): %s\n", user.FullName, groupList)
	}

	sess := &session.Session{State: session.StateMenu}
	h.sessions.Set(userID, sess)
	h.sender.SendMessage(message.Chat.ID, menuText, bot.MainMenuKeyboard(user.Role))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

const eventDateLayout = "02.01.2006 15:04"

func formatEventDate(t time.Time) string {
	return t.Format(eventDateLayout)
}
