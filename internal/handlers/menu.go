package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
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

type menuAction func(h *Handler, message *tgbotapi.Message, user *models.User, sess *session.Session)

// Per-role dispatch tables. An unrecognized label for the current role
// falls through to the help message.
var (
	studentMenu = map[string]menuAction{
		bot.BtnEvents:      (*Handler).showEvents,
		bot.BtnMyPoints:    (*Handler).showMyPoints,
		bot.BtnMarkAttend:  (*Handler).startAttendanceMark,
		bot.BtnSksRegister: (*Handler).startSksRegistration,
		bot.BtnProfUnion:   (*Handler).registerProfUnion,
		bot.BtnHelp:        (*Handler).showFaq,
		bot.BtnAskQuestion: (*Handler).startAskQuestion,
		bot.BtnBack:        backToMenu,
	}

	tutorMenu = map[string]menuAction{
		bot.BtnEvents:        (*Handler).showEvents,
		bot.BtnStudentPoints: (*Handler).choosePointsGroup,
		bot.BtnBroadcast:     (*Handler).chooseBroadcastGroup,
		bot.BtnStats:         (*Handler).showStats,
		bot.BtnBack:          backToMenu,
	}

	adminMenu = map[string]menuAction{
		bot.BtnManageEvents: (*Handler).showManageEvents,
		bot.BtnSetPoints:    (*Handler).showSetPointsHint,
		bot.BtnBroadcast:    (*Handler).chooseBroadcastGroup,
		bot.BtnStats:        (*Handler).showStats,
		bot.BtnManageUsers:  (*Handler).showManageUsers,
		bot.BtnUserList:     (*Handler).showUsersList,
		bot.BtnUserSearch:   (*Handler).startUserSearch,
		bot.BtnChangeRole:   (*Handler).showChangeRoleHint,
		bot.BtnAddEvent:     (*Handler).startAddEvent,
		bot.BtnEditEvent:    (*Handler).startEditEvent,
		bot.BtnDeleteEvent:  (*Handler).startDeleteEvent,
		bot.BtnBack:         backToMenu,
	}

	menuByRole = map[models.Role]map[string]menuAction{
		models.RoleStudent: studentMenu,
		models.RoleTutor:   tutorMenu,
		models.RoleAdmin:   adminMenu,
	}
)

func backToMenu(h *Handler, message *tgbotapi.Message, _ *models.User, _ *session.Session) {
	h.showMainMenu(message)
}

// handleMenu runs the nested micro-state-machine first: a pending sub-flow
// captures this message. Otherwise the text is dispatched through the
// role-scoped command table.
func (h *Handler) handleMenu(message *tgbotapi.Message, sess *session.Session, user *models.User) {
	if sess.Flow != session.FlowNone {
		h.handleMenuFlow(message, sess, user)
		return
	}

	actions, ok := menuByRole[user.Role]
	if !ok {
		h.sender.SendMessage(message.Chat.ID, "❌ Такой команды нет. Напишите /menu для возврата в главное меню.", nil)
		return
	}

	action, ok := actions[message.Text]
	if !ok {
		h.sender.SendMessage(message.Chat.ID, "❌ Такой команды нет. Напишите /menu для возврата в главное меню.", nil)
		return
	}

	action(h, message, user, sess)
}

func (h *Handler) handleMenuFlow(message *tgbotapi.Message, sess *session.Session, user *models.User) {
	switch sess.Flow {
	case session.FlowUserSearch:
		h.flowUserSearch(message, sess)
	case session.FlowAskQuestion:
		h.flowAskQuestion(message, sess, user)
	case session.FlowFaqAnswer:
		h.flowFaqAnswer(message, sess)
	case session.FlowEventTitle:
		h.flowEventTitle(message, sess)
	case session.FlowEventDate:
		h.flowEventDate(message, sess)
	case session.FlowEventEditID:
		h.flowEventEditID(message, sess)
	case session.FlowEventEditTitle:
		h.flowEventEditTitle(message, sess)
	case session.FlowEventDelete:
		h.flowEventDelete(message, sess)
	case session.FlowAttendanceCode:
		h.flowAttendanceCode(message, sess, user)
	case session.FlowPointsGroup:
		h.flowPointsGroup(message, sess, user)
	default:
		sess.ClearFlow()
	}
}

// --- Student actions ---

func (h *Handler) showEvents(message *tgbotapi.Message, _ *models.User, _ *session.Session) {
	events, err := h.store.UpcomingEvents(10)
	if err != nil {
		h.storeError(message.Chat.ID, "UpcomingEvents", err)
		return
	}

	if len(events) == 0 {
		h.sender.SendMessage(message.Chat.ID, "На данный момент мероприятий нет.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("📅 Вот список ближайших мероприятий!\n" +
		"Не пропустите интересные события и получайте баллы за участие 🏆\n")
	for _, e := range events {
		sb.WriteString(fmt.Sprintf("• %s - %s\n", e.Title, formatEventDate(e.EventDate)))
	}
	h.sender.SendMessage(message.Chat.ID, sb.String(), nil)
}

func (h *Handler) showMyPoints(message *tgbotapi.Message, user *models.User, _ *session.Session) {
	h.sender.SendMessage(message.Chat.ID, fmt.Sprintf("📊 Ваши баллы: %d", user.Points), nil)
}

func (h *Handler) startAttendanceMark(message *tgbotapi.Message, _ *models.User, sess *session.Session) {
	sess.Flow = session.FlowAttendanceCode
	h.sender.SendMessage(message.Chat.ID, "Введите 4-значный код мероприятия:", nil)
}

func (h *Handler) startSksRegistration(message *tgbotapi.Message, _ *models.User, sess *session.Session) {
	sess.State = session.StateAwaitSksPhoto
	h.sender.SendMessage(message.Chat.ID,
		"📲 Скачайте приложение СКС РФ и пройдите быструю регистрацию.\n\n"+
			"После установки отправьте сюда скриншот вашего профиля СКС.\n"+
			"Важно, чтобы на скриншоте было видно ваш профиль, а аватарка должна быть "+
			"вашей настоящей фотографией, с лицом.", nil)
}

func (h *Handler) registerProfUnion(message *tgbotapi.Message, _ *models.User, _ *session.Session) {
	if err := h.store.SetProfUnion(message.From.ID); err != nil {
		h.storeError(message.Chat.ID, "SetProfUnion", err)
		return
	}
	h.sender.SendMessage(message.Chat.ID, "✅ Спасибо за регистрацию в профсоюзе!", nil)
}

func (h *Handler) showFaq(message *tgbotapi.Message, _ *models.User, _ *session.Session) {
	text := "❓ База вопросов:\n\n" +
		"• Как изменить номер телефона?\nНапишите команду /start и следуйте инструкциям.\n\n" +
		"• Как узнать свои баллы?\nНажмите кнопку «📊 Мои баллы» в главном меню.\n\n" +
		"• Кому писать по вопросам мероприятий?\nОбратитесь к вашему тьютору или администратору.\n"
	h.sender.SendMessage(message.Chat.ID, text, bot.FaqKeyboard())
}

func (h *Handler) startAskQuestion(message *tgbotapi.Message, _ *models.User, sess *session.Session) {
	sess.Flow = session.FlowAskQuestion
	h.sender.SendMessage(message.Chat.ID, "Введите ваш вопрос:", nil)
}

func (h *Handler) flowAskQuestion(message *tgbotapi.Message, sess *session.Session, user *models.User) {
	sess.ClearFlow()

	questionID, err := h.store.CreateQuestion(user.ID, message.Text)
	if err != nil {
		h.storeError(message.Chat.ID, "CreateQuestion", err)
		return
	}

	h.sender.SendMessage(message.Chat.ID, "✅ Ваш вопрос отправлен тьюторам. Ожидайте ответа.", nil)

	res, err := h.notify.Send(broadcast.Role(models.RoleTutor), broadcast.Payload{
		Text:   fmt.Sprintf("Новый вопрос от студента:\n\n%s", message.Text),
		Markup: bot.FaqClaimKeyboard(questionID),
	})
	if err != nil {
		zap.L().Warn("faq notification partially failed",
			zap.Int64(logger.FieldQuestionID, questionID),
			zap.Error(err))
	}
	zap.L().Info("faq question fanned out",
		zap.Int64(logger.FieldQuestionID, questionID),
		zap.Int("attempted", res.Attempted),
		zap.Int("succeeded", res.Succeeded))
}

// flowFaqAnswer captures the claiming tutor's text as the answer and
// delivers it to the asking member.
func (h *Handler) flowFaqAnswer(message *tgbotapi.Message, sess *session.Session) {
	questionID := sess.FaqQuestionID
	sess.ClearFlow()

	q, err := h.store.AnswerQuestion(questionID, message.Text)
	if err != nil {
		h.storeError(message.Chat.ID, "AnswerQuestion", err)
		return
	}

	res, err := h.notify.Send(broadcast.SingleUser(q.UserID), broadcast.Payload{
		Text: fmt.Sprintf("Ответ на ваш вопрос:\n%s", q.Answer),
	})
	if err != nil || res.Succeeded == 0 {
		zap.L().Warn("failed to deliver faq answer",
			zap.Int64(logger.FieldQuestionID, questionID),
			zap.Int64(logger.FieldUserID, q.UserID),
			zap.Error(err))
	}

	h.sender.SendMessage(message.Chat.ID, "✅ Ответ отправлен студенту.", nil)
	h.showMainMenu(message)
}

func (h *Handler) flowAttendanceCode(message *tgbotapi.Message, sess *session.Session, user *models.User) {
	sess.ClearFlow()
	code := strings.TrimSpace(message.Text)

	event, err := h.store.EventByCode(code)
	if errors.Is(err, sql.ErrNoRows) {
		h.sender.SendMessage(message.Chat.ID, "❌ Код мероприятия неверный.", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "EventByCode", err)
		return
	}

	err = h.store.RedeemAttendance(event.ID, user.ID)
	if errors.Is(err, database.ErrAlreadyMarked) {
		h.sender.SendMessage(message.Chat.ID, "Вы уже отмечались на этом мероприятии.", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "RedeemAttendance", err)
		return
	}

	h.sender.SendMessage(message.Chat.ID, "✅ Вы успешно отметились!", nil)
}

// --- Tutor actions ---

func (h *Handler) choosePointsGroup(message *tgbotapi.Message, user *models.User, sess *session.Session) {
	groups, err := h.store.TutorGroups(user.ID)
	if err != nil {
		h.storeError(message.Chat.ID, "TutorGroups", err)
		return
	}
	if len(groups) == 0 {
		h.sender.SendMessage(message.Chat.ID, "❌ У вас нет курируемых групп.", nil)
		return
	}

	sess.Flow = session.FlowPointsGroup
	h.sender.SendMessage(message.Chat.ID, "Выберите группу для просмотра баллов:",
		bot.GroupChoiceKeyboard(groups, false))
}

func (h *Handler) flowPointsGroup(message *tgbotapi.Message, sess *session.Session, user *models.User) {
	sess.ClearFlow()
	group := message.Text

	var (
		students []models.User
		err      error
		header   string
	)
	if group == bot.BtnAllGroups {
		students, err = h.store.StudentsOfTutor(user.ID)
		header = "📊 Баллы студентов всех ваших групп:\n\n"
	} else {
		students, err = h.store.StudentsByGroup(group)
		header = fmt.Sprintf("📊 Баллы студентов группы %s:\n\n", group)
	}
	if err != nil {
		h.storeError(message.Chat.ID, "StudentsByGroup", err)
		return
	}
	if len(students) == 0 {
		h.sender.SendMessage(message.Chat.ID, "В этой группе пока нет студентов.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, s := range students {
		if group == bot.BtnAllGroups {
			sb.WriteString(fmt.Sprintf("• %s (%s): %d баллов\n", s.FullName, s.GroupName, s.Points))
		} else {
			sb.WriteString(fmt.Sprintf("• %s: %d баллов\n", s.FullName, s.Points))
		}
	}
	h.sender.SendMessage(message.Chat.ID, sb.String(), nil)
}

// chooseBroadcastGroup enters the broadcast flow: a tutor picks among their
// groups, an admin among all groups.
func (h *Handler) chooseBroadcastGroup(message *tgbotapi.Message, user *models.User, sess *session.Session) {
	var (
		groups []string
		err    error
	)
	if user.Role == models.RoleAdmin {
		groups, err = h.store.AllGroups()
	} else {
		groups, err = h.store.TutorGroups(user.ID)
	}
	if err != nil {
		h.storeError(message.Chat.ID, "AllGroups", err)
		return
	}
	if len(groups) == 0 {
		h.sender.SendMessage(message.Chat.ID, "❌ Нет доступных групп для рассылки.", nil)
		return
	}

	sess.State = session.StateAwaitGroupChoice
	h.sender.SendMessage(message.Chat.ID, "Выберите группу для рассылки:",
		bot.GroupChoiceKeyboard(groups, true))
}

func (h *Handler) handleGroupChoice(message *tgbotapi.Message, sess *session.Session) {
	switch message.Text {
	case bot.BtnBack:
		h.showMainMenu(message)
		return
	case bot.BtnAllGroups:
		sess.BroadcastAll = true
		sess.BroadcastGroup = ""
	default:
		sess.BroadcastAll = false
		sess.BroadcastGroup = message.Text
	}

	sess.State = session.StateAwaitBroadcastBody
	h.sender.SendMessage(message.Chat.ID, "📨 Отправьте сообщение для рассылки выбранной группе:", nil)
}

// handleBroadcastBody captures the next message verbatim (text, photo or
// document) and hands it to the fan-out. The sub-flow ends regardless of
// the delivery outcome.
func (h *Handler) handleBroadcastBody(message *tgbotapi.Message, sess *session.Session) {
	audience := broadcast.AllStudents()
	if !sess.BroadcastAll {
		audience = broadcast.Group(sess.BroadcastGroup)
	}

	payload := broadcast.Payload{Text: message.Text, Caption: message.Caption}
	if len(message.Photo) > 0 {
		payload.PhotoID = message.Photo[len(message.Photo)-1].FileID
	} else if message.Document != nil {
		payload.DocumentID = message.Document.FileID
	}

	res, err := h.notify.Send(audience, payload)
	if err != nil {
		zap.L().Warn("broadcast partially failed",
			zap.Int64(logger.FieldChatID, message.Chat.ID),
			zap.Error(err))
	}

	h.sender.SendMessage(message.Chat.ID,
		fmt.Sprintf("✅ Отправлено: %d из %d", res.Succeeded, res.Attempted), nil)
	h.showMainMenu(message)
}

// --- Admin actions ---

func (h *Handler) showManageEvents(message *tgbotapi.Message, _ *models.User, _ *session.Session) {
	h.sender.SendMessage(message.Chat.ID, "📅 Управление мероприятиями:", bot.ManageEventsKeyboard())
}

func (h *Handler) showManageUsers(message *tgbotapi.Message, _ *models.User, _ *session.Session) {
	h.sender.SendMessage(message.Chat.ID, "👥 Управление пользователями:", bot.ManageUsersKeyboard())
}

func (h *Handler) showSetPointsHint(message *tgbotapi.Message, _ *models.User, _ *session.Session) {
	h.sender.SendMessage(message.Chat.ID,
		"Для изменения баллов используйте команду /setpoints <ID_пользователя> <количество_баллов>\n\n"+
			"Например: /setpoints 15 10", nil)
}

func (h *Handler) showChangeRoleHint(message *tgbotapi.Message, _ *models.User, _ *session.Session) {
	h.sender.SendMessage(message.Chat.ID, "Используйте команду /setrole <user_id> <role>", nil)
}

func (h *Handler) showUsersList(message *tgbotapi.Message, _ *models.User, _ *session.Session) {
	users, err := h.store.ListUsers(30)
	if err != nil {
		h.storeError(message.Chat.ID, "ListUsers", err)
		return
	}
	if len(users) == 0 {
		h.sender.SendMessage(message.Chat.ID, "❌ Пользователи не найдены.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("👥 Список пользователей:\n\n")
	for _, u := range users {
		sb.WriteString(fmt.Sprintf("• ID: %d, ФИО: %s, Группа: %s, Роль: %s\n",
			u.ID, u.FullName, orDash(u.GroupName), u.Role))
	}
	h.sender.SendMessage(message.Chat.ID, sb.String(), nil)
}

func (h *Handler) startUserSearch(message *tgbotapi.Message, _ *models.User, sess *session.Session) {
	sess.Flow = session.FlowUserSearch
	h.sender.SendMessage(message.Chat.ID, "Введите ФИО или часть для поиска:", nil)
}

func (h *Handler) flowUserSearch(message *tgbotapi.Message, sess *session.Session) {
	sess.ClearFlow()

	users, err := h.store.SearchUsers(message.Text)
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

func (h *Handler) startAddEvent(message *tgbotapi.Message, _ *models.User, sess *session.Session) {
	sess.Flow = session.FlowEventTitle
	h.sender.SendMessage(message.Chat.ID, "Введите название нового мероприятия:", nil)
}

func (h *Handler) flowEventTitle(message *tgbotapi.Message, sess *session.Session) {
	sess.EventTitle = message.Text
	sess.Flow = session.FlowEventDate
	h.sender.SendMessage(message.Chat.ID,
		"Введите дату мероприятия в формате ДД.ММ.ГГГГ ЧЧ:ММ (например, 15.09.2025 18:00):", nil)
}

const attendanceCodeAttempts = 10

// flowEventDate finishes event creation. A bad date re-prompts without
// losing the captured title. The 4-digit attendance code is random; on a
// collision with an existing event the code is regenerated.
func (h *Handler) flowEventDate(message *tgbotapi.Message, sess *session.Session) {
	eventDate, err := time.Parse(eventDateLayout, strings.TrimSpace(message.Text))
	if err != nil {
		h.sender.SendMessage(message.Chat.ID, "❌ Некорректный формат даты. Попробуйте ещё раз:", nil)
		return
	}

	title := sess.EventTitle
	sess.ClearFlow()

	var (
		eventID int64
		code    string
	)
	for attempt := 0; attempt < attendanceCodeAttempts; attempt++ {
		code = fmt.Sprintf("%04d", rand.Intn(9000)+1000)
		eventID, err = h.store.CreateEvent(&models.Event{
			Title:          title,
			EventDate:      eventDate,
			AttendanceCode: code,
		})
		if !errors.Is(err, database.ErrCodeTaken) {
			break
		}
	}
	if err != nil {
		h.storeError(message.Chat.ID, "CreateEvent", err)
		return
	}

	h.sender.SendMessage(message.Chat.ID,
		fmt.Sprintf("✅ Мероприятие '%s' добавлено на %s.\nID: %d\nКод для отметки: %s",
			title, formatEventDate(eventDate), eventID, code), nil)
	h.sender.SendMessage(message.Chat.ID, "📅 Управление мероприятиями:", bot.ManageEventsKeyboard())
}

func (h *Handler) startEditEvent(message *tgbotapi.Message, _ *models.User, sess *session.Session) {
	sess.Flow = session.FlowEventEditID
	h.sender.SendMessage(message.Chat.ID, "Введите ID мероприятия для редактирования:", nil)
}

func (h *Handler) flowEventEditID(message *tgbotapi.Message, sess *session.Session) {
	eventID, err := strconv.ParseInt(strings.TrimSpace(message.Text), 10, 64)
	if err != nil {
		sess.ClearFlow()
		h.sender.SendMessage(message.Chat.ID, "❌ Введите корректный ID мероприятия.", nil)
		return
	}

	sess.EventID = eventID
	sess.Flow = session.FlowEventEditTitle
	h.sender.SendMessage(message.Chat.ID, "Введите новое название мероприятия:", nil)
}

func (h *Handler) flowEventEditTitle(message *tgbotapi.Message, sess *session.Session) {
	eventID := sess.EventID
	sess.ClearFlow()

	err := h.store.UpdateEventTitle(eventID, message.Text)
	if errors.Is(err, sql.ErrNoRows) {
		h.sender.SendMessage(message.Chat.ID, "❌ Мероприятие не найдено.", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "UpdateEventTitle", err)
		return
	}

	h.sender.SendMessage(message.Chat.ID,
		fmt.Sprintf("✅ Название мероприятия обновлено на '%s'.", message.Text), nil)
	h.sender.SendMessage(message.Chat.ID, "📅 Управление мероприятиями:", bot.ManageEventsKeyboard())
}

func (h *Handler) startDeleteEvent(message *tgbotapi.Message, _ *models.User, sess *session.Session) {
	sess.Flow = session.FlowEventDelete
	h.sender.SendMessage(message.Chat.ID, "Введите ID мероприятия для удаления:", nil)
}

func (h *Handler) flowEventDelete(message *tgbotapi.Message, sess *session.Session) {
	sess.ClearFlow()

	eventID, err := strconv.ParseInt(strings.TrimSpace(message.Text), 10, 64)
	if err != nil {
		h.sender.SendMessage(message.Chat.ID, "❌ Введите корректный ID мероприятия.", nil)
		return
	}

	err = h.store.DeleteEvent(eventID)
	if errors.Is(err, sql.ErrNoRows) {
		h.sender.SendMessage(message.Chat.ID, "❌ Мероприятие не найдено.", nil)
		return
	}
	if err != nil {
		h.storeError(message.Chat.ID, "DeleteEvent", err)
		return
	}

	h.sender.SendMessage(message.Chat.ID,
		fmt.Sprintf("🗑️ Мероприятие с ID %d удалено.", eventID), nil)
	h.sender.SendMessage(message.Chat.ID, "📅 Управление мероприятиями:", bot.ManageEventsKeyboard())
}
