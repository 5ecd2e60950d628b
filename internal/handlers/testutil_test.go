package handlers

import (
	"database/sql"
	"sort"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Focusniks/ipmkn-bot/internal/broadcast"
	"github.com/Focusniks/ipmkn-bot/internal/database"
	"github.com/Focusniks/ipmkn-bot/internal/models"
	"github.com/Focusniks/ipmkn-bot/internal/session"
)

// fakeStore is an in-memory Store with the same conditional-update
// semantics as the SQL layer. It also satisfies broadcast.Directory so
// handler tests run the real fan-out.
type fakeStore struct {
	mu             sync.Mutex
	users          map[int64]*models.User
	tutorCodes     map[string]int64
	tutorGroups    map[int64][]string
	events         map[int64]*models.Event
	nextEventID    int64
	attendance     map[[2]int64]bool
	questions      map[int64]*models.FaqQuestion
	nextQuestionID int64
	applications   map[int64]*models.SksApplication
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[int64]*models.User),
		tutorCodes:   make(map[string]int64),
		tutorGroups:  make(map[int64][]string),
		events:       make(map[int64]*models.Event),
		attendance:   make(map[[2]int64]bool),
		questions:    make(map[int64]*models.FaqQuestion),
		applications: make(map[int64]*models.SksApplication),
	}
}

func (s *fakeStore) addUser(u models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
	return &cp
}

func (s *fakeStore) UserByTelegramID(telegramID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TelegramID == telegramID && telegramID != 0 {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeStore) UserByID(id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) UserByFullName(fullName string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.FullName == fullName {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeStore) SearchUsers(term string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.FullName), strings.ToLower(term)) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *fakeStore) ListUsers(limit int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []models.User
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		out = append(out, *s.users[id])
	}
	return out, nil
}

func (s *fakeStore) BindTelegram(userID, telegramID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.TelegramID != 0 {
		return database.ErrAlreadyBound
	}
	u.TelegramID = telegramID
	u.TelegramUsername = username
	return nil
}

func (s *fakeStore) SetPhoneNumber(telegramID int64, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TelegramID == telegramID {
			u.PhoneNumber = phone
		}
	}
	return nil
}

func (s *fakeStore) AddPoints(userID int64, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Points += delta
	}
	return nil
}

func (s *fakeStore) SetRole(userID int64, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	return nil
}

func (s *fakeStore) SetProfUnion(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TelegramID == telegramID {
			u.IsProfUnion = true
		}
	}
	return nil
}

func (s *fakeStore) TutorGroups(tutorID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tutorGroups[tutorID], nil
}

func (s *fakeStore) AllGroups() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, groups := range s.tutorGroups {
		for _, g := range groups {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeStore) GroupTutorName(groupName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tutorID, groups := range s.tutorGroups {
		for _, g := range groups {
			if g == groupName {
				if u, ok := s.users[tutorID]; ok {
					return u.FullName, nil
				}
			}
		}
	}
	return "-", nil
}

func (s *fakeStore) StudentsByGroup(groupName string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Role == models.RoleStudent && u.GroupName == groupName {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *fakeStore) StudentsOfTutor(tutorID int64) ([]models.User, error) {
	groups, _ := s.TutorGroups(tutorID)
	var out []models.User
	for _, g := range groups {
		students, _ := s.StudentsByGroup(g)
		out = append(out, students...)
	}
	return out, nil
}

func (s *fakeStore) AllStudents() ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Role == models.RoleStudent {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *fakeStore) UsersByRole(role models.Role) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *fakeStore) TutorCode(code string) (*models.TutorCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.tutorCodes[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.TutorCode{Code: code, UserID: userID}, nil
}

func (s *fakeStore) Stats() (*models.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &models.Stats{TotalUsers: len(s.users)}
	for _, u := range s.users {
		if u.IsProfUnion {
			st.ProfUnionUsers++
		}
		if u.IsSks {
			st.SksUsers++
		}
	}
	return st, nil
}

func (s *fakeStore) CreateEvent(e *models.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.AttendanceCode == e.AttendanceCode {
			return 0, database.ErrCodeTaken
		}
	}
	s.nextEventID++
	cp := *e
	cp.ID = s.nextEventID
	s.events[cp.ID] = &cp
	return cp.ID, nil
}

func (s *fakeStore) UpdateEventTitle(id int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Title = title
	return nil
}

func (s *fakeStore) DeleteEvent(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.events, id)
	return nil
}

func (s *fakeStore) UpcomingEvents(limit int) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.events {
		if len(out) == limit {
			break
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.Before(out[j].EventDate) })
	return out, nil
}

func (s *fakeStore) EventByCode(code string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.AttendanceCode == code {
			cp := *e
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeStore) RedeemAttendance(eventID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{eventID, userID}
	if s.attendance[key] {
		return database.ErrAlreadyMarked
	}
	s.attendance[key] = true
	if u, ok := s.users[userID]; ok {
		u.Points++
	}
	return nil
}

func (s *fakeStore) CreateQuestion(userID int64, question string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextQuestionID++
	s.questions[s.nextQuestionID] = &models.FaqQuestion{
		ID:       s.nextQuestionID,
		UserID:   userID,
		Question: question,
		Status:   models.FaqPending,
	}
	return s.nextQuestionID, nil
}

func (s *fakeStore) ClaimQuestion(questionID, tutorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok || q.Status != models.FaqPending {
		return database.ErrQuestionTaken
	}
	q.Status = models.FaqInProgress
	q.TutorID = tutorID
	return nil
}

func (s *fakeStore) AnswerQuestion(questionID int64, answer string) (*models.FaqQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	q.Answer = answer
	q.Status = models.FaqAnswered
	cp := *q
	return &cp, nil
}

func (s *fakeStore) CreateApplication(userID int64, photoFileID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applications[userID] = &models.SksApplication{
		UserID:      userID,
		PhotoFileID: photoFileID,
		Status:      models.SksPending,
	}
	return userID, nil
}

func (s *fakeStore) DecideApplication(userID int64, approve bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[userID]
	if !ok || app.Status != models.SksPending {
		return database.ErrAlreadyDecided
	}
	if approve {
		app.Status = models.SksApproved
		if u, uok := s.users[userID]; uok {
			u.IsSks = true
		}
	} else {
		app.Status = models.SksRejected
	}
	return nil
}

// fakeSender records outbound traffic per chat.
type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
	edits    []string
	captions []string
	answers  []string
}

type sentMessage struct {
	ChatID  int64
	Text    string
	PhotoID string
	DocID   string
	Markup  interface{}
}

func (f *fakeSender) SendMessage(chatID int64, text string, markup interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{ChatID: chatID, Text: text, Markup: markup})
	return nil
}

func (f *fakeSender) SendPhoto(chatID int64, fileID, caption string, markup interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{ChatID: chatID, Text: caption, PhotoID: fileID, Markup: markup})
	return nil
}

func (f *fakeSender) SendDocument(chatID int64, fileID, caption string, markup interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{ChatID: chatID, Text: caption, DocID: fileID, Markup: markup})
	return nil
}

func (f *fakeSender) EditMessage(chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeSender) EditCaption(chatID int64, messageID int, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captions = append(f.captions, caption)
	return nil
}

func (f *fakeSender) AnswerCallbackQuery(callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeSender) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1].Text
}

func (f *fakeSender) textsFor(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

// newTestHandler wires a handler over the fakes with the real fan-out.
func newTestHandler(store *fakeStore, secret string) (*Handler, *fakeSender) {
	sender := &fakeSender{}
	notifier := broadcast.New(sender, store)
	return New(sender, store, session.NewStore(), notifier, secret), sender
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, UserName: "user"},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}
}

func photoMessage(userID int64, fileID string) *tgbotapi.Message {
	m := textMessage(userID, "")
	m.Photo = []tgbotapi.PhotoSize{{FileID: fileID}}
	return m
}

func callbackFrom(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}, MessageID: 1},
	}
}
