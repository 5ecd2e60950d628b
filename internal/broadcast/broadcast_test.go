package broadcast

import (
	"errors"
	"sync"
	"testing"

	"github.com/Focusniks/ipmkn-bot/internal/models"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []int64
	failFor  map[int64]bool
	photoIDs []string
	docIDs   []string
}

func (f *fakeSender) record(chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return errors.New("delivery failed")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func (f *fakeSender) SendMessage(chatID int64, text string, markup interface{}) error {
	return f.record(chatID)
}

func (f *fakeSender) SendPhoto(chatID int64, fileID, caption string, markup interface{}) error {
	f.mu.Lock()
	f.photoIDs = append(f.photoIDs, fileID)
	f.mu.Unlock()
	return f.record(chatID)
}

func (f *fakeSender) SendDocument(chatID int64, fileID, caption string, markup interface{}) error {
	f.mu.Lock()
	f.docIDs = append(f.docIDs, fileID)
	f.mu.Unlock()
	return f.record(chatID)
}

type fakeDirectory struct {
	students []models.User
	byRole   map[models.Role][]models.User
	byID     map[int64]models.User
}

func (f *fakeDirectory) AllStudents() ([]models.User, error) { return f.students, nil }

func (f *fakeDirectory) StudentsByGroup(group string) ([]models.User, error) {
	var out []models.User
	for _, u := range f.students {
		if u.GroupName == group {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) UsersByRole(role models.Role) ([]models.User, error) {
	return f.byRole[role], nil
}

func (f *fakeDirectory) UserByID(id int64) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &u, nil
}

func student(id, telegramID int64, group string) models.User {
	return models.User{ID: id, TelegramID: telegramID, GroupName: group, Role: models.RoleStudent}
}

// TestSendCountsFailuresInAggregate verifies that k failed deliveries out
// of N recipients yield Attempted=N, Succeeded=N-k and no abort.
func TestSendCountsFailuresInAggregate(t *testing.T) {
	dir := &fakeDirectory{students: []models.User{
		student(1, 101, "A"), student(2, 102, "A"),
		student(3, 103, "B"), student(4, 104, "B"), student(5, 105, "B"),
	}}
	sender := &fakeSender{failFor: map[int64]bool{102: true, 104: true}}

	res, err := New(sender, dir).Send(AllStudents(), Payload{Text: "hi"})
	if err == nil {
		t.Fatal("expected aggregated send errors")
	}
	if res.Attempted != 5 {
		t.Fatalf("expected 5 attempted, got %d", res.Attempted)
	}
	if res.Succeeded != 3 {
		t.Fatalf("expected 3 succeeded, got %d", res.Succeeded)
	}
	if len(sender.sent) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(sender.sent))
	}
}

func TestSendSkipsUnboundRecipients(t *testing.T) {
	dir := &fakeDirectory{students: []models.User{
		student(1, 101, "A"),
		student(2, 0, "A"), // never onboarded, no chat identity
	}}
	sender := &fakeSender{}

	res, err := New(sender, dir).Send(Group("A"), Payload{Text: "hi"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if res.Attempted != 1 || res.Succeeded != 1 {
		t.Fatalf("expected 1/1, got %d/%d", res.Succeeded, res.Attempted)
	}
}

func TestSendResolvesRoleAudience(t *testing.T) {
	dir := &fakeDirectory{byRole: map[models.Role][]models.User{
		models.RoleTutor: {{ID: 7, TelegramID: 701, Role: models.RoleTutor}},
	}}
	sender := &fakeSender{}

	res, err := New(sender, dir).Send(Role(models.RoleTutor), Payload{Text: "q"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if res.Attempted != 1 || res.Succeeded != 1 {
		t.Fatalf("expected 1/1, got %d/%d", res.Succeeded, res.Attempted)
	}
	if sender.sent[0] != 701 {
		t.Fatalf("expected delivery to 701, got %d", sender.sent[0])
	}
}

func TestSendSingleUserAudience(t *testing.T) {
	dir := &fakeDirectory{byID: map[int64]models.User{
		9: {ID: 9, TelegramID: 901, Role: models.RoleStudent},
	}}
	sender := &fakeSender{}

	res, err := New(sender, dir).Send(SingleUser(9), Payload{Text: "answer"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if res.Attempted != 1 || res.Succeeded != 1 {
		t.Fatalf("expected 1/1, got %d/%d", res.Succeeded, res.Attempted)
	}
}

// TestSendDispatchesOnPayloadKind checks the photo/document variants reach
// the matching transport call.
func TestSendDispatchesOnPayloadKind(t *testing.T) {
	dir := &fakeDirectory{students: []models.User{student(1, 101, "A")}}

	sender := &fakeSender{}
	if _, err := New(sender, dir).Send(AllStudents(), Payload{PhotoID: "photo-1", Caption: "c"}); err != nil {
		t.Fatalf("photo send: %v", err)
	}
	if len(sender.photoIDs) != 1 || sender.photoIDs[0] != "photo-1" {
		t.Fatalf("expected photo delivery, got %v", sender.photoIDs)
	}

	sender = &fakeSender{}
	if _, err := New(sender, dir).Send(AllStudents(), Payload{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("document send: %v", err)
	}
	if len(sender.docIDs) != 1 || sender.docIDs[0] != "doc-1" {
		t.Fatalf("expected document delivery, got %v", sender.docIDs)
	}
}
