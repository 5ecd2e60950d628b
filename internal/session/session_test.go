package session

import "testing"

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()

	if store.Get(1) != nil {
		t.Fatal("expected no session for unknown user")
	}

	store.Set(1, &Session{State: StateAwaitFullName})
	sess := store.Get(1)
	if sess == nil || sess.State != StateAwaitFullName {
		t.Fatalf("unexpected session: %+v", sess)
	}

	// Sessions are per user.
	if store.Get(2) != nil {
		t.Fatal("expected no session for other user")
	}

	store.Clear(1)
	if store.Get(1) != nil {
		t.Fatal("expected session cleared")
	}
}

func TestClearFlowKeepsState(t *testing.T) {
	sess := &Session{
		State:         StateMenu,
		Flow:          FlowEventDate,
		EventTitle:    "Открытие",
		EventID:       3,
		FaqQuestionID: 8,
	}

	sess.ClearFlow()

	if sess.State != StateMenu {
		t.Fatalf("expected menu state preserved, got %v", sess.State)
	}
	if sess.Flow != FlowNone || sess.EventTitle != "" || sess.EventID != 0 || sess.FaqQuestionID != 0 {
		t.Fatalf("expected flow data cleared, got %+v", sess)
	}
}
