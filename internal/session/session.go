package session

import "sync"

// State is the top-level dialogue state for one user.
type State int

const (
	StateNone State = iota
	StateAwaitFullName
	StateAwaitNameConfirm
	StateAwaitTutorCode
	StateAwaitPersonalCode
	StateAwaitPhone
	StateMenu
	StateAwaitSksPhoto
	StateAwaitGroupChoice
	StateAwaitBroadcastBody
)

// Flow is a pending sub-flow inside the Menu state. Short prompt/response
// exchanges live here instead of getting their own top-level state.
type Flow int

const (
	FlowNone Flow = iota
	FlowUserSearch
	FlowAskQuestion
	FlowFaqAnswer
	FlowEventTitle
	FlowEventDate
	FlowEventEditID
	FlowEventEditTitle
	FlowEventDelete
	FlowAttendanceCode
	FlowPointsGroup
)

// Session holds the transient conversation data for one user. Only the
// fields relevant to the current state/flow are meaningful; everything is
// discarded when the conversation ends or a flow completes.
type Session struct {
	State State
	Flow  Flow

	// PendingUserID is the record proposed during name confirmation.
	PendingUserID int64

	// EventTitle and EventID carry data between turns of the event
	// management sub-flows.
	EventTitle string
	EventID    int64

	// FaqQuestionID is the claimed question awaiting the tutor's answer.
	FaqQuestionID int64

	// Broadcast audience chosen in AwaitGroupChoice: a group name, or all
	// groups when BroadcastAll is set.
	BroadcastGroup string
	BroadcastAll   bool
}

// ClearFlow resets the pending sub-flow and its captured data, keeping the
// top-level state.
func (s *Session) ClearFlow() {
	s.Flow = FlowNone
	s.EventTitle = ""
	s.EventID = 0
	s.FaqQuestionID = 0
}

// Store keeps sessions per telegram user id. Different users' updates may
// be handled concurrently by the host loop, so access is mutex-guarded.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Get returns the user's session, or nil when no conversation is active.
func (s *Store) Get(userID int64) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sessions[userID]
}

func (s *Store) Set(userID int64, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[userID] = sess
}

// Clear ends the user's conversation, discarding all session data.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
}
