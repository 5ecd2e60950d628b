package models

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

// User is a membership record. TelegramID is zero until the record is
// bound to a chat identity during onboarding; once set it is never
// rebound to a different account.
type User struct {
	ID               int64     `db:"id"`
	TelegramID       int64     `db:"telegram_id"`
	TelegramUsername string    `db:"telegram_username"`
	FullName         string    `db:"full_name"`
	StudentID        string    `db:"student_id"`
	Role             Role      `db:"role"`
	GroupName        string    `db:"group_name"`
	Points           int       `db:"points"`
	PhoneNumber      string    `db:"phone_number"`
	IsProfUnion      bool      `db:"is_prof_union"`
	IsSks            bool      `db:"is_sks"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// TutorCode is a one-time personal code that authenticates a tutor or
// admin record exactly once.
type TutorCode struct {
	ID     int64  `db:"id"`
	Code   string `db:"code"`
	UserID int64  `db:"user_id"`
}

type Event struct {
	ID             int64     `db:"id"`
	Title          string    `db:"title"`
	EventDate      time.Time `db:"event_date"`
	AttendanceCode string    `db:"attendance_code"`
	CreatedAt      time.Time `db:"created_at"`
}

type FaqStatus string

const (
	FaqPending    FaqStatus = "pending"
	FaqInProgress FaqStatus = "in_progress"
	FaqAnswered   FaqStatus = "answered"
)

type FaqQuestion struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Question  string    `db:"question"`
	Status    FaqStatus `db:"status"`
	TutorID   int64     `db:"tutor_id"`
	Answer    string    `db:"answer"`
	CreatedAt time.Time `db:"created_at"`
}

type SksStatus string

const (
	SksPending  SksStatus = "pending"
	SksApproved SksStatus = "approved"
	SksRejected SksStatus = "rejected"
)

type SksApplication struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	PhotoFileID string    `db:"photo_file_id"`
	Status      SksStatus `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

// Stats is the aggregate shown to staff via /stats.
type Stats struct {
	TotalUsers     int
	ProfUnionUsers int
	SksUsers       int
}
