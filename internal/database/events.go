package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Focusniks/ipmkn-bot/internal/models"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// CreateEvent inserts an event with its attendance code. The code column is
// unique; a collision with an existing event surfaces as ErrCodeTaken so the
// caller can regenerate.
func (db *DB) CreateEvent(e *models.Event) (int64, error) {
	var id int64
	err := db.QueryRow(`
		INSERT INTO events (title, event_date, attendance_code)
		VALUES ($1, $2, $3)
		RETURNING id
	`, e.Title, e.EventDate, e.AttendanceCode).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrCodeTaken
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create event: %w", err)
	}
	return id, nil
}

var ErrCodeTaken = errors.New("attendance code already in use")

func (db *DB) UpdateEventTitle(id int64, title string) error {
	res, err := db.Exec(`UPDATE events SET title = $1 WHERE id = $2`, title, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (db *DB) DeleteEvent(id int64) error {
	res, err := db.Exec(`DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (db *DB) UpcomingEvents(limit int) ([]models.Event, error) {
	rows, err := db.Query(`
		SELECT id, title, event_date, attendance_code, created_at
		FROM events
		WHERE event_date >= NOW()
		ORDER BY event_date
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.EventDate, &e.AttendanceCode, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (db *DB) EventByCode(code string) (*models.Event, error) {
	var e models.Event
	err := db.QueryRow(`
		SELECT id, title, event_date, attendance_code, created_at
		FROM events
		WHERE attendance_code = $1
	`, code).Scan(&e.ID, &e.Title, &e.EventDate, &e.AttendanceCode, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RedeemAttendance records the user's presence at the event and grants one
// point, atomically. The (event, user) pair is unique: a second redemption
// returns ErrAlreadyMarked and changes nothing.
func (db *DB) RedeemAttendance(eventID, userID int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO event_attendance (event_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (event_id, user_id) DO NOTHING
	`, eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to record attendance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyMarked
	}

	_, err = tx.Exec(`
		UPDATE users SET points = points + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to add attendance point: %w", err)
	}

	return tx.Commit()
}
