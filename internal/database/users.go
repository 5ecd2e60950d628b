package database

import (
	"database/sql"
	"fmt"

	"github.com/Focusniks/ipmkn-bot/internal/models"
)

const userColumns = `id, COALESCE(telegram_id, 0), COALESCE(telegram_username, ''),
	full_name, COALESCE(student_id, ''), role, COALESCE(group_name, ''),
	points, COALESCE(phone_number, ''), is_prof_union, is_sks, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.TelegramID, &u.TelegramUsername, &u.FullName, &u.StudentID,
		&u.Role, &u.GroupName, &u.Points, &u.PhoneNumber,
		&u.IsProfUnion, &u.IsSks, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (db *DB) scanUsers(rows *sql.Rows) ([]models.User, error) {
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		err := rows.Scan(
			&u.ID, &u.TelegramID, &u.TelegramUsername, &u.FullName, &u.StudentID,
			&u.Role, &u.GroupName, &u.Points, &u.PhoneNumber,
			&u.IsProfUnion, &u.IsSks, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *DB) UserByTelegramID(telegramID int64) (*models.User, error) {
	return scanUser(db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
}

func (db *DB) UserByID(id int64) (*models.User, error) {
	return scanUser(db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UserByFullName does an exact match against the pre-seeded roster.
func (db *DB) UserByFullName(fullName string) (*models.User, error) {
	return scanUser(db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE full_name = $1`, fullName))
}

func (db *DB) SearchUsers(term string) ([]models.User, error) {
	rows, err := db.Query(
		`SELECT `+userColumns+` FROM users WHERE full_name ILIKE $1 ORDER BY full_name`,
		"%"+term+"%")
	if err != nil {
		return nil, err
	}
	return db.scanUsers(rows)
}

func (db *DB) ListUsers(limit int) ([]models.User, error) {
	rows, err := db.Query(
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return db.scanUsers(rows)
}

// BindTelegram attaches a chat identity to a roster record. The update is
// conditional on the record having no identity yet: once bound, a record
// can never be rebound, so a second attempt returns ErrAlreadyBound.
func (db *DB) BindTelegram(userID, telegramID int64, username string) error {
	res, err := db.Exec(`
		UPDATE users
		SET telegram_id = $1, telegram_username = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND telegram_id IS NULL
	`, telegramID, username, userID)
	if err != nil {
		return fmt.Errorf("failed to bind telegram id: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyBound
	}
	return nil
}

func (db *DB) SetPhoneNumber(telegramID int64, phone string) error {
	_, err := db.Exec(`
		UPDATE users SET phone_number = $1, updated_at = CURRENT_TIMESTAMP
		WHERE telegram_id = $2
	`, phone, telegramID)
	return err
}

func (db *DB) AddPoints(userID int64, delta int) error {
	_, err := db.Exec(`
		UPDATE users SET points = points + $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`, delta, userID)
	return err
}

func (db *DB) SetProfUnion(telegramID int64) error {
	_, err := db.Exec(`
		UPDATE users SET is_prof_union = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE telegram_id = $1
	`, telegramID)
	return err
}

func (db *DB) SetRole(userID int64, role models.Role) error {
	res, err := db.Exec(`
		UPDATE users SET role = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`, role, userID)
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

// TutorGroups lists the group names supervised by the tutor.
func (db *DB) TutorGroups(tutorID int64) ([]string, error) {
	rows, err := db.Query(
		`SELECT group_name FROM tutor_groups WHERE tutor_id = $1 ORDER BY group_name`,
		tutorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (db *DB) AllGroups() ([]string, error) {
	rows, err := db.Query(
		`SELECT DISTINCT group_name FROM tutor_groups ORDER BY group_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupTutorName returns the full name of the first tutor assigned to the
// group, or "-" when the group has none.
func (db *DB) GroupTutorName(groupName string) (string, error) {
	var name string
	err := db.QueryRow(`
		SELECT u.full_name
		FROM tutor_groups tg
		JOIN users u ON u.id = tg.tutor_id AND u.role = 'tutor'
		WHERE tg.group_name = $1
		ORDER BY tg.id
		LIMIT 1
	`, groupName).Scan(&name)
	if err == sql.ErrNoRows {
		return "-", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func (db *DB) StudentsByGroup(groupName string) ([]models.User, error) {
	rows, err := db.Query(
		`SELECT `+userColumns+` FROM users
		 WHERE group_name = $1 AND role = 'student'
		 ORDER BY points DESC, full_name`, groupName)
	if err != nil {
		return nil, err
	}
	return db.scanUsers(rows)
}

// StudentsOfTutor lists students in every group the tutor supervises.
func (db *DB) StudentsOfTutor(tutorID int64) ([]models.User, error) {
	rows, err := db.Query(
		`SELECT `+userColumns+` FROM users
		 WHERE role = 'student'
		   AND group_name IN (SELECT group_name FROM tutor_groups WHERE tutor_id = $1)
		 ORDER BY group_name, points DESC`, tutorID)
	if err != nil {
		return nil, err
	}
	return db.scanUsers(rows)
}

func (db *DB) AllStudents() ([]models.User, error) {
	rows, err := db.Query(
		`SELECT ` + userColumns + ` FROM users WHERE role = 'student' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return db.scanUsers(rows)
}

func (db *DB) UsersByRole(role models.Role) ([]models.User, error) {
	rows, err := db.Query(
		`SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, role)
	if err != nil {
		return nil, err
	}
	return db.scanUsers(rows)
}

func (db *DB) TutorCode(code string) (*models.TutorCode, error) {
	var tc models.TutorCode
	err := db.QueryRow(
		`SELECT id, code, user_id FROM tutor_codes WHERE code = $1`, code,
	).Scan(&tc.ID, &tc.Code, &tc.UserID)
	if err != nil {
		return nil, err
	}
	return &tc, nil
}

func (db *DB) Stats() (*models.Stats, error) {
	var s models.Stats
	err := db.QueryRow(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_prof_union),
		       COUNT(*) FILTER (WHERE is_sks)
		FROM users
	`).Scan(&s.TotalUsers, &s.ProfUnionUsers, &s.SksUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return &s, nil
}
