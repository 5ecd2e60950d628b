package database

import "fmt"

func (db *DB) CreateApplication(userID int64, photoFileID string) (int64, error) {
	var id int64
	err := db.QueryRow(`
		INSERT INTO sks_applications (user_id, photo_file_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING id
	`, userID, photoFileID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create sks application: %w", err)
	}
	return id, nil
}

// DecideApplication approves or rejects the user's pending application.
// The update is guarded on status = 'pending': an already-decided
// application returns ErrAlreadyDecided instead of being re-applied.
// Approval also flips the user's sks flag, in the same transaction.
func (db *DB) DecideApplication(userID int64, approve bool) error {
	status := "rejected"
	if approve {
		status = "approved"
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE sks_applications SET status = $1
		WHERE user_id = $2 AND status = 'pending'
	`, status, userID)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyDecided
	}

	if approve {
		_, err = tx.Exec(`
			UPDATE users SET is_sks = TRUE, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1
		`, userID)
		if err != nil {
			return fmt.Errorf("failed to set sks flag: %w", err)
		}
	}

	return tx.Commit()
}
