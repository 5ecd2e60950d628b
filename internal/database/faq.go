package database

import (
	"fmt"

	"github.com/Focusniks/ipmkn-bot/internal/models"
)

func (db *DB) CreateQuestion(userID int64, question string) (int64, error) {
	var id int64
	err := db.QueryRow(`
		INSERT INTO faq_questions (user_id, question, status)
		VALUES ($1, $2, 'pending')
		RETURNING id
	`, userID, question).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create question: %w", err)
	}
	return id, nil
}

// ClaimQuestion moves a question to in_progress for the claiming tutor.
// The update is conditional on the question still being pending, so the
// first claim wins and every later claimant gets ErrQuestionTaken.
func (db *DB) ClaimQuestion(questionID, tutorID int64) error {
	res, err := db.Exec(`
		UPDATE faq_questions SET status = 'in_progress', tutor_id = $1
		WHERE id = $2 AND status = 'pending'
	`, tutorID, questionID)
	if err != nil {
		return fmt.Errorf("failed to claim question: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrQuestionTaken
	}
	return nil
}

// AnswerQuestion stores the answer, marks the question answered and returns
// the question so the caller can deliver the answer to the asker.
func (db *DB) AnswerQuestion(questionID int64, answer string) (*models.FaqQuestion, error) {
	var q models.FaqQuestion
	err := db.QueryRow(`
		UPDATE faq_questions SET answer = $1, status = 'answered'
		WHERE id = $2
		RETURNING id, user_id, question, status, COALESCE(tutor_id, 0), COALESCE(answer, ''), created_at
	`, answer, questionID).Scan(
		&q.ID, &q.UserID, &q.Question, &q.Status, &q.TutorID, &q.Answer, &q.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to answer question: %w", err)
	}
	return &q, nil
}
