package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sessionColumns = `id, user_id, company_name, job_title, resume_filename,
	resume_text, job_description, questions, answers, created_at, updated_at, is_active`

// Repository persists interview sessions. Every read and write carries a
// user_id predicate, so ownership is enforced by the query itself.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var questionsRaw, answersRaw []byte

	err := row.Scan(&s.ID, &s.UserID, &s.CompanyName, &s.JobTitle, &s.ResumeFilename,
		&s.ResumeText, &s.JobDescription, &questionsRaw, &answersRaw,
		&s.CreatedAt, &s.UpdatedAt, &s.IsActive)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questionsRaw, &s.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if err := json.Unmarshal(answersRaw, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if s.Questions == nil {
		s.Questions = []Question{}
	}
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}

	return &s, nil
}

func (r *Repository) Create(ctx context.Context, userID string, input CreateInput) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	s := &Session{
		ID:             id.String(),
		UserID:         userID,
		CompanyName:    input.CompanyName,
		JobTitle:       input.JobTitle,
		ResumeFilename: input.ResumeFilename,
		ResumeText:     input.ResumeText,
		JobDescription: input.JobDescription,
		Questions:      []Question{},
		Answers:        map[string]string{},
		CreatedAt:      now,
		UpdatedAt:      now,
		IsActive:       true,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO interview_sessions (id, user_id, company_name, job_title, resume_filename,
			resume_text, job_description, questions, answers, created_at, updated_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb, '{}'::jsonb, $8, $9, TRUE)
	`, s.ID, s.UserID, s.CompanyName, s.JobTitle, s.ResumeFilename,
		s.ResumeText, s.JobDescription, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return s, nil
}

func (r *Repository) Get(ctx context.Context, id, userID string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM interview_sessions
		WHERE id = $1 AND user_id = $2
	`, id, userID)

	s, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	return s, nil
}

func (r *Repository) List(ctx context.Context, userID string, activeOnly bool) ([]*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM interview_sessions
		WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// Update applies the non-nil fields of input. sql.ErrNoRows means the session
// does not exist or belongs to someone else; the two are indistinguishable.
func (r *Repository) Update(ctx context.Context, id, userID string, input UpdateInput) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE interview_sessions
		SET company_name    = COALESCE($3, company_name),
		    job_title       = COALESCE($4, job_title),
		    resume_filename = COALESCE($5, resume_filename),
		    resume_text     = COALESCE($6, resume_text),
		    job_description = COALESCE($7, job_description),
		    updated_at      = $8
		WHERE id = $1 AND user_id = $2
		RETURNING `+sessionColumns+`
	`, id, userID, input.CompanyName, input.JobTitle, input.ResumeFilename,
		input.ResumeText, input.JobDescription, time.Now().UTC())

	s, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update session: %w", err)
	}

	return s, nil
}

// SetQuestions replaces the session's question list.
func (r *Repository) SetQuestions(ctx context.Context, id, userID string, questions []Question) (*Session, error) {
	encoded, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("encode questions: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE interview_sessions
		SET questions = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2
		RETURNING `+sessionColumns+`
	`, id, userID, encoded, time.Now().UTC())

	s, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("set questions: %w", err)
	}

	return s, nil
}

// SetAnswers replaces the session's answer map.
func (r *Repository) SetAnswers(ctx context.Context, id, userID string, answers map[string]string) (*Session, error) {
	encoded, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE interview_sessions
		SET answers = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2
		RETURNING `+sessionColumns+`
	`, id, userID, encoded, time.Now().UTC())

	s, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("set answers: %w", err)
	}

	return s, nil
}

// SoftDelete marks the session inactive. Already-inactive sessions still
// report found, so the operation is idempotent.
func (r *Repository) SoftDelete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE interview_sessions
		SET is_active = FALSE, updated_at = $3
		WHERE id = $1 AND user_id = $2
	`, id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *Repository) PermanentDelete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM interview_sessions WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// Search matches active sessions on company name or job title,
// case-insensitively.
func (r *Repository) Search(ctx context.Context, userID, query string) ([]*Session, error) {
	pattern := "%" + query + "%"

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM interview_sessions
		WHERE user_id = $1 AND is_active
		  AND (company_name ILIKE $2 OR job_title ILIKE $2)
		ORDER BY updated_at DESC
	`, userID, pattern)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// CountForUser counts every session the user owns, active or not.
func (r *Repository) CountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM interview_sessions WHERE user_id = $1
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}

	return count, nil
}

// DeleteInactiveBefore removes soft-deleted sessions untouched since cutoff.
// Used by the maintenance endpoint.
func (r *Repository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM interview_sessions
		WHERE id IN (
			SELECT id FROM interview_sessions
			WHERE NOT is_active AND updated_at < $1
			LIMIT $2
		)
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete inactive sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return affected, nil
}
