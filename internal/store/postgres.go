package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/minhnhutttt/la/internal/session"
)

var (
	ErrNotPermitted = errors.New("not permitted")
	ErrNoSession    = errors.New("no session in context")
)

// MessageError carries a message meant for the person who triggered a mutation.
type MessageError struct {
	Message string
	Err     error
}

func (e *MessageError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown next to the failed edit.
func (e *MessageError) UserMessage() string {
	return e.Message
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetQuestion returns nil, nil when the question does not exist.
func (s *PostgresStore) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	const query = `
		SELECT q.id, q.title, q.content, q.status, q.is_anonymous, q.created_at,
			u.id, u.first_name, u.last_name, u.profile_image
		FROM questions q
		JOIN users u ON u.id = q.user_id
		WHERE q.id = $1
	`
	var (
		question Question
		owner    UserRef
		status   string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&question.ID, &question.Title, &question.Content, &status, &question.IsAnonymous, &question.CreatedAt,
		&owner.ID, &owner.FirstName, &owner.LastName, &owner.ProfileImage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question %d: %w", id, err)
	}
	question.Status = QuestionStatus(status)
	question.User = &owner
	return &question, nil
}

// ListAnswers returns the thread most recent first.
func (s *PostgresStore) ListAnswers(ctx context.Context, questionID int64) ([]Answer, error) {
	const query = `
		SELECT a.id, a.question_id, a.content, a.created_at,
			lp.id, lp.user_id, lp.office_name,
			u.first_name, u.last_name, u.profile_image
		FROM answers a
		JOIN lawyer_profiles lp ON lp.id = a.lawyer_id
		JOIN users u ON u.id = lp.user_id
		WHERE a.question_id = $1
		ORDER BY a.created_at DESC, a.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers for question %d: %w", questionID, err)
	}
	defer rows.Close()

	answers := make([]Answer, 0)
	for rows.Next() {
		var (
			answer    Answer
			lawyer    LawyerRef
			firstName string
			lastName  string
		)
		if err := rows.Scan(
			&answer.ID, &answer.QuestionID, &answer.Content, &answer.CreatedAt,
			&lawyer.ID, &lawyer.UserID, &lawyer.OfficeName,
			&firstName, &lastName, &lawyer.ProfileImage,
		); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		lawyer.FullName = (&UserRef{FirstName: firstName, LastName: lastName}).FullName()
		answer.Lawyer = &lawyer
		answers = append(answers, answer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return answers, nil
}

// UpdateQuestion applies the patch for the owning client. The returned row
// carries no owner reference.
func (s *PostgresStore) UpdateQuestion(ctx context.Context, id int64, patch QuestionPatch) (Question, error) {
	caller, ok := session.FromContext(ctx)
	if !ok || !caller.Authenticated {
		return Question{}, ErrNoSession
	}
	const query = `
		UPDATE questions
		SET title = COALESCE($3, title),
			content = COALESCE($4, content),
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING id, title, content, status, is_anonymous, created_at
	`
	var (
		question Question
		status   string
	)
	err := s.db.QueryRowContext(ctx, query, id, caller.User.ID, nullableString(patch.Title), nullableString(patch.Content)).Scan(
		&question.ID, &question.Title, &question.Content, &status, &question.IsAnonymous, &question.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, &MessageError{Message: "Question not found or not owned by you", Err: ErrNotPermitted}
	}
	if err != nil {
		return Question{}, fmt.Errorf("update question %d: %w", id, err)
	}
	question.Status = QuestionStatus(status)
	return question, nil
}

// CreateAnswer inserts an answer authored by the verified lawyer in the
// context session. Only the lawyer's profile id is returned.
func (s *PostgresStore) CreateAnswer(ctx context.Context, input AnswerInput) (Answer, error) {
	caller, ok := session.FromContext(ctx)
	if !ok || !caller.Authenticated {
		return Answer{}, ErrNoSession
	}
	const query = `
		INSERT INTO answers (question_id, lawyer_id, content)
		SELECT q.id, lp.id, $3
		FROM questions q, lawyer_profiles lp
		WHERE q.id = $1 AND lp.user_id = $2 AND lp.is_verified
		RETURNING id, question_id, content, lawyer_id, created_at
	`
	var (
		answer   Answer
		lawyerID int64
	)
	err := s.db.QueryRowContext(ctx, query, input.QuestionID, caller.User.ID, input.Content).Scan(
		&answer.ID, &answer.QuestionID, &answer.Content, &lawyerID, &answer.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Answer{}, &MessageError{Message: "Only verified lawyers can answer this question", Err: ErrNotPermitted}
	}
	if err != nil {
		return Answer{}, fmt.Errorf("create answer: %w", err)
	}
	answer.Lawyer = &LawyerRef{ID: lawyerID}
	return answer, nil
}

// UpdateAnswer rewrites the content of an answer owned by the context
// session's lawyer. The returned row has no lawyer object.
func (s *PostgresStore) UpdateAnswer(ctx context.Context, id int64, content string) (Answer, error) {
	caller, ok := session.FromContext(ctx)
	if !ok || !caller.Authenticated {
		return Answer{}, ErrNoSession
	}
	const query = `
		UPDATE answers a
		SET content = $3, updated_at = NOW()
		FROM lawyer_profiles lp
		WHERE a.id = $1 AND a.lawyer_id = lp.id AND lp.user_id = $2
		RETURNING a.id, a.question_id, a.content, a.created_at
	`
	var answer Answer
	err := s.db.QueryRowContext(ctx, query, id, caller.User.ID, content).Scan(
		&answer.ID, &answer.QuestionID, &answer.Content, &answer.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Answer{}, &MessageError{Message: "Answer not found or not owned by you", Err: ErrNotPermitted}
	}
	if err != nil {
		return Answer{}, fmt.Errorf("update answer %d: %w", id, err)
	}
	return answer, nil
}

// GetLawyerProfileByUserID returns sql.ErrNoRows when the user has no profile.
func (s *PostgresStore) GetLawyerProfileByUserID(ctx context.Context, userID int64) (LawyerProfile, error) {
	const query = `
		SELECT lp.id, lp.user_id, u.first_name, u.last_name, lp.office_name, lp.is_verified, lp.updated_at
		FROM lawyer_profiles lp
		JOIN users u ON u.id = lp.user_id
		WHERE lp.user_id = $1
	`
	var (
		profile   LawyerProfile
		firstName string
		lastName  string
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.ID, &profile.UserID, &firstName, &lastName, &profile.OfficeName, &profile.IsVerified, &profile.UpdatedAt,
	)
	if err != nil {
		return LawyerProfile{}, fmt.Errorf("get lawyer profile for user %d: %w", userID, err)
	}
	profile.FullName = (&UserRef{FirstName: firstName, LastName: lastName}).FullName()
	return profile, nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
