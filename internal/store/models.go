package store

import (
	"strings"
	"time"
)

type QuestionStatus string

const (
	QuestionOpen   QuestionStatus = "open"
	QuestionClosed QuestionStatus = "closed"
)

// UserRef is the owner reference carried by a question.
type UserRef struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// FullName joins first and last name, or returns "" when either is missing.
func (u *UserRef) FullName() string {
	if u == nil {
		return ""
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	if first == "" || last == "" {
		return ""
	}
	return first + " " + last
}

type Question struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Status      QuestionStatus `json:"status"`
	IsAnonymous bool           `json:"is_anonymous"`
	User        *UserRef       `json:"user,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// LawyerRef is the relational lawyer object embedded in an answer.
// UserID is the only field used for ownership; zero means unresolved.
type LawyerRef struct {
	ID           int64  `json:"id,omitempty"`
	UserID       int64  `json:"user_id,omitempty"`
	FullName     string `json:"full_name,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
	OfficeName   string `json:"office_name,omitempty"`
}

type Answer struct {
	ID         int64      `json:"id"`
	QuestionID int64      `json:"question_id"`
	Content    string     `json:"content"`
	Lawyer     *LawyerRef `json:"lawyer,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// QuestionPatch carries the editable question fields. Nil fields are left untouched.
type QuestionPatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

type AnswerInput struct {
	Content    string `json:"content"`
	QuestionID int64  `json:"question_id"`
}

type LawyerProfile struct {
	ID         int64
	UserID     int64
	FullName   string
	OfficeName string
	IsVerified bool
	UpdatedAt  time.Time
}
