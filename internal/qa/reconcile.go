package qa

import (
	"dario.cat/mergo"

	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
)

// UnknownUserLabel is used when a session has no usable first/last name.
const UnknownUserLabel = "Unknown user"

// IdentityPath locates the identity-bearing nested object R on an entity E.
type IdentityPath[E, R any] struct {
	Name    string
	Get     func(E) *R
	Set     func(E, *R) E
	Present func(*R) bool
}

// Reconcile returns server unchanged when its nested identity is present.
// Otherwise the nested object becomes fallback, with any empty fallback
// field filled from the server's partial nested object. Top-level fields
// always come from server. Reconcile is idempotent for a fixed fallback.
func Reconcile[E, R any](server E, fallback *R, path IdentityPath[E, R]) E {
	current := path.Get(server)
	if current != nil && path.Present(current) {
		return server
	}
	if fallback == nil {
		return server
	}
	merged := *fallback
	if current != nil {
		if err := mergo.Merge(&merged, *current); err != nil {
			merged = *fallback
		}
	}
	return path.Set(server, &merged)
}

// NeedsBackfill reports whether Reconcile would substitute the nested object.
func NeedsBackfill[E, R any](server E, path IdentityPath[E, R]) bool {
	current := path.Get(server)
	return current == nil || !path.Present(current)
}

var QuestionOwnerPath = IdentityPath[store.Question, store.UserRef]{
	Name: "question.user.id",
	Get:  func(q store.Question) *store.UserRef { return q.User },
	Set: func(q store.Question, u *store.UserRef) store.Question {
		q.User = u
		return q
	},
	Present: func(u *store.UserRef) bool { return u.ID != 0 },
}

var AnswerLawyerPath = IdentityPath[store.Answer, store.LawyerRef]{
	Name: "answer.lawyer.user_id",
	Get:  func(a store.Answer) *store.LawyerRef { return a.Lawyer },
	Set: func(a store.Answer, l *store.LawyerRef) store.Answer {
		a.Lawyer = l
		return a
	},
	Present: func(l *store.LawyerRef) bool { return l.UserID != 0 },
}

// PriorOwner is the prior-state fallback for question edits.
func PriorOwner(q store.Question) *store.UserRef {
	if q.User == nil {
		return nil
	}
	owner := *q.User
	return &owner
}

// PriorLawyer is the prior-state fallback for answer edits.
func PriorLawyer(a store.Answer) *store.LawyerRef {
	if a.Lawyer == nil {
		return nil
	}
	lawyer := *a.Lawyer
	return &lawyer
}

// SessionLawyer is the session-identity fallback for newly created answers.
func SessionLawyer(s session.Session) *store.LawyerRef {
	name := s.FullName()
	if name == "" {
		name = UnknownUserLabel
	}
	return &store.LawyerRef{
		UserID:       s.User.ID,
		FullName:     name,
		ProfileImage: s.User.ProfileImage,
	}
}
