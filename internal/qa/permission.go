package qa

import (
	"github.com/minhnhutttt/la/internal/rbac"
	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
)

// IsQuestionOwner holds for the authenticated client whose id matches the
// question's owner reference.
func IsQuestionOwner(q *store.Question, s session.Session) bool {
	if q == nil || q.User == nil || !s.Authenticated {
		return false
	}
	switch s.Role {
	case rbac.RoleClient:
		return rbac.Can(s.Role, rbac.ActionEditQuestion) && s.User.ID != 0 && s.User.ID == q.User.ID
	case rbac.RoleLawyer, rbac.RoleAdmin:
		return false
	default:
		return false
	}
}

// IsAnswerOwner holds for the authenticated lawyer whose id matches the
// answer's lawyer.user_id.
func IsAnswerOwner(a store.Answer, s session.Session) bool {
	if a.Lawyer == nil || a.Lawyer.UserID == 0 || !s.Authenticated {
		return false
	}
	switch s.Role {
	case rbac.RoleLawyer:
		return rbac.Can(s.Role, rbac.ActionEditAnswer) && s.User.ID == a.Lawyer.UserID
	case rbac.RoleClient, rbac.RoleAdmin:
		return false
	default:
		return false
	}
}

// CanAuthorAnswer holds only for a lawyer whose credential check finished
// as verified. Checking is not authorization.
func CanAuthorAnswer(s session.Session, state VerificationState) bool {
	switch s.Role {
	case rbac.RoleLawyer:
		return s.Authenticated && rbac.Can(s.Role, rbac.ActionAuthorAnswer) && state == VerificationVerified
	case rbac.RoleClient, rbac.RoleAdmin:
		return false
	default:
		return false
	}
}
