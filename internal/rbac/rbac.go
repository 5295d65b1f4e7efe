package rbac

import "fmt"

type Role string
type Action string

const (
	RoleClient Role = "client"
	RoleLawyer Role = "lawyer"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead          Action = "read"
	ActionAskQuestion   Action = "ask_question"
	ActionEditQuestion  Action = "edit_question"
	ActionAuthorAnswer  Action = "author_answer"
	ActionEditAnswer    Action = "edit_answer"
	ActionVerifyLawyers Action = "verify_lawyers"
)

// Can reports whether the role may ever perform the action. Ownership and
// verification are checked separately by the callers.
func Can(role Role, action Action) bool {
	switch role {
	case RoleClient:
		return action == ActionRead || action == ActionAskQuestion || action == ActionEditQuestion
	case RoleLawyer:
		return action == ActionRead || action == ActionAuthorAnswer || action == ActionEditAnswer
	case RoleAdmin:
		return action == ActionRead || action == ActionVerifyLawyers
	default:
		return false
	}
}

// Parse accepts only the three known roles.
func Parse(role string) (Role, error) {
	switch Role(role) {
	case RoleClient, RoleLawyer, RoleAdmin:
		return Role(role), nil
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}
