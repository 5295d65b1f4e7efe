// Package session holds the read-only viewer capability passed into every
// permission check and store operation.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/minhnhutttt/la/internal/rbac"
)

type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	ProfileImage string `json:"profile_image"`
}

// Session is a snapshot of the current viewer. The zero value is an
// anonymous, unauthenticated viewer.
type Session struct {
	Authenticated bool      `json:"authenticated"`
	Role          rbac.Role `json:"role,omitempty"`
	User          User      `json:"user"`
}

func Anonymous() Session {
	return Session{}
}

func New(role rbac.Role, user User) Session {
	return Session{Authenticated: true, Role: role, User: user}
}

// Is reports whether the session is authenticated with the given role.
func (s Session) Is(role rbac.Role) bool {
	return s.Authenticated && s.Role == role
}

// FullName joins first and last name; empty when either part is missing.
func (s Session) FullName() string {
	first := strings.TrimSpace(s.User.FirstName)
	last := strings.TrimSpace(s.User.LastName)
	if first == "" || last == "" {
		return ""
	}
	return first + " " + last
}

// Key identifies the parts of the session that, when changed, invalidate
// any derived verification state.
func (s Session) Key() string {
	if !s.Authenticated {
		return "anonymous"
	}
	return fmt.Sprintf("%s:%d", s.Role, s.User.ID)
}

type contextKey struct{}

func WithContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}
