package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minhnhutttt/la/internal/rbac"
	"github.com/minhnhutttt/la/internal/session"
)

// Claims identify the viewer. Tokens are issued by the account service;
// this package only verifies them.
type Claims struct {
	Sub          int64     `json:"sub"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	ProfileImage string    `json:"profile_image,omitempty"`
	Role         rbac.Role `json:"role"`
	JTI          string    `json:"jti"`
	Exp          int64     `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

func IssueToken(secret []byte, claims Claims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signature := sign(secret, payload)
	return payload + "." + signature, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Claims{}, ErrInvalidToken
	}
	payload := parts[0]
	signature := parts[1]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return Claims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Sub <= 0 || claims.JTI == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	if _, err := rbac.Parse(string(claims.Role)); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if time.Now().Unix() >= claims.Exp {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

// Session converts claims returned by ParseToken, whose role is already
// known to be valid, into the viewer session.
func (c Claims) Session() session.Session {
	return session.New(c.Role, session.User{
		ID:           c.Sub,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		ProfileImage: c.ProfileImage,
	})
}

// SessionFromToken resolves a bearer token. An empty token is the
// anonymous session; a bad token is an error.
func SessionFromToken(secret []byte, token string) (session.Session, error) {
	if token == "" {
		return session.Anonymous(), nil
	}
	claims, err := ParseToken(secret, token)
	if err != nil {
		return session.Session{}, err
	}
	return claims.Session(), nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
