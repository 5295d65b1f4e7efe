package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minhnhutttt/la/internal/auth"
	"github.com/minhnhutttt/la/internal/config"
	"github.com/minhnhutttt/la/internal/rbac"
	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
)

const testSecret = "test-secret"

type fakeStore struct {
	getQuestionFn    func(context.Context, int64) (*store.Question, error)
	listAnswersFn    func(context.Context, int64) ([]store.Answer, error)
	updateQuestionFn func(context.Context, int64, store.QuestionPatch) (store.Question, error)
	createAnswerFn   func(context.Context, store.AnswerInput) (store.Answer, error)
	updateAnswerFn   func(context.Context, int64, string) (store.Answer, error)
	pingFn           func(context.Context) error
}

func (f *fakeStore) GetQuestion(ctx context.Context, id int64) (*store.Question, error) {
	if f.getQuestionFn != nil {
		return f.getQuestionFn(ctx, id)
	}
	return &store.Question{
		ID:      id,
		Title:   "Can my landlord keep my deposit?",
		Content: "The lease ended a month ago and nothing has been returned so far.",
		Status:  store.QuestionOpen,
		User:    &store.UserRef{ID: 3, FirstName: "Cora", LastName: "Client"},
	}, nil
}

func (f *fakeStore) ListAnswers(ctx context.Context, questionID int64) ([]store.Answer, error) {
	if f.listAnswersFn != nil {
		return f.listAnswersFn(ctx, questionID)
	}
	return []store.Answer{}, nil
}

func (f *fakeStore) UpdateQuestion(ctx context.Context, id int64, patch store.QuestionPatch) (store.Question, error) {
	if f.updateQuestionFn != nil {
		return f.updateQuestionFn(ctx, id, patch)
	}
	return store.Question{ID: id, Title: *patch.Title, Content: *patch.Content, Status: store.QuestionOpen}, nil
}

func (f *fakeStore) CreateAnswer(ctx context.Context, input store.AnswerInput) (store.Answer, error) {
	if f.createAnswerFn != nil {
		return f.createAnswerFn(ctx, input)
	}
	return store.Answer{ID: 55, QuestionID: input.QuestionID, Content: input.Content, Lawyer: &store.LawyerRef{}}, nil
}

func (f *fakeStore) UpdateAnswer(ctx context.Context, id int64, content string) (store.Answer, error) {
	if f.updateAnswerFn != nil {
		return f.updateAnswerFn(ctx, id, content)
	}
	return store.Answer{ID: id, Content: content}, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeVerifier struct {
	mu        sync.Mutex
	verified  map[int64]bool
	err       error
	forgotten []int64
}

func (f *fakeVerifier) VerifyLawyer(_ context.Context, s session.Session) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.verified[s.User.ID], nil
}

func (f *fakeVerifier) Forget(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, userID)
	return nil
}

func (f *fakeVerifier) setVerified(userID int64, verified bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified[userID] = verified
}

func newTestService(fs *fakeStore, fv *fakeVerifier, opts ...Option) *Service {
	if fv == nil {
		fv = &fakeVerifier{}
	}
	cfg := config.Config{TokenSecret: testSecret, ViewTTL: time.Minute}
	return New(cfg, fs, fv, opts...)
}

func tokenFor(t *testing.T, id int64, role, first, last string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub:       id,
		FirstName: first,
		LastName:  last,
		Role:      rbac.Role(role),
		JTI:       "jti",
		Exp:       time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

var errConnRefused = errors.New("connection refused")
