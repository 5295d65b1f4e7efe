package qa

import (
	"context"
	"errors"
	"sync"

	"github.com/minhnhutttt/la/internal/rbac"
	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
)

type fakeGateway struct {
	getQuestionFn    func(context.Context, int64) (*store.Question, error)
	listAnswersFn    func(context.Context, int64) ([]store.Answer, error)
	updateQuestionFn func(context.Context, int64, store.QuestionPatch) (store.Question, error)
	createAnswerFn   func(context.Context, store.AnswerInput) (store.Answer, error)
	updateAnswerFn   func(context.Context, int64, string) (store.Answer, error)

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeGateway) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeGateway) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) GetQuestion(ctx context.Context, id int64) (*store.Question, error) {
	f.count("GetQuestion")
	if f.getQuestionFn != nil {
		return f.getQuestionFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeGateway) ListAnswers(ctx context.Context, questionID int64) ([]store.Answer, error) {
	f.count("ListAnswers")
	if f.listAnswersFn != nil {
		return f.listAnswersFn(ctx, questionID)
	}
	return []store.Answer{}, nil
}

func (f *fakeGateway) UpdateQuestion(ctx context.Context, id int64, patch store.QuestionPatch) (store.Question, error) {
	f.count("UpdateQuestion")
	if f.updateQuestionFn != nil {
		return f.updateQuestionFn(ctx, id, patch)
	}
	return store.Question{}, errors.New("not implemented")
}

func (f *fakeGateway) CreateAnswer(ctx context.Context, input store.AnswerInput) (store.Answer, error) {
	f.count("CreateAnswer")
	if f.createAnswerFn != nil {
		return f.createAnswerFn(ctx, input)
	}
	return store.Answer{}, errors.New("not implemented")
}

func (f *fakeGateway) UpdateAnswer(ctx context.Context, id int64, content string) (store.Answer, error) {
	f.count("UpdateAnswer")
	if f.updateAnswerFn != nil {
		return f.updateAnswerFn(ctx, id, content)
	}
	return store.Answer{}, errors.New("not implemented")
}

type fakeVerifier struct {
	verifyFn func(context.Context, session.Session) (bool, error)
}

func (f *fakeVerifier) VerifyLawyer(ctx context.Context, s session.Session) (bool, error) {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, s)
	}
	return true, nil
}

func clientSession(id int64) session.Session {
	return session.New(rbac.RoleClient, session.User{ID: id, FirstName: "Cora", LastName: "Client"})
}

func lawyerSession(id int64) session.Session {
	return session.New(rbac.RoleLawyer, session.User{ID: id, FirstName: "A", LastName: "B", ProfileImage: "https://img.example/a.png"})
}

func sampleQuestion() *store.Question {
	return &store.Question{
		ID:      7,
		Title:   "Can my landlord keep my deposit?",
		Content: "The lease ended a month ago and nothing has been returned so far.",
		Status:  store.QuestionOpen,
		User:    &store.UserRef{ID: 3, FirstName: "Cora", LastName: "Client"},
	}
}

func sampleAnswer(id, lawyerUserID int64, content string) store.Answer {
	return store.Answer{
		ID:         id,
		QuestionID: 7,
		Content:    content,
		Lawyer:     &store.LawyerRef{ID: 100 + lawyerUserID, UserID: lawyerUserID, FullName: "A B", OfficeName: "AB Law"},
	}
}

// loadedPage returns a page with sampleQuestion and the given answers loaded
// and the session applied. Verification is waited for.
func loadedPage(gw *fakeGateway, verifier Verifier, sess session.Session, answers ...store.Answer) *Page {
	if gw.getQuestionFn == nil {
		gw.getQuestionFn = func(context.Context, int64) (*store.Question, error) { return sampleQuestion(), nil }
	}
	if gw.listAnswersFn == nil {
		gw.listAnswersFn = func(context.Context, int64) ([]store.Answer, error) { return answers, nil }
	}
	page := NewPage(gw, verifier)
	page.SetSession(sess)
	page.Gate.Wait()
	_ = page.Load(context.Background(), 7)
	return page
}
