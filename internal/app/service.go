package app

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minhnhutttt/la/internal/auth"
	"github.com/minhnhutttt/la/internal/config"
	"github.com/minhnhutttt/la/internal/qa"
	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
	"github.com/minhnhutttt/la/internal/util"
)

type pinger interface {
	Ping(context.Context) error
}

// credentialForgetter is implemented by verifiers that cache verdicts.
type credentialForgetter interface {
	Forget(ctx context.Context, userID int64) error
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRecorder(recorder qa.Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithReadinessCheck adds a dependency reported by /api/ready.
func WithReadinessCheck(name string, check pinger) Option {
	return func(s *Service) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

// Service hosts question views. Each view is one qa.Page bound to the
// subject that opened it and torn down after ViewTTL without access.
type Service struct {
	cfg      config.Config
	gateway  qa.Gateway
	verifier qa.Verifier
	logger   *zap.Logger
	recorder qa.Recorder
	checks   map[string]pinger
	now      func() time.Time

	viewTTL time.Duration
	viewMu  sync.Mutex
	views   map[string]*viewRecord
}

type viewRecord struct {
	page      *qa.Page
	subject   string
	expiresAt time.Time
}

func New(cfg config.Config, gateway qa.Gateway, verifier qa.Verifier, opts ...Option) *Service {
	ttl := cfg.ViewTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &Service{
		cfg:      cfg,
		gateway:  gateway,
		verifier: verifier,
		logger:   zap.NewNop(),
		checks:   make(map[string]pinger),
		now:      time.Now,
		viewTTL:  ttl,
		views:    make(map[string]*viewRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) SessionFromToken(token string) (session.Session, error) {
	return auth.SessionFromToken([]byte(s.cfg.TokenSecret), token)
}

// Ready pings every registered dependency. The map holds nil for healthy
// checks.
func (s *Service) Ready(ctx context.Context) map[string]error {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]error, len(names))
	for _, name := range names {
		results[name] = s.checks[name].Ping(ctx)
	}
	return results
}

// ViewResult is what every view endpoint returns. Applied is false when an
// action was refused without error (not owner, slot busy, submit in flight).
type ViewResult struct {
	ViewID  string  `json:"viewId"`
	Applied bool    `json:"applied"`
	View    qa.View `json:"view"`
}

// OpenView creates a page for questionID and loads it. It returns once the
// load and the credential check have settled. Load failures are part of the
// returned view, not an error.
func (s *Service) OpenView(ctx context.Context, sess session.Session, questionID int64) (ViewResult, error) {
	var opts []qa.Option
	opts = append(opts, qa.WithLogger(s.logger.With(zap.Int64("question_id", questionID))))
	if s.recorder != nil {
		opts = append(opts, qa.WithRecorder(s.recorder))
	}
	page := qa.NewPage(s.gateway, s.verifier, opts...)
	page.SetSession(sess)

	viewID := util.NewID("view")
	s.viewMu.Lock()
	s.sweepLocked()
	s.views[viewID] = &viewRecord{page: page, subject: subjectOf(sess), expiresAt: s.now().Add(s.viewTTL)}
	s.viewMu.Unlock()

	if err := page.Load(ctx, questionID); err != nil {
		return ViewResult{}, domainError(http.StatusGone, "VIEW_CLOSED", "View was closed", nil)
	}
	page.Gate.Wait()
	s.logger.Debug("view opened", zap.String("view_id", viewID), zap.Int64("question_id", questionID), zap.String("subject", subjectOf(sess)))
	return ViewResult{ViewID: viewID, Applied: true, View: page.View()}, nil
}

func (s *Service) GetView(sess session.Session, viewID string) (ViewResult, error) {
	return s.withView(sess, viewID, func(*qa.Page) (bool, error) { return true, nil })
}

func (s *Service) CloseView(sess session.Session, viewID string) error {
	s.viewMu.Lock()
	record, ok := s.views[viewID]
	if !ok || record.subject != subjectOf(sess) {
		s.viewMu.Unlock()
		return viewNotFound()
	}
	delete(s.views, viewID)
	s.viewMu.Unlock()

	record.page.Close()
	return nil
}

func (s *Service) EnterQuestionEdit(sess session.Session, viewID string) (ViewResult, error) {
	return s.withView(sess, viewID, func(p *qa.Page) (bool, error) {
		return p.EnterQuestionEdit(), nil
	})
}

func (s *Service) SetQuestionDraft(sess session.Session, viewID string, draft qa.QuestionDraft) (ViewResult, error) {
	return s.withView(sess, viewID, func(p *qa.Page) (bool, error) {
		return p.SetQuestionDraft(draft), nil
	})
}

func (s *Service) SubmitQuestionEdit(ctx context.Context, sess session.Session, viewID string) (ViewResult, error) {
	return s.withView(sess, viewID, func(p *qa.Page) (bool, error) {
		if p.Question.Snapshot().Mode != qa.ModeEditing {
			return false, nil
		}
		err := p.SubmitQuestionEdit(ctx)
		return err == nil && p.Question.Snapshot().Mode == qa.ModeViewing, err
	})
}

func (s *Service) CancelQuestionEdit(sess session.Session, viewID string) (ViewResult, error) {
	return s.withView(sess, viewID, func(p *qa.Page) (bool, error) {
		return p.CancelQuestionEdit(), nil
	})
}

func (s *Service) SetCompose(sess session.Session, viewID, content string) (ViewResult, error) {
	return s.withView(sess, viewID, func(p *qa.Page) (bool, error) {
		return p.SetCompose(content), nil
	})
}

func (s *Service) CreateAnswer(ctx context.Context, sess session.Session, viewID, content string) (ViewResult, error) {
	return s.withView(sess, viewID, func(p *qa.Page) (bool, error) {
		if !p.CanAuthorAnswer() {
			return false, nil
		}
		before := len(p.Answers.Snapshot().Answers)
		err := p.CreateAnswer(ctx, content)
		if errors.Is(err, store.ErrNotPermitted) {
			s.recheckCredential(ctx, sess, p)
		}
		return err == nil && len(p.Answers.Snapshot().Answers) > before, err
	})
}

// recheckCredential runs after the store refused an answer the gate allowed:
// the verdict the gate holds is stale, so it is dropped and looked up again.
func (s *Service) recheckCredential(ctx context.Context, sess session.Session, p *qa.Page) {
	if forgetter, ok := s.verifier.(credentialForgetter); ok {
		if err := forgetter.Forget(ctx, sess.User.ID); err != nil {
			s.logger.Warn("dropping cached verification failed", zap.Int64("user_id", sess.User.ID), zap.Error(err))
		}
	}
	p.Gate.Recheck(sess)
	p.Gate.Wait()
}

func (s *Service) EnterAnswerEdit(sess session.Session, viewID string, answerID int64) (ViewResult, error) {
	return s.withView(sess, viewID, func(p *qa.Page) (bool, error) {
		return p.EnterAnswerEdit(answerID), nil
	})
}

func (s *Service) SetAnswerDraft(sess session.Session, viewID, content string) (ViewResult, error) {
	return s.withView(sess, viewID, func(p *qa.Page) (bool, error) {
		return p.SetAnswerDraft(content), nil
	})
}

func (s *Service) SubmitAnswerEdit(ctx context.Context, sess session.Session, viewID string) (ViewResult, error) {
	return s.withView(sess, viewID, func(p *qa.Page) (bool, error) {
		if edit := p.Answers.Snapshot().Edit; edit.AnswerID == nil || edit.Updating {
			return false, nil
		}
		err := p.SubmitAnswerEdit(ctx)
		return err == nil && p.Answers.Snapshot().Edit.AnswerID == nil, err
	})
}

func (s *Service) CancelAnswerEdit(sess session.Session, viewID string) (ViewResult, error) {
	return s.withView(sess, viewID, func(p *qa.Page) (bool, error) {
		return p.CancelAnswerEdit(), nil
	})
}

// withView looks the view up, re-applies the caller's session and runs fn
// outside the registry lock. The result always carries the view state after
// fn, so callers can render field errors next to the form.
func (s *Service) withView(sess session.Session, viewID string, fn func(*qa.Page) (bool, error)) (ViewResult, error) {
	page, ok := s.touch(sess, viewID)
	if !ok {
		return ViewResult{}, viewNotFound()
	}
	page.SetSession(sess)
	page.Gate.Wait()

	applied, err := fn(page)
	result := ViewResult{ViewID: viewID, Applied: applied, View: page.View()}
	if err != nil {
		return result, actionError(err, result)
	}
	return result, nil
}

func (s *Service) touch(sess session.Session, viewID string) (*qa.Page, bool) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	s.sweepLocked()
	record, ok := s.views[viewID]
	if !ok || record.subject != subjectOf(sess) {
		return nil, false
	}
	record.expiresAt = s.now().Add(s.viewTTL)
	return record.page, true
}

// Sweep tears down expired views and returns how many were closed.
func (s *Service) Sweep() int {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	return s.sweepLocked()
}

func (s *Service) sweepLocked() int {
	now := s.now()
	closed := 0
	for id, record := range s.views {
		if now.After(record.expiresAt) {
			delete(s.views, id)
			record.page.Close()
			closed++
		}
	}
	return closed
}

// RunJanitor sweeps expired views every interval until ctx is done, then
// closes every remaining view.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("expired views closed", zap.Int("count", n))
			}
		}
	}
}

func (s *Service) closeAll() {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	for id, record := range s.views {
		delete(s.views, id)
		record.page.Close()
	}
}

func (s *Service) OpenViews() int {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	return len(s.views)
}

// subjectOf binds a view to a user rather than a role, so a role change
// keeps the view and resets its verification state.
func subjectOf(sess session.Session) string {
	if !sess.Authenticated {
		return "anonymous"
	}
	return "user:" + strconv.FormatInt(sess.User.ID, 10)
}
