package qa

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/minhnhutttt/la/internal/session"
)

type pageOptions struct {
	logger   *zap.Logger
	recorder Recorder
}

type Option func(*pageOptions)

func WithLogger(logger *zap.Logger) Option {
	return func(o *pageOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(o *pageOptions) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// Page wires the stores and the verification gate of one question view.
// Every store operation receives the page's current session explicitly.
type Page struct {
	Question *QuestionStore
	Answers  *AnswerThread
	Gate     *Gate

	life   *lifecycle
	logger *zap.Logger

	mu         sync.Mutex
	session    session.Session
	questionID int64
	loading    bool
}

func NewPage(gateway Gateway, verifier Verifier, opts ...Option) *Page {
	options := pageOptions{logger: zap.NewNop(), recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&options)
	}
	life := newLifecycle()
	return &Page{
		Question: newQuestionStore(gateway, life, options.logger, options.recorder),
		Answers:  newAnswerThread(gateway, life, options.logger, options.recorder),
		Gate:     newGate(verifier, life, options.logger, options.recorder),
		life:     life,
		logger:   options.logger,
	}
}

// SetSession replaces the viewer session. A change of authentication, role
// or user resets the verification gate and may start a lookup.
func (p *Page) SetSession(s session.Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
	p.Gate.Observe(s)
}

func (p *Page) Session() session.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Load fetches the question and its answers concurrently. Each store keeps
// its own outcome; one failing never blocks the other's commit. Load returns
// once both have settled, or ErrClosed if the page was torn down meanwhile.
func (p *Page) Load(ctx context.Context, questionID int64) error {
	p.mu.Lock()
	p.questionID = questionID
	p.loading = true
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = p.Question.Load(ctx, questionID)
	}()
	go func() {
		defer wg.Done()
		_ = p.Answers.Load(ctx, questionID)
	}()
	wg.Wait()

	p.mu.Lock()
	p.loading = false
	p.mu.Unlock()

	if !p.life.alive() {
		return ErrClosed
	}
	return nil
}

// Close tears the page down. Calls in flight are cancelled and any result
// that still arrives is discarded.
func (p *Page) Close() {
	p.life.close()
	p.logger.Debug("page closed")
}

func (p *Page) Closed() bool {
	return !p.life.alive()
}

func (p *Page) IsQuestionOwner() bool {
	return IsQuestionOwner(p.Question.Snapshot().Data, p.Session())
}

func (p *Page) CanEditAnswer(answerID int64) bool {
	return p.Answers.CanEdit(p.Session(), answerID)
}

func (p *Page) CanAuthorAnswer() bool {
	return CanAuthorAnswer(p.Session(), p.Gate.State())
}

func (p *Page) EnterQuestionEdit() bool {
	return p.Question.EnterEdit(p.Session())
}

func (p *Page) SetQuestionDraft(draft QuestionDraft) bool {
	return p.Question.SetDraft(draft)
}

func (p *Page) SubmitQuestionEdit(ctx context.Context) error {
	return p.Question.SubmitEdit(ctx, p.Session())
}

func (p *Page) CancelQuestionEdit() bool {
	return p.Question.CancelEdit()
}

func (p *Page) SetCompose(content string) bool {
	return p.Answers.SetCompose(content)
}

func (p *Page) CreateAnswer(ctx context.Context, content string) error {
	return p.Answers.Create(ctx, p.Session(), p.Gate.State(), content)
}

func (p *Page) EnterAnswerEdit(answerID int64) bool {
	return p.Answers.EnterEdit(p.Session(), answerID)
}

func (p *Page) SetAnswerDraft(content string) bool {
	return p.Answers.SetEditDraft(content)
}

func (p *Page) SubmitAnswerEdit(ctx context.Context) error {
	return p.Answers.SubmitEdit(ctx, p.Session())
}

func (p *Page) CancelAnswerEdit() bool {
	return p.Answers.CancelEdit()
}
