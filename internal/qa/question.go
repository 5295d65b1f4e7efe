package qa

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
)

const (
	MinTitleLength   = 15
	MinContentLength = 30
)

type EditMode string

const (
	ModeViewing    EditMode = "viewing"
	ModeEditing    EditMode = "editing"
	ModeSubmitting EditMode = "submitting"
)

type QuestionDraft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// QuestionState is a copy of the store's state; mutating it has no effect
// on the store.
type QuestionState struct {
	Data    *store.Question
	Err     error
	Mode    EditMode
	Draft   QuestionDraft
	EditErr error
}

// QuestionStore holds the single question of a page and its edit session.
type QuestionStore struct {
	gateway  Gateway
	life     *lifecycle
	logger   *zap.Logger
	recorder Recorder

	mu      sync.Mutex
	data    *store.Question
	loadErr error
	mode    EditMode
	draft   QuestionDraft
	editErr error
}

func newQuestionStore(gateway Gateway, life *lifecycle, logger *zap.Logger, recorder Recorder) *QuestionStore {
	return &QuestionStore{
		gateway:  gateway,
		life:     life,
		logger:   logger,
		recorder: recorder,
		mode:     ModeViewing,
	}
}

// Load fetches the question. An absent question is a not-found error, kept
// distinct from transport failures.
func (s *QuestionStore) Load(ctx context.Context, id int64) error {
	if id <= 0 {
		err := validationError("id", "answers.invalidId", 0)
		s.mu.Lock()
		s.data, s.loadErr = nil, err
		s.mu.Unlock()
		return err
	}

	callCtx, cancel := s.life.join(ctx)
	defer cancel()
	question, err := s.gateway.GetQuestion(callCtx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.life.alive() {
		s.recorder.DiscardedCommit("question")
		return ErrClosed
	}

	// A submit in flight keeps its edit session; its own commit settles it.
	if s.mode != ModeSubmitting {
		s.mode, s.draft, s.editErr = ModeViewing, QuestionDraft{}, nil
	}
	switch {
	case err != nil:
		s.logger.Warn("question load failed", zap.Int64("question_id", id), zap.Error(err))
		s.data, s.loadErr = nil, transportError("answers.errorLoading", err)
	case question == nil:
		s.data, s.loadErr = nil, notFoundError("answers.notFound")
	default:
		loaded := cloneQuestion(*question)
		s.data, s.loadErr = &loaded, nil
	}
	return s.loadErr
}

// EnterEdit seeds the draft from the current question. It returns false
// without side effects unless the session owns the question.
func (s *QuestionStore) EnterEdit(sess session.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil || s.mode != ModeViewing || !IsQuestionOwner(s.data, sess) {
		return false
	}
	s.mode = ModeEditing
	s.draft = QuestionDraft{Title: s.data.Title, Content: s.data.Content}
	s.editErr = nil
	return true
}

// SetDraft replaces the draft while editing and clears the last error.
func (s *QuestionStore) SetDraft(draft QuestionDraft) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeEditing {
		return false
	}
	s.draft = draft
	s.editErr = nil
	return true
}

// SubmitEdit validates the draft and sends it. Unauthorized calls and calls
// while a submit is in flight are silent no-ops. On failure the draft is
// kept and the store stays in editing mode.
func (s *QuestionStore) SubmitEdit(ctx context.Context, sess session.Session) error {
	s.mu.Lock()
	if s.mode != ModeEditing || s.data == nil || !IsQuestionOwner(s.data, sess) {
		s.mu.Unlock()
		return nil
	}
	if err := validateQuestionDraft(s.draft); err != nil {
		s.editErr = err
		s.mu.Unlock()
		return err
	}
	title := strings.TrimSpace(s.draft.Title)
	content := strings.TrimSpace(s.draft.Content)
	prior := cloneQuestion(*s.data)
	s.mode = ModeSubmitting
	s.mu.Unlock()

	callCtx, cancel := s.life.join(session.WithContext(ctx, sess))
	defer cancel()
	updated, err := s.gateway.UpdateQuestion(callCtx, prior.ID, store.QuestionPatch{Title: &title, Content: &content})

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.life.alive() {
		s.recorder.DiscardedCommit("question")
		return ErrClosed
	}
	if err != nil {
		s.recorder.Mutation("update_question", "error")
		s.logger.Info("question update failed", zap.Int64("question_id", prior.ID), zap.Error(err))
		s.mode = ModeEditing
		s.editErr = transportError("questions.updateError", err)
		return s.editErr
	}

	if NeedsBackfill(updated, QuestionOwnerPath) {
		s.recorder.Backfill(QuestionOwnerPath.Name, "prior_state")
	}
	reconciled := cloneQuestion(Reconcile(updated, PriorOwner(prior), QuestionOwnerPath))
	s.data = &reconciled
	s.mode = ModeViewing
	s.draft = QuestionDraft{}
	s.editErr = nil
	s.recorder.Mutation("update_question", "ok")
	return nil
}

// CancelEdit discards the draft. A submit in flight cannot be cancelled.
func (s *QuestionStore) CancelEdit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeEditing {
		return false
	}
	s.mode = ModeViewing
	s.draft = QuestionDraft{}
	s.editErr = nil
	return true
}

func (s *QuestionStore) Snapshot() QuestionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := QuestionState{
		Err:     s.loadErr,
		Mode:    s.mode,
		Draft:   s.draft,
		EditErr: s.editErr,
	}
	if s.data != nil {
		data := cloneQuestion(*s.data)
		state.Data = &data
	}
	return state
}

func validateQuestionDraft(draft QuestionDraft) *Error {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return validationError("title", "questions.titleRequired", MinTitleLength)
	}
	if utf8.RuneCountInString(title) < MinTitleLength {
		return validationError("title", "questions.titleMinLength", MinTitleLength)
	}
	content := strings.TrimSpace(draft.Content)
	if content == "" {
		return validationError("content", "questions.contentRequired", MinContentLength)
	}
	if utf8.RuneCountInString(content) < MinContentLength {
		return validationError("content", "questions.contentMinLength", MinContentLength)
	}
	return nil
}

func cloneQuestion(q store.Question) store.Question {
	if q.User != nil {
		owner := *q.User
		q.User = &owner
	}
	return q
}
