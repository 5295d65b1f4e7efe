package qa

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
)

// AnswerEdit is the thread's single edit slot. AnswerID is nil when no
// answer is being edited.
type AnswerEdit struct {
	AnswerID *int64
	Draft    string
	Err      error
	Updating bool
}

// Compose is the new-answer form.
type Compose struct {
	Draft      string
	Err        error
	Submitting bool
}

type ThreadState struct {
	QuestionID int64
	Answers    []store.Answer
	Err        error
	Edit       AnswerEdit
	Compose    Compose
}

// AnswerThread holds the ordered answers of one question, most recent
// first. Insertion order is the display order; nothing is re-sorted.
//
// At most one answer is in edit mode at a time. The slot is a usability
// rule for the hosting view, not a lock: edits of different entities (the
// question and an answer) may be in flight together.
type AnswerThread struct {
	gateway  Gateway
	life     *lifecycle
	logger   *zap.Logger
	recorder Recorder

	mu         sync.Mutex
	questionID int64
	answers    []store.Answer
	loadErr    error
	edit       AnswerEdit
	compose    Compose
}

func newAnswerThread(gateway Gateway, life *lifecycle, logger *zap.Logger, recorder Recorder) *AnswerThread {
	return &AnswerThread{
		gateway:  gateway,
		life:     life,
		logger:   logger,
		recorder: recorder,
	}
}

// Load fetches the thread. An empty thread is not an error.
func (t *AnswerThread) Load(ctx context.Context, questionID int64) error {
	if questionID <= 0 {
		err := validationError("question_id", "answers.invalidId", 0)
		t.mu.Lock()
		t.questionID, t.answers, t.loadErr = 0, nil, err
		t.mu.Unlock()
		return err
	}

	callCtx, cancel := t.life.join(ctx)
	defer cancel()
	answers, err := t.gateway.ListAnswers(callCtx, questionID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.life.alive() {
		t.recorder.DiscardedCommit("answers")
		return ErrClosed
	}

	t.questionID = questionID
	if !t.edit.Updating {
		t.edit = AnswerEdit{}
	}
	if err != nil {
		t.logger.Warn("answer thread load failed", zap.Int64("question_id", questionID), zap.Error(err))
		t.answers, t.loadErr = nil, transportError("answers.errorLoading", err)
		return t.loadErr
	}

	loaded := make([]store.Answer, 0, len(answers))
	for _, answer := range answers {
		if answer.QuestionID != questionID {
			t.logger.Warn("dropping answer from another question",
				zap.Int64("answer_id", answer.ID), zap.Int64("question_id", questionID), zap.Int64("answer_question_id", answer.QuestionID))
			continue
		}
		if NeedsBackfill(answer, AnswerLawyerPath) {
			t.logger.Error("answer loaded without lawyer.user_id; it cannot be edited", zap.Int64("answer_id", answer.ID))
		}
		loaded = append(loaded, cloneAnswer(answer))
	}
	t.answers, t.loadErr = loaded, nil
	return nil
}

// SetCompose replaces the new-answer draft and clears its error.
func (t *AnswerThread) SetCompose(content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.compose.Submitting {
		return false
	}
	t.compose.Draft = content
	t.compose.Err = nil
	return true
}

// Create submits content as a new answer. Only a verified lawyer may author;
// anyone else is silently refused. The created answer is prepended and the
// compose form cleared. On failure the draft is kept.
func (t *AnswerThread) Create(ctx context.Context, sess session.Session, verification VerificationState, content string) error {
	t.mu.Lock()
	if !CanAuthorAnswer(sess, verification) || t.compose.Submitting || t.questionID == 0 {
		t.mu.Unlock()
		return nil
	}
	t.compose.Draft = content
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		t.compose.Err = validationError("content", "answers.contentRequired", 1)
		err := t.compose.Err
		t.mu.Unlock()
		return err
	}
	questionID := t.questionID
	t.compose.Submitting = true
	t.compose.Err = nil
	t.mu.Unlock()

	callCtx, cancel := t.life.join(session.WithContext(ctx, sess))
	defer cancel()
	created, err := t.gateway.CreateAnswer(callCtx, store.AnswerInput{Content: trimmed, QuestionID: questionID})

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.life.alive() {
		t.recorder.DiscardedCommit("answers")
		return ErrClosed
	}
	t.compose.Submitting = false
	if err != nil {
		t.recorder.Mutation("create_answer", "error")
		t.logger.Info("answer create failed", zap.Int64("question_id", questionID), zap.Error(err))
		t.compose.Err = transportError("answers.answerSubmitError", err)
		return t.compose.Err
	}

	if created.QuestionID == 0 {
		created.QuestionID = questionID
	}
	if NeedsBackfill(created, AnswerLawyerPath) {
		t.recorder.Backfill(AnswerLawyerPath.Name, "session")
	}
	reconciled := Reconcile(created, SessionLawyer(sess), AnswerLawyerPath)
	if err := t.admissible(reconciled); err != nil {
		t.recorder.Mutation("create_answer", "rejected")
		t.logger.Error("created answer violates thread invariants", zap.Int64("answer_id", created.ID), zap.Error(err))
		t.compose.Err = transportError("answers.answerSubmitError", err)
		return t.compose.Err
	}

	t.answers = append([]store.Answer{cloneAnswer(reconciled)}, t.answers...)
	t.compose = Compose{}
	t.recorder.Mutation("create_answer", "ok")
	return nil
}

// EnterEdit opens the edit slot for answerID. It is refused while another
// answer is being edited or when the session does not own the answer.
func (t *AnswerThread) EnterEdit(sess session.Session, answerID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.edit.AnswerID != nil {
		return false
	}
	idx := t.indexOf(answerID)
	if idx < 0 || !IsAnswerOwner(t.answers[idx], sess) {
		return false
	}
	id := answerID
	t.edit = AnswerEdit{AnswerID: &id, Draft: t.answers[idx].Content}
	return true
}

// SetEditDraft replaces the active edit draft and clears its error.
func (t *AnswerThread) SetEditDraft(content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.edit.AnswerID == nil || t.edit.Updating {
		return false
	}
	t.edit.Draft = content
	t.edit.Err = nil
	return true
}

// SubmitEdit sends the active draft. The reconciled answer replaces the
// original at its current position.
func (t *AnswerThread) SubmitEdit(ctx context.Context, sess session.Session) error {
	t.mu.Lock()
	if t.edit.AnswerID == nil || t.edit.Updating {
		t.mu.Unlock()
		return nil
	}
	answerID := *t.edit.AnswerID
	idx := t.indexOf(answerID)
	if idx < 0 {
		t.edit = AnswerEdit{}
		t.mu.Unlock()
		return nil
	}
	original := cloneAnswer(t.answers[idx])
	if !IsAnswerOwner(original, sess) {
		t.mu.Unlock()
		return nil
	}
	content := strings.TrimSpace(t.edit.Draft)
	if content == "" {
		t.edit.Err = validationError("content", "answers.contentRequired", 1)
		err := t.edit.Err
		t.mu.Unlock()
		return err
	}
	t.edit.Updating = true
	t.edit.Err = nil
	t.mu.Unlock()

	callCtx, cancel := t.life.join(session.WithContext(ctx, sess))
	defer cancel()
	updated, err := t.gateway.UpdateAnswer(callCtx, answerID, content)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.life.alive() {
		t.recorder.DiscardedCommit("answers")
		return ErrClosed
	}
	t.edit.Updating = false
	if err != nil {
		t.recorder.Mutation("update_answer", "error")
		t.logger.Info("answer update failed", zap.Int64("answer_id", answerID), zap.Error(err))
		t.edit.Err = transportError("answers.updateError", err)
		return t.edit.Err
	}

	if updated.ID == 0 {
		updated.ID = answerID
	}
	if updated.QuestionID == 0 {
		updated.QuestionID = original.QuestionID
	}
	if NeedsBackfill(updated, AnswerLawyerPath) {
		t.recorder.Backfill(AnswerLawyerPath.Name, "prior_state")
	}
	reconciled := Reconcile(updated, PriorLawyer(original), AnswerLawyerPath)
	if reconciled.ID != answerID {
		err := fmt.Errorf("update returned answer %d for %d", reconciled.ID, answerID)
		t.edit.Err = transportError("answers.updateError", err)
		return t.edit.Err
	}
	if err := t.admissible(reconciled); err != nil {
		t.recorder.Mutation("update_answer", "rejected")
		t.logger.Error("updated answer violates thread invariants", zap.Int64("answer_id", answerID), zap.Error(err))
		t.edit.Err = transportError("answers.updateError", err)
		return t.edit.Err
	}

	if idx = t.indexOf(answerID); idx >= 0 {
		t.answers[idx] = cloneAnswer(reconciled)
	}
	t.edit = AnswerEdit{}
	t.recorder.Mutation("update_answer", "ok")
	return nil
}

// CancelEdit closes the edit slot without touching the collection.
func (t *AnswerThread) CancelEdit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.edit.AnswerID == nil || t.edit.Updating {
		return false
	}
	t.edit = AnswerEdit{}
	return true
}

// CanEdit reports whether EnterEdit(sess, answerID) would succeed now.
func (t *AnswerThread) CanEdit(sess session.Session, answerID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.edit.AnswerID != nil {
		return false
	}
	idx := t.indexOf(answerID)
	return idx >= 0 && IsAnswerOwner(t.answers[idx], sess)
}

func (t *AnswerThread) Snapshot() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := ThreadState{
		QuestionID: t.questionID,
		Err:        t.loadErr,
		Edit:       t.edit,
		Compose:    t.compose,
	}
	if t.edit.AnswerID != nil {
		id := *t.edit.AnswerID
		state.Edit.AnswerID = &id
	}
	if t.answers != nil {
		state.Answers = make([]store.Answer, len(t.answers))
		for i, answer := range t.answers {
			state.Answers[i] = cloneAnswer(answer)
		}
	}
	return state
}

// admissible checks the invariants an answer must hold to enter the thread.
func (t *AnswerThread) admissible(answer store.Answer) error {
	if answer.Lawyer == nil || answer.Lawyer.UserID == 0 {
		return fmt.Errorf("answer %d has no resolvable lawyer.user_id", answer.ID)
	}
	if answer.QuestionID != t.questionID {
		return fmt.Errorf("answer %d belongs to question %d, not %d", answer.ID, answer.QuestionID, t.questionID)
	}
	return nil
}

func (t *AnswerThread) indexOf(answerID int64) int {
	for i, answer := range t.answers {
		if answer.ID == answerID {
			return i
		}
	}
	return -1
}

func cloneAnswer(a store.Answer) store.Answer {
	if a.Lawyer != nil {
		lawyer := *a.Lawyer
		a.Lawyer = &lawyer
	}
	return a
}
