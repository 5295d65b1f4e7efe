package qa

import (
	"errors"
	"strings"

	"github.com/minhnhutttt/la/internal/store"
)

const AnonymousLabel = "Anonymous"

type ErrorView struct {
	Kind      ErrorKind `json:"kind"`
	Key       string    `json:"key,omitempty"`
	Field     string    `json:"field,omitempty"`
	Threshold int       `json:"threshold,omitempty"`
	Message   string    `json:"message,omitempty"`
}

type QuestionEditView struct {
	Mode  EditMode      `json:"mode"`
	Draft QuestionDraft `json:"draft"`
	Error *ErrorView    `json:"error"`
}

type AnswerView struct {
	store.Answer
	CanEdit  bool   `json:"canEdit"`
	Editing  bool   `json:"editing"`
	Initials string `json:"initials"`
}

type AnswerEditView struct {
	AnswerID *int64     `json:"answerId"`
	Draft    string     `json:"draft"`
	Error    *ErrorView `json:"error"`
	Updating bool       `json:"updating"`
}

type ComposeView struct {
	Draft      string     `json:"draft"`
	Error      *ErrorView `json:"error"`
	Submitting bool       `json:"submitting"`
}

// View is everything the hosting view renders, derived from the current
// stores and session in one pass.
type View struct {
	Loading         bool              `json:"loading"`
	Question        *store.Question   `json:"question"`
	QuestionError   *ErrorView        `json:"questionError"`
	Attribution     string            `json:"attribution"`
	QuestionEdit    QuestionEditView  `json:"questionEdit"`
	IsQuestionOwner bool              `json:"isQuestionOwner"`
	AnswersVisible  bool              `json:"answersVisible"`
	Answers         []AnswerView      `json:"answers"`
	AnswerCount     int               `json:"answerCount"`
	AnswersError    *ErrorView        `json:"answersError"`
	AnswerEdit      AnswerEditView    `json:"answerEdit"`
	Compose         ComposeView       `json:"compose"`
	CanAuthorAnswer bool              `json:"canAuthorAnswer"`
	Verification    VerificationState `json:"verification"`
}

func (p *Page) View() View {
	sess := p.Session()
	question := p.Question.Snapshot()
	thread := p.Answers.Snapshot()
	verification := p.Gate.State()

	p.mu.Lock()
	loading := p.loading
	p.mu.Unlock()

	view := View{
		Loading:         loading,
		Question:        publicQuestion(question.Data),
		QuestionError:   errorView(question.Err),
		Attribution:     Attribution(question.Data),
		IsQuestionOwner: IsQuestionOwner(question.Data, sess),
		QuestionEdit: QuestionEditView{
			Mode:  question.Mode,
			Draft: question.Draft,
			Error: errorView(question.EditErr),
		},
		AnswersVisible: sess.Authenticated,
		Answers:        make([]AnswerView, 0, len(thread.Answers)),
		AnswerCount:    len(thread.Answers),
		AnswersError:   errorView(thread.Err),
		AnswerEdit: AnswerEditView{
			AnswerID: thread.Edit.AnswerID,
			Draft:    thread.Edit.Draft,
			Error:    errorView(thread.Edit.Err),
			Updating: thread.Edit.Updating,
		},
		Compose: ComposeView{
			Draft:      thread.Compose.Draft,
			Error:      errorView(thread.Compose.Err),
			Submitting: thread.Compose.Submitting,
		},
		CanAuthorAnswer: CanAuthorAnswer(sess, verification),
		Verification:    verification,
	}
	for _, answer := range thread.Answers {
		editing := thread.Edit.AnswerID != nil && *thread.Edit.AnswerID == answer.ID
		name := ""
		if answer.Lawyer != nil {
			name = answer.Lawyer.FullName
		}
		view.Answers = append(view.Answers, AnswerView{
			Answer:   answer,
			CanEdit:  thread.Edit.AnswerID == nil && IsAnswerOwner(answer, sess),
			Editing:  editing,
			Initials: initials(name),
		})
	}
	return view
}

// Attribution is the "posted by" label. Anonymous questions never expose
// the owner's name.
func Attribution(q *store.Question) string {
	if q == nil {
		return ""
	}
	if q.IsAnonymous {
		return AnonymousLabel
	}
	if name := q.User.FullName(); name != "" {
		return name
	}
	return UnknownUserLabel
}

// publicQuestion is the question as the view exposes it. An anonymous
// question keeps only the owner id, which ownership checks need.
func publicQuestion(q *store.Question) *store.Question {
	if q == nil || !q.IsAnonymous || q.User == nil {
		return q
	}
	out := *q
	out.User = &store.UserRef{ID: q.User.ID}
	return &out
}

func errorView(err error) *ErrorView {
	if err == nil {
		return nil
	}
	var qaErr *Error
	if !errors.As(err, &qaErr) {
		return &ErrorView{Kind: KindTransport, Message: err.Error()}
	}
	return &ErrorView{
		Kind:      qaErr.Kind,
		Key:       qaErr.Key,
		Field:     qaErr.Field,
		Threshold: qaErr.Threshold,
		Message:   qaErr.Message,
	}
}

func initials(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "LA"
	}
	if len(parts) == 1 {
		r := []rune(parts[0])
		if len(r) == 1 {
			return strings.ToUpper(string(r[0]))
		}
		return strings.ToUpper(string(r[:2]))
	}
	return strings.ToUpper(string([]rune(parts[0])[0]) + string([]rune(parts[len(parts)-1])[0]))
}
