package qa

import (
	"context"

	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
)

// Gateway is the mutation gateway consumed by the stores. Calls receive the
// viewer's session through session.WithContext. GetQuestion returns nil, nil
// when the question does not exist. Mutation responses may carry partial
// relational objects.
type Gateway interface {
	GetQuestion(ctx context.Context, id int64) (*store.Question, error)
	ListAnswers(ctx context.Context, questionID int64) ([]store.Answer, error)
	UpdateQuestion(ctx context.Context, id int64, patch store.QuestionPatch) (store.Question, error)
	CreateAnswer(ctx context.Context, input store.AnswerInput) (store.Answer, error)
	UpdateAnswer(ctx context.Context, id int64, content string) (store.Answer, error)
}

// Verifier resolves whether a lawyer session carries a verified credential.
type Verifier interface {
	VerifyLawyer(ctx context.Context, s session.Session) (bool, error)
}

// Recorder receives engine events for metrics. All methods must be cheap
// and safe for concurrent use.
type Recorder interface {
	Backfill(path, source string)
	Mutation(op, outcome string)
	Verification(state VerificationState)
	DiscardedCommit(component string)
}

type nopRecorder struct{}

func (nopRecorder) Backfill(string, string) {}
func (nopRecorder) Mutation(string, string) {}
func (nopRecorder) Verification(VerificationState) {}
func (nopRecorder) DiscardedCommit(string) {}
