package qa

import (
	"reflect"
	"testing"

	"github.com/minhnhutttt/la/internal/rbac"
	"github.com/minhnhutttt/la/internal/session"
	"github.com/minhnhutttt/la/internal/store"
)

func TestReconcileCreateUsesSessionIdentity(t *testing.T) {
	created := store.Answer{ID: 55, Content: "ok", Lawyer: &store.LawyerRef{}}
	sess := session.New(rbac.RoleLawyer, session.User{ID: 3, FirstName: "A", LastName: "B"})

	got := Reconcile(created, SessionLawyer(sess), AnswerLawyerPath)

	if got.Lawyer == nil || got.Lawyer.UserID != 3 {
		t.Fatalf("expected lawyer.user_id 3, got %+v", got.Lawyer)
	}
	if got.Lawyer.FullName == "" {
		t.Fatal("expected non-empty full_name")
	}
	if got.ID != 55 || got.Content != "ok" {
		t.Fatalf("top-level fields changed: %+v", got)
	}
}

func TestReconcileUpdateUsesPriorState(t *testing.T) {
	prior := store.Answer{ID: 55, Content: "first", Lawyer: &store.LawyerRef{UserID: 3, FullName: "A B"}}
	updated := store.Answer{ID: 55, Content: "edited", Lawyer: &store.LawyerRef{}}

	got := Reconcile(updated, PriorLawyer(prior), AnswerLawyerPath)

	if got.Lawyer.UserID != 3 || got.Lawyer.FullName != "A B" {
		t.Fatalf("expected prior lawyer, got %+v", got.Lawyer)
	}
	if got.Content != "edited" {
		t.Fatalf("expected server content, got %q", got.Content)
	}
}

func TestReconcileKeepsServerFieldsMissingFromFallback(t *testing.T) {
	created := store.Answer{ID: 56, Content: "ok", Lawyer: &store.LawyerRef{ID: 41, OfficeName: "Kato Law"}}
	sess := session.New(rbac.RoleLawyer, session.User{ID: 3})

	got := Reconcile(created, SessionLawyer(sess), AnswerLawyerPath)

	if got.Lawyer.ID != 41 || got.Lawyer.OfficeName != "Kato Law" {
		t.Fatalf("server lawyer fields lost: %+v", got.Lawyer)
	}
	if got.Lawyer.FullName != UnknownUserLabel {
		t.Fatalf("expected fallback label, got %q", got.Lawyer.FullName)
	}
}

func TestReconcileNoOpWhenIdentityPresent(t *testing.T) {
	complete := store.Answer{ID: 1, Content: "c", Lawyer: &store.LawyerRef{UserID: 4, FullName: "Own Name"}}
	fallbacks := []*store.LawyerRef{
		nil,
		{},
		{UserID: 9, FullName: "Someone Else"},
	}
	for _, fallback := range fallbacks {
		got := Reconcile(complete, fallback, AnswerLawyerPath)
		if !reflect.DeepEqual(got, complete) {
			t.Fatalf("expected unchanged entity with fallback %+v, got %+v", fallback, got)
		}
	}
}

func TestReconcileIdempotent(t *testing.T) {
	entities := []store.Answer{
		{ID: 1, Content: "a"},
		{ID: 2, Content: "b", Lawyer: &store.LawyerRef{}},
		{ID: 3, Content: "c", Lawyer: &store.LawyerRef{ID: 8}},
		{ID: 4, Content: "d", Lawyer: &store.LawyerRef{UserID: 2}},
	}
	fallbacks := []*store.LawyerRef{
		nil,
		{},
		{UserID: 3, FullName: "A B"},
		{FullName: "No Id"},
	}
	for _, entity := range entities {
		for _, fallback := range fallbacks {
			once := Reconcile(entity, fallback, AnswerLawyerPath)
			twice := Reconcile(once, fallback, AnswerLawyerPath)
			if !reflect.DeepEqual(once, twice) {
				t.Fatalf("not idempotent for %+v / %+v: %+v vs %+v", entity, fallback, once, twice)
			}
		}
	}
}

func TestReconcileQuestionOwner(t *testing.T) {
	prior := *sampleQuestion()
	updated := store.Question{ID: 7, Title: "A brand new and longer title", Content: prior.Content}

	got := Reconcile(updated, PriorOwner(prior), QuestionOwnerPath)

	if got.User == nil || got.User.ID != 3 {
		t.Fatalf("expected owner 3, got %+v", got.User)
	}
	if got.Title != updated.Title {
		t.Fatalf("expected server title, got %q", got.Title)
	}
	if got.User == prior.User {
		t.Fatal("reconciled owner must not alias the prior pointer")
	}
}
