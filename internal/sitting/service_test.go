package sitting_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/sitting"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

/* ---------------- fakes ---------------- */

type fakeEvents struct{ got []syncx.Event }

func (f *fakeEvents) Append(_ context.Context, e syncx.Event) error {
	f.got = append(f.got, e)
	return nil
}

// reverseShuffler makes "random" order deterministic.
type reverseShuffler struct{}

func (reverseShuffler) Shuffle(n int, swap func(i, j int)) {
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}

type fixture struct {
	svc     *sitting.Service
	catalog quiz.Catalog
	repo    sitting.Repository
	events  *fakeEvents
	// question id -> [correct answer id, wrong answer id]
	answers map[string][2]string
}

func seedCatalog(t *testing.T, ctx context.Context, cat quiz.Catalog, qz quiz.Quiz, n int) (quiz.Quiz, map[string][2]string) {
	t.Helper()
	root, err := cat.PutCategory(ctx, quiz.Category{ID: "cat-root", Name: "Science"})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	child, err := cat.PutCategory(ctx, quiz.Category{ID: "cat-bio", Name: "Biology", ParentID: root.ID})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	answers := map[string][2]string{}
	for i := 1; i <= n; i++ {
		id := "q" + string(rune('0'+i))
		q, err := cat.PutQuestion(ctx, quiz.Question{
			ID:          id,
			CategoryID:  child.ID,
			Content:     "Question " + id,
			Explanation: "because " + id,
			Answers: []quiz.Answer{
				{ID: id + "-right", Content: "right", Correct: true},
				{ID: id + "-wrong", Content: "wrong"},
			},
		})
		if err != nil {
			t.Fatalf("seed question: %v", err)
		}
		answers[q.ID] = [2]string{q.Answers[0].ID, q.Answers[1].ID}
		qz.QuestionIDs = append(qz.QuestionIDs, q.ID)
	}
	qz.CategoryID = child.ID
	if qz.Title == "" {
		qz.Title = "Quiz"
	}
	qz, err = cat.PutQuiz(ctx, qz)
	if err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return qz, answers
}

func newFixture(t *testing.T, qz quiz.Quiz, n int, policy sitting.Policy) (*fixture, quiz.Quiz) {
	t.Helper()
	ctx := context.Background()
	cat := quiz.NewMemoryCatalog()
	qz, answers := seedCatalog(t, ctx, cat, qz, n)
	repo := sitting.NewMemoryRepository()
	ev := &fakeEvents{}
	svc := sitting.NewService(cat, repo, ev, policy)
	svc.Shuffle = reverseShuffler{}
	svc.Now = func() time.Time { return t0 }
	return &fixture{svc: svc, catalog: cat, repo: repo, events: ev, answers: answers}, qz
}

/* ---------------- tests ---------------- */

func TestService_StartOrResumeReusesActiveSitting(t *testing.T) {
	f, qz := newFixture(t, quiz.Quiz{ID: "quiz-1"}, 3, sitting.FirstAnswerOnly)
	ctx := context.Background()

	first, err := f.svc.StartOrResume(ctx, "u1", qz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !reflect.DeepEqual(first.Remaining, []string{"q1", "q2", "q3"}) {
		t.Fatalf("expected catalog order, got %v", first.Remaining)
	}
	again, err := f.svc.StartOrResume(ctx, "u1", qz.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected resume of %s, got %s", first.ID, again.ID)
	}
	other, err := f.svc.StartOrResume(ctx, "u2", qz.ID)
	if err != nil {
		t.Fatalf("start u2: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("expected a separate sitting for another user")
	}
}

func TestService_StartUnknownQuiz(t *testing.T) {
	f, _ := newFixture(t, quiz.Quiz{ID: "quiz-1"}, 1, sitting.FirstAnswerOnly)
	_, err := f.svc.StartOrResume(context.Background(), "u1", "missing")
	if !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected quiz.ErrNotFound, got %v", err)
	}
}

func TestService_RandomOrderUsesShuffler(t *testing.T) {
	f, qz := newFixture(t, quiz.Quiz{ID: "quiz-1", RandomOrder: true}, 3, sitting.FirstAnswerOnly)
	s, err := f.svc.StartOrResume(context.Background(), "u1", qz.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.Remaining, []string{"q3", "q2", "q1"}) {
		t.Fatalf("expected shuffled order, got %v", s.Remaining)
	}
}

func TestService_FullRunDiscardsWithoutExamPaper(t *testing.T) {
	f, qz := newFixture(t, quiz.Quiz{ID: "quiz-1"}, 3, sitting.FirstAnswerOnly)
	ctx := context.Background()
	s, _ := f.svc.StartOrResume(ctx, "u1", qz.ID)

	next, err := f.svc.NextQuestion(ctx, s.ID, "u1")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.Question == nil || next.Question.ID != "q1" {
		t.Fatalf("expected q1, got %+v", next.Question)
	}
	if next.Category != "Science" {
		t.Fatalf("expected root category Science, got %q", next.Category)
	}
	for _, a := range next.Question.Answers {
		if a.Correct {
			t.Fatalf("served question leaks correctness: %+v", a)
		}
	}

	res, err := f.svc.Answer(ctx, s.ID, "u1", f.answers["q1"][0])
	if err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if res.Outcome != sitting.OutcomeCorrect || res.Explanation != "because q1" || res.Complete {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := f.svc.Answer(ctx, s.ID, "u1", f.answers["q2"][1]); err != nil {
		t.Fatalf("answer q2: %v", err)
	}
	res, err = f.svc.Answer(ctx, s.ID, "u1", f.answers["q3"][0])
	if err != nil {
		t.Fatalf("answer q3: %v", err)
	}
	if !res.Complete || res.Summary == nil {
		t.Fatalf("expected completion summary, got %+v", res)
	}
	want := sitting.Summary{
		SittingID: s.ID, QuizID: qz.ID, UserID: "u1",
		Score: 2, MaxScore: 3, Percent: 67,
		IncorrectIDs: []string{"q2"}, Complete: true,
	}
	if !reflect.DeepEqual(*res.Summary, want) {
		t.Fatalf("summary mismatch:\n got %+v\nwant %+v", *res.Summary, want)
	}

	if _, err := f.repo.Get(ctx, s.ID); !errors.Is(err, sitting.ErrNotFound) {
		t.Fatalf("expected sitting discarded, got %v", err)
	}
	if len(f.events.got) != 1 || f.events.got[0].Type != syncx.TypeSittingCompleted || f.events.got[0].Key != s.ID {
		t.Fatalf("expected one SittingCompleted event, got %+v", f.events.got)
	}
	var logged sitting.Summary
	if err := json.Unmarshal([]byte(f.events.got[0].DataJSON), &logged); err != nil || logged.Score != 2 {
		t.Fatalf("unexpected event payload %q (%v)", f.events.got[0].DataJSON, err)
	}

	// a new start deals a fresh sitting
	again, err := f.svc.StartOrResume(ctx, "u1", qz.ID)
	if err != nil || again.ID == s.ID || again.Score != 0 {
		t.Fatalf("expected a fresh sitting, got %+v (%v)", again, err)
	}
}

func TestService_ExamPaperKeepsRecord(t *testing.T) {
	f, qz := newFixture(t, quiz.Quiz{ID: "quiz-1", ExamPaper: true, AnswersAtEnd: true}, 2, sitting.FirstAnswerOnly)
	ctx := context.Background()
	s, _ := f.svc.StartOrResume(ctx, "u1", qz.ID)

	res, err := f.svc.Answer(ctx, s.ID, "u1", f.answers["q1"][1])
	if err != nil {
		t.Fatal(err)
	}
	if res.Question != nil || res.Explanation != "" {
		t.Fatalf("answers_at_end must withhold the outcome details, got %+v", res)
	}
	if _, err := f.svc.Answer(ctx, s.ID, "u1", f.answers["q2"][0]); err != nil {
		t.Fatal(err)
	}

	kept, err := f.repo.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("expected kept exam paper: %v", err)
	}
	if !kept.Complete || kept.Score != 1 {
		t.Fatalf("unexpected stored record: %+v", kept)
	}
	next, err := f.svc.NextQuestion(ctx, s.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !next.Complete || next.Summary == nil || len(next.Summary.Review) != 2 {
		t.Fatalf("expected completed summary with review, got %+v", next)
	}
	if _, err := f.svc.Answer(ctx, s.ID, "u1", f.answers["q1"][0]); !errors.Is(err, sitting.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if len(f.events.got) != 1 {
		t.Fatalf("expected completion side effects once, got %d events", len(f.events.got))
	}
}

func TestService_GiveUpMidQuiz(t *testing.T) {
	f, qz := newFixture(t, quiz.Quiz{ID: "quiz-1", ExamPaper: true}, 3, sitting.FirstAnswerOnly)
	ctx := context.Background()
	s, _ := f.svc.StartOrResume(ctx, "u1", qz.ID)
	_, _ = f.svc.Answer(ctx, s.ID, "u1", f.answers["q1"][0])

	sum, err := f.svc.GiveUp(ctx, s.ID, "u1")
	if err != nil {
		t.Fatalf("give up: %v", err)
	}
	if !sum.Complete || sum.Score != 1 || sum.MaxScore != 3 || sum.Percent != 33 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if _, err := f.svc.GiveUp(ctx, s.ID, "u1"); err != nil {
		t.Fatalf("second give up: %v", err)
	}
	if len(f.events.got) != 1 {
		t.Fatalf("expected one completion event, got %d", len(f.events.got))
	}
	// the pair has no active sitting any more
	if _, err := f.repo.FindActive(ctx, "u1", qz.ID); !errors.Is(err, sitting.ErrNotFound) {
		t.Fatalf("expected no active sitting, got %v", err)
	}
}

func TestService_EmptyQuizCompletesImmediately(t *testing.T) {
	f, qz := newFixture(t, quiz.Quiz{ID: "quiz-empty"}, 0, sitting.FirstAnswerOnly)
	ctx := context.Background()
	s, err := f.svc.StartOrResume(ctx, "u1", qz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	next, err := f.svc.NextQuestion(ctx, s.ID, "u1")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.Complete || next.Summary.Percent != 0 || next.Summary.MaxScore != 0 {
		t.Fatalf("unexpected %+v", next)
	}
}

func TestService_OwnershipAndUnknownAnswer(t *testing.T) {
	f, qz := newFixture(t, quiz.Quiz{ID: "quiz-1"}, 2, sitting.FirstAnswerOnly)
	ctx := context.Background()
	s, _ := f.svc.StartOrResume(ctx, "u1", qz.ID)

	if _, err := f.svc.Answer(ctx, s.ID, "intruder", f.answers["q1"][0]); !errors.Is(err, sitting.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := f.svc.Answer(ctx, s.ID, "u1", "no-such-answer"); !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected quiz.ErrNotFound, got %v", err)
	}
	if _, err := f.svc.NextQuestion(ctx, "no-such-sitting", "u1"); !errors.Is(err, sitting.ErrNotFound) {
		t.Fatalf("expected sitting.ErrNotFound, got %v", err)
	}
}

func TestService_RevisablePolicy(t *testing.T) {
	f, qz := newFixture(t, quiz.Quiz{ID: "quiz-1", ExamPaper: true}, 2, sitting.Policy{Revisable: true, FloorAtZero: true})
	ctx := context.Background()
	s, _ := f.svc.StartOrResume(ctx, "u1", qz.ID)

	_, _ = f.svc.Answer(ctx, s.ID, "u1", f.answers["q1"][1])
	if _, err := f.svc.Answer(ctx, s.ID, "u1", f.answers["q1"][0]); err != nil {
		t.Fatalf("revise: %v", err)
	}
	got, _ := f.svc.Get(ctx, s.ID, "u1")
	if got.Score != 1 || len(got.Incorrect) != 0 || got.RemainingCount() != 1 {
		t.Fatalf("unexpected state after revision: %+v", got)
	}
}

func TestService_StaleUpdateConflicts(t *testing.T) {
	f, qz := newFixture(t, quiz.Quiz{ID: "quiz-1"}, 2, sitting.FirstAnswerOnly)
	ctx := context.Background()
	s, _ := f.svc.StartOrResume(ctx, "u1", qz.ID)

	a, _ := f.repo.Get(ctx, s.ID)
	b, _ := f.repo.Get(ctx, s.ID)
	_ = a.SubmitCorrect("q1")
	if err := f.repo.Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	_ = b.SubmitCorrect("q1")
	if err := f.repo.Update(ctx, b); !errors.Is(err, sitting.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := f.repo.Get(ctx, s.ID)
	if got.Score != 1 {
		t.Fatalf("answer double counted: score=%d", got.Score)
	}
}

// racingRepo loses every Create to a concurrent start: the winner's sitting
// appears in the store and Create reports the duplicate.
type racingRepo struct {
	sitting.Repository
	winner  *sitting.Sitting
	creates int
}

func (r *racingRepo) Create(ctx context.Context, s *sitting.Sitting) error {
	r.creates++
	if err := r.Repository.Create(ctx, r.winner); err != nil {
		return err
	}
	return sitting.ErrDuplicateSitting
}

func TestService_StartOrResumeLosesCreateRace(t *testing.T) {
	ctx := context.Background()
	cat := quiz.NewMemoryCatalog()
	qz, _ := seedCatalog(t, ctx, cat, quiz.Quiz{ID: "quiz-1"}, 2)

	winner := sitting.New("u1", qz, qz.QuestionIDs, nil, sitting.FirstAnswerOnly, t0)
	repo := &racingRepo{Repository: sitting.NewMemoryRepository(), winner: winner}
	policy := sitting.Policy{Revisable: true, FloorAtZero: true}
	svc := sitting.NewService(cat, repo, nil, policy)

	got, err := svc.StartOrResume(ctx, "u1", qz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if repo.creates != 1 {
		t.Fatalf("expected one create attempt, got %d", repo.creates)
	}
	if got.ID != winner.ID {
		t.Fatalf("expected winner %s, got %s", winner.ID, got.ID)
	}
	if got.Policy != policy {
		t.Fatalf("expected service policy %+v, got %+v", policy, got.Policy)
	}
}
