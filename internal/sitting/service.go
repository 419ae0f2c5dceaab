package sitting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// ErrNotOwner is returned when a user touches someone else's sitting.
var ErrNotOwner = errors.New("sitting belongs to another user")

type EventAppender interface {
	Append(ctx context.Context, e syncx.Event) error
}

type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

type AnswerResult struct {
	Outcome Outcome `json:"outcome"`
	// Question, Answer and Explanation are withheld when the quiz shows
	// answers only at the end.
	Question    *quiz.Question `json:"question,omitempty"`
	Answer      *quiz.Answer   `json:"answer,omitempty"`
	Explanation string         `json:"explanation,omitempty"`

	Complete bool     `json:"complete"`
	Summary  *Summary `json:"summary,omitempty"`
}

type Next struct {
	Question       *quiz.Question `json:"question,omitempty"`
	Category       string         `json:"category,omitempty"`
	PercentCorrect int            `json:"percent_correct"`
	PercentDone    int            `json:"percent_done"`
	Remaining      int            `json:"remaining"`
	Total          int            `json:"total"`

	Complete bool     `json:"complete"`
	Summary  *Summary `json:"summary,omitempty"`
}

type Summary struct {
	SittingID    string   `json:"sitting_id"`
	QuizID       string   `json:"quiz_id"`
	UserID       string   `json:"user_id"`
	Score        int      `json:"score"`
	MaxScore     int      `json:"max_score"`
	Percent      int      `json:"percent"`
	IncorrectIDs []string `json:"incorrect_question_ids"`
	Complete     bool     `json:"complete"`
	// Review lists every question with its answers when the quiz reveals
	// answers at the end.
	Review []quiz.Question `json:"review,omitempty"`
}

// Summarize is the score card of s without any catalog lookups.
func Summarize(s *Sitting) Summary {
	return Summary{
		SittingID:    s.ID,
		QuizID:       s.QuizID,
		UserID:       s.UserID,
		Score:        s.CurrentScore(),
		MaxScore:     s.Total(),
		Percent:      s.PercentCorrect(),
		IncorrectIDs: s.IncorrectIDs(),
		Complete:     s.Complete,
	}
}

type globalRand struct{}

func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

type Service struct {
	Catalog quiz.Catalog
	Repo    Repository
	Events  EventAppender // optional
	Policy  Policy
	Shuffle Shuffler
	Now     func() time.Time
}

func (svc *Service) shuffler() Shuffler {
	if svc.Shuffle == nil {
		return globalRand{}
	}
	return svc.Shuffle
}

func (svc *Service) now() time.Time {
	if svc.Now == nil {
		return time.Now()
	}
	return svc.Now()
}

func NewService(catalog quiz.Catalog, repo Repository, events EventAppender, policy Policy) *Service {
	return &Service{
		Catalog: catalog,
		Repo:    repo,
		Events:  events,
		Policy:  policy,
		Shuffle: globalRand{},
		Now:     time.Now,
	}
}

// StartOrResume returns the user's active sitting on quizID, dealing a new
// one when there is none.
func (svc *Service) StartOrResume(ctx context.Context, userID, quizID string) (*Sitting, error) {
	qz, err := svc.Catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	s, err := svc.Repo.FindActive(ctx, userID, quizID)
	if err == nil {
		s.Policy = svc.Policy
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	ids, err := svc.Catalog.QuestionIDs(ctx, quizID)
	if err != nil {
		return nil, err
	}
	s = New(userID, qz, ids, svc.shuffler(), svc.Policy, svc.now())
	if err := svc.Repo.Create(ctx, s); err != nil {
		if errors.Is(err, ErrDuplicateSitting) {
			// lost the race to a concurrent start; use the winner's sitting
			s, err = svc.Repo.FindActive(ctx, userID, quizID)
			if err != nil {
				return nil, err
			}
			s.Policy = svc.Policy
			return s, nil
		}
		return nil, err
	}
	log.Printf("sitting %s started: user=%s quiz=%s questions=%d", s.ID, userID, quizID, s.Total())
	return s, nil
}

// load fetches a sitting; an empty userID skips the ownership check.
func (svc *Service) load(ctx context.Context, sittingID, userID string) (*Sitting, error) {
	s, err := svc.Repo.Get(ctx, sittingID)
	if err != nil {
		return nil, err
	}
	if userID != "" && s.UserID != userID {
		return nil, ErrNotOwner
	}
	s.Policy = svc.Policy
	return s, nil
}

func (svc *Service) Get(ctx context.Context, sittingID, userID string) (*Sitting, error) {
	return svc.load(ctx, sittingID, userID)
}

func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Sitting, error) {
	return svc.Repo.List(ctx, opts)
}

// Answer scores answerID against the sitting and finishes the sitting when
// its queue runs dry.
func (svc *Service) Answer(ctx context.Context, sittingID, userID, answerID string) (AnswerResult, error) {
	s, err := svc.load(ctx, sittingID, userID)
	if err != nil {
		return AnswerResult{}, err
	}
	if s.Complete {
		return AnswerResult{}, ErrInvalidState
	}
	qz, err := svc.Catalog.GetQuiz(ctx, s.QuizID)
	if err != nil {
		return AnswerResult{}, err
	}
	ans, err := svc.Catalog.GetAnswer(ctx, answerID)
	if err != nil {
		return AnswerResult{}, err
	}
	if err := s.Submit(ans.QuestionID, ans.Correct); err != nil {
		return AnswerResult{}, err
	}

	res := AnswerResult{Outcome: OutcomeIncorrect}
	if ans.Correct {
		res.Outcome = OutcomeCorrect
	}
	if !qz.AnswersAtEnd {
		q, err := svc.Catalog.GetQuestion(ctx, ans.QuestionID)
		if err != nil {
			return AnswerResult{}, err
		}
		res.Question = &q
		res.Answer = &ans
		res.Explanation = q.Explanation
	}

	finalized := false
	if s.RemainingCount() == 0 {
		finalized = s.Finalize(svc.now())
	}
	if err := svc.commit(ctx, qz, s, finalized); err != nil {
		return AnswerResult{}, err
	}
	if s.Complete {
		sum, err := svc.summary(ctx, qz, s)
		if err != nil {
			return AnswerResult{}, err
		}
		res.Complete, res.Summary = true, &sum
	}
	return res, nil
}

// NextQuestion serves the front of the queue, or finishes the sitting and
// returns its summary when nothing is left.
func (svc *Service) NextQuestion(ctx context.Context, sittingID, userID string) (Next, error) {
	s, err := svc.load(ctx, sittingID, userID)
	if err != nil {
		return Next{}, err
	}
	qz, err := svc.Catalog.GetQuiz(ctx, s.QuizID)
	if err != nil {
		return Next{}, err
	}

	qid, ok := s.PeekNext()
	if !ok || s.Complete {
		if finalized := s.Finalize(svc.now()); finalized {
			if err := svc.commit(ctx, qz, s, true); err != nil {
				return Next{}, err
			}
		}
		sum, err := svc.summary(ctx, qz, s)
		if err != nil {
			return Next{}, err
		}
		return Next{
			PercentCorrect: s.PercentCorrect(),
			PercentDone:    s.PercentDone(),
			Total:          s.Total(),
			Complete:       true,
			Summary:        &sum,
		}, nil
	}

	q, err := svc.Catalog.GetQuestion(ctx, qid)
	if err != nil {
		return Next{}, err
	}
	pub := q.Public()
	if qz.RandomAnswers {
		svc.shuffler().Shuffle(len(pub.Answers), func(i, j int) {
			pub.Answers[i], pub.Answers[j] = pub.Answers[j], pub.Answers[i]
		})
	}
	next := Next{
		Question:       &pub,
		PercentCorrect: s.PercentCorrect(),
		PercentDone:    s.PercentDone(),
		Remaining:      s.RemainingCount(),
		Total:          s.Total(),
	}
	if catID := firstNonEmpty(qz.CategoryID, q.CategoryID); catID != "" {
		if root, err := quiz.RootOf(ctx, svc.Catalog, catID); err == nil {
			next.Category = root.Name
		}
	}
	return next, nil
}

// GiveUp finishes the sitting where it stands. Giving up on a finished
// sitting just returns its summary.
func (svc *Service) GiveUp(ctx context.Context, sittingID, userID string) (Summary, error) {
	s, err := svc.load(ctx, sittingID, userID)
	if err != nil {
		return Summary{}, err
	}
	qz, err := svc.Catalog.GetQuiz(ctx, s.QuizID)
	if err != nil {
		return Summary{}, err
	}
	if s.Finalize(svc.now()) {
		if err := svc.commit(ctx, qz, s, true); err != nil {
			return Summary{}, err
		}
	}
	return svc.summary(ctx, qz, s)
}

// Summary is the score card of s, with the review list when the quiz
// reveals answers at the end.
func (svc *Service) Summary(ctx context.Context, s *Sitting) (Summary, error) {
	qz, err := svc.Catalog.GetQuiz(ctx, s.QuizID)
	if err != nil {
		return Summary{}, err
	}
	return svc.summary(ctx, qz, s)
}

func (svc *Service) summary(ctx context.Context, qz quiz.Quiz, s *Sitting) (Summary, error) {
	sum := Summarize(s)
	if qz.AnswersAtEnd && s.Complete {
		sum.Review = make([]quiz.Question, 0, len(s.Questions))
		for _, qid := range s.Questions {
			q, err := svc.Catalog.GetQuestion(ctx, qid)
			if err != nil {
				return Summary{}, err
			}
			sum.Review = append(sum.Review, q)
		}
	}
	return sum, nil
}

// commit writes s back. A sitting finalized by this request is recorded in
// the event log and then dropped unless the quiz keeps exam papers.
func (svc *Service) commit(ctx context.Context, qz quiz.Quiz, s *Sitting, finalized bool) error {
	if err := svc.Repo.Update(ctx, s); err != nil {
		return err
	}
	if !finalized {
		return nil
	}
	log.Printf("sitting %s finished: user=%s quiz=%s score=%d/%d", s.ID, s.UserID, s.QuizID, s.Score, s.Total())
	if svc.Events != nil {
		svc.recordCompletion(ctx, s)
	}
	return svc.persistOrDiscard(ctx, qz, s)
}

// recordCompletion appends the SittingCompleted event. Failures are logged;
// the sitting itself is already saved.
func (svc *Service) recordCompletion(ctx context.Context, s *Sitting) {
	data, err := json.Marshal(Summarize(s))
	if err != nil {
		log.Printf("sitting %s: encode completion event: %v", s.ID, err)
		return
	}
	if err := svc.Events.Append(ctx, syncx.Event{
		Type:     syncx.TypeSittingCompleted,
		Key:      s.ID,
		DataJSON: string(data),
	}); err != nil {
		log.Printf("sitting %s: event log append: %v", s.ID, err)
	}
}

func (svc *Service) persistOrDiscard(ctx context.Context, qz quiz.Quiz, s *Sitting) error {
	if qz.ExamPaper {
		return nil
	}
	if err := svc.Repo.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("discard sitting %s: %w", s.ID, err)
	}
	log.Printf("sitting %s discarded (quiz %s keeps no exam papers)", s.ID, qz.ID)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
