// Package sitting tracks one user's attempt at one quiz: the queue of
// questions still to be served, the running score, the questions answered
// wrongly and whether the attempt is finished.
package sitting

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidState is returned when a complete sitting is mutated.
	ErrInvalidState = errors.New("sitting already complete")
	ErrNotFound     = errors.New("not found")
	// ErrDuplicateSitting means the (user, quiz) pair already has an active
	// sitting; callers resume that one instead.
	ErrDuplicateSitting = errors.New("active sitting already exists")
	// ErrConflict means the stored sitting changed since it was loaded.
	ErrConflict = errors.New("sitting modified concurrently")
)

// Policy decides what a submission does once a question has left the queue.
type Policy struct {
	// Revisable lets a later submission flip an earlier outcome. When false
	// only the first answer to a question counts.
	Revisable bool
	// FloorAtZero clamps the score at 0 when a revision takes a point away.
	FloorAtZero bool
}

var FirstAnswerOnly = Policy{}

type Sitting struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	QuizID string `json:"quiz_id"`

	// Questions is every question of the attempt in the order dealt.
	Questions []string `json:"questions"`
	Remaining []string `json:"remaining"`
	Incorrect []string `json:"incorrect"`
	Score     int      `json:"score"`
	Complete  bool     `json:"complete"`

	Policy  Policy `json:"-"`
	Version int    `json:"version"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *Sitting) PeekNext() (string, bool) {
	if len(s.Remaining) == 0 {
		return "", false
	}
	return s.Remaining[0], true
}

func (s *Sitting) CurrentScore() int   { return s.Score }
func (s *Sitting) Total() int          { return len(s.Questions) }
func (s *Sitting) RemainingCount() int { return len(s.Remaining) }
func (s *Sitting) AnsweredCount() int  { return len(s.Questions) - len(s.Remaining) }
func (s *Sitting) IsComplete() bool    { return s.Complete }

func (s *Sitting) IncorrectIDs() []string {
	return append([]string(nil), s.Incorrect...)
}

// PercentCorrect is round(100*score/total), 0 for an empty quiz.
func (s *Sitting) PercentCorrect() int {
	return percent(s.Score, s.Total())
}

// PercentDone is round(100*answered/total), 0 for an empty quiz.
func (s *Sitting) PercentDone() int {
	return percent(s.AnsweredCount(), s.Total())
}

func percent(n, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(n) / float64(total)))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

func (s *Sitting) SubmitCorrect(questionID string) error   { return s.Submit(questionID, true) }
func (s *Sitting) SubmitIncorrect(questionID string) error { return s.Submit(questionID, false) }

// Submit records an answer to questionID. The first answer removes the
// question from the queue and scores it; later answers are ignored unless
// the policy is revisable.
func (s *Sitting) Submit(questionID string, correct bool) error {
	if s.Complete {
		return ErrInvalidState
	}
	if indexOf(s.Questions, questionID) < 0 {
		return fmt.Errorf("question %s in sitting %s: %w", questionID, s.ID, ErrNotFound)
	}

	if i := indexOf(s.Remaining, questionID); i >= 0 {
		s.Remaining = append(s.Remaining[:i:i], s.Remaining[i+1:]...)
		if correct {
			s.Score++
		} else {
			s.Incorrect = s.insertIncorrect(questionID)
		}
		return nil
	}

	if !s.Policy.Revisable {
		return nil
	}
	wasIncorrect := indexOf(s.Incorrect, questionID) >= 0
	switch {
	case correct && wasIncorrect:
		s.Incorrect = remove(s.Incorrect, questionID)
		s.Score++
	case !correct && !wasIncorrect:
		s.Score--
		if s.Policy.FloorAtZero && s.Score < 0 {
			s.Score = 0
		}
		s.Incorrect = s.insertIncorrect(questionID)
	}
	return nil
}

// Finalize marks the sitting complete. It reports true only for the call
// that made the transition so callers run completion side effects once.
func (s *Sitting) Finalize(now time.Time) bool {
	if s.Complete {
		return false
	}
	s.Complete = true
	s.CompletedAt = &now
	return true
}

// insertIncorrect keeps the incorrect list in dealt order.
func (s *Sitting) insertIncorrect(questionID string) []string {
	out := make([]string, 0, len(s.Incorrect)+1)
	pos := indexOf(s.Questions, questionID)
	placed := false
	for _, id := range s.Incorrect {
		if !placed && indexOf(s.Questions, id) > pos {
			out = append(out, questionID)
			placed = true
		}
		out = append(out, id)
	}
	if !placed {
		out = append(out, questionID)
	}
	return out
}

func indexOf(list []string, id string) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}

func remove(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
