package quiz

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrEmptyQuiz is advisory: a quiz without questions is still playable
	// and finishes immediately.
	ErrEmptyQuiz = errors.New("quiz has no questions")
)

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"` // thematic hierarchy; "" for a root
}

type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Content    string `json:"content"`
	Correct    bool   `json:"correct,omitempty"`
}

type Question struct {
	ID          string   `json:"id"`
	CategoryID  string   `json:"category_id,omitempty"`
	Content     string   `json:"content"`
	Explanation string   `json:"explanation,omitempty"`
	Answers     []Answer `json:"answers,omitempty"`
}

// Public strips correctness flags so the question can be shown to a taker.
func (q Question) Public() Question {
	out := q
	out.Answers = make([]Answer, len(q.Answers))
	for i, a := range q.Answers {
		a.Correct = false
		out.Answers[i] = a
	}
	return out
}

type Quiz struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	CategoryID  string   `json:"category_id,omitempty"`
	QuestionIDs []string `json:"question_ids"`

	RandomOrder   bool `json:"random_order"`
	RandomAnswers bool `json:"random_answers"`
	AnswersAtEnd  bool `json:"answers_at_end"`
	// ExamPaper keeps finished sittings as permanent records.
	ExamPaper bool `json:"exam_paper"`

	CreatedAt int64 `json:"created_at,omitempty"`
}

// Validate checks the quiz is storable. A nil error paired with an empty
// question list is reported as ErrEmptyQuiz so callers can warn about it.
func (q Quiz) Validate() error {
	if strings.TrimSpace(q.Title) == "" {
		return errors.New("title required")
	}
	seen := make(map[string]struct{}, len(q.QuestionIDs))
	for _, id := range q.QuestionIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate question %q", id)
		}
		seen[id] = struct{}{}
	}
	if len(q.QuestionIDs) == 0 {
		return ErrEmptyQuiz
	}
	return nil
}
