package quiz

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Catalog is the read-mostly store of categories, questions and quizzes.
// Sittings only read from it.
type Catalog interface {
	PutCategory(ctx context.Context, c Category) (Category, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	PutQuestion(ctx context.Context, q Question) (Question, error)
	GetQuestion(ctx context.Context, id string) (Question, error)
	GetAnswer(ctx context.Context, answerID string) (Answer, error)

	PutQuiz(ctx context.Context, q Quiz) (Quiz, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	ListQuizzes(ctx context.Context, categoryID string) ([]Quiz, error)

	// QuestionIDs returns the quiz's questions in catalog order: grouped by
	// category in the order categories were created (uncategorized last),
	// then by position within the quiz.
	QuestionIDs(ctx context.Context, quizID string) ([]string, error)
}

const maxCategoryDepth = 32

// RootOf walks parent links up to the top-most category.
func RootOf(ctx context.Context, c Catalog, categoryID string) (Category, error) {
	cur, err := c.GetCategory(ctx, categoryID)
	if err != nil {
		return Category{}, err
	}
	for i := 0; cur.ParentID != "" && i < maxCategoryDepth; i++ {
		parent, err := c.GetCategory(ctx, cur.ParentID)
		if err != nil {
			return Category{}, fmt.Errorf("category %s parent: %w", cur.ID, err)
		}
		cur = parent
	}
	return cur, nil
}

func newID() string { return uuid.NewString() }

func prepareQuestion(q Question) Question {
	if q.ID == "" {
		q.ID = newID()
	}
	for i := range q.Answers {
		if q.Answers[i].ID == "" {
			q.Answers[i].ID = newID()
		}
		q.Answers[i].QuestionID = q.ID
	}
	return q
}

type memoryCatalog struct {
	mu         sync.RWMutex
	categories map[string]Category
	catOrder   []string
	questions  map[string]Question
	answers    map[string]Answer
	quizzes    map[string]Quiz
	quizOrder  []string
}

func NewMemoryCatalog() Catalog {
	return &memoryCatalog{
		categories: map[string]Category{},
		questions:  map[string]Question{},
		answers:    map[string]Answer{},
		quizzes:    map[string]Quiz{},
	}
}

func (m *memoryCatalog) PutCategory(_ context.Context, c Category) (Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	if c.ParentID != "" {
		if _, ok := m.categories[c.ParentID]; !ok {
			return Category{}, fmt.Errorf("parent category %s: %w", c.ParentID, ErrNotFound)
		}
	}
	for id, other := range m.categories {
		if id != c.ID && other.Name == c.Name {
			return Category{}, fmt.Errorf("category name %q already used", c.Name)
		}
	}
	if _, ok := m.categories[c.ID]; !ok {
		m.catOrder = append(m.catOrder, c.ID)
	}
	m.categories[c.ID] = c
	return c, nil
}

func (m *memoryCatalog) GetCategory(_ context.Context, id string) (Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (m *memoryCatalog) ListCategories(_ context.Context) ([]Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Category, 0, len(m.catOrder))
	for _, id := range m.catOrder {
		out = append(out, m.categories[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryCatalog) PutQuestion(_ context.Context, q Question) (Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.CategoryID != "" {
		if _, ok := m.categories[q.CategoryID]; !ok {
			return Question{}, fmt.Errorf("category %s: %w", q.CategoryID, ErrNotFound)
		}
	}
	q = prepareQuestion(q)
	if old, ok := m.questions[q.ID]; ok {
		for _, a := range old.Answers {
			delete(m.answers, a.ID)
		}
	}
	for _, a := range q.Answers {
		m.answers[a.ID] = a
	}
	m.questions[q.ID] = q
	return q, nil
}

func (m *memoryCatalog) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	q.Answers = append([]Answer(nil), q.Answers...)
	return q, nil
}

func (m *memoryCatalog) GetAnswer(_ context.Context, answerID string) (Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.answers[answerID]
	if !ok {
		return Answer{}, fmt.Errorf("answer %s: %w", answerID, ErrNotFound)
	}
	return a, nil
}

func (m *memoryCatalog) PutQuiz(_ context.Context, q Quiz) (Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.ID == "" {
		q.ID = newID()
	}
	if q.CategoryID != "" {
		if _, ok := m.categories[q.CategoryID]; !ok {
			return Quiz{}, fmt.Errorf("category %s: %w", q.CategoryID, ErrNotFound)
		}
	}
	for _, qid := range q.QuestionIDs {
		if _, ok := m.questions[qid]; !ok {
			return Quiz{}, fmt.Errorf("question %s: %w", qid, ErrNotFound)
		}
	}
	if old, ok := m.quizzes[q.ID]; ok {
		q.CreatedAt = old.CreatedAt
	} else {
		q.CreatedAt = time.Now().Unix()
		m.quizOrder = append(m.quizOrder, q.ID)
	}
	q.QuestionIDs = append([]string(nil), q.QuestionIDs...)
	m.quizzes[q.ID] = q
	return q, nil
}

func (m *memoryCatalog) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	q.QuestionIDs = append([]string(nil), q.QuestionIDs...)
	return q, nil
}

func (m *memoryCatalog) ListQuizzes(_ context.Context, categoryID string) ([]Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Quiz{}
	for _, id := range m.quizOrder {
		q := m.quizzes[id]
		if categoryID != "" && q.CategoryID != categoryID {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (m *memoryCatalog) QuestionIDs(_ context.Context, quizID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[quizID]
	if !ok {
		return nil, fmt.Errorf("quiz %s: %w", quizID, ErrNotFound)
	}
	rank := make(map[string]int, len(m.catOrder))
	for i, id := range m.catOrder {
		rank[id] = i
	}
	type keyed struct {
		id   string
		rank int
	}
	ks := make([]keyed, 0, len(q.QuestionIDs))
	for _, qid := range q.QuestionIDs {
		k := keyed{id: qid, rank: len(m.catOrder)} // uncategorized sorts last
		if r, ok := rank[m.questions[qid].CategoryID]; ok {
			k.rank = r
		}
		ks = append(ks, k)
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].rank < ks[j].rank })
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = k.id
	}
	return out, nil
}
