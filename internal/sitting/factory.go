package sitting

import (
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// Shuffler is satisfied by *math/rand.Rand.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// New deals a fresh sitting for userID on q. questionIDs must be in catalog
// order; they are shuffled when the quiz asks for random order. The result
// is not persisted.
func New(userID string, q quiz.Quiz, questionIDs []string, sh Shuffler, policy Policy, now time.Time) *Sitting {
	order := append([]string(nil), questionIDs...)
	if q.RandomOrder && sh != nil {
		sh.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return &Sitting{
		ID:        uuid.NewString(),
		UserID:    userID,
		QuizID:    q.ID,
		Questions: order,
		Remaining: append([]string(nil), order...),
		Incorrect: []string{},
		Policy:    policy,
		StartedAt: now,
	}
}
