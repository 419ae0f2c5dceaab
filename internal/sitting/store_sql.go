package sitting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

const (
	statusPending   = "pending"
	statusCorrect   = "correct"
	statusIncorrect = "incorrect"
)

// SQLRepository keeps the dealt question list as owned child rows in
// sitting_questions; the partial unique index ux_sittings_active enforces
// one incomplete sitting per (user, quiz).
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(dbh *sql.DB) *SQLRepository {
	return &SQLRepository{db: dbh}
}

func questionStatus(s *Sitting, qid string) string {
	switch {
	case indexOf(s.Remaining, qid) >= 0:
		return statusPending
	case indexOf(s.Incorrect, qid) >= 0:
		return statusIncorrect
	default:
		return statusCorrect
	}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func (r *SQLRepository) Create(ctx context.Context, s *Sitting) error {
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sittings
			(id,user_id,quiz_id,score,complete,version,started_at,completed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			s.ID, s.UserID, s.QuizID, s.Score, s.Complete, s.Version, s.StartedAt.Unix(), nullTime(s.CompletedAt)); err != nil {
			return err
		}
		for i, qid := range s.Questions {
			if _, err := tx.ExecContext(ctx, `INSERT INTO sitting_questions (sitting_id,position,question_id,status)
				VALUES ($1,$2,$3,$4)`, s.ID, i, qid, questionStatus(s, qid)); err != nil {
				return err
			}
		}
		return nil
	})
	if db.IsUniqueViolation(err) {
		return ErrDuplicateSitting
	}
	if err != nil {
		return fmt.Errorf("create sitting: %w", err)
	}
	return nil
}

const sittingColumns = `id,user_id,quiz_id,score,complete,version,started_at,completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSitting(row rowScanner) (*Sitting, error) {
	var (
		s         Sitting
		started   int64
		completed sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.QuizID, &s.Score, &s.Complete, &s.Version, &started, &completed); err != nil {
		return nil, err
	}
	s.StartedAt = time.Unix(started, 0)
	if completed.Valid {
		t := time.Unix(completed.Int64, 0)
		s.CompletedAt = &t
	}
	return &s, nil
}

func (r *SQLRepository) loadQuestions(ctx context.Context, s *Sitting) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT question_id,status FROM sitting_questions WHERE sitting_id=$1 ORDER BY position`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	s.Questions, s.Remaining, s.Incorrect = []string{}, []string{}, []string{}
	for rows.Next() {
		var qid, status string
		if err := rows.Scan(&qid, &status); err != nil {
			return err
		}
		s.Questions = append(s.Questions, qid)
		switch status {
		case statusPending:
			s.Remaining = append(s.Remaining, qid)
		case statusIncorrect:
			s.Incorrect = append(s.Incorrect, qid)
		}
	}
	return rows.Err()
}

func (r *SQLRepository) FindActive(ctx context.Context, userID, quizID string) (*Sitting, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sittingColumns+` FROM sittings
		WHERE user_id=$1 AND quiz_id=$2 AND complete=$3`, userID, quizID, false)
	s, err := scanSitting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active sitting for %s on %s: %w", userID, quizID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadQuestions(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SQLRepository) Get(ctx context.Context, id string) (*Sitting, error) {
	s, err := scanSitting(r.db.QueryRowContext(ctx, `SELECT `+sittingColumns+` FROM sittings WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sitting %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadQuestions(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Update writes s if nobody else changed it since it was read, then bumps
// s.Version.
func (r *SQLRepository) Update(ctx context.Context, s *Sitting) error {
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sittings
			SET score=$1, complete=$2, completed_at=$3, version=version+1
			WHERE id=$4 AND version=$5`,
			s.Score, s.Complete, nullTime(s.CompletedAt), s.ID, s.Version)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM sittings WHERE id=$1`, s.ID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("sitting %s: %w", s.ID, ErrNotFound)
			}
			if err != nil {
				return err
			}
			return ErrConflict
		}
		for _, qid := range s.Questions {
			if _, err := tx.ExecContext(ctx, `UPDATE sitting_questions SET status=$1
				WHERE sitting_id=$2 AND question_id=$3`, questionStatus(s, qid), s.ID, qid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.Version++
	return nil
}

func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sitting_questions WHERE sitting_id=$1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sittings WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("sitting %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (r *SQLRepository) List(ctx context.Context, opts ListOpts) ([]*Sitting, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.QuizID != "" {
		add("quiz_id=$%d", opts.QuizID)
	}
	if opts.UserID != "" {
		add("user_id=$%d", opts.UserID)
	}
	if opts.Complete != nil {
		add("complete=$%d", *opts.Complete)
	}
	q := `SELECT ` + sittingColumns + ` FROM sittings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, id`
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit, opts.Offset)
	q += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var out []*Sitting
	for rows.Next() {
		s, err := scanSitting(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, s := range out {
		if err := r.loadQuestions(ctx, s); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []*Sitting{}
	}
	return out, nil
}
