package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

type SQLCatalog struct {
	db *sql.DB
}

func NewSQLCatalog(dbh *sql.DB) *SQLCatalog {
	return &SQLCatalog{db: dbh}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *SQLCatalog) PutCategory(ctx context.Context, c Category) (Category, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO categories (id,name,parent_id,seq)
		VALUES ($1,$2,$3,(SELECT COALESCE(MAX(seq),0)+1 FROM categories))
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, parent_id=EXCLUDED.parent_id`,
		c.ID, c.Name, nullIfEmpty(c.ParentID))
	if err != nil {
		return Category{}, fmt.Errorf("put category: %w", err)
	}
	return c, nil
}

func (s *SQLCatalog) GetCategory(ctx context.Context, id string) (Category, error) {
	var c Category
	var parent sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id,name,parent_id FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Category{}, err
	}
	c.ParentID = parent.String
	return c, nil
}

func (s *SQLCatalog) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,parent_id FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Category{}
	for rows.Next() {
		var c Category
		var parent sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &parent); err != nil {
			return nil, err
		}
		c.ParentID = parent.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLCatalog) PutQuestion(ctx context.Context, q Question) (Question, error) {
	q = prepareQuestion(q)
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO questions (id,category_id,content,explanation,created_at)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (id) DO UPDATE SET category_id=EXCLUDED.category_id, content=EXCLUDED.content, explanation=EXCLUDED.explanation`,
			q.ID, nullIfEmpty(q.CategoryID), q.Content, q.Explanation, time.Now().Unix()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE question_id=$1`, q.ID); err != nil {
			return err
		}
		for i, a := range q.Answers {
			if _, err := tx.ExecContext(ctx, `INSERT INTO answers (id,question_id,position,content,correct)
				VALUES ($1,$2,$3,$4,$5)`, a.ID, q.ID, i, a.Content, a.Correct); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Question{}, fmt.Errorf("put question: %w", err)
	}
	return q, nil
}

func (s *SQLCatalog) GetQuestion(ctx context.Context, id string) (Question, error) {
	var q Question
	var cat sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id,category_id,content,explanation FROM questions WHERE id=$1`, id).
		Scan(&q.ID, &cat, &q.Content, &q.Explanation)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Question{}, err
	}
	q.CategoryID = cat.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT id,question_id,content,correct FROM answers WHERE question_id=$1 ORDER BY position`, id)
	if err != nil {
		return Question{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Content, &a.Correct); err != nil {
			return Question{}, err
		}
		q.Answers = append(q.Answers, a)
	}
	return q, rows.Err()
}

func (s *SQLCatalog) GetAnswer(ctx context.Context, answerID string) (Answer, error) {
	var a Answer
	err := s.db.QueryRowContext(ctx, `SELECT id,question_id,content,correct FROM answers WHERE id=$1`, answerID).
		Scan(&a.ID, &a.QuestionID, &a.Content, &a.Correct)
	if errors.Is(err, sql.ErrNoRows) {
		return Answer{}, fmt.Errorf("answer %s: %w", answerID, ErrNotFound)
	}
	return a, err
}

func (s *SQLCatalog) PutQuiz(ctx context.Context, q Quiz) (Quiz, error) {
	if q.ID == "" {
		q.ID = newID()
	}
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, qid := range q.QuestionIDs {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM questions WHERE id=$1`, qid).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("question %s: %w", qid, ErrNotFound)
			}
			if err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO quizzes
			(id,title,description,category_id,random_order,random_answers,answers_at_end,exam_paper,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description,
				category_id=EXCLUDED.category_id, random_order=EXCLUDED.random_order,
				random_answers=EXCLUDED.random_answers, answers_at_end=EXCLUDED.answers_at_end,
				exam_paper=EXCLUDED.exam_paper`,
			q.ID, q.Title, q.Description, nullIfEmpty(q.CategoryID),
			q.RandomOrder, q.RandomAnswers, q.AnswersAtEnd, q.ExamPaper, q.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_questions WHERE quiz_id=$1`, q.ID); err != nil {
			return err
		}
		for i, qid := range q.QuestionIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO quiz_questions (quiz_id,question_id,position)
				VALUES ($1,$2,$3)`, q.ID, qid, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Quiz{}, fmt.Errorf("put quiz: %w", err)
	}
	return q, nil
}

const quizColumns = `id,title,description,category_id,random_order,random_answers,answers_at_end,exam_paper,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuiz(r rowScanner) (Quiz, error) {
	var q Quiz
	var cat sql.NullString
	err := r.Scan(&q.ID, &q.Title, &q.Description, &cat,
		&q.RandomOrder, &q.RandomAnswers, &q.AnswersAtEnd, &q.ExamPaper, &q.CreatedAt)
	q.CategoryID = cat.String
	return q, err
}

func (s *SQLCatalog) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	q, err := scanQuiz(s.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Quiz{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id FROM quiz_questions WHERE quiz_id=$1 ORDER BY position`, id)
	if err != nil {
		return Quiz{}, err
	}
	defer rows.Close()
	q.QuestionIDs = []string{}
	for rows.Next() {
		var qid string
		if err := rows.Scan(&qid); err != nil {
			return Quiz{}, err
		}
		q.QuestionIDs = append(q.QuestionIDs, qid)
	}
	return q, rows.Err()
}

// ListQuizzes returns quiz headers; QuestionIDs is left empty.
func (s *SQLCatalog) ListQuizzes(ctx context.Context, categoryID string) ([]Quiz, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if categoryID == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY created_at, id`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE category_id=$1 ORDER BY created_at, id`, categoryID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Quiz{}
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLCatalog) QuestionIDs(ctx context.Context, quizID string) ([]string, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE id=$1`, quizID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quiz %s: %w", quizID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT qq.question_id
		  FROM quiz_questions qq
		  JOIN questions q ON q.id = qq.question_id
		  LEFT JOIN categories c ON c.id = q.category_id
		 WHERE qq.quiz_id=$1
		 ORDER BY CASE WHEN c.id IS NULL THEN 1 ELSE 0 END, c.seq, qq.position`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
