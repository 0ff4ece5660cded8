package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLStore persists questions in the questions table. Choices, child ids and
// tags are JSON-encoded columns, so both sqlite and postgres share one schema.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Put(ctx context.Context, q Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	cj, err := json.Marshal(q.Choices)
	if err != nil {
		return err
	}
	kj, err := json.Marshal(q.ChildIDs)
	if err != nil {
		return err
	}
	tj, err := json.Marshal(q.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions
		(id,variant,text,choices_json,correct_index,passage,child_ids_json,module,org_id,tags_json,difficulty)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
		  variant=EXCLUDED.variant, text=EXCLUDED.text, choices_json=EXCLUDED.choices_json,
		  correct_index=EXCLUDED.correct_index, passage=EXCLUDED.passage,
		  child_ids_json=EXCLUDED.child_ids_json, module=EXCLUDED.module,
		  org_id=EXCLUDED.org_id, tags_json=EXCLUDED.tags_json, difficulty=EXCLUDED.difficulty`,
		q.ID, string(q.Variant), q.Text, string(cj), q.CorrectIndex, q.Passage,
		string(kj), q.Module, q.OrgID, string(tj), q.Difficulty)
	return err
}

const questionCols = `id,variant,text,choices_json,correct_index,passage,child_ids_json,module,org_id,tags_json,difficulty`

func scanQuestion(row interface{ Scan(...any) error }) (Question, error) {
	var q Question
	var variant, cj, kj, tj string
	if err := row.Scan(&q.ID, &variant, &q.Text, &cj, &q.CorrectIndex, &q.Passage,
		&kj, &q.Module, &q.OrgID, &tj, &q.Difficulty); err != nil {
		return Question{}, err
	}
	q.Variant = Variant(variant)
	if err := json.Unmarshal([]byte(cj), &q.Choices); err != nil {
		return Question{}, fmt.Errorf("question %s: choices: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(kj), &q.ChildIDs); err != nil {
		return Question{}, fmt.Errorf("question %s: child ids: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(tj), &q.Tags); err != nil {
		return Question{}, fmt.Errorf("question %s: tags: %w", q.ID, err)
	}
	return q, nil
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions WHERE id=$1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	return q, err
}

func (s *SQLStore) FindByIDs(ctx context.Context, ids []string) ([]Question, error) {
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		q, err := s.FindByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *SQLStore) Sample(ctx context.Context, f Filter, count int) ([]Question, error) {
	if count <= 0 {
		return []Question{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionCols+` FROM questions
		WHERE module=$1 AND (org_id=$2 OR org_id='')
		ORDER BY RANDOM() LIMIT $3`, f.Module, f.OrgID, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountMatching(ctx context.Context, f Filter) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions
		WHERE module=$1 AND (org_id=$2 OR org_id='')`, f.Module, f.OrgID).Scan(&n)
	return n, err
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id)
	return err
}
