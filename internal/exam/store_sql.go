package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLInstanceStore persists exam instances with the token sequence and
// choice mappings JSON-encoded, one row per instance.
type SQLInstanceStore struct {
	db *sql.DB
}

func NewSQLInstanceStore(db *sql.DB) *SQLInstanceStore { return &SQLInstanceStore{db: db} }

func (s *SQLInstanceStore) PutInstance(ctx context.Context, e *ExamInstance) error {
	sj, err := json.Marshal(e.Sequence)
	if err != nil {
		return err
	}
	mj, err := json.Marshal(e.ChoiceMapping)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO exam_instances
		(id,org_id,module,assigned_user_id,sequence_json,mapping_json,created_at,expires_at,finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.OrgID, e.Module, e.AssignedUserID, string(sj), string(mj),
		e.CreatedAt, e.ExpiresAt, e.FinishedAt)
	return err
}

func (s *SQLInstanceStore) GetInstance(ctx context.Context, id string) (*ExamInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,org_id,module,assigned_user_id,sequence_json,mapping_json,created_at,expires_at,finished_at
		FROM exam_instances WHERE id=$1`, id)
	var e ExamInstance
	var sj, mj string
	if err := row.Scan(&e.ID, &e.OrgID, &e.Module, &e.AssignedUserID, &sj, &mj,
		&e.CreatedAt, &e.ExpiresAt, &e.FinishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(sj), &e.Sequence); err != nil {
		return nil, fmt.Errorf("instance %s: sequence: %w", id, err)
	}
	if err := json.Unmarshal([]byte(mj), &e.ChoiceMapping); err != nil {
		return nil, fmt.Errorf("instance %s: mapping: %w", id, err)
	}
	// stored rows must keep the two arrays aligned; pad defensively so a
	// short mapping degrades per-item instead of panicking downstream
	for len(e.ChoiceMapping) < len(e.Sequence) {
		e.ChoiceMapping = append(e.ChoiceMapping, []int{})
	}
	return &e, nil
}

func (s *SQLInstanceStore) MarkFinished(ctx context.Context, id string, at int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE exam_instances SET finished_at=$1 WHERE id=$2`, at, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrExamNotFound
	}
	return nil
}

// SQLAttemptStore keeps attempt rows keyed by id, upserted so resubmission
// policy stays with the scorer rather than the storage layer.
type SQLAttemptStore struct {
	db *sql.DB
}

func NewSQLAttemptStore(db *sql.DB) *SQLAttemptStore { return &SQLAttemptStore{db: db} }

func (s *SQLAttemptStore) CreateOrUpdate(ctx context.Context, a *Attempt) (*Attempt, error) {
	qj, err := json.Marshal(a.QuestionIDs)
	if err != nil {
		return nil, err
	}
	aj, err := json.Marshal(a.Answers)
	if err != nil {
		return nil, err
	}
	passed := 0
	if a.Passed {
		passed = 1
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts
		(id,exam_id,user_id,org_id,module,status,question_ids_json,answers_json,score,max_score,percentage,passed,started_at,finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
		  status=EXCLUDED.status, question_ids_json=EXCLUDED.question_ids_json,
		  answers_json=EXCLUDED.answers_json, score=EXCLUDED.score,
		  max_score=EXCLUDED.max_score, percentage=EXCLUDED.percentage,
		  passed=EXCLUDED.passed, finished_at=EXCLUDED.finished_at`,
		a.ID, a.ExamID, a.UserID, a.OrgID, a.Module, a.Status, string(qj), string(aj),
		a.Score, a.MaxScore, a.Percentage, passed, a.StartedAt, a.FinishedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

const attemptCols = `id,exam_id,user_id,org_id,module,status,question_ids_json,answers_json,score,max_score,percentage,passed,started_at,finished_at`

func scanAttempt(row interface{ Scan(...any) error }) (*Attempt, error) {
	var a Attempt
	var qj, aj string
	var passed int
	if err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.OrgID, &a.Module, &a.Status,
		&qj, &aj, &a.Score, &a.MaxScore, &a.Percentage, &passed, &a.StartedAt, &a.FinishedAt); err != nil {
		return nil, err
	}
	a.Passed = passed != 0
	if err := json.Unmarshal([]byte(qj), &a.QuestionIDs); err != nil {
		return nil, fmt.Errorf("attempt %s: question ids: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(aj), &a.Answers); err != nil {
		return nil, fmt.Errorf("attempt %s: answers: %w", a.ID, err)
	}
	return &a, nil
}

func (s *SQLAttemptStore) FindLatestByExam(ctx context.Context, examID string) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE exam_id=$1 ORDER BY started_at DESC LIMIT 1`, examID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLAttemptStore) FindLatestByUserOrgModule(ctx context.Context, userID, orgID, module string) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE user_id=$1 AND org_id=$2 AND module=$3
		ORDER BY started_at DESC LIMIT 1`, userID, orgID, module)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	return a, err
}
