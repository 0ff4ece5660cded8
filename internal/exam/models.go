package exam

import "time"

type TokenKind string

const (
	// TokenQuestion references a gradable standalone question.
	TokenQuestion TokenKind = "question"
	// TokenParent marks the start of a comprehension block; the parent's
	// children follow it as question tokens in their stored order.
	TokenParent TokenKind = "parent"
)

type Token struct {
	Kind TokenKind `json:"kind"`
	ID   string    `json:"id"`
}

// ExamInstance is the persisted outcome of one composition: which questions
// one learner session sees and how each question's choices were shuffled.
// Immutable after creation except FinishedAt.
type ExamInstance struct {
	ID             string  `json:"exam_id"`
	OrgID          string  `json:"org_id,omitempty"`
	Module         string  `json:"module,omitempty"`
	AssignedUserID string  `json:"assigned_user_id,omitempty"`
	Sequence       []Token `json:"sequence"`
	// ChoiceMapping is index-aligned with Sequence. For a question token,
	// entry[displayPos] = canonical choice index. Parent tokens carry an
	// empty entry.
	ChoiceMapping [][]int `json:"choice_mapping"`
	CreatedAt     int64   `json:"created_at"`
	ExpiresAt     int64   `json:"expires_at,omitempty"`  // 0 = never expires
	FinishedAt    int64   `json:"finished_at,omitempty"` // 0 = not submitted
}

func (e *ExamInstance) Expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.Unix() >= e.ExpiresAt
}

func (e *ExamInstance) Finished() bool { return e.FinishedAt != 0 }

// QuestionIDs returns the flat gradable ids in sequence order, parent
// markers excluded.
func (e *ExamInstance) QuestionIDs() []string {
	out := make([]string, 0, len(e.Sequence))
	for _, t := range e.Sequence {
		if t.Kind == TokenQuestion {
			out = append(out, t.ID)
		}
	}
	return out
}

// Answer is the scored outcome of a single item. Index -1 means absent
// (unanswered, out of range, or unresolvable question).
type Answer struct {
	QuestionID     string `json:"question_id"`
	ShownIndex     int    `json:"shown_index"`
	CanonicalIndex int    `json:"canonical_index"`
	CorrectIndex   int    `json:"correct_index"`
	Correct        bool   `json:"correct"`
}

type Attempt struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	OrgID       string   `json:"org_id,omitempty"`
	Module      string   `json:"module,omitempty"`
	ExamID      string   `json:"exam_id"`
	Status      string   `json:"status"` // in_progress|submitted
	QuestionIDs []string `json:"question_ids"`
	Answers     []Answer `json:"answers,omitempty"`
	Score       int      `json:"score"`
	MaxScore    int      `json:"max_score"`
	Percentage  int      `json:"percentage"`
	Passed      bool     `json:"passed"`
	StartedAt   int64    `json:"started_at"`
	FinishedAt  int64    `json:"finished_at,omitempty"`
}

const (
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
)

// SubmittedAnswer is one learner answer: the choice index as shown on
// screen, in display order.
type SubmittedAnswer struct {
	QuestionID  string `json:"questionId"`
	ChoiceIndex int    `json:"choiceIndex"`
}

type ScoreReport struct {
	ExamID        string   `json:"examId"`
	Total         int      `json:"total"`
	Score         int      `json:"score"`
	Percentage    int      `json:"percentage"`
	PassThreshold int      `json:"passThreshold"`
	Passed        bool     `json:"passed"`
	Details       []Answer `json:"details"`
}

// Choice is a de-identified answer option in display order.
type Choice struct {
	Text string `json:"text"`
}

// Block is one learner-facing item: a plain question or a comprehension
// passage with nested children. Correct indices never appear here.
type Block struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"` // "question" | "comprehension"
	Text       string   `json:"text,omitempty"`
	Choices    []Choice `json:"choices,omitempty"`
	Passage    string   `json:"passage,omitempty"`
	Children   []Block  `json:"children,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
}

const (
	BlockQuestion      = "question"
	BlockComprehension = "comprehension"
)

type LearnerView struct {
	ExamID    string  `json:"examId,omitempty"`
	Series    []Block `json:"series"`
	ExpiresAt int64   `json:"expiresAt,omitempty"`
	Expired   bool    `json:"expired,omitempty"`
	Finished  bool    `json:"finished,omitempty"`
}
