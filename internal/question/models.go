package question

import "fmt"

type Variant string

const (
	VariantStandalone    Variant = "standalone"
	VariantComprehension Variant = "comprehension"
)

// Question is either a standalone multiple-choice item or a comprehension
// parent: a passage whose gradable content lives in ChildIDs. Children are
// always standalone.
type Question struct {
	ID           string   `json:"id"`
	Variant      Variant  `json:"variant"`
	Text         string   `json:"text"` // prompt, or passage title for a parent
	Choices      []string `json:"choices,omitempty"`
	CorrectIndex int      `json:"correct_index"`
	Passage      string   `json:"passage,omitempty"`
	ChildIDs     []string `json:"child_ids,omitempty"`
	Module       string   `json:"module"`
	OrgID        string   `json:"org_id,omitempty"` // empty means globally shared
	Tags         []string `json:"tags,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
}

// Filter scopes lookups to a module and an organization. Matching questions
// are the org's own plus globally shared ones (empty OrgID).
type Filter struct {
	Module string
	OrgID  string
}

func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question id required")
	}
	switch q.Variant {
	case VariantStandalone:
		if len(q.Choices) == 0 {
			return fmt.Errorf("question %s: standalone requires choices", q.ID)
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Choices) {
			return fmt.Errorf("question %s: correct_index %d out of range [0,%d)", q.ID, q.CorrectIndex, len(q.Choices))
		}
	case VariantComprehension:
		if len(q.ChildIDs) == 0 {
			return fmt.Errorf("question %s: comprehension requires child_ids", q.ID)
		}
	default:
		return fmt.Errorf("question %s: unknown variant %q", q.ID, q.Variant)
	}
	return nil
}

func (f Filter) Matches(q Question) bool {
	if f.Module != "" && q.Module != f.Module {
		return false
	}
	return q.OrgID == "" || q.OrgID == f.OrgID
}
