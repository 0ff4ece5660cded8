package exam

import "errors"

// Failure taxonomy. The HTTP layer translates these to status codes; the
// engine itself only distinguishes fatal-to-this-call from degraded-but-
// completed (degraded paths log and continue, they never surface here).
var (
	ErrNoQuestionsAvailable = errors.New("no questions available")
	ErrExamNotFound         = errors.New("exam not found")
	ErrExamExpired          = errors.New("exam expired")
	ErrAlreadySubmitted     = errors.New("exam already submitted")
	ErrAttemptNotFound      = errors.New("attempt not found")
)
