// internal/models/submission.go
package models

// InvalidDistance is the sentinel distance recorded for invalid submissions.
// It sorts after every reachable distance.
const InvalidDistance = 999999

// Submission is one player's answer for the current round. A user gets
// exactly one submission per round; records are immutable once stored.
type Submission struct {
	UserID     string `json:"user_id"`
	Expression string `json:"expression"`

	// Result is the evaluated integer value, nil when the expression was invalid.
	Result *int `json:"result"`

	// Distance is |target - result|, or InvalidDistance for invalid submissions.
	Distance int `json:"distance"`

	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`

	SubmittedAt int64 `json:"submitted_at"` // unix millis
}
