package model

import "time"

// RunStatus tracks a categorization run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusProcessing RunStatus = "processing"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Stage names the pipeline step a contact was in when an outcome was
// recorded. ERROR is terminal for the contact, not for the run.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageContext  Stage = "context"
	StageClassify Stage = "classify"
	StageWrite    Stage = "write"
	StageDone     Stage = "done"
)

// Run is one execution of the pipeline over a contact list.
type Run struct {
	ID        string     `json:"id"`
	ListID    string     `json:"list_id"`
	Status    RunStatus  `json:"status"`
	TestMode  bool       `json:"test_mode"`
	Report    *RunReport `json:"report,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ContactResult records the outcome of one contact within a run.
type ContactResult struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	ContactID string    `json:"contact_id"`
	Company   string    `json:"company,omitempty"`
	Category  string    `json:"category,omitempty"`
	Stage     Stage     `json:"stage"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunReport aggregates per-contact outcomes for the end-of-run summary.
type RunReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Add folds one contact outcome into the report.
func (r *RunReport) Add(res ContactResult) {
	r.Processed++
	switch {
	case res.Succeeded:
		r.Succeeded++
	case res.Error == "":
		r.Skipped++
	default:
		r.Failed++
	}
}
