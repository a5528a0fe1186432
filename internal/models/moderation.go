package models

import (
	"sort"
	"time"
)

// ModerationVerdict is the outcome of one moderation call. It is never persisted
// as-is; flagged verdicts become ModerationIncidents.
type ModerationVerdict struct {
	Flagged    bool               `json:"flagged"`
	Categories map[string]bool    `json:"categories"`
	Scores     map[string]float64 `json:"category_scores"`
	Error      string             `json:"error,omitempty"`
}

// FlaggedCategories returns the names of categories marked true, sorted.
func (v ModerationVerdict) FlaggedCategories() []string {
	var out []string
	for name, flagged := range v.Categories {
		if flagged {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Moderation stages recorded on incidents.
const (
	StageInput             = "input"
	StageOutputIncremental = "output_incremental"
	StageOutputFinal       = "output_final"
)

type ModerationIncident struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Stage      string    `json:"stage"`
	Action     string    `json:"action"`
	Categories []string  `json:"categories"`
	Excerpt    string    `json:"excerpt"`
	CreatedAt  time.Time `json:"created_at"`
}
