package processor

import "chatreel/internal/models"

// Outcome is what one ClaimAndRun call did.
type Outcome struct {
	// Skipped is true when the call was a no-op: the job was unknown, already
	// terminal, or claimed by someone else.
	Skipped      bool
	Status       models.JobStatus
	ObjectName   string
	URL          string
	ErrorMessage string
}
