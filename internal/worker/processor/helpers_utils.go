package processor

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ObjectName is the storage key for a job's video.
func ObjectName(jobID string, at time.Time) string {
	return fmt.Sprintf("renders/%s/video_%d.mp4", jobID, at.Unix())
}

// TempOutputPath is a fresh local path for one render attempt.
func TempOutputPath(workDir, jobID string) string {
	return filepath.Join(workDir, fmt.Sprintf("render_%s_%s.mp4", jobID, uuid.NewString()))
}
