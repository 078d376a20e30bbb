// Package v1 is the JSON contract between the worker and a rendering engine.
//
// The engine receives the scene exactly as submitted plus the frame-indexed
// schedule, and must write an MP4 to OutputPath. It must not re-derive timing
// from the scene.
package v1

import (
	"chatreel/internal/models"
	"chatreel/internal/timeline"
)

// Version is sent with every spec so engines can reject contracts they do not know.
const Version = "chatreel.render/v1"

// DefaultComposition is the composition id the engine renders when none is configured.
const DefaultComposition = "MessageConversation"

// RenderSpec is what the worker hands to an engine for one job.
type RenderSpec struct {
	Version     string                 `json:"version"`
	JobID       string                 `json:"jobId"`
	Composition string                 `json:"compositionId"`
	Scene       models.Scene           `json:"scene"`
	Schedule    timeline.FrameSchedule `json:"schedule"`
	Width       int                    `json:"width"`
	Height      int                    `json:"height"`
	// OutputPath is a local path on the worker host.
	OutputPath string `json:"outputPath"`
}

// NewRenderSpec builds the spec for job at 1080x1920 portrait.
func NewRenderSpec(job models.Job, composition, outputPath string, t timeline.Tunables) RenderSpec {
	if composition == "" {
		composition = DefaultComposition
	}
	s := timeline.Synthesize(job.Scene.Messages, timeline.OptionsFromScene(job.Scene), t)
	return RenderSpec{
		Version:     Version,
		JobID:       job.ID,
		Composition: composition,
		Scene:       job.Scene,
		Schedule:    s.Frames(),
		Width:       1080,
		Height:      1920,
		OutputPath:  outputPath,
	}
}
