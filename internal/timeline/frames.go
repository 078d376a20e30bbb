package timeline

import "math"

// FrameWindow is a Window converted to frame indices. Open windows have End = -1.
type FrameWindow struct {
	Start int  `json:"start"`
	End   int  `json:"end"`
	Open  bool `json:"open,omitempty"`
}

// FrameEntry is an Entry in frames.
type FrameEntry struct {
	MessageIndex int          `json:"messageIndex"`
	SentByUser   bool         `json:"sentByUser"`
	Appear       int          `json:"appear"`
	Typing       *FrameWindow `json:"typing,omitempty"`
	Indicator    *FrameWindow `json:"indicator,omitempty"`
	IsFirstInRun bool         `json:"isFirstInRun"`
	IsLastInRun  bool         `json:"isLastInRun"`
}

// FrameSchedule is the frame-indexed contract sent to the renderer.
type FrameSchedule struct {
	FPS                  int          `json:"fps"`
	Entries              []FrameEntry `json:"entries"`
	Keyboard             *FrameWindow `json:"keyboard,omitempty"`
	Delivered            *int         `json:"delivered,omitempty"`
	DurationInFrames     int          `json:"durationInFrames"`
	RenderDurationFrames int          `json:"renderDurationInFrames"`
}

// ToFrame rounds seconds to the nearest frame, halves away from zero.
func ToFrame(sec float64, fps int) int {
	return int(math.Round(sec * float64(fps)))
}

func (s Schedule) frameWindow(w *Window) *FrameWindow {
	if w == nil {
		return nil
	}
	fw := &FrameWindow{Start: ToFrame(w.Start, s.FPS)}
	if w.Open() {
		fw.End = -1
		fw.Open = true
	} else {
		fw.End = ToFrame(w.End, s.FPS)
	}
	return fw
}

// Frames converts every boundary of the schedule to frame indices.
func (s Schedule) Frames() FrameSchedule {
	fs := FrameSchedule{
		FPS:                  s.FPS,
		Entries:              make([]FrameEntry, len(s.Entries)),
		Keyboard:             s.frameWindow(s.Keyboard),
		DurationInFrames:     s.DurationSec * s.FPS,
		RenderDurationFrames: s.RenderDurationSec * s.FPS,
	}
	for i, e := range s.Entries {
		fs.Entries[i] = FrameEntry{
			MessageIndex: e.MessageIndex,
			SentByUser:   e.SentByUser,
			Appear:       ToFrame(e.AppearSec, s.FPS),
			Typing:       s.frameWindow(e.Typing),
			Indicator:    s.frameWindow(e.Indicator),
			IsFirstInRun: e.IsFirstInRun,
			IsLastInRun:  e.IsLastInRun,
		}
	}
	if s.DeliveredAtSec != nil {
		d := ToFrame(*s.DeliveredAtSec, s.FPS)
		fs.Delivered = &d
	}
	return fs
}
