// Package timeline turns an ordered chat into the animation schedule shared by
// the editor preview and the final render.
//
// Synthesize is a pure function: identical input and Tunables always produce an
// identical Schedule, and Frames converts it to the integer frame indices the
// renderer consumes.
package timeline

import (
	"math"
	"unicode/utf8"

	"chatreel/internal/models"
)

// Tunables are the pacing constants of the animation.
type Tunables struct {
	// TypeSpeed is the local user's typing speed in characters per second.
	TypeSpeed float64
	// Gap is inserted between one message appearing and the next one starting.
	Gap float64
	// IndicatorDuration is the lead time of a remote message with a typing bubble.
	IndicatorDuration float64
	// IndicatorGap is the pause between the typing bubble vanishing and the message.
	IndicatorGap float64
	// SendGap is the pause between finishing typing and the bubble appearing.
	SendGap        float64
	KeyboardLead   float64
	KeyboardTrail  float64
	DeliveredDelay float64
	FPS            int
	// MinDuration is the shortest video, in seconds.
	MinDuration float64
	// TailPadding is held after the last message appears.
	TailPadding float64
	// PerMessageFloor is the render-time budget per message, in seconds.
	PerMessageFloor float64
}

// DefaultTunables returns the pacing used by the production composition.
func DefaultTunables() Tunables {
	return Tunables{
		TypeSpeed:         11,
		Gap:               2,
		IndicatorDuration: 1.2,
		IndicatorGap:      0.15,
		SendGap:           0.18,
		KeyboardLead:      0.8,
		KeyboardTrail:     0.3,
		DeliveredDelay:    0.6,
		FPS:               30,
		MinDuration:       10,
		TailPadding:       2,
		PerMessageFloor:   4,
	}
}

// Window is a closed time span in seconds. End is +Inf for an open window.
type Window struct {
	Start float64
	End   float64
}

// Open reports whether the window never closes.
func (w Window) Open() bool { return math.IsInf(w.End, 1) }

// Entry is the schedule of one message.
type Entry struct {
	MessageIndex int
	SentByUser   bool
	AppearSec    float64
	// Typing is set for local-user messages.
	Typing *Window
	// Indicator is set for remote messages preceded by a typing bubble.
	Indicator    *Window
	IsFirstInRun bool
	IsLastInRun  bool
}

// Schedule is the full animation plan. Callers must treat it as read-only.
type Schedule struct {
	Entries []Entry
	// Keyboard is nil when the keyboard never shows.
	Keyboard *Window
	// DeliveredAtSec is nil when no local-user message exists.
	DeliveredAtSec *float64
	// DurationSec is the cosmetic length of the video.
	DurationSec int
	// RenderDurationSec also honours the per-message floor.
	RenderDurationSec int
	FPS               int
}

// Options are the caller flags that change the schedule.
type Options struct {
	AlwaysShowKeyboard bool
	// TypingBeforeIndices forces a typing bubble before these remote messages.
	TypingBeforeIndices []int
}

// OptionsFromScene reads the schedule flags stored on a scene.
func OptionsFromScene(s models.Scene) Options {
	return Options{
		AlwaysShowKeyboard:  s.AlwaysShowKeyboard,
		TypingBeforeIndices: s.TypingBeforeIndices,
	}
}

// Synthesize builds the schedule in a single forward pass.
func Synthesize(messages []models.Message, opts Options, t Tunables) Schedule {
	forced := make(map[int]bool, len(opts.TypingBeforeIndices))
	for _, i := range opts.TypingBeforeIndices {
		forced[i] = true
	}

	entries := make([]Entry, 0, len(messages))
	cursor := 0.0
	firstSent, lastSent := -1, -1

	for i, m := range messages {
		base := 0.0
		if i > 0 {
			base = cursor + t.Gap
		}

		e := Entry{MessageIndex: i, SentByUser: m.SentByUser}

		if m.SentByUser {
			typingEnd := base + float64(utf8.RuneCountInString(m.Text))/t.TypeSpeed
			e.Typing = &Window{Start: base, End: typingEnd}
			e.AppearSec = typingEnd + t.SendGap
			if firstSent < 0 {
				firstSent = i
			}
			lastSent = i
		} else {
			auto := i > 0 && messages[i-1].SentByUser
			if auto || forced[i] {
				e.Indicator = &Window{Start: base, End: base + (t.IndicatorDuration - t.IndicatorGap)}
				e.AppearSec = base + t.IndicatorDuration
			} else {
				e.AppearSec = base
			}
		}

		e.IsFirstInRun = i == 0 || messages[i-1].SentByUser != m.SentByUser
		e.IsLastInRun = i == len(messages)-1 || messages[i+1].SentByUser != m.SentByUser

		entries = append(entries, e)
		cursor = e.AppearSec
	}

	s := Schedule{Entries: entries, FPS: t.FPS}

	switch {
	case opts.AlwaysShowKeyboard:
		s.Keyboard = &Window{Start: 0, End: math.Inf(1)}
	case firstSent >= 0:
		s.Keyboard = &Window{
			Start: math.Max(0, entries[firstSent].Typing.Start-t.KeyboardLead),
			End:   entries[lastSent].Typing.End + t.KeyboardTrail,
		}
	}

	if lastSent >= 0 {
		at := entries[lastSent].AppearSec + t.DeliveredDelay
		s.DeliveredAtSec = &at
	}

	s.DurationSec = int(t.MinDuration)
	if len(entries) > 0 {
		last := entries[len(entries)-1].AppearSec
		s.DurationSec = int(math.Max(t.MinDuration, math.Ceil(last+t.TailPadding)))
	}
	s.RenderDurationSec = int(math.Max(float64(s.DurationSec), float64(len(entries))*t.PerMessageFloor))

	return s
}
