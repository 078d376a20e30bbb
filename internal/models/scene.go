package models

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"chatreel/internal/pkg/errors"
)

// Limits applied when a scene is submitted.
const (
	MaxMessages        = 200
	MaxMessageRunes    = 2000
	MaxContactNameRune = 64

	DefaultContactName = "Contact"
	DefaultTheme       = "imessage"
)

var knownThemes = map[string]bool{
	"imessage": true,
	"whatsapp": true,
	"snapchat": true,
}

// Message is one chat bubble. SentByUser marks the local (right-hand) party.
type Message struct {
	Text       string `json:"text"`
	SentByUser bool   `json:"sentByUser"`
}

// UnmarshalJSON also accepts the editor's older shapes: {"sent":true} and
// {"sender":"you"}.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw struct {
		Text       string `json:"text"`
		SentByUser *bool  `json:"sentByUser"`
		Sent       *bool  `json:"sent"`
		Sender     string `json:"sender"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	m.Text = raw.Text
	switch {
	case raw.SentByUser != nil:
		m.SentByUser = *raw.SentByUser
	case raw.Sent != nil:
		m.SentByUser = *raw.Sent
	default:
		m.SentByUser = strings.EqualFold(strings.TrimSpace(raw.Sender), "you")
	}
	return nil
}

// Scene is the serialized conversation stored with a job.
type Scene struct {
	ContactName         string    `json:"contactName"`
	Theme               string    `json:"theme"`
	AlwaysShowKeyboard  bool      `json:"alwaysShowKeyboard,omitempty"`
	TypingBeforeIndices []int     `json:"typingBeforeIndices,omitempty"`
	Messages            []Message `json:"messages"`
}

// Normalize fills display defaults in place.
func (s *Scene) Normalize() {
	s.ContactName = strings.TrimSpace(s.ContactName)
	if s.ContactName == "" {
		s.ContactName = DefaultContactName
	}
	s.Theme = strings.ToLower(strings.TrimSpace(s.Theme))
	if s.Theme == "" {
		s.Theme = DefaultTheme
	}
}

// Validate reports the first problem found as a validation error.
func (s *Scene) Validate() error {
	if len(s.Messages) == 0 {
		return errors.ValidationField("scene.messages", "at least one message is required")
	}
	if len(s.Messages) > MaxMessages {
		return errors.ValidationField("scene.messages", "too many messages").
			WithField("max", MaxMessages)
	}
	if !knownThemes[s.Theme] {
		return errors.ValidationField("scene.theme", "unknown theme").
			WithField("theme", s.Theme)
	}
	if utf8.RuneCountInString(s.ContactName) > MaxContactNameRune {
		return errors.ValidationField("scene.contactName", "contact name too long")
	}
	for i, m := range s.Messages {
		if utf8.RuneCountInString(m.Text) > MaxMessageRunes {
			return errors.ValidationField("scene.messages", "message text too long").
				WithField("index", i)
		}
	}
	for _, idx := range s.TypingBeforeIndices {
		if idx < 0 || idx >= len(s.Messages) {
			return errors.ValidationField("scene.typingBeforeIndices", "index out of range").
				WithField("index", idx)
		}
	}
	return nil
}
