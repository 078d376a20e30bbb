package models

import (
	"encoding/json"
	"strings"
	"testing"

	"chatreel/internal/pkg/errors"
)

func TestMessageUnmarshalShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{name: "sentByUser", raw: `{"text":"a","sentByUser":true}`, want: true},
		{name: "sent", raw: `{"text":"a","sent":true}`, want: true},
		{name: "sender you", raw: `{"text":"a","sender":"You"}`, want: true},
		{name: "sender them", raw: `{"text":"a","sender":"them"}`, want: false},
		{name: "no flag", raw: `{"text":"a"}`, want: false},
		{name: "sentByUser wins", raw: `{"text":"a","sentByUser":false,"sent":true}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tt.raw), &m); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.SentByUser != tt.want {
				t.Errorf("expected sentByUser=%v, got %v", tt.want, m.SentByUser)
			}
			if m.Text != "a" {
				t.Errorf("expected text 'a', got %q", m.Text)
			}
		})
	}
}

func TestSceneNormalize(t *testing.T) {
	s := Scene{ContactName: "  ", Theme: " WhatsApp "}
	s.Normalize()

	if s.ContactName != DefaultContactName {
		t.Errorf("expected default contact name, got %q", s.ContactName)
	}
	if s.Theme != "whatsapp" {
		t.Errorf("expected theme 'whatsapp', got %q", s.Theme)
	}
}

func TestSceneValidate(t *testing.T) {
	valid := func() Scene {
		return Scene{
			ContactName: "Alex",
			Theme:       "imessage",
			Messages:    []Message{{Text: "hi"}, {Text: "hey", SentByUser: true}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *Scene)
		wantErr bool
	}{
		{name: "valid", mutate: func(s *Scene) {}},
		{name: "no messages", mutate: func(s *Scene) { s.Messages = nil }, wantErr: true},
		{name: "unknown theme", mutate: func(s *Scene) { s.Theme = "icq" }, wantErr: true},
		{name: "long text", mutate: func(s *Scene) { s.Messages[0].Text = strings.Repeat("x", MaxMessageRunes+1) }, wantErr: true},
		{name: "long contact", mutate: func(s *Scene) { s.ContactName = strings.Repeat("n", MaxContactNameRune+1) }, wantErr: true},
		{name: "bad typing index", mutate: func(s *Scene) { s.TypingBeforeIndices = []int{2} }, wantErr: true},
		{name: "good typing index", mutate: func(s *Scene) { s.TypingBeforeIndices = []int{1} }},
		{name: "empty text allowed", mutate: func(s *Scene) { s.Messages[0].Text = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.IsValidation(err) {
					t.Errorf("expected validation code, got %v", errors.GetCode(err))
				}
				return
			}
			if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestJobStatusTransitions(t *testing.T) {
	if !StatusPending.CanTransition(StatusProcessing) {
		t.Error("expected pending -> processing")
	}
	if StatusPending.CanTransition(StatusDone) {
		t.Error("expected pending -> done to be rejected")
	}
	for _, terminal := range []JobStatus{StatusDone, StatusError} {
		if !terminal.IsTerminal() {
			t.Errorf("expected %s to be terminal", terminal)
		}
		for _, next := range AllStatuses {
			if terminal.CanTransition(next) {
				t.Errorf("expected %s -> %s to be rejected", terminal, next)
			}
		}
	}
}
