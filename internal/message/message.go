// Package message defines the speech request model shared by the queue,
// the history store and the control plane.
package message

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a message.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusPlaying Status = "playing"
	StatusPlayed  Status = "played"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status ends the message's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusPlayed, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// Tone names a preset bundle of synthesis parameters.
type Tone string

const (
	ToneNeutral   Tone = "neutral"
	ToneExcited   Tone = "excited"
	ToneConcerned Tone = "concerned"
	ToneCalm      Tone = "calm"
	ToneUrgent    Tone = "urgent"
)

// AnnounceMode governs how the project label is prepended to spoken output.
type AnnounceMode string

const (
	AnnouncePrefix AnnounceMode = "prefix"
	AnnounceFull   AnnounceMode = "full"
	AnnounceNone   AnnounceMode = "none"
)

const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// Message is one speech request moving through queued -> playing -> terminal.
type Message struct {
	ID          int64        `json:"id"`
	Text        string       `json:"text"`
	SpokenText  string       `json:"-"`
	Project     string       `json:"project"`
	Announce    AnnounceMode `json:"announce"`
	Tone        Tone         `json:"tone"`
	Speed       float64      `json:"speed"`
	Interrupt   bool         `json:"interrupt"`
	Truncated   bool         `json:"truncated,omitempty"`
	Status      Status       `json:"status"`
	SubmittedAt time.Time    `json:"submitted_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

// ValidationError rejects bad input at submit time; nothing is enqueued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Submit carries a producer's raw submission before validation.
type Submit struct {
	Text      string
	Project   string
	Announce  AnnounceMode
	Tone      Tone
	Speed     float64
	Interrupt bool
}

// New validates a submission and builds a Message. Text is trimmed, defaults
// are applied, and text longer than maxTextLen runes is truncated with the
// truncation recorded on the message.
func New(sub Submit, maxTextLen int) (Message, error) {
	text := strings.TrimSpace(sub.Text)
	if text == "" {
		return Message{}, &ValidationError{Field: "text", Reason: "must not be empty"}
	}

	tone := sub.Tone
	if tone == "" {
		tone = ToneNeutral
	}
	switch tone {
	case ToneNeutral, ToneExcited, ToneConcerned, ToneCalm, ToneUrgent:
	default:
		return Message{}, &ValidationError{Field: "tone", Reason: fmt.Sprintf("unknown tone %q", sub.Tone)}
	}

	speed := sub.Speed
	if speed == 0 {
		speed = 1.0
	}
	if speed < MinSpeed || speed > MaxSpeed {
		return Message{}, &ValidationError{Field: "speed", Reason: fmt.Sprintf("must be in [%.1f, %.1f]", MinSpeed, MaxSpeed)}
	}

	announce := sub.Announce
	if announce == "" {
		announce = AnnouncePrefix
	}
	switch announce {
	case AnnouncePrefix, AnnounceFull, AnnounceNone:
	default:
		return Message{}, &ValidationError{Field: "announce", Reason: fmt.Sprintf("unknown announce mode %q", sub.Announce)}
	}

	truncated := false
	if maxTextLen > 0 {
		if runes := []rune(text); len(runes) > maxTextLen {
			text = strings.TrimSpace(string(runes[:maxTextLen]))
			truncated = true
		}
	}

	msg := Message{
		Text:      text,
		Project:   sub.Project,
		Announce:  announce,
		Tone:      tone,
		Speed:     speed,
		Interrupt: sub.Interrupt,
		Truncated: truncated,
		Status:    StatusQueued,
	}
	msg.SpokenText = spokenText(msg)
	return msg, nil
}

// spokenText resolves the announce mode into the final utterance. The mode is
// resolved once, at submit time; the player never re-derives it.
func spokenText(m Message) string {
	if m.Announce == AnnounceNone || m.Project == "" {
		return m.Text
	}
	if m.Announce == AnnounceFull {
		return fmt.Sprintf("Announcement from %s: %s", m.Project, m.Text)
	}
	return fmt.Sprintf("%s: %s", m.Project, m.Text)
}
