// Package realtime defines the Provider interface for speech-to-speech voice
// backends that carry the live coaching conversation.
//
// A realtime connection emits [SpeechEvent]s as turns of speech are
// transcribed. Events may arrive out of order and interleaved across roles;
// ordering and merging is the transcript synchronizer's job, not the
// provider's. Implementors must be safe for concurrent use.
package realtime

import (
	"context"
	"time"
)

// Role identifies the speaker of a speech event.
type Role string

const (
	// RoleCoach is the synthesized coach voice.
	RoleCoach Role = "coach"

	// RoleCandidate is the human practicing the interview.
	RoleCandidate Role = "candidate"
)

// SpeechEvent is one transcription update from the voice backend.
//
// A turn usually produces several interim events (Final=false, each carrying
// the full text so far) followed by exactly one final event (Final=true).
// Providers do not guarantee that ordering on the wire.
type SpeechEvent struct {
	// Role is the speaker.
	Role Role

	// TurnID correlates all events belonging to one spoken turn.
	TurnID string

	// Text is the transcription so far (interim) or the settled text (final).
	Text string

	// Final marks the turn's transcription as settled.
	Final bool

	// Timestamp is the provider-side time the event was produced.
	Timestamp time.Time
}

// Voice describes one synthesized voice offered by a provider.
type Voice struct {
	ID   string
	Name string
}

// ConnectConfig configures a new realtime connection.
type ConnectConfig struct {
	// SessionID is the practice session this connection belongs to.
	SessionID string

	// VoiceID selects the coach voice. Empty means provider default.
	VoiceID string

	// Instructions is the system prompt for the coach persona.
	Instructions string
}

// Conn is an established realtime connection.
type Conn interface {
	// Events returns the channel on which speech events arrive. The channel
	// is closed when the connection terminates.
	Events() <-chan SpeechEvent

	// Say asks the coach voice to speak the given text.
	Say(text string) error

	// Err returns the first error that caused the connection to terminate,
	// or nil after a clean close.
	Err() error

	// Close terminates the connection. Idempotent.
	Close() error
}

// Provider is the abstraction over any speech-to-speech voice backend.
type Provider interface {
	// Connect establishes a new realtime connection. The voice configured in
	// cfg takes effect at this handshake; it never changes mid-connection.
	Connect(ctx context.Context, cfg ConnectConfig) (Conn, error)

	// Voices lists the voices this provider offers.
	Voices() []Voice
}
