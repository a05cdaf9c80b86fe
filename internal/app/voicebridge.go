package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/prepdeck/prepdeck/internal/observe"
	"github.com/prepdeck/prepdeck/internal/session"
	"github.com/prepdeck/prepdeck/internal/transcript"
	"github.com/prepdeck/prepdeck/pkg/provider/realtime"
)

// VoiceBridge owns one realtime connection per session and pumps its speech
// events into the transcript synchronizer. The voice configured on the
// session is bound at connect time; changing the voice setting afterwards
// only affects the next StartVoice, which is the handshake the settings guard
// documents.
type VoiceBridge struct {
	provider realtime.Provider
	reg      *session.Registry
	sync     *transcript.Synchronizer

	mu    sync.Mutex
	conns map[string]realtime.Conn
}

// NewVoiceBridge creates a bridge over the realtime provider.
func NewVoiceBridge(provider realtime.Provider, reg *session.Registry, sy *transcript.Synchronizer) *VoiceBridge {
	return &VoiceBridge{
		provider: provider,
		reg:      reg,
		sync:     sy,
		conns:    make(map[string]realtime.Conn),
	}
}

// StartVoice connects the session's voice channel using the voice from the
// current settings snapshot. A session with a live connection is rejected;
// stop it first to pick up a new voice.
func (b *VoiceBridge) StartVoice(ctx context.Context, sessionID string) error {
	snap, err := b.reg.Snapshot(ctx, sessionID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if _, live := b.conns[sessionID]; live {
		b.mu.Unlock()
		return session.Validationf("voice", "session %s already has a live voice connection", sessionID)
	}
	b.mu.Unlock()

	conn, err := b.provider.Connect(ctx, realtime.ConnectConfig{
		SessionID:    sessionID,
		VoiceID:      snap.Settings.VoiceID,
		Instructions: coachInstructions(snap),
	})
	if err != nil {
		return fmt.Errorf("app: connect voice for session %s: %w", sessionID, err)
	}

	b.mu.Lock()
	if _, live := b.conns[sessionID]; live {
		b.mu.Unlock()
		conn.Close()
		return session.Validationf("voice", "session %s already has a live voice connection", sessionID)
	}
	b.conns[sessionID] = conn
	b.mu.Unlock()

	go b.pump(sessionID, conn)

	observe.Logger(ctx).Info("voice connected",
		"session_id", sessionID,
		"voice_id", snap.Settings.VoiceID,
		"settings_snapshot_id", snap.Settings.SnapshotID)
	return nil
}

// StopVoice closes the session's voice connection, if any.
func (b *VoiceBridge) StopVoice(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	conn, ok := b.conns[sessionID]
	delete(b.conns, sessionID)
	b.mu.Unlock()

	if !ok {
		return nil
	}
	observe.Logger(ctx).Info("voice disconnected", "session_id", sessionID)
	return conn.Close()
}

// CloseAll tears down every live connection. Used during shutdown.
func (b *VoiceBridge) CloseAll() {
	b.mu.Lock()
	conns := b.conns
	b.conns = make(map[string]realtime.Conn)
	b.mu.Unlock()

	for id, conn := range conns {
		if err := conn.Close(); err != nil {
			observe.Logger(context.Background()).Warn("voice close error", "session_id", id, "err", err)
		}
	}
}

// pump drains the connection's speech events into the synchronizer until the
// events channel closes. Ingest errors are logged, never fatal: a dropped
// event must not kill the voice stream.
func (b *VoiceBridge) pump(sessionID string, conn realtime.Conn) {
	ctx := context.Background()
	for ev := range conn.Events() {
		_, _, err := b.sync.Ingest(ctx, sessionID, transcript.Event{
			Role:       session.Role(ev.Role),
			TurnID:     ev.TurnID,
			Text:       ev.Text,
			Final:      ev.Final,
			ProviderTS: ev.Timestamp,
		})
		if err != nil {
			observe.Logger(ctx).Warn("speech event rejected",
				"session_id", sessionID,
				"turn_id", ev.TurnID,
				"err", err)
		}
	}

	if err := conn.Err(); err != nil {
		observe.Logger(ctx).Warn("voice connection terminated", "session_id", sessionID, "err", err)
	}

	b.mu.Lock()
	if b.conns[sessionID] == conn {
		delete(b.conns, sessionID)
	}
	b.mu.Unlock()
}

// coachInstructions renders the realtime system prompt from the session's
// question set, so the voice coach asks the questions the session holds.
func coachInstructions(s *session.Session) string {
	instructions := "You are an interview coach running a spoken mock interview. " +
		"Ask the candidate the prepared questions one at a time, listen fully, " +
		"and give brief verbal encouragement between questions. Prepared questions:"
	for i, q := range s.Questions {
		instructions += fmt.Sprintf("\n%d. %s", i+1, q.Text)
	}
	return instructions
}
