// Package openai implements the realtime.Provider interface for OpenAI's
// Realtime API.
//
// It establishes a bidirectional WebSocket connection to the OpenAI Realtime
// endpoint and exchanges JSON events according to the Realtime API protocol.
// Coach speech transcriptions arrive as response.audio_transcript deltas,
// candidate speech as input_audio_transcription events; both are mapped to
// [realtime.SpeechEvent]s keyed by the server-side item id.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck/pkg/provider/realtime"
)

// Compile-time assertions that Provider and conn satisfy the realtime interfaces.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.Conn = (*conn)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI realtime model used for connections.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements realtime.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Voices lists the synthesized voices the Realtime API offers.
func (p *Provider) Voices() []realtime.Voice {
	return []realtime.Voice{
		{ID: "alloy", Name: "Alloy"},
		{ID: "ash", Name: "Ash"},
		{ID: "ballad", Name: "Ballad"},
		{ID: "coral", Name: "Coral"},
		{ID: "echo", Name: "Echo"},
		{ID: "sage", Name: "Sage"},
		{ID: "shimmer", Name: "Shimmer"},
		{ID: "verse", Name: "Verse"},
	}
}

// Connect establishes a new OpenAI Realtime connection. The voice in cfg is
// bound at this handshake via the initial session.update message.
func (p *Provider) Connect(ctx context.Context, cfg realtime.ConnectConfig) (realtime.Conn, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	c := &conn{
		ws:     ws,
		events: make(chan realtime.SpeechEvent, 64),
		ctx:    connCtx,
		cancel: connCancel,
	}

	if err := c.sendSessionUpdate(cfg.VoiceID, cfg.Instructions); err != nil {
		connCancel()
		ws.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go c.receiveLoop()

	return c, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice             string `json:"voice,omitempty"`
	Instructions      string `json:"instructions,omitempty"`
	InputAudioFormat  string `json:"input_audio_format"`
	OutputAudioFormat string `json:"output_audio_format"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// serverErrorDetail represents the nested error object in an OpenAI Realtime
// error event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// ItemID correlates transcript events belonging to one spoken turn.
	ItemID string `json:"item_id,omitempty"`

	// response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// response.audio_transcript.done / input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── conn ───────────────────────────────────────────────────────────────────────

type conn struct {
	ws     *websocket.Conn
	events chan realtime.SpeechEvent

	mu     sync.Mutex
	errVal error
	closed bool

	// coachText accumulates response.audio_transcript.delta text per item id
	// until the matching done event is received.
	coachText map[string]string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate sends a session.update event to configure voice,
// instructions and audio formats.
func (c *conn) sendSessionUpdate(voiceID, instructions string) error {
	params := sessionParams{
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}
	if voiceID != "" {
		params.Voice = voiceID
	}
	if instructions != "" {
		params.Instructions = instructions
	}
	return c.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (c *conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return c.ws.Write(c.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns
// the events channel: it closes it when it exits.
func (c *conn) receiveLoop() {
	defer c.closeEvents()

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		c.handleServerEvent(&evt)
	}
}

func (c *conn) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		c.mu.Lock()
		if c.coachText == nil {
			c.coachText = make(map[string]string)
		}
		c.coachText[evt.ItemID] += evt.Delta
		text := c.coachText[evt.ItemID]
		c.mu.Unlock()

		c.emit(realtime.SpeechEvent{
			Role:      realtime.RoleCoach,
			TurnID:    c.turnID(evt.ItemID),
			Text:      text,
			Final:     false,
			Timestamp: time.Now(),
		})

	case "response.audio_transcript.done":
		c.mu.Lock()
		text := evt.Transcript
		if text == "" {
			text = c.coachText[evt.ItemID]
		}
		delete(c.coachText, evt.ItemID)
		c.mu.Unlock()

		if text == "" {
			return
		}
		c.emit(realtime.SpeechEvent{
			Role:      realtime.RoleCoach,
			TurnID:    c.turnID(evt.ItemID),
			Text:      text,
			Final:     true,
			Timestamp: time.Now(),
		})

	case "conversation.item.input_audio_transcription.delta":
		if evt.Delta == "" {
			return
		}
		c.emit(realtime.SpeechEvent{
			Role:      realtime.RoleCandidate,
			TurnID:    c.turnID(evt.ItemID),
			Text:      evt.Delta,
			Final:     false,
			Timestamp: time.Now(),
		})

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		c.emit(realtime.SpeechEvent{
			Role:      realtime.RoleCandidate,
			TurnID:    c.turnID(evt.ItemID),
			Text:      evt.Transcript,
			Final:     true,
			Timestamp: time.Now(),
		})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		c.setErr(fmt.Errorf("openai: %s", msg))
	}
}

// turnID returns the item id as the turn correlator, falling back to a fresh
// uuid when the server omits it.
func (c *conn) turnID(itemID string) string {
	if itemID != "" {
		return itemID
	}
	return uuid.NewString()
}

// emit delivers one speech event, dropping it if the connection is shutting
// down.
func (c *conn) emit(evt realtime.SpeechEvent) {
	select {
	case c.events <- evt:
	case <-c.ctx.Done():
	}
}

func (c *conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errVal == nil {
		c.errVal = err
	}
}

func (c *conn) closeEvents() {
	c.closeOnce.Do(func() { close(c.events) })
}

// ── Conn methods ───────────────────────────────────────────────────────────────

// Events returns the channel on which speech events arrive.
func (c *conn) Events() <-chan realtime.SpeechEvent { return c.events }

// Say injects text for the coach voice to speak and triggers a response.
func (c *conn) Say(text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("openai: connection closed")
	}
	c.mu.Unlock()

	msg := createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "system",
			Content: []conversationPart{
				{Type: "input_text", Text: "Say the following to the candidate, verbatim: " + text},
			},
		},
	}
	if err := c.writeJSON(msg); err != nil {
		return err
	}
	return c.writeJSON(map[string]string{"type": "response.create"})
}

// Err returns the first non-nil error that caused the connection to terminate.
func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Close terminates the connection and releases all resources. Idempotent.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.ws.Close(websocket.StatusNormalClosure, "connection closed")
	return nil
}
