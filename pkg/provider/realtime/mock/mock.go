// Package mock provides an in-memory [realtime.Provider] for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/prepdeck/prepdeck/pkg/provider/realtime"
)

// Compile-time interface checks.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.Conn = (*Conn)(nil)

// Provider is a realtime provider whose connections are driven by the test.
type Provider struct {
	mu    sync.Mutex
	conns []*Conn
}

// Voices implements [realtime.Provider].
func (p *Provider) Voices() []realtime.Voice {
	return []realtime.Voice{
		{ID: "alloy", Name: "Alloy"},
		{ID: "sage", Name: "Sage"},
	}
}

// Connect implements [realtime.Provider]. It records the config for later
// inspection and returns a connection the test can push events into.
func (p *Provider) Connect(ctx context.Context, cfg realtime.ConnectConfig) (realtime.Conn, error) {
	c := &Conn{
		Config: cfg,
		events: make(chan realtime.SpeechEvent, 64),
	}
	p.mu.Lock()
	p.conns = append(p.conns, c)
	p.mu.Unlock()
	return c, nil
}

// Conns returns all connections handed out so far.
func (p *Provider) Conns() []*Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Conn, len(p.conns))
	copy(out, p.conns)
	return out
}

// Conn is a test-driven realtime connection.
type Conn struct {
	// Config is the config Connect was called with.
	Config realtime.ConnectConfig

	events chan realtime.SpeechEvent

	mu     sync.Mutex
	spoken []string
	errVal error
	closed bool
}

// Push delivers a speech event to the connection's consumer.
func (c *Conn) Push(evt realtime.SpeechEvent) {
	c.events <- evt
}

// Events implements [realtime.Conn].
func (c *Conn) Events() <-chan realtime.SpeechEvent { return c.events }

// Say implements [realtime.Conn], recording the text for assertions.
func (c *Conn) Say(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("mock: connection closed")
	}
	c.spoken = append(c.spoken, text)
	return nil
}

// Spoken returns everything Say was called with.
func (c *Conn) Spoken() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.spoken))
	copy(out, c.spoken)
	return out
}

// SetErr scripts the terminal error returned by Err.
func (c *Conn) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errVal = err
}

// Err implements [realtime.Conn].
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Close implements [realtime.Conn]. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}
