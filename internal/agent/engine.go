// Package agent implements the protocol engine that connects one agent
// identity to the coordination server: it consumes the agent's event
// stream, answers capability and tool-call requests, and keeps thread
// state current.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/devsquad/squadron/internal/coral"
)

// State is the engine's connection lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrEngineClosed is returned by Connect on an engine that already ran.
// Engines are single use; reconnection means building a new one.
var ErrEngineClosed = errors.New("engine closed")

// Identity names one agent on the coordination server.
type Identity struct {
	ID          string
	Role        string
	DisplayName string
}

// Capabilities is the tool surface the engine exposes over the protocol.
type Capabilities interface {
	Tools() []mcp.Tool
	Has(name string) bool
	Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Responder produces conversational replies to thread activity. An empty
// reply with a nil error means the agent stays silent.
type Responder interface {
	GetResponse(ctx context.Context, prompt, context string) (string, error)
}

// Engine drives one agent's session against the coordination server.
// It is single use: Connect then Run, and after Close it cannot be reused.
type Engine struct {
	client    *coral.Client
	identity  Identity
	caps      Capabilities
	responder Responder
	tracker   *ThreadTracker
	logger    *log.Logger

	application string
	session     string

	mu     sync.Mutex
	state  State
	stream *coral.Stream
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithResponder sets the reply generator for thread messages and mentions.
// Without one the engine tracks threads but never speaks.
func WithResponder(r Responder) EngineOption {
	return func(e *Engine) { e.responder = r }
}

// NewEngine creates an engine for one agent identity. The application and
// session scope the event stream on the server side.
func NewEngine(client *coral.Client, application, session string, identity Identity, caps Capabilities, logger *log.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		client:      client,
		identity:    identity,
		caps:        caps,
		tracker:     NewThreadTracker(),
		logger:      logger,
		application: application,
		session:     session,
		state:       StateDisconnected,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State returns the engine's current lifecycle phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Threads returns the engine's view of every thread it has seen.
func (e *Engine) Threads() []ThreadState {
	return e.tracker.Threads()
}

// Connect opens the event stream and announces the agent to the server.
// Calling Connect on a closed or already-connected engine is an error.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateDisconnected {
		st := e.state
		e.mu.Unlock()
		if st == StateClosed {
			return ErrEngineClosed
		}
		return fmt.Errorf("connect: engine is %s", st)
	}
	e.state = StateConnecting
	e.mu.Unlock()

	stream, err := e.client.OpenStream(ctx, e.application, e.session, e.identity.ID)
	if err != nil {
		// A failed dial leaves the engine reusable; the caller decides
		// whether to retry.
		e.mu.Lock()
		if e.state == StateConnecting {
			e.state = StateDisconnected
		}
		e.mu.Unlock()
		return fmt.Errorf("open stream: %w", err)
	}

	e.mu.Lock()
	if e.state == StateClosed {
		// Closed while the dial was in flight.
		e.mu.Unlock()
		stream.Close()
		return ErrEngineClosed
	}
	e.stream = stream
	e.state = StateConnected
	e.mu.Unlock()

	// Registration is a notification, not a request. A failed send is
	// logged and tolerated; the stream itself is the source of truth.
	reg := coral.Envelope{
		Method: "agent.register",
		Params: map[string]any{
			"agent_id": e.identity.ID,
			"name":     e.identity.DisplayName,
			"role":     e.identity.Role,
		},
	}
	if err := e.client.Send(ctx, reg); err != nil {
		e.logger.Printf("agent %s: register notification failed: %v", e.identity.ID, err)
	}

	e.logger.Printf("agent %s (%s) connected", e.identity.ID, e.identity.Role)
	return nil
}

// Run consumes the event stream until the server closes it, the context is
// cancelled, or Close is called. Each event is dispatched exactly once;
// malformed or unknown frames are logged and skipped. Run returns nil on a
// clean end of stream.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateConnected {
		st := e.state
		e.mu.Unlock()
		return fmt.Errorf("run: engine is %s", st)
	}
	stream := e.stream
	e.mu.Unlock()

	defer e.Close()

	// Unblock the read loop when the context goes.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-watchDone:
		}
	}()

	for {
		data, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				e.logger.Printf("agent %s: stream ended", e.identity.ID)
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}

		ev, err := ParseInbound(data)
		if err != nil {
			e.logger.Printf("agent %s: dropping frame: %v", e.identity.ID, err)
			continue
		}
		e.dispatch(ctx, ev)
	}
}

// Close tears down the stream and marks the engine finished. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	stream := e.stream
	e.stream = nil
	already := e.state == StateClosed
	e.state = StateClosed
	e.mu.Unlock()

	if already {
		return nil
	}
	if stream != nil {
		return stream.Close()
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, ev InboundEvent) {
	switch ev := ev.(type) {
	case ToolsRequest:
		e.handleToolsRequest(ctx, ev)
	case ToolCall:
		e.handleToolCall(ctx, ev)
	case ThreadMessage:
		e.handleThreadMessage(ctx, ev)
	case AgentMention:
		e.handleAgentMention(ctx, ev)
	}
}

func (e *Engine) handleToolsRequest(ctx context.Context, ev ToolsRequest) {
	tools := e.caps.Tools()
	reply := coral.Envelope{
		ID:     ev.RequestID,
		Result: map[string]any{"tools": tools},
	}
	if err := e.client.Send(ctx, reply); err != nil {
		e.logger.Printf("agent %s: tools reply failed: %v", e.identity.ID, err)
	}
}

func (e *Engine) handleToolCall(ctx context.Context, ev ToolCall) {
	var result map[string]any
	if !e.caps.Has(ev.Name) {
		result = map[string]any{"success": false, "error": "Unknown tool"}
	} else {
		out, err := e.caps.Execute(ctx, ev.Name, ev.Arguments)
		if err != nil {
			result = map[string]any{"success": false, "error": err.Error()}
		} else {
			result = out
		}
	}

	reply := coral.Envelope{ID: ev.RequestID, Result: result}
	if err := e.client.Send(ctx, reply); err != nil {
		e.logger.Printf("agent %s: tool_call reply failed: %v", e.identity.ID, err)
	}
}

func (e *Engine) handleThreadMessage(ctx context.Context, ev ThreadMessage) {
	e.tracker.Observe(ev.ThreadID, ev.Sender)

	// Never answer your own messages.
	if ev.Sender == e.identity.ID || e.responder == nil {
		return
	}

	reply, err := e.responder.GetResponse(ctx, ev.Content, fmt.Sprintf("thread %s, from %s", ev.ThreadID, ev.Sender))
	if err != nil {
		e.logger.Printf("agent %s: response generation failed: %v", e.identity.ID, err)
		return
	}
	if reply == "" {
		return
	}
	if err := e.client.PostMessage(ctx, ev.ThreadID, reply, e.identity.ID, nil); err != nil {
		e.logger.Printf("agent %s: post reply failed: %v", e.identity.ID, err)
	}
}

func (e *Engine) handleAgentMention(ctx context.Context, ev AgentMention) {
	e.tracker.Observe(ev.ThreadID, ev.Mentioner)

	// Without a thread there is nowhere to answer.
	if ev.ThreadID == "" || e.responder == nil {
		return
	}
	prompt := fmt.Sprintf("%s mentioned you: %s", ev.Mentioner, ev.Context)
	reply, err := e.responder.GetResponse(ctx, prompt, fmt.Sprintf("thread %s", ev.ThreadID))
	if err != nil {
		e.logger.Printf("agent %s: response generation failed: %v", e.identity.ID, err)
		return
	}
	if reply == "" {
		return
	}
	if err := e.client.PostMessage(ctx, ev.ThreadID, reply, e.identity.ID, []string{ev.Mentioner}); err != nil {
		e.logger.Printf("agent %s: post mention reply failed: %v", e.identity.ID, err)
	}
}
