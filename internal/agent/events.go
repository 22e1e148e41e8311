package agent

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event type tags pushed by the coordination server.
const (
	eventTools         = "tools"
	eventToolCall      = "tool_call"
	eventThreadMessage = "thread.message"
	eventAgentMention  = "agent.mention"
)

// ErrUnknownEventType marks a well-formed frame whose type has no handler.
// The dispatcher drops such frames without terminating the loop.
var ErrUnknownEventType = errors.New("unknown event type")

// InboundEvent is one parsed event from the agent's stream. Exactly one of
// the concrete types below. Each event is consumed once by the dispatcher.
type InboundEvent interface {
	inboundEvent()
}

// ToolsRequest asks the agent to report its full capability list.
type ToolsRequest struct {
	RequestID json.RawMessage
}

// ToolCall asks the agent to execute one named capability.
type ToolCall struct {
	RequestID json.RawMessage
	Name      string
	Arguments map[string]any
}

// ThreadMessage is a message posted into a thread the agent participates in.
type ThreadMessage struct {
	ThreadID string
	Sender   string
	Content  string
}

// AgentMention notifies the agent it was mentioned by another agent.
type AgentMention struct {
	ThreadID  string
	Mentioner string
	Context   string
}

func (ToolsRequest) inboundEvent()  {}
func (ToolCall) inboundEvent()      {}
func (ThreadMessage) inboundEvent() {}
func (AgentMention) inboundEvent()  {}

// frame is the wire envelope: {type, id?, params}.
type frame struct {
	Type   string          `json:"type"`
	ID     json.RawMessage `json:"id"`
	Params json.RawMessage `json:"params"`
}

// ParseInbound decodes one raw stream payload into an InboundEvent.
// A payload that is not valid JSON or lacks a type returns an error; a
// valid frame with an unmapped type returns ErrUnknownEventType. Both are
// protocol faults the caller skips.
func ParseInbound(data []byte) (InboundEvent, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("parse frame: missing type")
	}

	switch f.Type {
	case eventTools:
		return ToolsRequest{RequestID: f.ID}, nil

	case eventToolCall:
		var p struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if len(f.Params) > 0 {
			if err := json.Unmarshal(f.Params, &p); err != nil {
				return nil, fmt.Errorf("parse tool_call params: %w", err)
			}
		}
		if p.Name == "" {
			return nil, fmt.Errorf("parse tool_call: missing tool name")
		}
		return ToolCall{RequestID: f.ID, Name: p.Name, Arguments: p.Arguments}, nil

	case eventThreadMessage:
		var p struct {
			ThreadID string `json:"thread_id"`
			Sender   string `json:"sender"`
			Content  string `json:"content"`
		}
		if len(f.Params) > 0 {
			if err := json.Unmarshal(f.Params, &p); err != nil {
				return nil, fmt.Errorf("parse thread.message params: %w", err)
			}
		}
		return ThreadMessage{ThreadID: p.ThreadID, Sender: p.Sender, Content: p.Content}, nil

	case eventAgentMention:
		var p struct {
			ThreadID  string `json:"thread_id"`
			Mentioner string `json:"mentioner"`
			Context   string `json:"context"`
		}
		if len(f.Params) > 0 {
			if err := json.Unmarshal(f.Params, &p); err != nil {
				return nil, fmt.Errorf("parse agent.mention params: %w", err)
			}
		}
		return AgentMention{ThreadID: p.ThreadID, Mentioner: p.Mentioner, Context: p.Context}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, f.Type)
}
