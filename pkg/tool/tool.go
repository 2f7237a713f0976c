// Package tool defines the host-facing contract for tool-style connectors:
// single operations against a vendor API that produce a small stream of
// typed messages (text, JSON, variables) rather than file content.
package tool

import (
	"context"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

// MessageType tags one emitted message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageJSON     MessageType = "json"
	MessageVariable MessageType = "variable"
	MessageLog      MessageType = "log"
)

// Message is one unit of tool output.
type Message struct {
	Type MessageType

	// Text holds the payload for text and log messages.
	Text string

	// JSON holds the payload for json messages.
	JSON map[string]any

	// Name and Value hold the payload for variable messages.
	Name  string
	Value string
}

// TextMessage builds a text message.
func TextMessage(text string) Message {
	return Message{Type: MessageText, Text: text}
}

// JSONMessage builds a json message.
func JSONMessage(payload map[string]any) Message {
	return Message{Type: MessageJSON, JSON: payload}
}

// VariableMessage builds a variable message.
func VariableMessage(name, value string) Message {
	return Message{Type: MessageVariable, Name: name, Value: value}
}

// MessageStream is the finite, forward-only sequence of messages produced
// by one tool invocation.
type MessageStream struct {
	msgs []Message
	idx  int
}

// MessageStreamOf returns a stream over the given messages.
func MessageStreamOf(msgs ...Message) *MessageStream {
	return &MessageStream{msgs: msgs}
}

// Next advances to the next message.
func (s *MessageStream) Next() bool {
	if s.idx >= len(s.msgs) {
		return false
	}
	s.idx++
	return true
}

// Message returns the message positioned by the last successful Next.
func (s *MessageStream) Message() Message { return s.msgs[s.idx-1] }

// Tool is one invocable operation belonging to a provider.
type Tool interface {
	// Name identifies the operation within its provider.
	Name() string

	// Invoke runs the operation with the given parameters.
	Invoke(ctx context.Context, params map[string]any) (*MessageStream, error)
}

// Provider groups a vendor's tools behind shared credentials.
type Provider interface {
	// Name identifies the provider (e.g., "spotify").
	Name() string

	// ValidateCredentials probes the vendor API with the configured
	// credentials.
	ValidateCredentials(ctx context.Context, creds datasource.Credentials) error

	// Tools returns the provider's operations.
	Tools() []Tool
}
