// Package backend defines the opaque event-producing agent contract and its
// bundled implementations.
package backend

import "context"

// Sink receives backend-native callbacks as they happen. Implementations
// translate them into run events.
type Sink interface {
	Token(text string)
	ToolStart(tool, input string)
	ToolEnd(output string)
}

// Backend produces a stream of callbacks and one terminal text for a
// prompt. Implementations are swappable; the run executor only relies on
// this shape.
type Backend interface {
	// Name identifies the backend in status events.
	Name() string
	// Invoke runs the agent, emitting intermediate callbacks to sink, and
	// returns the terminal text.
	Invoke(ctx context.Context, prompt string, sink Sink) (string, error)
}
