// Package gateway defines the command/event transport between the control
// plane and the backend that performs jamming and packet capture.
//
// Commands are request/reply with JSON arguments. Events are push-only JSON
// payloads delivered in order per subscription until unsubscribed.
//
// # Transports
//
//   - [Local]: in-process registry, used by the loopback mode and tests
//   - [NATS]: request/reply on "<prefix>.cmd.<command>", events on
//     "<prefix>.event.<event>"
//   - [MockGateway]: testify mock
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrTimeout is wrapped by errors returned from InvokeTimeout when the
	// timer wins the race.
	ErrTimeout = errors.New("command timed out")

	// ErrUnknownCommand is returned when no backend handles a command.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("gateway closed")
)

// Handler receives one raw event payload.
type Handler func(payload []byte)

// Unsubscribe cancels an event subscription. It is safe to call more than once.
type Unsubscribe func() error

// Gateway is the only source of asynchrony for the core: commands are
// invoked through it and events arrive from it.
type Gateway interface {
	// Invoke sends command with args and decodes the result into reply
	// (which may be nil). reply must not be read if an error is returned.
	Invoke(ctx context.Context, command string, args, reply any) error

	// Listen subscribes handler to the named event stream.
	Listen(ctx context.Context, event string, handler Handler) (Unsubscribe, error)
}

// CommandFunc serves one command on the backend side. args is the raw JSON
// sent by the caller; the returned value is encoded as the result.
type CommandFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Backend is the serving side of a transport.
type Backend interface {
	Handle(command string, fn CommandFunc) error
	Emit(event string, payload any) error
}

// CommandError is a failure reported by the backend.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

// Reply is the wire envelope for command results.
type Reply struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// EncodeReply builds the envelope for a command outcome.
func EncodeReply(result any, err error) ([]byte, error) {
	if err != nil {
		return json.Marshal(Reply{OK: false, Error: err.Error()})
	}
	env := Reply{OK: true}
	if result != nil {
		raw, merr := json.Marshal(result)
		if merr != nil {
			return nil, fmt.Errorf("failed to encode result: %w", merr)
		}
		env.Result = raw
	}
	return json.Marshal(env)
}

// DecodeReply unpacks an envelope for command into reply.
func DecodeReply(command string, data []byte, reply any) error {
	var env Reply
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%s: malformed reply: %w", command, err)
	}
	if !env.OK {
		msg := env.Error
		if msg == "" {
			msg = "backend reported failure"
		}
		return &CommandError{Command: command, Message: msg}
	}
	if reply == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, reply); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", command, err)
	}
	return nil
}
