package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Local is an in-process transport. It is both the Gateway the core talks to
// and the Backend a simulator serves on. Payloads make a JSON round trip so
// callers see the same decoding behaviour as on the wire.
type Local struct {
	mu        sync.RWMutex
	commands  map[string]CommandFunc
	listeners map[string]map[uint64]Handler
	nextID    uint64
	closed    bool

	// emitMu serializes deliveries so each subscription sees events in
	// emission order.
	emitMu sync.Mutex
}

var (
	_ Gateway = (*Local)(nil)
	_ Backend = (*Local)(nil)
)

// NewLocal creates an empty in-process transport.
func NewLocal() *Local {
	return &Local{
		commands:  make(map[string]CommandFunc),
		listeners: make(map[string]map[uint64]Handler),
	}
}

// Handle registers fn for command, replacing any previous handler.
func (l *Local) Handle(command string, fn CommandFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.commands[command] = fn
	return nil
}

// Invoke implements Gateway.
func (l *Local) Invoke(ctx context.Context, command string, args, reply any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	fn, ok := l.commands[command]
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}

	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("%s: failed to encode args: %w", command, err)
		}
		raw = data
	}

	result, err := fn(ctx, raw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", command, ctxErr)
		}
		return &CommandError{Command: command, Message: err.Error()}
	}
	if reply == nil || result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%s: failed to encode result: %w", command, err)
	}
	if err := json.Unmarshal(data, reply); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", command, err)
	}
	return nil
}

// Listen implements Gateway.
func (l *Local) Listen(ctx context.Context, event string, handler Handler) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	l.nextID++
	id := l.nextID
	if l.listeners[event] == nil {
		l.listeners[event] = make(map[uint64]Handler)
	}
	l.listeners[event][id] = handler

	var once sync.Once
	return func() error {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.listeners[event], id)
			if len(l.listeners[event]) == 0 {
				delete(l.listeners, event)
			}
		})
		return nil
	}, nil
}

// Emit implements Backend. Handlers run synchronously on the caller's goroutine.
func (l *Local) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}

	l.emitMu.Lock()
	defer l.emitMu.Unlock()

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(l.listeners[event]))
	for _, h := range l.listeners[event] {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
	return nil
}

// Listeners returns the number of live subscriptions for event.
func (l *Local) Listeners(event string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.listeners[event])
}

// Connected reports whether the transport is still open.
func (l *Local) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.closed
}

// Close drops every handler and subscription.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.commands = make(map[string]CommandFunc)
	l.listeners = make(map[string]map[uint64]Handler)
	return nil
}
