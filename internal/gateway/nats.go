package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"grimm.is/netaudit/internal/brand"
	"grimm.is/netaudit/internal/logging"

	"github.com/nats-io/nats.go"
)

// NATSOptions configures a NATS transport.
type NATSOptions struct {
	URL            string
	Prefix         string
	RequestTimeout time.Duration
	Logger         *logging.Logger
}

// NATS carries commands and events over a NATS connection.
type NATS struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
	logger  *logging.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

var (
	_ Gateway = (*NATS)(nil)
	_ Backend = (*NATS)(nil)
)

// DialNATS connects to the server at opts.URL.
func DialNATS(opts NATSOptions) (*NATS, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("gateway")
	}

	nc, err := nats.Connect(opts.URL,
		nats.Name(brand.UserAgent(brand.Version)),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", opts.URL, err)
	}
	logger.Info("Connected to NATS", "url", opts.URL, "prefix", opts.Prefix)

	return NewNATS(nc, opts.Prefix, opts.RequestTimeout, logger), nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, prefix string, timeout time.Duration, logger *logging.Logger) *NATS {
	if logger == nil {
		logger = logging.WithComponent("gateway")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NATS{nc: nc, prefix: prefix, timeout: timeout, logger: logger}
}

// CommandSubject returns the subject a command is requested on.
func CommandSubject(prefix, command string) string {
	return prefix + ".cmd." + command
}

// EventSubject returns the subject an event stream is published on.
func EventSubject(prefix, event string) string {
	return prefix + ".event." + event
}

// Invoke implements Gateway.
func (n *NATS) Invoke(ctx context.Context, command string, args, reply any) error {
	data := []byte("null")
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("%s: failed to encode args: %w", command, err)
		}
		data = encoded
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	msg, err := n.nc.RequestWithContext(ctx, CommandSubject(n.prefix, command), data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
		}
		return fmt.Errorf("%s: %w", command, err)
	}
	return DecodeReply(command, msg.Data, reply)
}

// Listen implements Gateway. NATS delivers a subscription's messages on a
// single goroutine, preserving order.
func (n *NATS) Listen(ctx context.Context, event string, handler Handler) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, err := n.nc.Subscribe(EventSubject(n.prefix, event), func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", event, err)
	}

	var once sync.Once
	return func() error {
		var uerr error
		once.Do(func() {
			uerr = sub.Unsubscribe()
			if errors.Is(uerr, nats.ErrConnectionClosed) || errors.Is(uerr, nats.ErrBadSubscription) {
				uerr = nil
			}
		})
		return uerr
	}, nil
}

// Handle implements Backend: requests on the command subject are served by fn.
func (n *NATS) Handle(command string, fn CommandFunc) error {
	sub, err := n.nc.Subscribe(CommandSubject(n.prefix, command), func(m *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		result, ferr := fn(ctx, json.RawMessage(m.Data))
		data, err := EncodeReply(result, ferr)
		if err != nil {
			n.logger.Error("Failed to encode reply", "command", command, "error", err)
			data, _ = EncodeReply(nil, err)
		}
		if err := m.Respond(data); err != nil {
			n.logger.Warn("Failed to respond", "command", command, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to serve %s: %w", command, err)
	}

	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()
	return nil
}

// Emit implements Backend.
func (n *NATS) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return n.nc.Publish(EventSubject(n.prefix, event), data)
}

// Connected reports whether the NATS link is currently up.
func (n *NATS) Connected() bool {
	return n.nc != nil && n.nc.IsConnected()
}

// Close drains and closes the connection.
func (n *NATS) Close() error {
	n.mu.Lock()
	n.subs = nil
	n.mu.Unlock()

	if n.nc == nil {
		return nil
	}
	if err := n.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	n.logger.Info("NATS connection drained and closed")
	return nil
}
