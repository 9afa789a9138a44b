package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Message is a command or a query routed by key.
type Message interface {
	Key() string
}

type Handler[M Message, R any] interface {
	Handle(ctx context.Context, msg M) (R, error)
}

type HandlerFunc[M Message, R any] func(ctx context.Context, msg M) (R, error)

func (f HandlerFunc[M, R]) Handle(ctx context.Context, msg M) (R, error) {
	return f(ctx, msg)
}

type Bus interface {
	Send(ctx context.Context, msg Message) (any, error)
}

// Func adapts a function to Bus.
type Func func(ctx context.Context, msg Message) (any, error)

func (f Func) Send(ctx context.Context, msg Message) (any, error) { return f(ctx, msg) }

var (
	ErrHandlerNotFound = errors.New("bus: handler not found")
	ErrInvalidMessage  = errors.New("bus: invalid message for handler")
	ErrResultType      = errors.New("bus: result type mismatch")
	ErrNilBus          = errors.New("bus: nil bus")
)

type rawHandler func(ctx context.Context, msg Message) (any, error)

// Registry is the terminal Bus: it looks the handler up by message key.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]rawHandler)}
}

func (r *Registry) Send(ctx context.Context, msg Message) (any, error) {
	if msg == nil {
		return nil, ErrInvalidMessage
	}
	r.mu.RLock()
	h, ok := r.handlers[msg.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, msg.Key())
	}
	return h(ctx, msg)
}

// Keys lists the registered message keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	return out
}

// Register binds a typed handler to key. Registering a key twice panics.
func Register[M Message, R any](r *Registry, key string, handler Handler[M, R]) {
	if r == nil {
		panic("bus: nil registry")
	}
	if key == "" {
		panic("bus: empty key registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[key]; dup {
		panic("bus: duplicate registration for " + key)
	}
	r.handlers[key] = func(ctx context.Context, raw Message) (any, error) {
		msg, ok := raw.(M)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidMessage, key)
		}
		return handler.Handle(ctx, msg)
	}
}

// Send dispatches msg and asserts the result type.
func Send[M Message, R any](ctx context.Context, b Bus, msg M) (R, error) {
	var zero R
	if b == nil {
		return zero, ErrNilBus
	}
	res, err := b.Send(ctx, msg)
	if res == nil {
		return zero, err
	}
	value, ok := res.(R)
	if !ok {
		if err != nil {
			return zero, err
		}
		return zero, ErrResultType
	}
	return value, err
}
