package worker

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// HandlerFunc is a type-erased job handler over the raw stored payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Registry maps job types to handlers. Registration happens during wiring,
// before the first claim, so no locking is needed. The set of registered
// types doubles as the claim allow-list.
type Registry struct {
	handlers map[string]HandlerFunc
	types    []string
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a typed handler to a job type. Producers sometimes store
// the payload JSON-escaped inside a string, so the closure unwraps one
// level of string quoting before decoding.
//
// Package-level because Go does not allow generic methods.
func Register[T any](r *Registry, jobType string, handle func(ctx context.Context, p T) error) {
	r.handlers[jobType] = func(ctx context.Context, payload []byte) error {
		body := payload
		if len(body) > 0 && body[0] == '"' {
			var quoted string
			if err := json.Unmarshal(body, &quoted); err == nil {
				body = []byte(quoted)
			}
		}
		var p T
		if len(body) > 0 {
			if err := json.Unmarshal(body, &p); err != nil {
				return errors.Wrapf(err, "decode %s payload", jobType)
			}
		}
		return handle(ctx, p)
	}
	r.types = append(r.types, jobType)
}

// Get returns the handler for a job type.
func (r *Registry) Get(jobType string) (HandlerFunc, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types, in registration order.
func (r *Registry) Types() []string {
	return r.types
}
