// Package command routes imperative bus commands to per-service handlers.
// A command payload is a keyed record with a "command" field; remaining keys
// become handler arguments, and a reply subject (when present) is injected
// as the "reply" argument.
package command

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/codec"
)

// HandlerFunc executes one command. Handlers that want to answer publish to
// args["reply"] themselves; the router defines no wire reply format.
type HandlerFunc func(args codec.Record) error

// Router is a per-service command table. The table is populated once while
// the service is constructed and stays fixed afterwards, so dispatch needs
// only a read lock.
type Router struct {
	service string
	log     zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter returns an empty router for a service.
func NewRouter(service string, log zerolog.Logger) *Router {
	return &Router{
		service:  service,
		log:      log,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a command name to its handler. Later registrations of the
// same name win, matching the last-write semantics of the table.
func (r *Router) Register(name string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Debug().Str("command", name).Msg("registering command")
	r.handlers[name] = h
}

// Names returns the registered command names, sorted.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Handle decodes one envelope and dispatches it. Malformed payloads and
// unknown commands are logged and dropped; handler failures and panics stay
// inside the router and never reach the bus.
func (r *Router) Handle(msg bus.Msg) {
	rec, err := codec.Decode(msg.Data)
	if err != nil {
		r.log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed command payload")
		return
	}

	name := rec.GetString("command")
	if name == "" {
		r.log.Warn().Str("subject", msg.Subject).Msg("message without a 'command' field")
		return
	}

	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		r.log.Warn().Str("command", name).Msg("no handler registered for command")
		return
	}

	args := make(codec.Record, len(rec))
	for k, v := range rec {
		if k != "command" {
			args[k] = v
		}
	}
	if msg.Reply != "" {
		args["reply"] = msg.Reply
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Str("command", name).Any("panic", p).Msg("command handler panicked")
		}
	}()

	r.log.Debug().Str("command", name).Msg("executing command")
	if err := h(args); err != nil {
		r.log.Error().Err(err).Str("command", name).Msg("command handler failed")
	}
}
