package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	sdkcommands "github.com/cexll/agentsdk-go/pkg/runtime/commands"
	"github.com/rs/zerolog"
)

type Router struct {
	mu        sync.RWMutex
	factories map[string]Factory
	handlers  map[string]Handler
	ready     atomic.Bool
	log       zerolog.Logger
}

func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		factories: make(map[string]Factory),
		handlers:  make(map[string]Handler),
		log:       log.With().Str("component", "command").Logger(),
	}
}

// Register builds the handler once and keeps the factory for Reload.
func (r *Router) Register(factory Factory) error {
	if factory == nil {
		return fmt.Errorf("register command: nil factory")
	}
	h := factory()
	def := h.Definition()
	if err := (sdkcommands.Definition{Name: def.Name, Description: def.Description}).Validate(); err != nil {
		return fmt.Errorf("register command: %w", err)
	}
	name := strings.ToLower(def.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("register command: %q already registered", name)
	}
	r.factories[name] = factory
	r.handlers[name] = h
	return nil
}

func (r *Router) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToLower(name)]
	return h, ok
}

// Reload replaces the named handler with a fresh one from its factory.
func (r *Router) Reload(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	factory, ok := r.factories[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	h := factory()
	if got := strings.ToLower(h.Definition().Name); got != name {
		return fmt.Errorf("reload %s: factory built %q", name, got)
	}
	r.handlers[name] = h
	r.log.Info().Str("command", name).Msg("command reloaded")
	return nil
}

// Names lists registered command names, sorted.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every definition, sorted by name.
func (r *Router) Definitions() []Definition {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.handlers[name].Definition())
	}
	return defs
}

// SetReady opens the router for dispatch. The gateway calls it once the
// birthday jobs have been rehydrated.
func (r *Router) SetReady(ready bool) { r.ready.Store(ready) }

func (r *Router) Ready() bool { return r.ready.Load() }

// Dispatch checks permission and options, then runs the handler.
func (r *Router) Dispatch(ctx context.Context, inv Invocation) (Response, error) {
	if !r.Ready() {
		return Response{}, ErrNotReady
	}
	h, ok := r.Lookup(inv.Name)
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownCommand, inv.Name)
	}
	def := h.Definition()
	if def.AdminOnly && !inv.IsAdmin {
		return Response{}, ErrForbidden
	}
	if err := CheckOptions(def, inv); err != nil {
		return Response{}, err
	}
	r.log.Debug().Str("command", def.Name).Str("channel", inv.Channel).Str("user", inv.User.Name).Msg("dispatch")
	return h.Execute(ctx, inv)
}

// Autocomplete returns at most MaxChoices suggestions. Handlers without
// autocompletion yield none.
func (r *Router) Autocomplete(ctx context.Context, inv Invocation) ([]Choice, error) {
	h, ok := r.Lookup(inv.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, inv.Name)
	}
	ac, ok := h.(Autocompleter)
	if !ok {
		return nil, nil
	}
	choices, err := ac.Autocomplete(ctx, inv)
	if err != nil {
		return nil, err
	}
	if len(choices) > MaxChoices {
		choices = choices[:MaxChoices]
	}
	return choices, nil
}

// CheckOptions enforces required options, declared choices and integer
// bounds.
func CheckOptions(def Definition, inv Invocation) error {
	for _, opt := range def.Options {
		v, ok := inv.Options[opt.Name]
		if !ok {
			if opt.Required {
				return fmt.Errorf("%w: %s is required", ErrInvalidOption, opt.Name)
			}
			continue
		}
		if v.Type != opt.Type {
			return fmt.Errorf("%w: %s must be a %s", ErrInvalidOption, opt.Name, opt.Type)
		}
		if len(opt.Choices) > 0 && !hasChoice(opt.Choices, v) {
			return fmt.Errorf("%w: %s is not one of the choices", ErrInvalidOption, opt.Name)
		}
		if opt.Type == OptionInteger {
			if opt.MinValue != nil && v.Int < int64(*opt.MinValue) {
				return fmt.Errorf("%w: %s must be at least %d", ErrInvalidOption, opt.Name, *opt.MinValue)
			}
			if opt.MaxValue != nil && v.Int > int64(*opt.MaxValue) {
				return fmt.Errorf("%w: %s must be at most %d", ErrInvalidOption, opt.Name, *opt.MaxValue)
			}
		}
	}
	return nil
}

func hasChoice(choices []Choice, v Value) bool {
	s := v.Str
	if v.Type == OptionInteger {
		s = strconv.FormatInt(v.Int, 10)
	}
	for _, c := range choices {
		if c.Value == s {
			return true
		}
	}
	return false
}
