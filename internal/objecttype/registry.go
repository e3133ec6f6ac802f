// Package objecttype resolves the host application's domain objects that
// chat rooms are attached to. Type names are matched case-insensitively.
package objecttype

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Record is a fetched domain object.
type Record struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Handler fetches objects of one type. Fetch reports found=false when the
// id does not exist.
type Handler interface {
	Name() string
	Fetch(ctx context.Context, id string) (Record, bool, error)
}

// ErrDuplicateType is returned when a type name is registered twice.
var ErrDuplicateType = errors.New("objecttype: type already registered")

// Registry maps type names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.With("component", "objecttype"),
	}
}

// Register adds h under its lower-cased name.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return errors.New("objecttype: handler is nil")
	}
	key := normalizeName(h.Name())
	if key == "" {
		return errors.New("objecttype: handler name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, key)
	}
	r.handlers[key] = h
	r.order = append(r.order, key)
	return nil
}

// Resolve returns the handler registered for typeName.
func (r *Registry) Resolve(typeName string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[normalizeName(typeName)]
	return h, ok
}

// Types returns the registered type names sorted alphabetically.
func (r *Registry) Types() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// ResolveByID fetches id from the handler for typeName, or when typeName is
// empty from every handler in registration order, first hit winning.
// Lookup errors are logged and reported as absence.
func (r *Registry) ResolveByID(ctx context.Context, typeName, id string) (Record, bool) {
	if r == nil || strings.TrimSpace(id) == "" {
		return Record{}, false
	}

	if strings.TrimSpace(typeName) != "" {
		h, ok := r.Resolve(typeName)
		if !ok {
			return Record{}, false
		}
		return r.fetch(ctx, h, id)
	}

	r.mu.RLock()
	candidates := make([]Handler, 0, len(r.order))
	for _, key := range r.order {
		candidates = append(candidates, r.handlers[key])
	}
	r.mu.RUnlock()

	for _, h := range candidates {
		if rec, ok := r.fetch(ctx, h, id); ok {
			return rec, true
		}
	}
	return Record{}, false
}

func (r *Registry) fetch(ctx context.Context, h Handler, id string) (Record, bool) {
	rec, found, err := h.Fetch(ctx, id)
	if err != nil {
		r.logger.WarnContext(ctx, "object lookup failed", "type", h.Name(), "id", id, "error", err)
		return Record{}, false
	}
	if !found {
		return Record{}, false
	}
	if rec.Type == "" {
		rec.Type = normalizeName(h.Name())
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, true
}

// FuncHandler adapts a function into a Handler.
type FuncHandler struct {
	TypeName string
	FetchFn  func(ctx context.Context, id string) (Record, bool, error)
}

// Name implements Handler.
func (f FuncHandler) Name() string { return f.TypeName }

// Fetch implements Handler.
func (f FuncHandler) Fetch(ctx context.Context, id string) (Record, bool, error) {
	if f.FetchFn == nil {
		return Record{}, false, nil
	}
	return f.FetchFn(ctx, id)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
