package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Rooms        *RoomHandler
	Chats        *ChatHandler
	Participants *ParticipantHandler
	Attachments  *AttachmentHandler
	ObjectTypes  *ObjectTypeHandler
	Health       HealthCheck

	// Identity wraps every route except /healthz; RequirePrincipal in production.
	Identity   func(http.Handler) http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(notFound)
	root.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	root.HandleFunc("/healthz", healthHandler(cfg.Health)).Methods(http.MethodGet)

	api := root.PathPrefix("/").Subrouter()
	if cfg.Identity != nil {
		api.Use(mux.MiddlewareFunc(cfg.Identity))
	}

	if cfg.Rooms != nil {
		api.HandleFunc("/rooms", cfg.Rooms.List).Methods(http.MethodGet)
		api.HandleFunc("/rooms", cfg.Rooms.Create).Methods(http.MethodPost)
		api.HandleFunc("/rooms/search", cfg.Rooms.Search).Methods(http.MethodGet)
		api.HandleFunc("/rooms/archived", cfg.Rooms.Archived).Methods(http.MethodGet)
		api.HandleFunc("/rooms/{id}", cfg.Rooms.Get).Methods(http.MethodGet)
		api.HandleFunc("/rooms/{id}", cfg.Rooms.Update).Methods(http.MethodPatch)
		api.HandleFunc("/rooms/{id}", cfg.Rooms.Leave).Methods(http.MethodDelete)
	}

	if cfg.Chats != nil {
		api.HandleFunc("/chats", cfg.Chats.Create).Methods(http.MethodPost)
		api.HandleFunc("/chats/in-room", cfg.Chats.InRoom).Methods(http.MethodGet)
		api.HandleFunc("/chats/search", cfg.Chats.Search).Methods(http.MethodGet)
		api.HandleFunc("/chats/{id}", cfg.Chats.Get).Methods(http.MethodGet)
		api.HandleFunc("/chats/{id}", cfg.Chats.Update).Methods(http.MethodPatch)
		api.HandleFunc("/chats/{id}", cfg.Chats.Delete).Methods(http.MethodDelete)
	}

	if cfg.Participants != nil {
		api.HandleFunc("/participants", cfg.Participants.List).Methods(http.MethodGet)
		api.HandleFunc("/participants", cfg.Participants.Remove).Methods(http.MethodDelete)
		api.HandleFunc("/participants/by-ids", cfg.Participants.AddByIDs).Methods(http.MethodPost)
		api.HandleFunc("/participants/by-emails", cfg.Participants.AddByEmails).Methods(http.MethodPost)
	}

	if cfg.Attachments != nil {
		api.HandleFunc("/attachments", cfg.Attachments.Create).Methods(http.MethodPost)
		api.HandleFunc("/attachments/{id}", cfg.Attachments.Update).Methods(http.MethodPatch)
		api.HandleFunc("/attachments/{id}", cfg.Attachments.Delete).Methods(http.MethodDelete)
		api.HandleFunc("/attachments/{id}/presigned-url", cfg.Attachments.PresignedURL).Methods(http.MethodPost)
	}

	if cfg.ObjectTypes != nil {
		api.HandleFunc("/object-types", cfg.ObjectTypes.List).Methods(http.MethodGet)
		api.HandleFunc("/object-types/{type}/{id}", cfg.ObjectTypes.Get).Methods(http.MethodGet)
	}

	var handler http.Handler = root
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

func healthHandler(check HealthCheck) http.HandlerFunc {
	responder := newResponder(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	newResponder(nil).writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Message: "route not found"})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	newResponder(nil).writeJSON(r.Context(), w, http.StatusMethodNotAllowed, errorResponse{Message: http.StatusText(http.StatusMethodNotAllowed)})
}
