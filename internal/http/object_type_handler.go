package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/chatrooms/internal/objecttype"
)

type objectTypeRegistry interface {
	Types() []string
	ResolveByID(ctx context.Context, typeName, id string) (objecttype.Record, bool)
}

type ObjectTypeHandler struct {
	registry  objectTypeRegistry
	responder responder
	logger    *slog.Logger
}

func NewObjectTypeHandler(registry objectTypeRegistry, logger *slog.Logger) *ObjectTypeHandler {
	base := defaultLogger(logger)
	return &ObjectTypeHandler{registry: registry, responder: newResponder(base), logger: base}
}

func (h *ObjectTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.registry == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, objectTypesResponse{Types: h.registry.Types()})
}

// Get resolves an object; the type segment "any" searches every type.
func (h *ObjectTypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.registry == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	typeName, id := pathValue(r, "type"), pathValue(r, "id")
	if typeName == "any" {
		typeName = ""
	}
	logger := handlerLogger(r.Context(), h.logger, "ObjectTypeHandler", "Get", "object_type", typeName, "object_id", id)

	record, ok := h.registry.ResolveByID(r.Context(), typeName, id)
	if !ok {
		logger.InfoContext(r.Context(), "object not found")
		h.responder.writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Message: "object not found"})
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, record)
}

type objectTypesResponse struct {
	Types []string `json:"types"`
}
