package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/example/chatrooms/internal/chatclient"
)

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func pathValue(r *http.Request, name string) string {
	return strings.TrimSpace(mux.Vars(r)[name])
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(pathValue(r, name))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func queryValue(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

// queryInt returns nil when the parameter is absent.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := queryValue(r, name)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return nil, errInvalidQuery
	}
	return &value, nil
}

func listOptions(r *http.Request) (chatclient.ListOptions, error) {
	var opts chatclient.ListOptions
	page, err := queryInt(r, "page")
	if err != nil {
		return opts, err
	}
	size, err := queryInt(r, "size")
	if err != nil {
		return opts, err
	}
	if page != nil {
		opts.Page = *page
	}
	if size != nil {
		opts.Size = *size
	}
	return opts, nil
}
