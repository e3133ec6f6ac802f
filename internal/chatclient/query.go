package chatclient

import (
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

const (
	// DefaultPage is sent when ListOptions.Page is zero.
	DefaultPage = 1
	// DefaultPageSize is sent when ListOptions.Size is zero.
	DefaultPageSize = 50
)

// ListOptions controls pagination of collection endpoints. Filters are
// forwarded verbatim as extra query parameters.
type ListOptions struct {
	Page    int
	Size    int
	Filters map[string]string
}

func (o ListOptions) values() url.Values {
	page, size := o.Page, o.Size
	if page <= 0 {
		page = DefaultPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	params := url.Values{}
	for key, value := range o.Filters {
		params.Set(key, value)
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	return params
}

// The helpers below only add a parameter when it was supplied, so unset
// options never show up as empty keys in the query string.

func setString(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func setUUID(params url.Values, key string, value uuid.UUID) {
	if value != uuid.Nil {
		params.Set(key, value.String())
	}
}

func setInt(params url.Values, key string, value *int) {
	if value != nil {
		params.Set(key, strconv.Itoa(*value))
	}
}

func setTrue(params url.Values, key string, value bool) {
	if value {
		params.Set(key, "true")
	}
}
