package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect isolates the driver-specific parts of the store.
type Dialect interface {
	// Name identifies the dialect in logs.
	Name() string
	// Rebind rewrites "?" placeholders into the driver's syntax.
	Rebind(query string) string
	// MapError translates driver errors into persistence sentinels,
	// returning err unchanged when it has no mapping.
	MapError(err error) error
	// Retryable reports whether err is transient lock contention.
	Retryable(err error) bool
}

// RebindDollar rewrites "?" placeholders as $1, $2, ... skipping quoted
// literals.
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
