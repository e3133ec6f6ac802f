package objecttype

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticHandler(name string, records map[string]Record) FuncHandler {
	return FuncHandler{
		TypeName: name,
		FetchFn: func(_ context.Context, id string) (Record, bool, error) {
			rec, ok := records[id]
			return rec, ok, nil
		},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	require.NoError(t, r.Register(staticHandler("Invoice", nil)))
	require.NoError(t, r.Register(staticHandler("deal", nil)))

	err := r.Register(staticHandler(" INVOICE ", nil))
	assert.ErrorIs(t, err, ErrDuplicateType)
	assert.Error(t, r.Register(staticHandler("  ", nil)))
	assert.Error(t, r.Register(nil))

	assert.Equal(t, []string{"deal", "invoice"}, r.Types())

	h, ok := r.Resolve("InVoIcE")
	require.True(t, ok)
	assert.Equal(t, "Invoice", h.Name())

	_, ok = r.Resolve("order")
	assert.False(t, ok)
}

func TestRegistryResolveByID(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	require.NoError(t, r.Register(staticHandler("invoice", map[string]Record{
		"1": {Fields: map[string]any{"number": "INV-1"}},
	})))
	require.NoError(t, r.Register(FuncHandler{
		TypeName: "broken",
		FetchFn: func(context.Context, string) (Record, bool, error) {
			return Record{}, false, errors.New("table missing")
		},
	}))
	require.NoError(t, r.Register(staticHandler("deal", map[string]Record{
		"1": {Fields: map[string]any{"title": "Deal 1"}},
		"2": {Fields: map[string]any{"title": "Deal 2"}},
	})))

	ctx := context.Background()

	t.Run("typed lookup", func(t *testing.T) {
		rec, ok := r.ResolveByID(ctx, "DEAL", "1")
		require.True(t, ok)
		assert.Equal(t, "deal", rec.Type)
		assert.Equal(t, "1", rec.ID)
		assert.Equal(t, "Deal 1", rec.Fields["title"])
	})

	t.Run("untyped lookup takes first registered hit", func(t *testing.T) {
		rec, ok := r.ResolveByID(ctx, "", "1")
		require.True(t, ok)
		assert.Equal(t, "invoice", rec.Type)
	})

	t.Run("errors are absence", func(t *testing.T) {
		_, ok := r.ResolveByID(ctx, "broken", "1")
		assert.False(t, ok)

		rec, ok := r.ResolveByID(ctx, "", "2")
		require.True(t, ok)
		assert.Equal(t, "deal", rec.Type)
	})

	t.Run("unknown type or id", func(t *testing.T) {
		_, ok := r.ResolveByID(ctx, "order", "1")
		assert.False(t, ok)
		_, ok = r.ResolveByID(ctx, "deal", "3")
		assert.False(t, ok)
		_, ok = r.ResolveByID(ctx, "deal", " ")
		assert.False(t, ok)
	})
}

func TestNilRegistry(t *testing.T) {
	t.Parallel()

	var r *Registry
	_, ok := r.Resolve("x")
	assert.False(t, ok)
	assert.Empty(t, r.Types())
	_, ok = r.ResolveByID(context.Background(), "", "1")
	assert.False(t, ok)
}
