package objecttype

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableConfig describes a host table exposed as an object type.
type TableConfig struct {
	Name     string   `yaml:"name"`
	Table    string   `yaml:"table"`
	IDColumn string   `yaml:"id_column"`
	Columns  []string `yaml:"columns"`
}

type fileConfig struct {
	ObjectTypes []TableConfig `yaml:"object_types"`
}

// SQLTableHandler fetches rows of one table by id.
type SQLTableHandler struct {
	cfg    TableConfig
	db     *sql.DB
	rebind func(string) string
	query  string
}

// HandlerOption customises a SQLTableHandler.
type HandlerOption func(*SQLTableHandler)

// WithRebind sets the placeholder rewriter for drivers that do not accept "?".
func WithRebind(rebind func(string) string) HandlerOption {
	return func(h *SQLTableHandler) {
		if rebind != nil {
			h.rebind = rebind
		}
	}
}

// NewSQLTableHandler validates cfg and prepares the lookup query. When
// Columns is empty only the id column is selected.
func NewSQLTableHandler(cfg TableConfig, db *sql.DB, opts ...HandlerOption) (*SQLTableHandler, error) {
	if db == nil {
		return nil, errors.New("objecttype: database is nil")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("objecttype: name is required")
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = []string{cfg.IDColumn}
	}

	for _, ident := range append([]string{cfg.Table, cfg.IDColumn}, cfg.Columns...) {
		if !identifierPattern.MatchString(ident) {
			return nil, fmt.Errorf("objecttype %s: invalid identifier %q", cfg.Name, ident)
		}
	}

	h := &SQLTableHandler{cfg: cfg, db: db, rebind: func(q string) string { return q }}
	for _, opt := range opts {
		opt(h)
	}
	h.query = h.rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(cfg.Columns, ", "), cfg.Table, cfg.IDColumn))
	return h, nil
}

// Name implements Handler.
func (h *SQLTableHandler) Name() string { return h.cfg.Name }

// Fetch implements Handler.
func (h *SQLTableHandler) Fetch(ctx context.Context, id string) (Record, bool, error) {
	values := make([]any, len(h.cfg.Columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}

	if err := h.db.QueryRowContext(ctx, h.query, id).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("fetch %s %s: %w", h.cfg.Name, id, err)
	}

	fields := make(map[string]any, len(values))
	for i, col := range h.cfg.Columns {
		if b, ok := values[i].([]byte); ok {
			fields[col] = string(b)
			continue
		}
		fields[col] = values[i]
	}
	return Record{Type: strings.ToLower(h.cfg.Name), ID: id, Fields: fields}, true, nil
}

// LoadFile reads a YAML file listing object_types and builds one handler
// per entry.
func LoadFile(path string, db *sql.DB, opts ...HandlerOption) ([]*SQLTableHandler, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read object types file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse object types file %s: %w", path, err)
	}

	handlers := make([]*SQLTableHandler, 0, len(cfg.ObjectTypes))
	for _, tc := range cfg.ObjectTypes {
		h, err := NewSQLTableHandler(tc, db, opts...)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

// RegisterFile loads path and registers every handler it describes.
func (r *Registry) RegisterFile(path string, db *sql.DB, opts ...HandlerOption) error {
	handlers, err := LoadFile(path, db, opts...)
	if err != nil {
		return err
	}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}
