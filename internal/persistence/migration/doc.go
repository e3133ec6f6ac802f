// Package migration applies versioned SQL migrations embedded in the
// binary and records each applied version in a schema_migrations table.
//
// Files are named {version}_{description}.sql, versions are numeric and
// applied in ascending order, each inside its own transaction.
package migration
