package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Scan reads every *.sql file in dir of fsys and returns the migrations
// sorted by numeric version.
func Scan(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, newMigrationError("", dir, "read directory", err)
	}

	var migrations []Migration
	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		matches := fileNamePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			return nil, newMigrationError("", entry.Name(), "validate filename",
				fmt.Errorf("%w: %q does not match {version}_{description}.sql", ErrInvalidMigrationFile, entry.Name()))
		}
		version, description := matches[1], matches[2]

		if previous, ok := seen[version]; ok {
			return nil, newMigrationError(version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: %s and %s", ErrDuplicateVersion, previous, entry.Name()))
		}
		seen[version] = entry.Name()

		filePath := path.Join(dir, entry.Name())
		content, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			return nil, newMigrationError(version, filePath, "read file", err)
		}
		if strings.TrimSpace(string(content)) == "" {
			return nil, newMigrationError(version, filePath, "read file",
				fmt.Errorf("%w: file is empty", ErrInvalidMigrationFile))
		}

		sum := sha256.Sum256(content)
		migrations = append(migrations, Migration{
			Version:     version,
			Description: strings.ReplaceAll(description, "_", " "),
			SQL:         string(content),
			FilePath:    filePath,
			Checksum:    hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		vi, _ := strconv.Atoi(migrations[i].Version)
		vj, _ := strconv.Atoi(migrations[j].Version)
		return vi < vj
	})
	return migrations, nil
}

// splitStatements splits a script on semicolons and drops comment-only lines.
func splitStatements(script string) []string {
	var statements []string
	for _, raw := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(raw, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
