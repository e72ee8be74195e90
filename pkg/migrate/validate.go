package migrate

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	annotationUp             = "-- +goose Up"
	annotationDown           = "-- +goose Down"
	annotationStatementBegin = "-- +goose StatementBegin"
	annotationStatementEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks migration filenames, version uniqueness and the goose
// annotations of every .sql file in dir. An empty dir is valid.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	for _, name := range names {
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		full := filepath.Join(dir, name)
		b, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read file %q: %w", full, err)
		}
		if err := checkAnnotations(b); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

// checkAnnotations requires exactly one Up section followed by one Down
// section, with StatementBegin/End pairs that neither nest nor cross them.
func checkAnnotations(content []byte) error {
	var (
		up, down bool
		open     int
		lineNo   int
	)
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case annotationUp:
			if up {
				return fmt.Errorf("line %d: duplicate %q", lineNo, annotationUp)
			}
			up = true
		case annotationDown:
			if !up {
				return fmt.Errorf("line %d: %q before %q", lineNo, annotationDown, annotationUp)
			}
			if down {
				return fmt.Errorf("line %d: duplicate %q", lineNo, annotationDown)
			}
			if open > 0 {
				return fmt.Errorf("line %d: unterminated statement block in up section", lineNo)
			}
			down = true
		case annotationStatementBegin:
			if !up {
				return fmt.Errorf("line %d: statement block outside a section", lineNo)
			}
			if open > 0 {
				return fmt.Errorf("line %d: nested statement block", lineNo)
			}
			open++
		case annotationStatementEnd:
			if open == 0 {
				return fmt.Errorf("line %d: %q without begin", lineNo, annotationStatementEnd)
			}
			open--
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	switch {
	case !up:
		return fmt.Errorf("missing %q", annotationUp)
	case !down:
		return fmt.Errorf("missing %q", annotationDown)
	case open > 0:
		return fmt.Errorf("unterminated statement block in down section")
	}
	return nil
}
