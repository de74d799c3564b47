package external

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hla-metadata-dictionary/internal/domain"
)

// MACDictionary is an in-memory ambiguity code dictionary loaded from the NMDP
// code list. Each line holds a code and its expansion:
//
//	AB	01/02
//	AFC	01:01/02:01
//
// Blank lines and lines starting with '#' are ignored; an optional leading '*'
// column (marking newly released codes) is tolerated.
type MACDictionary struct {
	codes map[string]string
}

var _ domain.AmbiguityCodeExpander = (*MACDictionary)(nil)

// NewMACDictionary builds a dictionary from code → expansion pairs.
func NewMACDictionary(codes map[string]string) *MACDictionary {
	normalised := make(map[string]string, len(codes))
	for code, expansion := range codes {
		normalised[strings.ToUpper(strings.TrimSpace(code))] = strings.TrimSpace(expansion)
	}
	return &MACDictionary{codes: normalised}
}

// LoadMACDictionary parses a code list.
func LoadMACDictionary(r io.Reader) (*MACDictionary, error) {
	codes := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == "*" {
			fields = fields[1:]
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected code and expansion, got %q", lineNumber, line)
		}
		codes[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ambiguity codes: %w", err)
	}
	return NewMACDictionary(codes), nil
}

// LoadMACDictionaryFile parses a code list from disk.
func LoadMACDictionaryFile(path string) (*MACDictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ambiguity code file: %w", err)
	}
	defer f.Close()
	return LoadMACDictionary(f)
}

// Len returns the number of codes loaded.
func (d *MACDictionary) Len() int {
	return len(d.codes)
}

// Expand expands a typing such as "01:AB". Generic expansions ("01/02") take the
// typing's first field; specific expansions ("01:01/02:01") are used verbatim.
func (d *MACDictionary) Expand(ctx context.Context, code string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	formatted := domain.FormatLookupName(code)
	firstField, letters, ok := strings.Cut(formatted, ":")
	if !ok || firstField == "" || letters == "" {
		return nil, domain.NewValidationError("ambiguity_code", "ambiguity code must have the form <first field>:<code>", code)
	}

	expansion, ok := d.codes[strings.ToUpper(letters)]
	if !ok {
		return nil, fmt.Errorf("ambiguity code %q: %w", formatted, domain.ErrNotFound)
	}
	return expandCodeValue(firstField, expansion), nil
}

func expandCodeValue(firstField, expansion string) []string {
	parts := strings.Split(expansion, "/")
	names := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var name string
		if strings.Contains(part, ":") {
			name = part
		} else {
			name = firstField + ":" + part
		}
		name = stripLocusPrefix(name)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// stripLocusPrefix turns "A*01:01" into "01:01".
func stripLocusPrefix(name string) string {
	if _, after, ok := strings.Cut(name, "*"); ok {
		return domain.FormatLookupName(after)
	}
	return domain.FormatLookupName(name)
}
