package typing

import (
	"fmt"
	"strings"

	"github.com/hla-metadata-dictionary/internal/domain"
)

const nullExpressionSuffix = "N"

var expressionSuffixes = "NLSCAQ"

// SplitAlleleString splits "a/b/c" into its constituent allele names. For a
// string of subtypes ("01:01/02") the first field of the first name is carried
// onto the later parts ("01:02"). Duplicates are dropped, order is kept.
func SplitAlleleString(name string) ([]string, error) {
	formatted := domain.FormatLookupName(name)
	parts := strings.Split(formatted, "/")
	if len(parts) < 2 {
		return nil, domain.NewValidationError("allele_string", "allele string must contain at least two names", name)
	}

	firstField := FirstField(parts[0])
	seen := make(map[string]bool, len(parts))
	names := make([]string, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, domain.NewValidationError("allele_string", "allele string contains an empty name", name)
		}
		if i > 0 && !strings.Contains(part, ":") {
			part = firstField + ":" + part
		}
		if !seen[part] {
			seen[part] = true
			names = append(names, part)
		}
	}
	return names, nil
}

// FirstField returns the text before the first ':' separator.
func FirstField(name string) string {
	formatted := domain.FormatLookupName(name)
	if i := strings.Index(formatted, ":"); i >= 0 {
		return formatted[:i]
	}
	return formatted
}

// ExpressionSuffix returns the trailing expression letter of an allele name, if any.
func ExpressionSuffix(name string) string {
	formatted := domain.FormatLookupName(name)
	if len(formatted) < 2 {
		return ""
	}
	last := formatted[len(formatted)-1:]
	if !strings.Contains(expressionSuffixes, last) {
		return ""
	}
	// A suffix always follows a digit; this keeps codes such as "01:AN" out.
	prev := formatted[len(formatted)-2]
	if prev < '0' || prev > '9' {
		return ""
	}
	return last
}

// IsNullAllele reports whether an allele name carries the null-expression suffix.
func IsNullAllele(name string) bool {
	return ExpressionSuffix(name) == nullExpressionSuffix
}

// TwoFieldName truncates an allele name to its first two fields. The expression
// suffix of the full name is kept when includeExpressionSuffix is set.
func TwoFieldName(name string, includeExpressionSuffix bool) (string, error) {
	formatted := domain.FormatLookupName(name)
	suffix := ExpressionSuffix(formatted)
	trimmed := strings.TrimSuffix(formatted, suffix)

	fields := strings.Split(trimmed, ":")
	if len(fields) < 2 {
		return "", fmt.Errorf("allele name %q has fewer than two fields", name)
	}

	twoField := fields[0] + ":" + fields[1]
	if includeExpressionSuffix {
		twoField += suffix
	}
	return twoField, nil
}
