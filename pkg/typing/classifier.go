// Package typing classifies and splits HLA typing strings. It performs no I/O.
package typing

import (
	"regexp"

	"github.com/hla-metadata-dictionary/internal/domain"
)

const (
	field          = `\d{2,3}`
	expression     = `[NLSCAQ]`
	alleleName     = field + `(?::` + field + `){1,3}` + expression + `?`
	twoFieldPrefix = field + `:` + field + expression + `?`
)

// Category patterns, tried in order; the first match wins.
var (
	xxCodePattern                 = regexp.MustCompile(`^` + field + `:XX$`)
	gGroupPattern                 = regexp.MustCompile(`^` + field + `(?::` + field + `){1,3}G$`)
	pGroupPattern                 = regexp.MustCompile(`^` + field + `:` + field + `P$`)
	smallGGroupPattern            = regexp.MustCompile(`^` + field + `:` + field + `(?::` + field + `)?g$`)
	alleleStringOfNamesPattern    = regexp.MustCompile(`^` + alleleName + `(?:/` + alleleName + `)+$`)
	alleleStringOfSubtypesPattern = regexp.MustCompile(`^` + twoFieldPrefix + `(?:/` + field + expression + `?)+$`)
	ambiguityCodePattern          = regexp.MustCompile(`^` + field + `:[A-Z]{2,}$`)
	serologyPattern               = regexp.MustCompile(`^[Ww]?\d{1,4}$`)
)

var categoryPatterns = []struct {
	pattern  *regexp.Regexp
	category domain.TypingCategory
}{
	{xxCodePattern, domain.CategoryXxCode},
	{gGroupPattern, domain.CategoryGGroup},
	{pGroupPattern, domain.CategoryPGroup},
	{smallGGroupPattern, domain.CategorySmallGGroup},
	{alleleStringOfNamesPattern, domain.CategoryAlleleStringOfNames},
	{alleleStringOfSubtypesPattern, domain.CategoryAlleleStringOfSubtypes},
	{ambiguityCodePattern, domain.CategoryAmbiguityCode},
	{serologyPattern, domain.CategorySerology},
}

// Classify returns the category of a typing string. It is total: anything that
// matches no specific shape is treated as an allele name, so unknown names fail
// later as lookup misses rather than here.
func Classify(name string) domain.TypingCategory {
	formatted := domain.FormatLookupName(name)
	for _, candidate := range categoryPatterns {
		if candidate.pattern.MatchString(formatted) {
			return candidate.category
		}
	}
	return domain.CategoryAllele
}
