package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Locus identifies one of the HLA loci used for donor matching.
type Locus int

const (
	LocusA Locus = iota + 1
	LocusB
	LocusC
	LocusDpb1
	LocusDqb1
	LocusDrb1
)

var locusNames = map[Locus]string{
	LocusA:    "A",
	LocusB:    "B",
	LocusC:    "C",
	LocusDpb1: "DPB1",
	LocusDqb1: "DQB1",
	LocusDrb1: "DRB1",
}

// Loci returns every supported locus in a stable order.
func Loci() []Locus {
	return []Locus{LocusA, LocusB, LocusC, LocusDpb1, LocusDqb1, LocusDrb1}
}

func (l Locus) String() string {
	if name, ok := locusNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Locus(%d)", int(l))
}

// IsValid reports whether the locus is one of the supported values.
func (l Locus) IsValid() bool {
	_, ok := locusNames[l]
	return ok
}

// ParseLocus parses a locus name case-insensitively, tolerating an "HLA-" prefix.
func ParseLocus(s string) (Locus, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "HLA-")
	for locus, candidate := range locusNames {
		if candidate == name {
			return locus, nil
		}
	}
	return 0, NewValidationError("locus", "unknown locus", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Locus) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("marshalling locus: %w", ErrInvalidLocus)
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Locus) UnmarshalText(text []byte) error {
	parsed, err := ParseLocus(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// TypingCategory is the closed set of shapes a typing string can take.
// It is derived from the string alone and never stored.
type TypingCategory int

const (
	CategoryAllele TypingCategory = iota
	CategoryAlleleStringOfNames
	CategoryAlleleStringOfSubtypes
	CategoryAmbiguityCode
	CategoryXxCode
	CategorySerology
	CategoryGGroup
	CategoryPGroup
	CategorySmallGGroup
)

// TypingCategoryCount is the number of TypingCategory values.
const TypingCategoryCount = int(CategorySmallGGroup) + 1

var categoryNames = [TypingCategoryCount]string{
	CategoryAllele:                 "Allele",
	CategoryAlleleStringOfNames:    "AlleleStringOfNames",
	CategoryAlleleStringOfSubtypes: "AlleleStringOfSubtypes",
	CategoryAmbiguityCode:          "AmbiguityCode",
	CategoryXxCode:                 "XxCode",
	CategorySerology:               "Serology",
	CategoryGGroup:                 "GGroup",
	CategoryPGroup:                 "PGroup",
	CategorySmallGGroup:            "SmallGGroup",
}

// TypingCategories returns every category in declaration order.
func TypingCategories() []TypingCategory {
	categories := make([]TypingCategory, TypingCategoryCount)
	for i := range categories {
		categories[i] = TypingCategory(i)
	}
	return categories
}

func (c TypingCategory) String() string {
	if c.IsValid() {
		return categoryNames[c]
	}
	return fmt.Sprintf("TypingCategory(%d)", int(c))
}

// IsValid reports whether c is a declared category.
func (c TypingCategory) IsValid() bool {
	return c >= 0 && int(c) < TypingCategoryCount
}

// IsMolecular reports whether the category denotes a molecular typing.
func (c TypingCategory) IsMolecular() bool {
	return c.IsValid() && c != CategorySerology
}

// IsAlleleGroup reports whether the category names a P, G or small-g group.
func (c TypingCategory) IsAlleleGroup() bool {
	return c == CategoryGGroup || c == CategoryPGroup || c == CategorySmallGGroup
}

// GroupKind returns the allele group kind named by a group category.
func (c TypingCategory) GroupKind() (GroupKind, bool) {
	switch c {
	case CategoryGGroup:
		return GroupKindG, true
	case CategoryPGroup:
		return GroupKindP, true
	case CategorySmallGGroup:
		return GroupKindSmallG, true
	}
	return "", false
}

// TypingMethod records how a typing was determined.
type TypingMethod string

const (
	MethodMolecular TypingMethod = "Molecular"
	MethodSerology  TypingMethod = "Serology"
)

// GroupKind distinguishes the three kinds of named allele group.
type GroupKind string

const (
	GroupKindP      GroupKind = "P"
	GroupKindG      GroupKind = "G"
	GroupKindSmallG GroupKind = "g"
)

// LookupKey is the identity of every lookup and cache entry.
type LookupKey struct {
	Locus      Locus  `json:"locus"`
	LookupName string `json:"lookup_name"`
	Version    string `json:"version"`
}

// NewLookupKey builds a key from a raw typing name, formatting it first.
func NewLookupKey(locus Locus, rawName, version string) LookupKey {
	return LookupKey{
		Locus:      locus,
		LookupName: FormatLookupName(rawName),
		Version:    version,
	}
}

// WithName returns a copy of the key for another lookup name at the same locus and version.
func (k LookupKey) WithName(name string) LookupKey {
	k.LookupName = FormatLookupName(name)
	return k
}

func (k LookupKey) String() string {
	return fmt.Sprintf("%s*%s@%s", k.Locus, k.LookupName, k.Version)
}

var cLocusSerology = regexp.MustCompile(`^C[Ww]\d{1,4}$`)

// FormatLookupName trims whitespace and a single leading '*'. C locus
// serologies written with their locus letter ("Cw10") lose it ("w10").
func FormatLookupName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "*")
	name = strings.TrimSpace(name)
	if cLocusSerology.MatchString(name) {
		name = name[1:]
	}
	return name
}

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidLocus = errors.New("invalid locus")
)
