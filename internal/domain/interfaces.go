package domain

import (
	"context"
)

// FactRepository reads the versioned raw fact tables. An empty result means the
// name is not present in that nomenclature version; errors are I/O faults only.
type FactRepository interface {
	// RowsFor returns every fact row stored under the key's lookup name.
	RowsFor(ctx context.Context, key LookupKey) ([]RawFactRow, error)

	// CurrentAlleleNames returns the current names a possibly retired or truncated allele name refers to.
	CurrentAlleleNames(ctx context.Context, key LookupKey) ([]string, error)

	// GroupMembers returns the allele names in a P, G or small-g group.
	GroupMembers(ctx context.Context, key LookupKey, kind GroupKind) ([]string, error)

	// GroupPGroup returns the single P group a G or small-g group maps to.
	// found is false when the group is absent; an empty pGroup with found true means "no P group".
	GroupPGroup(ctx context.Context, key LookupKey, kind GroupKind) (pGroup string, found bool, err error)

	// SerologyAlleles returns the alleles mapped to a serology.
	SerologyAlleles(ctx context.Context, key LookupKey) ([]SerologyAlleleMapping, error)
}

// DatasetImporter writes a nomenclature version into a store, replacing any
// rows already held for that version.
type DatasetImporter interface {
	Import(ctx context.Context, dataset *Dataset) error
}

// AmbiguityCodeExpander expands a compressed ambiguity code ("MAC") such as
// "01:AB" into member allele names. Unknown codes fail with an error wrapping ErrNotFound.
type AmbiguityCodeExpander interface {
	Expand(ctx context.Context, code string) ([]string, error)
}

// AlleleGroupExpander expands a P, G or small-g group name into its member allele names.
type AlleleGroupExpander interface {
	Expand(ctx context.Context, locus Locus, groupName, version string) ([]string, error)
}
