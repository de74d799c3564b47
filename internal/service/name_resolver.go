package service

import (
	"context"

	"github.com/hla-metadata-dictionary/internal/cache"
	"github.com/hla-metadata-dictionary/internal/domain"
)

// AlleleNameResolver maps a possibly retired or truncated allele name to the
// current allele names it denotes. Results are cached per nomenclature version.
type AlleleNameResolver struct {
	pipeline *pipeline
	flavor   flavor[string, domain.AlleleNameMetadata]
}

func newAlleleNameResolver(p *pipeline, repository domain.FactRepository) *AlleleNameResolver {
	return &AlleleNameResolver{
		pipeline: p,
		flavor: flavor[string, domain.AlleleNameMetadata]{
			namespace: cache.NamespaceAlleleNames,
			accepts:   acceptCategories("name", domain.CategoryAllele),
			fetch: func(ctx context.Context, key domain.LookupKey, _ domain.TypingCategory) ([]string, error) {
				return repository.CurrentAlleleNames(ctx, key)
			},
			consolidate: func(key domain.LookupKey, _ domain.TypingCategory, names []string) (domain.AlleleNameMetadata, error) {
				return domain.AlleleNameMetadata{
					Locus:              key.Locus,
					LookupName:         key.LookupName,
					CurrentAlleleNames: union(names),
				}, nil
			},
		},
	}
}

// Resolve returns the current names for an allele name.
func (r *AlleleNameResolver) Resolve(ctx context.Context, locus domain.Locus, name, version string) (domain.AlleleNameMetadata, error) {
	return resolve(ctx, r.pipeline, r.flavor, locus, name, version)
}

// CurrentNames returns the names to look facts up under. A name without a
// history entry is looked up as given.
func (r *AlleleNameResolver) CurrentNames(ctx context.Context, key domain.LookupKey) ([]string, error) {
	metadata, err := r.Resolve(ctx, key.Locus, key.LookupName, key.Version)
	if err != nil {
		if domain.IsUnrecognizedTyping(err) {
			return []string{key.LookupName}, nil
		}
		return nil, err
	}
	return metadata.CurrentAlleleNames, nil
}
