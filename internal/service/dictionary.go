package service

import (
	"context"

	"github.com/hla-metadata-dictionary/internal/cache"
	"github.com/hla-metadata-dictionary/internal/domain"
	"github.com/hla-metadata-dictionary/pkg/typing"
)

// Services groups the version independent services. Use ForVersion to obtain
// a Dictionary bound to one nomenclature version.
type Services struct {
	Metadata  *MetadataService
	Locus     *LocusMatcher
	Converter *Converter
}

// NewServices builds every service over the same pipeline and cache.
func NewServices(deps Dependencies) (*Services, error) {
	metadata, err := NewMetadataService(deps)
	if err != nil {
		return nil, err
	}
	return &Services{
		Metadata:  metadata,
		Locus:     NewLocusMatcher(metadata),
		Converter: NewConverter(metadata),
	}, nil
}

// ForVersion returns the dictionary for one nomenclature version.
func (s *Services) ForVersion(version string) *Dictionary {
	return &Dictionary{services: s, version: version}
}

// Dictionary exposes every metadata lookup for one nomenclature version.
type Dictionary struct {
	services *Services
	version  string
}

// Version returns the nomenclature version the dictionary is bound to.
func (d *Dictionary) Version() string {
	return d.version
}

// Classify returns the category of a typing string.
func (d *Dictionary) Classify(name string) domain.TypingCategory {
	return typing.Classify(name)
}

func (d *Dictionary) Matching(ctx context.Context, locus domain.Locus, name string) (domain.MatchingMetadata, error) {
	return d.services.Metadata.Matching(ctx, locus, name, d.version)
}

func (d *Dictionary) Scoring(ctx context.Context, locus domain.Locus, name string) (domain.ScoringMetadata, error) {
	return d.services.Metadata.Scoring(ctx, locus, name, d.version)
}

func (d *Dictionary) TceGroup(ctx context.Context, locus domain.Locus, name string) (domain.TceGroupMetadata, error) {
	return d.services.Metadata.TceGroup(ctx, locus, name, d.version)
}

func (d *Dictionary) SmallGGroups(ctx context.Context, locus domain.Locus, name string) (domain.SmallGGroupMetadata, error) {
	return d.services.Metadata.SmallGGroups(ctx, locus, name, d.version)
}

func (d *Dictionary) GGroupToPGroup(ctx context.Context, locus domain.Locus, gGroup string) (domain.PGroupMappingMetadata, error) {
	return d.services.Metadata.GGroupToPGroup(ctx, locus, gGroup, d.version)
}

func (d *Dictionary) SmallGGroupToPGroup(ctx context.Context, locus domain.Locus, smallGGroup string) (domain.PGroupMappingMetadata, error) {
	return d.services.Metadata.SmallGGroupToPGroup(ctx, locus, smallGGroup, d.version)
}

func (d *Dictionary) SerologyToAlleles(ctx context.Context, locus domain.Locus, serology string) (domain.SerologyToAllelesMetadata, error) {
	return d.services.Metadata.SerologyToAlleles(ctx, locus, serology, d.version)
}

func (d *Dictionary) AlleleNames(ctx context.Context, locus domain.Locus, name string) (domain.AlleleNameMetadata, error) {
	return d.services.Metadata.AlleleNames(ctx, locus, name, d.version)
}

func (d *Dictionary) AlleleLevelNames(ctx context.Context, locus domain.Locus, name string) (domain.AlleleLevelNamesMetadata, error) {
	return d.services.Metadata.AlleleLevelNames(ctx, locus, name, d.version)
}

func (d *Dictionary) ExpandAlleleGroup(ctx context.Context, locus domain.Locus, groupName string) ([]string, error) {
	return d.services.Metadata.ExpandAlleleGroup(ctx, locus, groupName, d.version)
}

// LocusMatching resolves both positions of a locus with the null allele merge applied.
func (d *Dictionary) LocusMatching(ctx context.Context, locus domain.Locus, typing1, typing2 string) (domain.LocusMatchingMetadata, error) {
	return d.services.Locus.Resolve(ctx, locus, typing1, typing2, d.version)
}

// Convert converts a typing to another representation.
func (d *Dictionary) Convert(ctx context.Context, locus domain.Locus, hla string, target TargetFormat) ([]string, error) {
	return d.services.Converter.Convert(ctx, locus, hla, target, d.version)
}

// IsValidHla reports whether a typing resolves to matching metadata. Unknown
// and malformed typings are invalid; any other failure is returned.
func (d *Dictionary) IsValidHla(ctx context.Context, locus domain.Locus, name string) (bool, error) {
	_, err := d.Matching(ctx, locus, name)
	switch {
	case err == nil:
		return true, nil
	case domain.IsUnrecognizedTyping(err), domain.IsValidationError(err):
		return false, nil
	}
	return false, err
}

// CacheStats returns the shared cache counters.
func (d *Dictionary) CacheStats() cache.Stats {
	return d.services.Metadata.CacheStats()
}
