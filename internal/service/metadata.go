package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/hla-metadata-dictionary/internal/cache"
	"github.com/hla-metadata-dictionary/internal/domain"
)

// Dependencies wires the metadata service to its collaborators.
type Dependencies struct {
	Repository     domain.FactRepository
	AmbiguityCodes domain.AmbiguityCodeExpander
	Cache          *cache.Layer
	Logger         *logrus.Logger

	// Groups overrides the group expander; nil builds one over Repository.
	Groups domain.AlleleGroupExpander

	// GroupMemoSize bounds the default group expander's memo.
	GroupMemoSize int

	// Registerer, when set, receives the cache and resolution metrics.
	Registerer prometheus.Registerer
}

// MetadataService resolves typings to every metadata flavor.
type MetadataService struct {
	pipeline   *pipeline
	strategies *StrategyTable
	names      *AlleleNameResolver
	groups     domain.AlleleGroupExpander

	matching          flavor[domain.RawFactRow, domain.MatchingMetadata]
	scoring           flavor[domain.RawFactRow, domain.ScoringMetadata]
	tceGroup          flavor[domain.RawFactRow, domain.TceGroupMetadata]
	smallGGroups      flavor[domain.RawFactRow, domain.SmallGGroupMetadata]
	alleleLevelNames  flavor[domain.RawFactRow, domain.AlleleLevelNamesMetadata]
	gGroupToPGroup    flavor[pGroupMapping, domain.PGroupMappingMetadata]
	smallGToPGroup    flavor[pGroupMapping, domain.PGroupMappingMetadata]
	serologyToAlleles flavor[domain.SerologyAlleleMapping, domain.SerologyToAllelesMetadata]
}

// NewMetadataService builds the strategy table and every flavor.
func NewMetadataService(deps Dependencies) (*MetadataService, error) {
	if deps.Repository == nil {
		return nil, errors.New("fact repository is required")
	}
	if deps.AmbiguityCodes == nil {
		return nil, errors.New("ambiguity code expander is required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Cache == nil {
		layer, err := cache.NewLayer(cache.Config{}, deps.Logger)
		if err != nil {
			return nil, err
		}
		deps.Cache = layer
	}
	if deps.Groups == nil {
		groups, err := NewGroupExpander(deps.Repository, deps.GroupMemoSize, deps.Logger)
		if err != nil {
			return nil, err
		}
		deps.Groups = groups
	}

	p := newPipeline(deps.Cache, deps.Logger)
	names := newAlleleNameResolver(p, deps.Repository)

	alleles := &AlleleLookup{repository: deps.Repository, names: names}
	alleleStrings := &AlleleStringLookup{alleles: alleles}
	groups := &AlleleGroupLookup{repository: deps.Repository, groups: deps.Groups}
	strategies, err := NewStrategyTable(Strategies{
		Allele:                 alleles,
		AlleleStringOfNames:    alleleStrings,
		AlleleStringOfSubtypes: alleleStrings,
		AmbiguityCode:          &AmbiguityCodeLookup{expander: deps.AmbiguityCodes, alleles: alleles},
		XxCode:                 &XxCodeLookup{repository: deps.Repository},
		Serology:               &SerologyLookup{repository: deps.Repository},
		GGroup:                 groups,
		PGroup:                 groups,
		SmallGGroup:            groups,
	})
	if err != nil {
		return nil, err
	}

	if deps.Registerer != nil {
		collectors := append(deps.Cache.Collectors(), p.outcomes)
		for _, collector := range collectors {
			if err := deps.Registerer.Register(collector); err != nil {
				return nil, fmt.Errorf("registering metrics: %w", err)
			}
		}
	}

	s := &MetadataService{
		pipeline:   p,
		strategies: strategies,
		names:      names,
		groups:     deps.Groups,
	}

	fetchRows := strategies.Rows
	s.matching = flavor[domain.RawFactRow, domain.MatchingMetadata]{
		namespace:   cache.NamespaceMatching,
		fetch:       fetchRows,
		consolidate: consolidateMatching,
	}
	s.scoring = flavor[domain.RawFactRow, domain.ScoringMetadata]{
		namespace:   cache.NamespaceScoring,
		fetch:       fetchRows,
		consolidate: consolidateScoring,
	}
	s.tceGroup = flavor[domain.RawFactRow, domain.TceGroupMetadata]{
		namespace:   cache.NamespaceTceGroup,
		accepts:     acceptDpb1,
		fetch:       fetchRows,
		consolidate: consolidateTceGroup,
	}
	s.smallGGroups = flavor[domain.RawFactRow, domain.SmallGGroupMetadata]{
		namespace:   cache.NamespaceSmallGGroup,
		fetch:       fetchRows,
		consolidate: consolidateSmallGGroups,
	}
	s.alleleLevelNames = flavor[domain.RawFactRow, domain.AlleleLevelNamesMetadata]{
		namespace: cache.NamespaceAlleleLevelNames,
		accepts: acceptCategories("name",
			domain.CategoryAllele,
			domain.CategoryAlleleStringOfNames,
			domain.CategoryAlleleStringOfSubtypes,
			domain.CategoryAmbiguityCode,
			domain.CategoryGGroup,
			domain.CategoryPGroup,
			domain.CategorySmallGGroup,
		),
		fetch:       fetchRows,
		consolidate: consolidateAlleleLevelNames,
	}
	s.gGroupToPGroup = flavor[pGroupMapping, domain.PGroupMappingMetadata]{
		namespace:   cache.NamespaceGGroupToPGroup,
		accepts:     acceptCategories("g_group", domain.CategoryGGroup),
		fetch:       fetchPGroupMapping(deps.Repository, domain.GroupKindG),
		consolidate: consolidatePGroupMapping,
	}
	s.smallGToPGroup = flavor[pGroupMapping, domain.PGroupMappingMetadata]{
		namespace:   cache.NamespaceSmallGToPGroup,
		accepts:     acceptCategories("small_g_group", domain.CategorySmallGGroup),
		fetch:       fetchPGroupMapping(deps.Repository, domain.GroupKindSmallG),
		consolidate: consolidatePGroupMapping,
	}
	s.serologyToAlleles = flavor[domain.SerologyAlleleMapping, domain.SerologyToAllelesMetadata]{
		namespace: cache.NamespaceSerologyToAlleles,
		accepts:   acceptCategories("serology", domain.CategorySerology),
		fetch: func(ctx context.Context, key domain.LookupKey, _ domain.TypingCategory) ([]domain.SerologyAlleleMapping, error) {
			return deps.Repository.SerologyAlleles(ctx, key)
		},
		consolidate: consolidateSerologyAlleles,
	}

	return s, nil
}

func acceptDpb1(locus domain.Locus, _ domain.TypingCategory) error {
	if locus != domain.LocusDpb1 {
		return domain.NewValidationError("locus", "TCE groups are only defined for DPB1", locus.String())
	}
	return nil
}

func fetchPGroupMapping(repository domain.FactRepository, kind domain.GroupKind) func(context.Context, domain.LookupKey, domain.TypingCategory) ([]pGroupMapping, error) {
	return func(ctx context.Context, key domain.LookupKey, _ domain.TypingCategory) ([]pGroupMapping, error) {
		pGroup, found, err := repository.GroupPGroup(ctx, key, kind)
		if err != nil || !found {
			return nil, err
		}
		return []pGroupMapping{{pGroup: pGroup}}, nil
	}
}

// Matching returns the matching metadata of a typing.
func (s *MetadataService) Matching(ctx context.Context, locus domain.Locus, name, version string) (domain.MatchingMetadata, error) {
	return resolve(ctx, s.pipeline, s.matching, locus, name, version)
}

// Scoring returns the scoring metadata of a typing.
func (s *MetadataService) Scoring(ctx context.Context, locus domain.Locus, name, version string) (domain.ScoringMetadata, error) {
	return resolve(ctx, s.pipeline, s.scoring, locus, name, version)
}

// TceGroup returns the DPB1 T-cell epitope group of a typing.
func (s *MetadataService) TceGroup(ctx context.Context, locus domain.Locus, name, version string) (domain.TceGroupMetadata, error) {
	return resolve(ctx, s.pipeline, s.tceGroup, locus, name, version)
}

// SmallGGroups returns the small-g groups a typing belongs to.
func (s *MetadataService) SmallGGroups(ctx context.Context, locus domain.Locus, name, version string) (domain.SmallGGroupMetadata, error) {
	return resolve(ctx, s.pipeline, s.smallGGroups, locus, name, version)
}

// AlleleLevelNames returns the distinct allele names a molecular typing covers.
func (s *MetadataService) AlleleLevelNames(ctx context.Context, locus domain.Locus, name, version string) (domain.AlleleLevelNamesMetadata, error) {
	return resolve(ctx, s.pipeline, s.alleleLevelNames, locus, name, version)
}

// GGroupToPGroup returns the P group of a G group.
func (s *MetadataService) GGroupToPGroup(ctx context.Context, locus domain.Locus, gGroup, version string) (domain.PGroupMappingMetadata, error) {
	return resolve(ctx, s.pipeline, s.gGroupToPGroup, locus, gGroup, version)
}

// SmallGGroupToPGroup returns the P group of a small-g group.
func (s *MetadataService) SmallGGroupToPGroup(ctx context.Context, locus domain.Locus, smallGGroup, version string) (domain.PGroupMappingMetadata, error) {
	return resolve(ctx, s.pipeline, s.smallGToPGroup, locus, smallGGroup, version)
}

// SerologyToAlleles returns the alleles mapped to a serology.
func (s *MetadataService) SerologyToAlleles(ctx context.Context, locus domain.Locus, serology, version string) (domain.SerologyToAllelesMetadata, error) {
	return resolve(ctx, s.pipeline, s.serologyToAlleles, locus, serology, version)
}

// AlleleNames returns the current allele names for a possibly retired name.
func (s *MetadataService) AlleleNames(ctx context.Context, locus domain.Locus, name, version string) (domain.AlleleNameMetadata, error) {
	return s.names.Resolve(ctx, locus, name, version)
}

// ExpandAlleleGroup returns the member alleles of a P, G or small-g group.
func (s *MetadataService) ExpandAlleleGroup(ctx context.Context, locus domain.Locus, groupName, version string) ([]string, error) {
	return s.groups.Expand(ctx, locus, groupName, version)
}

// CacheStats returns the cache tier counters.
func (s *MetadataService) CacheStats() cache.Stats {
	return s.pipeline.cache.Stats()
}
