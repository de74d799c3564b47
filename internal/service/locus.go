package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hla-metadata-dictionary/internal/domain"
)

// LocusMatcher resolves both positions of a locus and applies the null allele merge.
type LocusMatcher struct {
	metadata *MetadataService
}

// NewLocusMatcher creates a locus matcher over the metadata service.
func NewLocusMatcher(metadata *MetadataService) *LocusMatcher {
	return &LocusMatcher{metadata: metadata}
}

// Resolve looks both positions up concurrently and merges them once both complete.
func (m *LocusMatcher) Resolve(ctx context.Context, locus domain.Locus, typing1, typing2, version string) (domain.LocusMatchingMetadata, error) {
	var position1, position2 domain.MatchingMetadata

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		position1, err = m.metadata.Matching(gctx, locus, typing1, version)
		return err
	})
	g.Go(func() error {
		var err error
		position2, err = m.metadata.Matching(gctx, locus, typing2, version)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.LocusMatchingMetadata{}, err
	}

	position1, position2 = MergeNullAlleles(position1, position2)
	return domain.LocusMatchingMetadata{
		Locus:     locus,
		Position1: position1,
		Position2: position2,
	}, nil
}

// MergeNullAlleles backs a null expressing position with the P groups of the
// other position. Expressing positions are returned unchanged. The inputs are
// not modified.
func MergeNullAlleles(position1, position2 domain.MatchingMetadata) (domain.MatchingMetadata, domain.MatchingMetadata) {
	merged1 := copyMatching(position1)
	merged2 := copyMatching(position2)
	if position1.IsNullExpressingTyping {
		merged1.MatchingPGroups = union(position1.MatchingPGroups, position2.MatchingPGroups)
	}
	if position2.IsNullExpressingTyping {
		merged2.MatchingPGroups = union(position2.MatchingPGroups, position1.MatchingPGroups)
	}
	return merged1, merged2
}

func copyMatching(m domain.MatchingMetadata) domain.MatchingMetadata {
	m.MatchingPGroups = append([]string{}, m.MatchingPGroups...)
	return m
}
