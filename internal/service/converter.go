package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/hla-metadata-dictionary/internal/domain"
	"github.com/hla-metadata-dictionary/pkg/typing"
)

// TargetFormat is the representation a typing is converted to.
type TargetFormat int

const (
	TargetTwoFieldIncludingExpressionSuffix TargetFormat = iota + 1
	TargetTwoFieldExcludingExpressionSuffix
	TargetGGroup
	TargetPGroup
	TargetSmallGGroup
	TargetSerology
)

var targetNames = map[TargetFormat]string{
	TargetTwoFieldIncludingExpressionSuffix: "two-field-including-suffix",
	TargetTwoFieldExcludingExpressionSuffix: "two-field-excluding-suffix",
	TargetGGroup:                            "g-group",
	TargetPGroup:                            "p-group",
	TargetSmallGGroup:                       "small-g-group",
	TargetSerology:                          "serology",
}

func (t TargetFormat) String() string {
	if name, ok := targetNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TargetFormat(%d)", int(t))
}

// ParseTargetFormat parses a target name as printed by String.
func ParseTargetFormat(s string) (TargetFormat, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for target, candidate := range targetNames {
		if candidate == name {
			return target, nil
		}
	}
	return 0, domain.NewValidationError("target", "unknown conversion target", s)
}

// Converter converts typings between representations using resolved metadata.
type Converter struct {
	metadata *MetadataService
}

// NewConverter creates a converter over the metadata service.
func NewConverter(metadata *MetadataService) *Converter {
	return &Converter{metadata: metadata}
}

// Convert returns the distinct, sorted representations of hla in the target format.
func (c *Converter) Convert(ctx context.Context, locus domain.Locus, hla string, target TargetFormat, version string) ([]string, error) {
	switch target {
	case TargetTwoFieldIncludingExpressionSuffix, TargetTwoFieldExcludingExpressionSuffix:
		names, err := c.metadata.AlleleLevelNames(ctx, locus, hla, version)
		if err != nil {
			return nil, err
		}
		includeSuffix := target == TargetTwoFieldIncludingExpressionSuffix
		twoField := make([]string, 0, len(names.AlleleNames))
		for _, name := range names.AlleleNames {
			truncated, err := typing.TwoFieldName(name, includeSuffix)
			if err != nil {
				return nil, domain.NewResolutionError(locus, domain.FormatLookupName(hla), err)
			}
			twoField = append(twoField, truncated)
		}
		return union(twoField), nil

	case TargetGGroup:
		scoring, err := c.metadata.Scoring(ctx, locus, hla, version)
		if err != nil {
			return nil, err
		}
		return gGroupsOf(scoring.ScoringInfo), nil

	case TargetPGroup:
		matching, err := c.metadata.Matching(ctx, locus, hla, version)
		if err != nil {
			return nil, err
		}
		return union(matching.MatchingPGroups), nil

	case TargetSmallGGroup:
		smallG, err := c.metadata.SmallGGroups(ctx, locus, hla, version)
		if err != nil {
			return nil, err
		}
		return union(smallG.SmallGGroups), nil

	case TargetSerology:
		scoring, err := c.metadata.Scoring(ctx, locus, hla, version)
		if err != nil {
			return nil, err
		}
		return union(scoring.ScoringInfo.Serologies()), nil
	}
	return nil, domain.NewValidationError("target", "unknown conversion target", target.String())
}

func gGroupsOf(info domain.ScoringInfo) []string {
	switch v := info.(type) {
	case domain.SingleAlleleScoringInfo:
		return union([]string{v.MatchingGGroup})
	case domain.MultipleAlleleScoringInfo:
		groups := make([]string, 0, len(v.Members))
		for _, member := range v.Members {
			groups = append(groups, member.MatchingGGroup)
		}
		return union(groups)
	case domain.ConsolidatedMolecularScoringInfo:
		return union(v.MatchingGGroups)
	}
	return []string{}
}
