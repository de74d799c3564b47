package service

import (
	"fmt"
	"sort"

	"github.com/hla-metadata-dictionary/internal/domain"
	"github.com/hla-metadata-dictionary/pkg/typing"
)

// consolidateMatching pools the P groups of every row. The typing is null
// expressing only when every contributing allele is.
func consolidateMatching(key domain.LookupKey, _ domain.TypingCategory, rows []domain.RawFactRow) (domain.MatchingMetadata, error) {
	pGroups := make([][]string, 0, len(rows))
	allNull := true
	for _, row := range rows {
		pGroups = append(pGroups, row.MatchingPGroups)
		if !typing.IsNullAllele(row.TypingName) {
			allNull = false
		}
	}
	return domain.MatchingMetadata{
		Locus:                  key.Locus,
		LookupName:             key.LookupName,
		TypingMethod:           rows[0].TypingMethod,
		MatchingPGroups:        union(pGroups...),
		IsNullExpressingTyping: allNull,
	}, nil
}

// consolidateScoring reduces rows to one scoring info; the variant depends on
// the category alone.
func consolidateScoring(key domain.LookupKey, category domain.TypingCategory, rows []domain.RawFactRow) (domain.ScoringMetadata, error) {
	infos := make([]domain.ScoringInfo, 0, len(rows))
	for _, row := range rows {
		info, err := row.ScoringInfo()
		if err != nil {
			return domain.ScoringMetadata{}, err
		}
		infos = append(infos, info)
	}

	var (
		info domain.ScoringInfo
		err  error
	)
	switch category {
	case domain.CategoryAllele:
		if len(infos) == 1 {
			info = infos[0]
		} else {
			info, err = multipleAlleleInfo(infos)
		}
	case domain.CategoryAlleleStringOfNames,
		domain.CategoryAlleleStringOfSubtypes,
		domain.CategoryAmbiguityCode,
		domain.CategoryGGroup,
		domain.CategoryPGroup,
		domain.CategorySmallGGroup:
		info, err = consolidatedMolecularInfo(infos)
	case domain.CategoryXxCode, domain.CategorySerology:
		if len(infos) != 1 {
			err = fmt.Errorf("expected exactly one %s scoring row, found %d", category, len(infos))
		} else {
			info = infos[0]
		}
	default:
		err = fmt.Errorf("no scoring consolidation for typing category %s", category)
	}
	if err != nil {
		return domain.ScoringMetadata{}, err
	}

	return domain.ScoringMetadata{
		Locus:        key.Locus,
		LookupName:   key.LookupName,
		TypingMethod: rows[0].TypingMethod,
		ScoringInfo:  info,
	}, nil
}

// multipleAlleleInfo keeps every member, null alleles included, but pools
// serologies from expressing members only.
func multipleAlleleInfo(infos []domain.ScoringInfo) (domain.ScoringInfo, error) {
	singles, err := singleAlleleInfos(infos)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]domain.SingleAlleleScoringInfo, len(singles))
	var serologies [][]string
	for _, single := range singles {
		byName[single.AlleleName] = normaliseSingle(single)
		if !typing.IsNullAllele(single.AlleleName) {
			serologies = append(serologies, single.MatchingSerologies)
		}
	}

	members := make([]domain.SingleAlleleScoringInfo, 0, len(byName))
	for _, member := range byName {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].AlleleName < members[j].AlleleName })

	return domain.MultipleAlleleScoringInfo{
		Members:            members,
		MatchingSerologies: union(serologies...),
	}, nil
}

// consolidatedMolecularInfo pools the P groups, G groups and serologies of
// every expressing allele. Null alleles add nothing to an ambiguity pool.
func consolidatedMolecularInfo(infos []domain.ScoringInfo) (domain.ScoringInfo, error) {
	var pGroups, gGroups, serologies []string
	var alleleInfos []domain.ScoringInfo
	for _, info := range infos {
		if v, ok := info.(domain.ConsolidatedMolecularScoringInfo); ok {
			pGroups = append(pGroups, v.MatchingPGroups...)
			gGroups = append(gGroups, v.MatchingGGroups...)
			serologies = append(serologies, v.MatchingSerologies...)
			continue
		}
		alleleInfos = append(alleleInfos, info)
	}

	singles, err := singleAlleleInfos(alleleInfos)
	if err != nil {
		return nil, err
	}
	for _, single := range singles {
		if typing.IsNullAllele(single.AlleleName) {
			continue
		}
		pGroups = append(pGroups, single.MatchingPGroup)
		gGroups = append(gGroups, single.MatchingGGroup)
		serologies = append(serologies, single.MatchingSerologies...)
	}

	return domain.ConsolidatedMolecularScoringInfo{
		MatchingPGroups:    union(pGroups),
		MatchingGGroups:    union(gGroups),
		MatchingSerologies: union(serologies),
	}, nil
}

// singleAlleleInfos flattens single and multiple allele infos.
func singleAlleleInfos(infos []domain.ScoringInfo) ([]domain.SingleAlleleScoringInfo, error) {
	var singles []domain.SingleAlleleScoringInfo
	for _, info := range infos {
		switch v := info.(type) {
		case domain.SingleAlleleScoringInfo:
			singles = append(singles, v)
		case domain.MultipleAlleleScoringInfo:
			singles = append(singles, v.Members...)
		default:
			return nil, fmt.Errorf("unexpected %s scoring info for an allele", info.Kind())
		}
	}
	return singles, nil
}

func normaliseSingle(single domain.SingleAlleleScoringInfo) domain.SingleAlleleScoringInfo {
	single.MatchingSerologies = union(single.MatchingSerologies)
	return single
}

// consolidateTceGroup assigns the TCE group only when the rows agree on exactly one.
func consolidateTceGroup(key domain.LookupKey, _ domain.TypingCategory, rows []domain.RawFactRow) (domain.TceGroupMetadata, error) {
	groups := make([]string, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, row.TceGroup)
	}
	distinct := union(groups)

	tceGroup := domain.IndeterminateTceGroup()
	if len(distinct) == 1 {
		tceGroup = domain.AssignedTceGroup(distinct[0])
	}
	return domain.TceGroupMetadata{
		LookupName: key.LookupName,
		TceGroup:   tceGroup,
	}, nil
}

func consolidateSmallGGroups(key domain.LookupKey, _ domain.TypingCategory, rows []domain.RawFactRow) (domain.SmallGGroupMetadata, error) {
	groups := make([][]string, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, row.SmallGGroups)
	}
	return domain.SmallGGroupMetadata{
		Locus:        key.Locus,
		LookupName:   key.LookupName,
		SmallGGroups: union(groups...),
	}, nil
}

func consolidateAlleleLevelNames(key domain.LookupKey, _ domain.TypingCategory, rows []domain.RawFactRow) (domain.AlleleLevelNamesMetadata, error) {
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.TypingName)
	}
	return domain.AlleleLevelNamesMetadata{
		Locus:       key.Locus,
		LookupName:  key.LookupName,
		AlleleNames: union(names),
	}, nil
}

// pGroupMapping is the zero-or-one row behind a G or small-g to P group lookup.
type pGroupMapping struct {
	pGroup string
}

func consolidatePGroupMapping(key domain.LookupKey, _ domain.TypingCategory, rows []pGroupMapping) (domain.PGroupMappingMetadata, error) {
	if len(rows) != 1 {
		return domain.PGroupMappingMetadata{}, fmt.Errorf("expected one P group mapping for %s, found %d", key, len(rows))
	}
	metadata := domain.PGroupMappingMetadata{
		Locus:      key.Locus,
		LookupName: key.LookupName,
	}
	if rows[0].pGroup != "" {
		pGroup := rows[0].pGroup
		metadata.PGroup = &pGroup
	}
	return metadata, nil
}

func consolidateSerologyAlleles(key domain.LookupKey, _ domain.TypingCategory, mappings []domain.SerologyAlleleMapping) (domain.SerologyToAllelesMetadata, error) {
	byName := make(map[string]domain.SerologyAlleleMapping, len(mappings))
	for _, mapping := range mappings {
		byName[mapping.AlleleName] = mapping
	}
	alleles := make([]domain.SerologyAlleleMapping, 0, len(byName))
	for _, mapping := range byName {
		alleles = append(alleles, mapping)
	}
	sort.Slice(alleles, func(i, j int) bool { return alleles[i].AlleleName < alleles[j].AlleleName })

	return domain.SerologyToAllelesMetadata{
		Locus:      key.Locus,
		LookupName: key.LookupName,
		Alleles:    alleles,
	}, nil
}
