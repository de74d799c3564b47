package domain

import "slices"

// Clone methods return copies that share no slices with the receiver. Cached
// metadata is handed out through them so callers cannot alter cache entries.

func (m MatchingMetadata) Clone() MatchingMetadata {
	m.MatchingPGroups = slices.Clone(m.MatchingPGroups)
	return m
}

func (m ScoringMetadata) Clone() ScoringMetadata {
	m.ScoringInfo = CloneScoringInfo(m.ScoringInfo)
	return m
}

func (m SmallGGroupMetadata) Clone() SmallGGroupMetadata {
	m.SmallGGroups = slices.Clone(m.SmallGGroups)
	return m
}

func (m PGroupMappingMetadata) Clone() PGroupMappingMetadata {
	if m.PGroup != nil {
		group := *m.PGroup
		m.PGroup = &group
	}
	return m
}

func (m SerologyToAllelesMetadata) Clone() SerologyToAllelesMetadata {
	m.Alleles = slices.Clone(m.Alleles)
	return m
}

func (m AlleleNameMetadata) Clone() AlleleNameMetadata {
	m.CurrentAlleleNames = slices.Clone(m.CurrentAlleleNames)
	return m
}

func (m AlleleLevelNamesMetadata) Clone() AlleleLevelNamesMetadata {
	m.AlleleNames = slices.Clone(m.AlleleNames)
	return m
}

// CloneScoringInfo deep-copies any of the scoring info variants.
func CloneScoringInfo(info ScoringInfo) ScoringInfo {
	switch v := info.(type) {
	case SingleAlleleScoringInfo:
		return cloneSingle(v)
	case MultipleAlleleScoringInfo:
		members := make([]SingleAlleleScoringInfo, len(v.Members))
		for i, member := range v.Members {
			members[i] = cloneSingle(member)
		}
		if v.Members == nil {
			members = nil
		}
		v.Members = members
		v.MatchingSerologies = slices.Clone(v.MatchingSerologies)
		return v
	case ConsolidatedMolecularScoringInfo:
		v.MatchingPGroups = slices.Clone(v.MatchingPGroups)
		v.MatchingGGroups = slices.Clone(v.MatchingGGroups)
		v.MatchingSerologies = slices.Clone(v.MatchingSerologies)
		return v
	}
	return info
}

func cloneSingle(s SingleAlleleScoringInfo) SingleAlleleScoringInfo {
	s.MatchingSerologies = slices.Clone(s.MatchingSerologies)
	return s
}
