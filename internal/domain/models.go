package domain

import (
	"encoding/json"
	"fmt"
)

// RawFactRow is one pre-computed allele-level fact from the reference data.
// Several rows may share a typing name when the name denotes an ambiguous group.
type RawFactRow struct {
	Locus              Locus           `json:"locus"`
	TypingName         string          `json:"typing_name"`
	TypingMethod       TypingMethod    `json:"typing_method"`
	MatchingPGroups    []string        `json:"matching_p_groups"`
	MatchingGGroups    []string        `json:"matching_g_groups"`
	MatchingSerologies []string        `json:"matching_serologies"`
	TceGroup           string          `json:"tce_group,omitempty"`
	SmallGGroups       []string        `json:"small_g_groups"`
	ScoringPayload     json.RawMessage `json:"scoring_payload,omitempty"`
}

// ScoringInfo decodes the row's scoring payload.
func (r RawFactRow) ScoringInfo() (ScoringInfo, error) {
	if len(r.ScoringPayload) == 0 {
		return nil, fmt.Errorf("fact row %s*%s has no scoring payload", r.Locus, r.TypingName)
	}
	return DecodeScoringInfo(r.ScoringPayload)
}

// SerologyAlleleMapping links a serology to one allele that maps to it.
type SerologyAlleleMapping struct {
	AlleleName string `json:"allele_name"`
	PGroup     string `json:"p_group,omitempty"`
	GGroup     string `json:"g_group,omitempty"`
}

// ScoringInfoKind tags the ScoringInfo variants.
type ScoringInfoKind string

const (
	ScoringKindSingleAllele          ScoringInfoKind = "single_allele"
	ScoringKindMultipleAllele        ScoringInfoKind = "multiple_allele"
	ScoringKindConsolidatedMolecular ScoringInfoKind = "consolidated_molecular"
)

// ScoringInfo is the closed set of scoring payloads. Only the three variants
// declared in this package implement it.
type ScoringInfo interface {
	Kind() ScoringInfoKind
	Serologies() []string
}

// SingleAlleleScoringInfo describes one allele.
type SingleAlleleScoringInfo struct {
	AlleleName         string   `json:"allele_name"`
	MatchingPGroup     string   `json:"matching_p_group,omitempty"`
	MatchingGGroup     string   `json:"matching_g_group,omitempty"`
	MatchingSerologies []string `json:"matching_serologies"`
}

func (SingleAlleleScoringInfo) Kind() ScoringInfoKind { return ScoringKindSingleAllele }
func (s SingleAlleleScoringInfo) Serologies() []string { return s.MatchingSerologies }

// MultipleAlleleScoringInfo describes an ambiguous allele name resolving to several alleles.
type MultipleAlleleScoringInfo struct {
	Members            []SingleAlleleScoringInfo `json:"members"`
	MatchingSerologies []string                  `json:"matching_serologies"`
}

func (MultipleAlleleScoringInfo) Kind() ScoringInfoKind { return ScoringKindMultipleAllele }
func (m MultipleAlleleScoringInfo) Serologies() []string { return m.MatchingSerologies }

// ConsolidatedMolecularScoringInfo pools the matching characteristics of many alleles.
type ConsolidatedMolecularScoringInfo struct {
	MatchingPGroups    []string `json:"matching_p_groups"`
	MatchingGGroups    []string `json:"matching_g_groups"`
	MatchingSerologies []string `json:"matching_serologies"`
}

func (ConsolidatedMolecularScoringInfo) Kind() ScoringInfoKind {
	return ScoringKindConsolidatedMolecular
}
func (c ConsolidatedMolecularScoringInfo) Serologies() []string { return c.MatchingSerologies }

type scoringEnvelope struct {
	Kind ScoringInfoKind `json:"kind"`
	Info json.RawMessage `json:"info"`
}

// EncodeScoringInfo serialises a scoring info with its variant tag.
func EncodeScoringInfo(info ScoringInfo) ([]byte, error) {
	if info == nil {
		return nil, fmt.Errorf("encoding scoring info: nil info")
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encoding scoring info: %w", err)
	}
	return json.Marshal(scoringEnvelope{Kind: info.Kind(), Info: raw})
}

// DecodeScoringInfo reverses EncodeScoringInfo.
func DecodeScoringInfo(data []byte) (ScoringInfo, error) {
	var envelope scoringEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding scoring info: %w", err)
	}

	switch envelope.Kind {
	case ScoringKindSingleAllele:
		var info SingleAlleleScoringInfo
		if err := json.Unmarshal(envelope.Info, &info); err != nil {
			return nil, fmt.Errorf("decoding single allele scoring info: %w", err)
		}
		return info, nil
	case ScoringKindMultipleAllele:
		var info MultipleAlleleScoringInfo
		if err := json.Unmarshal(envelope.Info, &info); err != nil {
			return nil, fmt.Errorf("decoding multiple allele scoring info: %w", err)
		}
		return info, nil
	case ScoringKindConsolidatedMolecular:
		var info ConsolidatedMolecularScoringInfo
		if err := json.Unmarshal(envelope.Info, &info); err != nil {
			return nil, fmt.Errorf("decoding consolidated scoring info: %w", err)
		}
		return info, nil
	}
	return nil, fmt.Errorf("decoding scoring info: unknown kind %q", envelope.Kind)
}

// MatchingMetadata is the record consumed by the donor-matching engine.
type MatchingMetadata struct {
	Locus                  Locus        `json:"locus"`
	LookupName             string       `json:"lookup_name"`
	TypingMethod           TypingMethod `json:"typing_method"`
	MatchingPGroups        []string     `json:"matching_p_groups"`
	IsNullExpressingTyping bool         `json:"is_null_expressing_typing"`
}

// ScoringMetadata is used for match-grade computation.
type ScoringMetadata struct {
	Locus        Locus        `json:"locus"`
	LookupName   string       `json:"lookup_name"`
	TypingMethod TypingMethod `json:"typing_method"`
	ScoringInfo  ScoringInfo  `json:"-"`
}

type scoringMetadataJSON struct {
	Locus        Locus           `json:"locus"`
	LookupName   string          `json:"lookup_name"`
	TypingMethod TypingMethod    `json:"typing_method"`
	ScoringInfo  json.RawMessage `json:"scoring_info"`
}

// MarshalJSON keeps the scoring info variant tag in the encoded form.
func (m ScoringMetadata) MarshalJSON() ([]byte, error) {
	info, err := EncodeScoringInfo(m.ScoringInfo)
	if err != nil {
		return nil, err
	}
	return json.Marshal(scoringMetadataJSON{
		Locus:        m.Locus,
		LookupName:   m.LookupName,
		TypingMethod: m.TypingMethod,
		ScoringInfo:  info,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *ScoringMetadata) UnmarshalJSON(data []byte) error {
	var raw scoringMetadataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	info, err := DecodeScoringInfo(raw.ScoringInfo)
	if err != nil {
		return err
	}
	*m = ScoringMetadata{
		Locus:        raw.Locus,
		LookupName:   raw.LookupName,
		TypingMethod: raw.TypingMethod,
		ScoringInfo:  info,
	}
	return nil
}

// TceGroup is either an assigned DPB1 T-cell epitope group or indeterminate.
type TceGroup struct {
	group    string
	assigned bool
}

// AssignedTceGroup returns a TCE group holding a single value.
func AssignedTceGroup(group string) TceGroup {
	return TceGroup{group: group, assigned: true}
}

// IndeterminateTceGroup returns the TCE group used when no single group applies.
func IndeterminateTceGroup() TceGroup {
	return TceGroup{}
}

// Group returns the assigned value; ok is false when indeterminate.
func (g TceGroup) Group() (group string, ok bool) {
	return g.group, g.assigned
}

// IsIndeterminate reports whether no single group could be assigned.
func (g TceGroup) IsIndeterminate() bool {
	return !g.assigned
}

func (g TceGroup) String() string {
	if !g.assigned {
		return "indeterminate"
	}
	return g.group
}

type tceGroupJSON struct {
	Assigned bool   `json:"assigned"`
	Group    string `json:"group,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (g TceGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(tceGroupJSON{Assigned: g.assigned, Group: g.group})
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *TceGroup) UnmarshalJSON(data []byte) error {
	var raw tceGroupJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Assigned {
		*g = AssignedTceGroup(raw.Group)
	} else {
		*g = IndeterminateTceGroup()
	}
	return nil
}

// TceGroupMetadata holds the DPB1 TCE group of a typing.
type TceGroupMetadata struct {
	LookupName string   `json:"lookup_name"`
	TceGroup   TceGroup `json:"tce_group"`
}

// SmallGGroupMetadata lists the small-g groups a typing belongs to.
type SmallGGroupMetadata struct {
	Locus        Locus    `json:"locus"`
	LookupName   string   `json:"lookup_name"`
	SmallGGroups []string `json:"small_g_groups"`
}

// PGroupMappingMetadata holds the P group of a G or small-g group.
// PGroup is nil when the group maps to no P group (e.g. a group of null alleles).
type PGroupMappingMetadata struct {
	Locus      Locus   `json:"locus"`
	LookupName string  `json:"lookup_name"`
	PGroup     *string `json:"p_group,omitempty"`
}

// SerologyToAllelesMetadata lists the alleles mapped to a serology.
type SerologyToAllelesMetadata struct {
	Locus      Locus                   `json:"locus"`
	LookupName string                  `json:"lookup_name"`
	Alleles    []SerologyAlleleMapping `json:"alleles"`
}

// AlleleNameMetadata maps a possibly retired allele name to the current names.
type AlleleNameMetadata struct {
	Locus              Locus    `json:"locus"`
	LookupName         string   `json:"lookup_name"`
	CurrentAlleleNames []string `json:"current_allele_names"`
}

// AlleleLevelNamesMetadata lists the distinct allele names a molecular typing covers.
type AlleleLevelNamesMetadata struct {
	Locus       Locus    `json:"locus"`
	LookupName  string   `json:"lookup_name"`
	AlleleNames []string `json:"allele_names"`
}

// LocusMatchingMetadata holds both positions of a locus after the null-allele merge.
type LocusMatchingMetadata struct {
	Locus     Locus            `json:"locus"`
	Position1 MatchingMetadata `json:"position_1"`
	Position2 MatchingMetadata `json:"position_2"`
}

// Dataset is one nomenclature version of reference data, as imported into a store.
type Dataset struct {
	Version         string                 `json:"version"`
	FactRows        []RawFactRow           `json:"fact_rows"`
	AlleleNames     []AlleleNameEntry      `json:"allele_names"`
	AlleleGroups    []AlleleGroupEntry     `json:"allele_groups"`
	SerologyAlleles []SerologyAllelesEntry `json:"serology_alleles"`
}

// AlleleNameEntry maps a lookup name to the current allele names it denotes.
type AlleleNameEntry struct {
	Locus              Locus    `json:"locus"`
	LookupName         string   `json:"lookup_name"`
	CurrentAlleleNames []string `json:"current_allele_names"`
}

// AlleleGroupEntry lists the members of a P, G or small-g group.
// PGroup is only meaningful for G and small-g groups; nil means no P group.
type AlleleGroupEntry struct {
	Locus   Locus     `json:"locus"`
	Kind    GroupKind `json:"kind"`
	Name    string    `json:"name"`
	Members []string  `json:"members"`
	PGroup  *string   `json:"p_group,omitempty"`
}

// SerologyAllelesEntry lists the alleles mapped to one serology.
type SerologyAllelesEntry struct {
	Locus    Locus                   `json:"locus"`
	Serology string                  `json:"serology"`
	Alleles  []SerologyAlleleMapping `json:"alleles"`
}

// Validate checks the dataset before it is written.
func (d *Dataset) Validate() error {
	if d.Version == "" {
		return NewValidationError("version", "dataset version is required", d.Version)
	}
	for i, row := range d.FactRows {
		if !row.Locus.IsValid() {
			return NewValidationError(fmt.Sprintf("fact_rows[%d].locus", i), "unknown locus", row.Locus)
		}
		if FormatLookupName(row.TypingName) == "" {
			return NewValidationError(fmt.Sprintf("fact_rows[%d].typing_name", i), "typing name is required", row.TypingName)
		}
		if row.TypingMethod != MethodMolecular && row.TypingMethod != MethodSerology {
			return NewValidationError(fmt.Sprintf("fact_rows[%d].typing_method", i), "unknown typing method", row.TypingMethod)
		}
	}
	for i, group := range d.AlleleGroups {
		switch group.Kind {
		case GroupKindP, GroupKindG, GroupKindSmallG:
		default:
			return NewValidationError(fmt.Sprintf("allele_groups[%d].kind", i), "unknown group kind", group.Kind)
		}
		if !group.Locus.IsValid() {
			return NewValidationError(fmt.Sprintf("allele_groups[%d].locus", i), "unknown locus", group.Locus)
		}
	}
	for i, entry := range d.AlleleNames {
		if !entry.Locus.IsValid() {
			return NewValidationError(fmt.Sprintf("allele_names[%d].locus", i), "unknown locus", entry.Locus)
		}
	}
	for i, entry := range d.SerologyAlleles {
		if !entry.Locus.IsValid() {
			return NewValidationError(fmt.Sprintf("serology_alleles[%d].locus", i), "unknown locus", entry.Locus)
		}
	}
	return nil
}
