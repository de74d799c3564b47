package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hla-metadata-dictionary/internal/cache"
	"github.com/hla-metadata-dictionary/internal/domain"
	"github.com/hla-metadata-dictionary/pkg/external"
)

const testVersion = "3.58.0"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func strPtr(s string) *string { return &s }

func payload(t *testing.T, info domain.ScoringInfo) json.RawMessage {
	t.Helper()
	encoded, err := domain.EncodeScoringInfo(info)
	require.NoError(t, err)
	return encoded
}

func singleAlleleRow(t *testing.T, locus domain.Locus, name, pGroup, gGroup string, serologies ...string) domain.RawFactRow {
	var pGroups, gGroups []string
	if pGroup != "" {
		pGroups = []string{pGroup}
	}
	if gGroup != "" {
		gGroups = []string{gGroup}
	}
	return domain.RawFactRow{
		Locus:              locus,
		TypingName:         name,
		TypingMethod:       domain.MethodMolecular,
		MatchingPGroups:    pGroups,
		MatchingGGroups:    gGroups,
		MatchingSerologies: serologies,
		ScoringPayload: payload(t, domain.SingleAlleleScoringInfo{
			AlleleName:         name,
			MatchingPGroup:     pGroup,
			MatchingGGroup:     gGroup,
			MatchingSerologies: serologies,
		}),
	}
}

func withSmallG(row domain.RawFactRow, groups ...string) domain.RawFactRow {
	row.SmallGGroups = groups
	return row
}

func withTce(row domain.RawFactRow, group string) domain.RawFactRow {
	row.TceGroup = group
	return row
}

// testDataset is a small slice of reference data covering every category.
func testDataset(t *testing.T) *domain.Dataset {
	t.Helper()
	return &domain.Dataset{
		Version: testVersion,
		FactRows: []domain.RawFactRow{
			withSmallG(singleAlleleRow(t, domain.LocusA, "01:01:01:01", "01:01P", "01:01:01G", "1"), "01:01g"),
			singleAlleleRow(t, domain.LocusA, "01:01:01:02N", "", ""),
			withSmallG(singleAlleleRow(t, domain.LocusA, "02:01:01:01", "02:01P", "02:01:01G", "2", "203"), "02:01g"),
			singleAlleleRow(t, domain.LocusA, "02:43N", "", ""),
			singleAlleleRow(t, domain.LocusA, "11:69N", "", ""),
			{
				Locus:              domain.LocusA,
				TypingName:         "01",
				TypingMethod:       domain.MethodMolecular,
				MatchingPGroups:    []string{"01:01P"},
				MatchingSerologies: []string{"1"},
				SmallGGroups:       []string{"01:01g"},
				ScoringPayload: payload(t, domain.ConsolidatedMolecularScoringInfo{
					MatchingPGroups:    []string{"01:01P"},
					MatchingGGroups:    []string{"01:01:01G"},
					MatchingSerologies: []string{"1"},
				}),
			},
			{
				Locus:              domain.LocusA,
				TypingName:         "1",
				TypingMethod:       domain.MethodSerology,
				MatchingPGroups:    []string{"01:01P"},
				MatchingSerologies: []string{"1"},
				ScoringPayload: payload(t, domain.ConsolidatedMolecularScoringInfo{
					MatchingPGroups:    []string{"01:01P"},
					MatchingSerologies: []string{"1"},
				}),
			},
			withTce(singleAlleleRow(t, domain.LocusDpb1, "01:01:01:01", "01:01P", "01:01:01G"), "3"),
			withTce(singleAlleleRow(t, domain.LocusDpb1, "02:01:02", "02:01P", "02:01:02G"), "3"),
			withTce(singleAlleleRow(t, domain.LocusDpb1, "03:01:01", "03:01P", "03:01:01G"), "2"),
			singleAlleleRow(t, domain.LocusDpb1, "04:01:01", "04:01P", "04:01:01G"),
		},
		AlleleNames: []domain.AlleleNameEntry{
			{Locus: domain.LocusA, LookupName: "01:01", CurrentAlleleNames: []string{"01:01:01:01", "01:01:01:02N"}},
			{Locus: domain.LocusA, LookupName: "02:01", CurrentAlleleNames: []string{"02:01:01:01"}},
		},
		AlleleGroups: []domain.AlleleGroupEntry{
			{Locus: domain.LocusA, Kind: domain.GroupKindP, Name: "01:01P", Members: []string{"01:01:01:01"}},
			{Locus: domain.LocusA, Kind: domain.GroupKindG, Name: "01:01:01G", Members: []string{"01:01:01:02N", "01:01:01:01"}, PGroup: strPtr("01:01P")},
			{Locus: domain.LocusA, Kind: domain.GroupKindSmallG, Name: "01:01g", Members: []string{"01:01:01:01", "01:01:01:02N"}, PGroup: strPtr("01:01P")},
			{Locus: domain.LocusA, Kind: domain.GroupKindSmallG, Name: "02:43g", Members: []string{"02:43N"}},
		},
		SerologyAlleles: []domain.SerologyAllelesEntry{
			{Locus: domain.LocusA, Serology: "1", Alleles: []domain.SerologyAlleleMapping{
				{AlleleName: "01:02", PGroup: "01:02P"},
				{AlleleName: "01:01:01:01", PGroup: "01:01P", GGroup: "01:01:01G"},
			}},
		},
	}
}

// memoryRepository serves a Dataset from maps and counts calls per method.
type memoryRepository struct {
	mu       sync.Mutex
	calls    map[string]int
	rows     map[domain.LookupKey][]domain.RawFactRow
	names    map[domain.LookupKey][]string
	groups   map[domain.GroupKind]map[domain.LookupKey][]string
	pGroups  map[domain.GroupKind]map[domain.LookupKey]*string
	serology map[domain.LookupKey][]domain.SerologyAlleleMapping
}

var _ domain.FactRepository = (*memoryRepository)(nil)

func newMemoryRepository(dataset *domain.Dataset) *memoryRepository {
	r := &memoryRepository{
		calls:    make(map[string]int),
		rows:     make(map[domain.LookupKey][]domain.RawFactRow),
		names:    make(map[domain.LookupKey][]string),
		groups:   make(map[domain.GroupKind]map[domain.LookupKey][]string),
		pGroups:  make(map[domain.GroupKind]map[domain.LookupKey]*string),
		serology: make(map[domain.LookupKey][]domain.SerologyAlleleMapping),
	}
	for _, row := range dataset.FactRows {
		key := domain.NewLookupKey(row.Locus, row.TypingName, dataset.Version)
		row.TypingName = key.LookupName
		r.rows[key] = append(r.rows[key], row)
	}
	for _, entry := range dataset.AlleleNames {
		key := domain.NewLookupKey(entry.Locus, entry.LookupName, dataset.Version)
		r.names[key] = append(r.names[key], entry.CurrentAlleleNames...)
	}
	for _, group := range dataset.AlleleGroups {
		key := domain.NewLookupKey(group.Locus, group.Name, dataset.Version)
		if r.groups[group.Kind] == nil {
			r.groups[group.Kind] = make(map[domain.LookupKey][]string)
			r.pGroups[group.Kind] = make(map[domain.LookupKey]*string)
		}
		r.groups[group.Kind][key] = append(r.groups[group.Kind][key], group.Members...)
		r.pGroups[group.Kind][key] = group.PGroup
	}
	for _, entry := range dataset.SerologyAlleles {
		key := domain.NewLookupKey(entry.Locus, entry.Serology, dataset.Version)
		r.serology[key] = append(r.serology[key], entry.Alleles...)
	}
	return r
}

func (r *memoryRepository) record(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[method]++
}

func (r *memoryRepository) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *memoryRepository) RowsFor(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error) {
	r.record("RowsFor")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]domain.RawFactRow(nil), r.rows[key]...), nil
}

func (r *memoryRepository) CurrentAlleleNames(ctx context.Context, key domain.LookupKey) ([]string, error) {
	r.record("CurrentAlleleNames")
	return append([]string(nil), r.names[key]...), ctx.Err()
}

func (r *memoryRepository) GroupMembers(ctx context.Context, key domain.LookupKey, kind domain.GroupKind) ([]string, error) {
	r.record("GroupMembers")
	return append([]string(nil), r.groups[kind][key]...), ctx.Err()
}

func (r *memoryRepository) GroupPGroup(ctx context.Context, key domain.LookupKey, kind domain.GroupKind) (string, bool, error) {
	r.record("GroupPGroup")
	pGroup, found := r.pGroups[kind][key]
	if !found || kind == domain.GroupKindP {
		return "", false, ctx.Err()
	}
	if pGroup == nil {
		return "", true, ctx.Err()
	}
	return *pGroup, true, ctx.Err()
}

func (r *memoryRepository) SerologyAlleles(ctx context.Context, key domain.LookupKey) ([]domain.SerologyAlleleMapping, error) {
	r.record("SerologyAlleles")
	return append([]domain.SerologyAlleleMapping(nil), r.serology[key]...), ctx.Err()
}

// MockFactRepository is a mock implementation of the FactRepository interface
type MockFactRepository struct {
	mock.Mock
}

func (m *MockFactRepository) RowsFor(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawFactRow), args.Error(1)
}

func (m *MockFactRepository) CurrentAlleleNames(ctx context.Context, key domain.LookupKey) ([]string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockFactRepository) GroupMembers(ctx context.Context, key domain.LookupKey, kind domain.GroupKind) ([]string, error) {
	args := m.Called(ctx, key, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockFactRepository) GroupPGroup(ctx context.Context, key domain.LookupKey, kind domain.GroupKind) (string, bool, error) {
	args := m.Called(ctx, key, kind)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockFactRepository) SerologyAlleles(ctx context.Context, key domain.LookupKey) ([]domain.SerologyAlleleMapping, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SerologyAlleleMapping), args.Error(1)
}

func testMACDictionary() *external.MACDictionary {
	return external.NewMACDictionary(map[string]string{
		"AB": "01/02",
		"CD": "01:01:01:01/02:01:01:01",
	})
}

func newTestService(t *testing.T, repository domain.FactRepository) *MetadataService {
	t.Helper()
	layer, err := cache.NewLayer(cache.Config{MemorySize: 1000}, testLogger())
	require.NoError(t, err)

	service, err := NewMetadataService(Dependencies{
		Repository:     repository,
		AmbiguityCodes: testMACDictionary(),
		Cache:          layer,
		Logger:         testLogger(),
	})
	require.NoError(t, err)
	return service
}

func newTestDictionary(t *testing.T) (*Dictionary, *memoryRepository) {
	t.Helper()
	repository := newMemoryRepository(testDataset(t))
	layer, err := cache.NewLayer(cache.Config{MemorySize: 1000}, testLogger())
	require.NoError(t, err)

	services, err := NewServices(Dependencies{
		Repository:     repository,
		AmbiguityCodes: testMACDictionary(),
		Cache:          layer,
		Logger:         testLogger(),
	})
	require.NoError(t, err)
	return services.ForVersion(testVersion), repository
}
