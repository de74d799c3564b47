package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-metadata-dictionary/internal/domain"
)

const testVersion = "3.58.0"

type store interface {
	domain.FactRepository
	domain.DatasetImporter
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func strPtr(s string) *string { return &s }

func testDataset(t *testing.T) *domain.Dataset {
	t.Helper()
	payload, err := domain.EncodeScoringInfo(domain.SingleAlleleScoringInfo{
		AlleleName:         "01:01:01:01",
		MatchingPGroup:     "01:01P",
		MatchingGGroup:     "01:01:01G",
		MatchingSerologies: []string{"1"},
	})
	require.NoError(t, err)

	return &domain.Dataset{
		Version: testVersion,
		FactRows: []domain.RawFactRow{
			{
				Locus:              domain.LocusA,
				TypingName:         "01:01:01:01",
				TypingMethod:       domain.MethodMolecular,
				MatchingPGroups:    []string{"01:01P"},
				MatchingGGroups:    []string{"01:01:01G"},
				MatchingSerologies: []string{"1"},
				SmallGGroups:       []string{"01:01g"},
				ScoringPayload:     json.RawMessage(payload),
			},
			{
				Locus:        domain.LocusA,
				TypingName:   "*01:01:01:02N",
				TypingMethod: domain.MethodMolecular,
			},
			{
				Locus:              domain.LocusDpb1,
				TypingName:         "01:01:01:01",
				TypingMethod:       domain.MethodMolecular,
				MatchingPGroups:    []string{"01:01P"},
				TceGroup:           "3",
				MatchingSerologies: []string{},
			},
		},
		AlleleNames: []domain.AlleleNameEntry{
			{Locus: domain.LocusA, LookupName: "01:01", CurrentAlleleNames: []string{"01:01:01:01", "01:01:01:02N"}},
		},
		AlleleGroups: []domain.AlleleGroupEntry{
			{Locus: domain.LocusA, Kind: domain.GroupKindG, Name: "01:01:01G", Members: []string{"01:01:01:02N", "01:01:01:01"}, PGroup: strPtr("01:01P")},
			{Locus: domain.LocusA, Kind: domain.GroupKindSmallG, Name: "01:01g", Members: []string{"01:01:01:01"}},
			{Locus: domain.LocusA, Kind: domain.GroupKindP, Name: "01:01P", Members: []string{"01:01:01:01"}},
		},
		SerologyAlleles: []domain.SerologyAllelesEntry{
			{Locus: domain.LocusA, Serology: "1", Alleles: []domain.SerologyAlleleMapping{
				{AlleleName: "01:01:01:01", PGroup: "01:01P", GGroup: "01:01:01G"},
				{AlleleName: "01:02", PGroup: "01:02P"},
			}},
		},
	}
}

// runStoreContract exercises a store through the repository interface.
func runStoreContract(t *testing.T, s store) {
	ctx := context.Background()
	require.NoError(t, s.Import(ctx, testDataset(t)))

	t.Run("RowsFor", func(t *testing.T) {
		rows, err := s.RowsFor(ctx, domain.NewLookupKey(domain.LocusA, "01:01:01:01", testVersion))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, domain.LocusA, rows[0].Locus)
		assert.Equal(t, domain.MethodMolecular, rows[0].TypingMethod)
		assert.Equal(t, []string{"01:01P"}, rows[0].MatchingPGroups)
		assert.Equal(t, []string{"01:01g"}, rows[0].SmallGGroups)

		info, err := rows[0].ScoringInfo()
		require.NoError(t, err)
		assert.Equal(t, "01:01P", info.(domain.SingleAlleleScoringInfo).MatchingPGroup)
	})

	t.Run("RowsFor stores formatted names", func(t *testing.T) {
		rows, err := s.RowsFor(ctx, domain.NewLookupKey(domain.LocusA, "01:01:01:02N", testVersion))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Empty(t, rows[0].MatchingPGroups)
		assert.Empty(t, rows[0].ScoringPayload)
	})

	t.Run("RowsFor is scoped by locus and version", func(t *testing.T) {
		rows, err := s.RowsFor(ctx, domain.NewLookupKey(domain.LocusB, "01:01:01:01", testVersion))
		require.NoError(t, err)
		assert.Empty(t, rows)

		rows, err = s.RowsFor(ctx, domain.NewLookupKey(domain.LocusA, "01:01:01:01", "3.0.0"))
		require.NoError(t, err)
		assert.Empty(t, rows)

		rows, err = s.RowsFor(ctx, domain.NewLookupKey(domain.LocusDpb1, "01:01:01:01", testVersion))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "3", rows[0].TceGroup)
	})

	t.Run("CurrentAlleleNames", func(t *testing.T) {
		names, err := s.CurrentAlleleNames(ctx, domain.NewLookupKey(domain.LocusA, "01:01", testVersion))
		require.NoError(t, err)
		assert.Equal(t, []string{"01:01:01:01", "01:01:01:02N"}, names)
	})

	t.Run("GroupMembers", func(t *testing.T) {
		members, err := s.GroupMembers(ctx, domain.NewLookupKey(domain.LocusA, "01:01:01G", testVersion), domain.GroupKindG)
		require.NoError(t, err)
		assert.Equal(t, []string{"01:01:01:01", "01:01:01:02N"}, members)

		members, err = s.GroupMembers(ctx, domain.NewLookupKey(domain.LocusA, "01:01:01G", testVersion), domain.GroupKindP)
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("GroupPGroup", func(t *testing.T) {
		pGroup, found, err := s.GroupPGroup(ctx, domain.NewLookupKey(domain.LocusA, "01:01:01G", testVersion), domain.GroupKindG)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "01:01P", pGroup)

		pGroup, found, err = s.GroupPGroup(ctx, domain.NewLookupKey(domain.LocusA, "01:01g", testVersion), domain.GroupKindSmallG)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Empty(t, pGroup)

		_, found, err = s.GroupPGroup(ctx, domain.NewLookupKey(domain.LocusA, "99:99g", testVersion), domain.GroupKindSmallG)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("SerologyAlleles", func(t *testing.T) {
		mappings, err := s.SerologyAlleles(ctx, domain.NewLookupKey(domain.LocusA, "1", testVersion))
		require.NoError(t, err)
		assert.Equal(t, []domain.SerologyAlleleMapping{
			{AlleleName: "01:01:01:01", PGroup: "01:01P", GGroup: "01:01:01G"},
			{AlleleName: "01:02", PGroup: "01:02P"},
		}, mappings)
	})

	t.Run("Import replaces the version", func(t *testing.T) {
		replacement := &domain.Dataset{
			Version: testVersion,
			FactRows: []domain.RawFactRow{
				{Locus: domain.LocusB, TypingName: "08:01", TypingMethod: domain.MethodMolecular},
			},
		}
		require.NoError(t, s.Import(ctx, replacement))

		rows, err := s.RowsFor(ctx, domain.NewLookupKey(domain.LocusA, "01:01:01:01", testVersion))
		require.NoError(t, err)
		assert.Empty(t, rows)

		rows, err = s.RowsFor(ctx, domain.NewLookupKey(domain.LocusB, "08:01", testVersion))
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("Import rejects invalid datasets", func(t *testing.T) {
		err := s.Import(ctx, &domain.Dataset{})
		assert.True(t, domain.IsValidationError(err))
	})
}
