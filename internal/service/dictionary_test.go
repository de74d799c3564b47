package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hla-metadata-dictionary/internal/domain"
)

func TestDictionary_IsValidHla(t *testing.T) {
	dictionary, _ := newTestDictionary(t)
	ctx := context.Background()

	tests := []struct {
		typing string
		valid  bool
	}{
		{"01:01:01:01", true},
		{"*01:01:01:01", true},
		{"01:XX", true},
		{"1", true},
		{"99:99:99", false},
		{"", false},
		{"not a typing", false},
	}

	for _, tt := range tests {
		t.Run(tt.typing, func(t *testing.T) {
			valid, err := dictionary.IsValidHla(ctx, domain.LocusA, tt.typing)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, valid)
		})
	}
}

func TestDictionary_IsValidHla_PropagatesFailures(t *testing.T) {
	boom := errors.New("database is down")
	repository := new(MockFactRepository)
	repository.On("CurrentAlleleNames", mock.Anything, mock.Anything).Return([]string{}, nil)
	repository.On("RowsFor", mock.Anything, mock.Anything).Return(nil, boom)

	services, err := NewServices(Dependencies{
		Repository:     repository,
		AmbiguityCodes: testMACDictionary(),
		Logger:         testLogger(),
	})
	require.NoError(t, err)

	valid, err := services.ForVersion(testVersion).IsValidHla(context.Background(), domain.LocusA, "01:01:01:01")
	assert.False(t, valid)
	assert.ErrorIs(t, err, boom)
}

func TestDictionary_TceGroup(t *testing.T) {
	dictionary, _ := newTestDictionary(t)
	ctx := context.Background()

	t.Run("Only DPB1 has TCE groups", func(t *testing.T) {
		_, err := dictionary.TceGroup(ctx, domain.LocusA, "01:01:01:01")
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("Single allele", func(t *testing.T) {
		metadata, err := dictionary.TceGroup(ctx, domain.LocusDpb1, "03:01:01")
		require.NoError(t, err)
		group, ok := metadata.TceGroup.Group()
		assert.True(t, ok)
		assert.Equal(t, "2", group)
	})

	t.Run("Alleles sharing a group are assigned", func(t *testing.T) {
		metadata, err := dictionary.TceGroup(ctx, domain.LocusDpb1, "01:01:01:01/02:01:02")
		require.NoError(t, err)
		group, ok := metadata.TceGroup.Group()
		assert.True(t, ok)
		assert.Equal(t, "3", group)
	})

	t.Run("Alleles in different groups are indeterminate", func(t *testing.T) {
		metadata, err := dictionary.TceGroup(ctx, domain.LocusDpb1, "01:01:01:01/03:01:01")
		require.NoError(t, err)
		assert.True(t, metadata.TceGroup.IsIndeterminate())
	})

	t.Run("Allele without a group is indeterminate", func(t *testing.T) {
		metadata, err := dictionary.TceGroup(ctx, domain.LocusDpb1, "04:01:01")
		require.NoError(t, err)
		assert.True(t, metadata.TceGroup.IsIndeterminate())
	})
}

func TestDictionary_GroupToPGroup(t *testing.T) {
	dictionary, _ := newTestDictionary(t)
	ctx := context.Background()

	t.Run("G group", func(t *testing.T) {
		mapping, err := dictionary.GGroupToPGroup(ctx, domain.LocusA, "01:01:01G")
		require.NoError(t, err)
		require.NotNil(t, mapping.PGroup)
		assert.Equal(t, "01:01P", *mapping.PGroup)
	})

	t.Run("Small g group", func(t *testing.T) {
		mapping, err := dictionary.SmallGGroupToPGroup(ctx, domain.LocusA, "01:01g")
		require.NoError(t, err)
		require.NotNil(t, mapping.PGroup)
		assert.Equal(t, "01:01P", *mapping.PGroup)
	})

	t.Run("Null small g group maps to no P group", func(t *testing.T) {
		mapping, err := dictionary.SmallGGroupToPGroup(ctx, domain.LocusA, "02:43g")
		require.NoError(t, err)
		assert.Nil(t, mapping.PGroup)
		assert.Equal(t, "02:43g", mapping.LookupName)
	})

	t.Run("Unknown group", func(t *testing.T) {
		_, err := dictionary.GGroupToPGroup(ctx, domain.LocusA, "99:99:99G")
		assert.True(t, domain.IsUnrecognizedTyping(err))
	})

	t.Run("Wrong kind of group", func(t *testing.T) {
		_, err := dictionary.GGroupToPGroup(ctx, domain.LocusA, "01:01g")
		assert.True(t, domain.IsValidationError(err))

		_, err = dictionary.SmallGGroupToPGroup(ctx, domain.LocusA, "01:01:01G")
		assert.True(t, domain.IsValidationError(err))
	})
}

func TestDictionary_SerologyToAlleles(t *testing.T) {
	dictionary, _ := newTestDictionary(t)
	ctx := context.Background()

	metadata, err := dictionary.SerologyToAlleles(ctx, domain.LocusA, "1")
	require.NoError(t, err)
	assert.Equal(t, []domain.SerologyAlleleMapping{
		{AlleleName: "01:01:01:01", PGroup: "01:01P", GGroup: "01:01:01G"},
		{AlleleName: "01:02", PGroup: "01:02P"},
	}, metadata.Alleles)

	_, err = dictionary.SerologyToAlleles(ctx, domain.LocusA, "99")
	assert.True(t, domain.IsUnrecognizedTyping(err))

	_, err = dictionary.SerologyToAlleles(ctx, domain.LocusA, "01:01")
	assert.True(t, domain.IsValidationError(err))
}

func TestDictionary_AlleleNamesAndGroups(t *testing.T) {
	dictionary, _ := newTestDictionary(t)
	ctx := context.Background()
	assert.Equal(t, testVersion, dictionary.Version())

	names, err := dictionary.AlleleNames(ctx, domain.LocusA, "*01:01")
	require.NoError(t, err)
	assert.Equal(t, "01:01", names.LookupName)
	assert.Equal(t, []string{"01:01:01:01", "01:01:01:02N"}, names.CurrentAlleleNames)

	members, err := dictionary.ExpandAlleleGroup(ctx, domain.LocusA, "01:01g")
	require.NoError(t, err)
	assert.Equal(t, []string{"01:01:01:01", "01:01:01:02N"}, members)

	smallG, err := dictionary.SmallGGroups(ctx, domain.LocusA, "01:01")
	require.NoError(t, err)
	assert.Equal(t, []string{"01:01g"}, smallG.SmallGGroups)
}

func TestDictionary_CacheStats(t *testing.T) {
	dictionary, repository := newTestDictionary(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := dictionary.Matching(ctx, domain.LocusA, "02:01:01:01")
		require.NoError(t, err)
	}

	stats := dictionary.CacheStats()
	assert.GreaterOrEqual(t, stats.MemoryHits, int64(2))
	assert.Equal(t, 1, repository.Calls("RowsFor"))
}
