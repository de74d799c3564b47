package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-metadata-dictionary/internal/domain"
)

func TestParseTargetFormat(t *testing.T) {
	for target, name := range targetNames {
		parsed, err := ParseTargetFormat(" " + name + " ")
		require.NoError(t, err)
		assert.Equal(t, target, parsed)
		assert.Equal(t, name, target.String())
	}

	_, err := ParseTargetFormat("three-field")
	assert.True(t, domain.IsValidationError(err))
	assert.Equal(t, "TargetFormat(42)", TargetFormat(42).String())
}

func TestConverter_Convert(t *testing.T) {
	dictionary, _ := newTestDictionary(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		hla      string
		target   TargetFormat
		expected []string
	}{
		{"Two field with suffix", "01:01", TargetTwoFieldIncludingExpressionSuffix, []string{"01:01", "01:01N"}},
		{"Two field without suffix", "01:01", TargetTwoFieldExcludingExpressionSuffix, []string{"01:01"}},
		{"G group of an allele", "02:01:01:01", TargetGGroup, []string{"02:01:01G"}},
		{"G groups of an allele string", "01:01:01:01/02:01:01:01", TargetGGroup, []string{"01:01:01G", "02:01:01G"}},
		{"P groups of an ambiguity code", "01:CD", TargetPGroup, []string{"01:01P", "02:01P"}},
		{"Small g groups", "01:01:01:01", TargetSmallGGroup, []string{"01:01g"}},
		{"Serologies", "02:01:01:01", TargetSerology, []string{"2", "203"}},
		{"Null allele has no P group", "02:43N", TargetPGroup, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converted, err := dictionary.Convert(ctx, domain.LocusA, tt.hla, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, converted)
		})
	}

	t.Run("Unknown typing", func(t *testing.T) {
		_, err := dictionary.Convert(ctx, domain.LocusA, "99:99:99", TargetPGroup)
		assert.True(t, domain.IsUnrecognizedTyping(err))
	})

	t.Run("Serology cannot become allele names", func(t *testing.T) {
		_, err := dictionary.Convert(ctx, domain.LocusA, "1", TargetTwoFieldExcludingExpressionSuffix)
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("Unknown target", func(t *testing.T) {
		_, err := dictionary.Convert(ctx, domain.LocusA, "01:01:01:01", TargetFormat(42))
		assert.True(t, domain.IsValidationError(err))
	})
}
