package external

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-metadata-dictionary/internal/domain"
)

const sampleCodeList = `# NMDP allele code list
AB	01/02
AFC	01:01/02:01
*	NEW	01/03N

XY	A*01:01/A*01:02
`

func TestLoadMACDictionary(t *testing.T) {
	dictionary, err := LoadMACDictionary(strings.NewReader(sampleCodeList))
	require.NoError(t, err)
	assert.Equal(t, 4, dictionary.Len())
}

func TestLoadMACDictionary_MalformedLine(t *testing.T) {
	_, err := LoadMACDictionary(strings.NewReader("AB 01/02 extra\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestMACDictionary_Expand(t *testing.T) {
	ctx := context.Background()
	dictionary, err := LoadMACDictionary(strings.NewReader(sampleCodeList))
	require.NoError(t, err)

	tests := []struct {
		name     string
		code     string
		expected []string
	}{
		{"Generic expansion takes the first field", "01:AB", []string{"01:01", "01:02"}},
		{"Generic expansion with other first field", "*24:AB", []string{"24:01", "24:02"}},
		{"Specific expansion used verbatim", "02:AFC", []string{"01:01", "02:01"}},
		{"New code marker", "01:NEW", []string{"01:01", "01:03N"}},
		{"Locus prefixes stripped", "01:XY", []string{"01:01", "01:02"}},
		{"Lower case letters", "01:ab", []string{"01:01", "01:02"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, err := dictionary.Expand(ctx, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestMACDictionary_Expand_Errors(t *testing.T) {
	ctx := context.Background()
	dictionary := NewMACDictionary(map[string]string{"AB": "01/02"})

	_, err := dictionary.Expand(ctx, "01:ZZZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = dictionary.Expand(ctx, "AB")
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = dictionary.Expand(cancelled, "01:AB")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadMACDictionaryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "numer.v3.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleCodeList), 0o644))

	dictionary, err := LoadMACDictionaryFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, dictionary.Len())

	_, err = LoadMACDictionaryFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
