package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hla-metadata-dictionary/internal/domain"
	"github.com/hla-metadata-dictionary/pkg/typing"
)

// maxConcurrentMemberLookups bounds the per-member fan-out of composite typings.
const maxConcurrentMemberLookups = 8

// LookupStrategy turns a classified typing into the raw fact rows behind it.
type LookupStrategy interface {
	Rows(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error)
}

// Strategies names one LookupStrategy per typing category. Every field must be set.
type Strategies struct {
	Allele                 LookupStrategy
	AlleleStringOfNames    LookupStrategy
	AlleleStringOfSubtypes LookupStrategy
	AmbiguityCode          LookupStrategy
	XxCode                 LookupStrategy
	Serology               LookupStrategy
	GGroup                 LookupStrategy
	PGroup                 LookupStrategy
	SmallGGroup            LookupStrategy
}

// StrategyTable selects the strategy for a category.
type StrategyTable struct {
	byCategory [domain.TypingCategoryCount]LookupStrategy
}

// NewStrategyTable builds a table covering every category, failing if any is missing.
func NewStrategyTable(s Strategies) (*StrategyTable, error) {
	table := &StrategyTable{}
	table.byCategory[domain.CategoryAllele] = s.Allele
	table.byCategory[domain.CategoryAlleleStringOfNames] = s.AlleleStringOfNames
	table.byCategory[domain.CategoryAlleleStringOfSubtypes] = s.AlleleStringOfSubtypes
	table.byCategory[domain.CategoryAmbiguityCode] = s.AmbiguityCode
	table.byCategory[domain.CategoryXxCode] = s.XxCode
	table.byCategory[domain.CategorySerology] = s.Serology
	table.byCategory[domain.CategoryGGroup] = s.GGroup
	table.byCategory[domain.CategoryPGroup] = s.PGroup
	table.byCategory[domain.CategorySmallGGroup] = s.SmallGGroup

	for _, category := range domain.TypingCategories() {
		if table.byCategory[category] == nil {
			return nil, fmt.Errorf("no lookup strategy for typing category %s", category)
		}
	}
	return table, nil
}

// Select returns the strategy for category.
func (t *StrategyTable) Select(category domain.TypingCategory) (LookupStrategy, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("unknown typing category %d", int(category))
	}
	return t.byCategory[category], nil
}

// Rows selects the category's strategy and runs it.
func (t *StrategyTable) Rows(ctx context.Context, key domain.LookupKey, category domain.TypingCategory) ([]domain.RawFactRow, error) {
	strategy, err := t.Select(category)
	if err != nil {
		return nil, err
	}
	return strategy.Rows(ctx, key)
}

// alleleNameSource resolves a possibly retired allele name to its current names.
type alleleNameSource interface {
	CurrentNames(ctx context.Context, key domain.LookupKey) ([]string, error)
}

// AlleleLookup resolves the name to its current allele names and fetches each one's rows.
type AlleleLookup struct {
	repository domain.FactRepository
	names      alleleNameSource
}

func (s *AlleleLookup) Rows(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error) {
	names, err := s.names.CurrentNames(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(names) == 1 && names[0] == key.LookupName {
		return s.repository.RowsFor(ctx, key)
	}
	return rowsForMembers(ctx, key, names, func(ctx context.Context, member domain.LookupKey) ([]domain.RawFactRow, error) {
		return s.repository.RowsFor(ctx, member)
	}, false)
}

// AlleleStringLookup splits "a/b/c" and looks up every member as an allele.
// Every member must be recognised.
type AlleleStringLookup struct {
	alleles *AlleleLookup
}

func (s *AlleleStringLookup) Rows(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error) {
	names, err := typing.SplitAlleleString(key.LookupName)
	if err != nil {
		return nil, err
	}
	return rowsForMembers(ctx, key, names, s.alleles.Rows, true)
}

// AmbiguityCodeLookup expands a MAC and looks up the resulting allele names.
// Generic codes routinely expand to names absent from a given locus or
// version, so unknown members are skipped.
type AmbiguityCodeLookup struct {
	expander domain.AmbiguityCodeExpander
	alleles  *AlleleLookup
}

func (s *AmbiguityCodeLookup) Rows(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error) {
	names, err := s.expander.Expand(ctx, key.LookupName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewUnrecognizedTypingError(key, "unknown ambiguity code")
		}
		return nil, fmt.Errorf("expanding ambiguity code: %w", err)
	}
	return rowsForMembers(ctx, key, names, s.alleles.Rows, false)
}

// XxCodeLookup reads the rows stored under the code's first field.
type XxCodeLookup struct {
	repository domain.FactRepository
}

func (s *XxCodeLookup) Rows(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error) {
	return s.repository.RowsFor(ctx, key.WithName(typing.FirstField(key.LookupName)))
}

// SerologyLookup reads the serology-method rows stored under the serology name.
type SerologyLookup struct {
	repository domain.FactRepository
}

func (s *SerologyLookup) Rows(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error) {
	rows, err := s.repository.RowsFor(ctx, key)
	if err != nil {
		return nil, err
	}
	serologies := make([]domain.RawFactRow, 0, len(rows))
	for _, row := range rows {
		if row.TypingMethod == domain.MethodSerology {
			serologies = append(serologies, row)
		}
	}
	return serologies, nil
}

// AlleleGroupLookup expands a P, G or small-g group and reads each member's rows.
type AlleleGroupLookup struct {
	repository domain.FactRepository
	groups     domain.AlleleGroupExpander
}

func (s *AlleleGroupLookup) Rows(ctx context.Context, key domain.LookupKey) ([]domain.RawFactRow, error) {
	members, err := s.groups.Expand(ctx, key.Locus, key.LookupName, key.Version)
	if err != nil {
		return nil, err
	}
	return rowsForMembers(ctx, key, members, func(ctx context.Context, member domain.LookupKey) ([]domain.RawFactRow, error) {
		return s.repository.RowsFor(ctx, member)
	}, false)
}

// rowsForMembers fetches rows for every member name concurrently and
// concatenates them in member order. With strict set, a member without rows
// makes the whole typing unrecognised.
func rowsForMembers(
	ctx context.Context,
	key domain.LookupKey,
	names []string,
	fetch func(ctx context.Context, member domain.LookupKey) ([]domain.RawFactRow, error),
	strict bool,
) ([]domain.RawFactRow, error) {
	names = distinctInOrder(names)
	results := make([][]domain.RawFactRow, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentMemberLookups)
	for i, name := range names {
		g.Go(func() error {
			member := key.WithName(name)
			rows, err := fetch(gctx, member)
			if err != nil {
				if !strict && domain.IsUnrecognizedTyping(err) {
					return nil
				}
				return err
			}
			if strict && len(rows) == 0 {
				return domain.NewUnrecognizedTypingError(member, fmt.Sprintf("member of %s", key.LookupName))
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []domain.RawFactRow
	for _, memberRows := range results {
		rows = append(rows, memberRows...)
	}
	return rows, nil
}
