package service

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/hla-metadata-dictionary/internal/domain"
	"github.com/hla-metadata-dictionary/pkg/typing"
)

const defaultGroupMemoSize = 10000

// GroupExpander expands P, G and small-g group names into their member alleles.
// Expansions are memoised per (locus, group, version).
type GroupExpander struct {
	repository domain.FactRepository
	memo       *lru.Cache[domain.LookupKey, []string]
	logger     *logrus.Logger
}

var _ domain.AlleleGroupExpander = (*GroupExpander)(nil)

// NewGroupExpander creates a group expander holding up to size expansions.
func NewGroupExpander(repository domain.FactRepository, size int, logger *logrus.Logger) (*GroupExpander, error) {
	if size <= 0 {
		size = defaultGroupMemoSize
	}
	memo, err := lru.New[domain.LookupKey, []string](size)
	if err != nil {
		return nil, fmt.Errorf("creating group expansion memo: %w", err)
	}
	return &GroupExpander{
		repository: repository,
		memo:       memo,
		logger:     logger,
	}, nil
}

// Expand returns the distinct, sorted member alleles of a group. A leading '*'
// is ignored; an unknown group is an UnrecognizedTypingError.
func (e *GroupExpander) Expand(ctx context.Context, locus domain.Locus, groupName, version string) ([]string, error) {
	key := domain.NewLookupKey(locus, groupName, version)
	if key.LookupName == "" {
		return nil, domain.NewValidationError("group_name", "group name is required", groupName)
	}
	kind, ok := typing.Classify(key.LookupName).GroupKind()
	if !ok {
		return nil, domain.NewValidationError("group_name", "not a P, G or small-g group name", groupName)
	}

	if members, found := e.memo.Get(key); found {
		return append([]string(nil), members...), nil
	}

	members, err := e.repository.GroupMembers(ctx, key, kind)
	if err != nil {
		return nil, fmt.Errorf("expanding group %s: %w", key, err)
	}
	if len(members) == 0 {
		return nil, domain.NewUnrecognizedTypingError(key, fmt.Sprintf("unknown %s group", kind))
	}

	members = union(members)
	e.memo.Add(key, members)
	e.logger.WithFields(logrus.Fields{
		"locus":   locus.String(),
		"group":   key.LookupName,
		"version": version,
		"members": len(members),
	}).Debug("Expanded allele group")
	return append([]string(nil), members...), nil
}
