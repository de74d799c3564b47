package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/hla-metadata-dictionary/internal/cache"
	"github.com/hla-metadata-dictionary/internal/domain"
	"github.com/hla-metadata-dictionary/pkg/typing"
)

// Resolution outcomes recorded by the pipeline.
const (
	outcomeCacheHit     = "cache_hit"
	outcomeResolved     = "resolved"
	outcomeInvalid      = "invalid"
	outcomeUnrecognized = "unrecognized"
	outcomeFailed       = "failed"
)

// flavor supplies the parts of a resolution that differ per metadata kind.
// R is the row type fetched for a key, T the consolidated result.
type flavor[R, T any] struct {
	namespace cache.Namespace

	// accepts rejects a locus or category the flavor cannot serve. nil accepts everything.
	accepts func(locus domain.Locus, category domain.TypingCategory) error

	// fetch returns the rows behind a key; no rows means the typing is unknown.
	fetch func(ctx context.Context, key domain.LookupKey, category domain.TypingCategory) ([]R, error)

	// consolidate reduces a non-empty row set to the result.
	consolidate func(key domain.LookupKey, category domain.TypingCategory, rows []R) (T, error)
}

// pipeline holds what every flavor shares: the cache, in-flight coalescing,
// logging and outcome metrics.
type pipeline struct {
	cache    *cache.Layer
	flight   singleflight.Group
	logger   *logrus.Logger
	outcomes *prometheus.CounterVec
}

func newPipeline(layer *cache.Layer, logger *logrus.Logger) *pipeline {
	return &pipeline{
		cache:  layer,
		logger: logger,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hla_metadata",
			Name:      "resolutions_total",
			Help:      "Typing resolutions by metadata namespace and outcome.",
		}, []string{"namespace", "outcome"}),
	}
}

// resolve runs validate, format, classify, cache lookup, fetch, consolidate
// and cache store for one flavor. Only successful results are cached.
func resolve[R, T any](ctx context.Context, p *pipeline, f flavor[R, T], locus domain.Locus, rawName, version string) (T, error) {
	var zero T

	key, category, err := validateLookup(locus, rawName, version)
	if err == nil && f.accepts != nil {
		err = f.accepts(locus, category)
	}
	if err != nil {
		p.outcomes.WithLabelValues(string(f.namespace), outcomeInvalid).Inc()
		return zero, err
	}

	ctx, resolutionID := ensureResolutionID(ctx)
	log := p.logger.WithFields(logrus.Fields{
		"resolution_id": resolutionID,
		"namespace":     string(f.namespace),
		"locus":         locus.String(),
		"name":          key.LookupName,
		"version":       version,
		"category":      category.String(),
	})

	cacheKey := cache.Key{Namespace: f.namespace, Lookup: key}
	if cached, found := cache.Get[T](ctx, p.cache, cacheKey); found {
		p.outcomes.WithLabelValues(string(f.namespace), outcomeCacheHit).Inc()
		log.Debug("Resolved typing from cache")
		return cloneResult(cached), nil
	}

	compute := func(ctx context.Context) (T, error) {
		rows, err := f.fetch(ctx, key, category)
		if err != nil {
			return zero, err
		}
		if len(rows) == 0 {
			return zero, domain.NewUnrecognizedTypingError(key, "")
		}
		result, err := f.consolidate(key, category, rows)
		if err != nil {
			return zero, err
		}
		cache.Set(ctx, p.cache, cacheKey, result)
		return result, nil
	}

	result, err := coalesce(ctx, p, cacheKey.String(), compute)
	switch {
	case err == nil:
		p.outcomes.WithLabelValues(string(f.namespace), outcomeResolved).Inc()
		log.Debug("Resolved typing")
		return cloneResult(result), nil
	case domain.IsValidationError(err):
		p.outcomes.WithLabelValues(string(f.namespace), outcomeInvalid).Inc()
		return zero, err
	case domain.IsUnrecognizedTyping(err):
		p.outcomes.WithLabelValues(string(f.namespace), outcomeUnrecognized).Inc()
		log.WithError(err).Debug("Typing not recognised")
		return zero, err
	}

	p.outcomes.WithLabelValues(string(f.namespace), outcomeFailed).Inc()
	log.WithError(err).Error("Failed to resolve typing")
	return zero, domain.NewResolutionError(locus, key.LookupName, err)
}

// coalesce runs compute once per key across concurrent callers. A caller whose
// context is still live retries on its own if the shared run was cancelled by
// another caller's context.
func coalesce[T any](ctx context.Context, p *pipeline, key string, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	ch := p.flight.DoChan(key, func() (interface{}, error) {
		return compute(ctx)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if isContextError(res.Err) && ctx.Err() == nil {
				return compute(ctx)
			}
			return zero, res.Err
		}
		value, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("coalesced result for %s has type %T", key, res.Val)
		}
		return value, nil
	}
}

func validateLookup(locus domain.Locus, rawName, version string) (domain.LookupKey, domain.TypingCategory, error) {
	if !locus.IsValid() {
		return domain.LookupKey{}, 0, domain.NewValidationError("locus", "unknown locus", locus)
	}
	if version == "" {
		return domain.LookupKey{}, 0, domain.NewValidationError("version", "nomenclature version is required", version)
	}
	key := domain.NewLookupKey(locus, rawName, version)
	if key.LookupName == "" {
		return domain.LookupKey{}, 0, domain.NewValidationError("name", "typing name is required", rawName)
	}
	return key, typing.Classify(key.LookupName), nil
}

// cloneResult copies results that share slices with the cache entry and with
// other callers of the same coalesced lookup.
func cloneResult[T any](result T) T {
	if c, ok := any(result).(interface{ Clone() T }); ok {
		return c.Clone()
	}
	return result
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// acceptCategories builds an accepts predicate allowing only the listed categories.
func acceptCategories(field string, allowed ...domain.TypingCategory) func(domain.Locus, domain.TypingCategory) error {
	return func(_ domain.Locus, category domain.TypingCategory) error {
		for _, candidate := range allowed {
			if category == candidate {
				return nil
			}
		}
		return domain.NewValidationError(field, fmt.Sprintf("typing category %s is not supported", category), category.String())
	}
}
