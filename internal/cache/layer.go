// Package cache memoises resolved metadata per (namespace, lookup key). Keys
// carry the nomenclature version, so each version is a disjoint key space and
// nothing is ever invalidated.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/hla-metadata-dictionary/internal/domain"
)

// Namespace separates the metadata flavors sharing one cache.
type Namespace string

const (
	NamespaceMatching          Namespace = "matching"
	NamespaceScoring           Namespace = "scoring"
	NamespaceTceGroup          Namespace = "tce-group"
	NamespaceSmallGGroup       Namespace = "small-g-group"
	NamespaceGGroupToPGroup    Namespace = "g-group-to-p-group"
	NamespaceSmallGToPGroup    Namespace = "small-g-group-to-p-group"
	NamespaceSerologyToAlleles Namespace = "serology-to-alleles"
	NamespaceAlleleNames       Namespace = "allele-names"
	NamespaceAlleleLevelNames  Namespace = "allele-level-names"
)

// Namespaces lists every namespace in a stable order.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceMatching,
		NamespaceScoring,
		NamespaceTceGroup,
		NamespaceSmallGGroup,
		NamespaceGGroupToPGroup,
		NamespaceSmallGToPGroup,
		NamespaceSerologyToAlleles,
		NamespaceAlleleNames,
		NamespaceAlleleLevelNames,
	}
}

// Key identifies one cached value.
type Key struct {
	Namespace Namespace
	Lookup    domain.LookupKey
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Namespace, k.Lookup.Version, k.Lookup.Locus, k.Lookup.LookupName)
}

// Config configures a Layer.
type Config struct {
	// MemorySize bounds the in-process tier. Eviction only costs a recomputation.
	MemorySize int
	// Redis is the optional shared tier.
	Redis *RedisTier
}

// Stats is a snapshot of cache activity.
type Stats struct {
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	RedisHits    int64 `json:"redis_hits"`
	RedisMisses  int64 `json:"redis_misses"`
	RedisErrors  int64 `json:"redis_errors"`
	Writes       int64 `json:"writes"`
}

// Layer is a read-through cache with an in-memory LRU tier in front of an optional Redis tier.
type Layer struct {
	memory   *lru.Cache[Key, any]
	redis    *RedisTier
	logger   *logrus.Logger
	requests *prometheus.CounterVec

	memoryHits   atomic.Int64
	memoryMisses atomic.Int64
	redisHits    atomic.Int64
	redisMisses  atomic.Int64
	redisErrors  atomic.Int64
	writes       atomic.Int64
}

// NewLayer creates a cache layer.
func NewLayer(config Config, logger *logrus.Logger) (*Layer, error) {
	if config.MemorySize <= 0 {
		config.MemorySize = 100000
	}

	memory, err := lru.New[Key, any](config.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &Layer{
		memory: memory,
		redis:  config.Redis,
		logger: logger,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hla_metadata",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by namespace, tier and result.",
		}, []string{"namespace", "tier", "result"}),
	}, nil
}

// Collectors returns the layer's metrics for registration.
func (l *Layer) Collectors() []prometheus.Collector {
	return []prometheus.Collector{l.requests}
}

// Stats returns a snapshot of cache activity.
func (l *Layer) Stats() Stats {
	return Stats{
		MemoryHits:   l.memoryHits.Load(),
		MemoryMisses: l.memoryMisses.Load(),
		RedisHits:    l.redisHits.Load(),
		RedisMisses:  l.redisMisses.Load(),
		RedisErrors:  l.redisErrors.Load(),
		Writes:       l.writes.Load(),
	}
}

// Len returns the number of entries in the memory tier.
func (l *Layer) Len() int {
	return l.memory.Len()
}

// Get looks a value up in the memory tier, then the Redis tier. A Redis hit is
// promoted to memory. Redis failures are logged and reported as misses.
func Get[T any](ctx context.Context, l *Layer, key Key) (T, bool) {
	var zero T

	if value, ok := l.memory.Get(key); ok {
		if typed, ok := value.(T); ok {
			l.memoryHits.Add(1)
			l.requests.WithLabelValues(string(key.Namespace), "memory", "hit").Inc()
			return typed, true
		}
		l.memory.Remove(key)
	}
	l.memoryMisses.Add(1)
	l.requests.WithLabelValues(string(key.Namespace), "memory", "miss").Inc()

	if l.redis == nil {
		return zero, false
	}

	data, found, err := l.redis.Get(ctx, key)
	if err != nil {
		l.redisErrors.Add(1)
		l.logger.WithFields(logrus.Fields{
			"cache_key": key.String(),
			"error":     err,
		}).Warn("Redis cache read failed")
		return zero, false
	}
	if !found {
		l.redisMisses.Add(1)
		l.requests.WithLabelValues(string(key.Namespace), "redis", "miss").Inc()
		return zero, false
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		l.redisErrors.Add(1)
		l.logger.WithFields(logrus.Fields{
			"cache_key": key.String(),
			"error":     err,
		}).Warn("Discarding undecodable Redis cache entry")
		return zero, false
	}

	l.redisHits.Add(1)
	l.requests.WithLabelValues(string(key.Namespace), "redis", "hit").Inc()
	l.memory.Add(key, value)
	l.logger.WithField("cache_key", key.String()).Debug("Cache hit in Redis")
	return value, true
}

// Set stores a value in every tier. Writing an equal value twice is harmless.
func Set[T any](ctx context.Context, l *Layer, key Key, value T) {
	l.memory.Add(key, value)
	l.writes.Add(1)

	if l.redis == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		l.redisErrors.Add(1)
		l.logger.WithFields(logrus.Fields{
			"cache_key": key.String(),
			"error":     err,
		}).Warn("Failed to encode value for Redis cache")
		return
	}
	if err := l.redis.Set(ctx, key, data); err != nil {
		l.redisErrors.Add(1)
		l.logger.WithFields(logrus.Fields{
			"cache_key": key.String(),
			"error":     err,
		}).Warn("Redis cache write failed")
	}
}
