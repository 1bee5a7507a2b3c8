package discovery

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"novelhub/internal/cache"
)

// Pattern is one invalidation criterion: either a literal substring or a
// regular expression. Patterns in a request are OR'd together.
type Pattern struct {
	literal string
	re      *regexp.Regexp
}

func Literal(s string) Pattern { return Pattern{literal: s} }

func Regex(re *regexp.Regexp) Pattern { return Pattern{re: re} }

func (p Pattern) Match(key string) bool {
	if p.re != nil {
		return p.re.MatchString(key)
	}
	return strings.Contains(key, p.literal)
}

// InvalidateOptions narrow a selective invalidation request.
type InvalidateOptions struct {
	// DataTypes restricts the sweep to these coarse cache categories;
	// empty means every registered key is considered.
	DataTypes []string
	// Tags are extra OR'd substring matches, independent of Patterns.
	Tags []string
	// OlderThan, when set, also invalidates entries whose stored write
	// timestamp is before the cutoff.
	OlderThan time.Time
}

// SelectiveInvalidate removes cache entries matching the given criteria
// and returns the keys it invalidated, in no guaranteed order.
//
// A key qualifies when any of these hold:
//   - no patterns were supplied and the key's data type matches one of
//     the requested DataTypes (pure type sweep);
//   - any pattern matches the key;
//   - any tag substring is contained in the key;
//   - OlderThan is set and the cached value's embedded timestamp is older.
//
// The age check needs the value, not just the key, so it reads the entry
// before deleting. Qualifying keys are deleted from both cache tiers, the
// two deletes issued concurrently per key.
func (s *DataService) SelectiveInvalidate(ctx context.Context, patterns []Pattern, opts InvalidateOptions) []string {
	keys := s.candidateKeys(opts.DataTypes)

	invalidated := make([]string, 0, len(keys))
	for _, key := range keys {
		if !s.qualifies(ctx, key, patterns, opts) {
			continue
		}
		s.deleteBothTiers(ctx, key)
		invalidated = append(invalidated, key)
	}
	return invalidated
}

func (s *DataService) candidateKeys(dataTypes []string) []string {
	if len(dataTypes) == 0 {
		return s.cache.AllKeys("")
	}

	var keys []string
	for _, dataType := range dataTypes {
		keys = append(keys, s.cache.AllKeys(dataType)...)
	}
	return keys
}

func (s *DataService) qualifies(ctx context.Context, key string, patterns []Pattern, opts InvalidateOptions) bool {
	// (a) type-based sweep when no patterns were given
	if len(patterns) == 0 && len(opts.DataTypes) > 0 {
		keyType := s.dataTypeOf(key)
		for _, dataType := range opts.DataTypes {
			if keyType == dataType {
				return true
			}
		}
	}

	// (b) any pattern matches
	for _, pattern := range patterns {
		if pattern.Match(key) {
			return true
		}
	}

	// (c) any tag substring matches
	for _, tag := range opts.Tags {
		if strings.Contains(key, tag) {
			return true
		}
	}

	// (d) entry older than the cutoff; requires reading the value
	if !opts.OlderThan.IsZero() {
		entry, err := s.cache.Get(ctx, key, s.dataTypeOf(key))
		if err != nil {
			logf("age check read %s failed: %v", key, err)
			return false
		}
		if entry != nil && entry.Timestamp.Before(opts.OlderThan) {
			return true
		}
	}

	return false
}

// deleteBothTiers issues the memory and persistent deletes together; a
// key left in only one tier is not an acceptable end state. Tier errors
// are logged and swallowed: a lost invalidation is a staleness risk, not
// a correctness risk.
func (s *DataService) deleteBothTiers(ctx context.Context, key string) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.cache.Memory().Delete(ctx, key); err != nil {
			logf("memory delete %s failed: %v", key, err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.cache.Persistent().Delete(ctx, key); err != nil {
			logf("persistent delete %s failed: %v", key, err)
		}
	}()
	wg.Wait()

	s.cache.Unregister(key)
}

// dataTypeOf prefers the type stored with the entry and only falls back
// to inferring it from the key name.
func (s *DataService) dataTypeOf(key string) string {
	if dataType, ok := s.cache.DataTypeOf(key); ok {
		return dataType
	}
	return inferDataTypeFromKey(key)
}

// inferDataTypeFromKey guesses a coarse category from the key name.
// Fallback heuristic only: a key that dodges every substring check lands
// in "dynamic".
func inferDataTypeFromKey(key string) string {
	switch {
	case strings.Contains(key, "discovery_"),
		strings.Contains(key, "trending"),
		strings.Contains(key, "novels"):
		return cache.TypeDiscovery
	case strings.HasPrefix(key, "user_"):
		return cache.TypeUser
	case strings.Contains(key, "stats"),
		strings.Contains(key, "metadata"),
		strings.Contains(key, "chapters"):
		return cache.TypeStats
	default:
		return cache.TypeDynamic
	}
}
