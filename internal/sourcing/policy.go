package sourcing

import (
	"context"
	"fmt"
	"strings"

	cache "github.com/hanpama/graphsync/internal/cache"
	delta "github.com/hanpama/graphsync/internal/delta"
)

// SyncPolicy decides between a full and a delta sync and what state is
// kept between runs.
type SyncPolicy string

const (
	// PolicyAuto picks PolicyWatermark when the remote API exposes its
	// change log, and PolicyFlag otherwise.
	PolicyAuto SyncPolicy = "auto"
	// PolicyFlag runs one full sync and afterwards applies events from a
	// fixed change source.
	PolicyFlag SyncPolicy = "flag"
	// PolicyWatermark compares the remote configuration version and asks
	// the remote change log for events since the last content update.
	PolicyWatermark SyncPolicy = "watermark"
)

func ParsePolicy(s string) (SyncPolicy, error) {
	switch SyncPolicy(strings.ToLower(s)) {
	case "", PolicyAuto:
		return PolicyAuto, nil
	case PolicyFlag:
		return PolicyFlag, nil
	case PolicyWatermark:
		return PolicyWatermark, nil
	}
	return "", fmt.Errorf("unknown sync policy %q", s)
}

// Mode is what a run did.
type Mode string

const (
	ModeFull  Mode = "full"
	ModeDelta Mode = "delta"
)

const (
	sourcedKey   = "SOURCED"
	watermarkKey = "WATERMARK"
)

// CacheKey namespaces a cache key by type prefix, so "Craft_" gives
// "CRAFT_SOURCED".
func CacheKey(prefix, name string) string {
	return strings.ToUpper(prefix) + name
}

// syncState is the per-run view of a policy.
type syncState interface {
	decide(ctx context.Context) (Mode, error)
	changes(ctx context.Context) ([]delta.Event, error)
	commit(ctx context.Context) error
}

type flagState struct {
	cache  cache.Cache
	key    string
	source delta.Source
}

func (s *flagState) decide(ctx context.Context) (Mode, error) {
	var sourced bool
	if _, err := cache.GetJSON(ctx, s.cache, s.key, &sourced); err != nil {
		return "", err
	}
	if sourced {
		return ModeDelta, nil
	}
	return ModeFull, nil
}

func (s *flagState) changes(ctx context.Context) ([]delta.Event, error) {
	return s.source.Changes(ctx, delta.Watermark{})
}

func (s *flagState) commit(ctx context.Context) error {
	return cache.SetJSON(ctx, s.cache, s.key, true)
}

type watermarkState struct {
	cache    cache.Cache
	key      string
	detector *delta.Detector

	stored  delta.Watermark
	current delta.Watermark
}

func (s *watermarkState) decide(ctx context.Context) (Mode, error) {
	current, err := s.detector.State(ctx)
	if err != nil {
		return "", err
	}
	s.current = current

	ok, err := cache.GetJSON(ctx, s.cache, s.key, &s.stored)
	if err != nil {
		return "", err
	}
	if !ok || s.stored.IsZero() || s.stored.ConfigVersion != current.ConfigVersion {
		return ModeFull, nil
	}
	return ModeDelta, nil
}

func (s *watermarkState) changes(ctx context.Context) ([]delta.Event, error) {
	return s.detector.Changes(ctx, s.stored)
}

// commit stores the state read before the run, so changes made while the
// run was in progress are picked up next time.
func (s *watermarkState) commit(ctx context.Context) error {
	return cache.SetJSON(ctx, s.cache, s.key, s.current)
}
