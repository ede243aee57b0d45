// Package proxyselect implements the Proxy Selector (spec.md §4.B): for
// (user, country, campaign), iterate proxy providers by priority, resolve
// each one's exit IP, and skip any reused within the last 24h for that
// (user, campaign) pair.
package proxyselect

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/maypok86/otter"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"

	"github.com/adrotate/suffixcore/internal/apierr"
	"github.com/adrotate/suffixcore/internal/model"
)

// Repo is the subset of internal/store's methods the selector needs.
type Repo interface {
	ListProxyProvidersForUser(userID string) ([]model.ProxyProvider, error)
	IsExitIPUsed(userID, campaignID, exitIP string, now time.Time) (bool, error)
	RecordExitIPUsage(userID, campaignID, exitIP string, now time.Time, ttl time.Duration) error
}

const (
	dedupTTL          = 24 * time.Hour
	ipCheckTimeout    = 5 * time.Second
	connectivityTimeout = 5 * time.Second
	probeCacheSize    = 4096
	probeCacheTTL     = 2 * time.Minute
)

// Selection is a chosen proxy ready for use by the tracker.
type Selection struct {
	Provider  model.ProxyProvider
	Transport *http.Transport
	ExitIP    string
	Fallback  bool // true if selected via the connectivity-probe fallback phase
}

// Selector chooses proxies and records exit-IP usage against Repo.
type Selector struct {
	repo Repo
	// tried remembers (user, campaign, exit IP) keys already found reused
	// within one process's lifetime, so a repeat hit after the IP check
	// skips the IsExitIPUsed lookup — purely a hot-path optimization in
	// front of the SQL dedup ledger, not a second source of truth (the
	// ledger in Repo remains authoritative).
	tried      *xsync.Map[uint64, time.Time]
	probeCache otter.Cache[uint64, bool]
}

// New builds a Selector. Grounded on the teacher's node.LatencyTable
// (otter-backed bounded cache) for the connectivity-probe result cache.
func New(repo Repo) (*Selector, error) {
	cache, err := otter.MustBuilder[uint64, bool](probeCacheSize).
		Cost(func(_ uint64, _ bool) uint32 { return 1 }).
		WithTTL(probeCacheTTL).
		Build()
	if err != nil {
		return nil, fmt.Errorf("proxyselect: build probe cache: %w", err)
	}
	return &Selector{
		repo:       repo,
		tried:      xsync.NewMap[uint64, time.Time](),
		probeCache: cache,
	}, nil
}

func dedupCacheKey(userID, campaignID, exitIP string) uint64 {
	return xxh3.HashString(userID + "\x00" + campaignID + "\x00" + exitIP)
}

// Select runs the selection loop (spec.md §4.B steps 1-5), falling back to
// a connectivity-probe phase if every provider's exit IP is already used
// within the 24h window (step "fallback phase").
func (s *Selector) Select(ctx context.Context, userID, countryCode, campaignID string) (*Selection, error) {
	providers, err := s.repo.ListProxyProvidersForUser(userID)
	if err != nil {
		return nil, apierr.Wrap(apierr.InternalError, "list proxy providers", err)
	}
	if len(providers) == 0 {
		return nil, apierr.New(apierr.NoProxyAvailable, "no proxy providers configured for user")
	}

	now := time.Now()

	for _, p := range providers {
		username := RenderUsername(p.UsernameTemplate, countryCode)
		transport, err := transportFor(p, username)
		if err != nil {
			continue
		}

		exitIP, err := resolveExitIP(ctx, transport, ipCheckTimeout)
		if err != nil || exitIP == "" {
			continue
		}

		key := dedupCacheKey(userID, campaignID, exitIP)
		if reusedAt, ok := s.tried.Load(key); ok && now.Sub(reusedAt) < dedupTTL {
			continue // already known reused this window, skip the DB round-trip
		}

		used, err := s.repo.IsExitIPUsed(userID, campaignID, exitIP, now)
		if err != nil {
			continue
		}
		if used {
			s.tried.Store(key, now)
			continue // "IP reused" — advance to next provider
		}

		return &Selection{Provider: p, Transport: transport, ExitIP: exitIP}, nil
	}

	return s.fallback(ctx, providers)
}

// fallback retries each provider with a simple connectivity probe and
// returns the first reachable one carrying a synthetic "unknown" exit-IP
// marker. Per spec.md §4.B / §9's Open Question resolution, this path MUST
// NOT call RecordExitIPUsage — the caller must not either.
func (s *Selector) fallback(ctx context.Context, providers []model.ProxyProvider) (*Selection, error) {
	for _, p := range providers {
		providerKey := uint64(p.ID)
		if ok, found := s.probeCache.Get(providerKey); found && !ok {
			continue // probed unreachable recently, don't retry within the TTL
		}

		username := RenderUsername(p.UsernameTemplate, "")
		transport, err := transportFor(p, username)
		if err != nil {
			continue
		}
		reachable := probeConnectivity(ctx, transport, connectivityTimeout)
		s.probeCache.Set(providerKey, reachable)
		if reachable {
			return &Selection{Provider: p, Transport: transport, ExitIP: "unknown", Fallback: true}, nil
		}
	}
	return nil, apierr.New(apierr.NoProxyAvailable, "all proxies failed including fallback")
}

// RecordUsage inserts the 24h dedup row for a successful downstream use
// (spec.md §4.B "Recording"). Never call this for a Fallback selection.
func (s *Selector) RecordUsage(userID, campaignID string, sel *Selection, now time.Time) error {
	if sel.Fallback {
		return nil
	}
	return s.repo.RecordExitIPUsage(userID, campaignID, sel.ExitIP, now, dedupTTL)
}
