// Package agents lists and manages agent versions.
//
// Listing goes through an ordered chain of sources. Each source either
// produces a non-empty listing or hands over to the next one; the last
// source serves configured placeholder versions and never fails.
package agents

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
	"github.com/ziadkadry99/opsdash/internal/metrics"
)

// Source names the strategy that produced a listing.
type Source string

const (
	SourcePrimary          Source = "primary"
	SourcePrimaryAnonymous Source = "primary-anonymous"
	SourceAlternate        Source = "alternate-origin"
	SourcePlaceholder      Source = "placeholder"
)

var (
	errEmpty   = errors.New("empty version list")
	errSkipped = errors.New("strategy not applicable")
)

// Listing is the result of resolving the version list.
type Listing struct {
	Versions []apiclient.AgentVersion
	Default  string
	Source   Source
}

// Attempt records one strategy that did not produce the listing.
type Attempt struct {
	Source Source
	Err    error
}

// Strategy is one step of the fallback chain. prev is the error of the
// step before it, nil for the first step.
type Strategy interface {
	Source() Source
	Fetch(ctx context.Context, prev error) (*Listing, error)
}

// Chain tries strategies in order until one yields versions.
type Chain struct {
	strategies []Strategy
}

// ChainConfig configures NewChain.
type ChainConfig struct {
	// AltOrigin is the alternate backend origin, empty to skip that step.
	AltOrigin           string
	PlaceholderVersions []string
	PlaceholderDefault  string
}

// NewChain builds the standard chain: primary, primary without credentials
// (after a 401 only), alternate origin, placeholder.
func NewChain(client *apiclient.Client, cfg ChainConfig) *Chain {
	strategies := []Strategy{
		primary{client: client},
		primaryAnonymous{client: client},
	}
	if cfg.AltOrigin != "" {
		strategies = append(strategies, alternate{client: client.Anonymous().WithOrigin(cfg.AltOrigin)})
	}
	strategies = append(strategies, placeholder{versions: cfg.PlaceholderVersions, def: cfg.PlaceholderDefault})
	return &Chain{strategies: strategies}
}

// NewChainOf builds a chain from explicit strategies.
func NewChainOf(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Resolve returns the first non-empty listing along with the attempts that
// failed before it. A default reported next to an empty list is carried
// over to a later listing when it names one of its versions. It returns an
// error only when every strategy failed, which the placeholder step of the
// standard chain prevents.
func (c *Chain) Resolve(ctx context.Context) (*Listing, []Attempt, error) {
	var (
		prev        error
		attempts    []Attempt
		seenDefault string
	)
	for _, s := range c.strategies {
		listing, err := s.Fetch(ctx, prev)
		if err == nil && len(listing.Versions) == 0 {
			if seenDefault == "" {
				seenDefault = listing.Default
			}
			err = errEmpty
		}
		if err != nil {
			if !errors.Is(err, errSkipped) {
				attempts = append(attempts, Attempt{Source: s.Source(), Err: err})
				log.Debug().Err(err).Str("source", string(s.Source())).Msg("agent version source failed")
			}
			prev = err
			if ctx.Err() != nil {
				return nil, attempts, ctx.Err()
			}
			continue
		}

		listing.Source = s.Source()
		listing.Versions = Dedupe(listing.Versions)
		if seenDefault != "" && hasVersion(listing.Versions, seenDefault) && (listing.Default == "" || listing.Source == SourcePlaceholder) {
			listing.Default = seenDefault
		}
		metrics.AgentVersionsSource.WithLabelValues(string(listing.Source)).Inc()
		return listing, attempts, nil
	}
	return nil, attempts, fmt.Errorf("no agent version source succeeded: %w", prev)
}

// fetchListing loads versions and the default from one origin. A default
// that fails to load leaves Default empty; a 401 on it is retried once
// without credentials when anon is non-nil.
func fetchListing(ctx context.Context, c, anon *apiclient.Client) (*Listing, error) {
	versions, err := c.ListAgentVersions(ctx)
	if err != nil {
		return nil, err
	}
	l := &Listing{Versions: versions}

	def, err := c.DefaultVersion(ctx)
	if err != nil && anon != nil && apiclient.IsUnauthorized(err) {
		def, err = anon.DefaultVersion(ctx)
	}
	if err == nil {
		l.Default = def
	}
	return l, nil
}

type primary struct{ client *apiclient.Client }

func (primary) Source() Source { return SourcePrimary }

func (p primary) Fetch(ctx context.Context, _ error) (*Listing, error) {
	var anon *apiclient.Client
	if p.client.Authenticated() {
		anon = p.client.Anonymous()
	}
	return fetchListing(ctx, p.client, anon)
}

type primaryAnonymous struct{ client *apiclient.Client }

func (primaryAnonymous) Source() Source { return SourcePrimaryAnonymous }

func (p primaryAnonymous) Fetch(ctx context.Context, prev error) (*Listing, error) {
	if !p.client.Authenticated() || !apiclient.IsUnauthorized(prev) {
		return nil, errSkipped
	}
	return fetchListing(ctx, p.client.Anonymous(), nil)
}

type alternate struct{ client *apiclient.Client }

func (alternate) Source() Source { return SourceAlternate }

func (a alternate) Fetch(ctx context.Context, _ error) (*Listing, error) {
	return fetchListing(ctx, a.client, nil)
}

type placeholder struct {
	versions []string
	def      string
}

func (placeholder) Source() Source { return SourcePlaceholder }

func (p placeholder) Fetch(context.Context, error) (*Listing, error) {
	l := &Listing{Default: p.def}
	for _, v := range p.versions {
		l.Versions = append(l.Versions, apiclient.AgentVersion{Version: v})
	}
	return l, nil
}

func hasVersion(versions []apiclient.AgentVersion, version string) bool {
	return slices.ContainsFunc(versions, func(v apiclient.AgentVersion) bool { return v.Version == version })
}

// Dedupe drops repeated versions, keeping the first occurrence.
func Dedupe(versions []apiclient.AgentVersion) []apiclient.AgentVersion {
	seen := make(map[string]bool, len(versions))
	out := make([]apiclient.AgentVersion, 0, len(versions))
	for _, v := range versions {
		if seen[v.Version] {
			continue
		}
		seen[v.Version] = true
		out = append(out, v)
	}
	return out
}
