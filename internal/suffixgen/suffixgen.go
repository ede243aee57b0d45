// Package suffixgen implements the Suffix Generator (spec.md §4.C): drive a
// redirect trace through a selected proxy and derive a final-URL-suffix from
// the resulting landing URL's query string.
package suffixgen

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/adrotate/suffixcore/internal/apierr"
	"github.com/adrotate/suffixcore/internal/proxyselect"
	"github.com/adrotate/suffixcore/internal/tracker"
)

// Params is one generation request (spec.md §4.C step 2's fixed trace
// parameters, plus the caller-supplied target).
type Params struct {
	UserID       string
	CampaignID   string
	CountryCode  string
	AffiliateURL string
	TargetDomain string
}

// Result is a single successful (or mock) generation.
type Result struct {
	Suffix  string
	ExitIP  string
	Mock    bool
	Trace   tracker.Result
}

const (
	defaultReferer       = "https://t.co"
	defaultMaxRedirects  = 15
	defaultRequestTimeout = 25 * time.Second
	defaultTotalTimeout   = 90 * time.Second
	defaultRetryCount     = 1
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Generator combines a proxyselect.Selector and the tracker's pure Trace
// function into the full suffix-derivation algorithm.
type Generator struct {
	selector   *proxyselect.Selector
	mockMode   func() bool // reads the live config flag at call time, not at construction
	maxAttempts int
}

// New builds a Generator. mockMode is polled on each call rather than
// captured once, so a live config toggle (spec.md §4.K) takes effect
// immediately without rebuilding the generator.
func New(selector *proxyselect.Selector, mockMode func() bool) *Generator {
	return &Generator{selector: selector, mockMode: mockMode, maxAttempts: 5}
}

// Generate runs the proxy-iteration loop from spec.md §4.C: acquire a proxy,
// trace through it, derive the suffix from the final URL's query string, and
// on failure advance to the next proxy (bounded by maxAttempts).
func (g *Generator) Generate(ctx context.Context, p Params) (*Result, error) {
	if g.mockMode != nil && g.mockMode() {
		return mockResult(), nil
	}

	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		sel, err := g.selector.Select(ctx, p.UserID, p.CountryCode, p.CampaignID)
		if err != nil {
			return nil, err // NO_PROXY_AVAILABLE or an internal selector failure — no more proxies to try
		}

		transport := sel.Transport
		traceResult := tracker.Trace(ctx, tracker.Request{
			URL:            p.AffiliateURL,
			Proxy:          roundTripper{transport},
			TargetDomain:   p.TargetDomain,
			InitialReferer: defaultReferer,
			MaxRedirects:   defaultMaxRedirects,
			RequestTimeout: defaultRequestTimeout,
			TotalTimeout:   defaultTotalTimeout,
			RetryCount:     defaultRetryCount,
			UserAgent:      defaultUserAgent,
		})

		if !traceResult.Success {
			lastErr = apierr.New(apierr.RedirectTrackFailed, traceResult.ErrorMessage)
			continue // step 5: advance to the next proxy
		}

		suffix := deriveSuffix(traceResult.FinalURL)
		if suffix == "" {
			suffix = syntheticGclid()
		}

		if err := g.selector.RecordUsage(p.UserID, p.CampaignID, sel, time.Now()); err != nil {
			return nil, apierr.Wrap(apierr.InternalError, "record proxy usage", err)
		}

		return &Result{Suffix: suffix, ExitIP: sel.ExitIP, Trace: traceResult}, nil
	}

	if lastErr == nil {
		lastErr = apierr.New(apierr.RedirectTrackFailed, "exhausted proxy attempts")
	}
	return nil, lastErr
}

// deriveSuffix extracts the substring of the final URL after '?' and before
// any '#' fragment (spec.md §4.C step 3).
func deriveSuffix(finalURL string) string {
	idx := strings.IndexByte(finalURL, '?')
	if idx < 0 {
		return ""
	}
	rest := finalURL[idx+1:]
	if h := strings.IndexByte(rest, '#'); h >= 0 {
		rest = rest[:h]
	}
	return rest
}

// syntheticGclid fabricates a plausible gclid query string when the traced
// landing page carries no query parameters of its own (spec.md §4.C: "if the
// final URL carries no query string, synthesize a gclid-shaped fallback").
func syntheticGclid() string {
	return "gclid=" + randomToken(22)
}

const gclidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

func randomToken(n int) string {
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(gclidAlphabet))))
		if err != nil {
			b[i] = gclidAlphabet[0]
			continue
		}
		b[i] = gclidAlphabet[idx.Int64()]
	}
	return string(b)
}

// mockResult synthesizes a Result without any network activity, for the
// AllowMockSuffix feature flag (spec.md §4.C Non-goals carve-out / §4.K).
func mockResult() *Result {
	return &Result{
		Suffix: syntheticGclid(),
		ExitIP: "mock",
		Mock:   true,
	}
}

// roundTripper adapts *http.Transport to tracker.Dialer explicitly — the
// method set already matches, this just documents the seam at the call site.
type roundTripper struct{ t *http.Transport }

func (r roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return r.t.RoundTrip(req)
}
