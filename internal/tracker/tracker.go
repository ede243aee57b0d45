// Package tracker implements the Redirect Tracker (spec.md §4.A): given a
// starting URL, follow HTTP 3xx / meta-refresh / JS-location redirects
// through a single proxy, sequentially, with an early stop on target-domain
// match.
package tracker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Dialer abstracts the proxy dial used for this single trace — a thin seam
// so internal/proxyselect can hand in a SOCKS5-backed *http.Transport
// without this package importing golang.org/x/net/proxy itself.
type Dialer interface {
	RoundTrip(req *http.Request) (*http.Response, error)
}

// Request is the tracker's input contract (spec.md §4.A).
type Request struct {
	URL            string
	Proxy          Dialer
	TargetDomain    string
	InitialReferer  string
	MaxRedirects    int
	RequestTimeout  time.Duration
	TotalTimeout    time.Duration
	RetryCount      int
	UserAgent       string
}

// Step records one hop of the trace.
type Step struct {
	URL        string
	StatusCode int
	Method     string // "http", "meta-refresh", "js-redirect"
}

// Result is the tracker's output contract (spec.md §4.A).
type Result struct {
	Success         bool
	FinalURL        string
	FinalStatusCode int
	RedirectCount   int
	Chain           []string
	Steps           []Step
	Duration        time.Duration
	DomainMatched   bool
	ErrorMessage    string
	EarlyStop       bool
}

// retryableSubstrings classifies transient network failures subject to
// linear backoff (spec.md §4.A step 4: "abort/ECONNRESET/ETIMEDOUT/ENOTFOUND
// classes").
var retryableSubstrings = []string{
	"connection reset", "econnreset", "etimedout", "i/o timeout",
	"enotfound", "no such host", "context deadline exceeded", "EOF",
	"connection refused",
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// Trace runs the per-step algorithm described in spec.md §4.A. Execution is
// strictly sequential — there is no parallelism within one trace.
func Trace(ctx context.Context, req Request) Result {
	start := time.Now()
	deadline := start.Add(req.TotalTimeout)

	currentURL := req.URL
	referer := req.InitialReferer

	var chain []string
	var steps []Step

	for step := 1; ; step++ {
		if time.Now().After(deadline) {
			return finish(start, chain, steps, false, "", 0, false, fmt.Sprintf("%s: total timeout exceeded", "TOTAL_TIMEOUT"))
		}

		if step > 1 && req.TargetDomain != "" && SameRootDomain(currentURL, req.TargetDomain) {
			chain = append(chain, currentURL)
			return finish(start, chain, steps, true, currentURL, 0, true, "")
		}

		if step > req.MaxRedirects {
			return finish(start, chain, steps, false, currentURL, 0, false, "REDIRECT_TRACK_FAILED: exceeded max redirects")
		}

		chain = append(chain, currentURL)

		resp, body, statusCode, err := fetchOnce(ctx, req, currentURL, referer, deadline)
		if err != nil {
			return finish(start, chain, steps, false, currentURL, statusCode, false, err.Error())
		}

		if statusCode >= 300 && statusCode < 400 {
			loc := resp.Header.Get("Location")
			next, ok := resolveLocation(currentURL, loc)
			if !ok {
				return finish(start, chain, steps, false, currentURL, statusCode, false, "REDIRECT_TRACK_FAILED: invalid or unsupported Location header")
			}
			steps = append(steps, Step{URL: currentURL, StatusCode: statusCode, Method: "http"})
			referer = currentURL
			currentURL = next
			continue
		}

		if statusCode >= 400 {
			snippet := body
			if len(snippet) > 500 {
				snippet = snippet[:500]
			}
			return finish(start, chain, steps, false, currentURL, statusCode,
				false, fmt.Sprintf("REDIRECT_TRACK_FAILED: http %d: %s", statusCode, snippet))
		}

		// 2xx: inspect body for in-page redirects.
		contentType := resp.Header.Get("Content-Type")
		if strings.Contains(contentType, "html") {
			if next := findMetaRefresh(body); next != "" && !isSelfLoop(currentURL, next) {
				next, ok := resolveLocation(currentURL, next)
				if ok {
					steps = append(steps, Step{URL: currentURL, StatusCode: statusCode, Method: "meta-refresh"})
					referer = currentURL
					currentURL = next
					continue
				}
			}
			if next := findJSRedirect(body); next != "" && !isSelfLoop(currentURL, next) {
				next, ok := resolveLocation(currentURL, next)
				if ok {
					steps = append(steps, Step{URL: currentURL, StatusCode: statusCode, Method: "js-redirect"})
					referer = currentURL
					currentURL = next
					continue
				}
			}
		}

		// Terminal success: 2xx with no further in-body redirect, or non-HTML.
		steps = append(steps, Step{URL: currentURL, StatusCode: statusCode, Method: "http"})
		return finish(start, chain, steps, true, currentURL, statusCode, false, "")
	}
}

func isSelfLoop(current, next string) bool {
	return normalizeHost(current) == normalizeHost(next) && current == next
}

func finish(start time.Time, chain []string, steps []Step, success bool, finalURL string, statusCode int, earlyStop bool, errMsg string) Result {
	return Result{
		Success:         success,
		FinalURL:        finalURL,
		FinalStatusCode: statusCode,
		RedirectCount:   len(steps),
		Chain:           chain,
		Steps:           steps,
		Duration:        time.Since(start),
		EarlyStop:       earlyStop,
		ErrorMessage:    errMsg,
	}
}

// fetchOnce performs one GET with redirect=manual through req.Proxy,
// retrying up to req.RetryCount times on retryable classes with linear
// backoff (100ms × attempt), per spec.md §4.A step 4.
func fetchOnce(ctx context.Context, req Request, currentURL, referer string, deadline time.Time) (*http.Response, string, int, error) {
	var lastErr error
	for attempt := 0; attempt <= req.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 100 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, "", 0, fmt.Errorf("TIMEOUT: %w", ctx.Err())
			}
		}

		stepCtx, cancel := context.WithTimeout(ctx, req.RequestTimeout)
		httpReq, err := http.NewRequestWithContext(stepCtx, http.MethodGet, currentURL, nil)
		if err != nil {
			cancel()
			return nil, "", 0, fmt.Errorf("REDIRECT_TRACK_FAILED: build request: %w", err)
		}
		if referer != "" {
			httpReq.Header.Set("Referer", referer)
		}
		if req.UserAgent != "" {
			httpReq.Header.Set("User-Agent", req.UserAgent)
		}

		resp, err := req.Proxy.RoundTrip(httpReq)
		if err != nil {
			cancel()
			lastErr = err
			if time.Now().After(deadline) {
				return nil, "", 0, fmt.Errorf("TOTAL_TIMEOUT: %w", err)
			}
			if isRetryable(err) && attempt < req.RetryCount {
				continue
			}
			return nil, "", 0, fmt.Errorf("PROXY_UNAVAILABLE: %w", err)
		}

		body, readErr := readLimited(resp.Body, 1<<20)
		resp.Body.Close()
		cancel()
		if readErr != nil {
			lastErr = readErr
			if isRetryable(readErr) && attempt < req.RetryCount {
				continue
			}
			return nil, "", 0, fmt.Errorf("REDIRECT_TRACK_FAILED: read body: %w", readErr)
		}

		return resp, body, resp.StatusCode, nil
	}
	return nil, "", 0, fmt.Errorf("REDIRECT_TRACK_FAILED: retries exhausted: %w", lastErr)
}

func readLimited(r io.Reader, max int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, max))
	return string(data), err
}

// resolveLocation resolves a Location/redirect target against the current
// URL. Protocol-relative and relative references are supported;
// non-http(s) schemes are rejected (spec.md §4.A step 5).
func resolveLocation(base, location string) (string, bool) {
	if location == "" {
		return "", false
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", false
	}
	resolved := baseURL.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}
