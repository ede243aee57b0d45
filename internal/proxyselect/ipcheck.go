package proxyselect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// ipCheckServices are the three IP-reporting services queried in parallel
// (spec.md §4.B step 3). Each returns the caller's apparent exit IP in a
// small JSON body; parse is tolerant of the two common shapes.
var ipCheckServices = []string{
	"https://api.ipify.org?format=json",
	"https://ifconfig.co/json",
	"https://api.myip.com",
}

// connectivityProbeURLs back the fallback phase's simple GET probe
// (spec.md §4.B: "a small GET against one of a fixed URL set").
var connectivityProbeURLs = []string{
	"https://www.google.com/generate_204",
	"https://www.cloudflare.com/cdn-cgi/trace",
	"https://1.1.1.1",
}

type ipResponse struct {
	IP    string `json:"ip"`
	Query string `json:"query"`
}

// resolveExitIP queries all ipCheckServices in parallel through transport
// and resolves with the first successful response within perServiceTimeout.
func resolveExitIP(ctx context.Context, transport *http.Transport, perServiceTimeout time.Duration) (string, error) {
	type result struct {
		ip  string
		err error
	}
	ch := make(chan result, len(ipCheckServices))

	client := &http.Client{Transport: transport}

	for _, svc := range ipCheckServices {
		svc := svc
		go func() {
			svcCtx, cancel := context.WithTimeout(ctx, perServiceTimeout)
			defer cancel()
			ip, err := fetchExitIP(svcCtx, client, svc)
			ch <- result{ip: ip, err: err}
		}()
	}

	var lastErr error
	for range ipCheckServices {
		r := <-ch
		if r.err == nil && r.ip != "" {
			return r.ip, nil
		}
		lastErr = r.err
	}
	if lastErr == nil {
		lastErr = errEmptyResponse
	}
	return "", lastErr
}

var errEmptyResponse = &ipCheckError{"all ip-check services returned empty or failed"}

type ipCheckError struct{ msg string }

func (e *ipCheckError) Error() string { return e.msg }

func fetchExitIP(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var r ipResponse
		if err := json.Unmarshal(body, &r); err == nil {
			if r.IP != "" {
				return r.IP, nil
			}
			if r.Query != "" {
				return r.Query, nil
			}
		}
		return "", &ipCheckError{"unrecognized json ip-check body"}
	}
	// cloudflare's cdn-cgi/trace returns "key=value\n" lines.
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.HasPrefix(line, "ip=") {
			return strings.TrimPrefix(line, "ip="), nil
		}
	}
	if trimmed != "" {
		return trimmed, nil
	}
	return "", &ipCheckError{"empty ip-check body"}
}

// probeConnectivity performs a small GET against one fixed URL to confirm a
// proxy is at least reachable (spec.md §4.B fallback phase), without
// resolving a real exit IP.
func probeConnectivity(ctx context.Context, transport *http.Transport, timeout time.Duration) bool {
	client := &http.Client{Transport: transport}
	for _, url := range connectivityProbeURLs {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			continue
		}
		resp, err := client.Do(req)
		cancel()
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 500 {
			return true
		}
	}
	return false
}
