// Package web provides the web_fetch tool: bounded HTTP GET with SSRF
// protection. Plain http URLs upgrade to https, and the resolver rejects
// private, loopback, and link-local destinations before any connection.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hearth/internal/safety"
	"hearth/internal/tools"
)

const (
	fetchTimeout = 15 * time.Second
	maxBodyChars = 10_000
	maxBodyBytes = 2 << 20
)

// New builds the web_fetch tool.
func New() *tools.Tool {
	f := &fetcher{
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return checkHost(req.URL.Hostname())
			},
		},
	}
	return &tools.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page over HTTPS and return its text content.",
		InputSchema: tools.ObjectSchema(map[string]tools.Property{
			"url": {Type: "string", Description: "The URL to fetch", Format: "uri"},
		}, "url"),
		Handler:     f.fetch,
		DefaultTier: safety.TierAuto,
		Timeout:     2 * fetchTimeout,
	}
}

type fetcher struct {
	client *http.Client
}

func (f *fetcher) fetch(ctx context.Context, input tools.Input) (string, error) {
	target, err := sanitizeURL(input.String("url"))
	if err != nil {
		return "", err
	}

	// One retry on server errors and timeouts.
	body, status, err := f.doFetch(ctx, target)
	if shouldRetry(status, err) {
		body, status, err = f.doFetch(ctx, target)
	}
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d", status)
	}

	if len(body) > maxBodyChars {
		body = body[:maxBodyChars] + "\n... [content truncated]"
	}
	return body, nil
}

// shouldRetry reports whether one more attempt can help: a 5xx response or
// a timeout. Anything else fails the same way again.
func shouldRetry(status int, err error) bool {
	if status >= 500 {
		return true
	}
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (f *fetcher) doFetch(ctx context.Context, target string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, fmt.Errorf("invalid request: %w", err)
	}
	req.Header.Set("User-Agent", "hearth-agent/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	return string(data), resp.StatusCode, nil
}

// sanitizeURL validates the URL, upgrades http to https, and applies the
// SSRF host checks.
func sanitizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		u.Scheme = "https"
	case "":
		return "", fmt.Errorf("url must include a scheme")
	default:
		return "", fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url has no host")
	}
	if err := checkHost(u.Hostname()); err != nil {
		return "", err
	}
	return u.String(), nil
}

// checkHost rejects hosts that resolve to private, loopback, link-local, or
// otherwise non-public addresses.
func checkHost(host string) error {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") ||
		strings.HasSuffix(lower, ".local") || strings.HasSuffix(lower, ".internal") {
		return fmt.Errorf("host %s is not allowed", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip, host)
	}

	addrs, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("cannot resolve %s: %w", host, err)
	}
	for _, ip := range addrs {
		if err := checkIP(ip, host); err != nil {
			return err
		}
	}
	return nil
}

func checkIP(ip net.IP, host string) error {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast() {
		return fmt.Errorf("host %s resolves to a non-public address", host)
	}
	return nil
}
