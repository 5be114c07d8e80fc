package gfw

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"gfwpro-workflow/internal/shared/metrics"
)

// DefaultMaxRedirects bounds the redirect chain followed by Requester.
const DefaultMaxRedirects = 5

// Requester sends a request and follows redirects itself, re-sending the
// original method, headers and body to every Location. Signed storage
// redirects would otherwise lose the body when net/http rewrites a POST.
type Requester struct {
	client       *http.Client
	maxRedirects int
}

// NewRequester wraps base with automatic redirect following disabled.
func NewRequester(base *http.Client, maxRedirects int) *Requester {
	if base == nil {
		base = http.DefaultClient
	}
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	noFollow := *base
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Requester{client: &noFollow, maxRedirects: maxRedirects}
}

// MaxRedirects reports the configured redirect bound.
func (r *Requester) MaxRedirects() int {
	return r.maxRedirects
}

// Send issues the request and returns the first non-redirect response. The
// caller owns the returned body. Errors are ErrMalformedRedirect,
// ErrExceededRedirects or transport failures.
func (r *Requester) Send(ctx context.Context, method, target string, headers http.Header, body []byte) (*http.Response, error) {
	resp, err := r.do(ctx, method, target, headers, body)
	if err != nil {
		return nil, err
	}

	redirects := 0
	for isRedirect(resp.StatusCode) {
		location := resp.Header.Get("Location")
		drain(resp)
		if location == "" {
			return nil, fmt.Errorf("%w (status %d from %s)", ErrMalformedRedirect, resp.StatusCode, resp.Request.URL.Redacted())
		}

		next, err := resolveLocation(resp.Request.URL, location)
		if err != nil {
			return nil, fmt.Errorf("%w: bad Location %q: %v", ErrMalformedRedirect, location, err)
		}

		redirects++
		if redirects > r.maxRedirects {
			return nil, fmt.Errorf("%w (%d)", ErrExceededRedirects, r.maxRedirects)
		}
		metrics.IncRedirectsFollowed()

		resp, err = r.do(ctx, method, next.String(), headers, body)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (r *Requester) do(ctx context.Context, method, target string, headers http.Header, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, values := range headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	metrics.IncRequests()
	return r.client.Do(req)
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveLocation(base *url.URL, location string) (*url.URL, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(ref), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
