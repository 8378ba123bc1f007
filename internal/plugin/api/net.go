package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/dshills/brushwork/internal/plugin/security"
)

func (s *Surface) netModule() Module {
	return Module{
		Name: "net",
		Functions: []*Function{
			fn("fetch", security.NetworkFetch, s.netFetch),
		},
	}
}

// fetch(url, {method?, headers?, body?}) -> {status, ok, headers, body}
func (s *Surface) netFetch(ctx context.Context, args Args) (any, error) {
	raw, err := args.String(0)
	if err != nil {
		return nil, err
	}
	opts, err := args.OptMap(1)
	if err != nil {
		return nil, err
	}

	u, err := s.checker.CheckURL(raw)
	if err != nil {
		return nil, security.Denied(s.plugin, security.NetworkFetch, fmt.Sprintf("fetch %q (%v)", raw, err))
	}

	method := http.MethodGet
	if m, ok := opts["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	var body io.Reader
	if b, ok := opts["body"].(string); ok {
		body = strings.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, s.limits.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, args.Wrap(1, err)
	}
	if headers, ok := opts["headers"].(map[string]any); ok {
		for k, v := range headers {
			if sv, ok := v.(string); ok {
				req.Header.Set(k, sv)
			}
		}
	}
	req.Header.Set("X-Brushwork-Plugin", s.plugin)

	resp, err := s.http.Do(req)
	if err != nil {
		var redirect *redirectError
		if errors.As(err, &redirect) {
			return nil, security.Denied(s.plugin, security.NetworkFetch,
				fmt.Sprintf("fetch %q redirected to %q (%v)", raw, redirect.url.String(), redirect.err))
		}
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	// Doers other than *http.Client cannot be hooked per hop, so the final
	// URL is checked instead.
	if resp.Request != nil && resp.Request.URL != nil {
		if _, err := s.checker.CheckURL(resp.Request.URL.String()); err != nil {
			return nil, security.Denied(s.plugin, security.NetworkFetch,
				fmt.Sprintf("fetch %q redirected to %q (%v)", raw, resp.Request.URL.String(), err))
		}
	}

	limit := s.limits.MaxResponseBytes
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("fetch %s: response exceeds %d bytes", u.Host, limit)
	}

	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headers := make(map[string]any, len(keys))
	for _, k := range keys {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}

	s.log.WithField("status", resp.StatusCode).Debugf("fetch %s %s", method, u.Host)
	return map[string]any{
		"status":  int64(resp.StatusCode),
		"ok":      resp.StatusCode >= 200 && resp.StatusCode < 300,
		"headers": headers,
		"body":    string(data),
	}, nil
}

// redirectError reports a redirect hop refused by the host policy.
type redirectError struct {
	url *url.URL
	err error
}

func (e *redirectError) Error() string {
	return fmt.Sprintf("redirect to %s: %v", e.url.Host, e.err)
}

func (e *redirectError) Unwrap() error { return e.err }

// maxRedirects matches the net/http default.
const maxRedirects = 10

// guardRedirects returns doer with every redirect hop checked against the
// host policy. A *http.Client is copied so the caller's client is left
// untouched.
func guardRedirects(doer HTTPDoer, checker *security.Checker) HTTPDoer {
	c, ok := doer.(*http.Client)
	if !ok {
		return doer
	}
	guarded := *c
	next := c.CheckRedirect
	guarded.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if _, err := checker.CheckURL(req.URL.String()); err != nil {
			return &redirectError{url: req.URL, err: err}
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return &guarded
}
