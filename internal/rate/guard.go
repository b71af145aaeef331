package rate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultCooldown applies after a provider 429 without a Retry-After.
const DefaultCooldown = 10 * time.Second

// RateLimitError is returned for requests blocked before reaching the
// provider.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	msg := fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	if !e.RetryAt.IsZero() {
		msg += " (retry at " + e.RetryAt.UTC().Format(time.RFC3339) + ")"
	}
	return msg
}

// WrapHTTP returns a copy of base whose transport enforces the declared
// budgets and serves repeat requests from cache inside the TTL. A
// declaration without budgets blocks every call, so a provider can never
// run unmetered by accident.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	inner := base.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}

	wrapped := *base
	wrapped.Transport = &limiter{
		decl:    decl,
		inner:   inner,
		buckets: newBuckets(decl.budgets),
		cache:   memoCache{ttl: decl.cacheTTL},
	}
	return &wrapped
}

type limiter struct {
	decl  Declaration
	inner http.RoundTripper
	cache memoCache

	mu       sync.Mutex
	buckets  []*bucket
	holdOff  time.Time
	lastCode int
}

type bucket struct {
	window Window
	max    int
	level  float64
	asOf   time.Time
}

func newBuckets(budgets []budget) []*bucket {
	now := time.Now()
	out := make([]*bucket, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, &bucket{window: b.window, max: b.max, level: float64(b.max), asOf: now})
	}
	return out
}

func (l *limiter) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}
	key := requestKey(req, body)

	memoize := l.cache.usable() && !skipCache(req)
	if memoize {
		if resp := l.cache.get(key, req); resp != nil {
			return resp, nil
		}
	}

	if blocked := l.take(time.Now()); blocked != nil {
		rejectedTotal.WithLabelValues(l.decl.provider, blocked.Reason).Inc()
		return nil, *blocked
	}

	resp, err := l.inner.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	l.observe(resp.StatusCode, resp.Header)

	if memoize && resp.StatusCode == http.StatusOK {
		return l.cache.put(key, req, resp)
	}
	return resp, nil
}

// take spends one token from every bucket or explains the refusal.
func (l *limiter) take(now time.Time) *RateLimitError {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) == 0 {
		return &RateLimitError{Provider: l.decl.provider, Reason: "disabled"}
	}
	if now.Before(l.holdOff) {
		return &RateLimitError{Provider: l.decl.provider, Reason: "cooldown", RetryAt: l.holdOff}
	}

	for _, b := range l.buckets {
		if b.max <= 0 {
			return &RateLimitError{Provider: l.decl.provider, Reason: "disabled"}
		}
		if !b.spend(now) {
			return &RateLimitError{
				Provider: l.decl.provider,
				Reason:   "budget",
				RetryAt:  now.Add(b.window.duration() / time.Duration(b.max)),
			}
		}
		remainingGauge.WithLabelValues(l.decl.provider, b.window.String()).Set(math.Floor(b.level))
	}
	return nil
}

func (b *bucket) spend(now time.Time) bool {
	perSecond := float64(b.max) / b.window.duration().Seconds()
	b.level = math.Min(float64(b.max), b.level+now.Sub(b.asOf).Seconds()*perSecond)
	b.asOf = now
	if b.level < 1 {
		return false
	}
	b.level--
	return true
}

// observe records the provider's verdict; a 429 imposes a cooldown on
// top of the local budgets.
func (l *limiter) observe(code int, header http.Header) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastCode = code
	lastStatusGauge.WithLabelValues(l.decl.provider).Set(float64(code))
	if code != http.StatusTooManyRequests {
		return
	}

	wait := DefaultCooldown
	if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil && secs > 0 {
		wait = time.Duration(secs) * time.Second
	}
	l.holdOff = time.Now().Add(wait)
	retryAfterGauge.WithLabelValues(l.decl.provider).Set(wait.Seconds())
}

// memoCache memoizes 200 responses keyed on method, URL, and body hash.
type memoCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]memoEntry
}

type memoEntry struct {
	header  http.Header
	body    []byte
	staleAt time.Time
}

func (c *memoCache) usable() bool { return c.ttl > 0 }

func (c *memoCache) get(key string, req *http.Request) *http.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.staleAt) {
		return nil
	}
	return replay(req, entry)
}

// put stores the response body and returns an equivalent replayable
// response, since reading the original consumed it.
func (c *memoCache) put(key string, req *http.Request, resp *http.Response) (*http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	entry := memoEntry{
		header:  resp.Header.Clone(),
		body:    body,
		staleAt: time.Now().Add(c.ttl),
	}

	c.mu.Lock()
	if c.entries == nil {
		c.entries = make(map[string]memoEntry)
	}
	c.entries[key] = entry
	c.mu.Unlock()

	return replay(req, entry), nil
}

func replay(req *http.Request, entry memoEntry) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     fmt.Sprintf("%d %s", http.StatusOK, http.StatusText(http.StatusOK)),
		Header:     entry.header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(entry.body)),
		Request:    req,
	}
}

// skipCache honors the request's own Cache-Control directives, so writes
// and forced refreshes always reach the provider and are never stored.
func skipCache(req *http.Request) bool {
	cc := strings.ToLower(req.Header.Get("Cache-Control"))
	return strings.Contains(cc, "no-cache") || strings.Contains(cc, "no-store")
}

// bufferBody reads and restores the request body so it can be hashed and
// retried.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestKey(req *http.Request, body []byte) string {
	sum := sha256.Sum256(body)
	return req.Method + " " + req.URL.String() + " " + hex.EncodeToString(sum[:])
}
