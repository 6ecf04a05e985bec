package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

const (
	maxBodyBytes   = 1 << 20
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	breakerTimeout = time.Minute
	breakerTrips   = 5
)

// ErrEmptyBody is returned when the source answers 2xx with no content.
var ErrEmptyBody = errors.New("empty response body")

// StatusError is a non-2xx answer from the source.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source returned HTTP %d: %s", e.Code, e.Body)
}

// Item is one importable candidate. Pointer fields are nil when the source
// omitted them.
type Item struct {
	ID        *int64  `json:"id"`
	Todo      *string `json:"todo"`
	UserID    *int64  `json:"userId"`
	Completed bool    `json:"completed"`
}

// Page is one response of the paginated source.
type Page struct {
	Items []Item `json:"todos"`
	Total int    `json:"total"`
}

// Source fetches pages of importable tasks.
type Source interface {
	Fetch(ctx context.Context, skip, limit int) (Page, error)
}

// HTTPSource reads pages from a DummyJSON-compatible endpoint
// (GET ?limit=N&skip=M → {"todos": [...], "total": T}).
// Repeated failures open a circuit breaker that fails fast until the source
// has had time to recover.
type HTTPSource struct {
	baseURL *url.URL
	client  *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPSource(rawURL string, timeout time.Duration, client *http.Client) (*HTTPSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("source url must be http or https, got %q", rawURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	s := &HTTPSource{baseURL: u, client: client, timeout: timeout}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "import-source",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		},
	})
	return s, nil
}

// URL returns the configured endpoint.
func (s *HTTPSource) URL() string {
	return s.baseURL.String()
}

func (s *HTTPSource) Fetch(ctx context.Context, skip, limit int) (Page, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx, skip, limit)
	})
	if err != nil {
		return Page{}, err
	}
	return res.(Page), nil
}

func (s *HTTPSource) fetch(ctx context.Context, skip, limit int) (Page, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	u := *s.baseURL
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("skip", strconv.Itoa(skip))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("request %s: %w", s.baseURL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, &StatusError{Code: resp.StatusCode, Body: snippet(body, 200)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Page{}, ErrEmptyBody
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return Page{}, fmt.Errorf("decode page (%s): %w", snippet(body, 200), err)
	}
	return page, nil
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
