// Package records reads and writes the personal movie records kept under a
// username by the records API.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/metrics"
)

const (
	DefaultBaseURL = "https://backend-ix5u.onrender.com"
	userMoviesPath = "/api/user-movies"
)

var ErrUpstream = errors.New("records API request failed")

type Config struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

// Client implements ports.RecordRepository over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + userMoviesPath,
		http:     httpClient,
	}
}

func (c *Client) UserMovies(ctx context.Context, username string) ([]domain.Movie, error) {
	reqURL := c.endpoint + "?" + url.Values{"username": {username}}.Encode()

	var list []domain.Movie
	err := c.do(ctx, "records_list", http.MethodGet, reqURL, nil, func(body io.Reader) error {
		if err := json.NewDecoder(body).Decode(&list); err != nil {
			return fmt.Errorf("%w: decode records: %v", ErrUpstream, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Movie, 0, len(list))
	for _, m := range list {
		if m.Valid() {
			out = append(out, m)
		}
	}
	return out, nil
}

type upsertRequest struct {
	Username string       `json:"username"`
	Movie    domain.Movie `json:"movie"`
}

func (c *Client) Upsert(ctx context.Context, username string, movie domain.Movie) error {
	return c.do(ctx, "records_upsert", http.MethodPost, c.endpoint, upsertRequest{Username: username, Movie: movie}, nil)
}

type deleteRequest struct {
	Username string `json:"username"`
	MovieID  string `json:"movieId"`
}

func (c *Client) Delete(ctx context.Context, username, movieID string) error {
	return c.do(ctx, "records_delete", http.MethodDelete, c.endpoint, deleteRequest{Username: username, MovieID: movieID}, nil)
}

func (c *Client) do(ctx context.Context, source, method, reqURL string, payload any, decode func(io.Reader) error) (err error) {
	start := time.Now()
	defer func() {
		metrics.SourceRequestDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			if errors.Is(err, context.Canceled) {
				status = "canceled"
			}
		}
		metrics.SourceRequestsTotal.WithLabelValues(source, status).Inc()
	}()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: HTTP %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(text)))
	}
	if decode == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil
	}
	return decode(io.LimitReader(resp.Body, 4*1024*1024))
}
