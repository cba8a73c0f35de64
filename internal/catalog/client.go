// Package catalog talks to the public movie catalog API: free-text search
// and detail lookup by id.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/metrics"
)

const (
	DefaultBaseURL = "https://backend-ix5u.onrender.com"

	searchPath = "/api/search"
	moviePath  = "/api/movie/"

	maxErrorBody    = 4 * 1024
	maxResponseBody = 4 * 1024 * 1024
)

type Config struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
	// RateLimit caps outgoing requests per second; zero disables the cap.
	RateLimit float64
	Retry     RetryConfig
	Logger    *slog.Logger
}

// Client is the catalog HTTP client. It satisfies ports.SearchSource and
// ports.DetailSource.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   RetryConfig
	logger  *slog.Logger
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
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		limiter: limiter,
		retry:   retry,
		logger:  logger,
	}
}

type wireMovie struct {
	ID         *string `json:"id"`
	Title      *string `json:"title"`
	Year       *string `json:"year"`
	Runtime    *string `json:"runtime"`
	Genre      *string `json:"genre"`
	Director   *string `json:"director"`
	Poster     *string `json:"poster"`
	IsFavorite *bool   `json:"isFavorite"`
}

func (w wireMovie) toMovie() (domain.Movie, bool) {
	if w.ID == nil || w.Title == nil || w.Year == nil || w.Runtime == nil ||
		w.Genre == nil || w.Director == nil || w.Poster == nil || w.IsFavorite == nil {
		return domain.Movie{}, false
	}
	movie := domain.Movie{
		ID:         *w.ID,
		Title:      *w.Title,
		Year:       *w.Year,
		Runtime:    *w.Runtime,
		Genre:      *w.Genre,
		Director:   *w.Director,
		Poster:     *w.Poster,
		IsFavorite: *w.IsFavorite,
	}
	return movie, movie.Valid()
}

// Search returns the catalog's matches for query. Entries with an invalid
// shape are dropped. The favorite flag of the results is meaningless and
// is resolved by the merge.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Movie, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return nil, err
	}
	reqURL := c.baseURL + searchPath + "?" + url.Values{"query": {query}}.Encode()

	var raw []json.RawMessage
	if err := c.getJSON(ctx, "catalog_search", reqURL, &raw); err != nil {
		return nil, err
	}

	movies := make([]domain.Movie, 0, len(raw))
	for _, item := range raw {
		var w wireMovie
		if err := json.Unmarshal(item, &w); err != nil {
			continue
		}
		if movie, ok := w.toMovie(); ok {
			movies = append(movies, movie)
		}
	}
	if dropped := len(raw) - len(movies); dropped > 0 {
		c.logger.Warn("catalog returned malformed movies",
			slog.String("query", query),
			slog.Int("dropped", dropped),
			slog.Int("total", len(raw)),
		)
	}
	return movies, nil
}

type omdbRating struct {
	Source string `json:"Source"`
	Value  string `json:"Value"`
}

type omdbDetail struct {
	Title      *string      `json:"Title"`
	Year       *string      `json:"Year"`
	Rated      string       `json:"Rated"`
	Released   string       `json:"Released"`
	Runtime    string       `json:"Runtime"`
	Genre      string       `json:"Genre"`
	Director   string       `json:"Director"`
	Writer     string       `json:"Writer"`
	Actors     string       `json:"Actors"`
	Plot       string       `json:"Plot"`
	Language   string       `json:"Language"`
	Country    string       `json:"Country"`
	Awards     string       `json:"Awards"`
	Poster     string       `json:"Poster"`
	Ratings    []omdbRating `json:"Ratings"`
	Metascore  string       `json:"Metascore"`
	IMDbRating string       `json:"imdbRating"`
	IMDbVotes  string       `json:"imdbVotes"`
	IMDbID     *string      `json:"imdbID"`
	Type       string       `json:"Type"`
	BoxOffice  string       `json:"BoxOffice"`
	Response   string       `json:"Response"`
	Error      string       `json:"Error"`
}

// MovieByID returns the full catalog record for id. Unknown ids yield an
// error matching domain.ErrNotFound.
func (c *Client) MovieByID(ctx context.Context, id string) (domain.MovieDetail, error) {
	if err := domain.ValidateID(id); err != nil {
		return domain.MovieDetail{}, err
	}
	reqURL := c.baseURL + moviePath + url.PathEscape(strings.TrimSpace(id))

	var detail omdbDetail
	if err := c.getJSON(ctx, "catalog_detail", reqURL, &detail); err != nil {
		return domain.MovieDetail{}, err
	}
	if detail.Response == "False" {
		return domain.MovieDetail{}, fmt.Errorf("%w: %s", domain.ErrNotFound, detail.Error)
	}
	if detail.Title == nil || detail.Year == nil || detail.IMDbID == nil || detail.Response != "True" {
		return domain.MovieDetail{}, fmt.Errorf("%w: movie detail", ErrInvalidResponse)
	}

	ratings := make([]domain.Rating, 0, len(detail.Ratings))
	for _, r := range detail.Ratings {
		ratings = append(ratings, domain.Rating{Source: r.Source, Value: r.Value})
	}
	return domain.MovieDetail{
		ID:         *detail.IMDbID,
		Title:      *detail.Title,
		Year:       *detail.Year,
		Rated:      detail.Rated,
		Released:   detail.Released,
		Runtime:    detail.Runtime,
		Genre:      detail.Genre,
		Director:   detail.Director,
		Writer:     detail.Writer,
		Actors:     detail.Actors,
		Plot:       detail.Plot,
		Language:   detail.Language,
		Country:    detail.Country,
		Awards:     detail.Awards,
		Poster:     detail.Poster,
		Ratings:    ratings,
		Metascore:  detail.Metascore,
		IMDbRating: detail.IMDbRating,
		IMDbVotes:  detail.IMDbVotes,
		Type:       detail.Type,
		BoxOffice:  detail.BoxOffice,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, source, reqURL string, out any) error {
	start := time.Now()
	err := withRetry(ctx, c.retry, func() error {
		return c.doGet(ctx, reqURL, out)
	})
	metrics.SourceRequestDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	metrics.SourceRequestsTotal.WithLabelValues(source, requestStatus(err)).Inc()
	return err
}

func (c *Client) doGet(ctx context.Context, reqURL string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// errorMessage prefers the API's {"message": ...} field, then the raw body.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && strings.TrimSpace(payload.Message) != "" {
		return strings.TrimSpace(payload.Message)
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}

func requestStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
