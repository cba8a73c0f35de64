package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"moviecatalog/internal/domain"
)

const batmanJSON = `[
	{"id":"tt0372784","title":"Batman Begins","year":"2005","runtime":"140 min","genre":"Action","director":"Christopher Nolan","poster":"p.jpg","isFavorite":false},
	{"id":"tt0096895","title":"Batman","year":"1989","runtime":"126 min","genre":"Action","director":"Tim Burton","poster":"","isFavorite":true},
	{"id":"broken","title":42},
	{"title":"No ID","year":"2000","runtime":"","genre":"","director":"","poster":"","isFavorite":false}
]`

func newTestClient(url string) *Client {
	return NewClient(Config{
		BaseURL: url,
		Client:  &http.Client{Timeout: 2 * time.Second},
		Retry:   RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
	})
}

func TestSearchFiltersMalformedMovies(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(batmanJSON))
	}))
	defer srv.Close()

	movies, err := newTestClient(srv.URL).Search(context.Background(), "batman & robin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "batman & robin" {
		t.Fatalf("query not forwarded, got %q", gotQuery)
	}
	if len(movies) != 2 {
		t.Fatalf("expected 2 valid movies, got %d: %+v", len(movies), movies)
	}
	if movies[0].ID != "tt0372784" || movies[1].Director != "Tim Burton" {
		t.Fatalf("unexpected movies: %+v", movies)
	}
}

func TestSearchRejectsNonArrayResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"movies":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), "x")
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestSearchMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   string
	}{
		{http.StatusBadRequest, `{"message":"query too short"}`, "invalid request: query too short"},
		{http.StatusNotFound, ``, "movie not found"},
		{http.StatusInternalServerError, `oops`, "server error, try again later"},
		{http.StatusServiceUnavailable, ``, "service temporarily unavailable"},
		{http.StatusTeapot, `short and stout`, "catalog API error (418): short and stout"},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Search(context.Background(), "q")
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %T %v", err, err)
			}
			if apiErr.Status != tc.status {
				t.Fatalf("status = %d, want %d", apiErr.Status, tc.status)
			}
			if err.Error() != tc.want {
				t.Fatalf("message = %q, want %q", err.Error(), tc.want)
			}
		})
	}
}

func TestSearchRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	movies, err := newTestClient(srv.URL).Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if len(movies) != 0 {
		t.Fatalf("expected empty result, got %+v", movies)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestSearchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, _ = newTestClient(srv.URL).Search(context.Background(), "q")
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestSearchCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(srv.URL).Search(ctx, "slow")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSearchRejectsInvalidQuery(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, err := client.Search(context.Background(), string([]byte{0xff, 0xfe}))
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestMovieByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/movie/tt0372784":
			_, _ = w.Write([]byte(`{"Title":"Batman Begins","Year":"2005","Director":"Christopher Nolan",
				"Ratings":[{"Source":"Internet Movie Database","Value":"8.2/10"}],
				"imdbID":"tt0372784","imdbRating":"8.2","Response":"True"}`))
		case "/api/movie/tt0000000":
			_, _ = w.Write([]byte(`{"Response":"False","Error":"Incorrect IMDb ID."}`))
		case "/api/movie/tt0000001":
			_, _ = w.Write([]byte(`{"Title":"Half","Response":"True"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	t.Run("found", func(t *testing.T) {
		detail, err := client.MovieByID(context.Background(), "tt0372784")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if detail.ID != "tt0372784" || detail.Title != "Batman Begins" || detail.IMDbRating != "8.2" {
			t.Fatalf("unexpected detail: %+v", detail)
		}
		if len(detail.Ratings) != 1 || detail.Ratings[0].Value != "8.2/10" {
			t.Fatalf("unexpected ratings: %+v", detail.Ratings)
		}
	})

	t.Run("http 404", func(t *testing.T) {
		_, err := client.MovieByID(context.Background(), "missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("catalog says false", func(t *testing.T) {
		_, err := client.MovieByID(context.Background(), "tt0000000")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("incomplete record", func(t *testing.T) {
		_, err := client.MovieByID(context.Background(), "tt0000001")
		if !errors.Is(err, ErrInvalidResponse) {
			t.Fatalf("expected ErrInvalidResponse, got %v", err)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := client.MovieByID(context.Background(), "  ")
		if !errors.Is(err, domain.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
	})
}
