package ports

import (
	"context"

	"moviecatalog/internal/domain"
)

// SearchSource fetches public catalog entries. An empty slice means no
// matches; errors are hard failures.
type SearchSource interface {
	Search(ctx context.Context, query string) ([]domain.Movie, error)
}

// RecordSource fetches the personal records stored under a username.
type RecordSource interface {
	UserMovies(ctx context.Context, username string) ([]domain.Movie, error)
}

type RecordWriter interface {
	Upsert(ctx context.Context, username string, movie domain.Movie) error
	Delete(ctx context.Context, username string, movieID string) error
}

type RecordRepository interface {
	RecordSource
	RecordWriter
}

type DetailSource interface {
	MovieByID(ctx context.Context, id string) (domain.MovieDetail, error)
}
