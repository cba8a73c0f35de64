package records

import (
	"context"
	"errors"
	"log/slog"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/domain/ports"
)

// SoftFail wraps a record source so that failures read as "no records".
// Cancellation is not a failure and still reaches the caller.
type SoftFail struct {
	next   ports.RecordSource
	logger *slog.Logger
}

func NewSoftFail(next ports.RecordSource, logger *slog.Logger) *SoftFail {
	if logger == nil {
		logger = slog.Default()
	}
	return &SoftFail{next: next, logger: logger}
}

func (s *SoftFail) UserMovies(ctx context.Context, username string) ([]domain.Movie, error) {
	list, err := s.next.UserMovies(ctx, username)
	if err == nil {
		if list == nil {
			list = []domain.Movie{}
		}
		return list, nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil, err
	}
	s.logger.Warn("user records unavailable, continuing without them",
		slog.String("username", username),
		slog.String("error", err.Error()),
	)
	return []domain.Movie{}, nil
}
