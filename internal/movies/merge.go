package movies

import "moviecatalog/internal/domain"

// Unfavorited returns the search results with every favorite flag cleared,
// which is the list shown to a visitor without a username.
func Unfavorited(results []domain.Movie) []domain.Movie {
	out := make([]domain.Movie, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, item := range results {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		item.IsFavorite = false
		out = append(out, item)
	}
	return out
}

// Merge combines search results with a user's personal records.
//
// Search results keep their order and take their favorite flag from the
// record with the same id (false when there is none). Records whose id is
// not among the results follow, in record order. The first occurrence of
// a duplicated id wins so ids stay unique in the merged list.
func Merge(results, records []domain.Movie) []domain.Movie {
	favorites := make(map[string]bool, len(records))
	for _, record := range records {
		if _, exists := favorites[record.ID]; !exists {
			favorites[record.ID] = record.IsFavorite
		}
	}

	merged := make([]domain.Movie, 0, len(results)+len(records))
	seen := make(map[string]struct{}, len(results)+len(records))
	for _, item := range results {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		item.IsFavorite = favorites[item.ID]
		merged = append(merged, item)
	}
	for _, record := range records {
		if _, dup := seen[record.ID]; dup {
			continue
		}
		seen[record.ID] = struct{}{}
		merged = append(merged, record)
	}
	return merged
}
