package domain

import "strings"

// Movie is a catalog entry as displayed to the user. The same shape is
// used for personal records stored under a username.
type Movie struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Year       string `json:"year"`
	Runtime    string `json:"runtime"`
	Genre      string `json:"genre"`
	Director   string `json:"director"`
	Poster     string `json:"poster"`
	IsFavorite bool   `json:"isFavorite"`
}

// Valid reports whether the movie carries a usable identifier.
func (m Movie) Valid() bool {
	return strings.TrimSpace(m.ID) != ""
}

func CloneMovies(items []Movie) []Movie {
	if items == nil {
		return nil
	}
	return append([]Movie(nil), items...)
}

type Rating struct {
	Source string `json:"source"`
	Value  string `json:"value"`
}

// MovieDetail is the full catalog record served by the detail lookup.
type MovieDetail struct {
	ID         string   `json:"imdbID"`
	Title      string   `json:"title"`
	Year       string   `json:"year"`
	Rated      string   `json:"rated,omitempty"`
	Released   string   `json:"released,omitempty"`
	Runtime    string   `json:"runtime,omitempty"`
	Genre      string   `json:"genre,omitempty"`
	Director   string   `json:"director,omitempty"`
	Writer     string   `json:"writer,omitempty"`
	Actors     string   `json:"actors,omitempty"`
	Plot       string   `json:"plot,omitempty"`
	Language   string   `json:"language,omitempty"`
	Country    string   `json:"country,omitempty"`
	Awards     string   `json:"awards,omitempty"`
	Poster     string   `json:"poster,omitempty"`
	Ratings    []Rating `json:"ratings,omitempty"`
	Metascore  string   `json:"metascore,omitempty"`
	IMDbRating string   `json:"imdbRating,omitempty"`
	IMDbVotes  string   `json:"imdbVotes,omitempty"`
	Type       string   `json:"type,omitempty"`
	BoxOffice  string   `json:"boxOffice,omitempty"`
}
