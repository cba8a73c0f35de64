// Package ui holds the per-session interface state: the search text, the
// favorites filter and the chosen username.
package ui

import "strings"

type State struct {
	SearchQuery   string `json:"searchQuery"`
	ShowFavorites bool   `json:"showFavorites"`
	Username      string `json:"username"`
}

// HasUsername reports whether a username is set.
func (s State) HasUsername() bool {
	return strings.TrimSpace(s.Username) != ""
}

// Action is a state transition understood by Reduce.
type Action interface {
	apply(State) State
}

type SetSearchQuery string

func (a SetSearchQuery) apply(s State) State {
	s.SearchQuery = string(a)
	return s
}

type SetShowFavorites bool

func (a SetShowFavorites) apply(s State) State {
	s.ShowFavorites = bool(a)
	return s
}

type SetUsername string

func (a SetUsername) apply(s State) State {
	s.Username = strings.TrimSpace(string(a))
	return s
}

type ClearUsername struct{}

func (ClearUsername) apply(s State) State {
	s.Username = ""
	return s
}

// Reduce returns the state that results from applying a to s.
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}
