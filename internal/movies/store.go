package movies

import (
	"strings"
	"sync"

	"moviecatalog/internal/domain"
)

// State is the observable movie list of one session. An empty Error means
// the last load did not fail.
type State struct {
	List    []domain.Movie `json:"list"`
	Loading bool           `json:"loading"`
	Error   string         `json:"error,omitempty"`
}

// Store owns the movie list of one session. All mutations are synchronous
// and total: unknown ids are ignored rather than reported.
type Store struct {
	mu        sync.RWMutex
	state     State
	nextSubID int
	subs      map[int]func(State)
}

func NewStore() *Store {
	return &Store{
		state: State{List: []domain.Movie{}},
		subs:  make(map[int]func(State)),
	}
}

// Subscribe registers fn to be called with a snapshot after every mutation.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SetMovies replaces the whole list.
func (s *Store) SetMovies(list []domain.Movie) {
	s.mutate(func(st *State) bool {
		st.List = cloneList(list)
		return true
	})
}

// AddMovie appends movie with its title normalized. The call is a no-op
// when a movie with the same normalized title is already listed.
func (s *Store) AddMovie(movie domain.Movie) {
	movie.Title = FormatTitle(movie.Title)
	s.mutate(func(st *State) bool {
		for _, existing := range st.List {
			if strings.EqualFold(FormatTitle(existing.Title), movie.Title) {
				return false
			}
		}
		st.List = append(cloneList(st.List), movie)
		return true
	})
}

// UpdateMovie replaces the movie with the same id.
func (s *Store) UpdateMovie(movie domain.Movie) {
	s.mutate(func(st *State) bool {
		idx := indexOf(st.List, movie.ID)
		if idx < 0 {
			return false
		}
		list := cloneList(st.List)
		list[idx] = movie
		st.List = list
		return true
	})
}

// DeleteMovie removes the movie with the given id.
func (s *Store) DeleteMovie(id string) {
	s.mutate(func(st *State) bool {
		idx := indexOf(st.List, id)
		if idx < 0 {
			return false
		}
		list := make([]domain.Movie, 0, len(st.List)-1)
		list = append(list, st.List[:idx]...)
		list = append(list, st.List[idx+1:]...)
		st.List = list
		return true
	})
}

// ToggleFavorite flips the favorite flag of the movie with the given id and
// returns the updated copy. ok is false when the id is not listed.
func (s *Store) ToggleFavorite(id string) (toggled domain.Movie, ok bool) {
	s.mutate(func(st *State) bool {
		idx := indexOf(st.List, id)
		if idx < 0 {
			return false
		}
		list := cloneList(st.List)
		list[idx].IsFavorite = !list[idx].IsFavorite
		st.List = list
		toggled, ok = list[idx], true
		return true
	})
	return toggled, ok
}

// Clear empties the list and resets the load status.
func (s *Store) Clear() {
	s.mutate(func(st *State) bool {
		*st = State{List: []domain.Movie{}}
		return true
	})
}

// BeginLoad marks a load as in flight and clears the previous error.
func (s *Store) BeginLoad() {
	s.mutate(func(st *State) bool {
		st.Loading = true
		st.Error = ""
		return true
	})
}

// CommitLoad stores the result of a successful load.
func (s *Store) CommitLoad(list []domain.Movie) {
	s.mutate(func(st *State) bool {
		st.List = cloneList(list)
		st.Loading = false
		st.Error = ""
		return true
	})
}

// FailLoad records a load failure and keeps the current list.
func (s *Store) FailLoad(message string) {
	s.mutate(func(st *State) bool {
		st.Loading = false
		st.Error = message
		return true
	})
}

// AbandonLoad clears the in-flight flag of a load that was canceled without
// a successor. List and error are kept.
func (s *Store) AbandonLoad() {
	s.mutate(func(st *State) bool {
		if !st.Loading {
			return false
		}
		st.Loading = false
		return true
	})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Movies() []domain.Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneList(s.state.List)
}

// Favorites returns the listed movies flagged as favorite, in list order.
func (s *Store) Favorites() []domain.Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Movie, 0)
	for _, m := range s.state.List {
		if m.IsFavorite {
			out = append(out, m)
		}
	}
	return out
}

// Find returns the movie with the given id.
func (s *Store) Find(id string) (domain.Movie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := indexOf(s.state.List, id)
	if idx < 0 {
		return domain.Movie{}, false
	}
	return s.state.List[idx], true
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Error
}

// mutate applies fn under the write lock and, when fn reports a change,
// notifies subscribers outside of it.
func (s *Store) mutate(fn func(*State) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

func (s *Store) snapshotLocked() State {
	return State{
		List:    cloneList(s.state.List),
		Loading: s.state.Loading,
		Error:   s.state.Error,
	}
}

func cloneList(list []domain.Movie) []domain.Movie {
	if list == nil {
		return []domain.Movie{}
	}
	return domain.CloneMovies(list)
}

func indexOf(list []domain.Movie, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
