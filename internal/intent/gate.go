// Package intent gates the user's mutating actions on a username being
// set. An action attempted without one is parked, the username prompt is
// opened, and the action is replayed once the username is submitted.
package intent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/domain/ports"
	"moviecatalog/internal/movies"
	"moviecatalog/internal/ui"
	"moviecatalog/internal/validate"
)

const defaultPersistTimeout = 10 * time.Second

var (
	ErrUsernameRequired = errors.New("username required")
	ErrEditorClosed     = errors.New("movie editor is not open")
	ErrNothingToDelete  = errors.New("no movie awaiting delete confirmation")
)

// Outcome tells the caller whether a requested action ran or is waiting
// for a username.
type Outcome int

const (
	Handled Outcome = iota
	UsernameRequired
)

func (o Outcome) String() string {
	if o == UsernameRequired {
		return "username_required"
	}
	return "handled"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Modals is the dialog state driven by the gate.
type Modals struct {
	UsernamePrompt bool              `json:"usernamePrompt"`
	PromptIntent   domain.ActionKind `json:"promptIntent,omitempty"`
	Editor         bool              `json:"editor"`
	// EditorMovie is nil when the editor creates a new movie.
	EditorMovie   *domain.Movie `json:"editorMovie,omitempty"`
	DeleteConfirm bool          `json:"deleteConfirm"`
	DeleteMovie   *domain.Movie `json:"deleteMovie,omitempty"`
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithPersistTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.persistTimeout = d
		}
	}
}

// WithIDGenerator replaces the uuid source used for new movies.
func WithIDGenerator(fn func() string) Option {
	return func(g *Gate) {
		if fn != nil {
			g.newID = fn
		}
	}
}

type Gate struct {
	state  *ui.Container
	store  *movies.Store
	writer ports.RecordWriter

	logger         *slog.Logger
	persistTimeout time.Duration
	newID          func() string

	mu      sync.Mutex
	pending *domain.PendingAction
	modals  Modals
	wg      sync.WaitGroup
}

// New returns a gate applying changes to store and writing them back
// through writer. A nil writer keeps changes local.
func New(state *ui.Container, store *movies.Store, writer ports.RecordWriter, opts ...Option) *Gate {
	g := &Gate{
		state:          state,
		store:          store,
		writer:         writer,
		logger:         slog.Default(),
		persistTimeout: defaultPersistTimeout,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) username() string {
	return g.state.State().Username
}

// RequestFavorite flips the favorite flag of movie. explicitUsername, when
// set, is used instead of the current one.
func (g *Gate) RequestFavorite(movie domain.Movie, explicitUsername string) Outcome {
	username := strings.TrimSpace(explicitUsername)
	if username == "" {
		username = g.username()
	}
	if username == "" {
		g.requireUsername(domain.ActionFavorite, &movie)
		return UsernameRequired
	}

	// The flip happens inside the store so concurrent requests compose.
	toggled, ok := g.store.ToggleFavorite(movie.ID)
	if !ok {
		toggled = movie
		toggled.IsFavorite = !movie.IsFavorite
	}
	g.persistUpsert(username, toggled)
	return Handled
}

// RequestEdit opens the editor for movie.
func (g *Gate) RequestEdit(movie domain.Movie) Outcome {
	if g.username() == "" {
		g.requireUsername(domain.ActionEdit, &movie)
		return UsernameRequired
	}
	g.mu.Lock()
	g.modals.Editor = true
	g.modals.EditorMovie = &movie
	g.mu.Unlock()
	return Handled
}

// RequestDelete opens the delete confirmation for movie.
func (g *Gate) RequestDelete(movie domain.Movie) Outcome {
	if g.username() == "" {
		g.requireUsername(domain.ActionDelete, &movie)
		return UsernameRequired
	}
	g.mu.Lock()
	g.modals.DeleteConfirm = true
	g.modals.DeleteMovie = &movie
	g.mu.Unlock()
	return Handled
}

// RequestCreate opens an empty editor.
func (g *Gate) RequestCreate() Outcome {
	if g.username() == "" {
		g.requireUsername(domain.ActionCreate, nil)
		return UsernameRequired
	}
	g.mu.Lock()
	g.modals.Editor = true
	g.modals.EditorMovie = nil
	g.mu.Unlock()
	return Handled
}

// SubmitUsername sets the username, closes the prompt and replays the
// parked action, if any, exactly once.
func (g *Gate) SubmitUsername(ctx context.Context, name string) error {
	if err := validate.Username(name); err != nil {
		return err
	}
	next := g.state.Dispatch(ctx, ui.SetUsername(name))

	g.mu.Lock()
	action := g.pending
	g.pending = nil
	g.modals.UsernamePrompt = false
	g.modals.PromptIntent = ""
	g.mu.Unlock()

	if action != nil {
		g.replay(*action, next.Username)
	}
	return nil
}

func (g *Gate) replay(action domain.PendingAction, username string) {
	var movie domain.Movie
	if action.Movie != nil {
		movie = *action.Movie
	}
	switch action.Kind {
	case domain.ActionFavorite:
		g.RequestFavorite(movie, username)
	case domain.ActionEdit:
		g.RequestEdit(movie)
	case domain.ActionDelete:
		g.RequestDelete(movie)
	case domain.ActionCreate:
		g.RequestCreate()
	}
}

// ChangeUser forgets the username and opens the prompt. Nothing is
// replayed when the new name is submitted.
func (g *Gate) ChangeUser(ctx context.Context) {
	g.state.Dispatch(ctx, ui.ClearUsername{})
	g.mu.Lock()
	g.pending = nil
	g.modals.UsernamePrompt = true
	g.modals.PromptIntent = domain.ActionCreate
	g.mu.Unlock()
}

// Save validates form and stores the movie being edited, or a new one when
// the editor was opened for creation.
func (g *Gate) Save(form validate.MovieForm) (domain.Movie, error) {
	username := g.username()
	if username == "" {
		return domain.Movie{}, ErrUsernameRequired
	}

	g.mu.Lock()
	open := g.modals.Editor
	var editing *domain.Movie
	if g.modals.EditorMovie != nil {
		m := *g.modals.EditorMovie
		editing = &m
	}
	g.mu.Unlock()
	if !open {
		return domain.Movie{}, ErrEditorClosed
	}

	form = form.Trimmed()
	if editing != nil {
		form.ID = editing.ID
	} else {
		form.ID = ""
	}
	if err := validate.Movie(form, g.store.Movies()); err != nil {
		return domain.Movie{}, err
	}

	movie := buildMovie(form, editing, g.newID)
	if _, exists := g.store.Find(movie.ID); exists {
		g.store.UpdateMovie(movie)
	} else {
		g.store.AddMovie(movie)
	}
	g.persistUpsert(username, movie)

	g.mu.Lock()
	g.modals.Editor = false
	g.modals.EditorMovie = nil
	g.mu.Unlock()
	return movie, nil
}

// ConfirmDelete removes the movie awaiting confirmation.
func (g *Gate) ConfirmDelete() (domain.Movie, error) {
	username := g.username()
	if username == "" {
		return domain.Movie{}, ErrUsernameRequired
	}

	g.mu.Lock()
	target := g.modals.DeleteMovie
	g.modals.DeleteConfirm = false
	g.modals.DeleteMovie = nil
	g.mu.Unlock()
	if target == nil {
		return domain.Movie{}, ErrNothingToDelete
	}

	g.store.DeleteMovie(target.ID)
	g.persistDelete(username, target.ID)
	return *target, nil
}

func (g *Gate) CloseEditor() {
	g.mu.Lock()
	g.modals.Editor = false
	g.modals.EditorMovie = nil
	g.mu.Unlock()
}

func (g *Gate) CloseDeleteConfirm() {
	g.mu.Lock()
	g.modals.DeleteConfirm = false
	g.modals.DeleteMovie = nil
	g.mu.Unlock()
}

// CloseUsernamePrompt dismisses the prompt and drops the parked action.
func (g *Gate) CloseUsernamePrompt() {
	g.mu.Lock()
	g.pending = nil
	g.modals.UsernamePrompt = false
	g.modals.PromptIntent = ""
	g.mu.Unlock()
}

// Pending returns a copy of the parked action.
func (g *Gate) Pending() (domain.PendingAction, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return domain.PendingAction{}, false
	}
	p := *g.pending
	if p.Movie != nil {
		m := *p.Movie
		p.Movie = &m
	}
	return p, true
}

func (g *Gate) Modals() Modals {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.modals
	if m.EditorMovie != nil {
		copied := *m.EditorMovie
		m.EditorMovie = &copied
	}
	if m.DeleteMovie != nil {
		copied := *m.DeleteMovie
		m.DeleteMovie = &copied
	}
	return m
}

// Wait blocks until every write-back started so far has finished.
func (g *Gate) Wait() {
	g.wg.Wait()
}

func (g *Gate) requireUsername(kind domain.ActionKind, movie *domain.Movie) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var parked *domain.Movie
	if movie != nil {
		m := *movie
		parked = &m
	}
	g.pending = &domain.PendingAction{Kind: kind, Movie: parked}
	g.modals.UsernamePrompt = true
	g.modals.PromptIntent = kind
}

func buildMovie(form validate.MovieForm, editing *domain.Movie, newID func() string) domain.Movie {
	movie := domain.Movie{
		Title:    movies.FormatTitle(form.Title),
		Year:     form.Year,
		Runtime:  form.Runtime,
		Genre:    form.Genre,
		Director: form.Director,
		Poster:   form.Poster,
	}
	if editing != nil {
		movie.ID = editing.ID
		movie.IsFavorite = editing.IsFavorite
	} else {
		movie.ID = newID()
	}
	return movie
}
