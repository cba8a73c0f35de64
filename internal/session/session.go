// Package session ties one user's browsing state together: UI state, movie
// list, debounced search, load orchestration and the intent gate.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"moviecatalog/internal/debounce"
	"moviecatalog/internal/domain"
	"moviecatalog/internal/domain/ports"
	"moviecatalog/internal/intent"
	"moviecatalog/internal/kv"
	"moviecatalog/internal/loader"
	"moviecatalog/internal/movies"
	"moviecatalog/internal/ui"
	"moviecatalog/internal/validate"
)

const DefaultDebounce = 700 * time.Millisecond

var (
	ErrNotPermitted = errors.New("action not permitted in read-only mode")
	ErrClosed       = errors.New("session closed")
)

// Capabilities lists the actions the interface may offer.
type Capabilities struct {
	CanCreate   bool `json:"canCreate"`
	CanEdit     bool `json:"canEdit"`
	CanDelete   bool `json:"canDelete"`
	CanFavorite bool `json:"canFavorite"`
}

func capabilitiesFor(readOnly bool) Capabilities {
	return Capabilities{
		CanCreate:   !readOnly,
		CanEdit:     !readOnly,
		CanDelete:   !readOnly,
		CanFavorite: true,
	}
}

// ViewModel is everything a client needs to render the home page.
type ViewModel struct {
	SessionID    string         `json:"sessionId"`
	UI           ui.State       `json:"ui"`
	Movies       []domain.Movie `json:"movies"`
	Loading      bool           `json:"loading"`
	Error        string         `json:"error,omitempty"`
	Modals       intent.Modals  `json:"modals"`
	Capabilities Capabilities   `json:"capabilities"`

	// SearchPending is set while typed text waits for the quiet period.
	SearchPending bool `json:"searchPending"`
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Search ports.SearchSource
	// Records should already be wrapped to soft-fail.
	Records        ports.RecordSource
	Writer         ports.RecordWriter
	KV             kv.Store
	Debounce       time.Duration
	PersistTimeout time.Duration
	ReadOnly       bool
	Logger         *slog.Logger
}

type Session struct {
	id     string
	logger *slog.Logger
	caps   Capabilities

	ui        *ui.Container
	store     *movies.Store
	loader    *loader.Orchestrator
	gate      *intent.Gate
	debouncer *debounce.Debouncer[string]

	mu        sync.Mutex
	debounced string
	closed    bool
	nextSubID int
	listeners map[int]func(ViewModel)
	unsubs    []func()
}

// New restores the session's username and issues the initial load.
func New(ctx context.Context, id string, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("session", id))
	delay := deps.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}

	var store kv.Store
	if deps.KV != nil {
		store = kv.NewNamespace(deps.KV, "session:"+id)
	}

	s := &Session{
		id:        id,
		logger:    logger,
		caps:      capabilitiesFor(deps.ReadOnly),
		ui:        ui.NewContainer(ctx, store, logger),
		store:     movies.NewStore(),
		listeners: make(map[int]func(ViewModel)),
	}
	s.loader = loader.New(deps.Search, deps.Records, s.store, loader.WithLogger(logger))
	s.gate = intent.New(s.ui, s.store, deps.Writer,
		intent.WithLogger(logger),
		intent.WithPersistTimeout(deps.PersistTimeout),
	)
	s.debouncer = debounce.New(delay, s.onQuerySettled)

	s.unsubs = append(s.unsubs,
		s.store.Subscribe(func(movies.State) { s.notify() }),
		s.ui.Subscribe(s.onStateChange),
	)

	initial := s.ui.State()
	s.debounced = initial.SearchQuery
	s.loader.Start(initial.SearchQuery, initial.Username)
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) View() ViewModel {
	state := s.ui.State()
	snap := s.store.Snapshot()
	list := snap.List
	if state.ShowFavorites {
		list = s.store.Favorites()
	}
	return ViewModel{
		SessionID:    s.id,
		UI:           state,
		Movies:       list,
		Loading:      snap.Loading,
		Error:        snap.Error,
		Modals:       s.gate.Modals(),
		Capabilities: s.caps,

		SearchPending: s.debouncer.Pending(),
	}
}

// Subscribe registers fn for view changes and returns its remover.
func (s *Session) Subscribe(fn func(ViewModel)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SetQuery records the raw search text; the list reloads once typing has
// settled.
func (s *Session) SetQuery(ctx context.Context, query string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := domain.ValidateQuery(query); err != nil {
		return err
	}
	s.ui.Dispatch(ctx, ui.SetSearchQuery(query))
	s.debouncer.Set(query)
	s.notify()
	return nil
}

// SubmitQuery records the search text and reloads at once, dropping any
// quiet period still running for earlier input.
func (s *Session) SubmitQuery(ctx context.Context, query string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := domain.ValidateQuery(query); err != nil {
		return err
	}
	s.ui.Dispatch(ctx, ui.SetSearchQuery(query))
	s.debouncer.Flush(query)
	s.notify()
	return nil
}

func (s *Session) SetShowFavorites(ctx context.Context, show bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.ui.Dispatch(ctx, ui.SetShowFavorites(show))
	s.notify()
	return nil
}

func (s *Session) SubmitUsername(ctx context.Context, name string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	defer s.notify()
	return s.gate.SubmitUsername(ctx, name)
}

func (s *Session) ChangeUser(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.gate.ChangeUser(ctx)
	s.notify()
	return nil
}

func (s *Session) Favorite(movieID string) (intent.Outcome, error) {
	if !s.caps.CanFavorite {
		return intent.Handled, ErrNotPermitted
	}
	movie, err := s.movie(movieID)
	if err != nil {
		return intent.Handled, err
	}
	defer s.notify()
	return s.gate.RequestFavorite(movie, ""), nil
}

func (s *Session) Edit(movieID string) (intent.Outcome, error) {
	if !s.caps.CanEdit {
		return intent.Handled, ErrNotPermitted
	}
	movie, err := s.movie(movieID)
	if err != nil {
		return intent.Handled, err
	}
	defer s.notify()
	return s.gate.RequestEdit(movie), nil
}

func (s *Session) Delete(movieID string) (intent.Outcome, error) {
	if !s.caps.CanDelete {
		return intent.Handled, ErrNotPermitted
	}
	movie, err := s.movie(movieID)
	if err != nil {
		return intent.Handled, err
	}
	defer s.notify()
	return s.gate.RequestDelete(movie), nil
}

func (s *Session) Create() (intent.Outcome, error) {
	if !s.caps.CanCreate {
		return intent.Handled, ErrNotPermitted
	}
	if err := s.checkOpen(); err != nil {
		return intent.Handled, err
	}
	defer s.notify()
	return s.gate.RequestCreate(), nil
}

func (s *Session) Save(form validate.MovieForm) (domain.Movie, error) {
	if err := s.checkOpen(); err != nil {
		return domain.Movie{}, err
	}
	defer s.notify()
	return s.gate.Save(form)
}

func (s *Session) ConfirmDelete() (domain.Movie, error) {
	if err := s.checkOpen(); err != nil {
		return domain.Movie{}, err
	}
	defer s.notify()
	return s.gate.ConfirmDelete()
}

func (s *Session) CloseEditor() {
	s.gate.CloseEditor()
	s.notify()
}

func (s *Session) CloseDeleteConfirm() {
	s.gate.CloseDeleteConfirm()
	s.notify()
}

func (s *Session) CloseUsernamePrompt() {
	s.gate.CloseUsernamePrompt()
	s.notify()
}

// Wait blocks until background loads and write-backs issued so far have
// finished. Pending debounced input is not waited for.
func (s *Session) Wait() {
	s.loader.Wait()
	s.gate.Wait()
}

// Close stops the debouncer, cancels the outstanding load, waits for
// write-backs and drops every listener.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.listeners = make(map[int]func(ViewModel))
	s.mu.Unlock()

	s.debouncer.Stop()
	s.loader.Close()
	s.gate.Wait()
	for _, fn := range unsubs {
		fn()
	}
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Session) movie(id string) (domain.Movie, error) {
	if err := s.checkOpen(); err != nil {
		return domain.Movie{}, err
	}
	if err := domain.ValidateID(id); err != nil {
		return domain.Movie{}, err
	}
	movie, ok := s.store.Find(id)
	if !ok {
		return domain.Movie{}, fmt.Errorf("%w: movie %s", domain.ErrNotFound, id)
	}
	return movie, nil
}

func (s *Session) onQuerySettled(query string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.debounced = query
	s.mu.Unlock()
	s.loader.Start(query, s.ui.State().Username)
}

func (s *Session) onStateChange(prev, next ui.State) {
	if prev.Username == next.Username {
		return
	}
	s.mu.Lock()
	query := s.debounced
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.loader.Start(query, next.Username)
}

func (s *Session) notify() {
	s.mu.Lock()
	if s.closed || len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	listeners := make([]func(ViewModel), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	view := s.View()
	for _, fn := range listeners {
		fn(view)
	}
}
