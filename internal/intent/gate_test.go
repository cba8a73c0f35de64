package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/kv"
	"moviecatalog/internal/movies"
	"moviecatalog/internal/ui"
	"moviecatalog/internal/validate"
)

type upsertCall struct {
	username string
	movie    domain.Movie
}

type deleteCall struct {
	username string
	movieID  string
}

type recordingWriter struct {
	mu      sync.Mutex
	upserts []upsertCall
	deletes []deleteCall
	err     error
}

func (w *recordingWriter) Upsert(_ context.Context, username string, movie domain.Movie) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.upserts = append(w.upserts, upsertCall{username, movie})
	return w.err
}

func (w *recordingWriter) Delete(_ context.Context, username, movieID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deletes = append(w.deletes, deleteCall{username, movieID})
	return w.err
}

type fixture struct {
	state  *ui.Container
	store  *movies.Store
	writer *recordingWriter
	gate   *Gate
}

func newFixture(t *testing.T, username string) fixture {
	t.Helper()
	ctx := context.Background()
	state := ui.NewContainer(ctx, kv.NewMemory(0), nil)
	if username != "" {
		state.Dispatch(ctx, ui.SetUsername(username))
	}
	store := movies.NewStore()
	store.SetMovies([]domain.Movie{
		{ID: "1", Title: "Heat", Year: "1995", Runtime: "170 min", Genre: "Crime", Director: "Michael Mann"},
		{ID: "2", Title: "Alien", Year: "1979", Runtime: "117 min", Genre: "Horror", Director: "Ridley Scott", IsFavorite: true},
	})
	writer := &recordingWriter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := New(state, store, writer, WithLogger(logger), WithIDGenerator(func() string { return "new-id" }))
	return fixture{state: state, store: store, writer: writer, gate: gate}
}

func TestFavoriteWithUsernameTogglesAndPersists(t *testing.T) {
	f := newFixture(t, "bob")
	movie, _ := f.store.Find("1")

	if got := f.gate.RequestFavorite(movie, ""); got != Handled {
		t.Fatalf("outcome = %v, want handled", got)
	}
	f.gate.Wait()

	if m, _ := f.store.Find("1"); !m.IsFavorite {
		t.Fatal("favorite not toggled locally")
	}
	if len(f.writer.upserts) != 1 || f.writer.upserts[0].username != "bob" || !f.writer.upserts[0].movie.IsFavorite {
		t.Fatalf("unexpected write-backs: %+v", f.writer.upserts)
	}
}

func TestFavoriteTogglesOnStaleSnapshotsCompose(t *testing.T) {
	f := newFixture(t, "bob")
	snapshot, _ := f.store.Find("1")

	f.gate.RequestFavorite(snapshot, "")
	f.gate.RequestFavorite(snapshot, "")
	f.gate.Wait()

	if m, _ := f.store.Find("1"); m.IsFavorite {
		t.Fatal("two toggles should cancel out")
	}
	f.writer.mu.Lock()
	defer f.writer.mu.Unlock()
	favs := map[bool]int{}
	for _, call := range f.writer.upserts {
		favs[call.movie.IsFavorite]++
	}
	if len(f.writer.upserts) != 2 || favs[true] != 1 || favs[false] != 1 {
		t.Fatalf("unexpected write-backs: %+v", f.writer.upserts)
	}
}

func TestFavoriteUnlistedMovieFlipsCallerCopy(t *testing.T) {
	f := newFixture(t, "bob")
	f.gate.RequestFavorite(domain.Movie{ID: "x", Title: "Elsewhere"}, "")
	f.gate.Wait()

	if _, ok := f.store.Find("x"); ok {
		t.Fatal("unlisted movie should not be added")
	}
	if len(f.writer.upserts) != 1 || !f.writer.upserts[0].movie.IsFavorite {
		t.Fatalf("unexpected write-backs: %+v", f.writer.upserts)
	}
}

func TestFavoriteWithoutUsernameIsParkedAndReplayedOnce(t *testing.T) {
	f := newFixture(t, "")
	movie, _ := f.store.Find("1")

	if got := f.gate.RequestFavorite(movie, ""); got != UsernameRequired {
		t.Fatalf("outcome = %v, want username_required", got)
	}
	if m, _ := f.store.Find("1"); m.IsFavorite {
		t.Fatal("store changed before a username was given")
	}
	modals := f.gate.Modals()
	if !modals.UsernamePrompt || modals.PromptIntent != domain.ActionFavorite {
		t.Fatalf("prompt not opened: %+v", modals)
	}
	if p, ok := f.gate.Pending(); !ok || p.Kind != domain.ActionFavorite || p.Movie.ID != "1" {
		t.Fatalf("unexpected pending action: %+v, %v", p, ok)
	}

	if err := f.gate.SubmitUsername(context.Background(), "alice"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.gate.Wait()

	if f.state.State().Username != "alice" {
		t.Fatalf("username not set: %+v", f.state.State())
	}
	if m, _ := f.store.Find("1"); !m.IsFavorite {
		t.Fatal("parked favorite not replayed")
	}
	if len(f.writer.upserts) != 1 || f.writer.upserts[0].username != "alice" {
		t.Fatalf("replay must persist under the new username: %+v", f.writer.upserts)
	}
	if _, ok := f.gate.Pending(); ok {
		t.Fatal("pending action must be discarded after replay")
	}
	if f.gate.Modals().UsernamePrompt {
		t.Fatal("prompt still open")
	}

	// A second submit has nothing left to replay.
	if err := f.gate.SubmitUsername(context.Background(), "alice"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.gate.Wait()
	if len(f.writer.upserts) != 1 {
		t.Fatalf("action replayed twice: %+v", f.writer.upserts)
	}
}

func TestExplicitUsernameOverridesEmptyState(t *testing.T) {
	f := newFixture(t, "")
	movie, _ := f.store.Find("2")

	if got := f.gate.RequestFavorite(movie, "carol"); got != Handled {
		t.Fatalf("outcome = %v, want handled", got)
	}
	f.gate.Wait()
	if m, _ := f.store.Find("2"); m.IsFavorite {
		t.Fatal("favorite not toggled off")
	}
	if len(f.writer.upserts) != 1 || f.writer.upserts[0].username != "carol" {
		t.Fatalf("unexpected write-backs: %+v", f.writer.upserts)
	}
}

func TestGatedIntentsOpenPromptWithoutUsername(t *testing.T) {
	cases := []struct {
		name string
		kind domain.ActionKind
		do   func(g *Gate, m domain.Movie) Outcome
	}{
		{"edit", domain.ActionEdit, func(g *Gate, m domain.Movie) Outcome { return g.RequestEdit(m) }},
		{"delete", domain.ActionDelete, func(g *Gate, m domain.Movie) Outcome { return g.RequestDelete(m) }},
		{"create", domain.ActionCreate, func(g *Gate, _ domain.Movie) Outcome { return g.RequestCreate() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, "")
			movie, _ := f.store.Find("1")
			if got := tc.do(f.gate, movie); got != UsernameRequired {
				t.Fatalf("outcome = %v, want username_required", got)
			}
			modals := f.gate.Modals()
			if !modals.UsernamePrompt || modals.PromptIntent != tc.kind || modals.Editor || modals.DeleteConfirm {
				t.Fatalf("unexpected modals: %+v", modals)
			}

			if err := f.gate.SubmitUsername(context.Background(), "alice"); err != nil {
				t.Fatalf("submit: %v", err)
			}
			modals = f.gate.Modals()
			switch tc.kind {
			case domain.ActionEdit:
				if !modals.Editor || modals.EditorMovie == nil || modals.EditorMovie.ID != "1" {
					t.Fatalf("editor not opened for movie 1: %+v", modals)
				}
			case domain.ActionDelete:
				if !modals.DeleteConfirm || modals.DeleteMovie == nil || modals.DeleteMovie.ID != "1" {
					t.Fatalf("delete confirmation not opened: %+v", modals)
				}
			case domain.ActionCreate:
				if !modals.Editor || modals.EditorMovie != nil {
					t.Fatalf("empty editor not opened: %+v", modals)
				}
			}
		})
	}
}

func TestSubmitUsernameValidates(t *testing.T) {
	f := newFixture(t, "")
	movie, _ := f.store.Find("1")
	f.gate.RequestFavorite(movie, "")

	err := f.gate.SubmitUsername(context.Background(), "al")
	var errs validate.Errors
	if !errors.As(err, &errs) || errs["username"] == "" {
		t.Fatalf("expected username validation error, got %v", err)
	}
	if _, ok := f.gate.Pending(); !ok {
		t.Fatal("invalid submit must keep the pending action")
	}
	if f.state.State().Username != "" {
		t.Fatal("invalid username stored")
	}
}

func TestChangeUserOpensNeutralPrompt(t *testing.T) {
	f := newFixture(t, "alice")
	f.gate.ChangeUser(context.Background())

	if f.state.State().Username != "" {
		t.Fatal("username not cleared")
	}
	modals := f.gate.Modals()
	if !modals.UsernamePrompt || modals.PromptIntent != domain.ActionCreate {
		t.Fatalf("unexpected modals: %+v", modals)
	}
	if _, ok := f.gate.Pending(); ok {
		t.Fatal("change user must not park an action")
	}

	if err := f.gate.SubmitUsername(context.Background(), "bob"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.gate.Modals().Editor {
		t.Fatal("neutral prompt must not open the editor")
	}
}

func TestCloseUsernamePromptDiscardsPending(t *testing.T) {
	f := newFixture(t, "")
	f.gate.RequestCreate()
	f.gate.CloseUsernamePrompt()

	if _, ok := f.gate.Pending(); ok {
		t.Fatal("pending action survived closing the prompt")
	}
	_ = f.gate.SubmitUsername(context.Background(), "alice")
	if f.gate.Modals().Editor {
		t.Fatal("discarded action was replayed")
	}
}

func TestSaveCreatesNewMovie(t *testing.T) {
	f := newFixture(t, "alice")
	f.gate.RequestCreate()

	saved, err := f.gate.Save(validate.MovieForm{
		Title:    "  the thing! ",
		Year:     "1982",
		Runtime:  "109 min",
		Genre:    "Horror",
		Director: "John Carpenter",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	f.gate.Wait()

	if saved.ID != "new-id" || saved.Title != "The Thing" || saved.IsFavorite {
		t.Fatalf("unexpected movie: %+v", saved)
	}
	if m, ok := f.store.Find("new-id"); !ok || m.Title != "The Thing" {
		t.Fatalf("movie not added: %+v", m)
	}
	if f.gate.Modals().Editor {
		t.Fatal("editor still open after save")
	}
	if len(f.writer.upserts) != 1 || f.writer.upserts[0].movie.ID != "new-id" {
		t.Fatalf("unexpected write-backs: %+v", f.writer.upserts)
	}
}

func TestSaveUpdatesEditedMovieKeepingFavorite(t *testing.T) {
	f := newFixture(t, "alice")
	alien, _ := f.store.Find("2")
	f.gate.RequestEdit(alien)

	saved, err := f.gate.Save(validate.MovieForm{
		ID:       "ignored",
		Title:    "alien",
		Year:     "1979",
		Runtime:  "116 min",
		Genre:    "Sci-Fi",
		Director: "Ridley Scott",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID != "2" || !saved.IsFavorite || saved.Genre != "Sci-Fi" {
		t.Fatalf("unexpected movie: %+v", saved)
	}
	if got := len(f.store.Movies()); got != 2 {
		t.Fatalf("edit must not add a movie, list has %d", got)
	}
	if m, _ := f.store.Find("2"); m.Runtime != "116 min" {
		t.Fatalf("edit not applied: %+v", m)
	}
}

func TestSaveRejectsInvalidOrDuplicate(t *testing.T) {
	f := newFixture(t, "alice")
	f.gate.RequestCreate()

	_, err := f.gate.Save(validate.MovieForm{Title: "heat", Year: "1995", Runtime: "1", Genre: "Crime", Director: "Mann"})
	var errs validate.Errors
	if !errors.As(err, &errs) || errs["title"] != "Movie already exists" {
		t.Fatalf("expected duplicate title error, got %v", err)
	}
	if !f.gate.Modals().Editor {
		t.Fatal("editor must stay open on validation failure")
	}
	f.gate.Wait()
	if len(f.writer.upserts) != 0 {
		t.Fatal("invalid form must not be persisted")
	}
}

func TestSaveRequiresOpenEditor(t *testing.T) {
	f := newFixture(t, "alice")
	if _, err := f.gate.Save(validate.MovieForm{}); !errors.Is(err, ErrEditorClosed) {
		t.Fatalf("expected ErrEditorClosed, got %v", err)
	}
}

func TestConfirmDelete(t *testing.T) {
	f := newFixture(t, "alice")
	heat, _ := f.store.Find("1")
	f.gate.RequestDelete(heat)

	deleted, err := f.gate.ConfirmDelete()
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.gate.Wait()
	if deleted.ID != "1" {
		t.Fatalf("deleted %+v", deleted)
	}
	if _, ok := f.store.Find("1"); ok {
		t.Fatal("movie still listed")
	}
	if len(f.writer.deletes) != 1 || f.writer.deletes[0] != (deleteCall{"alice", "1"}) {
		t.Fatalf("unexpected deletes: %+v", f.writer.deletes)
	}
	if _, err := f.gate.ConfirmDelete(); !errors.Is(err, ErrNothingToDelete) {
		t.Fatalf("expected ErrNothingToDelete, got %v", err)
	}
}

func TestPersistFailureKeepsLocalChange(t *testing.T) {
	f := newFixture(t, "alice")
	f.writer.err = errors.New("records down")
	movie, _ := f.store.Find("1")

	f.gate.RequestFavorite(movie, "")
	f.gate.Wait()

	if m, _ := f.store.Find("1"); !m.IsFavorite {
		t.Fatal("local change rolled back")
	}
}

func TestOutcomeText(t *testing.T) {
	if Handled.String() != "handled" || UsernameRequired.String() != "username_required" {
		t.Fatalf("unexpected names %q %q", Handled, UsernameRequired)
	}
}
