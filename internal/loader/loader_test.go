package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/movies"
)

type fakeSearch struct {
	results map[string][]domain.Movie
	err     error
	calls   atomic.Int32
}

func (f *fakeSearch) Search(_ context.Context, query string) ([]domain.Movie, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return domain.CloneMovies(f.results[query]), nil
}

type fakeRecords struct {
	byUser map[string][]domain.Movie
	err    error
	calls  atomic.Int32
}

func (f *fakeRecords) UserMovies(_ context.Context, username string) ([]domain.Movie, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return domain.CloneMovies(f.byUser[username]), nil
}

// gatedSearch blocks every query until its gate is released and ignores
// cancellation, like a transport that cannot be interrupted.
type gatedSearch struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	started chan string
}

func newGatedSearch(queries ...string) *gatedSearch {
	g := &gatedSearch{gates: make(map[string]chan struct{}), started: make(chan string, len(queries))}
	for _, q := range queries {
		g.gates[q] = make(chan struct{})
	}
	return g
}

func (g *gatedSearch) Search(_ context.Context, query string) ([]domain.Movie, error) {
	g.mu.Lock()
	gate := g.gates[query]
	g.mu.Unlock()
	g.started <- query
	<-gate
	return []domain.Movie{{ID: query, Title: query}}, nil
}

func (g *gatedSearch) release(query string) {
	close(g.gates[query])
}

// slowSearch honors cancellation and otherwise never returns.
type slowSearch struct {
	started chan struct{}
}

func (s *slowSearch) Search(ctx context.Context, _ string) ([]domain.Movie, error) {
	close(s.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

type loadResult struct {
	list []domain.Movie
	err  error
}

func TestLoadWithoutUsernameSearchesOnly(t *testing.T) {
	search := &fakeSearch{results: map[string][]domain.Movie{
		"batman": {{ID: "1", Title: "Batman", IsFavorite: true}, {ID: "2", Title: "Batman Returns"}},
	}}
	records := &fakeRecords{}
	store := movies.NewStore()
	o := New(search, records, store)
	defer o.Close()

	list, err := o.Load(context.Background(), "batman", "  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 movies, got %d", len(list))
	}
	for _, m := range store.Movies() {
		if m.IsFavorite {
			t.Fatalf("movie %q favorite without username", m.ID)
		}
	}
	if records.calls.Load() != 0 {
		t.Fatal("records must not be fetched without a username")
	}
	if snap := store.Snapshot(); snap.Loading || snap.Error != "" {
		t.Fatalf("unexpected state %+v", snap)
	}
}

func TestLoadMergesRecordsForUsername(t *testing.T) {
	search := &fakeSearch{results: map[string][]domain.Movie{
		"": {{ID: "1", Title: "Heat"}, {ID: "2", Title: "Alien"}},
	}}
	records := &fakeRecords{byUser: map[string][]domain.Movie{
		"alice": {{ID: "1", Title: "Heat", IsFavorite: true}, {ID: "9", Title: "Home Video", IsFavorite: true}},
	}}
	store := movies.NewStore()
	o := New(search, records, store)
	defer o.Close()

	if _, err := o.Load(context.Background(), "", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := store.Movies()
	if len(got) != 3 {
		t.Fatalf("expected 3 movies, got %+v", got)
	}
	if got[0].ID != "1" || !got[0].IsFavorite {
		t.Fatalf("record favorite not applied: %+v", got[0])
	}
	if got[1].ID != "2" || got[1].IsFavorite {
		t.Fatalf("unexpected second movie: %+v", got[1])
	}
	if got[2].ID != "9" || !got[2].IsFavorite || got[2].Title != "Home Video" {
		t.Fatalf("custom record not appended: %+v", got[2])
	}
}

func TestLoadFailureKeepsListAndSetsError(t *testing.T) {
	search := &fakeSearch{results: map[string][]domain.Movie{"x": {{ID: "1"}}}}
	store := movies.NewStore()
	o := New(search, &fakeRecords{}, store)
	defer o.Close()

	if _, err := o.Load(context.Background(), "x", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	search.err = errors.New("service temporarily unavailable")
	_, err := o.Load(context.Background(), "y", "")
	if err == nil {
		t.Fatal("expected error")
	}
	snap := store.Snapshot()
	if snap.Error != "service temporarily unavailable" || snap.Loading {
		t.Fatalf("unexpected state %+v", snap)
	}
	if len(snap.List) != 1 || snap.List[0].ID != "1" {
		t.Fatalf("failure must keep the previous list: %+v", snap.List)
	}
}

func TestPartialFailureIsTotalFailure(t *testing.T) {
	search := &fakeSearch{results: map[string][]domain.Movie{"q": {{ID: "1"}}}}
	records := &fakeRecords{err: errors.New("records down")}
	store := movies.NewStore()
	o := New(search, records, store)
	defer o.Close()

	if _, err := o.Load(context.Background(), "q", "alice"); err == nil {
		t.Fatal("expected error")
	}
	snap := store.Snapshot()
	if len(snap.List) != 0 || snap.Error != "records down" {
		t.Fatalf("partial results must not be committed: %+v", snap)
	}
}

func TestStaleLoadNeverCommits(t *testing.T) {
	search := newGatedSearch("a", "b")
	store := movies.NewStore()
	o := New(search, &fakeRecords{}, store)
	defer o.Close()

	resultA := make(chan loadResult, 1)
	go func() {
		list, err := o.Load(context.Background(), "a", "")
		resultA <- loadResult{list, err}
	}()
	if q := <-search.started; q != "a" {
		t.Fatalf("expected a to start first, got %q", q)
	}

	resultB := make(chan loadResult, 1)
	go func() {
		list, err := o.Load(context.Background(), "b", "")
		resultB <- loadResult{list, err}
	}()
	<-search.started

	search.release("b")
	b := <-resultB
	if b.err != nil {
		t.Fatalf("b failed: %v", b.err)
	}

	search.release("a")
	a := <-resultA
	if !errors.Is(a.err, ErrCanceled) {
		t.Fatalf("expected a to be canceled, got %v", a.err)
	}

	got := store.Movies()
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("state must reflect b, got %+v", got)
	}
}

func TestStartIssuesSynchronously(t *testing.T) {
	search := newGatedSearch("first", "second")
	store := movies.NewStore()
	o := New(search, &fakeRecords{}, store)

	o.Start("first", "")
	o.Start("second", "")
	if !store.Loading() {
		t.Fatal("Start must mark the store loading immediately")
	}
	<-search.started
	<-search.started
	search.release("second")
	search.release("first")
	o.Wait()

	got := store.Movies()
	if len(got) != 1 || got[0].ID != "second" {
		t.Fatalf("latest issued load must win, got %+v", got)
	}
	o.Close()
}

func TestCloseCancelsInFlightLoad(t *testing.T) {
	search := &slowSearch{started: make(chan struct{})}
	store := movies.NewStore()
	store.SetMovies([]domain.Movie{{ID: "kept"}})
	o := New(search, &fakeRecords{}, store)

	result := make(chan loadResult, 1)
	go func() {
		list, err := o.Load(context.Background(), "slow", "")
		result <- loadResult{list, err}
	}()
	<-search.started
	o.Close()

	select {
	case r := <-result:
		if !errors.Is(r.err, ErrCanceled) {
			t.Fatalf("expected ErrCanceled, got %v", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("load did not return after Close")
	}
	snap := store.Snapshot()
	if snap.Loading || snap.Error != "" || len(snap.List) != 1 || snap.List[0].ID != "kept" {
		t.Fatalf("canceled load mutated state: %+v", snap)
	}

	if _, err := o.Load(context.Background(), "late", ""); !errors.Is(err, ErrCanceled) {
		t.Fatalf("load after Close must be rejected, got %v", err)
	}
}

func TestLoadCanceledByCaller(t *testing.T) {
	search := &slowSearch{started: make(chan struct{})}
	store := movies.NewStore()
	o := New(search, &fakeRecords{}, store)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-search.started
		cancel()
	}()
	if _, err := o.Load(ctx, "q", ""); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if store.Err() != "" {
		t.Fatalf("cancellation must not surface as an error: %q", store.Err())
	}
	if store.Loading() {
		t.Fatal("a canceled load without successor must clear loading")
	}
}

// rendezvous serves records and waits until search has started; its search
// side does the reverse, so a load only completes with both in flight.
type rendezvous struct {
	records chan struct{}
	search  chan struct{}
}

func (r *rendezvous) UserMovies(ctx context.Context, _ string) ([]domain.Movie, error) {
	close(r.records)
	select {
	case <-r.search:
		return []domain.Movie{{ID: "9", Title: "Home Video", IsFavorite: true}}, nil
	case <-time.After(2 * time.Second):
		return nil, errors.New("search never started while records was in flight")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type rendezvousSearch struct{ *rendezvous }

func (r rendezvousSearch) Search(ctx context.Context, _ string) ([]domain.Movie, error) {
	close(r.search)
	select {
	case <-r.records:
		return []domain.Movie{{ID: "1", Title: "Heat"}}, nil
	case <-time.After(2 * time.Second):
		return nil, errors.New("records never started while search was in flight")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestLoadFetchesRecordsAndSearchConcurrently(t *testing.T) {
	r := &rendezvous{records: make(chan struct{}), search: make(chan struct{})}
	store := movies.NewStore()
	o := New(rendezvousSearch{r}, r, store)
	defer o.Close()

	list, err := o.Load(context.Background(), "", "alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(list) != 2 || list[0].ID != "1" || list[1].ID != "9" {
		t.Fatalf("unexpected list: %+v", list)
	}
}
