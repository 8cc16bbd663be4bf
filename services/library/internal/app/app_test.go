package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryhub/pkg/domain"
	"libraryhub/pkg/events"
	"libraryhub/pkg/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string]string)}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = string(body)
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjects) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	return out
}

type testEnv struct {
	app     *App
	events  *recordingPublisher
	objects *fakeObjects
}

func newTestApp(t *testing.T) testEnv {
	t.Helper()
	pub := &recordingPublisher{}
	objs := newFakeObjects()
	a, err := New(Config{
		Store:   store.NewMemoryStore(),
		Objects: objs,
		Events:  pub,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return testEnv{app: a, events: pub, objects: objs}
}

func mustAuthor(t *testing.T, a *App) domain.Author {
	t.Helper()
	author, err := a.CreateAuthor(context.Background(), AuthorInput{Name: "Leo", Surname: "Tolstoy"})
	require.NoError(t, err)
	return author
}

func mustBook(t *testing.T, a *App, authorID int64, copies int) domain.Book {
	t.Helper()
	book, err := a.CreateBook(context.Background(), BookInput{
		Title:           "War and Peace",
		AuthorID:        authorID,
		AvailableCopies: copies,
	})
	require.NoError(t, err)
	return book
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewDefaultsToNopPublisherAndNoCovers(t *testing.T) {
	a, err := New(Config{Store: store.NewMemoryStore()})
	require.NoError(t, err)
	assert.False(t, a.CoversEnabled())
	assert.IsType(t, events.Nop{}, a.events)
	assert.Equal(t, 15*time.Minute, a.coverExpiry)
}

func TestAuthorCRUD(t *testing.T) {
	ctx := context.Background()
	env := newTestApp(t)

	_, err := env.app.ListAuthors(ctx)
	require.ErrorIs(t, err, ErrNothingFound)

	dob := domain.DatePtr(domain.NewDate(1828, time.September, 9))
	created, err := env.app.CreateAuthor(ctx, AuthorInput{Name: " Leo ", Surname: "Tolstoy", DateOfBirth: dob})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "Leo", created.Name)

	got, err := env.app.GetAuthor(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	updated, err := env.app.UpdateAuthor(ctx, created.ID, AuthorInput{Name: "Lev", Surname: "Tolstoy"})
	require.NoError(t, err)
	assert.Equal(t, "Lev", updated.Name)
	assert.Nil(t, updated.DateOfBirth)

	_, err = env.app.UpdateAuthor(ctx, 99, AuthorInput{Name: "X", Surname: "Y"})
	require.ErrorIs(t, err, ErrAuthorNotFound)

	_, err = env.app.CreateAuthor(ctx, AuthorInput{Name: "", Surname: "Y"})
	require.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, env.app.DeleteAuthor(ctx, created.ID))
	_, err = env.app.GetAuthor(ctx, created.ID)
	require.ErrorIs(t, err, ErrAuthorNotFound)
	require.ErrorIs(t, env.app.DeleteAuthor(ctx, created.ID), ErrAuthorNotFound)
}

func TestCreateBookRequiresExistingAuthor(t *testing.T) {
	ctx := context.Background()
	env := newTestApp(t)

	_, err := env.app.CreateBook(ctx, BookInput{Title: "Orphan", AuthorID: 42, AvailableCopies: 1})
	require.ErrorIs(t, err, ErrReferencedAuthorNotFound)

	_, err = env.app.ListBooks(ctx)
	require.ErrorIs(t, err, ErrNothingFound)
}

func TestUpdateBook(t *testing.T) {
	ctx := context.Background()
	env := newTestApp(t)
	author := mustAuthor(t, env.app)
	book := mustBook(t, env.app, author.ID, 2)

	desc := "epic"
	updated, err := env.app.UpdateBook(ctx, book.ID, BookInput{
		Title:           "War & Peace",
		Description:     &desc,
		AuthorID:        author.ID,
		AvailableCopies: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.AvailableCopies)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "epic", *updated.Description)

	_, err = env.app.UpdateBook(ctx, book.ID, BookInput{Title: "x", AuthorID: 77, AvailableCopies: 1})
	require.ErrorIs(t, err, ErrReferencedAuthorNotFound)

	_, err = env.app.UpdateBook(ctx, book.ID, BookInput{Title: "x", AuthorID: author.ID, AvailableCopies: -1})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.app.UpdateBook(ctx, 99, BookInput{Title: "x", AuthorID: author.ID})
	require.ErrorIs(t, err, ErrBookNotFound)

	got, err := env.app.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.AvailableCopies)
}

func TestBorrowLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestApp(t)
	author := mustAuthor(t, env.app)
	book := mustBook(t, env.app, author.ID, 1)

	borrow, err := env.app.CreateBorrow(ctx, BorrowInput{
		BookID:     book.ID,
		ReaderName: "Alice",
		BorrowDate: domain.NewDate(2024, time.January, 1),
	})
	require.NoError(t, err)
	assert.False(t, borrow.IsReturned)
	assert.Nil(t, borrow.ReturnDate)

	got, err := env.app.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)

	_, err = env.app.CreateBorrow(ctx, BorrowInput{
		BookID:     book.ID,
		ReaderName: "Bob",
		BorrowDate: domain.NewDate(2024, time.January, 2),
	})
	require.ErrorIs(t, err, ErrNoCopiesAvailable)

	_, err = env.app.ReturnBorrow(ctx, borrow.ID, domain.NewDate(2023, time.December, 31))
	require.ErrorIs(t, err, ErrInvalidReturnDate)

	returned, err := env.app.ReturnBorrow(ctx, borrow.ID, domain.NewDate(2024, time.January, 10))
	require.NoError(t, err)
	assert.True(t, returned.IsReturned)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, "2024-01-10", returned.ReturnDate.String())

	got, err = env.app.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)

	_, err = env.app.ReturnBorrow(ctx, borrow.ID, domain.NewDate(2024, time.January, 11))
	require.ErrorIs(t, err, ErrAlreadyReturned)

	got, err = env.app.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)

	assert.Equal(t, []string{events.TypeBorrowCreated, events.TypeBorrowReturned}, env.events.types())
}

func TestCreateBorrowErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestApp(t)
	author := mustAuthor(t, env.app)
	book := mustBook(t, env.app, author.ID, 3)

	tests := []struct {
		name string
		in   BorrowInput
		want error
	}{
		{
			name: "missing book",
			in:   BorrowInput{BookID: 99, ReaderName: "A", BorrowDate: domain.NewDate(2024, 1, 1)},
			want: ErrBookNotFound,
		},
		{
			name: "blank reader",
			in:   BorrowInput{BookID: book.ID, ReaderName: "  ", BorrowDate: domain.NewDate(2024, 1, 1)},
			want: ErrInvalidInput,
		},
		{
			name: "missing borrow date",
			in:   BorrowInput{BookID: book.ID, ReaderName: "A"},
			want: ErrInvalidInput,
		},
		{
			name: "return before borrow",
			in: BorrowInput{
				BookID:     book.ID,
				ReaderName: "A",
				BorrowDate: domain.NewDate(2024, 2, 1),
				ReturnDate: domain.DatePtr(domain.NewDate(2024, 1, 1)),
			},
			want: ErrInvalidReturnDate,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.app.CreateBorrow(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	got, err := env.app.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableCopies)
	_, err = env.app.ListBorrows(ctx)
	require.ErrorIs(t, err, ErrNothingFound)
	assert.Empty(t, env.events.types())
}

func TestCreateBorrowWithReturnDateIsClosed(t *testing.T) {
	ctx := context.Background()
	env := newTestApp(t)
	author := mustAuthor(t, env.app)
	book := mustBook(t, env.app, author.ID, 2)

	borrow, err := env.app.CreateBorrow(ctx, BorrowInput{
		BookID:     book.ID,
		ReaderName: "Carol",
		BorrowDate: domain.NewDate(2024, 3, 1),
		ReturnDate: domain.DatePtr(domain.NewDate(2024, 3, 1)),
	})
	require.NoError(t, err)
	assert.True(t, borrow.IsReturned)

	got, err := env.app.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)

	_, err = env.app.ReturnBorrow(ctx, borrow.ID, domain.NewDate(2024, 3, 2))
	require.ErrorIs(t, err, ErrAlreadyReturned)
}

func TestReturnBorrowNotFound(t *testing.T) {
	env := newTestApp(t)
	_, err := env.app.ReturnBorrow(context.Background(), 5, domain.NewDate(2024, 1, 1))
	require.ErrorIs(t, err, ErrBorrowNotFound)
}

func TestConcurrentBorrowsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	env := newTestApp(t)
	author := mustAuthor(t, env.app)
	book := mustBook(t, env.app, author.ID, 3)

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.app.CreateBorrow(ctx, BorrowInput{
				BookID:     book.ID,
				ReaderName: "reader",
				BorrowDate: domain.NewDate(2024, 1, 1),
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrNoCopiesAvailable)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, success)
	got, err := env.app.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)
	borrows, err := env.app.ListBorrows(ctx)
	require.NoError(t, err)
	assert.Len(t, borrows, 3)
}

func TestDeleteAuthorCascades(t *testing.T) {
	ctx := context.Background()
	env := newTestApp(t)
	author := mustAuthor(t, env.app)
	book := mustBook(t, env.app, author.ID, 1)
	_, err := env.app.SetBookCover(ctx, book.ID, "image/png", strings.NewReader("png"), 3)
	require.NoError(t, err)
	_, err = env.app.CreateBorrow(ctx, BorrowInput{BookID: book.ID, ReaderName: "A", BorrowDate: domain.NewDate(2024, 1, 1)})
	require.NoError(t, err)

	require.NoError(t, env.app.DeleteAuthor(ctx, author.ID))

	_, err = env.app.GetBook(ctx, book.ID)
	require.ErrorIs(t, err, ErrBookNotFound)
	_, err = env.app.ListBorrows(ctx)
	require.ErrorIs(t, err, ErrNothingFound)
	assert.Empty(t, env.objects.keys())
}

func TestPublishFailureDoesNotFailBorrow(t *testing.T) {
	ctx := context.Background()
	env := newTestApp(t)
	env.events.err = errors.New("broker down")
	author := mustAuthor(t, env.app)
	book := mustBook(t, env.app, author.ID, 1)

	_, err := env.app.CreateBorrow(ctx, BorrowInput{BookID: book.ID, ReaderName: "A", BorrowDate: domain.NewDate(2024, 1, 1)})
	require.NoError(t, err)
}

func TestBookCover(t *testing.T) {
	ctx := context.Background()
	env := newTestApp(t)
	author := mustAuthor(t, env.app)
	book := mustBook(t, env.app, author.ID, 1)

	_, err := env.app.BookCoverURL(ctx, book.ID)
	require.ErrorIs(t, err, ErrCoverNotFound)

	_, err = env.app.SetBookCover(ctx, book.ID, "application/pdf", strings.NewReader("x"), 1)
	require.ErrorIs(t, err, ErrUnsupportedCoverType)

	first, err := env.app.SetBookCover(ctx, book.ID, "image/jpeg", strings.NewReader("one"), 3)
	require.NoError(t, err)
	assert.True(t, first.HasCover)
	assert.True(t, strings.HasSuffix(first.CoverKey, ".jpg"))

	second, err := env.app.SetBookCover(ctx, book.ID, "image/webp; charset=binary", strings.NewReader("two"), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{second.CoverKey}, env.objects.keys())

	url, err := env.app.BookCoverURL(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://objects.test/"+second.CoverKey, url)

	_, err = env.app.SetBookCover(ctx, 99, "image/png", strings.NewReader("x"), 1)
	require.ErrorIs(t, err, ErrBookNotFound)
}

func TestCoversDisabled(t *testing.T) {
	a, err := New(Config{Store: store.NewMemoryStore()})
	require.NoError(t, err)
	_, err = a.SetBookCover(context.Background(), 1, "image/png", strings.NewReader("x"), 1)
	require.ErrorIs(t, err, ErrCoversDisabled)
	_, err = a.BookCoverURL(context.Background(), 1)
	require.ErrorIs(t, err, ErrCoversDisabled)
}

func TestInputLengthMatchesColumns(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	author := mustAuthor(t, env.app)
	book := mustBook(t, env.app, author.ID, 1)

	_, err := env.app.CreateAuthor(ctx, AuthorInput{Name: strings.Repeat("é", domain.MaxNameLen), Surname: "Tolstoy"})
	require.NoError(t, err)
	_, err = env.app.CreateAuthor(ctx, AuthorInput{Name: strings.Repeat("n", domain.MaxNameLen+1), Surname: "Tolstoy"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.app.UpdateAuthor(ctx, author.ID, AuthorInput{Name: "Leo", Surname: strings.Repeat("s", domain.MaxNameLen+1)})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.app.CreateBook(ctx, BookInput{Title: strings.Repeat("t", domain.MaxTitleLen+1), AuthorID: author.ID})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.app.CreateBorrow(ctx, BorrowInput{
		BookID:     book.ID,
		ReaderName: strings.Repeat("r", domain.MaxNameLen+1),
		BorrowDate: domain.NewDate(2024, 1, 1),
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	got, err := env.app.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)
}

// lockRecorder notes the order in which rows are locked inside transactions.
type lockRecorder struct {
	store.Store
	mu    sync.Mutex
	locks []string
}

func (s *lockRecorder) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(lockRecordingTx{Tx: tx, rec: s})
	})
}

func (s *lockRecorder) note(row string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = append(s.locks, row)
}

func (s *lockRecorder) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.locks
	s.locks = nil
	return out
}

type lockRecordingTx struct {
	store.Tx
	rec *lockRecorder
}

func (t lockRecordingTx) GetBookForUpdate(ctx context.Context, id int64) (domain.Book, bool, error) {
	t.rec.note("book")
	return t.Tx.GetBookForUpdate(ctx, id)
}

func (t lockRecordingTx) GetBorrowForUpdate(ctx context.Context, id int64) (domain.Borrow, bool, error) {
	t.rec.note("borrow")
	return t.Tx.GetBorrowForUpdate(ctx, id)
}

func TestLifecycleLocksBookBeforeBorrow(t *testing.T) {
	rec := &lockRecorder{Store: store.NewMemoryStore()}
	a, err := New(Config{Store: rec})
	require.NoError(t, err)
	ctx := context.Background()

	author := mustAuthor(t, a)
	book := mustBook(t, a, author.ID, 1)
	rec.take()

	borrow, err := a.CreateBorrow(ctx, BorrowInput{BookID: book.ID, ReaderName: "Alice", BorrowDate: domain.NewDate(2024, 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"book"}, rec.take())

	_, err = a.ReturnBorrow(ctx, borrow.ID, domain.NewDate(2024, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, []string{"book", "borrow"}, rec.take())

	require.NoError(t, a.DeleteBook(ctx, book.ID))
	assert.Equal(t, []string{"book"}, rec.take())

	_, err = a.ReturnBorrow(ctx, borrow.ID, domain.NewDate(2024, 1, 11))
	require.ErrorIs(t, err, ErrBorrowNotFound)
}
