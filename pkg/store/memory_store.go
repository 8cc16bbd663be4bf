package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"libraryhub/pkg/domain"
)

// MemoryStore keeps records in-process. Transactions are serialized and
// work on a copy of the data that replaces the live copy only on commit.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryTx
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore(options ...Option) *MemoryStore {
	return &MemoryStore{
		state: &memoryTx{
			opts:    buildOptions(options),
			authors: make(map[int64]domain.Author),
			books:   make(map[int64]domain.Book),
			borrows: make(map[int64]domain.Borrow),
		},
	}
}

// InTx runs fn against a snapshot and publishes it when fn succeeds.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.state.clone()
	if err := fn(snapshot); err != nil {
		return err
	}
	m.state = snapshot
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateAuthor(ctx context.Context, a *domain.Author) error {
	return m.InTx(ctx, func(tx Tx) error { return tx.CreateAuthor(ctx, a) })
}

func (m *MemoryStore) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListAuthors(ctx)
}

func (m *MemoryStore) GetAuthor(ctx context.Context, id int64) (domain.Author, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetAuthor(ctx, id)
}

func (m *MemoryStore) UpdateAuthor(ctx context.Context, a domain.Author) error {
	return m.InTx(ctx, func(tx Tx) error { return tx.UpdateAuthor(ctx, a) })
}

func (m *MemoryStore) DeleteAuthor(ctx context.Context, id int64) error {
	return m.InTx(ctx, func(tx Tx) error { return tx.DeleteAuthor(ctx, id) })
}

func (m *MemoryStore) CreateBook(ctx context.Context, b *domain.Book) error {
	return m.InTx(ctx, func(tx Tx) error { return tx.CreateBook(ctx, b) })
}

func (m *MemoryStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListBooks(ctx)
}

func (m *MemoryStore) ListBooksByAuthor(ctx context.Context, authorID int64) ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListBooksByAuthor(ctx, authorID)
}

func (m *MemoryStore) GetBook(ctx context.Context, id int64) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetBook(ctx, id)
}

func (m *MemoryStore) GetBookForUpdate(ctx context.Context, id int64) (domain.Book, bool, error) {
	return m.GetBook(ctx, id)
}

func (m *MemoryStore) UpdateBook(ctx context.Context, b domain.Book) error {
	return m.InTx(ctx, func(tx Tx) error { return tx.UpdateBook(ctx, b) })
}

func (m *MemoryStore) DeleteBook(ctx context.Context, id int64) error {
	return m.InTx(ctx, func(tx Tx) error { return tx.DeleteBook(ctx, id) })
}

func (m *MemoryStore) CreateBorrow(ctx context.Context, b *domain.Borrow) error {
	return m.InTx(ctx, func(tx Tx) error { return tx.CreateBorrow(ctx, b) })
}

func (m *MemoryStore) ListBorrows(ctx context.Context) ([]domain.Borrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListBorrows(ctx)
}

func (m *MemoryStore) GetBorrow(ctx context.Context, id int64) (domain.Borrow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetBorrow(ctx, id)
}

func (m *MemoryStore) GetBorrowForUpdate(ctx context.Context, id int64) (domain.Borrow, bool, error) {
	return m.GetBorrow(ctx, id)
}

func (m *MemoryStore) UpdateBorrow(ctx context.Context, b domain.Borrow) error {
	return m.InTx(ctx, func(tx Tx) error { return tx.UpdateBorrow(ctx, b) })
}

// memoryTx is one consistent copy of the data. The live copy is only ever
// read or replaced while MemoryStore.mu is held.
type memoryTx struct {
	opts Options

	authors map[int64]domain.Author
	books   map[int64]domain.Book
	borrows map[int64]domain.Borrow

	lastAuthorID int64
	lastBookID   int64
	lastBorrowID int64
}

func (t *memoryTx) clone() *memoryTx {
	c := *t
	c.authors = maps.Clone(t.authors)
	c.books = maps.Clone(t.books)
	c.borrows = maps.Clone(t.borrows)
	return &c
}

func nextID[V any](rows map[int64]V, last *int64, reset bool) int64 {
	if reset && len(rows) == 0 {
		*last = 0
	}
	*last++
	return *last
}

func sortedValues[V any](rows map[int64]V, keep func(V) bool) []V {
	ids := slices.Sorted(maps.Keys(rows))
	res := make([]V, 0, len(ids))
	for _, id := range ids {
		v := rows[id]
		if keep != nil && !keep(v) {
			continue
		}
		res = append(res, v)
	}
	return res
}

func (t *memoryTx) CreateAuthor(_ context.Context, a *domain.Author) error {
	a.ID = nextID(t.authors, &t.lastAuthorID, t.opts.ResetSequenceWhenEmpty)
	t.authors[a.ID] = *a
	return nil
}

func (t *memoryTx) ListAuthors(context.Context) ([]domain.Author, error) {
	return sortedValues(t.authors, nil), nil
}

func (t *memoryTx) GetAuthor(_ context.Context, id int64) (domain.Author, bool, error) {
	a, ok := t.authors[id]
	return a, ok, nil
}

func (t *memoryTx) UpdateAuthor(_ context.Context, a domain.Author) error {
	if _, ok := t.authors[a.ID]; ok {
		t.authors[a.ID] = a
	}
	return nil
}

func (t *memoryTx) DeleteAuthor(ctx context.Context, id int64) error {
	for bookID, b := range t.books {
		if b.AuthorID == id {
			_ = t.DeleteBook(ctx, bookID)
		}
	}
	delete(t.authors, id)
	return nil
}

func (t *memoryTx) CreateBook(_ context.Context, b *domain.Book) error {
	if _, ok := t.authors[b.AuthorID]; !ok {
		return fmt.Errorf("%w: author %d", ErrForeignKey, b.AuthorID)
	}
	b.ID = nextID(t.books, &t.lastBookID, t.opts.ResetSequenceWhenEmpty)
	b.HasCover = b.CoverKey != ""
	t.books[b.ID] = *b
	return nil
}

func (t *memoryTx) ListBooks(context.Context) ([]domain.Book, error) {
	return sortedValues(t.books, nil), nil
}

func (t *memoryTx) ListBooksByAuthor(_ context.Context, authorID int64) ([]domain.Book, error) {
	return sortedValues(t.books, func(b domain.Book) bool { return b.AuthorID == authorID }), nil
}

func (t *memoryTx) GetBook(_ context.Context, id int64) (domain.Book, bool, error) {
	b, ok := t.books[id]
	return b, ok, nil
}

func (t *memoryTx) GetBookForUpdate(ctx context.Context, id int64) (domain.Book, bool, error) {
	return t.GetBook(ctx, id)
}

func (t *memoryTx) UpdateBook(_ context.Context, b domain.Book) error {
	if _, ok := t.books[b.ID]; !ok {
		return nil
	}
	if _, ok := t.authors[b.AuthorID]; !ok {
		return fmt.Errorf("%w: author %d", ErrForeignKey, b.AuthorID)
	}
	b.HasCover = b.CoverKey != ""
	t.books[b.ID] = b
	return nil
}

func (t *memoryTx) DeleteBook(_ context.Context, id int64) error {
	for borrowID, br := range t.borrows {
		if br.BookID == id {
			delete(t.borrows, borrowID)
		}
	}
	delete(t.books, id)
	return nil
}

func (t *memoryTx) CreateBorrow(_ context.Context, b *domain.Borrow) error {
	if _, ok := t.books[b.BookID]; !ok {
		return fmt.Errorf("%w: book %d", ErrForeignKey, b.BookID)
	}
	b.ID = nextID(t.borrows, &t.lastBorrowID, t.opts.ResetSequenceWhenEmpty)
	t.borrows[b.ID] = *b
	return nil
}

func (t *memoryTx) ListBorrows(context.Context) ([]domain.Borrow, error) {
	return sortedValues(t.borrows, nil), nil
}

func (t *memoryTx) GetBorrow(_ context.Context, id int64) (domain.Borrow, bool, error) {
	b, ok := t.borrows[id]
	return b, ok, nil
}

func (t *memoryTx) GetBorrowForUpdate(ctx context.Context, id int64) (domain.Borrow, bool, error) {
	return t.GetBorrow(ctx, id)
}

func (t *memoryTx) UpdateBorrow(_ context.Context, b domain.Borrow) error {
	if _, ok := t.borrows[b.ID]; ok {
		t.borrows[b.ID] = b
	}
	return nil
}
