package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libraryhub/pkg/domain"
)

func seedBook(t *testing.T, s Store, copies int) (domain.Author, domain.Book) {
	t.Helper()
	ctx := context.Background()
	author := domain.Author{Name: "Ursula", Surname: "Le Guin"}
	require.NoError(t, s.CreateAuthor(ctx, &author))
	book := domain.Book{Title: "The Dispossessed", AuthorID: author.ID, AvailableCopies: copies}
	require.NoError(t, s.CreateBook(ctx, &book))
	return author, book
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, book := seedBook(t, s, 3)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Tx) error {
		b, ok, err := tx.GetBookForUpdate(ctx, book.ID)
		require.NoError(t, err)
		require.True(t, ok)
		b.AvailableCopies = 0
		require.NoError(t, tx.UpdateBook(ctx, b))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, ok, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.AvailableCopies)
}

func TestMemoryStoreRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	author, _ := seedBook(t, s, 1)

	require.Panics(t, func() {
		_ = s.InTx(ctx, func(tx Tx) error {
			require.NoError(t, tx.DeleteAuthor(ctx, author.ID))
			panic("mid-transaction failure")
		})
	})

	_, ok, err := s.GetAuthor(ctx, author.ID)
	require.NoError(t, err)
	assert.True(t, ok, "author must survive a panicking transaction")
}

func TestMemoryStoreCascadeDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	author, book := seedBook(t, s, 1)
	borrow := domain.Borrow{BookID: book.ID, ReaderName: "Alice", BorrowDate: domain.NewDate(2024, 1, 1)}
	require.NoError(t, s.CreateBorrow(ctx, &borrow))

	require.NoError(t, s.DeleteAuthor(ctx, author.ID))

	_, ok, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.GetBorrow(ctx, borrow.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreForeignKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	book := domain.Book{Title: "Orphan", AuthorID: 42}
	require.ErrorIs(t, s.CreateBook(ctx, &book), ErrForeignKey)

	borrow := domain.Borrow{BookID: 42, ReaderName: "Bob", BorrowDate: domain.NewDate(2024, 1, 1)}
	require.ErrorIs(t, s.CreateBorrow(ctx, &borrow), ErrForeignKey)
}

func TestMemoryStoreListsOrderedByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, name := range []string{"A", "B", "C", "D"} {
		a := domain.Author{Name: name, Surname: name}
		require.NoError(t, s.CreateAuthor(ctx, &a))
	}
	authors, err := s.ListAuthors(ctx)
	require.NoError(t, err)
	require.Len(t, authors, 4)
	for i, a := range authors {
		assert.Equal(t, int64(i+1), a.ID)
	}
}

func TestMemoryStoreSequenceReset(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		reset  bool
		wantID int64
	}{
		{name: "keeps counting by default", reset: false, wantID: 3},
		{name: "restarts at one when empty", reset: true, wantID: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewMemoryStore(WithResetSequenceWhenEmpty(tc.reset))
			for range 2 {
				a := domain.Author{Name: "N", Surname: "S"}
				require.NoError(t, s.CreateAuthor(ctx, &a))
				require.NoError(t, s.DeleteAuthor(ctx, a.ID))
			}
			a := domain.Author{Name: "N", Surname: "S"}
			require.NoError(t, s.CreateAuthor(ctx, &a))
			assert.Equal(t, tc.wantID, a.ID)
		})
	}
}
