package store

import (
	"context"
	"errors"

	"libraryhub/pkg/domain"
)

// ErrForeignKey is returned when a write references a row that does not exist.
var ErrForeignKey = errors.New("referenced row does not exist")

// Store defines persistence operations for authors, books, and borrows.
// Methods called directly on a Store run in their own implicit transaction;
// InTx groups several operations into one atomic unit.
type Store interface {
	Tx

	// InTx runs fn inside a transaction. A nil return commits, any error
	// (or panic) rolls back every write made through tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	// authors
	CreateAuthor(ctx context.Context, a *domain.Author) error
	ListAuthors(ctx context.Context) ([]domain.Author, error)
	GetAuthor(ctx context.Context, id int64) (domain.Author, bool, error)
	UpdateAuthor(ctx context.Context, a domain.Author) error
	DeleteAuthor(ctx context.Context, id int64) error

	// books
	CreateBook(ctx context.Context, b *domain.Book) error
	ListBooks(ctx context.Context) ([]domain.Book, error)
	ListBooksByAuthor(ctx context.Context, authorID int64) ([]domain.Book, error)
	GetBook(ctx context.Context, id int64) (domain.Book, bool, error)
	// GetBookForUpdate reads a book and locks its row until the transaction ends.
	GetBookForUpdate(ctx context.Context, id int64) (domain.Book, bool, error)
	UpdateBook(ctx context.Context, b domain.Book) error
	DeleteBook(ctx context.Context, id int64) error

	// borrows
	CreateBorrow(ctx context.Context, b *domain.Borrow) error
	ListBorrows(ctx context.Context) ([]domain.Borrow, error)
	GetBorrow(ctx context.Context, id int64) (domain.Borrow, bool, error)
	GetBorrowForUpdate(ctx context.Context, id int64) (domain.Borrow, bool, error)
	UpdateBorrow(ctx context.Context, b domain.Borrow) error
}

// Options tunes store behaviour shared by every implementation.
type Options struct {
	// ResetSequenceWhenEmpty restarts a table's id numbering at 1 whenever a row
	// is inserted into an empty table.
	ResetSequenceWhenEmpty bool
}

type Option func(*Options)

// WithResetSequenceWhenEmpty toggles identity reset on empty tables.
func WithResetSequenceWhenEmpty(enabled bool) Option {
	return func(opts *Options) {
		opts.ResetSequenceWhenEmpty = enabled
	}
}

func buildOptions(options []Option) Options {
	opts := Options{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	return opts
}
