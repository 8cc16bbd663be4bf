package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"libraryhub/pkg/domain"
	"libraryhub/pkg/store"
)

// BookInput carries the writable book fields.
type BookInput struct {
	Title           string
	Description     *string
	AuthorID        int64
	AvailableCopies int
}

func (in *BookInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Title) > domain.MaxTitleLen {
		return fmt.Errorf("%w: title must be at most %d characters", ErrInvalidInput, domain.MaxTitleLen)
	}
	if in.AvailableCopies < 0 {
		return fmt.Errorf("%w: available_copies must not be negative", ErrInvalidInput)
	}
	return nil
}

// CreateBook stores a new book after checking its author exists.
func (a *App) CreateBook(ctx context.Context, in BookInput) (domain.Book, error) {
	if err := in.normalize(); err != nil {
		return domain.Book{}, err
	}
	book := domain.Book{
		Title:           in.Title,
		Description:     in.Description,
		AuthorID:        in.AuthorID,
		AvailableCopies: in.AvailableCopies,
	}
	err := a.store.InTx(ctx, func(tx store.Tx) error {
		if _, ok, err := tx.GetAuthor(ctx, in.AuthorID); err != nil {
			return err
		} else if !ok {
			return ErrReferencedAuthorNotFound
		}
		return tx.CreateBook(ctx, &book)
	})
	if errors.Is(err, store.ErrForeignKey) {
		// author deleted between the check and the insert
		return domain.Book{}, ErrReferencedAuthorNotFound
	}
	if err != nil {
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// ListBooks returns every book by ascending id, or ErrNothingFound.
func (a *App) ListBooks(ctx context.Context) ([]domain.Book, error) {
	books, err := a.store.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	if len(books) == 0 {
		return nil, ErrNothingFound
	}
	return books, nil
}

// GetBook retrieves a book by ID.
func (a *App) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	book, ok, err := a.store.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// UpdateBook replaces the writable fields of a book, including its copy count.
func (a *App) UpdateBook(ctx context.Context, id int64, in BookInput) (domain.Book, error) {
	if err := in.normalize(); err != nil {
		return domain.Book{}, err
	}
	var updated domain.Book
	err := a.store.InTx(ctx, func(tx store.Tx) error {
		current, ok, err := tx.GetBookForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookNotFound
		}
		if in.AuthorID != current.AuthorID {
			if _, ok, err := tx.GetAuthor(ctx, in.AuthorID); err != nil {
				return err
			} else if !ok {
				return ErrReferencedAuthorNotFound
			}
		}
		current.Title = in.Title
		current.Description = in.Description
		current.AuthorID = in.AuthorID
		current.AvailableCopies = in.AvailableCopies
		if err := tx.UpdateBook(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if errors.Is(err, store.ErrForeignKey) {
		return domain.Book{}, ErrReferencedAuthorNotFound
	}
	if err != nil {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	return updated, nil
}

// DeleteBook removes a book and its borrows. The book row is locked first so
// the cascade waits for in-flight borrows and returns on the same book.
func (a *App) DeleteBook(ctx context.Context, id int64) error {
	var coverKey string
	err := a.store.InTx(ctx, func(tx store.Tx) error {
		book, ok, err := tx.GetBookForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookNotFound
		}
		coverKey = book.CoverKey
		return tx.DeleteBook(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	a.removeObjects(ctx, coverKey)
	return nil
}
