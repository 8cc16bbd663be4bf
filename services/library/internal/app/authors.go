package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"libraryhub/pkg/domain"
	"libraryhub/pkg/store"
)

// AuthorInput carries the writable author fields.
type AuthorInput struct {
	Name        string
	Surname     string
	DateOfBirth *domain.Date
}

func (in *AuthorInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)
	if in.Name == "" || in.Surname == "" {
		return fmt.Errorf("%w: name and surname are required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Name) > domain.MaxNameLen || utf8.RuneCountInString(in.Surname) > domain.MaxNameLen {
		return fmt.Errorf("%w: name and surname must be at most %d characters", ErrInvalidInput, domain.MaxNameLen)
	}
	return nil
}

// CreateAuthor stores a new author.
func (a *App) CreateAuthor(ctx context.Context, in AuthorInput) (domain.Author, error) {
	if err := in.normalize(); err != nil {
		return domain.Author{}, err
	}
	author := domain.Author{
		Name:        in.Name,
		Surname:     in.Surname,
		DateOfBirth: in.DateOfBirth,
	}
	if err := a.store.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateAuthor(ctx, &author)
	}); err != nil {
		return domain.Author{}, fmt.Errorf("create author: %w", err)
	}
	return author, nil
}

// ListAuthors returns every author by ascending id, or ErrNothingFound.
func (a *App) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	authors, err := a.store.ListAuthors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	if len(authors) == 0 {
		return nil, ErrNothingFound
	}
	return authors, nil
}

// GetAuthor retrieves an author by ID.
func (a *App) GetAuthor(ctx context.Context, id int64) (domain.Author, error) {
	author, ok, err := a.store.GetAuthor(ctx, id)
	if err != nil {
		return domain.Author{}, fmt.Errorf("get author: %w", err)
	}
	if !ok {
		return domain.Author{}, ErrAuthorNotFound
	}
	return author, nil
}

// UpdateAuthor replaces the writable fields of an author.
func (a *App) UpdateAuthor(ctx context.Context, id int64, in AuthorInput) (domain.Author, error) {
	if err := in.normalize(); err != nil {
		return domain.Author{}, err
	}
	var updated domain.Author
	err := a.store.InTx(ctx, func(tx store.Tx) error {
		current, ok, err := tx.GetAuthor(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAuthorNotFound
		}
		current.Name = in.Name
		current.Surname = in.Surname
		current.DateOfBirth = in.DateOfBirth
		if err := tx.UpdateAuthor(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return domain.Author{}, fmt.Errorf("update author: %w", err)
	}
	return updated, nil
}

// DeleteAuthor removes an author together with their books and borrows.
func (a *App) DeleteAuthor(ctx context.Context, id int64) error {
	var coverKeys []string
	err := a.store.InTx(ctx, func(tx store.Tx) error {
		if _, ok, err := tx.GetAuthor(ctx, id); err != nil {
			return err
		} else if !ok {
			return ErrAuthorNotFound
		}
		books, err := tx.ListBooksByAuthor(ctx, id)
		if err != nil {
			return err
		}
		for _, b := range books {
			coverKeys = append(coverKeys, b.CoverKey)
		}
		return tx.DeleteAuthor(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete author: %w", err)
	}
	a.removeObjects(ctx, coverKeys...)
	logger(ctx).Info("author deleted", "author_id", id, "books_removed", len(coverKeys))
	return nil
}
