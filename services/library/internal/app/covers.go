package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
	"libraryhub/pkg/store"
)

var coverExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// SetBookCover uploads a cover image and points the book at it. The previous
// cover, if any, is removed once the book row is updated.
func (a *App) SetBookCover(ctx context.Context, bookID int64, contentType string, r io.Reader, size int64) (domain.Book, error) {
	if a.objects == nil {
		return domain.Book{}, ErrCoversDisabled
	}
	contentType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext, ok := coverExtensions[contentType]
	if !ok {
		return domain.Book{}, ErrUnsupportedCoverType
	}
	if _, err := a.GetBook(ctx, bookID); err != nil {
		return domain.Book{}, err
	}

	key := fmt.Sprintf("covers/%d/%s%s", bookID, util.NewID(), ext)
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return domain.Book{}, fmt.Errorf("upload cover: %w", err)
	}

	var (
		updated domain.Book
		oldKey  string
	)
	err := a.store.InTx(ctx, func(tx store.Tx) error {
		book, ok, err := tx.GetBookForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookNotFound
		}
		oldKey = book.CoverKey
		book.CoverKey = key
		book.HasCover = true
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}
		updated = book
		return nil
	})
	if err != nil {
		a.removeObjects(ctx, key)
		return domain.Book{}, fmt.Errorf("set book cover: %w", err)
	}
	a.removeObjects(ctx, oldKey)
	return updated, nil
}

// BookCoverURL returns a short-lived URL for the book's cover image.
func (a *App) BookCoverURL(ctx context.Context, bookID int64) (string, error) {
	if a.objects == nil {
		return "", ErrCoversDisabled
	}
	book, err := a.GetBook(ctx, bookID)
	if err != nil {
		return "", err
	}
	if book.CoverKey == "" {
		return "", ErrCoverNotFound
	}
	url, err := a.objects.PresignGet(ctx, book.CoverKey, a.coverExpiry)
	if err != nil {
		return "", fmt.Errorf("presign cover: %w", err)
	}
	return url, nil
}
