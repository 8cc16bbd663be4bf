package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"libraryhub/pkg/domain"
	"libraryhub/pkg/events"
	"libraryhub/pkg/store"
)

// BorrowInput carries the fields used to open a borrow.
type BorrowInput struct {
	BookID     int64
	ReaderName string
	BorrowDate domain.Date
	ReturnDate *domain.Date
}

func (in *BorrowInput) normalize() error {
	in.ReaderName = strings.TrimSpace(in.ReaderName)
	if in.ReaderName == "" {
		return fmt.Errorf("%w: reader_name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.ReaderName) > domain.MaxNameLen {
		return fmt.Errorf("%w: reader_name must be at most %d characters", ErrInvalidInput, domain.MaxNameLen)
	}
	if in.BorrowDate.IsZero() {
		return fmt.Errorf("%w: borrow_date is required", ErrInvalidInput)
	}
	return nil
}

// CreateBorrow lends one copy of a book. The copy counter is decremented and
// the borrow inserted in the same transaction with the book row locked, so
// concurrent borrows can never drive the counter below zero.
//
// A borrow created with a return date is recorded as already returned; the
// counter is still decremented.
func (a *App) CreateBorrow(ctx context.Context, in BorrowInput) (domain.Borrow, error) {
	if err := in.normalize(); err != nil {
		return domain.Borrow{}, err
	}
	borrow := domain.Borrow{
		BookID:     in.BookID,
		ReaderName: in.ReaderName,
		BorrowDate: in.BorrowDate,
		ReturnDate: in.ReturnDate,
		IsReturned: in.ReturnDate != nil,
	}
	var remaining int
	err := a.store.InTx(ctx, func(tx store.Tx) error {
		book, ok, err := tx.GetBookForUpdate(ctx, in.BookID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookNotFound
		}
		if book.AvailableCopies <= 0 {
			return ErrNoCopiesAvailable
		}
		if in.ReturnDate != nil && in.ReturnDate.Before(in.BorrowDate) {
			return ErrInvalidReturnDate
		}
		book.AvailableCopies--
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}
		remaining = book.AvailableCopies
		return tx.CreateBorrow(ctx, &borrow)
	})
	if err != nil {
		return domain.Borrow{}, fmt.Errorf("create borrow: %w", err)
	}

	logger(ctx).Info("borrow created",
		"borrow_id", borrow.ID,
		"book_id", borrow.BookID,
		"available_copies", remaining,
	)
	a.publish(ctx, events.TypeBorrowCreated, borrow, remaining)
	return borrow, nil
}

// ReturnBorrow closes an open borrow and gives the copy back to its book.
// The book row is locked before the borrow row, the same order CreateBorrow
// and the delete cascades use.
func (a *App) ReturnBorrow(ctx context.Context, id int64, returnDate domain.Date) (domain.Borrow, error) {
	if returnDate.IsZero() {
		return domain.Borrow{}, fmt.Errorf("%w: return_date is required", ErrInvalidInput)
	}
	var (
		returned  domain.Borrow
		remaining int
	)
	err := a.store.InTx(ctx, func(tx store.Tx) error {
		current, ok, err := tx.GetBorrow(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBorrowNotFound
		}
		book, ok, err := tx.GetBookForUpdate(ctx, current.BookID)
		if err != nil {
			return err
		}
		if !ok {
			// book deleted, its borrows went with it
			return ErrBorrowNotFound
		}
		borrow, ok, err := tx.GetBorrowForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBorrowNotFound
		}
		if borrow.IsReturned {
			return ErrAlreadyReturned
		}
		if returnDate.Before(borrow.BorrowDate) {
			return ErrInvalidReturnDate
		}
		borrow.ReturnDate = domain.DatePtr(returnDate)
		borrow.IsReturned = true
		if err := tx.UpdateBorrow(ctx, borrow); err != nil {
			return err
		}

		book.AvailableCopies++
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}
		returned = borrow
		remaining = book.AvailableCopies
		return nil
	})
	if err != nil {
		return domain.Borrow{}, fmt.Errorf("return borrow: %w", err)
	}

	logger(ctx).Info("borrow returned",
		"borrow_id", returned.ID,
		"book_id", returned.BookID,
		"available_copies", remaining,
	)
	a.publish(ctx, events.TypeBorrowReturned, returned, remaining)
	return returned, nil
}

// ListBorrows returns every borrow by ascending id, or ErrNothingFound.
func (a *App) ListBorrows(ctx context.Context) ([]domain.Borrow, error) {
	borrows, err := a.store.ListBorrows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list borrows: %w", err)
	}
	if len(borrows) == 0 {
		return nil, ErrNothingFound
	}
	return borrows, nil
}

// GetBorrow retrieves a borrow by ID.
func (a *App) GetBorrow(ctx context.Context, id int64) (domain.Borrow, error) {
	borrow, ok, err := a.store.GetBorrow(ctx, id)
	if err != nil {
		return domain.Borrow{}, fmt.Errorf("get borrow: %w", err)
	}
	if !ok {
		return domain.Borrow{}, ErrBorrowNotFound
	}
	return borrow, nil
}
