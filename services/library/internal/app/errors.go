package app

import "errors"

var (
	// ErrNothingFound is returned by list operations when the table is empty.
	ErrNothingFound = errors.New("nothing found")

	ErrAuthorNotFound = errors.New("author not found")
	ErrBookNotFound   = errors.New("book not found")
	ErrBorrowNotFound = errors.New("borrow not found")

	// ErrReferencedAuthorNotFound is returned when a book points at a missing author.
	ErrReferencedAuthorNotFound = errors.New("referenced author not found")

	ErrNoCopiesAvailable = errors.New("no copies available")
	ErrAlreadyReturned   = errors.New("book already returned")
	ErrInvalidReturnDate = errors.New("return date cannot be earlier than borrow date")

	// ErrInvalidInput wraps field-level validation failures caught in the core.
	ErrInvalidInput = errors.New("invalid input")

	ErrCoversDisabled       = errors.New("cover storage not configured")
	ErrCoverNotFound        = errors.New("cover not found")
	ErrUnsupportedCoverType = errors.New("unsupported cover type")
)
