package domain

// Column widths of the persisted text fields, in characters.
const (
	MaxNameLen  = 100
	MaxTitleLen = 200
)

type Author struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Surname     string `json:"surname"`
	DateOfBirth *Date  `json:"date_of_birth"`
}

type Book struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Description     *string `json:"description"`
	AuthorID        int64   `json:"author_id"`
	AvailableCopies int     `json:"available_copies"`
	CoverKey        string  `json:"-"`
	HasCover        bool    `json:"has_cover"`
}

// Borrow is one reader holding one copy of a book. A borrow is open until
// ReturnDate is set; IsReturned mirrors that.
type Borrow struct {
	ID         int64  `json:"id"`
	BookID     int64  `json:"book_id"`
	ReaderName string `json:"reader_name"`
	BorrowDate Date   `json:"borrow_date"`
	ReturnDate *Date  `json:"return_date"`
	IsReturned bool   `json:"is_returned"`
}

// Open reports whether the borrow still holds a copy.
func (b Borrow) Open() bool {
	return !b.IsReturned
}
