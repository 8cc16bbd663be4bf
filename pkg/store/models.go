package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Text column sizes follow
// domain.MaxNameLen and domain.MaxTitleLen.
type AuthorModel struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	Name        string          `gorm:"size:100;not null"`
	Surname     string          `gorm:"size:100;not null"`
	DateOfBirth *datatypes.Date `gorm:"type:date"`
	Books       []BookModel     `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
}

func (AuthorModel) TableName() string { return "authors" }

type BookModel struct {
	ID              int64         `gorm:"primaryKey;autoIncrement"`
	Title           string        `gorm:"size:200;not null"`
	Description     *string       `gorm:"type:text"`
	AuthorID        int64         `gorm:"not null;index"`
	AvailableCopies int           `gorm:"not null;default:0;check:available_copies >= 0"`
	CoverKey        string        `gorm:"size:300"`
	Borrows         []BorrowModel `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
	UpdatedAt       time.Time
}

func (BookModel) TableName() string { return "books" }

type BorrowModel struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	BookID     int64           `gorm:"not null;index"`
	ReaderName string          `gorm:"size:100;not null"`
	BorrowDate datatypes.Date  `gorm:"type:date;not null"`
	ReturnDate *datatypes.Date `gorm:"type:date"`
	IsReturned bool            `gorm:"not null;default:false"`
}

func (BorrowModel) TableName() string { return "borrows" }
