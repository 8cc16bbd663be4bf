package server

import (
	"net/http"
	"net/url"

	"libraryhub/pkg/domain"
	"libraryhub/services/library/internal/app"
)

type borrowRequest struct {
	BookID     int64        `json:"book_id" validate:"required,gt=0"`
	ReaderName string       `json:"reader_name" validate:"required,max=100"`
	BorrowDate *domain.Date `json:"borrow_date" validate:"required"`
	ReturnDate *domain.Date `json:"return_date"`
}

func (req *borrowRequest) bindForm(values url.Values) *validationError {
	f := newFormReader(values)
	req.BookID = f.integer("book_id")
	req.ReaderName = f.text("reader_name")
	req.BorrowDate = f.optionalDate("borrow_date")
	req.ReturnDate = f.optionalDate("return_date")
	return f.err()
}

type returnRequest struct {
	ReturnDate *domain.Date `json:"return_date" validate:"required"`
}

func (req *returnRequest) bindForm(values url.Values) *validationError {
	f := newFormReader(values)
	req.ReturnDate = f.optionalDate("return_date")
	return f.err()
}

func (s *Server) handleCreateBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !s.bind(w, r, &req) {
		return
	}
	borrow, err := s.app.CreateBorrow(r.Context(), app.BorrowInput{
		BookID:     req.BookID,
		ReaderName: req.ReaderName,
		BorrowDate: *req.BorrowDate,
		ReturnDate: req.ReturnDate,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, borrow)
}

func (s *Server) handleListBorrows(w http.ResponseWriter, r *http.Request) {
	borrows, err := s.app.ListBorrows(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, borrows)
}

func (s *Server) handleGetBorrow(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	borrow, err := s.app.GetBorrow(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, borrow)
}

func (s *Server) handleReturnBorrow(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	var req returnRequest
	if !s.bind(w, r, &req) {
		return
	}
	borrow, err := s.app.ReturnBorrow(r.Context(), id, *req.ReturnDate)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, borrow)
}
