package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"libraryhub/services/library/internal/app"
)

type bookRequest struct {
	Title           string  `json:"title" validate:"required,max=200"`
	Description     *string `json:"description"`
	AuthorID        int64   `json:"author_id" validate:"required,gt=0"`
	AvailableCopies *int    `json:"available_copies" validate:"required,gte=0"`
}

func (req *bookRequest) bindForm(values url.Values) *validationError {
	f := newFormReader(values)
	req.Title = f.text("title")
	req.Description = f.optionalText("description")
	req.AuthorID = f.integer("author_id")
	req.AvailableCopies = f.optionalInt("available_copies")
	return f.err()
}

func (req bookRequest) input() app.BookInput {
	in := app.BookInput{
		Title:       req.Title,
		Description: req.Description,
		AuthorID:    req.AuthorID,
	}
	if req.AvailableCopies != nil {
		in.AvailableCopies = *req.AvailableCopies
	}
	return in
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !s.bind(w, r, &req) {
		return
	}
	book, err := s.app.CreateBook(r.Context(), req.input())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.app.ListBooks(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	book, err := s.app.GetBook(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	var req bookRequest
	if !s.bind(w, r, &req) {
		return
	}
	book, err := s.app.UpdateBook(r.Context(), id, req.input())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	if err := s.app.DeleteBook(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "book deleted"})
}

// handleSetBookCover accepts a multipart upload in field "file".
func (s *Server) handleSetBookCover(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	if !s.app.CoversEnabled() {
		writeAppError(w, r, app.ErrCoversDisabled)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.coverMaxBytes+64<<10)
	if err := r.ParseMultipartForm(s.coverMaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, codeCoverTooLarge, "cover too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, codeCoverRequired, "cover is required (multipart field: file)")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeCoverRequired, "cover is required (multipart field: file)")
		return
	}
	defer file.Close()
	if header.Size > s.coverMaxBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, codeCoverTooLarge, "cover too large")
		return
	}
	contentType, err := coverContentType(file, header)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	book, err := s.app.SetBookCover(r.Context(), id, contentType, file, header.Size)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// coverContentType trusts the part header unless it is missing or generic,
// in which case the first bytes are sniffed.
func coverContentType(file multipart.File, header *multipart.FileHeader) (string, error) {
	ct := header.Header.Get("Content-Type")
	if ct != "" && ct != "application/octet-stream" {
		return ct, nil
	}
	buf := make([]byte, 512)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

func (s *Server) handleGetBookCover(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	coverURL, err := s.app.BookCoverURL(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": coverURL})
}
