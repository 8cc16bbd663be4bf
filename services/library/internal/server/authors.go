package server

import (
	"net/http"
	"net/url"

	"libraryhub/pkg/domain"
	"libraryhub/services/library/internal/app"
)

type authorRequest struct {
	Name        string       `json:"name" validate:"required,max=100"`
	Surname     string       `json:"surname" validate:"required,max=100"`
	DateOfBirth *domain.Date `json:"date_of_birth"`
}

func (req *authorRequest) bindForm(values url.Values) *validationError {
	f := newFormReader(values)
	req.Name = f.text("name")
	req.Surname = f.text("surname")
	req.DateOfBirth = f.optionalDate("date_of_birth")
	return f.err()
}

func (req authorRequest) input() app.AuthorInput {
	return app.AuthorInput{
		Name:        req.Name,
		Surname:     req.Surname,
		DateOfBirth: req.DateOfBirth,
	}
}

func (s *Server) handleCreateAuthor(w http.ResponseWriter, r *http.Request) {
	var req authorRequest
	if !s.bind(w, r, &req) {
		return
	}
	author, err := s.app.CreateAuthor(r.Context(), req.input())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, author)
}

func (s *Server) handleListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := s.app.ListAuthors(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authors)
}

func (s *Server) handleGetAuthor(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	author, err := s.app.GetAuthor(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, author)
}

func (s *Server) handleUpdateAuthor(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	var req authorRequest
	if !s.bind(w, r, &req) {
		return
	}
	author, err := s.app.UpdateAuthor(r.Context(), id, req.input())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, author)
}

func (s *Server) handleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, verr := pathID(r)
	if verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	if err := s.app.DeleteAuthor(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "author deleted"})
}
