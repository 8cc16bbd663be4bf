package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"libraryhub/internal/util"
	"libraryhub/services/library/internal/app"
)

const (
	codeNothingFound      = "LIBRARY_NOTHING_FOUND"
	codeAuthorNotFound    = "LIBRARY_AUTHOR_NOT_FOUND"
	codeBookNotFound      = "LIBRARY_BOOK_NOT_FOUND"
	codeBorrowNotFound    = "LIBRARY_BORROW_NOT_FOUND"
	codeCoverNotFound     = "LIBRARY_COVER_NOT_FOUND"
	codeAuthorReference   = "LIBRARY_AUTHOR_REFERENCE_INVALID"
	codeNoCopiesAvailable = "LIBRARY_NO_COPIES_AVAILABLE"
	codeAlreadyReturned   = "LIBRARY_ALREADY_RETURNED"
	codeInvalidReturnDate = "LIBRARY_INVALID_RETURN_DATE"
	codeValidationFailed  = "LIBRARY_VALIDATION_FAILED"
	codeInvalidJSON       = "LIBRARY_INVALID_JSON"
	codeUnsupportedCover  = "LIBRARY_UNSUPPORTED_COVER_TYPE"
	codeCoverTooLarge     = "LIBRARY_COVER_TOO_LARGE"
	codeCoverRequired     = "LIBRARY_COVER_REQUIRED"
	codeCoversDisabled    = "LIBRARY_COVERS_DISABLED"
	codeRateLimited       = "LIBRARY_RATE_LIMITED"
	codeUnauthorized      = "LIBRARY_UNAUTHORIZED"
	codeRouteNotFound     = "LIBRARY_ROUTE_NOT_FOUND"
	codeMethodNotAllowed  = "LIBRARY_METHOD_NOT_ALLOWED"
	codeInternal          = "LIBRARY_INTERNAL_ERROR"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	RequestID string            `json:"requestId,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromRequest(r),
	})
}

func writeValidationError(w http.ResponseWriter, r *http.Request, verr *validationError) {
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Error:     verr.Error(),
		Code:      codeValidationFailed,
		RequestID: util.RequestIDFromRequest(r),
		Details:   verr.Fields,
	})
}

var appErrors = []struct {
	err    error
	status int
	code   string
}{
	{app.ErrNothingFound, http.StatusNotFound, codeNothingFound},
	{app.ErrAuthorNotFound, http.StatusNotFound, codeAuthorNotFound},
	{app.ErrBookNotFound, http.StatusNotFound, codeBookNotFound},
	{app.ErrBorrowNotFound, http.StatusNotFound, codeBorrowNotFound},
	{app.ErrCoverNotFound, http.StatusNotFound, codeCoverNotFound},
	{app.ErrReferencedAuthorNotFound, http.StatusBadRequest, codeAuthorReference},
	{app.ErrNoCopiesAvailable, http.StatusBadRequest, codeNoCopiesAvailable},
	{app.ErrAlreadyReturned, http.StatusBadRequest, codeAlreadyReturned},
	{app.ErrUnsupportedCoverType, http.StatusBadRequest, codeUnsupportedCover},
	{app.ErrInvalidReturnDate, http.StatusUnprocessableEntity, codeInvalidReturnDate},
	{app.ErrInvalidInput, http.StatusUnprocessableEntity, codeValidationFailed},
	{app.ErrCoversDisabled, http.StatusServiceUnavailable, codeCoversDisabled},
}

// writeAppError maps core errors onto status codes. Anything unrecognised is
// logged and reported as an opaque 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	for _, known := range appErrors {
		if errors.Is(err, known.err) {
			msg := known.err.Error()
			if known.err == app.ErrInvalidInput {
				msg = err.Error()
			}
			writeError(w, r, known.status, known.code, msg)
			return
		}
	}
	util.LoggerFromContext(r.Context()).Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"err", err,
	)
	writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
}
