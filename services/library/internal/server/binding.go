package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"libraryhub/pkg/domain"
)

const maxBodyBytes = 1 << 20

// formBinder is implemented by request types that also accept query-string
// or urlencoded form parameters.
type formBinder interface {
	bindForm(values url.Values) *validationError
}

// errBadJSON marks syntactically broken request bodies.
var errBadJSON = errors.New("invalid JSON body")

// bind fills dst from a JSON body, or from query and form parameters when the
// request is not JSON, then validates it.
func (s *Server) bind(w http.ResponseWriter, r *http.Request, dst formBinder) bool {
	var err error
	if isJSON(r) {
		err = decodeJSON(w, r, dst)
	} else {
		if perr := r.ParseForm(); perr != nil {
			err = fieldError("body", "could not be parsed as form data")
		} else if verr := dst.bindForm(r.Form); verr != nil {
			err = verr
		}
	}
	if err == nil {
		err = s.validate.Struct(dst)
	}
	if err == nil {
		return true
	}

	var verr *validationError
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, r, verr)
	case errors.Is(err, errBadJSON):
		writeError(w, r, http.StatusBadRequest, codeInvalidJSON, err.Error())
	default:
		writeAppError(w, r, err)
	}
	return false
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && mediaType == "application/json"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr *json.SyntaxError
			typeErr   *json.UnmarshalTypeError
		)
		switch {
		case errors.Is(err, io.EOF):
			return fieldError("body", "is required")
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return errBadJSON
		case errors.As(err, &typeErr):
			return fieldError(typeErr.Field, "has the wrong type")
		case errors.As(err, new(*http.MaxBytesError)):
			return fieldError("body", "is too large")
		default:
			// date fields report their own parse errors
			return fieldError("body", err.Error())
		}
	}
	return nil
}

// pathID reads the {id} URL parameter.
func pathID(r *http.Request) (int64, *validationError) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fieldError("id", "must be a positive integer")
	}
	return id, nil
}

// formReader collects conversion failures while reading url.Values.
type formReader struct {
	values url.Values
	errs   map[string]string
}

func newFormReader(values url.Values) *formReader {
	return &formReader{values: values, errs: make(map[string]string)}
}

func (f *formReader) has(key string) bool {
	_, ok := f.values[key]
	return ok
}

func (f *formReader) text(key string) string {
	return f.values.Get(key)
}

func (f *formReader) optionalText(key string) *string {
	if !f.has(key) {
		return nil
	}
	v := f.values.Get(key)
	return &v
}

func (f *formReader) integer(key string) int64 {
	if !f.has(key) {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(f.values.Get(key)), 10, 64)
	if err != nil {
		f.errs[key] = "must be an integer"
	}
	return n
}

func (f *formReader) optionalInt(key string) *int {
	if !f.has(key) {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(f.values.Get(key)))
	if err != nil {
		f.errs[key] = "must be an integer"
		return nil
	}
	return &n
}

func (f *formReader) optionalDate(key string) *domain.Date {
	raw := strings.TrimSpace(f.values.Get(key))
	if raw == "" {
		return nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		f.errs[key] = "must be a date in YYYY-MM-DD format"
		return nil
	}
	return &d
}

func (f *formReader) err() *validationError {
	if len(f.errs) == 0 {
		return nil
	}
	return &validationError{Fields: f.errs}
}
