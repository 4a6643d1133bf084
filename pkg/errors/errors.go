package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// Kind classifies an AppError. Every failure surfaced by a handler maps to
// exactly one kind.
type Kind string

const (
	KindValidation Kind = "validation"
	KindRange      Kind = "range"
	KindDuplicate  Kind = "duplicate"
	KindStorage    Kind = "storage"
)

type AppError struct {
	Kind    Kind                   `json:"-"`
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Err     error                  `json:"-"`
	Fields  map[string]interface{} `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(kind Kind, code int, message string, err error) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
		Fields:  make(map[string]interface{}),
	}
}

// WithField adds a single additional field to be serialized with the error response.
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

func Validation(message string) *AppError {
	return NewAppError(KindValidation, http.StatusBadRequest, message, nil)
}

func Range(message string) *AppError {
	return NewAppError(KindRange, http.StatusBadRequest, message, nil)
}

func Duplicate(message string) *AppError {
	return NewAppError(KindDuplicate, http.StatusConflict, message, nil)
}

func Storage(message string, err error) *AppError {
	return NewAppError(KindStorage, http.StatusInternalServerError, message, err)
}

// As returns the AppError in err's chain. Errors that carry no
// classification are reported as storage failures.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Storage("Internal server error", err)
}

// Is reports whether err carries an AppError of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Kind == kind
}

// Payload renders the JSON body for err. Storage failures carry the
// underlying message under "details" when exposeDetails is set.
func Payload(err *AppError, exposeDetails bool) map[string]interface{} {
	payload := map[string]interface{}{
		"error": err.Message,
	}
	if exposeDetails && err.Kind == KindStorage && err.Err != nil {
		payload["details"] = err.Err.Error()
	}
	for k, v := range err.Fields {
		if k == "error" || k == "details" {
			continue
		}
		payload[k] = v
	}
	return payload
}

func WriteError(w http.ResponseWriter, err *AppError, exposeDetails bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	_ = json.NewEncoder(w).Encode(Payload(err, exposeDetails))
}
