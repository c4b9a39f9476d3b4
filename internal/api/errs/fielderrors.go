package errs

import (
	"encoding/json"
	"strings"
)

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors represents a collection of field errors.
type FieldErrors []FieldError

// NewFieldErrors creates a field errors value for a single field.
func NewFieldErrors(field string, err error) *Error {
	return New(InvalidArgument, FieldErrors{{Field: field, Err: err.Error()}})
}

// Add adds a field error to the collection.
func (fe *FieldErrors) Add(field string, err error) {
	*fe = append(*fe, FieldError{Field: field, Err: err.Error()})
}

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	msgs := make([]string, 0, len(fe))
	for _, f := range fe {
		msgs = append(msgs, f.Field+": "+f.Err)
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the fields that failed validation.
func (fe FieldErrors) Fields() map[string]string {
	m := make(map[string]string, len(fe))
	for _, fld := range fe {
		m[fld.Field] = fld.Err
	}
	return m
}

// MarshalJSON keeps an empty collection encoded as an empty list.
func (fe FieldErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal([]FieldError(fe))
}
