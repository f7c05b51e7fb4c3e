package prediction

import (
	"errors"
	"fmt"
)

// GenericError holds the fields shared by the error types of a prediction cycle.
type GenericError struct {
	Message string
	Err     error
}

func (ge GenericError) Error() string {
	return ge.Message
}

func (ge GenericError) Unwrap() error {
	return ge.Err
}

// FetchError reports a failed request or a non-success response from the API.
type FetchError struct {
	GenericError
	StatusCode int
	Body       string
}

func NewFetchError(statusCode int, body string, err error) error {
	var msg string
	switch {
	case statusCode == 0:
		msg = fmt.Sprintf("prediction api request failed: %v", err)
	case err != nil:
		msg = fmt.Sprintf("prediction api status %d: %v", statusCode, err)
	default:
		msg = fmt.Sprintf("prediction api returned status %d", statusCode)
	}
	return FetchError{
		GenericError: GenericError{Message: msg, Err: err},
		StatusCode:   statusCode,
		Body:         body,
	}
}

func IsFetchError(target error) bool {
	var e FetchError
	return errors.As(target, &e)
}

// ParseError reports a response body that is not the expected JSON shape.
type ParseError struct {
	GenericError
}

func NewParseError(err error, format string, args ...interface{}) error {
	return ParseError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsParseError(target error) bool {
	var e ParseError
	return errors.As(target, &e)
}

// MappingError reports a mapped source field absent from the prediction.
type MappingError struct {
	GenericError
	Key string
}

func NewMappingError(key string) error {
	return MappingError{
		GenericError: GenericError{Message: fmt.Sprintf("prediction has no field %q", key)},
		Key:          key,
	}
}

func IsMappingError(target error) bool {
	var e MappingError
	return errors.As(target, &e)
}

// DateParseError reports a timestamp field that cannot be read as a date/time.
type DateParseError struct {
	GenericError
	Field string
	Value any
}

func NewDateParseError(field string, value any, err error) error {
	return DateParseError{
		GenericError: GenericError{Message: fmt.Sprintf("cannot parse %s=%v as a timestamp", field, value), Err: err},
		Field:        field,
		Value:        value,
	}
}

func IsDateParseError(target error) bool {
	var e DateParseError
	return errors.As(target, &e)
}

// DuplicateKeyError reports a row rejected by a unique or primary key constraint.
type DuplicateKeyError struct {
	GenericError
}

func NewDuplicateKeyError(err error) error {
	return DuplicateKeyError{
		GenericError: GenericError{Message: "duplicate key", Err: err},
	}
}

func IsDuplicateKeyError(target error) bool {
	var e DuplicateKeyError
	return errors.As(target, &e)
}

// DatabaseError reports any other persistence failure. It is fatal to the run.
type DatabaseError struct {
	GenericError
}

func NewDatabaseError(err error, format string, args ...interface{}) error {
	return DatabaseError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsDatabaseError(target error) bool {
	var e DatabaseError
	return errors.As(target, &e)
}

// IsCycleAbort reports errors that end the cycle without a write but do not fail the process.
func IsCycleAbort(target error) bool {
	return IsFetchError(target) || IsParseError(target) || IsMappingError(target) || IsDateParseError(target)
}
