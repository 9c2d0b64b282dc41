package common

import (
	"errors"
	"fmt"
)

// ValidationError is malformed or missing user input. Its message is shown to the user as-is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// BackendError is a failure of the image-generation backend, transport errors and timeouts included.
type BackendError struct {
	Detail string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Err != nil && e.Detail == "" {
		return "backend: " + e.Err.Error()
	}
	return "backend: " + e.Detail
}

func (e *BackendError) Unwrap() error { return e.Err }

func NewBackendError(detail string, err error) error {
	if detail == "" && err != nil {
		detail = err.Error()
	}
	return &BackendError{Detail: detail, Err: err}
}

// StorageError is a persistence failure on read or write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
