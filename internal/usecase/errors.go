package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorBusy         ErrorCode = "BUSY"
	ErrorAuthFailed   ErrorCode = "AUTH_FAILED"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// IsCode reports whether err is a usecase error carrying code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// providerMessager is implemented by adapter errors that carry the provider's
// own user-facing message.
type providerMessager interface {
	ProviderMessage() string
}

// providerMessage returns the provider's raw message for err, falling back to
// the error text.
func providerMessage(err error) string {
	var pm providerMessager
	if errors.As(err, &pm) {
		if msg := pm.ProviderMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}
