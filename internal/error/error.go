// internal/error/error.go

package error

import (
	"errors"
	"fmt"
)

type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

type ErrorType int

const (
	ConfigError ErrorType = iota
	ConnectionError
	CryptoError
	FileError
	ValidationError
	NotConnectedError
	NotFoundError
	TransferError
)

var errorTypeNames = map[ErrorType]string{
	ConfigError:       "config",
	ConnectionError:   "connection",
	CryptoError:       "crypto",
	FileError:         "file",
	ValidationError:   "validation",
	NotConnectedError: "not connected",
	NotFoundError:     "not found",
	TransferError:     "transfer",
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ErrorType(%d)", int(t))
}

// Sentinele do porównań przez errors.Is - dopasowanie odbywa się po typie
var (
	ErrNotConnected = &AppError{Type: NotConnectedError, Message: "connection not established"}
	ErrNotFound     = &AppError{Type: NotFoundError, Message: "not found"}
	ErrValidation   = &AppError{Type: ValidationError, Message: "invalid input"}
	ErrConnection   = &AppError{Type: ConnectionError, Message: "connection failed"}
	ErrTransfer     = &AppError{Type: TransferError, Message: "transfer failed"}
)

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is pozwala porównywać błędy po samym typie, np. errors.Is(err, ErrNotFound)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// HasType sprawdza czy w łańcuchu błędów występuje AppError danego typu
func HasType(err error, errType ErrorType) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		err = appErr.Err
	}
	return false
}
