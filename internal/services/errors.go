package services

import (
	"errors"
	"fmt"

	"library/internal/repositories"
)

// Error kinds. Every *Error returned by a service matches exactly one of
// these with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrStore           = errors.New("store unavailable")
)

// Error is a business failure with a stable code and a human-readable message.
type Error struct {
	kind    error
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches the error kind, or another *Error with the same code.
func (e *Error) Is(target error) bool {
	if target == e.kind {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Code == e.Code
	}
	return false
}

// Kind returns the kind sentinel of e.
func (e *Error) Kind() error {
	return e.kind
}

// Withf returns a copy of e carrying a formatted message.
func (e *Error) Withf(format string, args ...interface{}) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

func newError(kind error, code, message string) *Error {
	return &Error{kind: kind, Code: code, Message: message}
}

var (
	ErrMissingField       = newError(ErrValidation, "MISSING_FIELD", "required field is missing")
	ErrInvalidInput       = newError(ErrValidation, "INVALID_INPUT", "invalid input")
	ErrInvalidGenre       = newError(ErrValidation, "INVALID_GENRE", "invalid genre specified")
	ErrRoleNotEligible    = newError(ErrValidation, "ROLE_NOT_ELIGIBLE", "librarians cannot borrow books")
	ErrHasOverdueBooks    = newError(ErrValidation, "HAS_OVERDUE_BOOKS", "user has overdue books")
	ErrBorrowLimitReached = newError(ErrValidation, "BORROW_LIMIT_REACHED", "user has reached the borrowing limit")
	ErrBookUnavailable    = newError(ErrValidation, "BOOK_UNAVAILABLE", "book is not available for borrowing")
	ErrAlreadyBorrowed    = newError(ErrValidation, "ALREADY_BORROWED", "user has already borrowed this book")
	ErrCopiesBelowLoans   = newError(ErrValidation, "COPIES_BELOW_ACTIVE_LOANS", "total copies cannot be less than active loans")

	ErrUserNotFound      = newError(ErrNotFound, "USER_NOT_FOUND", "user not found")
	ErrBookNotFound      = newError(ErrNotFound, "BOOK_NOT_FOUND", "book not found")
	ErrBorrowingNotFound = newError(ErrNotFound, "BORROWING_NOT_FOUND", "borrowing not found")

	ErrNotAuthorized = newError(ErrForbidden, "NOT_AUTHORIZED", "user is not authorized to return this book")
	ErrNotLibrarian  = newError(ErrForbidden, "NOT_LIBRARIAN", "operation requires the librarian role")
	ErrAccessDenied  = newError(ErrForbidden, "ACCESS_DENIED", "access to this record is not allowed")

	ErrAlreadyReturned        = newError(ErrConflict, "ALREADY_RETURNED", "book has already been returned")
	ErrEmailTaken             = newError(ErrConflict, "EMAIL_TAKEN", "email is already registered")
	ErrISBNTaken              = newError(ErrConflict, "ISBN_TAKEN", "a book with this ISBN already exists")
	ErrActiveBorrowingsExist  = newError(ErrConflict, "ACTIVE_BORROWINGS_EXIST", "record has active borrowings")
	ErrConcurrentModification = newError(ErrConflict, "CONCURRENT_MODIFICATION", "record was modified concurrently, please retry")

	ErrInvalidCredentials = newError(ErrUnauthenticated, "INVALID_CREDENTIALS", "invalid credentials")
	ErrInvalidToken       = newError(ErrUnauthenticated, "INVALID_TOKEN", "invalid or expired token")
)

// storeError wraps an unexpected persistence failure. The cause is kept for
// logging but never shown to callers.
func storeError(op string, err error) *Error {
	return &Error{
		kind:    ErrStore,
		Code:    "STORE_UNAVAILABLE",
		Message: "internal error while " + op,
		cause:   err,
	}
}

// translate passes business errors through and classifies the rest.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, repositories.ErrConcurrencyConflict) {
		return &Error{
			kind:    ErrConflict,
			Code:    ErrConcurrentModification.Code,
			Message: ErrConcurrentModification.Message,
			cause:   err,
		}
	}
	return storeError(op, err)
}

// lookupError maps a repository lookup failure to notFound or a store error.
func lookupError(err error, notFound *Error, id string) error {
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return notFound.Withf("%s with ID: %s", notFound.Message, id)
	}
	return storeError("loading record "+id, err)
}
