package services

import (
	"context"
	"strings"
	"time"

	"library/internal/models"
	"library/internal/repositories"
)

// DefaultMaxActiveBorrowings is how many loans a patron may hold at once.
const DefaultMaxActiveBorrowings = 3

// BorrowingValidator checks borrow requests against the current store state.
// It never writes.
type BorrowingValidator struct {
	store     repositories.Store
	maxActive int
	clock     Clock
}

// NewBorrowingValidator creates a validator reading from store.
func NewBorrowingValidator(store repositories.Store, maxActive int, clock Clock) *BorrowingValidator {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveBorrowings
	}
	if clock == nil {
		clock = SystemClock
	}
	return &BorrowingValidator{store: store, maxActive: maxActive, clock: clock}
}

// within returns a validator reading through tx.
func (v *BorrowingValidator) within(tx repositories.Store) *BorrowingValidator {
	c := *v
	c.store = tx
	return &c
}

// ValidateBorrowRequest runs the borrow rules in order and returns the first
// violation. On success the loaded user and book are returned.
//
// Order: ids present, user exists, user is not a librarian, no overdue loans,
// under the active loan limit, book exists, a copy is available, and the
// user does not already hold this book.
func (v *BorrowingValidator) ValidateBorrowRequest(ctx context.Context, userID, bookID string) (*models.User, *models.Book, error) {
	return v.validate(ctx, userID, bookID, v.clock.today())
}

func (v *BorrowingValidator) validate(ctx context.Context, userID, bookID string, today time.Time) (*models.User, *models.Book, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, ErrMissingField.Withf("user ID is required")
	}
	if strings.TrimSpace(bookID) == "" {
		return nil, nil, ErrMissingField.Withf("book ID is required")
	}

	user, err := v.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, nil, lookupError(err, ErrUserNotFound, userID)
	}
	if user.IsLibrarian() {
		return nil, nil, ErrRoleNotEligible
	}

	overdue, err := v.store.Borrowings().CountOverdueByUser(ctx, userID, today)
	if err != nil {
		return nil, nil, storeError("counting overdue borrowings", err)
	}
	if overdue > 0 {
		return nil, nil, ErrHasOverdueBooks.Withf("user has %d overdue book(s) and cannot borrow until they are returned", overdue)
	}

	active, err := v.store.Borrowings().CountActiveByUser(ctx, userID)
	if err != nil {
		return nil, nil, storeError("counting active borrowings", err)
	}
	if active >= int64(v.maxActive) {
		return nil, nil, ErrBorrowLimitReached.Withf("user has reached the maximum limit of %d borrowed books", v.maxActive)
	}

	book, err := v.store.Books().GetByID(ctx, bookID)
	if err != nil {
		return nil, nil, lookupError(err, ErrBookNotFound, bookID)
	}
	if !book.IsAvailable() {
		return nil, nil, ErrBookUnavailable.Withf("book %q is not available for borrowing", book.Title)
	}

	held, err := v.store.Borrowings().ExistsActive(ctx, userID, bookID)
	if err != nil {
		return nil, nil, storeError("checking existing borrowings", err)
	}
	if held {
		return nil, nil, ErrAlreadyBorrowed.Withf("user has already borrowed %q", book.Title)
	}

	return user, book, nil
}

// IsEligible reports whether the user has no overdue loans.
func (v *BorrowingValidator) IsEligible(ctx context.Context, userID string) (bool, error) {
	if _, err := v.store.Users().GetByID(ctx, userID); err != nil {
		return false, lookupError(err, ErrUserNotFound, userID)
	}
	overdue, err := v.store.Borrowings().CountOverdueByUser(ctx, userID, v.clock.today())
	if err != nil {
		return false, storeError("counting overdue borrowings", err)
	}
	return overdue == 0, nil
}
