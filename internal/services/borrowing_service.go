package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"library/internal/metrics"
	"library/internal/models"
	"library/internal/repositories"
)

// DefaultLoanPeriodDays is the loan length applied at borrow time.
const DefaultLoanPeriodDays = 14

// BorrowingService runs the borrow and return lifecycle.
type BorrowingService struct {
	store      repositories.Store
	validator  *BorrowingValidator
	loanPeriod int
	clock      Clock
	publisher  EventPublisher
	metrics    *metrics.Metrics
}

// BorrowingOption configures a BorrowingService.
type BorrowingOption func(*borrowingOptions)

type borrowingOptions struct {
	loanPeriod int
	maxActive  int
	clock      Clock
	publisher  EventPublisher
	metrics    *metrics.Metrics
}

// WithLoanPeriodDays sets how many days a loan runs.
func WithLoanPeriodDays(days int) BorrowingOption {
	return func(o *borrowingOptions) { o.loanPeriod = days }
}

// WithMaxActiveBorrowings sets the per-patron loan limit.
func WithMaxActiveBorrowings(n int) BorrowingOption {
	return func(o *borrowingOptions) { o.maxActive = n }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) BorrowingOption {
	return func(o *borrowingOptions) { o.clock = c }
}

// WithEventPublisher publishes lifecycle events after each commit.
func WithEventPublisher(p EventPublisher) BorrowingOption {
	return func(o *borrowingOptions) { o.publisher = p }
}

// WithMetrics records borrow and return outcomes.
func WithMetrics(m *metrics.Metrics) BorrowingOption {
	return func(o *borrowingOptions) { o.metrics = m }
}

// NewBorrowingService creates a new BorrowingService.
func NewBorrowingService(store repositories.Store, opts ...BorrowingOption) *BorrowingService {
	o := borrowingOptions{
		loanPeriod: DefaultLoanPeriodDays,
		maxActive:  DefaultMaxActiveBorrowings,
		clock:      SystemClock,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loanPeriod <= 0 {
		o.loanPeriod = DefaultLoanPeriodDays
	}
	return &BorrowingService{
		store:      store,
		validator:  NewBorrowingValidator(store, o.maxActive, o.clock),
		loanPeriod: o.loanPeriod,
		clock:      o.clock,
		publisher:  o.publisher,
		metrics:    o.metrics,
	}
}

// Validator returns the validator used by Borrow.
func (s *BorrowingService) Validator() *BorrowingValidator {
	return s.validator
}

// Borrow lends one copy of a book to a patron. The copy decrement and the new
// borrowing are committed together or not at all.
func (s *BorrowingService) Borrow(ctx context.Context, userID, bookID string) (*models.Borrowing, error) {
	today := s.clock.today()

	var created *models.Borrowing
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		created = nil
		user, book, err := s.validator.within(tx).validate(ctx, userID, bookID, today)
		if err != nil {
			return err
		}

		if err := tx.Books().AdjustAvailableCopies(ctx, book.ID, -1, book.Version); err != nil {
			return err
		}
		book.AvailableCopies--
		book.Version++

		borrowing := &models.Borrowing{
			UserID:     user.ID,
			BookID:     book.ID,
			BorrowDate: today,
			DueDate:    today.AddDate(0, 0, s.loanPeriod),
			Status:     models.StatusBorrowed,
		}
		if err := tx.Borrowings().Create(ctx, borrowing); err != nil {
			return err
		}
		borrowing.User = user
		borrowing.Book = book
		created = borrowing
		return nil
	})
	if err != nil {
		err = translate("borrowing book", err)
		s.recordBorrowFailure(userID, bookID, err)
		return nil, err
	}

	s.metrics.RecordBorrow(metrics.OutcomeSuccess, "")
	log.Printf("User %s borrowed book %s (borrowing %s, due %s)",
		created.UserID, created.BookID, created.ID, created.DueDate.Format(dateLayout))
	publishBorrowingEvent(s.publisher, RoutingBorrowingCreated, created, s.clock())
	return created, nil
}

func (s *BorrowingService) recordBorrowFailure(userID, bookID string, err error) {
	var e *Error
	if !errors.As(err, &e) {
		s.metrics.RecordBorrow(metrics.OutcomeError, "")
		return
	}
	if errors.Is(e, ErrStore) {
		log.Printf("Borrow of book %s by user %s failed: %v", bookID, userID, e.Unwrap())
		s.metrics.RecordBorrow(metrics.OutcomeError, e.Code)
		return
	}
	s.metrics.RecordBorrow(metrics.OutcomeRejected, e.Code)
}

// ReturnBook closes a loan held by userID and puts the copy back on the shelf.
func (s *BorrowingService) ReturnBook(ctx context.Context, userID, borrowingID string) (*models.Borrowing, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingField.Withf("user ID is required")
	}
	if strings.TrimSpace(borrowingID) == "" {
		return nil, ErrMissingField.Withf("borrowing ID is required")
	}
	today := s.clock.today()

	var returned *models.Borrowing
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		returned = nil
		borrowing, err := tx.Borrowings().GetByID(ctx, borrowingID)
		if err != nil {
			return lookupError(err, ErrBorrowingNotFound, borrowingID)
		}
		if borrowing.UserID != userID {
			return ErrNotAuthorized
		}
		if borrowing.Status == models.StatusReturned {
			return ErrAlreadyReturned
		}

		if err := tx.Borrowings().MarkReturned(ctx, borrowing.ID, today); err != nil {
			return err
		}
		borrowing.Status = models.StatusReturned
		borrowing.ReturnDate = &today

		book, err := tx.Books().GetByID(ctx, borrowing.BookID)
		if err != nil {
			return err
		}
		if book.AvailableCopies < book.TotalCopies {
			if err := tx.Books().AdjustAvailableCopies(ctx, book.ID, 1, book.Version); err != nil {
				return err
			}
			book.AvailableCopies++
			book.Version++
		} else {
			log.Printf("Book %s already has all %d copies available, not incrementing on return of %s",
				book.ID, book.TotalCopies, borrowing.ID)
		}
		borrowing.Book = book
		returned = borrowing
		return nil
	})
	if err != nil {
		err = translate("returning book", err)
		if errors.Is(err, ErrStore) {
			log.Printf("Return of borrowing %s by user %s failed: %v", borrowingID, userID, errors.Unwrap(err))
		}
		return nil, err
	}

	s.metrics.RecordReturn()
	log.Printf("User %s returned borrowing %s", userID, returned.ID)
	publishBorrowingEvent(s.publisher, RoutingBorrowingReturn, returned, s.clock())
	return returned, nil
}

// GetUserBorrowingHistory returns every loan of the user.
func (s *BorrowingService) GetUserBorrowingHistory(ctx context.Context, userID string) ([]models.Borrowing, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingField.Withf("user ID is required")
	}
	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		return nil, lookupError(err, ErrUserNotFound, userID)
	}
	list, err := s.store.Borrowings().GetByUserID(ctx, userID)
	if err != nil {
		return nil, storeError("loading borrowing history", err)
	}
	return list, nil
}

// GetAllBorrowingHistory returns every loan in the system. Librarians only.
func (s *BorrowingService) GetAllBorrowingHistory(ctx context.Context, librarianID string) ([]models.Borrowing, error) {
	if _, err := requireLibrarian(ctx, s.store.Users(), librarianID); err != nil {
		return nil, err
	}
	list, err := s.store.Borrowings().GetAll(ctx)
	if err != nil {
		return nil, storeError("loading borrowing history", err)
	}
	return list, nil
}
