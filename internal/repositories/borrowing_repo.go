package repositories

import (
	"context"
	"time"

	"library/internal/models"
)

// BorrowingRepository defines the interface for borrowing data access.
// Lookups that return records preload the User and Book associations.
type BorrowingRepository interface {
	Create(ctx context.Context, borrowing *models.Borrowing) error
	GetByID(ctx context.Context, id string) (*models.Borrowing, error)
	GetByUserID(ctx context.Context, userID string) ([]models.Borrowing, error)
	GetAll(ctx context.Context) ([]models.Borrowing, error)
	// GetOverdue returns loans with due_date < today and no return date.
	GetOverdue(ctx context.Context, today time.Time) ([]models.Borrowing, error)
	// MarkReturned moves an active loan to RETURNED. It returns
	// ErrConcurrencyConflict if the loan is no longer BORROWED.
	MarkReturned(ctx context.Context, id string, returnDate time.Time) error
	CountActiveByUser(ctx context.Context, userID string) (int64, error)
	CountOverdueByUser(ctx context.Context, userID string, today time.Time) (int64, error)
	CountActiveByBook(ctx context.Context, bookID string) (int64, error)
	ExistsActive(ctx context.Context, userID, bookID string) (bool, error)
}
