package repositories

import (
	"context"

	"library/internal/models"
)

// BookRepository defines the interface for book data access.
type BookRepository interface {
	GetAll(ctx context.Context) ([]models.Book, error)
	GetByID(ctx context.Context, id string) (*models.Book, error)
	GetByISBN(ctx context.Context, isbn string) (*models.Book, error)
	Search(ctx context.Context, filter models.BookFilter, offset, limit int) ([]models.Book, int64, error)
	Create(ctx context.Context, book *models.Book) error
	// Update writes every mutable column if the stored version still equals
	// book.Version, then advances book.Version.
	Update(ctx context.Context, book *models.Book) error
	// AdjustAvailableCopies adds delta to available_copies if the stored
	// version equals expectedVersion and the result stays within
	// [0, total_copies]. Otherwise it returns ErrConcurrencyConflict.
	AdjustAvailableCopies(ctx context.Context, id string, delta, expectedVersion int) error
	Delete(ctx context.Context, id string) error
}
