package repositories

import (
	"context"
	"fmt"
	"time"

	"library/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMBorrowingRepository is a GORM implementation of BorrowingRepository.
type GORMBorrowingRepository struct {
	db       *gorm.DB
	lockRows bool
}

// NewGORMBorrowingRepository creates a new instance of GORMBorrowingRepository.
func NewGORMBorrowingRepository(db *gorm.DB) *GORMBorrowingRepository {
	return &GORMBorrowingRepository{
		db: db,
	}
}

func (r *GORMBorrowingRepository) withRefs(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("User").Preload("Book")
}

func (r *GORMBorrowingRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Borrowing{}).
		Where("status = ? AND return_date IS NULL", models.StatusBorrowed)
}

// Create persists a new borrowing. Associations are never written through it.
func (r *GORMBorrowingRepository) Create(ctx context.Context, borrowing *models.Borrowing) error {
	if borrowing.ID == "" {
		borrowing.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(borrowing).Error; err != nil {
		return fmt.Errorf("failed to create borrowing: %w", translateError(err))
	}
	return nil
}

// GetByID retrieves a borrowing with its user and book.
func (r *GORMBorrowingRepository) GetByID(ctx context.Context, id string) (*models.Borrowing, error) {
	db := r.withRefs(ctx)
	if r.lockRows {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var borrowing models.Borrowing
	if err := db.First(&borrowing, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("borrowing with ID %s: %w", id, translateError(err))
	}
	return &borrowing, nil
}

// GetByUserID retrieves every borrowing of one user, oldest first.
func (r *GORMBorrowingRepository) GetByUserID(ctx context.Context, userID string) ([]models.Borrowing, error) {
	var borrowings []models.Borrowing
	err := r.withRefs(ctx).Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&borrowings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get borrowings of user %s: %w", userID, err)
	}
	return borrowings, nil
}

// GetAll retrieves every borrowing in the system, oldest first.
func (r *GORMBorrowingRepository) GetAll(ctx context.Context) ([]models.Borrowing, error) {
	var borrowings []models.Borrowing
	if err := r.withRefs(ctx).Order("created_at ASC, id ASC").Find(&borrowings).Error; err != nil {
		return nil, fmt.Errorf("failed to get all borrowings: %w", err)
	}
	return borrowings, nil
}

// GetOverdue retrieves loans past their due date that were never returned.
func (r *GORMBorrowingRepository) GetOverdue(ctx context.Context, today time.Time) ([]models.Borrowing, error) {
	var borrowings []models.Borrowing
	err := r.withRefs(ctx).
		Where("due_date < ? AND return_date IS NULL", today).
		Order("due_date ASC, id ASC").
		Find(&borrowings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get overdue borrowings: %w", err)
	}
	return borrowings, nil
}

// MarkReturned closes an active borrowing.
func (r *GORMBorrowingRepository) MarkReturned(ctx context.Context, id string, returnDate time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Borrowing{}).
		Where("id = ? AND status = ?", id, models.StatusBorrowed).
		Updates(map[string]interface{}{
			"status":      models.StatusReturned,
			"return_date": returnDate,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to return borrowing %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("borrowing %s is no longer active: %w", id, ErrConcurrencyConflict)
	}
	return nil
}

// CountActiveByUser counts outstanding loans of a user.
func (r *GORMBorrowingRepository) CountActiveByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := r.active(ctx).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count active borrowings of user %s: %w", userID, err)
	}
	return n, nil
}

// CountOverdueByUser counts loans of a user that are past due and not returned.
func (r *GORMBorrowingRepository) CountOverdueByUser(ctx context.Context, userID string, today time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Borrowing{}).
		Where("user_id = ? AND due_date < ? AND return_date IS NULL", userID, today).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count overdue borrowings of user %s: %w", userID, err)
	}
	return n, nil
}

// CountActiveByBook counts outstanding loans of a book.
func (r *GORMBorrowingRepository) CountActiveByBook(ctx context.Context, bookID string) (int64, error) {
	var n int64
	if err := r.active(ctx).Where("book_id = ?", bookID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count active borrowings of book %s: %w", bookID, err)
	}
	return n, nil
}

// ExistsActive reports whether the user currently holds a copy of the book.
func (r *GORMBorrowingRepository) ExistsActive(ctx context.Context, userID, bookID string) (bool, error) {
	var n int64
	if err := r.active(ctx).Where("user_id = ? AND book_id = ?", userID, bookID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check active borrowing: %w", err)
	}
	return n > 0, nil
}
