package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"library/internal/models"

	"github.com/google/uuid"
)

// MockBorrowingRepository is an in-memory implementation of BorrowingRepository.
type MockBorrowingRepository struct {
	data *memoryData
}

// NewMockBorrowingRepository creates a new instance of MockBorrowingRepository.
func NewMockBorrowingRepository() *MockBorrowingRepository {
	return &MockBorrowingRepository{data: newMemoryData()}
}

// withRefs attaches copies of the user and book. Caller holds the read lock.
func (r *MockBorrowingRepository) withRefs(b models.Borrowing) models.Borrowing {
	if u, ok := r.data.users[b.UserID]; ok {
		b.User = &u
	}
	if bk, ok := r.data.books[b.BookID]; ok {
		b.Book = &bk
	}
	return b
}

func (r *MockBorrowingRepository) collect(match func(models.Borrowing) bool) []models.Borrowing {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	list := make([]models.Borrowing, 0)
	for _, b := range r.data.borrowings {
		if match(b) {
			list = append(list, r.withRefs(b))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Create adds a new borrowing.
func (r *MockBorrowingRepository) Create(_ context.Context, borrowing *models.Borrowing) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	if borrowing.ID == "" {
		borrowing.ID = uuid.New().String()
	}
	borrowing.CreatedAt = time.Now()
	borrowing.UpdatedAt = borrowing.CreatedAt

	stored := *borrowing
	stored.User = nil
	stored.Book = nil
	r.data.borrowings[borrowing.ID] = stored
	return nil
}

// GetByID returns a borrowing by its ID.
func (r *MockBorrowingRepository) GetByID(_ context.Context, id string) (*models.Borrowing, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	b, ok := r.data.borrowings[id]
	if !ok {
		return nil, fmt.Errorf("borrowing with ID %s: %w", id, ErrRecordNotFound)
	}
	b = r.withRefs(b)
	return &b, nil
}

// GetByUserID returns all borrowings of a user.
func (r *MockBorrowingRepository) GetByUserID(_ context.Context, userID string) ([]models.Borrowing, error) {
	return r.collect(func(b models.Borrowing) bool { return b.UserID == userID }), nil
}

// GetAll returns every borrowing.
func (r *MockBorrowingRepository) GetAll(_ context.Context) ([]models.Borrowing, error) {
	return r.collect(func(models.Borrowing) bool { return true }), nil
}

// GetOverdue returns loans past their due date that were never returned.
func (r *MockBorrowingRepository) GetOverdue(_ context.Context, today time.Time) ([]models.Borrowing, error) {
	list := r.collect(func(b models.Borrowing) bool { return b.IsOverdue(today) })
	sort.SliceStable(list, func(i, j int) bool { return list[i].DueDate.Before(list[j].DueDate) })
	return list, nil
}

// MarkReturned closes an active borrowing.
func (r *MockBorrowingRepository) MarkReturned(_ context.Context, id string, returnDate time.Time) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	b, ok := r.data.borrowings[id]
	if !ok || b.Status != models.StatusBorrowed {
		return fmt.Errorf("borrowing %s is no longer active: %w", id, ErrConcurrencyConflict)
	}
	b.Status = models.StatusReturned
	b.ReturnDate = &returnDate
	b.UpdatedAt = time.Now()
	r.data.borrowings[id] = b
	return nil
}

func (r *MockBorrowingRepository) count(match func(models.Borrowing) bool) int64 {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	var n int64
	for _, b := range r.data.borrowings {
		if match(b) {
			n++
		}
	}
	return n
}

// CountActiveByUser counts outstanding loans of a user.
func (r *MockBorrowingRepository) CountActiveByUser(_ context.Context, userID string) (int64, error) {
	return r.count(func(b models.Borrowing) bool { return b.UserID == userID && b.IsActive() }), nil
}

// CountOverdueByUser counts overdue loans of a user.
func (r *MockBorrowingRepository) CountOverdueByUser(_ context.Context, userID string, today time.Time) (int64, error) {
	return r.count(func(b models.Borrowing) bool { return b.UserID == userID && b.IsOverdue(today) }), nil
}

// CountActiveByBook counts outstanding loans of a book.
func (r *MockBorrowingRepository) CountActiveByBook(_ context.Context, bookID string) (int64, error) {
	return r.count(func(b models.Borrowing) bool { return b.BookID == bookID && b.IsActive() }), nil
}

// ExistsActive reports whether the user currently holds a copy of the book.
func (r *MockBorrowingRepository) ExistsActive(_ context.Context, userID, bookID string) (bool, error) {
	n := r.count(func(b models.Borrowing) bool {
		return b.UserID == userID && b.BookID == bookID && b.IsActive()
	})
	return n > 0, nil
}
