package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"library/internal/models"

	"github.com/google/uuid"
)

// MockBookRepository is an in-memory implementation of BookRepository.
type MockBookRepository struct {
	data *memoryData
}

// NewMockBookRepository creates a new instance of MockBookRepository.
func NewMockBookRepository() *MockBookRepository {
	return &MockBookRepository{data: newMemoryData()}
}

func sortBooks(books []models.Book) {
	sort.Slice(books, func(i, j int) bool {
		if books[i].Title != books[j].Title {
			return books[i].Title < books[j].Title
		}
		return books[i].ID < books[j].ID
	})
}

// GetAll returns all books ordered by title.
func (r *MockBookRepository) GetAll(_ context.Context) ([]models.Book, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	bookList := make([]models.Book, 0, len(r.data.books))
	for _, b := range r.data.books {
		bookList = append(bookList, b)
	}
	sortBooks(bookList)
	return bookList, nil
}

// GetByID returns a book by its ID.
func (r *MockBookRepository) GetByID(_ context.Context, id string) (*models.Book, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	book, ok := r.data.books[id]
	if !ok {
		return nil, fmt.Errorf("book with ID %s: %w", id, ErrRecordNotFound)
	}
	return &book, nil
}

// GetByISBN returns a book by its ISBN.
func (r *MockBookRepository) GetByISBN(_ context.Context, isbn string) (*models.Book, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	for _, b := range r.data.books {
		if b.ISBN == isbn {
			book := b
			return &book, nil
		}
	}
	return nil, fmt.Errorf("book with ISBN %s: %w", isbn, ErrRecordNotFound)
}

func containsFold(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	return needle == "" || strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Search returns one page of matching books and the total match count.
func (r *MockBookRepository) Search(ctx context.Context, filter models.BookFilter, offset, limit int) ([]models.Book, int64, error) {
	all, _ := r.GetAll(ctx)

	matched := make([]models.Book, 0, len(all))
	for _, b := range all {
		if containsFold(b.Title, filter.Title) &&
			containsFold(b.Author, filter.Author) &&
			containsFold(b.ISBN, filter.ISBN) &&
			containsFold(string(b.Genre), filter.Genre) {
			matched = append(matched, b)
		}
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []models.Book{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// Create adds a new book, enforcing ISBN uniqueness.
func (r *MockBookRepository) Create(_ context.Context, book *models.Book) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	for _, b := range r.data.books {
		if b.ISBN == book.ISBN {
			return fmt.Errorf("failed to create book: %w", ErrDuplicateKey)
		}
	}
	if book.ID == "" {
		book.ID = uuid.New().String()
	}
	book.CreatedAt = time.Now()
	book.UpdatedAt = book.CreatedAt
	r.data.books[book.ID] = *book
	return nil
}

// Update modifies an existing book if its version is unchanged.
func (r *MockBookRepository) Update(_ context.Context, book *models.Book) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	existing, ok := r.data.books[book.ID]
	if !ok {
		return fmt.Errorf("book with ID %s: %w", book.ID, ErrRecordNotFound)
	}
	if existing.Version != book.Version {
		return fmt.Errorf("book with ID %s changed concurrently: %w", book.ID, ErrConcurrencyConflict)
	}
	for id, b := range r.data.books {
		if id != book.ID && b.ISBN == book.ISBN {
			return fmt.Errorf("failed to update book: %w", ErrDuplicateKey)
		}
	}
	book.Version++
	book.CreatedAt = existing.CreatedAt
	book.UpdatedAt = time.Now()
	r.data.books[book.ID] = *book
	return nil
}

// AdjustAvailableCopies applies delta to the available copy count.
func (r *MockBookRepository) AdjustAvailableCopies(_ context.Context, id string, delta, expectedVersion int) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	book, ok := r.data.books[id]
	if !ok {
		return fmt.Errorf("book with ID %s: %w", id, ErrRecordNotFound)
	}
	next := book.AvailableCopies + delta
	if book.Version != expectedVersion || next < 0 || next > book.TotalCopies {
		return fmt.Errorf("book with ID %s changed concurrently: %w", id, ErrConcurrencyConflict)
	}
	book.AvailableCopies = next
	book.Version++
	book.UpdatedAt = time.Now()
	r.data.books[id] = book
	return nil
}

// Delete removes a book and its borrowings.
func (r *MockBookRepository) Delete(_ context.Context, id string) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	if _, ok := r.data.books[id]; !ok {
		return fmt.Errorf("book with ID %s not found for deletion: %w", id, ErrRecordNotFound)
	}
	delete(r.data.books, id)
	for bid, b := range r.data.borrowings {
		if b.BookID == id {
			delete(r.data.borrowings, bid)
		}
	}
	return nil
}
