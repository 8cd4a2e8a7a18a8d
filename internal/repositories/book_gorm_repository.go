package repositories

import (
	"context"
	"fmt"
	"strings"

	"library/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMBookRepository is a GORM implementation of BookRepository.
type GORMBookRepository struct {
	db       *gorm.DB
	lockRows bool
}

// NewGORMBookRepository creates a new instance of GORMBookRepository.
func NewGORMBookRepository(db *gorm.DB) *GORMBookRepository {
	return &GORMBookRepository{
		db: db,
	}
}

// GetAll retrieves all books ordered by title.
func (r *GORMBookRepository) GetAll(ctx context.Context) ([]models.Book, error) {
	var books []models.Book
	if err := r.db.WithContext(ctx).Order("title ASC, id ASC").Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to get all books: %w", err)
	}
	return books, nil
}

// GetByID retrieves a single book by its ID from the database.
func (r *GORMBookRepository) GetByID(ctx context.Context, id string) (*models.Book, error) {
	db := r.db.WithContext(ctx)
	if r.lockRows {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("book with ID %s: %w", id, translateError(err))
	}
	return &book, nil
}

// GetByISBN retrieves a single book by its ISBN.
func (r *GORMBookRepository) GetByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).First(&book, "isbn = ?", isbn).Error; err != nil {
		return nil, fmt.Errorf("book with ISBN %s: %w", isbn, translateError(err))
	}
	return &book, nil
}

func bookFilterScope(f models.BookFilter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		like := func(column, value string) {
			if v := strings.TrimSpace(value); v != "" {
				db = db.Where("LOWER("+column+") LIKE ?", "%"+strings.ToLower(v)+"%")
			}
		}
		like("title", f.Title)
		like("author", f.Author)
		like("isbn", f.ISBN)
		like("genre", f.Genre)
		return db
	}
}

// Search returns one page of books matching the filter and the total match count.
func (r *GORMBookRepository) Search(ctx context.Context, filter models.BookFilter, offset, limit int) ([]models.Book, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Book{}).Scopes(bookFilterScope(filter)).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	var books []models.Book
	err := r.db.WithContext(ctx).
		Scopes(bookFilterScope(filter)).
		Order("title ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&books).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search books: %w", err)
	}
	return books, total, nil
}

// Create creates a new book in the database.
func (r *GORMBookRepository) Create(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		return fmt.Errorf("failed to create book: %w", translateError(err))
	}
	return nil
}

// Update updates an existing book using its version as an optimistic lock.
func (r *GORMBookRepository) Update(ctx context.Context, book *models.Book) error {
	res := r.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND version = ?", book.ID, book.Version).
		Updates(map[string]interface{}{
			"title":            book.Title,
			"author":           book.Author,
			"isbn":             book.ISBN,
			"genre":            book.Genre,
			"publication_date": book.PublicationDate,
			"total_copies":     book.TotalCopies,
			"available_copies": book.AvailableCopies,
			"version":          gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update book: %w", translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, book.ID)
	}
	book.Version++
	return nil
}

// AdjustAvailableCopies applies delta to the available copy count.
func (r *GORMBookRepository) AdjustAvailableCopies(ctx context.Context, id string, delta, expectedVersion int) error {
	res := r.db.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Where("available_copies + ? >= 0 AND available_copies + ? <= total_copies", delta, delta).
		Updates(map[string]interface{}{
			"available_copies": gorm.Expr("available_copies + ?", delta),
			"version":          gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to adjust copies of book %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// Delete deletes a book by its ID from the database.
func (r *GORMBookRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Book{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete book: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("book with ID %s not found for deletion: %w", id, ErrRecordNotFound)
	}
	return nil
}

// missOrConflict tells a vanished row apart from a lost optimistic race.
func (r *GORMBookRepository) missOrConflict(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Book{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check book %s: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("book with ID %s: %w", id, ErrRecordNotFound)
	}
	return fmt.Errorf("book with ID %s changed concurrently: %w", id, ErrConcurrencyConflict)
}
