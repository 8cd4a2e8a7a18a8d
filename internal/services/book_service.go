package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"library/internal/models"
	"library/internal/repositories"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// BookInput carries the editable fields of a book.
type BookInput struct {
	Title           string
	Author          string
	ISBN            string
	Genre           string
	PublicationDate time.Time
	TotalCopies     int
}

func (in BookInput) validate() (models.Genre, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" || strings.TrimSpace(in.ISBN) == "" {
		return "", ErrMissingField.Withf("title, author and isbn are required")
	}
	if in.PublicationDate.IsZero() {
		return "", ErrMissingField.Withf("publication date is required")
	}
	if in.TotalCopies < 0 {
		return "", ErrInvalidInput.Withf("total copies cannot be negative")
	}
	genre, err := models.ParseGenre(in.Genre)
	if err != nil {
		return "", ErrInvalidGenre.Withf("%v", err)
	}
	return genre, nil
}

// BookUpdate carries the fields of a partial book update. Nil or blank
// fields are left unchanged.
type BookUpdate struct {
	Title           *string
	Author          *string
	ISBN            *string
	Genre           *string
	PublicationDate *time.Time
	TotalCopies     *int
}

func trimmed(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	v := strings.TrimSpace(*s)
	return v, v != ""
}

// BookService handles the book catalog.
type BookService struct {
	store repositories.Store
}

// NewBookService creates a new BookService.
func NewBookService(store repositories.Store) *BookService {
	return &BookService{store: store}
}

// AddBook adds a title with all copies available. Librarians only.
func (s *BookService) AddBook(ctx context.Context, librarianID string, in BookInput) (*models.Book, error) {
	if _, err := requireLibrarian(ctx, s.store.Users(), librarianID); err != nil {
		return nil, err
	}
	genre, err := in.validate()
	if err != nil {
		return nil, err
	}

	book := &models.Book{
		Title:           strings.TrimSpace(in.Title),
		Author:          strings.TrimSpace(in.Author),
		ISBN:            strings.TrimSpace(in.ISBN),
		Genre:           genre,
		PublicationDate: models.DateOf(in.PublicationDate),
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
	}
	if err := s.store.Books().Create(ctx, book); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, ErrISBNTaken.Withf("a book with ISBN %s already exists", book.ISBN)
		}
		return nil, storeError("creating book", err)
	}
	log.Printf("Librarian %s added book %s (%s)", librarianID, book.ID, book.ISBN)
	return book, nil
}

// GetBook returns a book by ID.
func (s *BookService) GetBook(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.store.Books().GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, ErrBookNotFound, id)
	}
	return book, nil
}

// SearchBooks returns one zero-based page of books matching filter.
func (s *BookService) SearchBooks(ctx context.Context, filter models.BookFilter, page, size int) (*models.BookPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	items, total, err := s.store.Books().Search(ctx, filter, page*size, size)
	if err != nil {
		return nil, storeError("searching books", err)
	}
	return &models.BookPage{Items: items, Page: page, Size: size, Total: total}, nil
}

// UpdateBook applies the supplied fields of patch to a book. When a total is
// supplied, available copies become the new total minus copies on loan.
// Librarians only.
func (s *BookService) UpdateBook(ctx context.Context, librarianID, id string, patch BookUpdate) (*models.Book, error) {
	if _, err := requireLibrarian(ctx, s.store.Users(), librarianID); err != nil {
		return nil, err
	}
	if patch.TotalCopies != nil && *patch.TotalCopies < 0 {
		return nil, ErrInvalidInput.Withf("total copies cannot be negative")
	}
	var genre models.Genre
	if g, ok := trimmed(patch.Genre); ok {
		parsed, err := models.ParseGenre(g)
		if err != nil {
			return nil, ErrInvalidGenre.Withf("%v", err)
		}
		genre = parsed
	}

	var updated *models.Book
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		book, err := tx.Books().GetByID(ctx, id)
		if err != nil {
			return lookupError(err, ErrBookNotFound, id)
		}

		if patch.TotalCopies != nil && *patch.TotalCopies != book.TotalCopies {
			total := *patch.TotalCopies
			active, err := tx.Borrowings().CountActiveByBook(ctx, id)
			if err != nil {
				return err
			}
			if int64(total) < active {
				return ErrCopiesBelowLoans.Withf("total copies %d is less than the %d copies on loan", total, active)
			}
			book.TotalCopies = total
			book.AvailableCopies = total - int(active)
		}
		if v, ok := trimmed(patch.Title); ok {
			book.Title = v
		}
		if v, ok := trimmed(patch.Author); ok {
			book.Author = v
		}
		if v, ok := trimmed(patch.ISBN); ok {
			book.ISBN = v
		}
		if genre != "" {
			book.Genre = genre
		}
		if patch.PublicationDate != nil && !patch.PublicationDate.IsZero() {
			book.PublicationDate = models.DateOf(*patch.PublicationDate)
		}

		if err := tx.Books().Update(ctx, book); err != nil {
			if errors.Is(err, repositories.ErrDuplicateKey) {
				return ErrISBNTaken.Withf("a book with ISBN %s already exists", book.ISBN)
			}
			return err
		}
		updated = book
		return nil
	})
	if err != nil {
		return nil, translate("updating book", err)
	}
	return updated, nil
}

// DeleteBook removes a book and its returned loan history. Books with copies
// on loan are refused. Librarians only.
func (s *BookService) DeleteBook(ctx context.Context, librarianID, id string) error {
	if _, err := requireLibrarian(ctx, s.store.Users(), librarianID); err != nil {
		return err
	}
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		if _, err := tx.Books().GetByID(ctx, id); err != nil {
			return lookupError(err, ErrBookNotFound, id)
		}
		active, err := tx.Borrowings().CountActiveByBook(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveBorrowingsExist.Withf("book %s has %d copies on loan", id, active)
		}
		return tx.Books().Delete(ctx, id)
	})
	if err != nil {
		return translate("deleting book", err)
	}
	log.Printf("Librarian %s deleted book %s", librarianID, id)
	return nil
}

// AvailabilitySnapshot returns the copy counts of every book.
func (s *BookService) AvailabilitySnapshot(ctx context.Context) ([]models.BookAvailability, error) {
	books, err := s.store.Books().GetAll(ctx)
	if err != nil {
		return nil, storeError("loading books", err)
	}
	out := make([]models.BookAvailability, 0, len(books))
	for _, b := range books {
		out = append(out, models.BookAvailability{
			ID:              b.ID,
			Title:           b.Title,
			TotalCopies:     b.TotalCopies,
			AvailableCopies: b.AvailableCopies,
		})
	}
	return out, nil
}
