package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories and runs units of work atomically.
type Store interface {
	Users() UserRepository
	Books() BookRepository
	Borrowings() BorrowingRepository
	// Transaction runs fn against a transaction-scoped Store. The work is
	// committed if fn returns nil and rolled back otherwise.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// GormStore is a GORM implementation of Store.
type GormStore struct {
	db       *gorm.DB
	lockRows bool
}

// NewGormStore creates a new GormStore on top of db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository {
	return &GORMUserRepository{db: s.db, lockRows: s.lockRows}
}

func (s *GormStore) Books() BookRepository {
	return &GORMBookRepository{db: s.db, lockRows: s.lockRows}
}

func (s *GormStore) Borrowings() BorrowingRepository {
	return &GORMBorrowingRepository{db: s.db, lockRows: s.lockRows}
}

// Transaction runs fn inside a database transaction. Repositories handed to
// fn read user, book and borrowing rows with SELECT ... FOR UPDATE so that
// concurrent units of work touching the same rows are serialized.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, lockRows: true})
	})
}
