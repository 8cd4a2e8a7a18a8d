package repositories

import (
	"context"
	"sync"

	"library/internal/models"
)

// memoryData is the shared state behind the in-memory repositories.
type memoryData struct {
	mu         sync.RWMutex
	users      map[string]models.User
	books      map[string]models.Book
	borrowings map[string]models.Borrowing
}

func newMemoryData() *memoryData {
	return &memoryData{
		users:      make(map[string]models.User),
		books:      make(map[string]models.Book),
		borrowings: make(map[string]models.Borrowing),
	}
}

func (d *memoryData) snapshot() *memoryData {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c := newMemoryData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.books {
		c.books[k] = v
	}
	for k, v := range d.borrowings {
		c.borrowings[k] = v
	}
	return c
}

func (d *memoryData) restore(from *memoryData) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users = from.users
	d.books = from.books
	d.borrowings = from.borrowings
}

// MockStore is an in-memory implementation of Store.
// Transactions are serialized and rolled back from a snapshot on error;
// reads outside a transaction may observe uncommitted writes.
type MockStore struct {
	data *memoryData
	txMu *sync.Mutex
	inTx bool
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		data: newMemoryData(),
		txMu: &sync.Mutex{},
	}
}

func (s *MockStore) Users() UserRepository {
	return &MockUserRepository{data: s.data}
}

func (s *MockStore) Books() BookRepository {
	return &MockBookRepository{data: s.data}
}

func (s *MockStore) Borrowings() BorrowingRepository {
	return &MockBorrowingRepository{data: s.data}
}

// Transaction runs fn while holding the store-wide transaction lock.
func (s *MockStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	before := s.data.snapshot()
	if err := fn(&MockStore{data: s.data, txMu: s.txMu, inTx: true}); err != nil {
		s.data.restore(before)
		return err
	}
	return nil
}
