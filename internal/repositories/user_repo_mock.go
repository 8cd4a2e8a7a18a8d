package repositories

import (
	"context"
	"fmt"
	"time"

	"library/internal/models"

	"github.com/google/uuid"
)

// MockUserRepository is an in-memory implementation of UserRepository.
type MockUserRepository struct {
	data *memoryData
}

// NewMockUserRepository creates a new instance of MockUserRepository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{data: newMemoryData()}
}

// Create adds a new user, enforcing email uniqueness.
func (r *MockUserRepository) Create(_ context.Context, user *models.User) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	for _, u := range r.data.users {
		if u.Email == user.Email {
			return fmt.Errorf("failed to create user: %w", ErrDuplicateKey)
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.data.users[user.ID] = *user
	return nil
}

// GetByID returns a user by ID.
func (r *MockUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	user, ok := r.data.users[id]
	if !ok {
		return nil, fmt.Errorf("user with ID %s: %w", id, ErrRecordNotFound)
	}
	return &user, nil
}

// GetByEmail returns a user by email.
func (r *MockUserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()

	for _, u := range r.data.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, ErrRecordNotFound)
}

// Update replaces the mutable profile fields of a user.
func (r *MockUserRepository) Update(_ context.Context, user *models.User) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	existing, ok := r.data.users[user.ID]
	if !ok {
		return fmt.Errorf("user with ID %s not found for update: %w", user.ID, ErrRecordNotFound)
	}
	for id, u := range r.data.users {
		if id != user.ID && u.Email == user.Email {
			return fmt.Errorf("failed to update user %s: %w", user.ID, ErrDuplicateKey)
		}
	}
	existing.Name = user.Name
	existing.Email = user.Email
	existing.Password = user.Password
	existing.Phone = user.Phone
	existing.Role = user.Role
	existing.UpdatedAt = time.Now()
	r.data.users[user.ID] = existing
	return nil
}

// Delete removes a user and, like the ON DELETE CASCADE constraint, its borrowings.
func (r *MockUserRepository) Delete(_ context.Context, id string) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	if _, ok := r.data.users[id]; !ok {
		return fmt.Errorf("user with ID %s not found for deletion: %w", id, ErrRecordNotFound)
	}
	delete(r.data.users, id)
	for bid, b := range r.data.borrowings {
		if b.UserID == id {
			delete(r.data.borrowings, bid)
		}
	}
	return nil
}
