package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"library/internal/models"
	"library/internal/repositories"
)

// CreateUserInput is the payload librarians use to create accounts.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Role     models.Role
}

// UpdateUserInput changes a profile. Empty fields are left as they are.
// Role may only be changed by a librarian.
type UpdateUserInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Role     models.Role
}

// UserService handles user profile management.
type UserService struct {
	store repositories.Store
}

// NewUserService creates a new UserService.
func NewUserService(store repositories.Store) *UserService {
	return &UserService{store: store}
}

// authorizeSelfOrLibrarian loads the actor and allows access to targetID if
// it is the actor's own record or the actor is a librarian.
func (s *UserService) authorizeSelfOrLibrarian(ctx context.Context, actorID, targetID string) (*models.User, error) {
	actor, err := s.store.Users().GetByID(ctx, actorID)
	if err != nil {
		return nil, lookupError(err, ErrUserNotFound, actorID)
	}
	if actor.ID != targetID && !actor.IsLibrarian() {
		return nil, ErrAccessDenied
	}
	return actor, nil
}

// GetUser returns a user profile.
func (s *UserService) GetUser(ctx context.Context, actorID, id string) (*models.User, error) {
	if _, err := s.authorizeSelfOrLibrarian(ctx, actorID, id); err != nil {
		return nil, err
	}
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, ErrUserNotFound, id)
	}
	return user, nil
}

// CreateUser creates an account with any role. Librarians only.
func (s *UserService) CreateUser(ctx context.Context, librarianID string, in CreateUserInput) (*models.User, error) {
	if _, err := requireLibrarian(ctx, s.store.Users(), librarianID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, ErrMissingField.Withf("name, email and password are required")
	}
	role := in.Role
	if role == "" {
		role = models.RolePatron
	}
	if !role.Valid() {
		return nil, ErrInvalidInput.Withf("invalid role: %s", in.Role)
	}

	user := &models.User{
		Name:     strings.TrimSpace(in.Name),
		Email:    in.Email,
		Password: in.Password,
		Phone:    strings.TrimSpace(in.Phone),
		Role:     role,
	}
	if err := createUser(ctx, s.store.Users(), user); err != nil {
		return nil, err
	}
	log.Printf("Librarian %s created user %s with role %s", librarianID, user.ID, user.Role)
	return user, nil
}

// UpdateUser changes a profile. Users may edit themselves; librarians may
// edit anyone and change roles. The user row stays locked from the active
// loan check until the update, so a promotion cannot race a borrow.
func (s *UserService) UpdateUser(ctx context.Context, actorID, id string, in UpdateUserInput) (*models.User, error) {
	actor, err := s.authorizeSelfOrLibrarian(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	var hashed string
	if in.Password != "" {
		if hashed, err = hashPassword(in.Password); err != nil {
			return nil, storeError("hashing password", err)
		}
	}

	var updated *models.User
	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		user, err := tx.Users().GetByID(ctx, id)
		if err != nil {
			return lookupError(err, ErrUserNotFound, id)
		}

		if v := strings.TrimSpace(in.Name); v != "" {
			user.Name = v
		}
		if v := normalizeEmail(in.Email); v != "" {
			user.Email = v
		}
		if v := strings.TrimSpace(in.Phone); v != "" {
			user.Phone = v
		}
		if hashed != "" {
			user.Password = hashed
		}
		if in.Role != "" && in.Role != user.Role {
			if !actor.IsLibrarian() {
				return ErrNotLibrarian.Withf("only librarians can change roles")
			}
			if !in.Role.Valid() {
				return ErrInvalidInput.Withf("invalid role: %s", in.Role)
			}
			if in.Role == models.RoleLibrarian {
				active, err := tx.Borrowings().CountActiveByUser(ctx, id)
				if err != nil {
					return err
				}
				if active > 0 {
					return ErrActiveBorrowingsExist.Withf("user %s has %d active borrowing(s) and cannot become a librarian", id, active)
				}
			}
			user.Role = in.Role
		}

		if err := tx.Users().Update(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicateKey) {
				return ErrEmailTaken.Withf("email '%s' already registered", user.Email)
			}
			return lookupError(err, ErrUserNotFound, id)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, translate("updating user", err)
	}
	return updated, nil
}

// DeleteUser removes an account and its returned loan history. Accounts with
// active loans are refused. Librarians only.
func (s *UserService) DeleteUser(ctx context.Context, librarianID, id string) error {
	if _, err := requireLibrarian(ctx, s.store.Users(), librarianID); err != nil {
		return err
	}
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		if _, err := tx.Users().GetByID(ctx, id); err != nil {
			return lookupError(err, ErrUserNotFound, id)
		}
		active, err := tx.Borrowings().CountActiveByUser(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveBorrowingsExist.Withf("user %s has %d active borrowing(s)", id, active)
		}
		return tx.Users().Delete(ctx, id)
	})
	if err != nil {
		return translate("deleting user", err)
	}
	log.Printf("Librarian %s deleted user %s", librarianID, id)
	return nil
}
