package services

import (
	"context"

	"library/internal/models"
	"library/internal/repositories"
)

// requireLibrarian loads the acting user and fails unless they are a librarian.
func requireLibrarian(ctx context.Context, users repositories.UserRepository, userID string) (*models.User, error) {
	if userID == "" {
		return nil, ErrMissingField.Withf("user ID is required")
	}
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupError(err, ErrUserNotFound, userID)
	}
	if !user.IsLibrarian() {
		return nil, ErrNotLibrarian
	}
	return user, nil
}
