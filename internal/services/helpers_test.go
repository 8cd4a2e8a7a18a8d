package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"library/internal/models"
	"library/internal/repositories"
	"library/internal/services"

	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

// now is mid-afternoon of today.
var now = today.Add(15*time.Hour + 30*time.Minute)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *repositories.MockStore
	clock services.Clock
	seq   int
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		store: repositories.NewMockStore(),
		clock: services.FixedClock(now),
	}
}

func (f *fixture) user(name string, role models.Role) *models.User {
	f.t.Helper()
	f.seq++
	u := &models.User{Name: name, Email: fmt.Sprintf("user%d@example.com", f.seq), Password: "hash", Role: role}
	require.NoError(f.t, f.store.Users().Create(f.ctx, u))
	return u
}

func (f *fixture) patron(name string) *models.User {
	return f.user(name, models.RolePatron)
}

func (f *fixture) librarian() *models.User {
	return f.user("Librarian", models.RoleLibrarian)
}

func (f *fixture) book(title string, copies int) *models.Book {
	f.t.Helper()
	f.seq++
	b := &models.Book{
		Title: title, Author: "Author", ISBN: fmt.Sprintf("978-%06d", f.seq), Genre: models.GenreFiction,
		TotalCopies: copies, AvailableCopies: copies,
	}
	require.NoError(f.t, f.store.Books().Create(f.ctx, b))
	return b
}

// loan inserts an active borrowing directly, taking a copy off the shelf.
func (f *fixture) loan(u *models.User, b *models.Book, borrowDaysAgo, dueDaysAgo int) *models.Borrowing {
	f.t.Helper()
	cur := f.reloadBook(b.ID)
	require.NoError(f.t, f.store.Books().AdjustAvailableCopies(f.ctx, b.ID, -1, cur.Version))
	br := &models.Borrowing{
		UserID: u.ID, BookID: b.ID,
		BorrowDate: today.AddDate(0, 0, -borrowDaysAgo),
		DueDate:    today.AddDate(0, 0, -dueDaysAgo),
		Status:     models.StatusBorrowed,
	}
	require.NoError(f.t, f.store.Borrowings().Create(f.ctx, br))
	return br
}

func (f *fixture) reloadBook(id string) *models.Book {
	f.t.Helper()
	b, err := f.store.Books().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) engine(opts ...services.BorrowingOption) *services.BorrowingService {
	return services.NewBorrowingService(f.store, append([]services.BorrowingOption{services.WithClock(f.clock)}, opts...)...)
}
