package services_test

import (
	"strings"
	"testing"

	"library/internal/models"
	"library/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOverdueBooks(t *testing.T) {
	f := newFixture(t)
	p := f.patron("Ada")
	q := f.patron("Grace")
	overdue := f.loan(p, f.book("Late", 1), 24, 10)
	f.loan(q, f.book("Due today", 1), 14, 0)
	f.loan(q, f.book("Future", 1), 1, -13)

	returnedEarly := f.loan(p, f.book("Returned early", 1), 10, -4)
	require.NoError(t, f.store.Borrowings().MarkReturned(f.ctx, returnedEarly.ID, today.AddDate(0, 0, -5)))
	returnedLate := f.loan(q, f.book("Returned late", 1), 30, 16)
	require.NoError(t, f.store.Borrowings().MarkReturned(f.ctx, returnedLate.ID, today.AddDate(0, 0, -1)))

	svc := services.NewOverdueService(f.store, f.clock, nil)
	list, err := svc.GetOverdueBooks(f.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, overdue.ID, list[0].ID)
	assert.Equal(t, 10, list[0].OverdueDays(svc.Today()))
}

func TestGetOverdueBooksFor_HidesBorrowersFromPatrons(t *testing.T) {
	f := newFixture(t)
	ada := f.patron("Ada")
	grace := f.patron("Grace")
	lib := f.librarian()
	late := f.loan(ada, f.book("Late", 1), 24, 10)
	svc := services.NewOverdueService(f.store, f.clock, nil)

	view, err := svc.GetOverdueBooksFor(f.ctx, lib.ID)
	require.NoError(t, err)
	assert.True(t, view.IncludesBorrowers)
	require.Len(t, view.Borrowings, 1)
	assert.Equal(t, ada.ID, view.Borrowings[0].UserID)

	view, err = svc.GetOverdueBooksFor(f.ctx, grace.ID)
	require.NoError(t, err)
	assert.False(t, view.IncludesBorrowers)
	require.Len(t, view.Borrowings, 1)
	assert.Empty(t, view.Borrowings[0].UserID)
	assert.Nil(t, view.Borrowings[0].User)
	assert.Equal(t, late.BookID, view.Borrowings[0].BookID)

	// the stored loan keeps its borrower
	stored, err := f.store.Borrowings().GetByID(f.ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, ada.ID, stored.UserID)

	_, err = svc.GetOverdueBooksFor(f.ctx, "missing")
	assert.ErrorIs(t, err, services.ErrUserNotFound)
}

func TestGetOverdueBooks_FollowsClock(t *testing.T) {
	f := newFixture(t)
	f.loan(f.patron("Ada"), f.book("Dune", 1), 14, 0)

	list, err := services.NewOverdueService(f.store, f.clock, nil).GetOverdueBooks(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	tomorrow := services.FixedClock(now.AddDate(0, 0, 1))
	list, err = services.NewOverdueService(f.store, tomorrow, nil).GetOverdueBooks(f.ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGenerateOverdueReport(t *testing.T) {
	f := newFixture(t)
	lib := f.librarian()
	ada := f.patron("Ada Lovelace")
	grace := f.patron("Grace Hopper")
	f.loan(ada, f.book("Dune", 1), 17, 3)
	f.loan(grace, f.book("Neuromancer", 1), 24, 10)

	report, err := services.NewOverdueService(f.store, f.clock, nil).GenerateOverdueReport(f.ctx, lib.ID)
	require.NoError(t, err)

	lines := strings.Split(report, "\n")
	assert.Equal(t, "OVERDUE BOOKS REPORT", lines[0])
	assert.Contains(t, report, "Total Overdue Books: 2")
	assert.Contains(t, report, "Book Title | User Name | Borrow Date | Due Date | Overdue Days | Status")
	assert.Contains(t, report, "Neuromancer | Grace Hopper | 2026-09-25 | 2026-10-09 | 10 days | BORROWED")
	assert.Contains(t, report, "Dune | Ada Lovelace | 2026-10-02 | 2026-10-16 | 3 days | BORROWED")
	assert.True(t, strings.Index(report, "Neuromancer") < strings.Index(report, "Dune"), "most overdue first")
	assert.Equal(t, "Last Updated: 2026-10-19T15:30:00", lines[len(lines)-1])
}

func TestGenerateOverdueReport_Empty(t *testing.T) {
	f := newFixture(t)
	lib := f.librarian()

	report, err := services.NewOverdueService(f.store, f.clock, nil).GenerateOverdueReport(f.ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, services.NoOverdueBooksReport, report)
}

func TestGenerateOverdueReport_RequiresLibrarian(t *testing.T) {
	f := newFixture(t)
	p := f.user("Ada", models.RolePatron)
	svc := services.NewOverdueService(f.store, f.clock, nil)

	_, err := svc.GenerateOverdueReport(f.ctx, p.ID)
	assert.ErrorIs(t, err, services.ErrNotLibrarian)

	_, err = svc.GenerateOverdueReport(f.ctx, "missing")
	assert.ErrorIs(t, err, services.ErrUserNotFound)
}
