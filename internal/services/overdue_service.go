package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"library/internal/metrics"
	"library/internal/models"
	"library/internal/repositories"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05"

	// NoOverdueBooksReport is returned when nothing is overdue.
	NoOverdueBooksReport = "No overdue books currently."
)

// OverdueService answers overdue queries. Nothing is cached; every call
// reads the store against the clock's current day.
type OverdueService struct {
	store   repositories.Store
	clock   Clock
	metrics *metrics.Metrics
}

// NewOverdueService creates a new OverdueService.
func NewOverdueService(store repositories.Store, clock Clock, m *metrics.Metrics) *OverdueService {
	if clock == nil {
		clock = SystemClock
	}
	return &OverdueService{store: store, clock: clock, metrics: m}
}

// Today returns the day overdue status is computed against.
func (s *OverdueService) Today() time.Time {
	return s.clock.today()
}

// GetOverdueBooks returns loans whose due date has passed and that are not
// returned, most overdue first.
func (s *OverdueService) GetOverdueBooks(ctx context.Context) ([]models.Borrowing, error) {
	list, err := s.store.Borrowings().GetOverdue(ctx, s.clock.today())
	if err != nil {
		return nil, storeError("loading overdue borrowings", err)
	}
	s.metrics.SetOverdueCount(len(list))
	return list, nil
}

// OverdueView is the part of the overdue list an actor may see.
type OverdueView struct {
	Borrowings []models.Borrowing
	// IncludesBorrowers is set for librarians. Other callers must only be
	// shown the books.
	IncludesBorrowers bool
}

// GetOverdueBooksFor returns the overdue loans for actorID. Borrower details
// are dropped unless the actor is a librarian.
func (s *OverdueService) GetOverdueBooksFor(ctx context.Context, actorID string) (*OverdueView, error) {
	actor, err := s.store.Users().GetByID(ctx, actorID)
	if err != nil {
		return nil, lookupError(err, ErrUserNotFound, actorID)
	}
	list, err := s.GetOverdueBooks(ctx)
	if err != nil {
		return nil, err
	}
	view := &OverdueView{Borrowings: list, IncludesBorrowers: actor.IsLibrarian()}
	if !view.IncludesBorrowers {
		for i := range view.Borrowings {
			view.Borrowings[i].User = nil
			view.Borrowings[i].UserID = ""
		}
	}
	return view, nil
}

// GenerateOverdueReport renders the overdue loans as plain text. Librarians only.
func (s *OverdueService) GenerateOverdueReport(ctx context.Context, librarianID string) (string, error) {
	if _, err := requireLibrarian(ctx, s.store.Users(), librarianID); err != nil {
		return "", err
	}

	now := s.clock()
	today := models.DateOf(now)
	list, err := s.store.Borrowings().GetOverdue(ctx, today)
	if err != nil {
		return "", storeError("loading overdue borrowings", err)
	}
	s.metrics.SetOverdueCount(len(list))
	if len(list) == 0 {
		return NoOverdueBooksReport, nil
	}

	var sb strings.Builder
	sb.WriteString("OVERDUE BOOKS REPORT\n")
	sb.WriteString("----------------------\n")
	fmt.Fprintf(&sb, "Total Overdue Books: %d\n\n", len(list))
	sb.WriteString("Book Title | User Name | Borrow Date | Due Date | Overdue Days | Status\n")
	sb.WriteString(strings.Repeat("-", 60) + "\n")
	for i := range list {
		b := &list[i]
		var title, name string
		if b.Book != nil {
			title = b.Book.Title
		}
		if b.User != nil {
			name = b.User.Name
		}
		fmt.Fprintf(&sb, "%s | %s | %s | %s | %d days | %s\n",
			title,
			name,
			b.BorrowDate.Format(dateLayout),
			b.DueDate.Format(dateLayout),
			b.OverdueDays(today),
			b.Status,
		)
	}
	fmt.Fprintf(&sb, "\nLast Updated: %s", now.Format(timestampLayout))
	return sb.String(), nil
}
