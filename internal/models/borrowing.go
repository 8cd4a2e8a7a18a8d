package models

import "time"

// BorrowingStatus is the lifecycle state of a loan.
type BorrowingStatus string

const (
	// StatusPending is reserved; loans are created directly as BORROWED.
	StatusPending  BorrowingStatus = "PENDING"
	StatusBorrowed BorrowingStatus = "BORROWED"
	StatusReturned BorrowingStatus = "RETURNED"
)

// Borrowing is the record of one loan of a book to a patron.
type Borrowing struct {
	ID         string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID     string          `json:"user_id" gorm:"type:varchar(36);not null;index"`
	User       *User           `json:"user,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	BookID     string          `json:"book_id" gorm:"type:varchar(36);not null;index"`
	Book       *Book           `json:"book,omitempty" gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
	BorrowDate time.Time       `json:"borrow_date"`
	DueDate    time.Time       `json:"due_date" gorm:"index"`
	ReturnDate *time.Time      `json:"return_date"`
	Status     BorrowingStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName returns the database table name for the Borrowing model.
func (Borrowing) TableName() string {
	return "borrowings"
}

// IsActive reports whether the loan is still outstanding.
func (b *Borrowing) IsActive() bool {
	return b.Status == StatusBorrowed && b.ReturnDate == nil
}

// IsOverdue reports whether the loan is outstanding past its due date.
func (b *Borrowing) IsOverdue(today time.Time) bool {
	return b.ReturnDate == nil && b.DueDate.Before(today)
}

// OverdueDays returns how many whole days past due the loan is on today.
func (b *Borrowing) OverdueDays(today time.Time) int {
	if !b.IsOverdue(today) {
		return 0
	}
	return DaysBetween(b.DueDate, today)
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from `from` to `to`, by calendar date.
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}
