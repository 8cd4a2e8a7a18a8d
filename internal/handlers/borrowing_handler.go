package handlers

import (
	"time"

	"library/internal/middleware"
	"library/internal/models"
	"library/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// BorrowingHandler handles HTTP requests for loans and overdue tracking.
type BorrowingHandler struct {
	borrowings *services.BorrowingService
	overdue    *services.OverdueService
	validate   *validator.Validate
}

// NewBorrowingHandler creates a new BorrowingHandler.
func NewBorrowingHandler(borrowings *services.BorrowingService, overdue *services.OverdueService) *BorrowingHandler {
	return &BorrowingHandler{
		borrowings: borrowings,
		overdue:    overdue,
		validate:   NewValidator(),
	}
}

// RegisterRoutes registers the borrowing routes. router must be behind AuthRequired.
func (h *BorrowingHandler) RegisterRoutes(router fiber.Router) {
	borrowingRoutes := router.Group("/borrowings")
	borrowingRoutes.Post("/", h.HandleBorrow)
	borrowingRoutes.Post("/:id/return", h.HandleReturn)
	borrowingRoutes.Get("/history", h.HandleMyHistory)
	borrowingRoutes.Get("/history/all", h.HandleAllHistory)
	borrowingRoutes.Get("/overdue", h.HandleOverdue)
	borrowingRoutes.Get("/overdue/report", h.HandleOverdueReport)
}

// BorrowRequest represents the request body for borrowing a book.
type BorrowRequest struct {
	BookID string `json:"book_id" validate:"required"`
}

// OverdueBorrowing is a borrowing with its days past due.
type OverdueBorrowing struct {
	models.Borrowing
	OverdueDays int `json:"overdue_days"`
}

// OverdueBook is an overdue copy as shown to patrons, without its borrower.
type OverdueBook struct {
	*models.Book
	DueDate     time.Time `json:"due_date"`
	OverdueDays int       `json:"overdue_days"`
}

// HandleBorrow lends a book to the caller.
func (h *BorrowingHandler) HandleBorrow(c *fiber.Ctx) error {
	var req BorrowRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	borrowing, err := h.borrowings.Borrow(c.UserContext(), middleware.UserID(c), req.BookID)
	if err != nil {
		return respondError(c, "Could not borrow book", err)
	}
	return c.Status(fiber.StatusCreated).JSON(borrowing)
}

// HandleReturn returns a borrowed book. Only the borrower may return it.
func (h *BorrowingHandler) HandleReturn(c *fiber.Ctx) error {
	borrowing, err := h.borrowings.ReturnBook(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, "Could not return book", err)
	}
	return c.JSON(borrowing)
}

// HandleMyHistory lists the caller's loans.
func (h *BorrowingHandler) HandleMyHistory(c *fiber.Ctx) error {
	list, err := h.borrowings.GetUserBorrowingHistory(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, "Could not retrieve borrowing history", err)
	}
	return c.JSON(list)
}

// HandleAllHistory lists every loan. Librarians only.
func (h *BorrowingHandler) HandleAllHistory(c *fiber.Ctx) error {
	list, err := h.borrowings.GetAllBorrowingHistory(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, "Could not retrieve borrowing history", err)
	}
	return c.JSON(list)
}

// HandleOverdue lists overdue loans with their days past due. Librarians see
// the borrowers; patrons only see the books.
func (h *BorrowingHandler) HandleOverdue(c *fiber.Ctx) error {
	view, err := h.overdue.GetOverdueBooksFor(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, "Could not retrieve overdue books", err)
	}
	today := h.overdue.Today()
	if !view.IncludesBorrowers {
		books := make([]OverdueBook, 0, len(view.Borrowings))
		for _, b := range view.Borrowings {
			books = append(books, OverdueBook{Book: b.Book, DueDate: b.DueDate, OverdueDays: b.OverdueDays(today)})
		}
		return c.JSON(books)
	}
	out := make([]OverdueBorrowing, 0, len(view.Borrowings))
	for _, b := range view.Borrowings {
		out = append(out, OverdueBorrowing{Borrowing: b, OverdueDays: b.OverdueDays(today)})
	}
	return c.JSON(out)
}

// HandleOverdueReport renders the overdue report as plain text. Librarians only.
func (h *BorrowingHandler) HandleOverdueReport(c *fiber.Ctx) error {
	report, err := h.overdue.GenerateOverdueReport(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, "Could not generate overdue report", err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(report)
}
