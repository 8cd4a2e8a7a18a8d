package handlers

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"reflect"
	"time"

	"library/internal/metrics"
	"library/internal/middleware"
	"library/internal/models"
	"library/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
)

// StreamConfig controls the availability event stream.
type StreamConfig struct {
	// Interval between availability polls.
	Interval time.Duration
	// MaxEvents closes the stream after that many events; 0 streams until
	// the client goes away.
	MaxEvents int
}

// BookHandler handles HTTP requests for the book catalog.
type BookHandler struct {
	service  *services.BookService
	validate *validator.Validate
	stream   StreamConfig
	metrics  *metrics.Metrics
}

// NewBookHandler creates a new BookHandler.
func NewBookHandler(service *services.BookService, stream StreamConfig, m *metrics.Metrics) *BookHandler {
	if stream.Interval <= 0 {
		stream.Interval = time.Second
	}
	return &BookHandler{
		service:  service,
		validate: NewValidator(),
		stream:   stream,
		metrics:  m,
	}
}

// RegisterRoutes registers the book routes. router must be behind AuthRequired.
func (h *BookHandler) RegisterRoutes(router fiber.Router) {
	bookRoutes := router.Group("/books")
	bookRoutes.Get("/", h.HandleSearchBooks)
	bookRoutes.Get("/availability/stream", h.HandleAvailabilityStream)
	bookRoutes.Get("/:id", h.HandleGetBook)
	bookRoutes.Post("/", h.HandleAddBook)
	bookRoutes.Put("/:id", h.HandleUpdateBook)
	bookRoutes.Delete("/:id", h.HandleDeleteBook)
}

const dateLayout = "2006-01-02"

// BookRequest represents the request body for creating a book.
type BookRequest struct {
	Title           string `json:"title" validate:"required,max=255"`
	Author          string `json:"author" validate:"required,max=255"`
	ISBN            string `json:"isbn" validate:"required,max=32"`
	Genre           string `json:"genre" validate:"required"`
	PublicationDate string `json:"publication_date" validate:"required,datetime=2006-01-02"`
	TotalCopies     int    `json:"total_copies" validate:"gte=0"`
}

func (r BookRequest) input() services.BookInput {
	in := services.BookInput{
		Title:       r.Title,
		Author:      r.Author,
		ISBN:        r.ISBN,
		Genre:       r.Genre,
		TotalCopies: r.TotalCopies,
	}
	// format already checked by the datetime tag
	in.PublicationDate, _ = time.Parse(dateLayout, r.PublicationDate)
	return in
}

// UpdateBookRequest represents the request body for a partial book update.
type UpdateBookRequest struct {
	Title           *string `json:"title" validate:"omitempty,max=255"`
	Author          *string `json:"author" validate:"omitempty,max=255"`
	ISBN            *string `json:"isbn" validate:"omitempty,max=32"`
	Genre           *string `json:"genre"`
	PublicationDate *string `json:"publication_date" validate:"omitempty,datetime=2006-01-02"`
	TotalCopies     *int    `json:"total_copies" validate:"omitempty,gte=0"`
}

func (r UpdateBookRequest) patch() services.BookUpdate {
	patch := services.BookUpdate{
		Title:       r.Title,
		Author:      r.Author,
		ISBN:        r.ISBN,
		Genre:       r.Genre,
		TotalCopies: r.TotalCopies,
	}
	if r.PublicationDate != nil && *r.PublicationDate != "" {
		date, _ := time.Parse(dateLayout, *r.PublicationDate)
		patch.PublicationDate = &date
	}
	return patch
}

// HandleSearchBooks lists books, filtered by title, author, isbn and genre.
func (h *BookHandler) HandleSearchBooks(c *fiber.Ctx) error {
	var filter models.BookFilter
	if err := c.QueryParser(&filter); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid query parameters",
			"error":   err.Error(),
		})
	}

	page, err := h.service.SearchBooks(c.UserContext(), filter, c.QueryInt("page", 0), c.QueryInt("size", services.DefaultPageSize))
	if err != nil {
		return respondError(c, "Could not retrieve books", err)
	}
	return c.JSON(page)
}

// HandleGetBook retrieves a single book by its ID.
func (h *BookHandler) HandleGetBook(c *fiber.Ctx) error {
	book, err := h.service.GetBook(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, "Could not retrieve book", err)
	}
	return c.JSON(book)
}

// HandleAddBook adds a book to the catalog.
func (h *BookHandler) HandleAddBook(c *fiber.Ctx) error {
	var req BookRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	book, err := h.service.AddBook(c.UserContext(), middleware.UserID(c), req.input())
	if err != nil {
		return respondError(c, "Could not create book", err)
	}
	return c.Status(fiber.StatusCreated).JSON(book)
}

// HandleUpdateBook updates the supplied fields of a book.
func (h *BookHandler) HandleUpdateBook(c *fiber.Ctx) error {
	var req UpdateBookRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	book, err := h.service.UpdateBook(c.UserContext(), middleware.UserID(c), c.Params("id"), req.patch())
	if err != nil {
		return respondError(c, "Could not update book", err)
	}
	return c.JSON(book)
}

// HandleDeleteBook deletes a book.
func (h *BookHandler) HandleDeleteBook(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.DeleteBook(c.UserContext(), middleware.UserID(c), id); err != nil {
		return respondError(c, "Could not delete book", err)
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Book with ID %s deleted successfully", id),
	})
}

// HandleAvailabilityStream pushes copy counts as server-sent events. An event
// is sent on connect and then whenever any count changes.
func (h *BookHandler) HandleAvailabilityStream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	cfg := h.stream
	service := h.service
	m := h.metrics

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		m.StreamOpened()
		defer m.StreamClosed()

		ctx := context.Background()
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		var last []models.BookAvailability
		sent := 0
		for {
			snapshot, err := service.AvailabilitySnapshot(ctx)
			if err != nil {
				log.Printf("Availability stream snapshot failed: %v", err)
			} else if sent == 0 || !reflect.DeepEqual(snapshot, last) {
				if err := writeEvent(w, "availability", snapshot); err != nil {
					return // client gone
				}
				last = snapshot
				sent++
				if cfg.MaxEvents > 0 && sent >= cfg.MaxEvents {
					return
				}
			}
			<-ticker.C
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, event string, payload interface{}) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
