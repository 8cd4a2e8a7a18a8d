package services

import (
	"log"
	"time"

	"library/internal/models"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Borrowing lifecycle events are published to this topic exchange.
const (
	EventsExchange          = "library"
	RoutingBorrowingCreated = "borrowing.created"
	RoutingBorrowingReturn  = "borrowing.returned"
)

// EventPublisher sends a message to an exchange.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// BorrowingEvent is the payload of borrowing lifecycle messages.
type BorrowingEvent struct {
	Type        string     `json:"type"`
	BorrowingID string     `json:"borrowing_id"`
	UserID      string     `json:"user_id"`
	BookID      string     `json:"book_id"`
	DueDate     time.Time  `json:"due_date"`
	ReturnDate  *time.Time `json:"return_date,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// publishBorrowingEvent sends b as routingKey. Failures are logged and
// never fail the committed operation.
func publishBorrowingEvent(p EventPublisher, routingKey string, b *models.Borrowing, at time.Time) {
	if p == nil {
		return
	}
	body, err := json.Marshal(BorrowingEvent{
		Type:        routingKey,
		BorrowingID: b.ID,
		UserID:      b.UserID,
		BookID:      b.BookID,
		DueDate:     b.DueDate,
		ReturnDate:  b.ReturnDate,
		OccurredAt:  at,
	})
	if err != nil {
		log.Printf("Failed to marshal %s event for borrowing %s: %v", routingKey, b.ID, err)
		return
	}
	if err := p.Publish(EventsExchange, routingKey, body); err != nil {
		log.Printf("Warning: Failed to publish %s event for borrowing %s: %v", routingKey, b.ID, err)
		return
	}
	log.Printf("Published %s event for borrowing %s", routingKey, b.ID)
}
