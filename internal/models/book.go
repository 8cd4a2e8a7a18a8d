package models

import (
	"fmt"
	"strings"
	"time"
)

// Genre classifies a book.
type Genre string

const (
	GenreFiction    Genre = "FICTION"
	GenreNonFiction Genre = "NON_FICTION"
	GenreScience    Genre = "SCIENCE"
	GenreTechnology Genre = "TECHNOLOGY"
	GenreHistory    Genre = "HISTORY"
	GenreFantasy    Genre = "FANTASY"
	GenreBiography  Genre = "BIOGRAPHY"
	GenreOther      Genre = "OTHER"
)

var genres = map[Genre]struct{}{
	GenreFiction:    {},
	GenreNonFiction: {},
	GenreScience:    {},
	GenreTechnology: {},
	GenreHistory:    {},
	GenreFantasy:    {},
	GenreBiography:  {},
	GenreOther:      {},
}

// ParseGenre parses a genre name case-insensitively.
func ParseGenre(s string) (Genre, error) {
	g := Genre(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := genres[g]; !ok {
		return "", fmt.Errorf("invalid genre specified: %s", s)
	}
	return g, nil
}

// Book represents a title held by the library. Individual copies have no
// identity; only the aggregate counts are tracked.
type Book struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Title           string    `json:"title" gorm:"type:varchar(255);not null"`
	Author          string    `json:"author" gorm:"type:varchar(255);not null"`
	ISBN            string    `json:"isbn" gorm:"column:isbn;uniqueIndex;type:varchar(32);not null"`
	Genre           Genre     `json:"genre" gorm:"type:varchar(20);not null"`
	PublicationDate time.Time `json:"publication_date"`
	TotalCopies     int       `json:"total_copies" gorm:"not null;default:0"`
	AvailableCopies int       `json:"available_copies" gorm:"not null;default:0"`
	Version         int       `json:"-" gorm:"not null;default:0"` // bumped on every write for optimistic checks
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for the Book model.
func (Book) TableName() string {
	return "books"
}

// IsAvailable reports whether at least one copy can be lent.
func (b *Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

// BookAvailability is the per-book payload of the availability stream.
type BookAvailability struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

// BookFilter narrows a book search. Empty fields match everything.
type BookFilter struct {
	Title  string `query:"title"`
	Author string `query:"author"`
	ISBN   string `query:"isbn"`
	Genre  string `query:"genre"`
}

// BookPage is one page of search results.
type BookPage struct {
	Items []Book `json:"items"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Total int64  `json:"total"`
}
