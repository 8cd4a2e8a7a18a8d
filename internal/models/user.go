package models

import "time"

// Role is the access level of a library account.
type Role string

const (
	RoleLibrarian Role = "LIBRARIAN"
	RolePatron    Role = "PATRON"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleLibrarian || r == RolePatron
}

// User represents a patron or librarian account.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	Password  string    `json:"-" gorm:"type:varchar(255);not null"` // bcrypt hash, never serialized
	Phone     string    `json:"phone" gorm:"type:varchar(20)"`
	Role      Role      `json:"role" gorm:"type:varchar(20);not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for the User model.
func (User) TableName() string {
	return "users"
}

// IsLibrarian reports whether the user holds the librarian role.
func (u *User) IsLibrarian() bool {
	return u.Role == RoleLibrarian
}
