package identity

import "time"

// User represents a registered wallet owner. The user id doubles as the
// ledger account id.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	Document     string
	Phone        string
	TokenVersion int
	CreatedAt    time.Time
}

// Credentials is the login request structure.
type Credentials struct {
	Email    string
	Password string
}
