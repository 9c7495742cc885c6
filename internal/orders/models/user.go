package models

import "time"

// AdminUsername is the account seeded on first initialization.
const AdminUsername = "admin"

// User is a staff or administrator account.
type User struct {
	ID       int64
	Username string
	// PasswordHash is the bcrypt hash of the password. The plaintext is
	// never stored.
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Protected reports whether the account is the seeded administrator.
func (u User) Protected() bool {
	return u.Username == AdminUsername
}

// Actor is the authenticated identity an operation runs under.
type Actor struct {
	UserID   int64
	Username string
	IsAdmin  bool
}

// Authenticated reports whether a carries an identity.
func (a Actor) Authenticated() bool {
	return a.Username != ""
}

// ActorOf builds the Actor for an authenticated user.
func ActorOf(u User) Actor {
	return Actor{UserID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin}
}
