package user

import "errors"

var (
	ErrNotFound = errors.New("user not found")
	ErrExists   = errors.New("user already exists")
)

// User is an API account. PasswordHash is a PHC-format argon2id string.
type User struct {
	ID           int32
	Username     string
	PasswordHash string
}
