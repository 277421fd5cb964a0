package user

import "context"

type Repository interface {
	// Create stores u and sets u.ID. A duplicate username yields ErrExists.
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
}
