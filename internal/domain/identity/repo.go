package identity

import "context"

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	// GetByID returns soft-deleted users too; callers decide what to do with them.
	GetByID(ctx context.Context, userID string) (*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SoftDelete(ctx context.Context, userID, deletedBy string) error
	ListPatients(ctx context.Context, limit, offset int) ([]*User, int, error)
}
