package domain

import "context"

// UserRepository defines access methods for users and their credit balance.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	// Debit atomically subtracts amount, failing with ErrInsufficientCredits
	// when the balance is lower than amount.
	Debit(ctx context.Context, id string, amount int) (*User, error)
	Credit(ctx context.Context, id string, amount int) (*User, error)
}

// VideoRepository defines persistence for video records.
type VideoRepository interface {
	Create(ctx context.Context, video *Video) error
	GetByID(ctx context.Context, id string) (*Video, error)
	// Update applies patch only while the stored status equals expect and
	// returns ErrInvalidState otherwise.
	Update(ctx context.Context, id string, expect VideoStatus, patch VideoPatch) (*Video, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Video, error)
	ListByStatus(ctx context.Context, status VideoStatus, limit int) ([]Video, error)
}
