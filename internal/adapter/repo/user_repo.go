package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"reelforge/internal/domain"
	"reelforge/internal/infra"
	"reelforge/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id))
}

// GetByExternalID fetches a user by identity-provider subject.
func (r *UserRepositoryPG) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByExternalID, externalID))
}

// Create inserts the user, or refreshes the profile of an existing external id.
func (r *UserRepositoryPG) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QInsertUser,
		id,
		user.ExternalID,
		user.Email,
		user.Name,
		user.Credits,
	))
}

// Debit subtracts amount with a single conditional update.
func (r *UserRepositoryPG) Debit(ctx context.Context, id string, amount int) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	user, err := scanUser(r.sql.QueryRow(ctx, sqlinline.QDebitUserCredits, id, amount))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("debit user %s: %w", id, err)
	}
	if _, lookupErr := r.GetByID(ctx, id); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, domain.ErrInsufficientCredits
}

// Credit adds amount to the balance.
func (r *UserRepositoryPG) Credit(ctx context.Context, id string, amount int) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QCreditUserCredits, id, amount))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.Credits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
