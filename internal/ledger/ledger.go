// Package ledger owns every mutation of a user's credit balance.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"reelforge/internal/domain"
	"reelforge/internal/infra"
	"reelforge/internal/keylock"
)

// Ledger debits and refunds credits, serialized per user.
type Ledger struct {
	users  domain.UserRepository
	locks  *keylock.Map
	logger infra.Logger
}

// New constructs a ledger over the given user repository.
func New(users domain.UserRepository, logger infra.Logger) *Ledger {
	return &Ledger{users: users, locks: keylock.New(), logger: logger}
}

// TryDebit removes amount credits from the user and returns the new balance.
// It fails with domain.ErrInsufficientCredits without mutating anything when
// the balance is too low.
func (l *Ledger) TryDebit(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	unlock := l.locks.Lock(userID)
	defer unlock()

	user, err := l.users.Debit(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			l.logger.Info().Str("user_id", userID).Int("amount", amount).Msg("ledger: debit rejected")
			return 0, err
		}
		return 0, fmt.Errorf("debit credits: %w", err)
	}
	l.logger.Info().Str("user_id", userID).Int("amount", amount).Int("balance", user.Credits).Msg("ledger: debited")
	return user.Credits, nil
}

// Refund returns amount credits to the user.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	unlock := l.locks.Lock(userID)
	defer unlock()

	user, err := l.users.Credit(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("refund credits: %w", err)
	}
	l.logger.Info().Str("user_id", userID).Int("amount", amount).Int("balance", user.Credits).Msg("ledger: refunded")
	return user.Credits, nil
}

// Balance returns the current credit balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Credits, nil
}
