package accounts

import (
	"context"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	"github.com/google/uuid"
)

// Create registers an account owned by the auth system. Creating an id that
// already exists returns the stored account untouched.
func (r *accountsRepo) Create(ctx context.Context, id uuid.UUID, email string) (accounts.Account, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, credits)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, id, email, accounts.InitialCredits)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("create account: %w", err)
	}

	return r.Get(ctx, id)
}
