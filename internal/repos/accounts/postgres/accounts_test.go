package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/fastprodman/creditsettle/internal/infra/pgtestutil"
	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	"github.com/google/uuid"
)

func TestAccounts_CreateStartsWithInitialCredits(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := context.Background()
	id := uuid.New()

	acc, err := repo.Create(ctx, id, "buyer@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.Credits != accounts.InitialCredits || acc.IsPro {
		t.Fatalf("new account: got credits=%d pro=%v", acc.Credits, acc.IsPro)
	}

	again, err := repo.Create(ctx, id, "other@example.com")
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if again.Email != "buyer@example.com" {
		t.Fatalf("second create must not overwrite: got %q", again.Email)
	}
}

func TestAccounts_Exists_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seed    bool
		wantErr error
	}{
		{name: "account_exists", seed: true},
		{name: "account_not_found", seed: false, wantErr: accounts.ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			repo := New(db)

			id := uuid.New()
			if tt.seed {
				id = pgtestutil.SeedAccount(t, db, 6, false)
			}

			ctx := context.Background()
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer func() { _ = tx.Rollback() }()

			err = repo.Exists(ctx, tx, id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAccounts_IncreaseCredits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		startPro  bool
		markPro   bool
		wantPro   bool
		amount    int64
		wantTotal int64
	}{
		{name: "top_up_keeps_plan", amount: 10, wantTotal: 16},
		{name: "subscription_marks_pro", amount: 50, markPro: true, wantPro: true, wantTotal: 56},
		{name: "pro_is_never_cleared", startPro: true, amount: 1, wantPro: true, wantTotal: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			repo := New(db)
			id := pgtestutil.SeedAccount(t, db, 6, tt.startPro)
			ctx := context.Background()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer func() { _ = tx.Rollback() }()

			locked, err := repo.LockAndGetCredits(ctx, tx, id)
			if err != nil || locked != 6 {
				t.Fatalf("lock: got %d, %v", locked, err)
			}

			if err := repo.IncreaseCredits(ctx, tx, id, tt.amount, tt.markPro); err != nil {
				t.Fatalf("increase: %v", err)
			}
			if err := tx.Commit(); err != nil {
				t.Fatalf("commit: %v", err)
			}

			acc, err := repo.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if acc.Credits != tt.wantTotal || acc.IsPro != tt.wantPro {
				t.Fatalf("got credits=%d pro=%v, want %d/%v", acc.Credits, acc.IsPro, tt.wantTotal, tt.wantPro)
			}
		})
	}
}

func TestAccounts_LockMissingAccount(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = repo.LockAndGetCredits(ctx, tx, uuid.New())
	if !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Fatalf("got %v, want ErrAccountNotFound", err)
	}

	_, err = repo.Get(ctx, uuid.New())
	if !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Fatalf("get: got %v, want ErrAccountNotFound", err)
	}
}
