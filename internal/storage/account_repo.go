package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/link-wallet/link-wallet/pkg/types"
)

// AccountRepository handles canonical identity records
type AccountRepository struct {
	store *Store
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

// Upsert creates an account on first authentication or merge-updates its
// metadata on re-authentication: new keys are added, existing keys are
// overwritten, keys absent from the incoming map are preserved.
func (r *AccountRepository) Upsert(ctx context.Context, account *types.Account) error {
	query := `
		INSERT INTO accounts (id, account_type, provider, identifier, verified, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_type, provider, identifier) DO UPDATE SET
			verified = EXCLUDED.verified OR accounts.verified,
			metadata = accounts.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id, verified, metadata, created_at, updated_at
	`

	err := r.store.pool.QueryRow(ctx, query,
		account.ID,
		account.Type,
		account.Provider,
		account.Identifier,
		account.Verified,
		account.Metadata,
	).Scan(
		&account.ID,
		&account.Verified,
		&account.Metadata,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.Account, error) {
	query := `
		SELECT id, account_type, provider, identifier, verified, metadata, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var account types.Account
	err := r.store.pool.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Type,
		&account.Provider,
		&account.Identifier,
		&account.Verified,
		&account.Metadata,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}

	return &account, nil
}

// GetByIdentifier retrieves an account by its natural key
func (r *AccountRepository) GetByIdentifier(ctx context.Context, accountType types.AccountType, provider *string, identifier string) (*types.Account, error) {
	query := `
		SELECT id, account_type, provider, identifier, verified, metadata, created_at, updated_at
		FROM accounts
		WHERE account_type = $1 AND provider IS NOT DISTINCT FROM $2 AND identifier = $3
	`

	var account types.Account
	err := r.store.pool.QueryRow(ctx, query, accountType, provider, identifier).Scan(
		&account.ID,
		&account.Type,
		&account.Provider,
		&account.Identifier,
		&account.Verified,
		&account.Metadata,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by identifier: %w", err)
	}

	return &account, nil
}

// Exists reports whether all given account IDs exist.
func (r *AccountRepository) Exists(ctx context.Context, ids ...uuid.UUID) (bool, error) {
	query := `SELECT COUNT(*) FROM accounts WHERE id = ANY($1)`

	var count int
	if err := r.store.pool.QueryRow(ctx, query, ids).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count == len(ids), nil
}
