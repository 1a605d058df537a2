package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/link-wallet/link-wallet/pkg/types"
)

// LinkedAccountRepository handles EOAs associated with profiles
type LinkedAccountRepository struct {
	store *Store
}

// NewLinkedAccountRepository creates a new LinkedAccountRepository
func NewLinkedAccountRepository(store *Store) *LinkedAccountRepository {
	return &LinkedAccountRepository{store: store}
}

// LinkedAccountConstraint is the unique index over (profile_id, address,
// chain_id). Registering the same address twice for a profile violates it.
const LinkedAccountConstraint = "linked_accounts_profile_tuple_idx"

// Create creates a new linked account. Addresses are stored lowercase.
func (r *LinkedAccountRepository) Create(ctx context.Context, la *types.LinkedAccount) error {
	return r.CreateTx(ctx, r.store.pool, la)
}

// CreateTx creates a linked account using the provided transaction or connection
func (r *LinkedAccountRepository) CreateTx(ctx context.Context, db DBTX, la *types.LinkedAccount) error {
	query := `
		INSERT INTO linked_accounts (id, profile_id, address, chain_id, auth_strategy, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := db.QueryRow(ctx, query,
		la.ID,
		la.ProfileID,
		strings.ToLower(la.Address),
		la.ChainID,
		la.AuthStrategy,
		la.IsActive,
	).Scan(&la.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create linked account: %w", err)
	}

	la.Address = strings.ToLower(la.Address)
	return nil
}

// GetByID retrieves a linked account by ID
func (r *LinkedAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.LinkedAccount, error) {
	query := `
		SELECT id, profile_id, address, chain_id, auth_strategy, is_active, created_at
		FROM linked_accounts
		WHERE id = $1
	`

	var la types.LinkedAccount
	err := r.store.pool.QueryRow(ctx, query, id).Scan(
		&la.ID,
		&la.ProfileID,
		&la.Address,
		&la.ChainID,
		&la.AuthStrategy,
		&la.IsActive,
		&la.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}

	return &la, nil
}

// GetActiveByProfile retrieves the active linked accounts of a profile
func (r *LinkedAccountRepository) GetActiveByProfile(ctx context.Context, profileID uuid.UUID) ([]*types.LinkedAccount, error) {
	query := `
		SELECT id, profile_id, address, chain_id, auth_strategy, is_active, created_at
		FROM linked_accounts
		WHERE profile_id = $1 AND is_active
		ORDER BY created_at
	`

	rows, err := r.store.pool.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*types.LinkedAccount
	for rows.Next() {
		var la types.LinkedAccount
		if err := rows.Scan(
			&la.ID,
			&la.ProfileID,
			&la.Address,
			&la.ChainID,
			&la.AuthStrategy,
			&la.IsActive,
			&la.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, &la)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("linked account rows error: %w", err)
	}

	return accounts, nil
}

// Deactivate marks a linked account inactive. Rows are never hard-deleted so
// historical delegations keep a valid reference.
func (r *LinkedAccountRepository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.store.pool.Exec(ctx,
		`UPDATE linked_accounts SET is_active = FALSE WHERE id = $1 AND is_active`, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate linked account: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
