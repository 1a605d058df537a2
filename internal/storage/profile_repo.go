package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/link-wallet/link-wallet/pkg/types"
)

// ProfileRepository handles profiles and their account bindings
type ProfileRepository struct {
	store *Store
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(store *Store) *ProfileRepository {
	return &ProfileRepository{store: store}
}

// Create creates a new profile
func (r *ProfileRepository) Create(ctx context.Context, profile *types.Profile) error {
	return r.CreateTx(ctx, r.store.pool, profile)
}

// CreateTx creates a new profile using the provided transaction or connection
func (r *ProfileRepository) CreateTx(ctx context.Context, db DBTX, profile *types.Profile) error {
	query := `
		INSERT INTO profiles (id, session_wallet_address)
		VALUES ($1, $2)
		RETURNING created_at
	`

	err := db.QueryRow(ctx, query, profile.ID, profile.SessionWalletAddress).Scan(&profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by ID
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.Profile, error) {
	query := `
		SELECT id, session_wallet_address, created_at
		FROM profiles
		WHERE id = $1
	`

	var profile types.Profile
	err := r.store.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.SessionWalletAddress,
		&profile.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile by ID: %w", err)
	}

	return &profile, nil
}

// LinkAccount binds an account to a profile. Re-linking an already-linked
// pair is a no-op that returns the existing row.
func (r *ProfileRepository) LinkAccount(ctx context.Context, pa *types.ProfileAccount) error {
	return r.LinkAccountTx(ctx, r.store.pool, pa)
}

// LinkAccountTx binds an account to a profile using the provided transaction
func (r *ProfileRepository) LinkAccountTx(ctx context.Context, db DBTX, pa *types.ProfileAccount) error {
	query := `
		INSERT INTO profile_accounts (profile_id, account_id, is_primary, permissions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (profile_id, account_id) DO UPDATE SET profile_id = EXCLUDED.profile_id
		RETURNING is_primary, permissions, created_at
	`

	err := db.QueryRow(ctx, query, pa.ProfileID, pa.AccountID, pa.IsPrimary, pa.Permissions).Scan(
		&pa.IsPrimary,
		&pa.Permissions,
		&pa.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to link account to profile: %w", err)
	}
	return nil
}

// GetByAccountIDs returns the profiles reachable from any of the given
// accounts via profile_accounts, deduplicated by profile id.
func (r *ProfileRepository) GetByAccountIDs(ctx context.Context, accountIDs []uuid.UUID) ([]*types.Profile, error) {
	query := `
		SELECT DISTINCT p.id, p.session_wallet_address, p.created_at
		FROM profiles p
		JOIN profile_accounts pa ON pa.profile_id = p.id
		WHERE pa.account_id = ANY($1)
		ORDER BY p.created_at
	`

	rows, err := r.store.pool.Query(ctx, query, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles by accounts: %w", err)
	}
	defer rows.Close()

	var profiles []*types.Profile
	for rows.Next() {
		var profile types.Profile
		if err := rows.Scan(&profile.ID, &profile.SessionWalletAddress, &profile.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, &profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile rows error: %w", err)
	}

	return profiles, nil
}

// IsAccountLinked reports whether the account has a profile_accounts row for
// the profile. Ownership checks in the delegation manager go through this.
func (r *ProfileRepository) IsAccountLinked(ctx context.Context, profileID, accountID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM profile_accounts WHERE profile_id = $1 AND account_id = $2)`

	var linked bool
	if err := r.store.pool.QueryRow(ctx, query, profileID, accountID).Scan(&linked); err != nil {
		return false, fmt.Errorf("failed to check profile membership: %w", err)
	}
	return linked, nil
}

// GetAccountIDs returns the account ids bound to a profile
func (r *ProfileRepository) GetAccountIDs(ctx context.Context, profileID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT account_id FROM profile_accounts WHERE profile_id = $1`

	rows, err := r.store.pool.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile accounts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile account rows error: %w", err)
	}
	return ids, nil
}
