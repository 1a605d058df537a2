package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/link-wallet/link-wallet/pkg/types"
)

// SessionKeyRepository persists the encrypted session-wallet keys. Keys are
// stored keystore-encrypted only; plaintext never touches the database.
type SessionKeyRepository struct {
	store *Store
}

// NewSessionKeyRepository creates a new SessionKeyRepository
func NewSessionKeyRepository(store *Store) *SessionKeyRepository {
	return &SessionKeyRepository{store: store}
}

// Create inserts the encrypted key for a profile's session wallet.
func (r *SessionKeyRepository) Create(ctx context.Context, key *types.SessionWalletKey) error {
	return r.CreateTx(ctx, r.store.pool, key)
}

// CreateTx inserts the encrypted key using the provided transaction.
func (r *SessionKeyRepository) CreateTx(ctx context.Context, db DBTX, key *types.SessionWalletKey) error {
	query := `
		INSERT INTO session_wallet_keys (profile_id, address, encrypted_key, keystore_backend)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	return db.QueryRow(ctx, query,
		key.ProfileID,
		strings.ToLower(key.Address),
		key.EncryptedKey,
		key.KeystoreBackend,
	).Scan(&key.CreatedAt)
}

// GetByProfile retrieves a profile's session wallet key. Returns nil when the
// profile has no provisioned wallet.
func (r *SessionKeyRepository) GetByProfile(ctx context.Context, profileID uuid.UUID) (*types.SessionWalletKey, error) {
	query := `
		SELECT profile_id, address, encrypted_key, keystore_backend, created_at
		FROM session_wallet_keys
		WHERE profile_id = $1
	`

	var key types.SessionWalletKey
	err := r.store.pool.QueryRow(ctx, query, profileID).Scan(
		&key.ProfileID,
		&key.Address,
		&key.EncryptedKey,
		&key.KeystoreBackend,
		&key.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session wallet key: %w", err)
	}
	return &key, nil
}
