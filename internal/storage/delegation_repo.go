package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/link-wallet/link-wallet/pkg/types"
)

// LiveDelegationConstraint is the partial unique index backing the "one live
// delegation per (linked account, session wallet, chain)" invariant. Inserts
// racing past the transactional check surface as violations of this index.
const LiveDelegationConstraint = "account_delegations_live_tuple_idx"

// DelegationRepository handles account delegation persistence
type DelegationRepository struct {
	store *Store
}

// NewDelegationRepository creates a new DelegationRepository
func NewDelegationRepository(store *Store) *DelegationRepository {
	return &DelegationRepository{store: store}
}

const delegationColumns = `
	id, linked_account_id, delegated_address, chain_id,
	auth_chain_id, auth_address, auth_nonce,
	sig_y_parity, sig_r, sig_s,
	permissions, nonce, expires_at, status,
	activated_at, revoked_at, transaction_hash, created_at, updated_at
`

// Create creates a new delegation record
func (r *DelegationRepository) Create(ctx context.Context, d *types.AccountDelegation) error {
	return r.CreateTx(ctx, r.store.pool, d)
}

// CreateTx creates a new delegation record using the provided transaction.
// A unique violation on LiveDelegationConstraint is returned as-is for the
// caller to map to a conflict.
func (r *DelegationRepository) CreateTx(ctx context.Context, db DBTX, d *types.AccountDelegation) error {
	query := `
		INSERT INTO account_delegations (
			id, linked_account_id, delegated_address, chain_id,
			auth_chain_id, auth_address, auth_nonce,
			sig_y_parity, sig_r, sig_s,
			permissions, nonce, expires_at, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	var yParity *uint8
	var sigR, sigS *string
	if d.Signature != nil {
		yParity = &d.Signature.YParity
		sigR = &d.Signature.R
		sigS = &d.Signature.S
	}

	err := db.QueryRow(ctx, query,
		d.ID,
		d.LinkedAccountID,
		strings.ToLower(d.DelegatedAddress),
		d.ChainID,
		d.AuthorizationData.ChainID,
		strings.ToLower(d.AuthorizationData.Address),
		d.AuthorizationData.Nonce,
		yParity,
		sigR,
		sigS,
		d.Permissions,
		d.Nonce,
		d.ExpiresAt,
		d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return err
	}

	d.DelegatedAddress = strings.ToLower(d.DelegatedAddress)
	return nil
}

// CreateLive inserts d unless a delegation already occupies its
// (linked_account_id, delegated_address, chain_id) tuple, in which case the
// occupying row is returned and nothing is written. Occupancy matches the
// partial unique index exactly: an expired pending or signed row still holds
// the tuple until it is revoked. An insert racing past the check violates
// LiveDelegationConstraint and resolves to the winning row.
func (r *DelegationRepository) CreateLive(ctx context.Context, d *types.AccountDelegation) (*types.AccountDelegation, error) {
	var existing *types.AccountDelegation
	err := r.store.WithTx(ctx, func(tx pgx.Tx) error {
		found, err := r.getOccupant(ctx, tx, d.LinkedAccountID, d.DelegatedAddress, d.ChainID)
		if err != nil {
			return err
		}
		if found != nil {
			existing = found
			return nil
		}
		return r.CreateTx(ctx, tx, d)
	})
	if err != nil {
		if IsUniqueViolation(err, LiveDelegationConstraint) {
			winner, lookupErr := r.getOccupant(ctx, r.store.pool, d.LinkedAccountID, d.DelegatedAddress, d.ChainID)
			if lookupErr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, err
	}
	return existing, nil
}

// getOccupant retrieves the row holding the tuple's slot in the live partial
// unique index. Unlike GetLiveByTuple it does not filter on expiry, because
// the index does not either.
func (r *DelegationRepository) getOccupant(ctx context.Context, db DBTX, linkedAccountID uuid.UUID, delegatedAddress string, chainID int64) (*types.AccountDelegation, error) {
	query := `
		SELECT ` + delegationColumns + `
		FROM account_delegations
		WHERE linked_account_id = $1
		  AND delegated_address = $2
		  AND chain_id = $3
		  AND status IN ('pending', 'signed', 'active')
	`
	return r.scanOne(db.QueryRow(ctx, query, linkedAccountID, strings.ToLower(delegatedAddress), chainID))
}

// GetByID retrieves a delegation by ID
func (r *DelegationRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.AccountDelegation, error) {
	query := `SELECT ` + delegationColumns + ` FROM account_delegations WHERE id = $1`
	return r.scanOne(r.store.pool.QueryRow(ctx, query, id))
}

// GetLiveByTuple retrieves the non-revoked, unexpired delegation for a
// (linked account, session wallet, chain) tuple, in any stored status.
func (r *DelegationRepository) GetLiveByTuple(ctx context.Context, db DBTX, linkedAccountID uuid.UUID, delegatedAddress string, chainID int64, now time.Time) (*types.AccountDelegation, error) {
	query := `
		SELECT ` + delegationColumns + `
		FROM account_delegations
		WHERE linked_account_id = $1
		  AND delegated_address = $2
		  AND chain_id = $3
		  AND status IN ('pending', 'signed', 'active')
		  AND (expires_at IS NULL OR expires_at > $4)
	`
	return r.scanOne(db.QueryRow(ctx, query, linkedAccountID, strings.ToLower(delegatedAddress), chainID, now))
}

// GetLive is GetLiveByTuple outside any transaction.
func (r *DelegationRepository) GetLive(ctx context.Context, linkedAccountID uuid.UUID, delegatedAddress string, chainID int64, now time.Time) (*types.AccountDelegation, error) {
	return r.GetLiveByTuple(ctx, r.store.pool, linkedAccountID, delegatedAddress, chainID, now)
}

// GetUsableByAddress retrieves a signed-or-active, unexpired delegation from
// the given delegator EOA to the given session wallet on a chain.
func (r *DelegationRepository) GetUsableByAddress(ctx context.Context, delegatorAddress, delegatedAddress string, chainID int64, now time.Time) (*types.AccountDelegation, error) {
	query := `
		SELECT
			d.id, d.linked_account_id, d.delegated_address, d.chain_id,
			d.auth_chain_id, d.auth_address, d.auth_nonce,
			d.sig_y_parity, d.sig_r, d.sig_s,
			d.permissions, d.nonce, d.expires_at, d.status,
			d.activated_at, d.revoked_at, d.transaction_hash, d.created_at, d.updated_at
		FROM account_delegations d
		JOIN linked_accounts la ON la.id = d.linked_account_id
		WHERE la.address = $1
		  AND la.is_active
		  AND d.delegated_address = $2
		  AND d.chain_id = $3
		  AND d.status IN ('signed', 'active')
		  AND (d.expires_at IS NULL OR d.expires_at > $4)
	`
	return r.scanOne(r.store.pool.QueryRow(ctx, query,
		strings.ToLower(delegatorAddress), strings.ToLower(delegatedAddress), chainID, now))
}

// ListByLinkedAccount returns all delegations for a linked account, newest
// first.
func (r *DelegationRepository) ListByLinkedAccount(ctx context.Context, linkedAccountID uuid.UUID) ([]*types.AccountDelegation, error) {
	query := `
		SELECT ` + delegationColumns + `
		FROM account_delegations
		WHERE linked_account_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.store.pool.Query(ctx, query, linkedAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query delegations: %w", err)
	}
	defer rows.Close()

	var delegations []*types.AccountDelegation
	for rows.Next() {
		d, err := r.scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		delegations = append(delegations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delegation rows error: %w", err)
	}
	return delegations, nil
}

// AttachSignature records a verified signature on a pending delegation and
// moves it to signed. Returns false when the delegation is no longer pending.
func (r *DelegationRepository) AttachSignature(ctx context.Context, id uuid.UUID, sig *types.SignedAuthorization, permissions types.DelegationPermissions, expiresAt *time.Time) (bool, error) {
	query := `
		UPDATE account_delegations
		SET sig_y_parity = $2, sig_r = $3, sig_s = $4,
		    permissions = $5, expires_at = $6,
		    status = 'signed', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.store.pool.Exec(ctx, query, id, sig.YParity, sig.R, sig.S, permissions, expiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to attach signature: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Activate marks a signed delegation active, recording the broadcast hash.
func (r *DelegationRepository) Activate(ctx context.Context, id uuid.UUID, txHash string) (bool, error) {
	query := `
		UPDATE account_delegations
		SET status = 'active', activated_at = NOW(), transaction_hash = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'signed'
	`

	tag, err := r.store.pool.Exec(ctx, query, id, txHash)
	if err != nil {
		return false, fmt.Errorf("failed to activate delegation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Revoke marks a delegation revoked. Returns false when the delegation was
// already revoked; revocation is terminal and never reversed.
func (r *DelegationRepository) Revoke(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE account_delegations
		SET status = 'revoked', revoked_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status <> 'revoked'
	`

	tag, err := r.store.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke delegation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *DelegationRepository) scanOne(row pgx.Row) (*types.AccountDelegation, error) {
	d, err := r.scanDelegation(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delegation: %w", err)
	}
	return d, nil
}

func (r *DelegationRepository) scanDelegation(row pgx.Row) (*types.AccountDelegation, error) {
	var d types.AccountDelegation
	var yParity *int16
	var sigR, sigS *string

	err := row.Scan(
		&d.ID,
		&d.LinkedAccountID,
		&d.DelegatedAddress,
		&d.ChainID,
		&d.AuthorizationData.ChainID,
		&d.AuthorizationData.Address,
		&d.AuthorizationData.Nonce,
		&yParity,
		&sigR,
		&sigS,
		&d.Permissions,
		&d.Nonce,
		&d.ExpiresAt,
		&d.Status,
		&d.ActivatedAt,
		&d.RevokedAt,
		&d.TransactionHash,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if yParity != nil && sigR != nil && sigS != nil {
		d.Signature = &types.SignedAuthorization{
			ChainID: d.AuthorizationData.ChainID,
			Address: d.AuthorizationData.Address,
			Nonce:   d.AuthorizationData.Nonce,
			YParity: uint8(*yParity),
			R:       *sigR,
			S:       *sigS,
		}
	}
	return &d, nil
}
