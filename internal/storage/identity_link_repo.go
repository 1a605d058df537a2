package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/link-wallet/link-wallet/pkg/types"
)

// IdentityLinkRepository stores the undirected identity relation. Each
// unordered account pair is kept as exactly one row with account_a < account_b.
type IdentityLinkRepository struct {
	store *Store
}

// NewIdentityLinkRepository creates a new IdentityLinkRepository
func NewIdentityLinkRepository(store *Store) *IdentityLinkRepository {
	return &IdentityLinkRepository{store: store}
}

// OrderPair normalizes an unordered account pair to storage order.
func OrderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// UpsertTx creates the edge or updates its privacy mode if the pair exists,
// using the provided transaction or connection. The graph service runs the
// acyclicity check and this write inside one serializable transaction.
func (r *IdentityLinkRepository) UpsertTx(ctx context.Context, db DBTX, link *types.IdentityLink) error {
	a, b := OrderPair(link.AccountA, link.AccountB)

	query := `
		INSERT INTO identity_links (account_a, account_b, privacy_mode)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_a, account_b) DO UPDATE SET
			privacy_mode = EXCLUDED.privacy_mode,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := db.QueryRow(ctx, query, a, b, link.PrivacyMode).Scan(&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert identity link: %w", err)
	}

	link.AccountA = a
	link.AccountB = b
	return nil
}

// GetByPairTx retrieves the edge for an unordered account pair using the
// provided transaction or connection.
func (r *IdentityLinkRepository) GetByPairTx(ctx context.Context, db DBTX, accountA, accountB uuid.UUID) (*types.IdentityLink, error) {
	a, b := OrderPair(accountA, accountB)

	query := `
		SELECT account_a, account_b, privacy_mode, created_at, updated_at
		FROM identity_links
		WHERE account_a = $1 AND account_b = $2
	`

	var link types.IdentityLink
	err := db.QueryRow(ctx, query, a, b).Scan(
		&link.AccountA,
		&link.AccountB,
		&link.PrivacyMode,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity link: %w", err)
	}

	return &link, nil
}

// UpdatePrivacyMode updates the edge's mode. Returns false if the edge does
// not exist.
func (r *IdentityLinkRepository) UpdatePrivacyMode(ctx context.Context, accountA, accountB uuid.UUID, mode types.PrivacyMode) (bool, error) {
	a, b := OrderPair(accountA, accountB)

	query := `
		UPDATE identity_links
		SET privacy_mode = $3, updated_at = NOW()
		WHERE account_a = $1 AND account_b = $2
	`

	tag, err := r.store.pool.Exec(ctx, query, a, b, mode)
	if err != nil {
		return false, fmt.Errorf("failed to update link privacy: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the edge entirely. Returns false if the edge did not exist.
func (r *IdentityLinkRepository) Delete(ctx context.Context, accountA, accountB uuid.UUID) (bool, error) {
	a, b := OrderPair(accountA, accountB)

	tag, err := r.store.pool.Exec(ctx,
		`DELETE FROM identity_links WHERE account_a = $1 AND account_b = $2`, a, b)
	if err != nil {
		return false, fmt.Errorf("failed to delete identity link: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetClosureEdges returns all non-isolated edges touching any of the given
// accounts. The graph traversal calls this once per BFS frontier.
func (r *IdentityLinkRepository) GetClosureEdges(ctx context.Context, accountIDs []uuid.UUID) ([]*types.IdentityLink, error) {
	return r.getClosureEdges(ctx, r.store.pool, accountIDs)
}

// GetClosureEdgesTx is GetClosureEdges inside an existing transaction, used
// by the acyclicity check so it observes a consistent edge set.
func (r *IdentityLinkRepository) GetClosureEdgesTx(ctx context.Context, db DBTX, accountIDs []uuid.UUID) ([]*types.IdentityLink, error) {
	return r.getClosureEdges(ctx, db, accountIDs)
}

func (r *IdentityLinkRepository) getClosureEdges(ctx context.Context, db DBTX, accountIDs []uuid.UUID) ([]*types.IdentityLink, error) {
	query := `
		SELECT account_a, account_b, privacy_mode, created_at, updated_at
		FROM identity_links
		WHERE privacy_mode IN ('linked', 'partial')
		  AND (account_a = ANY($1) OR account_b = ANY($1))
	`

	rows, err := db.Query(ctx, query, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query closure edges: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

// GetByAccount returns every edge touching the account, isolated edges
// included. Isolated links stay queryable explicitly even though closure
// traversal skips them.
func (r *IdentityLinkRepository) GetByAccount(ctx context.Context, accountID uuid.UUID) ([]*types.IdentityLink, error) {
	query := `
		SELECT account_a, account_b, privacy_mode, created_at, updated_at
		FROM identity_links
		WHERE account_a = $1 OR account_b = $1
	`

	rows, err := r.store.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query identity links: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

func scanLinks(rows pgx.Rows) ([]*types.IdentityLink, error) {
	var links []*types.IdentityLink
	for rows.Next() {
		var link types.IdentityLink
		if err := rows.Scan(
			&link.AccountA,
			&link.AccountB,
			&link.PrivacyMode,
			&link.CreatedAt,
			&link.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan identity link: %w", err)
		}
		links = append(links, &link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity link rows error: %w", err)
	}
	return links, nil
}
