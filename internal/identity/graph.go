// Package identity implements the identity link graph: an undirected,
// privacy-annotated relation over accounts whose transitive closure drives
// access-control decisions. Edges with privacy mode linked or partial form
// the closure; isolated edges are excluded from it but stay queryable.
package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/link-wallet/link-wallet/internal/storage"
	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// TxRunner runs a function inside a SERIALIZABLE transaction. Satisfied by
// storage.Store.
type TxRunner interface {
	WithSerializableTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// AccountStore is the subset of the account repository used by the graph.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.Account, error)
	Exists(ctx context.Context, ids ...uuid.UUID) (bool, error)
}

// LinkStore persists identity edges. The Tx variants take part in the
// serializable link transaction.
type LinkStore interface {
	UpsertTx(ctx context.Context, db storage.DBTX, link *types.IdentityLink) error
	GetByPairTx(ctx context.Context, db storage.DBTX, accountA, accountB uuid.UUID) (*types.IdentityLink, error)
	UpdatePrivacyMode(ctx context.Context, accountA, accountB uuid.UUID, mode types.PrivacyMode) (bool, error)
	Delete(ctx context.Context, accountA, accountB uuid.UUID) (bool, error)
	GetClosureEdges(ctx context.Context, accountIDs []uuid.UUID) ([]*types.IdentityLink, error)
	GetClosureEdgesTx(ctx context.Context, db storage.DBTX, accountIDs []uuid.UUID) ([]*types.IdentityLink, error)
	GetByAccount(ctx context.Context, accountID uuid.UUID) ([]*types.IdentityLink, error)
}

// ProfileStore resolves profiles reachable from a set of accounts.
type ProfileStore interface {
	GetByAccountIDs(ctx context.Context, accountIDs []uuid.UUID) ([]*types.Profile, error)
}

// Graph is the identity link graph service.
type Graph struct {
	tx       TxRunner
	accounts AccountStore
	links    LinkStore
	profiles ProfileStore
}

// NewGraph creates a new identity graph service.
func NewGraph(tx TxRunner, accounts AccountStore, links LinkStore, profiles ProfileStore) *Graph {
	return &Graph{
		tx:       tx,
		accounts: accounts,
		links:    links,
		profiles: profiles,
	}
}

// LinkAccounts creates or updates the edge between two accounts. Adding a
// non-isolated edge between accounts that are already mutually reachable
// through non-isolated edges would close a cycle and is rejected with a
// conflict. Re-linking an existing pair updates the privacy mode.
func (g *Graph) LinkAccounts(ctx context.Context, accountA, accountB uuid.UUID, mode types.PrivacyMode) (*types.IdentityLink, error) {
	if !mode.Valid() {
		return nil, apperrors.NewWithDetail(
			apperrors.ErrCodeValidation,
			"Invalid privacy mode",
			fmt.Sprintf("mode: %s", mode),
			http.StatusBadRequest,
		)
	}
	if accountA == accountB {
		return nil, apperrors.New(
			apperrors.ErrCodeValidation,
			"Cannot link an account to itself",
			http.StatusBadRequest,
		)
	}

	ok, err := g.accounts.Exists(ctx, accountA, accountB)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve accounts: %w", err)
	}
	if !ok {
		return nil, apperrors.NotFound("account", fmt.Sprintf("%s or %s", accountA, accountB))
	}

	link := &types.IdentityLink{
		AccountA:    accountA,
		AccountB:    accountB,
		PrivacyMode: mode,
	}

	// The reachability check and the insert observe and modify the same
	// edge set; a weaker isolation level would let two concurrent links
	// both pass the check and close a cycle together.
	err = g.tx.WithSerializableTx(ctx, func(tx pgx.Tx) error {
		existing, err := g.links.GetByPairTx(ctx, tx, accountA, accountB)
		if err != nil {
			return fmt.Errorf("failed to load existing link: %w", err)
		}

		// A brand-new closure edge must not connect two accounts that are
		// already mutually reachable. Updating an existing pair never adds
		// a path, so it skips the check.
		if existing == nil && mode.InClosure() {
			visited, err := g.closureFrom(ctx, accountA, func(ctx context.Context, frontier []uuid.UUID) ([]*types.IdentityLink, error) {
				return g.links.GetClosureEdgesTx(ctx, tx, frontier)
			})
			if err != nil {
				return err
			}
			if visited[accountB] {
				return apperrors.CircularLink(accountA.String(), accountB.String())
			}
		}

		if err := g.links.UpsertTx(ctx, tx, link); err != nil {
			return fmt.Errorf("failed to persist link: %w", err)
		}
		return nil
	})
	if err != nil {
		if storage.IsSerializationFailure(err) {
			return nil, apperrors.New(
				apperrors.ErrCodeConflict,
				"Identity links changed concurrently, retry the request",
				http.StatusConflict,
			)
		}
		return nil, err
	}

	return link, nil
}

// UpdateLinkPrivacy updates the privacy mode of an existing edge. Mode
// changes never add edges, so acyclicity is not re-validated.
func (g *Graph) UpdateLinkPrivacy(ctx context.Context, accountA, accountB uuid.UUID, mode types.PrivacyMode) error {
	if !mode.Valid() {
		return apperrors.NewWithDetail(
			apperrors.ErrCodeValidation,
			"Invalid privacy mode",
			fmt.Sprintf("mode: %s", mode),
			http.StatusBadRequest,
		)
	}

	updated, err := g.links.UpdatePrivacyMode(ctx, accountA, accountB, mode)
	if err != nil {
		return fmt.Errorf("failed to update link privacy: %w", err)
	}
	if !updated {
		return apperrors.NotFound("identity link", fmt.Sprintf("%s-%s", accountA, accountB))
	}
	return nil
}

// UnlinkAccounts removes the edge entirely.
func (g *Graph) UnlinkAccounts(ctx context.Context, accountA, accountB uuid.UUID) error {
	deleted, err := g.links.Delete(ctx, accountA, accountB)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if !deleted {
		return apperrors.NotFound("identity link", fmt.Sprintf("%s-%s", accountA, accountB))
	}
	return nil
}

// GetLinkedAccounts returns the identity closure of the account: every
// account reachable through linked/partial edges, the start account
// included. Unknown accounts fail with not found.
func (g *Graph) GetLinkedAccounts(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	account, err := g.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, apperrors.NotFound("account", accountID.String())
	}

	visited, err := g.closureFrom(ctx, accountID, g.links.GetClosureEdges)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	return ids, nil
}

// GetAccessibleProfiles returns the profiles reachable from the account's
// identity closure, deduplicated by profile id.
func (g *Graph) GetAccessibleProfiles(ctx context.Context, accountID uuid.UUID) ([]*types.Profile, error) {
	closure, err := g.GetLinkedAccounts(ctx, accountID)
	if err != nil {
		return nil, err
	}

	profiles, err := g.profiles.GetByAccountIDs(ctx, closure)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	// A profile can be reachable via several closure members; the store is
	// not required to deduplicate.
	seen := make(map[uuid.UUID]bool, len(profiles))
	unique := make([]*types.Profile, 0, len(profiles))
	for _, p := range profiles {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		unique = append(unique, p)
	}
	return unique, nil
}

// GetLinks returns every edge touching the account, isolated edges included.
func (g *Graph) GetLinks(ctx context.Context, accountID uuid.UUID) ([]*types.IdentityLink, error) {
	account, err := g.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, apperrors.NotFound("account", accountID.String())
	}
	return g.links.GetByAccount(ctx, accountID)
}

// edgeSource fetches the non-isolated edges touching a traversal frontier.
type edgeSource func(ctx context.Context, frontier []uuid.UUID) ([]*types.IdentityLink, error)

// closureFrom runs a breadth-first traversal over non-isolated edges,
// fetching all edges touching the current frontier in one query per level.
// The visited set prunes regardless of graph shape; the acyclicity invariant
// makes the edge set a forest but the traversal does not depend on it.
func (g *Graph) closureFrom(ctx context.Context, start uuid.UUID, fetch edgeSource) (map[uuid.UUID]bool, error) {
	visited := map[uuid.UUID]bool{start: true}
	frontier := []uuid.UUID{start}

	for len(frontier) > 0 {
		edges, err := fetch(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to expand closure: %w", err)
		}

		var next []uuid.UUID
		for _, edge := range edges {
			for _, id := range []uuid.UUID{edge.AccountA, edge.AccountB} {
				if !visited[id] {
					visited[id] = true
					next = append(next, id)
				}
			}
		}
		frontier = next
	}

	return visited, nil
}
