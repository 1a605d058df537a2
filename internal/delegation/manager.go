package delegation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/link-wallet/link-wallet/internal/logger"
	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// DelegationStore persists delegation records. Satisfied by
// storage.DelegationRepository.
type DelegationStore interface {
	CreateLive(ctx context.Context, d *types.AccountDelegation) (*types.AccountDelegation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.AccountDelegation, error)
	GetLive(ctx context.Context, linkedAccountID uuid.UUID, delegatedAddress string, chainID int64, now time.Time) (*types.AccountDelegation, error)
	GetUsableByAddress(ctx context.Context, delegatorAddress, delegatedAddress string, chainID int64, now time.Time) (*types.AccountDelegation, error)
	ListByLinkedAccount(ctx context.Context, linkedAccountID uuid.UUID) ([]*types.AccountDelegation, error)
	AttachSignature(ctx context.Context, id uuid.UUID, sig *types.SignedAuthorization, permissions types.DelegationPermissions, expiresAt *time.Time) (bool, error)
	Activate(ctx context.Context, id uuid.UUID, txHash string) (bool, error)
	Revoke(ctx context.Context, id uuid.UUID) (bool, error)
}

// LinkedAccountStore resolves linked EOAs. Satisfied by
// storage.LinkedAccountRepository.
type LinkedAccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.LinkedAccount, error)
}

// ProfileStore answers profile membership queries. Satisfied by
// storage.ProfileRepository.
type ProfileStore interface {
	IsAccountLinked(ctx context.Context, profileID, accountID uuid.UUID) (bool, error)
}

// NonceSource supplies the authorization nonce for a delegator, typically the
// chain's pending account nonce.
type NonceSource interface {
	PendingNonce(ctx context.Context, chainID int64, address string) (uint64, error)
}

// ActivationBroadcaster submits a delegation authorization on-chain and
// returns the transaction hash.
type ActivationBroadcaster interface {
	BroadcastActivation(ctx context.Context, d *types.AccountDelegation) (string, error)
}

// Manager creates, verifies, stores, enforces and revokes delegations.
type Manager struct {
	delegations    DelegationStore
	linkedAccounts LinkedAccountStore
	profiles       ProfileStore
	nonces         NonceSource           // nil falls back to wall-clock nonces
	broadcaster    ActivationBroadcaster // nil disables on-chain activation
}

// NewManager creates a delegation manager. nonces and broadcaster are
// optional.
func NewManager(delegations DelegationStore, linkedAccounts LinkedAccountStore, profiles ProfileStore, nonces NonceSource, broadcaster ActivationBroadcaster) *Manager {
	return &Manager{
		delegations:    delegations,
		linkedAccounts: linkedAccounts,
		profiles:       profiles,
		nonces:         nonces,
		broadcaster:    broadcaster,
	}
}

// AuthorizationChallenge is returned to the caller for off-chain signing by
// the linked EOA. The system never holds that key.
type AuthorizationChallenge struct {
	DelegationID      uuid.UUID               `json:"delegation_id"`
	AuthorizationData types.AuthorizationData `json:"authorization_data"`
	Message           string                  `json:"message"`
	Permissions       types.DelegationPermissions `json:"permissions"`
	ExpiresAt         *time.Time              `json:"expires_at,omitempty"`
}

// CreateDelegationAuthorization issues a signing challenge for a new
// delegation from the linked EOA to the session wallet on a chain. A live
// pending challenge for the same tuple is re-issued; a signed or active
// delegation on the tuple is a conflict.
func (m *Manager) CreateDelegationAuthorization(ctx context.Context, callerAccountID, linkedAccountID uuid.UUID, sessionWallet string, chainID int64, permissions types.DelegationPermissions, expiresAt *time.Time) (*AuthorizationChallenge, error) {
	if !common.IsHexAddress(sessionWallet) {
		return nil, apperrors.NewWithDetail(
			apperrors.ErrCodeValidation,
			"Invalid session wallet address",
			sessionWallet,
			http.StatusBadRequest,
		)
	}

	la, err := m.authorizeLinkedAccount(ctx, callerAccountID, linkedAccountID)
	if err != nil {
		return nil, err
	}

	nonce := m.nextNonce(ctx, chainID, la.Address)

	d := &types.AccountDelegation{
		ID:               uuid.New(),
		LinkedAccountID:  linkedAccountID,
		DelegatedAddress: strings.ToLower(sessionWallet),
		ChainID:          chainID,
		AuthorizationData: types.AuthorizationData{
			ChainID: chainID,
			Address: strings.ToLower(sessionWallet),
			Nonce:   nonce,
		},
		Permissions: permissions,
		Nonce:       nonce,
		ExpiresAt:   expiresAt,
		Status:      types.DelegationPending,
	}

	existing, err := m.delegations.CreateLive(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to create delegation: %w", err)
	}
	if existing != nil {
		// An expired occupant still holds the tuple's index slot until it
		// is revoked, so it conflicts rather than being re-issued.
		if existing.Status != types.DelegationPending || existing.Expired(time.Now().UTC()) {
			return nil, apperrors.DuplicateActiveDelegation(existing.ID.String())
		}
		// Re-issue the outstanding challenge rather than minting a second
		// nonce for the same tuple.
		d = existing
	}

	digest, err := AuthorizationDigest(d.AuthorizationData)
	if err != nil {
		return nil, err
	}

	return &AuthorizationChallenge{
		DelegationID:      d.ID,
		AuthorizationData: d.AuthorizationData,
		Message:           digest.Hex(),
		Permissions:       d.Permissions,
		ExpiresAt:         d.ExpiresAt,
	}, nil
}

// StoreDelegation verifies a signed authorization and persists the delegation
// as signed. The signer recovered from (r, s, yParity) must match the linked
// EOA's address; on mismatch nothing is written.
func (m *Manager) StoreDelegation(ctx context.Context, callerAccountID, linkedAccountID uuid.UUID, signed types.SignedAuthorization, permissions types.DelegationPermissions, expiresAt *time.Time) (*types.AccountDelegation, error) {
	la, err := m.authorizeLinkedAccount(ctx, callerAccountID, linkedAccountID)
	if err != nil {
		return nil, err
	}

	signer, err := RecoverAuthority(signed)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(signer.Hex(), la.Address) {
		return nil, apperrors.InvalidDelegationSignature(
			fmt.Sprintf("recovered signer %s does not match linked account", signer.Hex()))
	}

	now := time.Now().UTC()
	live, err := m.delegations.GetLive(ctx, linkedAccountID, signed.Address, signed.ChainID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing delegation: %w", err)
	}

	if live != nil {
		if live.Status != types.DelegationPending {
			return nil, apperrors.DuplicateActiveDelegation(live.ID.String())
		}
		if live.Nonce != signed.Nonce {
			return nil, apperrors.InvalidDelegationSignature("nonce does not match the issued challenge")
		}
		ok, err := m.delegations.AttachSignature(ctx, live.ID, &signed, permissions, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to store signature: %w", err)
		}
		if !ok {
			return nil, apperrors.DuplicateActiveDelegation(live.ID.String())
		}
		return m.delegations.GetByID(ctx, live.ID)
	}

	// No outstanding challenge: the caller built the authorization tuple
	// themselves. Store it directly as signed.
	d := &types.AccountDelegation{
		ID:               uuid.New(),
		LinkedAccountID:  linkedAccountID,
		DelegatedAddress: strings.ToLower(signed.Address),
		ChainID:          signed.ChainID,
		AuthorizationData: types.AuthorizationData{
			ChainID: signed.ChainID,
			Address: strings.ToLower(signed.Address),
			Nonce:   signed.Nonce,
		},
		Signature:   &signed,
		Permissions: permissions,
		Nonce:       signed.Nonce,
		ExpiresAt:   expiresAt,
		Status:      types.DelegationSigned,
	}
	existing, err := m.delegations.CreateLive(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to store delegation: %w", err)
	}
	if existing != nil {
		return nil, apperrors.DuplicateActiveDelegation(existing.ID.String())
	}
	return d, nil
}

// ActivateDelegation broadcasts the authorization on-chain and marks the
// delegation active, recording the transaction hash. Activation of an already
// active delegation is a no-op returning the current record.
func (m *Manager) ActivateDelegation(ctx context.Context, callerAccountID, delegationID uuid.UUID) (*types.AccountDelegation, error) {
	d, err := m.authorizeDelegation(ctx, callerAccountID, delegationID)
	if err != nil {
		return nil, err
	}

	switch d.Status {
	case types.DelegationActive:
		return d, nil
	case types.DelegationRevoked:
		return nil, apperrors.DelegationRevoked(d.ID.String())
	case types.DelegationPending:
		return nil, apperrors.NewWithDetail(
			apperrors.ErrCodeValidation,
			"Delegation is not signed",
			d.ID.String(),
			http.StatusBadRequest,
		)
	}
	if d.Expired(time.Now().UTC()) {
		return nil, apperrors.DelegationExpired(d.ID.String())
	}
	if m.broadcaster == nil {
		return nil, apperrors.New(
			apperrors.ErrCodeInternalError,
			"On-chain activation is not configured",
			http.StatusServiceUnavailable,
		)
	}

	txHash, err := m.broadcaster.BroadcastActivation(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to broadcast activation: %w", err)
	}

	ok, err := m.delegations.Activate(ctx, d.ID, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to activate delegation: %w", err)
	}
	if !ok {
		// Lost a race with a revocation or another activation.
		return m.delegations.GetByID(ctx, d.ID)
	}
	return m.delegations.GetByID(ctx, d.ID)
}

// HasActiveDelegation reports whether a usable delegation exists from the
// delegator EOA to the session wallet on the chain. Signed and active
// delegations both count; expired and revoked ones never do.
func (m *Manager) HasActiveDelegation(ctx context.Context, delegatorAddress, sessionWallet string, chainID int64) (bool, error) {
	d, err := m.delegations.GetUsableByAddress(ctx, delegatorAddress, sessionWallet, chainID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to look up delegation: %w", err)
	}
	return d != nil, nil
}

// RevokeDelegation terminally revokes a delegation. Revoking twice is a
// deterministic conflict.
func (m *Manager) RevokeDelegation(ctx context.Context, callerAccountID, delegationID uuid.UUID) error {
	d, err := m.authorizeDelegation(ctx, callerAccountID, delegationID)
	if err != nil {
		return err
	}
	if d.Status == types.DelegationRevoked {
		return apperrors.AlreadyRevoked(d.ID.String())
	}

	ok, err := m.delegations.Revoke(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("failed to revoke delegation: %w", err)
	}
	if !ok {
		return apperrors.AlreadyRevoked(d.ID.String())
	}
	return nil
}

// IsDelegationExpired reports whether the delegation's expiry is in the past.
// Stored status is never consulted or mutated.
func (m *Manager) IsDelegationExpired(ctx context.Context, delegationID uuid.UUID) (bool, error) {
	d, err := m.delegations.GetByID(ctx, delegationID)
	if err != nil {
		return false, fmt.Errorf("failed to load delegation: %w", err)
	}
	if d == nil {
		return false, apperrors.NotFound("delegation", delegationID.String())
	}
	return d.Expired(time.Now().UTC()), nil
}

// GetDelegation returns a delegation the caller owns.
func (m *Manager) GetDelegation(ctx context.Context, callerAccountID, delegationID uuid.UUID) (*types.AccountDelegation, error) {
	return m.authorizeDelegation(ctx, callerAccountID, delegationID)
}

// ListDelegations returns all delegations of a linked account the caller
// owns, newest first.
func (m *Manager) ListDelegations(ctx context.Context, callerAccountID, linkedAccountID uuid.UUID) ([]*types.AccountDelegation, error) {
	if _, err := m.authorizeLinkedAccount(ctx, callerAccountID, linkedAccountID); err != nil {
		return nil, err
	}
	return m.delegations.ListByLinkedAccount(ctx, linkedAccountID)
}

// authorizeLinkedAccount resolves the linked account and verifies the caller
// is a member of its profile. Unowned and unknown ids are indistinguishable
// to the caller.
func (m *Manager) authorizeLinkedAccount(ctx context.Context, callerAccountID, linkedAccountID uuid.UUID) (*types.LinkedAccount, error) {
	la, err := m.linkedAccounts.GetByID(ctx, linkedAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked account: %w", err)
	}
	if la == nil {
		return nil, apperrors.NotFound("linked account", linkedAccountID.String())
	}

	owned, err := m.profiles.IsAccountLinked(ctx, la.ProfileID, callerAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to check profile membership: %w", err)
	}
	if !owned {
		return nil, apperrors.NotFound("linked account", linkedAccountID.String())
	}
	return la, nil
}

// authorizeDelegation loads a delegation and verifies ownership through its
// linked account's profile.
func (m *Manager) authorizeDelegation(ctx context.Context, callerAccountID, delegationID uuid.UUID) (*types.AccountDelegation, error) {
	d, err := m.delegations.GetByID(ctx, delegationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load delegation: %w", err)
	}
	if d == nil {
		return nil, apperrors.NotFound("delegation", delegationID.String())
	}
	if _, err := m.authorizeLinkedAccount(ctx, callerAccountID, d.LinkedAccountID); err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			return nil, apperrors.NotFound("delegation", delegationID.String())
		}
		return nil, err
	}
	return d, nil
}

// nextNonce asks the configured source for the delegator's pending chain
// nonce. Without a source, or when the source fails, it derives a nonce from
// wall-clock time. The fallback is not authoritative and is not safe against
// reuse races; chains in production should have an RPC client configured.
func (m *Manager) nextNonce(ctx context.Context, chainID int64, delegatorAddress string) uint64 {
	if m.nonces != nil {
		nonce, err := m.nonces.PendingNonce(ctx, chainID, delegatorAddress)
		if err == nil {
			return nonce
		}
		logger.FromContext(ctx).Warn("nonce source unavailable, falling back to wall clock",
			"chain_id", chainID, "error", err)
	}
	return uint64(time.Now().UnixMilli())
}
