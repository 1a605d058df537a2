package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/link-wallet/link-wallet/internal/logger"
	"github.com/link-wallet/link-wallet/internal/storage"
	"github.com/link-wallet/link-wallet/internal/validation"
	"github.com/link-wallet/link-wallet/internal/walletexec"
	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// DefaultAuthStrategy is assumed when a linked account registration does not
// name one.
const DefaultAuthStrategy = types.AuthStrategySignature

// TxRunner runs a function inside a database transaction.
// Satisfied by storage.Store.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// AccountStore persists identity accounts.
type AccountStore interface {
	Upsert(ctx context.Context, account *types.Account) error
}

// ProfileStore persists profiles and their account memberships.
type ProfileStore interface {
	CreateTx(ctx context.Context, db storage.DBTX, profile *types.Profile) error
	LinkAccountTx(ctx context.Context, db storage.DBTX, pa *types.ProfileAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*types.Profile, error)
	GetByAccountIDs(ctx context.Context, accountIDs []uuid.UUID) ([]*types.Profile, error)
	IsAccountLinked(ctx context.Context, profileID, accountID uuid.UUID) (bool, error)
}

// SessionKeyStore persists encrypted session wallet keys.
type SessionKeyStore interface {
	CreateTx(ctx context.Context, db storage.DBTX, key *types.SessionWalletKey) error
}

// LinkedAccountStore persists the EOAs registered under a profile.
type LinkedAccountStore interface {
	CreateTx(ctx context.Context, db storage.DBTX, la *types.LinkedAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*types.LinkedAccount, error)
	GetActiveByProfile(ctx context.Context, profileID uuid.UUID) ([]*types.LinkedAccount, error)
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
}

// WalletProvisioner generates and encrypts session wallet keys.
// Satisfied by walletexec.Executor.
type WalletProvisioner interface {
	GenerateSessionWallet(ctx context.Context) (*walletexec.ProvisionedWallet, error)
}

// AccountService handles authentication-driven account upserts, profile
// provisioning, and linked account registration.
type AccountService struct {
	tx       TxRunner
	accounts AccountStore
	profiles ProfileStore
	keys     SessionKeyStore
	linked   LinkedAccountStore
	wallets  WalletProvisioner
}

// NewAccountService creates a new account service
func NewAccountService(
	tx TxRunner,
	accounts AccountStore,
	profiles ProfileStore,
	keys SessionKeyStore,
	linked LinkedAccountStore,
	wallets WalletProvisioner,
) *AccountService {
	return &AccountService{
		tx:       tx,
		accounts: accounts,
		profiles: profiles,
		keys:     keys,
		linked:   linked,
		wallets:  wallets,
	}
}

// AuthenticateAccountRequest carries a verified authentication event from the
// auth front end. The service trusts the caller to have performed the actual
// credential check.
type AuthenticateAccountRequest struct {
	Type       types.AccountType      `json:"type"`
	Provider   *string                `json:"provider,omitempty"`
	Identifier string                 `json:"identifier"`
	Verified   bool                   `json:"verified"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`

	// ChainID is used when a wallet account is auto-registered as a linked
	// account. Zero defaults to mainnet.
	ChainID int64 `json:"chain_id,omitempty"`
}

// AuthenticateAccountResponse reports the upserted account and its profile.
type AuthenticateAccountResponse struct {
	Account *types.Account `json:"account"`
	Profile *types.Profile `json:"profile"`
	Created bool           `json:"created"`
}

// AuthenticateAccount upserts the account record and resolves its profile.
// First-time accounts get a freshly provisioned profile with a session wallet;
// wallet-type accounts additionally get their address registered as an active
// linked account.
func (s *AccountService) AuthenticateAccount(ctx context.Context, req AuthenticateAccountRequest) (*AuthenticateAccountResponse, error) {
	if !req.Type.Valid() {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "Unknown account type", http.StatusBadRequest)
	}
	if req.Identifier == "" {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "Identifier is required", http.StatusBadRequest)
	}
	if req.Type == types.AccountTypeWallet {
		if err := validation.ValidateEthereumAddress(req.Identifier); err != nil {
			return nil, apperrors.NewWithDetail(apperrors.ErrCodeValidation, "Invalid wallet identifier", err.Error(), http.StatusBadRequest)
		}
		req.Identifier = strings.ToLower(req.Identifier)
	}

	account := &types.Account{
		ID:         uuid.New(),
		Type:       req.Type,
		Provider:   req.Provider,
		Identifier: req.Identifier,
		Verified:   req.Verified,
		Metadata:   req.Metadata,
	}
	if err := s.accounts.Upsert(ctx, account); err != nil {
		return nil, err
	}

	profiles, err := s.profiles.GetByAccountIDs(ctx, []uuid.UUID{account.ID})
	if err != nil {
		return nil, err
	}
	if len(profiles) > 0 {
		return &AuthenticateAccountResponse{Account: account, Profile: profiles[0]}, nil
	}

	profile, err := s.provisionProfile(ctx, account, req.ChainID)
	if err != nil {
		return nil, err
	}

	return &AuthenticateAccountResponse{Account: account, Profile: profile, Created: true}, nil
}

// provisionProfile creates the profile, stores the encrypted session wallet
// key, and links the account as primary, all in one transaction. The key is
// generated before the transaction opens so a keystore outage cannot hold a
// database transaction open.
func (s *AccountService) provisionProfile(ctx context.Context, account *types.Account, chainID int64) (*types.Profile, error) {
	wallet, err := s.wallets.GenerateSessionWallet(ctx)
	if err != nil {
		return nil, err
	}

	profile := &types.Profile{
		ID:                   uuid.New(),
		SessionWalletAddress: wallet.Address,
	}

	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.profiles.CreateTx(ctx, tx, profile); err != nil {
			return err
		}
		if err := s.keys.CreateTx(ctx, tx, &types.SessionWalletKey{
			ProfileID:       profile.ID,
			Address:         wallet.Address,
			EncryptedKey:    wallet.EncryptedKey,
			KeystoreBackend: wallet.KeystoreBackend,
		}); err != nil {
			return err
		}
		if err := s.profiles.LinkAccountTx(ctx, tx, &types.ProfileAccount{
			ProfileID: profile.ID,
			AccountID: account.ID,
			IsPrimary: true,
		}); err != nil {
			return err
		}
		if account.Type == types.AccountTypeWallet {
			if chainID == 0 {
				chainID = 1
			}
			return s.linked.CreateTx(ctx, tx, &types.LinkedAccount{
				ID:           uuid.New(),
				ProfileID:    profile.ID,
				Address:      account.Identifier,
				ChainID:      chainID,
				AuthStrategy: DefaultAuthStrategy,
				IsActive:     true,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("provisioned profile",
		"profile_id", profile.ID,
		"account_id", account.ID,
		"session_wallet", wallet.Address,
		"keystore_backend", wallet.KeystoreBackend)

	return profile, nil
}

// GetProfile returns a profile the caller is a member of. Profiles outside
// the caller's membership are reported as not found.
func (s *AccountService) GetProfile(ctx context.Context, callerAccountID, profileID uuid.UUID) (*types.Profile, error) {
	if err := s.authorizeProfile(ctx, callerAccountID, profileID); err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperrors.NotFound("profile", profileID.String())
	}
	return profile, nil
}

// RegisterLinkedAccountRequest registers an EOA under a profile.
type RegisterLinkedAccountRequest struct {
	ProfileID    uuid.UUID `json:"profile_id"`
	Address      string    `json:"address"`
	ChainID      int64     `json:"chain_id"`
	AuthStrategy string    `json:"auth_strategy,omitempty"`
}

// RegisterLinkedAccount registers an active linked account under a profile
// the caller belongs to.
func (s *AccountService) RegisterLinkedAccount(ctx context.Context, callerAccountID uuid.UUID, req RegisterLinkedAccountRequest) (*types.LinkedAccount, error) {
	if err := validation.ValidateEthereumAddress(req.Address); err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeValidation, "Invalid linked account address", err.Error(), http.StatusBadRequest)
	}
	if err := validation.ValidateChainID(req.ChainID); err != nil {
		return nil, apperrors.NewWithDetail(apperrors.ErrCodeValidation, "Invalid chain ID", err.Error(), http.StatusBadRequest)
	}
	if err := s.authorizeProfile(ctx, callerAccountID, req.ProfileID); err != nil {
		return nil, err
	}

	strategy := req.AuthStrategy
	if strategy == "" {
		strategy = DefaultAuthStrategy
	}

	la := &types.LinkedAccount{
		ID:           uuid.New(),
		ProfileID:    req.ProfileID,
		Address:      req.Address,
		ChainID:      req.ChainID,
		AuthStrategy: strategy,
		IsActive:     true,
	}
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		return s.linked.CreateTx(ctx, tx, la)
	})
	if err != nil {
		if storage.IsUniqueViolation(err, storage.LinkedAccountConstraint) {
			return nil, apperrors.New(apperrors.ErrCodeConflict, "Address is already registered for this profile", http.StatusConflict)
		}
		return nil, err
	}

	return la, nil
}

// ListLinkedAccounts lists the active linked accounts of a profile the caller
// belongs to.
func (s *AccountService) ListLinkedAccounts(ctx context.Context, callerAccountID, profileID uuid.UUID) ([]*types.LinkedAccount, error) {
	if err := s.authorizeProfile(ctx, callerAccountID, profileID); err != nil {
		return nil, err
	}
	return s.linked.GetActiveByProfile(ctx, profileID)
}

// DeactivateLinkedAccount marks a linked account inactive. Deactivation is
// idempotent.
func (s *AccountService) DeactivateLinkedAccount(ctx context.Context, callerAccountID, linkedAccountID uuid.UUID) error {
	la, err := s.linked.GetByID(ctx, linkedAccountID)
	if err != nil {
		return err
	}
	if la == nil {
		return apperrors.NotFound("linked account", linkedAccountID.String())
	}
	if err := s.authorizeProfile(ctx, callerAccountID, la.ProfileID); err != nil {
		return err
	}

	deactivated, err := s.linked.Deactivate(ctx, linkedAccountID)
	if err != nil {
		return err
	}
	if !deactivated {
		logger.FromContext(ctx).Debug("linked account already inactive", "linked_account_id", linkedAccountID)
	}
	return nil
}

// authorizeProfile reports profiles outside the caller's membership as not
// found so membership cannot be probed.
func (s *AccountService) authorizeProfile(ctx context.Context, callerAccountID, profileID uuid.UUID) error {
	linked, err := s.profiles.IsAccountLinked(ctx, profileID, callerAccountID)
	if err != nil {
		return err
	}
	if !linked {
		return apperrors.NotFound("profile", profileID.String())
	}
	return nil
}
