package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/link-wallet/link-wallet/internal/app"
	"github.com/link-wallet/link-wallet/internal/delegation"
	"github.com/link-wallet/link-wallet/internal/execution"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// AccountService is the subset of app.AccountService used by the API layer.
// It is an interface to allow handler-level unit tests without a database.
type AccountService interface {
	AuthenticateAccount(ctx context.Context, req app.AuthenticateAccountRequest) (*app.AuthenticateAccountResponse, error)
	GetProfile(ctx context.Context, callerAccountID, profileID uuid.UUID) (*types.Profile, error)
	RegisterLinkedAccount(ctx context.Context, callerAccountID uuid.UUID, req app.RegisterLinkedAccountRequest) (*types.LinkedAccount, error)
	ListLinkedAccounts(ctx context.Context, callerAccountID, profileID uuid.UUID) ([]*types.LinkedAccount, error)
	DeactivateLinkedAccount(ctx context.Context, callerAccountID, linkedAccountID uuid.UUID) error
}

// IdentityGraph is the subset of identity.Graph used by the API layer.
type IdentityGraph interface {
	LinkAccounts(ctx context.Context, accountA, accountB uuid.UUID, mode types.PrivacyMode) (*types.IdentityLink, error)
	UpdateLinkPrivacy(ctx context.Context, accountA, accountB uuid.UUID, mode types.PrivacyMode) error
	UnlinkAccounts(ctx context.Context, accountA, accountB uuid.UUID) error
	GetLinkedAccounts(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error)
	GetAccessibleProfiles(ctx context.Context, accountID uuid.UUID) ([]*types.Profile, error)
	GetLinks(ctx context.Context, accountID uuid.UUID) ([]*types.IdentityLink, error)
}

// DelegationService is the subset of delegation.Manager used by the API layer.
type DelegationService interface {
	CreateDelegationAuthorization(ctx context.Context, callerAccountID, linkedAccountID uuid.UUID, sessionWallet string, chainID int64, permissions types.DelegationPermissions, expiresAt *time.Time) (*delegation.AuthorizationChallenge, error)
	StoreDelegation(ctx context.Context, callerAccountID, linkedAccountID uuid.UUID, signed types.SignedAuthorization, permissions types.DelegationPermissions, expiresAt *time.Time) (*types.AccountDelegation, error)
	ActivateDelegation(ctx context.Context, callerAccountID, delegationID uuid.UUID) (*types.AccountDelegation, error)
	RevokeDelegation(ctx context.Context, callerAccountID, delegationID uuid.UUID) error
	GetDelegation(ctx context.Context, callerAccountID, delegationID uuid.UUID) (*types.AccountDelegation, error)
	ListDelegations(ctx context.Context, callerAccountID, linkedAccountID uuid.UUID) ([]*types.AccountDelegation, error)
}

// ExecutionService is the subset of execution.Router used by the API layer.
type ExecutionService interface {
	DetermineBestExecutionPath(ctx context.Context, profileID uuid.UUID, tx types.Transaction) (*execution.PathDecision, error)
	ExecuteWithDelegation(ctx context.Context, callerAccountID, delegationID uuid.UUID, tx types.Transaction) (string, error)
}

// AuditStore records audit log entries for state-changing operations.
type AuditStore interface {
	Create(ctx context.Context, log *types.AuditLog) error
}
