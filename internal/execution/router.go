package execution

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/link-wallet/link-wallet/internal/delegation"
	"github.com/link-wallet/link-wallet/internal/logger"
	apperrors "github.com/link-wallet/link-wallet/pkg/errors"
	"github.com/link-wallet/link-wallet/pkg/types"
)

// DelegationAuthority answers delegation queries for routing and execution.
// Satisfied by delegation.Manager.
type DelegationAuthority interface {
	HasActiveDelegation(ctx context.Context, delegatorAddress, sessionWallet string, chainID int64) (bool, error)
	GetDelegation(ctx context.Context, callerAccountID, delegationID uuid.UUID) (*types.AccountDelegation, error)
}

// ProfileStore resolves profiles. Satisfied by storage.ProfileRepository.
type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.Profile, error)
}

// LinkedAccountLister lists a profile's active linked EOAs. Satisfied by
// storage.LinkedAccountRepository.
type LinkedAccountLister interface {
	GetActiveByProfile(ctx context.Context, profileID uuid.UUID) ([]*types.LinkedAccount, error)
}

// BalanceProber reads a delegator's native balance on a chain. Optional;
// without one the router recommends delegated paths on delegation state
// alone.
type BalanceProber interface {
	Balance(ctx context.Context, chainID int64, address string) (*big.Int, error)
}

// DelegatedExecutor signs and broadcasts a transaction under a delegation,
// returning the transaction hash.
type DelegatedExecutor interface {
	ExecuteDelegated(ctx context.Context, d *types.AccountDelegation, tx types.Transaction) (string, error)
}

// AuditRecorder persists audit events. Satisfied by
// storage.AuditLogRepository.
type AuditRecorder interface {
	Create(ctx context.Context, log *types.AuditLog) error
}

// TransactionValidator checks a meta-transaction's shape before any
// permission evaluation. Satisfied by validation.TransactionValidator.
type TransactionValidator interface {
	ValidateMetaTransaction(tx types.Transaction) error
}

// Router decides between direct and delegated execution and runs delegated
// executions end to end.
type Router struct {
	delegations DelegationAuthority
	profiles    ProfileStore
	linked      LinkedAccountLister
	executor    DelegatedExecutor
	validator   TransactionValidator
	prober      BalanceProber // nil disables balance probing
	audit       AuditRecorder // nil disables audit records
}

// NewRouter creates an execution router. prober and audit are optional.
func NewRouter(delegations DelegationAuthority, profiles ProfileStore, linked LinkedAccountLister, executor DelegatedExecutor, validator TransactionValidator, prober BalanceProber, audit AuditRecorder) *Router {
	return &Router{
		delegations: delegations,
		profiles:    profiles,
		linked:      linked,
		executor:    executor,
		validator:   validator,
		prober:      prober,
		audit:       audit,
	}
}

// PathDecision is the routing outcome for a pending transaction.
type PathDecision struct {
	Path             types.ExecutionPath `json:"path"`
	DelegatorAddress string              `json:"delegator_address,omitempty"`
}

// DetermineBestExecutionPath returns delegated on the first active linked EOA
// with a usable delegation to the profile's session wallet on the
// transaction's chain, direct otherwise. With a balance prober configured,
// delegators whose balance cannot cover the transaction value are skipped.
func (r *Router) DetermineBestExecutionPath(ctx context.Context, profileID uuid.UUID, tx types.Transaction) (*PathDecision, error) {
	profile, err := r.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return nil, apperrors.NotFound("profile", profileID.String())
	}

	accounts, err := r.linked.GetActiveByProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}

	for _, la := range accounts {
		usable, err := r.delegations.HasActiveDelegation(ctx, la.Address, profile.SessionWalletAddress, tx.ChainID)
		if err != nil {
			return nil, err
		}
		if !usable {
			continue
		}
		if r.skipForBalance(ctx, la.Address, tx) {
			continue
		}
		return &PathDecision{Path: types.ExecutionPathDelegated, DelegatorAddress: la.Address}, nil
	}

	return &PathDecision{Path: types.ExecutionPathDirect}, nil
}

// skipForBalance reports whether the delegator's balance rules the candidate
// out. Probe failures never veto a path.
func (r *Router) skipForBalance(ctx context.Context, delegatorAddress string, tx types.Transaction) bool {
	if r.prober == nil || tx.Value == nil || tx.Value.Sign() == 0 {
		return false
	}
	balance, err := r.prober.Balance(ctx, tx.ChainID, delegatorAddress)
	if err != nil {
		logger.FromContext(ctx).Debug("balance probe failed", "address", delegatorAddress, "chain_id", tx.ChainID, "error", err)
		return false
	}
	if balance.Cmp(tx.Value) < 0 {
		logger.FromContext(ctx).Info("skipping delegator with insufficient balance",
			"address", delegatorAddress, "chain_id", tx.ChainID,
			"balance", balance.String(), "value", tx.Value.String())
		return true
	}
	return false
}

// ExecuteWithDelegation runs a transaction under a delegation the caller
// owns: ownership, expiry, revocation and permission checks in that order,
// then the signed broadcast through the executor.
func (r *Router) ExecuteWithDelegation(ctx context.Context, callerAccountID, delegationID uuid.UUID, tx types.Transaction) (string, error) {
	if r.validator != nil {
		if err := r.validator.ValidateMetaTransaction(tx); err != nil {
			return "", err
		}
	}

	d, err := r.delegations.GetDelegation(ctx, callerAccountID, delegationID)
	if err != nil {
		return "", err
	}

	if d.Expired(time.Now().UTC()) {
		return "", apperrors.DelegationExpired(d.ID.String())
	}
	if d.Status == types.DelegationRevoked {
		return "", apperrors.DelegationRevoked(d.ID.String())
	}
	if !d.Status.Usable() {
		return "", apperrors.NewWithDetail(
			apperrors.ErrCodeValidation,
			"Delegation is not signed",
			d.ID.String(),
			http.StatusBadRequest,
		)
	}

	if err := delegation.CheckPermission(d.Permissions, tx); err != nil {
		return "", err
	}

	txHash, err := r.executor.ExecuteDelegated(ctx, d, tx)
	if err != nil {
		return "", fmt.Errorf("delegated execution failed: %w", err)
	}

	r.recordExecution(ctx, callerAccountID, d, tx, txHash)
	return txHash, nil
}

// recordExecution writes the audit event for a successful delegated
// execution. Audit failures are logged, never propagated.
func (r *Router) recordExecution(ctx context.Context, callerAccountID uuid.UUID, d *types.AccountDelegation, tx types.Transaction, txHash string) {
	if r.audit == nil {
		return
	}
	value := "0"
	if tx.Value != nil {
		value = tx.Value.String()
	}
	detail := fmt.Sprintf("to=%s value=%s chain_id=%d", tx.To, value, tx.ChainID)
	entry := &types.AuditLog{
		ID:           uuid.New(),
		Actor:        callerAccountID.String(),
		Action:       "delegation.execute",
		ResourceType: "delegation",
		ResourceID:   d.ID.String(),
		TxHash:       &txHash,
		Detail:       &detail,
	}
	if err := r.audit.Create(ctx, entry); err != nil {
		logger.FromContext(ctx).Error("failed to record execution audit event", "delegation_id", d.ID, "error", err)
	}
}
