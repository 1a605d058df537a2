package types

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// AuthorizationData is the unsigned payload of a delegation authorization:
// the tuple the linked EOA signs over.
type AuthorizationData struct {
	ChainID int64  `json:"chain_id"`
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

// SignedAuthorization is AuthorizationData plus the ECDSA signature returned
// by the delegator. R and S are 0x-prefixed 32-byte hex values.
type SignedAuthorization struct {
	ChainID int64  `json:"chain_id"`
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
	YParity uint8  `json:"y_parity"`
	R       string `json:"r"`
	S       string `json:"s"`
}

// DelegationPermissions bounds what a delegation may be used for. Boolean
// permissions are pointers so "absent" is distinguishable from "false"; the
// legacy All flag grants everything when no granular flags are present.
type DelegationPermissions struct {
	All                      bool     `json:"all,omitempty"`
	CanTransfer              *bool    `json:"can_transfer,omitempty"`
	CanApprove               *bool    `json:"can_approve,omitempty"`
	CanSwap                  *bool    `json:"can_swap,omitempty"`
	CanInteractWithContracts *bool    `json:"can_interact_with_contracts,omitempty"`
	// MaxTransactionValue is a decimal wei string.
	MaxTransactionValue *string  `json:"max_transaction_value,omitempty"`
	AllowedChains       []int64  `json:"allowed_chains,omitempty"`
	AllowedContracts    []string `json:"allowed_contracts,omitempty"`
	RequiresMultisig    bool     `json:"requires_multisig,omitempty"`
}

// AccountDelegation is a time-and-permission-bounded authorization letting a
// session wallet act for a linked EOA.
type AccountDelegation struct {
	ID                uuid.UUID             `json:"id"`
	LinkedAccountID   uuid.UUID             `json:"linked_account_id"`
	DelegatedAddress  string                `json:"delegated_address"`
	ChainID           int64                 `json:"chain_id"`
	AuthorizationData AuthorizationData     `json:"authorization_data"`
	Signature         *SignedAuthorization  `json:"signature,omitempty"`
	Permissions       DelegationPermissions `json:"permissions"`
	Nonce             uint64                `json:"nonce"`
	ExpiresAt         *time.Time            `json:"expires_at,omitempty"`
	Status            DelegationStatus      `json:"status"`
	ActivatedAt       *time.Time            `json:"activated_at,omitempty"`
	RevokedAt         *time.Time            `json:"revoked_at,omitempty"`
	TransactionHash   *string               `json:"transaction_hash,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// Expired reports whether the delegation's expiry is in the past at t.
// Stored status is not consulted and never mutated.
func (d *AccountDelegation) Expired(t time.Time) bool {
	return d.ExpiresAt != nil && d.ExpiresAt.Before(t)
}

// Transaction is a pending meta-transaction to be gated and executed.
type Transaction struct {
	To      string   `json:"to"`
	Value   *big.Int `json:"value"`
	Data    []byte   `json:"data"`
	ChainID int64    `json:"chain_id"`
}

// ExecutionPath is the router's decision for a pending transaction.
type ExecutionPath string

const (
	// ExecutionPathDirect executes via the profile's own session wallet.
	ExecutionPathDirect ExecutionPath = "direct"
	// ExecutionPathDelegated executes under an active delegation from a
	// linked EOA.
	ExecutionPathDelegated ExecutionPath = "delegated"
)
